package core

import (
	"encoding/binary"

	"github.com/google/uuid"
)

// NewIdentifier returns a random, non-zero 64-bit identifier. The value is the
// xor-fold of a version 4 UUID so collisions stay as unlikely as uuid allows
// within 64 bits.
func NewIdentifier() uint64 {
	for {
		u := uuid.New()
		id := binary.LittleEndian.Uint64(u[:8]) ^ binary.LittleEndian.Uint64(u[8:])
		if id != 0 {
			return id
		}
	}
}
