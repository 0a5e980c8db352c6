package core

import (
	"errors"
)

var (
	// ErrNotFound is returned for unknown handles and missing files.
	ErrNotFound = errors.New("asset not found")
	// ErrTypeMismatch is returned when a handle exists but holds a different kind.
	ErrTypeMismatch = errors.New("asset type mismatch")
	// ErrDeserialize is returned when a serializer could not load the asset data.
	ErrDeserialize = errors.New("asset deserialize failure")
	// ErrReadOnly is returned by serializers that can only import a format.
	ErrReadOnly = errors.New("asset kind is read-only")
	// ErrUnknownKind is returned for unrecognised file extensions or kind names.
	ErrUnknownKind = errors.New("unknown asset kind")
	// ErrInvariant marks an internal consistency violation.
	ErrInvariant = errors.New("asset registry invariant violation")
)
