package assets

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spaghettifunk/anima-assets/engine/core"
)

// AssetHandle is the opaque identifier of an asset, independent of where the
// asset is stored. The zero value is InvalidHandle.
type AssetHandle uint64

// InvalidHandle means "no asset".
const InvalidHandle AssetHandle = 0

// NewAssetHandle returns a fresh random handle. It is never InvalidHandle.
func NewAssetHandle() AssetHandle {
	return AssetHandle(core.NewIdentifier())
}

func (h AssetHandle) IsValid() bool {
	return h != InvalidHandle
}

// String renders the handle as 16 upper-case hex digits.
func (h AssetHandle) String() string {
	return fmt.Sprintf("%016X", uint64(h))
}

func (h AssetHandle) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

func (h *AssetHandle) UnmarshalText(text []byte) error {
	parsed, err := ParseAssetHandle(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// ParseAssetHandle parses the hex form produced by String. A leading "0x" is
// accepted and the empty string parses to InvalidHandle.
func ParseAssetHandle(s string) (AssetHandle, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return InvalidHandle, nil
	}
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return InvalidHandle, fmt.Errorf("invalid asset handle %q: %w", s, err)
	}
	return AssetHandle(v), nil
}
