package assets

import (
	"fmt"
	"sort"
	"sync"

	"github.com/spaghettifunk/anima-assets/engine/core"
)

// Serializer loads and stores the file format of a single asset kind.
//
// TryLoadData returns the deserialized instance. On failure it may still return
// a partially populated instance; the resource manager caches it flagged as
// invalid so callers can draw a fallback.
type Serializer interface {
	TryLoadData(metadata AssetMetaData) (Asset, error)
	Serialize(asset Asset, metadata AssetMetaData) error
}

// SerializerRegistry maps kinds to serializers. One serializer per kind.
type SerializerRegistry struct {
	mu          sync.RWMutex
	serializers map[AssetKind]Serializer
}

func NewSerializerRegistry() *SerializerRegistry {
	return &SerializerRegistry{
		serializers: make(map[AssetKind]Serializer),
	}
}

// Register installs s for kind. Registering a kind twice is an error.
func (r *SerializerRegistry) Register(kind AssetKind, s Serializer) error {
	if kind == AssetKindNone || s == nil {
		return fmt.Errorf("%w: cannot register serializer for %s", core.ErrUnknownKind, kind)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.serializers[kind]; exists {
		return fmt.Errorf("serializer for asset kind %s already registered", kind)
	}
	r.serializers[kind] = s
	core.LogDebug("Serializer registered for asset kind %s.", kind)
	return nil
}

// Get returns the serializer for kind, or nil.
func (r *SerializerRegistry) Get(kind AssetKind) Serializer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.serializers[kind]
}

// Kinds lists every kind with a registered serializer, in enum order.
func (r *SerializerRegistry) Kinds() []AssetKind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]AssetKind, 0, len(r.serializers))
	for k := range r.serializers {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
