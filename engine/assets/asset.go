package assets

// AssetFlag is a bit set describing the runtime state of a loaded instance.
type AssetFlag uint16

const (
	AssetFlagNone AssetFlag = 0
	// The backing file could not be found when the asset was loaded.
	AssetFlagMissing AssetFlag = 1 << 0
	// The serializer failed; the instance is a "broken asset" stand-in.
	AssetFlagInvalid AssetFlag = 1 << 1
	// The instance is being evicted from the cache.
	AssetFlagUnloading AssetFlag = 1 << 2
)

// Asset is implemented by every loadable asset type. Concrete types embed
// BaseAsset and provide Kind.
type Asset interface {
	Handle() AssetHandle
	Kind() AssetKind
	Flags() AssetFlag
	HasFlag(flag AssetFlag) bool
	// IsErrored reports whether the instance only stands in for data that
	// failed to load.
	IsErrored() bool

	base() *BaseAsset
}

// BaseAsset carries the state the resource manager maintains for every
// instance. It is never persisted by serializers.
type BaseAsset struct {
	handle AssetHandle
	flags  AssetFlag
}

func (b *BaseAsset) Handle() AssetHandle {
	return b.handle
}

func (b *BaseAsset) Flags() AssetFlag {
	return b.flags
}

func (b *BaseAsset) HasFlag(flag AssetFlag) bool {
	return b.flags&flag != 0
}

func (b *BaseAsset) IsErrored() bool {
	return b.HasFlag(AssetFlagInvalid | AssetFlagMissing)
}

func (b *BaseAsset) base() *BaseAsset {
	return b
}

func (b *BaseAsset) setFlag(flag AssetFlag, value bool) {
	if value {
		b.flags |= flag
	} else {
		b.flags &^= flag
	}
}

// Placeholder is cached in place of an asset whose serializer produced no
// object at all. It keeps the kind so browsers can draw a typed fallback.
type Placeholder struct {
	BaseAsset
	kind AssetKind
	// Err is the load failure.
	Err error
}

func (p *Placeholder) Kind() AssetKind {
	return p.kind
}

func newPlaceholder(kind AssetKind, err error) *Placeholder {
	return &Placeholder{kind: kind, Err: err}
}
