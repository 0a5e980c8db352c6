package assets

// AssetMetaData describes one handle. FilePath is relative to the asset
// directory, uses forward slashes, and is empty for memory assets.
type AssetMetaData struct {
	Handle        AssetHandle
	Kind          AssetKind
	FilePath      string
	IsMemoryAsset bool
	IsDataLoaded  bool
}

func (m AssetMetaData) IsValid() bool {
	return m.Handle.IsValid() && m.Kind != AssetKindNone
}
