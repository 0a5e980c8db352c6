package serializers

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spaghettifunk/anima-assets/engine/assets"
	"github.com/spaghettifunk/anima-assets/engine/core"
)

// RegisterDefaults registers a serializer for every built-in asset kind.
// assetDirectory is the root the metadata paths are relative to.
func RegisterDefaults(registry *assets.SerializerRegistry, assetDirectory string) error {
	root := fileSerializer{root: assetDirectory}
	defaults := []struct {
		kind       assets.AssetKind
		serializer assets.Serializer
	}{
		{assets.AssetKindScene, &SceneSerializer{root}},
		{assets.AssetKindTexture, &TextureSerializer{root}},
		{assets.AssetKindMesh, &MeshSerializer{root}},
		{assets.AssetKindMaterial, &MaterialSerializer{root}},
		{assets.AssetKindPrefab, &PrefabSerializer{root}},
		{assets.AssetKindScript, &ScriptSerializer{root}},
		{assets.AssetKindShader, &ShaderSerializer{root}},
		{assets.AssetKindFont, &FontSerializer{root}},
		{assets.AssetKindSystemFont, &SystemFontSerializer{root}},
	}
	for _, d := range defaults {
		if err := registry.Register(d.kind, d.serializer); err != nil {
			return err
		}
	}
	return nil
}

// fileSerializer resolves metadata paths against the asset directory.
type fileSerializer struct {
	root string
}

func (fs fileSerializer) path(meta assets.AssetMetaData) string {
	return filepath.Join(fs.root, filepath.FromSlash(meta.FilePath))
}

func (fs fileSerializer) read(meta assets.AssetMetaData) ([]byte, error) {
	if meta.FilePath == "" {
		return nil, fmt.Errorf("%w: %s has no file", core.ErrNotFound, meta.Handle)
	}
	data, err := os.ReadFile(fs.path(meta))
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (fs fileSerializer) write(meta assets.AssetMetaData, data []byte) error {
	if meta.FilePath == "" {
		return fmt.Errorf("%s %s has no file to write", meta.Kind, meta.Handle)
	}
	return assets.WriteFileAtomic(fs.path(meta), data)
}

// cast narrows asset to the concrete type a serializer handles.
func cast[T assets.Asset](asset assets.Asset) (T, error) {
	typed, ok := asset.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: expected %T, got %T", core.ErrTypeMismatch, zero, asset)
	}
	return typed, nil
}
