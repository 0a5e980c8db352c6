package assets

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spaghettifunk/anima-assets/engine/core"
)

// GetAsset returns the instance of h as T, loading it first if needed.
// The error wraps core.ErrNotFound for unknown handles, core.ErrTypeMismatch
// when h holds a different type and core.ErrDeserialize when only a
// placeholder could be cached. A flagged but typed instance (see
// Asset.IsErrored) is returned without error so callers can draw it as a
// broken asset.
func GetAsset[T Asset](rm *ResourceManager, h AssetHandle) (T, error) {
	var zero T
	asset, err := rm.GetAsset(h)
	if err != nil {
		return zero, err
	}
	typed, ok := asset.(T)
	if !ok {
		err := fmt.Errorf("%w: handle %s holds %s, requested %T", core.ErrTypeMismatch, h, asset.Kind(), zero)
		core.LogError("GetAsset - %s", err)
		return zero, err
	}
	return typed, nil
}

// CreateAsset writes asset into dirPath/fileName, registers it and returns it
// loaded. An existing file is never overwritten: " (n)" is appended to the
// name until it is free. A fileName without extension gets the default one
// for the asset kind.
func CreateAsset[T Asset](rm *ResourceManager, dirPath, fileName string, asset T) (T, error) {
	var zero T
	kind := asset.Kind()
	serializer := rm.serializers.Get(kind)
	if serializer == nil {
		return zero, fmt.Errorf("%w: no serializer registered for %s", core.ErrUnknownKind, kind)
	}

	if filepath.Ext(fileName) == "" {
		fileName += DefaultExtension(kind)
	}
	if got := KindFromPath(fileName); got != kind {
		return zero, fmt.Errorf("%w: '%s' is not a %s file", core.ErrTypeMismatch, fileName, kind)
	}

	dir := "."
	if dirPath != "" && filepath.Clean(dirPath) != "." && filepath.Clean(dirPath) != rm.root {
		rel, err := rm.relativePath(dirPath)
		if err != nil {
			return zero, err
		}
		dir = rel
	}
	if err := os.MkdirAll(rm.absolutePath(dir), 0o755); err != nil {
		return zero, fmt.Errorf("creating asset directory: %w", err)
	}

	rel := rm.availablePath(dir, fileName)
	meta := AssetMetaData{
		Handle:   rm.reserveHandle(),
		Kind:     kind,
		FilePath: rel,
	}
	b := asset.base()
	b.handle = meta.Handle
	b.flags = AssetFlagNone
	if err := serializer.Serialize(asset, meta); err != nil {
		return zero, fmt.Errorf("serializing new %s '%s': %w", kind, rel, err)
	}

	rm.noteOwnWrite(rel)
	rm.registerCreated(meta, asset)
	core.LogDebug("Created %s '%s' as %s.", kind, rel, meta.Handle)
	return asset, nil
}

// CreateMemoryAsset registers asset in the memory pool. It is never written
// to disk or to the manifest and disappears when unloaded.
func CreateMemoryAsset[T Asset](rm *ResourceManager, asset T) T {
	meta := AssetMetaData{
		Handle:        rm.reserveHandle(),
		Kind:          asset.Kind(),
		IsMemoryAsset: true,
	}
	rm.registerCreated(meta, asset)
	return asset
}

func (rm *ResourceManager) reserveHandle() AssetHandle {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return rm.newHandleLocked()
}

// availablePath returns dir/fileName, or the first "name (n).ext" that is
// neither on disk nor in the registry.
func (rm *ResourceManager) availablePath(dir, fileName string) string {
	ext := filepath.Ext(fileName)
	stem := strings.TrimSuffix(fileName, ext)

	join := func(name string) string {
		if dir == "." {
			return name
		}
		return dir + "/" + name
	}

	candidate := join(fileName)
	for n := 1; rm.pathTaken(candidate); n++ {
		candidate = join(fmt.Sprintf("%s (%d)%s", stem, n, ext))
	}
	return candidate
}

func (rm *ResourceManager) pathTaken(rel string) bool {
	if _, err := os.Stat(rm.absolutePath(rel)); err == nil {
		return true
	}
	return rm.GetAssetHandleFromFilePath(rel).IsValid()
}
