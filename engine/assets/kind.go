package assets

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spaghettifunk/anima-assets/engine/core"
)

// AssetKind tags the type of an asset. Its string form is what the manifest stores.
type AssetKind int

const (
	AssetKindNone AssetKind = iota
	AssetKindScene
	AssetKindTexture
	AssetKindMesh
	AssetKindMaterial
	AssetKindPrefab
	AssetKindScript
	AssetKindShader
	AssetKindFont
	AssetKindSystemFont
)

var kindNames = map[AssetKind]string{
	AssetKindNone:       "None",
	AssetKindScene:      "Scene",
	AssetKindTexture:    "Texture",
	AssetKindMesh:       "Mesh",
	AssetKindMaterial:   "Material",
	AssetKindPrefab:     "Prefab",
	AssetKindScript:     "Script",
	AssetKindShader:     "Shader",
	AssetKindFont:       "Font",
	AssetKindSystemFont: "SystemFont",
}

func (k AssetKind) String() string {
	extensionsMu.RLock()
	defer extensionsMu.RUnlock()
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("AssetKind(%d)", int(k))
}

func (k AssetKind) MarshalText() ([]byte, error) {
	extensionsMu.RLock()
	name, ok := kindNames[k]
	extensionsMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %d", core.ErrUnknownKind, int(k))
	}
	return []byte(name), nil
}

func (k *AssetKind) UnmarshalText(text []byte) error {
	parsed, err := ParseAssetKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseAssetKind maps a kind name back to its enum value. Matching ignores case.
func ParseAssetKind(s string) (AssetKind, error) {
	extensionsMu.RLock()
	defer extensionsMu.RUnlock()
	for k, name := range kindNames {
		if strings.EqualFold(name, s) {
			return k, nil
		}
	}
	return AssetKindNone, fmt.Errorf("%w: %q", core.ErrUnknownKind, s)
}

var (
	extensionsMu sync.RWMutex
	extensions   = map[string]AssetKind{
		".ascene":  AssetKindScene,
		".png":     AssetKindTexture,
		".jpg":     AssetKindTexture,
		".jpeg":    AssetKindTexture,
		".bmp":     AssetKindTexture,
		".tif":     AssetKindTexture,
		".tiff":    AssetKindTexture,
		".gltf":    AssetKindMesh,
		".glb":     AssetKindMesh,
		".amat":    AssetKindMaterial,
		".aprefab": AssetKindPrefab,
		".lua":     AssetKindScript,
		".spv":     AssetKindShader,
		".fnt":     AssetKindFont,
		".ttf":     AssetKindSystemFont,
		".otf":     AssetKindSystemFont,
		".ttc":     AssetKindSystemFont,
	}
	defaultExtensions = map[AssetKind]string{
		AssetKindScene:    ".ascene",
		AssetKindTexture:  ".png",
		AssetKindMesh:     ".gltf",
		AssetKindMaterial: ".amat",
		AssetKindPrefab:   ".aprefab",
		AssetKindScript:   ".lua",
		AssetKindShader:   ".spv",
	}
)

// RegisterExtension maps a file extension (with leading dot) to a kind.
// New kinds must also register their name with RegisterKindName.
func RegisterExtension(ext string, kind AssetKind) {
	extensionsMu.Lock()
	defer extensionsMu.Unlock()
	extensions[strings.ToLower(ext)] = kind
	if _, ok := defaultExtensions[kind]; !ok {
		defaultExtensions[kind] = strings.ToLower(ext)
	}
}

// RegisterKindName gives a kind added outside this package its manifest name.
func RegisterKindName(kind AssetKind, name string) {
	extensionsMu.Lock()
	defer extensionsMu.Unlock()
	kindNames[kind] = name
}

// KindFromPath classifies a file by its extension.
func KindFromPath(p string) AssetKind {
	extensionsMu.RLock()
	defer extensionsMu.RUnlock()
	if kind, ok := extensions[strings.ToLower(filepath.Ext(p))]; ok {
		return kind
	}
	return AssetKindNone
}

// DefaultExtension is the extension used when an asset of kind is created
// without an explicit one. Empty for kinds that cannot be written.
func DefaultExtension(kind AssetKind) string {
	extensionsMu.RLock()
	defer extensionsMu.RUnlock()
	return defaultExtensions[kind]
}
