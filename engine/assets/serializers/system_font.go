package serializers

import (
	"fmt"

	"golang.org/x/image/font/opentype"
	"golang.org/x/image/font/sfnt"

	"github.com/spaghettifunk/anima-assets/engine/assets"
	"github.com/spaghettifunk/anima-assets/engine/core"
)

// SystemFont is a TrueType or OpenType font file, possibly a collection.
type SystemFont struct {
	assets.BaseAsset
	// Faces holds the family name of every font in the file.
	Faces      []string
	Collection *sfnt.Collection
}

func (sf *SystemFont) Kind() assets.AssetKind {
	return assets.AssetKindSystemFont
}

// Face returns the font of the collection with the given family name.
func (sf *SystemFont) Face(name string) (*sfnt.Font, error) {
	for i, face := range sf.Faces {
		if face == name {
			return sf.Collection.Font(i)
		}
	}
	return nil, fmt.Errorf("%w: font face '%s'", core.ErrNotFound, name)
}

// SystemFontSerializer imports .ttf, .otf and .ttc files. Writing them is
// not supported.
type SystemFontSerializer struct {
	fileSerializer
}

func (ss *SystemFontSerializer) TryLoadData(meta assets.AssetMetaData) (assets.Asset, error) {
	data, err := ss.read(meta)
	if err != nil {
		return nil, err
	}
	collection, err := opentype.ParseCollection(data)
	if err != nil {
		return nil, fmt.Errorf("parsing font: %w", err)
	}

	out := &SystemFont{Collection: collection}
	for i := 0; i < collection.NumFonts(); i++ {
		f, err := collection.Font(i)
		if err != nil {
			return out, fmt.Errorf("font %d: %w", i, err)
		}
		name, err := f.Name(nil, sfnt.NameIDFamily)
		if err != nil {
			return out, fmt.Errorf("font %d name: %w", i, err)
		}
		out.Faces = append(out.Faces, name)
	}
	return out, nil
}

func (ss *SystemFontSerializer) Serialize(asset assets.Asset, meta assets.AssetMetaData) error {
	return fmt.Errorf("%w: %s", core.ErrReadOnly, meta.Kind)
}
