package serializers

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/spaghettifunk/anima-assets/engine/assets"
)

// Script is a Lua source file. ClassName is derived from the file name.
type Script struct {
	assets.BaseAsset
	ClassName string
	Source    string
}

func NewScript(source string) *Script {
	return &Script{Source: source}
}

func (s *Script) Kind() assets.AssetKind {
	return assets.AssetKindScript
}

func scriptClassName(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

type ScriptSerializer struct {
	fileSerializer
}

func (ss *ScriptSerializer) TryLoadData(meta assets.AssetMetaData) (assets.Asset, error) {
	data, err := ss.read(meta)
	if err != nil {
		return nil, err
	}
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("script '%s' is not valid UTF-8", meta.FilePath)
	}
	return &Script{
		ClassName: scriptClassName(meta.FilePath),
		Source:    string(data),
	}, nil
}

func (ss *ScriptSerializer) Serialize(asset assets.Asset, meta assets.AssetMetaData) error {
	s, err := cast[*Script](asset)
	if err != nil {
		return err
	}
	if err := ss.write(meta, []byte(s.Source)); err != nil {
		return err
	}
	s.ClassName = scriptClassName(meta.FilePath)
	return nil
}
