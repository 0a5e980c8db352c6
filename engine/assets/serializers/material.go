package serializers

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/spaghettifunk/anima-assets/engine/assets"
	"github.com/spaghettifunk/anima-assets/engine/core"
	"github.com/spaghettifunk/anima-assets/engine/math"
)

// Material describes how a surface is shaded. Texture maps reference
// texture assets by handle.
type Material struct {
	assets.BaseAsset
	Name          string
	ShaderName    string
	DiffuseColour math.Vec4
	Shininess     float32
	DiffuseMap    assets.AssetHandle
	SpecularMap   assets.AssetHandle
	NormalMap     assets.AssetHandle
}

func NewMaterial(name, shader string) *Material {
	return &Material{
		Name:          name,
		ShaderName:    shader,
		DiffuseColour: math.NewVec4One(),
		Shininess:     32.0,
	}
}

func (m *Material) Kind() assets.AssetKind {
	return assets.AssetKindMaterial
}

type materialDocument struct {
	Name          string             `toml:"name"`
	Shader        string             `toml:"shader"`
	DiffuseColour [4]float32         `toml:"diffuse_colour"`
	Shininess     float32            `toml:"shininess"`
	DiffuseMap    assets.AssetHandle `toml:"diffuse_map,omitempty"`
	SpecularMap   assets.AssetHandle `toml:"specular_map,omitempty"`
	NormalMap     assets.AssetHandle `toml:"normal_map,omitempty"`
}

// MaterialSerializer reads and writes .amat files as TOML.
type MaterialSerializer struct {
	fileSerializer
}

func (ms *MaterialSerializer) TryLoadData(meta assets.AssetMetaData) (assets.Asset, error) {
	data, err := ms.read(meta)
	if err != nil {
		return nil, err
	}
	doc := materialDocument{DiffuseColour: [4]float32{1, 1, 1, 1}}
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing material: %w", err)
	}
	m := &Material{
		Name:          doc.Name,
		ShaderName:    doc.Shader,
		DiffuseColour: math.NewVec4(doc.DiffuseColour[0], doc.DiffuseColour[1], doc.DiffuseColour[2], doc.DiffuseColour[3]),
		Shininess:     doc.Shininess,
		DiffuseMap:    doc.DiffuseMap,
		SpecularMap:   doc.SpecularMap,
		NormalMap:     doc.NormalMap,
	}
	if m.Name == "" {
		m.Name = strings.TrimSuffix(filepath.Base(meta.FilePath), filepath.Ext(meta.FilePath))
	}
	// The partially valid material is still returned so it can be inspected.
	if err := validateMaterial(m); err != nil {
		return m, err
	}
	return m, nil
}

func (ms *MaterialSerializer) Serialize(asset assets.Asset, meta assets.AssetMetaData) error {
	m, err := cast[*Material](asset)
	if err != nil {
		return err
	}
	if err := validateMaterial(m); err != nil {
		return err
	}
	doc := materialDocument{
		Name:          m.Name,
		Shader:        m.ShaderName,
		DiffuseColour: [4]float32{m.DiffuseColour.X, m.DiffuseColour.Y, m.DiffuseColour.Z, m.DiffuseColour.W},
		Shininess:     m.Shininess,
		DiffuseMap:    m.DiffuseMap,
		SpecularMap:   m.SpecularMap,
		NormalMap:     m.NormalMap,
	}
	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	enc.SetIndentTables(true)
	if err := enc.Encode(&doc); err != nil {
		return err
	}
	return ms.write(meta, buf.Bytes())
}

// validateMaterial fixes values that can be clamped and fails on the ones
// that cannot.
func validateMaterial(m *Material) error {
	if m.ShaderName == "" {
		return fmt.Errorf("material '%s': shader name is required", m.Name)
	}

	c := m.DiffuseColour
	clamped := math.Saturate(c)
	if clamped != c {
		core.LogWarn("Material '%s': diffuse_colour values must be between 0.0 and 1.0, clamping.", m.Name)
		m.DiffuseColour = clamped
	}

	if m.Shininess < 0 {
		core.LogWarn("Material '%s': shininess must be a non-negative value, using 0.", m.Name)
		m.Shininess = 0
	}
	return nil
}
