package serializers

import (
	"fmt"
	"sort"

	"github.com/fzipp/bmfont"

	"github.com/spaghettifunk/anima-assets/engine/assets"
	"github.com/spaghettifunk/anima-assets/engine/core"
)

type FontGlyph struct {
	Codepoint rune
	X         uint16
	Y         uint16
	Width     uint16
	Height    uint16
	XOffset   int16
	YOffset   int16
	XAdvance  int16
	PageID    uint8
}

type FontKerning struct {
	Codepoint0 rune
	Codepoint1 rune
	Amount     int16
}

type FontPage struct {
	ID   int8
	File string
}

// Font is an imported AngelCode bitmap font. Glyphs are sorted by codepoint.
type Font struct {
	assets.BaseAsset
	Face       string
	Size       uint32
	LineHeight int32
	Baseline   int32
	AtlasSizeX int32
	AtlasSizeY int32
	Glyphs     []FontGlyph
	Kernings   []FontKerning
	Pages      []FontPage
}

func (f *Font) Kind() assets.AssetKind {
	return assets.AssetKindFont
}

// Glyph looks up the glyph for a codepoint.
func (f *Font) Glyph(codepoint rune) (FontGlyph, bool) {
	i := sort.Search(len(f.Glyphs), func(i int) bool { return f.Glyphs[i].Codepoint >= codepoint })
	if i < len(f.Glyphs) && f.Glyphs[i].Codepoint == codepoint {
		return f.Glyphs[i], true
	}
	return FontGlyph{}, false
}

// FontSerializer imports .fnt files. The format is produced by external
// tools, so it cannot be written back.
type FontSerializer struct {
	fileSerializer
}

func (fs *FontSerializer) TryLoadData(meta assets.AssetMetaData) (assets.Asset, error) {
	if meta.FilePath == "" {
		return nil, fmt.Errorf("%w: %s has no file", core.ErrNotFound, meta.Handle)
	}
	font, err := bmfont.Load(fs.path(meta))
	if err != nil {
		return nil, fmt.Errorf("importing bitmap font: %w", err)
	}

	out := &Font{
		Face:       font.Descriptor.Info.Face,
		Size:       uint32(font.Descriptor.Info.Size),
		LineHeight: int32(font.Descriptor.Common.LineHeight),
		Baseline:   int32(font.Descriptor.Common.Base),
		AtlasSizeX: int32(font.Descriptor.Common.ScaleW),
		AtlasSizeY: int32(font.Descriptor.Common.ScaleH),
		Glyphs:     make([]FontGlyph, 0, len(font.Descriptor.Chars)),
		Kernings:   make([]FontKerning, 0, len(font.Descriptor.Kerning)),
		Pages:      make([]FontPage, 0, len(font.Descriptor.Pages)),
	}
	for _, p := range font.Descriptor.Pages {
		out.Pages = append(out.Pages, FontPage{ID: int8(p.ID), File: p.File})
	}
	for _, g := range font.Descriptor.Chars {
		out.Glyphs = append(out.Glyphs, FontGlyph{
			Codepoint: rune(g.ID),
			X:         uint16(g.X),
			Y:         uint16(g.Y),
			Width:     uint16(g.Width),
			Height:    uint16(g.Height),
			XOffset:   int16(g.XOffset),
			YOffset:   int16(g.YOffset),
			XAdvance:  int16(g.XAdvance),
			PageID:    uint8(g.Page),
		})
	}
	for p, k := range font.Descriptor.Kerning {
		out.Kernings = append(out.Kernings, FontKerning{
			Codepoint0: rune(p.First),
			Codepoint1: rune(p.Second),
			Amount:     int16(k.Amount),
		})
	}
	sort.Slice(out.Pages, func(i, j int) bool { return out.Pages[i].ID < out.Pages[j].ID })
	sort.Slice(out.Glyphs, func(i, j int) bool { return out.Glyphs[i].Codepoint < out.Glyphs[j].Codepoint })
	sort.Slice(out.Kernings, func(i, j int) bool {
		if out.Kernings[i].Codepoint0 != out.Kernings[j].Codepoint0 {
			return out.Kernings[i].Codepoint0 < out.Kernings[j].Codepoint0
		}
		return out.Kernings[i].Codepoint1 < out.Kernings[j].Codepoint1
	})
	return out, nil
}

func (fs *FontSerializer) Serialize(asset assets.Asset, meta assets.AssetMetaData) error {
	return fmt.Errorf("%w: %s", core.ErrReadOnly, meta.Kind)
}
