package serializers

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"image/png"
	"path/filepath"
	"strings"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	"github.com/spaghettifunk/anima-assets/engine/assets"
)

/**
 * @brief Represents a texture. Pixels are always stored as 8-bit RGBA,
 * non-premultiplied.
 */
type Texture struct {
	assets.BaseAsset
	/** @brief The texture Width. */
	Width uint32
	/** @brief The texture Height. */
	Height uint32
	/** @brief The number of channels in the texture. */
	ChannelCount uint8
	/** @brief Indicates if any pixel is not fully opaque. */
	HasTransparency bool
	/** @brief The raw texture data (pixels). */
	Pixels []uint8
}

func NewTexture(width, height uint32, pixels []uint8) *Texture {
	t := &Texture{
		Width:        width,
		Height:       height,
		ChannelCount: 4,
		Pixels:       pixels,
	}
	if t.Pixels == nil {
		t.Pixels = make([]uint8, int(width)*int(height)*4)
	}
	t.HasTransparency = hasTransparency(t.Pixels)
	return t
}

func (t *Texture) Kind() assets.AssetKind {
	return assets.AssetKindTexture
}

// Image wraps the pixel data without copying.
func (t *Texture) Image() *image.NRGBA {
	return &image.NRGBA{
		Pix:    t.Pixels,
		Stride: int(t.Width) * 4,
		Rect:   image.Rect(0, 0, int(t.Width), int(t.Height)),
	}
}

type TextureSerializer struct {
	fileSerializer
}

func (ts *TextureSerializer) TryLoadData(meta assets.AssetMetaData) (assets.Asset, error) {
	data, err := ts.read(meta)
	if err != nil {
		return nil, err
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding texture: %w", err)
	}

	bounds := img.Bounds()
	nrgba, ok := img.(*image.NRGBA)
	if !ok || bounds.Min != (image.Point{}) {
		nrgba = image.NewNRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
		draw.Draw(nrgba, nrgba.Bounds(), img, bounds.Min, draw.Src)
	}
	return NewTexture(uint32(bounds.Dx()), uint32(bounds.Dy()), nrgba.Pix), nil
}

func (ts *TextureSerializer) Serialize(asset assets.Asset, meta assets.AssetMetaData) error {
	t, err := cast[*Texture](asset)
	if err != nil {
		return err
	}
	if want := int(t.Width) * int(t.Height) * 4; len(t.Pixels) != want {
		return fmt.Errorf("texture has %d bytes of pixels, expected %d", len(t.Pixels), want)
	}

	var buf bytes.Buffer
	img := t.Image()
	switch strings.ToLower(filepath.Ext(meta.FilePath)) {
	case ".png":
		err = png.Encode(&buf, img)
	case ".jpg", ".jpeg":
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95})
	case ".bmp":
		err = bmp.Encode(&buf, img)
	case ".tif", ".tiff":
		err = tiff.Encode(&buf, img, &tiff.Options{Compression: tiff.Deflate})
	default:
		err = fmt.Errorf("no texture encoder for '%s'", meta.FilePath)
	}
	if err != nil {
		return err
	}
	return ts.write(meta, buf.Bytes())
}

func hasTransparency(pixels []uint8) bool {
	for i := 3; i < len(pixels); i += 4 {
		if pixels[i] != 0xFF {
			return true
		}
	}
	return false
}
