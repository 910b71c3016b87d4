package loaders

import (
	"fmt"
	"image"
	"os"

	"golang.org/x/image/font"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

const (
	firstPrintable = 32
	lastPrintable  = 126
	atlasColumns   = 16
)

type SystemFontParams struct {
	Size float64
	DPI  float64
}

// SystemFontLoader rasterizes the printable ASCII range of a TrueType or
// OpenType font into an atlas.
type SystemFontLoader struct{}

func (fl *SystemFontLoader) Load(path string, params interface{}) (*Resource, error) {
	opts := SystemFontParams{Size: 16, DPI: 72}
	if p, ok := params.(*SystemFontParams); ok && p != nil {
		opts = *p
	}

	fontBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	f, err := opentype.Parse(fontBytes)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    opts.Size,
		DPI:     opts.DPI,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	defer face.Close()

	data := RasterizeFace(face, path, uint32(opts.Size))
	return &Resource{
		Name:     path,
		FullPath: path,
		Type:     ResourceTypeSystemFont,
		DataSize: uint64(len(data.Glyphs)),
		Data:     data,
	}, nil
}

func (fl *SystemFontLoader) Unload(r *Resource) error {
	r.Data = nil
	return nil
}

// RasterizeFace draws every printable ASCII glyph of face into a grid atlas.
func RasterizeFace(face font.Face, name string, size uint32) *FontData {
	metrics := face.Metrics()
	lineHeight := metrics.Height.Ceil()
	ascent := metrics.Ascent.Ceil()

	cellWidth := 0
	for r := rune(firstPrintable); r <= lastPrintable; r++ {
		if adv, ok := face.GlyphAdvance(r); ok && adv.Ceil() > cellWidth {
			cellWidth = adv.Ceil()
		}
	}
	count := lastPrintable - firstPrintable + 1
	rows := (count + atlasColumns - 1) / atlasColumns
	atlas := image.NewAlpha(image.Rect(0, 0, cellWidth*atlasColumns, lineHeight*rows))

	data := &FontData{
		Face:       name,
		Size:       size,
		LineHeight: int32(lineHeight),
		Baseline:   int32(ascent),
		AtlasSizeX: int32(atlas.Bounds().Dx()),
		AtlasSizeY: int32(atlas.Bounds().Dy()),
		Glyphs:     make([]FontGlyph, 0, count),
		Atlas:      atlas,
	}

	drawer := &font.Drawer{Dst: atlas, Src: image.White, Face: face}
	for i := 0; i < count; i++ {
		r := rune(firstPrintable + i)
		x := (i % atlasColumns) * cellWidth
		y := (i / atlasColumns) * lineHeight
		adv, ok := face.GlyphAdvance(r)
		if !ok {
			continue
		}
		drawer.Dot = fixed.P(x, y+ascent)
		drawer.DrawString(string(r))
		data.Glyphs = append(data.Glyphs, FontGlyph{
			Codepoint: r,
			X:         uint16(x),
			Y:         uint16(y),
			Width:     uint16(cellWidth),
			Height:    uint16(lineHeight),
			XAdvance:  int16(adv.Ceil()),
		})
	}
	return data
}
