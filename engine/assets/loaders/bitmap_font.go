package loaders

import (
	"fmt"
	"image"
	_ "image/png"
	"os"
	"path/filepath"

	"github.com/fzipp/bmfont"
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

/**
 * @brief Glyph metrics plus the atlas they index into. Produced from .fnt
 * files or by rasterizing a font.Face.
 */
type FontData struct {
	Face       string
	Size       uint32
	LineHeight int32
	Baseline   int32
	AtlasSizeX int32
	AtlasSizeY int32
	Glyphs     []FontGlyph
	Kernings   []FontKerning
	// First page of the atlas. Nil when the page image could not be read.
	Atlas image.Image
}

// Glyph finds the glyph for r.
func (f *FontData) Glyph(r rune) (FontGlyph, bool) {
	for _, g := range f.Glyphs {
		if g.Codepoint == r {
			return g, true
		}
	}
	return FontGlyph{}, false
}

func (f *FontData) Kerning(a, b rune) int16 {
	for _, k := range f.Kernings {
		if k.Codepoint0 == a && k.Codepoint1 == b {
			return k.Amount
		}
	}
	return 0
}

type BitmapFontLoader struct {
	ResourcePath string
}

// Load reads <ResourcePath>/fonts/<name>.fnt, name is taken from params.
func (fl *BitmapFontLoader) Load(path string, params interface{}) (*Resource, error) {
	if p, ok := params.(map[string]string); ok && p["name"] != "" {
		path = filepath.Join(fl.ResourcePath, "fonts", p["name"]+".fnt")
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("unable to find bitmap font %s: %w", path, err)
	}
	data, err := fl.importFNTFile(path)
	if err != nil {
		return nil, err
	}
	return &Resource{
		Name:     data.Face,
		FullPath: path,
		Type:     ResourceTypeBitmapFont,
		DataSize: uint64(len(data.Glyphs)),
		Data:     data,
	}, nil
}

func (fl *BitmapFontLoader) Unload(r *Resource) error {
	if data, ok := r.Data.(*FontData); ok {
		data.Glyphs = nil
		data.Kernings = nil
		data.Atlas = nil
	}
	r.Data = nil
	r.DataSize = 0
	r.FullPath = ""
	return nil
}

func (fl *BitmapFontLoader) importFNTFile(fntFileName string) (*FontData, error) {
	font, err := bmfont.Load(fntFileName)
	if err != nil {
		return nil, err
	}

	out := &FontData{
		Face:       font.Descriptor.Info.Face,
		Size:       uint32(font.Descriptor.Info.Size),
		LineHeight: int32(font.Descriptor.Common.LineHeight),
		Baseline:   int32(font.Descriptor.Common.Base),
		AtlasSizeX: int32(font.Descriptor.Common.ScaleW),
		AtlasSizeY: int32(font.Descriptor.Common.ScaleH),
		Glyphs:     make([]FontGlyph, 0, len(font.Descriptor.Chars)),
		Kernings:   make([]FontKerning, 0, len(font.Descriptor.Kerning)),
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

	for _, p := range font.Descriptor.Pages {
		if p.ID != 0 {
			continue
		}
		atlas, err := loadPage(filepath.Join(filepath.Dir(fntFileName), p.File))
		if err != nil {
			return nil, err
		}
		out.Atlas = atlas
	}
	return out, nil
}

func loadPage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("font page %s: %w", path, err)
	}
	return img, nil
}
