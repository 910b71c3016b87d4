package systems

import (
	"context"
	"fmt"
	"path/filepath"

	"golang.org/x/image/font/basicfont"

	"github.com/spaghettifunk/directengine/engine/assets"
	"github.com/spaghettifunk/directengine/engine/assets/loaders"
	"github.com/spaghettifunk/directengine/engine/core"
	"github.com/spaghettifunk/directengine/engine/math"
	"github.com/spaghettifunk/directengine/engine/renderer/metadata"
)

/** @brief The name of the font compiled into the engine. */
const BuiltinFontName = "builtin"

type SystemFontConfig struct {
	Name string
	// Path of the .ttf or .otf file, relative to the resource path.
	Path string
	Size float64
}

type FontSystemConfig struct {
	MaxFontCount int
	ResourcePath string
	/** @brief Names of the AngelCode fonts under <ResourcePath>/fonts. */
	BitmapFonts []string
	SystemFonts []SystemFontConfig
	/** @brief Font used by the overlay. The builtin font when empty. */
	DefaultFont string
}

/**
 * @brief A loaded font: its metrics and the atlas texture the glyphs sample.
 */
type Font struct {
	Name   string
	Data   *loaders.FontData
	Atlas  *metadata.TextureAsset
	glyphs map[rune]loaders.FontGlyph
}

func newFont(name string, data *loaders.FontData) *Font {
	f := &Font{
		Name:   name,
		Data:   data,
		glyphs: make(map[rune]loaders.FontGlyph, len(data.Glyphs)),
	}
	for _, g := range data.Glyphs {
		f.glyphs[g.Codepoint] = g
	}
	return f
}

func (f *Font) Glyph(r rune) (loaders.FontGlyph, bool) {
	g, ok := f.glyphs[r]
	return g, ok
}

/**
 * @brief Loads fonts and lays out text for the overlay. Every font lives
 * for the whole engine lifetime.
 */
type FontSystem struct {
	Config  *FontSystemConfig
	Default *Font

	fonts map[string]*Font

	// sub systems
	textureSystem *TextureSystem
	assetManager  *assets.AssetManager
}

func NewFontSystem(config *FontSystemConfig, ts *TextureSystem, am *assets.AssetManager) (*FontSystem, error) {
	if config.MaxFontCount <= 0 {
		err := fmt.Errorf("func NewFontSystem - config.MaxFontCount must be > 0")
		core.LogError("%s", err)
		return nil, err
	}
	return &FontSystem{
		Config:        config,
		fonts:         make(map[string]*Font, config.MaxFontCount),
		textureSystem: ts,
		assetManager:  am,
	}, nil
}

/**
 * @brief Rasterizes the builtin font, then loads the configured bitmap and
 * system fonts. A font that fails to load is skipped.
 */
func (fs *FontSystem) Initialize(ctx context.Context) error {
	builtin := loaders.RasterizeFace(basicfont.Face7x13, BuiltinFontName, 13)
	if err := fs.register(ctx, BuiltinFontName, builtin); err != nil {
		return err
	}

	for _, name := range fs.Config.BitmapFonts {
		res, err := fs.assetManager.LoadAsset(name, loaders.ResourceTypeBitmapFont, map[string]string{"name": name})
		if err != nil {
			core.LogWarn("bitmap font %s skipped: %s", name, err)
			continue
		}
		if err := fs.register(ctx, name, res.Data.(*loaders.FontData)); err != nil {
			return err
		}
	}
	for _, sf := range fs.Config.SystemFonts {
		path := filepath.Join(fs.Config.ResourcePath, sf.Path)
		res, err := fs.assetManager.LoadAsset(path, loaders.ResourceTypeSystemFont, &loaders.SystemFontParams{Size: sf.Size, DPI: 72})
		if err != nil {
			core.LogWarn("system font %s skipped: %s", sf.Name, err)
			continue
		}
		if err := fs.register(ctx, sf.Name, res.Data.(*loaders.FontData)); err != nil {
			return err
		}
	}

	fs.Default = fs.Acquire(fs.Config.DefaultFont)
	return nil
}

func (fs *FontSystem) register(ctx context.Context, name string, data *loaders.FontData) error {
	core.Assert(len(fs.fonts) < fs.Config.MaxFontCount, core.ErrCapacityExceeded, "font system holds %d fonts", fs.Config.MaxFontCount)

	f := newFont(name, data)
	if data.Atlas != nil {
		atlas, err := fs.textureSystem.CreateFromImage(ctx, "font "+name, data.Atlas)
		if err != nil {
			return err
		}
		f.Atlas = atlas
	} else {
		core.LogWarn("font %s has no atlas page, glyphs sample the default texture", name)
		f.Atlas = fs.textureSystem.DefaultTexture
	}
	fs.fonts[name] = f
	core.LogDebug("font %s loaded with %d glyphs", name, len(data.Glyphs))
	return nil
}

// Acquire returns the named font, or the builtin font when it is unknown.
func (fs *FontSystem) Acquire(name string) *Font {
	if f, ok := fs.fonts[name]; ok {
		return f
	}
	return fs.fonts[BuiltinFontName]
}

func (fs *FontSystem) Len() int {
	return len(fs.fonts)
}

func (fs *FontSystem) Shutdown() error {
	clear(fs.fonts)
	fs.Default = nil
	return nil
}

/**
 * @brief Appends two triangles per visible glyph of text to dst, starting
 * at pos in pixels with y pointing down. '\n' starts a new line. Glyphs
 * that would grow dst past limit vertices are dropped.
 */
func LayoutText(dst []metadata.UIVertex, f *Font, text string, pos math.Vec2, colour math.Vec4, limit int) []metadata.UIVertex {
	atlasW := float32(max(f.Data.AtlasSizeX, 1))
	atlasH := float32(max(f.Data.AtlasSizeY, 1))

	x, y := pos.X, pos.Y
	var prev rune
	for _, r := range text {
		if r == '\n' {
			x = pos.X
			y += float32(f.Data.LineHeight)
			prev = 0
			continue
		}
		g, ok := f.Glyph(r)
		if !ok {
			if g, ok = f.Glyph('?'); !ok {
				continue
			}
		}
		if prev != 0 {
			x += float32(f.Data.Kerning(prev, r))
		}
		prev = r

		if g.Width > 0 && g.Height > 0 {
			if len(dst)+6 > limit {
				return dst
			}
			x0 := x + float32(g.XOffset)
			y0 := y + float32(g.YOffset)
			x1 := x0 + float32(g.Width)
			y1 := y0 + float32(g.Height)
			u0, v0 := float32(g.X)/atlasW, float32(g.Y)/atlasH
			u1, v1 := float32(g.X+g.Width)/atlasW, float32(g.Y+g.Height)/atlasH

			tl := metadata.UIVertex{Position: math.NewVec2(x0, y0), Texcoord: math.NewVec2(u0, v0), Colour: colour}
			tr := metadata.UIVertex{Position: math.NewVec2(x1, y0), Texcoord: math.NewVec2(u1, v0), Colour: colour}
			bl := metadata.UIVertex{Position: math.NewVec2(x0, y1), Texcoord: math.NewVec2(u0, v1), Colour: colour}
			br := metadata.UIVertex{Position: math.NewVec2(x1, y1), Texcoord: math.NewVec2(u1, v1), Colour: colour}
			dst = append(dst, tl, bl, br, tl, br, tr)
		}
		x += float32(g.XAdvance)
	}
	return dst
}

// MeasureText returns the pixel extent of text.
func MeasureText(f *Font, text string) math.Vec2 {
	var width, line float32
	lines := 1
	var prev rune
	for _, r := range text {
		if r == '\n' {
			width = max(width, line)
			line = 0
			lines++
			prev = 0
			continue
		}
		g, ok := f.Glyph(r)
		if !ok {
			continue
		}
		if prev != 0 {
			line += float32(f.Data.Kerning(prev, r))
		}
		prev = r
		line += float32(g.XAdvance)
	}
	width = max(width, line)
	return math.NewVec2(width, float32(lines)*float32(f.Data.LineHeight))
}
