package systems

import (
	"context"
	"fmt"
	"image"
	"path/filepath"
	"sync"

	"golang.org/x/image/draw"

	"github.com/spaghettifunk/directengine/engine/assets"
	"github.com/spaghettifunk/directengine/engine/assets/loaders"
	"github.com/spaghettifunk/directengine/engine/core"
	"github.com/spaghettifunk/directengine/engine/memory"
	"github.com/spaghettifunk/directengine/engine/renderer"
	"github.com/spaghettifunk/directengine/engine/renderer/metadata"
)

/** @brief The name of the texture used when a file cannot be loaded. */
const DefaultTextureName = "default"

type TextureSystemConfig struct {
	/** @brief The maximum number of textures that can be loaded at once. */
	MaxTextureCount int
	/** @brief Texture paths are relative to this directory. */
	ResourcePath string
	/** @brief Sample count of render texture targets. 1 disables MSAA. */
	RenderTextureSamples uint32
}

/**
 * @brief Owns every texture referenced by materials. Textures are keyed by
 * the hash of their path so a file is only loaded once per level. Files are
 * read and parsed on the job system; GPU uploads happen on the render
 * thread.
 */
type TextureSystem struct {
	Config         *TextureSystemConfig
	DefaultTexture *metadata.TextureAsset

	textures *memory.TypedArena[metadata.TextureAsset]
	lookup   map[uint64]memory.Handle

	renderTextures []*metadata.RenderTexture

	// sub systems
	ctx          *renderer.Context
	jobSystem    *JobSystem
	assetManager *assets.AssetManager
}

func NewTextureSystem(config *TextureSystemConfig, js *JobSystem, am *assets.AssetManager, ctx *renderer.Context) (*TextureSystem, error) {
	if config.MaxTextureCount <= 0 {
		err := fmt.Errorf("func NewTextureSystem - config.MaxTextureCount must be > 0")
		core.LogError("%s", err)
		return nil, err
	}
	if config.RenderTextureSamples == 0 {
		config.RenderTextureSamples = 1
	}
	return &TextureSystem{
		Config:       config,
		textures:     memory.NewTypedArena[metadata.TextureAsset]("textures", config.MaxTextureCount),
		lookup:       make(map[uint64]memory.Handle, config.MaxTextureCount),
		ctx:          ctx,
		jobSystem:    js,
		assetManager: am,
	}, nil
}

/**
 * @brief Creates the 1x1 white texture bound wherever a texture is missing.
 */
func (ts *TextureSystem) Initialize(ctx context.Context) error {
	tex, err := ts.ctx.Device.CreateTexture(metadata.TextureDesc{
		Name:         DefaultTextureName,
		Width:        1,
		Height:       1,
		Format:       metadata.FormatRGBA8Unorm,
		Usage:        metadata.TextureUsageShaderResource | metadata.TextureUsageCopyDest,
		InitialState: metadata.ResourceStateCopyDest,
	})
	if err != nil {
		err = fmt.Errorf("failed to create default texture: %w", err)
		core.LogError("%s", err)
		return err
	}
	ts.ctx.Scopes.Track(memory.ScopeEngine, tex)

	staging, err := ts.ctx.CreateUploadBuffer("default texture upload", []byte{0xff, 0xff, 0xff, 0xff})
	if err != nil {
		return err
	}
	err = ts.ctx.Upload(ctx, func(cl metadata.CommandList) error {
		cl.CopyBufferToTexture(tex, staging, 0, metadata.TextureCopyFootprint{Width: 1, Height: 1, RowPitch: 4, SlicePitch: 4})
		cl.ResourceBarrier(tex, metadata.ResourceStateCopyDest, metadata.ResourceStatePixelShaderResource)
		return nil
	})
	if err != nil {
		return err
	}

	ts.DefaultTexture = &metadata.TextureAsset{
		Path:     DefaultTextureName,
		Hash:     loaders.HashPath(DefaultTextureName),
		Width:    1,
		Height:   1,
		Format:   metadata.FormatRGBA8Unorm,
		Resource: tex,
		View:     ts.ctx.Descriptors.Allocate(),
		Loaded:   true,
	}
	ts.ctx.Descriptors.Heap().CreateShaderResourceView(ts.DefaultTexture.View, tex)
	return nil
}

func (ts *TextureSystem) Shutdown() error {
	ts.Reset()
	return nil
}

/**
 * @brief Returns the texture for path, registering it on first use. The
 * texture is loaded by the next LoadPending. A texture referenced as sRGB
 * anywhere is sampled as sRGB everywhere.
 */
func (ts *TextureSystem) Acquire(path string, srgb bool) *metadata.TextureAsset {
	hash := loaders.HashPath(path)
	if h, ok := ts.lookup[hash]; ok && ts.textures.Valid(h) {
		t := ts.textures.Get(h)
		t.SRGB = t.SRGB || srgb
		return t
	}
	h, t := ts.textures.Alloc()
	t.Path = path
	t.Hash = hash
	t.SRGB = srgb
	t.View = ts.ctx.Descriptors.Allocate()
	ts.lookup[hash] = h
	return t
}

func (ts *TextureSystem) Get(path string) (*metadata.TextureAsset, bool) {
	h, ok := ts.lookup[loaders.HashPath(path)]
	if !ok || !ts.textures.Valid(h) {
		return nil, false
	}
	return ts.textures.Get(h), true
}

func (ts *TextureSystem) Len() int {
	return ts.textures.Len()
}

type textureLoadResult struct {
	texture *metadata.TextureAsset
	data    *loaders.TextureData
	err     error
}

/**
 * @brief Loads every registered texture that has no GPU resource yet.
 * Files are parsed in parallel; the uploads are recorded on one list and
 * the call returns once the GPU finished them. Textures that fail to load
 * fall back to the default texture.
 */
func (ts *TextureSystem) LoadPending(ctx context.Context) error {
	var pending []*metadata.TextureAsset
	ts.textures.Each(func(_ memory.Handle, t *metadata.TextureAsset) {
		if !t.Loaded && t.RenderTexture == nil {
			pending = append(pending, t)
		}
	})
	if len(pending) == 0 {
		return nil
	}

	results := make([]textureLoadResult, len(pending))
	var mu sync.Mutex
	for i, t := range pending {
		i, t := i, t
		ts.jobSystem.Submit(metadata.JobTask{
			Name:        "load " + t.Path,
			JobType:     metadata.JOB_TYPE_RESOURCE_LOAD,
			InputParams: filepath.Join(ts.Config.ResourcePath, t.Path),
			OnStart: func(input interface{}) (interface{}, error) {
				res, err := ts.assetManager.LoadAsset(input.(string), loaders.ResourceTypeTexture, nil)
				if err != nil {
					return nil, err
				}
				return res.Data, nil
			},
			OnComplete: func(output interface{}) {
				mu.Lock()
				results[i] = textureLoadResult{texture: t, data: output.(*loaders.TextureData)}
				mu.Unlock()
			},
			OnFailure: func(err error) {
				mu.Lock()
				results[i] = textureLoadResult{texture: t, err: err}
				mu.Unlock()
			},
		})
	}
	ts.jobSystem.Wait()

	type upload struct {
		texture metadata.Texture
		staging metadata.Buffer
		data    *loaders.TextureData
	}
	uploads := make([]upload, 0, len(results))
	for _, r := range results {
		if r.err != nil {
			core.LogWarn("texture %s falls back to the default texture: %s", r.texture.Path, r.err)
			ts.useDefault(r.texture)
			continue
		}
		tex, err := ts.ctx.Device.CreateTexture(metadata.TextureDesc{
			Name:         r.texture.Path,
			Width:        r.data.Width,
			Height:       r.data.Height,
			Format:       r.data.Format,
			Usage:        metadata.TextureUsageShaderResource | metadata.TextureUsageCopyDest,
			InitialState: metadata.ResourceStateCopyDest,
		})
		if err != nil {
			err = fmt.Errorf("failed to create texture %s: %w", r.texture.Path, err)
			core.LogError("%s", err)
			return err
		}
		ts.ctx.Scopes.Track(memory.ScopeLevel, tex)

		top := r.data.Data
		if uint64(len(top)) > r.data.SlicePitch {
			top = top[:r.data.SlicePitch]
		}
		staging, err := ts.ctx.CreateUploadBuffer(r.texture.Path+" upload", top)
		if err != nil {
			return err
		}
		uploads = append(uploads, upload{texture: tex, staging: staging, data: r.data})

		r.texture.Resource = tex
		r.texture.Width = r.data.Width
		r.texture.Height = r.data.Height
		r.texture.Format = r.data.Format
		r.texture.Loaded = true
		ts.ctx.Descriptors.Heap().CreateShaderResourceView(r.texture.View, tex)
	}
	if len(uploads) == 0 {
		return nil
	}

	err := ts.ctx.Upload(ctx, func(cl metadata.CommandList) error {
		cl.BeginEvent("TextureUpload")
		defer cl.EndEvent()
		for _, u := range uploads {
			cl.CopyBufferToTexture(u.texture, u.staging, 0, u.data.Footprint())
			cl.ResourceBarrier(u.texture, metadata.ResourceStateCopyDest, metadata.ResourceStatePixelShaderResource)
		}
		return nil
	})
	if err != nil {
		return err
	}
	core.LogInfo("uploaded %d textures", len(uploads))
	return nil
}

/**
 * @brief Uploads an in-memory image as an RGBA8 texture that lives for the
 * whole engine lifetime, e.g. a font atlas.
 */
func (ts *TextureSystem) CreateFromImage(ctx context.Context, name string, img image.Image) (*metadata.TextureAsset, error) {
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)

	width, height := uint32(b.Dx()), uint32(b.Dy())
	tex, err := ts.ctx.Device.CreateTexture(metadata.TextureDesc{
		Name:         name,
		Width:        width,
		Height:       height,
		Format:       metadata.FormatRGBA8Unorm,
		Usage:        metadata.TextureUsageShaderResource | metadata.TextureUsageCopyDest,
		InitialState: metadata.ResourceStateCopyDest,
	})
	if err != nil {
		err = fmt.Errorf("failed to create texture %s: %w", name, err)
		core.LogError("%s", err)
		return nil, err
	}
	ts.ctx.Scopes.Track(memory.ScopeEngine, tex)

	staging, err := ts.ctx.CreateUploadBuffer(name+" upload", rgba.Pix)
	if err != nil {
		return nil, err
	}
	footprint := metadata.TextureCopyFootprint{
		Width:      width,
		Height:     height,
		RowPitch:   uint64(rgba.Stride),
		SlicePitch: uint64(len(rgba.Pix)),
	}
	err = ts.ctx.Upload(ctx, func(cl metadata.CommandList) error {
		cl.CopyBufferToTexture(tex, staging, 0, footprint)
		cl.ResourceBarrier(tex, metadata.ResourceStateCopyDest, metadata.ResourceStatePixelShaderResource)
		return nil
	})
	if err != nil {
		return nil, err
	}

	asset := &metadata.TextureAsset{
		Path:     name,
		Hash:     loaders.HashPath(name),
		Width:    width,
		Height:   height,
		Format:   metadata.FormatRGBA8Unorm,
		Resource: tex,
		View:     ts.ctx.Descriptors.Allocate(),
		Loaded:   true,
	}
	ts.ctx.Descriptors.Heap().CreateShaderResourceView(asset.View, tex)
	return asset, nil
}

func (ts *TextureSystem) useDefault(t *metadata.TextureAsset) {
	d := ts.DefaultTexture
	t.Resource = d.Resource
	t.Width = d.Width
	t.Height = d.Height
	t.Format = d.Format
	t.Loaded = true
	ts.ctx.Descriptors.Heap().CreateShaderResourceView(t.View, d.Resource)
}

/**
 * @brief Creates an off-screen target and registers it as a texture under
 * name, so materials can sample it like any file texture.
 */
func (ts *TextureSystem) CreateRenderTexture(name string, width, height uint32, camera *metadata.Camera) (*metadata.RenderTexture, error) {
	core.Assert(len(ts.renderTextures) < metadata.MaxRenderTextures, core.ErrCapacityExceeded,
		"at most %d render textures", metadata.MaxRenderTextures)

	rt := &metadata.RenderTexture{Name: name, Width: width, Height: height, Camera: camera}
	device := ts.ctx.Device
	level := ts.ctx.Scopes.Get(memory.ScopeLevel)

	colour, err := device.CreateTexture(metadata.TextureDesc{
		Name:         name + " colour",
		Width:        width,
		Height:       height,
		Format:       metadata.BackBufferFormat,
		SampleCount:  1,
		Usage:        metadata.TextureUsageShaderResource | metadata.TextureUsageRenderTarget,
		InitialState: metadata.ResourceStatePixelShaderResource,
	})
	if err != nil {
		return nil, ts.renderTextureError(name, err)
	}
	level.Track(colour)
	rt.Colour = colour

	if ts.Config.RenderTextureSamples > 1 {
		msaa, err := device.CreateTexture(metadata.TextureDesc{
			Name:         name + " colour msaa",
			Width:        width,
			Height:       height,
			Format:       metadata.BackBufferFormat,
			SampleCount:  ts.Config.RenderTextureSamples,
			Usage:        metadata.TextureUsageRenderTarget,
			InitialState: metadata.ResourceStateResolveSource,
		})
		if err != nil {
			return nil, ts.renderTextureError(name, err)
		}
		level.Track(msaa)
		rt.MultisampledColour = msaa
	}

	depth, err := device.CreateTexture(metadata.TextureDesc{
		Name:         name + " depth",
		Width:        width,
		Height:       height,
		Format:       metadata.DepthFormat,
		SampleCount:  ts.Config.RenderTextureSamples,
		Usage:        metadata.TextureUsageDepthStencil,
		InitialState: metadata.ResourceStateDepthWrite,
		ClearDepth:   1,
	})
	if err != nil {
		return nil, ts.renderTextureError(name, err)
	}
	level.Track(depth)
	rt.Depth = depth

	asset := ts.Acquire(name, false)
	asset.RenderTexture = rt
	asset.Resource = colour
	asset.Width = width
	asset.Height = height
	asset.Format = metadata.BackBufferFormat
	asset.Loaded = true
	ts.ctx.Descriptors.Heap().CreateShaderResourceView(asset.View, colour)
	rt.Asset = asset

	ts.renderTextures = append(ts.renderTextures, rt)
	core.LogDebug("render texture %s created (%dx%d, %d samples)", name, width, height, rt.SampleCount())
	return rt, nil
}

func (ts *TextureSystem) renderTextureError(name string, err error) error {
	err = fmt.Errorf("failed to create render texture %s: %w", name, err)
	core.LogError("%s", err)
	return err
}

func (ts *TextureSystem) RenderTextures() []*metadata.RenderTexture {
	return ts.renderTextures
}

// Reset forgets every level texture. The GPU resources live in the level
// scope and are released with it.
func (ts *TextureSystem) Reset() {
	ts.textures.Reset()
	clear(ts.lookup)
	ts.renderTextures = ts.renderTextures[:0]
}
