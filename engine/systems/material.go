package systems

import (
	"context"
	"fmt"

	"github.com/spaghettifunk/directengine/engine/assets"
	"github.com/spaghettifunk/directengine/engine/assets/loaders"
	"github.com/spaghettifunk/directengine/engine/core"
	"github.com/spaghettifunk/directengine/engine/memory"
	"github.com/spaghettifunk/directengine/engine/renderer"
	"github.com/spaghettifunk/directengine/engine/renderer/metadata"
)

type MaterialSystemConfig struct {
	MaxMaterialCount int
	// Number of samples of the render texture passes.
	SampleCount uint32
}

/**
 * @brief Owns the materials of the level, in creation order. Materials are
 * described by the materials file; their pipelines come from the shader
 * system and their textures from the texture system.
 */
type MaterialSystem struct {
	Config    *MaterialSystemConfig
	materials *memory.TypedArena[*metadata.Material]
	lookup    map[string]memory.Handle

	ctx           *renderer.Context
	shaderSystem  *ShaderSystem
	textureSystem *TextureSystem
	assetManager  *assets.AssetManager
}

func NewMaterialSystem(config *MaterialSystemConfig, ss *ShaderSystem, ts *TextureSystem, am *assets.AssetManager, ctx *renderer.Context) (*MaterialSystem, error) {
	if config.MaxMaterialCount <= 0 {
		err := fmt.Errorf("func NewMaterialSystem - config.MaxMaterialCount must be > 0")
		core.LogError("%s", err)
		return nil, err
	}
	if config.SampleCount == 0 {
		config.SampleCount = 1
	}
	return &MaterialSystem{
		Config:        config,
		materials:     memory.NewTypedArena[*metadata.Material]("materials", config.MaxMaterialCount),
		lookup:        make(map[string]memory.Handle, config.MaxMaterialCount),
		ctx:           ctx,
		shaderSystem:  ss,
		textureSystem: ts,
		assetManager:  am,
	}, nil
}

func (ms *MaterialSystem) Shutdown() error {
	ms.Reset()
	return nil
}

/**
 * @brief Creates an empty material. A name that is already taken keeps
 * its material, which is returned unchanged. Panics when the pool is full.
 */
func (ms *MaterialSystem) CreateMaterial(name, shaderName string) *metadata.Material {
	if m, ok := ms.Get(name); ok {
		core.LogWarn("material %s already exists, keeping the first definition", name)
		return m
	}
	h, slot := ms.materials.Alloc()
	m := metadata.NewMaterial(name, shaderName)
	m.Index = int(h.Index)
	m.Kind = ms.shaderSystem.KindOf(shaderName)
	*slot = m
	ms.lookup[name] = h
	return m
}

func (ms *MaterialSystem) Get(name string) (*metadata.Material, bool) {
	h, ok := ms.lookup[name]
	if !ok || !ms.materials.Valid(h) {
		return nil, false
	}
	return *ms.materials.Get(h), true
}

// Materials returns the materials in creation order.
func (ms *MaterialSystem) Materials() []*metadata.Material {
	out := make([]*metadata.Material, 0, ms.materials.Len())
	ms.materials.Each(func(_ memory.Handle, m **metadata.Material) {
		out = append(out, *m)
	})
	return out
}

func (ms *MaterialSystem) Len() int {
	return ms.materials.Len()
}

// LoadMaterialsFile parses path and creates what it describes.
func (ms *MaterialSystem) LoadMaterialsFile(path string) error {
	res, err := ms.assetManager.LoadAsset(path, loaders.ResourceTypeMaterial, nil)
	if err != nil {
		core.LogError("failed to load materials from %s: %s", path, err)
		return err
	}
	defer func() {
		if err := ms.assetManager.UnloadAsset(res); err != nil {
			core.LogWarn("failed to unload %s: %s", path, err)
		}
	}()
	mf, ok := res.Data.(*loaders.MaterialsFile)
	if !ok {
		return fmt.Errorf("materials %s: unexpected resource data %T", path, res.Data)
	}
	ms.Apply(mf)
	core.LogInfo("loaded %d materials and %d textures from %s (%d lines skipped)", len(mf.Materials), len(mf.Textures), path, mf.Skipped)
	return nil
}

/**
 * @brief Declares the shaders and creates the materials of a parsed
 * materials file. Textures are registered with the texture system and
 * loaded by its next LoadPending.
 */
func (ms *MaterialSystem) Apply(mf *loaders.MaterialsFile) {
	for _, s := range mf.Shaders {
		ms.shaderSystem.Declare(s.Name, s.Kind)
	}
	for _, f := range mf.Materials {
		if _, ok := ms.Get(f.Name); ok {
			core.LogWarn("material %s is defined twice, skipping the second definition", f.Name)
			continue
		}
		m := ms.CreateMaterial(f.Name, f.ShaderName)
		m.DiffuseColour = f.DiffuseColour
		m.CullMode = f.CullMode
		for _, t := range f.Textures {
			m.Textures.Add(ms.textureSystem.Acquire(t.Path, t.SRGB))
		}
		for _, d := range f.Defines {
			m.AddDefine(d.Name, d.Value)
		}
		for _, c := range f.RootConstants {
			m.RootConstants.Add(c)
		}
	}
}

type pipelineVariant struct {
	variant metadata.PipelineVariant
	define  string
	colour  []metadata.Format
	depth   metadata.Format
	samples uint32
	cull    func(metadata.FaceCullMode) metadata.FaceCullMode
	wire    bool
}

func (ms *MaterialSystem) variants() []pipelineVariant {
	keep := func(c metadata.FaceCullMode) metadata.FaceCullMode { return c }
	none := func(metadata.FaceCullMode) metadata.FaceCullMode { return metadata.FaceCullModeNone }
	variants := []pipelineVariant{
		{metadata.PipelineVariantMain, "", []metadata.Format{metadata.BackBufferFormat}, metadata.DepthFormat, 1, keep, false},
		{metadata.PipelineVariantGBuffer, "GBUFFER_PASS", []metadata.Format{metadata.GBufferFormat, metadata.GBufferFormat}, metadata.DepthFormat, 1, keep, false},
		{metadata.PipelineVariantShadow, "SHADOW_PASS", nil, metadata.DepthFormat, 1, none, false},
		{metadata.PipelineVariantWireframe, "WIREFRAME_PASS", []metadata.Format{metadata.BackBufferFormat}, metadata.DepthFormat, 1, none, true},
	}
	if ms.Config.SampleCount > 1 {
		variants = append(variants, pipelineVariant{metadata.PipelineVariantRenderTexture, "", []metadata.Format{metadata.BackBufferFormat}, metadata.DepthFormat, ms.Config.SampleCount, keep, false})
	}
	return variants
}

/**
 * @brief Creates every pass variant of the material's pipeline. Compute
 * and raytracing materials get a single pipeline in the main slot.
 */
func (ms *MaterialSystem) BuildPipelines(ctx context.Context, m *metadata.Material) error {
	hotReload := ms.shaderSystem.Config.HotReload
	if m.Kind != metadata.ShaderKindRaster {
		p, err := ms.shaderSystem.CreatePipelineState(ctx, PipelineConfig{
			Name:    m.Name,
			Shader:  m.ShaderName,
			Desc:    metadata.PipelineDesc{Kind: m.Kind, RootConstantCount: uint32(m.RootConstants.Len()), TextureCount: uint32(m.Textures.Len())},
			Defines: m.Defines.Items(),
			Scope:   memory.ScopeLevel,
		}, hotReload)
		if err != nil {
			return err
		}
		m.Pipelines[metadata.PipelineVariantMain] = p
		return nil
	}

	for _, v := range ms.variants() {
		defines := append([]metadata.ShaderDefine(nil), m.Defines.Items()...)
		if v.define != "" {
			defines = append(defines, metadata.ShaderDefine{Name: v.define, Value: "1"})
		}
		p, err := ms.shaderSystem.CreatePipelineState(ctx, PipelineConfig{
			Name:   fmt.Sprintf("%s/%s", m.Name, v.variant),
			Shader: m.ShaderName,
			Desc: metadata.PipelineDesc{
				Kind:              metadata.ShaderKindRaster,
				ColourFormats:     v.colour,
				DepthFormat:       v.depth,
				SampleCount:       v.samples,
				CullMode:          v.cull(m.CullMode),
				Wireframe:         v.wire,
				DepthTest:         true,
				DepthWrite:        !v.wire,
				AlphaBlend:        false,
				Topology:          metadata.TopologyTriangleList,
				VertexStride:      VertexStride,
				VertexLayout:      VertexLayout(),
				RootConstantCount: uint32(m.RootConstants.Len()),
				TextureCount:      uint32(m.Textures.Len()),
			},
			Defines: defines,
			Scope:   memory.ScopeLevel,
		}, hotReload)
		if err != nil {
			return err
		}
		m.Pipelines[v.variant] = p
	}
	return nil
}

/**
 * @brief Writes the views of the material's textures into a contiguous
 * range of the descriptor heap, in binding order.
 */
func (ms *MaterialSystem) BindTextures(m *metadata.Material) {
	count := uint32(max(m.Textures.Len(), 1))
	m.TextureTable = ms.ctx.Descriptors.AllocateRange(count)
	heap := ms.ctx.Descriptors.Heap()
	if m.Textures.Len() == 0 {
		heap.CreateShaderResourceView(m.TextureTable, ms.textureSystem.DefaultTexture.Resource)
		return
	}
	for i, t := range m.Textures.Items() {
		res := t.Resource
		if res == nil {
			res = ms.textureSystem.DefaultTexture.Resource
		}
		heap.CreateShaderResourceView(ms.ctx.Descriptors.Handle(m.TextureTable.Index+uint32(i)), res)
	}
}

// Reset forgets every material. Pipelines are released with the level scope.
func (ms *MaterialSystem) Reset() {
	ms.materials.Reset()
	clear(ms.lookup)
}

// VertexLayout describes math.Vertex3D to the input assembler.
func VertexLayout() []metadata.VertexAttribute {
	return []metadata.VertexAttribute{
		{Semantic: "POSITION", Format: metadata.FormatRGBA32Float, Components: 3, Offset: 0},
		{Semantic: "NORMAL", Format: metadata.FormatRGBA32Float, Components: 3, Offset: 12},
		{Semantic: "TEXCOORD", Format: metadata.FormatRGBA32Float, Components: 2, Offset: 24},
		{Semantic: "TANGENT", Format: metadata.FormatRGBA32Float, Components: 4, Offset: 32},
		{Semantic: "BLENDINDICES", Format: metadata.FormatRGBA32Float, Components: 4, Offset: 48},
		{Semantic: "BLENDWEIGHT", Format: metadata.FormatRGBA32Float, Components: 4, Offset: 64},
	}
}
