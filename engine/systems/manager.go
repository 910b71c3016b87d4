package systems

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spaghettifunk/directengine/engine/assets"
	"github.com/spaghettifunk/directengine/engine/core"
	"github.com/spaghettifunk/directengine/engine/memory"
	"github.com/spaghettifunk/directengine/engine/renderer"
	"github.com/spaghettifunk/directengine/engine/renderer/metadata"
)

type SystemManagerConfig struct {
	/** @brief Root of the textures, meshes and fonts. */
	ResourcePath string
	ShaderPath   string
	BytecodePath string
	HotReload    bool
	/** @brief Workers of the job system. */
	Workers int
	/** @brief Sample count of render texture targets. */
	RenderTextureSamples uint32
	/** @brief Capacity of the shared vertex buffer, in vertices. */
	MaxVertices uint32

	Renderer RendererSystemConfig
	Font     FontSystemConfig
	/** @brief Shader compiler for hot reload. NagaCompiler when nil. */
	Compiler ShaderCompiler
}

/**
 * @brief Owns every engine system and the level lifecycle: loading a level
 * into the level scope and resetting it back to the engine state.
 */
type SystemManager struct {
	Config *SystemManagerConfig

	JobSystem      *JobSystem
	CameraSystem   *CameraSystem
	GeometrySystem *GeometrySystem
	MeshSystem     *MeshSystem
	TextureSystem  *TextureSystem
	ShaderSystem   *ShaderSystem
	MaterialSystem *MaterialSystem
	EntitySystem   *EntitySystem
	FontSystem     *FontSystem
	RendererSystem *RendererSystem

	ctx *renderer.Context
	// First descriptor of the level, everything below lives for the engine lifetime.
	levelMark uint32
}

func NewSystemManager(config *SystemManagerConfig, ctx *renderer.Context, am *assets.AssetManager) (*SystemManager, error) {
	if config.Workers <= 0 {
		config.Workers = 2
	}
	if config.MaxVertices == 0 {
		config.MaxVertices = metadata.MaxVertices
	}
	js, err := NewJobSystem(config.Workers, 64)
	if err != nil {
		return nil, err
	}
	cs, err := NewCameraSystem(&CameraSystemConfig{
		MaxCameraCount: metadata.MaxCameras,
	}, ctx)
	if err != nil {
		return nil, err
	}
	gs, err := NewGeometrySystem(&GeometrySystemConfig{
		MaxVertices: config.MaxVertices,
	}, ctx)
	if err != nil {
		return nil, err
	}
	mesh, err := NewMeshSystem(&MeshSystemConfig{
		MaxMeshCount: metadata.MaxMeshes,
	}, gs, am)
	if err != nil {
		return nil, err
	}
	ts, err := NewTextureSystem(&TextureSystemConfig{
		MaxTextureCount:      metadata.MaxTextures,
		ResourcePath:         config.ResourcePath,
		RenderTextureSamples: config.RenderTextureSamples,
	}, js, am, ctx)
	if err != nil {
		return nil, err
	}
	ss, err := NewShaderSystem(&ShaderSystemConfig{
		MaxPipelineCount: 512,
		ShaderPath:       config.ShaderPath,
		BytecodePath:     config.BytecodePath,
		HotReload:        config.HotReload,
		Compiler:         config.Compiler,
	}, am, ctx)
	if err != nil {
		return nil, err
	}
	ms, err := NewMaterialSystem(&MaterialSystemConfig{
		MaxMaterialCount: metadata.MaxMaterials,
		SampleCount:      config.RenderTextureSamples,
	}, ss, ts, am, ctx)
	if err != nil {
		return nil, err
	}
	es, err := NewEntitySystem(&EntitySystemConfig{
		MaxEntityCount: metadata.MaxEntitiesPerScene,
	}, ctx)
	if err != nil {
		return nil, err
	}
	if config.Font.MaxFontCount == 0 {
		config.Font.MaxFontCount = 8
	}
	if config.Font.ResourcePath == "" {
		config.Font.ResourcePath = config.ResourcePath
	}
	fs, err := NewFontSystem(&config.Font, ts, am)
	if err != nil {
		return nil, err
	}
	rs, err := NewRendererSystem(&config.Renderer, ctx, cs, gs, mesh, ms, es, ts, ss, fs)
	if err != nil {
		return nil, err
	}
	return &SystemManager{
		Config:         config,
		JobSystem:      js,
		CameraSystem:   cs,
		GeometrySystem: gs,
		MeshSystem:     mesh,
		TextureSystem:  ts,
		ShaderSystem:   ss,
		MaterialSystem: ms,
		EntitySystem:   es,
		FontSystem:     fs,
		RendererSystem: rs,
		ctx:            ctx,
	}, nil
}

/**
 * @brief Creates every engine lifetime resource: the default texture, the
 * fonts and the pass targets. Descriptors allocated after this belong to
 * the level.
 */
func (sm *SystemManager) Initialize(ctx context.Context) error {
	if err := sm.TextureSystem.Initialize(ctx); err != nil {
		return err
	}
	if err := sm.FontSystem.Initialize(ctx); err != nil {
		return err
	}
	if err := sm.RendererSystem.Initialize(ctx); err != nil {
		return err
	}
	sm.levelMark = sm.ctx.Descriptors.Mark()
	return nil
}

// LevelSetup creates the materials, meshes, textures and entities of a level.
type LevelSetup func(sm *SystemManager) error

/**
 * @brief Runs setup, loads every texture it referenced and builds the
 * pipelines and texture tables of its materials.
 */
func (sm *SystemManager) LoadLevel(ctx context.Context, setup LevelSetup) error {
	if err := setup(sm); err != nil {
		return fmt.Errorf("failed to set up level: %w", err)
	}
	if err := sm.TextureSystem.LoadPending(ctx); err != nil {
		return err
	}
	for _, m := range sm.MaterialSystem.Materials() {
		if err := sm.MaterialSystem.BuildPipelines(ctx, m); err != nil {
			return err
		}
		sm.MaterialSystem.BindTextures(m)
	}
	core.LogInfo("level loaded: %d materials, %d meshes, %d entities, %d textures",
		sm.MaterialSystem.Len(), sm.MeshSystem.Len(), sm.EntitySystem.Len(), sm.TextureSystem.Len())
	return nil
}

// LoadMaterials is a LevelSetup step reading <ResourcePath>/<name>.
func (sm *SystemManager) LoadMaterials(name string) error {
	return sm.MaterialSystem.LoadMaterialsFile(filepath.Join(sm.Config.ResourcePath, name))
}

/**
 * @brief Waits for the GPU, then releases everything the level created and
 * rewinds the descriptor heap to the engine state.
 */
func (sm *SystemManager) ResetLevel(ctx context.Context) error {
	if err := sm.ctx.WaitForGpu(ctx); err != nil {
		return err
	}
	sm.EntitySystem.Reset()
	sm.MaterialSystem.Reset()
	sm.MeshSystem.Reset()
	sm.TextureSystem.Reset()
	sm.ShaderSystem.ResetLevel()
	sm.ctx.Scopes.Get(memory.ScopeLevel).ReleaseAll()
	sm.ctx.Descriptors.Rewind(sm.levelMark)
	core.LogInfo("level reset")
	return nil
}

/**
 * @brief Rebuilds every hot reloadable pipeline. Errors are reported by
 * the overlay; the previous pipelines stay bound.
 */
func (sm *SystemManager) ReloadShaders(ctx context.Context) error {
	return sm.ShaderSystem.ReloadAll(ctx)
}

func (sm *SystemManager) Shutdown() error {
	if err := sm.RendererSystem.Shutdown(); err != nil {
		return err
	}
	if err := sm.FontSystem.Shutdown(); err != nil {
		return err
	}
	if err := sm.EntitySystem.Shutdown(); err != nil {
		return err
	}
	if err := sm.MaterialSystem.Shutdown(); err != nil {
		return err
	}
	if err := sm.ShaderSystem.Shutdown(); err != nil {
		return err
	}
	if err := sm.TextureSystem.Shutdown(); err != nil {
		return err
	}
	if err := sm.MeshSystem.Shutdown(); err != nil {
		return err
	}
	if err := sm.GeometrySystem.Shutdown(); err != nil {
		return err
	}
	if err := sm.CameraSystem.Shutdown(); err != nil {
		return err
	}
	return sm.JobSystem.Shutdown()
}
