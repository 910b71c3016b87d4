package systems

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gogpu/naga"
	"github.com/spaghettifunk/directengine/engine/assets"
	"github.com/spaghettifunk/directengine/engine/assets/loaders"
	"github.com/spaghettifunk/directengine/engine/core"
	"github.com/spaghettifunk/directengine/engine/memory"
	"github.com/spaghettifunk/directengine/engine/renderer"
	"github.com/spaghettifunk/directengine/engine/renderer/metadata"
)

// ShaderCompiler turns shader source into bytecode.
type ShaderCompiler interface {
	Compile(name, source string, defines []metadata.ShaderDefine) ([]byte, error)
}

/** @brief Compiles WGSL to SPIR-V with naga. */
type NagaCompiler struct{}

func (NagaCompiler) Compile(name, source string, defines []metadata.ShaderDefine) ([]byte, error) {
	spirv, err := naga.Compile(WithDefines(source, defines))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", core.ErrShaderCompile, name, err)
	}
	return spirv, nil
}

// WithDefines prepends one module scope constant per define. WGSL has no
// preprocessor, shaders branch on the constants instead.
func WithDefines(source string, defines []metadata.ShaderDefine) string {
	if len(defines) == 0 {
		return source
	}
	var b strings.Builder
	for _, d := range defines {
		fmt.Fprintf(&b, "const %s: i32 = %s;\n", d.Name, d.Value)
	}
	b.WriteString(source)
	return b.String()
}

/** @brief Configuration for the shader system. */
type ShaderSystemConfig struct {
	/** @brief The maximum number of pipelines held in the system. */
	MaxPipelineCount int
	/** @brief Directory of the .wgsl sources. */
	ShaderPath string
	/** @brief Directory of the precompiled .spv blobs. */
	BytecodePath string
	/** @brief Compile from source and allow reloads. Debug builds only. */
	HotReload bool
	/** @brief How long to sleep while a source file cannot be opened. */
	PollInterval time.Duration
	/** @brief NagaCompiler when nil. */
	Compiler ShaderCompiler
}

/** @brief Everything needed to build, and rebuild, one pipeline. */
type PipelineConfig struct {
	Name    string
	Shader  string
	Desc    metadata.PipelineDesc
	Defines []metadata.ShaderDefine
	// Lifetime of the pipeline state.
	Scope memory.Scope
}

type pipelineEntry struct {
	config    PipelineConfig
	pipeline  *metadata.Pipeline
	hotReload bool
}

/**
 * @brief Builds pipeline states from shader source or precompiled bytecode
 * and rebuilds them on request. A failed rebuild keeps the previous state
 * bound and records the error for the diagnostics overlay.
 */
type ShaderSystem struct {
	// This system's configuration.
	Config *ShaderSystemConfig
	// Declared shaders by name.
	Shaders map[string]metadata.ShaderRecord

	entries     []*pipelineEntry
	diagnostics strings.Builder

	// sub systems
	ctx          *renderer.Context
	assetManager *assets.AssetManager
}

func NewShaderSystem(config *ShaderSystemConfig, am *assets.AssetManager, ctx *renderer.Context) (*ShaderSystem, error) {
	if config.MaxPipelineCount <= 0 {
		err := fmt.Errorf("NewShaderSystem - config.MaxPipelineCount must be greater than 0")
		core.LogError("%s", err)
		return nil, err
	}
	if config.Compiler == nil {
		config.Compiler = NagaCompiler{}
	}
	if config.PollInterval == 0 {
		config.PollInterval = loaders.ShaderSourcePollInterval
	}
	return &ShaderSystem{
		Config:       config,
		Shaders:      make(map[string]metadata.ShaderRecord),
		entries:      make([]*pipelineEntry, 0, config.MaxPipelineCount),
		ctx:          ctx,
		assetManager: am,
	}, nil
}

/**
 * @brief Shuts down the shader system. Pipeline states are released with
 * the scope they were created in.
 */
func (ss *ShaderSystem) Shutdown() error {
	ss.entries = ss.entries[:0]
	return nil
}

// Declare records a shader of the materials file.
func (ss *ShaderSystem) Declare(name string, kind metadata.ShaderKind) {
	ss.Shaders[name] = metadata.ShaderRecord{Name: name, Kind: kind}
}

// KindOf returns the declared kind of a shader, raster when undeclared.
func (ss *ShaderSystem) KindOf(name string) metadata.ShaderKind {
	if r, ok := ss.Shaders[name]; ok {
		return r.Kind
	}
	return metadata.ShaderKindRaster
}

/**
 * @brief Builds a pipeline and registers it for reloads. With hotReload
 * the source is compiled, waiting for the file to become readable first;
 * otherwise the precompiled bytecode is loaded and a missing blob fails
 * with core.ErrMissingBytecode. Panics when the registry is full.
 */
func (ss *ShaderSystem) CreatePipelineState(ctx context.Context, config PipelineConfig, hotReload bool) (*metadata.Pipeline, error) {
	core.Assert(len(ss.entries) < ss.Config.MaxPipelineCount, core.ErrCapacityExceeded,
		"shader system holds %d pipelines", ss.Config.MaxPipelineCount)

	config.Desc.Name = config.Name
	state, err := ss.build(ctx, config, hotReload)
	if err != nil {
		if hotReload && errors.Is(err, core.ErrShaderCompile) {
			ss.report(config.Name, err)
		}
		core.LogError("failed to create pipeline %s: %s", config.Name, err)
		return nil, err
	}
	ss.ctx.Scopes.Track(config.Scope, state)

	entry := &pipelineEntry{
		config: config,
		pipeline: &metadata.Pipeline{
			Name:   config.Name,
			Shader: config.Shader,
			Kind:   config.Desc.Kind,
			State:  state,
		},
		hotReload: hotReload,
	}
	ss.entries = append(ss.entries, entry)
	core.LogDebug("pipeline %s created (%s)", config.Name, state.ID())
	return entry.pipeline, nil
}

func (ss *ShaderSystem) build(ctx context.Context, config PipelineConfig, hotReload bool) (metadata.PipelineState, error) {
	var (
		code []byte
		err  error
	)
	if hotReload {
		code, err = ss.compile(ctx, config)
	} else {
		code, err = ss.loadBytecode(config)
	}
	if err != nil {
		return nil, err
	}

	desc := config.Desc
	switch desc.Kind {
	case metadata.ShaderKindCompute:
		desc.Bytecode = metadata.ShaderBytecode{Compute: code}
	case metadata.ShaderKindRaytrace:
		desc.Bytecode = metadata.ShaderBytecode{Raytrace: code}
	default:
		desc.Bytecode = metadata.ShaderBytecode{Vertex: code, Pixel: code}
	}
	return ss.ctx.Device.CreatePipelineState(desc)
}

func (ss *ShaderSystem) compile(ctx context.Context, config PipelineConfig) ([]byte, error) {
	path := loaders.ShaderSourcePath(ss.Config.ShaderPath, config.Shader)
	if err := loaders.WaitForFile(ctx, path, ss.Config.PollInterval); err != nil {
		return nil, err
	}
	res, err := ss.assetManager.LoadAsset(path, loaders.ResourceTypeShader, nil)
	if err != nil {
		return nil, err
	}
	source, ok := res.Data.(string)
	ss.unload(res)
	if !ok {
		return nil, fmt.Errorf("shader %s: unexpected source data", config.Shader)
	}
	return ss.Config.Compiler.Compile(config.Shader, source, config.Defines)
}

func stagesOf(kind metadata.ShaderKind) []string {
	switch kind {
	case metadata.ShaderKindCompute:
		return []string{loaders.StageCompute}
	case metadata.ShaderKindRaytrace:
		return []string{loaders.StageRaytrace}
	default:
		return []string{loaders.StageVertex, loaders.StagePixel}
	}
}

// loadBytecode reads the blob of the first stage; every stage of a WGSL
// module is compiled into the same SPIR-V module, the others only have to
// exist.
func (ss *ShaderSystem) loadBytecode(config PipelineConfig) ([]byte, error) {
	var code []byte
	for i, stage := range stagesOf(config.Desc.Kind) {
		path := loaders.BytecodePath(ss.Config.BytecodePath, config.Shader, stage)
		if i > 0 {
			if _, err := os.Stat(path); err != nil {
				return nil, fmt.Errorf("%w: %s", core.ErrMissingBytecode, path)
			}
			continue
		}
		res, err := ss.assetManager.LoadAsset(path, loaders.ResourceTypeBytecode, nil)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("%w: %s", core.ErrMissingBytecode, path)
			}
			return nil, err
		}
		blob, ok := res.Data.([]byte)
		ss.unload(res)
		if !ok {
			return nil, fmt.Errorf("shader %s: unexpected bytecode data", config.Shader)
		}
		code = blob
	}
	return code, nil
}

func (ss *ShaderSystem) unload(res *loaders.Resource) {
	if err := ss.assetManager.UnloadAsset(res); err != nil {
		core.LogWarn("failed to unload %s: %s", res.FullPath, err)
	}
}

/**
 * @brief Rebuilds every registered pipeline once the GPU is idle.
 * Successful rebuilds replace the bound state, which gets a new identity;
 * failures keep the previous state and are listed in Diagnostics. Does
 * nothing unless the system compiles from source.
 */
func (ss *ShaderSystem) ReloadAll(ctx context.Context) error {
	if !ss.Config.HotReload {
		core.LogWarn("shader reload requested but hot reload is disabled")
		return nil
	}
	if err := ss.ctx.WaitForGpu(ctx); err != nil {
		return err
	}
	ss.diagnostics.Reset()

	rebuilt := 0
	for _, e := range ss.entries {
		state, err := ss.build(ctx, e.config, e.hotReload)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			ss.report(e.config.Name, err)
			continue
		}
		old := e.pipeline.State
		ss.ctx.Scopes.Get(e.config.Scope).Replace(old, state)
		e.pipeline.State = state
		rebuilt++
	}
	core.LogInfo("reloaded %d of %d pipelines", rebuilt, len(ss.entries))
	return nil
}

func (ss *ShaderSystem) report(name string, err error) {
	core.LogError("pipeline %s: %s", name, err)
	fmt.Fprintf(&ss.diagnostics, "%s: %s\n", name, err)
}

// Diagnostics is the text of the last failed compilations, empty when
// everything built.
func (ss *ShaderSystem) Diagnostics() string {
	return ss.diagnostics.String()
}

func (ss *ShaderSystem) Len() int {
	return len(ss.entries)
}

// ResetLevel forgets every pipeline created in the level scope.
func (ss *ShaderSystem) ResetLevel() {
	kept := ss.entries[:0]
	for _, e := range ss.entries {
		if e.config.Scope != memory.ScopeLevel {
			kept = append(kept, e)
		}
	}
	clear(ss.entries[len(kept):])
	ss.entries = kept
	clear(ss.Shaders)
}
