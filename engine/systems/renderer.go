package systems

import (
	"context"
	"fmt"
	"time"
	"unsafe"

	"github.com/spaghettifunk/directengine/engine/containers"
	"github.com/spaghettifunk/directengine/engine/core"
	"github.com/spaghettifunk/directengine/engine/math"
	"github.com/spaghettifunk/directengine/engine/memory"
	"github.com/spaghettifunk/directengine/engine/renderer"
	"github.com/spaghettifunk/directengine/engine/renderer/metadata"
	"github.com/spaghettifunk/directengine/engine/renderer/views"
)

/** @brief Number of frame durations kept for the overlay. */
const FrameHistorySize = 256

// Name of the camera the shadow pass renders from.
const ShadowCameraName = "shadow"

type RendererSystemConfig struct {
	/** @brief Trace shadows when the device supports raytracing. */
	Raytracing bool
	/** @brief Draw frame timings and shader diagnostics. */
	ShowOverlay bool
	/** @brief Direction the sunlight travels. */
	SunDirection  math.Vec3
	AmbientColour math.Vec4
	/** @brief Shadows are fitted to this much of the main camera's view. 0 uses its far clip. */
	ShadowDistance float32

	LineShader            string
	UIShader              string
	RaytracedShadowShader string
}

/**
 * @brief Records and submits one frame: uploads the constants of the frame
 * slot, then runs the passes in a fixed order (acceleration structures,
 * G-buffer, shadows, render textures, main with its overlays) and presents.
 */
type RendererSystem struct {
	Config *RendererSystemConfig

	ctx          *renderer.Context
	scene        *renderer.ConstantBuffer[metadata.SceneConstantBuffer]
	sceneData    metadata.SceneConstantBuffer
	shadowCamera *metadata.Camera

	acceleration  *views.RenderViewAcceleration
	gbuffer       *views.RenderViewGBuffer
	shadow        *views.RenderViewShadow
	renderTexture *views.RenderViewRenderTexture
	world         *views.RenderViewWorld
	debugLines    *views.RenderViewDebugLines
	ui            *views.RenderViewUI
	views         []views.RenderView

	// Per frame vertex lists, carved from frameArena and reset after Present.
	frameArena *memory.Arena
	lines      []metadata.LineVertex
	uiVertices []metadata.UIVertex

	frameTimes  *containers.RingQueue[float64]
	frameNumber uint64
	elapsed     float64

	// sub systems
	cameraSystem   *CameraSystem
	geometrySystem *GeometrySystem
	meshSystem     *MeshSystem
	materialSystem *MaterialSystem
	entitySystem   *EntitySystem
	textureSystem  *TextureSystem
	shaderSystem   *ShaderSystem
	fontSystem     *FontSystem
}

func NewRendererSystem(config *RendererSystemConfig, ctx *renderer.Context, cs *CameraSystem, gs *GeometrySystem, mesh *MeshSystem,
	ms *MaterialSystem, es *EntitySystem, ts *TextureSystem, ss *ShaderSystem, fs *FontSystem) (*RendererSystem, error) {
	if ctx == nil {
		err := fmt.Errorf("func NewRendererSystem - a renderer context is required")
		core.LogError("%s", err)
		return nil, err
	}
	if config.SunDirection == (math.Vec3{}) {
		config.SunDirection = math.NewVec3(-0.3, -1, -0.2)
	}
	return &RendererSystem{
		Config:         config,
		ctx:            ctx,
		frameTimes:     containers.NewRingQueue[float64](FrameHistorySize),
		cameraSystem:   cs,
		geometrySystem: gs,
		meshSystem:     mesh,
		materialSystem: ms,
		entitySystem:   es,
		textureSystem:  ts,
		shaderSystem:   ss,
		fontSystem:     fs,
	}, nil
}

/**
 * @brief Creates the scene constants, the pass targets and the pipelines
 * of the overlays. Everything lives for the engine lifetime.
 */
func (r *RendererSystem) Initialize(ctx context.Context) error {
	scene, err := renderer.NewConstantBuffer(r.ctx.Device, nil, r.ctx.Scopes.Get(memory.ScopeEngine), "scene", &r.sceneData)
	if err != nil {
		return err
	}
	r.scene = scene

	if r.shadowCamera, err = r.cameraSystem.Acquire(ShadowCameraName, metadata.CameraRoleShadow); err != nil {
		return err
	}

	r.acceleration = views.NewRenderViewAcceleration()
	r.gbuffer = views.NewRenderViewGBuffer()
	r.shadow = views.NewRenderViewShadow(r.gbuffer, r.acceleration)
	r.renderTexture = views.NewRenderViewRenderTexture()
	r.debugLines = views.NewRenderViewDebugLines()
	r.ui = views.NewRenderViewUI()
	r.world = views.NewRenderViewWorld(r.gbuffer, r.shadow, r.debugLines, r.ui)
	r.views = []views.RenderView{r.acceleration, r.gbuffer, r.shadow, r.renderTexture, r.world}
	for _, v := range r.views {
		if err := v.OnCreate(r.ctx); err != nil {
			core.LogError("failed to create render view %s: %s", v.Name(), err)
			return err
		}
	}

	if err := r.createSystemPipelines(ctx); err != nil {
		return err
	}

	size := uint64(metadata.MaxDebugLineVertices)*uint64(unsafe.Sizeof(metadata.LineVertex{})) +
		uint64(metadata.MaxUIVertices)*uint64(unsafe.Sizeof(metadata.UIVertex{})) + 64
	r.frameArena = memory.NewArena("frame", size)
	r.beginCollect()
	return nil
}

func (r *RendererSystem) raytracing() bool {
	return r.Config.Raytracing && r.ctx.Device.SupportsRaytracing()
}

func (r *RendererSystem) createSystemPipelines(ctx context.Context) error {
	hotReload := r.shaderSystem.Config.HotReload
	create := func(config PipelineConfig) (*metadata.Pipeline, error) {
		if config.Shader == "" {
			return nil, nil
		}
		config.Scope = memory.ScopeEngine
		return r.shaderSystem.CreatePipelineState(ctx, config, hotReload)
	}

	var err error
	if r.debugLines.Pipeline, err = create(PipelineConfig{
		Name:   "debug lines",
		Shader: r.Config.LineShader,
		Desc: metadata.PipelineDesc{
			Kind:          metadata.ShaderKindRaster,
			ColourFormats: []metadata.Format{metadata.BackBufferFormat},
			DepthFormat:   metadata.DepthFormat,
			SampleCount:   1,
			CullMode:      metadata.FaceCullModeNone,
			DepthTest:     true,
			Topology:      metadata.TopologyLineList,
			VertexStride:  uint32(unsafe.Sizeof(metadata.LineVertex{})),
			VertexLayout: []metadata.VertexAttribute{
				{Semantic: "POSITION", Format: metadata.FormatRGBA32Float, Components: 3, Offset: 0},
				{Semantic: "COLOR", Format: metadata.FormatRGBA32Float, Components: 4, Offset: 12},
			},
		},
	}); err != nil {
		return err
	}

	if r.ui.Pipeline, err = create(PipelineConfig{
		Name:   "ui",
		Shader: r.Config.UIShader,
		Desc: metadata.PipelineDesc{
			Kind:          metadata.ShaderKindRaster,
			ColourFormats: []metadata.Format{metadata.BackBufferFormat},
			DepthFormat:   metadata.DepthFormat,
			SampleCount:   1,
			CullMode:      metadata.FaceCullModeNone,
			AlphaBlend:    true,
			Topology:      metadata.TopologyTriangleList,
			VertexStride:  uint32(unsafe.Sizeof(metadata.UIVertex{})),
			VertexLayout: []metadata.VertexAttribute{
				{Semantic: "POSITION", Format: metadata.FormatRGBA32Float, Components: 2, Offset: 0},
				{Semantic: "TEXCOORD", Format: metadata.FormatRGBA32Float, Components: 2, Offset: 8},
				{Semantic: "COLOR", Format: metadata.FormatRGBA32Float, Components: 4, Offset: 16},
			},
			RootConstantCount: 2,
			TextureCount:      1,
		},
	}); err != nil {
		return err
	}

	if !r.raytracing() {
		return nil
	}
	r.shadow.Raytraced, err = create(PipelineConfig{
		Name:   "raytraced shadows",
		Shader: r.Config.RaytracedShadowShader,
		Desc:   metadata.PipelineDesc{Kind: metadata.ShaderKindRaytrace, TextureCount: 4},
	})
	return err
}

// beginCollect starts the vertex lists of the next frame.
func (r *RendererSystem) beginCollect() {
	r.frameArena.Reset()
	r.lines = memory.AllocateSlice[metadata.LineVertex](r.frameArena, metadata.MaxDebugLineVertices)
	r.uiVertices = memory.AllocateSlice[metadata.UIVertex](r.frameArena, metadata.MaxUIVertices)
}

/**
 * @brief Queues a line segment for the next frame. Returns false once the
 * line buffer is full.
 */
func (r *RendererSystem) AddDebugLine(from, to math.Vec3, colour math.Vec4) bool {
	if len(r.lines)+2 > cap(r.lines) {
		return false
	}
	r.lines = append(r.lines,
		metadata.LineVertex{Position: from, Colour: colour},
		metadata.LineVertex{Position: to, Colour: colour})
	return true
}

// DrawText queues text for the overlay of the next frame, at pos in pixels.
func (r *RendererSystem) DrawText(text string, pos math.Vec2, colour math.Vec4) {
	if r.fontSystem == nil || r.fontSystem.Default == nil {
		return
	}
	r.uiVertices = LayoutText(r.uiVertices, r.fontSystem.Default, text, pos, colour, cap(r.uiVertices))
}

/**
 * @brief Returns the frames per second and the average frame time in
 * milliseconds over the frame history.
 */
func (r *RendererSystem) FrameStats() (float64, float64) {
	if r.frameTimes.Len() == 0 {
		return 0, 0
	}
	total := 0.0
	r.frameTimes.Each(func(_ int, ms float64) { total += ms })
	avg := total / float64(r.frameTimes.Len())
	if avg <= 0 {
		return 0, 0
	}
	return 1000 / avg, avg
}

func (r *RendererSystem) FrameNumber() uint64 {
	return r.frameNumber
}

func (r *RendererSystem) ShadowCamera() *metadata.Camera {
	return r.shadowCamera
}

func (r *RendererSystem) drawOverlay() {
	fps, ms := r.FrameStats()
	white := math.NewVec4One()
	r.DrawText(fmt.Sprintf("%.0f fps  %.2f ms", fps, ms), math.NewVec2(8, 8), white)
	if d := r.shaderSystem.Diagnostics(); d != "" {
		line := float32(r.fontSystem.Default.Data.LineHeight)
		r.DrawText(d, math.NewVec2(8, 8+2*line), math.NewVec4(1, 0.3, 0.3, 1))
	}
}

/**
 * @brief Records, submits and presents one frame. Blocks in Present until
 * the next frame slot is free. Errors wrapping core.ErrDeviceLost are fatal.
 */
func (r *RendererSystem) DrawFrame(ctx context.Context, delta time.Duration) error {
	seconds := delta.Seconds()
	r.frameTimes.Push(seconds * 1000)
	r.elapsed += seconds
	r.frameNumber++

	// Per frame lists start over whether or not the frame makes it to Present.
	defer r.beginCollect()
	if err := r.ctx.BeginFrame(); err != nil {
		return err
	}
	cl := r.ctx.CommandList
	if r.geometrySystem.Dirty() {
		r.geometrySystem.Flush(cl)
	}

	fi := r.ctx.FrameIndex()
	width, height := r.ctx.Width(), r.ctx.Height()
	aspect := float32(width) / float32(max(height, 1))
	main := r.cameraSystem.GetDefault()

	sun := r.Config.SunDirection.Normalized()
	r.sceneData.Time = math.NewVec4(float32(r.elapsed), float32(seconds), float32(r.frameNumber), 0)
	r.sceneData.SunDirection = math.NewVec4(-sun.X, -sun.Y, -sun.Z, 0)
	r.sceneData.AmbientColour = r.Config.AmbientColour
	r.sceneData.Shadows = math.Vec4{}
	if r.shadow.Traced(r.raytracing()) {
		r.sceneData.Shadows.X = 1
	}
	r.sceneData.ShadowTransform = CalculateShadowCamProjection(main, r.shadowCamera, sun, aspect, r.Config.ShadowDistance)
	r.scene.UploadData(fi)

	r.cameraSystem.Upload(fi, aspect, r.textureSystem.RenderTextures())
	r.entitySystem.Update(float32(seconds), fi)
	if r.Config.ShowOverlay && r.fontSystem != nil && r.fontSystem.Default != nil {
		r.drawOverlay()
	}

	packet := &views.FramePacket{
		FrameIndex:     fi,
		Width:          width,
		Height:         height,
		BackBuffer:     r.ctx.BackBuffer(),
		Scene:          r.scene,
		MainCamera:     main,
		ShadowCamera:   r.shadowCamera,
		Materials:      r.materialSystem.Materials(),
		RenderTextures: r.textureSystem.RenderTextures(),
		Raytracing:     r.raytracing(),
		DebugLines:     r.lines,
		UIVertices:     r.uiVertices,
	}
	if packet.Raytracing {
		r.meshSystem.Each(func(m *metadata.Mesh) {
			packet.Meshes = append(packet.Meshes, m)
		})
	}
	if r.fontSystem != nil && r.fontSystem.Default != nil {
		packet.UITexture = r.fontSystem.Default.Atlas.View
	}

	for _, v := range r.views {
		if err := v.OnRender(cl, packet); err != nil {
			core.LogError("render view %s failed: %s", v.Name(), err)
			if serr := r.ctx.Submit(); serr != nil {
				core.LogError("submit after failed view: %s", serr)
			}
			return err
		}
	}

	if err := r.ctx.Submit(); err != nil {
		return err
	}
	return r.ctx.Present(ctx)
}

/**
 * @brief Recreates the back buffers and every size dependent pass target.
 * A zero extent, a minimized window, is ignored.
 */
func (r *RendererSystem) Resize(ctx context.Context, width, height uint32) error {
	if width == 0 || height == 0 {
		return nil
	}
	if err := r.ctx.Resize(ctx, width, height); err != nil {
		return err
	}
	for _, v := range r.views {
		if err := v.OnResize(width, height); err != nil {
			core.LogError("failed to resize render view %s: %s", v.Name(), err)
			return err
		}
	}
	return nil
}

/**
 * @brief Switches between windowed and fullscreen (or borderless) and
 * rebuilds the size dependent targets through the resize path.
 */
func (r *RendererSystem) ToggleWindowMode(ctx context.Context, borderless bool) error {
	mode := renderer.NextWindowMode(r.ctx.WindowMode, borderless)
	if err := r.ctx.ApplyWindowMode(ctx, mode); err != nil {
		return err
	}
	return r.Resize(ctx, r.ctx.Width(), r.ctx.Height())
}

// Shutdown destroys the views. GPU objects are released with their scopes.
func (r *RendererSystem) Shutdown() error {
	for i := len(r.views) - 1; i >= 0; i-- {
		if err := r.views[i].OnDestroy(); err != nil {
			return err
		}
	}
	r.views = nil
	return nil
}
