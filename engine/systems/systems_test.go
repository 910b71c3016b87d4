package systems

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spaghettifunk/directengine/engine/assets"
	"github.com/spaghettifunk/directengine/engine/assets/loaders"
	"github.com/spaghettifunk/directengine/engine/core"
	"github.com/spaghettifunk/directengine/engine/math"
	"github.com/spaghettifunk/directengine/engine/memory"
	"github.com/spaghettifunk/directengine/engine/renderer"
	"github.com/spaghettifunk/directengine/engine/renderer/metadata"
	"github.com/spaghettifunk/directengine/engine/renderer/software"
	"github.com/spaghettifunk/directengine/engine/renderer/views"
)

func mustPanic(t *testing.T, target error, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		if r == nil {
			t.Fatalf("expected a panic wrapping %v", target)
		}
		err, ok := r.(error)
		if !ok || !errors.Is(err, target) {
			t.Fatalf("expected a panic wrapping %v, got %v", target, r)
		}
	}()
	fn()
}

type fakeCompiler struct {
	mu    sync.Mutex
	fail  bool
	calls int
}

func (c *fakeCompiler) Compile(name, source string, defines []metadata.ShaderDefine) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.fail {
		return nil, fmt.Errorf("%w: %s: expected ';'", core.ErrShaderCompile, name)
	}
	return []byte("spirv " + name), nil
}

func (c *fakeCompiler) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func (c *fakeCompiler) setFail(fail bool) {
	c.mu.Lock()
	c.fail = fail
	c.mu.Unlock()
}

type testEngine struct {
	sm       *SystemManager
	device   *software.Device
	ctx      *renderer.Context
	compiler *fakeCompiler
}

func newTestEngine(t *testing.T, opts ...software.Option) *testEngine {
	t.Helper()
	dir := t.TempDir()
	for _, name := range []string{"lit", "lines", "ui"} {
		if err := os.WriteFile(filepath.Join(dir, name+".wgsl"), []byte("// "+name), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	dev := software.NewDevice(opts...)
	ctx, err := renderer.NewContext(dev, 320, 240, memory.NewScopes(4096))
	if err != nil {
		t.Fatal(err)
	}
	am, err := assets.NewAssetManager(dir)
	if err != nil {
		t.Fatal(err)
	}
	compiler := &fakeCompiler{}
	sm, err := NewSystemManager(&SystemManagerConfig{
		ResourcePath: dir,
		ShaderPath:   dir,
		HotReload:    true,
		Workers:      2,
		MaxVertices:  1024,
		Renderer: RendererSystemConfig{
			LineShader: "lines",
			UIShader:   "ui",
		},
		Compiler: compiler,
	}, ctx, am)
	if err != nil {
		t.Fatal(err)
	}
	if err := sm.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = sm.Shutdown() })
	return &testEngine{sm: sm, device: dev, ctx: ctx, compiler: compiler}
}

// twoQuads creates one material drawing two shadow casting quads.
func twoQuads(sm *SystemManager) error {
	m := sm.MaterialSystem.CreateMaterial("lit", "lit")
	for i := 0; i < 2; i++ {
		mesh := sm.MeshSystem.CreateQuad(fmt.Sprintf("quad %d", i), 1, 1)
		_, err := sm.EntitySystem.CreateEntity(EntityConfig{
			Name:         fmt.Sprintf("quad %d", i),
			Material:     m,
			Mesh:         mesh,
			CastsShadows: true,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (te *testEngine) assertValid(t *testing.T) {
	t.Helper()
	if errs := te.device.ValidationErrors(); len(errs) > 0 {
		t.Fatalf("validation errors: %v", errs)
	}
}

func TestDrawFrameRecordsPassesInOrder(t *testing.T) {
	te := newTestEngine(t)
	bg := context.Background()
	if err := te.sm.LoadLevel(bg, twoQuads); err != nil {
		t.Fatal(err)
	}
	te.sm.RendererSystem.AddDebugLine(math.NewVec3(0, 0, 0), math.NewVec3(1, 0, 0), math.NewVec4One())

	te.device.ClearExecuted()
	before := te.ctx.Sync.Fence().CompletedValue()
	if err := te.sm.RendererSystem.DrawFrame(bg, 16*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if got := te.ctx.Sync.Fence().CompletedValue(); got != before+1 {
		t.Fatalf("fence completed %d, want %d", got, before+1)
	}

	tests := []struct {
		event string
		draws int
	}{
		{views.EventGBuffer, 2},
		{views.EventShadows, 2},
		{views.EventMain, 2},
		{views.EventWireframe, 0},
		{views.EventDebugLines, 1},
		{views.EventUI, 0},
	}
	for _, tt := range tests {
		if got := te.device.DrawCount(tt.event); got != tt.draws {
			t.Errorf("%s draws = %d, want %d", tt.event, got, tt.draws)
		}
	}

	first := map[string]int{}
	for i, cmd := range te.device.Executed() {
		if _, ok := first[cmd.Event]; !ok && cmd.Op == software.OpDraw {
			first[cmd.Event] = i
		}
	}
	if !(first[views.EventGBuffer] < first[views.EventShadows] && first[views.EventShadows] < first[views.EventMain] &&
		first[views.EventMain] < first[views.EventDebugLines]) {
		t.Fatalf("passes recorded out of order: %v", first)
	}
	if te.device.Swapchain().Presents() != 1 {
		t.Fatalf("presents = %d, want 1", te.device.Swapchain().Presents())
	}
	if te.sm.RendererSystem.sceneData.Shadows.X != 0 {
		t.Fatal("main pass told to sample a traced mask on a rasterizing device")
	}
	te.assertValid(t)
}

func TestDebugLinesResetEveryFrame(t *testing.T) {
	te := newTestEngine(t)
	bg := context.Background()
	rs := te.sm.RendererSystem

	added := 0
	for rs.AddDebugLine(math.NewVec3(0, 0, 0), math.NewVec3(0, 1, 0), math.NewVec4One()) {
		added++
	}
	if added != metadata.MaxDebugLineVertices/2 {
		t.Fatalf("added %d lines, want %d", added, metadata.MaxDebugLineVertices/2)
	}
	if err := rs.DrawFrame(bg, time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if !rs.AddDebugLine(math.NewVec3(0, 0, 0), math.NewVec3(0, 1, 0), math.NewVec4One()) {
		t.Fatal("line buffer still full after the frame was presented")
	}
}

func TestDebugLinesResetAfterFailedFrame(t *testing.T) {
	te := newTestEngine(t)
	rs := te.sm.RendererSystem
	collected := rs.frameArena.Used()

	for rs.AddDebugLine(math.NewVec3(0, 0, 0), math.NewVec3(0, 1, 0), math.NewVec4One()) {
	}
	te.device.Lose()
	if err := rs.DrawFrame(context.Background(), time.Millisecond); !errors.Is(err, core.ErrDeviceLost) {
		t.Fatalf("DrawFrame = %v, want device lost", err)
	}
	if len(rs.lines) != 0 || len(rs.uiVertices) != 0 {
		t.Fatalf("%d line and %d ui vertices survived the failed frame", len(rs.lines), len(rs.uiVertices))
	}
	if got := rs.frameArena.Used(); got != collected {
		t.Fatalf("frame arena holds %d bytes, want %d", got, collected)
	}
	if !rs.AddDebugLine(math.NewVec3(0, 0, 0), math.NewVec3(0, 1, 0), math.NewVec4One()) {
		t.Fatal("line buffer still full after the failed frame")
	}
}

func TestOverlayDrawsText(t *testing.T) {
	te := newTestEngine(t)
	te.sm.RendererSystem.Config.ShowOverlay = true
	te.device.ClearExecuted()
	if err := te.sm.RendererSystem.DrawFrame(context.Background(), 10*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if got := te.device.DrawCount(views.EventUI); got != 1 {
		t.Fatalf("ui draws = %d, want 1", got)
	}
	te.assertValid(t)
}

func TestFrameStats(t *testing.T) {
	te := newTestEngine(t)
	rs := te.sm.RendererSystem
	if fps, ms := rs.FrameStats(); fps != 0 || ms != 0 {
		t.Fatalf("stats before the first frame = %v, %v", fps, ms)
	}
	for _, d := range []time.Duration{10 * time.Millisecond, 30 * time.Millisecond} {
		if err := rs.DrawFrame(context.Background(), d); err != nil {
			t.Fatal(err)
		}
	}
	fps, ms := rs.FrameStats()
	if ms < 19.999 || ms > 20.001 || fps < 49.99 || fps > 50.01 {
		t.Fatalf("stats = %.3f fps, %.3f ms, want 50 fps, 20 ms", fps, ms)
	}
	if rs.FrameNumber() != 2 {
		t.Fatalf("frame number = %d", rs.FrameNumber())
	}
}

func TestShaderHotReload(t *testing.T) {
	te := newTestEngine(t)
	bg := context.Background()
	if err := te.sm.LoadLevel(bg, twoQuads); err != nil {
		t.Fatal(err)
	}
	m, _ := te.sm.MaterialSystem.Get("lit")
	p := m.Pipeline(metadata.PipelineVariantMain)
	p1 := p.State.ID()

	te.compiler.setFail(true)
	if err := te.sm.ReloadShaders(bg); err != nil {
		t.Fatal(err)
	}
	if p.State.ID() != p1 {
		t.Fatal("a failed reload replaced the pipeline")
	}
	if te.sm.ShaderSystem.Diagnostics() == "" {
		t.Fatal("a failed reload left no diagnostics")
	}
	if err := te.sm.RendererSystem.DrawFrame(bg, time.Millisecond); err != nil {
		t.Fatal(err)
	}

	te.compiler.setFail(false)
	if err := te.sm.ReloadShaders(bg); err != nil {
		t.Fatal(err)
	}
	if p.State.ID() == p1 {
		t.Fatal("a successful reload kept the old pipeline")
	}
	if d := te.sm.ShaderSystem.Diagnostics(); d != "" {
		t.Fatalf("diagnostics not cleared: %q", d)
	}
	te.device.ClearExecuted()
	if err := te.sm.RendererSystem.DrawFrame(bg, time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if te.device.DrawCount(views.EventMain) != 2 {
		t.Fatalf("main draws after reload = %d", te.device.DrawCount(views.EventMain))
	}
	te.assertValid(t)
}

func TestResetLevelRestoresEngineState(t *testing.T) {
	te := newTestEngine(t)
	bg := context.Background()
	engineDescriptors := te.ctx.Descriptors.Used()
	enginePipelines := te.sm.ShaderSystem.Len()

	for round := 0; round < 2; round++ {
		if err := te.sm.LoadLevel(bg, twoQuads); err != nil {
			t.Fatal(err)
		}
		if err := te.sm.RendererSystem.DrawFrame(bg, time.Millisecond); err != nil {
			t.Fatal(err)
		}
		if err := te.sm.ResetLevel(bg); err != nil {
			t.Fatal(err)
		}
		if got := te.ctx.Descriptors.Used(); got != engineDescriptors {
			t.Fatalf("round %d: %d descriptors used after reset, want %d", round, got, engineDescriptors)
		}
		if te.sm.MaterialSystem.Len() != 0 || te.sm.EntitySystem.Len() != 0 || te.sm.MeshSystem.Len() != 0 {
			t.Fatalf("round %d: level objects survived the reset", round)
		}
		if te.sm.GeometrySystem.Used() != 0 {
			t.Fatalf("round %d: geometry buffer holds %d vertices", round, te.sm.GeometrySystem.Used())
		}
		if te.sm.ShaderSystem.Len() != enginePipelines {
			t.Fatalf("round %d: %d pipelines after reset, want %d", round, te.sm.ShaderSystem.Len(), enginePipelines)
		}
	}
	if err := te.sm.RendererSystem.DrawFrame(bg, time.Millisecond); err != nil {
		t.Fatal(err)
	}
	te.assertValid(t)
}

func TestResetLevelRewindsOnlyOnceGpuIsIdle(t *testing.T) {
	te := newTestEngine(t)
	bg := context.Background()
	if err := te.sm.LoadLevel(bg, twoQuads); err != nil {
		t.Fatal(err)
	}
	te.sm.TextureSystem.Acquire("textures/crate.png", true)
	used := te.ctx.Descriptors.Used()

	te.device.Lose()
	if err := te.sm.ResetLevel(bg); !errors.Is(err, core.ErrDeviceLost) {
		t.Fatalf("ResetLevel = %v, want device lost", err)
	}
	if got := te.ctx.Descriptors.Used(); got != used {
		t.Fatalf("%d descriptors used after a reset that never waited, want %d", got, used)
	}
	if te.sm.MaterialSystem.Len() != 1 {
		t.Fatal("level objects released before the GPU was idle")
	}
	if _, ok := te.sm.TextureSystem.Get("textures/crate.png"); !ok {
		t.Fatal("texture released before the GPU was idle")
	}
}

func TestRenderTextureSkipsMaterialsSamplingIt(t *testing.T) {
	te := newTestEngine(t)
	bg := context.Background()
	err := te.sm.LoadLevel(bg, func(sm *SystemManager) error {
		cam, err := sm.CameraSystem.Acquire("portal", metadata.CameraRoleRenderTexture)
		if err != nil {
			return err
		}
		rt, err := sm.TextureSystem.CreateRenderTexture("portal", 64, 64, cam)
		if err != nil {
			return err
		}
		lit := sm.MaterialSystem.CreateMaterial("lit", "lit")
		screen := sm.MaterialSystem.CreateMaterial("screen", "lit")
		screen.Textures.Add(rt.Asset)

		quad := sm.MeshSystem.CreateQuad("quad", 1, 1)
		for _, m := range []*metadata.Material{lit, screen} {
			if _, err := sm.EntitySystem.CreateEntity(EntityConfig{Name: m.Name, Material: m, Mesh: quad}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	te.device.ClearExecuted()
	if err := te.sm.RendererSystem.DrawFrame(bg, time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if got := te.device.DrawCount(views.EventRenderTexture); got != 1 {
		t.Fatalf("render texture draws = %d, want 1", got)
	}
	if got := te.device.DrawCount(views.EventMain); got != 2 {
		t.Fatalf("main draws = %d, want 2", got)
	}
	te.assertValid(t)
}

func TestResizeAndWindowModeToggle(t *testing.T) {
	te := newTestEngine(t)
	bg := context.Background()
	if err := te.sm.LoadLevel(bg, twoQuads); err != nil {
		t.Fatal(err)
	}
	rs := te.sm.RendererSystem

	if err := rs.Resize(bg, 0, 0); err != nil {
		t.Fatal(err)
	}
	if te.device.Swapchain().Resizes() != 0 {
		t.Fatal("a minimized window resized the swapchain")
	}
	if err := rs.Resize(bg, 640, 480); err != nil {
		t.Fatal(err)
	}
	if te.ctx.Width() != 640 || te.ctx.Height() != 480 {
		t.Fatalf("context is %dx%d after resize", te.ctx.Width(), te.ctx.Height())
	}
	if err := rs.DrawFrame(bg, time.Millisecond); err != nil {
		t.Fatal(err)
	}

	if err := rs.ToggleWindowMode(bg, true); err != nil {
		t.Fatal(err)
	}
	if te.device.Swapchain().WindowMode() != core.WindowModeBorderless {
		t.Fatalf("window mode = %s", te.device.Swapchain().WindowMode())
	}
	if err := rs.ToggleWindowMode(bg, true); err != nil {
		t.Fatal(err)
	}
	if te.device.Swapchain().WindowMode() != core.WindowModeWindowed {
		t.Fatalf("window mode = %s", te.device.Swapchain().WindowMode())
	}
	if err := rs.DrawFrame(bg, time.Millisecond); err != nil {
		t.Fatal(err)
	}
	te.assertValid(t)
}

// newRaytracingSystems runs the engine on a device that supports raytracing,
// with raytraced shadows switched on or off in the configuration.
func newRaytracingSystems(t *testing.T, enabled bool) (*SystemManager, *software.Device) {
	t.Helper()
	dir := t.TempDir()
	for _, name := range []string{"lit", "rtshadows"} {
		if err := os.WriteFile(filepath.Join(dir, name+".wgsl"), []byte("// "+name), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	dev := software.NewDevice(software.WithRaytracing())
	ctx, err := renderer.NewContext(dev, 320, 240, memory.NewScopes(4096))
	if err != nil {
		t.Fatal(err)
	}
	am, _ := assets.NewAssetManager(dir)
	sm, err := NewSystemManager(&SystemManagerConfig{
		ResourcePath: dir,
		ShaderPath:   dir,
		HotReload:    true,
		MaxVertices:  64,
		Renderer:     RendererSystemConfig{Raytracing: enabled, RaytracedShadowShader: "rtshadows"},
		Compiler:     &fakeCompiler{},
	}, ctx, am)
	if err != nil {
		t.Fatal(err)
	}
	bg := context.Background()
	if err := sm.Initialize(bg); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = sm.Shutdown() })
	if err := sm.LoadLevel(bg, twoQuads); err != nil {
		t.Fatal(err)
	}
	return sm, dev
}

func TestRaytracedShadowsBuildAccelerationStructures(t *testing.T) {
	sm, dev := newRaytracingSystems(t, true)
	bg := context.Background()

	dev.ClearExecuted()
	if err := sm.RendererSystem.DrawFrame(bg, time.Millisecond); err != nil {
		t.Fatal(err)
	}
	// one bottom level per quad, then the top level
	if got := dev.CountOp(software.OpBuildAccelerationStructure); got != 3 {
		t.Fatalf("acceleration structure builds = %d, want 3", got)
	}
	if got := dev.CountOp(software.OpDispatchRays); got != 1 {
		t.Fatalf("ray dispatches = %d, want 1", got)
	}
	if got := dev.DrawCount(views.EventShadows); got != 0 {
		t.Fatalf("rasterized shadow draws = %d with raytracing", got)
	}
	if sm.RendererSystem.sceneData.Shadows.X != 1 {
		t.Fatal("the first traced frame tells the main pass to sample the shadow map")
	}

	dev.ClearExecuted()
	if err := sm.RendererSystem.DrawFrame(bg, time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if got := dev.CountOp(software.OpBuildAccelerationStructure); got != 1 {
		t.Fatalf("second frame builds = %d, want only the top level", got)
	}
	if sm.RendererSystem.sceneData.Shadows.X != 1 {
		t.Fatal("shadow source flipped between traced frames")
	}
	if errs := dev.ValidationErrors(); len(errs) > 0 {
		t.Fatalf("validation errors: %v", errs)
	}
}

func TestRaytracingDisabledRasterizesShadows(t *testing.T) {
	sm, dev := newRaytracingSystems(t, false)
	dev.ClearExecuted()
	if err := sm.RendererSystem.DrawFrame(context.Background(), time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if got := dev.CountOp(software.OpDispatchRays); got != 0 {
		t.Fatalf("ray dispatches = %d with raytracing off", got)
	}
	if got := dev.DrawCount(views.EventShadows); got != 2 {
		t.Fatalf("shadow map draws = %d, want 2", got)
	}
	if sm.RendererSystem.sceneData.Shadows.X != 0 {
		t.Fatal("main pass told to sample the traced mask with raytracing off")
	}
}

func TestMaterialEntityCapacity(t *testing.T) {
	te := newTestEngine(t)
	m := te.sm.MaterialSystem.CreateMaterial("crowd", "lit")
	quad := te.sm.MeshSystem.CreateQuad("quad", 1, 1)
	for i := 0; i < metadata.MaxEntitiesPerMaterial; i++ {
		if _, err := te.sm.EntitySystem.CreateEntity(EntityConfig{Name: fmt.Sprint(i), Material: m, Mesh: quad}); err != nil {
			t.Fatal(err)
		}
	}
	mustPanic(t, core.ErrCapacityExceeded, func() {
		_, _ = te.sm.EntitySystem.CreateEntity(EntityConfig{Name: "one too many", Material: m, Mesh: quad})
	})
	if m.Entities.Len() != metadata.MaxEntitiesPerMaterial {
		t.Fatalf("material draws %d entities", m.Entities.Len())
	}
}

func TestPoolCapacities(t *testing.T) {
	tests := []struct {
		name   string
		max    int
		len    func(sm *SystemManager) int
		create func(t *testing.T, sm *SystemManager, i int)
	}{
		{
			name: "cameras",
			max:  metadata.MaxCameras,
			len:  func(sm *SystemManager) int { return sm.CameraSystem.Cameras.Len() },
			create: func(t *testing.T, sm *SystemManager, i int) {
				if _, err := sm.CameraSystem.Acquire(fmt.Sprint("camera ", i), metadata.CameraRoleRenderTexture); err != nil {
					t.Fatal(err)
				}
			},
		},
		{
			name:   "materials",
			max:    metadata.MaxMaterials,
			len:    func(sm *SystemManager) int { return sm.MaterialSystem.Len() },
			create: func(t *testing.T, sm *SystemManager, i int) { sm.MaterialSystem.CreateMaterial(fmt.Sprint("material ", i), "lit") },
		},
		{
			name:   "meshes",
			max:    metadata.MaxMeshes,
			len:    func(sm *SystemManager) int { return sm.MeshSystem.Len() },
			create: func(t *testing.T, sm *SystemManager, i int) { sm.MeshSystem.CreateMesh(fmt.Sprint("mesh ", i), nil) },
		},
		{
			name:   "textures",
			max:    metadata.MaxTextures,
			len:    func(sm *SystemManager) int { return sm.TextureSystem.Len() },
			create: func(t *testing.T, sm *SystemManager, i int) { sm.TextureSystem.Acquire(fmt.Sprintf("textures/%d.png", i), false) },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			te := newTestEngine(t)
			for i := 0; tt.len(te.sm) < tt.max; i++ {
				tt.create(t, te.sm, i)
			}
			mustPanic(t, core.ErrCapacityExceeded, func() { tt.create(t, te.sm, tt.max) })
			if got := tt.len(te.sm); got != tt.max {
				t.Fatalf("%s holds %d, want %d", tt.name, got, tt.max)
			}
		})
	}
}

func TestDuplicateMaterialKeepsFirstDefinition(t *testing.T) {
	te := newTestEngine(t)
	red := math.NewVec4(1, 0, 0, 1)
	te.sm.MaterialSystem.Apply(&loaders.MaterialsFile{
		Materials: []*loaders.MaterialFile{
			{Name: "crate", ShaderName: "lit", DiffuseColour: red},
			{Name: "crate", ShaderName: "lit", DiffuseColour: math.NewVec4One()},
		},
	})
	if te.sm.MaterialSystem.Len() != 1 {
		t.Fatalf("materials = %d, want 1", te.sm.MaterialSystem.Len())
	}
	m, ok := te.sm.MaterialSystem.Get("crate")
	if !ok || m.DiffuseColour != red {
		t.Fatal("second definition replaced the first")
	}
	if again := te.sm.MaterialSystem.CreateMaterial("crate", "lit"); again != m || te.sm.MaterialSystem.Len() != 1 {
		t.Fatal("CreateMaterial allocated a second material under a taken name")
	}
}

func TestShaderReloadNeedsHotReload(t *testing.T) {
	te := newTestEngine(t)
	bg := context.Background()
	if err := te.sm.LoadLevel(bg, twoQuads); err != nil {
		t.Fatal(err)
	}
	m, _ := te.sm.MaterialSystem.Get("lit")
	p := m.Pipeline(metadata.PipelineVariantMain)
	id := p.State.ID()
	calls := te.compiler.callCount()

	te.sm.ShaderSystem.Config.HotReload = false
	if err := te.sm.ReloadShaders(bg); err != nil {
		t.Fatal(err)
	}
	if p.State.ID() != id || te.compiler.callCount() != calls {
		t.Fatal("pipelines rebuilt with hot reload disabled")
	}
}

func TestGeometryBufferOverflow(t *testing.T) {
	te := newTestEngine(t)
	gs, err := NewGeometrySystem(&GeometrySystemConfig{MaxVertices: 6}, te.ctx)
	if err != nil {
		t.Fatal(err)
	}
	gs.Append(QuadVertices(1, 1))
	if gs.Used() != 6 || !gs.Dirty() {
		t.Fatalf("used = %d, dirty = %t", gs.Used(), gs.Dirty())
	}
	mustPanic(t, core.ErrCapacityExceeded, func() { gs.Append(QuadVertices(1, 1)[:1]) })
	if gs.Used() != 6 {
		t.Fatalf("used = %d after a failed append", gs.Used())
	}
}

func TestJobSystem(t *testing.T) {
	if _, err := NewJobSystem(0, 1); !errors.Is(err, ErrNoWorkers) {
		t.Fatalf("err = %v, want ErrNoWorkers", err)
	}
	if _, err := NewJobSystem(1, -1); !errors.Is(err, ErrNegativeChannelSize) {
		t.Fatalf("err = %v, want ErrNegativeChannelSize", err)
	}

	js, err := NewJobSystem(4, 8)
	if err != nil {
		t.Fatal(err)
	}
	var completed, failed, callbacks atomic.Int32
	for i := 0; i < 32; i++ {
		js.Submit(metadata.JobTask{
			Name:        fmt.Sprint("job ", i),
			InputParams: i,
			OnStart: func(in interface{}) (interface{}, error) {
				if in.(int)%4 == 0 {
					return nil, errors.New("boom")
				}
				return in.(int) * 2, nil
			},
			OnComplete:           func(interface{}) { completed.Add(1) },
			OnFailure:            func(error) { failed.Add(1) },
			OnCompletionCallback: func() { callbacks.Add(1) },
		})
	}
	js.Wait()
	if completed.Load() != 24 || failed.Load() != 8 || callbacks.Load() != 32 {
		t.Fatalf("completed %d, failed %d, callbacks %d", completed.Load(), failed.Load(), callbacks.Load())
	}
	if err := js.Shutdown(); err != nil {
		t.Fatal(err)
	}
	if err := js.Shutdown(); err != nil {
		t.Fatal(err)
	}
}

func TestLayoutText(t *testing.T) {
	te := newTestEngine(t)
	f := te.sm.FontSystem.Default
	if f == nil || f.Name != BuiltinFontName {
		t.Fatal("builtin font is not the default")
	}
	white := math.NewVec4One()

	verts := LayoutText(nil, f, "AB", math.NewVec2(0, 0), white, 100)
	if len(verts) != 12 {
		t.Fatalf("vertices = %d, want 12", len(verts))
	}
	if verts[6].Position.X <= verts[0].Position.X {
		t.Fatal("second glyph does not advance")
	}

	if got := LayoutText(nil, f, "AB", math.NewVec2(0, 0), white, 6); len(got) != 6 {
		t.Fatalf("limited layout = %d vertices, want 6", len(got))
	}

	lines := LayoutText(nil, f, "A\nA", math.NewVec2(5, 5), white, 100)
	if len(lines) != 12 {
		t.Fatalf("vertices = %d, want 12", len(lines))
	}
	if lines[0].Position.X != lines[6].Position.X {
		t.Fatal("newline does not return to the start column")
	}
	if dy := lines[6].Position.Y - lines[0].Position.Y; dy != float32(f.Data.LineHeight) {
		t.Fatalf("line advance = %v, want %d", dy, f.Data.LineHeight)
	}
}
