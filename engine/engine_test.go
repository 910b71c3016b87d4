package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spaghettifunk/directengine/engine/assets/loaders"
	"github.com/spaghettifunk/directengine/engine/config"
	"github.com/spaghettifunk/directengine/engine/core"
	"github.com/spaghettifunk/directengine/engine/math"
	"github.com/spaghettifunk/directengine/engine/renderer/metadata"
	"github.com/spaghettifunk/directengine/engine/renderer/software"
	"github.com/spaghettifunk/directengine/engine/renderer/views"
	"github.com/spaghettifunk/directengine/engine/systems"
)

// headlessSettings points every path into dir and writes the precompiled
// bytecode of the shaders the engine and the test level use.
func headlessSettings(t *testing.T) *config.Settings {
	t.Helper()
	dir := t.TempDir()
	s := config.DefaultSettings()
	s.Window.Width, s.Window.Height = 320, 240
	s.Renderer.Backend = "headless"
	s.Renderer.HotReload = false
	s.Renderer.Workers = 1
	s.Memory.MaxVertices = 4096
	s.Paths.Resources = dir
	s.Paths.Shaders = dir
	s.Paths.Bytecode = filepath.Join(dir, "bin")
	s.Paths.GameConfig = filepath.Join(dir, "config.conf")
	s.Log.Level = "warn"

	if err := os.MkdirAll(s.Paths.Bytecode, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"lit", "lines", "ui"} {
		// SPIR-V is a stream of 32 bit words
		code := make([]byte, 16)
		copy(code, name)
		for _, stage := range []string{loaders.StageVertex, loaders.StagePixel} {
			path := loaders.BytecodePath(s.Paths.Bytecode, name, stage)
			if err := os.WriteFile(path, code, 0o644); err != nil {
				t.Fatal(err)
			}
		}
	}
	return s
}

type recorder struct {
	updates  int
	levels   int
	resizes  [][2]uint32
	shutdown bool
}

func newTestGame(t *testing.T, maxFrames uint64) (*Game, *recorder) {
	t.Helper()
	rec := &recorder{}
	g := &Game{
		ApplicationConfig: &ApplicationConfig{
			Name:      "engine test",
			Settings:  headlessSettings(t),
			MaxFrames: maxFrames,
		},
		FnLoadLevel: func(sm *systems.SystemManager) error {
			rec.levels++
			return twoQuads(sm)
		},
		FnUpdate: func(frame *Frame) error {
			rec.updates++
			return nil
		},
		FnOnResize: func(width, height uint32) error {
			rec.resizes = append(rec.resizes, [2]uint32{width, height})
			return nil
		},
		FnShutdown: func() error {
			rec.shutdown = true
			return nil
		},
	}
	return g, rec
}

func twoQuads(sm *systems.SystemManager) error {
	m := sm.MaterialSystem.CreateMaterial("lit", "lit")
	quad := sm.MeshSystem.CreateQuad("quad", 1, 1)
	for i := 0; i < 2; i++ {
		_, err := sm.EntitySystem.CreateEntity(systems.EntityConfig{
			Name:      fmt.Sprintf("quad %d", i),
			Material:  m,
			Mesh:      quad,
			Transform: math.NewTransformFromPosition(math.NewVec3(float32(i)*2, 0, 0)),
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func newTestEngine(t *testing.T, g *Game) *Engine {
	t.Helper()
	e, err := New(g)
	if err != nil {
		t.Fatal(err)
	}
	if e.platform != nil {
		t.Fatal("headless engine created a window")
	}
	return e
}

func TestRunHeadlessFrames(t *testing.T) {
	g, rec := newTestGame(t, 5)
	e := newTestEngine(t, g)

	var dev *software.Device
	g.FnUpdate = func(frame *Frame) error {
		rec.updates++
		dev = e.device.(*software.Device)
		if frame.Systems != e.Systems() || frame.Input == nil || frame.Config == nil {
			t.Error("frame is missing the systems, input or config")
		}
		return nil
	}

	if err := e.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if e.FrameNumber() != 5 || rec.updates != 5 {
		t.Fatalf("frames = %d, updates = %d, want 5", e.FrameNumber(), rec.updates)
	}
	if rec.levels != 1 {
		t.Errorf("level loaded %d times", rec.levels)
	}
	if len(rec.resizes) != 1 || rec.resizes[0] != [2]uint32{320, 240} {
		t.Errorf("initial resize = %v", rec.resizes)
	}
	if !rec.shutdown || e.Stage() != EngineStageShutdown {
		t.Errorf("engine not shut down: stage %d, game shutdown %t", e.Stage(), rec.shutdown)
	}
	if got := dev.DrawCount(views.EventGBuffer); got != 2*5 {
		t.Errorf("g-buffer draws = %d, want 10", got)
	}
	if got := dev.DrawCount(views.EventMain); got != 2*5 {
		t.Errorf("main draws = %d, want 10", got)
	}
	if errs := dev.ValidationErrors(); len(errs) > 0 {
		t.Errorf("validation errors: %v", errs)
	}
	if _, err := os.Stat(g.ApplicationConfig.Settings.Paths.GameConfig); err != nil {
		t.Errorf("game config not written on first run: %v", err)
	}
}

func TestQuitIsObservedAtTopOfFrame(t *testing.T) {
	g, rec := newTestGame(t, 0)
	e := newTestEngine(t, g)
	g.FnUpdate = func(frame *Frame) error {
		rec.updates++
		if frame.Number == 2 {
			e.Events().RequestQuit()
		}
		return nil
	}
	if err := e.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	// The frame that asked to quit is still drawn.
	if e.FrameNumber() != 3 || rec.updates != 3 {
		t.Fatalf("frames = %d, updates = %d, want 3", e.FrameNumber(), rec.updates)
	}
}

func TestCancelledContextStillShutsDown(t *testing.T) {
	g, rec := newTestGame(t, 0)
	e := newTestEngine(t, g)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := e.Run(ctx); err != nil {
		t.Fatal(err)
	}
	if rec.updates != 0 || e.FrameNumber() != 0 {
		t.Fatalf("ran %d frames after cancel", e.FrameNumber())
	}
	if !rec.shutdown {
		t.Fatal("game shutdown not called")
	}
}

func TestWindowUpdatesAreDrainedOncePerFrame(t *testing.T) {
	g, rec := newTestGame(t, 3)
	e := newTestEngine(t, g)
	var width, height uint32
	g.FnUpdate = func(frame *Frame) error {
		rec.updates++
		switch frame.Number {
		case 0:
			// Only the last resize before the drain counts.
			e.Events().Resize(1024, 768)
			e.Events().Resize(640, 480)
			e.Events().RequestLevelReset()
			e.Events().RequestShaderReload()
		case 1:
			width, height = e.context.Width(), e.context.Height()
		}
		return nil
	}
	if err := e.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if width != 640 || height != 480 {
		t.Errorf("back buffer %dx%d after resize, want 640x480", width, height)
	}
	if len(rec.resizes) != 2 || rec.resizes[1] != [2]uint32{640, 480} {
		t.Errorf("game resizes = %v", rec.resizes)
	}
	if rec.levels != 2 {
		t.Errorf("level loaded %d times, want 2", rec.levels)
	}
}

func TestMinimizedWindowSuspendsRendering(t *testing.T) {
	g, rec := newTestGame(t, 2)
	e := newTestEngine(t, g)
	g.FnUpdate = func(frame *Frame) error {
		rec.updates++
		if frame.Number == 0 {
			e.Events().Resize(0, 0)
			go func() {
				time.Sleep(50 * time.Millisecond)
				e.Events().Resize(400, 300)
			}()
		}
		return nil
	}
	start := time.Now()
	if err := e.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if time.Since(start) < 50*time.Millisecond {
		t.Error("second frame rendered while minimized")
	}
	if rec.updates != 2 {
		t.Errorf("updates = %d, want 2", rec.updates)
	}
	if last := rec.resizes[len(rec.resizes)-1]; last != [2]uint32{400, 300} {
		t.Errorf("last resize = %v", last)
	}
}

func TestDeviceLostIsFatal(t *testing.T) {
	g, rec := newTestGame(t, 0)
	e := newTestEngine(t, g)
	g.FnUpdate = func(frame *Frame) error {
		rec.updates++
		if frame.Number == 1 {
			e.device.(*software.Device).Lose()
		}
		return nil
	}
	err := e.Run(context.Background())
	if !errors.Is(err, core.ErrDeviceLost) {
		t.Fatalf("Run = %v, want device lost", err)
	}
	if rec.updates != 2 {
		t.Errorf("updates = %d, want 2", rec.updates)
	}
	if !rec.shutdown {
		t.Error("game shutdown not called after device loss")
	}
}

type fakePhysics struct {
	dynamic   *metadata.Entity
	kinematic map[string]math.Transform
	steps     int
	total     float64
}

func (p *fakePhysics) IsDynamic(e *metadata.Entity) bool {
	return e.Name == "quad 0"
}

func (p *fakePhysics) SetKinematicTransform(e *metadata.Entity, t math.Transform) {
	p.kinematic[e.Name] = t
}

func (p *fakePhysics) Step(deltaTime float64) error {
	p.steps++
	p.total += deltaTime
	return nil
}

func (p *fakePhysics) DynamicTransforms(fn func(e *metadata.Entity, t math.Transform)) {
	if p.dynamic != nil {
		fn(p.dynamic, math.NewTransformFromPosition(math.NewVec3(0, -float32(p.steps), 0)))
	}
}

func (p *fakePhysics) DebugLines(fn func(from, to math.Vec3, colour math.Vec4)) {
	fn(math.NewVec3Zero(), math.NewVec3Up(), math.NewVec4One())
}

func TestPhysicsDrivesDynamicEntities(t *testing.T) {
	g, rec := newTestGame(t, 3)
	p := &fakePhysics{kinematic: map[string]math.Transform{}}
	g.Physics = p
	e := newTestEngine(t, g)
	g.FnUpdate = func(frame *Frame) error {
		rec.updates++
		if p.dynamic == nil {
			p.dynamic, _ = frame.Systems.EntitySystem.Get("quad 0")
		}
		return nil
	}
	var dropped *metadata.Entity
	g.FnShutdown = func() error {
		dropped, _ = e.Systems().EntitySystem.Get("quad 0")
		return nil
	}
	if err := e.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if p.steps != 3 {
		t.Fatalf("physics stepped %d times, want 3", p.steps)
	}
	if _, ok := p.kinematic["quad 1"]; !ok {
		t.Error("kinematic entity not fed to the simulation")
	}
	if _, ok := p.kinematic["quad 0"]; ok {
		t.Error("dynamic entity fed as kinematic")
	}
	if dropped == nil || dropped.Transform.Position.Y != -3 {
		t.Errorf("dynamic entity not moved by the simulation")
	}
	dev := e.device.(*software.Device)
	if got := dev.DrawCount(views.EventDebugLines); got != 3 {
		t.Errorf("debug line draws = %d, want one per frame", got)
	}
}

func TestUnknownBackend(t *testing.T) {
	g, _ := newTestGame(t, 1)
	g.ApplicationConfig.Settings.Renderer.Backend = "metal"
	if _, err := New(g); err == nil {
		t.Fatal("expected an error for an unknown backend")
	}
}
