package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/spaghettifunk/directengine/engine/assets"
	"github.com/spaghettifunk/directengine/engine/assets/loaders"
	"github.com/spaghettifunk/directengine/engine/config"
	"github.com/spaghettifunk/directengine/engine/core"
	"github.com/spaghettifunk/directengine/engine/math"
	"github.com/spaghettifunk/directengine/engine/memory"
	"github.com/spaghettifunk/directengine/engine/platform"
	"github.com/spaghettifunk/directengine/engine/renderer"
	"github.com/spaghettifunk/directengine/engine/renderer/metadata"
	"github.com/spaghettifunk/directengine/engine/renderer/software"
	"github.com/spaghettifunk/directengine/engine/renderer/vulkan"
	"github.com/spaghettifunk/directengine/engine/systems"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
	// Engine released everything it created
	EngineStageShutdown
)

// How long the window thread waits for messages before checking on the
// render thread.
const pumpTimeout = 100 * time.Millisecond

// How long a minimized window sleeps between two drains.
const suspendedSleep = 10 * time.Millisecond

/**
 * @brief Drives the frame loop. The window thread only pumps messages into
 * the shared WindowEvents and InputState; the render thread owns the
 * device, the arenas and every system, and drains both once per frame.
 */
type Engine struct {
	currentStage Stage
	gameInstance *Game
	settings     *config.Settings

	events   *core.WindowEvents
	input    *core.InputState
	platform *platform.Platform

	// Render thread state.
	device        metadata.Device
	scopes        *memory.Scopes
	context       *renderer.Context
	assetManager  *assets.AssetManager
	systemManager *systems.SystemManager
	gameConfig    *config.GameConfig
	clock         *core.Clock
	metrics       *core.FrameMetrics
	isSuspended   bool
	frameNumber   uint64
}

func New(g *Game) (*Engine, error) {
	if g.ApplicationConfig == nil {
		err := fmt.Errorf("func New - the game has no application config")
		core.LogError("%s", err)
		return nil, err
	}
	settings := g.ApplicationConfig.Settings
	if settings == nil {
		path := g.ApplicationConfig.SettingsPath
		if path == "" {
			path = config.DefaultSettingsPath
		}
		s, err := config.LoadSettings(path)
		if err != nil {
			core.LogError("%s", err)
			return nil, err
		}
		settings = s
	} else if err := settings.Validate(); err != nil {
		core.LogError("%s", err)
		return nil, err
	}
	if err := core.SetLogLevel(settings.Log.Level); err != nil {
		core.LogWarn("unknown log level %q: %s", settings.Log.Level, err)
	}
	if g.ApplicationConfig.Name != "" {
		settings.Window.Title = g.ApplicationConfig.Name
	}

	backend, err := renderer.ParseBackendType(settings.Renderer.Backend)
	if err != nil {
		core.LogError("%s", err)
		return nil, err
	}

	e := &Engine{
		currentStage: EngineStageUninitialized,
		gameInstance: g,
		settings:     settings,
		events:       core.NewWindowEvents(),
		input:        core.NewInputState(),
		clock:        core.NewClock(),
		metrics:      core.NewFrameMetrics(),
	}
	if backend == renderer.BackendVulkan {
		e.platform = platform.New(e.events, e.input)
	}
	return e, nil
}

func (e *Engine) Stage() Stage {
	return e.currentStage
}

func (e *Engine) Settings() *config.Settings {
	return e.settings
}

// Events is the channel into the render thread for resize, reload and quit
// requests. It is safe to use from any goroutine.
func (e *Engine) Events() *core.WindowEvents {
	return e.events
}

// Input is the input state the window thread writes into.
func (e *Engine) Input() *core.InputState {
	return e.input
}

// Systems is only valid on the render thread, between initialization and
// shutdown.
func (e *Engine) Systems() *systems.SystemManager {
	return e.systemManager
}

func (e *Engine) FrameMetrics() *core.FrameMetrics {
	return e.metrics
}

func (e *Engine) FrameNumber() uint64 {
	return e.frameNumber
}

/**
 * @brief Runs the engine until a quit is requested, ctx is cancelled or
 * the frame limit is reached. With a window, the calling goroutine must be
 * the main OS thread: it becomes the window thread and the frame loop runs
 * on a goroutine locked to its own thread.
 */
func (e *Engine) Run(ctx context.Context) error {
	if e.platform == nil {
		return e.renderThread(ctx)
	}

	w := e.settings.Window
	if err := e.platform.Startup(w.Title, w.X, w.Y, w.Width, w.Height); err != nil {
		return err
	}
	defer e.platform.Shutdown()

	g, gctx := errgroup.WithContext(ctx)
	done := make(chan struct{})
	g.Go(func() error {
		defer e.platform.Wake()
		defer close(done)
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		return e.renderThread(gctx)
	})

	for {
		select {
		case <-done:
			return g.Wait()
		default:
		}
		if !e.platform.PumpMessages(pumpTimeout) {
			e.events.RequestQuit()
		}
	}
}

func (e *Engine) renderThread(ctx context.Context) (err error) {
	e.currentStage = EngineStageInitializing
	defer func() {
		if serr := e.shutdown(context.WithoutCancel(ctx)); err == nil {
			err = serr
		}
	}()
	if err := e.initialize(ctx); err != nil {
		return err
	}
	e.currentStage = EngineStageRunning
	return e.loop(ctx)
}

func (e *Engine) createDevice() (metadata.Device, error) {
	r := e.settings.Renderer
	if e.platform == nil {
		var opts []software.Option
		if r.Raytracing {
			opts = append(opts, software.WithRaytracing())
		}
		return software.NewDevice(opts...), nil
	}
	return vulkan.NewDevice(vulkan.DeviceConfig{
		AppName:      e.settings.Window.Title,
		Window:       e.platform.Window,
		Debug:        r.Debug,
		DiscreteGPU:  r.DiscreteGPU,
		WindowThread: e.platform.Do,
	})
}

func (e *Engine) initialize(ctx context.Context) error {
	s := e.settings

	device, err := e.createDevice()
	if err != nil {
		err = fmt.Errorf("failed to create the %s device: %w", s.Renderer.Backend, err)
		core.LogError("%s", err)
		return err
	}
	e.device = device
	e.scopes = memory.NewScopes(s.Memory.ResourceStackCapacity)

	rctx, err := renderer.NewContext(device, s.Window.Width, s.Window.Height, e.scopes)
	if err != nil {
		return err
	}
	rctx.VSync = s.Window.VSync
	e.context = rctx

	am, err := assets.NewAssetManager(s.Paths.Resources)
	if err != nil {
		core.LogError("%s", err)
		return err
	}
	e.assetManager = am

	sun := s.Renderer.SunDirection
	sm, err := systems.NewSystemManager(&systems.SystemManagerConfig{
		ResourcePath:         s.Paths.Resources,
		ShaderPath:           s.Paths.Shaders,
		BytecodePath:         s.Paths.Bytecode,
		HotReload:            s.Renderer.HotReload,
		Workers:              s.Renderer.Workers,
		RenderTextureSamples: s.Renderer.RenderTextureSamples,
		MaxVertices:          s.Memory.MaxVertices,
		Renderer: systems.RendererSystemConfig{
			Raytracing:            s.Renderer.Raytracing,
			ShowOverlay:           s.Renderer.ShowOverlay,
			SunDirection:          math.NewVec3(sun[0], sun[1], sun[2]),
			AmbientColour:         math.NewVec4(0.1, 0.1, 0.12, 1),
			ShadowDistance:        s.Renderer.ShadowDistance,
			LineShader:            s.Renderer.LineShader,
			UIShader:              s.Renderer.UIShader,
			RaytracedShadowShader: s.Renderer.RaytracedShadowShader,
		},
	}, rctx, am)
	if err != nil {
		core.LogError("%s", err)
		return err
	}
	e.systemManager = sm
	if err := sm.Initialize(ctx); err != nil {
		return err
	}

	if mode, _ := s.Window.WindowMode(); mode != core.WindowModeWindowed {
		if err := rctx.ApplyWindowMode(ctx, mode); err != nil {
			core.LogWarn("staying windowed: %s", err)
		} else if err := sm.RendererSystem.Resize(ctx, rctx.Width(), rctx.Height()); err != nil {
			return err
		}
	}

	e.gameConfig = config.NewGameConfig(s.Paths.GameConfig, s.Memory.ConfigArenaSize)
	if err := e.gameConfig.LoadOrReset(); err != nil {
		core.LogWarn("game config not saved: %s", err)
	}

	if fn := e.gameInstance.FnInitialize; fn != nil {
		if err := fn(sm); err != nil {
			return err
		}
	}
	if err := e.loadLevel(ctx); err != nil {
		return err
	}
	if fn := e.gameInstance.FnOnResize; fn != nil {
		if err := fn(rctx.Width(), rctx.Height()); err != nil {
			return err
		}
	}

	if s.Renderer.HotReload {
		if err := am.Watch(e.onAssetChanged, s.Paths.Resources, s.Paths.Shaders); err != nil {
			core.LogWarn("asset hot reload disabled: %s", err)
		}
	}
	e.currentStage = EngineStageInitialized
	core.LogInfo("engine initialized (%s backend)", s.Renderer.Backend)
	return nil
}

func (e *Engine) loadLevel(ctx context.Context) error {
	if e.gameInstance.FnLoadLevel == nil {
		return nil
	}
	return e.systemManager.LoadLevel(ctx, e.gameInstance.FnLoadLevel)
}

// onAssetChanged runs on the watcher goroutine; it only raises flags.
func (e *Engine) onAssetChanged(path string, assetType loaders.ResourceType) {
	switch assetType {
	case loaders.ResourceTypeShader:
		core.LogDebug("shader %s changed", path)
		e.events.RequestShaderReload()
	case loaders.ResourceTypeMaterial:
		core.LogDebug("materials %s changed", path)
		e.events.RequestLevelReset()
	}
}

func (e *Engine) loop(ctx context.Context) error {
	e.clock.Start()
	lastTime := e.clock.Elapsed()
	maxFrames := e.gameInstance.ApplicationConfig.MaxFrames

	for {
		update := e.events.Drain()
		if update.Quit {
			core.LogInfo("quit requested, shutting down")
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}
		if err := e.applyWindowUpdate(ctx, update); err != nil {
			return err
		}
		input := e.input.Drain()

		if e.isSuspended {
			time.Sleep(suspendedSleep)
			e.clock.Update()
			lastTime = e.clock.Elapsed()
			continue
		}

		e.clock.Update()
		now := e.clock.Elapsed()
		delta := now - lastTime
		lastTime = now
		frameStart := time.Now()

		if err := e.step(ctx, delta, &input); err != nil {
			return err
		}

		e.metrics.Update(time.Since(frameStart).Seconds())
		e.frameNumber++
		if maxFrames > 0 && e.frameNumber >= maxFrames {
			core.LogInfo("reached %d frames", maxFrames)
			return nil
		}
	}
}

/**
 * @brief Acts on the requests drained from the window thread: window mode
 * first, then the resize it may have caused, shader reload and level reset.
 */
func (e *Engine) applyWindowUpdate(ctx context.Context, u core.WindowUpdate) error {
	sm := e.systemManager
	if u.ToggleWindowMode {
		if err := sm.RendererSystem.ToggleWindowMode(ctx, e.settings.Window.Borderless); err != nil {
			if errors.Is(err, core.ErrDeviceLost) {
				return err
			}
			core.LogWarn("window mode not changed: %s", err)
		}
	}
	if u.Resized {
		if u.Minimized {
			if !e.isSuspended {
				core.LogInfo("window minimized, suspending rendering")
			}
			e.isSuspended = true
		} else {
			if e.isSuspended {
				core.LogInfo("window restored, resuming rendering")
			}
			e.isSuspended = false
			if err := sm.RendererSystem.Resize(ctx, u.Width, u.Height); err != nil {
				return err
			}
			if fn := e.gameInstance.FnOnResize; fn != nil {
				if err := fn(u.Width, u.Height); err != nil {
					return err
				}
			}
		}
	}
	if u.ReloadShaders {
		if err := sm.ReloadShaders(ctx); err != nil {
			return err
		}
	}
	if u.ResetLevel {
		if err := sm.ResetLevel(ctx); err != nil {
			return err
		}
		if err := e.loadLevel(ctx); err != nil {
			return err
		}
	}
	return nil
}

// step runs the game update, the physics step and records the frame.
func (e *Engine) step(ctx context.Context, delta time.Duration, input *core.InputSnapshot) error {
	sm := e.systemManager
	frame := &Frame{
		DeltaTime: delta.Seconds(),
		Number:    e.frameNumber,
		Input:     input,
		Systems:   sm,
		Config:    e.gameConfig,
	}
	if fn := e.gameInstance.FnUpdate; fn != nil {
		if err := fn(frame); err != nil {
			core.LogError("game update failed: %s", err)
			return err
		}
	}
	if p := e.gameInstance.Physics; p != nil {
		if err := e.stepPhysics(p, frame.DeltaTime); err != nil {
			return err
		}
	}
	if err := sm.RendererSystem.DrawFrame(ctx, delta); err != nil {
		core.LogError("frame %d failed: %s", e.frameNumber, err)
		return err
	}
	return nil
}

func (e *Engine) stepPhysics(p Physics, delta float64) error {
	es := e.systemManager.EntitySystem
	es.Each(func(ent *metadata.Entity) {
		if !p.IsDynamic(ent) {
			p.SetKinematicTransform(ent, ent.Transform)
		}
	})
	if err := p.Step(delta); err != nil {
		core.LogError("physics step failed: %s", err)
		return err
	}
	p.DynamicTransforms(func(ent *metadata.Entity, t math.Transform) {
		ent.Transform = t
	})
	rs := e.systemManager.RendererSystem
	p.DebugLines(func(from, to math.Vec3, colour math.Vec4) {
		rs.AddDebugLine(from, to, colour)
	})
	return nil
}

/**
 * @brief Drains the GPU, then tears the systems and every lifetime scope
 * down. Safe to call on a partially initialized engine.
 */
func (e *Engine) shutdown(ctx context.Context) error {
	if e.currentStage == EngineStageShutdown {
		return nil
	}
	e.currentStage = EngineStageShuttingDown
	var errs []error
	if e.assetManager != nil {
		errs = append(errs, e.assetManager.Shutdown())
	}
	if e.context != nil {
		errs = append(errs, e.context.WaitForGpu(ctx))
	}
	if fn := e.gameInstance.FnShutdown; fn != nil && e.systemManager != nil {
		errs = append(errs, fn())
	}
	if e.systemManager != nil {
		errs = append(errs, e.systemManager.Shutdown())
	}
	if e.scopes != nil {
		e.scopes.ReleaseAll()
	}
	e.currentStage = EngineStageShutdown
	core.LogInfo("engine shut down after %d frames", e.frameNumber)
	return errors.Join(errs...)
}
