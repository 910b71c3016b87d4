package platform

import (
	"runtime"
	"time"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/spaghettifunk/directengine/engine/core"
)

func init() {
	// GLFW event handling must run on the main OS thread
	runtime.LockOSThread()
}

/**
 * @brief The window thread side of the engine. Owns the glfw window and
 * translates its callbacks into the shared WindowEvents and InputState,
 * which it receives at construction. Functions queued with Do run on this
 * thread between two message pumps.
 */
type Platform struct {
	Window *glfw.Window

	events *core.WindowEvents
	input  *core.InputState
	calls  chan func()

	startTime time.Time
}

func New(events *core.WindowEvents, input *core.InputState) *Platform {
	return &Platform{
		events: events,
		input:  input,
		calls:  make(chan func(), 16),
	}
}

func (p *Platform) Startup(applicationName string, x, y int, width, height uint32) error {
	if err := glfw.Init(); err != nil {
		core.LogError("failed to initialize glfw: %s", err)
		return err
	}

	glfw.WindowHint(glfw.Visible, glfw.False)
	glfw.WindowHint(glfw.Resizable, glfw.True)
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI) // Required for Vulkan.

	window, err := glfw.CreateWindow(int(width), int(height), applicationName, nil, nil)
	if err != nil {
		core.LogError("failed to create window: %s", err)
		glfw.Terminate()
		return err
	}
	p.Window = window

	p.Window.SetKeyCallback(p.keyCallback)
	p.Window.SetMouseButtonCallback(p.mouseButtonCallback)
	p.Window.SetCursorPosCallback(p.cursorPosCallback)
	p.Window.SetScrollCallback(p.scrollCallback)
	p.Window.SetFramebufferSizeCallback(p.framebufferSizeCallback)
	p.Window.SetCloseCallback(p.closeCallback)
	p.Window.SetPos(x, y)
	p.Window.Show()

	p.startTime = time.Now()
	core.LogDebug("window %q created (%dx%d)", applicationName, width, height)
	return nil
}

func (p *Platform) Shutdown() error {
	if p.Window != nil {
		p.Window.Destroy()
		p.Window = nil
	}
	glfw.Terminate()
	return nil
}

/**
 * @brief Waits up to timeout for window messages, dispatches them to the
 * callbacks and runs the queued calls. Returns false once the window was
 * asked to close.
 */
func (p *Platform) PumpMessages(timeout time.Duration) bool {
	glfw.WaitEventsTimeout(timeout.Seconds())
	for {
		select {
		case fn := <-p.calls:
			fn()
		default:
			return !p.Window.ShouldClose()
		}
	}
}

// Do runs fn on the window thread and waits for it to return.
func (p *Platform) Do(fn func()) {
	done := make(chan struct{})
	p.calls <- func() {
		defer close(done)
		fn()
	}
	glfw.PostEmptyEvent()
	<-done
}

// Wake interrupts a PumpMessages wait, e.g. once the render thread exited.
func (p *Platform) Wake() {
	glfw.PostEmptyEvent()
}

// AbsoluteTime is the time elapsed since Startup.
func (p *Platform) AbsoluteTime() time.Duration {
	return time.Since(p.startTime)
}

func (p *Platform) keyCallback(w *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
	if action == glfw.Repeat {
		return
	}
	pressed := action == glfw.Press
	code := TranslateKey(key)
	modifiers := translateMods(mods)
	p.input.ProcessKey(code, pressed, modifiers)
	if !pressed {
		return
	}
	switch {
	case code == core.KEY_ESCAPE:
		p.events.RequestQuit()
	case code == core.KEY_F5:
		p.events.RequestShaderReload()
	case code == core.KEY_F6:
		p.events.RequestLevelReset()
	case code == core.KEY_F11, code == core.KEY_ENTER && modifiers&core.MOD_ALT != 0:
		p.events.RequestWindowModeToggle()
	}
}

func (p *Platform) mouseButtonCallback(w *glfw.Window, button glfw.MouseButton, action glfw.Action, mods glfw.ModifierKey) {
	var b core.Button
	switch button {
	case glfw.MouseButtonLeft:
		b = core.BUTTON_LEFT
	case glfw.MouseButtonRight:
		b = core.BUTTON_RIGHT
	case glfw.MouseButtonMiddle:
		b = core.BUTTON_MIDDLE
	default:
		return
	}
	p.input.ProcessButton(b, action == glfw.Press)
}

func (p *Platform) cursorPosCallback(w *glfw.Window, xpos, ypos float64) {
	p.input.ProcessMouseMove(int32(xpos), int32(ypos))
}

func (p *Platform) scrollCallback(w *glfw.Window, xoff, yoff float64) {
	p.input.ProcessMouseWheel(int32(yoff))
}

func (p *Platform) framebufferSizeCallback(w *glfw.Window, width, height int) {
	p.events.Resize(uint32(width), uint32(height))
}

func (p *Platform) closeCallback(w *glfw.Window) {
	p.events.RequestQuit()
}

func translateMods(mods glfw.ModifierKey) core.ModifierKey {
	var m core.ModifierKey
	if mods&glfw.ModShift != 0 {
		m |= core.MOD_SHIFT
	}
	if mods&glfw.ModControl != 0 {
		m |= core.MOD_CONTROL
	}
	if mods&glfw.ModAlt != 0 {
		m |= core.MOD_ALT
	}
	return m
}
