package core

import "sync"

type WindowMode int

const (
	WindowModeWindowed WindowMode = iota
	WindowModeFullscreen
	WindowModeBorderless
)

func (m WindowMode) String() string {
	switch m {
	case WindowModeFullscreen:
		return "fullscreen"
	case WindowModeBorderless:
		return "borderless"
	default:
		return "windowed"
	}
}

// WindowUpdate is everything the window thread asked for since the last
// drain. A resize overwrites any earlier pending resize.
type WindowUpdate struct {
	Resized          bool
	Width            uint32
	Height           uint32
	Minimized        bool
	ReloadShaders    bool
	ToggleWindowMode bool
	ResetLevel       bool
	Quit             bool
}

// WindowEvents carries requests from the window thread to the render thread.
type WindowEvents struct {
	mu      sync.Mutex
	pending WindowUpdate
}

func NewWindowEvents() *WindowEvents {
	return &WindowEvents{}
}

func (e *WindowEvents) Resize(width, height uint32) {
	e.mu.Lock()
	e.pending.Resized = true
	e.pending.Width = width
	e.pending.Height = height
	e.pending.Minimized = width == 0 || height == 0
	e.mu.Unlock()
}

func (e *WindowEvents) RequestShaderReload() {
	e.mu.Lock()
	e.pending.ReloadShaders = true
	e.mu.Unlock()
}

func (e *WindowEvents) RequestWindowModeToggle() {
	e.mu.Lock()
	e.pending.ToggleWindowMode = true
	e.mu.Unlock()
}

func (e *WindowEvents) RequestLevelReset() {
	e.mu.Lock()
	e.pending.ResetLevel = true
	e.mu.Unlock()
}

func (e *WindowEvents) RequestQuit() {
	e.mu.Lock()
	e.pending.Quit = true
	e.mu.Unlock()
}

// Drain returns the pending requests and clears them. Quit stays latched so
// the loop observes it even if a later drain races with the request.
func (e *WindowEvents) Drain() WindowUpdate {
	e.mu.Lock()
	defer e.mu.Unlock()
	u := e.pending
	e.pending = WindowUpdate{Quit: u.Quit, Minimized: u.Minimized}
	return u
}

func (e *WindowEvents) QuitRequested() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pending.Quit
}
