package engine

import (
	"github.com/spaghettifunk/directengine/engine/config"
	"github.com/spaghettifunk/directengine/engine/core"
	"github.com/spaghettifunk/directengine/engine/systems"
)

// Frame is what the game sees of one iteration of the loop.
type Frame struct {
	// Seconds since the previous frame.
	DeltaTime float64
	Number    uint64
	Input     *core.InputSnapshot
	Systems   *systems.SystemManager
	Config    *config.GameConfig
}

type Game struct {
	ApplicationConfig *ApplicationConfig
	State             interface{}
	// Optional rigid body simulation, stepped after FnUpdate.
	Physics Physics

	FnInitialize Initialize
	// Creates the level; called at startup and after every level reset.
	FnLoadLevel systems.LevelSetup
	FnUpdate    Update
	FnOnResize  OnResize
	FnShutdown  Shutdown
}

type Initialize func(sm *systems.SystemManager) error
type Update func(frame *Frame) error
type OnResize func(width uint32, height uint32) error
type Shutdown func() error
