package engine

import (
	"github.com/spaghettifunk/directengine/engine/config"
)

type ApplicationConfig struct {
	// The application name used in windowing and logging.
	Name string
	// Settings file read by New when Settings is nil.
	SettingsPath string
	Settings     *config.Settings
	// Stop after this many frames. 0 runs until a quit is requested.
	MaxFrames uint64
}
