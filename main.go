/*
This is an example of application that will use the
engine package to test things out
*/
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/spaghettifunk/directengine/engine"
	"github.com/spaghettifunk/directengine/engine/config"
	"github.com/spaghettifunk/directengine/engine/core"
	"github.com/spaghettifunk/directengine/testbed"
)

func main() {
	settingsPath := flag.String("settings", config.DefaultSettingsPath, "path of the engine settings file")
	frames := flag.Uint64("frames", 0, "exit after this many frames (0 runs until quit)")
	flag.Parse()

	tb := testbed.NewTestGame(*settingsPath)
	tb.ApplicationConfig.MaxFrames = *frames

	e, err := engine.New(tb.Game)
	if err != nil {
		core.LogFatal("failed to create the engine: %s", err)
	}

	// signal context to capture system calls; the render thread observes it
	// at the top of every frame and drains the GPU before exiting
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
	defer stop()

	if err := e.Run(ctx); err != nil {
		core.LogError("engine stopped: %s", err)
		stop()
		os.Exit(1)
	}
}
