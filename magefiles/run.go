//go:build mage

package main

import (
	"context"
	"fmt"

	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

// Precompiles the shaders and runs the testbed.
func (Run) Engine(ctx context.Context) error {
	if err := buildShaders(); err != nil {
		return err
	}
	fmt.Println("Run engine...")
	_, err := executeCmd(ctx, "go", withArgs("run", "."), withStream())
	return err
}

// Runs the testbed on the headless backend for a few frames.
func (Run) Headless(ctx context.Context) error {
	mg.Deps(Build.Shaders)
	_, err := executeCmd(ctx, "go",
		withArgs("run", ".", "-settings", "config/headless.toml", "-frames", "120"),
		withStream())
	return err
}

// Runs every package test, uncached and with the race detector.
func (Run) Tests(ctx context.Context) error {
	_, err := executeCmd(ctx, "go",
		withArgs("test", "-race", "./engine/...", "./testbed/..."),
		withEnv("GOFLAGS=-count=1"),
		withStream())
	return err
}
