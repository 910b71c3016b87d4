//go:build mage

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gogpu/naga"
	"github.com/magefile/mage/mg"

	"github.com/spaghettifunk/directengine/engine/assets/loaders"
	"github.com/spaghettifunk/directengine/engine/renderer/metadata"
)

const (
	shaderDir     = "assets/shaders"
	bytecodeDir   = "assets/shaders/bin"
	materialsPath = "assets/materials.txt"
)

type Build mg.Namespace

// Precompiles every WGSL shader to SPIR-V, one blob per stage.
func (Build) Shaders() error {
	return buildShaders()
}

// Builds the engine binary.
func (Build) Engine(ctx context.Context) error {
	mg.Deps(Build.Shaders)
	_, err := executeCmd(ctx, "go", withArgs("build", "-o", "bin/directengine", "."), withStream())
	return err
}

func buildShaders() error {
	kinds, err := shaderKinds()
	if err != nil {
		return err
	}
	sources, err := filepath.Glob(filepath.Join(shaderDir, "*.wgsl"))
	if err != nil {
		return err
	}
	if err := os.MkdirAll(bytecodeDir, 0o755); err != nil {
		return err
	}
	for _, src := range sources {
		name := strings.TrimSuffix(filepath.Base(src), ".wgsl")
		source, err := os.ReadFile(src)
		if err != nil {
			return err
		}
		spirv, err := naga.Compile(string(source))
		if err != nil {
			return fmt.Errorf("compile %s: %w", src, err)
		}
		for _, stage := range stagesOf(kinds[name]) {
			out := loaders.BytecodePath(bytecodeDir, name, stage)
			if err := os.WriteFile(out, spirv, 0o644); err != nil {
				return err
			}
			fmt.Printf("%s -> %s\n", src, out)
		}
	}
	return nil
}

// shaderKinds reads the shader declarations of the materials file. Shaders
// it does not declare are raster shaders.
func shaderKinds() (map[string]metadata.ShaderKind, error) {
	kinds := map[string]metadata.ShaderKind{}
	f, err := os.Open(materialsPath)
	if os.IsNotExist(err) {
		return kinds, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	mf, err := loaders.ParseMaterials(f)
	if err != nil {
		return nil, err
	}
	for _, s := range mf.Shaders {
		kinds[s.Name] = s.Kind
	}
	return kinds, nil
}

func stagesOf(kind metadata.ShaderKind) []string {
	switch kind {
	case metadata.ShaderKindCompute:
		return []string{loaders.StageCompute}
	case metadata.ShaderKindRaytrace:
		return []string{loaders.StageRaytrace}
	default:
		return []string{loaders.StageVertex, loaders.StagePixel}
	}
}
