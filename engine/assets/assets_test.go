package assets

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spaghettifunk/directengine/engine/assets/loaders"
)

func TestDetermineAssetType(t *testing.T) {
	cases := map[string]loaders.ResourceType{
		"shaders/lit.wgsl":    loaders.ResourceTypeShader,
		"shaders/lit.vs.spv":  loaders.ResourceTypeBytecode,
		"textures/wall.dds":   loaders.ResourceTypeTexture,
		"materials.txt":       loaders.ResourceTypeMaterial,
		"notes.txt":           loaders.ResourceTypeNone,
		"fonts/mono.fnt":      loaders.ResourceTypeBitmapFont,
		"fonts/inter.ttf":     loaders.ResourceTypeSystemFont,
		"config/config.conf":  loaders.ResourceTypeBinary,
		"models/portal.vtx":   loaders.ResourceTypeModel,
	}
	for path, want := range cases {
		if got := DetermineAssetType(path); got != want {
			t.Errorf("%s: got %s, want %s", path, got, want)
		}
	}
}

func TestWatchReportsShaderChanges(t *testing.T) {
	dir := t.TempDir()
	shader := filepath.Join(dir, "lit.wgsl")
	if err := os.WriteFile(shader, []byte("// v1"), 0o644); err != nil {
		t.Fatal(err)
	}

	am, err := NewAssetManager(dir)
	if err != nil {
		t.Fatal(err)
	}
	changed := make(chan string, 16)
	if err := am.Watch(func(path string, assetType loaders.ResourceType) {
		if assetType == loaders.ResourceTypeShader {
			select {
			case changed <- path:
			default:
			}
		}
	}, dir); err != nil {
		t.Fatal(err)
	}
	defer am.Shutdown()

	if len(am.Assets()) != 1 {
		t.Fatalf("initial index has %d assets", len(am.Assets()))
	}
	if err := os.WriteFile(shader, []byte("// v2"), 0o644); err != nil {
		t.Fatal(err)
	}
	select {
	case p := <-changed:
		if p != shader {
			t.Fatalf("changed %s", p)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no change reported")
	}
}
