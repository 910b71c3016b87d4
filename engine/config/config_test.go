package config

import (
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/spaghettifunk/directengine/engine/core"
	"github.com/spaghettifunk/directengine/engine/renderer/metadata"
)

func TestGameConfigLayout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.conf")
	c := NewGameConfig(path, 256)
	if err := c.Save(); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != configFileSize+movementSettingsSize {
		t.Fatalf("file is %d bytes, want %d", len(data), configFileSize+movementSettingsSize)
	}
	le := binary.LittleEndian
	if v := le.Uint32(data[0:]); v != ConfigVersion {
		t.Errorf("config version = %d", v)
	}
	if off := le.Uint32(data[4:]); off != configFileSize {
		t.Errorf("movement offset = %d, want %d", off, configFileSize)
	}
	if v := le.Uint32(data[8:]); v != MovementSettingsVersion {
		t.Errorf("movement version = %d", v)
	}
	floats := []float32{125, 125, 20, 15, 35}
	for i, want := range floats {
		got := math.Float32frombits(le.Uint32(data[12+4*i:]))
		if got != want {
			t.Errorf("float %d = %v, want %v", i, got, want)
		}
	}
	if data[32] != 1 {
		t.Errorf("autojump byte = %d", data[32])
	}
}

func TestGameConfigLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.conf")
	c := NewGameConfig(path, 256)
	c.Movement.MaxSpeed = 42
	c.Movement.Autojump = false
	if err := c.Save(); err != nil {
		t.Fatal(err)
	}

	loaded := NewGameConfig(path, 256)
	if err := loaded.Load(); err != nil {
		t.Fatal(err)
	}
	if loaded.Movement.MaxSpeed != 42 || loaded.Movement.Autojump {
		t.Errorf("loaded %+v", loaded.Movement)
	}
}

func TestGameConfigRejects(t *testing.T) {
	le := binary.LittleEndian
	valid := func() []byte {
		b := make([]byte, configFileSize+movementSettingsSize)
		le.PutUint32(b[0:], ConfigVersion)
		le.PutUint32(b[4:], configFileSize)
		le.PutUint32(b[8:], MovementSettingsVersion)
		return b
	}
	tests := []struct {
		name   string
		mutate func(b []byte) []byte
		want   error
	}{
		{"file version", func(b []byte) []byte { le.PutUint32(b[0:], 2); return b }, core.ErrConfigVersion},
		{"movement version", func(b []byte) []byte { le.PutUint32(b[8:], 7); return b }, core.ErrConfigVersion},
		{"offset past end", func(b []byte) []byte { le.PutUint32(b[4:], 4096); return b }, ErrConfigRange},
		{"truncated entry", func(b []byte) []byte { return b[:configFileSize+4] }, ErrConfigRange},
		{"truncated header", func(b []byte) []byte { return b[:3] }, ErrConfigRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.conf")
			if err := os.WriteFile(path, tt.mutate(valid()), 0o644); err != nil {
				t.Fatal(err)
			}
			c := NewGameConfig(path, 256)
			c.Movement.MaxSpeed = 99
			err := c.Load()
			if !errors.Is(err, tt.want) {
				t.Fatalf("Load() = %v, want %v", err, tt.want)
			}
			if c.Movement.MaxSpeed != 99 {
				t.Errorf("failed load changed the settings")
			}
		})
	}
}

func TestGameConfigLoadOrReset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.conf")
	c := NewGameConfig(path, 256)
	c.Movement.Gravity = 1
	if err := c.LoadOrReset(); err != nil {
		t.Fatal(err)
	}
	if c.Movement != DefaultMovementSettings() {
		t.Errorf("settings not reset: %+v", c.Movement)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("defaults not saved: %v", err)
	}
	if err := NewGameConfig(path, 256).Load(); err != nil {
		t.Errorf("saved defaults do not load: %v", err)
	}
}

func TestSettingsDefaultsWhenMissing(t *testing.T) {
	s, err := LoadSettings(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if s.Window.Width != 1280 || s.Renderer.Backend != "vulkan" {
		t.Errorf("unexpected defaults %+v", s)
	}
}

func TestSettingsOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.toml")
	data := `
[window]
width = 800
height = 600
mode = "borderless"

[renderer]
backend = "headless"
sun_direction = [0.0, -1.0, 0.0]

[log]
level = "warn"
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := LoadSettings(path)
	if err != nil {
		t.Fatal(err)
	}
	if s.Window.Width != 800 || s.Window.Height != 600 {
		t.Errorf("size = %dx%d", s.Window.Width, s.Window.Height)
	}
	mode, err := s.Window.WindowMode()
	if err != nil || mode != core.WindowModeBorderless {
		t.Errorf("mode = %v, %v", mode, err)
	}
	if s.Renderer.Backend != "headless" || s.Renderer.SunDirection != [3]float32{0, -1, 0} {
		t.Errorf("renderer = %+v", s.Renderer)
	}
	// Untouched keys keep their defaults.
	if s.Window.Title != "DirectEngine" || s.Memory.MaxVertices != metadata.MaxVertices {
		t.Errorf("defaults lost: %+v", s)
	}
	if s.Log.Level != "warn" {
		t.Errorf("log level = %q", s.Log.Level)
	}
}

func TestSettingsInvalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"unknown key", "[window]\nfoo = 1\n"},
		{"bad mode", "[window]\nmode = \"tiled\"\n"},
		{"empty size", "[window]\nwidth = 0\n"},
		{"bad samples", "[renderer]\nrender_texture_samples = 3\n"},
		{"too many vertices", "[memory]\nmax_vertices = 65537\n"},
		{"syntax", "[window\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "engine.toml")
			if err := os.WriteFile(path, []byte(tt.data), 0o644); err != nil {
				t.Fatal(err)
			}
			if _, err := LoadSettings(path); err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}

func TestSaveSettings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config", "engine.toml")
	s := DefaultSettings()
	s.Window.Title = "saved"
	s.Renderer.Workers = 7
	if err := SaveSettings(path, s); err != nil {
		t.Fatal(err)
	}
	loaded, err := LoadSettings(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Window.Title != "saved" || loaded.Renderer.Workers != 7 {
		t.Errorf("loaded %+v", loaded)
	}
}
