package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spaghettifunk/directengine/engine/core"
	"github.com/spaghettifunk/directengine/engine/renderer/metadata"
)

// DefaultSettingsPath is where the executable looks for its settings file.
const DefaultSettingsPath = "config/engine.toml"

type Settings struct {
	Window   WindowSettings   `toml:"window"`
	Renderer RendererSettings `toml:"renderer"`
	Memory   MemorySettings   `toml:"memory"`
	Paths    PathSettings     `toml:"paths"`
	Log      LogSettings      `toml:"log"`
}

type WindowSettings struct {
	Title  string `toml:"title"`
	X      int    `toml:"x"`
	Y      int    `toml:"y"`
	Width  uint32 `toml:"width"`
	Height uint32 `toml:"height"`
	// windowed, fullscreen or borderless
	Mode string `toml:"mode"`
	// Toggling out of windowed mode goes borderless instead of exclusive fullscreen.
	Borderless bool `toml:"borderless"`
	VSync      bool `toml:"vsync"`
}

type RendererSettings struct {
	// vulkan or headless
	Backend     string `toml:"backend"`
	Debug       bool   `toml:"debug"`
	DiscreteGPU bool   `toml:"discrete_gpu"`
	Raytracing  bool   `toml:"raytracing"`
	ShowOverlay bool   `toml:"show_overlay"`
	HotReload   bool   `toml:"hot_reload"`
	// Workers reading and decoding textures at level load.
	Workers               int        `toml:"workers"`
	RenderTextureSamples  uint32     `toml:"render_texture_samples"`
	ShadowDistance        float32    `toml:"shadow_distance"`
	SunDirection          [3]float32 `toml:"sun_direction"`
	LineShader            string     `toml:"line_shader"`
	UIShader              string     `toml:"ui_shader"`
	RaytracedShadowShader string     `toml:"raytraced_shadow_shader"`
}

type MemorySettings struct {
	MaxVertices uint32 `toml:"max_vertices"`
	// Handles each lifetime scope can track.
	ResourceStackCapacity int    `toml:"resource_stack_capacity"`
	ConfigArenaSize       uint64 `toml:"config_arena_size"`
}

type PathSettings struct {
	Resources string `toml:"resources"`
	Shaders   string `toml:"shaders"`
	Bytecode  string `toml:"bytecode"`
	// The binary game config.
	GameConfig string `toml:"game_config"`
}

type LogSettings struct {
	Level string `toml:"level"`
}

func DefaultSettings() *Settings {
	return &Settings{
		Window: WindowSettings{
			Title:  "DirectEngine",
			X:      100,
			Y:      100,
			Width:  1280,
			Height: 720,
			Mode:   "windowed",
			VSync:  true,
		},
		Renderer: RendererSettings{
			Backend:               "vulkan",
			ShowOverlay:           true,
			HotReload:             true,
			Workers:               4,
			RenderTextureSamples:  4,
			ShadowDistance:        60,
			SunDirection:          [3]float32{-0.3, -1, -0.2},
			LineShader:            "lines",
			UIShader:              "ui",
			RaytracedShadowShader: "raytraced_shadows",
		},
		Memory: MemorySettings{
			MaxVertices:           metadata.MaxVertices,
			ResourceStackCapacity: 1024,
			ConfigArenaSize:       4096,
		},
		Paths: PathSettings{
			Resources:  "assets",
			Shaders:    "assets/shaders",
			Bytecode:   "assets/shaders/bin",
			GameConfig: DefaultGameConfigPath,
		},
		Log: LogSettings{
			Level: "debug",
		},
	}
}

/**
 * @brief Reads the settings file at path on top of the defaults. A missing
 * file is not an error: the defaults are returned as they are.
 */
func LoadSettings(path string) (*Settings, error) {
	s := DefaultSettings()
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		core.LogInfo("no settings file at %s, using defaults", path)
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read settings %s: %w", path, err)
	}
	dec := toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields()
	if err := dec.Decode(s); err != nil {
		return nil, fmt.Errorf("parse settings %s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("settings %s: %w", path, err)
	}
	return s, nil
}

func SaveSettings(path string, s *Settings) error {
	data, err := toml.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write settings %s: %w", path, err)
	}
	return nil
}

func (s *Settings) Validate() error {
	if s.Window.Width == 0 || s.Window.Height == 0 {
		return fmt.Errorf("window size %dx%d is empty", s.Window.Width, s.Window.Height)
	}
	if _, err := s.Window.WindowMode(); err != nil {
		return err
	}
	switch s.Renderer.RenderTextureSamples {
	case 0, 1, 2, 4, 8:
	default:
		return fmt.Errorf("render_texture_samples must be 1, 2, 4 or 8, got %d", s.Renderer.RenderTextureSamples)
	}
	if s.Memory.MaxVertices > metadata.MaxVertices {
		return fmt.Errorf("max_vertices %d is above the engine limit of %d", s.Memory.MaxVertices, metadata.MaxVertices)
	}
	if s.Memory.ResourceStackCapacity <= 0 {
		return fmt.Errorf("resource_stack_capacity must be positive")
	}
	if s.Memory.ConfigArenaSize < configFileSize+movementSettingsSize {
		return fmt.Errorf("config_arena_size %d cannot hold the game config", s.Memory.ConfigArenaSize)
	}
	return nil
}

func (w WindowSettings) WindowMode() (core.WindowMode, error) {
	switch strings.ToLower(w.Mode) {
	case "", "windowed":
		return core.WindowModeWindowed, nil
	case "fullscreen":
		return core.WindowModeFullscreen, nil
	case "borderless":
		return core.WindowModeBorderless, nil
	}
	return core.WindowModeWindowed, fmt.Errorf("unknown window mode %q", w.Mode)
}
