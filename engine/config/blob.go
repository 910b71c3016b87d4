package config

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spaghettifunk/directengine/engine/core"
	"github.com/spaghettifunk/directengine/engine/memory"
)

const (
	DefaultGameConfigPath = "config/config.conf"

	ConfigVersion           = 1
	MovementSettingsVersion = 1

	configFileSize       = 8
	movementSettingsSize = 28
)

var ErrConfigRange = errors.New("config entry outside of the file")

// ConfigFile heads the binary game config. Every other entry is found
// through an offset stored here.
type ConfigFile struct {
	Version                uint32
	MovementSettingsOffset uint32
}

type MovementSettings struct {
	Version      uint32
	Acceleration float32
	Friction     float32
	MaxSpeed     float32
	JumpStrength float32
	Gravity      float32
	Autojump     bool
	_            [3]byte
}

func DefaultMovementSettings() MovementSettings {
	return MovementSettings{
		Version:      MovementSettingsVersion,
		Acceleration: 125,
		Friction:     125,
		MaxSpeed:     20,
		JumpStrength: 15,
		Gravity:      35,
		Autojump:     true,
	}
}

/**
 * @brief The versioned little-endian game config. The file is read into
 * and written from the config arena, which is reset before each load and
 * save.
 */
type GameConfig struct {
	Movement MovementSettings

	path  string
	arena *memory.Arena
}

func NewGameConfig(path string, arenaSize uint64) *GameConfig {
	return &GameConfig{
		Movement: DefaultMovementSettings(),
		path:     path,
		arena:    memory.NewArena("config", arenaSize),
	}
}

func (c *GameConfig) Path() string {
	return c.path
}

func (c *GameConfig) Load() error {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return fmt.Errorf("read game config %s: %w", c.path, err)
	}
	c.arena.Reset()
	if uint64(len(data)) > c.arena.Capacity() {
		return fmt.Errorf("game config %s is %d bytes, arena holds %d: %w", c.path, len(data), c.arena.Capacity(), core.ErrCapacityExceeded)
	}
	blob := c.arena.Allocate(uint64(len(data)))
	copy(blob, data)

	var file ConfigFile
	if err := decodeEntry(blob, 0, &file); err != nil {
		return err
	}
	if file.Version != ConfigVersion {
		return fmt.Errorf("config file version %d, expected %d: %w", file.Version, ConfigVersion, core.ErrConfigVersion)
	}
	var movement MovementSettings
	if err := decodeEntry(blob, file.MovementSettingsOffset, &movement); err != nil {
		return err
	}
	if movement.Version != MovementSettingsVersion {
		return fmt.Errorf("movement settings version %d, expected %d: %w", movement.Version, MovementSettingsVersion, core.ErrConfigVersion)
	}
	c.Movement = movement
	return nil
}

func (c *GameConfig) Save() error {
	c.arena.Reset()
	head := c.arena.Allocate(configFileSize)
	offset := c.arena.Used()
	body := c.arena.Allocate(movementSettingsSize)

	c.Movement.Version = MovementSettingsVersion
	if _, err := binary.Encode(head, binary.LittleEndian, ConfigFile{Version: ConfigVersion, MovementSettingsOffset: uint32(offset)}); err != nil {
		return err
	}
	if _, err := binary.Encode(body, binary.LittleEndian, c.Movement); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(c.path, c.arena.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write game config %s: %w", c.path, err)
	}
	return nil
}

func (c *GameConfig) Reset() {
	c.Movement = DefaultMovementSettings()
}

// LoadOrReset loads the game config. When that fails the defaults are
// restored and written back.
func (c *GameConfig) LoadOrReset() error {
	err := c.Load()
	if err == nil {
		return nil
	}
	core.LogWarn("game config not loaded (%s), resetting to defaults", err)
	c.Reset()
	return c.Save()
}

func decodeEntry(blob []byte, offset uint32, v any) error {
	size := binary.Size(v)
	if uint64(offset)+uint64(size) > uint64(len(blob)) {
		return fmt.Errorf("%d bytes at offset %d, file has %d: %w", size, offset, len(blob), ErrConfigRange)
	}
	_, err := binary.Decode(blob[offset:], binary.LittleEndian, v)
	return err
}
