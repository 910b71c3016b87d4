package loaders

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Bytecode stages, used in precompiled file names.
const (
	StageVertex   = "vs"
	StagePixel    = "ps"
	StageRaytrace = "rt"
	StageCompute  = "cs"
)

// ShaderSourcePollInterval is how long the loader sleeps while an editor
// still holds the source file.
const ShaderSourcePollInterval = 100 * time.Millisecond

// ShaderSourcePath is <dir>/<name>.wgsl.
func ShaderSourcePath(dir, name string) string {
	return filepath.Join(dir, name+".wgsl")
}

// BytecodePath is <dir>/<name>.<stage>.spv.
func BytecodePath(dir, name, stage string) string {
	return filepath.Join(dir, fmt.Sprintf("%s.%s.spv", name, stage))
}

/**
 * @brief Loads WGSL source. Load blocks until the file can be opened, which
 * covers editors that replace the file while saving.
 */
type ShaderLoader struct {
	// Poll interval, ShaderSourcePollInterval when zero.
	Interval time.Duration
	// Bounds the wait. Nil means wait forever.
	Context context.Context
}

func (sl *ShaderLoader) Load(path string, params interface{}) (*Resource, error) {
	ctx := sl.Context
	if ctx == nil {
		ctx = context.Background()
	}
	interval := sl.Interval
	if interval == 0 {
		interval = ShaderSourcePollInterval
	}
	if err := WaitForFile(ctx, path, interval); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return &Resource{
		Name:     path,
		FullPath: path,
		Type:     ResourceTypeShader,
		DataSize: uint64(len(data)),
		Data:     string(data),
	}, nil
}

func (sl *ShaderLoader) Unload(r *Resource) error {
	r.Data = nil
	return nil
}

// WaitForFile polls until path can be opened for reading or ctx is done.
func WaitForFile(ctx context.Context, path string, interval time.Duration) error {
	for {
		f, err := os.Open(path)
		if err == nil {
			return f.Close()
		}
		select {
		case <-ctx.Done():
			return errors.Join(ctx.Err(), err)
		case <-time.After(interval):
		}
	}
}

/** @brief Loads a precompiled SPIR-V blob. */
type BytecodeLoader struct{}

func (bl *BytecodeLoader) Load(path string, params interface{}) (*Resource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if _, err := BytesToWords(data); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &Resource{
		Name:     path,
		FullPath: path,
		Type:     ResourceTypeBytecode,
		DataSize: uint64(len(data)),
		Data:     data,
	}, nil
}

func (bl *BytecodeLoader) Unload(r *Resource) error {
	r.Data = nil
	return nil
}
