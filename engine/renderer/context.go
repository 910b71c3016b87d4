package renderer

import (
	"context"
	"errors"
	"fmt"

	"github.com/spaghettifunk/directengine/engine/core"
	"github.com/spaghettifunk/directengine/engine/memory"
	"github.com/spaghettifunk/directengine/engine/renderer/metadata"
)

/**
 * @brief Everything the passes need to record a frame: the device, the
 * frame's command list, the shared descriptor heap and the frame fence.
 * All of it is owned by the render thread.
 */
type Context struct {
	Device      metadata.Device
	Queue       metadata.Queue
	Swapchain   metadata.Swapchain
	CommandList metadata.CommandList
	Descriptors *DescriptorAllocator
	Sync        *FrameSync
	Scopes      *memory.Scopes

	VSync      bool
	WindowMode core.WindowMode

	uploadAllocator metadata.CommandAllocator
	uploadList      metadata.CommandList
	recording       bool
}

func NewContext(device metadata.Device, width, height uint32, scopes *memory.Scopes) (*Context, error) {
	c := &Context{Device: device, Scopes: scopes, VSync: true}
	engine := scopes.Get(memory.ScopeEngine)
	engine.Track(device)

	queue, err := device.CreateQueue()
	if err != nil {
		return nil, c.fail("queue", err)
	}
	c.Queue = queue
	engine.Track(queue)

	swapchain, err := device.CreateSwapchain(queue, width, height, metadata.FrameCount)
	if err != nil {
		return nil, c.fail("swapchain", err)
	}
	c.Swapchain = swapchain
	engine.Track(swapchain)

	heap, err := device.CreateDescriptorHeap(metadata.MaxDescriptors)
	if err != nil {
		return nil, c.fail("descriptor heap", err)
	}
	c.Descriptors = NewDescriptorAllocator(heap)
	engine.Track(heap)

	sync, err := NewFrameSync(device, queue, swapchain)
	if err != nil {
		return nil, c.fail("frame sync", err)
	}
	c.Sync = sync
	engine.Track(sync)

	list, err := device.CreateCommandList(sync.Allocator(sync.FrameIndex()))
	if err != nil {
		return nil, c.fail("command list", err)
	}
	c.CommandList = list
	engine.Track(list)

	if c.uploadAllocator, err = device.CreateCommandAllocator(); err != nil {
		return nil, c.fail("upload allocator", err)
	}
	engine.Track(c.uploadAllocator)
	if c.uploadList, err = device.CreateCommandList(c.uploadAllocator); err != nil {
		return nil, c.fail("upload command list", err)
	}
	engine.Track(c.uploadList)

	core.LogInfo("renderer context created on %s (%dx%d, %d frames in flight)", device.Name(), width, height, metadata.FrameCount)
	return c, nil
}

func (c *Context) fail(what string, err error) error {
	err = fmt.Errorf("failed to create %s: %w", what, err)
	core.LogError("%s", err)
	return err
}

func (c *Context) FrameIndex() uint32 {
	return c.Sync.FrameIndex()
}

func (c *Context) Width() uint32 {
	return c.Swapchain.Width()
}

func (c *Context) Height() uint32 {
	return c.Swapchain.Height()
}

func (c *Context) BackBuffer() metadata.Texture {
	return c.Swapchain.BackBuffer(c.Swapchain.CurrentBackBufferIndex())
}

// BeginFrame opens the command list of the current frame slot.
func (c *Context) BeginFrame() error {
	alloc, err := c.Sync.BeginFrame()
	if err != nil {
		return err
	}
	if err := c.CommandList.Reset(alloc); err != nil {
		return deviceLost(err, "command list reset")
	}
	c.CommandList.SetDescriptorHeap(c.Descriptors.Heap())
	c.recording = true
	return nil
}

// Submit closes and executes the frame's command list.
func (c *Context) Submit() error {
	c.recording = false
	if err := c.CommandList.Close(); err != nil {
		return deviceLost(err, "command list close")
	}
	if err := c.Queue.ExecuteCommandLists(c.CommandList); err != nil {
		return deviceLost(err, "execute")
	}
	return nil
}

// Present shows the back buffer and advances to the next frame slot.
func (c *Context) Present(ctx context.Context) error {
	if err := c.Swapchain.Present(c.VSync); err != nil {
		return deviceLost(err, "present")
	}
	return c.Sync.MoveToNextFrame(ctx)
}

func (c *Context) WaitForGpu(ctx context.Context) error {
	return c.Sync.WaitForGpu(ctx)
}

/**
 * @brief Recreates the back buffers. Resources tracked in the size
 * dependent scope are released first; the caller recreates them.
 */
func (c *Context) Resize(ctx context.Context, width, height uint32) error {
	if width == 0 || height == 0 {
		return nil
	}
	if err := c.WaitForGpu(ctx); err != nil {
		return err
	}
	c.Scopes.Get(memory.ScopeSizeDependent).ReleaseAll()
	if err := c.Swapchain.ResizeBuffers(width, height); err != nil {
		err = deviceLost(err, "resize buffers to %dx%d", width, height)
		core.LogError("%s", err)
		return err
	}
	c.Sync.ResetAfterResize()
	core.LogDebug("swapchain resized to %dx%d", width, height)
	return nil
}

// deviceLost tags a failed device call with core.ErrDeviceLost. Errors the
// backend already tagged name the failing call and pass through as is.
func deviceLost(err error, format string, args ...any) error {
	if errors.Is(err, core.ErrDeviceLost) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", core.ErrDeviceLost, fmt.Sprintf(format, args...), err)
}

// NextWindowMode is the mode a toggle switches to.
func NextWindowMode(current core.WindowMode, borderless bool) core.WindowMode {
	if current != core.WindowModeWindowed {
		return core.WindowModeWindowed
	}
	if borderless {
		return core.WindowModeBorderless
	}
	return core.WindowModeFullscreen
}

// ApplyWindowMode switches the swapchain, with the GPU drained.
func (c *Context) ApplyWindowMode(ctx context.Context, mode core.WindowMode) error {
	if mode == c.WindowMode {
		return nil
	}
	if err := c.WaitForGpu(ctx); err != nil {
		return err
	}
	if err := c.Swapchain.SetWindowMode(mode); err != nil {
		err = fmt.Errorf("failed to switch to %s: %w", mode, err)
		core.LogError("%s", err)
		return err
	}
	c.WindowMode = mode
	core.LogInfo("window mode: %s", mode)
	return nil
}

/**
 * @brief Records copies on the upload list, executes them and waits for
 * the GPU. Staging resources tracked in the upload scope are released once
 * the copies completed.
 */
func (c *Context) Upload(ctx context.Context, record func(cl metadata.CommandList) error) error {
	if err := c.uploadAllocator.Reset(); err != nil {
		return deviceLost(err, "upload allocator reset")
	}
	if err := c.uploadList.Reset(c.uploadAllocator); err != nil {
		return deviceLost(err, "upload list reset")
	}
	recordErr := record(c.uploadList)
	if err := c.uploadList.Close(); err != nil {
		return deviceLost(err, "upload list close")
	}
	if recordErr != nil {
		c.Scopes.Get(memory.ScopeUpload).ReleaseAll()
		return recordErr
	}
	if err := c.Queue.ExecuteCommandLists(c.uploadList); err != nil {
		return deviceLost(err, "upload execute")
	}
	if err := c.WaitForGpu(ctx); err != nil {
		return err
	}
	c.Scopes.Get(memory.ScopeUpload).ReleaseAll()
	return nil
}

// CreateUploadBuffer creates a staging buffer holding data, released after
// the next Upload.
func (c *Context) CreateUploadBuffer(name string, data []byte) (metadata.Buffer, error) {
	buf, err := c.Device.CreateBuffer(metadata.BufferDesc{
		Name:         name,
		Size:         uint64(len(data)),
		Heap:         metadata.HeapTypeUpload,
		Usage:        metadata.BufferUsageCopySource,
		InitialState: metadata.ResourceStateCopySource,
	})
	if err != nil {
		return nil, err
	}
	mapped, err := buf.Map()
	if err != nil {
		buf.Release()
		return nil, err
	}
	copy(mapped, data)
	buf.Unmap()
	c.Scopes.Track(memory.ScopeUpload, buf)
	return buf, nil
}
