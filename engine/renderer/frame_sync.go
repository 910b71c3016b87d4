package renderer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/spaghettifunk/directengine/engine/core"
	"github.com/spaghettifunk/directengine/engine/renderer/metadata"
)

type SlotState int

const (
	SlotIdle SlotState = iota
	SlotRecording
	SlotSubmitted
	SlotWaiting
)

func (s SlotState) String() string {
	switch s {
	case SlotRecording:
		return "recording"
	case SlotSubmitted:
		return "submitted"
	case SlotWaiting:
		return "waiting"
	default:
		return "idle"
	}
}

/**
 * @brief Keeps FrameCount frames in flight. Every slot owns a command
 * allocator and the fence value that marks the GPU done with it; the CPU
 * records into a slot only once that value completed.
 */
type FrameSync struct {
	queue     metadata.Queue
	swapchain metadata.Swapchain
	fence     metadata.Fence

	allocators  [metadata.FrameCount]metadata.CommandAllocator
	fenceValues [metadata.FrameCount]uint64
	// value last signaled by the frame recorded in each slot
	signaled   [metadata.FrameCount]uint64
	frameIndex uint32

	mu     sync.Mutex
	states [metadata.FrameCount]SlotState
}

func NewFrameSync(device metadata.Device, queue metadata.Queue, swapchain metadata.Swapchain) (*FrameSync, error) {
	core.Assert(swapchain.BufferCount() == metadata.FrameCount, core.ErrCapacityExceeded,
		"swapchain has %d buffers, frame sync expects %d", swapchain.BufferCount(), metadata.FrameCount)

	fs := &FrameSync{
		queue:     queue,
		swapchain: swapchain,
	}
	for i := range fs.allocators {
		alloc, err := device.CreateCommandAllocator()
		if err != nil {
			fs.Release()
			err = fmt.Errorf("failed to create command allocator %d: %w", i, err)
			core.LogError("%s", err)
			return nil, err
		}
		fs.allocators[i] = alloc
	}

	fs.frameIndex = swapchain.CurrentBackBufferIndex()
	fence, err := device.CreateFence(fs.fenceValues[fs.frameIndex])
	if err != nil {
		fs.Release()
		err = fmt.Errorf("failed to create frame fence: %w", err)
		core.LogError("%s", err)
		return nil, err
	}
	fs.fence = fence
	fs.fenceValues[fs.frameIndex]++
	return fs, nil
}

// BeginFrame opens the current slot for recording and returns its freshly
// reset allocator.
func (fs *FrameSync) BeginFrame() (metadata.CommandAllocator, error) {
	i := fs.frameIndex
	core.Assert(fs.fence.CompletedValue() >= fs.signaled[i], core.ErrFrameSlotBusy,
		"slot %d: fence completed %d, last signaled %d", i, fs.fence.CompletedValue(), fs.signaled[i])
	core.Assert(fs.SlotState(i) != SlotRecording, core.ErrFrameSlotBusy, "slot %d is already recording", i)

	if err := fs.allocators[i].Reset(); err != nil {
		err = fmt.Errorf("%w: failed to reset command allocator %d: %v", core.ErrDeviceLost, i, err)
		core.LogError("%s", err)
		return nil, err
	}
	fs.setState(i, SlotRecording)
	return fs.allocators[i], nil
}

/**
 * @brief Signals the frame just submitted, moves to the back buffer the
 * swapchain picked and blocks until the GPU is done with that slot.
 */
func (fs *FrameSync) MoveToNextFrame(ctx context.Context) error {
	current := fs.fenceValues[fs.frameIndex]
	if err := fs.queue.Signal(fs.fence, current); err != nil {
		return fs.deviceError("signal", err)
	}
	fs.signaled[fs.frameIndex] = current
	fs.setState(fs.frameIndex, SlotSubmitted)

	fs.frameIndex = fs.swapchain.CurrentBackBufferIndex()
	if fs.fence.CompletedValue() < fs.fenceValues[fs.frameIndex] {
		fs.setState(fs.frameIndex, SlotWaiting)
		if err := fs.fence.Wait(ctx, fs.fenceValues[fs.frameIndex]); err != nil {
			return fs.deviceError("wait", err)
		}
	}
	fs.fenceValues[fs.frameIndex] = current + 1
	fs.setState(fs.frameIndex, SlotIdle)
	return nil
}

// WaitForGpu drains the queue.
func (fs *FrameSync) WaitForGpu(ctx context.Context) error {
	value := fs.fenceValues[fs.frameIndex]
	if err := fs.queue.Signal(fs.fence, value); err != nil {
		return fs.deviceError("signal", err)
	}
	if err := fs.fence.Wait(ctx, value); err != nil {
		return fs.deviceError("wait", err)
	}
	fs.signaled[fs.frameIndex] = value
	fs.fenceValues[fs.frameIndex]++

	fs.mu.Lock()
	for i := range fs.states {
		if fs.states[i] != SlotRecording {
			fs.states[i] = SlotIdle
		}
	}
	fs.mu.Unlock()
	return nil
}

/**
 * @brief Called after the swapchain buffers were recreated, with the GPU
 * drained. Every slot continues from the current value.
 */
func (fs *FrameSync) ResetAfterResize() {
	for i := range fs.fenceValues {
		fs.fenceValues[i] = fs.fenceValues[fs.frameIndex]
	}
	fs.frameIndex = fs.swapchain.CurrentBackBufferIndex()
}

func (fs *FrameSync) deviceError(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("frame sync %s: %w", op, err)
	}
	if !errors.Is(err, core.ErrDeviceLost) {
		err = fmt.Errorf("%w: %v", core.ErrDeviceLost, err)
	}
	err = fmt.Errorf("frame sync %s: %w", op, err)
	core.LogError("%s", err)
	return err
}

func (fs *FrameSync) setState(i uint32, s SlotState) {
	fs.mu.Lock()
	fs.states[i] = s
	fs.mu.Unlock()
}

// SlotState may be called from any goroutine.
func (fs *FrameSync) SlotState(i uint32) SlotState {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.states[i]
}

func (fs *FrameSync) FrameIndex() uint32 {
	return fs.frameIndex
}

func (fs *FrameSync) FenceValue(i uint32) uint64 {
	return fs.fenceValues[i]
}

func (fs *FrameSync) Fence() metadata.Fence {
	return fs.fence
}

func (fs *FrameSync) Allocator(i uint32) metadata.CommandAllocator {
	return fs.allocators[i]
}

func (fs *FrameSync) Release() {
	for i, a := range fs.allocators {
		if a != nil {
			a.Release()
			fs.allocators[i] = nil
		}
	}
	if fs.fence != nil {
		fs.fence.Release()
		fs.fence = nil
	}
}
