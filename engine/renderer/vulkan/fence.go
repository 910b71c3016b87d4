package vulkan

import (
	"context"
	"fmt"
	"sync"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/directengine/engine/core"
	"github.com/spaghettifunk/directengine/engine/renderer/metadata"
)

// How long a single wait blocks before the context is checked again.
const fenceWaitSliceNs = 2_000_000

type pendingSignal struct {
	value  uint64
	handle vk.Fence
}

/**
 * @brief A monotonically increasing GPU timeline built from binary fences:
 * every Signal submits one vk.Fence tagged with its value, and the completed
 * value advances as those fences are observed in submission order.
 */
type Fence struct {
	device *Device

	mu        sync.Mutex
	completed uint64
	pending   []pendingSignal
	free      []vk.Fence
}

func (f *Fence) CompletedValue() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.poll()
	return f.completed
}

// poll retires every signalled fence at the front of the queue. Callers hold mu.
func (f *Fence) poll() {
	for len(f.pending) > 0 {
		p := f.pending[0]
		if vk.GetFenceStatus(f.device.LogicalDevice, p.handle) != vk.Success {
			return
		}
		f.retire(p)
	}
}

func (f *Fence) retire(p pendingSignal) {
	if p.value > f.completed {
		f.completed = p.value
	}
	vk.ResetFences(f.device.LogicalDevice, 1, []vk.Fence{p.handle})
	f.free = append(f.free, p.handle)
	f.pending = f.pending[1:]
}

func (f *Fence) Wait(ctx context.Context, value uint64) error {
	for {
		f.mu.Lock()
		f.poll()
		if f.completed >= value {
			f.mu.Unlock()
			return nil
		}
		if len(f.pending) == 0 {
			f.mu.Unlock()
			return fmt.Errorf("fence value %d was never signalled: %w", value, core.ErrInvalidHandle)
		}
		p := f.pending[0]
		f.mu.Unlock()

		switch res := vk.WaitForFences(f.device.LogicalDevice, 1, []vk.Fence{p.handle}, vk.True, fenceWaitSliceNs); res {
		case vk.Success, vk.Timeout:
		default:
			return check(res, "vkWaitForFences")
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

func (f *Fence) push(value uint64) (vk.Fence, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var handle vk.Fence
	if n := len(f.free); n > 0 {
		handle = f.free[n-1]
		f.free = f.free[:n-1]
	} else {
		info := vk.FenceCreateInfo{SType: vk.StructureTypeFenceCreateInfo}
		if err := check(vk.CreateFence(f.device.LogicalDevice, &info, nil, &handle), "vkCreateFence"); err != nil {
			return nil, err
		}
	}
	f.pending = append(f.pending, pendingSignal{value: value, handle: handle})
	return handle, nil
}

func (f *Fence) Release() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.pending {
		vk.WaitForFences(f.device.LogicalDevice, 1, []vk.Fence{p.handle}, vk.True, ^uint64(0))
		vk.DestroyFence(f.device.LogicalDevice, p.handle, nil)
	}
	for _, h := range f.free {
		vk.DestroyFence(f.device.LogicalDevice, h, nil)
	}
	f.pending, f.free = nil, nil
}

/**
 * @brief The graphics queue. When a swapchain is attached, the first
 * submission after an acquire waits for the image and signals the
 * semaphore presentation waits on.
 */
type Queue struct {
	device    *Device
	swapchain *Swapchain
}

func (q *Queue) ExecuteCommandLists(lists ...metadata.CommandList) error {
	buffers := make([]vk.CommandBuffer, 0, len(lists))
	touches := false
	for _, l := range lists {
		cl, ok := l.(*CommandList)
		if !ok {
			return fmt.Errorf("command list %T does not belong to the vulkan device: %w", l, core.ErrInvalidHandle)
		}
		if cl.recording {
			return fmt.Errorf("command list executed while still open: %w", core.ErrInvalidHandle)
		}
		buffers = append(buffers, cl.handle)
		touches = touches || cl.touchesBackBuffer
	}
	submit := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: uint32(len(buffers)),
		PCommandBuffers:    buffers,
	}
	if q.swapchain != nil && touches {
		if wait, signal, ok := q.swapchain.takeSemaphores(); ok {
			submit.WaitSemaphoreCount = 1
			submit.PWaitSemaphores = []vk.Semaphore{wait}
			submit.PWaitDstStageMask = []vk.PipelineStageFlags{vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)}
			submit.SignalSemaphoreCount = 1
			submit.PSignalSemaphores = []vk.Semaphore{signal}
		}
	}
	return q.device.locks.SafeCall(QueueManagement, func() error {
		return check(vk.QueueSubmit(q.device.GraphicsQueue, 1, []vk.SubmitInfo{submit}, nil), "vkQueueSubmit")
	})
}

func (q *Queue) Signal(fence metadata.Fence, value uint64) error {
	f, ok := fence.(*Fence)
	if !ok {
		return fmt.Errorf("fence %T does not belong to the vulkan device: %w", fence, core.ErrInvalidHandle)
	}
	handle, err := f.push(value)
	if err != nil {
		return err
	}
	return q.device.locks.SafeCall(QueueManagement, func() error {
		return check(vk.QueueSubmit(q.device.GraphicsQueue, 0, nil, handle), "vkQueueSubmit")
	})
}

func (q *Queue) Release() {
	q.device.locks.SafeCall(QueueManagement, func() error {
		vk.QueueWaitIdle(q.device.GraphicsQueue)
		return nil
	})
}
