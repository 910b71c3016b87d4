package renderer

import (
	"github.com/spaghettifunk/directengine/engine/core"
	"github.com/spaghettifunk/directengine/engine/renderer/metadata"
)

/**
 * @brief Hands out slots of the shared shader-visible descriptor heap.
 * Within a level slots are never reused; the cursor only moves forward.
 * A level reset rewinds the cursor to the mark taken once the engine
 * lifetime descriptors were allocated.
 */
type DescriptorAllocator struct {
	heap metadata.DescriptorHeap
	next uint32
}

func NewDescriptorAllocator(heap metadata.DescriptorHeap) *DescriptorAllocator {
	return &DescriptorAllocator{heap: heap}
}

func (a *DescriptorAllocator) Allocate() metadata.DescriptorHandle {
	return a.AllocateRange(1)
}

// AllocateRange reserves count contiguous slots and returns the first one.
func (a *DescriptorAllocator) AllocateRange(count uint32) metadata.DescriptorHandle {
	core.Assert(a.next+count <= a.heap.Capacity(), core.ErrCapacityExceeded,
		"descriptor heap holds %d descriptors, %d in use, %d requested", a.heap.Capacity(), a.next, count)
	h := a.Handle(a.next)
	a.next += count
	return h
}

// Handle computes the handle of slot index without allocating it.
func (a *DescriptorAllocator) Handle(index uint32) metadata.DescriptorHandle {
	stride := uint64(a.heap.Stride())
	return metadata.DescriptorHandle{
		Index: index,
		CPU:   a.heap.CPUStart() + uint64(index)*stride,
		GPU:   a.heap.GPUStart() + uint64(index)*stride,
	}
}

func (a *DescriptorAllocator) Heap() metadata.DescriptorHeap {
	return a.heap
}

func (a *DescriptorAllocator) Used() uint32 {
	return a.next
}

// Mark returns the cursor, to be passed to Rewind later.
func (a *DescriptorAllocator) Mark() uint32 {
	return a.next
}

// Rewind frees every slot allocated after mark. Views in those slots must
// not be referenced by work the GPU has not finished.
func (a *DescriptorAllocator) Rewind(mark uint32) {
	core.Assert(mark <= a.next, core.ErrInvalidHandle, "descriptor mark %d is past the cursor %d", mark, a.next)
	a.next = mark
}
