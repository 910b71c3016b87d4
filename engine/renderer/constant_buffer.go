package renderer

import (
	"fmt"
	"unsafe"

	"github.com/spaghettifunk/directengine/engine/core"
	"github.com/spaghettifunk/directengine/engine/memory"
	"github.com/spaghettifunk/directengine/engine/renderer/metadata"
)

/**
 * @brief A constant buffer with one upload buffer per frame in flight.
 * The CPU writes Data freely; UploadData copies it into the copy the
 * given frame slot reads, which the GPU is guaranteed to be done with.
 */
type ConstantBuffer[T any] struct {
	Data *T

	name    string
	size    uint64
	buffers [metadata.FrameCount]metadata.Buffer
	mapped  [metadata.FrameCount][]byte
	views   [metadata.FrameCount]metadata.DescriptorHandle
}

/**
 * @brief Creates the per frame buffers for T, mapped once for their whole
 * lifetime. data may be nil, in which case a zero T is allocated.
 * The buffer is tracked in stack when it is not nil.
 */
func NewConstantBuffer[T any](device metadata.Device, descriptors *DescriptorAllocator, stack *memory.ResourceStack, name string, data *T) (*ConstantBuffer[T], error) {
	if data == nil {
		data = new(T)
	}
	size := uint64(unsafe.Sizeof(*data))
	core.Assert(size > 0 && size%metadata.ConstantBufferAlignment == 0, core.ErrInvalidAlignment,
		"constant buffer %s: %d bytes is not a multiple of %d", name, size, metadata.ConstantBufferAlignment)

	cb := &ConstantBuffer[T]{Data: data, name: name, size: size}
	for i := range cb.buffers {
		buf, err := device.CreateBuffer(metadata.BufferDesc{
			Name:         fmt.Sprintf("%s [%d]", name, i),
			Size:         size,
			Heap:         metadata.HeapTypeUpload,
			Usage:        metadata.BufferUsageConstant,
			InitialState: metadata.ResourceStateVertexAndConstantBuffer,
		})
		if err != nil {
			cb.Release()
			err = fmt.Errorf("failed to create constant buffer %s: %w", name, err)
			core.LogError("%s", err)
			return nil, err
		}
		cb.buffers[i] = buf
		mapped, err := buf.Map()
		if err != nil {
			cb.Release()
			err = fmt.Errorf("failed to map constant buffer %s: %w", name, err)
			core.LogError("%s", err)
			return nil, err
		}
		cb.mapped[i] = mapped
		if descriptors != nil {
			cb.views[i] = descriptors.Allocate()
			descriptors.Heap().CreateConstantBufferView(cb.views[i], buf)
		}
	}
	if stack != nil {
		stack.Track(cb)
	}
	return cb, nil
}

func (cb *ConstantBuffer[T]) UploadData(frameIndex uint32) {
	src := unsafe.Slice((*byte)(unsafe.Pointer(cb.Data)), cb.size)
	copy(cb.mapped[frameIndex], src)
}

func (cb *ConstantBuffer[T]) GPUAddress(frameIndex uint32) uint64 {
	return cb.buffers[frameIndex].GPUAddress()
}

func (cb *ConstantBuffer[T]) View(frameIndex uint32) metadata.DescriptorHandle {
	return cb.views[frameIndex]
}

func (cb *ConstantBuffer[T]) Buffer(frameIndex uint32) metadata.Buffer {
	return cb.buffers[frameIndex]
}

func (cb *ConstantBuffer[T]) Name() string {
	return cb.name
}

func (cb *ConstantBuffer[T]) Release() {
	for i, b := range cb.buffers {
		if b == nil {
			continue
		}
		if cb.mapped[i] != nil {
			b.Unmap()
			cb.mapped[i] = nil
		}
		b.Release()
		cb.buffers[i] = nil
	}
}
