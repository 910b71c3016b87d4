package renderer

import (
	"fmt"
	"unsafe"

	"github.com/spaghettifunk/directengine/engine/core"
	"github.com/spaghettifunk/directengine/engine/memory"
	"github.com/spaghettifunk/directengine/engine/renderer/metadata"
)

/**
 * @brief A vertex buffer rewritten every frame, such as debug lines or the
 * UI overlay. Like ConstantBuffer it keeps one mapped upload buffer per
 * frame in flight, so writing a slot never races the GPU.
 */
type DynamicVertexBuffer[T any] struct {
	name     string
	stride   uint32
	capacity uint32
	buffers  [metadata.FrameCount]metadata.Buffer
	mapped   [metadata.FrameCount][]byte
}

func NewDynamicVertexBuffer[T any](device metadata.Device, stack *memory.ResourceStack, name string, capacity uint32) (*DynamicVertexBuffer[T], error) {
	var zero T
	stride := uint32(unsafe.Sizeof(zero))
	core.Assert(stride > 0 && capacity > 0, core.ErrInvalidHandle, "dynamic buffer %s needs a stride and a capacity", name)

	db := &DynamicVertexBuffer[T]{name: name, stride: stride, capacity: capacity}
	for i := range db.buffers {
		buf, err := device.CreateBuffer(metadata.BufferDesc{
			Name:         fmt.Sprintf("%s [%d]", name, i),
			Size:         uint64(stride) * uint64(capacity),
			Heap:         metadata.HeapTypeUpload,
			Usage:        metadata.BufferUsageVertex,
			InitialState: metadata.ResourceStateVertexAndConstantBuffer,
		})
		if err != nil {
			db.Release()
			err = fmt.Errorf("failed to create dynamic buffer %s: %w", name, err)
			core.LogError("%s", err)
			return nil, err
		}
		db.buffers[i] = buf
		mapped, err := buf.Map()
		if err != nil {
			db.Release()
			err = fmt.Errorf("failed to map dynamic buffer %s: %w", name, err)
			core.LogError("%s", err)
			return nil, err
		}
		db.mapped[i] = mapped
	}
	if stack != nil {
		stack.Track(db)
	}
	return db, nil
}

/**
 * @brief Copies vertices into the copy for frameIndex and returns the view
 * that draws them. Panics when there are more vertices than capacity.
 */
func (db *DynamicVertexBuffer[T]) Write(frameIndex uint32, vertices []T) metadata.VertexBufferView {
	count := uint32(len(vertices))
	core.Assert(count <= db.capacity, core.ErrCapacityExceeded, "dynamic buffer %s holds %d vertices, got %d", db.name, db.capacity, count)

	size := uint64(count) * uint64(db.stride)
	if count > 0 {
		src := unsafe.Slice((*byte)(unsafe.Pointer(&vertices[0])), size)
		copy(db.mapped[frameIndex], src)
	}
	return metadata.VertexBufferView{
		Buffer: db.buffers[frameIndex],
		Size:   size,
		Stride: db.stride,
	}
}

func (db *DynamicVertexBuffer[T]) Capacity() uint32 {
	return db.capacity
}

func (db *DynamicVertexBuffer[T]) Stride() uint32 {
	return db.stride
}

func (db *DynamicVertexBuffer[T]) Release() {
	for i, b := range db.buffers {
		if b == nil {
			continue
		}
		if db.mapped[i] != nil {
			b.Unmap()
			db.mapped[i] = nil
		}
		b.Release()
		db.buffers[i] = nil
	}
}
