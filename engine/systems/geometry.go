package systems

import (
	"fmt"
	"unsafe"

	"github.com/spaghettifunk/directengine/engine/core"
	"github.com/spaghettifunk/directengine/engine/math"
	"github.com/spaghettifunk/directengine/engine/memory"
	"github.com/spaghettifunk/directengine/engine/renderer"
	"github.com/spaghettifunk/directengine/engine/renderer/metadata"
)

// VertexStride is the size of one math.Vertex3D in the vertex buffer.
const VertexStride = uint32(unsafe.Sizeof(math.Vertex3D{}))

type GeometrySystemConfig struct {
	/** @brief Capacity of the shared vertex buffer, in vertices. */
	MaxVertices uint32
}

/**
 * @brief The shared geometry buffer. Meshes append their vertices to a
 * persistently mapped upload buffer; the dirty range is copied into the
 * device local vertex buffer at the start of the next recorded frame.
 */
type GeometrySystem struct {
	Config *GeometrySystemConfig

	upload   metadata.Buffer
	mapped   []byte
	vertices metadata.Buffer

	// Vertices appended so far.
	used uint32
	// Range of vertices not yet copied to the vertex buffer.
	dirtyFirst uint32
	dirtyEnd   uint32
}

func NewGeometrySystem(config *GeometrySystemConfig, ctx *renderer.Context) (*GeometrySystem, error) {
	if config.MaxVertices == 0 {
		err := fmt.Errorf("func NewGeometrySystem - config.MaxVertices must be > 0")
		core.LogError("%s", err)
		return nil, err
	}
	size := uint64(config.MaxVertices) * uint64(VertexStride)

	upload, err := ctx.Device.CreateBuffer(metadata.BufferDesc{
		Name:         "geometry upload",
		Size:         size,
		Heap:         metadata.HeapTypeUpload,
		Usage:        metadata.BufferUsageCopySource,
		InitialState: metadata.ResourceStateCopySource,
	})
	if err != nil {
		err = fmt.Errorf("failed to create geometry upload buffer: %w", err)
		core.LogError("%s", err)
		return nil, err
	}
	ctx.Scopes.Track(memory.ScopeEngine, upload)

	mapped, err := upload.Map()
	if err != nil {
		return nil, fmt.Errorf("failed to map geometry upload buffer: %w", err)
	}

	vertices, err := ctx.Device.CreateBuffer(metadata.BufferDesc{
		Name:         "geometry vertices",
		Size:         size,
		Heap:         metadata.HeapTypeDefault,
		Usage:        metadata.BufferUsageVertex | metadata.BufferUsageCopyDest,
		InitialState: metadata.ResourceStateVertexAndConstantBuffer,
	})
	if err != nil {
		err = fmt.Errorf("failed to create geometry vertex buffer: %w", err)
		core.LogError("%s", err)
		return nil, err
	}
	ctx.Scopes.Track(memory.ScopeEngine, vertices)

	core.LogDebug("geometry buffer created for %d vertices (%d bytes)", config.MaxVertices, size)
	return &GeometrySystem{
		Config:   config,
		upload:   upload,
		mapped:   mapped,
		vertices: vertices,
	}, nil
}

/**
 * @brief Appends vertices to the shared buffer and returns the view that
 * draws them. Panics when the buffer is full.
 */
func (gs *GeometrySystem) Append(vertices []math.Vertex3D) (metadata.VertexBufferView, uint32) {
	count := uint32(len(vertices))
	core.Assert(gs.used+count <= gs.Config.MaxVertices, core.ErrCapacityExceeded,
		"geometry buffer holds %d vertices, %d used, %d requested", gs.Config.MaxVertices, gs.used, count)

	first := gs.used
	offset := uint64(first) * uint64(VertexStride)
	size := uint64(count) * uint64(VertexStride)
	if count > 0 {
		src := unsafe.Slice((*byte)(unsafe.Pointer(&vertices[0])), size)
		copy(gs.mapped[offset:offset+size], src)
	}

	if gs.dirtyEnd == gs.dirtyFirst {
		gs.dirtyFirst = first
	}
	gs.used += count
	gs.dirtyEnd = gs.used

	return metadata.VertexBufferView{
		Buffer: gs.vertices,
		Offset: offset,
		Size:   size,
		Stride: VertexStride,
	}, first
}

// Dirty reports whether appended vertices still need to be copied.
func (gs *GeometrySystem) Dirty() bool {
	return gs.dirtyEnd > gs.dirtyFirst
}

/**
 * @brief Records the copy of every vertex appended since the last flush.
 */
func (gs *GeometrySystem) Flush(cl metadata.CommandList) {
	if !gs.Dirty() {
		return
	}
	offset := uint64(gs.dirtyFirst) * uint64(VertexStride)
	size := uint64(gs.dirtyEnd-gs.dirtyFirst) * uint64(VertexStride)

	cl.ResourceBarrier(gs.vertices, metadata.ResourceStateVertexAndConstantBuffer, metadata.ResourceStateCopyDest)
	cl.CopyBufferRegion(gs.vertices, offset, gs.upload, offset, size)
	cl.ResourceBarrier(gs.vertices, metadata.ResourceStateCopyDest, metadata.ResourceStateVertexAndConstantBuffer)

	gs.dirtyFirst = gs.dirtyEnd
}

// Reset forgets every vertex. Meshes created before are invalid afterwards.
func (gs *GeometrySystem) Reset() {
	gs.used = 0
	gs.dirtyFirst = 0
	gs.dirtyEnd = 0
}

func (gs *GeometrySystem) Used() uint32 {
	return gs.used
}

func (gs *GeometrySystem) VertexBuffer() metadata.Buffer {
	return gs.vertices
}

func (gs *GeometrySystem) Shutdown() error {
	gs.upload.Unmap()
	gs.mapped = nil
	return nil
}
