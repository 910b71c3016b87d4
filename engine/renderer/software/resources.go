package software

import (
	"github.com/google/uuid"
	"github.com/spaghettifunk/directengine/engine/renderer/metadata"
)

type resource struct {
	id       uuid.UUID
	name     string
	state    metadata.ResourceState
	released bool
}

func (r *resource) Name() string {
	return r.name
}

func (r *resource) ID() uuid.UUID {
	return r.id
}

func (r *resource) Released() bool {
	return r.released
}

func (r *resource) Release() {
	r.released = true
}

type Buffer struct {
	resource
	desc    metadata.BufferDesc
	address uint64
	data    []byte
	mapped  bool
}

func (b *Buffer) Desc() metadata.BufferDesc {
	return b.desc
}

func (b *Buffer) GPUAddress() uint64 {
	return b.address
}

func (b *Buffer) Map() ([]byte, error) {
	if b.desc.Heap != metadata.HeapTypeUpload {
		return nil, errNotMappable(b.name)
	}
	b.mapped = true
	return b.data, nil
}

func (b *Buffer) Unmap() {
	b.mapped = false
}

// Bytes exposes the contents of any buffer, device local included.
func (b *Buffer) Bytes() []byte {
	return b.data
}

type Texture struct {
	resource
	desc metadata.TextureDesc
	// Bytes copied in through CopyBufferToTexture.
	uploaded uint64
}

func (t *Texture) Desc() metadata.TextureDesc {
	return t.desc
}

func (t *Texture) State() metadata.ResourceState {
	return t.state
}

func (t *Texture) UploadedBytes() uint64 {
	return t.uploaded
}

type AccelerationStructure struct {
	resource
	desc    metadata.AccelerationStructureDesc
	address uint64
	builds  int
	// instance count of the last top level build
	instances int
}

func (a *AccelerationStructure) Kind() metadata.AccelerationStructureKind {
	return a.desc.Kind
}

func (a *AccelerationStructure) GPUAddress() uint64 {
	return a.address
}

func (a *AccelerationStructure) Builds() int {
	return a.builds
}

func (a *AccelerationStructure) Instances() int {
	return a.instances
}

type PipelineState struct {
	resource
	desc metadata.PipelineDesc
}

func (p *PipelineState) Kind() metadata.ShaderKind {
	return p.desc.Kind
}

func (p *PipelineState) Desc() metadata.PipelineDesc {
	return p.desc
}

type CommandAllocator struct {
	resource
	resets int
}

func (a *CommandAllocator) Reset() error {
	a.resets++
	return nil
}

// Resets counts how many times the allocator was recycled.
func (a *CommandAllocator) Resets() int {
	return a.resets
}

type view struct {
	buffer  metadata.Buffer
	texture metadata.Texture
	as      metadata.AccelerationStructure
}

type DescriptorHeap struct {
	resource
	capacity uint32
	cpuStart uint64
	gpuStart uint64
	views    map[uint32]view
}

const descriptorStride = 32

func (h *DescriptorHeap) Capacity() uint32 {
	return h.capacity
}

func (h *DescriptorHeap) Stride() uint32 {
	return descriptorStride
}

func (h *DescriptorHeap) CPUStart() uint64 {
	return h.cpuStart
}

func (h *DescriptorHeap) GPUStart() uint64 {
	return h.gpuStart
}

func (h *DescriptorHeap) CreateConstantBufferView(d metadata.DescriptorHandle, buf metadata.Buffer) {
	h.views[d.Index] = view{buffer: buf}
}

func (h *DescriptorHeap) CreateShaderResourceView(d metadata.DescriptorHandle, tex metadata.Texture) {
	h.views[d.Index] = view{texture: tex}
}

func (h *DescriptorHeap) CreateAccelerationStructureView(d metadata.DescriptorHandle, as metadata.AccelerationStructure) {
	h.views[d.Index] = view{as: as}
}

// ViewBuffer returns the buffer a constant buffer view at index points at.
func (h *DescriptorHeap) ViewBuffer(index uint32) metadata.Buffer {
	return h.views[index].buffer
}

// ViewTexture returns the texture a shader resource view at index points at.
func (h *DescriptorHeap) ViewTexture(index uint32) metadata.Texture {
	return h.views[index].texture
}
