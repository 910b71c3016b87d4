package metadata

import (
	"context"

	"github.com/google/uuid"
	"github.com/spaghettifunk/directengine/engine/core"
	"github.com/spaghettifunk/directengine/engine/math"
)

// The GPU model the frame core is written against: explicit command lists
// recorded on one thread, a shader-visible descriptor heap addressed by
// monotonically allocated slots, and a queue fence with a monotonically
// increasing completed value. Backends live in renderer/vulkan and
// renderer/software.

/** @brief A slot in a shader-visible descriptor heap. */
type DescriptorHandle struct {
	Index uint32
	CPU   uint64
	GPU   uint64
}

type HeapType int

const (
	/** @brief Device local memory, not CPU visible. */
	HeapTypeDefault HeapType = iota
	/** @brief CPU writable, GPU readable memory. Mapped for its whole lifetime. */
	HeapTypeUpload
)

type BufferUsage uint32

const (
	BufferUsageVertex BufferUsage = 1 << iota
	BufferUsageConstant
	BufferUsageCopySource
	BufferUsageCopyDest
	BufferUsageAccelerationStructure
)

type TextureUsage uint32

const (
	TextureUsageShaderResource TextureUsage = 1 << iota
	TextureUsageRenderTarget
	TextureUsageDepthStencil
	TextureUsageUnorderedAccess
	TextureUsageCopyDest
)

/** @brief The state a resource must be transitioned into before a given use. */
type ResourceState uint32

const (
	ResourceStateCommon ResourceState = iota
	ResourceStateRenderTarget
	ResourceStateDepthWrite
	ResourceStatePixelShaderResource
	ResourceStateUnorderedAccess
	ResourceStatePresent
	ResourceStateCopySource
	ResourceStateCopyDest
	ResourceStateResolveSource
	ResourceStateResolveDest
	ResourceStateVertexAndConstantBuffer
	ResourceStateAccelerationStructure
)

func (s ResourceState) String() string {
	switch s {
	case ResourceStateCommon:
		return "common"
	case ResourceStateRenderTarget:
		return "render-target"
	case ResourceStateDepthWrite:
		return "depth-write"
	case ResourceStatePixelShaderResource:
		return "pixel-shader-resource"
	case ResourceStateUnorderedAccess:
		return "unordered-access"
	case ResourceStatePresent:
		return "present"
	case ResourceStateCopySource:
		return "copy-source"
	case ResourceStateCopyDest:
		return "copy-dest"
	case ResourceStateResolveSource:
		return "resolve-source"
	case ResourceStateResolveDest:
		return "resolve-dest"
	case ResourceStateVertexAndConstantBuffer:
		return "vertex-and-constant-buffer"
	case ResourceStateAccelerationStructure:
		return "acceleration-structure"
	}
	return "unknown"
}

type Format int

const (
	FormatUnknown Format = iota
	FormatRGBA8Unorm
	FormatRGBA8UnormSRGB
	FormatBGRA8Unorm
	FormatRGBA16Float
	FormatRGBA32Float
	FormatR32Float
	FormatD32Float
	FormatBC1UnormSRGB
	FormatBC5Unorm
)

func (f Format) IsDepth() bool {
	return f == FormatD32Float
}

// BlockSize is the byte size of one 4x4 block for compressed formats and 0
// for everything else.
func (f Format) BlockSize() uint32 {
	switch f {
	case FormatBC1UnormSRGB:
		return 8
	case FormatBC5Unorm:
		return 16
	}
	return 0
}

type BufferDesc struct {
	Name         string
	Size         uint64
	Heap         HeapType
	Usage        BufferUsage
	InitialState ResourceState
}

type TextureDesc struct {
	Name         string
	Width        uint32
	Height       uint32
	MipLevels    uint32
	Format       Format
	SampleCount  uint32
	Usage        TextureUsage
	InitialState ResourceState
	ClearColour  [4]float32
	ClearDepth   float32
}

type Resource interface {
	Name() string
	Release()
}

type Buffer interface {
	Resource
	Desc() BufferDesc
	GPUAddress() uint64
	// Map returns the CPU view of an upload buffer. Mapping twice returns the
	// same memory.
	Map() ([]byte, error)
	Unmap()
}

type Texture interface {
	Resource
	Desc() TextureDesc
}

type AccelerationStructure interface {
	Resource
	Kind() AccelerationStructureKind
	GPUAddress() uint64
}

/**
 * @brief A GPU timeline. The completed value only ever increases.
 */
type Fence interface {
	CompletedValue() uint64
	// Wait blocks until the completed value reaches value or ctx is done.
	Wait(ctx context.Context, value uint64) error
	Release()
}

type Queue interface {
	ExecuteCommandLists(lists ...CommandList) error
	// Signal sets the fence to value once all previously submitted work is done.
	Signal(fence Fence, value uint64) error
	Release()
}

type CommandAllocator interface {
	// Reset recycles the memory of every list recorded from this allocator.
	// The GPU must be done with those lists.
	Reset() error
	Release()
}

type Viewport struct {
	X, Y, Width, Height float32
	MinDepth, MaxDepth  float32
}

type ScissorRect struct {
	Left, Top, Right, Bottom int32
}

func FullViewport(width, height uint32) (Viewport, ScissorRect) {
	return Viewport{Width: float32(width), Height: float32(height), MaxDepth: 1},
		ScissorRect{Right: int32(width), Bottom: int32(height)}
}

type LoadOp int

const (
	LoadOpClear LoadOp = iota
	LoadOpLoad
	LoadOpDontCare
)

type RenderPassColourTarget struct {
	Texture     Texture
	Load        LoadOp
	ClearColour [4]float32
}

type RenderPassDepthTarget struct {
	Texture    Texture
	Load       LoadOp
	ClearDepth float32
}

type RenderPassDesc struct {
	Name   string
	Colour []RenderPassColourTarget
	Depth  *RenderPassDepthTarget
}

type VertexBufferView struct {
	Buffer Buffer
	Offset uint64
	Size   uint64
	Stride uint32
}

func (v VertexBufferView) VertexCount() uint32 {
	if v.Stride == 0 {
		return 0
	}
	return uint32(v.Size / uint64(v.Stride))
}

type Topology int

const (
	TopologyTriangleList Topology = iota
	TopologyLineList
)

type TextureCopyFootprint struct {
	Width      uint32
	Height     uint32
	RowPitch   uint64
	SlicePitch uint64
}

type AccelerationStructureKind int

const (
	AccelerationStructureBottomLevel AccelerationStructureKind = iota
	AccelerationStructureTopLevel
)

type AccelerationStructureInstance struct {
	Transform  math.Mat4
	Bottom     AccelerationStructure
	InstanceID uint32
	Mask       uint8
}

type AccelerationStructureDesc struct {
	Name         string
	Kind         AccelerationStructureKind
	VertexCount  uint32
	MaxInstances uint32
}

type BuildAccelerationStructureDesc struct {
	Target    AccelerationStructure
	Geometry  VertexBufferView
	Instances []AccelerationStructureInstance
}

type DispatchRaysDesc struct {
	Width, Height, Depth uint32
}

/**
 * @brief A command list records GPU work on the render thread. Lists are
 * created closed; Reset opens them against an allocator.
 */
type CommandList interface {
	Reset(alloc CommandAllocator) error
	Close() error

	// Named regions for capture tools.
	BeginEvent(name string)
	EndEvent()

	ResourceBarrier(res Resource, before, after ResourceState)
	BeginRenderPass(desc RenderPassDesc)
	EndRenderPass()

	SetPipelineState(pso PipelineState)
	SetDescriptorHeap(heap DescriptorHeap)
	SetViewport(vp Viewport, scissor ScissorRect)
	SetRootConstantBuffer(slot uint32, gpuAddress uint64)
	SetRootDescriptorTable(slot uint32, handle DescriptorHandle)
	SetRootConstants(slot uint32, values []uint32)
	SetVertexBuffer(view VertexBufferView)
	SetPrimitiveTopology(topology Topology)

	Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32)
	Dispatch(x, y, z uint32)
	DispatchRays(desc DispatchRaysDesc)
	BuildAccelerationStructure(desc BuildAccelerationStructureDesc)

	CopyBufferRegion(dst Buffer, dstOffset uint64, src Buffer, srcOffset, size uint64)
	CopyBufferToTexture(dst Texture, src Buffer, srcOffset uint64, footprint TextureCopyFootprint)
	ResolveTexture(dst, src Texture)

	Release()
}

type VertexAttribute struct {
	Semantic   string
	Format     Format
	Components uint32
	Offset     uint32
}

type ShaderBytecode struct {
	Vertex   []byte
	Pixel    []byte
	Raytrace []byte
	Compute  []byte
}

type PipelineDesc struct {
	Name          string
	Kind          ShaderKind
	Bytecode      ShaderBytecode
	ColourFormats []Format
	DepthFormat   Format
	SampleCount   uint32
	CullMode      FaceCullMode
	Wireframe     bool
	DepthTest     bool
	DepthWrite    bool
	AlphaBlend    bool
	Topology      Topology
	VertexStride  uint32
	VertexLayout  []VertexAttribute
	// Number of 32 bit values bound at RootSlotMaterialConstants.
	RootConstantCount uint32
	// Number of textures in the table bound at RootSlotMaterialTextures.
	TextureCount uint32
}

type PipelineState interface {
	// ID changes every time a pipeline is rebuilt.
	ID() uuid.UUID
	Name() string
	Kind() ShaderKind
	Release()
}

type DescriptorHeap interface {
	Capacity() uint32
	// Stride is the distance in bytes between two consecutive handles.
	Stride() uint32
	CPUStart() uint64
	GPUStart() uint64
	CreateConstantBufferView(h DescriptorHandle, buf Buffer)
	CreateShaderResourceView(h DescriptorHandle, tex Texture)
	CreateAccelerationStructureView(h DescriptorHandle, as AccelerationStructure)
	Release()
}

type Swapchain interface {
	BufferCount() uint32
	// CurrentBackBufferIndex is the image the next frame renders into. It is
	// decided by the presentation engine and is not guaranteed to be round robin.
	CurrentBackBufferIndex() uint32
	BackBuffer(i uint32) Texture
	Format() Format
	Width() uint32
	Height() uint32
	Present(vsync bool) error
	// ResizeBuffers recreates the back buffers. Every reference to the old
	// back buffers must be released first.
	ResizeBuffers(width, height uint32) error
	SetWindowMode(mode core.WindowMode) error
	Release()
}

type Device interface {
	Name() string
	SupportsRaytracing() bool

	CreateQueue() (Queue, error)
	CreateFence(initial uint64) (Fence, error)
	CreateCommandAllocator() (CommandAllocator, error)
	CreateCommandList(alloc CommandAllocator) (CommandList, error)
	CreateBuffer(desc BufferDesc) (Buffer, error)
	CreateTexture(desc TextureDesc) (Texture, error)
	CreateDescriptorHeap(capacity uint32) (DescriptorHeap, error)
	CreatePipelineState(desc PipelineDesc) (PipelineState, error)
	CreateAccelerationStructure(desc AccelerationStructureDesc) (AccelerationStructure, error)
	CreateSwapchain(queue Queue, width, height, bufferCount uint32) (Swapchain, error)

	Release()
}
