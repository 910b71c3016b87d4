package software

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/spaghettifunk/directengine/engine/core"
	"github.com/spaghettifunk/directengine/engine/memory"
	"github.com/spaghettifunk/directengine/engine/renderer/metadata"
)

// Device is a headless implementation of the GPU model. Commands are
// recorded and executed on the CPU: copies move bytes, everything else is
// logged so tests can inspect what a frame submitted.
type Device struct {
	mu sync.Mutex

	manual     bool
	raytracing bool
	lost       bool

	nextAddress uint64
	pending     []pendingSignal
	executed    []Command
	validation  []error
	pipelines   int

	swapchain *Swapchain
}

type Option func(*Device)

// WithManualFences keeps every queue signal pending until Advance or
// AdvanceAll is called.
func WithManualFences() Option {
	return func(d *Device) {
		d.manual = true
	}
}

func WithRaytracing() Option {
	return func(d *Device) {
		d.raytracing = true
	}
}

func NewDevice(opts ...Option) *Device {
	d := &Device{nextAddress: 0x10000}
	for _, opt := range opts {
		opt(d)
	}
	core.LogDebug("software device created (manual fences: %t, raytracing: %t)", d.manual, d.raytracing)
	return d
}

func (d *Device) Name() string {
	return "software"
}

func (d *Device) SupportsRaytracing() bool {
	return d.raytracing
}

func (d *Device) allocAddress(size uint64) uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	addr := d.nextAddress
	d.nextAddress += memory.Align(max(size, 1), uint64(metadata.ConstantBufferAlignment))
	return addr
}

func (d *Device) CreateQueue() (metadata.Queue, error) {
	return &Queue{device: d}, nil
}

func (d *Device) CreateFence(initial uint64) (metadata.Fence, error) {
	return newFence(initial), nil
}

func (d *Device) CreateCommandAllocator() (metadata.CommandAllocator, error) {
	return &CommandAllocator{resource: resource{id: uuid.New(), name: "command allocator"}}, nil
}

func (d *Device) CreateCommandList(alloc metadata.CommandAllocator) (metadata.CommandList, error) {
	a, ok := alloc.(*CommandAllocator)
	if !ok {
		return nil, errForeignObject(alloc)
	}
	return &CommandList{
		resource:  resource{id: uuid.New(), name: "command list"},
		device:    d,
		allocator: a,
	}, nil
}

func (d *Device) CreateBuffer(desc metadata.BufferDesc) (metadata.Buffer, error) {
	if desc.Size == 0 {
		return nil, fmt.Errorf("buffer %s has zero size", desc.Name)
	}
	state := desc.InitialState
	if desc.Heap == metadata.HeapTypeUpload {
		// upload heaps live in the generic read state
		state = metadata.ResourceStateCommon
	}
	return &Buffer{
		resource: resource{id: uuid.New(), name: desc.Name, state: state},
		desc:     desc,
		address:  d.allocAddress(desc.Size),
		data:     make([]byte, desc.Size),
	}, nil
}

func (d *Device) CreateTexture(desc metadata.TextureDesc) (metadata.Texture, error) {
	if desc.Width == 0 || desc.Height == 0 {
		return nil, fmt.Errorf("texture %s has zero extent %dx%d", desc.Name, desc.Width, desc.Height)
	}
	if desc.SampleCount == 0 {
		desc.SampleCount = 1
	}
	if desc.MipLevels == 0 {
		desc.MipLevels = 1
	}
	return &Texture{
		resource: resource{id: uuid.New(), name: desc.Name, state: desc.InitialState},
		desc:     desc,
	}, nil
}

func (d *Device) CreateDescriptorHeap(capacity uint32) (metadata.DescriptorHeap, error) {
	return &DescriptorHeap{
		resource: resource{id: uuid.New(), name: "descriptor heap"},
		capacity: capacity,
		cpuStart: 0x1000_0000,
		gpuStart: 0x2000_0000,
		views:    make(map[uint32]view, capacity),
	}, nil
}

func (d *Device) CreatePipelineState(desc metadata.PipelineDesc) (metadata.PipelineState, error) {
	switch desc.Kind {
	case metadata.ShaderKindRaster:
		if len(desc.Bytecode.Vertex) == 0 || len(desc.Bytecode.Pixel) == 0 {
			return nil, fmt.Errorf("pipeline %s: raster pipelines need vertex and pixel bytecode", desc.Name)
		}
	case metadata.ShaderKindCompute:
		if len(desc.Bytecode.Compute) == 0 {
			return nil, fmt.Errorf("pipeline %s: missing compute bytecode", desc.Name)
		}
	case metadata.ShaderKindRaytrace:
		if !d.raytracing {
			return nil, fmt.Errorf("pipeline %s: %w", desc.Name, core.ErrUnsupported)
		}
		if len(desc.Bytecode.Raytrace) == 0 {
			return nil, fmt.Errorf("pipeline %s: missing raytracing bytecode", desc.Name)
		}
	}
	d.mu.Lock()
	d.pipelines++
	d.mu.Unlock()
	return &PipelineState{
		resource: resource{id: uuid.New(), name: desc.Name},
		desc:     desc,
	}, nil
}

func (d *Device) CreateAccelerationStructure(desc metadata.AccelerationStructureDesc) (metadata.AccelerationStructure, error) {
	if !d.raytracing {
		return nil, fmt.Errorf("acceleration structure %s: %w", desc.Name, core.ErrUnsupported)
	}
	return &AccelerationStructure{
		resource: resource{id: uuid.New(), name: desc.Name, state: metadata.ResourceStateAccelerationStructure},
		desc:     desc,
		address:  d.allocAddress(uint64(desc.VertexCount+desc.MaxInstances) * 64),
	}, nil
}

func (d *Device) CreateSwapchain(queue metadata.Queue, width, height, bufferCount uint32) (metadata.Swapchain, error) {
	if bufferCount == 0 {
		return nil, fmt.Errorf("swapchain needs at least one buffer")
	}
	sc := &Swapchain{
		device:  d,
		buffers: make([]*Texture, bufferCount),
		width:   width,
		height:  height,
		mode:    core.WindowModeWindowed,
	}
	sc.createBuffers()
	d.swapchain = sc
	return sc, nil
}

func (d *Device) Release() {
	core.LogDebug("software device released")
}

func (d *Device) execute(cl *CommandList) error {
	if cl.open {
		return fmt.Errorf("executing command list %s that is still recording", cl.name)
	}
	d.mu.Lock()
	lost := d.lost
	d.mu.Unlock()
	if lost {
		return fmt.Errorf("execute: %w", core.ErrDeviceLost)
	}
	for _, cmd := range cl.commands {
		switch cmd.Op {
		case OpCopyBuffer:
			src := cmd.Src.(*Buffer)
			dst := cmd.Dst.(*Buffer)
			copy(dst.data[cmd.DstOffset:cmd.DstOffset+cmd.Size], src.data[cmd.SrcOffset:cmd.SrcOffset+cmd.Size])
		case OpCopyBufferToTexture:
			cmd.Dst.(*Texture).uploaded += cmd.Size
		case OpBuildAccelerationStructure:
			if as, ok := cmd.Build.Target.(*AccelerationStructure); ok {
				as.builds++
				as.instances = len(cmd.Build.Instances)
			}
		}
	}
	d.mu.Lock()
	d.executed = append(d.executed, cl.commands...)
	d.mu.Unlock()
	return nil
}

func (d *Device) signal(f *Fence, value uint64) error {
	d.mu.Lock()
	if d.lost {
		d.mu.Unlock()
		return fmt.Errorf("signal: %w", core.ErrDeviceLost)
	}
	if !d.manual {
		d.mu.Unlock()
		f.complete(value)
		return nil
	}
	d.pending = append(d.pending, pendingSignal{fence: f, value: value})
	d.mu.Unlock()
	return nil
}

// Advance completes the n oldest pending signals, in submission order.
func (d *Device) Advance(n int) {
	d.mu.Lock()
	if n > len(d.pending) {
		n = len(d.pending)
	}
	done := append([]pendingSignal(nil), d.pending[:n]...)
	d.pending = d.pending[n:]
	d.mu.Unlock()
	for _, p := range done {
		p.fence.complete(p.value)
	}
}

func (d *Device) AdvanceAll() {
	d.Advance(d.Pending())
}

func (d *Device) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Lose makes every later submission fail with core.ErrDeviceLost.
func (d *Device) Lose() {
	d.mu.Lock()
	d.lost = true
	d.mu.Unlock()
}

func (d *Device) isLost() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lost
}

// Executed returns every command executed since the last ClearExecuted.
func (d *Device) Executed() []Command {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Command(nil), d.executed...)
}

func (d *Device) ClearExecuted() {
	d.mu.Lock()
	d.executed = nil
	d.mu.Unlock()
}

// DrawCount counts executed draws recorded while event was the innermost
// open event.
func (d *Device) DrawCount(event string) int {
	n := 0
	for _, cmd := range d.Executed() {
		if cmd.Op == OpDraw && cmd.Event == event {
			n++
		}
	}
	return n
}

func (d *Device) CountOp(op Op) int {
	n := 0
	for _, cmd := range d.Executed() {
		if cmd.Op == op {
			n++
		}
	}
	return n
}

func (d *Device) PipelinesCreated() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pipelines
}

// Swapchain returns the last swapchain created on this device.
func (d *Device) Swapchain() *Swapchain {
	return d.swapchain
}

// ValidationErrors lists every misuse of the GPU model seen so far.
func (d *Device) ValidationErrors() []error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]error(nil), d.validation...)
}

func (d *Device) reportf(format string, args ...interface{}) {
	err := fmt.Errorf(format, args...)
	core.LogWarn("software device: %s", err)
	d.mu.Lock()
	d.validation = append(d.validation, err)
	d.mu.Unlock()
}

func errForeignObject(v interface{}) error {
	return fmt.Errorf("%T does not belong to the software device: %w", v, core.ErrInvalidHandle)
}

func errNotMappable(name string) error {
	return fmt.Errorf("buffer %s is not in an upload heap: %w", name, core.ErrUnsupported)
}
