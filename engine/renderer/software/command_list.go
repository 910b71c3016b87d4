package software

import (
	"fmt"
	"strings"

	"github.com/spaghettifunk/directengine/engine/renderer/metadata"
)

type Op int

const (
	OpBarrier Op = iota
	OpBeginRenderPass
	OpEndRenderPass
	OpDraw
	OpDispatch
	OpDispatchRays
	OpBuildAccelerationStructure
	OpCopyBuffer
	OpCopyBufferToTexture
	OpResolve
)

func (o Op) String() string {
	switch o {
	case OpBarrier:
		return "barrier"
	case OpBeginRenderPass:
		return "begin-render-pass"
	case OpEndRenderPass:
		return "end-render-pass"
	case OpDraw:
		return "draw"
	case OpDispatch:
		return "dispatch"
	case OpDispatchRays:
		return "dispatch-rays"
	case OpBuildAccelerationStructure:
		return "build-acceleration-structure"
	case OpCopyBuffer:
		return "copy-buffer"
	case OpCopyBufferToTexture:
		return "copy-buffer-to-texture"
	case OpResolve:
		return "resolve"
	}
	return "unknown"
}

/**
 * @brief A recorded command. Draws snapshot the bound state so tests can
 * check what a shader would have seen.
 */
type Command struct {
	Op Op

	// Innermost event open when the command was recorded.
	Event     string
	// Every open event, outermost first, joined with "/".
	EventPath string

	Pipeline      *PipelineState
	RenderPass    string
	VertexBuffer  metadata.VertexBufferView
	VertexCount   uint32
	InstanceCount uint32
	FirstVertex   uint32
	RootCBVs      map[uint32]uint64
	RootConstants map[uint32][]uint32

	// copies and barriers
	Resource  metadata.Resource
	Before    metadata.ResourceState
	After     metadata.ResourceState
	Src, Dst  metadata.Resource
	SrcOffset uint64
	DstOffset uint64
	Size      uint64
	Build     metadata.BuildAccelerationStructureDesc
}

/**
 * @brief Records commands into a slice. Barriers are validated against the
 * state each resource is tracked in; mismatches are reported by the device.
 */
type CommandList struct {
	resource
	device    *Device
	allocator *CommandAllocator
	open      bool
	commands  []Command

	events   []string
	inPass   bool
	pass     string
	pipeline *PipelineState
	vb       metadata.VertexBufferView
	cbvs     map[uint32]uint64
	consts   map[uint32][]uint32
}

func (c *CommandList) Reset(alloc metadata.CommandAllocator) error {
	a, ok := alloc.(*CommandAllocator)
	if !ok {
		return errForeignObject(alloc)
	}
	if c.open {
		return fmt.Errorf("command list %s reset while recording", c.name)
	}
	c.allocator = a
	c.open = true
	c.commands = c.commands[:0]
	c.events = c.events[:0]
	c.inPass = false
	c.pipeline = nil
	c.vb = metadata.VertexBufferView{}
	c.cbvs = map[uint32]uint64{}
	c.consts = map[uint32][]uint32{}
	return nil
}

func (c *CommandList) Close() error {
	if !c.open {
		return fmt.Errorf("command list %s closed twice", c.name)
	}
	if len(c.events) > 0 {
		c.device.reportf("command list %s closed with open events %v", c.name, c.events)
	}
	if c.inPass {
		c.device.reportf("command list %s closed inside render pass %s", c.name, c.pass)
	}
	c.open = false
	return nil
}

func (c *CommandList) Commands() []Command {
	return c.commands
}

func (c *CommandList) record(cmd Command) {
	if !c.open {
		c.device.reportf("%s recorded on closed command list %s", cmd.Op, c.name)
		return
	}
	if len(c.events) > 0 {
		cmd.Event = c.events[len(c.events)-1]
		cmd.EventPath = strings.Join(c.events, "/")
	}
	c.commands = append(c.commands, cmd)
}

func (c *CommandList) BeginEvent(name string) {
	c.events = append(c.events, name)
}

func (c *CommandList) EndEvent() {
	if len(c.events) == 0 {
		c.device.reportf("command list %s: EndEvent without BeginEvent", c.name)
		return
	}
	c.events = c.events[:len(c.events)-1]
}

func (c *CommandList) ResourceBarrier(res metadata.Resource, before, after metadata.ResourceState) {
	r := stateOf(res)
	if r == nil {
		c.device.reportf("barrier on foreign resource %T", res)
		return
	}
	if r.state != before {
		c.device.reportf("barrier on %s: resource is %s, barrier expects %s", r.name, r.state, before)
	}
	r.state = after
	c.record(Command{Op: OpBarrier, Resource: res, Before: before, After: after})
}

func (c *CommandList) BeginRenderPass(desc metadata.RenderPassDesc) {
	if c.inPass {
		c.device.reportf("render pass %s begun inside %s", desc.Name, c.pass)
	}
	for _, t := range desc.Colour {
		if r := stateOf(t.Texture); r != nil && r.state != metadata.ResourceStateRenderTarget {
			c.device.reportf("render pass %s: colour target %s is %s", desc.Name, r.name, r.state)
		}
	}
	if desc.Depth != nil {
		if r := stateOf(desc.Depth.Texture); r != nil && r.state != metadata.ResourceStateDepthWrite {
			c.device.reportf("render pass %s: depth target %s is %s", desc.Name, r.name, r.state)
		}
	}
	c.inPass = true
	c.pass = desc.Name
	c.record(Command{Op: OpBeginRenderPass, RenderPass: desc.Name})
}

func (c *CommandList) EndRenderPass() {
	if !c.inPass {
		c.device.reportf("EndRenderPass without BeginRenderPass")
	}
	c.record(Command{Op: OpEndRenderPass, RenderPass: c.pass})
	c.inPass = false
	c.pass = ""
}

func (c *CommandList) SetPipelineState(pso metadata.PipelineState) {
	p, ok := pso.(*PipelineState)
	if !ok || p.released {
		c.device.reportf("binding an invalid pipeline state %v", pso)
		return
	}
	c.pipeline = p
}

func (c *CommandList) SetDescriptorHeap(heap metadata.DescriptorHeap) {}

func (c *CommandList) SetViewport(vp metadata.Viewport, scissor metadata.ScissorRect) {}

func (c *CommandList) SetRootConstantBuffer(slot uint32, gpuAddress uint64) {
	c.cbvs[slot] = gpuAddress
}

func (c *CommandList) SetRootDescriptorTable(slot uint32, handle metadata.DescriptorHandle) {}

func (c *CommandList) SetRootConstants(slot uint32, values []uint32) {
	c.consts[slot] = append([]uint32(nil), values...)
}

func (c *CommandList) SetVertexBuffer(view metadata.VertexBufferView) {
	c.vb = view
}

func (c *CommandList) SetPrimitiveTopology(topology metadata.Topology) {}

func (c *CommandList) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	if !c.inPass {
		c.device.reportf("draw outside of a render pass")
	}
	if c.pipeline == nil {
		c.device.reportf("draw without a pipeline state")
	}
	cbvs := make(map[uint32]uint64, len(c.cbvs))
	for k, v := range c.cbvs {
		cbvs[k] = v
	}
	consts := make(map[uint32][]uint32, len(c.consts))
	for k, v := range c.consts {
		consts[k] = v
	}
	c.record(Command{
		Op:            OpDraw,
		Pipeline:      c.pipeline,
		RenderPass:    c.pass,
		VertexBuffer:  c.vb,
		VertexCount:   vertexCount,
		InstanceCount: instanceCount,
		FirstVertex:   firstVertex,
		RootCBVs:      cbvs,
		RootConstants: consts,
	})
}

func (c *CommandList) Dispatch(x, y, z uint32) {
	c.record(Command{Op: OpDispatch, Pipeline: c.pipeline})
}

func (c *CommandList) DispatchRays(desc metadata.DispatchRaysDesc) {
	if !c.device.raytracing {
		c.device.reportf("DispatchRays on a device without raytracing")
	}
	c.record(Command{Op: OpDispatchRays, Pipeline: c.pipeline})
}

func (c *CommandList) BuildAccelerationStructure(desc metadata.BuildAccelerationStructureDesc) {
	c.record(Command{Op: OpBuildAccelerationStructure, Build: desc, Resource: desc.Target})
}

func (c *CommandList) CopyBufferRegion(dst metadata.Buffer, dstOffset uint64, src metadata.Buffer, srcOffset, size uint64) {
	if dstOffset+size > dst.Desc().Size || srcOffset+size > src.Desc().Size {
		c.device.reportf("copy of %d bytes out of range (%s -> %s)", size, src.Name(), dst.Name())
		return
	}
	c.record(Command{Op: OpCopyBuffer, Src: src, Dst: dst, SrcOffset: srcOffset, DstOffset: dstOffset, Size: size})
}

func (c *CommandList) CopyBufferToTexture(dst metadata.Texture, src metadata.Buffer, srcOffset uint64, footprint metadata.TextureCopyFootprint) {
	if r := stateOf(dst); r != nil && r.state != metadata.ResourceStateCopyDest {
		c.device.reportf("copy into %s which is %s", r.name, r.state)
	}
	c.record(Command{Op: OpCopyBufferToTexture, Src: src, Dst: dst, SrcOffset: srcOffset, Size: footprint.SlicePitch})
}

func (c *CommandList) ResolveTexture(dst, src metadata.Texture) {
	if src.Desc().SampleCount <= 1 {
		c.device.reportf("resolving single sampled texture %s", src.Name())
	}
	c.record(Command{Op: OpResolve, Src: src, Dst: dst})
}

func stateOf(res metadata.Resource) *resource {
	switch r := res.(type) {
	case *Buffer:
		return &r.resource
	case *Texture:
		return &r.resource
	case *AccelerationStructure:
		return &r.resource
	}
	return nil
}
