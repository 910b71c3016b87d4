package views

import (
	"github.com/spaghettifunk/directengine/engine/memory"
	"github.com/spaghettifunk/directengine/engine/renderer"
	"github.com/spaghettifunk/directengine/engine/renderer/metadata"
)

/**
 * @brief Draws the debug line segments of the frame, for example the
 * physics collaborator's shapes, as a line list in world space.
 */
type RenderViewDebugLines struct {
	Pipeline *metadata.Pipeline

	vertices *renderer.DynamicVertexBuffer[metadata.LineVertex]
}

func NewRenderViewDebugLines() *RenderViewDebugLines {
	return &RenderViewDebugLines{}
}

func (vd *RenderViewDebugLines) Name() string {
	return EventDebugLines
}

func (vd *RenderViewDebugLines) OnCreate(ctx *renderer.Context) error {
	vb, err := renderer.NewDynamicVertexBuffer[metadata.LineVertex](ctx.Device, ctx.Scopes.Get(memory.ScopeEngine), "debug lines", metadata.MaxDebugLineVertices)
	if err != nil {
		return err
	}
	vd.vertices = vb
	return nil
}

func (vd *RenderViewDebugLines) OnResize(width, height uint32) error {
	return nil
}

func (vd *RenderViewDebugLines) OnRender(cl metadata.CommandList, packet *FramePacket) error {
	if len(packet.DebugLines) == 0 || !vd.Pipeline.Ready() {
		return nil
	}
	cl.BeginEvent(EventDebugLines)
	defer cl.EndEvent()

	lines := packet.DebugLines
	if n := int(vd.vertices.Capacity()); len(lines) > n {
		lines = lines[:n]
	}
	view := vd.vertices.Write(packet.FrameIndex, lines)

	fi := packet.FrameIndex
	cl.SetPipelineState(vd.Pipeline.State)
	cl.SetPrimitiveTopology(metadata.TopologyLineList)
	cl.SetRootConstantBuffer(metadata.RootSlotScene, packet.Scene.GPUAddress(fi))
	cl.SetRootConstantBuffer(metadata.RootSlotCamera, packet.MainCamera.ConstantBuffer.GPUAddress(fi))
	cl.SetVertexBuffer(view)
	cl.Draw(uint32(len(lines)), 1, 0, 0)
	return nil
}

func (vd *RenderViewDebugLines) OnDestroy() error {
	vd.vertices = nil
	return nil
}
