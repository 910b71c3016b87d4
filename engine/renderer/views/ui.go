package views

import (
	stdmath "math"

	"github.com/spaghettifunk/directengine/engine/memory"
	"github.com/spaghettifunk/directengine/engine/renderer"
	"github.com/spaghettifunk/directengine/engine/renderer/metadata"
)

/**
 * @brief Draws the overlay: text quads in pixel coordinates sampling the
 * font atlas. The screen size is passed as two float root constants.
 */
type RenderViewUI struct {
	Pipeline *metadata.Pipeline

	vertices *renderer.DynamicVertexBuffer[metadata.UIVertex]
}

func NewRenderViewUI() *RenderViewUI {
	return &RenderViewUI{}
}

func (vu *RenderViewUI) Name() string {
	return EventUI
}

func (vu *RenderViewUI) OnCreate(ctx *renderer.Context) error {
	vb, err := renderer.NewDynamicVertexBuffer[metadata.UIVertex](ctx.Device, ctx.Scopes.Get(memory.ScopeEngine), "ui vertices", metadata.MaxUIVertices)
	if err != nil {
		return err
	}
	vu.vertices = vb
	return nil
}

func (vu *RenderViewUI) OnResize(width, height uint32) error {
	return nil
}

func (vu *RenderViewUI) OnRender(cl metadata.CommandList, packet *FramePacket) error {
	if len(packet.UIVertices) == 0 || !vu.Pipeline.Ready() {
		return nil
	}
	cl.BeginEvent(EventUI)
	defer cl.EndEvent()

	verts := packet.UIVertices
	if n := int(vu.vertices.Capacity()); len(verts) > n {
		verts = verts[:n]
	}
	view := vu.vertices.Write(packet.FrameIndex, verts)

	cl.SetPipelineState(vu.Pipeline.State)
	cl.SetPrimitiveTopology(metadata.TopologyTriangleList)
	cl.SetRootConstants(metadata.RootSlotMaterialConstants, []uint32{
		stdmath.Float32bits(float32(packet.Width)),
		stdmath.Float32bits(float32(packet.Height)),
	})
	cl.SetRootDescriptorTable(metadata.RootSlotMaterialTextures, packet.UITexture)
	cl.SetVertexBuffer(view)
	cl.Draw(uint32(len(verts)), 1, 0, 0)
	return nil
}

func (vu *RenderViewUI) OnDestroy() error {
	vu.vertices = nil
	return nil
}
