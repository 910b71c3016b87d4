package views

import (
	"github.com/spaghettifunk/directengine/engine/memory"
	"github.com/spaghettifunk/directengine/engine/renderer"
	"github.com/spaghettifunk/directengine/engine/renderer/metadata"
)

/**
 * @brief The main pass into the back buffer: the opaque scene seen by the
 * main camera, then wireframe entities, then the overlays, which record
 * inside the same render pass.
 */
type RenderViewWorld struct {
	ctx     *renderer.Context
	gbuffer *RenderViewGBuffer
	shadow  *RenderViewShadow

	/** @brief Drawn after the scene, in order, before the back buffer is presented. */
	Overlays []RenderView

	Depth metadata.Texture
	// normal, position, shadow map, shadow mask
	passTextures metadata.DescriptorHandle
}

func NewRenderViewWorld(gbuffer *RenderViewGBuffer, shadow *RenderViewShadow, overlays ...RenderView) *RenderViewWorld {
	return &RenderViewWorld{gbuffer: gbuffer, shadow: shadow, Overlays: overlays}
}

func (vw *RenderViewWorld) Name() string {
	return EventMain
}

func (vw *RenderViewWorld) OnCreate(ctx *renderer.Context) error {
	vw.ctx = ctx
	vw.passTextures = ctx.Descriptors.AllocateRange(4)
	for _, o := range vw.Overlays {
		if err := o.OnCreate(ctx); err != nil {
			return err
		}
	}
	return vw.OnResize(ctx.Width(), ctx.Height())
}

func (vw *RenderViewWorld) OnResize(width, height uint32) error {
	depth, err := createTarget(vw.ctx, memory.ScopeSizeDependent, metadata.TextureDesc{
		Name:         "main depth",
		Width:        width,
		Height:       height,
		Format:       metadata.DepthFormat,
		Usage:        metadata.TextureUsageDepthStencil,
		InitialState: metadata.ResourceStateDepthWrite,
		ClearDepth:   1,
	})
	if err != nil {
		return err
	}
	vw.Depth = depth

	d := vw.ctx.Descriptors
	heap := d.Heap()
	heap.CreateShaderResourceView(d.Handle(vw.passTextures.Index), vw.gbuffer.Normal)
	heap.CreateShaderResourceView(d.Handle(vw.passTextures.Index+1), vw.gbuffer.Position)
	heap.CreateShaderResourceView(d.Handle(vw.passTextures.Index+2), vw.shadow.Map)
	mask := vw.shadow.Mask
	if mask == nil {
		mask = vw.shadow.Map
	}
	heap.CreateShaderResourceView(d.Handle(vw.passTextures.Index+3), mask)

	for _, o := range vw.Overlays {
		if err := o.OnResize(width, height); err != nil {
			return err
		}
	}
	return nil
}

func (vw *RenderViewWorld) OnRender(cl metadata.CommandList, packet *FramePacket) error {
	cl.BeginEvent(EventMain)
	defer cl.EndEvent()

	cl.ResourceBarrier(packet.BackBuffer, metadata.ResourceStatePresent, metadata.ResourceStateRenderTarget)
	cl.BeginRenderPass(metadata.RenderPassDesc{
		Name: EventMain,
		Colour: []metadata.RenderPassColourTarget{
			{Texture: packet.BackBuffer, Load: metadata.LoadOpClear, ClearColour: [4]float32{0, 0, 0, 1}},
		},
		Depth: &metadata.RenderPassDepthTarget{Texture: vw.Depth, Load: metadata.LoadOpClear, ClearDepth: 1},
	})
	cl.SetViewport(metadata.FullViewport(packet.Width, packet.Height))

	drawScene(cl, packet, sceneFilter{
		camera:       packet.MainCamera,
		variant:      metadata.PipelineVariantMain,
		passTextures: &vw.passTextures,
	})

	cl.BeginEvent(EventWireframe)
	drawScene(cl, packet, sceneFilter{
		camera:    packet.MainCamera,
		variant:   metadata.PipelineVariantWireframe,
		wireframe: true,
	})
	cl.EndEvent()

	for _, o := range vw.Overlays {
		if err := o.OnRender(cl, packet); err != nil {
			cl.EndRenderPass()
			cl.ResourceBarrier(packet.BackBuffer, metadata.ResourceStateRenderTarget, metadata.ResourceStatePresent)
			return err
		}
	}

	cl.EndRenderPass()
	cl.ResourceBarrier(packet.BackBuffer, metadata.ResourceStateRenderTarget, metadata.ResourceStatePresent)
	return nil
}

func (vw *RenderViewWorld) OnDestroy() error {
	for _, o := range vw.Overlays {
		if err := o.OnDestroy(); err != nil {
			return err
		}
	}
	vw.Depth = nil
	return nil
}
