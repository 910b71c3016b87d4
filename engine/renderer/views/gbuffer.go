package views

import (
	"github.com/spaghettifunk/directengine/engine/memory"
	"github.com/spaghettifunk/directengine/engine/renderer"
	"github.com/spaghettifunk/directengine/engine/renderer/metadata"
)

/**
 * @brief Renders world space normals and positions of the opaque scene.
 * The targets rest in the shader readable state between frames; the depth
 * target stays writable.
 */
type RenderViewGBuffer struct {
	ctx *renderer.Context

	Normal   metadata.Texture
	Position metadata.Texture
	Depth    metadata.Texture
}

func NewRenderViewGBuffer() *RenderViewGBuffer {
	return &RenderViewGBuffer{}
}

func (vg *RenderViewGBuffer) Name() string {
	return EventGBuffer
}

func (vg *RenderViewGBuffer) OnCreate(ctx *renderer.Context) error {
	vg.ctx = ctx
	return vg.OnResize(ctx.Width(), ctx.Height())
}

func (vg *RenderViewGBuffer) OnResize(width, height uint32) error {
	var err error
	colour := func(name string) metadata.TextureDesc {
		return metadata.TextureDesc{
			Name:         name,
			Width:        width,
			Height:       height,
			Format:       metadata.GBufferFormat,
			Usage:        metadata.TextureUsageRenderTarget | metadata.TextureUsageShaderResource,
			InitialState: metadata.ResourceStatePixelShaderResource,
		}
	}
	if vg.Normal, err = createTarget(vg.ctx, memory.ScopeSizeDependent, colour("gbuffer normal")); err != nil {
		return err
	}
	if vg.Position, err = createTarget(vg.ctx, memory.ScopeSizeDependent, colour("gbuffer position")); err != nil {
		return err
	}
	vg.Depth, err = createTarget(vg.ctx, memory.ScopeSizeDependent, metadata.TextureDesc{
		Name:         "gbuffer depth",
		Width:        width,
		Height:       height,
		Format:       metadata.DepthFormat,
		Usage:        metadata.TextureUsageDepthStencil,
		InitialState: metadata.ResourceStateDepthWrite,
		ClearDepth:   1,
	})
	return err
}

func (vg *RenderViewGBuffer) OnRender(cl metadata.CommandList, packet *FramePacket) error {
	cl.BeginEvent(EventGBuffer)
	defer cl.EndEvent()

	cl.ResourceBarrier(vg.Normal, metadata.ResourceStatePixelShaderResource, metadata.ResourceStateRenderTarget)
	cl.ResourceBarrier(vg.Position, metadata.ResourceStatePixelShaderResource, metadata.ResourceStateRenderTarget)
	cl.BeginRenderPass(metadata.RenderPassDesc{
		Name: EventGBuffer,
		Colour: []metadata.RenderPassColourTarget{
			{Texture: vg.Normal, Load: metadata.LoadOpClear},
			{Texture: vg.Position, Load: metadata.LoadOpClear},
		},
		Depth: &metadata.RenderPassDepthTarget{Texture: vg.Depth, Load: metadata.LoadOpClear, ClearDepth: 1},
	})
	cl.SetViewport(metadata.FullViewport(packet.Width, packet.Height))
	drawScene(cl, packet, sceneFilter{camera: packet.MainCamera, variant: metadata.PipelineVariantGBuffer})
	cl.EndRenderPass()
	cl.ResourceBarrier(vg.Normal, metadata.ResourceStateRenderTarget, metadata.ResourceStatePixelShaderResource)
	cl.ResourceBarrier(vg.Position, metadata.ResourceStateRenderTarget, metadata.ResourceStatePixelShaderResource)
	return nil
}

func (vg *RenderViewGBuffer) OnDestroy() error {
	vg.Normal, vg.Position, vg.Depth = nil, nil, nil
	return nil
}
