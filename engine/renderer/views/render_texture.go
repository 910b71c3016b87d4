package views

import (
	"github.com/spaghettifunk/directengine/engine/renderer"
	"github.com/spaghettifunk/directengine/engine/renderer/metadata"
)

/**
 * @brief Renders the scene into every render texture from its own camera.
 * Materials that sample the texture being rendered are skipped so a portal
 * never draws itself. Colour targets rest shader readable, multisampled
 * targets rest as resolve sources.
 */
type RenderViewRenderTexture struct {
	ctx *renderer.Context
}

func NewRenderViewRenderTexture() *RenderViewRenderTexture {
	return &RenderViewRenderTexture{}
}

func (vr *RenderViewRenderTexture) Name() string {
	return EventRenderTexture
}

func (vr *RenderViewRenderTexture) OnCreate(ctx *renderer.Context) error {
	vr.ctx = ctx
	return nil
}

func (vr *RenderViewRenderTexture) OnResize(width, height uint32) error {
	return nil
}

func (vr *RenderViewRenderTexture) OnRender(cl metadata.CommandList, packet *FramePacket) error {
	for _, rt := range packet.RenderTextures {
		if rt.Camera == nil {
			continue
		}
		vr.render(cl, packet, rt)
	}
	return nil
}

func (vr *RenderViewRenderTexture) render(cl metadata.CommandList, packet *FramePacket, rt *metadata.RenderTexture) {
	cl.BeginEvent(EventRenderTexture)
	defer cl.EndEvent()

	msaa := rt.MultisampledColour != nil
	target := rt.RenderTarget()
	if msaa {
		cl.ResourceBarrier(target, metadata.ResourceStateResolveSource, metadata.ResourceStateRenderTarget)
	} else {
		cl.ResourceBarrier(target, metadata.ResourceStatePixelShaderResource, metadata.ResourceStateRenderTarget)
	}

	cl.BeginRenderPass(metadata.RenderPassDesc{
		Name:   rt.Name,
		Colour: []metadata.RenderPassColourTarget{{Texture: target, Load: metadata.LoadOpClear}},
		Depth:  &metadata.RenderPassDepthTarget{Texture: rt.Depth, Load: metadata.LoadOpClear, ClearDepth: 1},
	})
	cl.SetViewport(metadata.FullViewport(rt.Width, rt.Height))
	drawScene(cl, packet, sceneFilter{camera: rt.Camera, variant: metadata.PipelineVariantRenderTexture, target: rt})
	cl.EndRenderPass()

	if msaa {
		cl.ResourceBarrier(target, metadata.ResourceStateRenderTarget, metadata.ResourceStateResolveSource)
		cl.ResourceBarrier(rt.Colour, metadata.ResourceStatePixelShaderResource, metadata.ResourceStateResolveDest)
		cl.ResolveTexture(rt.Colour, target)
		cl.ResourceBarrier(rt.Colour, metadata.ResourceStateResolveDest, metadata.ResourceStatePixelShaderResource)
		return
	}
	cl.ResourceBarrier(target, metadata.ResourceStateRenderTarget, metadata.ResourceStatePixelShaderResource)
}

func (vr *RenderViewRenderTexture) OnDestroy() error {
	return nil
}
