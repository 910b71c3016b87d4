package views

import (
	"github.com/spaghettifunk/directengine/engine/memory"
	"github.com/spaghettifunk/directengine/engine/renderer"
	"github.com/spaghettifunk/directengine/engine/renderer/metadata"
)

/**
 * @brief Produces the shadow term of the main pass. With raytracing the
 * G-buffer positions are traced against the scene TLAS into a screen sized
 * mask; otherwise the shadow casters are rasterized from the shadow camera
 * into a ShadowMapSize depth map.
 */
type RenderViewShadow struct {
	ctx          *renderer.Context
	gbuffer      *RenderViewGBuffer
	acceleration *RenderViewAcceleration

	/** @brief Raytracing pipeline. Nil or not ready falls back to raster. */
	Raytraced *metadata.Pipeline

	Map  metadata.Texture
	Mask metadata.Texture
	// normal, position, tlas, mask
	table metadata.DescriptorHandle
}

func NewRenderViewShadow(gbuffer *RenderViewGBuffer, acceleration *RenderViewAcceleration) *RenderViewShadow {
	return &RenderViewShadow{gbuffer: gbuffer, acceleration: acceleration}
}

func (vs *RenderViewShadow) Name() string {
	return EventShadows
}

func (vs *RenderViewShadow) OnCreate(ctx *renderer.Context) error {
	vs.ctx = ctx
	m, err := createTarget(ctx, memory.ScopeEngine, metadata.TextureDesc{
		Name:         "shadow map",
		Width:        metadata.ShadowMapSize,
		Height:       metadata.ShadowMapSize,
		Format:       metadata.DepthFormat,
		Usage:        metadata.TextureUsageDepthStencil | metadata.TextureUsageShaderResource,
		InitialState: metadata.ResourceStatePixelShaderResource,
		ClearDepth:   1,
	})
	if err != nil {
		return err
	}
	vs.Map = m
	if ctx.Device.SupportsRaytracing() {
		vs.table = ctx.Descriptors.AllocateRange(4)
	}
	return vs.OnResize(ctx.Width(), ctx.Height())
}

func (vs *RenderViewShadow) OnResize(width, height uint32) error {
	if !vs.ctx.Device.SupportsRaytracing() {
		return nil
	}
	mask, err := createTarget(vs.ctx, memory.ScopeSizeDependent, metadata.TextureDesc{
		Name:         "shadow mask",
		Width:        width,
		Height:       height,
		Format:       metadata.ShadowFormat,
		Usage:        metadata.TextureUsageUnorderedAccess | metadata.TextureUsageShaderResource,
		InitialState: metadata.ResourceStatePixelShaderResource,
	})
	if err != nil {
		return err
	}
	vs.Mask = mask
	heap := vs.ctx.Descriptors.Heap()
	heap.CreateShaderResourceView(vs.ctx.Descriptors.Handle(vs.table.Index), vs.gbuffer.Normal)
	heap.CreateShaderResourceView(vs.ctx.Descriptors.Handle(vs.table.Index+1), vs.gbuffer.Position)
	heap.CreateShaderResourceView(vs.ctx.Descriptors.Handle(vs.table.Index+3), mask)
	return nil
}

// Traced reports whether the shadows of a frame with raytracing enabled
// are traced into Mask instead of rasterized into Map. The answer holds for
// the whole frame, before and after the acceleration structures build.
func (vs *RenderViewShadow) Traced(enabled bool) bool {
	return enabled && vs.Mask != nil && vs.Raytraced.Ready() && vs.acceleration.Supported()
}

func (vs *RenderViewShadow) OnRender(cl metadata.CommandList, packet *FramePacket) error {
	cl.BeginEvent(EventShadows)
	defer cl.EndEvent()

	if vs.Traced(packet.Raytracing) {
		vs.trace(cl, packet)
		return nil
	}
	if packet.ShadowCamera == nil {
		return nil
	}
	cl.ResourceBarrier(vs.Map, metadata.ResourceStatePixelShaderResource, metadata.ResourceStateDepthWrite)
	cl.BeginRenderPass(metadata.RenderPassDesc{
		Name:  EventShadows,
		Depth: &metadata.RenderPassDepthTarget{Texture: vs.Map, Load: metadata.LoadOpClear, ClearDepth: 1},
	})
	cl.SetViewport(metadata.FullViewport(metadata.ShadowMapSize, metadata.ShadowMapSize))
	drawScene(cl, packet, sceneFilter{camera: packet.ShadowCamera, variant: metadata.PipelineVariantShadow, casters: true})
	cl.EndRenderPass()
	cl.ResourceBarrier(vs.Map, metadata.ResourceStateDepthWrite, metadata.ResourceStatePixelShaderResource)
	return nil
}

func (vs *RenderViewShadow) trace(cl metadata.CommandList, packet *FramePacket) {
	heap := vs.ctx.Descriptors.Heap()
	heap.CreateAccelerationStructureView(vs.ctx.Descriptors.Handle(vs.table.Index+2), vs.acceleration.TLAS())

	fi := packet.FrameIndex
	cl.ResourceBarrier(vs.Mask, metadata.ResourceStatePixelShaderResource, metadata.ResourceStateUnorderedAccess)
	cl.SetPipelineState(vs.Raytraced.State)
	cl.SetRootConstantBuffer(metadata.RootSlotScene, packet.Scene.GPUAddress(fi))
	cl.SetRootConstantBuffer(metadata.RootSlotCamera, packet.MainCamera.ConstantBuffer.GPUAddress(fi))
	cl.SetRootDescriptorTable(metadata.RootSlotPassTextures, vs.table)
	cl.DispatchRays(metadata.DispatchRaysDesc{Width: packet.Width, Height: packet.Height, Depth: 1})
	cl.ResourceBarrier(vs.Mask, metadata.ResourceStateUnorderedAccess, metadata.ResourceStatePixelShaderResource)
}

func (vs *RenderViewShadow) OnDestroy() error {
	vs.Map, vs.Mask = nil, nil
	return nil
}
