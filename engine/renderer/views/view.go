package views

import (
	"fmt"

	"github.com/spaghettifunk/directengine/engine/core"
	"github.com/spaghettifunk/directengine/engine/memory"
	"github.com/spaghettifunk/directengine/engine/renderer"
	"github.com/spaghettifunk/directengine/engine/renderer/metadata"
)

// Command list event names, one per pass.
const (
	EventAccelerationStructures = "AccelerationStructures"
	EventGBuffer                = "GBuffer"
	EventShadows                = "Shadows"
	EventRenderTexture          = "RenderTexture"
	EventMain                   = "Main"
	EventWireframe              = "Wireframe"
	EventDebugLines             = "DebugLines"
	EventUI                     = "UI"
)

/**
 * @brief Everything the passes read to record one frame. Built by the
 * renderer system after the constant buffers of the frame were uploaded.
 */
type FramePacket struct {
	FrameIndex uint32
	Width      uint32
	Height     uint32
	BackBuffer metadata.Texture

	Scene        metadata.ConstantBufferBinding
	MainCamera   *metadata.Camera
	ShadowCamera *metadata.Camera

	/** @brief Materials in creation order. */
	Materials      []*metadata.Material
	Meshes         []*metadata.Mesh
	RenderTextures []*metadata.RenderTexture

	/** @brief Raytraced shadows requested and supported by the device. */
	Raytracing bool

	DebugLines []metadata.LineVertex
	UIVertices []metadata.UIVertex
	/** @brief View of the atlas the UI vertices sample. */
	UITexture metadata.DescriptorHandle
}

/**
 * @brief A render view records one pass of the frame. Views own their
 * targets; size dependent targets are recreated in OnResize.
 */
type RenderView interface {
	Name() string
	OnCreate(ctx *renderer.Context) error
	OnResize(width, height uint32) error
	OnRender(cl metadata.CommandList, packet *FramePacket) error
	OnDestroy() error
}

/** @brief Selects the entities and the pipeline of a scene draw. */
type sceneFilter struct {
	camera  *metadata.Camera
	variant metadata.PipelineVariant
	// Draw only entities whose Wireframe flag matches.
	wireframe bool
	// Render texture being drawn: materials sampling it and main camera
	// only entities are skipped.
	target *metadata.RenderTexture
	// Shadow casters only.
	casters bool
	// Bound at RootSlotPassTextures when valid.
	passTextures *metadata.DescriptorHandle
}

/**
 * @brief Draws every selected entity, materials and entities in creation
 * order. Returns the number of draws recorded.
 */
func drawScene(cl metadata.CommandList, packet *FramePacket, f sceneFilter) int {
	fi := packet.FrameIndex
	draws := 0
	for _, m := range packet.Materials {
		if m.Kind != metadata.ShaderKindRaster {
			continue
		}
		if f.target != nil && m.Samples(f.target) {
			continue
		}
		p := m.Pipeline(f.variant)
		if !p.Ready() {
			continue
		}
		bound := false
		for _, e := range m.Entities.Items() {
			if !e.Visible || e.Wireframe != f.wireframe {
				continue
			}
			if f.target != nil && e.MainCameraOnly {
				continue
			}
			if f.casters && !e.CastsShadows {
				continue
			}
			if !bound {
				bindMaterial(cl, packet, m, p, f)
				bound = true
			}
			cl.SetRootConstantBuffer(metadata.RootSlotEntity, e.ConstantBuffer.GPUAddress(fi))
			if e.Skinned() {
				cl.SetRootConstantBuffer(metadata.RootSlotBones, e.BoneBufferFor(f.camera.Role).GPUAddress(fi))
			}
			cl.SetVertexBuffer(e.Mesh.Vertices)
			cl.Draw(e.Mesh.VertexCount, 1, 0, 0)
			draws++
		}
	}
	return draws
}

func bindMaterial(cl metadata.CommandList, packet *FramePacket, m *metadata.Material, p *metadata.Pipeline, f sceneFilter) {
	fi := packet.FrameIndex
	cl.SetPipelineState(p.State)
	cl.SetPrimitiveTopology(metadata.TopologyTriangleList)
	cl.SetRootConstantBuffer(metadata.RootSlotScene, packet.Scene.GPUAddress(fi))
	cl.SetRootConstantBuffer(metadata.RootSlotCamera, f.camera.ConstantBuffer.GPUAddress(fi))
	if m.RootConstants.Len() > 0 {
		cl.SetRootConstants(metadata.RootSlotMaterialConstants, m.RootConstantValues())
	}
	cl.SetRootDescriptorTable(metadata.RootSlotMaterialTextures, m.TextureTable)
	if f.passTextures != nil {
		cl.SetRootDescriptorTable(metadata.RootSlotPassTextures, *f.passTextures)
	}
}

// createTarget creates a pass target owned by scope.
func createTarget(ctx *renderer.Context, scope memory.Scope, desc metadata.TextureDesc) (metadata.Texture, error) {
	tex, err := ctx.Device.CreateTexture(desc)
	if err != nil {
		err = fmt.Errorf("failed to create %s: %w", desc.Name, err)
		core.LogError("%s", err)
		return nil, err
	}
	ctx.Scopes.Track(scope, tex)
	return tex, nil
}
