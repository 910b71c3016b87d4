package views

import (
	"fmt"

	"github.com/spaghettifunk/directengine/engine/core"
	"github.com/spaghettifunk/directengine/engine/memory"
	"github.com/spaghettifunk/directengine/engine/renderer"
	"github.com/spaghettifunk/directengine/engine/renderer/metadata"
)

/**
 * @brief Keeps the acceleration structures raytraced shadows trace
 * against. Bottom levels are rebuilt for meshes whose geometry changed, the
 * top level every frame from the visible shadow casters.
 */
type RenderViewAcceleration struct {
	ctx       *renderer.Context
	tlas      metadata.AccelerationStructure
	instances []metadata.AccelerationStructureInstance
	built     bool
}

func NewRenderViewAcceleration() *RenderViewAcceleration {
	return &RenderViewAcceleration{}
}

func (va *RenderViewAcceleration) Name() string {
	return EventAccelerationStructures
}

func (va *RenderViewAcceleration) OnCreate(ctx *renderer.Context) error {
	va.ctx = ctx
	if !ctx.Device.SupportsRaytracing() {
		core.LogInfo("device %s has no raytracing, shadows are rasterized", ctx.Device.Name())
		return nil
	}
	tlas, err := ctx.Device.CreateAccelerationStructure(metadata.AccelerationStructureDesc{
		Name:         "scene tlas",
		Kind:         metadata.AccelerationStructureTopLevel,
		MaxInstances: metadata.MaxEntitiesPerScene,
	})
	if err != nil {
		err = fmt.Errorf("failed to create the top level acceleration structure: %w", err)
		core.LogError("%s", err)
		return err
	}
	ctx.Scopes.Track(memory.ScopeEngine, tlas)
	va.tlas = tlas
	va.instances = make([]metadata.AccelerationStructureInstance, 0, metadata.MaxEntitiesPerScene)
	return nil
}

func (va *RenderViewAcceleration) OnResize(width, height uint32) error {
	return nil
}

// Supported reports whether the top level exists; every raytraced frame
// rebuilds it before the passes that trace against it.
func (va *RenderViewAcceleration) Supported() bool {
	return va.tlas != nil
}

// TLAS is the top level structure, nil until the first build.
func (va *RenderViewAcceleration) TLAS() metadata.AccelerationStructure {
	if !va.built {
		return nil
	}
	return va.tlas
}

func (va *RenderViewAcceleration) OnRender(cl metadata.CommandList, packet *FramePacket) error {
	if !packet.Raytracing || va.tlas == nil {
		return nil
	}
	cl.BeginEvent(EventAccelerationStructures)
	defer cl.EndEvent()

	for _, mesh := range packet.Meshes {
		if mesh.VertexCount == 0 {
			continue
		}
		if mesh.BLAS == nil {
			blas, err := va.ctx.Device.CreateAccelerationStructure(metadata.AccelerationStructureDesc{
				Name:        "blas " + mesh.Name,
				Kind:        metadata.AccelerationStructureBottomLevel,
				VertexCount: mesh.VertexCount,
			})
			if err != nil {
				err = fmt.Errorf("failed to create bottom level structure of %s: %w", mesh.Name, err)
				core.LogError("%s", err)
				return err
			}
			va.ctx.Scopes.Track(memory.ScopeLevel, blas)
			mesh.BLAS = blas
			mesh.GeometryDirty = true
		}
		if mesh.GeometryDirty {
			cl.BuildAccelerationStructure(metadata.BuildAccelerationStructureDesc{Target: mesh.BLAS, Geometry: mesh.Vertices})
			mesh.GeometryDirty = false
		}
	}

	va.instances = va.instances[:0]
	for _, m := range packet.Materials {
		if m.Kind != metadata.ShaderKindRaster {
			continue
		}
		for _, e := range m.Entities.Items() {
			if !e.Visible || e.Wireframe || !e.CastsShadows || e.Mesh.BLAS == nil {
				continue
			}
			va.instances = append(va.instances, metadata.AccelerationStructureInstance{
				Transform:  e.Constants.World,
				Bottom:     e.Mesh.BLAS,
				InstanceID: uint32(len(va.instances)),
				Mask:       0xff,
			})
		}
	}
	cl.BuildAccelerationStructure(metadata.BuildAccelerationStructureDesc{Target: va.tlas, Instances: va.instances})
	va.built = true
	return nil
}

func (va *RenderViewAcceleration) OnDestroy() error {
	va.tlas = nil
	va.built = false
	return nil
}
