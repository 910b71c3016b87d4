package metadata

import (
	"unsafe"

	"github.com/spaghettifunk/directengine/engine/math"
)

// Constant buffer layouts. Each size is a multiple of ConstantBufferAlignment.

/**
 * @brief Per frame values shared by every pass.
 */
type SceneConstantBuffer struct {
	/** @brief x: seconds since start, y: delta seconds, z: frame number. */
	Time math.Vec4
	/** @brief World to shadow map clip space. */
	ShadowTransform math.Mat4
	/** @brief Direction towards the sun, w unused. */
	SunDirection math.Vec4
	AmbientColour math.Vec4
	/** @brief x: 1 when the main pass samples the traced shadow mask, 0 for the shadow map. */
	Shadows math.Vec4
	_       [32]float32
}

type CameraConstantBuffer struct {
	View           math.Mat4
	Projection     math.Mat4
	ViewProjection math.Mat4
	Position       math.Vec4
	_              [12]float32
}

type EntityConstantBuffer struct {
	World math.Mat4
	/** @brief x: 1 when the entity is skinned. */
	Flags math.Vec4
	_     [44]float32
}

type BoneConstantBuffer struct {
	Bones [MaxBones]math.Mat4
}

const (
	SceneConstantBufferSize  = unsafe.Sizeof(SceneConstantBuffer{})
	CameraConstantBufferSize = unsafe.Sizeof(CameraConstantBuffer{})
	EntityConstantBufferSize = unsafe.Sizeof(EntityConstantBuffer{})
	BoneConstantBufferSize   = unsafe.Sizeof(BoneConstantBuffer{})
)

/**
 * @brief A constant buffer with one copy per frame slot.
 */
type ConstantBufferBinding interface {
	GPUAddress(frameIndex uint32) uint64
	// UploadData copies the CPU side value into the copy for frameIndex.
	UploadData(frameIndex uint32)
	Release()
}

/** @brief A vertex of the UI overlay, in pixels. */
type UIVertex struct {
	Position math.Vec2
	Texcoord math.Vec2
	Colour   math.Vec4
}

/** @brief A vertex of a debug line segment, in world space. */
type LineVertex struct {
	Position math.Vec3
	Colour   math.Vec4
}
