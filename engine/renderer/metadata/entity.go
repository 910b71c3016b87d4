package metadata

import (
	"github.com/spaghettifunk/directengine/engine/math"
)

/**
 * @brief A drawable instance: one mesh with one material at a transform.
 */
type Entity struct {
	Name     string
	Material *Material
	Mesh     *Mesh

	Transform math.Transform
	Visible   bool
	Wireframe bool
	/** @brief Rendered by the main camera only, never into render textures. */
	MainCameraOnly bool
	/** @brief Included in the top level acceleration structure. */
	CastsShadows bool

	Constants      EntityConstantBuffer
	ConstantBuffer ConstantBufferBinding

	/** @brief Nil for static meshes. */
	Bones      *BoneConstantBuffer
	BoneBuffer ConstantBufferBinding
	/** @brief Bone pose used by the main camera, for view models. */
	FirstPersonBones      *BoneConstantBuffer
	FirstPersonBoneBuffer ConstantBufferBinding

	Animations []*math.TransformAnimation
	/** @brief Local bind pose of every bone, parent indices in BoneParents. */
	BindPose    []math.Transform
	BoneParents []int
	AnimTime    float32
}

func (e *Entity) Skinned() bool {
	return e.Bones != nil
}

// BoneBufferFor returns the bone buffer a camera with the given role sees.
func (e *Entity) BoneBufferFor(role CameraRole) ConstantBufferBinding {
	if role == CameraRoleMain && e.FirstPersonBoneBuffer != nil {
		return e.FirstPersonBoneBuffer
	}
	return e.BoneBuffer
}
