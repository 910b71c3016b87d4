package metadata

import (
	stdmath "math"

	"github.com/spaghettifunk/directengine/engine/math"
)

/** @brief What a camera renders for. Decides which bone set entities use. */
type CameraRole int

const (
	/** @brief The player's view, rendered into the back buffer. */
	CameraRoleMain CameraRole = iota
	/** @brief Renders a render texture, e.g. a portal view. */
	CameraRoleRenderTexture
	/** @brief The light's view for the raster shadow pass. */
	CameraRoleShadow
	/** @brief Free-flying debug camera, rendered into the back buffer. */
	CameraRoleEditor
)

func (r CameraRole) String() string {
	switch r {
	case CameraRoleRenderTexture:
		return "render-texture"
	case CameraRoleShadow:
		return "shadow"
	case CameraRoleEditor:
		return "editor"
	default:
		return "main"
	}
}

/**
 * @brief Represents a camera that can be used for rendering. Cameras are
 * created and owned by the camera system.
 */
type Camera struct {
	Name string
	Role CameraRole
	/**
	 * @brief The position of this camera.
	 * NOTE: Do not set this directly, use SetPosition() instead
	 * so the view matrix is recalculated when needed.
	 */
	Position math.Vec3
	/** @brief Euler angles in radians (pitch, yaw, roll). Use SetEulerRotation(). */
	EulerRotation math.Vec3

	FovY         float32
	NearClip     float32
	FarClip      float32
	Orthographic bool
	/** @brief Half extents of the orthographic volume. */
	OrthoSize math.Vec2

	/** @brief Internal flag used to determine when the view matrix needs to be rebuilt. */
	IsDirty    bool
	ViewMatrix math.Mat4

	Constants      CameraConstantBuffer
	ConstantBuffer ConstantBufferBinding
}

/** @brief The name of the default camera. */
const DefaultCameraName string = "default"

func NewCamera(name string, role CameraRole) *Camera {
	c := &Camera{Name: name, Role: role}
	c.Reset()
	return c
}

func (c *Camera) Reset() {
	c.EulerRotation = math.NewVec3Zero()
	c.Position = math.NewVec3Zero()
	c.FovY = math.DegToRad(70)
	c.NearClip = 0.1
	c.FarClip = 1000
	c.IsDirty = true
	c.ViewMatrix = math.NewMat4Identity()
}

func (c *Camera) SetPosition(position math.Vec3) {
	c.Position = position
	c.IsDirty = true
}

func (c *Camera) SetEulerRotation(rotation math.Vec3) {
	c.EulerRotation = rotation
	c.IsDirty = true
}

func (c *Camera) Rotation() math.Quaternion {
	yaw := math.NewQuatFromAxisAngle(math.NewVec3Up(), c.EulerRotation.Y)
	pitch := math.NewQuatFromAxisAngle(math.NewVec3(1, 0, 0), c.EulerRotation.X)
	return pitch.Mul(yaw)
}

// LookAt points the camera at target.
func (c *Camera) LookAt(target math.Vec3) {
	dir := target.Sub(c.Position).Normalized()
	pitch := float32(asin(dir.Y))
	yaw := float32(atan2(-dir.X, -dir.Z))
	c.SetEulerRotation(math.NewVec3(pitch, yaw, 0))
}

func (c *Camera) GetView() math.Mat4 {
	if c.IsDirty {
		world := c.Rotation().ToMat4().Mul(math.NewMat4Translation(c.Position))
		c.ViewMatrix = world.InverseAffine()
		c.IsDirty = false
	}
	return c.ViewMatrix
}

func (c *Camera) Projection(aspect float32) math.Mat4 {
	if c.Orthographic {
		return math.NewMat4Orthographic(-c.OrthoSize.X, c.OrthoSize.X, -c.OrthoSize.Y, c.OrthoSize.Y, c.NearClip, c.FarClip)
	}
	return math.NewMat4Perspective(c.FovY, aspect, c.NearClip, c.FarClip)
}

func (c *Camera) Forward() math.Vec3 {
	return math.NewVec3Forward().Transform(c.Rotation().ToMat4())
}

func (c *Camera) Right() math.Vec3 {
	return math.NewVec3(1, 0, 0).Transform(c.Rotation().ToMat4())
}

// UpdateConstants refreshes the CPU side constant buffer for the given aspect.
func (c *Camera) UpdateConstants(aspect float32) {
	view := c.GetView()
	proj := c.Projection(aspect)
	c.Constants.View = view
	c.Constants.Projection = proj
	c.Constants.ViewProjection = view.Mul(proj)
	c.Constants.Position = c.Position.ToVec4(1)
}

func asin(v float32) float64 {
	return stdmath.Asin(float64(math.Clamp(v, -1, 1)))
}

func atan2(y, x float32) float64 {
	return stdmath.Atan2(float64(y), float64(x))
}
