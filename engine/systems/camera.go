package systems

import (
	"fmt"
	stdmath "math"

	"github.com/spaghettifunk/directengine/engine/containers"
	"github.com/spaghettifunk/directengine/engine/core"
	"github.com/spaghettifunk/directengine/engine/math"
	"github.com/spaghettifunk/directengine/engine/memory"
	"github.com/spaghettifunk/directengine/engine/renderer"
	"github.com/spaghettifunk/directengine/engine/renderer/metadata"
)

/** @brief The camera system configuration. */
type CameraSystemConfig struct {
	/**
	 * @brief NOTE: The maximum number of cameras that can be managed by
	 * the system.
	 */
	MaxCameraCount int
}

type CameraSystem struct {
	Config  *CameraSystemConfig
	Cameras *containers.FixedList[*metadata.Camera]
	// The main camera, always present.
	DefaultCamera *metadata.Camera

	ctx *renderer.Context
}

/**
 * @brief Initializes the camera system and the default camera.
 *
 * @param config The configuration for this system.
 */
func NewCameraSystem(config *CameraSystemConfig, ctx *renderer.Context) (*CameraSystem, error) {
	if config.MaxCameraCount <= 0 {
		err := fmt.Errorf("func NewCameraSystem - config.MaxCameraCount must be > 0")
		core.LogError("%s", err)
		return nil, err
	}
	cs := &CameraSystem{
		Config:  config,
		Cameras: containers.NewFixedList[*metadata.Camera]("cameras", config.MaxCameraCount),
		ctx:     ctx,
	}
	cam, err := cs.Acquire(metadata.DefaultCameraName, metadata.CameraRoleMain)
	if err != nil {
		return nil, err
	}
	cs.DefaultCamera = cam
	return cs, nil
}

/**
 * @brief Shuts down the camera system. Constant buffers are released with
 * the engine scope.
 */
func (cs *CameraSystem) Shutdown() error {
	cs.Cameras.Clear()
	return nil
}

/**
 * @brief Returns the camera called name, creating it with role when it
 * does not exist yet. Panics when the pool is full.
 *
 * @param name The name of the camera to acquire.
 */
func (cs *CameraSystem) Acquire(name string, role metadata.CameraRole) (*metadata.Camera, error) {
	if cam, ok := cs.Get(name); ok {
		return cam, nil
	}
	core.Assert(!cs.Cameras.Full(), core.ErrCapacityExceeded, "camera system holds %d cameras", cs.Cameras.Cap())

	core.LogDebug("creating new camera named '%s' (%s)", name, role)
	cam := metadata.NewCamera(name, role)
	cb, err := renderer.NewConstantBuffer(cs.ctx.Device, nil, cs.ctx.Scopes.Get(memory.ScopeEngine), "camera "+name, &cam.Constants)
	if err != nil {
		err = fmt.Errorf("failed to create constant buffer of camera %s: %w", name, err)
		core.LogError("%s", err)
		return nil, err
	}
	cam.ConstantBuffer = cb
	cs.Cameras.Add(cam)
	return cam, nil
}

func (cs *CameraSystem) Get(name string) (*metadata.Camera, bool) {
	i := cs.Cameras.IndexFunc(func(c *metadata.Camera) bool { return c.Name == name })
	if i < 0 {
		return nil, false
	}
	return *cs.Cameras.At(i), true
}

/**
 * @brief Gets a pointer to the default camera.
 *
 * @return A pointer to the default camera.
 */
func (cs *CameraSystem) GetDefault() *metadata.Camera {
	return cs.DefaultCamera
}

/**
 * @brief Refreshes and uploads the constants of every camera for the
 * given frame slot. Render texture cameras use the aspect of their target.
 */
func (cs *CameraSystem) Upload(frameIndex uint32, aspect float32, targets []*metadata.RenderTexture) {
	for _, cam := range cs.Cameras.Items() {
		a := aspect
		for _, rt := range targets {
			if rt.Camera == cam && rt.Height > 0 {
				a = float32(rt.Width) / float32(rt.Height)
			}
		}
		cam.UpdateConstants(a)
		cam.ConstantBuffer.UploadData(frameIndex)
	}
}

/**
 * @brief Fits the orthographic shadow camera around a bounding sphere of
 * the main camera's frustum, looking along sunDirection (pointing from the
 * sun into the scene). Returns the world to shadow clip transform.
 */
func CalculateShadowCamProjection(main, shadow *metadata.Camera, sunDirection math.Vec3, aspect, maxDistance float32) math.Mat4 {
	far := main.FarClip
	if maxDistance > 0 && maxDistance < far {
		far = maxDistance
	}
	near := main.NearClip

	tanY := float32(stdmath.Tan(float64(main.FovY) * 0.5))
	tanX := tanY * aspect
	world := main.GetView().InverseAffine()

	corners := make([]math.Vec3, 0, 8)
	for _, d := range []float32{near, far} {
		for _, sx := range []float32{-1, 1} {
			for _, sy := range []float32{-1, 1} {
				corners = append(corners, math.NewVec3(sx*tanX*d, sy*tanY*d, -d).Transform(world))
			}
		}
	}

	centre := math.NewVec3Zero()
	for _, c := range corners {
		centre = centre.Add(c)
	}
	centre = centre.MulScalar(1.0 / float32(len(corners)))

	radius := float32(0)
	for _, c := range corners {
		radius = max(radius, c.Sub(centre).Length())
	}
	radius = float32(stdmath.Ceil(float64(radius)))

	dir := sunDirection.Normalized()
	shadow.Orthographic = true
	shadow.OrthoSize = math.NewVec2(radius, radius)
	shadow.NearClip = 0
	shadow.FarClip = radius * 2
	shadow.SetPosition(centre.Sub(dir.MulScalar(radius)))
	shadow.LookAt(centre)

	shadow.UpdateConstants(1)
	return shadow.Constants.ViewProjection
}
