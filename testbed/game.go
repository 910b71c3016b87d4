package testbed

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spaghettifunk/directengine/engine"
	"github.com/spaghettifunk/directengine/engine/core"
	"github.com/spaghettifunk/directengine/engine/math"
	"github.com/spaghettifunk/directengine/engine/renderer/metadata"
	"github.com/spaghettifunk/directengine/engine/systems"
)

const (
	MaterialsFile = "materials.txt"
	// Shader of the fallback level.
	DefaultShader = "lit"

	mouseSensitivity = 0.003
	spinSpeed        = 0.5
)

type TestGame struct {
	*engine.Game
}

type gameState struct {
	camera   *metadata.Camera
	velocity math.Vec3
	spinning []*metadata.Entity

	width  uint32
	height uint32
}

func NewTestGame(settingsPath string) *TestGame {
	tg := &TestGame{
		Game: &engine.Game{
			ApplicationConfig: &engine.ApplicationConfig{
				Name:         "DirectEngine Testbed",
				SettingsPath: settingsPath,
			},
			State: &gameState{},
		},
	}

	tg.FnInitialize = tg.Initialize
	tg.FnLoadLevel = tg.LoadLevel
	tg.FnUpdate = tg.Update
	tg.FnOnResize = tg.OnResize
	tg.FnShutdown = tg.Shutdown
	return tg
}

func (g *TestGame) state() *gameState {
	return g.State.(*gameState)
}

func (g *TestGame) Initialize(sm *systems.SystemManager) error {
	core.LogInfo("initializing testbed...")
	s := g.state()
	s.camera = sm.CameraSystem.GetDefault()
	s.camera.SetPosition(math.NewVec3(0, 2, 8))
	s.camera.LookAt(math.NewVec3(0, 1, 0))
	return nil
}

/**
 * @brief Builds the level: the materials file when there is one, a lit
 * material otherwise, one spinning quad per material, a floor and a portal
 * showing the scene from above.
 */
func (g *TestGame) LoadLevel(sm *systems.SystemManager) error {
	s := g.state()
	s.spinning = s.spinning[:0]

	_, err := os.Stat(filepath.Join(sm.Config.ResourcePath, MaterialsFile))
	switch {
	case err == nil:
		if err := sm.LoadMaterials(MaterialsFile); err != nil {
			return err
		}
	case errors.Is(err, fs.ErrNotExist):
		core.LogInfo("no %s, using the %s shader", MaterialsFile, DefaultShader)
	default:
		return err
	}
	if sm.MaterialSystem.Len() == 0 {
		sm.MaterialSystem.CreateMaterial("default", DefaultShader)
	}

	materials := sm.MaterialSystem.Materials()
	quad := sm.MeshSystem.CreateQuad("quad", 1, 1)
	for i, m := range materials {
		x := float32(i) - float32(len(materials)-1)/2
		e, err := sm.EntitySystem.CreateEntity(systems.EntityConfig{
			Name:         fmt.Sprintf("quad %s", m.Name),
			Material:     m,
			Mesh:         quad,
			Transform:    math.NewTransformFromPosition(math.NewVec3(x*1.5, 1, 0)),
			CastsShadows: true,
		})
		if err != nil {
			return err
		}
		s.spinning = append(s.spinning, e)
	}

	floor := sm.MeshSystem.CreateQuad("floor", 20, 20)
	flat := math.NewQuatFromAxisAngle(math.NewVec3(1, 0, 0), -math.DegToRad(90))
	if _, err := sm.EntitySystem.CreateEntity(systems.EntityConfig{
		Name:      "floor",
		Material:  materials[0],
		Mesh:      floor,
		Transform: math.NewTransformFromPositionRotationScale(math.NewVec3Zero(), flat, math.NewVec3One()),
	}); err != nil {
		return err
	}
	if _, err := sm.EntitySystem.CreateEntity(systems.EntityConfig{
		Name:      "floor grid",
		Material:  materials[0],
		Mesh:      floor,
		Transform: math.NewTransformFromPositionRotationScale(math.NewVec3(0, 0.01, 0), flat, math.NewVec3One()),
		Wireframe: true,
	}); err != nil {
		return err
	}

	return g.createPortal(sm, quad)
}

func (g *TestGame) createPortal(sm *systems.SystemManager, quad *metadata.Mesh) error {
	cam, err := sm.CameraSystem.Acquire("portal", metadata.CameraRoleRenderTexture)
	if err != nil {
		return err
	}
	cam.SetPosition(math.NewVec3(0, 10, 0.1))
	cam.LookAt(math.NewVec3Zero())
	rt, err := sm.TextureSystem.CreateRenderTexture("portal", 512, 512, cam)
	if err != nil {
		return err
	}
	screen := sm.MaterialSystem.CreateMaterial("portal", DefaultShader)
	screen.Textures.Add(rt.Asset)
	screen.AddDefine("DIFFUSE_TEXTURE", "1")
	_, err = sm.EntitySystem.CreateEntity(systems.EntityConfig{
		Name:           "portal",
		Material:       screen,
		Mesh:           quad,
		Transform:      math.NewTransformFromPositionRotationScale(math.NewVec3(0, 2, -4), math.NewQuatIdentity(), math.NewVec3(3, 3, 1)),
		MainCameraOnly: true,
	})
	return err
}

func (g *TestGame) Update(frame *engine.Frame) error {
	s := g.state()
	dt := float32(frame.DeltaTime)
	in := frame.Input

	spin := math.NewQuatFromAxisAngle(math.NewVec3Up(), spinSpeed*dt)
	for _, e := range s.spinning {
		e.Transform.Rotate(spin)
	}

	if in.IsButtonDown(core.BUTTON_RIGHT) {
		rot := s.camera.EulerRotation
		rot.X = math.Clamp(rot.X-float32(in.MouseDeltaY)*mouseSensitivity, -1.5, 1.5)
		rot.Y -= float32(in.MouseDeltaX) * mouseSensitivity
		s.camera.SetEulerRotation(rot)
	}

	move := frame.Config.Movement
	var wish math.Vec3
	if in.IsKeyDown(core.KEY_W) {
		wish = wish.Add(s.camera.Forward())
	}
	if in.IsKeyDown(core.KEY_S) {
		wish = wish.Sub(s.camera.Forward())
	}
	if in.IsKeyDown(core.KEY_D) {
		wish = wish.Add(s.camera.Right())
	}
	if in.IsKeyDown(core.KEY_A) {
		wish = wish.Sub(s.camera.Right())
	}
	if in.IsKeyDown(core.KEY_SPACE) {
		wish = wish.Add(math.NewVec3Up())
	}
	if in.IsKeyDown(core.KEY_LSHIFT) || in.IsKeyDown(core.KEY_SHIFT) {
		wish = wish.Sub(math.NewVec3Up())
	}

	if wish.LengthSquared() > 0 {
		s.velocity = s.velocity.Add(wish.Normalized().MulScalar(move.Acceleration * dt))
	}
	if speed := s.velocity.Length(); speed > 0 {
		drop := move.Friction * dt * 0.1
		s.velocity = s.velocity.MulScalar(max(speed-drop, 0) / speed)
		if speed > move.MaxSpeed {
			s.velocity = s.velocity.MulScalar(move.MaxSpeed / speed)
		}
	}
	s.camera.SetPosition(s.camera.Position.Add(s.velocity.MulScalar(dt)))

	rs := frame.Systems.RendererSystem
	rs.AddDebugLine(math.NewVec3Zero(), math.NewVec3(1, 0, 0), math.NewVec4(1, 0, 0, 1))
	rs.AddDebugLine(math.NewVec3Zero(), math.NewVec3(0, 1, 0), math.NewVec4(0, 1, 0, 1))
	rs.AddDebugLine(math.NewVec3Zero(), math.NewVec3(0, 0, 1), math.NewVec4(0, 0, 1, 1))

	if in.KeyPressed(core.KEY_P) {
		p := s.camera.Position
		core.LogInfo("camera at [%.2f, %.2f, %.2f]", p.X, p.Y, p.Z)
	}
	return nil
}

func (g *TestGame) OnResize(width uint32, height uint32) error {
	s := g.state()
	s.width, s.height = width, height
	return nil
}

func (g *TestGame) Shutdown() error {
	core.LogInfo("shutting down testbed...")
	return nil
}
