package systems

import (
	"fmt"

	"github.com/spaghettifunk/directengine/engine/core"
	"github.com/spaghettifunk/directengine/engine/math"
	"github.com/spaghettifunk/directengine/engine/memory"
	"github.com/spaghettifunk/directengine/engine/renderer"
	"github.com/spaghettifunk/directengine/engine/renderer/metadata"
)

type EntitySystemConfig struct {
	MaxEntityCount int
}

/** @brief Describes an entity to create. */
type EntityConfig struct {
	Name           string
	Material       *metadata.Material
	Mesh           *metadata.Mesh
	Transform      math.Transform
	Hidden         bool
	Wireframe      bool
	MainCameraOnly bool
	CastsShadows   bool
	// Skinned entities only. Parents come before their children.
	BindPose    []math.Transform
	BoneParents []int
	Animations  []*math.TransformAnimation
}

/**
 * @brief Owns the entities of the level. Each entity has its own triple
 * buffered constant buffer, plus bone buffers when it is skinned.
 */
type EntitySystem struct {
	Config   *EntitySystemConfig
	entities *memory.TypedArena[metadata.Entity]
	lookup   map[string]memory.Handle

	ctx *renderer.Context
}

func NewEntitySystem(config *EntitySystemConfig, ctx *renderer.Context) (*EntitySystem, error) {
	if config.MaxEntityCount <= 0 {
		err := fmt.Errorf("func NewEntitySystem - config.MaxEntityCount must be > 0")
		core.LogError("%s", err)
		return nil, err
	}
	return &EntitySystem{
		Config:   config,
		entities: memory.NewTypedArena[metadata.Entity]("entities", config.MaxEntityCount),
		lookup:   make(map[string]memory.Handle, config.MaxEntityCount),
		ctx:      ctx,
	}, nil
}

func (es *EntitySystem) Shutdown() error {
	es.Reset()
	return nil
}

/**
 * @brief Creates an entity and appends it to its material's draw list.
 * Panics when the entity pool or the material's list is full.
 */
func (es *EntitySystem) CreateEntity(config EntityConfig) (*metadata.Entity, error) {
	core.Assert(config.Material != nil && config.Mesh != nil, core.ErrInvalidHandle, "entity %s needs a material and a mesh", config.Name)
	core.Assert(!config.Material.Entities.Full(), core.ErrCapacityExceeded,
		"material %s draws at most %d entities", config.Material.Name, config.Material.Entities.Cap())

	h, e := es.entities.Alloc()
	e.Name = config.Name
	e.Material = config.Material
	e.Mesh = config.Mesh
	e.Transform = config.Transform
	if e.Transform.Scale == (math.Vec3{}) {
		e.Transform = math.NewTransform()
	}
	e.Visible = !config.Hidden
	e.Wireframe = config.Wireframe
	e.MainCameraOnly = config.MainCameraOnly
	e.CastsShadows = config.CastsShadows

	level := es.ctx.Scopes.Get(memory.ScopeLevel)
	cb, err := renderer.NewConstantBuffer(es.ctx.Device, nil, level, "entity "+config.Name, &e.Constants)
	if err != nil {
		return nil, err
	}
	e.ConstantBuffer = cb

	if len(config.BindPose) > 0 {
		if err := es.setupSkinning(e, config, level); err != nil {
			return nil, err
		}
	}

	config.Material.Entities.Add(e)
	es.lookup[config.Name] = h
	return e, nil
}

func (es *EntitySystem) setupSkinning(e *metadata.Entity, config EntityConfig, level *memory.ResourceStack) error {
	core.Assert(len(config.BindPose) <= metadata.MaxBones, core.ErrCapacityExceeded,
		"entity %s has %d bones, at most %d", config.Name, len(config.BindPose), metadata.MaxBones)
	core.Assert(len(config.Animations) <= metadata.MaxAnimations, core.ErrCapacityExceeded,
		"entity %s has %d animations, at most %d", config.Name, len(config.Animations), metadata.MaxAnimations)

	e.BindPose = config.BindPose
	e.BoneParents = config.BoneParents
	firstPerson := false
	for _, a := range config.Animations {
		if a.Joint < 0 || a.Joint >= len(config.BindPose) {
			core.LogWarn("entity %s: animation %s targets unknown joint %d, skipped", config.Name, a.Name, a.Joint)
			continue
		}
		e.Animations = append(e.Animations, a)
		firstPerson = firstPerson || a.OnlyInMainCamera
	}

	e.Bones = &metadata.BoneConstantBuffer{}
	bones, err := renderer.NewConstantBuffer(es.ctx.Device, nil, level, "bones "+config.Name, e.Bones)
	if err != nil {
		return err
	}
	e.BoneBuffer = bones

	if firstPerson {
		e.FirstPersonBones = &metadata.BoneConstantBuffer{}
		fp, err := renderer.NewConstantBuffer(es.ctx.Device, nil, level, "first person bones "+config.Name, e.FirstPersonBones)
		if err != nil {
			return err
		}
		e.FirstPersonBoneBuffer = fp
	}
	e.Constants.Flags.X = 1
	return nil
}

func (es *EntitySystem) Get(name string) (*metadata.Entity, bool) {
	h, ok := es.lookup[name]
	if !ok || !es.entities.Valid(h) {
		return nil, false
	}
	return es.entities.Get(h), true
}

// Each visits the entities in creation order.
func (es *EntitySystem) Each(fn func(e *metadata.Entity)) {
	es.entities.Each(func(_ memory.Handle, e *metadata.Entity) {
		fn(e)
	})
}

func (es *EntitySystem) Len() int {
	return es.entities.Len()
}

/**
 * @brief Advances animations by delta seconds and writes every entity's
 * constants into the given frame slot.
 */
func (es *EntitySystem) Update(delta float32, frameIndex uint32) {
	es.entities.Each(func(_ memory.Handle, e *metadata.Entity) {
		e.Constants.World = e.Transform.GetWorld()
		e.ConstantBuffer.UploadData(frameIndex)
		if !e.Skinned() {
			return
		}
		e.AnimTime += delta
		PoseBones(e, e.Bones, false)
		e.BoneBuffer.UploadData(frameIndex)
		if e.FirstPersonBones != nil {
			PoseBones(e, e.FirstPersonBones, true)
			e.FirstPersonBoneBuffer.UploadData(frameIndex)
		}
	})
}

/**
 * @brief Samples the entity's animations at its current time and writes
 * the skinning matrices into out. Animations marked OnlyInMainCamera are
 * applied to the first person pose only.
 */
func PoseBones(e *metadata.Entity, out *metadata.BoneConstantBuffer, firstPerson bool) {
	n := len(e.BindPose)
	pose := make([]math.Transform, n)
	copy(pose, e.BindPose)
	for i := range pose {
		pose[i].Parent = nil
		pose[i].IsDirty = true
	}
	for _, a := range e.Animations {
		if a.OnlyInMainCamera && !firstPerson {
			continue
		}
		a.Apply(&pose[a.Joint], e.AnimTime)
	}

	global := make([]math.Mat4, n)
	bind := make([]math.Mat4, n)
	for i := 0; i < n; i++ {
		b := e.BindPose[i]
		b.Parent = nil
		b.IsDirty = true
		local, bindLocal := pose[i].GetLocal(), b.GetLocal()
		if p := parentOf(e, i); p >= 0 {
			global[i] = local.Mul(global[p])
			bind[i] = bindLocal.Mul(bind[p])
		} else {
			global[i] = local
			bind[i] = bindLocal
		}
		out.Bones[i] = bind[i].InverseAffine().Mul(global[i])
	}
}

func parentOf(e *metadata.Entity, i int) int {
	if i >= len(e.BoneParents) {
		return -1
	}
	p := e.BoneParents[i]
	if p >= i {
		return -1
	}
	return p
}

// Reset forgets every entity. Constant buffers are released with the
// level scope.
func (es *EntitySystem) Reset() {
	es.entities.Reset()
	clear(es.lookup)
}
