package engine

import (
	"github.com/spaghettifunk/directengine/engine/math"
	"github.com/spaghettifunk/directengine/engine/renderer/metadata"
)

/**
 * @brief The rigid body simulation the engine steps once per frame. Static
 * and kinematic bodies follow their entity; dynamic bodies drive it.
 */
type Physics interface {
	// IsDynamic reports whether the simulation owns the entity's transform.
	IsDynamic(e *metadata.Entity) bool
	SetKinematicTransform(e *metadata.Entity, t math.Transform)
	Step(deltaTime float64) error
	// DynamicTransforms reports the simulated transform of every dynamic body.
	DynamicTransforms(fn func(e *metadata.Entity, t math.Transform))
	// DebugLines reports the segments to visualise, if any.
	DebugLines(fn func(from, to math.Vec3, colour math.Vec4))
}
