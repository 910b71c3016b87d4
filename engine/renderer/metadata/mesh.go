package metadata

import (
	"github.com/spaghettifunk/directengine/engine/math"
)

/**
 * @brief A range of the shared geometry buffer.
 */
type Mesh struct {
	Name string
	/** @brief View into the shared device local vertex buffer. */
	Vertices    VertexBufferView
	FirstVertex uint32
	VertexCount uint32
	Bounds      math.Extents3D
	/** @brief Bottom level acceleration structure, when raytracing is enabled. */
	BLAS AccelerationStructure
	/** @brief Set when the vertices changed since the last BLAS build. */
	GeometryDirty bool
}
