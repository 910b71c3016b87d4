package math

import stdmath "math"

func NewQuatIdentity() Quaternion {
	return Quaternion{0, 0, 0, 1}
}

/**
 * @brief Creates a quaternion rotating angle radians around axis.
 */
func NewQuatFromAxisAngle(axis Vec3, angle float32) Quaternion {
	half := float64(angle) * 0.5
	s := float32(stdmath.Sin(half))
	c := float32(stdmath.Cos(half))
	n := axis.Normalized()
	return Quaternion{s * n.X, s * n.Y, s * n.Z, c}
}

func (q Quaternion) Dot(other Quaternion) float32 {
	return q.X*other.X + q.Y*other.Y + q.Z*other.Z + q.W*other.W
}

func (q Quaternion) Normalize() Quaternion {
	n := float32(stdmath.Sqrt(float64(q.Dot(q))))
	if n == 0 {
		return NewQuatIdentity()
	}
	return Quaternion{q.X / n, q.Y / n, q.Z / n, q.W / n}
}

func (q Quaternion) Conjugate() Quaternion {
	return Quaternion{-q.X, -q.Y, -q.Z, q.W}
}

// Mul returns the rotation q followed by other.
func (q Quaternion) Mul(other Quaternion) Quaternion {
	return Quaternion{
		X: q.X*other.W + q.Y*other.Z - q.Z*other.Y + q.W*other.X,
		Y: -q.X*other.Z + q.Y*other.W + q.Z*other.X + q.W*other.Y,
		Z: q.X*other.Y - q.Y*other.X + q.Z*other.W + q.W*other.Z,
		W: -q.X*other.X - q.Y*other.Y - q.Z*other.Z + q.W*other.W,
	}
}

/**
 * @brief Creates a rotation matrix, laid out for row vectors.
 */
func (q Quaternion) ToMat4() Mat4 {
	n := q.Normalize()
	m := NewMat4Identity()

	m.Data[0] = 1.0 - 2.0*n.Y*n.Y - 2.0*n.Z*n.Z
	m.Data[1] = 2.0*n.X*n.Y + 2.0*n.Z*n.W
	m.Data[2] = 2.0*n.X*n.Z - 2.0*n.Y*n.W

	m.Data[4] = 2.0*n.X*n.Y - 2.0*n.Z*n.W
	m.Data[5] = 1.0 - 2.0*n.X*n.X - 2.0*n.Z*n.Z
	m.Data[6] = 2.0*n.Y*n.Z + 2.0*n.X*n.W

	m.Data[8] = 2.0*n.X*n.Z + 2.0*n.Y*n.W
	m.Data[9] = 2.0*n.Y*n.Z - 2.0*n.X*n.W
	m.Data[10] = 1.0 - 2.0*n.X*n.X - 2.0*n.Y*n.Y
	return m
}

/**
 * @brief Spherical linear interpolation along the shorter arc.
 */
func (q Quaternion) Slerp(other Quaternion, percentage float32) Quaternion {
	v0 := q.Normalize()
	v1 := other.Normalize()

	dot := v0.Dot(v1)
	if dot < 0.0 {
		v1 = Quaternion{-v1.X, -v1.Y, -v1.Z, -v1.W}
		dot = -dot
	}

	const dotThreshold = 0.9995
	if dot > dotThreshold {
		return Quaternion{
			Lerp(v0.X, v1.X, percentage),
			Lerp(v0.Y, v1.Y, percentage),
			Lerp(v0.Z, v1.Z, percentage),
			Lerp(v0.W, v1.W, percentage),
		}.Normalize()
	}

	theta0 := stdmath.Acos(float64(dot))
	theta := theta0 * float64(percentage)
	sinTheta := stdmath.Sin(theta)
	sinTheta0 := stdmath.Sin(theta0)

	s0 := float32(stdmath.Cos(theta) - float64(dot)*sinTheta/sinTheta0)
	s1 := float32(sinTheta / sinTheta0)

	return Quaternion{
		v0.X*s0 + v1.X*s1,
		v0.Y*s0 + v1.Y*s1,
		v0.Z*s0 + v1.Z*s1,
		v0.W*s0 + v1.W*s1,
	}
}
