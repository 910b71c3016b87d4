package math

import stdmath "math"

/**
 * @brief Creates and returns an identity matrix.
 */
func NewMat4Identity() Mat4 {
	m := Mat4{}
	m.Data[0] = 1.0
	m.Data[5] = 1.0
	m.Data[10] = 1.0
	m.Data[15] = 1.0
	return m
}

/**
 * @brief Returns the result of multiplying mt and other. With row vectors
 * the result applies mt first.
 */
func (mt Mat4) Mul(other Mat4) Mat4 {
	out := Mat4{}
	for row := 0; row < 4; row++ {
		for col := 0; col < 4; col++ {
			sum := float32(0)
			for i := 0; i < 4; i++ {
				sum += mt.Data[row*4+i] * other.Data[i*4+col]
			}
			out.Data[row*4+col] = sum
		}
	}
	return out
}

/**
 * @brief Creates an orthographic projection matrix with a [0,1] depth range.
 */
func NewMat4Orthographic(left, right, bottom, top, nearClip, farClip float32) Mat4 {
	m := NewMat4Identity()
	m.Data[0] = 2.0 / (right - left)
	m.Data[5] = 2.0 / (top - bottom)
	m.Data[10] = 1.0 / (nearClip - farClip)
	m.Data[12] = (left + right) / (left - right)
	m.Data[13] = (top + bottom) / (bottom - top)
	m.Data[14] = nearClip / (nearClip - farClip)
	return m
}

/**
 * @brief Creates a right-handed perspective matrix with a [0,1] depth range.
 */
func NewMat4Perspective(fovRadians, aspectRatio, nearClip, farClip float32) Mat4 {
	halfTanFov := float32(stdmath.Tan(float64(fovRadians) * 0.5))
	m := Mat4{}
	m.Data[0] = 1.0 / (aspectRatio * halfTanFov)
	m.Data[5] = 1.0 / halfTanFov
	m.Data[10] = farClip / (nearClip - farClip)
	m.Data[11] = -1.0
	m.Data[14] = (nearClip * farClip) / (nearClip - farClip)
	return m
}

/**
 * @brief Creates a view matrix looking at target from position.
 */
func NewMat4LookAt(position, target, up Vec3) Mat4 {
	zAxis := position.Sub(target).Normalized()
	xAxis := up.Cross(zAxis).Normalized()
	yAxis := zAxis.Cross(xAxis)

	m := NewMat4Identity()
	m.Data[0], m.Data[1], m.Data[2] = xAxis.X, yAxis.X, zAxis.X
	m.Data[4], m.Data[5], m.Data[6] = xAxis.Y, yAxis.Y, zAxis.Y
	m.Data[8], m.Data[9], m.Data[10] = xAxis.Z, yAxis.Z, zAxis.Z
	m.Data[12] = -xAxis.Dot(position)
	m.Data[13] = -yAxis.Dot(position)
	m.Data[14] = -zAxis.Dot(position)
	return m
}

func (mt Mat4) Transposed() Mat4 {
	out := Mat4{}
	for row := 0; row < 4; row++ {
		for col := 0; col < 4; col++ {
			out.Data[col*4+row] = mt.Data[row*4+col]
		}
	}
	return out
}

/**
 * @brief Returns the inverse of an affine transform (rotation, uniform or
 * non-uniform scale and translation).
 */
func (mt Mat4) InverseAffine() Mat4 {
	m := mt.Data
	// Inverse of the upper 3x3 via the adjugate.
	a, b, c := m[0], m[1], m[2]
	d, e, f := m[4], m[5], m[6]
	g, h, i := m[8], m[9], m[10]

	co00 := e*i - f*h
	co01 := f*g - d*i
	co02 := d*h - e*g
	det := a*co00 + b*co01 + c*co02
	if det == 0 {
		return NewMat4Identity()
	}
	inv := 1 / det

	out := NewMat4Identity()
	out.Data[0] = co00 * inv
	out.Data[1] = (c*h - b*i) * inv
	out.Data[2] = (b*f - c*e) * inv
	out.Data[4] = co01 * inv
	out.Data[5] = (a*i - c*g) * inv
	out.Data[6] = (c*d - a*f) * inv
	out.Data[8] = co02 * inv
	out.Data[9] = (b*g - a*h) * inv
	out.Data[10] = (a*e - b*d) * inv

	t := Vec3{m[12], m[13], m[14]}
	out.Data[12] = -(t.X*out.Data[0] + t.Y*out.Data[4] + t.Z*out.Data[8])
	out.Data[13] = -(t.X*out.Data[1] + t.Y*out.Data[5] + t.Z*out.Data[9])
	out.Data[14] = -(t.X*out.Data[2] + t.Y*out.Data[6] + t.Z*out.Data[10])
	return out
}

func NewMat4Translation(position Vec3) Mat4 {
	m := NewMat4Identity()
	m.Data[12] = position.X
	m.Data[13] = position.Y
	m.Data[14] = position.Z
	return m
}

func NewMat4Scale(scale Vec3) Mat4 {
	m := NewMat4Identity()
	m.Data[0] = scale.X
	m.Data[5] = scale.Y
	m.Data[10] = scale.Z
	return m
}

func (mt Mat4) Translation() Vec3 {
	return Vec3{mt.Data[12], mt.Data[13], mt.Data[14]}
}

func (mt Mat4) Forward() Vec3 {
	return Vec3{-mt.Data[8], -mt.Data[9], -mt.Data[10]}.Normalized()
}

func (mt Mat4) Right() Vec3 {
	return Vec3{mt.Data[0], mt.Data[1], mt.Data[2]}.Normalized()
}

func (mt Mat4) Up() Vec3 {
	return Vec3{mt.Data[4], mt.Data[5], mt.Data[6]}.Normalized()
}
