package math

import (
	stdmath "math"

	"golang.org/x/exp/constraints"
)

// Clamp returns the value `f` clamped to the range [low, high].
// It works for any numeric type (integers and floats).
func Clamp[T constraints.Ordered](f, low, high T) T {
	if f < low {
		return low
	}
	if f > high {
		return high
	}
	return f
}

func Lerp[T constraints.Float](a, b, t T) T {
	return a + (b-a)*t
}

func Abs[T constraints.Signed | constraints.Float](v T) T {
	if v < 0 {
		return -v
	}
	return v
}

func DegToRad(degrees float32) float32 {
	return degrees * (stdmath.Pi / 180.0)
}

func RadToDeg(radians float32) float32 {
	return radians * (180.0 / stdmath.Pi)
}
