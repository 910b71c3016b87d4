package math

import "sort"

// Track is a keyframed channel. Times are ascending and match Values one to one.
type Track[T any] struct {
	Times  []float32
	Values []T
}

// SampleTrack returns the value at time. Times before the first key or after
// the last clamp to the end values; anything between two keys goes through
// interp with the normalised position between them.
func SampleTrack[T any](track Track[T], time float32, interp func(a, b T, t float32) T) T {
	n := len(track.Times)
	if n == 0 {
		var zero T
		return zero
	}
	if time <= track.Times[0] {
		return track.Values[0]
	}
	if time >= track.Times[n-1] {
		return track.Values[n-1]
	}

	next := sort.Search(n, func(i int) bool { return track.Times[i] > time })
	prev := next - 1
	span := track.Times[next] - track.Times[prev]
	if span <= 0 {
		return track.Values[next]
	}
	return interp(track.Values[prev], track.Values[next], (time-track.Times[prev])/span)
}

func LerpVec3(a, b Vec3, t float32) Vec3 {
	return a.Lerp(b, t)
}

func LerpVec4(a, b Vec4, t float32) Vec4 {
	return a.Lerp(b, t)
}

func SlerpQuat(a, b Quaternion, t float32) Quaternion {
	return a.Slerp(b, t)
}

// TransformAnimation animates one joint of a hierarchy.
type TransformAnimation struct {
	Name        string
	// Index into the bone hierarchy the animation drives.
	Joint       int
	Duration    float32
	Translation Track[Vec3]
	Rotation    Track[Quaternion]
	Scale       Track[Vec3]
	// Only applied to the first-person bone set rendered for the main camera.
	OnlyInMainCamera bool
}

// Apply writes the sampled channels of the animation into t. Empty channels
// leave the matching component untouched.
func (a *TransformAnimation) Apply(t *Transform, time float32) {
	if a.Duration > 0 {
		for time > a.Duration {
			time -= a.Duration
		}
	}
	if len(a.Translation.Times) > 0 {
		t.Position = SampleTrack(a.Translation, time, LerpVec3)
	}
	if len(a.Rotation.Times) > 0 {
		t.Rotation = SampleTrack(a.Rotation, time, SlerpQuat)
	}
	if len(a.Scale.Times) > 0 {
		t.Scale = SampleTrack(a.Scale, time, LerpVec3)
	}
	t.IsDirty = true
}
