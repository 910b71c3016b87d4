package math

import "testing"

func TestSampleTrack(t *testing.T) {
	track := Track[Vec4]{
		Times:  []float32{0, 0.25, 0.75, 1},
		Values: []Vec4{{0, 0, 0, 0}, {1, 1, 1, 1}, {2, 2, 2, 2}, {3, 3, 3, 3}},
	}
	cases := []struct {
		time float32
		want float32
	}{
		{-1, 0}, {0, 0}, {0.25, 1}, {0.5, 1.5}, {0.75, 2}, {1, 3}, {1.25, 3},
	}
	for _, c := range cases {
		got := SampleTrack(track, c.time, LerpVec4)
		if Abs(got.X-c.want) > 1e-5 || Abs(got.W-c.want) > 1e-5 {
			t.Errorf("sample(%v) = %v, want %v", c.time, got, c.want)
		}
	}
}

func TestTransformWorld(t *testing.T) {
	parent := NewTransformFromPosition(Vec3{0, 10, 0})
	child := NewTransformFromPosition(Vec3{1, 0, 0})
	child.Parent = &parent

	got := Vec3{}.Transform(child.GetWorld())
	if !got.Compare(Vec3{1, 10, 0}, 1e-5) {
		t.Fatalf("world origin = %v", got)
	}
}

func TestQuaternionRotatesRowVector(t *testing.T) {
	q := NewQuatFromAxisAngle(NewVec3Up(), DegToRad(90))
	got := Vec3{1, 0, 0}.Transform(q.ToMat4())
	if !got.Compare(Vec3{0, 0, -1}, 1e-5) {
		t.Fatalf("rotated x axis = %v", got)
	}
}

func TestInverseAffine(t *testing.T) {
	tr := NewTransformFromPositionRotationScale(Vec3{3, -2, 5}, NewQuatFromAxisAngle(Vec3{1, 1, 0}, 0.7), Vec3{2, 2, 2})
	m := tr.GetLocal()
	p := Vec3{1, 2, 3}
	back := p.Transform(m).Transform(m.InverseAffine())
	if !back.Compare(p, 1e-4) {
		t.Fatalf("round trip = %v", back)
	}
}
