package memory

import (
	"errors"
	"testing"
	"unsafe"

	"github.com/spaghettifunk/directengine/engine/core"
)

func mustPanic(t *testing.T, target error, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("expected panic")
		}
		if err, ok := r.(error); !ok || !errors.Is(err, target) {
			t.Fatalf("expected %v, got %v", target, r)
		}
	}()
	fn()
}

func addr(b []byte) uintptr {
	return uintptr(unsafe.Pointer(unsafe.SliceData(b)))
}

func TestAlign(t *testing.T) {
	cases := []struct{ in, want uint64 }{
		{0, 0}, {1, 8}, {8, 8}, {9, 16}, {17, 24}, {25, 32},
	}
	for _, c := range cases {
		if got := Align(c.in, 8); got != c.want {
			t.Errorf("Align(%d, 8) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestArenaMonotonic(t *testing.T) {
	a := NewArena("test", 64)
	if a.Base()%ArenaBaseAlignment != 0 {
		t.Fatalf("base %#x not aligned", a.Base())
	}

	var sum uint64
	for _, size := range []uint64{3, 8, 1, 20, 32} {
		b := a.Allocate(size)
		if uint64(len(b)) != size {
			t.Fatalf("got %d bytes, want %d", len(b), size)
		}
		if addr(b) != a.Base()+uintptr(sum) && size > 0 {
			t.Fatalf("allocation of %d at %#x, want base+%d", size, addr(b), sum)
		}
		sum += size
		if a.Used() != sum {
			t.Fatalf("used = %d, want %d", a.Used(), sum)
		}
	}
	if a.Used() != a.Capacity() {
		t.Fatalf("arena should be exactly full, used %d", a.Used())
	}
}

func TestArenaOverflowLeavesStateUntouched(t *testing.T) {
	a := NewArena("test", 16)
	first := a.Allocate(12)
	first[0] = 0xAB

	mustPanic(t, core.ErrArenaExhausted, func() { a.Allocate(5) })
	if a.Used() != 12 {
		t.Fatalf("used changed to %d after failed allocation", a.Used())
	}
	if first[0] != 0xAB {
		t.Fatal("memory mutated by failed allocation")
	}
	mustPanic(t, core.ErrArenaExhausted, func() { a.AllocateAligned(4, 16) })
	if a.Used() != 12 {
		t.Fatalf("used changed to %d after failed aligned allocation", a.Used())
	}
}

func TestArenaAligned(t *testing.T) {
	a := NewArena("test", 64)
	a.Allocate(8)
	b := a.AllocateAligned(8, 16)

	if a.Used() != 24 {
		t.Fatalf("used = %d, want 24", a.Used())
	}
	if a.Offset(b)%16 != 0 || addr(b)%16 != 0 {
		t.Fatalf("allocation not 16 byte aligned: offset %d addr %#x", a.Offset(b), addr(b))
	}
	mustPanic(t, core.ErrInvalidAlignment, func() { a.AllocateAligned(4, 12) })
}

func TestArenaResetIdempotent(t *testing.T) {
	a := NewArena("test", 32)
	a.Allocate(10)
	a.Allocate(10)
	a.Reset()
	a.Reset()
	if a.Used() != 0 {
		t.Fatalf("used = %d after reset", a.Used())
	}
	if a.Committed() != 20 {
		t.Fatalf("committed = %d, want high-water mark 20", a.Committed())
	}

	fresh := NewArena("fresh", 32)
	for _, size := range []uint64{4, 12, 16} {
		x, y := a.Allocate(size), fresh.Allocate(size)
		if a.Offset(x) != fresh.Offset(y) || a.Used() != fresh.Used() {
			t.Fatal("reset arena diverged from a fresh arena")
		}
	}
}

type tracked struct {
	id  int
	log *[]int
}

func (r *tracked) Release() {
	*r.log = append(*r.log, r.id)
}

func TestResourceStackReleasesInReverse(t *testing.T) {
	var released []int
	s := NewResourceStack("engine", 4)
	for i := 1; i <= 3; i++ {
		s.Track(&tracked{id: i, log: &released})
	}
	s.ReleaseAll()
	if len(released) != 3 || released[0] != 3 || released[2] != 1 {
		t.Fatalf("release order %v", released)
	}
	if s.Len() != 0 {
		t.Fatal("stack should be empty")
	}
	s.ReleaseAll()
	if len(released) != 3 {
		t.Fatal("second ReleaseAll released again")
	}
}

func TestResourceStackAssertions(t *testing.T) {
	var released []int
	s := NewResourceStack("level", 2)
	r := &tracked{id: 1, log: &released}
	s.Track(r)
	mustPanic(t, core.ErrAlreadyTracked, func() { s.Track(r) })
	s.Track(&tracked{id: 2, log: &released})
	mustPanic(t, core.ErrCapacityExceeded, func() { s.Track(&tracked{id: 3, log: &released}) })

	s.Replace(r, &tracked{id: 4, log: &released})
	if len(released) != 1 || released[0] != 1 {
		t.Fatalf("replace should release the old resource, got %v", released)
	}
	s.ReleaseAll()
	if released[1] != 2 || released[2] != 4 {
		t.Fatalf("replacement lost its slot: %v", released)
	}
}

func TestScopesReleaseShortestLivedFirst(t *testing.T) {
	var order []string
	s := NewScopes(8)
	for _, sc := range []Scope{ScopeEngine, ScopeSizeDependent, ScopeLevel, ScopeUpload} {
		name := sc.String()
		s.Track(sc, ReleaseFunc(name, func() { order = append(order, name) }))
	}
	s.ReleaseAll()
	want := []string{"upload", "level", "size-dependent", "engine"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order %v, want %v", order, want)
		}
	}
}

func TestTypedArenaGenerations(t *testing.T) {
	a := NewTypedArena[string]("meshes", 2)
	h, v := a.Alloc()
	*v = "quad"
	if *a.Get(h) != "quad" {
		t.Fatal("lookup failed")
	}
	a.Alloc()
	mustPanic(t, core.ErrCapacityExceeded, func() { a.Alloc() })

	a.Reset()
	if a.Valid(h) {
		t.Fatal("handle survived reset")
	}
	mustPanic(t, core.ErrInvalidHandle, func() { a.Get(h) })
	h2, _ := a.Alloc()
	if h2.Index != h.Index || h2.Generation == h.Generation {
		t.Fatalf("unexpected handle %+v after reset", h2)
	}
}

func TestAllocateSliceLivesInArena(t *testing.T) {
	type vertex struct{ x, y, z float32 }
	a := NewArena("frame", 256)
	a.Allocate(1)
	vs := AllocateSlice[vertex](a, 4)
	if len(vs) != 0 || cap(vs) != 4 {
		t.Fatalf("len %d cap %d", len(vs), cap(vs))
	}
	if a.Used() != 4+4*12 {
		t.Fatalf("used = %d", a.Used())
	}
	vs = append(vs, vertex{1, 2, 3})
	if uintptr(unsafe.Pointer(&vs[0])) != a.Base()+4 {
		t.Fatal("slice not backed by the arena")
	}
}
