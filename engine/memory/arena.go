package memory

import (
	"unsafe"

	"github.com/spaghettifunk/directengine/engine/core"
	"golang.org/x/exp/constraints"
)

// ArenaBaseAlignment is the absolute address alignment of every arena base.
const ArenaBaseAlignment = 4096

// Align rounds value up to the next multiple of the power-of-two alignment.
func Align[T constraints.Unsigned](value, alignment T) T {
	return (value + alignment - 1) &^ (alignment - 1)
}

func isPowerOfTwo(v uint64) bool {
	return v != 0 && v&(v-1) == 0
}

// Arena is a bump allocator over one fixed block. Memory is handed out in
// order and only reclaimed by Reset, which does not zero it. Arenas are owned
// by a single goroutine.
//
// Only pointer-free data may live in an arena: the collector does not scan
// the backing block for references.
type Arena struct {
	name      string
	buf       []byte
	used      uint64
	committed uint64
}

func NewArena(name string, capacity uint64) *Arena {
	raw := make([]byte, capacity+ArenaBaseAlignment)
	addr := uint64(uintptr(unsafe.Pointer(unsafe.SliceData(raw))))
	off := Align(addr, ArenaBaseAlignment) - addr
	core.LogDebug("arena %s created with %d bytes", name, capacity)
	return &Arena{
		name: name,
		buf:  raw[off : off+capacity : off+capacity],
	}
}

// Allocate returns the next size bytes. Running past the capacity panics with
// core.ErrArenaExhausted and leaves the arena untouched.
func (a *Arena) Allocate(size uint64) []byte {
	return a.allocateAt(a.used, size)
}

// AllocateAligned rounds the cursor up to alignment before allocating. The
// returned memory is aligned in absolute address, not only as an offset.
func (a *Arena) AllocateAligned(size, alignment uint64) []byte {
	core.Assert(isPowerOfTwo(alignment), core.ErrInvalidAlignment, "arena %s: alignment %d", a.name, alignment)
	core.Assert(alignment <= ArenaBaseAlignment, core.ErrInvalidAlignment, "arena %s: alignment %d larger than base alignment", a.name, alignment)
	return a.allocateAt(Align(a.used, alignment), size)
}

func (a *Arena) allocateAt(start, size uint64) []byte {
	capacity := a.Capacity()
	core.Assert(start <= capacity && size <= capacity-start, core.ErrArenaExhausted,
		"arena %s: %d bytes requested at offset %d, capacity %d", a.name, size, start, capacity)

	a.used = start + size
	if a.used > a.committed {
		a.committed = a.used
	}
	return a.buf[start:a.used:a.used]
}

// Reset moves the cursor back to zero. Previously returned slices alias the
// memory handed out next and must not be used afterwards.
func (a *Arena) Reset() {
	a.used = 0
}

func (a *Arena) Name() string {
	return a.name
}

func (a *Arena) Used() uint64 {
	return a.used
}

func (a *Arena) Capacity() uint64 {
	return uint64(len(a.buf))
}

// Committed is the high-water mark of Used since creation.
func (a *Arena) Committed() uint64 {
	return a.committed
}

func (a *Arena) Base() uintptr {
	return uintptr(unsafe.Pointer(unsafe.SliceData(a.buf)))
}

// Offset returns where b starts relative to the arena base.
func (a *Arena) Offset(b []byte) uint64 {
	return uint64(uintptr(unsafe.Pointer(unsafe.SliceData(b))) - a.Base())
}

// Bytes returns the used portion of the arena.
func (a *Arena) Bytes() []byte {
	return a.buf[:a.used]
}

// AllocateSlice returns an empty slice of capacity n whose backing array
// lives in a. T must not contain pointers.
func AllocateSlice[T any](a *Arena, n int) []T {
	var zero T
	size := uint64(unsafe.Sizeof(zero)) * uint64(n)
	if size == 0 {
		return nil
	}
	b := a.AllocateAligned(size, uint64(unsafe.Alignof(zero)))
	return unsafe.Slice((*T)(unsafe.Pointer(unsafe.SliceData(b))), n)[:0]
}
