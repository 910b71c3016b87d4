package memory

import "github.com/spaghettifunk/directengine/engine/core"

// Handle addresses an element of a TypedArena. It stops resolving once the
// arena is reset.
type Handle struct {
	Index      uint32
	Generation uint32
}

// TypedArena is the index based counterpart of Arena for values that hold Go
// pointers. Reset truncates it and bumps the generation so old handles fail.
type TypedArena[T any] struct {
	name       string
	items      []T
	generation uint32
}

func NewTypedArena[T any](name string, capacity int) *TypedArena[T] {
	return &TypedArena[T]{
		name:       name,
		items:      make([]T, 0, capacity),
		generation: 1,
	}
}

// Alloc appends a zero value. The pointer stays valid until Reset.
func (a *TypedArena[T]) Alloc() (Handle, *T) {
	core.Assert(len(a.items) < cap(a.items), core.ErrCapacityExceeded, "%s holds %d elements", a.name, cap(a.items))
	var zero T
	a.items = append(a.items, zero)
	idx := len(a.items) - 1
	return Handle{Index: uint32(idx), Generation: a.generation}, &a.items[idx]
}

func (a *TypedArena[T]) Valid(h Handle) bool {
	return h.Generation == a.generation && int(h.Index) < len(a.items)
}

func (a *TypedArena[T]) Get(h Handle) *T {
	core.Assert(a.Valid(h), core.ErrInvalidHandle, "%s: handle %d/%d (generation %d)", a.name, h.Index, h.Generation, a.generation)
	return &a.items[h.Index]
}

// Each visits the elements in allocation order.
func (a *TypedArena[T]) Each(fn func(h Handle, v *T)) {
	for i := range a.items {
		fn(Handle{Index: uint32(i), Generation: a.generation}, &a.items[i])
	}
}

func (a *TypedArena[T]) Reset() {
	clear(a.items)
	a.items = a.items[:0]
	a.generation++
}

func (a *TypedArena[T]) Len() int {
	return len(a.items)
}

func (a *TypedArena[T]) Cap() int {
	return cap(a.items)
}
