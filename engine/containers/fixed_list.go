package containers

import "github.com/spaghettifunk/directengine/engine/core"

// FixedList is a bounded list that never grows past the capacity given at
// construction. Overflow is a programming error and panics with
// core.ErrCapacityExceeded before the list is modified.
type FixedList[T any] struct {
	name  string
	items []T
}

func NewFixedList[T any](name string, capacity int) *FixedList[T] {
	return &FixedList[T]{
		name:  name,
		items: make([]T, 0, capacity),
	}
}

func (l *FixedList[T]) Add(v T) int {
	core.Assert(len(l.items) < cap(l.items), core.ErrCapacityExceeded, "%s holds %d elements", l.name, cap(l.items))
	l.items = append(l.items, v)
	return len(l.items) - 1
}

// NewElement appends a zero value and returns a pointer to it. The pointer is
// stable until Clear since the backing array never reallocates.
func (l *FixedList[T]) NewElement() *T {
	var zero T
	i := l.Add(zero)
	return &l.items[i]
}

func (l *FixedList[T]) At(i int) *T {
	core.Assert(i >= 0 && i < len(l.items), core.ErrInvalidHandle, "%s index %d out of range [0,%d)", l.name, i, len(l.items))
	return &l.items[i]
}

// RemoveAt removes element i keeping the order of the others.
func (l *FixedList[T]) RemoveAt(i int) {
	core.Assert(i >= 0 && i < len(l.items), core.ErrInvalidHandle, "%s index %d out of range [0,%d)", l.name, i, len(l.items))
	copy(l.items[i:], l.items[i+1:])
	var zero T
	l.items[len(l.items)-1] = zero
	l.items = l.items[:len(l.items)-1]
}

// RemoveFunc removes every element for which match returns true and reports
// how many were removed.
func (l *FixedList[T]) RemoveFunc(match func(T) bool) int {
	removed := 0
	for i := 0; i < len(l.items); {
		if match(l.items[i]) {
			l.RemoveAt(i)
			removed++
			continue
		}
		i++
	}
	return removed
}

func (l *FixedList[T]) IndexFunc(match func(T) bool) int {
	for i := range l.items {
		if match(l.items[i]) {
			return i
		}
	}
	return -1
}

func (l *FixedList[T]) Clear() {
	clear(l.items)
	l.items = l.items[:0]
}

func (l *FixedList[T]) Len() int {
	return len(l.items)
}

func (l *FixedList[T]) Cap() int {
	return cap(l.items)
}

func (l *FixedList[T]) Full() bool {
	return len(l.items) == cap(l.items)
}

// Items exposes the live elements. Callers must not append to the slice.
func (l *FixedList[T]) Items() []T {
	return l.items
}
