package memory

import (
	"github.com/spaghettifunk/directengine/engine/core"
)

// Releaser is a resource with explicit cleanup, typically a GPU object.
// Implementations must be comparable (pointer receivers).
type Releaser interface {
	Release()
}

type funcReleaser struct {
	name string
	fn   func()
}

func (f *funcReleaser) Release() {
	f.fn()
}

// ReleaseFunc wraps a cleanup function so it can be tracked.
func ReleaseFunc(name string, fn func()) Releaser {
	return &funcReleaser{name: name, fn: fn}
}

// ResourceStack owns the resources of one lifetime scope. Each resource is
// tracked once and released once, newest first, by ReleaseAll.
type ResourceStack struct {
	name  string
	items []Releaser
}

func NewResourceStack(name string, capacity int) *ResourceStack {
	return &ResourceStack{
		name:  name,
		items: make([]Releaser, 0, capacity),
	}
}

func (s *ResourceStack) Track(r Releaser) {
	core.Assert(r != nil, core.ErrInvalidHandle, "%s: nil resource", s.name)
	core.Assert(!s.Contains(r), core.ErrAlreadyTracked, "%s: resource %T tracked twice", s.name, r)
	core.Assert(len(s.items) < cap(s.items), core.ErrCapacityExceeded, "%s holds %d resources", s.name, cap(s.items))
	s.items = append(s.items, r)
}

// Replace releases old and tracks r in its slot, keeping the release order.
func (s *ResourceStack) Replace(old, r Releaser) {
	idx := s.indexOf(old)
	core.Assert(idx >= 0, core.ErrNotFound, "%s: replaced resource %T is not tracked", s.name, old)
	core.Assert(!s.Contains(r), core.ErrAlreadyTracked, "%s: resource %T tracked twice", s.name, r)
	old.Release()
	s.items[idx] = r
}

// ReleaseAll releases in reverse registration order so resources go before
// the objects they were created from, then empties the stack.
func (s *ResourceStack) ReleaseAll() {
	if len(s.items) > 0 {
		core.LogDebug("%s: releasing %d resources", s.name, len(s.items))
	}
	for i := len(s.items) - 1; i >= 0; i-- {
		s.items[i].Release()
		s.items[i] = nil
	}
	s.items = s.items[:0]
}

func (s *ResourceStack) Contains(r Releaser) bool {
	return s.indexOf(r) >= 0
}

func (s *ResourceStack) indexOf(r Releaser) int {
	for i, it := range s.items {
		if it == r {
			return i
		}
	}
	return -1
}

func (s *ResourceStack) Len() int {
	return len(s.items)
}

func (s *ResourceStack) Name() string {
	return s.name
}
