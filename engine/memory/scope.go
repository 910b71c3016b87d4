package memory

type Scope int

const (
	// Lives from initialization to shutdown.
	ScopeEngine Scope = iota
	// Rebuilt on every swapchain resize.
	ScopeSizeDependent
	// Rebuilt on level reset.
	ScopeLevel
	// Staging resources, dropped once their copy has completed on the GPU.
	ScopeUpload
	scopeCount
)

func (s Scope) String() string {
	switch s {
	case ScopeEngine:
		return "engine"
	case ScopeSizeDependent:
		return "size-dependent"
	case ScopeLevel:
		return "level"
	case ScopeUpload:
		return "upload"
	}
	return "unknown"
}

// Scopes groups one ResourceStack per lifetime scope.
type Scopes struct {
	stacks [scopeCount]*ResourceStack
}

func NewScopes(capacity int) *Scopes {
	s := &Scopes{}
	for i := Scope(0); i < scopeCount; i++ {
		s.stacks[i] = NewResourceStack(i.String(), capacity)
	}
	return s
}

func (s *Scopes) Get(scope Scope) *ResourceStack {
	return s.stacks[scope]
}

func (s *Scopes) Track(scope Scope, r Releaser) {
	s.stacks[scope].Track(r)
}

// ReleaseAll tears every scope down, shortest lived first.
func (s *Scopes) ReleaseAll() {
	for i := scopeCount - 1; i >= 0; i-- {
		s.stacks[i].ReleaseAll()
	}
}
