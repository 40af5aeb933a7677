package brief

import (
	"slices"
	"sort"
	"sync"

	"github.com/WhitenWhiten/CodeTeam/core"
)

// Store is the lock-guarded brief store shared by all workers. Every path
// is written by its owner only; readers receive deep copies.
type Store struct {
	mu     sync.RWMutex
	briefs map[string]core.InterfaceBrief
}

var _ core.BriefStore = (*Store)(nil)

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{briefs: make(map[string]core.InterfaceBrief)}
}

// Put implements core.BriefStore.
func (s *Store) Put(b core.InterfaceBrief) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.briefs[b.Path] = clone(b)
}

// Get implements core.BriefStore.
func (s *Store) Get(path string) (core.InterfaceBrief, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.briefs[path]
	if !ok {
		return core.InterfaceBrief{}, false
	}

	return clone(b), true
}

// Paths returns the paths with a brief, sorted.
func (s *Store) Paths() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.briefs))
	for p := range s.briefs {
		out = append(out, p)
	}

	sort.Strings(out)

	return out
}

func clone(b core.InterfaceBrief) core.InterfaceBrief {
	out := core.InterfaceBrief{
		Path:      b.Path,
		Functions: slices.Clone(b.Functions),
		Classes:   make([]core.ClassBrief, len(b.Classes)),
	}

	if out.Functions == nil {
		out.Functions = []core.FuncBrief{}
	}

	for i, c := range b.Classes {
		c.Methods = slices.Clone(c.Methods)
		out.Classes[i] = c
	}

	return out
}
