package worker

import (
	"cmp"
	"slices"
	"sync"

	"fintrack/internal/docstore"
)

// ScopeSet is the set of user namespaces the worker has seen. The store
// offers no way to enumerate users, so the periodic sweep covers the
// scopes that produced events since startup plus any seeded ones.
type ScopeSet struct {
	mu     sync.Mutex
	scopes map[docstore.Scope]struct{}
}

func NewScopeSet(seed ...docstore.Scope) *ScopeSet {
	s := &ScopeSet{scopes: make(map[docstore.Scope]struct{})}
	for _, sc := range seed {
		s.Add(sc)
	}
	return s
}

// Add records scope and reports whether it was new.
func (s *ScopeSet) Add(scope docstore.Scope) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.scopes[scope]; ok {
		return false
	}
	s.scopes[scope] = struct{}{}
	return true
}

// List returns the scopes ordered by app and user id.
func (s *ScopeSet) List() []docstore.Scope {
	s.mu.Lock()
	out := make([]docstore.Scope, 0, len(s.scopes))
	for sc := range s.scopes {
		out = append(out, sc)
	}
	s.mu.Unlock()
	slices.SortFunc(out, func(a, b docstore.Scope) int {
		return cmp.Or(cmp.Compare(a.AppID, b.AppID), cmp.Compare(a.UserID, b.UserID))
	})
	return out
}

func (s *ScopeSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.scopes)
}
