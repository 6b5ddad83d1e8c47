// Package entrypoints tracks the set of build entry points discovered by the
// file watcher.
package entrypoints

import (
	"slices"
	"sort"
	"strings"
	"sync"
)

// Set is a concurrency-safe set of entry point paths restricted to a single
// file suffix. Paths that do not carry the suffix are ignored.
type Set struct {
	suffix  string
	mu      sync.RWMutex
	members map[string]struct{}
}

// New creates an empty set accepting paths that end with suffix.
func New(suffix string) *Set {
	return &Set{
		suffix:  suffix,
		members: make(map[string]struct{}),
	}
}

// Suffix returns the recognized entry point suffix.
func (s *Set) Suffix() string {
	return s.suffix
}

// Matches reports whether path carries the recognized suffix.
func (s *Set) Matches(path string) bool {
	return strings.HasSuffix(path, s.suffix)
}

// Add inserts path if it matches the suffix. It reports whether the set
// changed.
func (s *Set) Add(path string) bool {
	if !s.Matches(path) {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.members[path]; ok {
		return false
	}
	s.members[path] = struct{}{}
	return true
}

// Remove deletes path if it matches the suffix. It reports whether the set
// changed.
func (s *Set) Remove(path string) bool {
	if !s.Matches(path) {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.members[path]; !ok {
		return false
	}
	delete(s.members, path)
	return true
}

// Contains reports whether path is a member.
func (s *Set) Contains(path string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.members[path]
	return ok
}

// Len returns the number of members.
func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.members)
}

// Snapshot returns the members sorted lexically. Each call returns a fresh
// slice; compare snapshots with Equal, never by identity.
func (s *Set) Snapshot() []string {
	s.mu.RLock()
	out := make([]string, 0, len(s.members))
	for path := range s.members {
		out = append(out, path)
	}
	s.mu.RUnlock()

	sort.Strings(out)
	return out
}

// Equal reports whether two snapshots hold the same paths in the same order.
// A nil snapshot only equals another nil snapshot, so the first snapshot
// taken is always a change even when it is empty.
func Equal(a, b []string) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	return slices.Equal(a, b)
}
