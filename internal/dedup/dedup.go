// Package dedup tracks which values a node has seen and which it has
// already fanned out to its links.
package dedup

import "sort"

// Store holds the monotone KnownValues and PastBroadcast sets. Values are
// never removed. A Store is owned by the engine loop and is not safe for
// concurrent use.
type Store struct {
	known       map[uint64]struct{}
	broadcasted map[uint64]struct{}
}

// New returns an empty store.
func New() *Store {
	return &Store{
		known:       make(map[uint64]struct{}),
		broadcasted: make(map[uint64]struct{}),
	}
}

// Observe records v and reports whether it was new.
func (s *Store) Observe(v uint64) bool {
	if _, ok := s.known[v]; ok {
		return false
	}
	s.known[v] = struct{}{}
	return true
}

// Knows reports whether v has been observed.
func (s *Store) Knows(v uint64) bool {
	_, ok := s.known[v]
	return ok
}

// Snapshot returns a copy of the known values in ascending order.
func (s *Store) Snapshot() []uint64 {
	values := make([]uint64, 0, len(s.known))
	for v := range s.known {
		values = append(values, v)
	}
	sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })
	return values
}

// AlreadyBroadcast reports whether v has been fanned out by this node.
func (s *Store) AlreadyBroadcast(v uint64) bool {
	_, ok := s.broadcasted[v]
	return ok
}

// MarkBroadcast records that fan-out of v was attempted on every link.
func (s *Store) MarkBroadcast(v uint64) {
	s.broadcasted[v] = struct{}{}
}

// Merge observes every value and returns the ones that were not known
// before, ascending and without duplicates.
func (s *Store) Merge(values []uint64) []uint64 {
	var fresh []uint64
	for _, v := range values {
		if s.Observe(v) {
			fresh = append(fresh, v)
		}
	}
	sort.Slice(fresh, func(i, j int) bool { return fresh[i] < fresh[j] })
	return fresh
}

// Len returns the number of known values.
func (s *Store) Len() int {
	return len(s.known)
}
