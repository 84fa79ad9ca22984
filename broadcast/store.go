package broadcast

import (
	"sort"
	"sync"
)

// valueStore is the set of values known to the local node.
//
// Values are never removed, so the store only grows.
type valueStore struct {
	values map[Value]struct{}

	// mu protects the above fields.
	mu sync.Mutex
}

func newValueStore() *valueStore {
	return &valueStore{
		values: make(map[Value]struct{}),
	}
}

// Insert adds the value to the store. Returns true if the value wasn't
// already known.
func (s *valueStore) Insert(v Value) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.insertLocked(v)
}

func (s *valueStore) Contains(v Value) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.values[v]
	return ok
}

// Merge adds the given values to the store and returns the values that
// weren't already known.
func (s *valueStore) Merge(values []Value) []Value {
	s.mu.Lock()
	defer s.mu.Unlock()

	var added []Value
	for _, v := range values {
		if s.insertLocked(v) {
			added = append(added, v)
		}
	}
	return added
}

// Snapshot returns a copy of the known values sorted in ascending order.
func (s *valueStore) Snapshot() []Value {
	s.mu.Lock()
	defer s.mu.Unlock()

	values := make([]Value, 0, len(s.values))
	for v := range s.values {
		values = append(values, v)
	}
	sortValues(values)
	return values
}

func (s *valueStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.values)
}

func (s *valueStore) insertLocked(v Value) bool {
	if _, ok := s.values[v]; ok {
		return false
	}
	s.values[v] = struct{}{}
	return true
}

func sortValues(values []Value) {
	sort.Slice(values, func(i, j int) bool {
		return values[i] < values[j]
	})
}
