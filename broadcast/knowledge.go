package broadcast

import (
	"sync"
)

// knowledgeTracker records the values each neighbor is known to have.
//
// A neighbor knows a value if it acknowledged gossip containing the value,
// or if it sent the value to us. Only values in the local store are
// recorded, so the known values of any neighbor are always a subset of the
// local store.
type knowledgeTracker struct {
	known map[string]map[Value]struct{}

	// mu protects the above fields.
	mu sync.Mutex

	store *valueStore
}

func newKnowledgeTracker(store *valueStore) *knowledgeTracker {
	return &knowledgeTracker{
		known: make(map[string]map[Value]struct{}),
		store: store,
	}
}

// Known returns the values the neighbor is known to have, sorted in
// ascending order.
func (t *knowledgeTracker) Known(neighbor string) []Value {
	t.mu.Lock()
	defer t.mu.Unlock()

	known := t.known[neighbor]
	values := make([]Value, 0, len(known))
	for v := range known {
		values = append(values, v)
	}
	sortValues(values)
	return values
}

// KnownCount returns the number of values the neighbor is known to have.
func (t *knowledgeTracker) KnownCount(neighbor string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.known[neighbor])
}

// MarkKnown records that the neighbor has the given values. Values that
// aren't in the local store are ignored.
func (t *knowledgeTracker) MarkKnown(neighbor string, values []Value) {
	t.mu.Lock()
	defer t.mu.Unlock()

	known, ok := t.known[neighbor]
	if !ok {
		known = make(map[Value]struct{})
		t.known[neighbor] = known
	}
	for _, v := range values {
		if !t.store.Contains(v) {
			continue
		}
		known[v] = struct{}{}
	}
}

// UnknownFor returns the values in the local store that the neighbor isn't
// known to have, sorted in ascending order.
func (t *knowledgeTracker) UnknownFor(neighbor string) []Value {
	// The store only grows, so taking the snapshot before the known values
	// can only miss values added concurrently, which are picked up in the
	// next round.
	snapshot := t.store.Snapshot()

	t.mu.Lock()
	defer t.mu.Unlock()

	known := t.known[neighbor]
	var unknown []Value
	for _, v := range snapshot {
		if _, ok := known[v]; !ok {
			unknown = append(unknown, v)
		}
	}
	return unknown
}
