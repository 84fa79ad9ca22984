package broadcast

import (
	"sort"
	"sync"
)

// topologyView contains the neighbors of the local node, which are the only
// nodes the local node gossips with.
//
// Neighbors aren't validated. An unreachable neighbor is only visible as
// gossip to that neighbor that is never acknowledged.
type topologyView struct {
	neighbors []string

	// mu protects the above fields.
	mu sync.Mutex
}

func newTopologyView() *topologyView {
	return &topologyView{}
}

// SetNeighbors replaces the neighbors of the local node. selfID is removed
// from neighbors if included and duplicates are discarded.
func (v *topologyView) SetNeighbors(selfID string, neighbors []string) {
	seen := make(map[string]struct{}, len(neighbors))
	var updated []string
	for _, id := range neighbors {
		if id == selfID {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		updated = append(updated, id)
	}
	sort.Strings(updated)

	v.mu.Lock()
	defer v.mu.Unlock()

	v.neighbors = updated
}

// SetFromGraph replaces the neighbors of the local node with selfID's entry
// in the given cluster graph. If the graph doesn't contain selfID the node
// has no neighbors.
func (v *topologyView) SetFromGraph(selfID string, graph map[string][]string) {
	v.SetNeighbors(selfID, graph[selfID])
}

// Neighbors returns a copy of the neighbor IDs, sorted by ID. Returns an
// empty list until a topology is received.
func (v *topologyView) Neighbors() []string {
	v.mu.Lock()
	defer v.mu.Unlock()

	neighbors := make([]string, len(v.neighbors))
	copy(neighbors, v.neighbors)
	return neighbors
}
