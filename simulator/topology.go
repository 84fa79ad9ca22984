package simulator

import (
	"fmt"
)

// Topology returns the neighbors of each node, given the node IDs.
type Topology func(nodeIDs []string) map[string][]string

// FullMesh connects every node to every other node.
func FullMesh(nodeIDs []string) map[string][]string {
	graph := make(map[string][]string, len(nodeIDs))
	for _, id := range nodeIDs {
		neighbors := make([]string, 0, len(nodeIDs)-1)
		for _, other := range nodeIDs {
			if other != id {
				neighbors = append(neighbors, other)
			}
		}
		graph[id] = neighbors
	}
	return graph
}

// Line connects each node to the nodes before and after it.
func Line(nodeIDs []string) map[string][]string {
	graph := make(map[string][]string, len(nodeIDs))
	for i, id := range nodeIDs {
		neighbors := []string{}
		if i > 0 {
			neighbors = append(neighbors, nodeIDs[i-1])
		}
		if i < len(nodeIDs)-1 {
			neighbors = append(neighbors, nodeIDs[i+1])
		}
		graph[id] = neighbors
	}
	return graph
}

// Ring is a line where the first and last nodes are also connected.
func Ring(nodeIDs []string) map[string][]string {
	graph := Line(nodeIDs)
	if len(nodeIDs) > 2 {
		first := nodeIDs[0]
		last := nodeIDs[len(nodeIDs)-1]
		graph[first] = append(graph[first], last)
		graph[last] = append(graph[last], first)
	}
	return graph
}

// Tree returns a topology connecting the nodes as a tree where each node
// has up to fanout children.
func Tree(fanout int) Topology {
	if fanout < 1 {
		fanout = 1
	}
	return func(nodeIDs []string) map[string][]string {
		graph := make(map[string][]string, len(nodeIDs))
		for _, id := range nodeIDs {
			graph[id] = []string{}
		}
		for i := 1; i < len(nodeIDs); i++ {
			parent := nodeIDs[(i-1)/fanout]
			child := nodeIDs[i]
			graph[parent] = append(graph[parent], child)
			graph[child] = append(graph[child], parent)
		}
		return graph
	}
}

// ParseTopology returns the topology with the given name. Supported names
// are 'full-mesh', 'line', 'ring' and 'tree' (a tree with fanout 4).
func ParseTopology(name string) (Topology, error) {
	switch name {
	case "full-mesh":
		return FullMesh, nil
	case "line":
		return Line, nil
	case "ring":
		return Ring, nil
	case "tree":
		return Tree(4), nil
	default:
		return nil, fmt.Errorf("unknown topology: %s", name)
	}
}
