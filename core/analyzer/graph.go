package analyzer

import (
	"sort"

	"github.com/argus-xyz/argus/common"
)

// Graph is a read-only, lazily-built adjacency view over a conflict list,
// for callers that want dependency-graph style traversal instead of a flat
// slice. Built on demand over integer TxIndexes; adds no new semantics.
type Graph struct {
	edges map[common.TxIndex][]common.TxIndex
}

// BuildGraph constructs the adjacency list earlier -> later from conflicts.
// Multiple hazards between the same pair collapse into a single edge.
func BuildGraph(conflicts []Conflict) *Graph {
	seen := make(map[[2]common.TxIndex]struct{})
	g := &Graph{edges: make(map[common.TxIndex][]common.TxIndex)}
	for _, c := range conflicts {
		key := [2]common.TxIndex{c.Earlier, c.Later}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		g.edges[c.Earlier] = append(g.edges[c.Earlier], c.Later)
	}
	for _, deps := range g.edges {
		sort.Slice(deps, func(i, j int) bool { return deps[i] < deps[j] })
	}
	return g
}

// DependentsOf returns the transactions that must wait on tx, in ascending
// order.
func (g *Graph) DependentsOf(tx common.TxIndex) []common.TxIndex {
	return g.edges[tx]
}
