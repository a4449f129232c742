// Package toposort computes dependency-respecting execution orders over a
// graph: the full order for cold-start execution and the minimal
// downstream-inclusive order for incremental recomputation.
package toposort

import (
	"github.com/vk/pixelgraph/internal/graph"
)

// Sort returns a dependency-respecting order over all nodes, where a node
// depends on every node feeding one of its connected input ports. When
// the graph contains a cycle it returns (nil, true): a cyclic graph has
// no valid order and callers must treat it as fatal, not partial.
//
// Ties between unconstrained nodes break by graph insertion order via a
// FIFO ready queue, so the order is reproducible across runs.
func Sort(g *graph.Graph) (order []string, hasCycle bool) {
	ids := g.Order()
	indegree := make(map[string]int, len(ids))
	succ := make(map[string][]string, len(ids))

	for _, id := range ids {
		indegree[id] = 0
	}
	for _, id := range ids {
		for _, e := range g.EdgesFrom(id) {
			if _, ok := indegree[e.TargetNode]; !ok {
				continue
			}
			succ[id] = append(succ[id], e.TargetNode)
			indegree[e.TargetNode]++
		}
	}

	queue := make([]string, 0, len(ids))
	for _, id := range ids {
		if indegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	order = make([]string, 0, len(ids))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)
		for _, next := range succ[id] {
			indegree[next]--
			if indegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if len(order) != len(ids) {
		return nil, true
	}
	return order, false
}

// Downstream returns the forward-reachable closure of the given seed
// nodes, including the seeds themselves. Unknown ids are ignored.
func Downstream(g *graph.Graph, seeds []string) map[string]bool {
	reach := make(map[string]bool)
	var walk func(id string)
	walk = func(id string) {
		if reach[id] {
			return
		}
		reach[id] = true
		for _, e := range g.EdgesFrom(id) {
			walk(e.TargetNode)
		}
	}
	for _, id := range seeds {
		if _, ok := g.Nodes[id]; ok {
			walk(id)
		}
	}
	return reach
}

// Partial returns the minimal ordered subset for recomputing the given
// dirty nodes: every dirty node plus everything reachable downstream of
// one, in dependency order. Nodes outside that closure are excluded; their
// cached outputs stay valid. A cyclic graph yields nil.
func Partial(g *graph.Graph, dirty []string) []string {
	full, hasCycle := Sort(g)
	if hasCycle {
		return nil
	}
	reach := Downstream(g, dirty)
	order := make([]string, 0, len(reach))
	for _, id := range full {
		if reach[id] {
			order = append(order, id)
		}
	}
	return order
}
