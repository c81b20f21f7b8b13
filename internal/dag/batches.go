package dag

import "sort"

// NodeOrder pairs a node ID with its order_index. The linear fallback
// schedule (used only when a workflow has zero edges) does not use it; it
// reads order_index and creation time from the graph's own nodes.
type NodeOrder struct {
	ID         string
	OrderIndex int
}

// Batches computes the ordered list of topological batches for the graph
// using Kahn's algorithm. Each batch is the maximal set of nodes whose
// predecessors all live in strictly earlier batches; node IDs within a
// batch are sorted alphabetically for deterministic downstream aggregation.
//
// If hasEdges is false (the workflow has no edges at all), Batches instead
// returns a single linear schedule: one node per batch, ordered by
// order_index then by creation time, preserving backward compatibility for
// workflows built before edges existed.
func (g *Graph) Batches(hasEdges bool) ([][]string, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	if !hasEdges {
		return g.linearFallback(), nil
	}

	if err := g.detectCycles(); err != nil {
		return nil, err
	}

	inDegree := make(map[string]int, len(g.nodes))
	for id, n := range g.nodes {
		inDegree[id] = len(n.deps)
	}

	var batches [][]string
	remaining := len(g.nodes)

	for remaining > 0 {
		var layer []string
		for id, deg := range inDegree {
			if deg == 0 {
				layer = append(layer, id)
			}
		}
		if len(layer) == 0 {
			// Cycle should already have been caught above; this is a
			// defensive guard against an inconsistent graph.
			var stuck []string
			for id := range inDegree {
				stuck = append(stuck, id)
			}
			sort.Strings(stuck)
			return nil, &CycleError{Path: stuck}
		}

		sort.Strings(layer)
		batches = append(batches, layer)

		for _, id := range layer {
			delete(inDegree, id)
			remaining--
			for depID := range g.nodes[id].dependents {
				if _, ok := inDegree[depID]; ok {
					inDegree[depID]--
				}
			}
		}
	}

	return batches, nil
}

// linearFallback returns one single-node batch per node, ordered by
// order_index then creation time.
func (g *Graph) linearFallback() [][]string {
	ordered := make([]*node, 0, len(g.nodes))
	for _, n := range g.nodes {
		ordered = append(ordered, n)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].orderIndex != ordered[j].orderIndex {
			return ordered[i].orderIndex < ordered[j].orderIndex
		}
		if !ordered[i].createdAt.Equal(ordered[j].createdAt) {
			return ordered[i].createdAt.Before(ordered[j].createdAt)
		}
		return ordered[i].id < ordered[j].id
	})

	batches := make([][]string, 0, len(ordered))
	for _, n := range ordered {
		batches = append(batches, []string{n.id})
	}
	return batches
}
