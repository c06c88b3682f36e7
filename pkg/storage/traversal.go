package storage

// Neighbors returns the nodes discovered by a breadth-first expansion of
// exactly depth levels from nodeID.
//
// Parameters:
//   - kinds: edge kinds to follow; nil follows every kind, an empty non-nil
//     slice follows none
//   - dir: which arcs to follow from each frontier node
//   - depth: number of levels; depth <= 0 returns an empty result
//
// The start node seeds the visited set and is never reported. Every other
// node is reported once, at its first discovery, in discovery order.
// Unknown start nodes yield an empty result.
//
// Example:
//
//	// Everything reachable within two calls of handleAuth
//	nodes := engine.Neighbors(handleAuth, []storage.EdgeKind{storage.EdgeCalls}, storage.Outgoing, 2)
func (m *MemoryEngine) Neighbors(nodeID NodeID, kinds []EdgeKind, dir Direction, depth int) []*Node {
	result := []*Node{}
	start, ok := m.index[nodeID]
	if !ok || depth <= 0 {
		return result
	}

	var allowed map[EdgeKind]bool
	if kinds != nil {
		allowed = make(map[EdgeKind]bool, len(kinds))
		for _, k := range kinds {
			allowed[k] = true
		}
	}

	visited := make([]bool, len(m.slots))
	visited[start] = true
	frontier := []int{start}

	visit := func(arcs []arc, next []int) []int {
		for _, a := range arcs {
			if allowed != nil && !allowed[a.kind] {
				continue
			}
			if visited[a.peer] {
				continue
			}
			visited[a.peer] = true
			next = append(next, a.peer)
			result = append(result, copyNode(m.nodes[m.slots[a.peer].id]))
		}
		return next
	}

	for level := 0; level < depth && len(frontier) > 0; level++ {
		var next []int
		for _, pos := range frontier {
			s := &m.slots[pos]
			if dir != Incoming {
				next = visit(s.out, next)
			}
			if dir != Outgoing {
				next = visit(s.in, next)
			}
		}
		frontier = next
	}
	return result
}
