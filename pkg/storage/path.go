package storage

import (
	"container/heap"
	"math"
	"slices"
)

// pathTolerance is the slack allowed when matching dist(p) + w against
// dist(cur) during reconstruction.
const pathTolerance = 1e-4

// ShortestPath finds the minimum-weight directed path from source to target.
//
// It returns false if either endpoint is unknown or target is unreachable.
// Dijkstra runs over outgoing arcs and stops as soon as target is finalized.
// The path is then rebuilt backward from target: at each step the first
// incoming arc (in insertion order) whose predecessor p has not been used yet
// and satisfies |dist(p) + w - dist(cur)| < 1e-4 is taken.
//
// When no predecessor qualifies before reaching source, reconstruction stops
// and the target-side suffix is returned with Complete set to false. This can
// happen with zero-weight cycles. TotalWeight is dist(target) either way.
//
// Example:
//
//	res, ok := engine.ShortestPath(a, c)
//	if !ok {
//		return ErrNoPath
//	}
//	if !res.Complete {
//		log.Printf("partial path %v", res.Path)
//	}
func (m *MemoryEngine) ShortestPath(source, target NodeID) (*PathResult, bool) {
	src, ok := m.index[source]
	if !ok {
		return nil, false
	}
	dst, ok := m.index[target]
	if !ok {
		return nil, false
	}

	dist := m.dijkstra(src, dst)
	if math.IsInf(dist[dst], 1) {
		return nil, false
	}

	positions, complete := m.backtrack(src, dst, dist)
	result := &PathResult{
		Path:        make([]NodeID, len(positions)),
		NodeNames:   make([]string, len(positions)),
		TotalWeight: dist[dst],
		Complete:    complete,
	}
	for i, pos := range positions {
		id := m.slots[pos].id
		result.Path[i] = id
		result.NodeNames[i] = m.nodes[id].Name
	}
	return result, true
}

// dijkstra returns tentative distances indexed by slot. Unreached slots hold
// +Inf. The search exits once dst is popped.
func (m *MemoryEngine) dijkstra(src, dst int) []float64 {
	dist := make([]float64, len(m.slots))
	for i := range dist {
		dist[i] = math.Inf(1)
	}
	done := make([]bool, len(m.slots))

	pq := make(distQueue, 0)
	heap.Init(&pq)
	dist[src] = 0
	heap.Push(&pq, &distItem{pos: src, dist: 0})

	for pq.Len() > 0 {
		current := heap.Pop(&pq).(*distItem)
		if done[current.pos] {
			continue
		}
		done[current.pos] = true
		if current.pos == dst {
			break
		}
		for _, a := range m.slots[current.pos].out {
			alt := current.dist + a.weight
			if alt < dist[a.peer] {
				dist[a.peer] = alt
				heap.Push(&pq, &distItem{pos: a.peer, dist: alt})
			}
		}
	}
	return dist
}

// backtrack walks from dst toward src and returns the positions in
// source-to-target order, plus whether src was reached.
func (m *MemoryEngine) backtrack(src, dst int, dist []float64) ([]int, bool) {
	visited := make([]bool, len(m.slots))
	visited[dst] = true
	path := []int{dst}

	cur := dst
	for cur != src {
		prev := -1
		for _, a := range m.slots[cur].in {
			p := a.peer
			if visited[p] || math.IsInf(dist[p], 1) {
				continue
			}
			if math.Abs(dist[p]+a.weight-dist[cur]) < pathTolerance {
				prev = p
				break
			}
		}
		if prev < 0 {
			break
		}
		visited[prev] = true
		path = append(path, prev)
		cur = prev
	}

	slices.Reverse(path)
	return path, cur == src
}

// distItem is an entry in the Dijkstra frontier.
type distItem struct {
	pos   int
	dist  float64
	index int
}

// distQueue implements heap.Interface as a min-heap on dist.
type distQueue []*distItem

func (pq distQueue) Len() int { return len(pq) }

func (pq distQueue) Less(i, j int) bool {
	return pq[i].dist < pq[j].dist
}

func (pq distQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index = i
	pq[j].index = j
}

func (pq *distQueue) Push(x any) {
	n := len(*pq)
	item := x.(*distItem)
	item.index = n
	*pq = append(*pq, item)
}

func (pq *distQueue) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*pq = old[0 : n-1]
	return item
}
