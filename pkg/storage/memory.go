package storage

// arc is one adjacency entry in the arena. It mirrors the edge record so that
// traversals never touch the edge map.
type arc struct {
	edge   EdgeID
	peer   int
	weight float64
	kind   EdgeKind
}

// slot is a node's position in the adjacency arena. Slots are append-only:
// a removed node keeps its slot with removed set and both lists cleared.
type slot struct {
	id      NodeID
	out     []arc
	in      []arc
	removed bool
}

// MemoryEngine is the in-memory graph store.
//
// Records live in two maps keyed by identifier. Topology lives in an
// append-only arena of slots, one per node ever inserted, and index maps a
// live NodeID to its slot. Because slots are never compacted, a position
// handed out by index stays valid for as long as the node is alive.
//
// Performance Characteristics:
//   - Node and edge lookup by ID: O(1)
//   - AddNode, AddEdge: O(1) amortized
//   - RemoveNode: O(degree of the node + degree of its neighbors)
//   - ShortestPath: O((V + E) log V)
//   - Neighbors: O(V + E) in the visited region
//   - Search, Stats: O(V) and O(V + E)
//
// MemoryEngine is NOT safe for concurrent use. See pkg/kgraph for the
// locking facade.
type MemoryEngine struct {
	nodes map[NodeID]*Node
	edges map[EdgeID]*Edge
	index map[NodeID]int
	slots []slot

	// retired holds IDs of removed nodes; they are never handed out again.
	retired map[NodeID]struct{}
}

// NewMemoryEngine creates an empty engine.
func NewMemoryEngine() *MemoryEngine {
	return &MemoryEngine{
		nodes:   make(map[NodeID]*Node),
		edges:   make(map[EdgeID]*Edge),
		index:   make(map[NodeID]int),
		retired: make(map[NodeID]struct{}),
	}
}

// AddNode stores node and returns its ID.
//
// A new ID gets a fresh arena slot. If the ID belongs to a live node, the
// record is replaced wholesale and the existing slot (with all its edges) is
// kept. The ID of a removed node is refused with "". The engine stores a
// copy; later changes to node are not observed.
func (m *MemoryEngine) AddNode(node *Node) NodeID {
	if node == nil || m.Retired(node.ID) {
		return ""
	}
	stored := copyNode(node)
	if _, exists := m.index[stored.ID]; !exists {
		m.index[stored.ID] = len(m.slots)
		m.slots = append(m.slots, slot{id: stored.ID})
	}
	m.nodes[stored.ID] = stored
	return stored.ID
}

// GetNode returns a copy of the node with the given ID.
func (m *MemoryEngine) GetNode(id NodeID) (*Node, bool) {
	node, ok := m.nodes[id]
	if !ok {
		return nil, false
	}
	return copyNode(node), true
}

// RemoveNode deletes the node and every edge touching it, returning the
// removed record.
//
// The node's slot is tombstoned and dropped from the index. Arcs that point
// at the slot are filtered out of each neighbor's lists, preserving the
// order of the remaining arcs.
func (m *MemoryEngine) RemoveNode(id NodeID) (*Node, bool) {
	pos, ok := m.index[id]
	if !ok {
		return nil, false
	}
	node := m.nodes[id]

	s := &m.slots[pos]
	for _, a := range s.out {
		delete(m.edges, a.edge)
		if a.peer != pos {
			m.slots[a.peer].in = dropArc(m.slots[a.peer].in, a.edge)
		}
	}
	for _, a := range s.in {
		delete(m.edges, a.edge)
		if a.peer != pos {
			m.slots[a.peer].out = dropArc(m.slots[a.peer].out, a.edge)
		}
	}

	m.slots[pos] = slot{id: id, removed: true}
	m.retired[id] = struct{}{}
	delete(m.index, id)
	delete(m.nodes, id)
	return node, true
}

// Retired reports whether id belonged to a node that has been removed.
func (m *MemoryEngine) Retired(id NodeID) bool {
	_, ok := m.retired[id]
	return ok
}

// ListNodes returns copies of all live nodes in unspecified order.
func (m *MemoryEngine) ListNodes() []*Node {
	nodes := make([]*Node, 0, len(m.nodes))
	for _, node := range m.nodes {
		nodes = append(nodes, copyNode(node))
	}
	return nodes
}

// AddEdge stores edge if both endpoints are live.
//
// The edge is rejected with ("", false) and nothing is mutated when:
//   - the source or target node does not exist
//   - an edge with the same ID already exists
//   - the weight is negative, NaN or above MaxEdgeWeight
//
// Otherwise the arc is appended to the source's outgoing list and the
// target's incoming list, so per-node arc order is insertion order.
func (m *MemoryEngine) AddEdge(edge *Edge) (EdgeID, bool) {
	if edge == nil || !ValidWeight(edge.Weight) {
		return "", false
	}
	if _, exists := m.edges[edge.ID]; exists {
		return "", false
	}
	src, ok := m.index[edge.SourceID]
	if !ok {
		return "", false
	}
	dst, ok := m.index[edge.TargetID]
	if !ok {
		return "", false
	}

	stored := copyEdge(edge)
	m.edges[stored.ID] = stored
	m.slots[src].out = append(m.slots[src].out, arc{edge: stored.ID, peer: dst, weight: stored.Weight, kind: stored.Kind})
	m.slots[dst].in = append(m.slots[dst].in, arc{edge: stored.ID, peer: src, weight: stored.Weight, kind: stored.Kind})
	return stored.ID, true
}

// GetEdge returns a copy of the edge with the given ID.
func (m *MemoryEngine) GetEdge(id EdgeID) (*Edge, bool) {
	edge, ok := m.edges[id]
	if !ok {
		return nil, false
	}
	return copyEdge(edge), true
}

// ListEdges returns copies of all edges in unspecified order.
func (m *MemoryEngine) ListEdges() []*Edge {
	edges := make([]*Edge, 0, len(m.edges))
	for _, edge := range m.edges {
		edges = append(edges, copyEdge(edge))
	}
	return edges
}

// EdgesTouching returns every edge with nodeID as source or target:
// outgoing edges first, then incoming, each in insertion order. A self-loop
// is reported once. Unknown nodes yield an empty slice.
func (m *MemoryEngine) EdgesTouching(nodeID NodeID) []*Edge {
	pos, ok := m.index[nodeID]
	if !ok {
		return []*Edge{}
	}
	s := &m.slots[pos]
	edges := make([]*Edge, 0, len(s.out)+len(s.in))
	for _, a := range s.out {
		edges = append(edges, copyEdge(m.edges[a.edge]))
	}
	for _, a := range s.in {
		if a.peer == pos {
			continue
		}
		edges = append(edges, copyEdge(m.edges[a.edge]))
	}
	return edges
}

// Degree returns the number of edges touching nodeID, counting a self-loop
// once.
func (m *MemoryEngine) Degree(nodeID NodeID) int {
	pos, ok := m.index[nodeID]
	if !ok {
		return 0
	}
	s := &m.slots[pos]
	n := len(s.out)
	for _, a := range s.in {
		if a.peer != pos {
			n++
		}
	}
	return n
}

// NodeCount returns the number of live nodes.
func (m *MemoryEngine) NodeCount() int {
	return len(m.nodes)
}

// EdgeCount returns the number of edges.
func (m *MemoryEngine) EdgeCount() int {
	return len(m.edges)
}

// dropArc removes the arc for edge from arcs in place, keeping order.
func dropArc(arcs []arc, edge EdgeID) []arc {
	kept := arcs[:0]
	for _, a := range arcs {
		if a.edge != edge {
			kept = append(kept, a)
		}
	}
	return kept
}

// copyNode creates a copy of a node. The top-level metadata map is copied;
// nested values are shared.
func copyNode(node *Node) *Node {
	if node == nil {
		return nil
	}
	nodeCopy := *node
	if node.Metadata != nil {
		nodeCopy.Metadata = make(map[string]any, len(node.Metadata))
		for k, v := range node.Metadata {
			nodeCopy.Metadata[k] = v
		}
	}
	return &nodeCopy
}

// copyEdge creates a copy of an edge.
func copyEdge(edge *Edge) *Edge {
	if edge == nil {
		return nil
	}
	edgeCopy := *edge
	if edge.Metadata != nil {
		edgeCopy.Metadata = make(map[string]any, len(edge.Metadata))
		for k, v := range edge.Metadata {
			edgeCopy.Metadata[k] = v
		}
	}
	return &edgeCopy
}
