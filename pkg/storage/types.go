// Package storage provides the in-memory graph engine behind kgraph.
//
// The engine is a directed property graph of typed nodes and typed, weighted
// edges. It supports point lookups, weighted shortest paths, bounded
// breadth-first neighbor expansion, substring search and aggregate stats.
//
// Design Principles:
//   - Stable identifiers: NodeID and EdgeID are opaque and never reused
//   - Stable positions: every node owns one slot in an append-only adjacency
//     arena; removal tombstones the slot, surviving positions never move
//   - Copies out: lookups return copies so callers never alias engine state
//   - No internal locking: the owner serializes writers against readers
//
// Example Usage:
//
//	engine := storage.NewMemoryEngine()
//
//	a := engine.AddNode(&storage.Node{ID: "a", Name: "handleAuth", Kind: storage.NodeFunction})
//	b := engine.AddNode(&storage.Node{ID: "b", Name: "verifyToken", Kind: storage.NodeFunction})
//
//	if _, ok := engine.AddEdge(&storage.Edge{
//		ID:       "e1",
//		SourceID: a,
//		TargetID: b,
//		Kind:     storage.EdgeCalls,
//		Weight:   2.0,
//	}); !ok {
//		// one of the endpoints does not exist
//	}
//
//	path, ok := engine.ShortestPath(a, b)
//	if ok {
//		fmt.Println(path.NodeNames, path.TotalWeight) // [handleAuth verifyToken] 2
//	}
//
// Enumeration Order:
//
//	ListNodes, ListEdges and Search enumerate Go maps. Their order is
//	unspecified and changes between calls; compare results as sets.
package storage

import (
	"time"
)

// DefaultEdgeWeight is the unit cost used when an edge is created without an
// explicit weight.
const DefaultEdgeWeight = 1.0

// MaxEdgeWeight bounds a single edge weight. Path costs are sums of weights
// and must stay finite for any path the store can hold.
const MaxEdgeWeight = 1e12

// ValidWeight reports whether w is a usable edge weight: a finite number in
// [0, MaxEdgeWeight].
func ValidWeight(w float64) bool {
	return w >= 0 && w <= MaxEdgeWeight
}

// NodeID is a strongly-typed unique identifier for graph nodes.
//
// The engine treats it as opaque. The service layer assigns UUIDv4 strings.
type NodeID string

// EdgeID is a strongly-typed unique identifier for graph edges.
type EdgeID string

// Node is a typed entity in the graph: a repository, file, function, agent...
//
// Optional fields (Path, Language, Description) use the empty string for
// "absent". Metadata is opaque to the engine: it is stored and returned
// verbatim and never inspected.
//
// Example:
//
//	node := &storage.Node{
//		ID:          storage.NodeID(uuid.NewString()),
//		Name:        "handleAuth",
//		Kind:        storage.NodeFunction,
//		Path:        "src/auth/handler.ts",
//		Language:    "typescript",
//		Description: "Validates the bearer token and loads the session",
//		Metadata:    map[string]any{"line": 42},
//		CreatedAt:   time.Now().UTC(),
//		UpdatedAt:   time.Now().UTC(),
//	}
type Node struct {
	ID          NodeID         `json:"id"`
	Name        string         `json:"name"`
	Kind        NodeKind       `json:"node_type"`
	Path        string         `json:"path,omitempty"`
	Language    string         `json:"language,omitempty"`
	Description string         `json:"description,omitempty"`
	Metadata    map[string]any `json:"metadata"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Edge is a typed, weighted, directed relationship between two nodes.
//
// Weight is an additive, non-negative cost for shortest-path purposes.
// A weight of 1.0 means "unit cost".
type Edge struct {
	ID        EdgeID         `json:"id"`
	SourceID  NodeID         `json:"source_id"`
	TargetID  NodeID         `json:"target_id"`
	Kind      EdgeKind       `json:"edge_type"`
	Weight    float64        `json:"weight"`
	Metadata  map[string]any `json:"metadata"`
	CreatedAt time.Time      `json:"created_at"`
}

// PathResult is the answer to a shortest-path query.
//
// TotalWeight is always the minimal distance computed for the target, even
// when Complete is false. Complete reports whether reconstruction walked all
// the way back to the source; when it is false, Path holds only the
// target-side suffix that could be recovered.
type PathResult struct {
	Path        []NodeID `json:"path"`
	NodeNames   []string `json:"node_names"`
	TotalWeight float64  `json:"total_weight"`
	Complete    bool     `json:"complete"`
}

// Hops returns the number of edges along the reconstructed path.
func (p *PathResult) Hops() int {
	if len(p.Path) == 0 {
		return 0
	}
	return len(p.Path) - 1
}

// Stats holds aggregate counts over the whole graph.
type Stats struct {
	TotalNodes      int            `json:"total_nodes"`
	TotalEdges      int            `json:"total_edges"`
	NodesByKind     map[string]int `json:"nodes_by_type"`
	EdgesByKind     map[string]int `json:"edges_by_type"`
	AvgEdgesPerNode float64        `json:"avg_edges_per_node"`
}
