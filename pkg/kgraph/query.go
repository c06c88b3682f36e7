package kgraph

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/orneryd/kgraph/pkg/cache"
	"github.com/orneryd/kgraph/pkg/storage"
)

// PathQuery asks for the cheapest directed path between two nodes.
type PathQuery struct {
	SourceID storage.NodeID
	TargetID storage.NodeID
	// MaxDepth rejects paths with more hops than this. 0 means unbounded.
	MaxDepth int
}

// NeighborQuery asks for the nodes within Depth hops of NodeID.
type NeighborQuery struct {
	NodeID storage.NodeID
	// EdgeKinds restricts which edges are followed; nil follows all.
	EdgeKinds []storage.EdgeKind
	Direction storage.Direction
	Depth     int
}

// SearchQuery asks for nodes whose name or description contains Query.
type SearchQuery struct {
	Query string
	// NodeKinds restricts matches; nil matches every kind.
	NodeKinds []storage.NodeKind
	// Language, when set, must match exactly.
	Language string
	Limit    int
}

// pathEntry caches both found and absent paths.
type pathEntry struct {
	result *storage.PathResult
	ok     bool
}

// FindPath returns the minimum-weight path.
//
// Returns ErrNoPath if either endpoint is unknown, the target is
// unreachable, or the path has more than MaxDepth hops. The result may be
// shared with other callers and must not be modified.
func (db *DB) FindPath(ctx context.Context, q PathQuery) (res *storage.PathResult, err error) {
	_, done := begin(ctx, "find_path",
		attribute.String("kgraph.source_id", string(q.SourceID)),
		attribute.String("kgraph.target_id", string(q.TargetID)),
		attribute.Int("kgraph.max_depth", q.MaxDepth),
	)
	defer func() { done(err) }()

	if db.closed.Load() {
		return nil, ErrClosed
	}
	if q.MaxDepth < 0 {
		return nil, fmt.Errorf("%w: max_depth must not be negative", ErrInvalidInput)
	}

	db.mu.RLock()
	entry := db.cached("find_path", cache.Key("path", string(q.SourceID), string(q.TargetID)), func() any {
		r, ok := db.engine.ShortestPath(q.SourceID, q.TargetID)
		return pathEntry{result: r, ok: ok}
	}).(pathEntry)
	db.mu.RUnlock()

	if !entry.ok {
		return nil, fmt.Errorf("path %s -> %s: %w", q.SourceID, q.TargetID, ErrNoPath)
	}
	if q.MaxDepth > 0 && entry.result.Hops() > q.MaxDepth {
		return nil, fmt.Errorf("path %s -> %s needs %d hops, max %d: %w",
			q.SourceID, q.TargetID, entry.result.Hops(), q.MaxDepth, ErrNoPath)
	}
	if !entry.result.Complete {
		db.logger.Warn("path reconstruction incomplete",
			"source_id", q.SourceID, "target_id", q.TargetID, "recovered_hops", entry.result.Hops())
	}
	return entry.result, nil
}

// FindNeighbors runs a bounded breadth-first expansion. An unknown start
// node yields an empty result, not an error. An empty Direction means Both.
// The returned nodes may be shared with other callers; treat them as
// read-only.
func (db *DB) FindNeighbors(ctx context.Context, q NeighborQuery) (nodes []*storage.Node, err error) {
	_, done := begin(ctx, "find_neighbors",
		attribute.String("kgraph.node_id", string(q.NodeID)),
		attribute.String("kgraph.direction", string(q.Direction)),
		attribute.Int("kgraph.depth", q.Depth),
	)
	defer func() { done(err) }()

	if db.closed.Load() {
		return nil, ErrClosed
	}
	dir, err := storage.ParseDirection(string(q.Direction))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	for _, k := range q.EdgeKinds {
		if !k.Valid() {
			return nil, fmt.Errorf("%w: unknown edge type %q", ErrInvalidInput, k)
		}
	}

	key := cache.Key("neighbors", string(q.NodeID), edgeKindsKey(q.EdgeKinds), string(dir), strconv.Itoa(q.Depth))

	db.mu.RLock()
	defer db.mu.RUnlock()
	nodes = db.cached("find_neighbors", key, func() any {
		return db.engine.Neighbors(q.NodeID, q.EdgeKinds, dir, q.Depth)
	}).([]*storage.Node)
	return nodes, nil
}

// Search finds nodes by case-insensitive substring of name or description.
// Like FindNeighbors, the result is read-only.
func (db *DB) Search(ctx context.Context, q SearchQuery) (nodes []*storage.Node, err error) {
	_, done := begin(ctx, "search",
		attribute.String("kgraph.query", q.Query),
		attribute.Int("kgraph.limit", q.Limit),
	)
	defer func() { done(err) }()

	if db.closed.Load() {
		return nil, ErrClosed
	}
	for _, k := range q.NodeKinds {
		if !k.Valid() {
			return nil, fmt.Errorf("%w: unknown node type %q", ErrInvalidInput, k)
		}
	}

	key := cache.Key("search", q.Query, nodeKindsKey(q.NodeKinds), q.Language, strconv.Itoa(q.Limit))

	db.mu.RLock()
	defer db.mu.RUnlock()
	nodes = db.cached("search", key, func() any {
		return db.engine.Search(q.Query, q.NodeKinds, q.Language, q.Limit)
	}).([]*storage.Node)
	return nodes, nil
}

// Stats returns aggregate counts over the graph.
func (db *DB) Stats(ctx context.Context) (stats storage.Stats, err error) {
	_, done := begin(ctx, "stats")
	defer func() { done(err) }()

	if db.closed.Load() {
		return storage.Stats{}, ErrClosed
	}

	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.cached("stats", cache.Key("stats"), func() any {
		return db.engine.Stats()
	}).(storage.Stats), nil
}

// edgeKindsKey distinguishes a nil filter (follow all) from an empty one
// (follow none).
func edgeKindsKey(kinds []storage.EdgeKind) string {
	if kinds == nil {
		return "*"
	}
	parts := make([]string, len(kinds))
	for i, k := range kinds {
		parts[i] = string(k)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func nodeKindsKey(kinds []storage.NodeKind) string {
	if kinds == nil {
		return "*"
	}
	parts := make([]string, len(kinds))
	for i, k := range kinds {
		parts[i] = string(k)
	}
	return "[" + strings.Join(parts, ",") + "]"
}
