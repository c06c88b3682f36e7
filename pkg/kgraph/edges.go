package kgraph

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/orneryd/kgraph/pkg/audit"
	"github.com/orneryd/kgraph/pkg/storage"
)

// EdgeInput holds the caller-supplied fields of a new edge. A nil Weight
// means storage.DefaultEdgeWeight.
type EdgeInput struct {
	SourceID storage.NodeID
	TargetID storage.NodeID
	Kind     storage.EdgeKind
	Weight   *float64
	Metadata map[string]any
}

// EdgeWithNodes is an edge annotated with the names of its endpoints.
type EdgeWithNodes struct {
	Edge       *storage.Edge `json:"edge"`
	SourceName string        `json:"source_name"`
	TargetName string        `json:"target_name"`
}

// CreateEdge stores a directed edge between two existing nodes.
//
// Returns ErrInvalidInput for an unknown kind or a weight outside
// [0, storage.MaxEdgeWeight], and ErrUnknownEndpoint if either node does not exist.
// A rejected edge leaves the graph unchanged.
func (db *DB) CreateEdge(ctx context.Context, in EdgeInput) (edge *storage.Edge, err error) {
	ctx, done := begin(ctx, "create_edge",
		attribute.String("kgraph.edge_type", string(in.Kind)),
		attribute.String("kgraph.source_id", string(in.SourceID)),
		attribute.String("kgraph.target_id", string(in.TargetID)),
	)
	defer func() { done(err) }()

	if db.closed.Load() {
		return nil, ErrClosed
	}
	if !in.Kind.Valid() {
		return nil, fmt.Errorf("%w: unknown edge type %q", ErrInvalidInput, in.Kind)
	}
	weight := storage.DefaultEdgeWeight
	if in.Weight != nil {
		weight = *in.Weight
	}
	if !storage.ValidWeight(weight) {
		return nil, fmt.Errorf("%w: weight must be between 0 and %g, got %v", ErrInvalidInput, storage.MaxEdgeWeight, weight)
	}

	edge = &storage.Edge{
		ID:        storage.EdgeID(db.newID()),
		SourceID:  in.SourceID,
		TargetID:  in.TargetID,
		Kind:      in.Kind,
		Weight:    weight,
		Metadata:  orEmpty(in.Metadata),
		CreatedAt: db.now().UTC(),
	}

	db.mu.Lock()
	_, ok := db.engine.AddEdge(edge)
	if ok {
		db.invalidate()
	}
	db.mu.Unlock()

	if !ok {
		db.logger.Info("edge rejected", "source_id", in.SourceID, "target_id", in.TargetID, "edge_type", in.Kind)
		db.record(ctx, audit.EventEdgeRejected, "edge", "", false, "unknown endpoint")
		return nil, fmt.Errorf("create edge %s -> %s: %w", in.SourceID, in.TargetID, ErrUnknownEndpoint)
	}

	db.logger.Debug("edge created", "edge_id", edge.ID, "source_id", edge.SourceID, "target_id", edge.TargetID, "edge_type", edge.Kind)
	db.record(ctx, audit.EventEdgeCreate, "edge", string(edge.ID), true, "")
	return edge, nil
}

// ListEdges returns every edge with its endpoint names, in unspecified
// order.
func (db *DB) ListEdges(ctx context.Context) (edges []*EdgeWithNodes, err error) {
	_, done := begin(ctx, "list_edges")
	defer func() { done(err) }()

	if db.closed.Load() {
		return nil, ErrClosed
	}

	db.mu.RLock()
	defer db.mu.RUnlock()

	all := db.engine.ListEdges()
	edges = make([]*EdgeWithNodes, 0, len(all))
	for _, e := range all {
		item := &EdgeWithNodes{Edge: e}
		if src, ok := db.engine.GetNode(e.SourceID); ok {
			item.SourceName = src.Name
		}
		if dst, ok := db.engine.GetNode(e.TargetID); ok {
			item.TargetName = dst.Name
		}
		edges = append(edges, item)
	}
	return edges, nil
}
