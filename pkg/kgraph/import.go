package kgraph

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/orneryd/kgraph/pkg/audit"
	"github.com/orneryd/kgraph/pkg/storage"
)

// Import inserts a batch of fully formed records under one write lock.
//
// The whole batch is validated first. Node IDs must never have been used,
// not even by a deleted node. Kinds must be valid, weights must pass
// storage.ValidWeight, and every edge endpoint must be an existing node or a
// node in the batch. On any failure nothing is
// inserted. Records are stored as given; IDs and timestamps are not
// reassigned.
//
// Import satisfies seed.Importer.
func (db *DB) Import(ctx context.Context, nodes []*storage.Node, edges []*storage.Edge) (err error) {
	ctx, done := begin(ctx, "import",
		attribute.Int("kgraph.nodes", len(nodes)),
		attribute.Int("kgraph.edges", len(edges)),
	)
	defer func() { done(err) }()

	if db.closed.Load() {
		return ErrClosed
	}

	db.mu.Lock()
	if err := db.validateBatch(nodes, edges); err != nil {
		db.mu.Unlock()
		db.logger.Info("import rejected", "error", err)
		db.record(ctx, audit.EventSeedImport, "seed", "", false, err.Error())
		return err
	}
	for _, n := range nodes {
		db.engine.AddNode(n)
	}
	for _, e := range edges {
		db.engine.AddEdge(e)
	}
	db.invalidate()
	db.mu.Unlock()

	db.logger.Info("import complete", "nodes", len(nodes), "edges", len(edges))
	db.record(ctx, audit.EventSeedImport, "seed", "", true, fmt.Sprintf("nodes=%d edges=%d", len(nodes), len(edges)))
	return nil
}

// validateBatch checks a batch against the current graph.
// Caller must hold the write lock.
func (db *DB) validateBatch(nodes []*storage.Node, edges []*storage.Edge) error {
	batch := make(map[storage.NodeID]bool, len(nodes))
	for i, n := range nodes {
		switch {
		case n == nil || n.ID == "":
			return fmt.Errorf("%w: node %d has no id", ErrInvalidInput, i)
		case n.Name == "":
			return fmt.Errorf("%w: node %s has no name", ErrInvalidInput, n.ID)
		case !n.Kind.Valid():
			return fmt.Errorf("%w: node %s has unknown type %q", ErrInvalidInput, n.ID, n.Kind)
		}
		if _, exists := db.engine.GetNode(n.ID); exists || batch[n.ID] {
			return fmt.Errorf("%w: duplicate node id %s", ErrInvalidInput, n.ID)
		}
		if db.engine.Retired(n.ID) {
			return fmt.Errorf("%w: node id %s belonged to a deleted node", ErrInvalidInput, n.ID)
		}
		batch[n.ID] = true
	}

	known := func(id storage.NodeID) bool {
		if batch[id] {
			return true
		}
		_, ok := db.engine.GetNode(id)
		return ok
	}

	edgeIDs := make(map[storage.EdgeID]bool, len(edges))
	for i, e := range edges {
		switch {
		case e == nil || e.ID == "":
			return fmt.Errorf("%w: edge %d has no id", ErrInvalidInput, i)
		case !e.Kind.Valid():
			return fmt.Errorf("%w: edge %s has unknown type %q", ErrInvalidInput, e.ID, e.Kind)
		case !storage.ValidWeight(e.Weight):
			return fmt.Errorf("%w: edge %s has invalid weight %v", ErrInvalidInput, e.ID, e.Weight)
		}
		if _, exists := db.engine.GetEdge(e.ID); exists || edgeIDs[e.ID] {
			return fmt.Errorf("%w: duplicate edge id %s", ErrInvalidInput, e.ID)
		}
		edgeIDs[e.ID] = true
		if !known(e.SourceID) || !known(e.TargetID) {
			return fmt.Errorf("edge %s (%s -> %s): %w", e.ID, e.SourceID, e.TargetID, ErrUnknownEndpoint)
		}
	}
	return nil
}
