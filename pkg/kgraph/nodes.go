package kgraph

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/orneryd/kgraph/pkg/audit"
	"github.com/orneryd/kgraph/pkg/storage"
)

// NodeInput holds the caller-supplied fields of a new node.
type NodeInput struct {
	Name        string
	Kind        storage.NodeKind
	Path        string
	Language    string
	Description string
	Metadata    map[string]any
}

// NodeDetails is a node together with the number of edges touching it.
type NodeDetails struct {
	Node      *storage.Node `json:"node"`
	EdgeCount int           `json:"edge_count"`
}

// CreateNode assigns a fresh ID and timestamps and stores the node.
//
// Returns ErrInvalidInput if the name is empty or the kind is unknown.
// A nil Metadata is stored as an empty map.
func (db *DB) CreateNode(ctx context.Context, in NodeInput) (node *storage.Node, err error) {
	ctx, done := begin(ctx, "create_node", attribute.String("kgraph.node_type", string(in.Kind)))
	defer func() { done(err) }()

	if db.closed.Load() {
		return nil, ErrClosed
	}
	if in.Name == "" {
		return nil, fmt.Errorf("%w: node name is required", ErrInvalidInput)
	}
	if !in.Kind.Valid() {
		return nil, fmt.Errorf("%w: unknown node type %q", ErrInvalidInput, in.Kind)
	}

	now := db.now().UTC()
	node = &storage.Node{
		ID:          storage.NodeID(db.newID()),
		Name:        in.Name,
		Kind:        in.Kind,
		Path:        in.Path,
		Language:    in.Language,
		Description: in.Description,
		Metadata:    orEmpty(in.Metadata),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	db.mu.Lock()
	db.engine.AddNode(node)
	db.invalidate()
	db.mu.Unlock()

	db.logger.Debug("node created", "node_id", node.ID, "node_type", node.Kind, "name", node.Name)
	db.record(ctx, audit.EventNodeCreate, "node", string(node.ID), true, "")
	return node, nil
}

// GetNode returns the node and its edge count in one consistent read.
func (db *DB) GetNode(ctx context.Context, id storage.NodeID) (details *NodeDetails, err error) {
	_, done := begin(ctx, "get_node", attribute.String("kgraph.node_id", string(id)))
	defer func() { done(err) }()

	if db.closed.Load() {
		return nil, ErrClosed
	}

	db.mu.RLock()
	defer db.mu.RUnlock()

	node, ok := db.engine.GetNode(id)
	if !ok {
		return nil, fmt.Errorf("get %s: %w", id, ErrNodeNotFound)
	}
	return &NodeDetails{Node: node, EdgeCount: db.engine.Degree(id)}, nil
}

// DeleteNode removes the node and every edge touching it.
func (db *DB) DeleteNode(ctx context.Context, id storage.NodeID) (node *storage.Node, err error) {
	ctx, done := begin(ctx, "delete_node", attribute.String("kgraph.node_id", string(id)))
	defer func() { done(err) }()

	if db.closed.Load() {
		return nil, ErrClosed
	}

	db.mu.Lock()
	before := db.engine.EdgeCount()
	node, ok := db.engine.RemoveNode(id)
	removedEdges := before - db.engine.EdgeCount()
	if ok {
		db.invalidate()
	}
	db.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("delete %s: %w", id, ErrNodeNotFound)
	}

	db.logger.Debug("node deleted", "node_id", id, "edges_removed", removedEdges)
	db.record(ctx, audit.EventNodeDelete, "node", string(id), true, "")
	return node, nil
}

// ListNodes returns every node in unspecified order.
func (db *DB) ListNodes(ctx context.Context) (nodes []*storage.Node, err error) {
	_, done := begin(ctx, "list_nodes")
	defer func() { done(err) }()

	if db.closed.Load() {
		return nil, ErrClosed
	}

	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.engine.ListNodes(), nil
}

// record writes an audit event. Audit failures are logged, never returned:
// the mutation has already happened.
func (db *DB) record(ctx context.Context, eventType audit.EventType, resource, id string, success bool, reason string) {
	if err := db.audit.LogMutation(ctx, eventType, resource, id, success, reason); err != nil {
		db.logger.Error("audit write failed", "event", eventType, "error", err)
	}
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
