// Package seed loads a graph description from a YAML or JSON file.
//
// Seed files let a freshly started service come up with a known graph, since
// the graph itself lives only in memory. Nodes carry a file-local key that
// edges use to reference their endpoints; real identifiers are assigned at
// load time.
//
// Format (YAML; the JSON equivalent is accepted as well):
//
//	nodes:
//	  - key: auth
//	    name: handleAuth
//	    node_type: function
//	    path: src/auth/handler.ts
//	    language: typescript
//	  - key: token
//	    name: verifyToken
//	    node_type: function
//	edges:
//	  - source: auth
//	    target: token
//	    edge_type: calls
//	    weight: 2.5
//
// Example Usage:
//
//	file, err := seed.ReadFile("graph.yaml")
//	if err != nil {
//		return err
//	}
//	result, err := seed.Apply(ctx, db, file)
package seed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/orneryd/kgraph/pkg/storage"
)

// ErrInvalidSeed wraps every structural problem found in a seed file.
var ErrInvalidSeed = errors.New("invalid seed file")

// File is the decoded content of a seed file.
type File struct {
	Nodes []NodeSpec `yaml:"nodes" json:"nodes"`
	Edges []EdgeSpec `yaml:"edges" json:"edges"`
}

// NodeSpec describes one node. Key is only meaningful inside the file.
type NodeSpec struct {
	Key         string           `yaml:"key" json:"key"`
	Name        string           `yaml:"name" json:"name"`
	Kind        storage.NodeKind `yaml:"node_type" json:"node_type"`
	Path        string           `yaml:"path" json:"path"`
	Language    string           `yaml:"language" json:"language"`
	Description string           `yaml:"description" json:"description"`
	Metadata    map[string]any   `yaml:"metadata" json:"metadata"`
}

// EdgeSpec describes one edge between two node keys. A nil Weight means
// storage.DefaultEdgeWeight.
type EdgeSpec struct {
	Source   string           `yaml:"source" json:"source"`
	Target   string           `yaml:"target" json:"target"`
	Kind     storage.EdgeKind `yaml:"edge_type" json:"edge_type"`
	Weight   *float64         `yaml:"weight" json:"weight"`
	Metadata map[string]any   `yaml:"metadata" json:"metadata"`
}

// Importer accepts a fully resolved batch of records.
//
// Implementations must reject the whole batch, without mutating anything,
// if any edge references an unknown node.
type Importer interface {
	Import(ctx context.Context, nodes []*storage.Node, edges []*storage.Edge) error
}

// Result summarizes an applied seed file.
type Result struct {
	NodesImported int
	EdgesImported int
	// IDs maps each file-local key to the assigned node ID.
	IDs map[string]storage.NodeID
}

// ReadFile reads and decodes a seed file.
func ReadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading seed file: %w", err)
	}
	file, err := Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return file, nil
}

// Decode parses YAML (or JSON, which is valid YAML) from r. Unknown fields
// and unknown node or edge kinds are errors.
func Decode(r io.Reader) (*File, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var file File
	if err := dec.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return &file, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidSeed, err)
	}
	return &file, nil
}

// Build validates the file and turns it into storage records.
//
// newID supplies node and edge identifiers (uuid.NewString when nil) and now
// is used for every timestamp. Nothing is returned unless the whole file is
// valid.
func Build(file *File, newID func() string, now time.Time) ([]*storage.Node, []*storage.Edge, map[string]storage.NodeID, error) {
	if newID == nil {
		newID = uuid.NewString
	}

	ids := make(map[string]storage.NodeID, len(file.Nodes))
	nodes := make([]*storage.Node, 0, len(file.Nodes))
	for i, spec := range file.Nodes {
		switch {
		case spec.Key == "":
			return nil, nil, nil, fmt.Errorf("%w: node %d has no key", ErrInvalidSeed, i)
		case spec.Name == "":
			return nil, nil, nil, fmt.Errorf("%w: node %q has no name", ErrInvalidSeed, spec.Key)
		case !spec.Kind.Valid():
			return nil, nil, nil, fmt.Errorf("%w: node %q has no node_type", ErrInvalidSeed, spec.Key)
		}
		if _, dup := ids[spec.Key]; dup {
			return nil, nil, nil, fmt.Errorf("%w: duplicate node key %q", ErrInvalidSeed, spec.Key)
		}

		id := storage.NodeID(newID())
		ids[spec.Key] = id
		nodes = append(nodes, &storage.Node{
			ID:          id,
			Name:        spec.Name,
			Kind:        spec.Kind,
			Path:        spec.Path,
			Language:    spec.Language,
			Description: spec.Description,
			Metadata:    orEmpty(spec.Metadata),
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}

	edges := make([]*storage.Edge, 0, len(file.Edges))
	for i, spec := range file.Edges {
		src, ok := ids[spec.Source]
		if !ok {
			return nil, nil, nil, fmt.Errorf("%w: edge %d references unknown source %q", ErrInvalidSeed, i, spec.Source)
		}
		dst, ok := ids[spec.Target]
		if !ok {
			return nil, nil, nil, fmt.Errorf("%w: edge %d references unknown target %q", ErrInvalidSeed, i, spec.Target)
		}
		if !spec.Kind.Valid() {
			return nil, nil, nil, fmt.Errorf("%w: edge %d has no edge_type", ErrInvalidSeed, i)
		}
		weight := storage.DefaultEdgeWeight
		if spec.Weight != nil {
			weight = *spec.Weight
		}
		if !storage.ValidWeight(weight) {
			return nil, nil, nil, fmt.Errorf("%w: edge %d has invalid weight %v", ErrInvalidSeed, i, weight)
		}

		edges = append(edges, &storage.Edge{
			ID:        storage.EdgeID(newID()),
			SourceID:  src,
			TargetID:  dst,
			Kind:      spec.Kind,
			Weight:    weight,
			Metadata:  orEmpty(spec.Metadata),
			CreatedAt: now,
		})
	}
	return nodes, edges, ids, nil
}

// Apply builds file and hands the records to imp in one batch.
func Apply(ctx context.Context, imp Importer, file *File) (*Result, error) {
	nodes, edges, ids, err := Build(file, nil, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if err := imp.Import(ctx, nodes, edges); err != nil {
		return nil, fmt.Errorf("importing seed: %w", err)
	}
	return &Result{
		NodesImported: len(nodes),
		EdgesImported: len(edges),
		IDs:           ids,
	}, nil
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
