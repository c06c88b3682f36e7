package seed

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/kgraph/pkg/storage"
)

const sampleYAML = `
nodes:
  - key: repo
    name: payments
    node_type: repository
  - key: auth
    name: handleAuth
    node_type: function
    language: typescript
    metadata:
      line: 42
  - key: token
    name: verifyToken
    node_type: function
edges:
  - source: repo
    target: auth
    edge_type: contains
  - source: auth
    target: token
    edge_type: calls
    weight: 2.5
`

// recorder is an Importer that keeps what it was given.
type recorder struct {
	nodes []*storage.Node
	edges []*storage.Edge
	err   error
}

func (r *recorder) Import(_ context.Context, nodes []*storage.Node, edges []*storage.Edge) error {
	if r.err != nil {
		return r.err
	}
	r.nodes, r.edges = nodes, edges
	return nil
}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

func TestDecode(t *testing.T) {
	t.Run("yaml", func(t *testing.T) {
		file, err := Decode(strings.NewReader(sampleYAML))
		require.NoError(t, err)
		require.Len(t, file.Nodes, 3)
		require.Len(t, file.Edges, 2)
		assert.Equal(t, storage.NodeRepository, file.Nodes[0].Kind)
		assert.Equal(t, storage.EdgeCalls, file.Edges[1].Kind)
		require.NotNil(t, file.Edges[1].Weight)
		assert.Equal(t, 2.5, *file.Edges[1].Weight)
		assert.Nil(t, file.Edges[0].Weight)
	})

	t.Run("json", func(t *testing.T) {
		file, err := Decode(strings.NewReader(`{"nodes":[{"key":"a","name":"A","node_type":"agent"}],"edges":[]}`))
		require.NoError(t, err)
		require.Len(t, file.Nodes, 1)
		assert.Equal(t, storage.NodeAgent, file.Nodes[0].Kind)
	})

	t.Run("empty input", func(t *testing.T) {
		file, err := Decode(strings.NewReader(""))
		require.NoError(t, err)
		assert.Empty(t, file.Nodes)
	})

	t.Run("unknown kind", func(t *testing.T) {
		_, err := Decode(strings.NewReader("nodes:\n  - key: a\n    name: A\n    node_type: widget\n"))
		require.ErrorIs(t, err, ErrInvalidSeed)
		assert.Contains(t, err.Error(), "widget")
	})

	t.Run("unknown field", func(t *testing.T) {
		_, err := Decode(strings.NewReader("nodes:\n  - key: a\n    label: A\n"))
		assert.ErrorIs(t, err, ErrInvalidSeed)
	})
}

func TestBuild(t *testing.T) {
	file, err := Decode(strings.NewReader(sampleYAML))
	require.NoError(t, err)

	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	nodes, edges, ids, err := Build(file, sequentialIDs(), now)
	require.NoError(t, err)

	require.Len(t, nodes, 3)
	assert.Equal(t, storage.NodeID("id-1"), nodes[0].ID)
	assert.Equal(t, now, nodes[0].CreatedAt)
	assert.Equal(t, now, nodes[0].UpdatedAt)
	assert.NotNil(t, nodes[0].Metadata)
	assert.Equal(t, 42, nodes[1].Metadata["line"])
	assert.Equal(t, map[string]storage.NodeID{"repo": "id-1", "auth": "id-2", "token": "id-3"}, ids)

	require.Len(t, edges, 2)
	assert.Equal(t, storage.EdgeID("id-4"), edges[0].ID)
	assert.Equal(t, storage.NodeID("id-1"), edges[0].SourceID)
	assert.Equal(t, storage.NodeID("id-2"), edges[0].TargetID)
	assert.Equal(t, storage.DefaultEdgeWeight, edges[0].Weight)
	assert.Equal(t, 2.5, edges[1].Weight)
	assert.NotNil(t, edges[1].Metadata)
}

func TestBuild_Rejects(t *testing.T) {
	neg := -1.0
	tests := []struct {
		name string
		file File
		want string
	}{
		{"missing key", File{Nodes: []NodeSpec{{Name: "A", Kind: storage.NodeFile}}}, "no key"},
		{"missing name", File{Nodes: []NodeSpec{{Key: "a", Kind: storage.NodeFile}}}, "no name"},
		{"missing kind", File{Nodes: []NodeSpec{{Key: "a", Name: "A"}}}, "no node_type"},
		{"duplicate key", File{Nodes: []NodeSpec{
			{Key: "a", Name: "A", Kind: storage.NodeFile},
			{Key: "a", Name: "B", Kind: storage.NodeFile},
		}}, "duplicate"},
		{"unknown source", File{
			Nodes: []NodeSpec{{Key: "a", Name: "A", Kind: storage.NodeFile}},
			Edges: []EdgeSpec{{Source: "ghost", Target: "a", Kind: storage.EdgeUses}},
		}, "unknown source"},
		{"unknown target", File{
			Nodes: []NodeSpec{{Key: "a", Name: "A", Kind: storage.NodeFile}},
			Edges: []EdgeSpec{{Source: "a", Target: "ghost", Kind: storage.EdgeUses}},
		}, "unknown target"},
		{"missing edge kind", File{
			Nodes: []NodeSpec{{Key: "a", Name: "A", Kind: storage.NodeFile}},
			Edges: []EdgeSpec{{Source: "a", Target: "a"}},
		}, "no edge_type"},
		{"negative weight", File{
			Nodes: []NodeSpec{{Key: "a", Name: "A", Kind: storage.NodeFile}},
			Edges: []EdgeSpec{{Source: "a", Target: "a", Kind: storage.EdgeUses, Weight: &neg}},
		}, "invalid weight"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nodes, edges, _, err := Build(&tt.file, sequentialIDs(), time.Now())
			require.ErrorIs(t, err, ErrInvalidSeed)
			assert.Contains(t, err.Error(), tt.want)
			assert.Nil(t, nodes)
			assert.Nil(t, edges)
		})
	}
}

func TestApply(t *testing.T) {
	file, err := Decode(strings.NewReader(sampleYAML))
	require.NoError(t, err)

	t.Run("imports one batch", func(t *testing.T) {
		rec := &recorder{}
		result, err := Apply(context.Background(), rec, file)
		require.NoError(t, err)
		assert.Equal(t, 3, result.NodesImported)
		assert.Equal(t, 2, result.EdgesImported)
		assert.Len(t, rec.nodes, 3)
		assert.Len(t, rec.edges, 2)
		assert.Equal(t, result.IDs["auth"], rec.edges[1].SourceID)
	})

	t.Run("import failure is wrapped", func(t *testing.T) {
		boom := errors.New("boom")
		_, err := Apply(context.Background(), &recorder{err: boom}, file)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("invalid file never reaches the importer", func(t *testing.T) {
		rec := &recorder{}
		bad := &File{Edges: []EdgeSpec{{Source: "x", Target: "y", Kind: storage.EdgeCalls}}}
		_, err := Apply(context.Background(), rec, bad)
		assert.ErrorIs(t, err, ErrInvalidSeed)
		assert.Nil(t, rec.nodes)
	})
}

func TestReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graph.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0600))

	file, err := ReadFile(path)
	require.NoError(t, err)
	assert.Len(t, file.Nodes, 3)

	_, err = ReadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
