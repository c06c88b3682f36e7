package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// buildTree creates:
//
//	root -calls-> a -calls-> c
//	root -imports-> b -uses-> d
//	d -references-> root
func buildTree(t *testing.T) *MemoryEngine {
	t.Helper()
	engine := NewMemoryEngine()
	for _, id := range []string{"root", "a", "b", "c", "d"} {
		engine.AddNode(fn(id, id))
	}
	link(engine, "root-a", "root", "a", EdgeCalls, 1)
	link(engine, "root-b", "root", "b", EdgeImports, 1)
	link(engine, "a-c", "a", "c", EdgeCalls, 1)
	link(engine, "b-d", "b", "d", EdgeUses, 1)
	link(engine, "d-root", "d", "root", EdgeReferences, 1)
	return engine
}

func TestNeighbors_Direction(t *testing.T) {
	engine := NewMemoryEngine()
	engine.AddNode(fn("a", "A"))
	engine.AddNode(fn("b", "B"))
	link(engine, "ab", "a", "b", EdgeCalls, 1)

	assert.Equal(t, []NodeID{"a"}, nodeIDs(engine.Neighbors("b", nil, Incoming, 1)))
	assert.Empty(t, engine.Neighbors("b", nil, Outgoing, 1))
	assert.Equal(t, []NodeID{"a"}, nodeIDs(engine.Neighbors("b", nil, Both, 1)))
}

func TestNeighbors_Depth(t *testing.T) {
	engine := buildTree(t)

	tests := []struct {
		name  string
		depth int
		dir   Direction
		want  []NodeID
	}{
		{"zero depth", 0, Outgoing, []NodeID{}},
		{"negative depth", -2, Both, []NodeID{}},
		{"one level out", 1, Outgoing, []NodeID{"a", "b"}},
		{"two levels out", 2, Outgoing, []NodeID{"a", "b", "c", "d"}},
		{"deep stops when exhausted", 10, Outgoing, []NodeID{"a", "b", "c", "d"}},
		{"one level in", 1, Incoming, []NodeID{"d"}},
		{"two levels in", 2, Incoming, []NodeID{"d", "b"}},
		{"one level both", 1, Both, []NodeID{"a", "b", "d"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, nodeIDs(engine.Neighbors("root", nil, tt.dir, tt.depth)))
		})
	}
}

func TestNeighbors_KindFilter(t *testing.T) {
	engine := buildTree(t)

	got := engine.Neighbors("root", []EdgeKind{EdgeCalls}, Outgoing, 3)
	assert.Equal(t, []NodeID{"a", "c"}, nodeIDs(got))

	got = engine.Neighbors("root", []EdgeKind{EdgeImports, EdgeUses}, Outgoing, 3)
	assert.Equal(t, []NodeID{"b", "d"}, nodeIDs(got))

	assert.Empty(t, engine.Neighbors("root", []EdgeKind{}, Both, 3))
}

func TestNeighbors_NoDuplicatesNoOrigin(t *testing.T) {
	engine := buildTree(t)
	// Cycle root -> b -> d -> root plus a second edge into d.
	link(engine, "a-d", "a", "d", EdgeCalls, 1)

	got := engine.Neighbors("root", nil, Both, 5)
	ids := nodeIDs(got)
	assert.ElementsMatch(t, []NodeID{"a", "b", "c", "d"}, ids)
	assert.NotContains(t, ids, NodeID("root"))
}

func TestNeighbors_UnknownStart(t *testing.T) {
	engine := buildTree(t)
	got := engine.Neighbors("ghost", nil, Both, 2)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}
