package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShortestPath_SingleEdge(t *testing.T) {
	engine := NewMemoryEngine()
	engine.AddNode(fn("a", "A"))
	engine.AddNode(fn("b", "B"))
	link(engine, "ab", "a", "b", EdgeCalls, 2.0)

	res, ok := engine.ShortestPath("a", "b")
	require.True(t, ok)
	assert.Equal(t, []NodeID{"a", "b"}, res.Path)
	assert.Equal(t, []string{"A", "B"}, res.NodeNames)
	assert.Equal(t, 2.0, res.TotalWeight)
	assert.True(t, res.Complete)
	assert.Equal(t, 1, res.Hops())
}

func TestShortestPath_Absent(t *testing.T) {
	engine := NewMemoryEngine()
	engine.AddNode(fn("c", "C"))
	engine.AddNode(fn("d", "D"))
	engine.AddNode(fn("e", "E"))
	link(engine, "dc", "d", "c", EdgeCalls, 1)

	tests := []struct {
		name           string
		source, target NodeID
	}{
		{"no edges between", "c", "e"},
		{"wrong direction", "c", "d"},
		{"unknown source", "ghost", "c"},
		{"unknown target", "c", "ghost"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, ok := engine.ShortestPath(tt.source, tt.target)
			assert.False(t, ok)
			assert.Nil(t, res)
		})
	}
}

func TestShortestPath_SameNode(t *testing.T) {
	engine := NewMemoryEngine()
	engine.AddNode(fn("a", "A"))

	res, ok := engine.ShortestPath("a", "a")
	require.True(t, ok)
	assert.Equal(t, []NodeID{"a"}, res.Path)
	assert.Equal(t, 0.0, res.TotalWeight)
	assert.True(t, res.Complete)
	assert.Equal(t, 0, res.Hops())
}

func TestShortestPath_PrefersLighterRoute(t *testing.T) {
	engine := NewMemoryEngine()
	for _, id := range []string{"s", "x", "y", "t"} {
		engine.AddNode(fn(id, id))
	}
	link(engine, "direct", "s", "t", EdgeCalls, 10)
	link(engine, "sx", "s", "x", EdgeCalls, 1)
	link(engine, "xy", "x", "y", EdgeCalls, 1.5)
	link(engine, "yt", "y", "t", EdgeCalls, 2)

	res, ok := engine.ShortestPath("s", "t")
	require.True(t, ok)
	assert.Equal(t, []NodeID{"s", "x", "y", "t"}, res.Path)
	assert.InDelta(t, 4.5, res.TotalWeight, 1e-9)
	assert.True(t, res.Complete)
}

func TestShortestPath_WeightMatchesPathSum(t *testing.T) {
	engine := NewMemoryEngine()
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		engine.AddNode(fn(id, id))
	}
	weights := map[[2]string]float64{
		{"a", "b"}: 0.3, {"a", "c"}: 2.2, {"b", "c"}: 0.7,
		{"b", "d"}: 3.1, {"c", "d"}: 0.4, {"d", "e"}: 1.25, {"c", "e"}: 4,
	}
	for pair, w := range weights {
		link(engine, pair[0]+pair[1], pair[0], pair[1], EdgeDependsOn, w)
	}

	res, ok := engine.ShortestPath("a", "e")
	require.True(t, ok)
	require.True(t, res.Complete)

	var sum float64
	for j := 0; j+1 < len(res.Path); j++ {
		sum += weights[[2]string{string(res.Path[j]), string(res.Path[j+1])}]
	}
	assert.InDelta(t, res.TotalWeight, sum, 1e-9)
	assert.InDelta(t, 2.65, res.TotalWeight, 1e-9)
	assert.Equal(t, []NodeID{"a", "b", "c", "d", "e"}, res.Path)
}

func TestShortestPath_TieBreakUsesFirstIncomingEdge(t *testing.T) {
	engine := NewMemoryEngine()
	for _, id := range []string{"s", "l", "r", "t"} {
		engine.AddNode(fn(id, id))
	}
	link(engine, "sl", "s", "l", EdgeCalls, 1)
	link(engine, "sr", "s", "r", EdgeCalls, 1)
	link(engine, "rt", "r", "t", EdgeCalls, 1)
	link(engine, "lt", "l", "t", EdgeCalls, 1)

	res, ok := engine.ShortestPath("s", "t")
	require.True(t, ok)
	assert.Equal(t, []NodeID{"s", "r", "t"}, res.Path)
}

// A zero-weight cycle lets the first qualifying predecessor of W be Z, whose
// only predecessor is W itself. Reconstruction must stop and report the
// target-side suffix.
func TestShortestPath_PartialReconstruction(t *testing.T) {
	engine := NewMemoryEngine()
	for _, id := range []string{"S", "W", "Z", "T"} {
		engine.AddNode(fn(id, id))
	}
	link(engine, "zw", "Z", "W", EdgeCalls, 0)
	link(engine, "sw", "S", "W", EdgeCalls, 1)
	link(engine, "wz", "W", "Z", EdgeCalls, 0)
	link(engine, "wt", "W", "T", EdgeCalls, 1)

	res, ok := engine.ShortestPath("S", "T")
	require.True(t, ok)
	assert.False(t, res.Complete)
	assert.Equal(t, []NodeID{"Z", "W", "T"}, res.Path)
	assert.Equal(t, []string{"Z", "W", "T"}, res.NodeNames)
	assert.Equal(t, 2.0, res.TotalWeight)
}

func TestShortestPath_MaxWeights(t *testing.T) {
	engine := NewMemoryEngine()
	engine.AddNode(fn("a", "A"))
	engine.AddNode(fn("b", "B"))
	engine.AddNode(fn("c", "C"))
	link(engine, "ab", "a", "b", EdgeCalls, MaxEdgeWeight)
	link(engine, "bc", "b", "c", EdgeCalls, MaxEdgeWeight)

	res, ok := engine.ShortestPath("a", "c")
	require.True(t, ok)
	assert.Equal(t, []NodeID{"a", "b", "c"}, res.Path)
	assert.Equal(t, 2*MaxEdgeWeight, res.TotalWeight)
	assert.True(t, res.Complete)
}
