package storage

import (
	"strings"
)

// Search returns up to limit nodes whose name or description contains query,
// ignoring case.
//
// kinds restricts matches to the listed node kinds; nil means any kind.
// language, when non-empty, must equal the node's language exactly
// (case-sensitive). limit <= 0 returns an empty result. Matches are taken in
// map enumeration order, so which nodes survive truncation is unspecified.
func (m *MemoryEngine) Search(query string, kinds []NodeKind, language string, limit int) []*Node {
	result := []*Node{}
	if limit <= 0 {
		return result
	}

	var allowed map[NodeKind]bool
	if kinds != nil {
		allowed = make(map[NodeKind]bool, len(kinds))
		for _, k := range kinds {
			allowed[k] = true
		}
	}

	needle := strings.ToLower(query)
	for _, node := range m.nodes {
		if !strings.Contains(strings.ToLower(node.Name), needle) &&
			!strings.Contains(strings.ToLower(node.Description), needle) {
			continue
		}
		if allowed != nil && !allowed[node.Kind] {
			continue
		}
		if language != "" && node.Language != language {
			continue
		}
		result = append(result, copyNode(node))
		if len(result) >= limit {
			break
		}
	}
	return result
}

// Stats computes aggregate counts over the graph. Kinds with no records are
// omitted from the per-kind maps.
func (m *MemoryEngine) Stats() Stats {
	stats := Stats{
		TotalNodes:  len(m.nodes),
		TotalEdges:  len(m.edges),
		NodesByKind: make(map[string]int),
		EdgesByKind: make(map[string]int),
	}
	for _, node := range m.nodes {
		stats.NodesByKind[string(node.Kind)]++
	}
	for _, edge := range m.edges {
		stats.EdgesByKind[string(edge.Kind)]++
	}
	if stats.TotalNodes > 0 {
		stats.AvgEdgesPerNode = float64(stats.TotalEdges) / float64(stats.TotalNodes)
	}
	return stats
}
