package storage

import (
	"errors"
	"fmt"
)

// Errors returned when decoding kinds and directions.
var (
	ErrUnknownNodeKind  = errors.New("unknown node kind")
	ErrUnknownEdgeKind  = errors.New("unknown edge kind")
	ErrUnknownDirection = errors.New("unknown direction")
)

// NodeKind classifies a node. The set is closed.
type NodeKind string

const (
	NodeRepository NodeKind = "repository"
	NodeFile       NodeKind = "file"
	NodeFunction   NodeKind = "function"
	NodeClass      NodeKind = "class"
	NodeModule     NodeKind = "module"
	NodeVariable   NodeKind = "variable"
	NodeConstant   NodeKind = "constant"
	NodeImport     NodeKind = "import"
	NodeAgent      NodeKind = "agent"
	NodeSkill      NodeKind = "skill"
	NodeTask       NodeKind = "task"
)

// NodeKinds lists every valid node kind in declaration order.
var NodeKinds = []NodeKind{
	NodeRepository, NodeFile, NodeFunction, NodeClass, NodeModule, NodeVariable,
	NodeConstant, NodeImport, NodeAgent, NodeSkill, NodeTask,
}

// EdgeKind classifies an edge. The set is closed.
type EdgeKind string

const (
	EdgeContains   EdgeKind = "contains"
	EdgeImports    EdgeKind = "imports"
	EdgeCalls      EdgeKind = "calls"
	EdgeInherits   EdgeKind = "inherits"
	EdgeImplements EdgeKind = "implements"
	EdgeUses       EdgeKind = "uses"
	EdgeDependsOn  EdgeKind = "depends_on"
	EdgeDefinedIn  EdgeKind = "defined_in"
	EdgeReferences EdgeKind = "references"
	EdgeHandles    EdgeKind = "handles"
	EdgeDelegates  EdgeKind = "delegates"
)

// EdgeKinds lists every valid edge kind in declaration order.
var EdgeKinds = []EdgeKind{
	EdgeContains, EdgeImports, EdgeCalls, EdgeInherits, EdgeImplements, EdgeUses,
	EdgeDependsOn, EdgeDefinedIn, EdgeReferences, EdgeHandles, EdgeDelegates,
}

// Direction selects which edges a traversal follows from a frontier node.
type Direction string

const (
	// Incoming follows edges whose target is the frontier node.
	Incoming Direction = "incoming"
	// Outgoing follows edges whose source is the frontier node.
	Outgoing Direction = "outgoing"
	// Both follows edges touching the frontier node at either end.
	Both Direction = "both"
)

// ParseNodeKind validates s against the closed set of node kinds.
func ParseNodeKind(s string) (NodeKind, error) {
	for _, k := range NodeKinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownNodeKind, s)
}

// ParseEdgeKind validates s against the closed set of edge kinds.
func ParseEdgeKind(s string) (EdgeKind, error) {
	for _, k := range EdgeKinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownEdgeKind, s)
}

// ParseDirection validates s. The empty string selects Both.
func ParseDirection(s string) (Direction, error) {
	switch Direction(s) {
	case "":
		return Both, nil
	case Incoming, Outgoing, Both:
		return Direction(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownDirection, s)
}

// Valid reports whether k is one of the declared node kinds.
func (k NodeKind) Valid() bool {
	_, err := ParseNodeKind(string(k))
	return err == nil
}

// Valid reports whether k is one of the declared edge kinds.
func (k EdgeKind) Valid() bool {
	_, err := ParseEdgeKind(string(k))
	return err == nil
}

// UnmarshalText rejects unknown kinds at decode time (JSON and YAML).
func (k *NodeKind) UnmarshalText(text []byte) error {
	parsed, err := ParseNodeKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// UnmarshalText rejects unknown kinds at decode time (JSON and YAML).
func (k *EdgeKind) UnmarshalText(text []byte) error {
	parsed, err := ParseEdgeKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// UnmarshalText rejects unknown directions at decode time.
func (d *Direction) UnmarshalText(text []byte) error {
	parsed, err := ParseDirection(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
