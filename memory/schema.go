package memory

import (
	"errors"
	"fmt"

	"github.com/mnemoslabs/mnemos/core"
)

// ErrUnknownNodeType rejects writes with a node type outside the vocabulary.
var ErrUnknownNodeType = errors.New("memory: unknown node type")

// ErrUnknownEdgeLabel rejects edges with a label outside the vocabulary.
var ErrUnknownEdgeLabel = errors.New("memory: unknown edge label")

// Schema validates node types and edge labels against the fixed vocabulary
// before anything reaches the graph.
type Schema struct {
	nodeTypes map[string]bool
}

// NewSchema builds the validator over the known vocabulary.
func NewSchema() *Schema {
	types := make(map[string]bool)
	for _, t := range core.KnownNodeTypes() {
		types[t] = true
	}
	return &Schema{nodeTypes: types}
}

// ValidateNodeType returns an error for types outside the vocabulary.
func (s *Schema) ValidateNodeType(nodeType string) error {
	if !s.nodeTypes[nodeType] {
		return fmt.Errorf("%w: %q", ErrUnknownNodeType, nodeType)
	}
	return nil
}

// ValidateEdgeLabel returns an error for labels outside the vocabulary.
func (s *Schema) ValidateEdgeLabel(label string) error {
	if _, ok := core.KindOfEdge(label); !ok {
		return fmt.Errorf("%w: %q", ErrUnknownEdgeLabel, label)
	}
	return nil
}
