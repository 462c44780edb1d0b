package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/mnemoslabs/mnemos/core"
)

// Config holds the storage locations for the three layers. Empty paths keep
// the corresponding layer memory-only.
type Config struct {
	GraphPath     string
	ChroniclePath string
	VectorPath    string
}

// Store is the unified long-term memory: a symbolic graph, a temporal
// chronicle, and an associative vector index, written together so a recorded
// entry is immediately resolvable in all three layers.
//
// All mutations are serialized under one mutex. Vector reads go straight to
// chromem, which is safe for concurrent use.
type Store struct {
	mu       sync.Mutex
	schema   *Schema
	graph    *Graph
	timeline *Timeline
	vectors  *VectorIndex
	cfg      Config
	logger   *log.Logger
	closed   bool
}

// Open loads the store from the configured paths, creating empty layers where
// no files exist yet.
func Open(cfg Config, embedder Embedder, logger *log.Logger) (*Store, error) {
	graph, err := LoadGraph(cfg.GraphPath)
	if err != nil {
		return nil, err
	}
	timeline, err := NewTimeline(cfg.ChroniclePath)
	if err != nil {
		return nil, err
	}
	vectors, err := NewVectorIndex(cfg.VectorPath, embedder, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("memory store opened", "nodes", graph.Len())
	return &Store{
		schema:   NewSchema(),
		graph:    graph,
		timeline: timeline,
		vectors:  vectors,
		cfg:      cfg,
		logger:   logger,
	}, nil
}

// RecordEntry writes one entry across all layers: a graph node, a chronicle
// event, and (for embeddable types) a vector document. Links whose targets do
// not exist are skipped with a warning rather than failing the write. Returns
// the minted node ID.
func (s *Store) RecordEntry(ctx context.Context, nodeType, content string, attrs map[string]any, links []core.LinkDirective) (string, error) {
	if err := s.schema.ValidateNodeType(nodeType); err != nil {
		return "", err
	}
	for _, l := range links {
		if err := s.schema.ValidateEdgeLabel(l.Label); err != nil {
			return "", err
		}
	}
	id, ts := NewTimestampedID(nodeType)

	s.mu.Lock()
	node := &Node{ID: id, Type: nodeType, Content: content, Timestamp: ts}
	if len(attrs) > 0 {
		node.Attrs = make(map[string]any, len(attrs))
		for k, v := range attrs {
			node.Attrs[k] = v
		}
	}
	s.graph.AddNode(node)
	for _, l := range links {
		if !s.graph.HasNode(l.TargetID) {
			s.logger.Warn("link target missing, skipping edge", "source", id, "target", l.TargetID, "label", l.Label)
			continue
		}
		if err := s.graph.AddEdge(id, l.TargetID, l.Label); err != nil {
			s.mu.Unlock()
			return "", err
		}
	}
	s.timeline.Record(ts, Event{NodeID: id, Type: nodeType})
	s.mu.Unlock()

	if err := s.vectors.Add(ctx, id, nodeType, content); err != nil {
		// The symbolic and temporal layers already hold the entry; a
		// failed embedding only degrades associative recall.
		s.logger.Warn("vector index write failed", "node", id, "error", err)
	}
	return id, nil
}

// GetOrCreateConcept resolves a concept name to its node ID, recording a new
// ConceptNode on first sight.
func (s *Store) GetOrCreateConcept(ctx context.Context, name string) (string, error) {
	s.mu.Lock()
	for _, n := range s.graph.NodesByType(core.NodeConcept) {
		if n.Content == name {
			s.mu.Unlock()
			return n.ID, nil
		}
	}
	s.mu.Unlock()
	return s.RecordEntry(ctx, core.NodeConcept, name, nil, nil)
}

// AddEdge links two existing nodes. Unknown labels and missing endpoints are
// errors here, unlike RecordEntry's best-effort link directives.
func (s *Store) AddEdge(src, dst, label string) error {
	if err := s.schema.ValidateEdgeLabel(label); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.graph.AddEdge(src, dst, label)
}

// Node returns a copy of the node, or nil if absent.
func (s *Store) Node(id string) *Node {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.graph.Node(id).Clone()
}

// SetNodeContent replaces a node's content. The vector index keeps the
// original document; re-embedding updated nodes is the slow loop's job.
func (s *Store) SetNodeContent(id, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.graph.Node(id)
	if n == nil {
		return fmt.Errorf("%w: %s", ErrUnknownNode, id)
	}
	n.Content = content
	return nil
}

// SetNodeAttr updates one attribute on an existing node.
func (s *Store) SetNodeAttr(id, key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.graph.Node(id)
	if n == nil {
		return fmt.Errorf("%w: %s", ErrUnknownNode, id)
	}
	if n.Attrs == nil {
		n.Attrs = make(map[string]any)
	}
	n.Attrs[key] = value
	return nil
}

// Successors returns the targets of id's outgoing edges.
func (s *Store) Successors(id string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.graph.Successors(id)
}

// Predecessors returns the sources of id's incoming edges.
func (s *Store) Predecessors(id string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.graph.Predecessors(id)
}

// SuccessorsByLabel returns outgoing neighbors connected by the given label.
func (s *Store) SuccessorsByLabel(id, label string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, dst := range s.graph.Successors(id) {
		if l, ok := s.graph.EdgeLabel(id, dst); ok && l == label {
			out = append(out, dst)
		}
	}
	return out
}

// PredecessorsByLabel returns incoming neighbors connected by the given label.
func (s *Store) PredecessorsByLabel(id, label string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, src := range s.graph.Predecessors(id) {
		if l, ok := s.graph.EdgeLabel(src, id); ok && l == label {
			out = append(out, src)
		}
	}
	return out
}

// EdgeLabel returns the label of the src→dst edge, if present.
func (s *Store) EdgeLabel(src, dst string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.graph.EdgeLabel(src, dst)
}

// NodesByType returns copies of every node of the given type.
func (s *Store) NodesByType(nodeType string) []*Node {
	s.mu.Lock()
	defer s.mu.Unlock()
	nodes := s.graph.NodesByType(nodeType)
	out := make([]*Node, len(nodes))
	for i, n := range nodes {
		out[i] = n.Clone()
	}
	return out
}

// FindByAttribute returns a copy of the first node whose field matches value.
func (s *Store) FindByAttribute(key, value string) *Node {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.graph.FindByAttribute(key, value).Clone()
}

// Trace returns the IDs of the subgraph reachable from root over edges of the
// given kind.
func (s *Store) Trace(root string, kind core.EdgeKind) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.graph.Trace(root, kind)
}

// Search queries the named vector collection. See VectorIndex.Search.
func (s *Store) Search(ctx context.Context, collection, query string, k int, allowed map[string]bool) []Hit {
	return s.vectors.Search(ctx, collection, query, k, allowed)
}

// QueryRelative resolves a named temporal window against now.
func (s *Store) QueryRelative(window string, now time.Time) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeline.QueryRelative(window, now)
}

// QueryRange returns chronicle node IDs inside [from, to).
func (s *Store) QueryRange(from, to time.Time) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeline.QueryRange(from, to)
}

// Len returns the number of graph nodes.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.graph.Len()
}

// Flush persists the symbolic and temporal layers to disk.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked()
}

func (s *Store) flushLocked() error {
	if s.cfg.GraphPath != "" {
		if err := s.graph.Save(s.cfg.GraphPath); err != nil {
			return err
		}
	}
	return s.timeline.Save()
}

// Close flushes and releases resources. Safe to call more than once.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	err := s.flushLocked()
	s.vectors.Close()
	return err
}
