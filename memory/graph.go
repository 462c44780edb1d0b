package memory

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/mnemoslabs/mnemos/core"
)

// ErrUnknownNode is returned when an edge endpoint does not exist.
var ErrUnknownNode = errors.New("memory: unknown node")

// Node is a record in the knowledge graph. Identity is immutable; attributes
// (active_status, verification_status, …) may be updated through the store.
type Node struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Content   string         `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
	Attrs     map[string]any `json:"attrs,omitempty"`
}

// Clone returns a deep-enough copy safe to hand out of the store.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	c := *n
	if n.Attrs != nil {
		c.Attrs = make(map[string]any, len(n.Attrs))
		for k, v := range n.Attrs {
			c.Attrs[k] = v
		}
	}
	return &c
}

// Edge is a directed, labeled relationship between two node IDs.
type Edge struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Label  string `json:"label"`
}

// Graph is the symbolic layer: a directed graph with labeled edges over one
// arena of node IDs. It is not safe for concurrent use; the Store serializes
// access to it.
type Graph struct {
	nodes map[string]*Node
	// out[src][dst] and in[dst][src] both hold the edge label so traversal
	// in either direction is a map walk.
	out map[string]map[string]string
	in  map[string]map[string]string
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{
		nodes: make(map[string]*Node),
		out:   make(map[string]map[string]string),
		in:    make(map[string]map[string]string),
	}
}

// AddNode inserts or replaces a node.
func (g *Graph) AddNode(n *Node) {
	g.nodes[n.ID] = n
}

// HasNode reports whether id exists.
func (g *Graph) HasNode(id string) bool {
	_, ok := g.nodes[id]
	return ok
}

// Node returns the node for id, or nil.
func (g *Graph) Node(id string) *Node {
	return g.nodes[id]
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// AddEdge adds a directed labeled edge. Both endpoints must exist.
func (g *Graph) AddEdge(src, dst, label string) error {
	if !g.HasNode(src) {
		return fmt.Errorf("%w: edge source %s", ErrUnknownNode, src)
	}
	if !g.HasNode(dst) {
		return fmt.Errorf("%w: edge target %s", ErrUnknownNode, dst)
	}
	if g.out[src] == nil {
		g.out[src] = make(map[string]string)
	}
	if g.in[dst] == nil {
		g.in[dst] = make(map[string]string)
	}
	g.out[src][dst] = label
	g.in[dst][src] = label
	return nil
}

// EdgeLabel returns the label of the src→dst edge, if present.
func (g *Graph) EdgeLabel(src, dst string) (string, bool) {
	label, ok := g.out[src][dst]
	return label, ok
}

// Successors returns the targets of all outgoing edges of id, sorted for
// deterministic iteration.
func (g *Graph) Successors(id string) []string {
	return sortedKeys(g.out[id])
}

// Predecessors returns the sources of all incoming edges of id, sorted.
func (g *Graph) Predecessors(id string) []string {
	return sortedKeys(g.in[id])
}

// NodesByType returns every node of the given type.
func (g *Graph) NodesByType(nodeType string) []*Node {
	var out []*Node
	for _, n := range g.nodes {
		if n.Type == nodeType {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// FindByAttribute returns the first node whose named field matches value.
// "content", "type" and "task_id" are the lookups the services rely on.
func (g *Graph) FindByAttribute(key, value string) *Node {
	var ids []string
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		n := g.nodes[id]
		switch key {
		case "content":
			if n.Content == value {
				return n
			}
		case "type":
			if n.Type == value {
				return n
			}
		default:
			if av, ok := n.Attrs[key]; ok && fmt.Sprint(av) == value {
				return n
			}
		}
	}
	return nil
}

// Trace walks the graph breadth-first from root following edges of the given
// kind in both directions, returning the reachable subgraph's node IDs in
// visit order. With kind EdgeKindProcess this yields the cognitive chain of
// an impulse.
func (g *Graph) Trace(root string, kind core.EdgeKind) []string {
	if !g.HasNode(root) {
		return nil
	}
	visited := map[string]bool{root: true}
	order := []string{root}
	queue := []string{root}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, next := range g.neighborsByKind(id, kind) {
			if !visited[next] {
				visited[next] = true
				order = append(order, next)
				queue = append(queue, next)
			}
		}
	}
	return order
}

func (g *Graph) neighborsByKind(id string, kind core.EdgeKind) []string {
	var out []string
	for dst, label := range g.out[id] {
		if k, ok := core.KindOfEdge(label); ok && k == kind {
			out = append(out, dst)
		}
	}
	for src, label := range g.in[id] {
		if k, ok := core.KindOfEdge(label); ok && k == kind {
			out = append(out, src)
		}
	}
	sort.Strings(out)
	return out
}

// Edges returns every edge, sorted for deterministic snapshots.
func (g *Graph) Edges() []Edge {
	var edges []Edge
	for src, targets := range g.out {
		for dst, label := range targets {
			edges = append(edges, Edge{Source: src, Target: dst, Label: label})
		}
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Source != edges[j].Source {
			return edges[i].Source < edges[j].Source
		}
		return edges[i].Target < edges[j].Target
	})
	return edges
}

// snapshot is the on-disk form of the graph. Attribute values are coerced to
// strings for storage compatibility; complex values are JSON-encoded.
type snapshot struct {
	Nodes []snapshotNode `json:"nodes"`
	Edges []Edge         `json:"edges"`
}

type snapshotNode struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	Content   string            `json:"content"`
	Timestamp string            `json:"timestamp"`
	Attrs     map[string]string `json:"attrs,omitempty"`
}

// Save writes the graph snapshot to path.
func (g *Graph) Save(path string) error {
	snap := snapshot{Edges: g.Edges()}
	var ids []string
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		n := g.nodes[id]
		sn := snapshotNode{
			ID:        n.ID,
			Type:      n.Type,
			Content:   n.Content,
			Timestamp: n.Timestamp.UTC().Format(time.RFC3339Nano),
		}
		if len(n.Attrs) > 0 {
			sn.Attrs = make(map[string]string, len(n.Attrs))
			for k, v := range n.Attrs {
				sn.Attrs[k] = coerceAttr(v)
			}
		}
		snap.Nodes = append(snap.Nodes, sn)
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal graph snapshot: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write graph snapshot: %w", err)
	}
	return nil
}

// LoadGraph restores a graph from a snapshot file. A missing file yields an
// empty graph.
func LoadGraph(path string) (*Graph, error) {
	g := NewGraph()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return g, nil
		}
		return nil, fmt.Errorf("read graph snapshot: %w", err)
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parse graph snapshot: %w", err)
	}
	for _, sn := range snap.Nodes {
		ts, _ := time.Parse(time.RFC3339Nano, sn.Timestamp)
		n := &Node{ID: sn.ID, Type: sn.Type, Content: sn.Content, Timestamp: ts}
		if len(sn.Attrs) > 0 {
			n.Attrs = make(map[string]any, len(sn.Attrs))
			for k, v := range sn.Attrs {
				n.Attrs[k] = v
			}
		}
		g.AddNode(n)
	}
	for _, e := range snap.Edges {
		if err := g.AddEdge(e.Source, e.Target, e.Label); err != nil {
			return nil, fmt.Errorf("restore edge %s->%s: %w", e.Source, e.Target, err)
		}
	}
	return g, nil
}

func coerceAttr(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case int, int64, float64, bool:
		return fmt.Sprint(t)
	default:
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(data)
	}
}

func sortedKeys(m map[string]string) []string {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
