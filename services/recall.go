package services

import (
	"context"
	"sort"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/mnemoslabs/mnemos/config"
	"github.com/mnemoslabs/mnemos/core"
	"github.com/mnemoslabs/mnemos/memory"
)

// Finding is one recalled node with its final relevance score.
type Finding struct {
	NodeID         string  `json:"node_id"`
	NodeType       string  `json:"node_type"`
	Content        string  `json:"content"`
	RelevanceScore float64 `json:"relevance_score"`
}

// candidate accumulates how each node was reached during capture. The
// associative flag is reserved for a future graph-traversal bonus and stays
// false in the current pipeline.
type candidate struct {
	id          string
	nodeType    string
	content     string
	semantic    float64
	conceptual  int
	associative bool
}

// RecallService answers recall_request tasks: given a query phrase and
// concept terms, it gathers candidates through two independent captures,
// merges them, and ranks them with a weighted linear score.
type RecallService struct {
	store  *memory.Store
	cfg    config.RecallConfig
	logger *log.Logger

	allowed map[string]bool
}

// NewRecallService builds the recall pipeline over store.
func NewRecallService(store *memory.Store, cfg config.RecallConfig, logger *log.Logger) *RecallService {
	allowed := make(map[string]bool, len(core.RecallNodeTypes))
	for _, t := range core.RecallNodeTypes {
		allowed[t] = true
	}
	return &RecallService{store: store, cfg: cfg, logger: logger, allowed: allowed}
}

func (r *RecallService) Name() string { return "memory_recall" }

func (r *RecallService) SupportedTasks() []string {
	return []string{TaskRecall}
}

func (r *RecallService) HandleTask(ctx context.Context, task *core.Task) (*core.Report, error) {
	query := stringField(task, "query")
	concepts := stringsField(task, "concepts")
	findings := r.Recall(ctx, query, concepts)
	return core.NewReport(task, core.StatusSuccess, map[string]any{"found_nodes": findings}), nil
}

// Recall runs the capture→merge→rank→finalize pipeline. An empty query with
// no concepts short-circuits to an empty result; capture errors degrade to
// empty partial results rather than failing the recall.
func (r *RecallService) Recall(ctx context.Context, query string, concepts []string) []Finding {
	if query == "" && len(concepts) == 0 {
		return nil
	}

	var (
		semantic   []memory.Hit
		conceptual map[string]int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		semantic = r.semanticCapture(gctx, query)
		return nil
	})
	g.Go(func() error {
		conceptual = r.conceptualCapture(concepts)
		return nil
	})
	_ = g.Wait()

	pool := r.merge(semantic, conceptual)
	ranked := r.rank(pool)
	if len(ranked) > r.cfg.FinalTopN {
		ranked = ranked[:r.cfg.FinalTopN]
	}
	r.logger.Debug("recall complete", "query", query, "concepts", len(concepts), "found", len(ranked))
	return ranked
}

// semanticCapture searches the experience and insight collections, allow-list
// filtered, top-K each. The best score wins when a node appears in both.
func (r *RecallService) semanticCapture(ctx context.Context, query string) []memory.Hit {
	if query == "" {
		return nil
	}
	var hits []memory.Hit
	for _, collection := range []string{memory.CollectionExperience, memory.CollectionInsight} {
		hits = append(hits, r.store.Search(ctx, collection, query, r.cfg.SemanticTopK, r.allowed)...)
	}
	return hits
}

// conceptualCapture resolves each concept term to its ConceptNode by exact
// content match and collects allow-listed predecessors, counting how many
// distinct concepts reach each node.
func (r *RecallService) conceptualCapture(concepts []string) map[string]int {
	counts := make(map[string]int)
	for _, term := range concepts {
		term = NormalizeConcept(term)
		var conceptID string
		for _, n := range r.store.NodesByType(core.NodeConcept) {
			if n.Content == term {
				conceptID = n.ID
				break
			}
		}
		if conceptID == "" {
			continue
		}
		for _, pred := range r.store.Predecessors(conceptID) {
			node := r.store.Node(pred)
			if node == nil || !r.allowed[node.Type] {
				continue
			}
			counts[pred]++
		}
	}
	return counts
}

func (r *RecallService) merge(semantic []memory.Hit, conceptual map[string]int) []*candidate {
	pool := make(map[string]*candidate)
	get := func(id string) *candidate {
		if c, ok := pool[id]; ok {
			return c
		}
		c := &candidate{id: id}
		if node := r.store.Node(id); node != nil {
			c.nodeType = node.Type
			c.content = node.Content
		}
		pool[id] = c
		return c
	}
	for _, hit := range semantic {
		c := get(hit.ID)
		if hit.Score > c.semantic {
			c.semantic = hit.Score
		}
	}
	for id, count := range conceptual {
		get(id).conceptual = count
	}

	out := make([]*candidate, 0, len(pool))
	for _, c := range pool {
		out = append(out, c)
	}
	// Stable iteration order before ranking.
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// rank applies the weighted linear score and truncates to the recall limit.
func (r *RecallService) rank(pool []*candidate) []Finding {
	findings := make([]Finding, 0, len(pool))
	for _, c := range pool {
		score := c.semantic * r.cfg.SemanticMultiplier
		score += float64(c.conceptual) * r.cfg.ConceptualBonus
		if c.associative {
			score += r.cfg.AssociativeBonus
		}
		if c.semantic > 0 && c.conceptual > 0 {
			score += r.cfg.CrossValidationBonus
		}
		if c.nodeType == core.NodeUserImpulse {
			// Dampen self-referential recall of past impulses.
			score *= r.cfg.SelfReferenceDampener
		}
		findings = append(findings, Finding{
			NodeID:         c.id,
			NodeType:       c.nodeType,
			Content:        c.content,
			RelevanceScore: score,
		})
	}
	sort.SliceStable(findings, func(i, j int) bool {
		return findings[i].RelevanceScore > findings[j].RelevanceScore
	})
	if len(findings) > r.cfg.RecallLimit {
		findings = findings[:r.cfg.RecallLimit]
	}
	return findings
}
