package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/mnemoslabs/mnemos/core"
	"github.com/mnemoslabs/mnemos/jobs"
	"github.com/mnemoslabs/mnemos/llm"
	"github.com/mnemoslabs/mnemos/memory"
	"github.com/mnemoslabs/mnemos/tools"
)

const crystallizerPoll = time.Second

// Crystallizer is the slow loop's distiller: it consumes completed-exchange
// jobs from the durable queue and turns each exchange's concept pairs into
// standalone insight nodes. It is not task-routed; the queue is its inbox.
type Crystallizer struct {
	store  *memory.Store
	llm    LanguageModel
	queue  *jobs.Queue
	logger *log.Logger
}

// NewCrystallizer builds the crystallizer over the jobs queue.
func NewCrystallizer(store *memory.Store, model LanguageModel, queue *jobs.Queue, logger *log.Logger) *Crystallizer {
	return &Crystallizer{store: store, llm: model, queue: queue, logger: logger}
}

// Run consumes jobs until ctx is canceled. Individual job failures are
// logged and skipped; the loop never dies on bad input.
func (c *Crystallizer) Run(ctx context.Context) {
	for {
		job, ok := c.queue.Pop(ctx, crystallizerPoll)
		if !ok {
			select {
			case <-ctx.Done():
				return
			default:
				continue
			}
		}
		if err := c.Crystallize(ctx, job.ImpulseID); err != nil {
			c.logger.Error("crystallization failed", "impulse", job.ImpulseID, "error", err)
		}
	}
}

// Crystallize distills one completed exchange. Fewer than two linked concepts
// means there is nothing to pair; that is a successful no-op.
func (c *Crystallizer) Crystallize(ctx context.Context, impulseID string) error {
	impulse := c.store.Node(impulseID)
	if impulse == nil {
		return fmt.Errorf("%w: impulse %s", memory.ErrUnknownNode, impulseID)
	}

	var response *memory.Node
	for _, id := range c.store.PredecessorsByLabel(impulseID, core.EdgeIsResponseTo) {
		if n := c.store.Node(id); n != nil && n.Type == core.NodeFinalResponse {
			response = n
			break
		}
	}
	if response == nil {
		return fmt.Errorf("impulse %s has no final response", impulseID)
	}

	concepts := make(map[string]string) // name -> node id
	for _, id := range c.store.SuccessorsByLabel(impulseID, core.EdgeContainsConcept) {
		if n := c.store.Node(id); n != nil && n.Type == core.NodeConcept {
			concepts[n.Content] = n.ID
		}
	}
	if len(concepts) < 2 {
		c.logger.Debug("too few concepts to crystallize", "impulse", impulseID, "concepts", len(concepts))
		return nil
	}

	pairs := c.selectPairs(ctx, impulse.Content, response.Content, concepts)
	for _, pair := range pairs {
		if err := c.crystallizePair(ctx, impulse.Content, response.Content, pair, concepts); err != nil {
			c.logger.Warn("pair crystallization failed", "pair", pair, "error", err)
		}
	}
	c.logger.Info("exchange crystallized", "impulse", impulseID, "pairs", len(pairs))
	return nil
}

type conceptPair struct {
	A string `json:"concept_a"`
	B string `json:"concept_b"`
}

func (p conceptPair) String() string { return p.A + "+" + p.B }

// selectPairs asks the model which concept pairs the exchange actually
// relates. Pairs naming unknown concepts are dropped; malformed output
// degrades to no pairs.
func (c *Crystallizer) selectPairs(ctx context.Context, impulse, response string, concepts map[string]string) []conceptPair {
	names := make([]string, 0, len(concepts))
	for name := range concepts {
		names = append(names, name)
	}
	sort.Strings(names)

	prompt := fmt.Sprintf("Exchange:\nUser: %s\nAgent: %s\n\nConcepts: %s",
		impulse, response, strings.Join(names, ", "))
	var out struct {
		Pairs []conceptPair `json:"pairs"`
	}
	err := c.llm.GenerateStructured(ctx, llm.Request{
		System:      insightPrompt,
		Messages:    []core.Message{{Role: "user", Content: prompt}},
		Temperature: 0.2,
	}, tools.ConceptPairsTool(), &out)
	if err != nil {
		c.logger.Warn("pair selection failed", "error", err)
		return nil
	}

	var pairs []conceptPair
	for _, p := range out.Pairs {
		if p.A == p.B {
			continue
		}
		if _, ok := concepts[p.A]; !ok {
			continue
		}
		if _, ok := concepts[p.B]; !ok {
			continue
		}
		pairs = append(pairs, p)
	}
	return pairs
}

func (c *Crystallizer) crystallizePair(ctx context.Context, impulse, response string, pair conceptPair, concepts map[string]string) error {
	prompt := fmt.Sprintf("Exchange:\nUser: %s\nAgent: %s\n\nConcept pair: %s and %s",
		impulse, response, pair.A, pair.B)
	insight, err := c.llm.Generate(ctx, llm.Request{
		System:      insightPrompt,
		Messages:    []core.Message{{Role: "user", Content: prompt}},
		Temperature: 0.3,
		MaxTokens:   256,
	})
	if err != nil {
		return err
	}

	_, err = c.store.RecordEntry(ctx, core.NodeKnowledgeCrystal, strings.TrimSpace(insight),
		map[string]any{
			"active_status":   1,
			"strength":        1,
			"source_concepts": CrystalTopic(pair.A, pair.B),
		},
		[]core.LinkDirective{
			{TargetID: concepts[pair.A], Label: core.EdgeInsightFromConcept},
			{TargetID: concepts[pair.B], Label: core.EdgeInsightFromConcept},
		})
	return err
}

// CrystalTopic canonicalizes a concept pair into its sorted topic key.
func CrystalTopic(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "|" + b
}
