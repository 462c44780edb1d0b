package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/mnemoslabs/mnemos/core"
	"github.com/mnemoslabs/mnemos/llm"
	"github.com/mnemoslabs/mnemos/tools"
)

// SearchQuery is one planned memory lookup: a phrase for similarity search
// plus the concepts it revolves around.
type SearchQuery struct {
	SemanticQuery string   `json:"semantic_query"`
	Concepts      []string `json:"concepts"`
}

// SearchPlan is the structured output of the enrichment planner.
type SearchPlan struct {
	Queries []SearchQuery `json:"queries"`
}

// Concepts returns the normalized, deduplicated concepts across all queries,
// in first-seen order. Concept identity is case-insensitive; "Цвет" and
// "цвет" must resolve to the same ConceptNode.
func (p SearchPlan) Concepts() []string {
	seen := make(map[string]bool)
	var out []string
	for _, q := range p.Queries {
		for _, c := range q.Concepts {
			c = NormalizeConcept(c)
			if c != "" && !seen[c] {
				seen[c] = true
				out = append(out, c)
			}
		}
	}
	return out
}

// NormalizeConcept canonicalizes a concept term for graph identity.
func NormalizeConcept(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// EnrichmentPlanner turns an impulse and its instinctive draft into a search
// plan, and extracts concept lists from standalone texts for fact ingestion.
// Malformed model output degrades to an empty plan; the cycle continues with
// no enrichment rather than failing.
type EnrichmentPlanner struct {
	llm    LanguageModel
	logger *log.Logger
}

// NewEnrichmentPlanner builds the planner.
func NewEnrichmentPlanner(model LanguageModel, logger *log.Logger) *EnrichmentPlanner {
	return &EnrichmentPlanner{llm: model, logger: logger}
}

func (p *EnrichmentPlanner) Name() string { return "enrichment_planner" }

func (p *EnrichmentPlanner) SupportedTasks() []string {
	return []string{TaskCreatePlan}
}

func (p *EnrichmentPlanner) HandleTask(ctx context.Context, task *core.Task) (*core.Report, error) {
	impulse := stringField(task, "impulse")
	instinct := stringField(task, "instinct")
	if impulse == "" {
		return nil, fmt.Errorf("plan task without impulse text")
	}

	prompt := fmt.Sprintf("User message:\n%s\n\nInstinctive draft:\n%s", impulse, instinct)
	var plan SearchPlan
	err := p.llm.GenerateStructured(ctx, llm.Request{
		System:      plannerPrompt,
		Messages:    []core.Message{{Role: "user", Content: prompt}},
		Temperature: 0.2,
	}, tools.SearchPlanTool(), &plan)
	if err != nil {
		p.logger.Warn("plan extraction failed, continuing without enrichment", "error", err)
		plan = SearchPlan{}
	}
	return core.NewReport(task, core.StatusSuccess, map[string]any{"plan": plan}), nil
}

// ExtractConcepts pulls the key concepts out of a single text. Used by fact
// ingestion and archive distillation, outside the task protocol.
func (p *EnrichmentPlanner) ExtractConcepts(ctx context.Context, text string) []string {
	var out struct {
		Concepts []string `json:"concepts"`
	}
	err := p.llm.GenerateStructured(ctx, llm.Request{
		System:      plannerPrompt,
		Messages:    []core.Message{{Role: "user", Content: text}},
		Temperature: 0.2,
	}, tools.ConceptListTool(), &out)
	if err != nil {
		p.logger.Warn("concept extraction failed", "error", err)
		return nil
	}
	seen := make(map[string]bool)
	var concepts []string
	for _, c := range out.Concepts {
		c = NormalizeConcept(c)
		if c != "" && !seen[c] {
			seen[c] = true
			concepts = append(concepts, c)
		}
	}
	return concepts
}
