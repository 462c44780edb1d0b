package services

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/mnemoslabs/mnemos/core"
	"github.com/mnemoslabs/mnemos/memory"
)

// FactIngestor commits user-declared facts to memory. A fact arrives already
// trusted, so it is recorded VERIFIED, sourced from the impulse that declared
// it, and indexed under its extracted concepts.
type FactIngestor struct {
	store   *memory.Store
	planner *EnrichmentPlanner
	logger  *log.Logger
}

// NewFactIngestor builds the ingestor, sharing the planner's concept
// extraction.
func NewFactIngestor(store *memory.Store, planner *EnrichmentPlanner, logger *log.Logger) *FactIngestor {
	return &FactIngestor{store: store, planner: planner, logger: logger}
}

func (f *FactIngestor) Name() string { return "fact_ingestor" }

func (f *FactIngestor) SupportedTasks() []string {
	return []string{TaskIngestFact}
}

func (f *FactIngestor) HandleTask(ctx context.Context, task *core.Task) (*core.Report, error) {
	fact := stringField(task, "fact")
	if fact == "" {
		return nil, fmt.Errorf("ingest task without fact text")
	}
	impulseID := stringField(task, "impulse_id")

	var links []core.LinkDirective
	if impulseID != "" {
		links = append(links, core.LinkDirective{TargetID: impulseID, Label: core.EdgeSourcedFrom})
	}
	factID, err := f.store.RecordEntry(ctx, core.NodeFact, fact,
		map[string]any{"verification_status": "VERIFIED"}, links)
	if err != nil {
		return nil, fmt.Errorf("record fact: %w", err)
	}

	concepts := f.planner.ExtractConcepts(ctx, fact)
	for _, name := range concepts {
		conceptID, err := f.store.GetOrCreateConcept(ctx, name)
		if err != nil {
			f.logger.Warn("concept materialization failed", "concept", name, "error", err)
			continue
		}
		if err := f.store.AddEdge(factID, conceptID, core.EdgeContainsConcept); err != nil {
			f.logger.Warn("concept edge failed", "fact", factID, "concept", conceptID, "error", err)
		}
		if impulseID != "" {
			if err := f.store.AddEdge(impulseID, conceptID, core.EdgeContainsConcept); err != nil {
				f.logger.Warn("impulse concept edge failed", "impulse", impulseID, "concept", conceptID, "error", err)
			}
		}
	}

	f.logger.Info("fact ingested", "fact_node", factID, "concepts", len(concepts))
	return core.NewReport(task, core.StatusSuccess, map[string]any{
		"fact_node_id": factID,
		"concepts":     concepts,
	}), nil
}
