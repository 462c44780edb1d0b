package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/mnemoslabs/mnemos/core"
	"github.com/mnemoslabs/mnemos/jobs"
	"github.com/mnemoslabs/mnemos/services"
)

// Shown to the user when synthesis fails; the underlying cause lands in the
// log and as a FAILURE node in the graph.
const synthesisFallback = "Something went wrong while forming a proper answer. Please try again."

// HandleImpulse runs the cognitive cycle for one inbound user message and
// returns the final response text.
//
// Stages: context eviction, impulse recording, instinct, enrichment
// planning, parallel recall, synthesis, then closure (cache append,
// crystallization enqueue, store flush). Stages 2-4 are strictly sequential;
// stage 5's recalls run unordered but all complete before synthesis.
func (o *Orchestrator) HandleImpulse(ctx context.Context, text string) (string, error) {
	correlation := core.NewCorrelationID()
	logger := o.logger.With("correlation_id", correlation)

	// Stage 1: keep the conversation cache plus the incoming impulse under
	// the token budget.
	o.evictIfNeeded(ctx, text)
	history := o.historySnapshot()

	// Stage 2: the raw impulse becomes a graph node before anything acts
	// on it.
	impulseID, err := o.store.RecordEntry(ctx, core.NodeUserImpulse, text, nil, nil)
	if err != nil {
		return "", fmt.Errorf("record impulse: %w", err)
	}
	logger.Info("impulse received", "impulse", impulseID)

	// Stage 3: fast, memory-free draft.
	instinctReport := o.ExecuteTask(ctx, core.NewTask(services.TaskInstinct, map[string]any{
		"impulse": text,
		"history": history,
	}).WithCorrelation(correlation).WithLink(impulseID, core.EdgeIsTaskFor))
	instinct := instinctReport.Text("")
	if instinct != "" {
		if _, err := o.store.RecordEntry(ctx, core.NodeInstinctiveResponse, instinct, nil,
			[]core.LinkDirective{{TargetID: impulseID, Label: core.EdgeIsInstinctFor}}); err != nil {
			logger.Warn("instinct node not recorded", "error", err)
		}
	}

	// Stage 4: plan what to look up before answering properly.
	plan, planNodeID := o.planEnrichment(ctx, correlation, impulseID, text, instinct)

	// Stage 5: parallel recall over the planned queries.
	findings := o.executeRecalls(ctx, correlation, planNodeID, plan)

	// Stage 6: the deliberate answer.
	finalReport := o.ExecuteTask(ctx, core.NewTask(services.TaskSynthesize, map[string]any{
		"impulse":  text,
		"instinct": instinct,
		"findings": findings,
		"history":  history,
	}).WithCorrelation(correlation).WithLink(impulseID, core.EdgeIsTaskFor))
	final := finalReport.Text(synthesisFallback)

	links := []core.LinkDirective{{TargetID: impulseID, Label: core.EdgeIsResponseTo}}
	if finalReport.ReportNodeID != "" {
		links = append(links, core.LinkDirective{TargetID: finalReport.ReportNodeID, Label: core.EdgeWasSynthesizedFrom})
	}
	finalNodeID, err := o.store.RecordEntry(ctx, core.NodeFinalResponse, final, nil, links)
	if err != nil {
		logger.Warn("final response node not recorded", "error", err)
	}

	// Closure: remember the exchange, queue the slow loop, persist.
	o.appendTurns(
		core.Turn{Role: "user", Content: text, NodeID: impulseID},
		core.Turn{Role: "assistant", Content: final, NodeID: finalNodeID},
	)
	if err := o.queue.Push(jobs.Job{ImpulseID: impulseID}); err != nil {
		logger.Warn("crystallization enqueue failed", "error", err)
	}
	if err := o.store.Flush(); err != nil {
		logger.Warn("memory flush failed", "error", err)
	}
	logger.Info("cycle complete", "impulse", impulseID, "findings", len(findings))
	return final, nil
}

// planEnrichment dispatches the planner, persists the SearchPlanNode, and
// materializes every extracted concept.
func (o *Orchestrator) planEnrichment(ctx context.Context, correlation, impulseID, text, instinct string) (services.SearchPlan, string) {
	report := o.ExecuteTask(ctx, core.NewTask(services.TaskCreatePlan, map[string]any{
		"impulse":  text,
		"instinct": instinct,
	}).WithCorrelation(correlation).WithLink(impulseID, core.EdgeIsTaskFor))

	plan, _ := report.Data["plan"].(services.SearchPlan)
	if len(plan.Queries) == 0 {
		return plan, ""
	}

	content := ""
	if encoded, err := json.Marshal(plan); err == nil {
		content = string(encoded)
	}
	planNodeID, err := o.store.RecordEntry(ctx, core.NodeSearchPlan, content, nil,
		[]core.LinkDirective{{TargetID: impulseID, Label: core.EdgeContainsPlan}})
	if err != nil {
		o.logger.Warn("plan node not recorded", "error", err)
	}

	for _, name := range plan.Concepts() {
		conceptID, err := o.store.GetOrCreateConcept(ctx, name)
		if err != nil {
			o.logger.Warn("concept materialization failed", "concept", name, "error", err)
			continue
		}
		if err := o.store.AddEdge(impulseID, conceptID, core.EdgeContainsConcept); err != nil {
			o.logger.Warn("concept edge failed", "impulse", impulseID, "concept", conceptID, "error", err)
		}
	}
	return plan, planNodeID
}

// executeRecalls fans one recall task out per planned query and merges the
// findings, keeping each node's best score.
func (o *Orchestrator) executeRecalls(ctx context.Context, correlation, planNodeID string, plan services.SearchPlan) []services.Finding {
	if len(plan.Queries) == 0 {
		return nil
	}

	results := make([][]services.Finding, len(plan.Queries))
	g, gctx := errgroup.WithContext(ctx)
	for i, query := range plan.Queries {
		i, query := i, query
		g.Go(func() error {
			task := core.NewTask(services.TaskRecall, map[string]any{
				"query":    query.SemanticQuery,
				"concepts": query.Concepts,
			}).WithCorrelation(correlation)
			if planNodeID != "" {
				task.WithLink(planNodeID, core.EdgeIsTaskFor)
			}
			report := o.ExecuteTask(gctx, task)
			if found, ok := report.Data["found_nodes"].([]services.Finding); ok {
				results[i] = found
			}
			return nil
		})
	}
	_ = g.Wait()

	best := make(map[string]services.Finding)
	for _, findings := range results {
		for _, f := range findings {
			if prev, ok := best[f.NodeID]; !ok || f.RelevanceScore > prev.RelevanceScore {
				best[f.NodeID] = f
			}
		}
	}
	merged := make([]services.Finding, 0, len(best))
	for _, f := range best {
		merged = append(merged, f)
	}
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].RelevanceScore != merged[j].RelevanceScore {
			return merged[i].RelevanceScore > merged[j].RelevanceScore
		}
		return merged[i].NodeID < merged[j].NodeID
	})
	return merged
}

// IngestFact records a user-declared fact and returns a short
// acknowledgement.
func (o *Orchestrator) IngestFact(ctx context.Context, fact string) (string, error) {
	correlation := core.NewCorrelationID()
	impulseID, err := o.store.RecordEntry(ctx, core.NodeUserImpulse, fact, nil, nil)
	if err != nil {
		return "", fmt.Errorf("record fact impulse: %w", err)
	}

	report := o.ExecuteTask(ctx, core.NewTask(services.TaskIngestFact, map[string]any{
		"fact":       fact,
		"impulse_id": impulseID,
	}).WithCorrelation(correlation).WithLink(impulseID, core.EdgeIsTaskFor))
	if !report.Succeeded() {
		return "", fmt.Errorf("fact ingestion failed: %v", report.Data["error"])
	}

	ack := o.ExecuteTask(ctx, core.NewTask(services.TaskAcknowledge, map[string]any{
		"fact": fact,
	}).WithCorrelation(correlation))
	return ack.Text("Noted."), nil
}

// TriggerReflection runs a deep-reflection pass and returns the number of
// merged topics.
func (o *Orchestrator) TriggerReflection(ctx context.Context) (int, error) {
	report := o.ExecuteTask(ctx, core.NewTask(services.TaskReflect, nil))
	if !report.Succeeded() {
		return 0, fmt.Errorf("reflection failed: %v", report.Data["error"])
	}
	merged, _ := report.Data["merged_topics"].(int)
	return merged, nil
}
