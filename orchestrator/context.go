package orchestrator

import (
	"context"
	"fmt"

	"github.com/mnemoslabs/mnemos/core"
	"github.com/mnemoslabs/mnemos/services"
)

// evictIfNeeded trims the conversation cache from the head, one
// user/assistant pair at a time, while the token estimate of the cache plus
// the incoming impulse exceeds the safe fraction of the context window.
// Every evicted pair spawns exactly one background archival task; nothing is
// discarded.
func (o *Orchestrator) evictIfNeeded(ctx context.Context, incoming string) {
	safeLimit := int(float64(o.tokenizer.ContextLimit()) * o.cfg.TriggerFraction)
	for {
		o.cacheMu.Lock()
		if len(o.cache) < 2 {
			o.cacheMu.Unlock()
			return
		}
		messages := core.Messages(o.cache)
		if incoming != "" {
			messages = append(messages, core.Message{Role: "user", Content: incoming})
		}
		tokens := o.tokenizer.CountTokens(ctx, "", messages)
		if tokens <= safeLimit {
			o.cacheMu.Unlock()
			return
		}
		pair := [2]core.Turn{o.cache[0], o.cache[1]}
		o.cache = o.cache[2:]
		o.cacheMu.Unlock()

		o.logger.Info("evicting oldest turn pair", "tokens", tokens, "safe_limit", safeLimit)
		o.spawn(func(ctx context.Context) {
			o.archivePair(ctx, pair)
		})
	}
}

// archivePair distills an evicted pair and records it as a DialogueTurnNode
// pointing back at the archived impulse and response. A failed distillation
// archives the raw exchange instead; eviction must never lose a turn.
func (o *Orchestrator) archivePair(ctx context.Context, pair [2]core.Turn) {
	task := core.NewTask(services.TaskCompress, map[string]any{
		"turns": []core.Turn{pair[0], pair[1]},
	})
	if pair[0].NodeID != "" {
		task.WithLink(pair[0].NodeID, core.EdgeIsTaskFor)
	}
	report := o.ExecuteTask(ctx, task)

	content, _ := report.Data["summary"].(string)
	if content == "" {
		content = fmt.Sprintf("User: %s\nAssistant: %s", pair[0].Content, pair[1].Content)
	}

	var links []core.LinkDirective
	if pair[0].NodeID != "" {
		links = append(links, core.LinkDirective{TargetID: pair[0].NodeID, Label: core.EdgeArchivesImpulse})
	}
	if pair[1].NodeID != "" {
		links = append(links, core.LinkDirective{TargetID: pair[1].NodeID, Label: core.EdgeArchivesResponse})
	}
	turnNodeID, err := o.store.RecordEntry(ctx, core.NodeDialogueTurn, content, nil, links)
	if err != nil {
		o.logger.Error("archival failed, turn pair lost from graph", "error", err)
		return
	}

	// The archive inherits the impulse's conceptual index.
	if pair[0].NodeID != "" {
		for _, conceptID := range o.store.SuccessorsByLabel(pair[0].NodeID, core.EdgeContainsConcept) {
			if err := o.store.AddEdge(turnNodeID, conceptID, core.EdgeContainsConcept); err != nil {
				o.logger.Warn("archive concept edge failed", "turn", turnNodeID, "concept", conceptID, "error", err)
			}
		}
	}
	o.logger.Debug("turn pair archived", "turn_node", turnNodeID)
}

// historySnapshot returns a copy of the conversation cache as LLM messages.
func (o *Orchestrator) historySnapshot() []core.Message {
	o.cacheMu.Lock()
	defer o.cacheMu.Unlock()
	return core.Messages(o.cache)
}

// appendTurns adds turns at the cache tail.
func (o *Orchestrator) appendTurns(turns ...core.Turn) {
	o.cacheMu.Lock()
	o.cache = append(o.cache, turns...)
	o.cacheMu.Unlock()
}

// CacheLen returns the number of cached turns.
func (o *Orchestrator) CacheLen() int {
	o.cacheMu.Lock()
	defer o.cacheMu.Unlock()
	return len(o.cache)
}

// ClearCache drops the conversation cache. Long-term memory is unaffected.
func (o *Orchestrator) ClearCache() {
	o.cacheMu.Lock()
	o.cache = nil
	o.cacheMu.Unlock()
}
