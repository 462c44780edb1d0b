package services

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/mnemoslabs/mnemos/core"
	"github.com/mnemoslabs/mnemos/llm"
	"github.com/mnemoslabs/mnemos/memory"
)

// ReflectionService periodically consolidates the crystal population: topics
// accumulating two or more active insights get merged into one stronger
// generalized insight. Strength is conserved; superseded crystals are
// deactivated, never deleted.
type ReflectionService struct {
	store  *memory.Store
	llm    LanguageModel
	logger *log.Logger
}

// NewReflectionService builds the reflector.
func NewReflectionService(store *memory.Store, model LanguageModel, logger *log.Logger) *ReflectionService {
	return &ReflectionService{store: store, llm: model, logger: logger}
}

func (r *ReflectionService) Name() string { return "reflection" }

func (r *ReflectionService) SupportedTasks() []string {
	return []string{TaskReflect}
}

func (r *ReflectionService) HandleTask(ctx context.Context, task *core.Task) (*core.Report, error) {
	merged, err := r.Reflect(ctx)
	if err != nil {
		return nil, err
	}
	return core.NewReport(task, core.StatusSuccess, map[string]any{"merged_topics": merged}), nil
}

// Reflect runs one consolidation pass and returns the number of merged
// topics.
func (r *ReflectionService) Reflect(ctx context.Context) (int, error) {
	byTopic := make(map[string][]*memory.Node)
	for _, n := range r.store.NodesByType(core.NodeKnowledgeCrystal) {
		if attrInt(n, "active_status", 0) != 1 {
			continue
		}
		topic := r.topicOf(n)
		if topic == "" {
			continue
		}
		byTopic[topic] = append(byTopic[topic], n)
	}

	topics := make([]string, 0, len(byTopic))
	for topic, crystals := range byTopic {
		if len(crystals) >= 2 {
			topics = append(topics, topic)
		}
	}
	sort.Strings(topics)

	merged := 0
	for _, topic := range topics {
		if err := r.mergeTopic(ctx, topic, byTopic[topic]); err != nil {
			r.logger.Warn("topic merge failed", "topic", topic, "error", err)
			continue
		}
		merged++
	}
	if merged > 0 {
		r.logger.Info("reflection pass complete", "merged_topics", merged)
	}
	return merged, nil
}

// topicOf returns the crystal's canonical topic, recomputing it from the
// concept edges when the attribute is missing.
func (r *ReflectionService) topicOf(n *memory.Node) string {
	if topic := attrString(n, "source_concepts"); topic != "" {
		return topic
	}
	var names []string
	for _, id := range r.store.SuccessorsByLabel(n.ID, core.EdgeInsightFromConcept) {
		if c := r.store.Node(id); c != nil && c.Type == core.NodeConcept {
			names = append(names, c.Content)
		}
	}
	if len(names) != 2 {
		return ""
	}
	return CrystalTopic(names[0], names[1])
}

func (r *ReflectionService) mergeTopic(ctx context.Context, topic string, crystals []*memory.Node) error {
	sort.Slice(crystals, func(i, j int) bool { return crystals[i].ID < crystals[j].ID })

	var (
		b        strings.Builder
		strength int
	)
	for _, c := range crystals {
		fmt.Fprintf(&b, "- %s\n", c.Content)
		strength += attrInt(c, "strength", 1)
	}
	generalized, err := r.llm.Generate(ctx, llm.Request{
		System:      mergePrompt,
		Messages:    []core.Message{{Role: "user", Content: b.String()}},
		Temperature: 0.3,
		MaxTokens:   512,
	})
	if err != nil {
		return err
	}

	links := make([]core.LinkDirective, 0, len(crystals)+2)
	for _, id := range r.store.SuccessorsByLabel(crystals[0].ID, core.EdgeInsightFromConcept) {
		links = append(links, core.LinkDirective{TargetID: id, Label: core.EdgeInsightFromConcept})
	}
	for _, c := range crystals {
		links = append(links, core.LinkDirective{TargetID: c.ID, Label: core.EdgeSupersedes})
	}

	if _, err := r.store.RecordEntry(ctx, core.NodeKnowledgeCrystal, strings.TrimSpace(generalized),
		map[string]any{
			"active_status":   1,
			"strength":        strength,
			"source_concepts": topic,
		}, links); err != nil {
		return err
	}

	// Deactivate only after the replacement exists.
	for _, c := range crystals {
		if err := r.store.SetNodeAttr(c.ID, "active_status", 0); err != nil {
			return err
		}
	}
	return nil
}
