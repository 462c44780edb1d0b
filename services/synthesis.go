package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/mnemoslabs/mnemos/core"
	"github.com/mnemoslabs/mnemos/llm"
)

// Token budget reserves carved out of the context window before packing
// recalled material into the synthesis prompt.
const (
	responseReserve = 3072
	budgetMargin    = 100
)

// SynthesisService produces the final, memory-informed answer from the
// impulse, the instinctive draft, and the recalled findings, packing as many
// findings as the context window affords.
type SynthesisService struct {
	llm    LanguageModel
	logger *log.Logger
}

// NewSynthesisService builds the synthesizer.
func NewSynthesisService(model LanguageModel, logger *log.Logger) *SynthesisService {
	return &SynthesisService{llm: model, logger: logger}
}

func (s *SynthesisService) Name() string { return "synthesis" }

func (s *SynthesisService) SupportedTasks() []string {
	return []string{TaskSynthesize}
}

func (s *SynthesisService) HandleTask(ctx context.Context, task *core.Task) (*core.Report, error) {
	impulse := stringField(task, "impulse")
	instinct := stringField(task, "instinct")
	if impulse == "" {
		return nil, fmt.Errorf("synthesis task without impulse text")
	}
	findings, _ := task.Payload["findings"].([]Finding)
	history := messagesField(task, "history")

	prompt := s.buildPrompt(ctx, impulse, instinct, history, findings)
	messages := append(history, core.Message{Role: "user", Content: prompt})
	text, err := s.llm.Generate(ctx, llm.Request{
		System:      synthesisPrompt,
		Messages:    messages,
		Temperature: 0.7,
		MaxTokens:   responseReserve,
	})
	if err != nil {
		return nil, err
	}
	return core.NewReport(task, core.StatusSuccess, map[string]any{"response": text}), nil
}

// buildPrompt greedily packs findings, highest relevance first, until the
// remaining token budget is spent. Findings beyond the budget are dropped.
func (s *SynthesisService) buildPrompt(ctx context.Context, impulse, instinct string, history []core.Message, findings []Finding) string {
	var b strings.Builder
	fmt.Fprintf(&b, "User message:\n%s\n\nInstinctive draft:\n%s\n", impulse, instinct)

	base := b.String()
	budget := s.llm.ContextLimit() - s.llm.CountTokens(ctx, synthesisPrompt, append(history, core.Message{Role: "user", Content: base}))
	budget -= responseReserve + budgetMargin

	if len(findings) == 0 || budget <= 0 {
		return base
	}

	b.WriteString("\nRecalled from memory:\n")
	packed := 0
	for _, f := range findings {
		entry := fmt.Sprintf("- [%s] %s\n", f.NodeType, f.Content)
		cost := s.llm.CountTokens(ctx, "", []core.Message{{Role: "user", Content: entry}})
		if cost > budget {
			break
		}
		b.WriteString(entry)
		budget -= cost
		packed++
	}
	s.logger.Debug("synthesis prompt packed", "findings", packed, "dropped", len(findings)-packed)
	return b.String()
}
