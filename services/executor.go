package services

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/mnemoslabs/mnemos/core"
	"github.com/mnemoslabs/mnemos/llm"
)

// SimpleExecutor produces the fast, memory-free generations: the instinctive
// draft answer and short acknowledgements.
type SimpleExecutor struct {
	llm    LanguageModel
	logger *log.Logger
}

// NewSimpleExecutor builds the executor.
func NewSimpleExecutor(model LanguageModel, logger *log.Logger) *SimpleExecutor {
	return &SimpleExecutor{llm: model, logger: logger}
}

func (s *SimpleExecutor) Name() string { return "simple_executor" }

func (s *SimpleExecutor) SupportedTasks() []string {
	return []string{TaskInstinct, TaskAcknowledge}
}

func (s *SimpleExecutor) HandleTask(ctx context.Context, task *core.Task) (*core.Report, error) {
	switch task.Type {
	case TaskInstinct:
		return s.instinct(ctx, task)
	case TaskAcknowledge:
		return s.acknowledge(ctx, task)
	default:
		return nil, fmt.Errorf("unsupported task type %q", task.Type)
	}
}

func (s *SimpleExecutor) instinct(ctx context.Context, task *core.Task) (*core.Report, error) {
	impulse := stringField(task, "impulse")
	if impulse == "" {
		return nil, fmt.Errorf("instinct task without impulse text")
	}
	messages := append(messagesField(task, "history"), core.Message{Role: "user", Content: impulse})
	text, err := s.llm.Generate(ctx, llm.Request{
		System:      instinctPrompt,
		Messages:    messages,
		Temperature: 0.7,
	})
	if err != nil {
		return nil, err
	}
	return core.NewReport(task, core.StatusSuccess, map[string]any{"response": text}), nil
}

func (s *SimpleExecutor) acknowledge(ctx context.Context, task *core.Task) (*core.Report, error) {
	fact := stringField(task, "fact")
	text, err := s.llm.Generate(ctx, llm.Request{
		System:      acknowledgementPrompt,
		Messages:    []core.Message{{Role: "user", Content: fact}},
		Temperature: 0.5,
		MaxTokens:   256,
	})
	if err != nil {
		return nil, err
	}
	return core.NewReport(task, core.StatusSuccess, map[string]any{"response": text}), nil
}
