package services

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/mnemoslabs/mnemos/core"
	"github.com/mnemoslabs/mnemos/llm"
)

// MemoryCompressor distills an evicted conversation turn pair into a short
// summary for the archive. It insists on exactly one user/assistant pair;
// anything else is a caller bug and fails the task.
type MemoryCompressor struct {
	llm    LanguageModel
	logger *log.Logger
}

// NewMemoryCompressor builds the compressor.
func NewMemoryCompressor(model LanguageModel, logger *log.Logger) *MemoryCompressor {
	return &MemoryCompressor{llm: model, logger: logger}
}

func (c *MemoryCompressor) Name() string { return "memory_compressor" }

func (c *MemoryCompressor) SupportedTasks() []string {
	return []string{TaskCompress}
}

func (c *MemoryCompressor) HandleTask(ctx context.Context, task *core.Task) (*core.Report, error) {
	turns, _ := task.Payload["turns"].([]core.Turn)
	if len(turns) != 2 || turns[0].Role != "user" || turns[1].Role != "assistant" {
		return nil, fmt.Errorf("compress task requires exactly one user/assistant pair, got %d turns", len(turns))
	}

	exchange := fmt.Sprintf("User: %s\nAssistant: %s", turns[0].Content, turns[1].Content)
	summary, err := c.llm.Generate(ctx, llm.Request{
		System:      compressPrompt,
		Messages:    []core.Message{{Role: "user", Content: exchange}},
		Temperature: 0.3,
		MaxTokens:   256,
	})
	if err != nil {
		return nil, err
	}
	return core.NewReport(task, core.StatusSuccess, map[string]any{"summary": summary}), nil
}
