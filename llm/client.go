package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/param"
	"github.com/charmbracelet/log"

	"github.com/mnemoslabs/mnemos/core"
)

// Config holds client settings. EstimateDivisor backs the chars/N token
// estimate used when the counting endpoint is unavailable.
type Config struct {
	APIKey          string
	BaseURL         string
	Model           string
	ContextLimit    int
	MaxTokens       int64
	EstimateDivisor int
}

// Request is one completion request. MaxTokens zero falls back to the
// configured default; Temperature is always sent explicitly because the
// cognitive stages each run at their own setting.
type Request struct {
	System      string
	Messages    []core.Message
	Temperature float64
	MaxTokens   int64
}

// Client wraps the Anthropic API for the two shapes the services need: free
// text generation and schema-constrained extraction via a forced tool call.
type Client struct {
	api    anthropic.Client
	cfg    Config
	logger *log.Logger
}

// New builds a client from config.
func New(cfg Config, logger *log.Logger) *Client {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.EstimateDivisor <= 0 {
		cfg.EstimateDivisor = 3
	}
	return &Client{
		api:    anthropic.NewClient(opts...),
		cfg:    cfg,
		logger: logger,
	}
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.cfg.Model }

// ContextLimit returns the configured context window size in tokens.
func (c *Client) ContextLimit() int { return c.cfg.ContextLimit }

// Generate runs a completion and returns the concatenated text blocks.
func (c *Client) Generate(ctx context.Context, req Request) (string, error) {
	params := c.params(req)
	resp, err := c.api.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("llm generate: %w", err)
	}
	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	return text, nil
}

// GenerateStructured forces the model to call tool and unmarshals the tool
// input into out. A response without the expected tool call is an error.
func (c *Client) GenerateStructured(ctx context.Context, req Request, tool core.ToolDefinition, out any) error {
	params := c.params(req)
	params.Tools = []anthropic.ToolUnionParam{{
		OfTool: &anthropic.ToolParam{
			Name:        tool.Name,
			Description: anthropic.String(tool.Description),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: tool.Properties,
				Required:   tool.Required,
			},
		},
	}}
	params.ToolChoice = anthropic.ToolChoiceUnionParam{
		OfTool: &anthropic.ToolChoiceToolParam{Name: tool.Name},
	}

	resp, err := c.api.Messages.New(ctx, params)
	if err != nil {
		return fmt.Errorf("llm structured generate: %w", err)
	}
	for _, block := range resp.Content {
		if block.Type == "tool_use" && block.Name == tool.Name {
			if err := json.Unmarshal([]byte(block.Input), out); err != nil {
				return fmt.Errorf("parse %s output: %w", tool.Name, err)
			}
			return nil
		}
	}
	return fmt.Errorf("model did not call tool %s", tool.Name)
}

// CountTokens measures the prompt against the model's tokenizer, degrading
// to a character-based estimate when the endpoint is unreachable.
func (c *Client) CountTokens(ctx context.Context, system string, messages []core.Message) int {
	params := anthropic.MessageCountTokensParams{
		Model:    anthropic.Model(c.cfg.Model),
		Messages: toParams(messages),
	}
	if system != "" {
		params.System = anthropic.MessageCountTokensParamsSystemUnion{
			OfTextBlockArray: []anthropic.TextBlockParam{{Text: system}},
		}
	}
	resp, err := c.api.Messages.CountTokens(ctx, params)
	if err != nil {
		c.logger.Warn("token counting unavailable, estimating", "error", err)
		return c.EstimateTokens(system, messages)
	}
	return int(resp.InputTokens)
}

// EstimateTokens approximates token usage as total characters divided by the
// configured divisor.
func (c *Client) EstimateTokens(system string, messages []core.Message) int {
	chars := len(system)
	for _, m := range messages {
		chars += len(m.Content)
	}
	return chars / c.cfg.EstimateDivisor
}

func (c *Client) params(req Request) anthropic.MessageNewParams {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.cfg.MaxTokens
	}
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(c.cfg.Model),
		MaxTokens:   maxTokens,
		Messages:    toParams(req.Messages),
		Temperature: param.NewOpt(req.Temperature),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	return params
}

func toParams(messages []core.Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, m := range messages {
		block := anthropic.NewTextBlock(m.Content)
		if m.Role == "assistant" {
			out = append(out, anthropic.NewAssistantMessage(block))
		} else {
			out = append(out, anthropic.NewUserMessage(block))
		}
	}
	return out
}
