package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ternarybob/arbor"

	"github.com/0xcro3dile/neuroscholar/internal/domain/entities"
)

// AnthropicAdapter implements ports.LLMService with the Claude Messages API.
type AnthropicAdapter struct {
	client      anthropic.Client
	model       string
	maxTokens   int64
	temperature float64
	logger      arbor.ILogger
}

// AnthropicConfig configures the Claude chat adapter.
type AnthropicConfig struct {
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
	BaseURL     string
}

// NewAnthropicAdapter creates a Claude chat adapter.
func NewAnthropicAdapter(cfg AnthropicConfig, logger arbor.ILogger) *AnthropicAdapter {
	if cfg.Model == "" {
		cfg.Model = "claude-sonnet-4-20250514"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &AnthropicAdapter{
		client:      anthropic.NewClient(opts...),
		model:       cfg.Model,
		maxTokens:   int64(cfg.MaxTokens),
		temperature: cfg.Temperature,
		logger:      logger,
	}
}

// Model returns the chat model name.
func (a *AnthropicAdapter) Model() string {
	return a.model
}

// Chat sends the conversation to Claude. System messages go into the
// System parameter.
func (a *AnthropicAdapter) Chat(ctx context.Context, messages []entities.ChatMessage) (string, error) {
	var (
		params = anthropic.MessageNewParams{
			Model:     anthropic.Model(a.model),
			MaxTokens: a.maxTokens,
		}
		system []string
	)
	for _, msg := range messages {
		switch msg.Role {
		case entities.RoleSystem:
			system = append(system, msg.Content)
		case entities.RoleAssistant:
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		default:
			params.Messages = append(params.Messages, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}
	if len(params.Messages) == 0 {
		return "", fmt.Errorf("at least one non-system message is required")
	}
	if len(system) > 0 {
		params.System = []anthropic.TextBlockParam{{Text: strings.Join(system, "\n\n")}}
	}
	params.Temperature = anthropic.Float(a.temperature)

	resp, err := a.client.Messages.New(ctx, params)
	if err != nil {
		a.logger.Error().Err(err).Str("model", a.model).Msg("Claude chat failed")
		return "", fmt.Errorf("claude API call failed: %w", err)
	}

	var response strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			response.WriteString(block.Text)
		}
	}
	if response.Len() == 0 {
		return "", fmt.Errorf("no response generated from Claude API")
	}
	return response.String(), nil
}
