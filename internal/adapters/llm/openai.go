package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/0xcro3dile/neuroscholar/internal/domain/entities"
)

// OpenAIAdapter implements ports.LLMService against an OpenAI-compatible
// /chat/completions endpoint (OpenAI, Moonshot).
type OpenAIAdapter struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	window      int
	client      *http.Client
	logger      arbor.ILogger
}

// OpenAIConfig configures an OpenAI-compatible chat adapter.
type OpenAIConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64

	// ContextWindow is the model's token limit. Older turns are dropped
	// to stay under it; 0 sends every message.
	ContextWindow int
}

// NewOpenAIAdapter creates an OpenAI-compatible chat adapter.
func NewOpenAIAdapter(cfg OpenAIConfig, logger arbor.ILogger) *OpenAIAdapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	return &OpenAIAdapter{
		baseURL:     strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		window:      cfg.ContextWindow,
		client:      &http.Client{Timeout: DefaultTimeout},
		logger:      logger,
	}
}

type openAIChatRequest struct {
	Model       string                 `json:"model"`
	Messages    []entities.ChatMessage `json:"messages"`
	Temperature float64                `json:"temperature"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message entities.ChatMessage `json:"message"`
	} `json:"choices"`
}

// Model returns the chat model name.
func (a *OpenAIAdapter) Model() string {
	return a.model
}

// Chat posts the message list and returns the first choice.
func (a *OpenAIAdapter) Chat(ctx context.Context, messages []entities.ChatMessage) (string, error) {
	if fitted := fitContextWindow(messages, a.window); len(fitted) < len(messages) {
		a.logger.Debug().Int("dropped", len(messages)-len(fitted)).Int("context_window", a.window).Msg("Trimmed conversation to context window")
		messages = fitted
	}

	jsonData, err := json.Marshal(openAIChatRequest{
		Model:       a.model,
		Messages:    messages,
		Temperature: a.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/chat/completions", bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.apiKey)

	resp, err := a.client.Do(req)
	if err != nil {
		a.logger.Error().Err(err).Str("url", a.baseURL).Msg("Chat completion call failed")
		return "", fmt.Errorf("calling chat API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("chat API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var chatResp openAIChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}
	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("no response generated from chat model")
	}

	return chatResp.Choices[0].Message.Content, nil
}
