// Package provider builds the explicit ports.Provider from configuration
// and an API key.
package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/0xcro3dile/neuroscholar/internal/adapters/embedding"
	"github.com/0xcro3dile/neuroscholar/internal/adapters/llm"
	"github.com/0xcro3dile/neuroscholar/internal/domain/ports"
	"github.com/0xcro3dile/neuroscholar/internal/infrastructure/config"
)

var (
	// ErrUnknownProvider is returned for a backend name with no adapter.
	ErrUnknownProvider = errors.New("unknown provider")
	// ErrKeyRequired is returned when a hosted backend gets no API key.
	ErrKeyRequired = errors.New("API key required")
)

// Moonshot defaults. Its API is OpenAI-compatible.
const (
	MoonshotBaseURL = "https://api.moonshot.cn/v1"
	MoonshotModel   = "moonshot-v1-128k"
)

// NeedsKey reports whether the named backend requires an API key.
func NeedsKey(name string) bool {
	return name != "ollama"
}

// New builds the LLM and embedding services. apiKey is the key entered in
// the UI (or the deployment key); it is used for the LLM and, when both
// backends are the same and no embedding key is configured, for
// embeddings. The key is not validated here: a bad key fails on the first
// call.
func New(ctx context.Context, cfg config.ProviderConfig, apiKey string, logger arbor.ILogger) (*ports.Provider, error) {
	chat, err := newLLM(ctx, cfg.LLM, apiKey, logger)
	if err != nil {
		return nil, err
	}

	embedKey := cfg.Embedding.APIKey
	if embedKey == "" && cfg.Embedding.Provider == cfg.LLM.Provider {
		embedKey = apiKey
	}
	if embedKey == "" {
		embedKey = config.ResolveAPIKey(cfg.Embedding.Provider, "")
	}

	embedder, err := newEmbedder(ctx, cfg.Embedding, embedKey, logger)
	if err != nil {
		return nil, err
	}

	logger.Info().
		Str("llm", cfg.LLM.Provider).
		Str("llm_model", chat.Model()).
		Str("embedding", cfg.Embedding.Provider).
		Str("embedding_model", embedder.Model()).
		Msg("Provider configured")

	return &ports.Provider{
		Name:          cfg.LLM.Provider,
		EmbeddingName: cfg.Embedding.Provider,
		LLM:           chat,
		Embedder:      embedding.NewRateLimited(embedder, cfg.Embedding.RequestsPerSecond, cfg.Embedding.Burst),
	}, nil
}

func newLLM(ctx context.Context, c config.LLMConfig, key string, logger arbor.ILogger) (ports.LLMService, error) {
	if NeedsKey(c.Provider) && key == "" {
		if _, known := llmNames[c.Provider]; known {
			return nil, fmt.Errorf("%w for %s", ErrKeyRequired, c.Provider)
		}
	}

	switch c.Provider {
	case "gemini":
		return llm.NewGeminiAdapter(ctx, llm.GeminiConfig{
			APIKey:      key,
			Model:       c.Model,
			Temperature: c.Temperature,
			BaseURL:     c.BaseURL,
		}, logger)
	case "moonshot":
		baseURL, model := c.BaseURL, c.Model
		if baseURL == "" {
			baseURL = MoonshotBaseURL
		}
		if model == "" {
			model = MoonshotModel
		}
		return llm.NewOpenAIAdapter(llm.OpenAIConfig{
			BaseURL:       baseURL,
			APIKey:        key,
			Model:         model,
			Temperature:   c.Temperature,
			ContextWindow: c.ContextWindow,
		}, logger), nil
	case "openai":
		return llm.NewOpenAIAdapter(llm.OpenAIConfig{
			BaseURL:       c.BaseURL,
			APIKey:        key,
			Model:         c.Model,
			Temperature:   c.Temperature,
			ContextWindow: c.ContextWindow,
		}, logger), nil
	case "anthropic":
		return llm.NewAnthropicAdapter(llm.AnthropicConfig{
			APIKey:      key,
			Model:       c.Model,
			MaxTokens:   c.MaxTokens,
			Temperature: c.Temperature,
			BaseURL:     c.BaseURL,
		}, logger), nil
	case "ollama":
		return llm.NewOllamaLLMAdapter(c.BaseURL, c.Model, c.Temperature, logger), nil
	default:
		return nil, fmt.Errorf("%w: llm %q", ErrUnknownProvider, c.Provider)
	}
}

var llmNames = map[string]struct{}{
	"gemini": {}, "moonshot": {}, "openai": {}, "anthropic": {}, "ollama": {},
}

func newEmbedder(ctx context.Context, c config.EmbeddingConfig, key string, logger arbor.ILogger) (ports.EmbeddingService, error) {
	switch c.Provider {
	case "gemini", "openai":
		if key == "" {
			return nil, fmt.Errorf("%w for %s embeddings", ErrKeyRequired, c.Provider)
		}
	}

	switch c.Provider {
	case "gemini":
		return embedding.NewGeminiAdapter(ctx, embedding.GeminiConfig{
			APIKey:     key,
			Model:      c.Model,
			Dimensions: c.Dimensions,
			BaseURL:    c.BaseURL,
		}, logger)
	case "openai":
		return embedding.NewOpenAIAdapter(c.BaseURL, key, c.Model, logger), nil
	case "ollama":
		return embedding.NewOllamaAdapter(c.BaseURL, c.Model, logger), nil
	default:
		return nil, fmt.Errorf("%w: embedding %q", ErrUnknownProvider, c.Provider)
	}
}
