package embedding

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"google.golang.org/genai"
)

// geminiBatchLimit is the most contents one EmbedContent call accepts.
const geminiBatchLimit = 100

// GeminiAdapter implements ports.EmbeddingService with the Gemini API.
type GeminiAdapter struct {
	client     *genai.Client
	model      string
	dimensions int32
	logger     arbor.ILogger
}

// GeminiConfig configures the Gemini embedding adapter.
type GeminiConfig struct {
	APIKey     string
	Model      string
	Dimensions int // 0 keeps the model default
	BaseURL    string
}

// NewGeminiAdapter creates a Gemini embedding adapter.
func NewGeminiAdapter(ctx context.Context, cfg GeminiConfig, logger arbor.ILogger) (*GeminiAdapter, error) {
	if cfg.Model == "" {
		cfg.Model = "gemini-embedding-001"
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize genai client: %w", err)
	}

	return &GeminiAdapter{
		client:     client,
		model:      cfg.Model,
		dimensions: int32(cfg.Dimensions),
		logger:     logger,
	}, nil
}

// Model returns the embedding model name.
func (a *GeminiAdapter) Model() string {
	return a.model
}

// BatchSize is the most texts one Gemini request carries.
func (a *GeminiAdapter) BatchSize() int {
	return geminiBatchLimit
}

// Embed generates an embedding for a single text.
func (a *GeminiAdapter) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := a.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// EmbedBatch embeds texts in requests of up to 100 contents.
func (a *GeminiAdapter) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var cfg *genai.EmbedContentConfig
	if a.dimensions > 0 {
		dim := a.dimensions
		cfg = &genai.EmbedContentConfig{OutputDimensionality: &dim}
	}

	embeddings := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += geminiBatchLimit {
		end := min(start+geminiBatchLimit, len(texts))

		contents := make([]*genai.Content, 0, end-start)
		for _, t := range texts[start:end] {
			contents = append(contents, genai.NewContentFromText(t, genai.RoleUser))
		}

		timeoutCtx, cancel := context.WithTimeout(ctx, DefaultTimeout)
		result, err := a.client.Models.EmbedContent(timeoutCtx, a.model, contents, cfg)
		cancel()
		if err != nil {
			a.logger.Error().Err(err).Str("model", a.model).Int("batch", end-start).Msg("Gemini embedding failed")
			return nil, fmt.Errorf("embedding generation failed: %w", err)
		}
		if result == nil || len(result.Embeddings) != end-start {
			return nil, fmt.Errorf("gemini returned %d embeddings for %d texts", embeddingCount(result), end-start)
		}

		for _, e := range result.Embeddings {
			if e == nil || len(e.Values) == 0 {
				return nil, fmt.Errorf("no embedding returned from API")
			}
			embeddings = append(embeddings, e.Values)
		}
	}

	return embeddings, nil
}

func embeddingCount(r *genai.EmbedContentResponse) int {
	if r == nil {
		return 0
	}
	return len(r.Embeddings)
}
