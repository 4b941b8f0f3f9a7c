package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"
	"google.golang.org/genai"

	"github.com/0xcro3dile/neuroscholar/internal/domain/entities"
)

// GeminiAdapter implements ports.LLMService with the Gemini API.
type GeminiAdapter struct {
	client      *genai.Client
	model       string
	temperature float32
	logger      arbor.ILogger
}

// GeminiConfig configures the Gemini chat adapter.
type GeminiConfig struct {
	APIKey      string
	Model       string
	Temperature float64
	BaseURL     string
}

// NewGeminiAdapter creates a Gemini chat adapter.
func NewGeminiAdapter(ctx context.Context, cfg GeminiConfig, logger arbor.ILogger) (*GeminiAdapter, error) {
	if cfg.Model == "" {
		cfg.Model = "gemini-2.0-flash"
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
		client:      client,
		model:       cfg.Model,
		temperature: float32(cfg.Temperature),
		logger:      logger,
	}, nil
}

// Model returns the chat model name.
func (a *GeminiAdapter) Model() string {
	return a.model
}

// convertMessages splits out the system text and maps the rest onto Gemini
// roles. The assistant speaks as RoleModel.
func convertMessages(messages []entities.ChatMessage) ([]*genai.Content, string, error) {
	var (
		contents []*genai.Content
		system   []string
	)
	for _, msg := range messages {
		switch msg.Role {
		case entities.RoleSystem:
			system = append(system, msg.Content)
		case entities.RoleAssistant:
			contents = append(contents, &genai.Content{
				Role:  genai.RoleModel,
				Parts: []*genai.Part{genai.NewPartFromText(msg.Content)},
			})
		default:
			contents = append(contents, &genai.Content{
				Role:  genai.RoleUser,
				Parts: []*genai.Part{genai.NewPartFromText(msg.Content)},
			})
		}
	}
	if len(contents) == 0 {
		return nil, "", fmt.Errorf("at least one non-system message is required")
	}
	return contents, strings.Join(system, "\n\n"), nil
}

// Chat generates a reply to the conversation.
func (a *GeminiAdapter) Chat(ctx context.Context, messages []entities.ChatMessage) (string, error) {
	contents, systemText, err := convertMessages(messages)
	if err != nil {
		return "", err
	}

	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(a.temperature),
	}
	if systemText != "" {
		config.SystemInstruction = genai.NewContentFromText(systemText, genai.RoleUser)
	}

	resp, err := a.client.Models.GenerateContent(ctx, a.model, contents, config)
	if err != nil {
		a.logger.Error().Err(err).Str("model", a.model).Msg("Gemini chat failed")
		return "", fmt.Errorf("chat generation failed: %w", err)
	}

	var response strings.Builder
	if resp != nil {
		for _, candidate := range resp.Candidates {
			if candidate.Content == nil {
				continue
			}
			for _, part := range candidate.Content.Parts {
				response.WriteString(part.Text)
			}
			if response.Len() > 0 {
				break
			}
		}
	}

	if response.Len() == 0 {
		return "", fmt.Errorf("no response generated from chat model")
	}
	return response.String(), nil
}
