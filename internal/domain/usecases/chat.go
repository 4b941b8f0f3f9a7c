package usecases

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/0xcro3dile/neuroscholar/internal/domain/entities"
	"github.com/0xcro3dile/neuroscholar/internal/domain/ports"
)

// DefaultSystemPrompt is the fixed instruction prompt of the assistant.
const DefaultSystemPrompt = `You are a world-class neuroscience post-doctoral research assistant.
Your answers must be based on the documents the user has uploaded.
- When asked about experimental methods, list the concrete parameters (for example viral titer, stereotaxic coordinates, stimulation frequency).
- When asked about conclusions, cite the specific Figure or experimental result.
- If the documents do not mention it, answer exactly "Not found in the uploaded literature." and do not make anything up.`

// DefaultWelcomeMessage opens every conversation.
const DefaultWelcomeMessage = "Hello! I am an AI assistant specialised in neuroscience. Upload your PDFs, then ask me about experimental methods, conclusions or reviews."

// DefaultCondensePrompt rewrites a follow-up into a standalone question.
// Placeholders: {chat_history}, {question}.
const DefaultCondensePrompt = `Given the following conversation between a user and an AI assistant and a follow up question from the user, rephrase the follow up question to be a standalone question.

Chat History:
{chat_history}
Follow Up Input: {question}
Standalone question:`

// DefaultContextPrompt is appended to the system prompt with the retrieved
// chunks. Placeholder: {context_str}.
const DefaultContextPrompt = `Here are the relevant documents for the context:

{context_str}

Instruction: Based on the above documents, provide a detailed answer for the user question below.`

// ErrEmptyQuestion is returned for blank chat input.
var ErrEmptyQuestion = errors.New("question is empty")

// Retriever fetches the chunks most relevant to a query.
type Retriever interface {
	Retrieve(ctx context.Context, embedder ports.EmbeddingService, query string, topK int) ([]entities.QueryResult, error)
}

// ChatOptions configures the condense-plus-context chat.
type ChatOptions struct {
	SystemPrompt   string
	CondensePrompt string
	ContextPrompt  string
	TopK           int
	MaxHistory     int // Most recent messages kept; 0 keeps all
}

// ChatUseCase answers questions in condense-plus-context mode: the running
// conversation is condensed into a standalone question, which drives
// retrieval; the answer is generated from the system prompt, the retrieved
// context and the conversation.
type ChatUseCase struct {
	opts   ChatOptions
	logger arbor.ILogger
}

// NewChatUseCase creates a ChatUseCase, filling unset options with defaults.
func NewChatUseCase(opts ChatOptions, logger arbor.ILogger) *ChatUseCase {
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = DefaultSystemPrompt
	}
	if opts.CondensePrompt == "" {
		opts.CondensePrompt = DefaultCondensePrompt
	}
	if opts.ContextPrompt == "" {
		opts.ContextPrompt = DefaultContextPrompt
	}
	if opts.TopK <= 0 {
		opts.TopK = 5
	}
	if opts.MaxHistory < 0 {
		opts.MaxHistory = 0
	}
	return &ChatUseCase{opts: opts, logger: logger}
}

// Chat answers one question. Nothing is cached between calls.
func (uc *ChatUseCase) Chat(ctx context.Context, p *ports.Provider, r Retriever, history []entities.ChatMessage, question string) (*entities.ChatResponse, error) {
	if p == nil {
		return nil, ErrMissingKey
	}
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}

	history = uc.trimHistory(history)

	standalone, err := uc.condense(ctx, p.LLM, history, question)
	if err != nil {
		return nil, fmt.Errorf("condensing question: %w", err)
	}

	results, err := r.Retrieve(ctx, p.Embedder, standalone, uc.opts.TopK)
	if err != nil {
		return nil, fmt.Errorf("retrieving context: %w", err)
	}

	messages := make([]entities.ChatMessage, 0, len(history)+2)
	messages = append(messages, entities.ChatMessage{Role: entities.RoleSystem, Content: uc.systemMessage(results)})
	messages = append(messages, history...)
	messages = append(messages, entities.ChatMessage{Role: entities.RoleUser, Content: question})

	answer, err := p.LLM.Chat(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("generating answer: %w", err)
	}

	uc.logger.Debug().
		Str("standalone", standalone).
		Int("sources", len(results)).
		Str("model", p.LLM.Model()).
		Msg("Chat turn answered")

	return &entities.ChatResponse{
		Answer:             strings.TrimSpace(answer),
		StandaloneQuestion: standalone,
		Sources:            results,
	}, nil
}

func (uc *ChatUseCase) condense(ctx context.Context, llm ports.LLMService, history []entities.ChatMessage, question string) (string, error) {
	if !hasUserTurn(history) {
		return question, nil
	}

	prompt := strings.NewReplacer(
		"{chat_history}", formatHistory(history),
		"{question}", question,
	).Replace(uc.opts.CondensePrompt)

	rewritten, err := llm.Chat(ctx, []entities.ChatMessage{{Role: entities.RoleUser, Content: prompt}})
	if err != nil {
		return "", err
	}
	rewritten = strings.TrimSpace(rewritten)
	if rewritten == "" {
		return question, nil
	}
	return rewritten, nil
}

func (uc *ChatUseCase) systemMessage(results []entities.QueryResult) string {
	parts := make([]string, len(results))
	for i, r := range results {
		parts[i] = fmt.Sprintf("[Source: %s]\n%s", r.SourceDoc, r.Chunk.Content)
	}

	contextBlock := strings.ReplaceAll(uc.opts.ContextPrompt, "{context_str}", strings.Join(parts, "\n\n"))
	return uc.opts.SystemPrompt + "\n\n" + contextBlock
}

func (uc *ChatUseCase) trimHistory(history []entities.ChatMessage) []entities.ChatMessage {
	kept := make([]entities.ChatMessage, 0, len(history))
	for _, m := range history {
		if m.Role == entities.RoleUser || m.Role == entities.RoleAssistant {
			kept = append(kept, m)
		}
	}
	if uc.opts.MaxHistory > 0 && len(kept) > uc.opts.MaxHistory {
		kept = kept[len(kept)-uc.opts.MaxHistory:]
	}
	// Providers expect the conversation to open with a user turn.
	for len(kept) > 0 && kept[0].Role != entities.RoleUser {
		kept = kept[1:]
	}
	return kept
}

func hasUserTurn(history []entities.ChatMessage) bool {
	for _, m := range history {
		if m.Role == entities.RoleUser {
			return true
		}
	}
	return false
}

func formatHistory(history []entities.ChatMessage) string {
	var sb strings.Builder
	for _, m := range history {
		sb.WriteString(string(m.Role))
		sb.WriteString(": ")
		sb.WriteString(m.Content)
		sb.WriteString("\n")
	}
	return sb.String()
}
