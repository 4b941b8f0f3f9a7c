package usecases

import (
	"context"
	"sync"

	"github.com/0xcro3dile/neuroscholar/internal/domain/entities"
	"github.com/0xcro3dile/neuroscholar/internal/domain/ports"
)

// Conversation is the transient message history of one chat session.
// It is never persisted.
type Conversation struct {
	mu       sync.Mutex
	messages []entities.ChatMessage
}

// NewConversation starts a conversation with an assistant greeting.
func NewConversation(welcome string) *Conversation {
	c := &Conversation{}
	if welcome != "" {
		c.messages = append(c.messages, entities.ChatMessage{Role: entities.RoleAssistant, Content: welcome})
	}
	return c
}

// Messages returns a copy of the history.
func (c *Conversation) Messages() []entities.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]entities.ChatMessage, len(c.messages))
	copy(out, c.messages)
	return out
}

// Ask runs one chat turn. The question and the answer are appended only
// when the turn succeeds; turns of one conversation run one at a time.
func (c *Conversation) Ask(ctx context.Context, chat *ChatUseCase, p *ports.Provider, r Retriever, question string) (*entities.ChatResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	history := make([]entities.ChatMessage, len(c.messages))
	copy(history, c.messages)

	resp, err := chat.Chat(ctx, p, r, history, question)
	if err != nil {
		return nil, err
	}

	c.messages = append(c.messages,
		entities.ChatMessage{Role: entities.RoleUser, Content: question},
		entities.ChatMessage{Role: entities.RoleAssistant, Content: resp.Answer},
	)
	return resp, nil
}
