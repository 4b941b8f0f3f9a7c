package usecases

import (
	"context"
	"errors"
	"testing"

	"github.com/ternarybob/arbor"

	"github.com/0xcro3dile/neuroscholar/internal/domain/entities"
)

func TestConversation_StartsWithWelcome(t *testing.T) {
	c := NewConversation(DefaultWelcomeMessage)

	msgs := c.Messages()
	if len(msgs) != 1 || msgs[0].Role != entities.RoleAssistant {
		t.Fatalf("expected welcome message, got %+v", msgs)
	}
}

func TestConversation_AppendsOnSuccess(t *testing.T) {
	c := NewConversation(DefaultWelcomeMessage)
	uc := NewChatUseCase(ChatOptions{}, arbor.NewNoOpLogger())
	llm := &mockLLM{chatFn: func([]entities.ChatMessage) (string, error) { return "40Hz", nil }}

	_, err := c.Ask(context.Background(), uc, newProvider(&mockEmbedder{}, llm), &storeRetriever{store: &mockVectorStore{}}, "frequency?")
	if err != nil {
		t.Fatalf("ask failed: %v", err)
	}

	msgs := c.Messages()
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	if msgs[1].Role != entities.RoleUser || msgs[2].Content != "40Hz" {
		t.Errorf("unexpected history: %+v", msgs)
	}
}

func TestConversation_UnchangedOnFailure(t *testing.T) {
	c := NewConversation(DefaultWelcomeMessage)
	uc := NewChatUseCase(ChatOptions{}, arbor.NewNoOpLogger())
	llm := &mockLLM{chatFn: func([]entities.ChatMessage) (string, error) { return "", errors.New("timeout") }}

	_, err := c.Ask(context.Background(), uc, newProvider(&mockEmbedder{}, llm), &storeRetriever{store: &mockVectorStore{}}, "frequency?")
	if err == nil {
		t.Fatal("expected error")
	}

	if n := len(c.Messages()); n != 1 {
		t.Errorf("history should be unchanged, has %d messages", n)
	}
}

func TestConversation_MessagesIsACopy(t *testing.T) {
	c := NewConversation("hi")

	msgs := c.Messages()
	msgs[0].Content = "changed"

	if c.Messages()[0].Content != "hi" {
		t.Error("Messages should not expose internal state")
	}
}
