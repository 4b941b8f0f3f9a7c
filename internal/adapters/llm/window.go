package llm

import (
	"unicode/utf8"

	"github.com/0xcro3dile/neuroscholar/internal/domain/entities"
)

// replyReserve is the part of the context window kept free for the answer.
const replyReserve = 4096

// estimateTokens approximates a token count at four characters per token.
func estimateTokens(s string) int {
	return (utf8.RuneCountInString(s) + 3) / 4
}

// fitContextWindow drops the oldest conversation turns until the messages
// fit into window tokens minus the reply reserve. Leading system messages
// and the final message are always kept, and the kept conversation starts
// with a user turn. A non-positive window disables trimming.
func fitContextWindow(messages []entities.ChatMessage, window int) []entities.ChatMessage {
	if window <= 0 || len(messages) < 2 {
		return messages
	}
	budget := window - min(replyReserve, window/4)

	total := 0
	for _, m := range messages {
		total += estimateTokens(m.Content)
	}
	if total <= budget {
		return messages
	}

	sys := 0
	for sys < len(messages)-1 && messages[sys].Role == entities.RoleSystem {
		sys++
	}
	turns := messages[sys : len(messages)-1]
	for len(turns) > 0 && (total > budget || turns[0].Role != entities.RoleUser) {
		total -= estimateTokens(turns[0].Content)
		turns = turns[1:]
	}

	out := make([]entities.ChatMessage, 0, sys+len(turns)+1)
	out = append(out, messages[:sys]...)
	out = append(out, turns...)
	return append(out, messages[len(messages)-1])
}
