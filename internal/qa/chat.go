package qa

import (
	"context"

	"github.com/spherical/bill-assistant/internal/domain"
)

// ChatBackend answers by replaying the message transcript to a chat-completion model.
type ChatBackend struct {
	chat domain.ChatCompleter
}

// NewChatBackend creates a generative backend.
func NewChatBackend(chat domain.ChatCompleter) *ChatBackend {
	return &ChatBackend{chat: chat}
}

// Answer implements domain.QABackend.
func (b *ChatBackend) Answer(ctx context.Context, q domain.Query) (string, error) {
	if len(q.Messages) == 0 {
		return "", domain.ValidationError("chat backend needs at least one message", nil)
	}
	return b.chat.Complete(ctx, q.Messages)
}
