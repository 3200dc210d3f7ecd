package repository

import (
	"context"
	"errors"

	"corpflow-chat/backend/conversation/models"
)

// ErrNotFound is returned when a conversation does not exist
var ErrNotFound = errors.New("conversation not found")

// ConversationRepository persists conversations and their messages
type ConversationRepository interface {
	Create(ctx context.Context, conv *models.Conversation) error
	// Get returns the conversation with its messages in chronological order
	Get(ctx context.Context, id string) (*models.Conversation, error)
	// ListByUser returns summaries (no messages), newest updated_at first
	ListByUser(ctx context.Context, userID string) ([]models.Conversation, error)
	// Save updates conversation metadata (title, last_message, updated_at)
	Save(ctx context.Context, conv *models.Conversation) error
	// AppendMessage stores msg and the conversation metadata it changed
	AppendMessage(ctx context.Context, conv *models.Conversation, msg *models.Message) error
	GetMessages(ctx context.Context, conversationID string, limit, offset int) ([]models.Message, error)
	Delete(ctx context.Context, id string) error
	Ping(ctx context.Context) error
}

// page slices msgs the way the messages endpoint pages: limit <= 0 means the rest
func page(msgs []models.Message, limit, offset int) []models.Message {
	if offset < 0 {
		offset = 0
	}
	if offset > len(msgs) {
		offset = len(msgs)
	}
	if limit <= 0 || offset+limit > len(msgs) {
		limit = len(msgs) - offset
	}
	out := make([]models.Message, limit)
	copy(out, msgs[offset:offset+limit])
	return out
}
