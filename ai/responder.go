package ai

import (
	"context"

	"corpflow-chat/backend/conversation/models"
)

// ConfigureNotice is the reply sent while no model service is configured
const ConfigureNotice = "Configure API key in Settings to start chatting!"

// ReplyRequest carries what a responder needs to answer one user message
type ReplyRequest struct {
	ConversationID string
	UserID         string
	AgentID        string
	Message        string
	History        []models.Message
}

// Responder produces the bot's reply content for a user message
type Responder interface {
	Reply(ctx context.Context, req ReplyRequest) (string, error)
}

// StaticResponder always answers with a fixed text
type StaticResponder struct {
	Text string
}

func NewStaticResponder() *StaticResponder {
	return &StaticResponder{Text: ConfigureNotice}
}

func (s *StaticResponder) Reply(ctx context.Context, req ReplyRequest) (string, error) {
	if s.Text == "" {
		return ConfigureNotice, nil
	}
	return s.Text, nil
}
