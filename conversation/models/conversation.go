package models

import (
	"time"
)

// DefaultTitle is shown for conversations without a title
const DefaultTitle = "new conversation"

// Conversation is a titled, ordered thread of messages between a user and an agent
type Conversation struct {
	ID          string    `json:"id" gorm:"primaryKey"`
	UserID      string    `json:"user_id" gorm:"index"`
	AgentID     string    `json:"agent_id"`
	Title       string    `json:"title"`
	LastMessage string    `json:"last_message"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" gorm:"index"`
	Messages    []Message `json:"messages,omitempty" gorm:"foreignKey:ConversationID;constraint:OnDelete:CASCADE"`
}

// DisplayTitle returns the title or the fallback for untitled conversations
func (c Conversation) DisplayTitle() string {
	if c.Title == "" {
		return DefaultTitle
	}
	return c.Title
}

// Summary returns a copy without message bodies, as served by the list endpoint
func (c Conversation) Summary() Conversation {
	c.Messages = nil
	return c
}

// Clone returns a deep copy safe to hand to another goroutine
func (c Conversation) Clone() Conversation {
	if c.Messages != nil {
		msgs := make([]Message, len(c.Messages))
		copy(msgs, c.Messages)
		c.Messages = msgs
	}
	return c
}

// CreateConversationRequest is the body of POST /conversations
type CreateConversationRequest struct {
	UserID  string `json:"user_id" binding:"required"`
	AgentID string `json:"agent_id"`
}

// UpdateTitleRequest is the body of PUT /conversations/:id/title
type UpdateTitleRequest struct {
	Title string `json:"title" binding:"required"`
}
