package models

import (
	"strings"
	"time"
)

// MessageType is the content kind of a message
type MessageType string

const (
	MessageTypeText    MessageType = "text"
	MessageTypeImage   MessageType = "image"
	MessageTypeFile    MessageType = "file"
	MessageTypeCommand MessageType = "command"
	MessageTypeSystem  MessageType = "system"
)

// Sender identifies which side of the conversation wrote a message
type Sender string

const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

// Valid reports whether s is a known sender
func (s Sender) Valid() bool {
	return s == SenderUser || s == SenderBot
}

// TempIDPrefix marks client-generated ids that never leave the client
const TempIDPrefix = "temp-"

// Message is a single chat message. Messages are immutable once created.
type Message struct {
	ID             string      `json:"id" gorm:"primaryKey"`
	ConversationID string      `json:"conversation_id" gorm:"index"`
	Type           MessageType `json:"type"`
	Content        string      `json:"content"`
	Sender         Sender      `json:"sender"`
	SenderID       string      `json:"sender_id" gorm:"index"`
	CreatedAt      time.Time   `json:"created_at"`
}

// IsTemporary reports whether the message carries a client-generated id
func (m Message) IsTemporary() bool {
	return strings.HasPrefix(m.ID, TempIDPrefix)
}

// SendMessageRequest is the body of POST /messages
type SendMessageRequest struct {
	ConversationID string      `json:"conversation_id" binding:"required"`
	Type           MessageType `json:"type"`
	Content        string      `json:"content" binding:"required"`
	Sender         Sender      `json:"sender"`
	SenderID       string      `json:"sender_id"`
}

// Normalize fills the defaults the backend applies to a send request
func (r *SendMessageRequest) Normalize() {
	if r.Type == "" {
		r.Type = MessageTypeText
	}
	if r.Sender == "" {
		r.Sender = SenderUser
	}
}
