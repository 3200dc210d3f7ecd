package session

import (
	"context"
	"time"

	"corpflow-chat/backend/conversation/models"
	"corpflow-chat/backend/pkg/errors"
)

// Status tags an entry of the visible message sequence
type Status int

const (
	// StatusPending marks an optimistic local message awaiting the server
	StatusPending Status = iota
	// StatusConfirmed marks a message the server has stored
	StatusConfirmed
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusConfirmed:
		return "confirmed"
	default:
		return "unknown"
	}
}

// Entry is one message of the active conversation as the session sees it
type Entry struct {
	Message models.Message
	Status  Status
}

// ChannelState is the push channel lifecycle of the active conversation
type ChannelState int

const (
	ChannelDisconnected ChannelState = iota
	ChannelConnecting
	ChannelConnected
)

func (s ChannelState) String() string {
	switch s {
	case ChannelDisconnected:
		return "disconnected"
	case ChannelConnecting:
		return "connecting"
	case ChannelConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// FailedSend is a message the backend did not accept; it can be retried or dismissed
type FailedSend struct {
	ID             string
	ConversationID string
	Content        string
	Err            error
	At             time.Time
}

// Snapshot is a read-only copy of the session state
type Snapshot struct {
	UserID        string
	Conversations []models.Conversation
	// Active is the active conversation without its messages, nil when none
	Active    *models.Conversation
	Entries   []Entry
	Busy      bool
	Input     string
	Channel   ChannelState
	LastError error
	Failed    []FailedSend

	version uint64
}

// ActiveID returns the active conversation id or ""
func (s Snapshot) ActiveID() string {
	if s.Active == nil {
		return ""
	}
	return s.Active.ID
}

// Messages returns the visible message sequence
func (s Snapshot) Messages() []models.Message {
	out := make([]models.Message, len(s.Entries))
	for i, e := range s.Entries {
		out[i] = e.Message
	}
	return out
}

// Backend is the HTTP collaborator
type Backend interface {
	ListConversations(ctx context.Context, userID string) ([]models.Conversation, error)
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
	CreateConversation(ctx context.Context, userID, agentID string) (*models.Conversation, error)
	SendMessage(ctx context.Context, req models.SendMessageRequest) (*models.Message, error)
}

// Channel is one live push subscription
type Channel interface {
	// Next blocks for the next pushed message; it returns ctx.Err() when ctx ends
	Next(ctx context.Context) (models.Message, error)
	Close() error
}

// Dialer opens push subscriptions keyed by (user, conversation)
type Dialer interface {
	Dial(ctx context.Context, userID, conversationID string) (Channel, error)
}

// DialerFunc adapts a function to Dialer
type DialerFunc func(ctx context.Context, userID, conversationID string) (Channel, error)

func (f DialerFunc) Dial(ctx context.Context, userID, conversationID string) (Channel, error) {
	return f(ctx, userID, conversationID)
}

var (
	// ErrClosed is returned by operations on a closed session
	ErrClosed = errors.NewError(409, errors.CodeSessionClosed, "session is closed")
	// ErrNoActiveConversation is returned when a send has no target
	ErrNoActiveConversation = errors.NewError(409, errors.CodeNoActiveConversation, "no active conversation")
	// ErrSuperseded is returned when a newer navigation made a response stale
	ErrSuperseded = errors.NewError(409, errors.CodeSuperseded, "response discarded, a newer request replaced it")
)
