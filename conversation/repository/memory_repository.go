package repository

import (
	"context"
	"sort"
	"sync"

	"corpflow-chat/backend/conversation/models"
)

// MemoryConversationRepository keeps conversations in process memory
type MemoryConversationRepository struct {
	mu            sync.RWMutex
	conversations map[string]*models.Conversation
}

func NewMemoryConversationRepository() *MemoryConversationRepository {
	return &MemoryConversationRepository{
		conversations: make(map[string]*models.Conversation),
	}
}

func (r *MemoryConversationRepository) Create(ctx context.Context, conv *models.Conversation) error {
	stored := conv.Clone()
	r.mu.Lock()
	r.conversations[conv.ID] = &stored
	r.mu.Unlock()
	return nil
}

func (r *MemoryConversationRepository) Get(ctx context.Context, id string) (*models.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conv, ok := r.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := conv.Clone()
	return &out, nil
}

func (r *MemoryConversationRepository) ListByUser(ctx context.Context, userID string) ([]models.Conversation, error) {
	r.mu.RLock()
	convs := make([]models.Conversation, 0)
	for _, conv := range r.conversations {
		if conv.UserID == userID {
			convs = append(convs, conv.Summary())
		}
	}
	r.mu.RUnlock()

	sortNewestFirst(convs)
	return convs, nil
}

func (r *MemoryConversationRepository) Save(ctx context.Context, conv *models.Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.conversations[conv.ID]
	if !ok {
		return ErrNotFound
	}
	stored.Title = conv.Title
	stored.LastMessage = conv.LastMessage
	stored.UpdatedAt = conv.UpdatedAt
	return nil
}

func (r *MemoryConversationRepository) AppendMessage(ctx context.Context, conv *models.Conversation, msg *models.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.conversations[conv.ID]
	if !ok {
		return ErrNotFound
	}
	stored.Messages = append(stored.Messages, *msg)
	stored.Title = conv.Title
	stored.LastMessage = conv.LastMessage
	stored.UpdatedAt = conv.UpdatedAt
	return nil
}

func (r *MemoryConversationRepository) GetMessages(ctx context.Context, conversationID string, limit, offset int) ([]models.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conv, ok := r.conversations[conversationID]
	if !ok {
		return nil, ErrNotFound
	}
	return page(conv.Messages, limit, offset), nil
}

func (r *MemoryConversationRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	delete(r.conversations, id)
	r.mu.Unlock()
	return nil
}

func (r *MemoryConversationRepository) Ping(ctx context.Context) error {
	return nil
}

func sortNewestFirst(convs []models.Conversation) {
	sort.SliceStable(convs, func(i, j int) bool {
		return convs[i].UpdatedAt.After(convs[j].UpdatedAt)
	})
}
