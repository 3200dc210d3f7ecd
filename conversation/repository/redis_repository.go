package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"corpflow-chat/backend/conversation/models"
	sharedredis "corpflow-chat/backend/shared/redis"
)

// RedisConversationRepository stores each conversation as one JSON document
// with a sliding TTL, plus a per-user index set
type RedisConversationRepository struct {
	client *sharedredis.RedisClient
	ttl    time.Duration
}

func NewRedisConversationRepository(client *sharedredis.RedisClient, ttl time.Duration) *RedisConversationRepository {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisConversationRepository{client: client, ttl: ttl}
}

func conversationKey(id string) string {
	return fmt.Sprintf("conversation:%s", id)
}

func userIndexKey(userID string) string {
	return fmt.Sprintf("user:%s:conversations", userID)
}

func (r *RedisConversationRepository) put(ctx context.Context, conv *models.Conversation) error {
	data, err := json.Marshal(conv)
	if err != nil {
		return fmt.Errorf("encode conversation %s: %w", conv.ID, err)
	}
	if err := r.client.Set(ctx, conversationKey(conv.ID), data, r.ttl); err != nil {
		return err
	}
	// The index lives as long as the owner's most recently written conversation
	return r.client.Raw().Expire(ctx, userIndexKey(conv.UserID), r.ttl).Err()
}

func (r *RedisConversationRepository) Create(ctx context.Context, conv *models.Conversation) error {
	if err := r.client.Raw().SAdd(ctx, userIndexKey(conv.UserID), conv.ID).Err(); err != nil {
		return err
	}
	return r.put(ctx, conv)
}

func (r *RedisConversationRepository) Get(ctx context.Context, id string) (*models.Conversation, error) {
	data, err := r.client.Get(ctx, conversationKey(id))
	if sharedredis.IsNil(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var conv models.Conversation
	if err := json.Unmarshal(data, &conv); err != nil {
		return nil, fmt.Errorf("decode conversation %s: %w", id, err)
	}
	return &conv, nil
}

func (r *RedisConversationRepository) ListByUser(ctx context.Context, userID string) ([]models.Conversation, error) {
	ids, err := r.client.Raw().SMembers(ctx, userIndexKey(userID)).Result()
	if err != nil {
		return nil, err
	}

	convs := make([]models.Conversation, 0, len(ids))
	var stale []interface{}
	for _, id := range ids {
		conv, err := r.Get(ctx, id)
		if err == ErrNotFound {
			stale = append(stale, id)
			continue
		}
		if err != nil {
			return nil, err
		}
		convs = append(convs, conv.Summary())
	}

	// Expired documents leave dangling index entries behind
	if len(stale) > 0 {
		_ = r.client.Raw().SRem(ctx, userIndexKey(userID), stale...).Err()
	}

	sortNewestFirst(convs)
	return convs, nil
}

func (r *RedisConversationRepository) Save(ctx context.Context, conv *models.Conversation) error {
	stored, err := r.Get(ctx, conv.ID)
	if err != nil {
		return err
	}
	stored.Title = conv.Title
	stored.LastMessage = conv.LastMessage
	stored.UpdatedAt = conv.UpdatedAt
	return r.put(ctx, stored)
}

func (r *RedisConversationRepository) AppendMessage(ctx context.Context, conv *models.Conversation, msg *models.Message) error {
	stored, err := r.Get(ctx, conv.ID)
	if err != nil {
		return err
	}
	stored.Messages = append(stored.Messages, *msg)
	stored.Title = conv.Title
	stored.LastMessage = conv.LastMessage
	stored.UpdatedAt = conv.UpdatedAt
	return r.put(ctx, stored)
}

func (r *RedisConversationRepository) GetMessages(ctx context.Context, conversationID string, limit, offset int) ([]models.Message, error) {
	conv, err := r.Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	return page(conv.Messages, limit, offset), nil
}

func (r *RedisConversationRepository) Delete(ctx context.Context, id string) error {
	conv, err := r.Get(ctx, id)
	if err == ErrNotFound {
		return nil
	}
	if err != nil {
		return err
	}
	if err := r.client.Raw().SRem(ctx, userIndexKey(conv.UserID), id).Err(); err != nil {
		return err
	}
	return r.client.Del(ctx, conversationKey(id))
}

func (r *RedisConversationRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx)
}
