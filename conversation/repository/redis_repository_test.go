package repository

import (
	"context"
	"testing"
	"time"

	"corpflow-chat/backend/conversation/models"
	sharedredis "corpflow-chat/backend/shared/redis"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisRepository(t *testing.T) (*RedisConversationRepository, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := sharedredis.NewRedisClient(sharedredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisConversationRepository(client, 24*time.Hour), mr
}

func TestRedisRepositoryAppendAndPage(t *testing.T) {
	repo, _ := newTestRedisRepository(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	conv := &models.Conversation{ID: "c1", UserID: "u1", AgentID: "a1", CreatedAt: base, UpdatedAt: base}
	require.NoError(t, repo.Create(ctx, conv))

	for i, id := range []string{"m1", "m2", "m3"} {
		conv.LastMessage = id
		conv.UpdatedAt = base.Add(time.Duration(i+1) * time.Minute)
		require.NoError(t, repo.AppendMessage(ctx, conv, &models.Message{ID: id, ConversationID: "c1", Content: id}))
	}

	got, err := repo.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "m3", got.LastMessage)
	require.Len(t, got.Messages, 3)
	assert.Equal(t, "m1", got.Messages[0].ID)
	assert.Equal(t, "m3", got.Messages[2].ID)

	msgs, err := repo.GetMessages(ctx, "c1", 2, 1)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "m2", msgs[0].ID)

	conv.Title = "renamed"
	require.NoError(t, repo.Save(ctx, conv))
	got, err = repo.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Title)
	assert.Len(t, got.Messages, 3)
}

func TestRedisRepositoryListNewestFirst(t *testing.T) {
	repo, _ := newTestRedisRepository(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Create(ctx, &models.Conversation{ID: "old", UserID: "u1", UpdatedAt: base}))
	require.NoError(t, repo.Create(ctx, &models.Conversation{ID: "new", UserID: "u1", UpdatedAt: base.Add(time.Hour)}))
	require.NoError(t, repo.Create(ctx, &models.Conversation{ID: "other", UserID: "u2", UpdatedAt: base}))

	convs, err := repo.ListByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, convs, 2)
	assert.Equal(t, "new", convs[0].ID)
	assert.Equal(t, "old", convs[1].ID)
	assert.Nil(t, convs[0].Messages)
}

func TestRedisRepositoryActivityKeepsConversationListed(t *testing.T) {
	repo, mr := newTestRedisRepository(t)
	ctx := context.Background()

	conv := &models.Conversation{ID: "c1", UserID: "u1"}
	require.NoError(t, repo.Create(ctx, conv))

	for _, id := range []string{"m1", "m2"} {
		mr.FastForward(20 * time.Hour)
		require.NoError(t, repo.AppendMessage(ctx, conv, &models.Message{ID: id, ConversationID: "c1"}))
	}

	convs, err := repo.ListByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, "c1", convs[0].ID)

	// Idle past the TTL, both the document and the index go
	mr.FastForward(25 * time.Hour)
	_, err = repo.Get(ctx, "c1")
	assert.ErrorIs(t, err, ErrNotFound)
	convs, err = repo.ListByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, convs)
}

func TestRedisRepositoryDelete(t *testing.T) {
	repo, _ := newTestRedisRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &models.Conversation{ID: "c1", UserID: "u1"}))
	require.NoError(t, repo.Delete(ctx, "c1"))
	require.NoError(t, repo.Delete(ctx, "c1"))

	_, err := repo.Get(ctx, "c1")
	assert.ErrorIs(t, err, ErrNotFound)
	convs, err := repo.ListByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, convs)
	assert.ErrorIs(t, repo.Save(ctx, &models.Conversation{ID: "c1"}), ErrNotFound)
}
