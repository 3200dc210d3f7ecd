package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"corpflow-chat/backend/conversation/models"
	"corpflow-chat/backend/pkg/errors"
	"corpflow-chat/backend/pkg/logger"
	"corpflow-chat/backend/pkg/middleware"
	"corpflow-chat/backend/pkg/resilience"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(url string) *Client {
	return New(Options{
		BaseURL: url,
		Timeout: time.Second,
		Breaker: resilience.CircuitBreakerConfig{
			Name:             "test",
			FailureThreshold: 2,
			SuccessThreshold: 1,
			RetryTimeout:     time.Hour,
		},
		Logger: logger.Discard(),
	})
}

func TestClientRoundTrips(t *testing.T) {
	var gotRequestID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRequestID = r.Header.Get(middleware.HeaderRequestID)
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/chat/conversations":
			assert.Equal(t, "u 1", r.URL.Query().Get("user_id"))
			_ = json.NewEncoder(w).Encode([]models.Conversation{{ID: "c1", UserID: "u 1"}})
		case r.Method == http.MethodGet && r.URL.Path == "/api/chat/conversations/c1":
			_ = json.NewEncoder(w).Encode(models.Conversation{ID: "c1", Messages: []models.Message{{ID: "m1"}}})
		case r.Method == http.MethodPost && r.URL.Path == "/api/chat/conversations":
			var req models.CreateConversationRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(models.Conversation{ID: "c2", UserID: req.UserID, AgentID: req.AgentID})
		case r.Method == http.MethodPost && r.URL.Path == "/api/chat/messages":
			var req models.SendMessageRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(models.Message{ID: "m2", ConversationID: req.ConversationID, Sender: models.SenderBot})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := newTestClient(srv.URL + "/api/chat/")
	ctx := context.Background()

	list, err := c.ListConversations(ctx, "u 1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.NotEmpty(t, gotRequestID)

	conv, err := c.GetConversation(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, conv.Messages, 1)

	created, err := c.CreateConversation(ctx, "u1", "a1")
	require.NoError(t, err)
	assert.Equal(t, "a1", created.AgentID)

	reply, err := c.SendMessage(middleware.WithRequestID(ctx, "req-7"), models.SendMessageRequest{ConversationID: "c2", Content: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "m2", reply.ID)
	assert.Equal(t, "req-7", gotRequestID)
}

func TestClientMapsErrorsAndTripsBreakerOnServerFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Path == "/conversations/missing" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"code":"CONVERSATION_NOT_FOUND","message":"conversation not found"}}`))
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	ctx := context.Background()

	// 4xx replies are network failures for the caller but never trip the breaker
	for i := 0; i < 3; i++ {
		_, err := c.GetConversation(ctx, "missing")
		require.Error(t, err)
		assert.True(t, errors.HasCode(err, errors.CodeNetworkFailure))
		assert.Contains(t, err.Error(), "CONVERSATION_NOT_FOUND")
	}
	assert.Equal(t, resilience.StateClosed, c.Breaker().GetState())

	for i := 0; i < 2; i++ {
		_, err := c.ListConversations(ctx, "u1")
		assert.True(t, errors.HasCode(err, errors.CodeNetworkFailure))
	}
	assert.Equal(t, resilience.StateOpen, c.Breaker().GetState())

	before := calls.Load()
	_, err := c.ListConversations(ctx, "u1")
	assert.True(t, errors.HasCode(err, errors.CodeCircuitOpen))
	assert.Equal(t, before, calls.Load())
}

func TestClientTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := newTestClient(url).CreateConversation(context.Background(), "u1", "a1")
	assert.True(t, errors.HasCode(err, errors.CodeNetworkFailure))
}
