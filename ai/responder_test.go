package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"corpflow-chat/backend/conversation/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticResponder(t *testing.T) {
	text, err := NewStaticResponder().Reply(context.Background(), ReplyRequest{Message: "Hello"})
	require.NoError(t, err)
	assert.Equal(t, ConfigureNotice, text)
}

func TestHTTPResponderPostsHistory(t *testing.T) {
	var got generateRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/generate-response", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(generateResponse{Response: "hi there"})
	}))
	defer server.Close()

	r := NewHTTPResponder(server.URL+"/", "secret", time.Second)
	text, err := r.Reply(context.Background(), ReplyRequest{
		ConversationID: "c1",
		Message:        "Hello",
		History:        []models.Message{{Sender: models.SenderUser, Content: "earlier"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "hi there", text)
	assert.Equal(t, "c1", got.ConversationID)
	require.Len(t, got.History, 1)
	assert.Equal(t, "user", got.History[0].Sender)
}

func TestHTTPResponderErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("fail") != "" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(generateResponse{Error: "model unavailable"})
	}))
	defer server.Close()

	r := NewHTTPResponder(server.URL, "", time.Second)
	_, err := r.Reply(context.Background(), ReplyRequest{Message: "Hello"})
	assert.EqualError(t, err, "model unavailable")

	_, err = r.Reply(context.Background(), ReplyRequest{})
	assert.Error(t, err)

	r.baseURL = server.URL + "/?fail=1&x="
	_, err = r.Reply(context.Background(), ReplyRequest{Message: "Hello"})
	assert.Error(t, err)
}

type failingResponder struct{}

func (failingResponder) Reply(ctx context.Context, req ReplyRequest) (string, error) {
	return "", errors.New("down")
}

func TestFallbackResponder(t *testing.T) {
	f := NewFallbackResponder(failingResponder{}, NewStaticResponder())
	text, err := f.Reply(context.Background(), ReplyRequest{Message: "Hello"})
	require.NoError(t, err)
	assert.Equal(t, ConfigureNotice, text)
}
