package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"corpflow-chat/backend/conversation/models"
	"corpflow-chat/backend/pkg/errors"
	"corpflow-chat/backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHubServer(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hub := NewHub(logger.Discard(), nil)
	go hub.Run()

	r := gin.New()
	r.Use(errors.ErrorHandler())
	r.GET("/ws", Handler(hub))
	srv := httptest.NewServer(r)

	t.Cleanup(func() {
		hub.Stop()
		srv.Close()
	})
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHubDeliversToMatchingTopicOnly(t *testing.T) {
	hub, srv := newHubServer(t)

	target := dial(t, srv, "user_id=u1&conversation_id=c1")
	other := dial(t, srv, "user_id=u1&conversation_id=c2")
	require.Eventually(t, func() bool {
		return hub.Subscribers("u1", "c1") == 1 && hub.Subscribers("u1", "c2") == 1
	}, time.Second, 10*time.Millisecond)

	hub.Publish("u1", "c1", models.Message{ID: "m1", ConversationID: "c1", Content: "Hello", Sender: models.SenderUser})

	require.NoError(t, target.SetReadDeadline(time.Now().Add(time.Second)))
	_, data, err := target.ReadMessage()
	require.NoError(t, err)

	var msg models.Message
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, "m1", msg.ID)
	assert.Equal(t, "Hello", msg.Content)

	require.NoError(t, other.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, _, err = other.ReadMessage()
	assert.Error(t, err)
}

func TestHubUnregistersOnDisconnect(t *testing.T) {
	hub, srv := newHubServer(t)

	conn := dial(t, srv, "user_id=u1&conversation_id=c1")
	require.Eventually(t, func() bool { return hub.Subscribers("u1", "c1") == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return hub.Subscribers("u1", "c1") == 0 }, time.Second, 10*time.Millisecond)
}

func TestHubStopClosesSubscribers(t *testing.T) {
	hub, srv := newHubServer(t)

	conn := dial(t, srv, "user_id=u1&conversation_id=c1")
	require.Eventually(t, func() bool { return hub.Subscribers("u1", "c1") == 1 }, time.Second, 10*time.Millisecond)

	hub.Stop()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "unexpected error: %v", err)

	// Publishing after stop must not block
	hub.Publish("u1", "c1", models.Message{ID: "late"})
}

func TestServeWsRequiresTopic(t *testing.T) {
	_, srv := newHubServer(t)

	resp, err := http.Get(srv.URL + "/ws?user_id=u1")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
