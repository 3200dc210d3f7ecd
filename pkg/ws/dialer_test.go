package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"corpflow-chat/backend/conversation/models"
	"corpflow-chat/backend/pkg/errors"
	"corpflow-chat/backend/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

func pushServer(t *testing.T, handle func(r *http.Request, conn *websocket.Conn)) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		handle(r, conn)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func TestDialReceivesFramesAndSkipsMalformed(t *testing.T) {
	query := make(chan string, 1)
	url := pushServer(t, func(r *http.Request, conn *websocket.Conn) {
		query <- r.URL.RawQuery
		_ = conn.WriteJSON(models.Message{ID: "m1", Content: "first"})
		_ = conn.WriteMessage(websocket.TextMessage, []byte("{not json"))
		_ = conn.WriteJSON(models.Message{ID: "m2", Content: "second"})
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		time.Sleep(50 * time.Millisecond)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	conn, err := NewDialer(url, logger.Discard()).Dial(ctx, "u1", "c1")
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, "conversation_id=c1&user_id=u1", <-query)

	msg, err := conn.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "m1", msg.ID)

	msg, err = conn.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "m2", msg.ID)

	_, err = conn.Next(ctx)
	assert.True(t, errors.HasCode(err, errors.CodeChannelError))
}

func TestNextHonoursContext(t *testing.T) {
	release := make(chan struct{})
	url := pushServer(t, func(r *http.Request, conn *websocket.Conn) {
		<-release
	})
	defer close(release)

	conn, err := NewDialer(url, logger.Discard()).Dial(context.Background(), "u1", "c1")
	require.NoError(t, err)
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = conn.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, conn.Close())
	_, err = conn.Next(context.Background())
	assert.True(t, errors.HasCode(err, errors.CodeChannelError))
}

func TestDialFailureIsChannelError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := NewDialer("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", logger.Discard()).Dial(context.Background(), "u1", "c1")
	assert.True(t, errors.HasCode(err, errors.CodeChannelError))
}
