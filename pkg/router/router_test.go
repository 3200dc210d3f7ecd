package router

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"corpflow-chat/backend/conversation/models"
	"corpflow-chat/backend/conversation/repository"
	"corpflow-chat/backend/pkg/config"
	"corpflow-chat/backend/pkg/di"
	"corpflow-chat/backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T, mutate func(*config.Config)) *Router {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Load()
	cfg.Security.RateLimit = 1000
	cfg.Security.RateLimitBurst = 1000
	cfg.Services.AIServiceURL = ""
	cfg.OpenAPISchemaPath = ""
	if mutate != nil {
		mutate(cfg)
	}

	container := di.NewWithRepository(cfg, logger.Discard(), repository.NewMemoryConversationRepository())
	r := New(container)
	r.SetupRoutes()
	t.Cleanup(func() {
		r.Close()
		_ = container.Close()
	})
	return r
}

func TestWebSocketRoute(t *testing.T) {
	r := newTestRouter(t, nil)

	req, _ := http.NewRequest(http.MethodGet, "/ws", nil)
	w := httptest.NewRecorder()
	r.Engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "user_id and conversation_id are required")
}

func TestHealthRoute(t *testing.T) {
	r := newTestRouter(t, nil)
	r.Container.Health.RunChecks(context.Background())

	w := httptest.NewRecorder()
	r.Engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestSendPushesToSubscriber(t *testing.T) {
	r := newTestRouter(t, nil)
	srv := httptest.NewServer(r.Engine)
	defer srv.Close()

	body, _ := json.Marshal(models.CreateConversationRequest{UserID: "u1"})
	resp, err := http.Post(srv.URL+"/api/chat/conversations", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	var conv models.Conversation
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&conv))
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?user_id=u1&conversation_id=" + conv.ID
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return r.Hub.Subscribers("u1", conv.ID) == 1 }, time.Second, 10*time.Millisecond)

	body, _ = json.Marshal(models.SendMessageRequest{ConversationID: conv.ID, Content: "Hello", SenderID: "u1"})
	resp, err = http.Post(srv.URL+"/api/chat/messages", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var pushed []models.Message
	for i := 0; i < 2; i++ {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
		var msg models.Message
		require.NoError(t, conn.ReadJSON(&msg))
		pushed = append(pushed, msg)
	}
	assert.Equal(t, models.SenderUser, pushed[0].Sender)
	assert.Equal(t, "Hello", pushed[0].Content)
	assert.Equal(t, models.SenderBot, pushed[1].Sender)
}

func TestOpenAPIValidationOnChatRoutes(t *testing.T) {
	r := newTestRouter(t, func(cfg *config.Config) {
		cfg.OpenAPISchemaPath = "../../api/openapi.yaml"
	})

	req := httptest.NewRequest(http.MethodPost, "/api/chat/messages", strings.NewReader(`{"conversation_id":"c1","content":"hi","sender":"robot"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.Engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	r.Engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/docs/openapi.yaml", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
