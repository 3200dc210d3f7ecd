package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"corpflow-chat/backend/pkg/logger"
)

// HTTPResponder calls an external model service for replies
type HTTPResponder struct {
	client  *http.Client
	baseURL string
	apiKey  string
	log     *logger.Logger
}

type generateRequest struct {
	ConversationID string        `json:"conversation_id"`
	UserID         string        `json:"user_id"`
	AgentID        string        `json:"agent_id"`
	Message        string        `json:"message"`
	History        []historyItem `json:"history"`
}

type historyItem struct {
	Sender  string `json:"sender"`
	Content string `json:"content"`
}

type generateResponse struct {
	Response string `json:"response"`
	Error    string `json:"error,omitempty"`
}

func NewHTTPResponder(baseURL, apiKey string, timeout time.Duration) *HTTPResponder {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPResponder{
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		log:     logger.GetGlobal().WithComponent("ai"),
	}
}

func (r *HTTPResponder) Reply(ctx context.Context, req ReplyRequest) (string, error) {
	if req.Message == "" {
		return "", errors.New("missing message")
	}

	body := generateRequest{
		ConversationID: req.ConversationID,
		UserID:         req.UserID,
		AgentID:        req.AgentID,
		Message:        req.Message,
		History:        make([]historyItem, 0, len(req.History)),
	}
	for _, m := range req.History {
		body.History = append(body.History, historyItem{Sender: string(m.Sender), Content: m.Content})
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("encode generate request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/generate-response", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	httpResp, err := r.client.Do(httpReq)
	if err != nil {
		r.log.LogError(err, "generate request failed", "conversation_id", req.ConversationID)
		return "", err
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode >= http.StatusBadRequest {
		return "", fmt.Errorf("ai service returned status %d", httpResp.StatusCode)
	}

	var resp generateResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return "", fmt.Errorf("decode generate response: %w", err)
	}
	if resp.Error != "" {
		return "", errors.New(resp.Error)
	}
	return resp.Response, nil
}

// FallbackResponder answers with Fallback when Primary fails
type FallbackResponder struct {
	Primary  Responder
	Fallback Responder
	log      *logger.Logger
}

func NewFallbackResponder(primary, fallback Responder) *FallbackResponder {
	return &FallbackResponder{Primary: primary, Fallback: fallback, log: logger.GetGlobal().WithComponent("ai")}
}

func (f *FallbackResponder) Reply(ctx context.Context, req ReplyRequest) (string, error) {
	text, err := f.Primary.Reply(ctx, req)
	if err == nil && text != "" {
		return text, nil
	}
	if err != nil {
		f.log.Warn("primary responder failed, using fallback", "error", err.Error())
	}
	return f.Fallback.Reply(ctx, req)
}
