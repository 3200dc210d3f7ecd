package client

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"corpflow-chat/backend/conversation/models"
	"corpflow-chat/backend/pkg/errors"
	"corpflow-chat/backend/pkg/logger"
	"corpflow-chat/backend/pkg/middleware"
	"corpflow-chat/backend/pkg/resilience"
)

// Options configures a Client
type Options struct {
	// BaseURL is the chat API root, e.g. http://localhost:8080/api/chat
	BaseURL    string
	Timeout    time.Duration
	Breaker    resilience.CircuitBreakerConfig
	HTTPClient *http.Client
	Logger     *logger.Logger
}

// Client talks to the chat backend's HTTP API. Every call goes through a
// circuit breaker; 4xx replies do not trip it.
type Client struct {
	baseURL string
	http    *http.Client
	breaker *resilience.CircuitBreaker
	log     *logger.Logger
}

func New(opts Options) *Client {
	log := opts.Logger
	if log == nil {
		log = logger.GetGlobal()
	}
	log = log.WithComponent("chat_client")

	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	breakerCfg := opts.Breaker
	if breakerCfg.Name == "" {
		breakerCfg = resilience.DefaultCircuitBreakerConfig("chat-api")
		// The HTTP client owns request timeouts
		breakerCfg.Timeout = 0
	}
	if breakerCfg.IsFailure == nil {
		breakerCfg.IsFailure = isBackendFailure
	}

	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		http:    httpClient,
		breaker: resilience.NewCircuitBreaker(breakerCfg, log),
		log:     log,
	}
}

// isBackendFailure counts transport errors and 5xx replies, not client mistakes or cancellation
func isBackendFailure(err error) bool {
	if stderrors.Is(err, context.Canceled) {
		return false
	}
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		return appErr.StatusCode >= http.StatusInternalServerError
	}
	return true
}

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) ListConversations(ctx context.Context, userID string) ([]models.Conversation, error) {
	var out []models.Conversation
	path := "/conversations?user_id=" + url.QueryEscape(userID)
	if err := c.do(ctx, "list conversations", http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []models.Conversation{}
	}
	return out, nil
}

func (c *Client) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	var out models.Conversation
	if err := c.do(ctx, "get conversation", http.MethodGet, "/conversations/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreateConversation(ctx context.Context, userID, agentID string) (*models.Conversation, error) {
	var out models.Conversation
	body := models.CreateConversationRequest{UserID: userID, AgentID: agentID}
	if err := c.do(ctx, "create conversation", http.MethodPost, "/conversations", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) SendMessage(ctx context.Context, req models.SendMessageRequest) (*models.Message, error) {
	var out models.Message
	if err := c.do(ctx, "send message", http.MethodPost, "/messages", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Breaker exposes the breaker state for diagnostics
func (c *Client) Breaker() *resilience.CircuitBreaker {
	return c.breaker
}

func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	ctx, requestID := middleware.EnsureRequestID(ctx)

	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.roundTrip(ctx, requestID, method, path, body, out)
	})
	if err == nil {
		return nil
	}
	if errors.HasCode(err, errors.CodeCircuitOpen) {
		return err
	}

	c.log.Debug("chat api call failed", "op", op, "request_id", requestID, "error", err.Error())
	return errors.NewNetworkFailure(op, err)
}

func (c *Client) roundTrip(ctx context.Context, requestID, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(middleware.HeaderRequestID, requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var envelope errorEnvelope
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		_ = json.Unmarshal(data, &envelope)
		return errors.FromStatus(resp.StatusCode, envelope.Error.Code, envelope.Error.Message)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
