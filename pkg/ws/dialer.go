package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"corpflow-chat/backend/conversation/models"
	"corpflow-chat/backend/pkg/errors"
	"corpflow-chat/backend/pkg/logger"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a control frame to the server
	writeWait = 10 * time.Second

	// The server pings every 54s; a silent connection is dead after this
	pongWait = 60 * time.Second

	maxMessageSize = 512 * 1024
)

// Dialer opens push subscriptions against the chat server's /ws endpoint
type Dialer struct {
	baseURL string
	dialer  *websocket.Dialer
	header  http.Header
	log     *logger.Logger
}

func NewDialer(baseURL string, log *logger.Logger) *Dialer {
	if log == nil {
		log = logger.GetGlobal()
	}
	return &Dialer{
		baseURL: baseURL,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
		header: http.Header{},
		log:    log.WithComponent("push_dialer"),
	}
}

// Dial subscribes to pushes for (userID, conversationID)
func (d *Dialer) Dial(ctx context.Context, userID, conversationID string) (*Conn, error) {
	u, err := url.Parse(d.baseURL)
	if err != nil {
		return nil, errors.NewChannelError(fmt.Errorf("invalid push url %q: %w", d.baseURL, err))
	}
	q := u.Query()
	q.Set("user_id", userID)
	q.Set("conversation_id", conversationID)
	u.RawQuery = q.Encode()

	conn, resp, err := d.dialer.DialContext(ctx, u.String(), d.header)
	if err != nil {
		if resp != nil {
			err = fmt.Errorf("%w (status %d)", err, resp.StatusCode)
		}
		return nil, errors.NewChannelError(err)
	}

	c := &Conn{
		conn:   conn,
		frames: make(chan frame, 16),
		done:   make(chan struct{}),
		log:    d.log.WithConversationID(conversationID),
	}
	go c.readLoop()
	return c, nil
}

type frame struct {
	msg models.Message
	err error
}

// Conn is one live push subscription. Next and Close may be called from different goroutines.
type Conn struct {
	conn      *websocket.Conn
	frames    chan frame
	done      chan struct{}
	closeOnce sync.Once
	log       *logger.Logger
}

func (c *Conn) readLoop() {
	defer close(c.frames)

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPingHandler(func(appData string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		err := c.conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeWait))
		if err == websocket.ErrCloseSent {
			return nil
		}
		return err
	})

	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case c.frames <- frame{err: err}:
			case <-c.done:
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		if kind != websocket.TextMessage {
			continue
		}

		var msg models.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.log.Warn("dropping malformed push frame", "error", err.Error())
			continue
		}

		select {
		case c.frames <- frame{msg: msg}:
		case <-c.done:
			return
		}
	}
}

// Next blocks until the next pushed message, ctx is done, or the connection fails.
// A normal close by the server is reported as a channel error too.
func (c *Conn) Next(ctx context.Context) (models.Message, error) {
	select {
	case <-ctx.Done():
		return models.Message{}, ctx.Err()
	case <-c.done:
		return models.Message{}, errors.NewChannelError(fmt.Errorf("push connection closed locally"))
	case f, ok := <-c.frames:
		if !ok {
			return models.Message{}, errors.NewChannelError(fmt.Errorf("push connection closed"))
		}
		if f.err != nil {
			return models.Message{}, errors.NewChannelError(f.err)
		}
		return f.msg, nil
	}
}

// Close sends a close frame and releases the connection
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
		err = c.conn.Close()
	})
	return err
}
