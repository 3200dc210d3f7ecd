package ws

import (
	"time"

	"corpflow-chat/backend/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Client is one websocket subscriber
type Client struct {
	ID    string
	conn  *websocket.Conn
	send  chan []byte
	hub   *Hub
	topic topic
}

// readPump drains control frames so pongs are processed; inbound data is ignored
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.hub.log.Warn("subscriber read failed", "client_id", c.ID, "error", err.Error())
			}
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			// One JSON message per frame
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ServeWs upgrades GET /ws?user_id=&conversation_id= into a push subscription
func ServeWs(hub *Hub, c *gin.Context) {
	userID := c.Query("user_id")
	conversationID := c.Query("conversation_id")
	if userID == "" || conversationID == "" {
		c.Error(errors.NewBadRequestError(errors.CodeInvalidRequest, "user_id and conversation_id are required"))
		c.Abort()
		return
	}

	conn, err := hub.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		hub.log.LogError(err, "websocket upgrade failed")
		return
	}

	client := &Client{
		ID:    uuid.New().String(),
		conn:  conn,
		send:  make(chan []byte, sendBuffer),
		hub:   hub,
		topic: topic{userID: userID, conversationID: conversationID},
	}

	select {
	case hub.register <- client:
	case <-hub.done:
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"), time.Now().Add(writeWait))
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// Handler adapts ServeWs to a gin route
func Handler(hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		ServeWs(hub, c)
	}
}
