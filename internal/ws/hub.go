package ws

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"corpflow-chat/backend/conversation/models"
	"corpflow-chat/backend/pkg/logger"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Subscribers only send control frames
	maxMessageSize = 4 * 1024

	sendBuffer = 256
)

// topic addresses the subscribers of one user's view of one conversation
type topic struct {
	userID         string
	conversationID string
}

type envelope struct {
	topic topic
	data  []byte
}

// Hub fans stored messages out to websocket subscribers
type Hub struct {
	clients    map[topic]map[*Client]bool
	broadcast  chan envelope
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	stopOnce   sync.Once
	mu         sync.RWMutex
	log        *logger.Logger
	upgrader   websocket.Upgrader
}

func NewHub(log *logger.Logger, allowedOrigins []string) *Hub {
	if log == nil {
		log = logger.GetGlobal()
	}
	h := &Hub{
		clients:    make(map[topic]map[*Client]bool),
		broadcast:  make(chan envelope, sendBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		log:        log.WithComponent("ws_hub"),
	}
	h.upgrader = websocket.Upgrader{
		CheckOrigin:      originChecker(allowedOrigins),
		HandshakeTimeout: 10 * time.Second,
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
	}
	return h
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(allowed) == 0 {
			return true
		}
		for _, o := range allowed {
			if o == "*" || o == origin {
				return true
			}
		}
		return false
	}
}

// Run processes registrations and broadcasts until Stop is called
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.topic] == nil {
				h.clients[client.topic] = make(map[*Client]bool)
			}
			h.clients[client.topic][client] = true
			h.mu.Unlock()
			h.log.Debug("subscriber registered", "client_id", client.ID,
				"user_id", client.topic.userID, "conversation_id", client.topic.conversationID)

		case client := <-h.unregister:
			h.mu.Lock()
			h.remove(client)
			h.mu.Unlock()

		case env := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients[env.topic] {
				select {
				case client.send <- env.data:
				default:
					h.remove(client)
					h.log.Warn("subscriber dropped, send buffer full", "client_id", client.ID)
				}
			}
			h.mu.Unlock()

		case <-h.done:
			h.mu.Lock()
			for _, clients := range h.clients {
				for client := range clients {
					h.remove(client)
				}
			}
			h.mu.Unlock()
			return
		}
	}
}

// remove must be called with h.mu held
func (h *Hub) remove(client *Client) {
	clients, ok := h.clients[client.topic]
	if !ok || !clients[client] {
		return
	}
	delete(clients, client)
	close(client.send)
	if len(clients) == 0 {
		delete(h.clients, client.topic)
	}
	h.log.Debug("subscriber unregistered", "client_id", client.ID)
}

// Stop terminates Run and closes every subscriber
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// Publish queues msg for every subscriber of (userID, conversationID)
func (h *Hub) Publish(userID, conversationID string, msg models.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.LogError(err, "failed to encode push frame", "message_id", msg.ID)
		return
	}
	select {
	case h.broadcast <- envelope{topic: topic{userID: userID, conversationID: conversationID}, data: data}:
	case <-h.done:
	}
}

// Subscribers reports how many connections listen on (userID, conversationID)
func (h *Hub) Subscribers(userID, conversationID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[topic{userID: userID, conversationID: conversationID}])
}
