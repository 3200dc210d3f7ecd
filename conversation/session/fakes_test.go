package session

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"corpflow-chat/backend/conversation/models"
	"corpflow-chat/backend/pkg/errors"
)

var errFakeNetwork = errors.NewNetworkFailure("fake", stderrors.New("connection refused"))

type fakeBackend struct {
	mu            sync.Mutex
	conversations map[string]*models.Conversation
	order         []string
	seq           int
	now           time.Time

	listErr   error
	getErr    error
	createErr error
	sendErr   error

	// Hooks run in the caller's goroutine before the fake answers
	onGet  func(id string)
	onSend func(req models.SendMessageRequest)

	listCalls atomic.Int32
	sendCalls atomic.Int32
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		conversations: make(map[string]*models.Conversation),
		now:           time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (b *fakeBackend) nextTime() time.Time {
	b.seq++
	return b.now.Add(time.Duration(b.seq) * time.Second)
}

func (b *fakeBackend) add(id string, msgs ...models.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	at := b.nextTime()
	b.conversations[id] = &models.Conversation{
		ID:        id,
		UserID:    "u1",
		AgentID:   "agent",
		CreatedAt: at,
		UpdatedAt: at,
		Messages:  msgs,
	}
	b.order = append([]string{id}, b.order...)
}

func (b *fakeBackend) ListConversations(ctx context.Context, userID string) ([]models.Conversation, error) {
	b.listCalls.Add(1)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.listErr != nil {
		return nil, b.listErr
	}
	out := make([]models.Conversation, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, b.conversations[id].Summary())
	}
	return out, nil
}

func (b *fakeBackend) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	if b.onGet != nil {
		b.onGet(id)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.getErr != nil {
		return nil, b.getErr
	}
	c, ok := b.conversations[id]
	if !ok {
		return nil, errors.NewNotFoundError(errors.CodeNotFound, "conversation not found")
	}
	out := c.Clone()
	return &out, nil
}

func (b *fakeBackend) CreateConversation(ctx context.Context, userID, agentID string) (*models.Conversation, error) {
	b.mu.Lock()
	if b.createErr != nil {
		b.mu.Unlock()
		return nil, b.createErr
	}
	id := fmt.Sprintf("conv-new-%d", len(b.order)+1)
	b.mu.Unlock()

	b.add(id)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.conversations[id].AgentID = agentID
	out := b.conversations[id].Clone()
	return &out, nil
}

// SendMessage stores the user message and answers with a bot reply, like the server
func (b *fakeBackend) SendMessage(ctx context.Context, req models.SendMessageRequest) (*models.Message, error) {
	b.sendCalls.Add(1)
	if b.onSend != nil {
		b.onSend(req)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sendErr != nil {
		return nil, b.sendErr
	}
	c, ok := b.conversations[req.ConversationID]
	if !ok {
		return nil, errors.NewNotFoundError(errors.CodeNotFound, "conversation not found")
	}
	user := models.Message{
		ID:             fmt.Sprintf("msg-%d", b.seq+1),
		ConversationID: c.ID,
		Type:           req.Type,
		Content:        req.Content,
		Sender:         req.Sender,
		SenderID:       req.SenderID,
		CreatedAt:      b.nextTime(),
	}
	reply := models.Message{
		ID:             fmt.Sprintf("msg-%d", b.seq+1),
		ConversationID: c.ID,
		Type:           models.MessageTypeText,
		Content:        "Configure API key in Settings to start chatting!",
		Sender:         models.SenderBot,
		SenderID:       c.AgentID,
		CreatedAt:      b.nextTime(),
	}
	c.Messages = append(c.Messages, user, reply)
	return &reply, nil
}

// storedUserMessage returns the last user message the fake persisted in id
func (b *fakeBackend) storedUserMessage(id string) models.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	msgs := b.conversations[id].Messages
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Sender == models.SenderUser {
			return msgs[i]
		}
	}
	return models.Message{}
}

var errFakeChannelClosed = stderrors.New("fake channel closed")

type fakeChannel struct {
	conversationID string
	frames         chan models.Message
	closed         chan struct{}
	once           sync.Once
	dialer         *fakeDialer
}

func (c *fakeChannel) Next(ctx context.Context) (models.Message, error) {
	select {
	case m := <-c.frames:
		return m, nil
	case <-c.closed:
		return models.Message{}, errFakeChannelClosed
	case <-ctx.Done():
		return models.Message{}, ctx.Err()
	}
}

func (c *fakeChannel) Close() error {
	c.once.Do(func() {
		close(c.closed)
		c.dialer.open.Add(-1)
	})
	return nil
}

type fakeDialer struct {
	mu       sync.Mutex
	channels []*fakeChannel
	fail     atomic.Bool

	dials   atomic.Int32
	open    atomic.Int32
	maxOpen atomic.Int32
}

func (d *fakeDialer) Dial(ctx context.Context, userID, conversationID string) (Channel, error) {
	d.dials.Add(1)
	if d.fail.Load() {
		return nil, errors.NewChannelError(stderrors.New("dial refused"))
	}
	n := d.open.Add(1)
	for {
		peak := d.maxOpen.Load()
		if n <= peak || d.maxOpen.CompareAndSwap(peak, n) {
			break
		}
	}
	ch := &fakeChannel{
		conversationID: conversationID,
		frames:         make(chan models.Message, 16),
		closed:         make(chan struct{}),
		dialer:         d,
	}
	d.mu.Lock()
	d.channels = append(d.channels, ch)
	d.mu.Unlock()
	return ch, nil
}

func (d *fakeDialer) last() *fakeChannel {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.channels) == 0 {
		return nil
	}
	return d.channels[len(d.channels)-1]
}
