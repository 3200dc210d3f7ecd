// Package session keeps a client's view of its conversations in sync with the
// chat backend: the conversation list, the active conversation's messages,
// optimistic sends and the realtime push channel.
//
// All state lives behind one mutex. Collaborator calls run outside of it, so
// an optimistic insert is visible before the request leaves, and every
// completion is applied as a single locked transition.
package session

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"corpflow-chat/backend/conversation/models"
	"corpflow-chat/backend/pkg/errors"
	"corpflow-chat/backend/pkg/logger"
	"corpflow-chat/backend/pkg/resilience"
)

// Options configures a Session
type Options struct {
	UserID string
	// AgentID is used by CreateConversation when no agent is given
	AgentID string
	Backend Backend
	// Dialer opens the push channel; nil runs without realtime updates
	Dialer Dialer
	// Backoff is the reconnect policy; the zero value means the defaults
	Backoff resilience.BackoffConfig
	Logger  *logger.Logger
	Now     func() time.Time
}

// Session is the single owner of the client-side chat state. Readers get
// copies through Snapshot; everything else is an intent.
type Session struct {
	userID  string
	agentID string
	backend Backend
	dialer  Dialer
	backoff resilience.BackoffConfig
	log     *logger.Logger
	now     func() time.Time

	mu            sync.Mutex
	closed        bool
	conversations []models.Conversation
	active        *models.Conversation
	entries       []Entry
	input         string
	inflight      int
	channel       ChannelState
	lastErr       error
	failed        []FailedSend
	// navSeq orders open/create requests; only the newest may activate
	navSeq uint64
	// generation changes with the active conversation; stale work checks it
	generation uint64
	lastTemp   int64
	runner     *runner
	version    uint64

	notifyMu        sync.Mutex
	delivered       uint64
	changeListeners []func(Snapshot)
	activeListeners []func(string)
}

func New(opts Options) *Session {
	log := opts.Logger
	if log == nil {
		log = logger.GetGlobal()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	policy := opts.Backoff
	if policy == (resilience.BackoffConfig{}) {
		policy = resilience.DefaultBackoffConfig()
	}
	return &Session{
		userID:  opts.UserID,
		agentID: opts.AgentID,
		backend: opts.Backend,
		dialer:  opts.Dialer,
		backoff: policy,
		log:     log.WithComponent("session").WithUserID(opts.UserID),
		now:     now,
	}
}

// OnChange registers fn to receive a snapshot after state transitions.
// Listeners run synchronously and must not call mutating Session methods.
func (s *Session) OnChange(fn func(Snapshot)) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	s.changeListeners = append(s.changeListeners, fn)
}

// OnActiveConversation registers fn to be told when open or create switches
// the active conversation.
func (s *Session) OnActiveConversation(fn func(id string)) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	s.activeListeners = append(s.activeListeners, fn)
}

// Snapshot returns a deep copy of the current state
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// ListConversations replaces the conversation list with the backend's. A
// failure is logged and recorded in LastError; the previous list stays.
func (s *Session) ListConversations(ctx context.Context) []models.Conversation {
	convs, err := s.backend.ListConversations(ctx, s.userID)

	s.mu.Lock()
	if s.closed {
		list := cloneConversations(s.conversations)
		s.mu.Unlock()
		return list
	}
	if err != nil {
		s.lastErr = err
		snap := s.commitLocked()
		list := cloneConversations(s.conversations)
		s.mu.Unlock()

		s.log.LogError(err, "failed to list conversations")
		s.emit(snap, "")
		return list
	}

	list := make([]models.Conversation, 0, len(convs)+1)
	// A conversation created after the backend built its reply is kept
	if s.active != nil && !containsConversation(convs, s.active.ID) {
		list = append(list, *s.active)
	}
	for _, c := range convs {
		list = append(list, c.Summary())
	}
	s.conversations = list
	s.lastErr = nil
	snap := s.commitLocked()
	out := cloneConversations(s.conversations)
	s.mu.Unlock()

	s.emit(snap, "")
	return out
}

// OpenConversation fetches id with its messages and makes it active.
// Opening the active conversation again refreshes it and keeps a live push
// channel. A reply overtaken by a newer open or create is dropped and
// ErrSuperseded is returned.
func (s *Session) OpenConversation(ctx context.Context, id string) (*models.Conversation, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	s.navSeq++
	seq := s.navSeq
	s.mu.Unlock()

	conv, err := s.backend.GetConversation(ctx, id)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	if seq != s.navSeq {
		s.mu.Unlock()
		s.log.Debug("discarding superseded open", "conversation_id", id)
		return nil, ErrSuperseded
	}
	if err != nil {
		s.lastErr = err
		snap := s.commitLocked()
		s.mu.Unlock()

		s.log.LogError(err, "failed to open conversation", "conversation_id", id)
		s.emit(snap, "")
		return nil, err
	}

	same := s.active != nil && s.active.ID == conv.ID
	entries := make([]Entry, 0, len(conv.Messages))
	for _, m := range conv.Messages {
		entries = append(entries, Entry{Message: m, Status: StatusConfirmed})
	}
	if same {
		entries = s.carryPendingLocked(entries)
	}

	summary := conv.Summary()
	s.active = &summary
	s.entries = entries
	s.lastErr = nil
	s.replaceListedLocked(summary)
	if !same {
		s.generation++
		s.startChannelLocked(summary.ID)
	} else if s.channelIdleLocked() {
		// Reopening revives a channel that ran out of retries
		s.startChannelLocked(summary.ID)
	}
	snap := s.commitLocked()
	s.mu.Unlock()

	activated := ""
	if !same {
		activated = summary.ID
	}
	s.emit(snap, activated)

	out := conv.Clone()
	return &out, nil
}

// SelectConversation activates a listed conversation straight away, with an
// empty transcript, then loads its messages.
func (s *Session) SelectConversation(ctx context.Context, id string) (*models.Conversation, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	if s.active == nil || s.active.ID != id {
		for _, c := range s.conversations {
			if c.ID != id {
				continue
			}
			listed := c
			s.active = &listed
			s.entries = nil
			s.generation++
			s.startChannelLocked(id)
			snap := s.commitLocked()
			s.mu.Unlock()

			s.emit(snap, id)
			return s.OpenConversation(ctx, id)
		}
	}
	s.mu.Unlock()
	return s.OpenConversation(ctx, id)
}

// CreateConversation asks the backend for a new conversation, puts it at the
// head of the list and activates it with an empty transcript. An empty
// agentID falls back to the session's agent. When a newer open or create
// overtook the request the conversation is still listed but not activated,
// and ErrSuperseded is returned with it.
func (s *Session) CreateConversation(ctx context.Context, agentID string) (*models.Conversation, error) {
	if agentID == "" {
		agentID = s.agentID
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	s.navSeq++
	seq := s.navSeq
	s.mu.Unlock()

	conv, err := s.backend.CreateConversation(ctx, s.userID, agentID)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	if err != nil {
		s.lastErr = err
		snap := s.commitLocked()
		s.mu.Unlock()

		s.log.LogError(err, "failed to create conversation", "agent_id", agentID)
		s.emit(snap, "")
		return nil, err
	}

	summary := conv.Summary()
	s.prependListedLocked(summary)
	s.lastErr = nil
	out := conv.Clone()

	if seq != s.navSeq {
		snap := s.commitLocked()
		s.mu.Unlock()

		s.log.Debug("created conversation not activated, superseded", "conversation_id", summary.ID)
		s.emit(snap, "")
		return &out, ErrSuperseded
	}

	s.active = &summary
	s.entries = nil
	s.generation++
	s.startChannelLocked(summary.ID)
	snap := s.commitLocked()
	s.mu.Unlock()

	s.emit(snap, summary.ID)
	return &out, nil
}

// SetInput stores the pending input text
func (s *Session) SetInput(text string) {
	s.mu.Lock()
	if s.closed || s.input == text {
		s.mu.Unlock()
		return
	}
	s.input = text
	snap := s.commitLocked()
	s.mu.Unlock()
	s.emit(snap, "")
}

// SubmitInput sends the pending input
func (s *Session) SubmitInput(ctx context.Context) error {
	s.mu.Lock()
	text := s.input
	s.mu.Unlock()
	return s.SendMessage(ctx, text)
}

// SendMessage appends text to the active conversation as a pending entry and
// submits it. On success the pending entry is swapped for the backend's reply
// in one transition; on failure it is removed and kept as a FailedSend.
// Blank text is ignored without any state change.
func (s *Session) SendMessage(ctx context.Context, text string) error {
	content := strings.TrimSpace(text)
	if content == "" {
		return nil
	}

	s.mu.Lock()
	msg, gen, err := s.beginSendLocked(content)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.input = ""
	snap := s.commitLocked()
	s.mu.Unlock()

	s.emit(snap, "")
	return s.submit(ctx, gen, msg)
}

// RetryFailed re-sends a failed message through the normal send path. Its
// conversation must be the active one.
func (s *Session) RetryFailed(ctx context.Context, id string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	idx := s.failedIndexLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		return errors.NewNotFoundError(errors.CodeFailedSendNotFound, "no failed send with that id").WithDetails(id)
	}
	failed := s.failed[idx]
	if s.active == nil || s.active.ID != failed.ConversationID {
		s.mu.Unlock()
		return ErrNoActiveConversation
	}

	msg, gen, err := s.beginSendLocked(failed.Content)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.failed = append(s.failed[:idx:idx], s.failed[idx+1:]...)
	snap := s.commitLocked()
	s.mu.Unlock()

	s.emit(snap, "")
	return s.submit(ctx, gen, msg)
}

// DismissFailed forgets a failed send. It reports whether one was removed.
func (s *Session) DismissFailed(id string) bool {
	s.mu.Lock()
	idx := s.failedIndexLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		return false
	}
	s.failed = append(s.failed[:idx:idx], s.failed[idx+1:]...)
	snap := s.commitLocked()
	s.mu.Unlock()

	s.emit(snap, "")
	return true
}

// ReceivePush merges a pushed message into the active conversation.
// Messages for another conversation and ids already shown are dropped. The
// server's copy of one of our own pending messages confirms it in place.
func (s *Session) ReceivePush(msg models.Message) {
	s.mu.Lock()
	if !s.receiveLocked(msg) {
		s.mu.Unlock()
		return
	}
	snap := s.commitLocked()
	s.mu.Unlock()
	s.emit(snap, "")
}

// Close stops the push channel. Later intents return ErrClosed.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.generation++
	r := s.runner
	s.runner = nil
	s.channel = ChannelDisconnected
	snap := s.commitLocked()
	s.mu.Unlock()

	if r != nil {
		r.stop()
	}
	s.emit(snap, "")
	return nil
}

func (s *Session) beginSendLocked(content string) (models.Message, uint64, error) {
	if s.closed {
		return models.Message{}, 0, ErrClosed
	}
	if s.active == nil {
		return models.Message{}, 0, ErrNoActiveConversation
	}
	msg := models.Message{
		ID:             s.nextTempIDLocked(),
		ConversationID: s.active.ID,
		Type:           models.MessageTypeText,
		Content:        content,
		Sender:         models.SenderUser,
		SenderID:       s.userID,
		CreatedAt:      s.now(),
	}
	s.entries = append(s.entries, Entry{Message: msg, Status: StatusPending})
	s.inflight++
	return msg, s.generation, nil
}

func (s *Session) submit(ctx context.Context, gen uint64, pending models.Message) error {
	reply, err := s.backend.SendMessage(ctx, models.SendMessageRequest{
		ConversationID: pending.ConversationID,
		Type:           pending.Type,
		Content:        pending.Content,
		Sender:         pending.Sender,
		SenderID:       pending.SenderID,
	})

	s.mu.Lock()
	s.inflight--
	stale := s.closed || gen != s.generation

	switch {
	case stale:
		// A closed session still shows its transcript; the optimistic entry must not linger
		s.removePendingLocked(pending.ID)
		s.log.Debug("discarding late send result", "conversation_id", pending.ConversationID)
	case err != nil:
		s.removePendingLocked(pending.ID)
		s.failed = append(s.failed, FailedSend{
			ID:             pending.ID,
			ConversationID: pending.ConversationID,
			Content:        pending.Content,
			Err:            err,
			At:             s.now(),
		})
	default:
		s.removePendingLocked(pending.ID)
		if reply != nil && !s.containsLocked(reply.ID) {
			s.entries = append(s.entries, Entry{Message: *reply, Status: StatusConfirmed})
			s.touchLocked(pending.ConversationID, *reply)
		}
	}
	snap := s.commitLocked()
	s.mu.Unlock()

	s.emit(snap, "")
	if err != nil {
		s.log.LogError(err, "failed to send message", "conversation_id", pending.ConversationID)
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// receiveLocked reports whether msg changed the state
func (s *Session) receiveLocked(msg models.Message) bool {
	if s.closed || s.active == nil {
		return false
	}
	if msg.ConversationID != "" && msg.ConversationID != s.active.ID {
		s.log.Debug("dropping push for inactive conversation", "conversation_id", msg.ConversationID)
		return false
	}
	if msg.ID != "" && s.containsLocked(msg.ID) {
		return false
	}

	if msg.Sender == models.SenderUser && msg.SenderID == s.userID {
		for i := range s.entries {
			e := &s.entries[i]
			if e.Status == StatusPending && e.Message.Content == msg.Content {
				e.Message = msg
				e.Status = StatusConfirmed
				s.touchLocked(s.active.ID, msg)
				return true
			}
		}
	}

	s.entries = append(s.entries, Entry{Message: msg, Status: StatusConfirmed})
	s.touchLocked(s.active.ID, msg)
	return true
}

// carryPendingLocked appends the entries still awaiting the backend to a
// refreshed transcript, unless the refresh already holds their server copy.
func (s *Session) carryPendingLocked(fresh []Entry) []Entry {
	known := make(map[string]bool, len(s.entries))
	for _, e := range s.entries {
		known[e.Message.ID] = true
	}
	claimed := make(map[int]bool)

	for _, e := range s.entries {
		if e.Status != StatusPending {
			continue
		}
		matched := false
		for i, f := range fresh {
			if claimed[i] || known[f.Message.ID] {
				continue
			}
			if f.Message.Sender == models.SenderUser && f.Message.SenderID == s.userID && f.Message.Content == e.Message.Content {
				claimed[i] = true
				matched = true
				break
			}
		}
		if !matched {
			fresh = append(fresh, e)
		}
	}
	return fresh
}

func (s *Session) removePendingLocked(id string) {
	for i, e := range s.entries {
		if e.Status == StatusPending && e.Message.ID == id {
			s.entries = append(s.entries[:i:i], s.entries[i+1:]...)
			return
		}
	}
}

func (s *Session) containsLocked(id string) bool {
	for _, e := range s.entries {
		if e.Message.ID == id {
			return true
		}
	}
	return false
}

// touchLocked moves a conversation's preview forward; updated_at never goes back
func (s *Session) touchLocked(conversationID string, msg models.Message) {
	apply := func(c *models.Conversation) {
		c.LastMessage = msg.Content
		if msg.CreatedAt.After(c.UpdatedAt) {
			c.UpdatedAt = msg.CreatedAt
		}
	}
	if s.active != nil && s.active.ID == conversationID {
		apply(s.active)
	}
	for i := range s.conversations {
		if s.conversations[i].ID == conversationID {
			apply(&s.conversations[i])
		}
	}
}

func (s *Session) replaceListedLocked(c models.Conversation) {
	for i := range s.conversations {
		if s.conversations[i].ID == c.ID {
			s.conversations[i] = c
			return
		}
	}
}

func (s *Session) prependListedLocked(c models.Conversation) {
	list := make([]models.Conversation, 0, len(s.conversations)+1)
	list = append(list, c)
	for _, existing := range s.conversations {
		if existing.ID != c.ID {
			list = append(list, existing)
		}
	}
	s.conversations = list
}

func (s *Session) failedIndexLocked(id string) int {
	for i, f := range s.failed {
		if f.ID == id {
			return i
		}
	}
	return -1
}

// nextTempIDLocked returns temp-<unix nanos>, bumped to stay unique
func (s *Session) nextTempIDLocked() string {
	n := s.now().UnixNano()
	if n <= s.lastTemp {
		n = s.lastTemp + 1
	}
	s.lastTemp = n
	return models.TempIDPrefix + strconv.FormatInt(n, 10)
}

func (s *Session) commitLocked() Snapshot {
	s.version++
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		UserID:        s.userID,
		Conversations: cloneConversations(s.conversations),
		Busy:          s.inflight > 0,
		Input:         s.input,
		Channel:       s.channel,
		LastError:     s.lastErr,
		version:       s.version,
	}
	if s.active != nil {
		active := *s.active
		snap.Active = &active
	}
	if len(s.entries) > 0 {
		snap.Entries = make([]Entry, len(s.entries))
		copy(snap.Entries, s.entries)
	}
	if len(s.failed) > 0 {
		snap.Failed = make([]FailedSend, len(s.failed))
		copy(snap.Failed, s.failed)
	}
	return snap
}

// emit hands snap to the listeners, skipping snapshots older than one
// already delivered, then announces activated when it is set.
func (s *Session) emit(snap Snapshot, activated string) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	if snap.version > s.delivered {
		s.delivered = snap.version
		for _, fn := range s.changeListeners {
			fn(snap)
		}
	}
	if activated != "" {
		for _, fn := range s.activeListeners {
			fn(activated)
		}
	}
}

func cloneConversations(in []models.Conversation) []models.Conversation {
	if len(in) == 0 {
		return nil
	}
	out := make([]models.Conversation, len(in))
	for i, c := range in {
		out[i] = c.Clone()
	}
	return out
}

func containsConversation(list []models.Conversation, id string) bool {
	for _, c := range list {
		if c.ID == id {
			return true
		}
	}
	return false
}
