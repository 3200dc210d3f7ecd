package service

import (
	"context"
	stderrors "errors"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"corpflow-chat/backend/ai"
	"corpflow-chat/backend/conversation/models"
	"corpflow-chat/backend/conversation/repository"
	"corpflow-chat/backend/pkg/cache"
	"corpflow-chat/backend/pkg/errors"
	"corpflow-chat/backend/pkg/logger"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// titleLimit is the rune length a first message is cut to when it becomes the title
const titleLimit = 50

// Publisher delivers stored messages to realtime subscribers of a conversation
type Publisher interface {
	Publish(userID, conversationID string, msg models.Message)
}

// Options configures a ConversationService
type Options struct {
	Repository repository.ConversationRepository
	Publisher  Publisher
	Responder  ai.Responder
	Cache      *cache.Cache[models.Conversation]
	Logger     *logger.Logger
	// Now and NewID are replaceable for tests
	Now   func() time.Time
	NewID func() string
}

// ConversationService owns conversation lifecycle and message delivery
type ConversationService struct {
	repo      repository.ConversationRepository
	publisher Publisher
	responder ai.Responder
	cache     *cache.Cache[models.Conversation]
	log       *logger.Logger
	now       func() time.Time
	newID     func() string

	sent  metric.Int64Counter
	locks sync.Map // conversation id -> *sync.Mutex
}

func NewConversationService(opts Options) *ConversationService {
	s := &ConversationService{
		repo:      opts.Repository,
		publisher: opts.Publisher,
		responder: opts.Responder,
		cache:     opts.Cache,
		log:       opts.Logger,
		now:       opts.Now,
		newID:     opts.NewID,
	}
	if s.responder == nil {
		s.responder = ai.NewStaticResponder()
	}
	if s.log == nil {
		s.log = logger.GetGlobal()
	}
	s.log = s.log.WithComponent("conversation_service")
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = func() string { return uuid.New().String() }
	}

	counter, err := otel.Meter("corpflow-chat/conversation").Int64Counter(
		"chat_messages_sent_total",
		metric.WithDescription("Messages stored by the conversation service"),
	)
	if err != nil {
		s.log.LogError(err, "failed to create message counter")
	}
	s.sent = counter
	return s
}

func (s *ConversationService) lock(id string) func() {
	v, _ := s.locks.LoadOrStore(id, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// Create starts an empty, untitled conversation
func (s *ConversationService) Create(ctx context.Context, req models.CreateConversationRequest) (*models.Conversation, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return nil, errors.NewBadRequestError(errors.CodeInvalidRequest, "user_id is required")
	}

	now := s.now()
	conv := &models.Conversation{
		ID:        s.newID(),
		UserID:    req.UserID,
		AgentID:   req.AgentID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, conv); err != nil {
		return nil, errors.NewInternalServerError(errors.CodeInternal, "failed to create conversation").Wrap(err)
	}
	s.remember(conv)

	s.log.Info("conversation created", "conversation_id", conv.ID, "user_id", conv.UserID)
	return conv, nil
}

// Get returns the conversation with its full message sequence
func (s *ConversationService) Get(ctx context.Context, id string) (*models.Conversation, error) {
	if s.cache != nil {
		if conv, ok := s.cache.Get(id); ok {
			out := conv.Clone()
			return &out, nil
		}
	}

	conv, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, s.repoError(err, id)
	}
	s.remember(conv)
	return conv, nil
}

// List returns the user's conversations without message bodies, newest first
func (s *ConversationService) List(ctx context.Context, userID string) ([]models.Conversation, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, errors.NewBadRequestError(errors.CodeInvalidRequest, "user_id is required")
	}
	convs, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, errors.NewInternalServerError(errors.CodeInternal, "failed to list conversations").Wrap(err)
	}
	return convs, nil
}

func (s *ConversationService) Delete(ctx context.Context, id string) error {
	defer s.lock(id)()

	if err := s.repo.Delete(ctx, id); err != nil {
		return errors.NewInternalServerError(errors.CodeInternal, "failed to delete conversation").Wrap(err)
	}
	if s.cache != nil {
		s.cache.Delete(id)
	}
	return nil
}

func (s *ConversationService) UpdateTitle(ctx context.Context, id, title string) (*models.Conversation, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, errors.NewBadRequestError(errors.CodeInvalidRequest, "title is required")
	}

	defer s.lock(id)()

	conv, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	conv.Title = title
	if err := s.repo.Save(ctx, conv); err != nil {
		return nil, s.repoError(err, id)
	}
	s.remember(conv)
	return conv, nil
}

// SendMessage stores a message, pushes it to subscribers and, for user
// messages, stores and pushes the bot's reply. The reply is returned for
// user messages; otherwise the stored message itself.
func (s *ConversationService) SendMessage(ctx context.Context, req models.SendMessageRequest) (*models.Message, error) {
	req.Normalize()
	if strings.TrimSpace(req.Content) == "" {
		return nil, errors.NewBadRequestError(errors.CodeInvalidRequest, "content is required")
	}
	if !req.Sender.Valid() {
		return nil, errors.BadRequestWithDetails(errors.CodeInvalidRequest, "unknown sender", map[string]string{"sender": string(req.Sender)})
	}

	stored, conv, err := s.append(ctx, req)
	if err != nil {
		return nil, err
	}
	s.publish(conv, *stored)

	if req.Sender != models.SenderUser {
		return stored, nil
	}

	text, err := s.responder.Reply(ctx, ai.ReplyRequest{
		ConversationID: conv.ID,
		UserID:         conv.UserID,
		AgentID:        conv.AgentID,
		Message:        req.Content,
		History:        conv.Messages,
	})
	if err != nil {
		s.log.LogError(err, "responder failed", "conversation_id", conv.ID)
		text = ai.ConfigureNotice
	}

	reply, conv, err := s.append(ctx, models.SendMessageRequest{
		ConversationID: conv.ID,
		Type:           models.MessageTypeText,
		Content:        text,
		Sender:         models.SenderBot,
		SenderID:       conv.AgentID,
	})
	if err != nil {
		return nil, err
	}
	s.publish(conv, *reply)
	return reply, nil
}

// append stores one message and the metadata it changes under the conversation lock
func (s *ConversationService) append(ctx context.Context, req models.SendMessageRequest) (*models.Message, *models.Conversation, error) {
	defer s.lock(req.ConversationID)()

	conv, err := s.Get(ctx, req.ConversationID)
	if err != nil {
		return nil, nil, err
	}

	// Postgres keeps microseconds; each message lands strictly after the last
	now := s.now().Truncate(time.Microsecond)
	if !now.After(conv.UpdatedAt) {
		now = conv.UpdatedAt.Truncate(time.Microsecond).Add(time.Microsecond)
	}
	msg := &models.Message{
		ID:             s.newID(),
		ConversationID: conv.ID,
		Type:           req.Type,
		Content:        req.Content,
		Sender:         req.Sender,
		SenderID:       req.SenderID,
		CreatedAt:      now,
	}

	if conv.Title == "" && req.Sender == models.SenderUser && !hasUserMessage(conv.Messages) {
		conv.Title = truncateTitle(req.Content)
	}
	conv.Messages = append(conv.Messages, *msg)
	conv.LastMessage = req.Content
	conv.UpdatedAt = now

	if err := s.repo.AppendMessage(ctx, conv, msg); err != nil {
		return nil, nil, s.repoError(err, conv.ID)
	}
	s.remember(conv)

	if s.sent != nil {
		s.sent.Add(ctx, 1, metric.WithAttributes(attribute.String("sender", string(msg.Sender))))
	}
	return msg, conv, nil
}

// GetMessages pages through a conversation's messages in chronological order
func (s *ConversationService) GetMessages(ctx context.Context, id string, limit, offset int) ([]models.Message, error) {
	msgs, err := s.repo.GetMessages(ctx, id, limit, offset)
	if err != nil {
		return nil, s.repoError(err, id)
	}
	return msgs, nil
}

func (s *ConversationService) publish(conv *models.Conversation, msg models.Message) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(conv.UserID, conv.ID, msg)
}

func (s *ConversationService) remember(conv *models.Conversation) {
	if s.cache != nil {
		s.cache.Set(conv.ID, conv.Clone())
	}
}

func (s *ConversationService) repoError(err error, id string) error {
	if stderrors.Is(err, repository.ErrNotFound) {
		return errors.NotFoundWithDetails(errors.CodeNotFound, "conversation not found", map[string]string{"id": id})
	}
	return errors.NewInternalServerError(errors.CodeInternal, "conversation store failure").Wrap(err)
}

func hasUserMessage(msgs []models.Message) bool {
	for _, m := range msgs {
		if m.Sender == models.SenderUser {
			return true
		}
	}
	return false
}

func truncateTitle(content string) string {
	content = strings.TrimSpace(content)
	if utf8.RuneCountInString(content) <= titleLimit {
		return content
	}
	return string([]rune(content)[:titleLimit]) + "..."
}
