package api

import (
	"context"
	"net/http"
	"strconv"

	"corpflow-chat/backend/conversation/models"
	"corpflow-chat/backend/pkg/errors"

	"github.com/gin-gonic/gin"
)

const defaultPageSize = 50

// ConversationService is what the HTTP layer needs from the service package
type ConversationService interface {
	Create(ctx context.Context, req models.CreateConversationRequest) (*models.Conversation, error)
	Get(ctx context.Context, id string) (*models.Conversation, error)
	List(ctx context.Context, userID string) ([]models.Conversation, error)
	Delete(ctx context.Context, id string) error
	UpdateTitle(ctx context.Context, id, title string) (*models.Conversation, error)
	SendMessage(ctx context.Context, req models.SendMessageRequest) (*models.Message, error)
	GetMessages(ctx context.Context, id string, limit, offset int) ([]models.Message, error)
}

type ConversationHandler struct {
	service ConversationService
}

func NewConversationHandler(service ConversationService) *ConversationHandler {
	return &ConversationHandler{service: service}
}

func bindError(err error) *errors.AppError {
	return errors.BadRequestWithDetails(errors.CodeInvalidRequest, "invalid request body", err.Error())
}

func (h *ConversationHandler) ListConversations(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		_ = c.Error(errors.NewBadRequestError(errors.CodeInvalidRequest, "user_id is required"))
		return
	}

	convs, err := h.service.List(c.Request.Context(), userID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, convs)
}

func (h *ConversationHandler) GetConversation(c *gin.Context) {
	conv, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

func (h *ConversationHandler) CreateConversation(c *gin.Context) {
	var req models.CreateConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(bindError(err))
		return
	}

	conv, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, conv)
}

func (h *ConversationHandler) DeleteConversation(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "deleted"})
}

func (h *ConversationHandler) UpdateTitle(c *gin.Context) {
	var req models.UpdateTitleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(bindError(err))
		return
	}

	conv, err := h.service.UpdateTitle(c.Request.Context(), c.Param("id"), req.Title)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

func (h *ConversationHandler) SendMessage(c *gin.Context) {
	var req models.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(bindError(err))
		return
	}

	msg, err := h.service.SendMessage(c.Request.Context(), req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

func (h *ConversationHandler) GetMessages(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultPageSize)))
	if err != nil || limit < 0 {
		_ = c.Error(errors.NewBadRequestError(errors.CodeInvalidRequest, "limit must be a non-negative integer"))
		return
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		_ = c.Error(errors.NewBadRequestError(errors.CodeInvalidRequest, "offset must be a non-negative integer"))
		return
	}

	msgs, err := h.service.GetMessages(c.Request.Context(), c.Param("id"), limit, offset)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, msgs)
}
