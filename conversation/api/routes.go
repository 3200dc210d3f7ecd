package api

import "github.com/gin-gonic/gin"

// RegisterRoutes mounts the chat API under group (normally /api/chat)
func RegisterRoutes(group *gin.RouterGroup, handler *ConversationHandler) {
	conversations := group.Group("/conversations")
	{
		conversations.GET("", handler.ListConversations)
		conversations.POST("", handler.CreateConversation)
		conversations.GET("/:id", handler.GetConversation)
		conversations.DELETE("/:id", handler.DeleteConversation)
		conversations.PUT("/:id/title", handler.UpdateTitle)
		conversations.GET("/:id/messages", handler.GetMessages)
	}

	group.POST("/messages", handler.SendMessage)
}
