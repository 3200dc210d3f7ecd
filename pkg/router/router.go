package router

import (
	"net/http"

	"corpflow-chat/backend/conversation/api"
	"corpflow-chat/backend/internal/ws"
	"corpflow-chat/backend/pkg/config"
	"corpflow-chat/backend/pkg/di"
	"corpflow-chat/backend/pkg/errors"
	"corpflow-chat/backend/pkg/logger"
	"corpflow-chat/backend/pkg/middleware"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// Router is the main router for the chat server
type Router struct {
	Engine      *gin.Engine
	Container   *di.Container
	Logger      *logger.Logger
	Hub         *ws.Hub
	Config      *config.Config
	rateLimiter *middleware.RateLimiter
}

// New creates a router and starts the websocket hub
func New(container *di.Container) *Router {
	cfg := container.Config

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()

	// Request ids first so every later middleware and log line sees them
	engine.Use(middleware.RequestIDMiddleware())
	engine.Use(logger.Middleware(container.Logger))
	engine.Use(errors.ErrorHandler())
	engine.Use(errors.RecoveryWithLogger())
	engine.Use(middleware.CORS(cfg.Security.AllowedOrigins))
	engine.Use(maxBodySize(cfg.Security.MaxBodySize))

	rateLimiter := middleware.NewRateLimiter(container.Logger, middleware.RateLimiterOptions{
		Limit: rate.Limit(cfg.Security.RateLimit),
		Burst: cfg.Security.RateLimitBurst,
	})

	go container.Hub.Run()

	return &Router{
		Engine:      engine,
		Container:   container,
		Logger:      container.Logger,
		Hub:         container.Hub,
		Config:      cfg,
		rateLimiter: rateLimiter,
	}
}

// SetupRoutes registers all application routes
func (r *Router) SetupRoutes() {
	r.Engine.GET("/health", r.Container.Health.Handler())
	r.Engine.GET("/api/health", r.Container.Health.Handler())
	if r.Container.Metrics != nil {
		r.Engine.GET("/metrics", gin.WrapH(r.Container.Metrics))
	}

	// The push channel is long-lived and exempt from request rate limits
	r.Engine.GET("/ws", ws.Handler(r.Hub))

	chat := r.Engine.Group("/api/chat")
	chat.Use(r.rateLimiter.Middleware())
	if r.Config.OpenAPISchemaPath != "" {
		r.AddOpenAPIValidation(chat, r.Config.OpenAPISchemaPath)
	}
	api.RegisterRoutes(chat, api.NewConversationHandler(r.Container.ConversationService))
}

// Close stops the router's background workers
func (r *Router) Close() {
	r.rateLimiter.Stop()
}

func maxBodySize(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limit > 0 && c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		}
		c.Next()
	}
}
