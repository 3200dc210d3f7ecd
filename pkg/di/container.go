package di

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"corpflow-chat/backend/ai"
	"corpflow-chat/backend/conversation/models"
	"corpflow-chat/backend/conversation/repository"
	"corpflow-chat/backend/conversation/service"
	"corpflow-chat/backend/internal/ws"
	"corpflow-chat/backend/pkg/cache"
	"corpflow-chat/backend/pkg/config"
	"corpflow-chat/backend/pkg/health"
	"corpflow-chat/backend/pkg/logger"
	sharedredis "corpflow-chat/backend/shared/redis"

	"gorm.io/gorm"
)

// Store names accepted by STORE
const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

// Container holds all the dependencies for the chat server
type Container struct {
	Config              *config.Config
	Logger              *logger.Logger
	DB                  *gorm.DB
	Redis               *sharedredis.RedisClient
	Repository          repository.ConversationRepository
	Cache               *cache.Cache[models.Conversation]
	Hub                 *ws.Hub
	Responder           ai.Responder
	ConversationService *service.ConversationService
	Health              *health.Checker
	// Metrics is served on /metrics when set
	Metrics http.Handler
}

// New opens the configured conversation store and wires the services on top of it
func New(cfg *config.Config, log *logger.Logger) (*Container, error) {
	if log == nil {
		log = logger.GetGlobal()
	}

	var (
		repo  repository.ConversationRepository
		db    *gorm.DB
		redis *sharedredis.RedisClient
	)

	switch cfg.Server.Store {
	case StoreMemory, "":
		repo = repository.NewMemoryConversationRepository()

	case StoreRedis:
		redis = sharedredis.NewRedisClient(sharedredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := redis.Ping(ctx)
		cancel()
		if err != nil {
			_ = redis.Close()
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Addr, err)
		}
		repo = repository.NewRedisConversationRepository(redis, cfg.Redis.TTL)

	case StorePostgres:
		var err error
		db, err = config.NewDB(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		gormRepo := repository.NewGormConversationRepository(db)
		if err := gormRepo.Migrate(); err != nil {
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
		repo = gormRepo

	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Server.Store)
	}

	c := NewWithRepository(cfg, log, repo)
	c.DB = db
	c.Redis = redis
	if redis != nil {
		c.Health.RegisterRedisCheck(redis.Ping)
	}
	return c, nil
}

// NewWithRepository wires the services over an already opened repository
func NewWithRepository(cfg *config.Config, log *logger.Logger, repo repository.ConversationRepository) *Container {
	if log == nil {
		log = logger.GetGlobal()
	}

	var responder ai.Responder = ai.NewStaticResponder()
	if cfg.Services.AIServiceURL != "" {
		responder = ai.NewFallbackResponder(
			ai.NewHTTPResponder(cfg.Services.AIServiceURL, cfg.Services.AIAPIKey, cfg.Services.AITimeout),
			responder,
		)
	}

	var convCache *cache.Cache[models.Conversation]
	if cfg.Cache.Enabled {
		convCache = cache.New[models.Conversation](cache.Options{
			TTL:             cfg.Cache.TTL,
			CleanupInterval: cfg.Cache.PurgeWindow,
			MaxItems:        cfg.Cache.MaxSize,
		})
	}

	hub := ws.NewHub(log, cfg.Security.AllowedOrigins)

	svc := service.NewConversationService(service.Options{
		Repository: repo,
		Publisher:  hub,
		Responder:  responder,
		Cache:      convCache,
		Logger:     log,
	})

	checker := health.NewChecker(log, 30*time.Second)
	checker.RegisterStoreCheck(repo.Ping)
	if cfg.Services.AIServiceURL != "" {
		checker.RegisterAPICheck("ai", cfg.Services.AIServiceURL+"/health", &http.Client{Timeout: 5 * time.Second})
	}

	return &Container{
		Config:              cfg,
		Logger:              log,
		Repository:          repo,
		Cache:               convCache,
		Hub:                 hub,
		Responder:           responder,
		ConversationService: svc,
		Health:              checker,
	}
}

// Close releases the store connections and background workers
func (c *Container) Close() error {
	c.Hub.Stop()
	if c.Cache != nil {
		c.Cache.Close()
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			return err
		}
	}
	if c.DB != nil {
		sqlDB, err := c.DB.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}
	return nil
}
