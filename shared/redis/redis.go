package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Options configures the shared redis client
type Options struct {
	Addr     string
	Password string
	DB       int
}

// RedisClient is a thin context-aware wrapper over go-redis
type RedisClient struct {
	client *redis.Client
}

// NewRedisClient connects lazily; the first command dials
func NewRedisClient(opts Options) *RedisClient {
	if opts.Addr == "" {
		opts.Addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	return &RedisClient{client: client}
}

// Raw exposes the underlying client for pipelines and set commands
func (r *RedisClient) Raw() *redis.Client {
	return r.client
}

func (r *RedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return r.client.Set(ctx, key, value, expiration).Err()
}

// Get returns redis.Nil when the key is missing
func (r *RedisClient) Get(ctx context.Context, key string) ([]byte, error) {
	return r.client.Get(ctx, key).Bytes()
}

func (r *RedisClient) Del(ctx context.Context, keys ...string) error {
	return r.client.Del(ctx, keys...).Err()
}

func (r *RedisClient) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisClient) Close() error {
	return r.client.Close()
}

// IsNil reports whether err is a missing-key reply
func IsNil(err error) bool {
	return err == redis.Nil
}
