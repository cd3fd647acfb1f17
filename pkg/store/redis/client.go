package redis

import (
	"context"
	"fmt"
	"time"

	"floortrack/pkg/config"

	"github.com/go-redis/redis/v8"
)

// RedisClient wraps the shared Redis connection used by the snapshot
// cache, the distributed job locks and the asynq retry queue.
type RedisClient struct {
	client *redis.Client
}

// NewRedisClient connects and verifies the Redis backend is reachable
func NewRedisClient(cfg *config.Config) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisClient{client: client}, nil
}

// GetClient retrieves the underlying Redis client
func (r *RedisClient) GetClient() *redis.Client {
	return r.client
}

// Close closes the Redis connection
func (r *RedisClient) Close() error {
	return r.client.Close()
}
