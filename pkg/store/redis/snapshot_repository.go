package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"floortrack/internal/model"

	"github.com/go-redis/redis/v8"
)

const (
	snapshotKey = "floortrack:snapshot:latest"
	snapshotTTL = 5 * time.Minute
)

// SnapshotRepository caches the latest floor snapshot in Redis so the
// snapshot query stays cheap and survives process restarts briefly.
type SnapshotRepository struct {
	redis *redis.Client
}

// NewSnapshotRepository creates a snapshot repository
func NewSnapshotRepository(redisClient *RedisClient) *SnapshotRepository {
	return &SnapshotRepository{
		redis: redisClient.GetClient(),
	}
}

// Save stores the latest snapshot
func (r *SnapshotRepository) Save(ctx context.Context, snapshot *model.Snapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	if err := r.redis.Set(ctx, snapshotKey, data, snapshotTTL).Err(); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// Get retrieves the latest cached snapshot, nil on cache miss
func (r *SnapshotRepository) Get(ctx context.Context) (*model.Snapshot, error) {
	data, err := r.redis.Get(ctx, snapshotKey).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}

	var snapshot model.Snapshot
	if err := json.Unmarshal([]byte(data), &snapshot); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return &snapshot, nil
}
