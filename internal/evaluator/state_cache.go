package evaluator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// ErrStateNotFound is returned when no engine snapshot is cached.
var ErrStateNotFound = errors.New("alert state not found")

// StateCache keeps the engine snapshot in Redis so a restart inside the TTL resumes
// cooldowns instead of re-alerting immediately.
type StateCache struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	logger *zap.Logger
}

// NewStateCache creates a cache storing under prefix+"alerts".
func NewStateCache(client *redis.Client, prefix string, ttl time.Duration, logger *zap.Logger) *StateCache {
	return &StateCache{
		client: client,
		key:    prefix + "alerts",
		ttl:    ttl,
		logger: logger,
	}
}

// Key returns the Redis key in use.
func (c *StateCache) Key() string {
	return c.key
}

// Save writes the snapshot with the configured TTL.
func (c *StateCache) Save(ctx context.Context, s Snapshot) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal alert state: %w", err)
	}
	if err := c.client.Set(ctx, c.key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set alert state: %w", err)
	}
	return nil
}

// Load reads the cached snapshot.
func (c *StateCache) Load(ctx context.Context) (Snapshot, error) {
	var s Snapshot
	val, err := c.client.Get(ctx, c.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return s, ErrStateNotFound
		}
		return s, fmt.Errorf("failed to get alert state: %w", err)
	}
	if err := json.Unmarshal([]byte(val), &s); err != nil {
		return s, fmt.Errorf("failed to unmarshal alert state: %w", err)
	}
	return s, nil
}

// Delete drops the cached snapshot.
func (c *StateCache) Delete(ctx context.Context) error {
	if err := c.client.Del(ctx, c.key).Err(); err != nil {
		return fmt.Errorf("failed to delete alert state: %w", err)
	}
	return nil
}

// Resume restores engine from the cache if a snapshot exists. Failures are logged
// and leave the engine untouched.
func (c *StateCache) Resume(ctx context.Context, engine *Engine) bool {
	s, err := c.Load(ctx)
	if err != nil {
		if !errors.Is(err, ErrStateNotFound) {
			c.logger.Warn("Failed to load cached alert state", zap.Error(err))
		}
		return false
	}
	engine.Restore(s, time.Now())
	c.logger.Info("Alert state resumed",
		zap.Time("taken_at", s.TakenAt),
	)
	return true
}
