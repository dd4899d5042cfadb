package alert

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisDedup implements DedupCache on a shared Redis instance so the
// pre-insert check also covers matches seen by other workers.
type RedisDedup struct {
	client *redis.Client
}

// NewRedisDedup parses redisURL and verifies connectivity.
func NewRedisDedup(ctx context.Context, redisURL string) (*RedisDedup, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis.ParseURL(%q): %w", redisURL, err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &RedisDedup{client: client}, nil
}

// TrySet records the key if absent. Returns false when the key was already
// present, meaning an alert for this match fired inside the ttl window.
func (r *RedisDedup) TrySet(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return r.client.SetNX(ctx, key, 1, ttl).Result()
}

// Clear removes the key so a later pass can alert again.
func (r *RedisDedup) Clear(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

// Close releases the client.
func (r *RedisDedup) Close() error {
	return r.client.Close()
}
