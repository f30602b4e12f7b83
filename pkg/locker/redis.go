// Package locker provides a per-store poll lock so overlapping runner
// invocations skip a store instead of double-processing it.
package locker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLocker takes short leases with SET NX PX. Losing a lock race is not
// an error; the caller just skips the store for that cycle.
type RedisLocker struct {
	logger *slog.Logger
	client *redis.Client
	ttl    time.Duration
}

// NewRedisLocker connects to redisURL and verifies the connection.
func NewRedisLocker(ctx context.Context, logger *slog.Logger, redisURL string, ttl time.Duration) (*RedisLocker, error) {
	options, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(options)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisLocker{
		logger: logger.With("module", "locker"),
		client: client,
		ttl:    ttl,
	}, nil
}

// Acquire takes the store lock. It returns false when another runner holds
// it.
func (l *RedisLocker) Acquire(ctx context.Context, storeID string) (bool, error) {
	acquired, err := l.client.SetNX(ctx, lockKey(storeID), "1", l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire store lock: %w", err)
	}

	return acquired, nil
}

// Release drops the store lock. The TTL covers crashed holders.
func (l *RedisLocker) Release(ctx context.Context, storeID string) {
	if err := l.client.Del(ctx, lockKey(storeID)).Err(); err != nil {
		l.logger.Warn("Failed to release store lock", "store_id", storeID, "error", err)
	}
}

// Close shuts the redis connection down.
func (l *RedisLocker) Close() error {
	return l.client.Close()
}

func lockKey(storeID string) string {
	return "leadmill:poll-lock:" + storeID
}
