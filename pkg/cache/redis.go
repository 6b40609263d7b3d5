package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient creates a Redis client from a redis:// URL and verifies connectivity
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: invalid url: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 2 * time.Second
	opts.WriteTimeout = 2 * time.Second

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping failed: %w", err)
	}
	return client, nil
}

// HealthCheck pings the Redis client and returns nil if healthy.
func HealthCheck(ctx context.Context, client *redis.Client) error {
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return client.Ping(pingCtx).Err()
}

const callbackKeyPrefix = "payment:callback:"

// CallbackMarker caches payment transaction ids that were already processed.
// It is a fast path only; the database ledger stays the authority on duplicates.
type CallbackMarker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCallbackMarker creates a marker cache with the given key TTL
func NewCallbackMarker(client *redis.Client, ttl time.Duration) *CallbackMarker {
	return &CallbackMarker{client: client, ttl: ttl}
}

// Seen returns the cached outcome for transactionID, or "" when it is not cached
func (m *CallbackMarker) Seen(ctx context.Context, transactionID string) (string, error) {
	outcome, err := m.client.Get(ctx, callbackKeyPrefix+transactionID).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("redis: get marker: %w", err)
	}
	return outcome, nil
}

// Remember stores the outcome of a processed transaction; an existing marker is kept
func (m *CallbackMarker) Remember(ctx context.Context, transactionID, outcome string) error {
	if err := m.client.SetNX(ctx, callbackKeyPrefix+transactionID, outcome, m.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set marker: %w", err)
	}
	return nil
}
