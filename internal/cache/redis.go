package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/mrmoe28/permitscout/internal/telemetry"
)

// RedisStore is the shared Store for multi-instance deployments. Expiry is
// delegated to Redis key TTLs; capacity is governed by the server's
// maxmemory policy rather than client-side eviction.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore parses redisURL, verifies connectivity, and returns the store.
func NewRedisStore(ctx context.Context, redisURL, prefix string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis.ParseURL(%q): %w", redisURL, err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	if prefix == "" {
		prefix = "permitscout:cache"
	}
	return &RedisStore{client: client, prefix: prefix}, nil
}

// Get returns the payload for key if present and fresh.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	payload, err := s.client.Get(ctx, s.fullKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		telemetry.ObserveCacheEvent("redis", "miss")
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	telemetry.ObserveCacheEvent("redis", "hit")
	return payload, true, nil
}

// Set stores the payload under key with a quality-derived TTL.
func (s *RedisStore) Set(ctx context.Context, key string, payload []byte, quality float64, govHost bool) error {
	ttl := TTLFor(quality, govHost)
	if err := s.client.Set(ctx, s.fullKey(key), payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	telemetry.ObserveCacheEvent("redis", "set")
	return nil
}

// Delete removes key if present.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.fullKey(key)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) fullKey(key string) string {
	return s.prefix + ":" + key
}
