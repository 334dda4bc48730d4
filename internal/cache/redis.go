package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache stores JSON-encoded values in Redis under a key prefix so
// several processes can share one cache.
type RedisCache[T any] struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

var _ Cache[int] = (*RedisCache[int])(nil)

// NewRedisClient connects to url, accepting both redis:// URLs and bare
// host:port addresses.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	if !strings.Contains(url, "://") {
		url = "redis://" + url
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return client, nil
}

// NewRedisCache wraps client. The client is owned by the caller.
func NewRedisCache[T any](client *redis.Client, prefix string, ttl time.Duration) *RedisCache[T] {
	return &RedisCache[T]{client: client, prefix: prefix, ttl: ttl}
}

func (c *RedisCache[T]) key(k string) string {
	return c.prefix + k
}

func (c *RedisCache[T]) Get(ctx context.Context, key string) (T, bool) {
	var zero T
	data, err := c.client.Get(ctx, c.key(key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.WarnContext(ctx, "Redis cache read failed", "key", key, "error", err)
		}
		return zero, false
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		slog.WarnContext(ctx, "Dropping undecodable cache entry", "key", key, "error", err)
		c.Delete(ctx, key)
		return zero, false
	}
	return v, true
}

func (c *RedisCache[T]) Set(ctx context.Context, key string, data T) {
	b, err := json.Marshal(data)
	if err != nil {
		slog.WarnContext(ctx, "Cache value not encodable", "key", key, "error", err)
		return
	}
	if err := c.client.Set(ctx, c.key(key), b, c.ttl).Err(); err != nil {
		slog.WarnContext(ctx, "Redis cache write failed", "key", key, "error", err)
	}
}

func (c *RedisCache[T]) Delete(ctx context.Context, key string) {
	if err := c.client.Del(ctx, c.key(key)).Err(); err != nil {
		slog.WarnContext(ctx, "Redis cache delete failed", "key", key, "error", err)
	}
}
