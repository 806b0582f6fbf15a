// Package cache stores AI job results with an expiry.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mr1hm/go-hazard-watch/internal/config"
	"github.com/mr1hm/go-hazard-watch/internal/repository"
)

type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// New picks the backend named in cfg. The returned close func releases any
// connection the cache opened itself.
func New(ctx context.Context, cfg config.CacheConfig, store repository.CacheRepository) (Cache, func() error, error) {
	switch cfg.Backend {
	case "redis":
		client, err := NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, nil, err
		}
		return NewRedisCache(client, "hazard-watch:"), client.Close, nil
	default:
		return NewSQLiteCache(store), func() error { return nil }, nil
	}
}

// GetJSON decodes a cached value. A value that no longer decodes counts as a miss.
func GetJSON[T any](ctx context.Context, c Cache, key string) (T, bool, error) {
	var v T
	raw, ok, err := c.Get(ctx, key)
	if err != nil || !ok {
		return v, false, err
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, false, nil
	}
	return v, true, nil
}

func SetJSON[T any](ctx context.Context, c Cache, key string, v T, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s for cache: %w", key, err)
	}
	return c.Set(ctx, key, raw, ttl)
}

type SQLiteCache struct {
	store repository.CacheRepository
}

func NewSQLiteCache(store repository.CacheRepository) *SQLiteCache {
	return &SQLiteCache{store: store}
}

func (c *SQLiteCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return c.store.GetCache(ctx, key)
}

func (c *SQLiteCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.store.SetCache(ctx, key, value, ttl)
}
