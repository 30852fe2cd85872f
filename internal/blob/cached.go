package blob

import (
	"context"
	"log/slog"

	"marginalia/api/internal/logging"
)

// ByteCache is the subset of the document cache the fetcher needs.
type ByteCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, keys ...string) error
}

// Cached wraps a Store with a read-through cache. Cache failures are logged
// and fall through to the underlying store.
type Cached struct {
	Store
	cache  ByteCache
	logger *slog.Logger
}

func NewCached(inner Store, cache ByteCache, logger *slog.Logger) *Cached {
	return &Cached{Store: inner, cache: cache, logger: logging.OrDefault(logger)}
}

func (c *Cached) Fetch(ctx context.Context, key string) ([]byte, error) {
	if data, ok, err := c.cache.Get(ctx, key); err != nil {
		c.logger.Warn("document cache read failed", "key", key, "error", err)
	} else if ok {
		return data, nil
	}

	data, err := c.Store.Fetch(ctx, key)
	if err != nil {
		return nil, err
	}
	if err := c.cache.Set(ctx, key, data); err != nil {
		c.logger.Warn("document cache write failed", "key", key, "error", err)
	}
	return data, nil
}

func (c *Cached) DeleteMany(ctx context.Context, keys []string) (int, map[string]error) {
	if err := c.cache.Delete(ctx, keys...); err != nil {
		c.logger.Warn("document cache invalidation failed", "keys", keys, "error", err)
	}
	return c.Store.DeleteMany(ctx, keys)
}
