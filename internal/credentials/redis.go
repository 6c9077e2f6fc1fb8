package credentials

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "identity:token:"

// RedisCache fronts a TxStore. Redis is written inside the backing transaction, while the row is
// locked, and a failed Redis write rolls the row change back. Reads never fill the cache, so a
// cached token always matches the last committed row. Reads fall back to the backing store when
// Redis misses or is unavailable.
type RedisCache struct {
	next   TxStore
	client *redis.Client
	logger *slog.Logger
}

func NewRedisCache(next TxStore, client *redis.Client, logger *slog.Logger) *RedisCache {
	return &RedisCache{next: next, client: client, logger: logger}
}

func cacheKey(userID string) string {
	return keyPrefix + userID
}

func (c *RedisCache) Get(ctx context.Context, userID string) (string, error) {
	token, err := c.client.Get(ctx, cacheKey(userID)).Result()
	switch {
	case err == nil:
		return token, nil
	case errors.Is(err, redis.Nil):
	default:
		c.logger.Warn("token cache read failed", "user_id", userID, "error", err)
	}
	return c.next.Get(ctx, userID)
}

func (c *RedisCache) Put(ctx context.Context, userID, token string, expiresAt time.Time) error {
	applied := false
	err := c.next.PutThen(ctx, userID, token, expiresAt, func() error {
		ttl := time.Until(expiresAt)
		if ttl <= 0 {
			if err := c.Evict(ctx, userID); err != nil {
				return err
			}
		} else if err := c.client.Set(ctx, cacheKey(userID), token, ttl).Err(); err != nil {
			return fmt.Errorf("caching token: %w", err)
		}
		applied = true
		return nil
	})
	if err != nil && applied {
		// The commit failed after Redis took the new token.
		c.forget(ctx, userID)
	}
	return err
}

func (c *RedisCache) Delete(ctx context.Context, userID string) error {
	return c.next.DeleteThen(ctx, userID, func() error {
		return c.Evict(ctx, userID)
	})
}

func (c *RedisCache) Evict(ctx context.Context, userIDs ...string) error {
	if len(userIDs) == 0 {
		return nil
	}
	keys := make([]string, len(userIDs))
	for i, id := range userIDs {
		keys[i] = cacheKey(id)
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("evicting cached tokens: %w", err)
	}
	return nil
}

func (c *RedisCache) forget(ctx context.Context, userID string) {
	if err := c.Evict(ctx, userID); err != nil {
		c.logger.Error("failed to drop cached token after rollback", "user_id", userID, "error", err)
	}
}

var (
	_ TxStore = (*GormStore)(nil)
	_ Store   = (*RedisCache)(nil)
	_ Evicter = (*RedisCache)(nil)
)
