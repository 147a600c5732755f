package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"homeservices/chatcore/internal/models"

	"github.com/redis/go-redis/v9"
)

// DefaultCacheKey is used when NewRedisCache gets an empty key.
const DefaultCacheKey = "chatcore:identity"

// RedisCache stores the identity as JSON under one key, without expiry.
type RedisCache struct {
	rdb *redis.Client
	key string
}

func NewRedisCache(rdb *redis.Client, key string) *RedisCache {
	if key == "" {
		key = DefaultCacheKey
	}
	return &RedisCache{rdb: rdb, key: key}
}

func (c *RedisCache) Load(ctx context.Context) (models.Identity, bool, error) {
	raw, err := c.rdb.Get(ctx, c.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.Identity{}, false, nil
	}
	if err != nil {
		return models.Identity{}, false, fmt.Errorf("redis get %s: %w", c.key, err)
	}
	var id models.Identity
	if err := json.Unmarshal(raw, &id); err != nil {
		return models.Identity{}, false, fmt.Errorf("decode cached identity: %w", err)
	}
	if id.UserID == "" || !id.Role.Valid() {
		return models.Identity{}, false, nil
	}
	return id, true, nil
}

func (c *RedisCache) Store(ctx context.Context, id models.Identity) error {
	raw, err := json.Marshal(id)
	if err != nil {
		return err
	}
	if err := c.rdb.Set(ctx, c.key, raw, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", c.key, err)
	}
	return nil
}
