// Package cache implements core.Cache on Redis and in process memory.
package cache

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"

	"github.com/speddy/speddy/core"
)

type RedisCache struct {
	client *redis.Client
	prefix string
}

var _ core.Cache = (*RedisCache)(nil)

// NewRedisCache connects to the configured Redis server. Keys are namespaced with the app name.
func NewRedisCache(ctx context.Context, conf *core.Config) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     conf.Redis.Address,
		Password: conf.Redis.Password,
		DB:       conf.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "pinging redis")
	}
	return &RedisCache{client: client, prefix: conf.AppName + ":"}, nil
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrapf(err, "getting %s", key)
	}
	return val, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	return errors.Wrapf(c.client.Set(ctx, c.prefix+key, val, ttl).Err(), "setting %s", key)
}

func (c *RedisCache) Incr(ctx context.Context, key string) (int64, error) {
	n, err := c.client.Incr(ctx, c.prefix+key).Result()
	if err != nil {
		return 0, errors.Wrapf(err, "incrementing %s", key)
	}
	return n, nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
