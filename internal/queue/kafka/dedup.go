package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisDeduper claims dedup keys with SETNX and a TTL equal to the window.
type RedisDeduper struct {
	rdb    *redis.Client
	prefix string
	window time.Duration
}

func NewRedisDeduper(rdb *redis.Client, prefix string, window time.Duration) *RedisDeduper {
	if prefix == "" {
		prefix = "wagersync:dedup:"
	}
	return &RedisDeduper{rdb: rdb, prefix: prefix, window: window}
}

func (d *RedisDeduper) Claim(ctx context.Context, key string) (bool, error) {
	ok, err := d.rdb.SetNX(ctx, d.prefix+key, time.Now().UTC().Format(time.RFC3339Nano), d.window).Result()
	if err != nil {
		return false, fmt.Errorf("redis: claim %s: %w", key, err)
	}
	return ok, nil
}

// Release drops a claim so the key can be published again.
func (d *RedisDeduper) Release(ctx context.Context, key string) error {
	if err := d.rdb.Del(ctx, d.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis: release %s: %w", key, err)
	}
	return nil
}
