package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache is a Redis-backed DirectoryCache, for gateways that run as
// part of a fleet sharing directory-resolution state across instances.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache dials addr and verifies connectivity with a PING before
// returning.
func NewRedisCache(addr string, ttl time.Duration) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("cache: connect to redis at %s: %w", addr, err)
	}

	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	return &RedisCache{client: client, ttl: ttl}, nil
}

func key(serial string) string {
	return fmt.Sprintf("camgate:resolution:%s", serial)
}

func (r *RedisCache) Get(ctx context.Context, serial string) (*Resolution, bool, error) {
	data, err := r.client.Get(ctx, key(serial)).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache: get %s: %w", serial, err)
	}

	var res Resolution
	if err := json.Unmarshal([]byte(data), &res); err != nil {
		return nil, false, fmt.Errorf("cache: unmarshal %s: %w", serial, err)
	}
	return &res, true, nil
}

func (r *RedisCache) Set(ctx context.Context, serial string, res *Resolution) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("cache: marshal %s: %w", serial, err)
	}
	if err := r.client.Set(ctx, key(serial), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("cache: set %s: %w", serial, err)
	}
	return nil
}

func (r *RedisCache) Close() error { return r.client.Close() }
