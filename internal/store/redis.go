package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// compareAndDelete runs server-side so the check and the delete are atomic.
var compareAndDelete = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisStore implements KV on Redis. Sharing one Redis between instances makes
// pointers visible to every instance behind a load balancer.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedis connects using a redis:// URL.
func NewRedis(url string) (*RedisStore, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &RedisStore{rdb: redis.NewClient(opt)}, nil
}

// NewRedisFromClient wraps an existing client.
func NewRedisFromClient(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

// Client exposes the underlying client so the event bridge can share it.
func (r *RedisStore) Client() *redis.Client {
	return r.rdb
}

// Get returns the value stored under key.
func (r *RedisStore) Get(ctx context.Context, key string) (string, error) {
	v, err := r.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("redis get %s: %w", key, err)
	}
	return v, nil
}

// Set creates or overwrites key without expiry.
func (r *RedisStore) Set(ctx context.Context, key, value string) error {
	if err := r.rdb.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Delete removes key.
func (r *RedisStore) Delete(ctx context.Context, key string) error {
	if err := r.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

// CompareAndDelete removes key only while it still holds expected.
func (r *RedisStore) CompareAndDelete(ctx context.Context, key, expected string) (bool, error) {
	n, err := compareAndDelete.Run(ctx, r.rdb, []string{key}, expected).Int()
	if err != nil {
		return false, fmt.Errorf("redis compare-and-delete %s: %w", key, err)
	}
	return n > 0, nil
}

// Ping verifies connectivity.
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

// Close closes the client.
func (r *RedisStore) Close() error {
	return r.rdb.Close()
}
