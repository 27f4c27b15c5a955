package api

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisDeduper stores claimed idempotency keys in Redis so all server
// instances reject the same retried request.
type RedisDeduper struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisDeduper creates a deduper using the provided Redis client and TTL.
func NewRedisDeduper(client *redis.Client, ttl time.Duration) *RedisDeduper {
	return &RedisDeduper{client: client, ttl: ttl}
}

func (r *RedisDeduper) key(workspaceID, key string) string {
	return fmt.Sprintf("idem:%s:%s", workspaceID, key)
}

// Add records the key if it does not already exist. It returns true when the
// key was newly added.
func (r *RedisDeduper) Add(ctx context.Context, workspaceID, key string) (bool, error) {
	return r.client.SetNX(ctx, r.key(workspaceID, key), 1, r.ttl).Result()
}

// Remove deletes a previously recorded key so the request may be retried
// after a failed write.
func (r *RedisDeduper) Remove(ctx context.Context, workspaceID, key string) error {
	return r.client.Del(ctx, r.key(workspaceID, key)).Err()
}
