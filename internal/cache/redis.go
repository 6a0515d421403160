package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// keyPrefix namespaces consultation entries in a shared Redis instance.
const keyPrefix = "counsel:consultation:"

// RedisBackend stores cache entries in Redis so multiple engine instances
// share one consultation cache. TTL enforcement is delegated to Redis.
type RedisBackend struct {
	client *redis.Client
}

// NewRedisBackend connects to Redis and verifies the connection.
func NewRedisBackend(ctx context.Context, addr, password string, db int) (*RedisBackend, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}

	log.Printf("[Cache] Connected to Redis at %s", addr)
	return &RedisBackend{client: client}, nil
}

// Get retrieves an entry. A missing or unreadable value is a miss.
func (r *RedisBackend) Get(ctx context.Context, key string) (*Entry, bool) {
	data, err := r.client.Get(ctx, keyPrefix+key).Bytes()
	if err != nil {
		return nil, false
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		log.Printf("[Cache] Dropping unreadable entry %s: %v", key, err)
		r.client.Del(ctx, keyPrefix+key)
		return nil, false
	}
	return &entry, true
}

// Set stores an entry with its remaining TTL.
func (r *RedisBackend) Set(ctx context.Context, key string, entry *Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}

	ttl := time.Until(entry.ExpiresAt)
	if ttl <= 0 {
		return nil
	}
	return r.client.Set(ctx, keyPrefix+key, data, ttl).Err()
}

// Delete removes an entry.
func (r *RedisBackend) Delete(ctx context.Context, key string) {
	r.client.Del(ctx, keyPrefix+key)
}

// Clear removes all consultation entries under the prefix.
func (r *RedisBackend) Clear(ctx context.Context) {
	iter := r.client.Scan(ctx, 0, keyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		r.client.Del(ctx, iter.Val())
	}
	if err := iter.Err(); err != nil {
		log.Printf("[Cache] Clear scan failed: %v", err)
	}
}

// Close releases the Redis connection.
func (r *RedisBackend) Close() error {
	return r.client.Close()
}
