package seriescache

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces Redis keys.
const DefaultPrefix = "trendscope"

// clearBatch is the SCAN count hint and the DEL chunk size of Clear.
const clearBatch = 100

// Redis stores payloads in Redis with an optional TTL, so condensed series
// are shared between server replicas.
type Redis struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedis wraps a Redis client. An empty prefix uses DefaultPrefix; a zero ttl
// keeps entries until evicted by Redis.
func NewRedis(rdb redis.UniversalClient, prefix string, ttl time.Duration) *Redis {
	if prefix == "" {
		prefix = DefaultPrefix
	}

	return &Redis{rdb: rdb, prefix: prefix, ttl: ttl}
}

// DialRedis connects to the Redis server at addr and pings it.
func DialRedis(ctx context.Context, addr, prefix string, ttl time.Duration) (*Redis, error) {
	rdb := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: strings.Split(addr, ",")})

	err := rdb.Ping(ctx).Err()
	if err != nil {
		return nil, errors.Join(fmt.Errorf("redis ping %s: %w", addr, err), rdb.Close())
	}

	return NewRedis(rdb, prefix, ttl), nil
}

func (r *Redis) key(k string) string {
	return r.prefix + ":series:" + k
}

// Get returns the payload stored under key.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := r.rdb.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}

	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}

	return data, true, nil
}

// Set stores data under key.
func (r *Redis) Set(ctx context.Context, key string, data []byte) error {
	err := r.rdb.Set(ctx, r.key(key), data, r.ttl).Err()
	if err != nil {
		return fmt.Errorf("redis set: %w", err)
	}

	return nil
}

// Clear deletes every series key under the prefix. The scan completes before
// the first delete: deleting mid-scan can make the cursor skip keys.
func (r *Redis) Clear(ctx context.Context) error {
	var keys []string

	iter := r.rdb.Scan(ctx, 0, r.key("*"), clearBatch).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}

	err := iter.Err()
	if err != nil {
		return fmt.Errorf("redis scan: %w", err)
	}

	for batch := range slices.Chunk(keys, clearBatch) {
		err = r.rdb.Del(ctx, batch...).Err()
		if err != nil {
			return fmt.Errorf("redis del: %w", err)
		}
	}

	return nil
}

// Close closes the client.
func (r *Redis) Close() error {
	return r.rdb.Close()
}
