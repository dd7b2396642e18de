package registry

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisStore is a Store backed by Redis. The client is shared with the rest
// of the application; this wrapper only adds the Store contract on top.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore wraps an existing Redis client.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

// NewRedisStoreFromAddr dials a standalone Redis instance. Connection
// problems surface on first use, not here: the cache layer treats them as
// misses, so a dead Redis only costs upstream quota, never correctness.
func NewRedisStoreFromAddr(addr, password string, db int) *RedisStore {
	return &RedisStore{client: redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})}
}

// Get implements Store.
func (rs *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	payload, err := rs.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return payload, true, nil
}

// Set implements Store.
func (rs *RedisStore) Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	return rs.client.Set(ctx, key, payload, ttl).Err()
}

// Delete implements Store.
func (rs *RedisStore) Delete(ctx context.Context, key string) error {
	return rs.client.Del(ctx, key).Err()
}

// Close releases the underlying client. Only call this when the store owns
// its client (NewRedisStoreFromAddr).
func (rs *RedisStore) Close() error {
	return rs.client.Close()
}
