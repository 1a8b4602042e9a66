package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alex-user-go/luxsearch/internal/search/types"
)

// RedisStore keeps search results in Redis as JSON so several server
// instances can share them.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore creates a store on an existing client.
func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

// DialRedis connects to addr and returns a store for it.
func DialRedis(addr, prefix string, ttl time.Duration) *RedisStore {
	return NewRedisStore(redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  time.Second,
		ReadTimeout:  500 * time.Millisecond,
		WriteTimeout: 500 * time.Millisecond,
	}), prefix, ttl)
}

// Get returns the stored result for key. A missing key is not an error.
func (s *RedisStore) Get(ctx context.Context, key string) (*types.Result, bool, error) {
	data, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis GET error: %w", err)
	}

	var result types.Result
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, false, fmt.Errorf("json.Unmarshal: %w", err)
	}
	return &result, true, nil
}

// Set stores result under key with the store's TTL.
func (s *RedisStore) Set(ctx context.Context, key string, result *types.Result) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("json.Marshal: %w", err)
	}
	if err := s.client.Set(ctx, s.prefix+key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis SET error: %w", err)
	}
	return nil
}

// Ping checks that Redis is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
