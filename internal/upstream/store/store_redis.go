package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"healthdash/pkg/platform/sentinel"
)

const redisKeyPrefix = "healthdash:memo:"

// RedisStore shares memoized bodies across replicas. Expiry is left to Redis.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	body, err := s.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("redis memo get: %w", err)
	}
	return body, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, body []byte) error {
	if err := s.client.Set(ctx, redisKeyPrefix+key, body, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis memo set: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, redisKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("redis memo delete: %w", err)
	}
	return nil
}
