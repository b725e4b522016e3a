package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"healthdash/pkg/platform/sentinel"
	"healthdash/pkg/requestcontext"
)

const (
	redisKeyPrefix = "healthdash:session:"
	maxTxRetries   = 5
)

// ErrConflict is returned when concurrent updates kept invalidating the
// optimistic transaction.
var ErrConflict = errors.New("session update conflict")

// RedisStore shares sessions across replicas. Keys expire with the session.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	return s.get(ctx, s.client, id)
}

func (s *RedisStore) Create(ctx context.Context, sess *Session) error {
	raw, ttl, err := encode(ctx, sess)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, redisKeyPrefix+sess.ID, raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis session create: %w", err)
	}
	return nil
}

// Update runs fn under WATCH so concurrent writers to the same session retry
// instead of overwriting each other.
func (s *RedisStore) Update(ctx context.Context, id string, fn func(*Session) error) (*Session, error) {
	key := redisKeyPrefix + id
	var updated *Session
	txf := func(tx *redis.Tx) error {
		sess, err := s.get(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := fn(sess); err != nil {
			return err
		}
		raw, ttl, err := encode(ctx, sess)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, raw, ttl)
			return nil
		})
		if err == nil {
			updated = sess
		}
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			return updated, nil
		}
		if !errors.Is(err, redis.TxFailedErr) {
			return nil, err
		}
	}
	return nil, ErrConflict
}

// getter is satisfied by both the client and a WATCH transaction.
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *RedisStore) get(ctx context.Context, c getter, id string) (*Session, error) {
	raw, err := c.Get(ctx, redisKeyPrefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("redis session get: %w", err)
	}
	var sess Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &sess, nil
}

func encode(ctx context.Context, sess *Session) ([]byte, time.Duration, error) {
	ttl := sess.ExpiresAt.Sub(requestcontext.Now(ctx))
	if ttl <= 0 {
		return nil, 0, sentinel.ErrExpired
	}
	raw, err := json.Marshal(sess)
	if err != nil {
		return nil, 0, fmt.Errorf("encode session: %w", err)
	}
	return raw, ttl, nil
}
