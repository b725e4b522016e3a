//go:build integration

package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"healthdash/pkg/platform/sentinel"
	"healthdash/pkg/requestcontext"
	"healthdash/pkg/testutil/containers"
)

// =============================================================================
// Redis Session Store Integration Suite
// =============================================================================
// Justification: key expiry and WATCH based updates only behave as intended
// against a real Redis.

type RedisStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *RedisStore
	ctx   context.Context
}

func TestRedisStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
	s.store = NewRedisStore(s.redis.Client)
}

func (s *RedisStoreSuite) SetupTest() {
	s.ctx = requestcontext.WithTime(context.Background(), time.Now())
	s.Require().NoError(s.redis.FlushAll(s.ctx))
}

func (s *RedisStoreSuite) TestCreateGet() {
	sess := newSession("s-1", time.Now(), time.Hour)
	sess.Acknowledge("who", time.Now())
	s.Require().NoError(s.store.Create(s.ctx, sess))

	got, err := s.store.Get(s.ctx, "s-1")
	s.Require().NoError(err)
	s.True(got.Acknowledged("who"))

	ttl, err := s.redis.Client.TTL(s.ctx, redisKeyPrefix+"s-1").Result()
	s.Require().NoError(err)
	s.Greater(ttl, 59*time.Minute)
}

func (s *RedisStoreSuite) TestMissing() {
	_, err := s.store.Get(s.ctx, "nope")
	s.ErrorIs(err, sentinel.ErrNotFound)

	_, err = s.store.Update(s.ctx, "nope", func(*Session) error { return nil })
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *RedisStoreSuite) TestCreateExpired() {
	sess := newSession("s-old", time.Now().Add(-2*time.Hour), time.Hour)
	s.ErrorIs(s.store.Create(s.ctx, sess), sentinel.ErrExpired)
}

func (s *RedisStoreSuite) TestConcurrentUpdatesAllLand() {
	s.Require().NoError(s.store.Create(s.ctx, newSession("s-1", time.Now(), time.Hour)))

	dashboards := []string{"who", "globalfund"}
	var wg sync.WaitGroup
	for _, d := range dashboards {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.store.Update(s.ctx, "s-1", func(sess *Session) error {
				sess.Acknowledge(d, time.Now())
				return nil
			})
			s.NoError(err)
		}()
	}
	wg.Wait()

	got, err := s.store.Get(s.ctx, "s-1")
	s.Require().NoError(err)
	for _, d := range dashboards {
		s.True(got.Acknowledged(d), d)
	}
}
