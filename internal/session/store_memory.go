package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"healthdash/pkg/platform/sentinel"
	"healthdash/pkg/requestcontext"
)

// InMemoryStore keeps sessions in a mutex-guarded map. Sessions are copied on
// the way in and out so callers never share state with the store.
type InMemoryStore struct {
	mu       sync.Mutex
	sessions map[string][]byte
	expiry   map[string]time.Time
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		sessions: make(map[string][]byte),
		expiry:   make(map[string]time.Time),
	}
}

func (s *InMemoryStore) Get(ctx context.Context, id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx, id)
}

func (s *InMemoryStore) Create(_ context.Context, sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(sess)
}

func (s *InMemoryStore) Update(ctx context.Context, id string, fn func(*Session) error) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(sess); err != nil {
		return nil, err
	}
	if err := s.save(sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// PurgeExpired drops sessions whose lifetime is over.
func (s *InMemoryStore) PurgeExpired(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, exp := range s.expiry {
		if !now.Before(exp) {
			delete(s.sessions, id)
			delete(s.expiry, id)
			n++
		}
	}
	return n
}

// PurgeEvery runs PurgeExpired on each tick until ctx is done.
func (s *InMemoryStore) PurgeEvery(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.PurgeExpired(now)
		}
	}
}

func (s *InMemoryStore) load(ctx context.Context, id string) (*Session, error) {
	raw, ok := s.sessions[id]
	if !ok || !requestcontext.Now(ctx).Before(s.expiry[id]) {
		return nil, sentinel.ErrNotFound
	}
	var sess Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &sess, nil
}

func (s *InMemoryStore) save(sess *Session) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	s.sessions[sess.ID] = raw
	s.expiry[sess.ID] = sess.ExpiresAt
	return nil
}
