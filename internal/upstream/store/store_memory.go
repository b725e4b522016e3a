// Package store holds the memo backends for upstream.Memo.
package store

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"healthdash/pkg/platform/sentinel"
)

// InMemoryStore is a size and TTL bounded LRU local to the process.
type InMemoryStore struct {
	cache *expirable.LRU[string, []byte]
}

func NewInMemoryStore(size int, ttl time.Duration) *InMemoryStore {
	return &InMemoryStore{
		cache: expirable.NewLRU[string, []byte](size, nil, ttl),
	}
}

func (s *InMemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	body, ok := s.cache.Get(key)
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return body, nil
}

func (s *InMemoryStore) Set(_ context.Context, key string, body []byte) error {
	s.cache.Add(key, body)
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, key string) error {
	s.cache.Remove(key)
	return nil
}

// Len reports the number of live entries.
func (s *InMemoryStore) Len() int {
	return s.cache.Len()
}

func (s *InMemoryStore) Purge() {
	s.cache.Purge()
}
