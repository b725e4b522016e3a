package upstream

import (
	"context"
	"encoding/hex"
	"errors"
	"log/slog"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/sync/singleflight"

	"healthdash/internal/upstream/metrics"
	"healthdash/pkg/platform/sentinel"
)

// Store keeps fetched bodies keyed by Key(url). Get returns
// sentinel.ErrNotFound on a miss or an expired entry.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, body []byte) error
	Delete(ctx context.Context, key string) error
}

// Memo memoizes a Fetcher per distinct URL. Only successful bodies are
// stored, so a failed fetch is attempted again by the next caller.
// Concurrent callers for the same URL share one upstream call.
type Memo struct {
	next    Fetcher
	store   Store
	backend string
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
}

type MemoOption func(*Memo)

// WithBackendName labels memo metrics (memory, redis, postgres).
func WithBackendName(name string) MemoOption {
	return func(m *Memo) { m.backend = name }
}

func WithMemoMetrics(mt *metrics.Metrics) MemoOption {
	return func(m *Memo) { m.metrics = mt }
}

func WithMemoLogger(l *slog.Logger) MemoOption {
	return func(m *Memo) { m.logger = l }
}

func NewMemo(next Fetcher, store Store, opts ...MemoOption) (*Memo, error) {
	if next == nil {
		return nil, errors.New("fetcher is required")
	}
	if store == nil {
		return nil, errors.New("memo store is required")
	}
	m := &Memo{
		next:    next,
		store:   store,
		backend: "memory",
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Key derives the store key for a URL.
func Key(url string) string {
	sum := blake2b.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])
}

// Get returns the memoized body for url, fetching it on a miss.
// The returned slice is shared between callers and must not be modified.
func (m *Memo) Get(ctx context.Context, url string) ([]byte, error) {
	key := Key(url)

	body, err := m.store.Get(ctx, key)
	switch {
	case err == nil:
		m.metrics.IncMemoHit(m.backend)
		return body, nil
	case !errors.Is(err, sentinel.ErrNotFound):
		m.logger.WarnContext(ctx, "memo store read failed, fetching",
			"backend", m.backend,
			"url", url,
			"error", err,
		)
	}
	m.metrics.IncMemoMiss(m.backend)

	// The shared fetch outlives any single caller; the Client bounds it
	// with its own timeout.
	detached := context.WithoutCancel(ctx)
	ch := m.group.DoChan(key, func() (any, error) {
		body, err := m.next.Get(detached, url)
		if err != nil {
			return nil, err
		}
		if err := m.store.Set(detached, key, body); err != nil {
			m.logger.WarnContext(detached, "memo store write failed",
				"backend", m.backend,
				"url", url,
				"error", err,
			)
		}
		return body, nil
	})

	select {
	case <-ctx.Done():
		return nil, contextError(ctx, hostOf(url), url, ctx.Err())
	case res := <-ch:
		if res.Shared {
			m.metrics.IncCoalesced()
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	}
}

// Forget drops the memoized body for url.
func (m *Memo) Forget(ctx context.Context, url string) error {
	return m.store.Delete(ctx, Key(url))
}
