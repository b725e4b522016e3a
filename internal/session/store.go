package session

import "context"

// Store persists sessions. Get returns sentinel.ErrNotFound for unknown or
// expired sessions.
type Store interface {
	Get(ctx context.Context, id string) (*Session, error)
	Create(ctx context.Context, s *Session) error
	// Update applies fn to the stored session atomically and saves the result.
	Update(ctx context.Context, id string, fn func(*Session) error) (*Session, error)
}
