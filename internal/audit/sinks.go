package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
)

// LogSink writes events as structured log lines. It is the default when no
// broker is configured.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Write(ctx context.Context, e Event) error {
	s.logger.InfoContext(ctx, "audit event",
		"action", e.Action,
		"timestamp", e.Timestamp,
		"request_id", e.RequestID,
		"session_id", e.SessionID,
		"subject", e.Subject,
		"format", e.Format,
		"rows", e.Rows,
		"email_hash", e.EmailHash,
	)
	return nil
}

// Producer is the slice of the Kafka producer the sink needs.
type Producer interface {
	Publish(ctx context.Context, key, value []byte) error
}

// KafkaSink publishes events as JSON keyed by action.
type KafkaSink struct {
	producer Producer
}

func NewKafkaSink(p Producer) *KafkaSink {
	return &KafkaSink{producer: p}
}

func (s *KafkaSink) Write(ctx context.Context, e Event) error {
	value, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	if err := s.producer.Publish(ctx, []byte(e.Action), value); err != nil {
		return fmt.Errorf("publish audit event: %w", err)
	}
	return nil
}

// MemorySink keeps events in memory.
type MemorySink struct {
	mu     sync.RWMutex
	events []Event
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Write(_ context.Context, e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

// Events returns a copy of what was written so far.
func (s *MemorySink) Events() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Event{}, s.events...)
}

// ByAction returns the events with the given action.
func (s *MemorySink) ByAction(a Action) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Event
	for _, e := range s.events {
		if e.Action == a {
			out = append(out, e)
		}
	}
	return out
}
