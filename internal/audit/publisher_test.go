package audit

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"healthdash/pkg/requestcontext"
)

type failingSink struct {
	fail  Action
	inner *MemorySink
}

func (s *failingSink) Write(ctx context.Context, e Event) error {
	if e.Action == s.fail {
		return errors.New("broker down")
	}
	return s.inner.Write(ctx, e)
}

func TestPublisherEnrichesFromContext(t *testing.T) {
	sink := NewMemorySink()
	p := NewPublisher(sink)

	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithRequestID(context.Background(), "req-1")
	ctx = requestcontext.WithSessionID(ctx, "sess-1")
	ctx = requestcontext.WithTime(ctx, now)
	ctx = requestcontext.WithClient(ctx, requestcontext.Client{IP: "10.0.0.1"})

	p.Emit(ctx, Event{Action: ActionDatasetExported, Subject: "WHOSIS_000001", Format: "csv", Rows: 12})
	p.Flush(context.Background())

	events := sink.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "req-1", events[0].RequestID)
	assert.Equal(t, "sess-1", events[0].SessionID)
	assert.Equal(t, "10.0.0.1", events[0].ClientIP)
	assert.Equal(t, now, events[0].Timestamp)
	assert.Equal(t, 12, events[0].Rows)
}

func TestPublisherDropsOldestWhenFull(t *testing.T) {
	sink := NewMemorySink()
	p := NewPublisher(sink, WithCapacity(2))

	ctx := context.Background()
	p.Emit(ctx, Event{Action: ActionContactSubmitted, Subject: "first"})
	p.Emit(ctx, Event{Action: ActionContactSubmitted, Subject: "second"})
	p.Emit(ctx, Event{Action: ActionContactSubmitted, Subject: "third"})
	p.Flush(ctx)

	events := sink.Events()
	require.Len(t, events, 2)
	assert.Equal(t, "second", events[0].Subject)
	assert.Equal(t, "third", events[1].Subject)
	assert.Equal(t, int64(1), p.buf.Dropped())
}

func TestPublisherSinkFailureDoesNotStopOthers(t *testing.T) {
	mem := NewMemorySink()
	p := NewPublisher(&failingSink{fail: ActionDatasetExported, inner: mem})

	ctx := context.Background()
	p.Emit(ctx, Event{Action: ActionDatasetExported})
	p.Emit(ctx, Event{Action: ActionDisclaimerAcknowledged, Subject: "who"})
	p.Flush(ctx)

	assert.Empty(t, mem.ByAction(ActionDatasetExported))
	assert.Len(t, mem.ByAction(ActionDisclaimerAcknowledged), 1)
	assert.Zero(t, p.buf.Len())
}

func TestPublisherRunFlushesOnShutdown(t *testing.T) {
	sink := NewMemorySink()
	p := NewPublisher(sink)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	p.Emit(context.Background(), Event{Action: ActionDisclaimerAcknowledged, Subject: "globalfund"})
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Len(t, sink.Events(), 1)
}

func TestNilPublisherIgnoresEmit(t *testing.T) {
	var p *Publisher
	assert.NotPanics(t, func() { p.Emit(context.Background(), Event{Action: ActionContactSubmitted}) })
}

type recordingProducer struct {
	key, value []byte
}

func (r *recordingProducer) Publish(_ context.Context, key, value []byte) error {
	r.key, r.value = key, value
	return nil
}

func TestKafkaSinkPublishesJSON(t *testing.T) {
	prod := &recordingProducer{}
	sink := NewKafkaSink(prod)

	require.NoError(t, sink.Write(context.Background(), Event{Action: ActionContactSubmitted, EmailHash: "abc"}))

	assert.Equal(t, "contact_submitted", string(prod.key))
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(prod.value, &decoded))
	assert.Equal(t, "abc", decoded["email_hash"])
	assert.NotContains(t, decoded, "subject")
}

func TestPseudonymizer(t *testing.T) {
	p, err := NewPseudonymizer("secret")
	require.NoError(t, err)

	a := p.Email("Someone@Example.org ")
	assert.Equal(t, a, p.Email("someone@example.org"))
	assert.Len(t, a, 64)
	assert.NotContains(t, a, "example")
	assert.Empty(t, p.Email("  "))

	other, err := NewPseudonymizer("another")
	require.NoError(t, err)
	assert.NotEqual(t, a, other.Email("someone@example.org"))

	_, err = NewPseudonymizer(strings.Repeat("k", 65))
	assert.Error(t, err)
}
