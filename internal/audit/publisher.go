package audit

import (
	"context"
	"log/slog"
	"time"

	"healthdash/pkg/requestcontext"
)

const (
	batchSize     = 64
	flushInterval = time.Second
)

// Sink persists audit events.
type Sink interface {
	Write(ctx context.Context, e Event) error
}

// Publisher buffers events so emitting never blocks a request. A single
// worker (Run) drains the buffer into the sink. Audit is fail-open: sink
// failures are logged and counted, not surfaced to the caller.
type Publisher struct {
	sink    Sink
	buf     *RingBuffer
	notify  chan struct{}
	logger  *slog.Logger
	metrics *Metrics
}

// Option configures the Publisher.
type Option func(*Publisher)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(p *Publisher) {
		p.metrics = m
	}
}

// WithCapacity bounds the number of pending events.
func WithCapacity(n int) Option {
	return func(p *Publisher) {
		p.buf = NewRingBuffer(n)
	}
}

func NewPublisher(sink Sink, opts ...Option) *Publisher {
	p := &Publisher{
		sink:   sink,
		buf:    NewRingBuffer(0),
		notify: make(chan struct{}, 1),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Emit enriches e from the request context and queues it.
func (p *Publisher) Emit(ctx context.Context, e Event) {
	if p == nil {
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = requestcontext.Now(ctx)
	}
	if e.RequestID == "" {
		e.RequestID = requestcontext.RequestID(ctx)
	}
	if e.SessionID == "" {
		e.SessionID = requestcontext.SessionID(ctx)
	}
	if e.ClientIP == "" {
		e.ClientIP = requestcontext.ClientInfo(ctx).IP
	}

	if p.buf.Enqueue(e) {
		p.metrics.IncDropped()
	}
	p.metrics.SetPending(p.buf.Len())

	select {
	case p.notify <- struct{}{}:
	default:
	}
}

// Run drains the buffer until ctx is done, then flushes what is left.
func (p *Publisher) Run(ctx context.Context) error {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			p.Flush(flushCtx)
			cancel()
			return ctx.Err()
		case <-p.notify:
			p.Flush(ctx)
		case <-ticker.C:
			p.Flush(ctx)
		}
	}
}

// Flush writes every pending event to the sink.
func (p *Publisher) Flush(ctx context.Context) {
	for {
		batch := p.buf.DequeueBatch(batchSize)
		if len(batch) == 0 {
			p.metrics.SetPending(0)
			return
		}
		for _, e := range batch {
			if err := p.sink.Write(ctx, e); err != nil {
				p.metrics.IncSinkFailures()
				p.logger.WarnContext(ctx, "audit sink write failed",
					"action", e.Action,
					"request_id", e.RequestID,
					"error", err,
				)
				continue
			}
			p.metrics.IncEmitted(e.Action)
		}
	}
}
