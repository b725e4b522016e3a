package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"healthdash/internal/upstream/metrics"
)

// Fetcher issues a GET and returns the raw body of a 200 response.
type Fetcher interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

const (
	defaultTimeout = 20 * time.Second
	defaultMaxBody = 64 << 20
	userAgent      = "healthdash/1.0"
)

// Client is the HTTP Fetcher. Every call carries a timeout, waits on a
// per-host token bucket and is traced.
type Client struct {
	httpClient *http.Client
	timeout    time.Duration
	maxBody    int64
	rps        rate.Limit
	burst      int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter

	tracer  trace.Tracer
	metrics *metrics.Metrics
	logger  *slog.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithRateLimit caps requests per upstream host. rps <= 0 disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.rps = rate.Inf
			return
		}
		c.rps = rate.Limit(rps)
		if burst > 0 {
			c.burst = burst
		}
	}
}

func WithMaxBody(n int64) Option {
	return func(c *Client) { c.maxBody = n }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{},
		timeout:    defaultTimeout,
		maxBody:    defaultMaxBody,
		rps:        rate.Inf,
		burst:      1,
		limiters:   make(map[string]*rate.Limiter),
		tracer:     otel.Tracer("healthdash/upstream"),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get fetches url. Any non-200 answer, transport failure or timeout comes back
// as *Error; nothing is retried.
func (c *Client) Get(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return nil, NewError(CategoryInternal, "", rawURL, "invalid url", err)
	}
	host := u.Host

	ctx, span := c.tracer.Start(ctx, "upstream.Get",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", http.MethodGet),
			attribute.String("http.url", rawURL),
			attribute.String("server.address", host),
		),
	)
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.limiter(host).Wait(ctx); err != nil {
		return nil, c.fail(ctx, span, contextError(ctx, host, rawURL, err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, c.fail(ctx, span, NewError(CategoryInternal, host, rawURL, "build request", err))
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.ObserveFetch(host, "error", time.Since(start))
		return nil, c.fail(ctx, span, transportError(ctx, host, rawURL, err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	c.metrics.ObserveFetch(host, strconv.Itoa(resp.StatusCode), time.Since(start))
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if err != nil {
		return nil, c.fail(ctx, span, transportError(ctx, host, rawURL, err))
	}
	if int64(len(body)) > c.maxBody {
		return nil, c.fail(ctx, span, NewError(CategoryBadData, host, rawURL,
			fmt.Sprintf("response larger than %d bytes", c.maxBody), nil))
	}

	if resp.StatusCode != http.StatusOK {
		ue := NewError(statusCategory(resp.StatusCode), host, rawURL,
			fmt.Sprintf("unexpected status %d", resp.StatusCode), nil)
		ue.StatusCode = resp.StatusCode
		return nil, c.fail(ctx, span, ue)
	}
	return body, nil
}

func (c *Client) limiter(host string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.limiters[host]
	if !ok {
		l = rate.NewLimiter(c.rps, c.burst)
		c.limiters[host] = l
	}
	return l
}

func (c *Client) fail(ctx context.Context, span trace.Span, ue *Error) *Error {
	span.RecordError(ue)
	span.SetStatus(codes.Error, string(ue.Category))
	c.metrics.IncFetchError(ue.Source, string(ue.Category))
	c.logger.WarnContext(ctx, "upstream fetch failed",
		"url", ue.URL,
		"category", ue.Category,
		"status", ue.StatusCode,
		"error", ue.Error(),
	)
	return ue
}

func statusCategory(status int) Category {
	switch {
	case status == http.StatusNotFound:
		return CategoryNotFound
	case status == http.StatusTooManyRequests:
		return CategoryRateLimited
	case status == http.StatusBadRequest:
		return CategoryBadData
	default:
		return CategoryOutage
	}
}

func contextError(ctx context.Context, host, rawURL string, err error) *Error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return NewError(CategoryCanceled, host, rawURL, "request canceled", err)
	}
	return NewError(CategoryTimeout, host, rawURL, "timed out", err)
}

func transportError(ctx context.Context, host, rawURL string, err error) *Error {
	if ctx.Err() != nil {
		return contextError(ctx, host, rawURL, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return NewError(CategoryTimeout, host, rawURL, "timed out", err)
	}
	return NewError(CategoryOutage, host, rawURL, "connection failed", err)
}
