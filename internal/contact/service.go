package contact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"

	"healthdash/internal/audit"
	"healthdash/internal/contact/metrics"
	dErrors "healthdash/pkg/domain-errors"
	"healthdash/pkg/requestcontext"
)

const (
	defaultTimeout = 10 * time.Second
	mailSubject    = "Health financing dashboards: new message"
)

// Auditor records submissions.
type Auditor interface {
	Emit(ctx context.Context, e audit.Event)
}

// Service validates, sanitizes and relays contact submissions.
type Service struct {
	relayURL string
	client   *http.Client
	validate *validator.Validate
	policy   *bluemonday.Policy
	hasher   *audit.Pseudonymizer
	auditor  Auditor
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// Option configures the Service.
type Option func(*Service)

func WithHTTPClient(c *http.Client) Option {
	return func(s *Service) {
		s.client = c
	}
}

// WithAuditor records submissions with the email replaced by hasher's token.
func WithAuditor(a Auditor, hasher *audit.Pseudonymizer) Option {
	return func(s *Service) {
		s.auditor = a
		s.hasher = hasher
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// New builds a contact service posting to relayURL.
func New(relayURL string, opts ...Option) (*Service, error) {
	u, err := url.Parse(relayURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("invalid contact relay url %q", relayURL)
	}
	s := &Service{
		relayURL: relayURL,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		policy:   bluemonday.StrictPolicy(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.client == nil {
		s.client = &http.Client{Timeout: defaultTimeout}
	}
	// The relay answers a successful post with a redirect to its thank-you page.
	client := *s.client
	client.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }
	s.client = &client
	return s, nil
}

// Submit relays sub. Submissions tripping the honeypot are dropped silently.
func (s *Service) Submit(ctx context.Context, sub Submission) error {
	client := requestcontext.ClientInfo(ctx)
	if client.Bot {
		s.metrics.IncSubmission("bot")
		return dErrors.New(dErrors.CodeBadRequest, "automated submissions are not accepted")
	}
	if strings.TrimSpace(sub.Honeypot) != "" {
		s.metrics.IncSubmission("honeypot")
		s.logger.InfoContext(ctx, "contact submission dropped",
			"request_id", requestcontext.RequestID(ctx),
			"reason", "honeypot",
		)
		return nil
	}

	sub = s.sanitize(sub)
	if err := s.check(sub); err != nil {
		s.metrics.IncSubmission("invalid")
		return err
	}

	if err := s.relay(ctx, sub); err != nil {
		s.metrics.IncSubmission("relay_failed")
		return err
	}
	s.metrics.IncSubmission("sent")

	if s.auditor != nil {
		e := audit.Event{Action: audit.ActionContactSubmitted, ClientIP: client.IP}
		if s.hasher != nil {
			e.EmailHash = s.hasher.Email(sub.Email)
		}
		s.auditor.Emit(ctx, e)
	}
	return nil
}

// sanitize strips markup; the relay renders the message as HTML email.
func (s *Service) sanitize(sub Submission) Submission {
	return Submission{
		Name:    strings.TrimSpace(s.policy.Sanitize(sub.Name)),
		Email:   strings.TrimSpace(sub.Email),
		Message: strings.TrimSpace(s.policy.Sanitize(sub.Message)),
	}
}

func (s *Service) check(sub Submission) error {
	err := s.validate.Struct(sub)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		if msg, ok := fieldMessages[verrs[0].Field()]; ok {
			return dErrors.New(dErrors.CodeValidation, msg)
		}
	}
	return dErrors.Wrap(err, dErrors.CodeValidation, "invalid contact form")
}

func (s *Service) relay(ctx context.Context, sub Submission) error {
	form := url.Values{}
	form.Set("name", sub.Name)
	form.Set("email", sub.Email)
	form.Set("message", sub.Message)
	form.Set("_subject", mailSubject)
	form.Set("_captcha", "false")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.relayURL, strings.NewReader(form.Encode()))
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "build relay request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.WarnContext(ctx, "contact relay unreachable",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		return dErrors.Wrap(err, dErrors.CodeUpstream, "the message could not be delivered, try again later")
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	if resp.StatusCode >= http.StatusBadRequest {
		s.logger.WarnContext(ctx, "contact relay refused message",
			"request_id", requestcontext.RequestID(ctx),
			"status", resp.StatusCode,
		)
		return dErrors.New(dErrors.CodeUpstream, "the message could not be delivered, try again later")
	}
	return nil
}
