package upstream

import (
	"errors"
	"fmt"
	"net/url"
)

// Category is the normalized failure taxonomy for public data API calls.
type Category string

const (
	CategoryTimeout     Category = "timeout"
	CategoryBadData     Category = "bad_data"
	CategoryOutage      Category = "provider_outage"
	CategoryNotFound    Category = "not_found"
	CategoryRateLimited Category = "rate_limited"
	CategoryCanceled    Category = "canceled"
	CategoryInternal    Category = "internal"
)

// Error wraps an upstream failure with its category and the URL involved.
type Error struct {
	Category   Category
	Source     string // upstream host
	URL        string
	StatusCode int
	Message    string
	Underlying error
	Retryable  bool
}

func (e *Error) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("upstream %s [%s]: %s: %v", e.Source, e.Category, e.Message, e.Underlying)
	}
	return fmt.Sprintf("upstream %s [%s]: %s", e.Source, e.Category, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Underlying
}

// NewError builds a categorized upstream error. Timeouts, outages and rate
// limiting are marked retryable; nothing in this service retries automatically.
func NewError(category Category, source, url, message string, underlying error) *Error {
	return &Error{
		Category:   category,
		Source:     source,
		URL:        url,
		Message:    message,
		Underlying: underlying,
		Retryable: category == CategoryTimeout ||
			category == CategoryOutage ||
			category == CategoryRateLimited,
	}
}

// IsRetryable checks if an error is worth retrying later.
func IsRetryable(err error) bool {
	var ue *Error
	if errors.As(err, &ue) {
		return ue.Retryable
	}
	return false
}

// CategoryOf extracts the category from an error chain.
func CategoryOf(err error) Category {
	var ue *Error
	if errors.As(err, &ue) {
		return ue.Category
	}
	return CategoryInternal
}

// BadData reports a body that failed typed decoding at the parse boundary.
func BadData(source, url string, err error) *Error {
	return NewError(CategoryBadData, source, url, "unexpected response shape", err)
}

func hostOf(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil {
		return u.Host
	}
	return ""
}
