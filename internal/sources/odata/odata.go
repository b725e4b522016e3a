// Package odata decodes the OData JSON envelopes served by the WHO GHO and
// Global Fund data services.
package odata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"healthdash/internal/upstream"
)

// maxPages bounds @odata.nextLink chains.
const maxPages = 500

// Envelope is the {"value": [...]} wrapper around every collection.
type Envelope[T any] struct {
	Value    *[]T   `json:"value"`
	NextLink string `json:"@odata.nextLink"`
}

// Validator is implemented by rows that check their own required fields.
type Validator interface {
	Validate() error
}

// Decode parses one page. A body without a "value" array, or a row failing
// Validate, is a bad_data error.
func Decode[T any](body []byte, rawURL string) ([]T, string, error) {
	var env Envelope[T]
	dec := json.NewDecoder(bytes.NewReader(body))
	if err := dec.Decode(&env); err != nil {
		return nil, "", upstream.BadData(hostOf(rawURL), rawURL, err)
	}
	if env.Value == nil {
		return nil, "", upstream.BadData(hostOf(rawURL), rawURL, fmt.Errorf(`missing "value" array`))
	}
	rows := *env.Value
	for i := range rows {
		if v, ok := any(&rows[i]).(Validator); ok {
			if err := v.Validate(); err != nil {
				return nil, "", upstream.BadData(hostOf(rawURL), rawURL, fmt.Errorf("row %d: %w", i, err))
			}
		}
	}
	return rows, env.NextLink, nil
}

// Collect fetches rawURL and follows @odata.nextLink until the collection is complete.
func Collect[T any](ctx context.Context, f upstream.Fetcher, rawURL string) ([]T, error) {
	var all []T
	next := rawURL
	for page := 0; next != ""; page++ {
		if page == maxPages {
			return nil, upstream.BadData(hostOf(rawURL), rawURL, fmt.Errorf("more than %d pages", maxPages))
		}
		body, err := f.Get(ctx, next)
		if err != nil {
			return nil, err
		}
		rows, link, err := Decode[T](body, next)
		if err != nil {
			return nil, err
		}
		all = append(all, rows...)
		next = resolve(next, link)
	}
	return all, nil
}

// QuoteString escapes a literal for use inside an OData string; a single quote is doubled.
func QuoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func resolve(base, link string) string {
	if link == "" {
		return ""
	}
	b, err := url.Parse(base)
	if err != nil {
		return link
	}
	l, err := url.Parse(link)
	if err != nil {
		return link
	}
	return b.ResolveReference(l).String()
}

func hostOf(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil {
		return u.Host
	}
	return ""
}

// Date accepts the timestamp shapes the data services emit: RFC 3339, a
// zone-less timestamp, or a bare date. JSON null leaves the zero value.
type Date struct {
	time.Time
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func (d *Date) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("date: %w", err)
	}
	if s == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			d.Time = t.UTC()
			return nil
		}
	}
	if len(s) >= 10 {
		if t, err := time.Parse("2006-01-02", s[:10]); err == nil {
			d.Time = t
			return nil
		}
	}
	return fmt.Errorf("date: unrecognized value %q", s)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.Format("2006-01-02"))
}
