// Package reference builds the country reference table shared by every
// dashboard: WHO country names joined with World Bank region and income level.
package reference

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"healthdash/internal/sources/who"
	"healthdash/internal/sources/worldbank"
	"healthdash/internal/upstream"
)

// WarningUnavailable is attached to an empty table when a source failed.
const WarningUnavailable = "API data cannot be loaded"

// Country is one row of the reference table.
type Country struct {
	Code        string `json:"code"`
	Name        string `json:"name"`
	Region      string `json:"region"`
	IncomeLevel string `json:"income_level"`
}

// Table maps ISO3 codes to countries. It is read-only once built.
type Table struct {
	byCode   map[string]Country
	sorted   []Country
	Warnings []string
}

// NewTable indexes rows by code; later duplicates win.
func NewTable(rows []Country, warnings ...string) Table {
	byCode := make(map[string]Country, len(rows))
	for _, r := range rows {
		byCode[r.Code] = r
	}
	sorted := make([]Country, 0, len(byCode))
	for _, c := range byCode {
		sorted = append(sorted, c)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Code < sorted[j].Code })
	return Table{byCode: byCode, sorted: sorted, Warnings: warnings}
}

func (t Table) Lookup(code string) (Country, bool) {
	c, ok := t.byCode[code]
	return c, ok
}

func (t Table) Len() int { return len(t.sorted) }

// Countries returns the rows ordered by code. Callers must not modify the slice.
func (t Table) Countries() []Country { return t.sorted }

// WHOCountries is the WHO side of the merge.
type WHOCountries interface {
	Countries(ctx context.Context) ([]who.Country, error)
}

// WorldBankEconomies is the World Bank side of the merge.
type WorldBankEconomies interface {
	Economies(ctx context.Context) ([]worldbank.Economy, error)
}

// Forgetter drops memoized upstream bodies.
type Forgetter interface {
	Forget(ctx context.Context, url string) error
}

// Loader builds the table once per process. Only successful loads are kept,
// so a failed load is attempted again by the next request.
type Loader struct {
	who    WHOCountries
	wb     WorldBankEconomies
	logger *slog.Logger

	forget Forgetter
	urls   []string

	mu     sync.RWMutex
	loaded *Table
	group  singleflight.Group
}

type Option func(*Loader)

func WithLogger(l *slog.Logger) Option {
	return func(ld *Loader) { ld.logger = l }
}

// WithForgetter makes Invalidate also drop the memoized bodies at urls.
func WithForgetter(f Forgetter, urls ...string) Option {
	return func(ld *Loader) {
		ld.forget = f
		ld.urls = urls
	}
}

func NewLoader(whoSrc WHOCountries, wbSrc WorldBankEconomies, opts ...Option) (*Loader, error) {
	if whoSrc == nil {
		return nil, errors.New("WHO country source is required")
	}
	if wbSrc == nil {
		return nil, errors.New("World Bank source is required")
	}
	l := &Loader{who: whoSrc, wb: wbSrc, logger: slog.Default()}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Load returns the reference table. An upstream failure yields an empty table
// carrying WarningUnavailable; the only error is the caller's own context ending.
func (l *Loader) Load(ctx context.Context) (Table, error) {
	if err := ctx.Err(); err != nil {
		return NewTable(nil, WarningUnavailable), err
	}

	l.mu.RLock()
	if l.loaded != nil {
		t := *l.loaded
		l.mu.RUnlock()
		return t, nil
	}
	l.mu.RUnlock()

	ch := l.group.DoChan("reference", func() (any, error) {
		return l.build(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return NewTable(nil, WarningUnavailable), ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			l.logger.WarnContext(ctx, "reference table unavailable",
				"category", upstream.CategoryOf(res.Err),
				"error", res.Err,
			)
			return NewTable(nil, WarningUnavailable), nil
		}
		return res.Val.(Table), nil
	}
}

func (l *Loader) build(ctx context.Context) (Table, error) {
	var (
		countries []who.Country
		economies []worldbank.Economy
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		countries, err = l.who.Countries(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		economies, err = l.wb.Economies(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return Table{}, err
	}

	t := Merge(countries, economies)
	l.mu.Lock()
	l.loaded = &t
	l.mu.Unlock()
	l.logger.InfoContext(ctx, "reference table loaded", "countries", t.Len())
	return t, nil
}

// Merge inner-joins WHO countries with non-aggregate World Bank economies on
// the ISO3 code.
func Merge(countries []who.Country, economies []worldbank.Economy) Table {
	byCode := make(map[string]worldbank.Economy, len(economies))
	for _, e := range economies {
		if e.Aggregate() {
			continue
		}
		byCode[e.ID] = e
	}
	rows := make([]Country, 0, len(countries))
	for _, c := range countries {
		e, ok := byCode[c.Code]
		if !ok {
			continue
		}
		rows = append(rows, Country{
			Code:        c.Code,
			Name:        c.Title,
			Region:      e.RegionLabel(),
			IncomeLevel: e.IncomeLabel(),
		})
	}
	return NewTable(rows)
}

// Invalidate drops the loaded table so the next Load rebuilds it.
func (l *Loader) Invalidate(ctx context.Context) {
	l.mu.Lock()
	l.loaded = nil
	l.mu.Unlock()
	if l.forget == nil {
		return
	}
	for _, u := range l.urls {
		if err := l.forget.Forget(ctx, u); err != nil {
			l.logger.WarnContext(ctx, "failed to forget memoized reference body", "url", u, "error", err)
		}
	}
}
