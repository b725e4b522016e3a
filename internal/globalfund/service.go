package globalfund

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"healthdash/internal/dataset"
	"healthdash/internal/globalfund/metrics"
	"healthdash/internal/reference"
	"healthdash/internal/render"
	gf "healthdash/internal/sources/globalfund"
	"healthdash/internal/upstream"
)

const topCountries = 10

// Source is the slice of the Global Fund client the dashboards read.
type Source interface {
	ImplementationPeriods(ctx context.Context) ([]gf.ImplementationPeriod, error)
	Disbursements(ctx context.Context) ([]gf.Disbursement, error)
}

// ReferenceSource provides the country reference table.
type ReferenceSource interface {
	Load(ctx context.Context) (reference.Table, error)
}

// Service builds the grants and disbursement dashboards.
type Service struct {
	src     Source
	ref     ReferenceSource
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures the Service.
type Option func(*Service)

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

func New(src Source, ref ReferenceSource, opts ...Option) (*Service, error) {
	if src == nil {
		return nil, errors.New("global fund source is required")
	}
	if ref == nil {
		return nil, errors.New("reference source is required")
	}
	s := &Service{src: src, ref: ref, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Grants returns per-breakdown metrics of the implementation periods that
// pass the filters.
func (s *Service) Grants(ctx context.Context, f Filters, by Grouping) (*GrantsResult, error) {
	if err := f.Normalize(); err != nil {
		return nil, err
	}
	result := &GrantsResult{By: by, Groups: []GroupMetrics{}, Grants: []Grant{}}

	ref, err := s.ref.Load(ctx)
	if err != nil {
		return nil, err
	}
	result.Warnings = slices.Clone(ref.Warnings)

	ips, err := s.src.ImplementationPeriods(ctx)
	if err != nil {
		if err := s.fetchFailed(ctx, "grants", err); err != nil {
			return nil, err
		}
		result.Message = MsgNoGrants
		result.Warnings = append(result.Warnings, MsgUnavailable)
		return result, nil
	}

	grants := JoinGrants(ips, ref)
	if f.ActiveOnly {
		grants = dataset.Filter(grants, func(g Grant) bool { return g.Status == gf.StatusActive })
	}
	grants = cascade(grants,
		level[Grant]{f.Components, func(g Grant) string { return g.Component }, &result.Options.Components},
		level[Grant]{f.PRTypes, func(g Grant) string { return g.PRType }, &result.Options.PRTypes},
		level[Grant]{f.Regions, func(g Grant) string { return g.Region }, &result.Options.Regions},
		level[Grant]{f.Countries, func(g Grant) string { return g.Country }, &result.Options.Countries},
	)
	orderComponents(result.Options.Components)

	if len(grants) == 0 {
		result.Message = MsgNoGrants
		return result, nil
	}
	result.Grants = grants
	result.Groups = GroupGrants(grants, by)
	return result, nil
}

// Disbursements returns the summary and the yearly breakdown view of the
// disbursements that pass the filters.
func (s *Service) Disbursements(ctx context.Context, f Filters, by Grouping) (*DisbursementsResult, error) {
	if err := f.Normalize(); err != nil {
		return nil, err
	}
	sel, err := s.selectDisbursements(ctx, f)
	if err != nil {
		return nil, err
	}

	title := "Disbursements by " + groupingLabel(by)
	result := &DisbursementsResult{
		Summary:  Summarize(sel.rows),
		Options:  sel.options,
		Rows:     sel.rows,
		Warnings: sel.warnings,
	}
	if sel.unavailable {
		result.View = render.Message(title, MsgNoData, MsgUnavailable)
		return result, nil
	}
	result.View = DisbursementView(title, sel.rows, by)
	return result, nil
}

// Sankey returns the disbursement flows Global Fund, component, region,
// country of the filtered disbursements.
func (s *Service) Sankey(ctx context.Context, f Filters) (*Sankey, error) {
	if err := f.Normalize(); err != nil {
		return nil, err
	}
	sel, err := s.selectDisbursements(ctx, f)
	if err != nil {
		return nil, err
	}
	out := Flows(sel.rows)
	out.Warnings = sel.warnings
	if len(out.Links) == 0 {
		out.Message = MsgNoData
	}
	return out, nil
}

type selection struct {
	rows        []Disbursement
	options     Options
	warnings    []string
	unavailable bool
}

// selectDisbursements loads both collections concurrently, joins them and
// applies the cascading filters then the year range.
func (s *Service) selectDisbursements(ctx context.Context, f Filters) (*selection, error) {
	start := time.Now()
	defer func() { s.metrics.ObserveSelect(time.Since(start)) }()

	ref, err := s.ref.Load(ctx)
	if err != nil {
		return nil, err
	}
	sel := &selection{rows: []Disbursement{}, warnings: slices.Clone(ref.Warnings)}

	var ips []gf.ImplementationPeriod
	var payments []gf.Disbursement
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		ips, err = s.src.ImplementationPeriods(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		payments, err = s.src.Disbursements(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		if err := s.fetchFailed(ctx, "disbursements", err); err != nil {
			return nil, err
		}
		sel.unavailable = true
		sel.warnings = append(sel.warnings, MsgUnavailable)
		return sel, nil
	}

	rows := JoinDisbursements(payments, JoinGrants(ips, ref))
	rows = cascade(rows,
		level[Disbursement]{f.Components, func(d Disbursement) string { return d.Component }, &sel.options.Components},
		level[Disbursement]{f.PRTypes, func(d Disbursement) string { return d.PRType }, &sel.options.PRTypes},
		level[Disbursement]{f.Regions, func(d Disbursement) string { return d.Region }, &sel.options.Regions},
		level[Disbursement]{f.Countries, func(d Disbursement) string { return d.Country }, &sel.options.Countries},
	)
	orderComponents(sel.options.Components)

	years := dataset.Distinct(rows, func(d Disbursement) string {
		if d.Date.IsZero() {
			return ""
		}
		return strconv.Itoa(d.Date.Year())
	})
	for _, y := range years {
		n, _ := strconv.Atoi(y)
		sel.options.Years = append(sel.options.Years, n)
	}

	sel.rows = dataset.Filter(rows, dataset.Between(f.FromYear, f.ToYear, func(d Disbursement) (int, bool) {
		return d.Date.Year(), !d.Date.IsZero()
	}))
	sort.SliceStable(sel.rows, func(i, j int) bool { return sel.rows[i].Date.Before(sel.rows[j].Date) })
	s.metrics.ObserveRows(len(sel.rows))
	return sel, nil
}

// fetchFailed returns the error to surface, or nil when the failure should
// degrade to a warning.
func (s *Service) fetchFailed(ctx context.Context, what string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	s.logger.WarnContext(ctx, "global fund fetch failed",
		"dataset", what,
		"category", upstream.CategoryOf(err),
		"error", err,
	)
	s.metrics.IncDegraded(what)
	return nil
}

// JoinGrants left-joins implementation periods with the reference table and
// fills missing labels.
func JoinGrants(ips []gf.ImplementationPeriod, ref reference.Table) []Grant {
	rows := dataset.LeftJoin(ips, ref, reference.Country{Region: FallbackRegion, IncomeLevel: NotIndicated})
	out := make([]Grant, 0, len(rows))
	for _, r := range rows {
		ip := r.Record
		country := ip.GeographicAreaName
		if ip.MultiCountryName != "" {
			country = ip.MultiCountryName
		}
		out = append(out, Grant{
			ImplementationPeriodID: ip.ID,
			GrantNumber:            ip.GrantAgreementNumber,
			GrantID:                ip.GrantAgreementID,
			Title:                  orNotIndicated(ip.GrantAgreementTitle),
			Component:              orNotIndicated(ip.ComponentName),
			Status:                 ip.Status,
			Region:                 orDefault(r.Country.Region, FallbackRegion),
			IncomeLevel:            orNotIndicated(r.Country.IncomeLevel),
			Country:                orNotIndicated(country),
			CountryCode:            ip.GeographicAreaCode,
			PrincipalRecipient:     orNotIndicated(ip.PrincipalRecipientName),
			PRType:                 orNotIndicated(ip.PrincipalRecipientSubClass),
			StartDate:              ip.StartDate.Time,
			EndDate:                ip.EndDate.Time,
			Currency:               ip.Currency,
			Signed:                 ip.TotalSignedAmount,
			Committed:              ip.TotalCommittedAmount,
			Disbursed:              ip.TotalDisbursedAmount,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].GrantNumber != out[j].GrantNumber {
			return out[i].GrantNumber < out[j].GrantNumber
		}
		return out[i].ImplementationPeriodID < out[j].ImplementationPeriodID
	})
	return out
}

// JoinDisbursements attaches implementation period labels to payments.
// Payments of unknown periods are kept with fallback labels.
func JoinDisbursements(payments []gf.Disbursement, grants []Grant) []Disbursement {
	byIP := make(map[string]Grant, len(grants))
	for _, g := range grants {
		byIP[g.ImplementationPeriodID] = g
	}
	unknown := Grant{Component: NotIndicated, PRType: NotIndicated, Region: FallbackRegion, Country: NotIndicated}

	out := make([]Disbursement, 0, len(payments))
	for _, p := range payments {
		g, ok := byIP[p.ImplementationPeriodID]
		if !ok {
			g = unknown
		}
		out = append(out, Disbursement{
			ID:                     p.ID,
			ImplementationPeriodID: p.ImplementationPeriodID,
			GrantNumber:            g.GrantNumber,
			Date:                   p.Date.Time,
			Amount:                 p.Amount,
			Component:              g.Component,
			PRType:                 g.PRType,
			Region:                 g.Region,
			Country:                g.Country,
			CountryCode:            g.CountryCode,
		})
	}
	return out
}

// GroupGrants computes the headline metrics per breakdown value.
func GroupGrants(grants []Grant, by Grouping) []GroupMetrics {
	type acc struct {
		grants, ips, prs map[string]struct{}
		committed        float64
		disbursed        float64
	}
	cells := make(map[string]*acc)
	for _, g := range grants {
		k := g.key(by)
		a, ok := cells[k]
		if !ok {
			a = &acc{grants: map[string]struct{}{}, ips: map[string]struct{}{}, prs: map[string]struct{}{}}
			cells[k] = a
		}
		a.grants[g.GrantNumber] = struct{}{}
		a.ips[g.ImplementationPeriodID] = struct{}{}
		a.prs[g.PrincipalRecipient] = struct{}{}
		a.committed += g.Committed
		a.disbursed += g.Disbursed
	}

	keys := make([]string, 0, len(cells))
	for k := range cells {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if by == ByComponent {
		orderComponents(keys)
	}

	out := make([]GroupMetrics, 0, len(keys))
	for _, k := range keys {
		a := cells[k]
		m := GroupMetrics{
			Key:                   k,
			Grants:                len(a.grants),
			ImplementationPeriods: len(a.ips),
			PrincipalRecipients:   len(a.prs),
			TotalCommitted:        a.committed,
			TotalDisbursed:        a.disbursed,
		}
		if a.committed > 0 {
			m.DisbursedRatio = a.disbursed / a.committed
		}
		out = append(out, m)
	}
	return out
}

// Summarize returns the count, total and date span of rows.
func Summarize(rows []Disbursement) Summary {
	var s Summary
	var first, last time.Time
	for _, d := range rows {
		s.Count++
		s.TotalAmount += d.Amount
		if d.Date.IsZero() {
			continue
		}
		if first.IsZero() || d.Date.Before(first) {
			first = d.Date
		}
		if d.Date.After(last) {
			last = d.Date
		}
	}
	if !first.IsZero() {
		s.FirstRecord = first.Format(time.DateOnly)
		s.LastRecord = last.Format(time.DateOnly)
	}
	return s
}

// DisbursementView sums amounts by year and breakdown value. The country
// breakdown keeps the largest recipients only.
func DisbursementView(title string, rows []Disbursement, by Grouping) render.View {
	if by == ByCountry {
		rows = topByAmount(rows, topCountries)
	}
	groups := dataset.GroupBy(rows, func(d Disbursement) ([]string, bool) {
		if d.Date.IsZero() {
			return nil, false
		}
		return []string{strconv.Itoa(d.Date.Year()), d.key(by)}, true
	}, func(d Disbursement) (float64, bool) {
		return d.Amount, true
	}, dataset.Sum)

	series := dataset.ToSeries(groups, 1, 0)
	if by == ByComponent {
		sort.SliceStable(series, func(i, j int) bool {
			return componentRank(series[i].Name) < componentRank(series[j].Name)
		})
	}

	v := render.ChartView(title, render.Bar, series, MsgNoData)
	v.XLabel = "Year"
	v.YLabel = "Amount (US$)"
	return v
}

// Flows builds the Sankey graph of rows.
func Flows(rows []Disbursement) *Sankey {
	out := &Sankey{Nodes: []Node{}, Links: []Flow{}}
	if len(rows) == 0 {
		return out
	}

	path := func(d Disbursement) [4]string {
		return [4]string{SankeyRoot, d.Component, d.Region, d.Country}
	}
	names := [4][]string{}
	for lvl := range names {
		names[lvl] = dataset.Distinct(rows, func(d Disbursement) string { return path(d)[lvl] })
	}
	index := make(map[Node]int)
	for lvl, ns := range names {
		for _, n := range ns {
			node := Node{Name: n, Level: lvl}
			index[node] = len(out.Nodes)
			out.Nodes = append(out.Nodes, node)
		}
	}

	type edge struct{ source, target int }
	totals := make(map[edge]float64)
	for _, d := range rows {
		p := path(d)
		for lvl := 0; lvl < len(p)-1; lvl++ {
			e := edge{index[Node{p[lvl], lvl}], index[Node{p[lvl+1], lvl + 1}]}
			totals[e] += d.Amount
		}
	}
	for e, v := range totals {
		out.Links = append(out.Links, Flow{Source: e.source, Target: e.target, Value: v})
	}
	sort.Slice(out.Links, func(i, j int) bool {
		if out.Links[i].Source != out.Links[j].Source {
			return out.Links[i].Source < out.Links[j].Source
		}
		return out.Links[i].Target < out.Links[j].Target
	})
	return out
}

func topByAmount(rows []Disbursement, n int) []Disbursement {
	totals := make(map[string]float64)
	for _, d := range rows {
		totals[d.Country] += d.Amount
	}
	countries := make([]string, 0, len(totals))
	for c := range totals {
		countries = append(countries, c)
	}
	sort.Slice(countries, func(i, j int) bool {
		if totals[countries[i]] != totals[countries[j]] {
			return totals[countries[i]] > totals[countries[j]]
		}
		return countries[i] < countries[j]
	})
	if len(countries) > n {
		countries = countries[:n]
	}
	return dataset.Filter(rows, dataset.In(countries, func(d Disbursement) string { return d.Country }))
}

type level[T any] struct {
	selected []string
	field    func(T) string
	options  *[]string
}

// cascade records each level's options then applies its selection, so a
// level only offers values still reachable through the levels above it.
func cascade[T any](rows []T, levels ...level[T]) []T {
	for _, l := range levels {
		*l.options = dataset.Distinct(rows, l.field)
		rows = dataset.Filter(rows, dataset.In(l.selected, l.field))
	}
	return rows
}

func componentRank(c string) int {
	if i := slices.Index(ComponentOrder, c); i >= 0 {
		return i
	}
	return len(ComponentOrder)
}

// orderComponents sorts names by ComponentOrder, then alphabetically.
func orderComponents(names []string) {
	sort.SliceStable(names, func(i, j int) bool {
		ri, rj := componentRank(names[i]), componentRank(names[j])
		if ri != rj {
			return ri < rj
		}
		return names[i] < names[j]
	})
}

func groupingLabel(by Grouping) string {
	switch by {
	case ByPRType:
		return "principal recipient type"
	case ByRegion:
		return "region"
	case ByCountry:
		return fmt.Sprintf("country (top %d)", topCountries)
	default:
		return "component"
	}
}

func orNotIndicated(s string) string {
	return orDefault(s, NotIndicated)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
