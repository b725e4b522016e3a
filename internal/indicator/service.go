package indicator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"healthdash/internal/dataset"
	"healthdash/internal/indicator/metrics"
	"healthdash/internal/reference"
	"healthdash/internal/render"
	"healthdash/internal/sources/who"
	"healthdash/internal/upstream"
	dErrors "healthdash/pkg/domain-errors"
)

// WHOSource is the slice of the WHO client the explorer reads.
type WHOSource interface {
	Indicators(ctx context.Context, keyword string) ([]who.Indicator, error)
	Observations(ctx context.Context, code string) ([]who.Observation, error)
}

// ReferenceSource provides the country reference table.
type ReferenceSource interface {
	Load(ctx context.Context) (reference.Table, error)
}

// Service runs indicator searches and explorations.
type Service struct {
	who     WHOSource
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

func New(whoSrc WHOSource, ref ReferenceSource, opts ...Option) (*Service, error) {
	if whoSrc == nil {
		return nil, errors.New("WHO source is required")
	}
	if ref == nil {
		return nil, errors.New("reference source is required")
	}
	s := &Service{who: whoSrc, ref: ref, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Search lists the indicators whose name contains keyword. An empty keyword
// lists the whole catalogue.
func (s *Service) Search(ctx context.Context, keyword string) (*SearchResult, error) {
	keyword = strings.TrimSpace(keyword)
	if len(keyword) > maxKeywordLen {
		return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("keyword must be at most %d characters", maxKeywordLen))
	}

	result := &SearchResult{Keyword: keyword, Indicators: []Indicator{}}
	list, err := s.who.Indicators(ctx, keyword)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		s.logger.WarnContext(ctx, "indicator search failed",
			"keyword", keyword,
			"category", upstream.CategoryOf(err),
			"error", err,
		)
		s.metrics.IncSearch("error")
		result.Message = MsgNoIndicator
		result.Warnings = []string{MsgUnavailable}
		return result, nil
	}

	seen := make(map[string]struct{}, len(list))
	for _, ind := range list {
		if _, dup := seen[ind.IndicatorCode]; dup {
			continue
		}
		seen[ind.IndicatorCode] = struct{}{}
		result.Indicators = append(result.Indicators, Indicator{Code: ind.IndicatorCode, Name: ind.IndicatorName})
	}
	if len(result.Indicators) == 0 {
		result.Message = MsgNoIndicator
		s.metrics.IncSearch("empty")
		return result, nil
	}
	s.metrics.IncSearch("found")
	return result, nil
}

// Explore loads an indicator, joins it with the reference table, applies the
// query's selections and builds the chart view.
func (s *Service) Explore(ctx context.Context, q Query) (*Exploration, error) {
	if err := q.Normalize(); err != nil {
		return nil, err
	}
	start := time.Now()
	defer func() { s.metrics.ObserveExplore(time.Since(start)) }()

	ex := &Exploration{Code: q.Code, Hue: q.Hue}
	title := q.title()

	ref, err := s.ref.Load(ctx)
	if err != nil {
		return nil, err
	}
	obs, err := s.who.Observations(ctx, q.Code)
	if err != nil {
		if derr := s.fetchFailed(ctx, q.Code, err); derr != nil {
			return nil, derr
		}
		ex.View = render.Message(title, MsgNoData, MsgUnavailable)
		return s.done(ex), nil
	}

	records := joinObservations(obs, ref)
	ex.Categorical = isCategorical(records)

	switch {
	case len(records) == 0:
		ex.View = render.Message(title, MsgNoData)
		return s.done(ex.withWarnings(ref.Warnings)), nil
	case !anyDated(records):
		ex.View = render.Message(title, MsgNotDated)
		return s.done(ex.withWarnings(ref.Warnings)), nil
	}

	var dim *Dimension
	records, dim = selectDimension("Dim1", records, func(r Record) string { return r.Dim1 }, q.Dim1)
	if dim != nil {
		ex.Dimensions = append(ex.Dimensions, *dim)
	}
	records, dim = selectDimension("Dim2", records, func(r Record) string { return r.Dim2 }, q.Dim2)
	if dim != nil {
		ex.Dimensions = append(ex.Dimensions, *dim)
	}

	ex.Countries = dataset.Distinct(records, func(r Record) string { return r.Country })
	ex.FirstYear, ex.LastYear = yearSpan(records)

	records = dataset.Filter(records,
		countryFilter(q.Countries),
		dataset.Between(q.FromYear, q.ToYear, yearOf),
	)
	ex.Records = records

	if ex.Categorical {
		ex.View = categoryView(title, q.Hue, records)
	} else {
		ex.View = numericView(q, records)
	}
	return s.done(ex.withWarnings(ref.Warnings)), nil
}

// Compare plots two indicators against each other for one year. The year
// defaults to the latest year both indicators cover.
func (s *Service) Compare(ctx context.Context, q CompareQuery) (*Comparison, error) {
	if err := q.Normalize(); err != nil {
		return nil, err
	}
	ref, err := s.ref.Load(ctx)
	if err != nil {
		return nil, err
	}

	var xs, ys []who.Observation
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		xs, err = s.who.Observations(gctx, q.X.Code)
		return err
	})
	g.Go(func() error {
		var err error
		ys, err = s.who.Observations(gctx, q.Y.Code)
		return err
	})

	cmp := &Comparison{X: q.X.Code, Y: q.Y.Code, Hue: q.Hue}
	title := q.X.title() + " vs " + q.Y.title()
	if err := g.Wait(); err != nil {
		if derr := s.fetchFailed(ctx, q.X.Code+","+q.Y.Code, err); derr != nil {
			return nil, derr
		}
		cmp.View = render.Message(title, MsgNoData, MsgUnavailable)
		return cmp, nil
	}

	xv := numericByCountryYear(joinObservations(xs, ref), q.X)
	yv := numericByCountryYear(joinObservations(ys, ref), q.Y)

	years := make(map[int]struct{})
	for k := range xv {
		if _, ok := yv[k]; ok {
			years[k.year] = struct{}{}
		}
	}
	for y := range years {
		cmp.Years = append(cmp.Years, y)
	}
	sort.Ints(cmp.Years)

	cmp.Year = q.Year
	if cmp.Year == 0 && len(cmp.Years) > 0 {
		cmp.Year = cmp.Years[len(cmp.Years)-1]
	}

	byHue := make(map[string][]dataset.Point)
	for k, x := range xv {
		y, ok := yv[k]
		if !ok || k.year != cmp.Year {
			continue
		}
		label := q.Hue.Of(x.country)
		byHue[label] = append(byHue[label], dataset.Point{X: render.FormatFloat(*x.value), Y: *y.value})
	}
	series := make([]dataset.Series, 0, len(byHue))
	for name, pts := range byHue {
		sort.Slice(pts, func(i, j int) bool {
			if pts[i].Y != pts[j].Y {
				return pts[i].Y < pts[j].Y
			}
			return pts[i].X < pts[j].X
		})
		series = append(series, dataset.Series{Name: name, Points: pts})
	}
	sort.Slice(series, func(i, j int) bool { return series[i].Name < series[j].Name })

	cmp.View = render.ChartView(fmt.Sprintf("%s (%d)", title, cmp.Year), render.Scatter, series, MsgNoData).
		WithWarnings(ref.Warnings...)
	cmp.View.XLabel = q.X.title()
	cmp.View.YLabel = q.Y.title()
	return cmp, nil
}

// Comparison is the result of Compare.
type Comparison struct {
	X     string      `json:"x"`
	Y     string      `json:"y"`
	Hue   Hue         `json:"hue"`
	Year  int         `json:"year,omitempty"`
	Years []int       `json:"years"`
	View  render.View `json:"view"`
}

// fetchFailed maps an observation fetch failure: unknown indicators and
// cancellations are errors; anything else degrades to a warning view.
func (s *Service) fetchFailed(ctx context.Context, code string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if upstream.CategoryOf(err) == upstream.CategoryNotFound {
		return dErrors.Wrap(err, dErrors.CodeNotFound, fmt.Sprintf("indicator %q not found", code))
	}
	s.logger.WarnContext(ctx, "indicator fetch failed",
		"code", code,
		"category", upstream.CategoryOf(err),
		"error", err,
	)
	return nil
}

func (s *Service) done(ex *Exploration) *Exploration {
	s.metrics.IncExploration(string(ex.View.Kind))
	return ex
}

func (e *Exploration) withWarnings(w []string) *Exploration {
	e.View = e.View.WithWarnings(w...)
	return e
}

func (q Query) title() string {
	if q.Name != "" {
		return q.Name
	}
	return q.Code
}

// SexLabel maps WHO sex codes to display labels. Other values pass through.
func SexLabel(dim string) string {
	switch strings.TrimPrefix(dim, "SEX_") {
	case "BTSX":
		return "Both sex"
	case "MLE":
		return "Male"
	case "FMLE":
		return "Female"
	default:
		return dim
	}
}

func joinObservations(obs []who.Observation, ref reference.Table) []Record {
	countryLevel := dataset.Filter(obs, func(o who.Observation) bool {
		return o.SpatialDimType == who.SpatialDimCountry
	})
	rows := dataset.InnerJoin(countryLevel, ref)

	out := make([]Record, 0, len(rows))
	for _, r := range rows {
		o := r.Record
		out = append(out, Record{
			Country:     r.Country.Name,
			Code:        r.Country.Code,
			Region:      r.Country.Region,
			IncomeLevel: r.Country.IncomeLevel,
			Dim1:        SexLabel(o.Dim1),
			Dim2:        o.Dim2,
			Year:        o.TimeDim,
			Category:    o.Value,
			Value:       o.NumericValue,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Code != out[j].Code {
			return out[i].Code < out[j].Code
		}
		yi, _ := yearOf(out[i])
		yj, _ := yearOf(out[j])
		return yi < yj
	})
	return out
}

func isCategorical(records []Record) bool {
	if len(records) == 0 {
		return false
	}
	for _, r := range records {
		if r.Value != nil {
			return false
		}
	}
	return true
}

func anyDated(records []Record) bool {
	return slices.ContainsFunc(records, func(r Record) bool { return r.Year != nil })
}

func yearOf(r Record) (int, bool) {
	if r.Year == nil {
		return 0, false
	}
	return *r.Year, true
}

func yearSpan(records []Record) (first, last int) {
	for _, r := range records {
		y, ok := yearOf(r)
		if !ok {
			continue
		}
		if first == 0 || y < first {
			first = y
		}
		if y > last {
			last = y
		}
	}
	return first, last
}

// selectDimension narrows records to one value of a dimension when it has
// more than one. The requested value wins when present, otherwise the first.
func selectDimension(name string, records []Record, field func(Record) string, want string) ([]Record, *Dimension) {
	options := dataset.Distinct(records, field)
	if len(options) <= 1 {
		return records, nil
	}
	selected := options[0]
	if slices.Contains(options, want) {
		selected = want
	}
	return dataset.Filter(records, dataset.In([]string{selected}, field)),
		&Dimension{Name: name, Options: options, Selected: selected}
}

// countryFilter matches either the country name or its ISO3 code.
func countryFilter(countries []string) dataset.Predicate[Record] {
	if len(countries) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(countries))
	for _, c := range countries {
		set[c] = struct{}{}
	}
	return func(r Record) bool {
		_, byName := set[r.Country]
		_, byCode := set[r.Code]
		return byName || byCode
	}
}

func categoryView(title string, hue Hue, records []Record) render.View {
	groups := dataset.GroupBy(records, func(r Record) ([]string, bool) {
		if r.Category == "" {
			return nil, false
		}
		return []string{r.Category, hue.Of(r.country())}, true
	}, nil, dataset.Count)

	v := render.ChartView(title, render.Bar, dataset.ToSeries(groups, 0, 1), MsgNoData)
	v.XLabel = string(hue)
	v.YLabel = "Observations"
	return v
}

func numericView(q Query, records []Record) render.View {
	numeric := dataset.Filter(records, func(r Record) bool { return r.Value != nil && r.Year != nil })
	years := dataset.Distinct(numeric, func(r Record) string { return strconv.Itoa(*r.Year) })
	if len(years) == 0 {
		return render.Message(q.title(), MsgNoData)
	}
	title := fmt.Sprintf("%s (%s - %s)", q.title(), years[0], years[len(years)-1])

	var v render.View
	if len(years) == 1 {
		v = render.ChartView(title, render.Scatter, stripSeries(q.Hue, numeric), MsgNoData)
		v.XLabel = string(q.Hue)
	} else {
		groups := dataset.GroupBy(numeric, func(r Record) ([]string, bool) {
			return []string{strconv.Itoa(*r.Year), q.Hue.Of(r.country())}, true
		}, func(r Record) (float64, bool) {
			return *r.Value, true
		}, q.Hue.Agg())
		v = render.ChartView(title, render.Line, dataset.ToSeries(groups, 1, 0), MsgNoData)
		v.XLabel = "Year"
	}
	v.YLabel = q.title()
	return v
}

// stripSeries keeps every value of a single-year indicator, one series per
// hue label placed at that label on the x axis.
func stripSeries(hue Hue, records []Record) []dataset.Series {
	byHue := make(map[string][]dataset.Point)
	for _, r := range records {
		label := hue.Of(r.country())
		byHue[label] = append(byHue[label], dataset.Point{X: label, Y: *r.Value})
	}
	out := make([]dataset.Series, 0, len(byHue))
	for name, pts := range byHue {
		out = append(out, dataset.Series{Name: name, Points: pts})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (r Record) country() reference.Country {
	return reference.Country{Code: r.Code, Name: r.Country, Region: r.Region, IncomeLevel: r.IncomeLevel}
}

type countryYear struct {
	code string
	year int
}

type valued struct {
	country reference.Country
	value   *float64
}

// numericByCountryYear applies q's dimension defaults and keys numeric values
// by country and year.
func numericByCountryYear(records []Record, q Query) map[countryYear]valued {
	records, _ = selectDimension("Dim1", records, func(r Record) string { return r.Dim1 }, q.Dim1)
	records, _ = selectDimension("Dim2", records, func(r Record) string { return r.Dim2 }, q.Dim2)

	out := make(map[countryYear]valued, len(records))
	for _, r := range records {
		if r.Value == nil || r.Year == nil {
			continue
		}
		out[countryYear{code: r.Code, year: *r.Year}] = valued{country: r.country(), value: r.Value}
	}
	return out
}
