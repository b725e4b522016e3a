// Package dataset holds the join, filter and grouping steps shared by the
// dashboards. Records are joined to the country reference table by ISO3 code.
package dataset

import (
	"sort"
	"strconv"
	"strings"

	"healthdash/internal/reference"
)

// Keyed records carry the country code they are joined on.
type Keyed interface {
	CountryCode() string
}

// Row is a record paired with its reference country.
type Row[T any] struct {
	Record  T
	Country reference.Country
	Matched bool
}

// InnerJoin keeps records whose code has a reference row: one output row per
// matching record, in input order. Unmatched records are dropped.
func InnerJoin[T Keyed](records []T, ref reference.Table) []Row[T] {
	out := make([]Row[T], 0, len(records))
	for _, r := range records {
		c, ok := ref.Lookup(r.CountryCode())
		if !ok {
			continue
		}
		out = append(out, Row[T]{Record: r, Country: c, Matched: true})
	}
	return out
}

// LeftJoin keeps every record. Unmatched records get fallback labels with the
// record's own code.
func LeftJoin[T Keyed](records []T, ref reference.Table, fallback reference.Country) []Row[T] {
	out := make([]Row[T], 0, len(records))
	for _, r := range records {
		c, ok := ref.Lookup(r.CountryCode())
		if !ok {
			c = fallback
			c.Code = r.CountryCode()
		}
		out = append(out, Row[T]{Record: r, Country: c, Matched: ok})
	}
	return out
}

// Predicate selects rows.
type Predicate[T any] func(T) bool

// Filter returns the rows accepted by every predicate. Nil predicates are skipped.
func Filter[T any](rows []T, preds ...Predicate[T]) []T {
	out := make([]T, 0, len(rows))
next:
	for _, r := range rows {
		for _, p := range preds {
			if p != nil && !p(r) {
				continue next
			}
		}
		out = append(out, r)
	}
	return out
}

// In matches rows whose field is one of values. An empty selection means no
// filter and returns nil.
func In[T any](values []string, field func(T) string) Predicate[T] {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return func(r T) bool {
		_, ok := set[field(r)]
		return ok
	}
}

// Between matches rows whose year lies in [from, to]. A zero bound is open.
// Rows without a year never match a bounded range.
func Between[T any](from, to int, year func(T) (int, bool)) Predicate[T] {
	if from == 0 && to == 0 {
		return nil
	}
	return func(r T) bool {
		y, ok := year(r)
		if !ok {
			return false
		}
		if from != 0 && y < from {
			return false
		}
		if to != 0 && y > to {
			return false
		}
		return true
	}
}

// Distinct returns the sorted distinct non-empty values of field.
func Distinct[T any](rows []T, field func(T) string) []string {
	seen := make(map[string]struct{})
	for _, r := range rows {
		if v := field(r); v != "" {
			seen[v] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return lessPart(out[i], out[j]) })
	return out
}

// Agg is a group aggregation.
type Agg int

const (
	Sum Agg = iota
	Mean
	Count
)

func (a Agg) String() string {
	switch a {
	case Sum:
		return "sum"
	case Mean:
		return "mean"
	default:
		return "count"
	}
}

// Group is one aggregated cell.
type Group struct {
	Keys  []string
	Value float64
	N     int
}

// GroupBy aggregates rows by the parts returned from keys. Rows for which keys
// reports false are skipped; so are missing values except under Count. Groups
// are ordered by key, numerically where both parts are integers. Mean groups
// without any value are omitted.
func GroupBy[T any](rows []T, keys func(T) ([]string, bool), value func(T) (float64, bool), agg Agg) []Group {
	type acc struct {
		keys []string
		sum  float64
		n    int
	}
	cells := make(map[string]*acc)
	for _, r := range rows {
		k, ok := keys(r)
		if !ok {
			continue
		}
		id := strings.Join(k, "\x00")
		a, exists := cells[id]
		if !exists {
			a = &acc{keys: k}
			cells[id] = a
		}
		if agg == Count {
			a.n++
			continue
		}
		v, ok := value(r)
		if !ok {
			continue
		}
		a.sum += v
		a.n++
	}

	out := make([]Group, 0, len(cells))
	for _, a := range cells {
		g := Group{Keys: a.keys, N: a.n}
		switch agg {
		case Sum:
			g.Value = a.sum
		case Mean:
			if a.n == 0 {
				continue
			}
			g.Value = a.sum / float64(a.n)
		case Count:
			g.Value = float64(a.n)
		}
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return lessKeys(out[i].Keys, out[j].Keys) })
	return out
}

func lessKeys(a, b []string) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return lessPart(a[i], b[i])
		}
	}
	return len(a) < len(b)
}

func lessPart(a, b string) bool {
	ai, errA := strconv.Atoi(a)
	bi, errB := strconv.Atoi(b)
	if errA == nil && errB == nil {
		return ai < bi
	}
	return a < b
}

// Point is one x/y pair of a series.
type Point struct {
	X string  `json:"x"`
	Y float64 `json:"y"`
}

// Series is a named line or bar group.
type Series struct {
	Name   string  `json:"name"`
	Points []Point `json:"points"`
}

// ToSeries pivots groups into one series per value of Keys[seriesPart] with
// Keys[xPart] on the x axis. Series are ordered by name; points keep group order.
func ToSeries(groups []Group, seriesPart, xPart int) []Series {
	idx := make(map[string]int)
	var out []Series
	for _, g := range groups {
		if seriesPart >= len(g.Keys) || xPart >= len(g.Keys) {
			continue
		}
		name := g.Keys[seriesPart]
		i, ok := idx[name]
		if !ok {
			i = len(out)
			idx[name] = i
			out = append(out, Series{Name: name})
		}
		out[i].Points = append(out[i].Points, Point{X: g.Keys[xPart], Y: g.Value})
	}
	sort.SliceStable(out, func(i, j int) bool { return lessPart(out[i].Name, out[j].Name) })
	for i := range out {
		pts := out[i].Points
		sort.SliceStable(pts, func(a, b int) bool { return lessPart(pts[a].X, pts[b].X) })
	}
	return out
}
