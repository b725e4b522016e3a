package process

import (
	"math"
	"slices"
	"strconv"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"healthdash/internal/dataset"
	"healthdash/internal/render"
)

const categories = 3

// Analyze drops incomplete runs, replaces outliers with their step median
// and offsets the cleaned values by the planned schedule.
func Analyze(cfg Config, d Dataset) *Analysis {
	complete := CompleteRuns(d.Runs)
	a := &Analysis{
		Steps:      d.Steps,
		Runs:       len(d.Runs),
		Complete:   len(complete),
		Dropped:    len(d.Runs) - len(complete),
		Stats:      []StepStats{},
		Completion: []StepCompletion{},
		Categories: []CategoryCompletion{},
	}

	gantt, r := Schedule(d.Steps, cfg.Seed)
	a.Gantt = gantt
	if len(complete) == 0 {
		a.Message = MsgNoCompleteRun
		a.Outliers = render.Message("Outliers on "+cfg.Step, MsgNoCompleteRun)
		a.Schedule = render.Message("Planned and actual completion", MsgNoCompleteRun)
		return a
	}

	a.Stats = Describe(d.Steps, complete)
	a.Outliers = outlierView(cfg.Step, slices.Index(d.Steps, cfg.Step), complete, a.Stats)

	cleaned := ReplaceOutliers(complete, a.Stats)
	a.offsets = make([][]float64, len(cleaned))
	for i, row := range cleaned {
		a.offsets[i] = make([]float64, len(row))
		for j, v := range row {
			a.offsets[i][j] = v + float64(gantt[j].Target)
		}
	}

	for j, step := range d.Steps {
		col := column(a.offsets, j)
		a.Completion = append(a.Completion, StepCompletion{
			Step:    step,
			Planned: gantt[j].End,
			Mean:    stat.Mean(col, nil),
			Min:     floats.Min(col),
			Max:     floats.Max(col),
		})
	}

	a.categories = make([]string, len(a.offsets))
	for i := range a.categories {
		a.categories[i] = "Category " + strconv.Itoa(1+r.IntN(categories))
	}
	a.Categories = categoryCompletion(a.offsets, a.categories)
	a.Schedule = scheduleView(a.Completion)
	return a
}

// CompleteRuns keeps the runs without a missing step.
func CompleteRuns(runs [][]float64) [][]float64 {
	return dataset.Filter(runs, func(row []float64) bool {
		return !slices.ContainsFunc(row, math.IsNaN)
	})
}

// Describe computes the per-step statistics. The standard deviation is the
// sample one.
func Describe(steps []string, runs [][]float64) []StepStats {
	out := make([]StepStats, 0, len(steps))
	for j, step := range steps {
		col := column(runs, j)
		mean, std := stat.MeanStdDev(col, nil)
		if math.IsNaN(std) {
			std = 0
		}
		s := StepStats{
			Step:   step,
			Mean:   mean,
			StdDev: std,
			Median: Median(col),
			Lower:  mean - OutlierWidth*std,
			Upper:  mean + OutlierWidth*std,
		}
		for _, v := range col {
			if s.IsOutlier(v) {
				s.Outliers++
			}
		}
		out = append(out, s)
	}
	return out
}

// ReplaceOutliers returns a copy of runs where outliers are replaced with
// their step median.
func ReplaceOutliers(runs [][]float64, stats []StepStats) [][]float64 {
	out := make([][]float64, len(runs))
	for i, row := range runs {
		out[i] = slices.Clone(row)
		for j, v := range row {
			if stats[j].IsOutlier(v) {
				out[i][j] = stats[j].Median
			}
		}
	}
	return out
}

// Median averages the two middle values of an even-length input.
func Median(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

func column(rows [][]float64, j int) []float64 {
	col := make([]float64, len(rows))
	for i, row := range rows {
		col[i] = row[j]
	}
	return col
}

func categoryCompletion(offsets [][]float64, cats []string) []CategoryCompletion {
	type row struct {
		category string
		last     float64
	}
	rows := make([]row, len(offsets))
	for i, o := range offsets {
		rows[i] = row{category: cats[i], last: o[len(o)-1]}
	}
	groups := dataset.GroupBy(rows, func(r row) ([]string, bool) {
		return []string{r.category}, true
	}, func(r row) (float64, bool) {
		return r.last, true
	}, dataset.Mean)

	out := make([]CategoryCompletion, 0, len(groups))
	for _, g := range groups {
		out = append(out, CategoryCompletion{Category: g.Keys[0], Runs: g.N, Mean: g.Value})
	}
	return out
}

func outlierView(step string, j int, runs [][]float64, stats []StepStats) render.View {
	within := dataset.Series{Name: "Within range"}
	outside := dataset.Series{Name: "Outlier"}
	for i, row := range runs {
		p := dataset.Point{X: strconv.Itoa(i + 1), Y: row[j]}
		if stats[j].IsOutlier(row[j]) {
			outside.Points = append(outside.Points, p)
		} else {
			within.Points = append(within.Points, p)
		}
	}
	v := render.ChartView("Outliers on "+step, render.Scatter, []dataset.Series{outside, within}, MsgNoCompleteRun)
	v.XLabel = "Run"
	v.YLabel = "Days from due date"
	return v
}

func scheduleView(completion []StepCompletion) render.View {
	planned := dataset.Series{Name: "Planned end"}
	actual := dataset.Series{Name: "Mean completion"}
	for i, c := range completion {
		x := strconv.Itoa(i + 1)
		planned.Points = append(planned.Points, dataset.Point{X: x, Y: float64(c.Planned)})
		actual.Points = append(actual.Points, dataset.Point{X: x, Y: c.Mean})
	}
	v := render.ChartView("Planned and actual completion", render.Line, []dataset.Series{actual, planned}, MsgNoCompleteRun)
	v.XLabel = "Step"
	v.YLabel = "Day"
	return v
}
