// Package process analyses step completion data: outlier replacement, a
// planned schedule to compare against, and k-means clustering of uploaded
// datasets.
package process

import (
	"fmt"
	"strconv"

	"healthdash/internal/dataset"
	"healthdash/internal/render"
	dErrors "healthdash/pkg/domain-errors"
)

const (
	DefaultSteps = 5
	DefaultRuns  = 500
	DefaultSeed  = 12345
	MaxSteps     = 20
	MaxRuns      = 1000

	// OutlierWidth is the number of standard deviations around the step mean
	// inside which a value is not an outlier.
	OutlierWidth = 1.0

	MsgNoCompleteRun = "No process run completed every step"
)

// Config parameterizes the synthetic process dataset.
type Config struct {
	Steps int    `json:"steps"`
	Runs  int    `json:"runs"`
	Seed  uint64 `json:"seed"`
	// Step is the step shown on the outlier view, the last one by default.
	Step string `json:"step"`
}

func (c *Config) Normalize() error {
	if c.Steps == 0 {
		c.Steps = DefaultSteps
	}
	if c.Runs == 0 {
		c.Runs = DefaultRuns
	}
	if c.Seed == 0 {
		c.Seed = DefaultSeed
	}
	if c.Steps < 1 || c.Steps > MaxSteps {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("steps must be between 1 and %d", MaxSteps))
	}
	if c.Runs < 1 || c.Runs > MaxRuns {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("runs must be between 1 and %d", MaxRuns))
	}
	if c.Step == "" {
		c.Step = StepName(c.Steps - 1)
		return nil
	}
	for i := 0; i < c.Steps; i++ {
		if StepName(i) == c.Step {
			return nil
		}
	}
	return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("unknown step %q", c.Step))
}

// StepName is the column name of the zero-based step i.
func StepName(i int) string {
	return "Step " + strconv.Itoa(i+1)
}

// Dataset holds one row per process run and one column per step. Missing
// completions are NaN.
type Dataset struct {
	Steps []string
	Runs  [][]float64
}

// StepStats describes one step of the complete runs.
type StepStats struct {
	Step     string  `json:"step"`
	Mean     float64 `json:"mean"`
	StdDev   float64 `json:"std_dev"`
	Median   float64 `json:"median"`
	Lower    float64 `json:"lower"`
	Upper    float64 `json:"upper"`
	Outliers int     `json:"outliers"`
}

// IsOutlier reports whether v lies outside [Lower, Upper].
func (s StepStats) IsOutlier(v float64) bool {
	return v < s.Lower || v > s.Upper
}

// Task is one milestone of the planned schedule, in days.
type Task struct {
	Step     string `json:"step"`
	Start    int    `json:"start"`
	End      int    `json:"end"`
	Duration int    `json:"duration"`
	// Target is the cumulative due day the completions are offset against.
	Target int `json:"target"`
}

// StepCompletion compares the cleaned completions of a step with its plan.
type StepCompletion struct {
	Step    string  `json:"step"`
	Planned int     `json:"planned"`
	Mean    float64 `json:"mean"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
}

// CategoryCompletion is the mean completion day of the last step per run
// category.
type CategoryCompletion struct {
	Category string  `json:"category"`
	Runs     int     `json:"runs"`
	Mean     float64 `json:"mean"`
}

// Analysis is the process dashboard.
type Analysis struct {
	Steps      []string             `json:"steps"`
	Runs       int                  `json:"runs"`
	Complete   int                  `json:"complete"`
	Dropped    int                  `json:"dropped"`
	Stats      []StepStats          `json:"stats"`
	Gantt      []Task               `json:"gantt"`
	Completion []StepCompletion     `json:"completion"`
	Categories []CategoryCompletion `json:"categories"`
	Outliers   render.View          `json:"outliers"`
	Schedule   render.View          `json:"schedule"`
	Message    string               `json:"message,omitempty"`

	// offsets are the cleaned completion days of each complete run.
	offsets    [][]float64
	categories []string
}

// Table is the export form of the cleaned completion days.
func (a *Analysis) Table() render.Table {
	t := render.Table{Columns: append(append([]string{"Run"}, a.Steps...), "Category")}
	for i, row := range a.offsets {
		rec := make([]string, 0, len(row)+2)
		rec = append(rec, strconv.Itoa(i+1))
		for _, v := range row {
			rec = append(rec, render.FormatFloat(v))
		}
		rec = append(rec, a.categories[i])
		t.Rows = append(t.Rows, rec)
	}
	return t
}

// ClusterQuery selects the features and cluster count of a clustering.
type ClusterQuery struct {
	// K is the number of clusters. Zero uses the elbow suggestion.
	K int `json:"k"`
	// Columns restricts the features. Empty uses every column.
	Columns []string `json:"columns"`
	Seed    uint64   `json:"seed"`
}

// ClusterProfile summarizes one cluster on the original numeric columns.
type ClusterProfile struct {
	Cluster int                `json:"cluster"`
	Size    int                `json:"size"`
	Means   map[string]float64 `json:"means"`
}

// Clustering is the k-means dashboard of an uploaded dataset.
type Clustering struct {
	K          int              `json:"k"`
	SuggestedK int              `json:"suggested_k"`
	Features   []string         `json:"features"`
	Rows       int              `json:"rows"`
	Dropped    int              `json:"dropped"`
	SSE        []float64        `json:"sse"`
	Profiles   []ClusterProfile `json:"profiles"`
	Elbow      render.View      `json:"elbow"`
	Scatter    render.View      `json:"scatter"`

	frame  *Frame
	labels []int
}

// Table is the uploaded rows without missing values plus their cluster.
func (c *Clustering) Table() render.Table {
	t := render.Table{Columns: append(append([]string{}, c.frame.Columns...), "Cluster")}
	for i, row := range c.frame.Rows {
		rec := append(append(make([]string, 0, len(row)+1), row...), clusterName(c.labels[i]))
		t.Rows = append(t.Rows, rec)
	}
	return t
}

func clusterName(label int) string {
	return "Cluster " + strconv.Itoa(label+1)
}

func elbowSeries(sse []float64) []dataset.Series {
	s := dataset.Series{Name: "SSE"}
	for i, v := range sse {
		s.Points = append(s.Points, dataset.Point{X: strconv.Itoa(i + 1), Y: v})
	}
	return []dataset.Series{s}
}
