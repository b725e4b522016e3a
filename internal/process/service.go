package process

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"healthdash/internal/dataset"
	"healthdash/internal/process/metrics"
	"healthdash/internal/render"
	dErrors "healthdash/pkg/domain-errors"
)

// Service runs the process analysis and clustering dashboards.
type Service struct {
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

func New(opts ...Option) *Service {
	s := &Service{logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Analyze generates the dataset described by cfg and analyses it.
func (s *Service) Analyze(ctx context.Context, cfg Config) (*Analysis, error) {
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()
	a := Analyze(cfg, Generate(cfg))
	s.metrics.ObserveAnalysis("analysis", time.Since(start))
	return a, nil
}

// Cluster fits k-means on the uploaded table. The elbow curve covers k = 1 up
// to 10 or the number of complete rows.
func (s *Service) Cluster(ctx context.Context, t render.Table, q ClusterQuery) (*Clustering, error) {
	start := time.Now()
	frame, err := ParseFrame(t)
	if err != nil {
		return nil, err
	}
	if q.K < 0 || q.K > MaxClusters {
		return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("k must be between 1 and %d", MaxClusters))
	}
	if q.K > len(frame.Rows) {
		return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("k must not exceed the %d complete rows", len(frame.Rows)))
	}
	if q.Seed == 0 {
		q.Seed = DefaultSeed
	}

	x, features, err := frame.Encode(q.Columns)
	if err != nil {
		return nil, err
	}

	sse, err := Elbow(ctx, x, min(MaxClusters, len(frame.Rows)), q.Seed)
	if err != nil {
		return nil, err
	}

	c := &Clustering{
		K:          q.K,
		SuggestedK: Knee(sse),
		Features:   features,
		Rows:       len(frame.Rows),
		Dropped:    frame.Dropped,
		SSE:        sse,
		frame:      frame,
	}
	if c.K == 0 {
		c.K = c.SuggestedK
	}
	fit := KMeans(x, c.K, q.Seed)
	c.labels = fit.Labels
	c.Profiles = profiles(frame, fit.Labels, c.K)

	elbow := render.ChartView("Elbow method", render.Line, elbowSeries(sse), "")
	elbow.XLabel = "Number of clusters"
	elbow.YLabel = "SSE"
	c.Elbow = elbow
	c.Scatter = scatterView(Project(x), fit.Labels, c.K)

	s.metrics.ObserveAnalysis("clustering", time.Since(start))
	s.metrics.ObserveClusters(c.K)
	s.logger.InfoContext(ctx, "dataset clustered",
		"rows", c.Rows,
		"dropped", c.Dropped,
		"features", len(features),
		"k", c.K,
		"suggested_k", c.SuggestedK,
	)
	return c, nil
}

func profiles(f *Frame, labels []int, k int) []ClusterProfile {
	out := make([]ClusterProfile, k)
	for c := range out {
		out[c] = ClusterProfile{Cluster: c + 1, Means: map[string]float64{}}
	}
	for _, l := range labels {
		out[l].Size++
	}
	for j, col := range f.Columns {
		if !f.Numeric[j] {
			continue
		}
		values := f.numeric(j)
		for c := range out {
			if out[c].Size == 0 {
				continue
			}
			sum := 0.0
			for i, l := range labels {
				if l == c {
					sum += values[i]
				}
			}
			out[c].Means[col] = sum / float64(out[c].Size)
		}
	}
	return out
}

func scatterView(points [][2]float64, labels []int, k int) render.View {
	series := make([]dataset.Series, k)
	for c := range series {
		series[c].Name = clusterName(c)
	}
	for i, p := range points {
		s := &series[labels[i]]
		s.Points = append(s.Points, dataset.Point{X: render.FormatFloat(p[0]), Y: p[1]})
	}
	series = dataset.Filter(series, func(s dataset.Series) bool { return len(s.Points) > 0 })

	v := render.ChartView("Clusters on the first two principal components", render.Scatter, series, "")
	v.XLabel = "PC1"
	v.YLabel = "PC2"
	return v
}
