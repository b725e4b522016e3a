package process

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"healthdash/internal/render"
	dErrors "healthdash/pkg/domain-errors"
)

const (
	MaxClusters = 10
	restarts    = 10
	maxIter     = 300
)

// Frame is an uploaded table with its missing rows removed and every column
// typed as numeric or categorical.
type Frame struct {
	Columns []string
	Numeric []bool
	Rows    [][]string
	Dropped int
}

// ParseFrame drops rows with a missing cell. A column is numeric when every
// remaining cell parses as a number.
func ParseFrame(t render.Table) (*Frame, error) {
	if len(t.Columns) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "dataset has no column")
	}
	f := &Frame{Columns: t.Columns, Numeric: make([]bool, len(t.Columns))}
	for _, row := range t.Rows {
		if len(row) != len(t.Columns) || slices.ContainsFunc(row, missing) {
			f.Dropped++
			continue
		}
		f.Rows = append(f.Rows, row)
	}
	if len(f.Rows) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "dataset has no complete row")
	}
	for j := range f.Columns {
		f.Numeric[j] = true
		for _, row := range f.Rows {
			if _, err := strconv.ParseFloat(strings.TrimSpace(row[j]), 64); err != nil {
				f.Numeric[j] = false
				break
			}
		}
	}
	return f, nil
}

func missing(cell string) bool {
	switch strings.ToLower(strings.TrimSpace(cell)) {
	case "", "na", "nan", "null":
		return true
	}
	return false
}

// Encode builds the feature matrix of the selected columns: numeric columns
// standardized to zero mean and unit population variance, categorical
// columns one-hot encoded in sorted value order.
func (f *Frame) Encode(columns []string) (*mat.Dense, []string, error) {
	idx := make([]int, 0, len(f.Columns))
	if len(columns) == 0 {
		for j := range f.Columns {
			idx = append(idx, j)
		}
	}
	for _, c := range columns {
		j := slices.Index(f.Columns, c)
		if j < 0 {
			return nil, nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("unknown column %q", c))
		}
		idx = append(idx, j)
	}

	var names []string
	var cols [][]float64
	for _, j := range idx {
		if f.Numeric[j] {
			col := f.numeric(j)
			mean, std := stat.PopMeanStdDev(col, nil)
			for i := range col {
				if std > 0 {
					col[i] = (col[i] - mean) / std
				} else {
					col[i] = 0
				}
			}
			names = append(names, f.Columns[j])
			cols = append(cols, col)
			continue
		}
		values := f.distinct(j)
		for _, v := range values {
			col := make([]float64, len(f.Rows))
			for i, row := range f.Rows {
				if strings.TrimSpace(row[j]) == v {
					col[i] = 1
				}
			}
			names = append(names, f.Columns[j]+"="+v)
			cols = append(cols, col)
		}
	}

	x := mat.NewDense(len(f.Rows), len(cols), nil)
	for j, col := range cols {
		x.SetCol(j, col)
	}
	return x, names, nil
}

func (f *Frame) numeric(j int) []float64 {
	col := make([]float64, len(f.Rows))
	for i, row := range f.Rows {
		col[i], _ = strconv.ParseFloat(strings.TrimSpace(row[j]), 64)
	}
	return col
}

func (f *Frame) distinct(j int) []string {
	var values []string
	for _, row := range f.Rows {
		v := strings.TrimSpace(row[j])
		if !slices.Contains(values, v) {
			values = append(values, v)
		}
	}
	slices.Sort(values)
	return values
}

// KMeansResult is a fitted partition.
type KMeansResult struct {
	Labels    []int
	Centroids [][]float64
	// SSE is the sum of squared distances to the closest centroid.
	SSE float64
}

// KMeans partitions the rows of x into k clusters. It keeps the best of
// several k-means++ seeded runs.
func KMeans(x mat.Matrix, k int, seed uint64) KMeansResult {
	points := rowsOf(x)
	r := rand.New(rand.NewPCG(seed, uint64(k)))
	best := KMeansResult{SSE: math.Inf(1)}
	for i := 0; i < restarts; i++ {
		res := lloyd(points, seedCentroids(points, k, r))
		if res.SSE < best.SSE {
			best = res
		}
	}
	return best
}

func rowsOf(x mat.Matrix) [][]float64 {
	n, d := x.Dims()
	points := make([][]float64, n)
	for i := range points {
		points[i] = make([]float64, d)
		mat.Row(points[i], i, x)
	}
	return points
}

// seedCentroids picks k-means++ initial centroids: each next centroid is
// drawn with probability proportional to its squared distance to the
// closest centroid already chosen.
func seedCentroids(points [][]float64, k int, r *rand.Rand) [][]float64 {
	centroids := [][]float64{slices.Clone(points[r.IntN(len(points))])}
	dist := make([]float64, len(points))
	for len(centroids) < k {
		for i, p := range points {
			dist[i] = squaredDistance(p, centroids[len(centroids)-1])
			if len(centroids) > 1 {
				dist[i] = math.Min(dist[i], nearest(p, centroids[:len(centroids)-1]))
			}
		}
		total := floats.Sum(dist)
		next := r.IntN(len(points))
		if total > 0 {
			target := r.Float64() * total
			for i, d := range dist {
				target -= d
				if target <= 0 {
					next = i
					break
				}
			}
		}
		centroids = append(centroids, slices.Clone(points[next]))
	}
	return centroids
}

func lloyd(points [][]float64, centroids [][]float64) KMeansResult {
	k, d := len(centroids), len(points[0])
	labels := make([]int, len(points))
	for i := range labels {
		labels[i] = -1
	}
	for iter := 0; iter < maxIter; iter++ {
		changed := false
		for i, p := range points {
			if c := closest(p, centroids); c != labels[i] {
				labels[i] = c
				changed = true
			}
		}
		if !changed {
			break
		}

		sums := make([][]float64, k)
		counts := make([]int, k)
		for c := range sums {
			sums[c] = make([]float64, d)
		}
		for i, p := range points {
			floats.Add(sums[labels[i]], p)
			counts[labels[i]]++
		}
		for c := range centroids {
			// An emptied cluster keeps its previous centroid.
			if counts[c] > 0 {
				floats.Scale(1/float64(counts[c]), sums[c])
				centroids[c] = sums[c]
			}
		}
	}

	res := KMeansResult{Labels: labels, Centroids: centroids}
	for i, p := range points {
		res.SSE += squaredDistance(p, centroids[labels[i]])
	}
	return res
}

func closest(p []float64, centroids [][]float64) int {
	best, bestDist := 0, math.Inf(1)
	for c, centroid := range centroids {
		if d := squaredDistance(p, centroid); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}

func nearest(p []float64, centroids [][]float64) float64 {
	return squaredDistance(p, centroids[closest(p, centroids)])
}

func squaredDistance(a, b []float64) float64 {
	d := floats.Distance(a, b, 2)
	return d * d
}

// Elbow returns the SSE of k = 1..maxK, stopping early when ctx is done.
func Elbow(ctx context.Context, x mat.Matrix, maxK int, seed uint64) ([]float64, error) {
	sse := make([]float64, 0, maxK)
	for k := 1; k <= maxK; k++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		sse = append(sse, KMeans(x, k, seed).SSE)
	}
	return sse, nil
}

// Knee returns the k (1-based) of a decreasing SSE curve that lies farthest
// below the chord joining its first and last points, both axes normalized.
func Knee(sse []float64) int {
	n := len(sse)
	if n < 3 {
		return 1
	}
	hi, lo := floats.Max(sse), floats.Min(sse)
	if hi == lo {
		return 1
	}
	first := (sse[0] - lo) / (hi - lo)
	last := (sse[n-1] - lo) / (hi - lo)

	best, bestGap := 1, 0.0
	for i, v := range sse {
		x := float64(i) / float64(n-1)
		y := (v - lo) / (hi - lo)
		chord := first + (last-first)*x
		if gap := chord - y; gap > bestGap {
			best, bestGap = i+1, gap
		}
	}
	return best
}

// Project returns the first two principal components of each row of x. A
// single-feature matrix projects onto that feature.
func Project(x *mat.Dense) [][2]float64 {
	n, d := x.Dims()
	out := make([][2]float64, n)
	if d < 2 || n < 2 {
		for i := range out {
			out[i][0] = x.At(i, 0)
		}
		return out
	}

	var pc stat.PC
	if !pc.PrincipalComponents(x, nil) {
		for i := range out {
			out[i] = [2]float64{x.At(i, 0), x.At(i, 1)}
		}
		return out
	}
	var vecs mat.Dense
	pc.VectorsTo(&vecs)

	var proj mat.Dense
	proj.Mul(x, vecs.Slice(0, d, 0, 2))
	for i := range out {
		out[i] = [2]float64{proj.At(i, 0), proj.At(i, 1)}
	}
	return out
}
