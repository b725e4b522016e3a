package process_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"healthdash/internal/process"
	"healthdash/internal/render"
	dErrors "healthdash/pkg/domain-errors"
)

// blobs has two well separated groups of ten rows each plus one row with a
// missing cell.
func blobs() render.Table {
	t := render.Table{Columns: []string{"spend", "coverage", "region"}}
	for i := 0; i < 10; i++ {
		t.Rows = append(t.Rows, []string{fmt.Sprint(10 + i%3), fmt.Sprint(1 + float64(i%2)/10), "North"})
		t.Rows = append(t.Rows, []string{fmt.Sprint(100 + i%3), fmt.Sprint(9 + float64(i%2)/10), "South"})
	}
	t.Rows = append(t.Rows, []string{"", "3", "North"})
	return t
}

func TestParseFrame(t *testing.T) {
	f, err := process.ParseFrame(blobs())
	require.NoError(t, err)

	assert.Len(t, f.Rows, 20)
	assert.Equal(t, 1, f.Dropped)
	assert.Equal(t, []bool{true, true, false}, f.Numeric)

	_, err = process.ParseFrame(render.Table{Columns: []string{"a"}, Rows: [][]string{{"NaN"}}})
	require.Error(t, err)
	assert.Equal(t, dErrors.CodeValidation, dErrors.CodeOf(err))
}

func TestEncode(t *testing.T) {
	f, err := process.ParseFrame(render.Table{
		Columns: []string{"x", "kind"},
		Rows:    [][]string{{"1", "b"}, {"3", "a"}},
	})
	require.NoError(t, err)

	x, names, err := f.Encode(nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "kind=a", "kind=b"}, names)
	assert.True(t, mat.EqualApprox(mat.NewDense(2, 3, []float64{
		-1, 0, 1,
		1, 1, 0,
	}), x, 1e-9))

	_, _, err = f.Encode([]string{"missing"})
	assert.Error(t, err)
}

func TestKMeansSeparatesBlobs(t *testing.T) {
	f, err := process.ParseFrame(blobs())
	require.NoError(t, err)
	x, _, err := f.Encode([]string{"spend", "coverage"})
	require.NoError(t, err)

	res := process.KMeans(x, 2, 7)

	require.Len(t, res.Labels, 20)
	for i := 0; i < 20; i += 2 {
		assert.Equal(t, res.Labels[0], res.Labels[i], "row %d", i)
		assert.Equal(t, res.Labels[1], res.Labels[i+1], "row %d", i+1)
	}
	assert.NotEqual(t, res.Labels[0], res.Labels[1])
	assert.Equal(t, res, process.KMeans(x, 2, 7), "deterministic for a seed")
}

func TestElbow(t *testing.T) {
	f, err := process.ParseFrame(blobs())
	require.NoError(t, err)
	x, _, err := f.Encode([]string{"spend", "coverage"})
	require.NoError(t, err)

	sse, err := process.Elbow(context.Background(), x, 5, 7)
	require.NoError(t, err)
	require.Len(t, sse, 5)
	assert.Less(t, sse[1], sse[0], "two blobs fit two clusters better than one")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = process.Elbow(ctx, x, 5, 7)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestKnee(t *testing.T) {
	assert.Equal(t, 2, process.Knee([]float64{100, 20, 15, 12, 10, 9, 8, 7, 6, 5}))
	assert.Equal(t, 4, process.Knee([]float64{100, 90, 80, 10, 9, 8, 7, 6, 5, 4}))
	assert.Equal(t, 1, process.Knee([]float64{3, 3, 3}))
	assert.Equal(t, 1, process.Knee([]float64{10, 1}))
}

func TestProject(t *testing.T) {
	x := mat.NewDense(3, 1, []float64{1, 2, 3})
	assert.Equal(t, [][2]float64{{1, 0}, {2, 0}, {3, 0}}, process.Project(x))

	x = mat.NewDense(4, 2, []float64{1, 1, 2, 2, 3, 3, 4, 4})
	assert.Len(t, process.Project(x), 4)
}

func TestServiceCluster(t *testing.T) {
	svc := process.New()

	c, err := svc.Cluster(context.Background(), blobs(), process.ClusterQuery{})
	require.NoError(t, err)

	assert.Equal(t, 20, c.Rows)
	assert.Equal(t, 1, c.Dropped)
	assert.Len(t, c.SSE, 10)
	assert.Greater(t, c.SSE[0], c.SSE[1])
	assert.Equal(t, 2, c.SuggestedK)
	assert.Equal(t, 2, c.K, "the elbow suggestion is used when k is not set")
	assert.Equal(t, []string{"spend", "coverage", "region=North", "region=South"}, c.Features)

	require.Len(t, c.Profiles, 2)
	assert.Equal(t, 10, c.Profiles[0].Size)
	assert.Equal(t, 10, c.Profiles[1].Size)
	low, high := c.Profiles[0].Means["spend"], c.Profiles[1].Means["spend"]
	if low > high {
		low, high = high, low
	}
	assert.InDelta(t, 10.9, low, 1e-9)
	assert.InDelta(t, 100.9, high, 1e-9)

	assert.Equal(t, render.KindChart, c.Elbow.Kind)
	assert.Len(t, c.Scatter.Series, 2)

	table := c.Table()
	assert.Equal(t, []string{"spend", "coverage", "region", "Cluster"}, table.Columns)
	assert.Len(t, table.Rows, 20)
}

func TestServiceClusterValidation(t *testing.T) {
	svc := process.New()

	for name, q := range map[string]process.ClusterQuery{
		"k too large":    {K: 11},
		"k above rows":   {K: 3, Columns: []string{"x"}},
		"unknown column": {Columns: []string{"nope"}},
	} {
		t.Run(name, func(t *testing.T) {
			table := render.Table{Columns: []string{"x"}, Rows: [][]string{{"1"}, {"2"}}}
			_, err := svc.Cluster(context.Background(), table, q)
			require.Error(t, err)
			assert.Equal(t, dErrors.CodeValidation, dErrors.CodeOf(err))
		})
	}
}
