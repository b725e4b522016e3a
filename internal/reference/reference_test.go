package reference

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"healthdash/internal/sources/who"
	"healthdash/internal/sources/worldbank"
	"healthdash/internal/upstream"
)

type fakeWHO struct {
	calls atomic.Int32
	rows  []who.Country
	err   error
}

func (f *fakeWHO) Countries(context.Context) ([]who.Country, error) {
	f.calls.Add(1)
	return f.rows, f.err
}

type fakeWB struct {
	calls atomic.Int32
	rows  []worldbank.Economy
	err   error
}

func (f *fakeWB) Economies(context.Context) ([]worldbank.Economy, error) {
	f.calls.Add(1)
	return f.rows, f.err
}

type fakeForgetter struct{ urls []string }

func (f *fakeForgetter) Forget(_ context.Context, url string) error {
	f.urls = append(f.urls, url)
	return nil
}

func economy(id, region, income string) worldbank.Economy {
	return worldbank.Economy{ID: id, Region: worldbank.Ref{ID: region}, IncomeLevel: worldbank.Ref{ID: income}}
}

func whoRows() []who.Country {
	return []who.Country{
		{Code: "KEN", Title: "Kenya"},
		{Code: "AFG", Title: "Afghanistan"},
		{Code: "XKX", Title: "Kosovo (in accordance with UN Security Council resolution 1244 (1999))"},
	}
}

func wbRows() []worldbank.Economy {
	return []worldbank.Economy{
		economy("AFG", "SAS", "LIC"),
		economy("KEN", "SSF", "LMC"),
		economy("WLD", "NA", "NA"),
		economy("FRA", "ECS", "HIC"),
	}
}

func quiet() Option {
	return WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestMergeIsInnerJoinWithoutAggregates(t *testing.T) {
	table := Merge(whoRows(), wbRows())

	require.Equal(t, 2, table.Len())
	assert.Equal(t, []Country{
		{Code: "AFG", Name: "Afghanistan", Region: "South Asia", IncomeLevel: "Low income country"},
		{Code: "KEN", Name: "Kenya", Region: "Sub-Saharan Africa", IncomeLevel: "Lower middle income country"},
	}, table.Countries())

	_, ok := table.Lookup("XKX")
	assert.False(t, ok, "WHO-only country is dropped")
	_, ok = table.Lookup("FRA")
	assert.False(t, ok, "World Bank-only country is dropped")
	_, ok = table.Lookup("WLD")
	assert.False(t, ok, "aggregates are excluded")
}

func TestLoaderMemoizesSuccess(t *testing.T) {
	w := &fakeWHO{rows: whoRows()}
	b := &fakeWB{rows: wbRows()}
	l, err := NewLoader(w, b, quiet())
	require.NoError(t, err)

	for range 3 {
		table, err := l.Load(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 2, table.Len())
		assert.Empty(t, table.Warnings)
	}
	assert.EqualValues(t, 1, w.calls.Load())
	assert.EqualValues(t, 1, b.calls.Load())
}

func TestLoaderDegradesOnFailureAndRetries(t *testing.T) {
	w := &fakeWHO{rows: whoRows()}
	b := &fakeWB{err: upstream.NewError(upstream.CategoryOutage, "api.worldbank.org", "", "unexpected status 503", nil)}
	l, err := NewLoader(w, b, quiet())
	require.NoError(t, err)

	table, err := l.Load(context.Background())
	require.NoError(t, err)
	assert.Zero(t, table.Len())
	assert.Equal(t, []string{WarningUnavailable}, table.Warnings)

	b.err = nil
	b.rows = wbRows()
	table, err = l.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, table.Len())
	assert.EqualValues(t, 2, b.calls.Load())
}

func TestLoaderInvalidate(t *testing.T) {
	w := &fakeWHO{rows: whoRows()}
	b := &fakeWB{rows: wbRows()}
	f := &fakeForgetter{}
	l, err := NewLoader(w, b, quiet(), WithForgetter(f, "http://who/countries", "http://wb/country"))
	require.NoError(t, err)

	_, err = l.Load(context.Background())
	require.NoError(t, err)
	l.Invalidate(context.Background())
	_, err = l.Load(context.Background())
	require.NoError(t, err)

	assert.EqualValues(t, 2, w.calls.Load())
	assert.Equal(t, []string{"http://who/countries", "http://wb/country"}, f.urls)
}

func TestLoaderCanceledContext(t *testing.T) {
	l, err := NewLoader(&fakeWHO{rows: whoRows()}, &fakeWB{rows: wbRows()}, quiet())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	table, err := l.Load(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, table.Len())
}

func TestNewLoaderRequiresSources(t *testing.T) {
	_, err := NewLoader(nil, &fakeWB{})
	assert.Error(t, err)
	_, err = NewLoader(&fakeWHO{}, nil)
	assert.Error(t, err)
}
