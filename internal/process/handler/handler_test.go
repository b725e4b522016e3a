package handler_test

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"healthdash/internal/audit"
	"healthdash/internal/process"
	"healthdash/internal/process/handler"
	"healthdash/internal/render"
	"healthdash/pkg/testutil"
)

const upload = `spend,coverage,region
10,1.0,North
11,1.1,North
12,1.0,North
100,9.0,South
101,9.1,South
102,9.0,South
`

type fixture struct {
	router chi.Router
	sink   *audit.MemorySink
	pub    *audit.Publisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	sink := audit.NewMemorySink()
	pub := audit.NewPublisher(sink)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	r := chi.NewRouter()
	handler.New(process.New(), pub, logger, nil).Register(r, handler.Limits{})
	return &fixture{router: r, sink: sink, pub: pub}
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	return testutil.DoRequest(f.router, req)
}

func (f *fixture) get(path string) *httptest.ResponseRecorder {
	return f.do(httptest.NewRequest(http.MethodGet, path, nil))
}

type analysisBody struct {
	Complete int                 `json:"complete"`
	Dropped  int                 `json:"dropped"`
	Stats    []process.StepStats `json:"stats"`
	Gantt    []process.Task      `json:"gantt"`
	Outliers render.View         `json:"outliers"`
}

func TestAnalysis(t *testing.T) {
	f := newFixture(t)

	rr := f.get("/analysis?steps=3&runs=100&step=Step%202")

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	body := testutil.UnmarshalResponse[analysisBody](t, rr)
	assert.Equal(t, 60, body.Complete)
	assert.Equal(t, 40, body.Dropped)
	assert.Len(t, body.Stats, 3)
	assert.Len(t, body.Gantt, 3)
	assert.Equal(t, "Outliers on Step 2", body.Outliers.Title)
}

func TestAnalysisValidation(t *testing.T) {
	f := newFixture(t)

	testutil.AssertStatusAndError(t, f.get("/analysis?steps=0x"), http.StatusBadRequest, "validation_error")
	testutil.AssertStatusAndError(t, f.get("/analysis?runs=5000"), http.StatusBadRequest, "validation_error")
	testutil.AssertStatusAndError(t, f.get("/analysis?seed=-1"), http.StatusBadRequest, "validation_error")
	testutil.AssertStatusAndError(t, f.get("/analysis/chart.png?view=violin"), http.StatusBadRequest, "validation_error")
}

func TestAnalysisChart(t *testing.T) {
	f := newFixture(t)

	rr := f.get("/analysis/chart.png?view=outliers&runs=80")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, bytes.HasPrefix(rr.Body.Bytes(), []byte("\x89PNG")))
}

func TestAnalysisExport(t *testing.T) {
	f := newFixture(t)

	rr := f.get("/analysis/export.csv?runs=50")

	require.Equal(t, http.StatusOK, rr.Code)
	table, err := render.ReadCSV(rr.Body)
	require.NoError(t, err)
	assert.Len(t, table.Rows, 10)

	f.pub.Flush(context.Background())
	events := f.sink.ByAction(audit.ActionDatasetExported)
	require.Len(t, events, 1)
	assert.Equal(t, "process_analysis", events[0].Subject)
}

func TestClustersCSVBody(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/clusters?k=2&columns=spend,coverage", strings.NewReader(upload))
	req.Header.Set("Content-Type", "text/csv")
	rr := f.do(req)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	c := testutil.UnmarshalResponse[process.Clustering](t, rr)
	assert.Equal(t, 2, c.K)
	assert.Equal(t, 6, c.Rows)
	assert.Equal(t, []string{"spend", "coverage"}, c.Features)
	assert.Len(t, c.SSE, 6)
}

func TestClustersMultipart(t *testing.T) {
	f := newFixture(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "data.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte(upload))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/clusters", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rr := f.do(req)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Contains(t, rr.Body.String(), `"suggested_k"`)
}

func TestClustersRejectsUploads(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/clusters", strings.NewReader(`{"a":1}`))
	req.Header.Set("Content-Type", "application/json")
	testutil.AssertStatusAndError(t, f.do(req), http.StatusUnsupportedMediaType, "unsupported_media_type")

	req = httptest.NewRequest(http.MethodPost, "/clusters", strings.NewReader("a,b\n1\n"))
	req.Header.Set("Content-Type", "text/csv")
	testutil.AssertStatusAndError(t, f.do(req), http.StatusBadRequest, "validation_error")

	req = httptest.NewRequest(http.MethodPost, "/clusters?k=abc", strings.NewReader(upload))
	req.Header.Set("Content-Type", "text/csv")
	testutil.AssertStatusAndError(t, f.do(req), http.StatusBadRequest, "validation_error")
}
