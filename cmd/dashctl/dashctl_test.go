package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"healthdash/pkg/testutil"
)

func execute(t *testing.T, up *testutil.Upstream, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd(&out, &errOut)
	cmd.SetArgs(append([]string{
		"--who-url", up.URL + "/who",
		"--worldbank-url", up.URL + "/wb",
		"--globalfund-url", up.URL + "/gf",
		"--no-color",
	}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestStatus(t *testing.T) {
	t.Run("all APIs up", func(t *testing.T) {
		up := testutil.NewUpstream(t)
		up.Handle("/who/Indicator", http.StatusOK, `{"value":[]}`)
		up.Handle("/wb/v2/country?format=json&page=1&per_page=400", http.StatusOK, `[{"page":1,"pages":1},[]]`)
		up.Handle("/gf/v3.3/odata/VGrantAgreementImplementationPeriods?$top=1", http.StatusOK, `{"value":[]}`)

		out, err := execute(t, up, "status")
		require.NoError(t, err)
		assert.Contains(t, out, "WHO")
		assert.Contains(t, out, "UP")
		assert.NotContains(t, out, "DOWN")
	})

	t.Run("outage fails the command", func(t *testing.T) {
		up := testutil.NewUpstream(t)
		up.Handle("/who/Indicator", http.StatusOK, `{"value":[]}`)

		out, err := execute(t, up, "status", "--json")
		require.ErrorIs(t, err, errAPIsDown)

		var report struct {
			Up   bool `json:"up"`
			APIs []struct {
				Name string `json:"name"`
				Up   bool   `json:"up"`
			} `json:"apis"`
		}
		require.NoError(t, json.Unmarshal([]byte(out), &report))
		assert.False(t, report.Up)
		require.Len(t, report.APIs, 3)
	})
}

func TestIndicatorsSearch(t *testing.T) {
	up := testutil.NewUpstream(t)
	up.Handle("/who/Indicator?$filter=contains%28IndicatorName%2C%27malaria%27%29", http.StatusOK,
		`{"value":[{"IndicatorCode":"MALARIA_EST_CASES","IndicatorName":"Estimated number of malaria cases"}]}`)

	out, err := execute(t, up, "indicators", "search", "malaria")
	require.NoError(t, err)
	assert.Contains(t, out, "MALARIA_EST_CASES")
	assert.Contains(t, out, "Estimated number of malaria cases")
}

func TestIndicatorsSearch_UpstreamDown(t *testing.T) {
	up := testutil.NewUpstream(t)

	out, err := execute(t, up, "indicators", "search", "malaria")
	require.NoError(t, err)
	assert.Contains(t, out, "warning:")
}

func TestExport_RejectsUnknownFormat(t *testing.T) {
	up := testutil.NewUpstream(t)

	_, err := execute(t, up, "export", "indicator", "MALARIA_EST_CASES", "--format", "pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported format")
	assert.Zero(t, up.TotalHits())
}

func TestExport_WritesFileWithHeader(t *testing.T) {
	up := testutil.NewUpstream(t)
	up.Handle("/who/MALARIA_EST_CASES", http.StatusServiceUnavailable, `{}`)
	path := filepath.Join(t.TempDir(), "cases.csv")

	// The observations are unavailable: the export still carries the header row.
	_, err := execute(t, up, "export", "indicator", "MALARIA_EST_CASES", "-o", path)
	require.NoError(t, err)

	body, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(body), "Country,Code,Region")
}

func TestGrants_InvalidBreakdown(t *testing.T) {
	up := testutil.NewUpstream(t)

	_, err := execute(t, up, "grants", "--by", "continent")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown breakdown")
}
