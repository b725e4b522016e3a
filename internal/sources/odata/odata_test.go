package odata

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"healthdash/internal/upstream"
	"healthdash/pkg/testutil"
)

type row struct {
	Code string `json:"Code"`
}

func (r *row) Validate() error {
	if r.Code == "" {
		return errors.New("Code is required")
	}
	return nil
}

func TestDecode(t *testing.T) {
	t.Run("rows", func(t *testing.T) {
		rows, next, err := Decode[row]([]byte(`{"value":[{"Code":"AFG"},{"Code":"BEN"}]}`), "http://x/api")
		require.NoError(t, err)
		assert.Empty(t, next)
		assert.Equal(t, []row{{"AFG"}, {"BEN"}}, rows)
	})

	t.Run("empty collection is not an error", func(t *testing.T) {
		rows, _, err := Decode[row]([]byte(`{"value":[]}`), "http://x/api")
		require.NoError(t, err)
		assert.Empty(t, rows)
	})

	tests := map[string]string{
		"not json":        `<html>`,
		"missing value":   `{"error":"nope"}`,
		"invalid row":     `{"value":[{"Code":""}]}`,
		"wrong row shape": `{"value":[1,2]}`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, _, err := Decode[row]([]byte(body), "http://x/api")
			assert.Equal(t, upstream.CategoryBadData, upstream.CategoryOf(err))
		})
	}
}

func TestCollectFollowsNextLink(t *testing.T) {
	up := testutil.NewUpstream(t)
	up.Handle("/odata/items", http.StatusOK, `{"value":[{"Code":"A"}],"@odata.nextLink":"/odata/items?$skip=1"}`)
	up.Handle("/odata/items?$skip=1", http.StatusOK, `{"value":[{"Code":"B"}]}`)

	rows, err := Collect[row](context.Background(), upstream.NewClient(), up.URL+"/odata/items")
	require.NoError(t, err)
	assert.Equal(t, []row{{"A"}, {"B"}}, rows)
}

func TestQuoteString(t *testing.T) {
	assert.Equal(t, "'HIV'", QuoteString("HIV"))
	assert.Equal(t, "'women''s health'", QuoteString("women's health"))
}

func TestDate(t *testing.T) {
	var got struct {
		A Date `json:"a"`
		B Date `json:"b"`
		C Date `json:"c"`
		D Date `json:"d"`
	}
	body := `{"a":"2021-03-04T10:00:00Z","b":"2021-03-04T10:00:00","c":"2021-03-04","d":null}`
	require.NoError(t, json.Unmarshal([]byte(body), &got))

	want := time.Date(2021, 3, 4, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, want, got.C.Time)
	assert.Equal(t, want.Add(10*time.Hour), got.A.Time)
	assert.Equal(t, want.Add(10*time.Hour), got.B.Time)
	assert.True(t, got.D.IsZero())

	var bad struct {
		A Date `json:"a"`
	}
	assert.Error(t, json.Unmarshal([]byte(`{"a":"yesterday"}`), &bad))

	out, err := json.Marshal(got.C)
	require.NoError(t, err)
	assert.Equal(t, `"2021-03-04"`, string(out))
}
