package handler_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"healthdash/internal/session"
	"healthdash/internal/session/handler"
	"healthdash/pkg/requestcontext"
	"healthdash/pkg/testutil"
)

type downProbe struct{}

func (downProbe) DashboardUp(_ context.Context, dashboard string) bool {
	return dashboard != "globalfund"
}

func setup(t *testing.T) (http.Handler, *session.Session) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc, err := session.New(session.NewInMemoryStore(), session.NewTokens("test-key"), []string{"who", "globalfund"},
		session.WithTTL(time.Hour),
		session.WithProbe(downProbe{}),
		session.WithLogger(logger),
	)
	require.NoError(t, err)

	sess, _, err := svc.Resolve(requestcontext.WithTime(context.Background(), time.Now()), "")
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Route("/session", handler.New(svc, logger).Register)
	return r, sess
}

func TestSessionHandler(t *testing.T) {
	t.Run("get lists every gate", func(t *testing.T) {
		r, sess := setup(t)
		req := testutil.WithSessionID(testutil.NewJSONRequest(t, http.MethodGet, "/session/", nil), sess.ID)
		rr := testutil.DoRequest(r, req)
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

		resp := testutil.UnmarshalResponse[handler.SessionResponse](t, rr)
		require.Len(t, resp.Gates, 2)
		assert.Equal(t, "who", resp.Gates[0].Dashboard)
		assert.Equal(t, string(session.NotAcknowledged), resp.Gates[0].Status)
	})

	t.Run("acknowledge", func(t *testing.T) {
		r, sess := setup(t)
		req := testutil.WithSessionID(testutil.NewJSONRequest(t, http.MethodPost, "/session/who/acknowledge", nil), sess.ID)
		rr := testutil.DoRequest(r, req)
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

		resp := testutil.UnmarshalResponse[handler.SessionResponse](t, rr)
		assert.Equal(t, string(session.Acknowledged), resp.Gates[0].Status)
		assert.NotNil(t, resp.Gates[0].AcknowledgedAt)
	})

	t.Run("acknowledge refused while source is down", func(t *testing.T) {
		r, sess := setup(t)
		req := testutil.WithSessionID(testutil.NewJSONRequest(t, http.MethodPost, "/session/globalfund/acknowledge", nil), sess.ID)
		testutil.AssertStatusAndError(t, testutil.DoRequest(r, req), http.StatusBadGateway, "upstream_unavailable")
	})

	t.Run("acknowledge unknown dashboard", func(t *testing.T) {
		r, sess := setup(t)
		req := testutil.WithSessionID(testutil.NewJSONRequest(t, http.MethodPost, "/session/nope/acknowledge", nil), sess.ID)
		testutil.AssertStatusAndError(t, testutil.DoRequest(r, req), http.StatusNotFound, "not_found")
	})

	t.Run("save filters", func(t *testing.T) {
		r, sess := setup(t)
		body := map[string]any{
			"dashboard": "who",
			"filters":   map[string][]string{"country": {"KEN", " "}, "from": {"2010"}},
			"pinned":    true,
		}
		req := testutil.WithSessionID(testutil.NewJSONRequest(t, http.MethodPut, "/session/filters", body), sess.ID)
		rr := testutil.DoRequest(r, req)
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

		resp := testutil.UnmarshalResponse[handler.SessionResponse](t, rr)
		require.Contains(t, resp.Filters, "who")
		assert.True(t, resp.Filters["who"].Pinned)
		assert.Equal(t, []string{"KEN"}, resp.Filters["who"].Values["country"], "blank values are dropped")
	})

	t.Run("save filters validation", func(t *testing.T) {
		r, sess := setup(t)
		req := testutil.WithSessionID(testutil.NewJSONRequest(t, http.MethodPut, "/session/filters",
			map[string]any{"filters": map[string][]string{"country": {"KEN"}}}), sess.ID)
		testutil.AssertStatusAndError(t, testutil.DoRequest(r, req), http.StatusBadRequest, "validation_error")
	})

	t.Run("save filters rejects unknown fields", func(t *testing.T) {
		r, sess := setup(t)
		req := testutil.WithSessionID(testutil.NewJSONRequest(t, http.MethodPut, "/session/filters",
			map[string]any{"dashboard": "who", "colour": "red"}), sess.ID)
		testutil.AssertStatusAndError(t, testutil.DoRequest(r, req), http.StatusBadRequest, "bad_request")
	})

	t.Run("save filters requires json", func(t *testing.T) {
		r, sess := setup(t)
		req := testutil.NewJSONRequest(t, http.MethodPut, "/session/filters", map[string]any{"dashboard": "who"})
		req.Header.Set("Content-Type", "text/plain")
		req = testutil.WithSessionID(req, sess.ID)
		testutil.AssertStatusAndError(t, testutil.DoRequest(r, req), http.StatusUnsupportedMediaType, "unsupported_media_type")
	})
}
