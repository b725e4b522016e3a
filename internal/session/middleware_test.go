package session

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"healthdash/pkg/requestcontext"
	"healthdash/pkg/testutil"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	svc, err := New(NewInMemoryStore(), NewTokens("test-key"), []string{"who", "globalfund"},
		WithTTL(time.Hour),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	require.NoError(t, err)
	return svc
}

func echoSession(w http.ResponseWriter, r *http.Request) {
	_, _ = io.WriteString(w, requestcontext.SessionID(r.Context()))
}

func TestMiddleware(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := newTestService(t)
	h := Middleware(svc, true, logger)(http.HandlerFunc(echoSession))

	first := testutil.DoRequest(h, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, first.Code)
	cookies := first.Result().Cookies()
	require.Len(t, cookies, 1)
	c := cookies[0]
	assert.Equal(t, CookieName, c.Name)
	assert.True(t, c.HttpOnly)
	assert.True(t, c.Secure)
	assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
	id := first.Body.String()
	require.NotEmpty(t, id)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(c)
	second := testutil.DoRequest(h, req)
	assert.Equal(t, id, second.Body.String(), "cookie resumes the same session")
	assert.Empty(t, second.Result().Cookies(), "no new cookie for a live session")
}

type failingResolver struct{}

func (failingResolver) Resolve(context.Context, string) (*Session, string, error) {
	return nil, "", assert.AnError
}

func TestMiddlewareStoreDown(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := Middleware(failingResolver{}, false, logger)(http.HandlerFunc(echoSession))

	rr := testutil.DoRequest(h, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, rr.Body.String(), "request continues without a session")
}

func TestRequireAcknowledged(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := newTestService(t)
	ctx := requestcontext.WithTime(context.Background(), time.Now())
	sess, _, err := svc.Resolve(ctx, "")
	require.NoError(t, err)

	gated := RequireAcknowledged(svc, "who", logger, nil)(http.HandlerFunc(echoSession))

	t.Run("no session", func(t *testing.T) {
		rr := testutil.DoRequest(gated, httptest.NewRequest(http.MethodGet, "/", nil))
		testutil.AssertStatusAndError(t, rr, http.StatusPreconditionRequired, "disclaimer_required")
	})

	t.Run("not acknowledged", func(t *testing.T) {
		req := testutil.WithSessionID(httptest.NewRequest(http.MethodGet, "/", nil), sess.ID)
		rr := testutil.DoRequest(gated, req)
		testutil.AssertStatusAndError(t, rr, http.StatusPreconditionRequired, "disclaimer_required")
	})

	t.Run("acknowledged", func(t *testing.T) {
		_, err := svc.Acknowledge(ctx, sess.ID, "who")
		require.NoError(t, err)

		req := testutil.WithSessionID(httptest.NewRequest(http.MethodGet, "/", nil), sess.ID)
		rr := testutil.DoRequest(gated, req)
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, sess.ID, rr.Body.String())
	})

	t.Run("other dashboard stays closed", func(t *testing.T) {
		other := RequireAcknowledged(svc, "globalfund", logger, nil)(http.HandlerFunc(echoSession))
		req := testutil.WithSessionID(httptest.NewRequest(http.MethodGet, "/", nil), sess.ID)
		rr := testutil.DoRequest(other, req)
		testutil.AssertStatusAndError(t, rr, http.StatusPreconditionRequired, "disclaimer_required")
	})
}
