package status_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"healthdash/internal/status"
	"healthdash/internal/upstream"
	"healthdash/internal/upstream/mocks"
	"healthdash/pkg/platform/circuit"
)

// =============================================================================
// Status Service Test Suite
// =============================================================================
// Justification: the gate refuses acknowledgements based on these probes, so
// caching and circuit behaviour decide how often the public APIs are hit.

const (
	whoURL = "http://who.test/api/Indicator"
	gfURL  = "http://gf.test/v3.3/odata/VGrantAgreementImplementationPeriods?$top=1"
)

type StatusSuite struct {
	suite.Suite
	ctrl    *gomock.Controller
	fetcher *mocks.MockFetcher
	now     time.Time
	service *status.Service
}

func TestStatusSuite(t *testing.T) {
	suite.Run(t, new(StatusSuite))
}

func (s *StatusSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.fetcher = mocks.NewMockFetcher(s.ctrl)
	s.now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	svc, err := status.New(s.fetcher, []status.API{
		{Name: "WHO", URL: whoURL, Dashboards: []string{"who"}},
		{Name: "Global Fund", URL: gfURL, Dashboards: []string{"globalfund"}},
	},
		status.WithFreshness(10*time.Second),
		status.WithCooldown(time.Minute),
		status.WithClock(func() time.Time { return s.now }),
		status.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	s.Require().NoError(err)
	s.service = svc
}

func (s *StatusSuite) TearDownTest() {
	s.ctrl.Finish()
}

func outage(url string) error {
	err := upstream.NewError(upstream.CategoryOutage, "gf.test", url, "unexpected status 503", nil)
	err.StatusCode = 503
	return err
}

func (s *StatusSuite) TestCheckReportsEveryAPI() {
	s.fetcher.EXPECT().Get(gomock.Any(), whoURL).Return([]byte(`{}`), nil)
	s.fetcher.EXPECT().Get(gomock.Any(), gfURL).Return(nil, outage(gfURL))

	report, err := s.service.Check(context.Background())
	s.Require().NoError(err)
	s.False(report.Up)
	s.Require().Len(report.APIs, 2)

	s.Equal("WHO", report.APIs[0].Name)
	s.True(report.APIs[0].Up)
	s.Equal(200, report.APIs[0].StatusCode)

	s.Equal("Global Fund", report.APIs[1].Name)
	s.False(report.APIs[1].Up)
	s.Equal(503, report.APIs[1].StatusCode)
	s.Equal(upstream.CategoryOutage, report.APIs[1].Category)
	s.Equal(circuit.StateClosed, report.APIs[1].Circuit)
}

func (s *StatusSuite) TestFreshResultsAreReused() {
	s.fetcher.EXPECT().Get(gomock.Any(), whoURL).Return([]byte(`{}`), nil).Times(2)

	s.True(s.service.DashboardUp(context.Background(), "who"))
	s.now = s.now.Add(5 * time.Second)
	s.True(s.service.DashboardUp(context.Background(), "who"), "served from the cached probe")

	s.now = s.now.Add(10 * time.Second)
	s.True(s.service.DashboardUp(context.Background(), "who"), "stale result triggers a new probe")
}

func (s *StatusSuite) TestOpenCircuitSkipsProbes() {
	s.fetcher.EXPECT().Get(gomock.Any(), gfURL).Return(nil, outage(gfURL)).Times(2)

	s.False(s.service.DashboardUp(context.Background(), "globalfund"))
	s.now = s.now.Add(11 * time.Second)
	s.False(s.service.DashboardUp(context.Background(), "globalfund"), "second failure opens the circuit")

	s.now = s.now.Add(11 * time.Second)
	s.False(s.service.DashboardUp(context.Background(), "globalfund"), "open circuit answers down without a call")

	s.fetcher.EXPECT().Get(gomock.Any(), gfURL).Return([]byte(`{}`), nil)
	s.now = s.now.Add(time.Minute)
	s.True(s.service.DashboardUp(context.Background(), "globalfund"), "probe after cooldown closes the circuit")
}

func (s *StatusSuite) TestDashboardWithoutAPIIsUp() {
	s.True(s.service.DashboardUp(context.Background(), "process"))
}

func (s *StatusSuite) TestCanceledProbeIsNotCached() {
	canceled := upstream.NewError(upstream.CategoryCanceled, "who.test", whoURL, "request canceled", context.Canceled)
	s.fetcher.EXPECT().Get(gomock.Any(), whoURL).Return(nil, canceled)
	s.False(s.service.DashboardUp(context.Background(), "who"))

	s.fetcher.EXPECT().Get(gomock.Any(), whoURL).Return([]byte(`{}`), nil)
	s.True(s.service.DashboardUp(context.Background(), "who"))
}

func TestNewRequiresAPIs(t *testing.T) {
	ctrl := gomock.NewController(t)
	_, err := status.New(nil, status.DefaultAPIs("a", "b", "c"))
	if err == nil {
		t.Fatal("expected error for missing fetcher")
	}
	_, err = status.New(mocks.NewMockFetcher(ctrl), nil)
	if err == nil {
		t.Fatal("expected error for missing APIs")
	}
}
