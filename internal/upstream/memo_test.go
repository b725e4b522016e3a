package upstream_test

//go:generate mockgen -source=client.go -destination=mocks/mocks.go -package=mocks Fetcher

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"healthdash/internal/upstream"
	"healthdash/internal/upstream/mocks"
	"healthdash/internal/upstream/store"
	"healthdash/pkg/testutil"
)

// =============================================================================
// Memo Test Suite
// =============================================================================
// Every dashboard request re-runs its pipeline, so repeated identical queries
// must be served without a second round trip while failures stay uncached.

type MemoSuite struct {
	suite.Suite
	ctrl    *gomock.Controller
	fetcher *mocks.MockFetcher
	store   *store.InMemoryStore
	memo    *upstream.Memo
}

func TestMemoSuite(t *testing.T) {
	suite.Run(t, new(MemoSuite))
}

func (s *MemoSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.fetcher = mocks.NewMockFetcher(s.ctrl)
	s.store = store.NewInMemoryStore(16, time.Minute)
	memo, err := upstream.NewMemo(s.fetcher, s.store,
		upstream.WithMemoLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	s.Require().NoError(err)
	s.memo = memo
}

func (s *MemoSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *MemoSuite) TestNew() {
	s.Run("nil fetcher returns error", func() {
		_, err := upstream.NewMemo(nil, s.store)
		s.ErrorContains(err, "fetcher is required")
	})
	s.Run("nil store returns error", func() {
		_, err := upstream.NewMemo(s.fetcher, nil)
		s.ErrorContains(err, "memo store is required")
	})
}

func (s *MemoSuite) TestSecondIdenticalCallIsServedFromStore() {
	ctx := context.Background()
	url := "https://ghoapi.test/api/Indicator?$filter=contains(IndicatorName,'HIV')"
	s.fetcher.EXPECT().Get(gomock.Any(), url).Return([]byte(`{"value":[]}`), nil).Times(1)

	first, err := s.memo.Get(ctx, url)
	s.Require().NoError(err)
	second, err := s.memo.Get(ctx, url)
	s.Require().NoError(err)
	s.Equal(first, second)
}

func (s *MemoSuite) TestDifferentURLTriggersNewFetch() {
	ctx := context.Background()
	s.fetcher.EXPECT().Get(gomock.Any(), "https://a.test/1").Return([]byte("1"), nil)
	s.fetcher.EXPECT().Get(gomock.Any(), "https://a.test/2").Return([]byte("2"), nil)

	one, err := s.memo.Get(ctx, "https://a.test/1")
	s.Require().NoError(err)
	two, err := s.memo.Get(ctx, "https://a.test/2")
	s.Require().NoError(err)
	s.Equal("1", string(one))
	s.Equal("2", string(two))
}

func (s *MemoSuite) TestFailuresAreNotMemoized() {
	ctx := context.Background()
	url := "https://a.test/flaky"
	outage := upstream.NewError(upstream.CategoryOutage, "a.test", url, "unexpected status 503", nil)
	gomock.InOrder(
		s.fetcher.EXPECT().Get(gomock.Any(), url).Return(nil, outage),
		s.fetcher.EXPECT().Get(gomock.Any(), url).Return([]byte("ok"), nil),
	)

	_, err := s.memo.Get(ctx, url)
	s.Equal(upstream.CategoryOutage, upstream.CategoryOf(err))

	body, err := s.memo.Get(ctx, url)
	s.Require().NoError(err)
	s.Equal("ok", string(body))
}

func (s *MemoSuite) TestForgetDropsEntry() {
	ctx := context.Background()
	url := "https://a.test/ref"
	s.fetcher.EXPECT().Get(gomock.Any(), url).Return([]byte("v"), nil).Times(2)

	_, err := s.memo.Get(ctx, url)
	s.Require().NoError(err)
	s.Require().NoError(s.memo.Forget(ctx, url))
	_, err = s.memo.Get(ctx, url)
	s.Require().NoError(err)
}

func (s *MemoSuite) TestCanceledCallerReturnsEarly() {
	url := "https://a.test/slow"
	release := make(chan struct{})
	s.fetcher.EXPECT().Get(gomock.Any(), url).DoAndReturn(func(context.Context, string) ([]byte, error) {
		<-release
		return []byte("late"), nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.memo.Get(ctx, url)
	s.Equal(upstream.CategoryCanceled, upstream.CategoryOf(err))

	close(release)
	s.Eventually(func() bool {
		_, err := s.store.Get(context.Background(), upstream.Key(url))
		return err == nil
	}, time.Second, 5*time.Millisecond)
}

// blockingFetcher counts calls and holds every call until released.
type blockingFetcher struct {
	calls   atomic.Int32
	release chan struct{}
}

func (f *blockingFetcher) Get(context.Context, string) ([]byte, error) {
	f.calls.Add(1)
	<-f.release
	return []byte("shared"), nil
}

func TestMemoCoalescesConcurrentCalls(t *testing.T) {
	f := &blockingFetcher{release: make(chan struct{})}
	memo, err := upstream.NewMemo(f, store.NewInMemoryStore(4, time.Minute))
	if err != nil {
		t.Fatal(err)
	}

	const callers = 8
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			body, err := memo.Get(context.Background(), "https://a.test/x")
			if err == nil && string(body) != "shared" {
				err = errors.New("unexpected body " + string(body))
			}
			errs <- err
		}()
	}

	// Let every caller reach the in-flight call before releasing it.
	time.Sleep(50 * time.Millisecond)
	close(f.release)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatal(err)
		}
	}
	if got := f.calls.Load(); got != 1 {
		t.Fatalf("expected 1 upstream call, got %d", got)
	}
}

func TestMemoOverHTTPMakesOneRequest(t *testing.T) {
	up := testutil.NewUpstream(t)
	up.Handle("/api/Indicator", http.StatusOK, `{"value":[{"IndicatorCode":"X","IndicatorName":"X"}]}`)

	client := upstream.NewClient(upstream.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	memo, err := upstream.NewMemo(client, store.NewInMemoryStore(4, time.Minute))
	if err != nil {
		t.Fatal(err)
	}

	for range 2 {
		if _, err := memo.Get(context.Background(), up.URL+"/api/Indicator"); err != nil {
			t.Fatal(err)
		}
	}
	if got := up.Hits("/api/Indicator"); got != 1 {
		t.Fatalf("expected 1 upstream request, got %d", got)
	}
}
