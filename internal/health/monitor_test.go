package health_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/jonesrussell/north-cloud/streamline/internal/database"
	"github.com/jonesrussell/north-cloud/streamline/internal/domain"
	"github.com/jonesrussell/north-cloud/streamline/internal/health"
	"github.com/jonesrussell/north-cloud/streamline/internal/logger"
	"github.com/jonesrussell/north-cloud/streamline/internal/testutils/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// fakeLinks serves a fixed link set and records every check written back.
type fakeLinks struct {
	mu        sync.Mutex
	links     []domain.Link
	checks    []domain.LinkCheck
	listErr   error
	recordErr error
	gotCutoff time.Time
	gotLimit  int
}

func (f *fakeLinks) ListDue(_ context.Context, cutoff time.Time, limit int) ([]domain.Link, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gotCutoff = cutoff
	f.gotLimit = limit
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.links, nil
}

func (f *fakeLinks) ListByTitle(_ context.Context, titleID int64) ([]domain.Link, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Link
	for _, l := range f.links {
		if l.TitleID == titleID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeLinks) RecordCheck(_ context.Context, check domain.LinkCheck) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.recordErr != nil {
		return f.recordErr
	}
	f.checks = append(f.checks, check)
	return nil
}

func (f *fakeLinks) Checks() []domain.LinkCheck {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]domain.LinkCheck(nil), f.checks...)
	sort.Slice(out, func(i, j int) bool { return out[i].LinkID < out[j].LinkID })
	return out
}

func (f *fakeLinks) setDue(links ...domain.Link) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.links = links
}

type fakeTitles struct {
	params database.PruneParams
	result *database.PruneResult
	err    error
}

func (f *fakeTitles) Prune(_ context.Context, params database.PruneParams) (*database.PruneResult, error) {
	f.params = params
	return f.result, f.err
}

var fixedNow = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

func newMonitor(t *testing.T, links *fakeLinks, titles *fakeTitles, prober health.Prober, cfg health.Config) *health.Monitor {
	t.Helper()
	return health.NewMonitor(links, titles, prober, cfg, logger.NewNop(),
		health.WithClock(func() time.Time { return fixedNow }),
	)
}

func TestMonitor_SweepWritesEveryOutcome(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	prober := mocks.NewMockProber(ctrl)
	prober.EXPECT().Check(gomock.Any(), "https://a.example/e/1", gomock.Any()).
		Return(health.ProbeResult{Healthy: true, StatusCode: http.StatusOK, Reason: health.ReasonOK}, nil)
	prober.EXPECT().Check(gomock.Any(), "https://b.example/e/1", gomock.Any()).
		Return(health.ProbeResult{StatusCode: http.StatusNotFound, Reason: health.ReasonHTTPStatus}, nil)
	prober.EXPECT().Check(gomock.Any(), "https://c.example/e/1", gomock.Any()).
		Return(health.ProbeResult{Reason: health.ReasonTimeout}, nil)

	links := &fakeLinks{links: []domain.Link{
		{ID: 1, TitleID: 10, NormalizedURL: "https://a.example/e/1"},
		{ID: 2, TitleID: 10, NormalizedURL: "https://b.example/e/1"},
		{ID: 3, TitleID: 11, NormalizedURL: "https://c.example/e/1"},
	}}
	monitor := newMonitor(t, links, &fakeTitles{}, prober, health.Config{})

	report, err := monitor.Sweep(context.Background(), health.SweepOptions{Limit: 50, OlderThan: 6 * time.Hour})
	require.NoError(t, err)

	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, 3, report.Due)
	assert.Equal(t, 3, report.Checked)
	assert.Equal(t, 1, report.Active)
	assert.Equal(t, 2, report.Inactive)
	assert.Equal(t, 1, report.Timeouts)
	assert.False(t, report.Aborted)

	assert.Equal(t, fixedNow.Add(-6*time.Hour), links.gotCutoff)
	assert.Equal(t, 50, links.gotLimit)

	assert.Equal(t, []domain.LinkCheck{
		{LinkID: 1, IsActive: true, StatusCode: http.StatusOK, CheckedAt: fixedNow},
		{LinkID: 2, IsActive: false, StatusCode: http.StatusNotFound, FailureReason: "http_status", CheckedAt: fixedNow},
		{LinkID: 3, IsActive: false, FailureReason: "timeout", CheckedAt: fixedNow},
	}, links.Checks())
}

func TestMonitor_SweepPassesTimeoutToProber(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	prober := mocks.NewMockProber(ctrl)
	prober.EXPECT().Check(gomock.Any(), "https://a.example/e/1", 30*time.Second).
		Return(health.ProbeResult{Healthy: true, Reason: health.ReasonOK}, nil)

	links := &fakeLinks{links: []domain.Link{{ID: 1, TitleID: 1, NormalizedURL: "https://a.example/e/1"}}}
	monitor := newMonitor(t, links, &fakeTitles{}, prober, health.Config{Timeout: 5 * time.Second})

	_, err := monitor.Sweep(context.Background(), health.SweepOptions{Timeout: 30 * time.Second})
	require.NoError(t, err)
}

// Many links behind one rate-limited host must all be probed; waiting for
// a token is neither a sweep failure nor a probe timeout.
func TestMonitor_SweepRateLimitedHost(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	const total = 12
	due := make([]domain.Link, 0, total)
	for i := 1; i <= total; i++ {
		due = append(due, domain.Link{ID: int64(i), TitleID: int64(i), NormalizedURL: fmt.Sprintf("%s/e/%d", srv.URL, i)})
	}

	cfg := health.Config{Timeout: 50 * time.Millisecond, Concurrency: total, PerHostRate: 40, PerHostBurst: 2}
	links := &fakeLinks{links: due}
	monitor := newMonitor(t, links, &fakeTitles{}, health.NewHTTPProber(cfg), cfg)

	report, err := monitor.Sweep(context.Background(), health.SweepOptions{})
	require.NoError(t, err)

	assert.False(t, report.Aborted)
	assert.Equal(t, total, report.Checked)
	assert.Equal(t, total, report.Active)
	assert.Zero(t, report.Timeouts)
	assert.Len(t, links.Checks(), total)
}

func TestMonitor_SweepTimeoutLongerThanDefault(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(150 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := health.Config{Timeout: 50 * time.Millisecond}
	links := &fakeLinks{links: []domain.Link{{ID: 1, TitleID: 1, NormalizedURL: srv.URL + "/e/slow"}}}
	monitor := newMonitor(t, links, &fakeTitles{}, health.NewHTTPProber(cfg), cfg)

	report, err := monitor.Sweep(context.Background(), health.SweepOptions{Timeout: 2 * time.Second})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Active)
	assert.Zero(t, report.Timeouts)
	assert.Equal(t, []domain.LinkCheck{
		{LinkID: 1, IsActive: true, StatusCode: http.StatusOK, CheckedAt: fixedNow},
	}, links.Checks())
}

func TestMonitor_SweepDefaultsFromConfig(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	prober := mocks.NewMockProber(ctrl)

	links := &fakeLinks{}
	monitor := newMonitor(t, links, &fakeTitles{}, prober, health.Config{StaleAfter: 12 * time.Hour, BatchLimit: 7})

	report, err := monitor.Sweep(context.Background(), health.SweepOptions{})
	require.NoError(t, err)

	assert.Zero(t, report.Checked)
	assert.Equal(t, fixedNow.Add(-12*time.Hour), links.gotCutoff)
	assert.Equal(t, 7, links.gotLimit)
}

func TestMonitor_SweepAbortsOnStoreFailure(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	prober := mocks.NewMockProber(ctrl)
	prober.EXPECT().Check(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(health.ProbeResult{Healthy: true, Reason: health.ReasonOK}, nil).AnyTimes()

	links := &fakeLinks{
		links:     []domain.Link{{ID: 1, NormalizedURL: "https://a.example/e/1"}},
		recordErr: errors.New("connection refused"),
	}
	monitor := newMonitor(t, links, &fakeTitles{}, prober, health.Config{Concurrency: 1})

	report, err := monitor.Sweep(context.Background(), health.SweepOptions{})
	require.ErrorIs(t, err, health.ErrSweepAborted)
	assert.True(t, report.Aborted)
}

func TestMonitor_SweepAbortsWhenListFails(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	links := &fakeLinks{listErr: errors.New("db down")}
	monitor := newMonitor(t, links, &fakeTitles{}, mocks.NewMockProber(ctrl), health.Config{})

	_, err := monitor.Sweep(context.Background(), health.SweepOptions{})
	require.ErrorIs(t, err, health.ErrSweepAborted)
}

func TestMonitor_SweepStopsOnCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ctrl := gomock.NewController(t)
	prober := mocks.NewMockProber(ctrl)
	prober.EXPECT().Check(gomock.Any(), "https://a.example/e/1", gomock.Any()).
		DoAndReturn(func(context.Context, string, time.Duration) (health.ProbeResult, error) {
			cancel()
			return health.ProbeResult{Healthy: true, Reason: health.ReasonOK}, nil
		})
	prober.EXPECT().Check(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(health.ProbeResult{}, context.Canceled).AnyTimes()

	links := &fakeLinks{links: []domain.Link{
		{ID: 1, NormalizedURL: "https://a.example/e/1"},
		{ID: 2, NormalizedURL: "https://b.example/e/1"},
		{ID: 3, NormalizedURL: "https://c.example/e/1"},
	}}
	monitor := newMonitor(t, links, &fakeTitles{}, prober, health.Config{Concurrency: 1})

	report, err := monitor.Sweep(ctx, health.SweepOptions{})
	require.ErrorIs(t, err, health.ErrSweepAborted)
	require.ErrorIs(t, err, context.Canceled)
	assert.True(t, report.Aborted)
	assert.Less(t, report.Checked, 3)
}

func TestMonitor_VanishedLinkIsNotFatal(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	prober := mocks.NewMockProber(ctrl)
	prober.EXPECT().Check(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(health.ProbeResult{Healthy: true, Reason: health.ReasonOK}, nil)

	links := &fakeLinks{
		links:     []domain.Link{{ID: 9, NormalizedURL: "https://a.example/e/1"}},
		recordErr: database.ErrLinkNotFound,
	}
	monitor := newMonitor(t, links, &fakeTitles{}, prober, health.Config{})

	_, err := monitor.Sweep(context.Background(), health.SweepOptions{})
	require.NoError(t, err)
}

func TestMonitor_Prune(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	prober := mocks.NewMockProber(ctrl)
	prober.EXPECT().Check(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(health.ProbeResult{Reason: health.ReasonHTTPStatus, StatusCode: http.StatusNotFound}, nil).Times(3)

	links := &fakeLinks{links: []domain.Link{
		{ID: 1, TitleID: 11, NormalizedURL: "https://a.example/e/1"},
		{ID: 2, TitleID: 4, NormalizedURL: "https://b.example/e/1"},
		{ID: 3, TitleID: 11, NormalizedURL: "https://c.example/e/1"},
	}}
	titles := &fakeTitles{result: &database.PruneResult{
		Reset:       2,
		Incremented: 1,
		Deleted:     []database.PrunedTitle{{ID: 4, ExternalID: "1flix_4"}},
	}}
	monitor := newMonitor(t, links, titles, prober, health.Config{PruneAfterSweeps: 2, PruneNeverLinked: true})

	sweep, err := monitor.Sweep(context.Background(), health.SweepOptions{})
	require.NoError(t, err)

	report, err := monitor.Prune(context.Background(), sweep)
	require.NoError(t, err)

	assert.Equal(t, database.PruneParams{Threshold: 2, NeverLinked: true, SweptTitles: []int64{4, 11}}, titles.params)
	assert.Equal(t, int64(2), report.Reset)
	assert.Len(t, report.Deleted, 1)
}

func TestMonitor_PruneNeedsCompletedSweep(t *testing.T) {
	t.Parallel()

	titles := &fakeTitles{result: &database.PruneResult{}}
	monitor := newMonitor(t, &fakeLinks{}, titles, nil, health.Config{})

	_, err := monitor.Prune(context.Background(), nil)
	require.ErrorIs(t, err, health.ErrNoCompletedSweep)

	_, err = monitor.Prune(context.Background(), &health.SweepReport{Aborted: true})
	require.ErrorIs(t, err, health.ErrNoCompletedSweep)

	assert.Zero(t, titles.params.Threshold, "store must not be touched")
}

func TestMonitor_PruneError(t *testing.T) {
	t.Parallel()

	titles := &fakeTitles{err: errors.New("deadlock detected")}
	monitor := newMonitor(t, &fakeLinks{}, titles, nil, health.Config{})

	_, err := monitor.Prune(context.Background(), &health.SweepReport{})
	require.Error(t, err)
}

func TestMonitor_ValidateTitle(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	prober := mocks.NewMockProber(ctrl)
	prober.EXPECT().Check(gomock.Any(), "https://a.example/e/1", gomock.Any()).
		Return(health.ProbeResult{Healthy: true, Reason: health.ReasonOK}, nil)
	prober.EXPECT().Check(gomock.Any(), "https://b.example/e/1", gomock.Any()).
		Return(health.ProbeResult{Reason: health.ReasonTransportError}, nil)

	links := &fakeLinks{links: []domain.Link{
		{ID: 1, TitleID: 5, NormalizedURL: "https://a.example/e/1"},
		{ID: 2, TitleID: 5, NormalizedURL: "https://b.example/e/1"},
		{ID: 3, TitleID: 6, NormalizedURL: "https://c.example/e/1"},
	}}
	monitor := newMonitor(t, links, &fakeTitles{}, prober, health.Config{})

	validated, total, err := monitor.ValidateTitle(context.Background(), 5)
	require.NoError(t, err)

	assert.Equal(t, 1, validated)
	assert.Equal(t, 2, total)
	assert.Len(t, links.Checks(), 2)
}

// Scenario: a link dead for three sweeps leaves its title with no active
// links; the title is deleted on the sweep that reaches the threshold. A
// second dead title whose link is not due again keeps its counter.
func TestMonitor_PruneAfterThreeFailedSweeps(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	prober := mocks.NewMockProber(ctrl)
	prober.EXPECT().Check(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(health.ProbeResult{Reason: health.ReasonTransportError}, nil).AnyTimes()

	recheckedEverySweep := domain.Link{ID: 1, TitleID: 1, NormalizedURL: "https://a.example/e/1"}
	checkedOnce := domain.Link{ID: 2, TitleID: 2, NormalizedURL: "https://b.example/e/1"}

	links := &fakeLinks{links: []domain.Link{recheckedEverySweep, checkedOnce}}
	titles := &countingTitles{counters: map[int64]int{1: 0, 2: 0}}
	monitor := health.NewMonitor(links, titles, prober, health.Config{PruneAfterSweeps: 3}, logger.NewNop())

	runSweep := func() *health.PruneReport {
		t.Helper()
		sweep, err := monitor.Sweep(context.Background(), health.SweepOptions{})
		require.NoError(t, err)
		report, err := monitor.Prune(context.Background(), sweep)
		require.NoError(t, err)
		return report
	}

	assert.Empty(t, runSweep().Deleted, "sweep 1")

	links.setDue(recheckedEverySweep)
	assert.Empty(t, runSweep().Deleted, "sweep 2")

	report := runSweep()
	require.Len(t, report.Deleted, 1)
	assert.Equal(t, int64(1), report.Deleted[0].ID)
	assert.Equal(t, 1, titles.counters[2], "title probed once must not advance further")
}

// countingTitles models a catalog whose titles all have zero active links.
type countingTitles struct {
	counters map[int64]int
}

func (c *countingTitles) Prune(_ context.Context, params database.PruneParams) (*database.PruneResult, error) {
	result := &database.PruneResult{}
	for _, id := range params.SweptTitles {
		if _, ok := c.counters[id]; !ok {
			continue
		}
		c.counters[id]++
		result.Incremented++
		if c.counters[id] >= params.Threshold {
			result.Deleted = append(result.Deleted, database.PrunedTitle{ID: id})
			delete(c.counters, id)
		}
	}
	return result, nil
}
