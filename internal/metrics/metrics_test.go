package metrics_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/streamline/internal/database"
	"github.com/jonesrussell/north-cloud/streamline/internal/discovery"
	"github.com/jonesrussell/north-cloud/streamline/internal/domain"
	"github.com/jonesrussell/north-cloud/streamline/internal/health"
	"github.com/jonesrussell/north-cloud/streamline/internal/metrics"
	"github.com/jonesrussell/north-cloud/streamline/internal/orchestrator"
)

func TestJobCompleted(t *testing.T) {
	t.Parallel()

	m := metrics.New(nil)

	m.JobCompleted(&discovery.Report{
		Persisted:  true,
		Candidates: 4,
		Saved:      2,
		Verdicts: []domain.Verdict{
			{Decision: domain.DecisionAccept, Reason: domain.ReasonAcceptedHost},
			{Decision: domain.DecisionAccept, Reason: domain.ReasonAcceptedHost},
			{Decision: domain.DecisionReject, Reason: domain.ReasonSocial},
		},
	}, nil)
	m.JobCompleted(&discovery.Report{RenderErr: errors.New("blocked")}, nil)
	m.JobCompleted(&discovery.Report{}, errors.New("db down"))
	m.JobCompleted(&discovery.Report{}, nil)

	assert.InDelta(t, 1, testutil.ToFloat64(m.DiscoveryJobs.WithLabelValues("persisted")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.DiscoveryJobs.WithLabelValues("render_failed")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.DiscoveryJobs.WithLabelValues("error")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.DiscoveryJobs.WithLabelValues("skipped")), 0)
	assert.InDelta(t, 4, testutil.ToFloat64(m.CandidatesExtracted), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.LinksSaved), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.VerdictsTotal.WithLabelValues("ACCEPT", "accepted-host")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.VerdictsTotal.WithLabelValues("REJECT", "youtube/social")), 0)
}

func TestHealthObserver(t *testing.T) {
	t.Parallel()

	m := metrics.New(nil)

	m.ProbeCompleted(health.ProbeResult{Healthy: true, Reason: health.ReasonOK, Latency: 30 * time.Millisecond})
	m.ProbeCompleted(health.ProbeResult{Reason: health.ReasonTimeout, Latency: 5 * time.Second})
	m.SweepCompleted(&health.SweepReport{Active: 7, Duration: time.Second})
	m.SweepCompleted(&health.SweepReport{Active: 1, Aborted: true})
	m.PruneCompleted(&health.PruneReport{Deleted: []database.PrunedTitle{{ID: 1}, {ID: 2}}})

	assert.InDelta(t, 1, testutil.ToFloat64(m.ProbesTotal.WithLabelValues(string(health.ReasonOK))), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.ProbesTotal.WithLabelValues(string(health.ReasonTimeout))), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.SweepsTotal.WithLabelValues("completed")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.SweepsTotal.WithLabelValues("aborted")), 0)
	assert.InDelta(t, 7, testutil.ToFloat64(m.LastSweepActive), 0, "aborted sweeps leave the gauge alone")
	assert.InDelta(t, 2, testutil.ToFloat64(m.TitlesPruned), 0)
}

func TestRefreshObserver(t *testing.T) {
	t.Parallel()

	m := metrics.New(nil)

	m.RefreshStarted(orchestrator.StaleUnchecked)
	m.RefreshStarted("forced")
	assert.InDelta(t, 2, testutil.ToFloat64(m.RefreshInFlight), 0)

	m.RefreshFinished(orchestrator.OutcomeSucceeded, time.Second)
	assert.InDelta(t, 1, testutil.ToFloat64(m.RefreshInFlight), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.RefreshOutcomes.WithLabelValues(orchestrator.OutcomeSucceeded)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.RefreshJobs.WithLabelValues("forced")), 0)
}

func TestHandler(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.BreakerChanged("1flix.to", "open")
	m.ObserveHTTP("/api/v1/titles/:id", http.MethodGet, http.StatusNotFound, 10*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `streamline_renderer_breaker_transitions_total{host="1flix.to",state="open"} 1`))
	assert.True(t, strings.Contains(body, `streamline_http_requests_total{method="GET",route="/api/v1/titles/:id",status="4xx"} 1`))
}
