// Package metrics exposes Prometheus metrics for discovery, link health, and
// refresh jobs. Metrics implements the observer interfaces of those
// components so they stay free of Prometheus imports.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jonesrussell/north-cloud/streamline/internal/discovery"
	"github.com/jonesrussell/north-cloud/streamline/internal/health"
	"github.com/jonesrussell/north-cloud/streamline/internal/orchestrator"
)

const namespace = "streamline"

// Metrics holds every streamline collector.
type Metrics struct {
	gatherer prometheus.Gatherer

	// Discovery
	DiscoveryJobs       *prometheus.CounterVec
	DiscoveryDuration   prometheus.Histogram
	CandidatesExtracted prometheus.Counter
	VerdictsTotal       *prometheus.CounterVec
	LinksSaved          prometheus.Counter

	// Health
	ProbesTotal     *prometheus.CounterVec
	ProbeLatency    prometheus.Histogram
	SweepsTotal     *prometheus.CounterVec
	SweepDuration   prometheus.Histogram
	TitlesPruned    prometheus.Counter
	LastSweepActive prometheus.Gauge

	// Refresh
	RefreshJobs     *prometheus.CounterVec
	RefreshOutcomes *prometheus.CounterVec
	RefreshDuration prometheus.Histogram
	RefreshInFlight prometheus.Gauge

	// Renderer
	BreakerTransitions *prometheus.CounterVec

	// HTTP
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

// NewRegistry returns a registry preloaded with the Go runtime and process
// collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// New creates and registers all metrics with reg. A nil reg uses a fresh
// registry so tests and multiple instances never collide.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	factory := promauto.With(reg)
	m := &Metrics{gatherer: reg}

	m.initDiscoveryMetrics(factory)
	m.initHealthMetrics(factory)
	m.initRefreshMetrics(factory)
	m.initRendererMetrics(factory)
	m.initHTTPMetrics(factory)

	return m
}

func (m *Metrics) initDiscoveryMetrics(factory promauto.Factory) {
	m.DiscoveryJobs = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "discovery",
		Name:      "jobs_total",
		Help:      "Discovery jobs by result (persisted, skipped, render_failed, error)",
	}, []string{"result"})

	m.DiscoveryDuration = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "discovery",
		Name:      "job_duration_seconds",
		Help:      "Time to process one title page",
		Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 240},
	})

	m.CandidatesExtracted = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "discovery",
		Name:      "candidates_total",
		Help:      "Candidate URLs extracted from rendered pages",
	})

	m.VerdictsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "discovery",
		Name:      "verdicts_total",
		Help:      "Classifier verdicts by decision and reason",
	}, []string{"decision", "reason"})

	m.LinksSaved = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "discovery",
		Name:      "links_saved_total",
		Help:      "Accepted links written to the catalog",
	})
}

func (m *Metrics) initHealthMetrics(factory promauto.Factory) {
	m.ProbesTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "health",
		Name:      "probes_total",
		Help:      "Link probes by reason (ok, http_status, timeout, transport_error)",
	}, []string{"reason"})

	m.ProbeLatency = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "health",
		Name:      "probe_duration_seconds",
		Help:      "Time to probe one link",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	})

	m.SweepsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "health",
		Name:      "sweeps_total",
		Help:      "Health sweeps by result (completed, aborted)",
	}, []string{"result"})

	m.SweepDuration = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "health",
		Name:      "sweep_duration_seconds",
		Help:      "Time to run one health sweep",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
	})

	m.TitlesPruned = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "health",
		Name:      "titles_pruned_total",
		Help:      "Titles deleted for having no active links",
	})

	m.LastSweepActive = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "health",
		Name:      "last_sweep_active_links",
		Help:      "Links found active by the most recent sweep",
	})
}

func (m *Metrics) initRefreshMetrics(factory promauto.Factory) {
	m.RefreshJobs = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "refresh",
		Name:      "started_total",
		Help:      "Refresh jobs started by trigger reason",
	}, []string{"reason"})

	m.RefreshOutcomes = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "refresh",
		Name:      "finished_total",
		Help:      "Refresh jobs finished by outcome",
	}, []string{"outcome"})

	m.RefreshDuration = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "refresh",
		Name:      "duration_seconds",
		Help:      "Refresh job wall time",
		Buckets:   []float64{1, 5, 10, 30, 60, 120, 240},
	})

	m.RefreshInFlight = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "refresh",
		Name:      "in_flight",
		Help:      "Refresh jobs currently running",
	})
}

func (m *Metrics) initRendererMetrics(factory promauto.Factory) {
	m.BreakerTransitions = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "renderer",
		Name:      "breaker_transitions_total",
		Help:      "Per-host render circuit breaker transitions by target state",
	}, []string{"host", "state"})
}

func (m *Metrics) initHTTPMetrics(factory promauto.Factory) {
	m.HTTPRequests = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "API requests by route, method and status",
	}, []string{"route", "method", "status"})

	m.HTTPDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "API request latency",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route", "method"})
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// JobCompleted records one discovery job.
func (m *Metrics) JobCompleted(report *discovery.Report, err error) {
	if report == nil {
		m.DiscoveryJobs.WithLabelValues("error").Inc()
		return
	}

	switch {
	case err != nil:
		m.DiscoveryJobs.WithLabelValues("error").Inc()
	case report.RenderErr != nil:
		m.DiscoveryJobs.WithLabelValues("render_failed").Inc()
	case report.Persisted:
		m.DiscoveryJobs.WithLabelValues("persisted").Inc()
	default:
		m.DiscoveryJobs.WithLabelValues("skipped").Inc()
	}

	m.DiscoveryDuration.Observe(report.Duration.Seconds())
	m.CandidatesExtracted.Add(float64(report.Candidates))
	m.LinksSaved.Add(float64(report.Saved))
	for _, v := range report.Verdicts {
		m.VerdictsTotal.WithLabelValues(string(v.Decision), string(v.Reason)).Inc()
	}
}

// ProbeCompleted records one link probe.
func (m *Metrics) ProbeCompleted(result health.ProbeResult) {
	m.ProbesTotal.WithLabelValues(string(result.Reason)).Inc()
	m.ProbeLatency.Observe(result.Latency.Seconds())
}

// SweepCompleted records one health sweep.
func (m *Metrics) SweepCompleted(report *health.SweepReport) {
	result := "completed"
	if report.Aborted {
		result = "aborted"
	}
	m.SweepsTotal.WithLabelValues(result).Inc()
	m.SweepDuration.Observe(report.Duration.Seconds())
	if !report.Aborted {
		m.LastSweepActive.Set(float64(report.Active))
	}
}

// PruneCompleted records one prune pass.
func (m *Metrics) PruneCompleted(report *health.PruneReport) {
	m.TitlesPruned.Add(float64(len(report.Deleted)))
}

// RefreshStarted records a scheduled refresh job.
func (m *Metrics) RefreshStarted(reason string) {
	m.RefreshJobs.WithLabelValues(reason).Inc()
	m.RefreshInFlight.Inc()
}

// RefreshFinished records a finished refresh job.
func (m *Metrics) RefreshFinished(outcome string, elapsed time.Duration) {
	m.RefreshOutcomes.WithLabelValues(outcome).Inc()
	m.RefreshDuration.Observe(elapsed.Seconds())
	m.RefreshInFlight.Dec()
}

// BreakerChanged records a render circuit breaker transition.
func (m *Metrics) BreakerChanged(host, state string) {
	m.BreakerTransitions.WithLabelValues(host, state).Inc()
}

// ObserveHTTP records one API request.
func (m *Metrics) ObserveHTTP(route, method string, status int, elapsed time.Duration) {
	m.HTTPRequests.WithLabelValues(route, method, statusClass(status)).Inc()
	m.HTTPDuration.WithLabelValues(route, method).Observe(elapsed.Seconds())
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

var (
	_ discovery.Observer    = (*Metrics)(nil)
	_ health.Observer       = (*Metrics)(nil)
	_ orchestrator.Observer = (*Metrics)(nil)
)
