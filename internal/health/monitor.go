// Package health keeps the catalog honest: it probes stored links, writes
// their liveness back, and prunes titles that stay without active links.
package health

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jonesrussell/north-cloud/streamline/internal/database"
	"github.com/jonesrussell/north-cloud/streamline/internal/domain"
	"github.com/jonesrussell/north-cloud/streamline/internal/logger"
)

// ErrSweepAborted wraps any failure that stopped a sweep before every due
// link was probed. Checks written before the failure are kept.
var ErrSweepAborted = errors.New("health sweep aborted")

// ErrNoCompletedSweep is returned by Prune when it is not handed the report
// of a sweep that ran to completion.
var ErrNoCompletedSweep = errors.New("prune requires a completed sweep")

// LinkStore is the subset of the link repository the monitor needs.
type LinkStore interface {
	ListDue(ctx context.Context, cutoff time.Time, limit int) ([]domain.Link, error)
	ListByTitle(ctx context.Context, titleID int64) ([]domain.Link, error)
	RecordCheck(ctx context.Context, check domain.LinkCheck) error
}

// TitleStore is the subset of the title repository the monitor needs.
type TitleStore interface {
	Prune(ctx context.Context, params database.PruneParams) (*database.PruneResult, error)
}

// Observer receives monitor events, typically for metrics.
type Observer interface {
	ProbeCompleted(result ProbeResult)
	SweepCompleted(report *SweepReport)
	PruneCompleted(report *PruneReport)
}

type nopObserver struct{}

func (nopObserver) ProbeCompleted(ProbeResult)  {}
func (nopObserver) SweepCompleted(*SweepReport) {}
func (nopObserver) PruneCompleted(*PruneReport) {}

// Option configures a Monitor.
type Option func(*Monitor)

// WithObserver sets the event observer.
func WithObserver(o Observer) Option {
	return func(m *Monitor) { m.observer = o }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// Monitor runs health sweeps and prune passes.
type Monitor struct {
	links    LinkStore
	titles   TitleStore
	prober   Prober
	cfg      Config
	log      logger.Logger
	observer Observer
	now      func() time.Time
}

// NewMonitor creates a Monitor.
func NewMonitor(links LinkStore, titles TitleStore, prober Prober, cfg Config, log logger.Logger, opts ...Option) *Monitor {
	m := &Monitor{
		links:    links,
		titles:   titles,
		prober:   prober,
		cfg:      cfg.WithDefaults(),
		log:      log.With(logger.Component("health")),
		observer: nopObserver{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SweepOptions overrides the configured sweep settings. Zero fields use config.
type SweepOptions struct {
	Limit       int
	OlderThan   time.Duration
	Timeout     time.Duration
	Concurrency int
}

// SweepReport summarizes one sweep.
type SweepReport struct {
	RunID    string
	Due      int
	Checked  int
	Active   int
	Inactive int
	Timeouts int
	Errors   int
	Duration time.Duration
	Aborted  bool

	mu     sync.Mutex
	titles map[int64]struct{}
}

func (r *SweepReport) add(titleID int64, result ProbeResult) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.titles == nil {
		r.titles = make(map[int64]struct{})
	}
	r.titles[titleID] = struct{}{}

	r.Checked++
	if result.Healthy {
		r.Active++
		return
	}
	r.Inactive++
	switch result.Reason {
	case ReasonTimeout:
		r.Timeouts++
	case ReasonTransportError:
		r.Errors++
	}
}

// SweptTitles returns the ids of titles with at least one link probed, sorted.
func (r *SweepReport) SweptTitles() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]int64, 0, len(r.titles))
	for id := range r.titles {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (m *Monitor) resolve(opts SweepOptions) SweepOptions {
	if opts.Limit <= 0 {
		opts.Limit = m.cfg.BatchLimit
	}
	if opts.OlderThan <= 0 {
		opts.OlderThan = m.cfg.StaleAfter
	}
	if opts.Timeout <= 0 {
		opts.Timeout = m.cfg.Timeout
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = m.cfg.Concurrency
	}
	return opts
}

// Sweep probes every link that was never checked or whose last check is
// older than OlderThan, never-checked first, and writes each outcome back.
// It returns the report even when aborted.
func (m *Monitor) Sweep(ctx context.Context, opts SweepOptions) (*SweepReport, error) {
	opts = m.resolve(opts)
	report := &SweepReport{RunID: uuid.NewString()}
	start := m.now()
	log := m.log.With(logger.String("run_id", report.RunID))

	links, err := m.links.ListDue(ctx, start.Add(-opts.OlderThan), opts.Limit)
	if err != nil {
		report.Aborted = true
		return report, fmt.Errorf("%w: list due links: %w", ErrSweepAborted, err)
	}
	report.Due = len(links)

	log.Info("Health sweep started",
		logger.Int("due", report.Due),
		logger.Int("concurrency", opts.Concurrency),
		logger.Duration("older_than", opts.OlderThan),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)

	for _, link := range links {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			result, checkErr := m.probe(gctx, link, opts.Timeout)
			if checkErr != nil {
				return checkErr
			}
			report.add(link.TitleID, result)
			return nil
		})
	}

	waitErr := g.Wait()
	if waitErr == nil {
		waitErr = ctx.Err()
	}
	report.Duration = time.Since(start)
	m.observer.SweepCompleted(report)

	if waitErr != nil {
		report.Aborted = true
		log.Warn("Health sweep aborted",
			logger.Int("checked", report.Checked),
			logger.Int("due", report.Due),
			logger.Error(waitErr),
		)
		return report, fmt.Errorf("%w: %w", ErrSweepAborted, waitErr)
	}

	log.Info("Health sweep completed",
		logger.Int("checked", report.Checked),
		logger.Int("active", report.Active),
		logger.Int("inactive", report.Inactive),
		logger.Int("timeouts", report.Timeouts),
		logger.Int("errors", report.Errors),
		logger.Duration("duration", report.Duration),
	)

	return report, nil
}

// probe checks one link and persists the outcome.
func (m *Monitor) probe(ctx context.Context, link domain.Link, timeout time.Duration) (ProbeResult, error) {
	result, err := m.prober.Check(ctx, link.NormalizedURL, timeout)
	if err != nil {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		if !errors.Is(err, context.DeadlineExceeded) {
			return result, fmt.Errorf("probe link %d: %w", link.ID, err)
		}
		result = ProbeResult{Reason: ReasonTimeout}
	}
	m.observer.ProbeCompleted(result)

	check := domain.LinkCheck{
		LinkID:     link.ID,
		IsActive:   result.Healthy,
		StatusCode: result.StatusCode,
		CheckedAt:  m.now(),
	}
	if !result.Healthy {
		check.FailureReason = string(result.Reason)
	}

	if recordErr := m.links.RecordCheck(ctx, check); recordErr != nil {
		if errors.Is(recordErr, database.ErrLinkNotFound) {
			// Deleted by a concurrent prune or merge.
			m.log.Debug("Link vanished during sweep", logger.Int64("link_id", link.ID))
			return result, nil
		}
		return result, recordErr
	}

	if !result.Healthy {
		m.log.Debug("Link failed probe",
			logger.Int64("link_id", link.ID),
			logger.String("url", link.NormalizedURL),
			logger.String("reason", string(result.Reason)),
			logger.Int("status_code", result.StatusCode),
		)
	}

	return result, nil
}

// PruneReport summarizes one prune pass.
type PruneReport struct {
	Reset       int64
	Incremented int64
	Deleted     []database.PrunedTitle
}

// Prune advances the zero-active-sweep counters of the titles sweep probed
// and deletes titles that reached the threshold. sweep must be the report of
// a Sweep that returned without error, so every probe write is visible.
func (m *Monitor) Prune(ctx context.Context, sweep *SweepReport) (*PruneReport, error) {
	if sweep == nil || sweep.Aborted {
		return nil, ErrNoCompletedSweep
	}

	result, err := m.titles.Prune(ctx, database.PruneParams{
		Threshold:   m.cfg.PruneAfterSweeps,
		NeverLinked: m.cfg.PruneNeverLinked,
		SweptTitles: sweep.SweptTitles(),
	})
	if err != nil {
		return nil, fmt.Errorf("prune titles: %w", err)
	}

	report := &PruneReport{
		Reset:       result.Reset,
		Incremented: result.Incremented,
		Deleted:     result.Deleted,
	}
	m.observer.PruneCompleted(report)

	for _, t := range report.Deleted {
		m.log.Info("Pruned title without active links",
			logger.Int64("title_id", t.ID),
			logger.String("external_id", t.ExternalID),
		)
	}

	m.log.Info("Prune pass completed",
		logger.Int64("reset", report.Reset),
		logger.Int64("incremented", report.Incremented),
		logger.Int("deleted", len(report.Deleted)),
		logger.Int("threshold", m.cfg.PruneAfterSweeps),
	)

	return report, nil
}

// ValidateTitle probes every link of one title regardless of when it was
// last checked. It returns how many links came back healthy and how many
// were probed.
func (m *Monitor) ValidateTitle(ctx context.Context, titleID int64) (validated, total int, err error) {
	links, err := m.links.ListByTitle(ctx, titleID)
	if err != nil {
		return 0, 0, fmt.Errorf("list links for title %d: %w", titleID, err)
	}

	report := &SweepReport{}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.Concurrency)

	for _, link := range links {
		g.Go(func() error {
			result, checkErr := m.probe(gctx, link, m.cfg.Timeout)
			if checkErr != nil {
				return checkErr
			}
			report.add(link.TitleID, result)
			return nil
		})
	}

	if waitErr := g.Wait(); waitErr != nil {
		return report.Active, len(links), fmt.Errorf("validate title %d: %w", titleID, waitErr)
	}

	return report.Active, len(links), nil
}
