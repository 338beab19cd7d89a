// Package orchestrator serves catalog reads and keeps titles fresh: a read
// of a stale title schedules one background discovery job for it, and no
// title ever has more than one job in flight.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jonesrussell/north-cloud/streamline/internal/database"
	"github.com/jonesrussell/north-cloud/streamline/internal/discovery"
	"github.com/jonesrussell/north-cloud/streamline/internal/domain"
	"github.com/jonesrussell/north-cloud/streamline/internal/logger"
)

var (
	// ErrTitleNotFound is returned for an id that matches no title.
	ErrTitleNotFound = errors.New("title not found")
	// ErrCannotRefresh is returned when a title has no detail URL and none
	// can be constructed from its id.
	ErrCannotRefresh = errors.New("title cannot be refreshed: no detail url")
	// ErrShuttingDown is returned once Shutdown has begun.
	ErrShuttingDown = errors.New("orchestrator is shutting down")
)

// RefreshStatus reports what a refresh trigger did.
type RefreshStatus string

// Refresh statuses.
const (
	StatusStarted        RefreshStatus = "started"
	StatusAlreadyRunning RefreshStatus = "already_running"
	StatusFresh          RefreshStatus = "fresh"
)

// TitleStore is the title half of the catalog store.
type TitleStore interface {
	GetByExternalID(ctx context.Context, externalID string) (*domain.Title, error)
	GetByID(ctx context.Context, id int64) (*domain.Title, error)
	List(ctx context.Context, params database.ListTitlesParams) ([]domain.Title, error)
}

// LinkStore is the link half of the catalog store.
type LinkStore interface {
	ListByTitle(ctx context.Context, titleID int64) ([]domain.Link, error)
}

// Discoverer runs one discovery job.
type Discoverer interface {
	Run(ctx context.Context, req discovery.Request) (*discovery.Report, error)
}

// Validator probes every link of one title.
type Validator interface {
	ValidateTitle(ctx context.Context, titleID int64) (validated, total int, err error)
}

// Observer receives refresh job events, typically for metrics.
type Observer interface {
	RefreshStarted(reason string)
	RefreshFinished(outcome string, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) RefreshStarted(string)                 {}
func (nopObserver) RefreshFinished(string, time.Duration) {}

// Refresh job outcomes.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
	OutcomeTimedOut  = "timed_out"
	OutcomeCanceled  = "canceled"
)

// TitleView is a title as served to readers.
type TitleView struct {
	domain.Title
	// Links holds active links only.
	Links      []domain.Link `json:"links"`
	Refreshing bool          `json:"refreshing"`
}

// ValidationResult is the outcome of an on-demand validation.
type ValidationResult struct {
	ValidatedCount int `json:"validated_count"`
	TotalCount     int `json:"total_count"`
}

type job struct {
	id      string
	started time.Time
	cancel  context.CancelFunc
}

// Service implements the catalog read and refresh operations.
type Service struct {
	titles     TitleStore
	links      LinkStore
	discoverer Discoverer
	validator  Validator
	cfg        Config
	log        logger.Logger
	observer   Observer
	now        func() time.Time

	baseCtx    context.Context
	baseCancel context.CancelFunc

	mu       sync.Mutex
	jobs     map[string]*job
	finished map[string]time.Time
	closed   bool
	wg       sync.WaitGroup
}

// New creates a Service. validator may be nil, in which case refreshed
// links are left for the next health sweep.
func New(titles TitleStore, links LinkStore, discoverer Discoverer, validator Validator, cfg Config, log logger.Logger) *Service {
	cfg.SetDefaults()
	baseCtx, baseCancel := context.WithCancel(context.Background())

	return &Service{
		titles:     titles,
		links:      links,
		discoverer: discoverer,
		validator:  validator,
		cfg:        cfg,
		log:        log.With(logger.Component("orchestrator")),
		observer:   nopObserver{},
		now:        time.Now,
		baseCtx:    baseCtx,
		baseCancel: baseCancel,
		jobs:       make(map[string]*job),
		finished:   make(map[string]time.Time),
	}
}

// SetObserver replaces the job observer.
func (s *Service) SetObserver(o Observer) {
	s.observer = o
}

// GetTitle returns the title with its active links. When the links are
// stale a refresh is scheduled in the background and the view is marked
// refreshing; the read itself never waits on the network.
func (s *Service) GetTitle(ctx context.Context, id string) (*TitleView, error) {
	title, err := s.resolve(ctx, id)
	if err != nil {
		return nil, err
	}

	links, err := s.links.ListByTitle(ctx, title.ID)
	if err != nil {
		return nil, fmt.Errorf("list links for %s: %w", title.ExternalID, err)
	}

	view := &TitleView{Title: *title, Links: activeOnly(links)}

	reason := Staleness(links, s.now(), s.cfg.FreshnessWindow, s.cfg.MinActiveLinks)
	if reason == "" {
		view.Refreshing = s.isRunning(title.ExternalID)
		return view, nil
	}

	status, err := s.schedule(title, reason, false)
	switch {
	case err == nil:
		view.Refreshing = status == StatusStarted || status == StatusAlreadyRunning
	case errors.Is(err, ErrCannotRefresh), errors.Is(err, ErrShuttingDown):
		s.log.Debug("Stale title not refreshed",
			logger.String("external_id", title.ExternalID),
			logger.String("reason", reason),
			logger.Error(err),
		)
	default:
		return nil, err
	}

	return view, nil
}

// ListTitles lists titles, optionally filtered by kind.
func (s *Service) ListTitles(ctx context.Context, kind domain.TitleKind, limit, offset int) ([]domain.Title, error) {
	titles, err := s.titles.List(ctx, database.ListTitlesParams{Kind: kind, Limit: limit, Offset: offset})
	if err != nil {
		return nil, fmt.Errorf("list titles: %w", err)
	}
	return titles, nil
}

// TriggerRefresh schedules a discovery job for the title. Without force a
// title whose links are fresh is left alone. Either way at most one job
// per title runs at a time.
func (s *Service) TriggerRefresh(ctx context.Context, id string, force bool) (RefreshStatus, error) {
	title, err := s.resolve(ctx, id)
	if err != nil {
		return "", err
	}

	reason := "forced"
	if !force {
		links, listErr := s.links.ListByTitle(ctx, title.ID)
		if listErr != nil {
			return "", fmt.Errorf("list links for %s: %w", title.ExternalID, listErr)
		}
		reason = Staleness(links, s.now(), s.cfg.FreshnessWindow, s.cfg.MinActiveLinks)
		if reason == "" {
			if s.isRunning(title.ExternalID) {
				return StatusAlreadyRunning, nil
			}
			return StatusFresh, nil
		}
	}

	return s.schedule(title, reason, true)
}

// ValidateLinks probes every link of the title now and reports how many
// came back healthy.
func (s *Service) ValidateLinks(ctx context.Context, id string) (*ValidationResult, error) {
	title, err := s.resolve(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.validator == nil {
		return nil, errors.New("link validation is not configured")
	}

	validated, total, err := s.validator.ValidateTitle(ctx, title.ID)
	if err != nil {
		return nil, fmt.Errorf("validate links for %s: %w", title.ExternalID, err)
	}

	return &ValidationResult{ValidatedCount: validated, TotalCount: total}, nil
}

// InFlight returns the number of refresh jobs currently running.
func (s *Service) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Shutdown cancels every in-flight job and waits for them to return or for
// ctx to end.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.baseCancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for refresh jobs: %w", ctx.Err())
	}
}

// resolve finds a title by external id, then by numeric id.
func (s *Service) resolve(ctx context.Context, id string) (*domain.Title, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrTitleNotFound
	}

	title, err := s.titles.GetByExternalID(ctx, id)
	if errors.Is(err, database.ErrTitleNotFound) {
		numeric, parseErr := strconv.ParseInt(id, 10, 64)
		if parseErr != nil {
			return nil, fmt.Errorf("%w: %s", ErrTitleNotFound, id)
		}
		title, err = s.titles.GetByID(ctx, numeric)
	}
	if errors.Is(err, database.ErrTitleNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrTitleNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load title %s: %w", id, err)
	}

	return title, nil
}

// detailURL returns the stored detail URL or one built from the kind's
// fallback template. Placeholder ids cannot be substituted.
func (s *Service) detailURL(title *domain.Title) string {
	if title.SourceDetailURL != "" {
		return title.SourceDetailURL
	}
	if !domain.IsCanonicalID(title.ExternalID) {
		return ""
	}
	tmpl := s.cfg.FallbackURLs[string(title.Kind)]
	if tmpl == "" || !strings.Contains(tmpl, IDPlaceholder) {
		return ""
	}
	return strings.ReplaceAll(tmpl, IDPlaceholder, title.ExternalID)
}

func (s *Service) isRunning(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.jobs[key]
	return ok
}

// schedule starts a job for title unless one is already running. Reads
// (explicit=false) also respect the retry cooldown.
func (s *Service) schedule(title *domain.Title, reason string, explicit bool) (RefreshStatus, error) {
	pageURL := s.detailURL(title)
	if pageURL == "" {
		return "", fmt.Errorf("%w: %s", ErrCannotRefresh, title.ExternalID)
	}
	key := title.ExternalID

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", ErrShuttingDown
	}
	if _, running := s.jobs[key]; running {
		s.mu.Unlock()
		return StatusAlreadyRunning, nil
	}
	now := s.now()
	s.evictCooldownsLocked(now)
	if last, ok := s.finished[key]; ok && !explicit && now.Sub(last) < s.cfg.RetryCooldown {
		s.mu.Unlock()
		return StatusFresh, nil
	}

	jobCtx, cancel := context.WithTimeout(s.baseCtx, s.cfg.JobTimeout)
	j := &job{id: uuid.NewString(), started: s.now(), cancel: cancel}
	s.jobs[key] = j
	s.wg.Add(1)
	s.mu.Unlock()

	s.observer.RefreshStarted(reason)
	s.log.Info("Refresh scheduled",
		logger.String("job_id", j.id),
		logger.String("external_id", key),
		logger.String("reason", reason),
		logger.String("url", pageURL),
	)

	go s.run(jobCtx, j, key, pageURL)

	return StatusStarted, nil
}

// evictCooldownsLocked forgets finished jobs whose cooldown has expired.
// s.mu must be held.
func (s *Service) evictCooldownsLocked(now time.Time) {
	for key, last := range s.finished {
		if now.Sub(last) >= s.cfg.RetryCooldown {
			delete(s.finished, key)
		}
	}
}

func (s *Service) run(ctx context.Context, j *job, key, pageURL string) {
	defer s.wg.Done()
	defer j.cancel()

	outcome := OutcomeSucceeded
	defer func() {
		s.mu.Lock()
		delete(s.jobs, key)
		s.finished[key] = s.now()
		s.mu.Unlock()

		elapsed := time.Since(j.started)
		s.observer.RefreshFinished(outcome, elapsed)
		s.log.Info("Refresh finished",
			logger.String("job_id", j.id),
			logger.String("external_id", key),
			logger.String("outcome", outcome),
			logger.Duration("elapsed", elapsed),
		)
	}()

	report, err := s.discoverer.Run(ctx, discovery.Request{URL: pageURL, ExternalID: key})
	if err == nil && s.validator != nil {
		err = s.validate(ctx, report)
	}
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}

	switch {
	case err == nil:
	case errors.Is(err, context.DeadlineExceeded):
		outcome = OutcomeTimedOut
	case errors.Is(err, context.Canceled):
		outcome = OutcomeCanceled
	default:
		outcome = OutcomeFailed
		s.log.Warn("Refresh failed",
			logger.String("job_id", j.id),
			logger.String("external_id", key),
			logger.Error(err),
		)
	}
}

// validate probes the refreshed title's links so the next read sees them
// as checked.
func (s *Service) validate(ctx context.Context, report *discovery.Report) error {
	if report == nil || !report.Persisted {
		return nil
	}

	title, err := s.titles.GetByExternalID(ctx, report.ExternalID)
	if err != nil {
		return fmt.Errorf("load refreshed title %s: %w", report.ExternalID, err)
	}

	if _, _, err := s.validator.ValidateTitle(ctx, title.ID); err != nil {
		return err
	}
	return nil
}
