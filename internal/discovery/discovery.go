// Package discovery runs the page pipeline: render a title page, extract
// candidate URLs, classify them, and reconcile the accepted ones into the
// catalog.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jonesrussell/north-cloud/streamline/internal/classifier"
	"github.com/jonesrussell/north-cloud/streamline/internal/domain"
	"github.com/jonesrussell/north-cloud/streamline/internal/extractor"
	"github.com/jonesrussell/north-cloud/streamline/internal/logger"
	"github.com/jonesrussell/north-cloud/streamline/internal/reconciler"
	"github.com/jonesrussell/north-cloud/streamline/internal/urlnorm"
)

// ErrInvalidURL is returned for a page URL that cannot be rendered.
var ErrInvalidURL = errors.New("invalid page url")

// Renderer produces a page snapshot for a URL.
type Renderer interface {
	Render(ctx context.Context, url string) (*domain.PageSnapshot, error)
}

// Reconciler persists one page's outcome.
type Reconciler interface {
	Apply(ctx context.Context, outcome reconciler.Outcome) (*reconciler.ApplyResult, error)
}

// Observer receives job events, typically for metrics.
type Observer interface {
	JobCompleted(report *Report, err error)
}

type nopObserver struct{}

func (nopObserver) JobCompleted(*Report, error) {}

// Service runs discovery jobs. It is safe for concurrent use.
type Service struct {
	renderer   Renderer
	extractor  *extractor.CandidateExtractor
	classifier *classifier.Classifier
	reconciler Reconciler
	cfg        Config
	log        logger.Logger
	observer   Observer
}

// New creates a Service.
func New(
	renderer Renderer,
	ext *extractor.CandidateExtractor,
	cls *classifier.Classifier,
	rec Reconciler,
	cfg Config,
	log logger.Logger,
) *Service {
	cfg.SetDefaults()
	return &Service{
		renderer:   renderer,
		extractor:  ext,
		classifier: cls,
		reconciler: rec,
		cfg:        cfg,
		log:        log.With(logger.Component("discovery")),
		observer:   nopObserver{},
	}
}

// SetObserver replaces the job observer.
func (s *Service) SetObserver(o Observer) {
	s.observer = o
}

// Request identifies the page to process.
type Request struct {
	URL string
	// ExternalID is the id the page's title is already stored under, if any.
	ExternalID string
}

// Report describes one job.
type Report struct {
	JobID        string
	URL          string
	ExternalID   string
	MergedFrom   string
	Metadata     domain.TitleMetadata
	StrategyHits map[string]int
	Verdicts     []domain.Verdict
	Candidates   int
	Accepted     int
	Saved        int
	// RenderErr is set when the page could not be rendered; the job still
	// completes with zero candidates.
	RenderErr error
	Persisted bool
	Duration  time.Duration

	started time.Time
}

// Preview renders, extracts and classifies a page without touching the catalog.
func (s *Service) Preview(ctx context.Context, pageURL string) (*Report, error) {
	return s.analyze(ctx, Request{URL: pageURL})
}

// Run processes one page end to end. Render failures are not errors: the
// page is treated as empty. Only persistence failures are returned.
func (s *Service) Run(ctx context.Context, req Request) (*Report, error) {
	report, err := s.analyze(ctx, req)
	if err != nil {
		s.observer.JobCompleted(report, err)
		return report, err
	}

	// A new page with nothing playable is not worth a catalog row.
	if req.ExternalID == "" && report.Accepted == 0 {
		report.Duration = time.Since(report.started)
		s.log.Info("Discovery found no playable links",
			logger.String("job_id", report.JobID),
			logger.String("url", report.URL),
			logger.Int("candidates", report.Candidates),
		)
		s.observer.JobCompleted(report, nil)
		return report, nil
	}

	result, err := s.reconciler.Apply(ctx, reconciler.Outcome{
		KnownID:  report.ExternalID,
		Metadata: report.Metadata,
		Verdicts: report.Verdicts,
	})
	if err != nil {
		err = fmt.Errorf("reconcile %s: %w", req.URL, err)
		s.observer.JobCompleted(report, err)
		return report, err
	}

	report.ExternalID = result.Title.ExternalID
	report.MergedFrom = result.MergedFrom
	report.Saved = result.Saved
	report.Persisted = true
	report.Duration = time.Since(report.started)

	s.log.Info("Discovery job completed",
		logger.String("job_id", report.JobID),
		logger.String("url", report.URL),
		logger.String("external_id", report.ExternalID),
		logger.Int("candidates", report.Candidates),
		logger.Int("accepted", report.Accepted),
		logger.Int("saved", report.Saved),
		logger.Duration("duration", report.Duration),
	)
	s.observer.JobCompleted(report, nil)

	return report, nil
}

func (s *Service) analyze(ctx context.Context, req Request) (*Report, error) {
	report := &Report{
		JobID:      uuid.NewString(),
		URL:        req.URL,
		ExternalID: req.ExternalID,
		started:    time.Now(),
	}

	pageURL, err := urlnorm.Canonicalize(req.URL)
	if err != nil {
		return report, fmt.Errorf("%w: %q: %w", ErrInvalidURL, req.URL, err)
	}
	report.URL = pageURL

	snap, renderErr := s.renderer.Render(ctx, pageURL)
	if renderErr != nil {
		report.RenderErr = renderErr
		s.log.Warn("Render failed; continuing with empty page",
			logger.String("job_id", report.JobID),
			logger.String("url", pageURL),
			logger.Error(renderErr),
		)
		snap = &domain.PageSnapshot{URL: pageURL}
	}
	if snap.URL == "" {
		snap.URL = pageURL
	}

	extraction := s.extractor.Extract(snap)
	report.StrategyHits = extraction.StrategyHits
	report.Candidates = len(extraction.Candidates)

	host, _ := urlnorm.Host(pageURL)
	report.Verdicts = s.classifier.ClassifyAll(extraction.Candidates, classifier.PageContext{
		Host:     host,
		Language: snap.Language,
	})
	report.Accepted = len(classifier.Accepted(report.Verdicts))

	// A failed render says nothing about the title; leave stored fields alone.
	if renderErr == nil {
		report.Metadata = extractor.ExtractMetadata(snap)
	}
	if report.ExternalID == "" {
		report.ExternalID = extractor.PlaceholderID(pageURL)
	}
	report.Duration = time.Since(report.started)

	return report, nil
}
