package discovery

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jonesrussell/north-cloud/streamline/internal/frontier"
	"github.com/jonesrussell/north-cloud/streamline/internal/logger"
)

// SweepReport summarizes a frontier sweep.
type SweepReport struct {
	Sites           int
	Listings        int
	ListingFailures int
	Pages           int
	Persisted       int
	Accepted        int
	Saved           int
	Failed          int
	Duration        time.Duration

	mu sync.Mutex
}

func (r *SweepReport) addJob(job *Report, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err != nil {
		r.Failed++
		return
	}
	r.Accepted += job.Accepted
	r.Saved += job.Saved
	if job.Persisted {
		r.Persisted++
	}
}

// Sweep walks every site's listing pages, collects detail links, and runs
// a discovery job for each. Failed pages are logged and counted; only
// cancellation stops the sweep early.
func (s *Service) Sweep(ctx context.Context, sites []frontier.Site) (*SweepReport, error) {
	start := time.Now()
	report := &SweepReport{Sites: len(sites)}

	var pages []string
	for _, site := range sites {
		links, err := s.collect(ctx, site, report)
		if err != nil {
			report.Duration = time.Since(start)
			return report, err
		}
		pages = append(pages, links...)
	}
	report.Pages = len(pages)

	s.log.Info("Discovery sweep started",
		logger.Int("sites", report.Sites),
		logger.Int("pages", report.Pages),
		logger.Int("concurrency", s.cfg.Concurrency),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)

	for _, page := range pages {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			pageCtx, cancel := context.WithTimeout(gctx, s.cfg.PageTimeout)
			defer cancel()

			job, err := s.Run(pageCtx, Request{URL: page})
			report.addJob(job, err)
			if err != nil {
				s.log.Warn("Discovery job failed", logger.String("url", page), logger.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()

	report.Duration = time.Since(start)
	if err := ctx.Err(); err != nil {
		return report, err
	}

	s.log.Info("Discovery sweep completed",
		logger.Int("pages", report.Pages),
		logger.Int("persisted", report.Persisted),
		logger.Int("saved", report.Saved),
		logger.Int("failed", report.Failed),
		logger.Duration("duration", report.Duration),
	)

	return report, nil
}

// collect renders a site's listing pages and returns up to MaxTitles
// unique detail links.
func (s *Service) collect(ctx context.Context, site frontier.Site, report *SweepReport) ([]string, error) {
	seen := make(map[string]struct{})
	var links []string

	for i, listing := range site.ListingURLs {
		if i > 0 && site.Delay > 0 {
			if err := sleep(ctx, site.Delay); err != nil {
				return nil, err
			}
		}

		report.Listings++
		snap, err := s.renderer.Render(ctx, listing)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			report.ListingFailures++
			s.log.Warn("Listing render failed",
				logger.String("site", site.Name),
				logger.String("url", listing),
				logger.Error(err),
			)
			continue
		}

		for _, link := range frontier.DetailLinks(snap, site) {
			if _, dup := seen[link]; dup {
				continue
			}
			seen[link] = struct{}{}
			links = append(links, link)
			if site.MaxTitles > 0 && len(links) >= site.MaxTitles {
				return links, nil
			}
		}
	}

	return links, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
