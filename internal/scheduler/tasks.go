package scheduler

import (
	"context"
	"fmt"

	"github.com/jonesrussell/north-cloud/streamline/internal/discovery"
	"github.com/jonesrussell/north-cloud/streamline/internal/frontier"
	"github.com/jonesrussell/north-cloud/streamline/internal/health"
	"github.com/jonesrussell/north-cloud/streamline/internal/logger"
)

// Task names.
const (
	TaskHealth    = "health-sweep"
	TaskDiscovery = "discovery-sweep"
)

// HealthRunner is the part of health.Monitor a sweep task needs.
type HealthRunner interface {
	Sweep(ctx context.Context, opts health.SweepOptions) (*health.SweepReport, error)
	Prune(ctx context.Context, sweep *health.SweepReport) (*health.PruneReport, error)
}

// DiscoveryRunner is the part of discovery.Service a sweep task needs.
type DiscoveryRunner interface {
	Sweep(ctx context.Context, sites []frontier.Site) (*discovery.SweepReport, error)
}

// SiteSource supplies the frontier sites to crawl.
type SiteSource interface {
	Load() (sites []frontier.Site, skipped []error, err error)
}

// HealthTask sweeps due links and then prunes dead titles. Prune only runs
// after a sweep that completed, so every probe write is committed first.
func HealthTask(monitor HealthRunner, skipPrune bool) TaskFunc {
	return func(ctx context.Context) error {
		sweep, err := monitor.Sweep(ctx, health.SweepOptions{})
		if err != nil {
			return fmt.Errorf("health sweep: %w", err)
		}
		if skipPrune {
			return nil
		}
		if _, err := monitor.Prune(ctx, sweep); err != nil {
			return fmt.Errorf("prune titles: %w", err)
		}
		return nil
	}
}

// DiscoveryTask reloads the frontier file and sweeps every enabled site.
// The file is read on each run so edits apply without a restart.
func DiscoveryTask(sites SiteSource, runner DiscoveryRunner, log logger.Logger) TaskFunc {
	return func(ctx context.Context) error {
		loaded, skipped, err := sites.Load()
		for _, skipErr := range skipped {
			log.Warn("Skipping invalid frontier site", logger.Error(skipErr))
		}
		if err != nil {
			return fmt.Errorf("load frontier: %w", err)
		}
		if _, err := runner.Sweep(ctx, loaded); err != nil {
			return fmt.Errorf("discovery sweep: %w", err)
		}
		return nil
	}
}
