package bootstrap

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonesrussell/north-cloud/streamline/internal/api"
	"github.com/jonesrussell/north-cloud/streamline/internal/logger"
	"github.com/jonesrussell/north-cloud/streamline/internal/scheduler"
)

const shutdownGrace = 30 * time.Second

// SetupHTTPServer builds the API server over the app's services.
func SetupHTTPServer(app *App) *api.Server {
	cfg := app.Config
	router := api.NewRouter(cfg.Server, app.Log, api.NewTitlesHandler(app.Orchestrator), api.Options{
		ServiceName:    cfg.Service.Name,
		ServiceVersion: cfg.Service.Version,
		Metrics:        app.Metrics.Handler(),
		Observe:        app.Metrics.ObserveHTTP,
		Checks: map[string]api.HealthCheck{
			"database": app.DB.PingContext,
		},
	})
	return api.NewServer(cfg.Server, app.Log, router)
}

// SetupScheduler registers the periodic sweeps. It returns nil when the
// scheduler is disabled.
func SetupScheduler(app *App) (*scheduler.Scheduler, error) {
	cfg := app.Config.Scheduler
	if cfg.Disabled {
		app.Log.Info("Scheduler disabled")
		return nil, nil
	}

	s := scheduler.New(app.Log)
	if err := s.Add(scheduler.TaskHealth, cfg.HealthSchedule, scheduler.HealthTask(app.Monitor, cfg.SkipPrune)); err != nil {
		return nil, err
	}
	discoveryTask := scheduler.DiscoveryTask(app.Frontier, app.Discovery, app.Log)
	if err := s.Add(scheduler.TaskDiscovery, cfg.DiscoverySchedule, discoveryTask); err != nil {
		return nil, err
	}
	return s, nil
}

// Serve runs the HTTP API and the scheduler until ctx ends or SIGINT or
// SIGTERM arrives, then shuts everything down in reverse order.
func Serve(ctx context.Context, app *App) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := SetupHTTPServer(app)
	sched, err := SetupScheduler(app)
	if err != nil {
		return fmt.Errorf("setup scheduler: %w", err)
	}
	if sched != nil {
		sched.Start()
	}

	errCh := server.StartAsync()

	var serveErr error
	select {
	case serveErr = <-errCh:
	case <-ctx.Done():
		app.Log.Info("Shutdown signal received")
	}

	//nolint:contextcheck // the serve context is already done
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		app.Log.Error("HTTP server shutdown failed", logger.Error(err))
	}
	if sched != nil {
		if err := sched.Stop(shutdownCtx); err != nil {
			app.Log.Error("Scheduler shutdown failed", logger.Error(err))
		}
	}
	if err := app.Orchestrator.Shutdown(shutdownCtx); err != nil {
		app.Log.Error("Refresh jobs did not stop", logger.Error(err))
	}

	return serveErr
}
