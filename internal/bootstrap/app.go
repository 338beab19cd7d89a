// Package bootstrap builds the streamline object graph from configuration
// and runs the long-lived service.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/north-cloud/streamline/internal/classifier"
	"github.com/jonesrussell/north-cloud/streamline/internal/config"
	"github.com/jonesrussell/north-cloud/streamline/internal/database"
	"github.com/jonesrussell/north-cloud/streamline/internal/discovery"
	"github.com/jonesrussell/north-cloud/streamline/internal/extractor"
	"github.com/jonesrussell/north-cloud/streamline/internal/frontier"
	"github.com/jonesrussell/north-cloud/streamline/internal/health"
	"github.com/jonesrussell/north-cloud/streamline/internal/logger"
	"github.com/jonesrussell/north-cloud/streamline/internal/metrics"
	"github.com/jonesrussell/north-cloud/streamline/internal/orchestrator"
	"github.com/jonesrussell/north-cloud/streamline/internal/reconciler"
	"github.com/jonesrussell/north-cloud/streamline/internal/renderer"
)

// App holds every wired component. Fields are exported for the CLI.
type App struct {
	Config *config.Config
	Log    logger.Logger
	DB     *sqlx.DB

	Titles *database.TitleRepository
	Links  *database.LinkRepository

	Metrics      *metrics.Metrics
	Renderer     *renderer.CollyRenderer
	Classifier   *classifier.Classifier
	Discovery    *discovery.Service
	Monitor      *health.Monitor
	Orchestrator *orchestrator.Service
	Frontier     *frontier.Loader
}

// CreateLogger builds the root logger tagged with the service name.
func CreateLogger(cfg *config.Config) (logger.Logger, error) {
	log, err := logger.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	return log.With(
		logger.String("service", cfg.Service.Name),
		logger.String("version", cfg.Service.Version),
	), nil
}

// New wires the application. The caller owns the returned App and must
// call Close.
func New(ctx context.Context, cfg *config.Config, log logger.Logger) (*App, error) {
	// Phase 1: catalog store
	db, err := database.NewPostgresConnection(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	log.Info("Connected to database",
		logger.String("host", cfg.Database.Host),
		logger.String("database", cfg.Database.DBName),
	)

	app := &App{
		Config:  cfg,
		Log:     log,
		DB:      db,
		Titles:  database.NewTitleRepository(db),
		Links:   database.NewLinkRepository(db),
		Metrics: metrics.New(metrics.NewRegistry()),
	}

	// Phase 2: page pipeline
	rec := reconciler.New(app.Titles, app.Links, log)
	p, err := newPipeline(cfg, log, rec)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	app.Classifier = p.classifier
	app.Renderer = p.renderer
	app.Discovery = p.discovery

	app.Renderer.OnBreakerChange(func(host string, to renderer.State) {
		app.Metrics.BreakerChanged(host, to.String())
	})
	app.Discovery.SetObserver(app.Metrics)

	// Phase 3: link health
	app.Monitor = health.NewMonitor(
		app.Links,
		app.Titles,
		health.NewHTTPProber(cfg.Health),
		cfg.Health,
		log,
		health.WithObserver(app.Metrics),
	)

	// Phase 4: read path
	app.Orchestrator = orchestrator.New(app.Titles, app.Links, app.Discovery, app.Monitor, cfg.Refresh, log)
	app.Orchestrator.SetObserver(app.Metrics)

	app.Frontier = frontier.NewLoader(cfg.Discovery.FrontierPath)

	log.Info("Application wired",
		logger.Int("policy_version", app.Classifier.PolicyVersion()),
		logger.String("frontier", cfg.Discovery.FrontierPath),
	)

	return app, nil
}

type pipeline struct {
	classifier *classifier.Classifier
	renderer   *renderer.CollyRenderer
	discovery  *discovery.Service
}

func newPipeline(cfg *config.Config, log logger.Logger, rec discovery.Reconciler) (*pipeline, error) {
	cls, err := classifier.FromConfig(cfg.Classifier)
	if err != nil {
		return nil, fmt.Errorf("load classifier policy: %w", err)
	}
	r := renderer.New(cfg.Renderer, log)

	return &pipeline{
		classifier: cls,
		renderer:   r,
		discovery:  discovery.New(r, extractor.New(), cls, rec, cfg.Discovery, log),
	}, nil
}

// NewPreviewer wires only the render, extract and classify stages. It needs
// no database and can only be used for Preview.
func NewPreviewer(cfg *config.Config, log logger.Logger) (*discovery.Service, error) {
	p, err := newPipeline(cfg, log, nil)
	if err != nil {
		return nil, err
	}
	return p.discovery, nil
}

// Close cancels refresh jobs and releases the database.
func (a *App) Close(ctx context.Context) error {
	if err := a.Orchestrator.Shutdown(ctx); err != nil {
		a.Log.Warn("Refresh jobs did not stop in time", logger.Error(err))
	}
	if err := a.DB.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
