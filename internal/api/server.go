package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/north-cloud/streamline/internal/logger"
)

// Options wires the optional parts of the router.
type Options struct {
	ServiceName    string
	ServiceVersion string
	// Metrics serves GET /metrics when set.
	Metrics http.Handler
	// Observe receives every finished request when set.
	Observe RequestObserver
	// Checks are run by GET /health.
	Checks map[string]HealthCheck
}

// Server is the HTTP server with lifecycle management.
type Server struct {
	router *gin.Engine
	server *http.Server
	log    logger.Logger
	cfg    Config
}

// NewRouter builds the gin engine with middleware and every route.
func NewRouter(cfg Config, log logger.Logger, titles *TitlesHandler, opts Options) *gin.Engine {
	cfg.SetDefaults()

	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(RecoveryMiddleware(log))
	router.Use(RequestIDMiddleware(log))
	router.Use(LoggerMiddleware(log))
	router.Use(CORSMiddleware(cfg.CORS))
	if opts.Observe != nil {
		router.Use(MetricsMiddleware(opts.Observe))
	}

	health := healthHandler(opts.ServiceName, opts.ServiceVersion, time.Now(), opts.Checks)
	router.GET("/health", health)
	router.HEAD("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	if opts.Metrics != nil {
		router.GET("/metrics", gin.WrapH(opts.Metrics))
	}

	v1 := router.Group("/api/v1")
	{
		v1.GET("/titles", titles.List)
		v1.GET("/titles/:id", titles.Get)
		v1.POST("/titles/:id/refresh", titles.Refresh)
		v1.POST("/titles/:id/validate", titles.Validate)
	}

	return router
}

// NewServer creates a Server around router.
func NewServer(cfg Config, log logger.Logger, router *gin.Engine) *Server {
	cfg.SetDefaults()
	log = log.With(logger.Component("api"))

	return &Server{
		router: router,
		server: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      router,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
		log: log,
		cfg: cfg,
	}
}

// Router returns the underlying gin engine.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Start blocks serving requests until the server is shut down.
func (s *Server) Start() error {
	s.log.Info("Starting HTTP server",
		logger.String("address", s.server.Addr),
		logger.Duration("read_timeout", s.server.ReadTimeout),
		logger.Duration("write_timeout", s.server.WriteTimeout),
	)

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// StartAsync starts the server in a goroutine. The returned channel
// receives a listen error, if any, and is closed when serving stops.
func (s *Server) StartAsync() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.Start(); err != nil {
			errCh <- err
		}
		close(errCh)
	}()
	return errCh
}

// Shutdown gracefully stops the server within the configured timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down HTTP server", logger.Duration("timeout", s.cfg.ShutdownTimeout))

	shutdownCtx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	s.log.Info("HTTP server stopped gracefully")
	return nil
}
