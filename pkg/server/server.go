package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"faims3/conductor/pkg/config"
	"faims3/conductor/pkg/notebook/backup"
	"faims3/conductor/pkg/notebook/export"
	"faims3/conductor/pkg/notebook/repository"
	"faims3/conductor/pkg/server/handlers"
	"faims3/conductor/pkg/server/middleware"
	"faims3/conductor/pkg/telemetry/health"
	"faims3/conductor/pkg/telemetry/metrics"
	"faims3/conductor/pkg/telemetry/tracing"
)

// Dependencies are the components the server routes requests to.
// Health, Metrics and RestoreLock may be nil.
type Dependencies struct {
	Repository *repository.Repository
	CSV        *export.CSVExporter
	Zip        *export.ZipExporter
	Spatial    *export.SpatialExporter
	Dumper     *backup.Dumper
	Restore    backup.RestoreOptions
	Health     *health.Checker
	Metrics    *metrics.Collector

	// RestoreLock is held by every HTTP restore. Share it with the inbox
	// watcher so the two never write at the same time.
	RestoreLock *sync.Mutex
}

// Server is the conductor HTTP server.
type Server struct {
	config        *config.ServerConfig
	metricsConfig *config.MetricsConfig
	healthConfig  *config.HealthConfig
	deps          Dependencies
	httpServer    *http.Server
	shutdownChan  chan struct{}
	shutdownOnce  sync.Once
	requestOnce   sync.Once
	mu            sync.RWMutex
	isRunning     bool
	logger        *slog.Logger
}

// NewServer creates a new server.
func NewServer(cfg *config.Config, deps Dependencies) *Server {
	return &Server{
		config:        &cfg.Server,
		metricsConfig: &cfg.Telemetry.Metrics,
		healthConfig:  &cfg.Telemetry.Health,
		deps:          deps,
		shutdownChan:  make(chan struct{}),
		logger:        slog.Default().With("component", "server"),
	}
}

// Start starts the HTTP server and blocks until ctx is cancelled, a
// termination signal arrives or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	s.isRunning = true
	s.httpServer = &http.Server{
		Addr:         s.config.ListenAddress,
		Handler:      s.setupRoutes(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
	s.mu.Unlock()

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", "address", s.config.ListenAddress)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, initiating shutdown")
		return s.Shutdown(context.Background())
	case sig := <-sigChan:
		s.logger.Info("received shutdown signal", "signal", sig.String())
		return s.Shutdown(context.Background())
	case err := <-errChan:
		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()
		return err
	case <-s.shutdownChan:
		s.logger.Info("shutdown requested")
		return s.Shutdown(context.Background())
	}
}

// Shutdown gracefully shuts down the server, waiting up to the configured
// shutdown timeout for in-flight exports to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		if !s.isRunning {
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		s.logger.Info("initiating graceful shutdown", "timeout", s.config.ShutdownTimeout.String())

		shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
		defer cancel()

		if s.httpServer != nil {
			if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
				s.logger.Error("error during server shutdown", "error", err)
				shutdownErr = fmt.Errorf("server shutdown error: %w", err)
			}
		}

		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()

		s.logger.Info("server stopped")
	})

	return shutdownErr
}

// setupRoutes configures HTTP routes and the middleware chain.
func (s *Server) setupRoutes() http.Handler {
	mux := http.NewServeMux()
	d := s.deps

	route := func(pattern string, h http.Handler) {
		mux.Handle(pattern, middleware.MetricsMiddleware(d.Metrics, pattern)(h))
	}

	route("GET /api/notebooks", handlers.NewNotebooksHandler(d.Repository))
	route("GET /api/notebooks/{id}/count", handlers.NewCountHandler(d.Repository))
	route("GET /api/notebooks/{id}/{file}", handlers.NewExportHandler(d.Repository, d.CSV, d.Zip, d.Spatial))
	route("GET /api/backup", handlers.NewBackupHandler(d.Dumper))
	route("POST /api/restore", handlers.NewRestoreHandler(d.Repository, d.Restore, s.config.MaxUploadBytes, d.Metrics, d.RestoreLock))

	if d.Health != nil {
		mux.Handle("GET "+pathOr(s.healthConfig.LivenessPath, "/health"), d.Health.LivenessHandler())
		mux.Handle("GET "+pathOr(s.healthConfig.ReadinessPath, "/ready"), d.Health.ReadinessHandler())
	}
	if d.Metrics != nil && s.metricsConfig.Enabled && s.metricsConfig.Path != "" {
		mux.Handle("GET "+s.metricsConfig.Path, d.Metrics.Handler())
	}

	var handler http.Handler = mux
	handler = tracing.HTTPMiddleware(handler)
	handler = middleware.LoggingMiddleware(handler)
	handler = middleware.RequestIDMiddleware(handler)
	handler = middleware.CORSMiddleware(middleware.DefaultCORSConfig(s.config.CORSAllowedOrigins))(handler)
	handler = middleware.RecoveryMiddleware(handler)

	return handler
}

func pathOr(path, fallback string) string {
	if path == "" {
		return fallback
	}
	return path
}

// IsRunning returns true if the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Handler returns the configured HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}

// RequestShutdown asks a running Start to shut down.
func (s *Server) RequestShutdown() {
	s.requestOnce.Do(func() { close(s.shutdownChan) })
}
