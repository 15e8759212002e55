// Package api serves the validation service over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/clinical-fact-validator/internal/domain"
	"github.com/clinical-fact-validator/internal/metrics"
	"github.com/clinical-fact-validator/internal/middleware"
	"github.com/clinical-fact-validator/internal/service"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) error

// Server represents the HTTP server
type Server struct {
	configManager domain.ConfigManager
	service       *service.ValidationService
	logger        *logrus.Logger
	metrics       *metrics.Recorder
	checks        map[string]HealthCheck
	router        *gin.Engine
	server        *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics records request metrics and serves them on /metrics.
func WithMetrics(recorder *metrics.Recorder) Option {
	return func(s *Server) { s.metrics = recorder }
}

// WithHealthCheck adds a dependency probe to /health.
func WithHealthCheck(name string, check HealthCheck) Option {
	return func(s *Server) { s.checks[name] = check }
}

// NewServer creates a new HTTP server instance
func NewServer(configManager domain.ConfigManager, svc *service.ValidationService, logger *logrus.Logger, opts ...Option) *Server {
	cfg := configManager.GetConfig()

	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		configManager: configManager,
		service:       svc,
		logger:        logger,
		checks:        make(map[string]HealthCheck),
	}
	for _, opt := range opts {
		opt(s)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.RequestLogger(logger))
	if s.metrics != nil {
		router.Use(middleware.Metrics(s.metrics))
	}
	if cfg.RateLimit.Enabled {
		router.Use(middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst).Middleware())
	}
	router.Use(middleware.RequestTimeout(cfg.Server.WriteTimeout))

	s.router = router
	s.setupRoutes()
	return s
}

// Handler returns the configured router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	cfg := s.configManager.GetServerConfig()
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if cfg.TLSEnabled {
			err = s.server.ListenAndServeTLS(cfg.CertFile, cfg.KeyFile)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	s.logger.WithField("addr", addr).Info("HTTP server listening")

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s.logger.Info("Shutting down HTTP server")
	return s.server.Shutdown(shutdownCtx)
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	if s.metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/validate", s.handleValidate)
		v1.POST("/timeline", s.handleTimeline)
		v1.POST("/subjects/:id/validate", s.handleValidateSubject)
		v1.GET("/subjects/:id/reports", s.handleListReports)
		v1.GET("/reports/:id", s.handleGetReport)
	}
}
