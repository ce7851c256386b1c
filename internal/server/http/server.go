// Package httpserver serves the read-only stats dashboard API over the papers table.
package httpserver

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/helixir/paper-etl/internal/database"
	"github.com/helixir/paper-etl/internal/repository"
)

// HealthChecker reports database health. *database.DB satisfies it.
type HealthChecker interface {
	Health(ctx context.Context) database.HealthStatus
}

// Server is the dashboard HTTP server.
type Server struct {
	router     chi.Router
	httpServer *http.Server
	stats      repository.StatsRepository
	papers     repository.PaperRepository
	health     HealthChecker
	metrics    http.Handler
	cfg        Config
	logger     zerolog.Logger
}

// Config holds HTTP server configuration.
type Config struct {
	Address         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	// MetricsPath is where metrics are served when a metrics handler is given (default: /metrics).
	MetricsPath string
}

// NewServer creates a new HTTP server. metrics may be nil to disable the
// metrics endpoint.
func NewServer(
	cfg Config,
	stats repository.StatsRepository,
	papers repository.PaperRepository,
	health HealthChecker,
	metrics http.Handler,
	logger zerolog.Logger,
) *Server {
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	s := &Server{
		stats:   stats,
		papers:  papers,
		health:  health,
		metrics: metrics,
		cfg:     cfg,
		logger:  logger.With().Str("component", "http-server").Logger(),
	}

	s.router = s.buildRouter()

	s.httpServer = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

// buildRouter creates the chi router with all middleware and routes.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(correlationIDMiddleware)
	r.Use(requestLogger(s.logger))

	if s.metrics != nil {
		r.Method(http.MethodGet, s.cfg.MetricsPath, s.metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(jsonContentTypeMiddleware)

		r.Get("/healthz", s.healthHandler)
		r.Get("/readyz", s.readinessHandler)

		r.Route("/api/v1", func(r chi.Router) {
			r.Route("/stats", func(r chi.Router) {
				r.Get("/summary", s.getSummary)
				r.Get("/years", s.getPapersByYear)
				r.Get("/fields", s.getPapersByField)
				r.Get("/subfields", s.getPapersBySubfield)
				r.Get("/open-access", s.getOpenAccess)
				r.Get("/citations", s.getCitations)
				r.Get("/collaboration", s.getCollaboration)
				r.Get("/fwci", s.getFWCI)
			})
			r.Get("/papers/top", s.getTopCited)
			r.Get("/papers/{openalexID}", s.getPaper)
		})
	})

	return r
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info().Str("address", s.httpServer.Addr).Msg("HTTP server starting")
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen on HTTP address: %w", err)
	}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// healthHandler returns basic liveness status. The process is live as long as
// it can answer.
func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// readinessHandler reports ready only while the database answers pings and
// the papers table exists.
func (s *Server) readinessHandler(w http.ResponseWriter, r *http.Request) {
	health := s.health.Health(r.Context())
	if health.Status != "healthy" {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":   "not_ready",
			"database": health.Status,
			"error":    health.Error,
		})
		return
	}

	exists, err := s.papers.TableExists(r.Context())
	if err != nil || !exists {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":   "not_ready",
			"database": "healthy",
			"error":    "papers table missing",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "ready",
		"database": "healthy",
	})
}
