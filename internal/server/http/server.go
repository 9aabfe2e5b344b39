// Package httpserver provides the HTTP REST API server for the bulk-operations service.
package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/sigagent/docrouter-go/internal/bulk"
	"github.com/sigagent/docrouter-go/internal/database"
	"github.com/sigagent/docrouter-go/internal/domain"
)

// RunService is the slice of the bulk service the HTTP layer depends on.
// Tests substitute fakes.
type RunService interface {
	StartRun(ctx context.Context, params bulk.StartParams) (*domain.BulkRun, error)
	GetRun(ctx context.Context, runID string) (*domain.BulkRun, []domain.ExecutionGroup, error)
	ListRuns(ctx context.Context, orgID string, limit, offset int) ([]domain.BulkRun, error)
	CancelRun(ctx context.Context, runID string) error
}

// Server is the HTTP REST API server.
type Server struct {
	router     chi.Router
	httpServer *http.Server
	service    RunService
	db         *database.DB
	gatherer   prometheus.Gatherer
	logger     zerolog.Logger
}

// Config holds HTTP server configuration.
type Config struct {
	Address         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	// MetricsPath is where Prometheus metrics are served. Empty disables the
	// endpoint.
	MetricsPath string
}

// NewServer creates a new HTTP server with all dependencies. gatherer may be
// nil when metrics are disabled.
func NewServer(
	cfg Config,
	service RunService,
	db *database.DB,
	gatherer prometheus.Gatherer,
	logger zerolog.Logger,
) *Server {
	s := &Server{
		service:  service,
		db:       db,
		gatherer: gatherer,
		logger:   logger.With().Str("component", "http-server").Logger(),
	}

	s.router = s.buildRouter(cfg.MetricsPath)

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
func (s *Server) buildRouter(metricsPath string) chi.Router {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(correlationIDMiddleware)

	// Health endpoints
	r.Get("/healthz", s.healthHandler)
	r.Get("/readyz", s.readinessHandler)

	if s.gatherer != nil && metricsPath != "" {
		r.Method(http.MethodGet, metricsPath, promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	// API routes with org context
	r.Route("/api/v1/orgs/{orgID}", func(r chi.Router) {
		r.Use(jsonContentTypeMiddleware)
		r.Use(orgContextMiddleware)

		r.Post("/bulk-runs", s.startBulkRun)
		r.Get("/bulk-runs", s.listBulkRuns)
		r.Get("/bulk-runs/{runID}", s.getBulkRun)
		r.Delete("/bulk-runs/{runID}", s.cancelBulkRun)
	})

	return r
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

// healthHandler returns basic liveness status.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	health := s.db.Health(r.Context())
	if health.Status == "healthy" {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "database": health.Status})
		return
	}
	writeJSON(w, http.StatusServiceUnavailable, map[string]string{
		"status":   "unhealthy",
		"database": health.Status,
		"error":    health.Error,
	})
}

// readinessHandler returns readiness status.
func (s *Server) readinessHandler(w http.ResponseWriter, r *http.Request) {
	health := s.db.Health(r.Context())
	if health.Status != "healthy" {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":   "not_ready",
			"database": health.Status,
			"error":    health.Error,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "ready",
		"database": "healthy",
	})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Best-effort log; headers already sent.
		_ = err
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{
		"error": message,
	})
}
