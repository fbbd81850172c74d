// Package core provides the API chassis for the FloodFactor service.
// It creates a chi router that serves standard HTTP locally and behind the
// Lambda proxy integration, and applies the cross-cutting concerns (panic
// recovery, request IDs, logging, CORS, metrics) before requests reach the
// flood handlers.
package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"floodfactor/internal/config"
)

// MetricsCollector records API request telemetry. telemetry.CloudWatchMetrics
// satisfies it.
type MetricsCollector interface {
	RecordRequest(ctx context.Context, endpoint string, status int, duration time.Duration)
}

// Server encapsulates the dependencies of the HTTP API so tests can inject
// their own.
type Server struct {
	Config    *config.Config
	Logger    *slog.Logger
	Validator *Validator
	Metrics   MetricsCollector

	// HealthProbes are evaluated by GET /health.
	HealthProbes []HealthProbe

	// V1RouteRegistrars mount domain handlers under /v1. They are filled by
	// the entry point so core never imports handler packages.
	V1RouteRegistrars []func(chi.Router)

	// Closers run in order during Shutdown (database pools and the like).
	Closers []func(ctx context.Context) error

	router *chi.Mux
}

// NewServer validates its inputs and prepares an empty router. Callers mount
// routes with MountRoutes after setting the optional fields.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	return &Server{
		Config:    cfg,
		Logger:    logger,
		Validator: NewValidator(logger),
		router:    chi.NewRouter(),
	}, nil
}

// Handler returns the router as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Shutdown runs every registered closer and joins their errors.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.Info("server shutdown initiated")

	var errs []error
	for _, closeFn := range s.Closers {
		if err := closeFn(ctx); err != nil {
			s.Logger.Error("error releasing server resource", "error", err)
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}

	s.Logger.Info("server shutdown complete")
	return nil
}
