package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/runlet/runlet/internal/engine"
	"github.com/runlet/runlet/internal/events"
	"github.com/runlet/runlet/internal/history"
	"github.com/runlet/runlet/internal/script"
)

// Config holds API server configuration.
type Config struct {
	Listen string
	// APIKey is an optional bearer token; empty disables auth.
	APIKey string
}

// Server is the HTTP boundary over the execution engine. It maps routes to
// engine operations and engine errors to status codes; it contains no
// execution logic of its own.
type Server struct {
	config    Config
	store     *script.Store
	registry  *script.Registry
	runner    *engine.Runner
	cache     *engine.Cache
	gate      *engine.Gate
	history   *history.Store
	events    *events.Hub
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time
}

// New creates a new API server instance. history and events may be nil.
func New(config Config, store *script.Store, registry *script.Registry, runner *engine.Runner, cache *engine.Cache, gate *engine.Gate, hist *history.Store, hub *events.Hub, logger *slog.Logger) *Server {
	return &Server{
		config:    config,
		store:     store,
		registry:  registry,
		runner:    runner,
		cache:     cache,
		gate:      gate,
		history:   hist,
		events:    hub,
		logger:    logger,
		startedAt: time.Now(),
	}
}

// Start starts the HTTP server (blocking until ctx is cancelled).
func (s *Server) Start(ctx context.Context) error {
	router := s.setupRoutes()

	s.server = &http.Server{
		Addr:        s.config.Listen,
		Handler:     router,
		ReadTimeout: 10 * time.Second,
		// Write timeout must cover a full fan-out at the run deadline.
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("API server starting", "listen", s.config.Listen)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("API server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// setupRoutes configures the HTTP router.
func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	// Unauthenticated ops endpoints.
	r.Get("/healthz", s.handleHealthz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// Protected API.
	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Get("/scripts", s.handleListScripts)
		r.Post("/scripts", s.handleCreateScript)
		r.Put("/scripts/{name}", s.handleUpdateScript)
		r.Delete("/scripts/{name}", s.handleDeleteScript)
		r.Post("/run", s.handleRunMany)
		r.Post("/run/{name}", s.handleRunOne)
		r.Get("/history", s.handleHistory)
		r.Get("/events", s.handleEvents)
	})

	return r
}

// loggingMiddleware logs HTTP requests.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
