package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/me/govm/internal/config"
	"github.com/me/govm/internal/executor"
	"github.com/me/govm/internal/scheduler"
	"github.com/me/govm/internal/store"
)

// Server is the govm REST API server.
type Server struct {
	router    chi.Router
	logger    *slog.Logger
	config    config.ServerConfig
	startTime time.Time
	scheduler scheduler.Service
	store     store.Store        // optional; journal endpoints answer 503 without it
	registry  *executor.Registry // optional; reported by /health
}

// Option configures optional Server dependencies.
type Option func(*Server)

// WithStore sets the dispatch journal backing /packages and /idle-events.
func WithStore(st store.Store) Option {
	return func(s *Server) {
		s.store = st
	}
}

// WithExecutorRegistry sets the executor registry reported by /health.
func WithExecutorRegistry(reg *executor.Registry) Option {
	return func(s *Server) {
		s.registry = reg
	}
}

// New creates a new Server with all routes registered.
func New(cfg config.ServerConfig, sched scheduler.Service, logger *slog.Logger, opts ...Option) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		logger:    logger.With("component", "server"),
		config:    cfg,
		startTime: time.Now(),
		scheduler: sched,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

// StartScheduler begins the scheduling loop in a background goroutine.
func (s *Server) StartScheduler(ctx context.Context) {
	go func() {
		if err := s.scheduler.Start(ctx); err != nil && err != context.Canceled {
			s.logger.Error("scheduler stopped", "error", err)
		}
	}()
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Handler returns the http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router

	// Global middleware
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))

	r.Route("/api/v1", func(r chi.Router) {
		// Discovery
		r.Get("/", s.handleDiscovery)

		// Health and scheduler state
		r.Get("/health", s.handleHealth)
		r.Get("/stats", s.handleStats)

		// Instruction intake
		r.Post("/instructions", s.handleSubmitInstructions)

		// State directory
		r.Route("/objects", func(r chi.Router) {
			r.Get("/", s.handleListObjects)
			r.Get("/{id}", s.handleGetObject)
		})

		// Dispatch journal
		r.Route("/packages", func(r chi.Router) {
			r.Get("/", s.handleListPackages)
			r.Get("/{id}", s.handleGetPackage)
		})
		r.Get("/idle-events", s.handleListIdleEvents)
	})
}
