// Package server exposes a scheduler's live set over a small JSON API for
// inspection and control.
package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/me/gocoro/internal/jsexpr"
	"github.com/me/gocoro/pkg/coro"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

// Server is the gocoro control API.
type Server struct {
	router    chi.Router
	logger    *slog.Logger
	startTime time.Time
	sched     coro.Controller
	env       *jsexpr.Env // optional; enables /vars
	runID     string      // optional; plan run being served
}

// Option configures optional Server dependencies.
type Option func(*Server)

// WithEnv exposes env's globals under /api/v1/vars.
func WithEnv(env *jsexpr.Env) Option {
	return func(s *Server) {
		s.env = env
	}
}

// WithRunID reports the plan run being served in /health.
func WithRunID(id string) Option {
	return func(s *Server) {
		s.runID = id
	}
}

// New creates a Server over sched with all routes registered.
func New(sched coro.Controller, logger *slog.Logger, opts ...Option) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		logger:    logger.With("component", "server"),
		startTime: time.Now(),
		sched:     sched,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
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

	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", s.handleDiscovery)
		r.Get("/health", s.handleHealth)
		r.Get("/stats", s.handleStats)

		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", s.handleListTasks)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetTask)
				r.Put("/kill", s.handleKillTask)
				r.Put("/pause", s.handlePauseTask)
				r.Put("/resume", s.handleResumeTask)
			})
		})

		r.Delete("/tags/{tag}", s.handleKillTag)

		r.Route("/ticks", func(r chi.Router) {
			r.Put("/pause", s.handlePauseTicks)
			r.Put("/resume", s.handleResumeTicks)
		})

		r.Route("/vars", func(r chi.Router) {
			r.Get("/", s.handleListVars)
			r.Put("/{name}", s.handleSetVar)
		})
	})
}
