package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/me/controlnode/internal/config"
	"github.com/me/controlnode/internal/scheduler"
	"github.com/me/controlnode/internal/store"
	"github.com/me/controlnode/internal/telemetry"
)

// Server is the control node: the JSON-RPC endpoint workers and operators
// talk to, plus a small read-only HTTP API.
type Server struct {
	router    chi.Router
	logger    *slog.Logger
	config    config.ServerConfig
	startTime time.Time
	store     store.Store
	scheduler *scheduler.Scheduler
	metrics   *telemetry.Metrics // optional; nil disables /metrics
	methods   map[string]rpcMethod
}

// Option configures optional Server dependencies.
type Option func(*Server)

// WithMetrics exposes m on /metrics and records every RPC call in it.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// New creates a new Server with all routes registered.
func New(cfg config.ServerConfig, st store.Store, sched *scheduler.Scheduler, logger *slog.Logger, opts ...Option) *Server {
	if cfg.RPCPath == "" {
		cfg.RPCPath = config.DefaultServerConfig().RPCPath
	}
	s := &Server{
		router:    chi.NewRouter(),
		logger:    logger.With("component", "server"),
		config:    cfg,
		startTime: time.Now(),
		store:     st,
		scheduler: sched,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.methods = s.rpcMethods()

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

	// Global middleware
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))

	// JSON-RPC endpoint used by workers, the lease monitor and ktsctl.
	r.Post(s.config.RPCPath, s.handleRPC)

	// Status page.
	r.Get("/", s.handleStatus)

	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}

	// API routes (JSON)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", s.handleDiscovery)
		r.Get("/health", s.handleHealth)
		r.Get("/leases", s.handleListLeases)

		r.Route("/jobs", func(r chi.Router) {
			r.Get("/", s.handleListJobs)
			r.Get("/{project}/{job}", s.handleGetJob)
		})
	})
}
