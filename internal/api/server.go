// Package api exposes the prover over HTTP: task submission, cached results,
// the failure journal and the event stream.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/wolfishy/nexus-cli/internal/environment"
	"github.com/wolfishy/nexus-cli/internal/events"
	"github.com/wolfishy/nexus-cli/internal/prover"
	"github.com/wolfishy/nexus-cli/internal/report"
	"github.com/wolfishy/nexus-cli/internal/task"
)

// TaskProver proves tasks. *prover.Prover satisfies it.
type TaskProver interface {
	ProveTask(ctx context.Context, t *task.Task, env environment.Environment, clientID string, workers int) (*prover.Result, error)
}

// ReportLister lists journaled failure reports. *report.Journal satisfies it.
type ReportLister interface {
	List(ctx context.Context, limit int) ([]report.Entry, error)
}

// Config holds API server configuration
type Config struct {
	Listen string
	// APIKey protects /v1 routes. Empty disables authentication.
	APIKey          string
	Environment     environment.Environment
	ClientID        string
	Workers         int
	ResultCacheSize int
	// Programs lists the program IDs the prover accepts, for /healthz.
	Programs []string
}

// Server represents the HTTP API server
type Server struct {
	config    Config
	prover    TaskProver
	reports   ReportLister
	events    *events.Hub
	results   *lru.Cache[string, *TaskResponse]
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time
}

// New creates a new API server instance. reports may be nil when the journal
// is disabled.
func New(config Config, p TaskProver, reports ReportLister, hub *events.Hub, logger *slog.Logger) (*Server, error) {
	if config.ResultCacheSize <= 0 {
		config.ResultCacheSize = 128
	}
	if config.Workers <= 0 {
		config.Workers = 1
	}
	results, err := lru.New[string, *TaskResponse](config.ResultCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create result cache: %w", err)
	}
	if hub == nil {
		hub = events.NewHub(0)
	}
	return &Server{
		config:    config,
		prover:    p,
		reports:   reports,
		events:    hub,
		results:   results,
		logger:    logger,
		startedAt: time.Now(),
	}, nil
}

// shutdownTimeout bounds how long Serve waits for in-flight requests once
// their proofs have been cancelled.
const shutdownTimeout = 30 * time.Second

// Start listens on the configured address and serves until ctx ends.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.config.Listen, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx ends or the server fails. On shutdown the
// contexts of in-flight requests are cancelled, so running proofs stop, and
// Serve returns only after their handlers have finished or shutdownTimeout
// has passed.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	reqCtx, abortRequests := context.WithCancel(context.WithoutCancel(ctx))
	defer abortRequests()

	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// Proving is synchronous, so responses can take a while.
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  60 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return reqCtx },
	}

	s.logger.Info("API server starting", "listen", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("API server shutting down")
		abortRequests()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)

	r.Route("/v1", func(r chi.Router) {
		if s.config.APIKey != "" {
			r.Use(s.authMiddleware)
		}
		r.Post("/tasks", s.handleSubmitTask)
		r.Get("/tasks/{taskID}", s.handleGetTask)
		r.Get("/reports", s.handleListReports)
		r.Get("/events", s.handleEventSnapshot)
		r.Get("/events/stream", s.handleEventStream)
	})

	return r
}

// loggingMiddleware logs HTTP requests
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
