// Package api exposes the analyzer over HTTP
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/QTest-hq/queryscope/internal/analyzer"
	"github.com/QTest-hq/queryscope/internal/config"
	"github.com/QTest-hq/queryscope/internal/db"
	"github.com/QTest-hq/queryscope/internal/jobs"
	"github.com/QTest-hq/queryscope/internal/parser"
)

// SourceAnalyzer analyses a single submitted file
type SourceAnalyzer interface {
	AnalyzeSource(ctx context.Context, path string, content []byte, lang parser.Language) (*analyzer.FileReport, error)
}

// RunStore reads persisted analysis runs
type RunStore interface {
	GetRun(ctx context.Context, id uuid.UUID) (*db.AnalysisRun, error)
	ListRuns(ctx context.Context, limit, offset int) ([]db.AnalysisRun, error)
}

// Submitter queues analysis runs
type Submitter interface {
	Submit(ctx context.Context, req jobs.Request) (*db.AnalysisRun, error)
}

// HealthChecker is a dependency probed by /ready
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// CheckFunc adapts a plain function to HealthChecker
type CheckFunc func(ctx context.Context) error

// HealthCheck calls f
func (f CheckFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

// Options wires the server's collaborators. Runs, Submitter and Checks are
// optional; the asynchronous endpoints answer 503 without them.
type Options struct {
	Config    *config.Config
	Analyzer  SourceAnalyzer
	Runs      RunStore
	Submitter Submitter
	Checks    map[string]HealthChecker
}

// Server represents the API server
type Server struct {
	cfg       *config.Config
	router    *chi.Mux
	analyzer  SourceAnalyzer
	runs      RunStore
	submitter Submitter
	checks    map[string]HealthChecker
}

// NewServer creates a new API server
func NewServer(opts Options) (*Server, error) {
	if opts.Analyzer == nil {
		return nil, errMissingAnalyzer
	}

	s := &Server{
		cfg:       opts.Config,
		router:    chi.NewRouter(),
		analyzer:  opts.Analyzer,
		runs:      opts.Runs,
		submitter: opts.Submitter,
		checks:    opts.Checks,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s, nil
}

// Router returns the HTTP router
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))
	s.router.Use(corsMiddleware)
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.healthCheck)
	s.router.Get("/ready", s.readyCheck)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Post("/analyze", s.analyze)

		r.Route("/analyses", func(r chi.Router) {
			r.Post("/", s.createAnalysis)
			r.Get("/", s.listAnalyses)
			r.Get("/{runID}", s.getAnalysis)
		})
	})
}

func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// readyCheck probes every configured dependency
func (s *Server) readyCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	failed := map[string]string{}
	for name, check := range s.checks {
		if err := check.HealthCheck(ctx); err != nil {
			failed[name] = err.Error()
		}
	}

	if len(failed) > 0 {
		respondJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not ready",
			"checks": failed,
		})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// corsMiddleware lets editor integrations on other origins call the API
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
