package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/baxromumarov/jobradar/internal/core"
	"github.com/baxromumarov/jobradar/internal/extract"
	"github.com/baxromumarov/jobradar/internal/model"
	"github.com/baxromumarov/jobradar/internal/observability"
	"github.com/baxromumarov/jobradar/internal/tasks"
)

type SmartSearcher interface {
	SmartSearch(ctx context.Context, req core.SmartSearchRequest) (*core.SmartSearchResult, error)
}

type AlertStore interface {
	ListAlerts(ctx context.Context) ([]model.AlertDefinition, error)
	GetAlert(ctx context.Context, id string) (*model.AlertDefinition, error)
	CreateAlert(ctx context.Context, a model.AlertDefinition) (*model.AlertDefinition, error)
	UpdateAlert(ctx context.Context, a model.AlertDefinition) (*model.AlertDefinition, error)
	DeleteAlert(ctx context.Context, id string) error
	RecentMatches(ctx context.Context, alertID string, limit int) ([]model.AlertMatch, error)
	CountMatches(ctx context.Context, alertID string) (int, error)
}

type AlertRunner interface {
	RunDue(ctx context.Context) (core.RunSummary, error)
}

type Enricher interface {
	Enrich(ctx context.Context, jobID string) (*core.EnrichResult, error)
}

type SyncStarter interface {
	Start(req core.SyncRequest) (string, error)
}

type Extraction interface {
	LastAttempt() *extract.Attempt
	Quota(ctx context.Context) (model.QuotaState, error)
}

type SourceLister interface {
	Names() []string
}

type ResumeStore interface {
	LoadResume(ctx context.Context) (*model.Resume, error)
	SaveResume(ctx context.Context, r model.Resume) error
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type LogReader interface {
	Recent(limit int, level string) ([]observability.LogEntry, int)
}

// Deps are the services behind the HTTP surface. Nil members disable
// nothing at routing time; their handlers answer 503.
type Deps struct {
	Search      core.Searcher
	SmartSearch SmartSearcher
	Alerts      AlertStore
	Runner      AlertRunner
	Enricher    Enricher
	Sync        SyncStarter
	Tasks       tasks.Registry
	Extraction  Extraction
	Sources     SourceLister
	Resumes     ResumeStore
	DB          Pinger
	Logs        LogReader

	CronSecret  string
	CORSOrigins []string
}

type Server struct {
	router *chi.Mux
	deps   Deps
	now    func() time.Time
	logger *slog.Logger
}

func NewServer(deps Deps) *Server {
	s := &Server{
		router: chi.NewRouter(),
		deps:   deps,
		now:    time.Now,
		logger: slog.With("component", "api"),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	origins := s.deps.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(observability.HTTPMetrics)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token", cronSecretHeader},
	}))

	s.router.Get("/health", s.handleHealth)
	s.router.Get("/stats", s.handleStats)
	s.router.Handle("/metrics", observability.Handler())

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/jobs/search", s.handleSearch)
		r.Get("/jobs/smart-search", s.handleSmartSearch)
		r.Post("/jobs/{id}/enrich", s.handleEnrich)

		r.Get("/alerts", s.handleListAlerts)
		r.Post("/alerts", s.handleCreateAlert)
		r.Post("/alerts/run", s.handleRunAlerts)
		r.Get("/alerts/{id}", s.handleGetAlert)
		r.Put("/alerts/{id}", s.handleUpdateAlert)
		r.Delete("/alerts/{id}", s.handleDeleteAlert)

		r.Get("/sources", s.handleListSources)
		r.Get("/extraction/last", s.handleLastExtraction)
		r.Get("/quota", s.handleQuota)
		r.Get("/logs", s.handleLogs)

		r.Get("/resume", s.handleGetResume)
		r.Put("/resume", s.handlePutResume)

		r.Post("/sync", s.handleStartSync)
		r.Get("/sync", s.handleListSyncs)
		r.Get("/sync/{id}", s.handleGetSync)
		r.Post("/sync/{id}/stop", s.handleStopSync)
	})
}

func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.DB != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.DB.Ping(ctx); err != nil {
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "database": err.Error()})
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, observability.Snapshot())
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		slog.Error("encode response", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(response)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func unavailable(w http.ResponseWriter, what string) {
	respondError(w, http.StatusServiceUnavailable, what+" is not configured")
}
