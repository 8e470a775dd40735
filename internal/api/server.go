// Package api serves the paper index over HTTP.
package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dgallion1/paperidx/internal/config"
	"github.com/dgallion1/paperidx/internal/latency"
	"github.com/dgallion1/paperidx/internal/loader"
	"github.com/dgallion1/paperidx/internal/pipeline"
	"github.com/dgallion1/paperidx/internal/store"
)

// MaxSyncLoad is the most documents a synchronous load request may name.
const MaxSyncLoad = 5

// Loader indexes documents on demand.
type Loader interface {
	LoadBatch(ctx context.Context, ids []string) map[string]loader.Result
}

// Deps are the components the server exposes.
type Deps struct {
	Store        store.Store
	Loader       Loader
	Orchestrator *pipeline.Orchestrator
	Embedder     string // provider name reported with embed stats
	EmbedStats   *latency.Tracker
	LLMModel     string
	LLMStats     *latency.Tracker // nil when contextual prefixes are off
}

// Server is the HTTP API server for paperidx.
type Server struct {
	router chi.Router
	deps   Deps
	log    *slog.Logger
	cfg    config.Config
}

// NewServer creates and configures the HTTP server.
func NewServer(deps Deps, log *slog.Logger, cfg config.Config) *Server {
	s := &Server{
		deps: deps,
		log:  log,
		cfg:  cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))

	// Public endpoints.
	r.Get("/health", s.handleHealth)

	// Authenticated endpoints.
	r.Group(func(r chi.Router) {
		if s.cfg.APIKey != "" {
			r.Use(AuthMiddleware(s.cfg.APIKey, s.log))
		}

		r.Post("/api/documents", s.handleCreateDocument)
		r.Post("/api/documents/import", s.handleImport)
		r.Get("/api/documents/{docID}", s.handleGetDocument)
		r.Delete("/api/documents/{docID}/chunks", s.handleDeleteChunks)
		r.Get("/api/documents/{docID}/context", s.handleContextWindow)

		r.Get("/api/conferences", s.handleConferenceExists)

		r.Post("/api/load", s.handleLoad)
		r.Post("/api/load/jobs", s.handleSubmitJob)
		r.Get("/api/load/jobs/{jobID}", s.handleJobStatus)

		r.Get("/api/search/abstracts", s.handleSearchAbstracts)
		r.Get("/api/search/sections", s.handleSearchSections)

		r.Get("/api/stats/embed", s.handleEmbedStats)
		r.Get("/api/stats/llm", s.handleLLMStats)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
