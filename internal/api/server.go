package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dgallion1/manualgest/internal/config"
	"github.com/dgallion1/manualgest/internal/ingest"
	"github.com/dgallion1/manualgest/internal/llm"
	"github.com/dgallion1/manualgest/internal/pipeline"
)

// Searcher answers retrieval queries against a collection.
type Searcher interface {
	Search(ctx context.Context, collection, question string, topK int) ([]ingest.Source, error)
}

// Collections inspects and drops vector collections.
type Collections interface {
	CollectionExists(ctx context.Context, name string) (bool, error)
	DeleteCollection(ctx context.Context, name string) error
}

// Server is the HTTP API server for manualgest.
type Server struct {
	router       chi.Router
	orchestrator *pipeline.Orchestrator
	searcher     Searcher
	collections  Collections
	stats        *llm.Stats
	log          *slog.Logger
	cfg          config.Config
}

// NewServer creates and configures the HTTP server.
func NewServer(orch *pipeline.Orchestrator, searcher Searcher, collections Collections, stats *llm.Stats, log *slog.Logger, cfg config.Config) *Server {
	s := &Server{
		orchestrator: orch,
		searcher:     searcher,
		collections:  collections,
		stats:        stats,
		log:          log,
		cfg:          cfg,
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
		r.Use(AuthMiddleware(s.cfg.APIKey, s.log))

		r.Post("/api/ingest", s.handleIngest)
		r.Post("/api/ingest/batch", s.handleBatchIngest)
		r.Get("/api/ingest/{jobID}/status", s.handleIngestStatus)
		r.Get("/api/ingest/{jobID}/chunks", s.handleIngestChunks)
		r.Post("/api/search", s.handleSearch)
		r.Get("/api/stats/llm", s.handleLLMStats)

		r.Get("/api/collections/{name}", s.handleGetCollection)
		r.Delete("/api/collections/{name}", s.handleDeleteCollection)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
