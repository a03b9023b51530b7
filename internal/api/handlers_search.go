package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dgallion1/manualgest/internal/ingest"
	"github.com/dgallion1/manualgest/internal/qdrant"
)

type searchRequest struct {
	Collection string `json:"collection"`
	Question   string `json:"question"`
	TopK       int    `json:"top_k"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if s.searcher == nil {
		jsonError(w, "search unavailable", http.StatusServiceUnavailable)
		return
	}
	var req searchRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		jsonError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	req.Collection = strings.TrimSpace(req.Collection)
	req.Question = strings.TrimSpace(req.Question)
	if req.Collection == "" {
		jsonError(w, "collection is required", http.StatusBadRequest)
		return
	}
	if req.Question == "" {
		jsonError(w, "question is required", http.StatusBadRequest)
		return
	}
	if req.TopK <= 0 {
		req.TopK = ingest.DefaultTopK
	}

	sources, err := s.searcher.Search(r.Context(), req.Collection, req.Question, req.TopK)
	if errors.Is(err, qdrant.ErrNotFound) {
		jsonError(w, "collection not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.log.Error("search failed", "collection", req.Collection, "error", err)
		jsonError(w, "search failed: "+err.Error(), http.StatusBadGateway)
		return
	}
	if sources == nil {
		sources = []ingest.Source{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"collection":  req.Collection,
		"question":    req.Question,
		"raw_sources": sources,
	})
}

func (s *Server) handleGetCollection(w http.ResponseWriter, r *http.Request) {
	if s.collections == nil {
		jsonError(w, "vector index unavailable", http.StatusServiceUnavailable)
		return
	}
	name := chi.URLParam(r, "name")
	exists, err := s.collections.CollectionExists(r.Context(), name)
	if err != nil {
		jsonError(w, "failed to look up collection: "+err.Error(), http.StatusBadGateway)
		return
	}
	if !exists {
		jsonError(w, "collection not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"name": name, "exists": true})
}

// handleDeleteCollection drops a collection and all its points.
func (s *Server) handleDeleteCollection(w http.ResponseWriter, r *http.Request) {
	if s.collections == nil {
		jsonError(w, "vector index unavailable", http.StatusServiceUnavailable)
		return
	}
	name := chi.URLParam(r, "name")
	if err := s.collections.DeleteCollection(r.Context(), name); err != nil {
		jsonError(w, "failed to delete collection: "+err.Error(), http.StatusBadGateway)
		return
	}
	s.log.Info("collection deleted", "collection", name)
	writeJSON(w, http.StatusOK, map[string]any{"name": name, "deleted": true})
}
