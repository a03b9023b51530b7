package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dgallion1/manualgest/internal/parser"
	"github.com/dgallion1/manualgest/internal/pipeline"
	"github.com/dgallion1/manualgest/internal/qdrant"
)

// uploadOptions are the form values shared by single and batch uploads.
type uploadOptions struct {
	collection string
	docID      string
	force      bool
	captions   bool
}

func (s *Server) uploadOptions(r *http.Request) uploadOptions {
	opts := uploadOptions{
		collection: strings.TrimSpace(r.FormValue("collection")),
		docID:      strings.TrimSpace(r.FormValue("doc_id")),
		force:      r.FormValue("force") == "true",
		captions:   s.cfg.Extract.Captions,
	}
	if v := r.FormValue("captions"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			opts.captions = b
		}
	}
	return opts
}

// submitUpload reads one uploaded file and queues it. The returned map is
// the per-file response entry; code is the HTTP status that entry implies.
func (s *Server) submitUpload(fh *multipart.FileHeader, opts uploadOptions) (map[string]any, int) {
	filename := sanitizeFilename(fh.Filename)
	entry := map[string]any{"filename": filename}
	if !parser.IsSupportedExtension(filename) {
		entry["error"] = fmt.Sprintf("unsupported file type: %s", filepath.Ext(filename))
		return entry, http.StatusBadRequest
	}

	f, err := fh.Open()
	if err != nil {
		entry["error"] = "failed to open file"
		return entry, http.StatusInternalServerError
	}
	data, err := io.ReadAll(io.LimitReader(f, s.cfg.MaxUploadBytes+1))
	f.Close()
	if err != nil {
		entry["error"] = "failed to read file"
		return entry, http.StatusInternalServerError
	}
	if int64(len(data)) > s.cfg.MaxUploadBytes {
		entry["error"] = fmt.Sprintf("file exceeds max size (%d bytes)", s.cfg.MaxUploadBytes)
		return entry, http.StatusRequestEntityTooLarge
	}

	collection := opts.collection
	if collection == "" {
		collection = qdrant.CollectionName(filename)
	}
	docID := opts.docID
	if docID == "" {
		docID = uuid.NewString()
	}

	job := pipeline.NewJob(uuid.NewString(), pipeline.SanitizeDocID(docID), collection, filename, data)
	job.Force = opts.force
	job.Captions = opts.captions

	if err := s.orchestrator.Submit(job); err != nil {
		entry["error"] = err.Error()
		if errors.Is(err, pipeline.ErrQueueFull) {
			return entry, http.StatusServiceUnavailable
		}
		if errors.Is(err, pipeline.ErrDocIDBusy) {
			return entry, http.StatusConflict
		}
		return entry, http.StatusInternalServerError
	}

	snap := job.Snapshot()
	entry["job_id"] = snap.ID
	entry["doc_id"] = snap.DocID
	entry["collection"] = snap.Collection
	entry["status"] = snap.Status
	entry["poll_url"] = fmt.Sprintf("/api/ingest/%s/status", snap.ID)
	if snap.Status == pipeline.StatusDupSkipped {
		entry["duplicate_of"] = snap.DuplicateOf
		return entry, http.StatusOK
	}
	return entry, http.StatusAccepted
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	// Limit total request size.
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+1024*1024) // extra 1MB for form overhead

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	files := r.MultipartForm.File["file"]
	if len(files) == 0 {
		jsonError(w, "file is required", http.StatusBadRequest)
		return
	}

	entry, code := s.submitUpload(files[0], s.uploadOptions(r))
	if msg, failed := entry["error"].(string); failed {
		jsonError(w, msg, code)
		return
	}
	writeJSON(w, code, entry)
}

func (s *Server) handleBatchIngest(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes*10+10*1024*1024)

	if err := r.ParseMultipartForm(64 << 20); err != nil {
		jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		jsonError(w, "at least one file is required", http.StatusBadRequest)
		return
	}

	opts := s.uploadOptions(r)
	// A doc_id names one document, so batches always get fresh ids.
	opts.docID = ""
	results := make([]map[string]any, 0, len(files))
	for _, fh := range files {
		entry, _ := s.submitUpload(fh, opts)
		results = append(results, entry)
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"jobs": results})
}

func (s *Server) handleIngestStatus(w http.ResponseWriter, r *http.Request) {
	job := s.orchestrator.GetJob(chi.URLParam(r, "jobID"))
	if job == nil {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, job.Snapshot())
}

func (s *Server) handleIngestChunks(w http.ResponseWriter, r *http.Request) {
	job := s.orchestrator.GetJob(chi.URLParam(r, "jobID"))
	if job == nil {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}
	records := job.Records()
	if records == nil {
		snap := job.Snapshot()
		jsonError(w, fmt.Sprintf("chunks not available (status %s)", snap.Status), http.StatusConflict)
		return
	}
	snap := job.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"job_id":     snap.ID,
		"doc_id":     snap.DocID,
		"collection": snap.Collection,
		"chunks":     records,
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func sanitizeFilename(name string) string {
	// Strip path components, keep only the base name.
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.ReplaceAll(name, "..", "_")
	if name == "" || name == "." || name == "/" {
		name = "unnamed"
	}
	return name
}
