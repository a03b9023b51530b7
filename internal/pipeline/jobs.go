package pipeline

import (
	"crypto/sha256"
	"fmt"
	"sync"
	"time"

	"github.com/dgallion1/manualgest/internal/chunker"
	"github.com/dgallion1/manualgest/internal/ingest"
)

// JobStatus represents the state of an ingestion job.
type JobStatus string

const (
	StatusQueued     JobStatus = "queued"
	StatusParsing    JobStatus = "parsing"
	StatusExtracting JobStatus = "extracting"
	StatusIngesting  JobStatus = "ingesting"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
	StatusPartial    JobStatus = "partial"
	StatusDupSkipped JobStatus = "duplicate_skipped"
)

// Active reports whether a job in this status may still write to its
// output directory.
func (s JobStatus) Active() bool {
	switch s {
	case StatusQueued, StatusParsing, StatusExtracting, StatusIngesting:
		return true
	}
	return false
}

// Job tracks the state of a single manual upload.
type Job struct {
	mu sync.Mutex

	ID         string `json:"job_id"`
	DocID      string `json:"doc_id"`
	Collection string `json:"collection"`

	Status   JobStatus `json:"status"`
	Phase    string    `json:"phase"`
	Filename string    `json:"filename"`
	Title    string    `json:"title"`

	// Captions turns image captioning on for this job.
	Captions bool `json:"captions"`
	// Force skips the duplicate check.
	Force bool `json:"force"`

	Progress Progress `json:"progress"`

	ContentHash string    `json:"content_hash,omitempty"`
	DuplicateOf string    `json:"duplicate_of,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// Internal: not serialized.
	fileData []byte
	records  []map[string]any
	errors   []string
}

// Progress tracks processing progress.
type Progress struct {
	Pages    int           `json:"pages"`
	Chunks   int           `json:"chunks"`
	Embedded int           `json:"embedded"`
	Skipped  int           `json:"skipped"`
	Upserted int           `json:"upserted"`
	Extract  chunker.Stats `json:"extract"`
	Errors   []string      `json:"errors"`
}

// NewJob returns a queued job for an uploaded file.
func NewJob(id, docID, collection, filename string, data []byte) *Job {
	now := time.Now()
	return &Job{
		ID:          id,
		DocID:       docID,
		Collection:  collection,
		Filename:    filename,
		Status:      StatusQueued,
		Phase:       "queued",
		ContentHash: ContentHashHex(data),
		CreatedAt:   now,
		UpdatedAt:   now,
		fileData:    data,
	}
}

// JobStore is a thread-safe in-memory job registry with TTL eviction.
type JobStore struct {
	mu   sync.Mutex
	jobs map[string]*Job
	ttl  time.Duration
}

func NewJobStore(ttl time.Duration) *JobStore {
	return &JobStore{
		jobs: make(map[string]*Job),
		ttl:  ttl,
	}
}

func (s *JobStore) Put(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
}

// PutExclusive stores job unless another active job already owns the same
// DocID, in which case that job is returned and nothing is stored.
func (s *JobStore) PutExclusive(job *Job) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, other := range s.jobs {
		if other == job {
			continue
		}
		other.mu.Lock()
		busy := other.DocID == job.DocID && other.Status.Active()
		other.mu.Unlock()
		if busy {
			return other
		}
	}
	s.jobs[job.ID] = job
	return nil
}

func (s *JobStore) Get(id string) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id]
}

// FindByHash returns a live job that already holds the same content for
// the same collection. Failed and duplicate jobs never match.
func (s *JobStore) FindByHash(hash, collection string) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, job := range s.jobs {
		job.mu.Lock()
		match := job.ContentHash == hash && job.Collection == collection &&
			job.Status != StatusFailed && job.Status != StatusDupSkipped
		job.mu.Unlock()
		if match {
			return job
		}
	}
	return nil
}

// Cleanup removes expired jobs.
func (s *JobStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, job := range s.jobs {
		job.mu.Lock()
		expired := now.Sub(job.UpdatedAt) > s.ttl
		job.mu.Unlock()
		if expired {
			delete(s.jobs, id)
		}
	}
}

// Len returns the number of tracked jobs.
func (s *JobStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// SetStatus updates job status atomically.
func (j *Job) SetStatus(status JobStatus, phase string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Status = status
	j.Phase = phase
	j.UpdatedAt = time.Now()
}

// AddError records an error.
func (j *Job) AddError(err string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.errors = append(j.errors, err)
	j.Progress.Errors = j.errors
	j.UpdatedAt = time.Now()
}

// SetExtraction records the outcome of the extraction phase.
func (j *Job) SetExtraction(res *chunker.Result, records []map[string]any) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if res.Title != nil && j.Title == "" {
		j.Title = *res.Title
	}
	j.Progress.Pages = res.Stats.Pages
	j.Progress.Chunks = len(records)
	j.Progress.Extract = res.Stats
	j.records = records
	j.UpdatedAt = time.Now()
}

// SetIngestReport records the outcome of the ingestion phase.
func (j *Job) SetIngestReport(r ingest.Report) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.Embedded = r.Embedded
	j.Progress.Skipped = r.Skipped
	j.Progress.Upserted = r.Upserted
	j.UpdatedAt = time.Now()
}

// Records returns the chunk records once extraction has finished, or nil.
func (j *Job) Records() []map[string]any {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.records
}

// SetFileData sets the raw file bytes for processing.
func (j *Job) SetFileData(data []byte) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.fileData = data
}

// FileData returns the raw file bytes.
func (j *Job) FileData() []byte {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.fileData
}

// releaseFileData drops the upload once it has been written to disk.
func (j *Job) releaseFileData() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.fileData = nil
}

// JobSnapshot is a read-only, JSON-safe copy of job state.
type JobSnapshot struct {
	ID          string    `json:"job_id"`
	DocID       string    `json:"doc_id"`
	Collection  string    `json:"collection"`
	Status      JobStatus `json:"status"`
	Phase       string    `json:"phase"`
	Filename    string    `json:"filename"`
	Title       string    `json:"title"`
	DuplicateOf string    `json:"duplicate_of,omitempty"`
	Progress    Progress  `json:"progress"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Snapshot returns a JSON-safe copy of the job state.
func (j *Job) Snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	progress := j.Progress
	progress.Errors = append([]string{}, j.Progress.Errors...)
	return JobSnapshot{
		ID:          j.ID,
		DocID:       j.DocID,
		Collection:  j.Collection,
		Status:      j.Status,
		Phase:       j.Phase,
		Filename:    j.Filename,
		Title:       j.Title,
		DuplicateOf: j.DuplicateOf,
		Progress:    progress,
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
	}
}

// ContentHashHex computes SHA-256 of content and returns hex string.
func ContentHashHex(data []byte) string {
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:])
}
