package pipeline

import (
	"testing"
	"time"

	"github.com/dgallion1/manualgest/internal/chunker"
	"github.com/dgallion1/manualgest/internal/ingest"
)

func TestContentHashHex(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"hello world", []byte("hello world"), "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"},
		{"empty", []byte{}, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := ContentHashHex(tc.data); got != tc.want {
				t.Errorf("expected hash %q, got %q", tc.want, got)
			}
		})
	}
	if ContentHashHex([]byte("aaa")) == ContentHashHex([]byte("bbb")) {
		t.Error("expected different hashes for different inputs")
	}
}

func TestNewJob(t *testing.T) {
	job := NewJob("j1", "d1", "manual", "manual.pdf", []byte("hello world"))
	if job.Status != StatusQueued || job.Phase != "queued" {
		t.Errorf("expected queued job, got %q/%q", job.Status, job.Phase)
	}
	if job.ContentHash != ContentHashHex([]byte("hello world")) {
		t.Errorf("unexpected content hash %q", job.ContentHash)
	}
	if string(job.FileData()) != "hello world" {
		t.Errorf("expected file data to be kept, got %q", job.FileData())
	}
	job.releaseFileData()
	if job.FileData() != nil {
		t.Error("expected file data released")
	}
}

func TestJob_StateTransitions(t *testing.T) {
	job := &Job{
		ID:        "test-1",
		Status:    StatusQueued,
		Phase:     "queued",
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	transitions := []struct {
		status JobStatus
		phase  string
	}{
		{StatusParsing, "parsing"},
		{StatusExtracting, "extracting"},
		{StatusIngesting, "ingesting"},
		{StatusCompleted, "done"},
	}

	for _, tr := range transitions {
		before := job.UpdatedAt
		// Small sleep to ensure time difference is detectable.
		time.Sleep(time.Millisecond)
		job.SetStatus(tr.status, tr.phase)

		if job.Status != tr.status {
			t.Errorf("expected status %q, got %q", tr.status, job.Status)
		}
		if job.Phase != tr.phase {
			t.Errorf("expected phase %q, got %q", tr.phase, job.Phase)
		}
		if !job.UpdatedAt.After(before) {
			t.Errorf("expected UpdatedAt to advance after SetStatus(%q)", tr.status)
		}
	}
}

func TestJob_AddError(t *testing.T) {
	job := &Job{ID: "err-test", UpdatedAt: time.Now()}
	job.AddError("page 3: malformed content")
	job.AddError("ingest: qdrant unavailable")

	snap := job.Snapshot()
	if len(snap.Progress.Errors) != 2 {
		t.Fatalf("expected 2 errors, got %d", len(snap.Progress.Errors))
	}
	if snap.Progress.Errors[0] != "page 3: malformed content" {
		t.Errorf("unexpected first error %q", snap.Progress.Errors[0])
	}

	// Snapshots must not alias the job's error slice.
	snap.Progress.Errors[0] = "changed"
	if job.Snapshot().Progress.Errors[0] != "page 3: malformed content" {
		t.Error("snapshot errors alias job state")
	}
}

func TestJob_ExtractionAndIngestProgress(t *testing.T) {
	title := "Custody Manual"
	job := &Job{ID: "progress", UpdatedAt: time.Now()}
	res := &chunker.Result{Title: &title, Stats: chunker.Stats{Pages: 12, Images: 2}}
	records := []map[string]any{{"type": "section"}, {"type": "image"}}

	job.SetExtraction(res, records)
	job.SetIngestReport(ingest.Report{Total: 2, Embedded: 1, Skipped: 1, Upserted: 1})

	snap := job.Snapshot()
	if snap.Title != "Custody Manual" {
		t.Errorf("expected title from first page, got %q", snap.Title)
	}
	if snap.Progress.Pages != 12 || snap.Progress.Chunks != 2 || snap.Progress.Extract.Images != 2 {
		t.Errorf("unexpected extraction progress %+v", snap.Progress)
	}
	if snap.Progress.Embedded != 1 || snap.Progress.Skipped != 1 || snap.Progress.Upserted != 1 {
		t.Errorf("unexpected ingest progress %+v", snap.Progress)
	}
	if len(job.Records()) != 2 {
		t.Errorf("expected 2 records, got %d", len(job.Records()))
	}
}

func TestJob_SnapshotErrorsNotNil(t *testing.T) {
	job := &Job{ID: "snap-test", UpdatedAt: time.Now()}
	snap := job.Snapshot()
	if snap.Progress.Errors == nil {
		t.Error("expected non-nil errors slice in snapshot")
	}
}

func TestJobStore_PutGet(t *testing.T) {
	store := NewJobStore(time.Hour)
	store.Put(&Job{ID: "store-1", UpdatedAt: time.Now()})

	got := store.Get("store-1")
	if got == nil {
		t.Fatal("expected to get job back")
	}
	if got.ID != "store-1" {
		t.Errorf("expected ID %q, got %q", "store-1", got.ID)
	}
	if store.Get("nonexistent") != nil {
		t.Error("expected nil for missing job")
	}
}

func TestJobStore_FindByHash(t *testing.T) {
	store := NewJobStore(time.Hour)
	store.Put(&Job{ID: "done", ContentHash: "h1", Collection: "a", Status: StatusCompleted})
	store.Put(&Job{ID: "failed", ContentHash: "h2", Collection: "a", Status: StatusFailed})
	store.Put(&Job{ID: "dup", ContentHash: "h3", Collection: "a", Status: StatusDupSkipped})

	if got := store.FindByHash("h1", "a"); got == nil || got.ID != "done" {
		t.Errorf("expected completed job to match, got %v", got)
	}
	if store.FindByHash("h1", "b") != nil {
		t.Error("expected no match in another collection")
	}
	if store.FindByHash("h2", "a") != nil {
		t.Error("expected failed job not to match")
	}
	if store.FindByHash("h3", "a") != nil {
		t.Error("expected duplicate job not to match")
	}
}

func TestJobStore_PutExclusive(t *testing.T) {
	store := NewJobStore(time.Hour)
	store.Put(&Job{ID: "old", DocID: "manual", Status: StatusCompleted})
	running := &Job{ID: "running", DocID: "manual", Status: StatusQueued}
	if owner := store.PutExclusive(running); owner != nil {
		t.Fatalf("expected finished job not to hold the doc_id, got owner %s", owner.ID)
	}

	second := &Job{ID: "second", DocID: "manual", Status: StatusQueued}
	if owner := store.PutExclusive(second); owner == nil || owner.ID != "running" {
		t.Fatalf("expected running job to own the doc_id, got %v", owner)
	}
	if store.Get("second") != nil {
		t.Error("expected rejected job not to be stored")
	}

	running.SetStatus(StatusPartial, "done")
	if owner := store.PutExclusive(second); owner != nil {
		t.Errorf("expected doc_id to be free once the job finished, got owner %s", owner.ID)
	}
}

func TestJobStore_TTLCleanup(t *testing.T) {
	store := NewJobStore(50 * time.Millisecond)
	store.Put(&Job{ID: "old", UpdatedAt: time.Now().Add(-time.Second)})
	store.Put(&Job{ID: "new", UpdatedAt: time.Now()})

	store.Cleanup()

	if store.Get("old") != nil {
		t.Error("expected expired job to be cleaned up")
	}
	if store.Get("new") == nil {
		t.Error("expected fresh job to survive cleanup")
	}
	if store.Len() != 1 {
		t.Errorf("expected 1 job left, got %d", store.Len())
	}
}
