package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/dgallion1/manualgest/internal/chunker"
	"github.com/dgallion1/manualgest/internal/ingest"
	"github.com/dgallion1/manualgest/internal/parser"
)

// Ingester stores chunk records in the vector index.
type Ingester interface {
	Ingest(ctx context.Context, collection string, records []map[string]any) (ingest.Report, error)
}

// ChunksFile is the name of the records file written beside each upload.
const ChunksFile = "chunks.json"

// Worker processes a single document job.
type Worker struct {
	captioner chunker.Captioner
	ingester  Ingester
	log       *slog.Logger
	outputDir string
	chunkCfg  func(imageDir string) chunker.Config
}

func NewWorker(captioner chunker.Captioner, ingester Ingester, log *slog.Logger, outputDir string, chunkCfg func(imageDir string) chunker.Config) *Worker {
	if chunkCfg == nil {
		chunkCfg = func(imageDir string) chunker.Config {
			cfg := chunker.DefaultConfig()
			cfg.ImageDir = imageDir
			return cfg
		}
	}
	return &Worker{
		captioner: captioner,
		ingester:  ingester,
		log:       log,
		outputDir: outputDir,
		chunkCfg:  chunkCfg,
	}
}

// JobDir returns the directory holding everything written for docID.
func JobDir(outputDir, docID string) string {
	return filepath.Join(outputDir, docID)
}

// Process runs parse, extract and ingest for a job.
func (w *Worker) Process(ctx context.Context, job *Job) {
	log := w.log.With("job_id", job.ID, "doc_id", job.DocID, "collection", job.Collection)

	// Phase 1: Parse
	job.SetStatus(StatusParsing, "parsing")
	dir := JobDir(w.outputDir, job.DocID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		w.fail(log, job, "parsing", fmt.Errorf("create job dir: %w", err))
		return
	}
	src := filepath.Join(dir, filepath.Base(job.Filename))
	if err := os.WriteFile(src, job.FileData(), 0o644); err != nil {
		w.fail(log, job, "parsing", fmt.Errorf("write upload: %w", err))
		return
	}
	job.releaseFileData()

	doc, err := parser.Open(src)
	if err != nil {
		w.fail(log, job, "parsing", fmt.Errorf("parse: %w", err))
		return
	}
	defer doc.Close()

	// Phase 2: Extract
	job.SetStatus(StatusExtracting, "extracting")
	var captioner chunker.Captioner
	if job.Captions {
		captioner = w.captioner
	}
	ex := chunker.NewExtractor(w.chunkCfg(filepath.Join(dir, "extracted_images")), captioner, log)
	res, err := ex.Extract(ctx, doc)
	if err != nil {
		w.fail(log, job, "extracting", fmt.Errorf("extract: %w", err))
		return
	}
	records, err := chunker.ToRecords(res.Chunks)
	if err != nil {
		w.fail(log, job, "extracting", err)
		return
	}
	if err := chunker.ValidateRecords(records); err != nil {
		w.fail(log, job, "extracting", fmt.Errorf("validate records: %w", err))
		return
	}
	if err := writeChunks(filepath.Join(dir, ChunksFile), res.Chunks); err != nil {
		w.fail(log, job, "extracting", err)
		return
	}
	job.SetExtraction(res, records)
	log.Info("extraction complete", "pages", res.Stats.Pages, "chunks", len(records),
		"images", res.Stats.Images, "caption_errors", res.Stats.CaptionErrors)

	if len(records) == 0 {
		job.AddError("no extractable content")
		job.SetStatus(StatusFailed, "extracting")
		return
	}

	// Phase 3: Ingest
	if w.ingester == nil {
		job.SetStatus(StatusCompleted, "done")
		return
	}
	job.SetStatus(StatusIngesting, "ingesting")
	report, err := w.ingester.Ingest(ctx, job.Collection, records)
	job.SetIngestReport(report)
	if err != nil {
		w.fail(log, job, "ingesting", fmt.Errorf("ingest: %w", err))
		return
	}

	switch {
	case report.Upserted == 0:
		job.AddError("no chunks were embedded")
		job.SetStatus(StatusFailed, "ingesting")
	case report.Skipped > 0:
		job.AddError(fmt.Sprintf("%d chunks skipped after embedding failures", report.Skipped))
		job.SetStatus(StatusPartial, "done")
	default:
		job.SetStatus(StatusCompleted, "done")
	}
}

func (w *Worker) fail(log *slog.Logger, job *Job, phase string, err error) {
	log.Error("job failed", "phase", phase, "error", err)
	job.AddError(err.Error())
	job.SetStatus(StatusFailed, phase)
}

func writeChunks(path string, chunks []chunker.Chunk) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", filepath.Base(path), err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", filepath.Base(path), cerr)
		}
	}()
	if err := chunker.WriteJSON(f, chunks); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}

// SanitizeDocID keeps doc ids safe to use as a directory name.
func SanitizeDocID(id string) string {
	id = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, id)
	id = strings.Trim(id, ".")
	if id == "" {
		return "doc"
	}
	return id
}
