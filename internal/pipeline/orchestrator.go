package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dgallion1/manualgest/internal/chunker"
	"github.com/dgallion1/manualgest/internal/config"
)

// ErrQueueFull is returned by Submit when no worker can take the job.
var ErrQueueFull = errors.New("job queue is full")

// ErrDocIDBusy is returned by Submit when another active job writes to the
// same document directory.
var ErrDocIDBusy = errors.New("doc_id is in use by an active job")

// Orchestrator manages the upload pipeline.
type Orchestrator struct {
	jobs      *JobStore
	queue     chan *Job
	captioner chunker.Captioner
	ingester  Ingester
	log       *slog.Logger
	cfg       config.Config

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewOrchestrator creates the pipeline. Call Start to run workers.
func NewOrchestrator(cfg config.Config, captioner chunker.Captioner, ingester Ingester, log *slog.Logger) *Orchestrator {
	return &Orchestrator{
		jobs:      NewJobStore(cfg.JobTTL),
		queue:     make(chan *Job, cfg.MaxQueueSize),
		captioner: captioner,
		ingester:  ingester,
		log:       log,
		cfg:       cfg,
	}
}

// Start launches worker goroutines.
func (o *Orchestrator) Start(ctx context.Context) {
	workerCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	for range o.cfg.WorkerCount {
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			w := NewWorker(o.captioner, o.ingester, o.log, o.cfg.OutputDir, o.cfg.ChunkerConfig)
			for {
				select {
				case <-workerCtx.Done():
					return
				case job, ok := <-o.queue:
					if !ok {
						return
					}
					w.Process(workerCtx, job)
				}
			}
		}()
	}

	// Start job store cleanup.
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticker.C:
				o.jobs.Cleanup()
			}
		}
	}()
}

// Stop gracefully shuts down the pipeline.
func (o *Orchestrator) Stop() {
	if o.cancel != nil {
		o.cancel()
	}
	close(o.queue)
	o.wg.Wait()
}

// Submit queues a new job for processing. A job whose content is already
// held by a live job for the same collection is recorded as a duplicate
// and not queued, unless job.Force is set. Each active job owns its doc_id,
// so a second active job for the same doc_id is rejected with ErrDocIDBusy.
func (o *Orchestrator) Submit(job *Job) error {
	if !job.Force {
		if prev := o.jobs.FindByHash(job.ContentHash, job.Collection); prev != nil {
			job.DuplicateOf = prev.ID
			job.releaseFileData()
			job.SetStatus(StatusDupSkipped, "dedup")
			o.jobs.Put(job)
			o.log.Info("duplicate upload, skipping", "job_id", job.ID, "existing_job_id", prev.ID)
			return nil
		}
	}
	if owner := o.jobs.PutExclusive(job); owner != nil {
		return fmt.Errorf("%w: %s (job %s)", ErrDocIDBusy, job.DocID, owner.ID)
	}
	select {
	case o.queue <- job:
		return nil
	default:
		job.AddError("job queue is full")
		job.SetStatus(StatusFailed, "queue_full")
		return fmt.Errorf("%w (%d)", ErrQueueFull, o.cfg.MaxQueueSize)
	}
}

// GetJob returns a job by ID.
func (o *Orchestrator) GetJob(id string) *Job {
	return o.jobs.Get(id)
}

// QueueDepth returns current queue depth.
func (o *Orchestrator) QueueDepth() int {
	return len(o.queue)
}
