// Package ingest embeds extracted chunk records into a Qdrant collection
// and answers similarity queries against it.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/dgallion1/manualgest/internal/llm"
	"github.com/dgallion1/manualgest/internal/qdrant"
)

// Store is the subset of the Qdrant client used here.
type Store interface {
	RecreateCollection(ctx context.Context, name string, size int, distance string) error
	Upsert(ctx context.Context, name string, points []qdrant.Point) error
	Search(ctx context.Context, name string, vector []float32, limit int) ([]qdrant.ScoredPoint, error)
}

// Config tunes ingestion.
type Config struct {
	EmbeddingSize      int
	MaxEmbedTokens     int
	UpsertBatchSize    int
	MaxConcurrentEmbed int
	Retries            int
	RetryDelay         time.Duration
}

func DefaultConfig() Config {
	return Config{
		EmbeddingSize:      3072,
		MaxEmbedTokens:     8000,
		UpsertBatchSize:    64,
		MaxConcurrentEmbed: 4,
		Retries:            3,
		RetryDelay:         time.Second,
	}
}

// Report summarizes one ingestion run.
type Report struct {
	Collection string `json:"collection"`
	Total      int    `json:"total"`
	Embedded   int    `json:"embedded"`
	Skipped    int    `json:"skipped"`
	Upserted   int    `json:"upserted"`
}

// Ingester embeds records and writes them to the vector store.
type Ingester struct {
	embedder llm.Embedder
	store    Store
	cfg      Config
	log      *slog.Logger
}

func NewIngester(embedder llm.Embedder, store Store, cfg Config, log *slog.Logger) *Ingester {
	def := DefaultConfig()
	if cfg.EmbeddingSize <= 0 {
		cfg.EmbeddingSize = def.EmbeddingSize
	}
	if cfg.UpsertBatchSize <= 0 {
		cfg.UpsertBatchSize = def.UpsertBatchSize
	}
	if cfg.MaxConcurrentEmbed <= 0 {
		cfg.MaxConcurrentEmbed = def.MaxConcurrentEmbed
	}
	if cfg.Retries <= 0 {
		cfg.Retries = def.Retries
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = def.RetryDelay
	}
	return &Ingester{embedder: embedder, store: store, cfg: cfg, log: log}
}

// Ingest recreates collection and fills it with one point per record that
// has non-empty content. The point id is the record's position among those
// records; the payload is the whole record. Records that cannot be embedded
// are logged and skipped.
func (in *Ingester) Ingest(ctx context.Context, collection string, records []map[string]any) (Report, error) {
	log := in.log.With("collection", collection)
	report := Report{Collection: collection}

	var kept []map[string]any
	for _, r := range records {
		if content, _ := r["content"].(string); strings.TrimSpace(content) != "" {
			kept = append(kept, r)
		}
	}
	report.Total = len(kept)

	if err := in.retry(ctx, log, "recreate collection", func() error {
		return in.store.RecreateCollection(ctx, collection, in.cfg.EmbeddingSize, qdrant.Cosine)
	}); err != nil {
		return report, err
	}

	vectors := in.embedAll(ctx, log, kept)
	if err := ctx.Err(); err != nil {
		return report, err
	}

	points := make([]qdrant.Point, 0, len(kept))
	for i, vec := range vectors {
		if vec == nil {
			report.Skipped++
			continue
		}
		points = append(points, qdrant.Point{ID: uint64(i), Vector: vec, Payload: kept[i]})
	}
	report.Embedded = len(points)

	for start := 0; start < len(points); start += in.cfg.UpsertBatchSize {
		end := min(start+in.cfg.UpsertBatchSize, len(points))
		batch := points[start:end]
		if err := in.retry(ctx, log, "upsert", func() error {
			return in.store.Upsert(ctx, collection, batch)
		}); err != nil {
			return report, err
		}
		report.Upserted += len(batch)
	}

	log.Info("ingestion complete",
		"total", report.Total,
		"embedded", report.Embedded,
		"skipped", report.Skipped,
		"upserted", report.Upserted,
	)
	return report, nil
}

// embedAll returns one vector per record, nil where embedding failed.
func (in *Ingester) embedAll(ctx context.Context, log *slog.Logger, records []map[string]any) [][]float32 {
	vectors := make([][]float32, len(records))
	sem := make(chan struct{}, in.cfg.MaxConcurrentEmbed)
	var wg sync.WaitGroup

	for i, r := range records {
		if ctx.Err() != nil {
			break
		}
		content, _ := r["content"].(string)
		text := TruncateTokens(content, in.cfg.MaxEmbedTokens)
		if len(text) < len(content) {
			log.Debug("truncated chunk for embedding", "chunk", i, "tokens", EstimateTokens(content))
		}

		sem <- struct{}{}
		wg.Add(1)
		go func(i int, text string) {
			defer wg.Done()
			defer func() { <-sem }()

			var vec []float32
			err := in.retry(ctx, log, "embed", func() error {
				var err error
				vec, err = in.embedder.Embed(ctx, text)
				return err
			})
			if err != nil {
				log.Error("embedding failed, skipping chunk", "chunk", i, "error", err)
				return
			}
			if len(vec) != in.cfg.EmbeddingSize {
				log.Error("embedding has wrong dimension, skipping chunk",
					"chunk", i, "got", len(vec), "want", in.cfg.EmbeddingSize)
				return
			}
			vectors[i] = vec
		}(i, text)
	}
	wg.Wait()
	return vectors
}

func (in *Ingester) retry(ctx context.Context, log *slog.Logger, op string, fn func() error) error {
	err := withRetry(ctx, in.cfg.Retries, in.cfg.RetryDelay, func(n uint, err error) {
		log.Warn("retryable error", "op", op, "attempt", n, "error", err)
	}, fn)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
