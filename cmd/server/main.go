package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgallion1/manualgest/internal/api"
	"github.com/dgallion1/manualgest/internal/config"
	"github.com/dgallion1/manualgest/internal/ingest"
	"github.com/dgallion1/manualgest/internal/llm"
	"github.com/dgallion1/manualgest/internal/pipeline"
	"github.com/dgallion1/manualgest/internal/qdrant"
)

func main() {
	configFile := flag.String("config", "", "path to a config file (default ./manualgest.yaml)")
	flag.Parse()

	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize clients.
	stats := llm.NewStats(cfg.LLM.StatsWindow)
	model, err := llm.New(ctx, cfg.LLMOptions(), stats)
	if err != nil {
		log.Error("failed to create llm client", "error", err)
		os.Exit(1)
	}
	vectors := qdrant.NewClient(cfg.Qdrant.URL, cfg.Qdrant.APIKey)
	ingester := ingest.NewIngester(model, vectors, cfg.IngestOptions(), log)
	searcher := ingest.NewSearcher(model, vectors)

	// Initialize pipeline.
	orch := pipeline.NewOrchestrator(cfg, model, ingester, log)
	orch.Start(ctx)

	// Initialize HTTP server.
	srv := api.NewServer(orch, searcher, vectors, stats, log, cfg)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("starting manualgest", "port", cfg.Port, "provider", cfg.LLM.Provider, "workers", cfg.WorkerCount)
	if err := serve(sigCtx, httpServer, orch.Stop, log); err != nil {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}

// serve runs srv until ctx is done, then shuts it down and calls
// stopWorkers. It returns only after stopWorkers has returned, so in-flight
// jobs are wound down before the process exits.
func serve(ctx context.Context, srv *http.Server, stopWorkers func(), log *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		stopWorkers()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", "error", err)
	}
	<-errCh

	stopWorkers()
	log.Info("workers stopped")
	return nil
}
