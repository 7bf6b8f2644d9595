package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/askpdf/askpdf/internal/config"
	"github.com/askpdf/askpdf/internal/core/ingestion_engine"
	"github.com/askpdf/askpdf/internal/core/llm"
	objectclient "github.com/askpdf/askpdf/internal/core/object-client"
	"github.com/askpdf/askpdf/internal/core/queue"
	"github.com/askpdf/askpdf/internal/core/vectorstore"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle SIGINT/SIGTERM for graceful shutdown
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		<-c
		cancel()
	}()

	cfg := config.LoadConfig()

	store, err := vectorstore.NewClient(ctx, cfg)
	if err != nil {
		log.Fatalf("vector store: %v", err)
	}
	defer store.Close()

	objClient, err := objectclient.NewS3Client(ctx, cfg)
	if err != nil {
		log.Fatalf("object client: %v", err)
	}

	jobQueue, err := queue.NewRedisQueue(cfg)
	if err != nil {
		log.Fatalf("job queue: %v", err)
	}
	defer jobQueue.Close()

	embedder, err := llm.NewGeminiEmbedder(ctx, cfg.AIAPIKey, cfg.EmbedModel)
	if err != nil {
		log.Fatalf("embedder: %v", err)
	}
	defer embedder.Close()

	ingCfg := &ingestion_engine.IngestConfig{
		TargetTokens:   cfg.TargetTokens,
		OverlapTokens:  cfg.OverlapTokens,
		BatchSize:      cfg.BatchSize,
		MaxEmbedTokens: cfg.MaxEmbedTokens,
		MaxAttempts:    cfg.MaxAttempts,
	}

	fetcher := ingestion_engine.NewFetcher(objClient, cfg.FetchTimeout)
	parser := ingestion_engine.NewParser(ingCfg)
	ingestor := ingestion_engine.NewDocumentIngestor(
		jobQueue, fetcher, parser, embedder, store, ingCfg, cfg.StageTimeout)

	// Recover deliveries stranded by a previous crash before consuming.
	if _, err := jobQueue.RequeueOrphans(ctx); err != nil {
		log.Printf("orphan requeue failed: %v", err)
	}

	// Ingestion counters live in this process; give Prometheus a scrape
	// target alongside the consumers.
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())
	metricsSrv := &http.Server{Addr: ":" + cfg.WorkerPort, Handler: mux}
	go func() {
		log.Printf("worker metrics listening on %s", metricsSrv.Addr)
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server error: %v", err)
		}
	}()

	ingestor.Start(ctx, cfg.Workers)
	log.Printf("askpdf worker is running with %d workers.", cfg.Workers)

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = metricsSrv.Shutdown(shutdownCtx)
	log.Println("shutting down...")
}
