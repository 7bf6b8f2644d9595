package ingestion_engine

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/googleapi"

	"github.com/askpdf/askpdf/internal/core"
	"github.com/askpdf/askpdf/internal/metrics"
	"github.com/askpdf/askpdf/internal/models"
)

// DocumentIngestor drives jobs from the queue through the pipeline:
// Fetching -> Parsing -> Embedding -> Upserting. Jobs are fully isolated
// from each other; a failure in one never crashes a worker or touches
// another in-flight job.
type DocumentIngestor struct {
	queue        core.JobQueue
	fetcher      core.SourceFetcher
	parser       core.DocumentParser
	embedder     core.EmbeddingProvider
	store        core.VectorStore
	cfg          *IngestConfig
	stageTimeout time.Duration
	logger       *slog.Logger
}

func NewDocumentIngestor(
	queue core.JobQueue,
	fetcher core.SourceFetcher,
	parser core.DocumentParser,
	emb core.EmbeddingProvider,
	store core.VectorStore,
	cfg *IngestConfig,
	stageTimeout time.Duration,
) *DocumentIngestor {
	return &DocumentIngestor{
		queue:        queue,
		fetcher:      fetcher,
		parser:       parser,
		embedder:     emb,
		store:        store,
		cfg:          cfg,
		stageTimeout: stageTimeout,
		logger:       slog.Default().With("component", "ingestor"),
	}
}

// Start launches numWorkers goroutines, each dequeuing one job at a time
// and running it to completion before taking the next. It returns
// immediately; workers stop when ctx is cancelled.
func (i *DocumentIngestor) Start(ctx context.Context, numWorkers int) {
	for w := 1; w <= numWorkers; w++ {
		go func(w int) {
			log := i.logger.With("worker", w)
			for {
				job, ack, err := i.queue.Dequeue(ctx)
				if err != nil {
					if ctx.Err() != nil {
						log.Info("worker shutting down")
						return
					}
					log.Error("dequeue failed", "error", err)
					time.Sleep(time.Second)
					continue
				}

				i.HandleJob(ctx, job)

				// Ack after the job reached a terminal outcome (or was
				// re-enqueued for retry); a crash before this point leaves
				// the delivery recoverable.
				if err := ack(ctx); err != nil {
					log.Error("ack failed", "document", job.DocumentID, "error", err)
				}
			}
		}(w)
	}
}

// HandleJob runs one job and resolves its outcome: success, bounded
// retry for transient failures, or terminal failure. It never returns an
// error; every failure is absorbed at the job boundary.
func (i *DocumentIngestor) HandleJob(ctx context.Context, job models.IngestionJob) {
	log := i.logger.With("document", job.DocumentID, "attempt", job.Attempt)

	if err := i.store.UpdateDocumentStatus(ctx, job.DocumentID, "processing"); err != nil {
		log.Error("status update failed", "error", err)
	}

	err := i.runJob(ctx, job)
	if err == nil {
		if err := i.store.UpdateDocumentStatus(ctx, job.DocumentID, "ready"); err != nil {
			log.Error("status update failed", "error", err)
		}
		metrics.JobsTotal.WithLabelValues("completed").Inc()
		log.Info("job completed", "state", "Completed")
		return
	}

	stage := core.FailedStage(err)
	if core.IsTransient(err) && job.Attempt+1 < i.cfg.MaxAttempts {
		retry := job
		retry.Attempt++
		if qerr := i.queue.Enqueue(ctx, retry); qerr != nil {
			log.Error("re-enqueue failed, job is lost until redelivery", "stage", stage, "error", qerr)
		} else {
			metrics.JobsTotal.WithLabelValues("retried").Inc()
			log.Warn("job failed, retrying", "state", "Failed", "kind", "retryable", "stage", stage, "error", err)
			return
		}
	}

	if serr := i.store.UpdateDocumentStatus(ctx, job.DocumentID, "failed"); serr != nil {
		log.Error("status update failed", "error", serr)
	}
	metrics.JobsTotal.WithLabelValues("failed").Inc()
	log.Error("job failed", "state", "Failed", "kind", "terminal", "stage", stage, "error", err)
}

// runJob is the panic boundary for one job. The pdf library panics on
// malformed xref and stream data, and a panicking stage must fail the
// job, not the worker process.
func (i *DocumentIngestor) runJob(ctx context.Context, job models.IngestionJob) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = core.Permanentf(core.StageParse, "recovered panic: %v", r)
		}
	}()
	return i.processOne(ctx, job)
}

// processOne fetches, parses, embeds and upserts one document. Scratch
// storage acquired by the fetch stage is released on every exit path.
func (i *DocumentIngestor) processOne(ctx context.Context, job models.IngestionJob) error {
	log := i.logger.With("document", job.DocumentID)

	// Fetching
	log.Debug("stage started", "state", "Fetching")
	fetchStart := time.Now()
	fetchCtx, cancel := context.WithTimeout(ctx, i.stageTimeout)
	path, cleanup, err := i.fetcher.Fetch(fetchCtx, job.Source)
	cancel()
	metrics.StageSeconds.WithLabelValues(string(core.StageFetch)).Observe(time.Since(fetchStart).Seconds())
	if err != nil {
		return err
	}
	defer cleanup()

	// Parsing
	log.Debug("stage started", "state", "Parsing")
	parseStart := time.Now()
	doc, err := i.store.GetDocumentByID(ctx, job.DocumentID)
	if err != nil {
		return core.Transient(core.StageFetch, err)
	}
	contentType := "application/pdf"
	if doc != nil && doc.ContentType != "" {
		contentType = doc.ContentType
	}
	chunks, err := i.parser.Parse(ctx, path, contentType)
	metrics.StageSeconds.WithLabelValues(string(core.StageParse)).Observe(time.Since(parseStart).Seconds())
	if err != nil {
		return err
	}

	// Embedding + Upserting, batched over the chunk stream.
	g, gctx := errgroup.WithContext(ctx)
	chunkCh := streamChunks(gctx, g, chunks)
	g.Go(func() (err error) {
		// The sink runs on its own goroutine, outside the runJob boundary.
		defer func() {
			if r := recover(); r != nil {
				err = core.Permanentf(core.StageEmbed, "recovered panic: %v", r)
			}
		}()
		return i.embedAndPersist(gctx, job.DocumentID, chunkCh)
	})
	return g.Wait()
}

// streamChunks feeds parsed chunks into a channel so the embed/persist
// sink can batch with backpressure.
func streamChunks(ctx context.Context, g *errgroup.Group, chunks []models.DocumentChunk) <-chan models.DocumentChunk {
	out := make(chan models.DocumentChunk, 8)
	g.Go(func() error {
		defer close(out)
		for _, ch := range chunks {
			select {
			case out <- ch:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})
	return out
}

// embedAndPersist consumes chunks, embeds them in batches, and upserts
// the records. Oversized chunks are dropped with a warning; one bad
// chunk must not fail the whole document.
func (i *DocumentIngestor) embedAndPersist(ctx context.Context, docID string, in <-chan models.DocumentChunk) error {
	log := i.logger.With("document", docID)
	batch := make([]models.DocumentChunk, 0, i.cfg.BatchSize)

	flush := func(items []models.DocumentChunk) error {
		if len(items) == 0 {
			return nil
		}

		texts := make([]string, len(items))
		for idx := range items {
			texts[idx] = items[idx].Text
		}

		embedStart := time.Now()
		embedCtx, cancel := context.WithTimeout(ctx, i.stageTimeout)
		vecs, err := i.embedder.EmbedTexts(embedCtx, texts)
		cancel()
		metrics.StageSeconds.WithLabelValues(string(core.StageEmbed)).Observe(time.Since(embedStart).Seconds())
		if err != nil {
			return classifyEmbedErr(err)
		}
		if len(vecs) != len(items) {
			return core.Permanentf(core.StageEmbed, "embed size mismatch: got %d want %d", len(vecs), len(items))
		}

		rows := make([]models.DocumentChunk, len(items))
		for k := range items {
			rows[k] = items[k]
			rows[k].ID = models.ChunkID(docID, items[k].Page, items[k].Position)
			rows[k].DocumentID = docID
			rows[k].Embedding = vecs[k]
		}

		upsertStart := time.Now()
		upsertCtx, cancel := context.WithTimeout(ctx, i.stageTimeout)
		err = i.store.UpsertChunks(upsertCtx, rows)
		cancel()
		metrics.StageSeconds.WithLabelValues(string(core.StageUpsert)).Observe(time.Since(upsertStart).Seconds())
		if err != nil {
			return classifyUpsertErr(err)
		}
		return nil
	}

	for ch := range in {
		if ch.TokenCount > i.cfg.MaxEmbedTokens {
			metrics.ChunksDropped.Inc()
			log.Warn("chunk exceeds embedding input limit, dropped",
				"page", ch.Page, "position", ch.Position, "tokens", ch.TokenCount)
			continue
		}
		batch = append(batch, ch)
		if len(batch) == i.cfg.BatchSize {
			if err := flush(batch); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	return flush(batch)
}

// classifyEmbedErr tags embedding failures: rate limits, server errors
// and timeouts are retry-eligible; other API rejections are not.
func classifyEmbedErr(err error) error {
	var se *core.StageError
	if errors.As(err, &se) {
		return err
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		if gerr.Code == 429 || gerr.Code >= 500 {
			return core.Transient(core.StageEmbed, err)
		}
		return core.Permanent(core.StageEmbed, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return core.Transient(core.StageEmbed, err)
	}
	var nerr net.Error
	if errors.As(err, &nerr) {
		return core.Transient(core.StageEmbed, err)
	}
	return core.Transient(core.StageEmbed, err)
}

// classifyUpsertErr tags vector-store failures: integrity and SQL errors
// are permanent, everything else (timeouts, broken connections) can be
// retried.
func classifyUpsertErr(err error) error {
	var pgerr *pgconn.PgError
	if errors.As(err, &pgerr) && len(pgerr.Code) >= 2 {
		switch pgerr.Code[:2] {
		case "23", "42", "22":
			return core.Permanent(core.StageUpsert, err)
		}
	}
	return core.Transient(core.StageUpsert, err)
}
