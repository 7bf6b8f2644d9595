package ingestion_engine

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askpdf/askpdf/internal/core"
	"github.com/askpdf/askpdf/internal/models"
)

type fakeQueue struct {
	mu       sync.Mutex
	enqueued []models.IngestionJob
}

func (q *fakeQueue) Enqueue(_ context.Context, job models.IngestionJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.enqueued = append(q.enqueued, job)
	return nil
}

func (q *fakeQueue) Dequeue(_ context.Context) (models.IngestionJob, core.AckFunc, error) {
	return models.IngestionJob{}, nil, errors.New("not used in tests")
}

type fakeFetcher struct {
	path          string
	err           error
	cleanupCalled bool
}

func (f *fakeFetcher) Fetch(_ context.Context, _ models.SourceLocator) (string, func(), error) {
	if f.err != nil {
		return "", func() {}, f.err
	}
	return f.path, func() { f.cleanupCalled = true }, nil
}

type fakeParser struct {
	chunks   []models.DocumentChunk
	err      error
	panicMsg string
}

func (p *fakeParser) Parse(_ context.Context, _ string, _ string) ([]models.DocumentChunk, error) {
	if p.panicMsg != "" {
		panic(p.panicMsg)
	}
	return p.chunks, p.err
}

type fakeEmbedder struct {
	err      error
	panicMsg string
	calls    int
}

func (e *fakeEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	e.calls++
	if e.panicMsg != "" {
		panic(e.panicMsg)
	}
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t))}
	}
	return out, nil
}

type fakeStore struct {
	mu          sync.Mutex
	statuses    map[string][]string
	chunks      map[string]models.DocumentChunk
	getErr      error
	statusErrOn string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		statuses: map[string][]string{},
		chunks:   map[string]models.DocumentChunk{},
	}
}

func (s *fakeStore) CreateDocument(_ context.Context, _ *models.Document) error { return nil }

func (s *fakeStore) GetDocumentByID(_ context.Context, _ string) (*models.Document, error) {
	return nil, s.getErr
}

func (s *fakeStore) ListDocuments(_ context.Context) ([]models.Document, error) { return nil, nil }

func (s *fakeStore) UpdateDocumentStatus(_ context.Context, id string, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if status == s.statusErrOn {
		return errors.New("status write failed")
	}
	s.statuses[id] = append(s.statuses[id], status)
	return nil
}

func (s *fakeStore) UpsertChunks(_ context.Context, chunks []models.DocumentChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range chunks {
		s.chunks[ch.ID] = ch
	}
	return nil
}

func (s *fakeStore) SearchChunks(_ context.Context, _ []float32, _ int, _ string) ([]models.ScoredChunk, error) {
	return nil, nil
}

func (s *fakeStore) Close() error { return nil }

func (s *fakeStore) lastStatus(id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.statuses[id]
	if len(st) == 0 {
		return ""
	}
	return st[len(st)-1]
}

func testChunks(n int) []models.DocumentChunk {
	out := make([]models.DocumentChunk, n)
	for i := range out {
		out[i] = models.DocumentChunk{
			Page:       i/2 + 1,
			Position:   i,
			Text:       string(rune('a'+i)) + " chunk text",
			TokenCount: 10,
		}
	}
	return out
}

func newTestIngestor(q *fakeQueue, f *fakeFetcher, p *fakeParser, e *fakeEmbedder, s *fakeStore) *DocumentIngestor {
	cfg := &IngestConfig{
		TargetTokens:   300,
		OverlapTokens:  0,
		BatchSize:      2,
		MaxEmbedTokens: 100,
		MaxAttempts:    3,
	}
	return NewDocumentIngestor(q, f, p, e, s, cfg, time.Minute)
}

func TestHandleJob_HappyPath(t *testing.T) {
	q := &fakeQueue{}
	f := &fakeFetcher{path: "/tmp/a.pdf"}
	p := &fakeParser{chunks: testChunks(5)}
	e := &fakeEmbedder{}
	s := newFakeStore()

	ing := newTestIngestor(q, f, p, e, s)
	ing.HandleJob(context.Background(), models.IngestionJob{
		DocumentID: "doc1",
		Source:     models.SourceLocator{LocalPath: "/tmp/a.pdf"},
	})

	assert.Equal(t, "ready", s.lastStatus("doc1"))
	assert.Len(t, s.chunks, 5)
	assert.Empty(t, q.enqueued)
	assert.True(t, f.cleanupCalled)

	// Vector i corresponds to chunk i: the fake embedder encodes the
	// text length into the vector.
	for _, ch := range s.chunks {
		require.Len(t, ch.Embedding, 1)
		assert.Equal(t, float32(len(ch.Text)), ch.Embedding[0])
		assert.Equal(t, models.ChunkID("doc1", ch.Page, ch.Position), ch.ID)
		assert.Equal(t, "doc1", ch.DocumentID)
	}
}

func TestHandleJob_Idempotent(t *testing.T) {
	q := &fakeQueue{}
	f := &fakeFetcher{path: "/tmp/a.pdf"}
	p := &fakeParser{chunks: testChunks(5)}
	e := &fakeEmbedder{}
	s := newFakeStore()

	ing := newTestIngestor(q, f, p, e, s)
	job := models.IngestionJob{DocumentID: "doc1", Source: models.SourceLocator{LocalPath: "/tmp/a.pdf"}}

	ing.HandleJob(context.Background(), job)
	first := make(map[string]bool, len(s.chunks))
	for id := range s.chunks {
		first[id] = true
	}

	// Redelivery of the same job replaces rows instead of duplicating.
	ing.HandleJob(context.Background(), job)
	assert.Len(t, s.chunks, len(first))
	for id := range s.chunks {
		assert.True(t, first[id])
	}
}

func TestHandleJob_PermanentFetchFailureIsIsolated(t *testing.T) {
	q := &fakeQueue{}
	f := &fakeFetcher{err: core.Permanentf(core.StageFetch, "status 404")}
	p := &fakeParser{chunks: testChunks(3)}
	e := &fakeEmbedder{}
	s := newFakeStore()

	ing := newTestIngestor(q, f, p, e, s)
	ing.HandleJob(context.Background(), models.IngestionJob{
		DocumentID: "doc1",
		Source:     models.SourceLocator{StorageKey: "documents/doc1/missing.pdf"},
	})

	assert.Equal(t, "failed", s.lastStatus("doc1"))
	assert.Empty(t, s.chunks, "a failed fetch must leave the collection unchanged")
	assert.Zero(t, e.calls, "the embedding stage must never run")
	assert.Empty(t, q.enqueued, "permanent failures are not retried")
}

func TestHandleJob_TransientFailureRetries(t *testing.T) {
	q := &fakeQueue{}
	f := &fakeFetcher{err: core.Transientf(core.StageFetch, "status 503")}
	s := newFakeStore()

	ing := newTestIngestor(q, f, &fakeParser{}, &fakeEmbedder{}, s)
	ing.HandleJob(context.Background(), models.IngestionJob{
		DocumentID: "doc1",
		Source:     models.SourceLocator{StorageKey: "k"},
		Attempt:    0,
	})

	require.Len(t, q.enqueued, 1)
	assert.Equal(t, 1, q.enqueued[0].Attempt)
	assert.Equal(t, "doc1", q.enqueued[0].DocumentID)
	assert.NotEqual(t, "failed", s.lastStatus("doc1"), "a retryable job is not terminal yet")
}

func TestHandleJob_TransientFailureExhaustsAttempts(t *testing.T) {
	q := &fakeQueue{}
	f := &fakeFetcher{err: core.Transientf(core.StageFetch, "status 503")}
	s := newFakeStore()

	ing := newTestIngestor(q, f, &fakeParser{}, &fakeEmbedder{}, s)
	ing.HandleJob(context.Background(), models.IngestionJob{
		DocumentID: "doc1",
		Source:     models.SourceLocator{StorageKey: "k"},
		Attempt:    2, // attempt+1 == MaxAttempts
	})

	assert.Empty(t, q.enqueued)
	assert.Equal(t, "failed", s.lastStatus("doc1"))
}

func TestHandleJob_ParseFailureIsTerminal(t *testing.T) {
	q := &fakeQueue{}
	f := &fakeFetcher{path: "/tmp/a.pdf"}
	p := &fakeParser{err: core.Permanentf(core.StageParse, "no extractable text")}
	s := newFakeStore()

	ing := newTestIngestor(q, f, p, &fakeEmbedder{}, s)
	ing.HandleJob(context.Background(), models.IngestionJob{
		DocumentID: "doc1",
		Source:     models.SourceLocator{LocalPath: "/tmp/a.pdf"},
	})

	assert.Equal(t, "failed", s.lastStatus("doc1"))
	assert.Empty(t, s.chunks)
	assert.Empty(t, q.enqueued)
	assert.True(t, f.cleanupCalled, "scratch storage is released on parse failure too")
}

func TestHandleJob_OversizedChunkDropped(t *testing.T) {
	chunks := testChunks(5)
	chunks[2].TokenCount = 5000 // exceeds MaxEmbedTokens (100)

	q := &fakeQueue{}
	f := &fakeFetcher{path: "/tmp/a.pdf"}
	p := &fakeParser{chunks: chunks}
	e := &fakeEmbedder{}
	s := newFakeStore()

	ing := newTestIngestor(q, f, p, e, s)
	ing.HandleJob(context.Background(), models.IngestionJob{
		DocumentID: "doc1",
		Source:     models.SourceLocator{LocalPath: "/tmp/a.pdf"},
	})

	assert.Equal(t, "ready", s.lastStatus("doc1"))
	assert.Len(t, s.chunks, 4, "one oversized chunk must not fail the document")

	dropped := models.ChunkID("doc1", chunks[2].Page, chunks[2].Position)
	_, ok := s.chunks[dropped]
	assert.False(t, ok)
}

func TestHandleJob_PanickingParserIsContained(t *testing.T) {
	q := &fakeQueue{}
	f := &fakeFetcher{path: "/tmp/a.pdf"}
	p := &fakeParser{panicMsg: "malformed PDF: reading at offset 0: stream not present"}
	s := newFakeStore()

	ing := newTestIngestor(q, f, p, &fakeEmbedder{}, s)
	require.NotPanics(t, func() {
		ing.HandleJob(context.Background(), models.IngestionJob{
			DocumentID: "doc1",
			Source:     models.SourceLocator{LocalPath: "/tmp/a.pdf"},
		})
	})

	assert.Equal(t, "failed", s.lastStatus("doc1"))
	assert.Empty(t, q.enqueued, "a panic is terminal, never retried")
	assert.Empty(t, s.chunks)
	assert.True(t, f.cleanupCalled, "scratch storage is released while unwinding")
}

func TestHandleJob_PanickingEmbedderIsContained(t *testing.T) {
	q := &fakeQueue{}
	f := &fakeFetcher{path: "/tmp/a.pdf"}
	p := &fakeParser{chunks: testChunks(3)}
	e := &fakeEmbedder{panicMsg: "index out of range"}
	s := newFakeStore()

	ing := newTestIngestor(q, f, p, e, s)
	require.NotPanics(t, func() {
		ing.HandleJob(context.Background(), models.IngestionJob{
			DocumentID: "doc1",
			Source:     models.SourceLocator{LocalPath: "/tmp/a.pdf"},
		})
	})

	assert.Equal(t, "failed", s.lastStatus("doc1"))
	assert.Empty(t, s.chunks)
}

func TestProcessOne_MetadataLookupFailureReportsFetchStage(t *testing.T) {
	s := newFakeStore()
	s.getErr = errors.New("connection reset")

	ing := newTestIngestor(&fakeQueue{}, &fakeFetcher{path: "/tmp/a.pdf"},
		&fakeParser{chunks: testChunks(1)}, &fakeEmbedder{}, s)

	err := ing.processOne(context.Background(), models.IngestionJob{
		DocumentID: "doc1",
		Source:     models.SourceLocator{LocalPath: "/tmp/a.pdf"},
	})
	require.Error(t, err)
	assert.Equal(t, core.StageFetch, core.FailedStage(err))
	assert.True(t, core.IsTransient(err))
}

func TestHandleJob_ProcessingStatusErrorIsLogged(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	defer slog.SetDefault(prev)

	s := newFakeStore()
	s.statusErrOn = "processing"

	ing := newTestIngestor(&fakeQueue{}, &fakeFetcher{path: "/tmp/a.pdf"},
		&fakeParser{chunks: testChunks(2)}, &fakeEmbedder{}, s)
	ing.HandleJob(context.Background(), models.IngestionJob{
		DocumentID: "doc1",
		Source:     models.SourceLocator{LocalPath: "/tmp/a.pdf"},
	})

	assert.Contains(t, buf.String(), "status update failed")
	assert.Equal(t, "ready", s.lastStatus("doc1"), "the job itself still runs")
}

func TestHandleJob_EmbedErrorFailsJob(t *testing.T) {
	q := &fakeQueue{}
	f := &fakeFetcher{path: "/tmp/a.pdf"}
	p := &fakeParser{chunks: testChunks(3)}
	e := &fakeEmbedder{err: errors.New("api unreachable")}
	s := newFakeStore()

	ing := newTestIngestor(q, f, p, e, s)
	ing.HandleJob(context.Background(), models.IngestionJob{
		DocumentID: "doc1",
		Source:     models.SourceLocator{LocalPath: "/tmp/a.pdf"},
		Attempt:    2,
	})

	assert.Equal(t, "failed", s.lastStatus("doc1"))
	assert.Empty(t, s.chunks)
	assert.True(t, f.cleanupCalled)
}
