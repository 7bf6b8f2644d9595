package core

import (
	"context"
	"io"
	"time"

	"github.com/askpdf/askpdf/internal/models"
)

// AckFunc acknowledges one queue delivery. Until it is called the job
// remains redeliverable (at-least-once semantics).
type AckFunc func(ctx context.Context) error

// JobQueue is the durable ingestion job queue. Dequeue blocks until a job
// is available; there is no ordering guarantee across jobs and multiple
// worker processes may consume concurrently.
type JobQueue interface {
	Enqueue(ctx context.Context, job models.IngestionJob) error
	Dequeue(ctx context.Context) (models.IngestionJob, AckFunc, error)
}

// ObjectClient defines interactions with S3 or any object storage.
// It's abstract so you can replace AWS with MinIO, GCP, etc. easily.
type ObjectClient interface {
	UploadFile(ctx context.Context, key string, data io.Reader, contentType string) (url string, err error)
	PresignGetURL(ctx context.Context, key string, expiry time.Duration) (string, error)
	DeleteFile(ctx context.Context, key string) error
}

// SourceFetcher materializes a job's source locator into a local file.
// cleanup releases any scratch storage and must be called on every exit
// path once the file is no longer needed.
type SourceFetcher interface {
	Fetch(ctx context.Context, src models.SourceLocator) (path string, cleanup func(), err error)
}

// DocumentParser turns a local file into ordered chunks. The returned
// chunks carry page and position but no identity or embedding yet.
type DocumentParser interface {
	Parse(ctx context.Context, path string, contentType string) ([]models.DocumentChunk, error)
}

// VectorStore defines all persistence operations the services need.
// It abstracts Postgres/pgvector so higher layers never depend on a
// specific DB.
type VectorStore interface {
	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocumentByID(ctx context.Context, id string) (*models.Document, error)
	ListDocuments(ctx context.Context) ([]models.Document, error)
	UpdateDocumentStatus(ctx context.Context, id string, status string) error

	UpsertChunks(ctx context.Context, chunks []models.DocumentChunk) error
	SearchChunks(ctx context.Context, queryVec []float32, k int, documentID string) ([]models.ScoredChunk, error)

	Close() error
}
