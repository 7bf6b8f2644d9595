package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Document represents an uploaded or registered document and its
// ingestion status: uploaded | processing | ready | failed.
type Document struct {
	ID          string    `db:"id" json:"id"`
	FileName    string    `db:"file_name" json:"file_name"`
	StorageKey  string    `db:"storage_key" json:"storage_key"`
	SourceType  string    `db:"source_type" json:"source_type"` // "upload" or "local"
	ContentType string    `db:"content_type" json:"content_type"`
	Status      string    `db:"status" json:"status"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// SourceLocator points at the bytes of a document: either a local
// filesystem path or an object-storage key. Exactly one is set.
type SourceLocator struct {
	LocalPath  string `json:"local_path,omitempty"`
	StorageKey string `json:"storage_key,omitempty"`
}

// IngestionJob is the unit carried on the job queue. The queue entry is
// the only record of the job; Attempt counts deliveries for bounded retry.
type IngestionJob struct {
	DocumentID string        `json:"document_id"`
	Source     SourceLocator `json:"source"`
	Attempt    int           `json:"attempt"`
}

// DocumentChunk represents one retrievable text chunk from a document.
// (Page, Position) ascending is the document's natural order.
type DocumentChunk struct {
	ID         string    `db:"id" json:"id"`
	DocumentID string    `db:"document_id" json:"document_id"`
	Page       int       `db:"page" json:"page"`
	Position   int       `db:"position" json:"position"`
	Text       string    `db:"text" json:"text"`
	Embedding  []float32 `db:"embedding" json:"-"` // pgvector column
	TokenCount int       `db:"token_count" json:"token_count"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// ScoredChunk is a search hit: a chunk plus its similarity score.
type ScoredChunk struct {
	DocumentChunk
	Score float32 `json:"score"`
}

// QueryResult is the answer to one user query together with the chunks
// that grounded it, in similarity-rank order.
type QueryResult struct {
	Answer string        `json:"answer"`
	Chunks []ScoredChunk `json:"chunks"`
}

// chunkNamespace is the fixed UUIDv5 namespace for chunk identities.
var chunkNamespace = uuid.MustParse("8f1c6a2e-1df0-4f6b-9a6e-3f5f0c7f41d2")

// ChunkID derives the stable identity of a chunk from its document and
// position, so re-ingesting the same document upserts instead of
// duplicating vectors.
func ChunkID(documentID string, page, position int) string {
	name := fmt.Sprintf("%s:%d:%d", documentID, page, position)
	return uuid.NewSHA1(chunkNamespace, []byte(name)).String()
}
