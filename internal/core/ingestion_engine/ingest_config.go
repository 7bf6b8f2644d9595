package ingestion_engine

// IngestConfig tunes the ingestion pipeline.
//
// TargetTokens:   approximate tokens per chunk (e.g., 300).
// OverlapTokens:  token overlap between consecutive chunks for context bleed.
// BatchSize:      how many chunks to embed/write in one batch (limits memory
//                 and respects the embedding service's batch limits).
// MaxEmbedTokens: per-chunk input limit; larger chunks are dropped with a
//                 warning instead of failing the document.
// MaxAttempts:    delivery cap for transient failures before a job is terminal.
type IngestConfig struct {
	TargetTokens   int
	OverlapTokens  int
	BatchSize      int
	MaxEmbedTokens int
	MaxAttempts    int
}

// pageText is one page's extracted text, in document order.
type pageText struct {
	Page int
	Text string
}
