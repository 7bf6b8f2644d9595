package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/askpdf/askpdf/internal/core"
	"github.com/askpdf/askpdf/internal/metrics"
	"github.com/askpdf/askpdf/internal/models"
)

const systemPrompt = "You are a helpful AI assistant who answers user queries using only the provided context from the uploaded document. If the answer is not in the context, say you cannot find it in the document."

// noContextAnswer is returned when retrieval finds nothing. The
// completion model is deliberately not invoked in that case, so the
// service can never fabricate an answer from an empty collection.
const noContextAnswer = "I could not find any relevant content in the indexed documents for this question."

// QueryService answers a user question with retrieval-augmented
// generation: embed the query, retrieve the top-k most similar chunks,
// and ground a completion call in them.
type QueryService struct {
	store    core.VectorStore
	embedder core.EmbeddingProvider
	llm      core.LLMProvider
	topK     int
	logger   *slog.Logger
}

func NewQueryService(store core.VectorStore, emb core.EmbeddingProvider, llm core.LLMProvider, topK int) *QueryService {
	return &QueryService{
		store:    store,
		embedder: emb,
		llm:      llm,
		topK:     topK,
		logger:   slog.Default().With("component", "query-service"),
	}
}

// Answer returns the grounded answer and the supporting chunks in
// similarity-rank order. Retrieval failures and generation failures are
// reported distinctly and never replaced with a default answer.
func (s *QueryService) Answer(ctx context.Context, queryText string) (models.QueryResult, error) {
	queryText = strings.TrimSpace(queryText)
	if queryText == "" {
		metrics.QueriesTotal.WithLabelValues("retrieval_failed").Inc()
		return models.QueryResult{}, fmt.Errorf("%w: empty query", core.ErrRetrievalFailed)
	}

	vecs, err := s.embedder.EmbedTexts(ctx, []string{queryText})
	if err != nil || len(vecs) == 0 {
		metrics.QueriesTotal.WithLabelValues("retrieval_failed").Inc()
		return models.QueryResult{}, fmt.Errorf("%w: embed query: %v", core.ErrRetrievalFailed, err)
	}

	chunks, err := s.store.SearchChunks(ctx, vecs[0], s.topK, "")
	if err != nil {
		metrics.QueriesTotal.WithLabelValues("retrieval_failed").Inc()
		return models.QueryResult{}, fmt.Errorf("%w: search: %v", core.ErrRetrievalFailed, err)
	}

	if len(chunks) == 0 {
		metrics.QueriesTotal.WithLabelValues("no_context").Inc()
		s.logger.Info("query matched no chunks")
		return models.QueryResult{Answer: noContextAnswer, Chunks: []models.ScoredChunk{}}, nil
	}

	var sb strings.Builder
	for _, ch := range chunks {
		sb.WriteString(ch.Text)
		sb.WriteString("\n---\n")
	}
	userPrompt := fmt.Sprintf("Context:\n%s\nQuestion: %s", sb.String(), queryText)

	answer, err := s.llm.Generate(ctx, systemPrompt, userPrompt)
	if err != nil {
		metrics.QueriesTotal.WithLabelValues("generation_failed").Inc()
		return models.QueryResult{}, fmt.Errorf("%w: %v", core.ErrGenerationFailed, err)
	}

	metrics.QueriesTotal.WithLabelValues("answered").Inc()
	return models.QueryResult{Answer: answer, Chunks: chunks}, nil
}
