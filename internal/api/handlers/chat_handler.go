package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/askpdf/askpdf/internal/core"
	"github.com/askpdf/askpdf/internal/models"
)

// Answerer is the query-service capability the handler needs.
type Answerer interface {
	Answer(ctx context.Context, queryText string) (models.QueryResult, error)
}

type ChatHandler struct {
	query  Answerer
	logger *slog.Logger
}

func NewChatHandler(query Answerer) *ChatHandler {
	return &ChatHandler{
		query:  query,
		logger: slog.Default().With("component", "chat-handler"),
	}
}

type ChatRequest struct {
	Query string `json:"query"`
}

type chatError struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// Query answers one user question. Retrieval and generation failures are
// returned as structured errors, never as a substitute answer.
func (h *ChatHandler) Query(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if req.Query == "" {
		http.Error(w, "query is required", http.StatusBadRequest)
		return
	}

	result, err := h.query.Answer(r.Context(), req.Query)
	if err != nil {
		h.logger.Error("query failed", "error", err)
		w.Header().Set("Content-Type", "application/json")
		switch {
		case errors.Is(err, core.ErrRetrievalFailed):
			w.WriteHeader(http.StatusBadGateway)
			json.NewEncoder(w).Encode(chatError{Error: "retrieval failed", Kind: "retrieval_failed"})
		case errors.Is(err, core.ErrGenerationFailed):
			w.WriteHeader(http.StatusBadGateway)
			json.NewEncoder(w).Encode(chatError{Error: "generation failed", Kind: "generation_failed"})
		default:
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(chatError{Error: "internal error", Kind: "internal"})
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}
