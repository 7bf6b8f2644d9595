package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/askpdf/askpdf/internal/core"
	"github.com/askpdf/askpdf/internal/models"
)

type DocumentHandler struct {
	store  core.VectorStore
	object core.ObjectClient
	queue  core.JobQueue
	logger *slog.Logger
}

func NewDocumentHandler(store core.VectorStore, object core.ObjectClient, queue core.JobQueue) *DocumentHandler {
	return &DocumentHandler{
		store:  store,
		object: object,
		queue:  queue,
		logger: slog.Default().With("component", "document-handler"),
	}
}

// UploadDocument stores the uploaded file in object storage, records the
// document, and enqueues an ingestion job. Ingestion is asynchronous:
// the response returns as soon as the job is queued.
func (h *DocumentHandler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(50 << 20); err != nil {
		http.Error(w, "invalid multipart form", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "invalid file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	// Sanitize filename to prevent path traversal or invalid characters.
	cleanFilename := filepath.Base(header.Filename)
	docID := uuid.NewString()
	storageKey := fmt.Sprintf("documents/%s/%s", docID, cleanFilename)

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/pdf"
	}

	uploadCtx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()

	if _, err := h.object.UploadFile(uploadCtx, storageKey, file, contentType); err != nil {
		h.logger.Error("upload failed", "document", docID, "error", err)
		http.Error(w, "upload failed", http.StatusInternalServerError)
		return
	}

	doc := &models.Document{
		ID:          docID,
		FileName:    cleanFilename,
		StorageKey:  storageKey,
		SourceType:  "upload",
		ContentType: contentType,
		Status:      "uploaded",
	}
	if err := h.store.CreateDocument(uploadCtx, doc); err != nil {
		h.logger.Error("document insert failed", "document", docID, "error", err)
		http.Error(w, "failed to store document metadata", http.StatusInternalServerError)
		return
	}

	job := models.IngestionJob{
		DocumentID: docID,
		Source:     models.SourceLocator{StorageKey: storageKey},
	}
	if err := h.queue.Enqueue(r.Context(), job); err != nil {
		h.logger.Error("enqueue failed", "document", docID, "error", err)
		http.Error(w, "failed to queue document for processing", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(doc)
}

type IngestLocalRequest struct {
	DocumentID string `json:"document_id"`
	Path       string `json:"path"`
}

// IngestLocal enqueues an ingestion job for a file already on local
// disk, bypassing object storage.
func (h *DocumentHandler) IngestLocal(w http.ResponseWriter, r *http.Request) {
	var req IngestLocalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if req.Path == "" {
		http.Error(w, "path is required", http.StatusBadRequest)
		return
	}
	if req.DocumentID == "" {
		req.DocumentID = uuid.NewString()
	}

	doc := &models.Document{
		ID:          req.DocumentID,
		FileName:    filepath.Base(req.Path),
		SourceType:  "local",
		ContentType: "application/pdf",
		Status:      "uploaded",
	}
	if err := h.store.CreateDocument(r.Context(), doc); err != nil {
		h.logger.Error("document insert failed", "document", req.DocumentID, "error", err)
		http.Error(w, "failed to store document metadata", http.StatusInternalServerError)
		return
	}

	job := models.IngestionJob{
		DocumentID: req.DocumentID,
		Source:     models.SourceLocator{LocalPath: req.Path},
	}
	if err := h.queue.Enqueue(r.Context(), job); err != nil {
		h.logger.Error("enqueue failed", "document", req.DocumentID, "error", err)
		http.Error(w, "failed to queue document for processing", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(doc)
}

func (h *DocumentHandler) GetDocuments(w http.ResponseWriter, r *http.Request) {
	documents, err := h.store.ListDocuments(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(documents)
}
