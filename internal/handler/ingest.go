package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/moats-ai/moats-backend/internal/model"
	"github.com/moats-ai/moats-backend/internal/repository"
)

const maxIngestChars = 2_000_000

// DocumentCreator abstracts document row creation.
type DocumentCreator interface {
	Create(ctx context.Context, libraryID, title, sourceType string) (*model.Document, error)
	ListByLibrary(ctx context.Context, libraryID string) ([]model.Document, error)
}

// TextIngester abstracts the ingest pipeline.
type TextIngester interface {
	IngestText(ctx context.Context, libraryID, docID, text string) (int, error)
}

// IngestDeps bundles the ingest endpoint's collaborators.
type IngestDeps struct {
	Libraries LibraryFetcher
	Documents DocumentCreator
	Ingester  TextIngester
}

// IngestTextRequest is the request body for document text ingestion.
type IngestTextRequest struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

// IngestText adds a pre-extracted text document to a library and indexes it.
// POST /api/libraries/{id}/documents
func IngestText(deps IngestDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		libraryID := chi.URLParam(r, "id")
		if _, err := deps.Libraries.GetByID(r.Context(), libraryID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				respondError(w, http.StatusNotFound, "library not found")
				return
			}
			respondError(w, http.StatusInternalServerError, "failed to load library")
			return
		}

		var req IngestTextRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if strings.TrimSpace(req.Title) == "" || strings.TrimSpace(req.Text) == "" {
			respondError(w, http.StatusBadRequest, "title and text are required")
			return
		}
		if len(req.Text) > maxIngestChars {
			respondError(w, http.StatusBadRequest, "text exceeds maximum document size")
			return
		}

		doc, err := deps.Documents.Create(r.Context(), libraryID, req.Title, "text")
		if err != nil {
			slog.Error("failed to create document", "library_id", libraryID, "error", err)
			respondError(w, http.StatusInternalServerError, "failed to create document")
			return
		}

		chunkCount, err := deps.Ingester.IngestText(r.Context(), libraryID, doc.ID, req.Text)
		if err != nil {
			slog.Error("ingest failed", "document_id", doc.ID, "error", err)
			respondError(w, http.StatusInternalServerError, "failed to index document")
			return
		}
		doc.ChunkCount = chunkCount

		respondJSON(w, http.StatusOK, envelope{Success: true, Data: doc})
	}
}

// ListDocuments returns a library's documents.
// GET /api/libraries/{id}/documents
func ListDocuments(deps IngestDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		libraryID := chi.URLParam(r, "id")
		docs, err := deps.Documents.ListByLibrary(r.Context(), libraryID)
		if err != nil {
			slog.Error("failed to list documents", "library_id", libraryID, "error", err)
			respondError(w, http.StatusInternalServerError, "failed to list documents")
			return
		}
		if docs == nil {
			docs = []model.Document{}
		}

		respondJSON(w, http.StatusOK, envelope{Success: true, Data: docs})
	}
}
