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

// LibraryStore abstracts library persistence for the handlers.
type LibraryStore interface {
	Create(ctx context.Context, name, description string) (*model.Library, error)
	GetByID(ctx context.Context, id string) (*model.Library, error)
	List(ctx context.Context) ([]model.Library, error)
	Update(ctx context.Context, id, name, description string) (*model.Library, error)
	Activate(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}

// LibraryRequest is the request body for library create/update.
type LibraryRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// CreateLibrary creates a new library.
// POST /api/libraries
func CreateLibrary(store LibraryStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LibraryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if strings.TrimSpace(req.Name) == "" {
			respondError(w, http.StatusBadRequest, "name is required")
			return
		}

		lib, err := store.Create(r.Context(), req.Name, req.Description)
		if err != nil {
			slog.Error("failed to create library", "error", err)
			respondError(w, http.StatusInternalServerError, "failed to create library")
			return
		}

		respondJSON(w, http.StatusOK, envelope{Success: true, Data: lib})
	}
}

// ListLibraries returns all libraries.
// GET /api/libraries
func ListLibraries(store LibraryStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		libs, err := store.List(r.Context())
		if err != nil {
			slog.Error("failed to list libraries", "error", err)
			respondError(w, http.StatusInternalServerError, "failed to list libraries")
			return
		}
		if libs == nil {
			libs = []model.Library{}
		}

		respondJSON(w, http.StatusOK, envelope{Success: true, Data: libs})
	}
}

// GetLibrary returns one library.
// GET /api/libraries/{id}
func GetLibrary(store LibraryStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lib, err := store.GetByID(r.Context(), chi.URLParam(r, "id"))
		if errors.Is(err, repository.ErrNotFound) {
			respondError(w, http.StatusNotFound, "library not found")
			return
		}
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to load library")
			return
		}

		respondJSON(w, http.StatusOK, envelope{Success: true, Data: lib})
	}
}

// UpdateLibrary changes a library's name or description.
// PUT /api/libraries/{id}
func UpdateLibrary(store LibraryStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LibraryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		lib, err := store.Update(r.Context(), chi.URLParam(r, "id"), req.Name, req.Description)
		if errors.Is(err, repository.ErrNotFound) {
			respondError(w, http.StatusNotFound, "library not found")
			return
		}
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to update library")
			return
		}

		respondJSON(w, http.StatusOK, envelope{Success: true, Data: lib})
	}
}

// ActivateLibrary marks a library as the default verification target.
// POST /api/libraries/{id}/activate
func ActivateLibrary(store LibraryStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		err := store.Activate(r.Context(), id)
		if errors.Is(err, repository.ErrNotFound) {
			respondError(w, http.StatusNotFound, "library not found")
			return
		}
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to activate library")
			return
		}

		respondJSON(w, http.StatusOK, envelope{Success: true, Data: map[string]string{"status": "activated", "id": id}})
	}
}

// DeleteLibrary removes a library and everything under it.
// DELETE /api/libraries/{id}
func DeleteLibrary(store LibraryStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		err := store.Delete(r.Context(), id)
		if errors.Is(err, repository.ErrNotFound) {
			respondError(w, http.StatusNotFound, "library not found")
			return
		}
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to delete library")
			return
		}

		respondJSON(w, http.StatusOK, envelope{Success: true, Data: map[string]string{"status": "deleted", "id": id}})
	}
}
