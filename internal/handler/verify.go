package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/moats-ai/moats-backend/internal/cache"
	"github.com/moats-ai/moats-backend/internal/model"
	"github.com/moats-ai/moats-backend/internal/repository"
)

// Verifier abstracts the verification pipeline for testability.
type Verifier interface {
	Verify(ctx context.Context, text, libraryID string) (*model.VerificationResult, error)
}

// LibraryFetcher abstracts library lookup for the verify endpoint.
type LibraryFetcher interface {
	GetByID(ctx context.Context, id string) (*model.Library, error)
	GetActive(ctx context.Context) (*model.Library, error)
}

// VerificationStore abstracts verification persistence.
type VerificationStore interface {
	Save(ctx context.Context, libraryID, inputText string, result *model.VerificationResult) (string, error)
	GetByID(ctx context.Context, id string) (*model.Verification, error)
	History(ctx context.Context, libraryID string, limit int) ([]repository.VerificationSummary, error)
	Delete(ctx context.Context, id string) error
}

// VerifyDeps bundles the verify endpoint's collaborators.
type VerifyDeps struct {
	Pipeline      Verifier
	Libraries     LibraryFetcher
	Verifications VerificationStore
	ResultCache   *cache.VerificationCache // nil = caching disabled
}

// VerifyRequest is the request body for POST /api/verify.
type VerifyRequest struct {
	Text      string `json:"text"`
	LibraryID string `json:"libraryId,omitempty"`
}

// VerifyResponse is the response body for POST /api/verify.
type VerifyResponse struct {
	VerificationID string               `json:"verificationId"`
	TrustScore     float64              `json:"trustScore"`
	TotalClaims    int                  `json:"totalClaims"`
	Supported      int                  `json:"supported"`
	Partial        int                  `json:"partiallySupported"`
	Contradicted   int                  `json:"contradicted"`
	NoEvidence     int                  `json:"noEvidence"`
	Verdicts       []model.ClaimVerdict `json:"verdicts"`
}

// VerifyText runs the verification pipeline over the request text.
// POST /api/verify
func VerifyText(deps VerifyDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req VerifyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if strings.TrimSpace(req.Text) == "" {
			respondError(w, http.StatusBadRequest, "text is required")
			return
		}

		lib, status, errMsg := resolveLibrary(r.Context(), deps.Libraries, req.LibraryID)
		if errMsg != "" {
			respondError(w, status, errMsg)
			return
		}
		if lib.ChunkCount == 0 {
			respondError(w, http.StatusBadRequest, "library has no documents, add sources first")
			return
		}

		var cacheKey string
		if deps.ResultCache != nil {
			cacheKey = deps.ResultCache.Key(lib.ID, lib.ChunkCount, req.Text)
			if cached := deps.ResultCache.Get(r.Context(), cacheKey); cached != nil {
				slog.Info("verification served from cache", "library_id", lib.ID)
				writeVerifyResponse(r.Context(), w, deps, lib.ID, req.Text, cached)
				return
			}
		}

		result, err := deps.Pipeline.Verify(r.Context(), req.Text, lib.ID)
		if err != nil {
			if r.Context().Err() != nil {
				// Client went away; nothing to persist, nothing to answer.
				return
			}
			slog.Error("verification failed", "library_id", lib.ID, "error", err)
			respondError(w, http.StatusInternalServerError, "verification failed")
			return
		}

		if deps.ResultCache != nil {
			deps.ResultCache.Set(r.Context(), cacheKey, result)
		}

		writeVerifyResponse(r.Context(), w, deps, lib.ID, req.Text, result)
	}
}

func writeVerifyResponse(ctx context.Context, w http.ResponseWriter, deps VerifyDeps, libraryID, inputText string, result *model.VerificationResult) {
	id, err := deps.Verifications.Save(ctx, libraryID, inputText, result)
	if err != nil {
		slog.Error("failed to persist verification", "library_id", libraryID, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to store verification")
		return
	}

	respondJSON(w, http.StatusOK, envelope{Success: true, Data: VerifyResponse{
		VerificationID: id,
		TrustScore:     result.TrustScore,
		TotalClaims:    result.TotalClaims,
		Supported:      result.SupportedCount,
		Partial:        result.PartialCount,
		Contradicted:   result.ContradictedCount,
		NoEvidence:     result.NoEvidenceCount,
		Verdicts:       result.Claims,
	}})
}

// resolveLibrary picks the explicit library or falls back to the active one.
func resolveLibrary(ctx context.Context, libs LibraryFetcher, libraryID string) (*model.Library, int, string) {
	if libraryID == "" {
		lib, err := libs.GetActive(ctx)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, http.StatusBadRequest, "no active library, create a library first"
		}
		if err != nil {
			return nil, http.StatusInternalServerError, "failed to resolve active library"
		}
		return lib, 0, ""
	}

	lib, err := libs.GetByID(ctx, libraryID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, http.StatusNotFound, "library not found"
	}
	if err != nil {
		return nil, http.StatusInternalServerError, "failed to load library"
	}
	return lib, 0, ""
}

// VerificationHistory lists recent verifications.
// GET /api/verify/history?library_id=&limit=
func VerificationHistory(store VerificationStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 50
		if v := r.URL.Query().Get("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				limit = n
			}
		}

		history, err := store.History(r.Context(), r.URL.Query().Get("library_id"), limit)
		if err != nil {
			slog.Error("failed to list verification history", "error", err)
			respondError(w, http.StatusInternalServerError, "failed to list history")
			return
		}
		if history == nil {
			history = []repository.VerificationSummary{}
		}

		respondJSON(w, http.StatusOK, envelope{Success: true, Data: history})
	}
}

// GetVerification returns one stored verification with all verdicts.
// GET /api/verify/{id}
func GetVerification(store VerificationStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, err := store.GetByID(r.Context(), chi.URLParam(r, "id"))
		if errors.Is(err, repository.ErrNotFound) {
			respondError(w, http.StatusNotFound, "verification not found")
			return
		}
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to load verification")
			return
		}

		respondJSON(w, http.StatusOK, envelope{Success: true, Data: v})
	}
}

// ExportVerification returns a stored verification as a JSON download.
// GET /api/verify/{id}/export
func ExportVerification(store VerificationStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, err := store.GetByID(r.Context(), chi.URLParam(r, "id"))
		if errors.Is(err, repository.ErrNotFound) {
			respondError(w, http.StatusNotFound, "verification not found")
			return
		}
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to load verification")
			return
		}

		type export struct {
			model.Verification
			ExportedAt time.Time `json:"exportedAt"`
		}

		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=verification_%s.json", v.ID))
		respondJSON(w, http.StatusOK, export{Verification: *v, ExportedAt: time.Now().UTC()})
	}
}

// DeleteVerification removes a stored verification.
// DELETE /api/verify/{id} (also POST /api/verify/{id}/delete for clients
// that block DELETE)
func DeleteVerification(store VerificationStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		err := store.Delete(r.Context(), id)
		if errors.Is(err, repository.ErrNotFound) {
			respondError(w, http.StatusNotFound, "verification not found")
			return
		}
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to delete verification")
			return
		}

		respondJSON(w, http.StatusOK, envelope{Success: true, Data: map[string]string{"status": "deleted", "id": id}})
	}
}
