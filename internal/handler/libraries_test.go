package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/moats-ai/moats-backend/internal/model"
)

func newLibraryRouter(store LibraryStore, ingest IngestDeps) *chi.Mux {
	r := chi.NewRouter()
	r.Get("/api/libraries", ListLibraries(store))
	r.Post("/api/libraries", CreateLibrary(store))
	r.Get("/api/libraries/{id}", GetLibrary(store))
	r.Post("/api/libraries/{id}/activate", ActivateLibrary(store))
	r.Delete("/api/libraries/{id}", DeleteLibrary(store))
	r.Post("/api/libraries/{id}/documents", IngestText(ingest))
	return r
}

func TestCreateLibrary(t *testing.T) {
	libs := newFakeLibraries()
	r := newLibraryRouter(libs, IngestDeps{})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/libraries",
		bytes.NewBufferString(`{"name":"Reports","description":"Annual reports"}`)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Success bool          `json:"success"`
		Data    model.Library `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Data.Name != "Reports" {
		t.Errorf("name = %q", resp.Data.Name)
	}
	if !resp.Data.IsActive {
		t.Error("first library should auto-activate")
	}
}

func TestCreateLibrary_NameRequired(t *testing.T) {
	r := newLibraryRouter(newFakeLibraries(), IngestDeps{})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/libraries", bytes.NewBufferString(`{"name":"  "}`)))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestGetLibrary_NotFound(t *testing.T) {
	r := newLibraryRouter(newFakeLibraries(), IngestDeps{})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/libraries/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestActivateLibrary(t *testing.T) {
	libs := newFakeLibraries()
	libs.add(&model.Library{ID: "lib-1", IsActive: true})
	libs.add(&model.Library{ID: "lib-2"})

	r := newLibraryRouter(libs, IngestDeps{})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/libraries/lib-2/activate", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if libs.active != "lib-2" {
		t.Errorf("active = %q, want lib-2", libs.active)
	}
}

// fakeDocuments implements DocumentCreator.
type fakeDocuments struct {
	docs []*model.Document
}

func (f *fakeDocuments) Create(ctx context.Context, libraryID, title, sourceType string) (*model.Document, error) {
	doc := &model.Document{ID: "doc-1", LibraryID: libraryID, Title: title, SourceType: sourceType}
	f.docs = append(f.docs, doc)
	return doc, nil
}

func (f *fakeDocuments) ListByLibrary(ctx context.Context, libraryID string) ([]model.Document, error) {
	var out []model.Document
	for _, d := range f.docs {
		if d.LibraryID == libraryID {
			out = append(out, *d)
		}
	}
	return out, nil
}

// fakeIngester implements TextIngester.
type fakeIngester struct {
	chunkCount int
	lastText   string
}

func (f *fakeIngester) IngestText(ctx context.Context, libraryID, docID, text string) (int, error) {
	f.lastText = text
	return f.chunkCount, nil
}

func TestIngestText(t *testing.T) {
	libs := newFakeLibraries()
	libs.add(&model.Library{ID: "lib-1", ChunkCount: 0})
	docs := &fakeDocuments{}
	ingester := &fakeIngester{chunkCount: 4}

	r := newLibraryRouter(libs, IngestDeps{Libraries: libs, Documents: docs, Ingester: ingester})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/libraries/lib-1/documents",
		bytes.NewBufferString(`{"title":"Q3 Financials","text":"Revenue reached $5.1M in Q3 2024."}`)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Data model.Document `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Data.ChunkCount != 4 {
		t.Errorf("chunk count = %d, want 4", resp.Data.ChunkCount)
	}
	if len(docs.docs) != 1 {
		t.Errorf("documents created = %d, want 1", len(docs.docs))
	}
}

func TestIngestText_Validation(t *testing.T) {
	libs := newFakeLibraries()
	libs.add(&model.Library{ID: "lib-1"})
	deps := IngestDeps{Libraries: libs, Documents: &fakeDocuments{}, Ingester: &fakeIngester{}}
	r := newLibraryRouter(libs, deps)

	tests := []struct {
		name       string
		url        string
		body       string
		wantStatus int
	}{
		{"unknown library", "/api/libraries/nope/documents", `{"title":"t","text":"x"}`, http.StatusNotFound},
		{"missing title", "/api/libraries/lib-1/documents", `{"text":"x"}`, http.StatusBadRequest},
		{"missing text", "/api/libraries/lib-1/documents", `{"title":"t"}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, tt.url, bytes.NewBufferString(tt.body)))
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}
