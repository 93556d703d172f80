package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// DocumentStore abstracts the document metadata operations the ingest
// pipeline needs.
type DocumentStore interface {
	UpdateChunkCount(ctx context.Context, docID string, count int) error
}

// LibraryCounter abstracts library-level counters.
type LibraryCounter interface {
	AddCounts(ctx context.Context, libraryID string, docDelta, chunkDelta int) error
}

// DocumentEmbedder abstracts chunk embedding and storage for ingest.
type DocumentEmbedder interface {
	EmbedAndStore(ctx context.Context, chunks []Chunk) error
}

// IngestPipeline turns pre-extracted document text into embedded, searchable
// chunks: chunk → embed → store → update counts.
type IngestPipeline struct {
	chunker  *Chunker
	embedder DocumentEmbedder
	docs     DocumentStore
	libs     LibraryCounter

	mu         sync.Mutex
	processing map[string]bool
}

// NewIngestPipeline creates an IngestPipeline.
func NewIngestPipeline(chunker *Chunker, embedder DocumentEmbedder, docs DocumentStore, libs LibraryCounter) *IngestPipeline {
	return &IngestPipeline{
		chunker:    chunker,
		embedder:   embedder,
		docs:       docs,
		libs:       libs,
		processing: make(map[string]bool),
	}
}

// IngestText ingests one document's text into a library. Returns the number
// of chunks stored. Concurrent ingestion of the same document is rejected.
func (p *IngestPipeline) IngestText(ctx context.Context, libraryID, docID, text string) (int, error) {
	p.mu.Lock()
	if p.processing[docID] {
		p.mu.Unlock()
		return 0, fmt.Errorf("document %s is already being processed", docID)
	}
	p.processing[docID] = true
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		delete(p.processing, docID)
		p.mu.Unlock()
	}()

	slog.Info("ingest starting", "document_id", docID, "library_id", libraryID, "chars", len(text))

	chunks, err := p.chunker.Chunk(ctx, text, docID)
	if err != nil {
		return 0, fmt.Errorf("service.IngestText: chunk: %w", err)
	}
	slog.Info("ingest chunks created", "document_id", docID, "chunk_count", len(chunks))

	if err := p.embedder.EmbedAndStore(ctx, chunks); err != nil {
		return 0, fmt.Errorf("service.IngestText: embed: %w", err)
	}

	if err := p.docs.UpdateChunkCount(ctx, docID, len(chunks)); err != nil {
		return 0, fmt.Errorf("service.IngestText: update chunk count: %w", err)
	}
	if err := p.libs.AddCounts(ctx, libraryID, 1, len(chunks)); err != nil {
		return 0, fmt.Errorf("service.IngestText: update library counts: %w", err)
	}

	slog.Info("ingest completed", "document_id", docID, "chunk_count", len(chunks))
	return len(chunks), nil
}
