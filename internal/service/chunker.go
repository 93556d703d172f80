package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Chunk is one piece of ingested document text, ready for embedding.
type Chunk struct {
	Content     string
	ContentHash string
	TokenCount  int
	Index       int
	DocumentID  string
	StartPage   *int
}

// Chunker splits document text into overlapping chunks sized for the
// embedding model.
type Chunker struct {
	chunkSize  int     // target tokens per chunk
	overlapPct float64 // fraction of the previous chunk carried forward
}

// NewChunker creates a Chunker with the given parameters. Out-of-range
// values fall back to 512 tokens with 15% overlap.
func NewChunker(chunkSize int, overlapPct float64) *Chunker {
	if chunkSize <= 0 {
		chunkSize = 512
	}
	if overlapPct <= 0 || overlapPct >= 1 {
		overlapPct = 0.15
	}
	return &Chunker{
		chunkSize:  chunkSize,
		overlapPct: overlapPct,
	}
}

// Chunk splits text into overlapping chunks with content hashes.
func (c *Chunker) Chunk(ctx context.Context, text, docID string) ([]Chunk, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("service.Chunk: text is empty")
	}

	paragraphs := splitParagraphs(text)
	if len(paragraphs) == 0 {
		return nil, fmt.Errorf("service.Chunk: no content after splitting")
	}

	segments := c.mergeParagraphs(paragraphs)
	overlapped := c.applyOverlap(segments)

	chunks := make([]Chunk, 0, len(overlapped))
	for _, seg := range overlapped {
		content := strings.TrimSpace(seg)
		if content == "" {
			continue
		}
		chunks = append(chunks, Chunk{
			Content:     content,
			ContentHash: contentHash(content),
			TokenCount:  estimateTokens(content),
			Index:       len(chunks),
			DocumentID:  docID,
		})
	}

	return chunks, nil
}

// mergeParagraphs packs paragraphs into segments up to the chunk size,
// splitting any single paragraph that exceeds it on sentence boundaries.
func (c *Chunker) mergeParagraphs(paragraphs []string) []string {
	var segments []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			segments = append(segments, current.String())
			current.Reset()
		}
	}

	for _, para := range paragraphs {
		paraTokens := estimateTokens(para)

		if paraTokens > c.chunkSize {
			flush()
			for _, piece := range splitOversized(para, c.chunkSize) {
				segments = append(segments, piece)
			}
			continue
		}

		if current.Len() > 0 && estimateTokens(current.String())+paraTokens > c.chunkSize {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(para)
	}
	flush()

	return segments
}

// applyOverlap prepends the tail of each segment to its successor so that
// facts straddling a boundary stay retrievable.
func (c *Chunker) applyOverlap(segments []string) []string {
	if len(segments) <= 1 {
		return segments
	}

	out := make([]string, len(segments))
	out[0] = segments[0]
	for i := 1; i < len(segments); i++ {
		tail := tailWords(segments[i-1], int(float64(c.chunkSize)*c.overlapPct))
		if tail != "" {
			out[i] = tail + "\n" + segments[i]
		} else {
			out[i] = segments[i]
		}
	}
	return out
}

// splitOversized breaks a paragraph into pieces of at most maxTokens,
// preferring sentence boundaries.
func splitOversized(para string, maxTokens int) []string {
	var pieces []string
	var current strings.Builder

	for _, sentence := range splitSentences(para) {
		sentence = strings.TrimSpace(sentence)
		if sentence == "" {
			continue
		}
		if current.Len() > 0 && estimateTokens(current.String())+estimateTokens(sentence) > maxTokens {
			pieces = append(pieces, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(sentence)
	}
	if current.Len() > 0 {
		pieces = append(pieces, current.String())
	}
	return pieces
}

func splitParagraphs(text string) []string {
	var out []string
	for _, p := range strings.Split(text, "\n\n") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// tailWords returns roughly the last n tokens of text.
func tailWords(text string, n int) string {
	if n <= 0 {
		return ""
	}
	words := strings.Fields(text)
	if len(words) <= n {
		return text
	}
	return strings.Join(words[len(words)-n:], " ")
}

// estimateTokens approximates token count as words × 4/3, the usual
// English word-to-token ratio.
func estimateTokens(text string) int {
	words := len(strings.Fields(text))
	return words * 4 / 3
}

func contentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
