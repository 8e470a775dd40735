package store

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/dgallion1/paperidx/internal/doctree"
	"github.com/dgallion1/paperidx/internal/embed"
)

type memoryDoc struct {
	rec       doctree.DocumentRecord
	embedding []float32
}

// Memory is an in-process Store with brute-force cosine search. It backs
// tests and dry runs of the CLI.
type Memory struct {
	embedder embed.Embedder

	mu     sync.RWMutex
	docs   map[string]memoryDoc
	chunks map[string][]doctree.Chunk
}

var _ Store = (*Memory)(nil)

func NewMemory(e embed.Embedder) *Memory {
	return &Memory{
		embedder: e,
		docs:     make(map[string]memoryDoc),
		chunks:   make(map[string][]doctree.Chunk),
	}
}

func (m *Memory) InsertDocument(ctx context.Context, rec doctree.DocumentRecord) error {
	vec, err := EmbedDocument(ctx, m.embedder, rec)
	if err != nil {
		return err
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[rec.DocID] = memoryDoc{rec: rec, embedding: vec}
	return nil
}

// InsertChunks embeds every chunk before taking the lock, so a failed
// embedding leaves the document untouched.
func (m *Memory) InsertChunks(ctx context.Context, docID, title string, chunks []doctree.Chunk) error {
	prepared, err := PrepareChunks(ctx, m.embedder, docID, title, chunks)
	if err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunks[docID] = append(m.chunks[docID], prepared...)
	return nil
}

func (m *Memory) SearchAbstracts(ctx context.Context, query string, k int) ([]Hit, error) {
	qvec, err := EmbedQuery(ctx, m.embedder, query)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	hits := make([]Hit, 0, len(m.docs))
	for _, d := range m.docs {
		hits = append(hits, Hit{Chunk: DocumentChunk(d.rec), Score: Cosine(qvec, d.embedding)})
	}
	return TopK(hits, k), nil
}

func (m *Memory) SearchBySection(ctx context.Context, q SectionQuery) ([]Hit, error) {
	if ShouldFanOut(q) {
		return FanOut(ctx, q, m.searchSections)
	}
	return m.searchSections(ctx, q)
}

func (m *Memory) searchSections(ctx context.Context, q SectionQuery) ([]Hit, error) {
	qvec, err := EmbedQuery(ctx, m.embedder, q.Query)
	if err != nil {
		return nil, err
	}

	ids := q.DocIDs
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(ids) == 0 {
		for id := range m.chunks {
			ids = append(ids, id)
		}
	}

	var hits []Hit
	for _, id := range ids {
		for _, c := range m.chunks[id] {
			if c.ChunkIndex < 0 {
				continue
			}
			if q.Category != nil && c.Category != *q.Category {
				continue
			}
			hits = append(hits, Hit{Chunk: c, Score: Cosine(qvec, c.Embedding)})
		}
	}
	return TopK(hits, q.K), nil
}

func (m *Memory) GetContextWindow(ctx context.Context, docID string, center int64, window int) (string, error) {
	lo, hi := WindowBounds(center, window)

	m.mu.RLock()
	defer m.mu.RUnlock()

	var picked []doctree.Chunk
	for _, c := range m.chunks[docID] {
		if c.ChunkIndex >= lo && c.ChunkIndex <= hi {
			picked = append(picked, c)
		}
	}
	return JoinWindow(picked), nil
}

func (m *Memory) CheckChunksExist(ctx context.Context, docID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.chunks[docID]) > 0, nil
}

func (m *Memory) GetDocumentMetadata(ctx context.Context, docID string) (*doctree.DocumentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.docs[docID]
	if !ok {
		return nil, nil
	}
	rec := d.rec
	return &rec, nil
}

func (m *Memory) DeleteChunks(ctx context.Context, docID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.chunks, docID)
	return nil
}

func (m *Memory) ConferenceExists(ctx context.Context, name string, year int, round string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, d := range m.docs {
		if strings.EqualFold(d.rec.ConferenceName, name) && d.rec.ConferenceYear == year &&
			(round == "" || strings.EqualFold(d.rec.ConferenceRound, round)) {
			return true, nil
		}
	}
	return false, nil
}

// Chunks returns a copy of the stored chunks of docID in index order.
func (m *Memory) Chunks(docID string) []doctree.Chunk {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]doctree.Chunk, len(m.chunks[docID]))
	copy(out, m.chunks[docID])
	return out
}

func (m *Memory) Close() error { return nil }

// DocumentChunk renders a paper-level record as the chunk-shaped row that
// abstract searches return.
func DocumentChunk(rec doctree.DocumentRecord) doctree.Chunk {
	return doctree.Chunk{
		DocID:        rec.DocID,
		ChunkIndex:   doctree.DocumentChunkIndex,
		Text:         rec.Abstract,
		Title:        rec.Title,
		SectionTitle: "Abstract",
		Category:     doctree.CategoryAbstract,
	}
}
