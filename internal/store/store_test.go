package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dgallion1/paperidx/internal/doctree"
	"github.com/dgallion1/paperidx/internal/embed"
)

type failingEmbedder struct {
	embed.Embedder
	failAfter int32
	calls     atomic.Int32
}

func (f *failingEmbedder) Embed(ctx context.Context, text, taskType string) ([]float32, error) {
	if f.calls.Add(1) > f.failAfter {
		return nil, errors.New("provider down")
	}
	return f.Embedder.Embed(ctx, text, taskType)
}

type shortEmbedder struct{ embed.Embedder }

func (s shortEmbedder) Embed(ctx context.Context, text, taskType string) ([]float32, error) {
	return []float32{1, 2}, nil
}

func seedChunks(n int, cat doctree.Category, section string) []doctree.Chunk {
	out := make([]doctree.Chunk, n)
	for i := range out {
		out[i] = doctree.Chunk{
			ChunkIndex:   int64(100 + i), // renumbered on insert
			Text:         fmt.Sprintf("%s chunk %d", section, i),
			SectionTitle: section,
			Category:     cat,
			PageNumber:   i + 1,
		}
	}
	return out
}

func TestPrompts(t *testing.T) {
	require.Equal(t, "Title: T\nAbstract: A", DocumentPrompt("T", "A"))
	require.Equal(t, "Title: T\nSection: S\nContent: C", ChunkPrompt("T", "S", "C"))
	require.Equal(t, "text", ChunkContent(doctree.Chunk{Text: "text"}))
	require.Equal(t, "ctx\n\ntext", ChunkContent(doctree.Chunk{Text: "text", ContextPrefix: "ctx"}))
}

func TestBatches(t *testing.T) {
	require.Equal(t, [][2]int{{0, 100}, {100, 200}, {200, 250}}, Batches(250, 100))
	require.Empty(t, Batches(0, 100))
}

func TestMemory_InsertChunksRenumbersAndStamps(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(embed.NewHash(32))

	require.NoError(t, m.InsertChunks(ctx, "doc-1", "Paper", seedChunks(250, doctree.CategoryMethod, "Design")))

	chunks := m.Chunks("doc-1")
	require.Len(t, chunks, 250)
	for i, c := range chunks {
		require.Equal(t, int64(i), c.ChunkIndex)
		require.Equal(t, "doc-1", c.DocID)
		require.Equal(t, "Paper", c.Title)
		require.Len(t, c.Embedding, 32)
	}

	ok, err := m.CheckChunksExist(ctx, "doc-1")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestMemory_FailedEmbeddingWritesNothing(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(&failingEmbedder{Embedder: embed.NewHash(16), failAfter: 5})

	err := m.InsertChunks(ctx, "doc-1", "Paper", seedChunks(10, doctree.CategoryOther, "Body"))
	require.Error(t, err)

	ok, err := m.CheckChunksExist(ctx, "doc-1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemory_CancelledInsertWritesNothing(t *testing.T) {
	m := NewMemory(embed.NewHash(16))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, m.InsertChunks(ctx, "doc-1", "Paper", seedChunks(3, doctree.CategoryOther, "Body")), context.Canceled)
	require.Empty(t, m.Chunks("doc-1"))
}

func TestMemory_DimensionMismatch(t *testing.T) {
	m := NewMemory(shortEmbedder{embed.NewHash(8)})
	err := m.InsertDocument(context.Background(), doctree.DocumentRecord{DocID: "d", Title: "t"})
	require.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestMemory_DocumentMetadata(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(embed.NewHash(16))

	rec, err := m.GetDocumentMetadata(ctx, "missing")
	require.NoError(t, err)
	require.Nil(t, rec)

	require.NoError(t, m.InsertDocument(ctx, doctree.DocumentRecord{
		DocID: "d1", Title: "Paged Enclaves", Abstract: "We page.", PDFURL: "https://x/p.pdf",
		ConferenceName: "USENIX Security", ConferenceYear: 2024, ConferenceRound: "Fall",
	}))
	// Re-registering the same document succeeds.
	require.NoError(t, m.InsertDocument(ctx, doctree.DocumentRecord{DocID: "d1", Title: "Paged Enclaves", Abstract: "We page."}))

	rec, err = m.GetDocumentMetadata(ctx, "d1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.Equal(t, "Paged Enclaves", rec.Title)
	require.False(t, rec.CreatedAt.IsZero())

	// Abstract records are not chunks.
	ok, err := m.CheckChunksExist(ctx, "d1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemory_SearchAbstracts(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(embed.NewHash(256))

	require.NoError(t, m.InsertDocument(ctx, doctree.DocumentRecord{DocID: "enclave", Title: "Oblivious enclave paging", Abstract: "Side channel attacks on enclave page tables."}))
	require.NoError(t, m.InsertDocument(ctx, doctree.DocumentRecord{DocID: "vision", Title: "Image segmentation", Abstract: "Convolutional networks segment images."}))

	hits, err := m.SearchAbstracts(ctx, "enclave page table attacks", 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, "enclave", hits[0].Chunk.DocID)
	require.Equal(t, doctree.DocumentChunkIndex, hits[0].Chunk.ChunkIndex)
	require.Equal(t, doctree.CategoryAbstract, hits[0].Chunk.Category)
}

func TestMemory_SearchBySectionFilters(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(embed.NewHash(128))

	require.NoError(t, m.InsertChunks(ctx, "a", "A", append(
		seedChunks(3, doctree.CategoryMethod, "Design"),
		seedChunks(2, doctree.CategoryEvaluation, "Evaluation")...)))
	require.NoError(t, m.InsertChunks(ctx, "b", "B", seedChunks(4, doctree.CategoryMethod, "Design")))
	require.NoError(t, m.InsertChunks(ctx, "c", "C", seedChunks(4, doctree.CategoryMethod, "Design")))

	method := doctree.CategoryMethod
	hits, err := m.SearchBySection(ctx, SectionQuery{Query: "design chunk", Category: &method, K: 50})
	require.NoError(t, err)
	require.Len(t, hits, 11)
	for _, h := range hits {
		require.Equal(t, doctree.CategoryMethod, h.Chunk.Category)
	}

	// Two doc ids take the fan-out path.
	hits, err = m.SearchBySection(ctx, SectionQuery{Query: "chunk", DocIDs: []string{"a", "b"}, K: 50})
	require.NoError(t, err)
	require.Len(t, hits, 9)
	for i, h := range hits {
		require.Contains(t, []string{"a", "b"}, h.Chunk.DocID)
		if i > 0 {
			require.GreaterOrEqual(t, hits[i-1].Score, h.Score)
		}
	}

	hits, err = m.SearchBySection(ctx, SectionQuery{Query: "chunk", DocIDs: []string{"c"}, K: 2})
	require.NoError(t, err)
	require.Len(t, hits, 2)
}

func TestFanOut_PropagatesErrors(t *testing.T) {
	q := SectionQuery{DocIDs: []string{"a", "b", "c"}, K: 5}
	_, err := FanOut(context.Background(), q, func(ctx context.Context, sub SectionQuery) ([]Hit, error) {
		if sub.DocIDs[0] == "b" {
			return nil, errors.New("backend unavailable")
		}
		return []Hit{{Chunk: doctree.Chunk{DocID: sub.DocIDs[0]}}}, nil
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "search b")
}

func TestFanOut_MergesByScore(t *testing.T) {
	scores := map[string][]float64{"a": {0.9, 0.2}, "b": {0.5}, "c": {0.7, 0.6}}
	q := SectionQuery{DocIDs: []string{"a", "b", "c"}, K: 3}
	hits, err := FanOut(context.Background(), q, func(ctx context.Context, sub SectionQuery) ([]Hit, error) {
		var out []Hit
		for i, s := range scores[sub.DocIDs[0]] {
			out = append(out, Hit{Chunk: doctree.Chunk{DocID: sub.DocIDs[0], ChunkIndex: int64(i)}, Score: s})
		}
		return out, nil
	})
	require.NoError(t, err)
	require.Len(t, hits, 3)
	require.Equal(t, []float64{0.9, 0.7, 0.6}, []float64{hits[0].Score, hits[1].Score, hits[2].Score})
}

func TestMemory_ContextWindow(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(embed.NewHash(16))
	require.NoError(t, m.InsertChunks(ctx, "d", "D", seedChunks(6, doctree.CategoryOther, "S")))

	text, err := m.GetContextWindow(ctx, "d", 2, 1)
	require.NoError(t, err)
	require.Equal(t, "S chunk 1\n\nS chunk 2\n\nS chunk 3", text)

	text, err = m.GetContextWindow(ctx, "d", 0, 2)
	require.NoError(t, err)
	require.Equal(t, 3, strings.Count(text, "S chunk"))
}

func TestMemory_DeleteChunksAndConference(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(embed.NewHash(16))
	require.NoError(t, m.InsertDocument(ctx, doctree.DocumentRecord{DocID: "d", ConferenceName: "NDSS", ConferenceYear: 2025}))
	require.NoError(t, m.InsertChunks(ctx, "d", "D", seedChunks(2, doctree.CategoryOther, "S")))

	require.NoError(t, m.DeleteChunks(ctx, "d"))
	ok, _ := m.CheckChunksExist(ctx, "d")
	require.False(t, ok)
	rec, _ := m.GetDocumentMetadata(ctx, "d")
	require.NotNil(t, rec, "deleting chunks keeps the paper record")

	ok, err := m.ConferenceExists(ctx, "ndss", 2025, "")
	require.NoError(t, err)
	require.True(t, ok)
	ok, _ = m.ConferenceExists(ctx, "NDSS", 2024, "")
	require.False(t, ok)
}

func TestCosine(t *testing.T) {
	require.InDelta(t, 1.0, Cosine([]float32{1, 2}, []float32{2, 4}), 1e-9)
	require.InDelta(t, 0.0, Cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	require.Zero(t, Cosine([]float32{0, 0}, []float32{1, 1}))
	require.Zero(t, Cosine([]float32{1}, []float32{1, 1}))
}
