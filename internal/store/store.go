// Package store persists papers and their chunks in a vector index and
// serves structure-aware retrieval over them.
package store

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/dgallion1/paperidx/internal/doctree"
	"github.com/dgallion1/paperidx/internal/embed"
)

const (
	// BatchSize bounds the rows written per insert statement.
	BatchSize = 100
	// FanOutLimit is the largest doc-id filter searched per document.
	FanOutLimit = 5
	// DefaultK is used when a query asks for no particular result count.
	DefaultK = 10
)

// ErrDimensionMismatch is returned when an embedding does not have the
// dimension the store was opened with.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Hit is a search result. Score is cosine similarity, higher is closer.
type Hit struct {
	Chunk doctree.Chunk `json:"chunk"`
	Score float64       `json:"score"`
}

// SectionQuery filters a chunk search. Empty DocIDs and a nil Category mean
// no filter on that field.
type SectionQuery struct {
	Query    string
	DocIDs   []string
	Category *doctree.Category
	K        int
}

// Store is implemented by every chunk store backend.
type Store interface {
	InsertDocument(ctx context.Context, rec doctree.DocumentRecord) error
	InsertChunks(ctx context.Context, docID, title string, chunks []doctree.Chunk) error
	SearchAbstracts(ctx context.Context, query string, k int) ([]Hit, error)
	SearchBySection(ctx context.Context, q SectionQuery) ([]Hit, error)
	GetContextWindow(ctx context.Context, docID string, center int64, window int) (string, error)
	CheckChunksExist(ctx context.Context, docID string) (bool, error)
	GetDocumentMetadata(ctx context.Context, docID string) (*doctree.DocumentRecord, error)
	DeleteChunks(ctx context.Context, docID string) error
	ConferenceExists(ctx context.Context, name string, year int, round string) (bool, error)
	Close() error
}

// DocumentPrompt is the text embedded for a paper-level record.
func DocumentPrompt(title, abstract string) string {
	return "Title: " + title + "\nAbstract: " + abstract
}

// ChunkPrompt is the text embedded for a chunk.
func ChunkPrompt(title, section, content string) string {
	return "Title: " + title + "\nSection: " + section + "\nContent: " + content
}

// ChunkContent is the chunk text as embedded, with its context prefix when
// one was generated.
func ChunkContent(c doctree.Chunk) string {
	if c.ContextPrefix == "" {
		return c.Text
	}
	return c.ContextPrefix + "\n\n" + c.Text
}

// EmbedDocument embeds a paper-level record.
func EmbedDocument(ctx context.Context, e embed.Embedder, rec doctree.DocumentRecord) ([]float32, error) {
	vec, err := e.Embed(ctx, DocumentPrompt(rec.Title, rec.Abstract), embed.TaskDocument)
	if err != nil {
		return nil, fmt.Errorf("embed document %s: %w", rec.DocID, err)
	}
	if err := checkDim(vec, e.Dimension()); err != nil {
		return nil, err
	}
	return vec, nil
}

// PrepareChunks returns a copy of chunks numbered 0..n-1 in input order,
// stamped with docID and title and carrying their embeddings. Every chunk is
// embedded before the caller writes anything.
func PrepareChunks(ctx context.Context, e embed.Embedder, docID, title string, chunks []doctree.Chunk) ([]doctree.Chunk, error) {
	out := make([]doctree.Chunk, len(chunks))
	for i, c := range chunks {
		c.DocID = docID
		c.Title = title
		c.ChunkIndex = int64(i)
		vec, err := e.Embed(ctx, ChunkPrompt(title, c.SectionTitle, ChunkContent(c)), embed.TaskDocument)
		if err != nil {
			return nil, fmt.Errorf("embed chunk %d of %s: %w", i, docID, err)
		}
		if err := checkDim(vec, e.Dimension()); err != nil {
			return nil, err
		}
		c.Embedding = vec
		out[i] = c
	}
	return out, nil
}

// EmbedQuery embeds a search query.
func EmbedQuery(ctx context.Context, e embed.Embedder, query string) ([]float32, error) {
	vec, err := e.Embed(ctx, query, embed.TaskQuery)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if err := checkDim(vec, e.Dimension()); err != nil {
		return nil, err
	}
	return vec, nil
}

func checkDim(vec []float32, dim int) error {
	if dim > 0 && len(vec) != dim {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vec), dim)
	}
	return nil
}

// Batches splits n rows into [start, end) ranges of at most size rows.
func Batches(n, size int) [][2]int {
	if size <= 0 {
		size = BatchSize
	}
	var out [][2]int
	for start := 0; start < n; start += size {
		out = append(out, [2]int{start, min(start+size, n)})
	}
	return out
}

// FanOut runs one single-document search per doc id concurrently and merges
// the results by score. It is used when a query names a few documents, so
// that each one contributes its own top matches.
func FanOut(ctx context.Context, q SectionQuery, search func(context.Context, SectionQuery) ([]Hit, error)) ([]Hit, error) {
	results := make([][]Hit, len(q.DocIDs))
	g, gctx := errgroup.WithContext(ctx)
	for i, id := range q.DocIDs {
		sub := q
		sub.DocIDs = []string{id}
		g.Go(func() error {
			hits, err := search(gctx, sub)
			if err != nil {
				return fmt.Errorf("search %s: %w", id, err)
			}
			results[i] = hits
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var merged []Hit
	for _, hits := range results {
		merged = append(merged, hits...)
	}
	return TopK(merged, q.K), nil
}

// ShouldFanOut reports whether q names a small set of documents.
func ShouldFanOut(q SectionQuery) bool {
	return len(q.DocIDs) >= 2 && len(q.DocIDs) <= FanOutLimit
}

// TopK sorts hits by descending score, breaking ties by doc id and chunk
// index, and keeps the first k.
func TopK(hits []Hit, k int) []Hit {
	if k <= 0 {
		k = DefaultK
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		if hits[i].Chunk.DocID != hits[j].Chunk.DocID {
			return hits[i].Chunk.DocID < hits[j].Chunk.DocID
		}
		return hits[i].Chunk.ChunkIndex < hits[j].Chunk.ChunkIndex
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

// Cosine returns the cosine similarity of a and b, or 0 when either is a
// zero vector or the lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// JoinWindow concatenates chunk texts in index order with blank lines.
func JoinWindow(chunks []doctree.Chunk) string {
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].ChunkIndex < chunks[j].ChunkIndex })
	texts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		texts = append(texts, c.Text)
	}
	return strings.Join(texts, "\n\n")
}

// WindowBounds returns the inclusive chunk index range around center,
// clamped at 0.
func WindowBounds(center int64, window int) (int64, int64) {
	if window < 0 {
		window = 0
	}
	lo := center - int64(window)
	if lo < 0 {
		lo = 0
	}
	return lo, center + int64(window)
}
