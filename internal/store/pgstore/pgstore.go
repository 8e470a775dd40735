package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/didi/gendry/builder"
	"github.com/jmoiron/sqlx"
	"github.com/pgvector/pgvector-go"

	"github.com/dgallion1/paperidx/internal/doctree"
	"github.com/dgallion1/paperidx/internal/embed"
	"github.com/dgallion1/paperidx/internal/store"
)

const table = "paper_chunks"

var chunkFields = []string{
	"doc_id", "chunk_index", "text", "title", "section_title",
	"parent_section_title", "category", "page_number", "context_prefix",
}

var documentFields = []string{
	"doc_id", "title", "abstract", "url", "pdf_url",
	"conference_name", "conference_year", "conference_round", "created_at",
}

type chunkRow struct {
	DocID              string  `db:"doc_id"`
	ChunkIndex         int64   `db:"chunk_index"`
	Text               string  `db:"text"`
	Title              string  `db:"title"`
	SectionTitle       string  `db:"section_title"`
	ParentSectionTitle string  `db:"parent_section_title"`
	Category           int     `db:"category"`
	PageNumber         int     `db:"page_number"`
	ContextPrefix      string  `db:"context_prefix"`
	Score              float64 `db:"score"`
}

func (r chunkRow) chunk() doctree.Chunk {
	return doctree.Chunk{
		DocID:              r.DocID,
		ChunkIndex:         r.ChunkIndex,
		Text:               r.Text,
		Title:              r.Title,
		SectionTitle:       r.SectionTitle,
		ParentSectionTitle: r.ParentSectionTitle,
		Category:           doctree.Category(r.Category),
		PageNumber:         r.PageNumber,
		ContextPrefix:      r.ContextPrefix,
	}
}

type documentRow struct {
	DocID           string    `db:"doc_id"`
	Title           string    `db:"title"`
	Abstract        string    `db:"abstract"`
	URL             string    `db:"url"`
	PDFURL          string    `db:"pdf_url"`
	ConferenceName  string    `db:"conference_name"`
	ConferenceYear  int       `db:"conference_year"`
	ConferenceRound string    `db:"conference_round"`
	CreatedAt       time.Time `db:"created_at"`
}

// Store keeps document records (chunk_index -1) and chunks in one table with
// an HNSW cosine index on the embedding column.
type Store struct {
	db       *sqlx.DB
	embedder embed.Embedder
}

var _ store.Store = (*Store)(nil)

// Open connects to dsn and applies the embedded migrations, sizing the
// vector column to the embedder's dimension.
func Open(ctx context.Context, dsn string, e embed.Embedder) (*Store, error) {
	db, err := openDB(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := applyMigrations(ctx, db, e.Dimension()); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db, embedder: e}, nil
}

func (s *Store) InsertDocument(ctx context.Context, rec doctree.DocumentRecord) error {
	vec, err := store.EmbedDocument(ctx, s.embedder, rec)
	if err != nil {
		return err
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	delSQL, delArgs, err := builder.BuildDelete(table, map[string]interface{}{
		"doc_id":      rec.DocID,
		"chunk_index": doctree.DocumentChunkIndex,
	})
	if err != nil {
		return err
	}
	delSQL, delArgs = finalize(delSQL, delArgs)
	if _, err := tx.ExecContext(ctx, delSQL, delArgs...); err != nil {
		return fmt.Errorf("replace document %s: %w", rec.DocID, err)
	}

	data := map[string]interface{}{
		"doc_id":           rec.DocID,
		"chunk_index":      doctree.DocumentChunkIndex,
		"text":             rec.Abstract,
		"title":            rec.Title,
		"section_title":    "Abstract",
		"category":         int(doctree.CategoryAbstract),
		"abstract":         rec.Abstract,
		"url":              rec.URL,
		"pdf_url":          rec.PDFURL,
		"conference_name":  rec.ConferenceName,
		"conference_year":  rec.ConferenceYear,
		"conference_round": rec.ConferenceRound,
		"embedding":        pgvector.NewVector(vec),
		"created_at":       rec.CreatedAt,
	}
	insSQL, insArgs, err := builder.BuildInsert(table, []map[string]interface{}{data})
	if err != nil {
		return err
	}
	insSQL, insArgs = finalize(insSQL, insArgs)
	if _, err := tx.ExecContext(ctx, insSQL, insArgs...); err != nil {
		return fmt.Errorf("insert document %s: %w", rec.DocID, err)
	}
	return tx.Commit()
}

// InsertChunks embeds every chunk, then writes them in index-ordered batches
// inside one transaction.
func (s *Store) InsertChunks(ctx context.Context, docID, title string, chunks []doctree.Chunk) error {
	prepared, err := store.PrepareChunks(ctx, s.embedder, docID, title, chunks)
	if err != nil {
		return err
	}
	if len(prepared) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for _, b := range store.Batches(len(prepared), store.BatchSize) {
		rows := make([]map[string]interface{}, 0, b[1]-b[0])
		for _, c := range prepared[b[0]:b[1]] {
			rows = append(rows, map[string]interface{}{
				"doc_id":               c.DocID,
				"chunk_index":          c.ChunkIndex,
				"text":                 c.Text,
				"title":                c.Title,
				"section_title":        c.SectionTitle,
				"parent_section_title": c.ParentSectionTitle,
				"category":             int(c.Category),
				"page_number":          c.PageNumber,
				"context_prefix":       c.ContextPrefix,
				"embedding":            pgvector.NewVector(c.Embedding),
			})
		}
		sqlStr, args, err := builder.BuildInsert(table, rows)
		if err != nil {
			return err
		}
		sqlStr, args = finalize(sqlStr, args)
		if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
			return fmt.Errorf("insert chunks %d-%d of %s: %w", b[0], b[1]-1, docID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit chunks of %s: %w", docID, err)
	}
	return nil
}

func (s *Store) SearchAbstracts(ctx context.Context, query string, k int) ([]store.Hit, error) {
	qvec, err := store.EmbedQuery(ctx, s.embedder, query)
	if err != nil {
		return nil, err
	}
	if k <= 0 {
		k = store.DefaultK
	}

	const q = `
		SELECT doc_id, chunk_index, text, title, section_title, parent_section_title,
			category, page_number, context_prefix, 1 - (embedding <=> $1) AS score
		FROM paper_chunks
		WHERE chunk_index = -1
		ORDER BY embedding <=> $1
		LIMIT $2`
	var rows []chunkRow
	if err := s.db.SelectContext(ctx, &rows, q, pgvector.NewVector(qvec), k); err != nil {
		return nil, fmt.Errorf("search abstracts: %w", err)
	}
	return hits(rows), nil
}

func (s *Store) SearchBySection(ctx context.Context, q store.SectionQuery) ([]store.Hit, error) {
	if store.ShouldFanOut(q) {
		return store.FanOut(ctx, q, s.searchSections)
	}
	return s.searchSections(ctx, q)
}

func (s *Store) searchSections(ctx context.Context, q store.SectionQuery) ([]store.Hit, error) {
	qvec, err := store.EmbedQuery(ctx, s.embedder, q.Query)
	if err != nil {
		return nil, err
	}
	k := q.K
	if k <= 0 {
		k = store.DefaultK
	}
	vec := pgvector.NewVector(qvec)

	var sb strings.Builder
	args := []interface{}{vec}
	sb.WriteString(`SELECT doc_id, chunk_index, text, title, section_title, parent_section_title,
		category, page_number, context_prefix, 1 - (embedding <=> ?) AS score
		FROM paper_chunks WHERE chunk_index >= 0`)
	if len(q.DocIDs) > 0 {
		sb.WriteString(" AND doc_id IN (?)")
		args = append(args, q.DocIDs)
	}
	if q.Category != nil {
		sb.WriteString(" AND category = ?")
		args = append(args, int(*q.Category))
	}
	sb.WriteString(" ORDER BY embedding <=> ? LIMIT ?")
	args = append(args, vec, k)

	query, args, err := sqlx.In(sb.String(), args...)
	if err != nil {
		return nil, err
	}
	query = s.db.Rebind(query)

	var rows []chunkRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("search sections: %w", err)
	}
	return hits(rows), nil
}

func (s *Store) GetContextWindow(ctx context.Context, docID string, center int64, window int) (string, error) {
	lo, hi := store.WindowBounds(center, window)
	where := map[string]interface{}{
		"doc_id":         docID,
		"chunk_index >=": lo,
		"chunk_index <=": hi,
		"_orderby":       "chunk_index asc",
	}
	sqlStr, args, err := builder.BuildSelect(table, where, chunkFields)
	if err != nil {
		return "", err
	}
	sqlStr, args = finalize(sqlStr, args)

	var rows []chunkRow
	if err := s.db.SelectContext(ctx, &rows, sqlStr, args...); err != nil {
		return "", fmt.Errorf("context window %s: %w", docID, err)
	}
	chunks := make([]doctree.Chunk, len(rows))
	for i, r := range rows {
		chunks[i] = r.chunk()
	}
	return store.JoinWindow(chunks), nil
}

func (s *Store) CheckChunksExist(ctx context.Context, docID string) (bool, error) {
	where := map[string]interface{}{
		"doc_id":         docID,
		"chunk_index >=": 0,
		"_limit":         []uint{0, 1},
	}
	sqlStr, args, err := builder.BuildSelect(table, where, []string{"chunk_index"})
	if err != nil {
		return false, err
	}
	sqlStr, args = finalize(sqlStr, args)

	var idx int64
	if err := s.db.QueryRowContext(ctx, sqlStr, args...).Scan(&idx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check chunks %s: %w", docID, err)
	}
	return true, nil
}

func (s *Store) GetDocumentMetadata(ctx context.Context, docID string) (*doctree.DocumentRecord, error) {
	where := map[string]interface{}{
		"doc_id":      docID,
		"chunk_index": doctree.DocumentChunkIndex,
		"_limit":      []uint{0, 1},
	}
	sqlStr, args, err := builder.BuildSelect(table, where, documentFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = finalize(sqlStr, args)

	var row documentRow
	if err := s.db.GetContext(ctx, &row, sqlStr, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("document metadata %s: %w", docID, err)
	}
	return &doctree.DocumentRecord{
		DocID:           row.DocID,
		Title:           row.Title,
		Abstract:        row.Abstract,
		URL:             row.URL,
		PDFURL:          row.PDFURL,
		ConferenceName:  row.ConferenceName,
		ConferenceYear:  row.ConferenceYear,
		ConferenceRound: row.ConferenceRound,
		CreatedAt:       row.CreatedAt,
	}, nil
}

func (s *Store) DeleteChunks(ctx context.Context, docID string) error {
	sqlStr, args, err := builder.BuildDelete(table, map[string]interface{}{
		"doc_id":         docID,
		"chunk_index >=": 0,
	})
	if err != nil {
		return err
	}
	sqlStr, args = finalize(sqlStr, args)
	if _, err := s.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("delete chunks %s: %w", docID, err)
	}
	return nil
}

func (s *Store) ConferenceExists(ctx context.Context, name string, year int, round string) (bool, error) {
	const q = `
		SELECT EXISTS (
			SELECT 1 FROM paper_chunks
			WHERE chunk_index = -1
				AND lower(conference_name) = lower($1)
				AND conference_year = $2
				AND ($3 = '' OR lower(conference_round) = lower($3))
		)`
	var exists bool
	if err := s.db.QueryRowContext(ctx, q, name, year, round).Scan(&exists); err != nil {
		return false, fmt.Errorf("conference exists: %w", err)
	}
	return exists, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func hits(rows []chunkRow) []store.Hit {
	out := make([]store.Hit, len(rows))
	for i, r := range rows {
		out[i] = store.Hit{Chunk: r.chunk(), Score: r.Score}
	}
	return out
}
