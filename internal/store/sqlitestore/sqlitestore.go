// Package sqlitestore is a single-file chunk store for local use. Embeddings
// are kept as little-endian float32 blobs and searched by brute force.
package sqlitestore

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/dgallion1/paperidx/internal/doctree"
	"github.com/dgallion1/paperidx/internal/embed"
	"github.com/dgallion1/paperidx/internal/store"
)

type chunkRow struct {
	ID                 uint   `gorm:"primaryKey"`
	DocID              string `gorm:"index:idx_doc_chunk,priority:1;not null"`
	ChunkIndex         int64  `gorm:"index:idx_doc_chunk,priority:2"`
	Text               string
	Title              string
	SectionTitle       string
	ParentSectionTitle string
	Category           int `gorm:"index"`
	PageNumber         int
	ContextPrefix      string
	Abstract           string
	URL                string
	PDFURL             string
	ConferenceName     string
	ConferenceYear     int
	ConferenceRound    string
	Embedding          []byte
	CreatedAt          time.Time
}

func (chunkRow) TableName() string { return "paper_chunks" }

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

type Store struct {
	db       *gorm.DB
	embedder embed.Embedder
}

var _ store.Store = (*Store)(nil)

// Open opens or creates the database at path.
func Open(path string, e embed.Embedder) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.AutoMigrate(&chunkRow{}); err != nil {
		return nil, fmt.Errorf("automigrate: %w", err)
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
	row := chunkRow{
		DocID:           rec.DocID,
		ChunkIndex:      doctree.DocumentChunkIndex,
		Text:            rec.Abstract,
		Title:           rec.Title,
		SectionTitle:    "Abstract",
		Category:        int(doctree.CategoryAbstract),
		Abstract:        rec.Abstract,
		URL:             rec.URL,
		PDFURL:          rec.PDFURL,
		ConferenceName:  rec.ConferenceName,
		ConferenceYear:  rec.ConferenceYear,
		ConferenceRound: rec.ConferenceRound,
		Embedding:       floatsToBytes(vec),
		CreatedAt:       rec.CreatedAt,
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("doc_id = ? AND chunk_index = ?", rec.DocID, doctree.DocumentChunkIndex).
			Delete(&chunkRow{}).Error; err != nil {
			return fmt.Errorf("replace document %s: %w", rec.DocID, err)
		}
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("insert document %s: %w", rec.DocID, err)
		}
		return nil
	})
}

func (s *Store) InsertChunks(ctx context.Context, docID, title string, chunks []doctree.Chunk) error {
	prepared, err := store.PrepareChunks(ctx, s.embedder, docID, title, chunks)
	if err != nil {
		return err
	}
	if len(prepared) == 0 {
		return nil
	}
	rows := make([]chunkRow, len(prepared))
	now := time.Now().UTC()
	for i, c := range prepared {
		rows[i] = chunkRow{
			DocID:              c.DocID,
			ChunkIndex:         c.ChunkIndex,
			Text:               c.Text,
			Title:              c.Title,
			SectionTitle:       c.SectionTitle,
			ParentSectionTitle: c.ParentSectionTitle,
			Category:           int(c.Category),
			PageNumber:         c.PageNumber,
			ContextPrefix:      c.ContextPrefix,
			Embedding:          floatsToBytes(c.Embedding),
			CreatedAt:          now,
		}
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(rows, store.BatchSize).Error
	})
	if err != nil {
		return fmt.Errorf("insert chunks of %s: %w", docID, err)
	}
	return nil
}

func (s *Store) SearchAbstracts(ctx context.Context, query string, k int) ([]store.Hit, error) {
	qvec, err := store.EmbedQuery(ctx, s.embedder, query)
	if err != nil {
		return nil, err
	}
	var rows []chunkRow
	if err := s.db.WithContext(ctx).Where("chunk_index = ?", doctree.DocumentChunkIndex).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("search abstracts: %w", err)
	}
	return score(rows, qvec, k), nil
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
	tx := s.db.WithContext(ctx).Where("chunk_index >= 0")
	if len(q.DocIDs) > 0 {
		tx = tx.Where("doc_id IN ?", q.DocIDs)
	}
	if q.Category != nil {
		tx = tx.Where("category = ?", int(*q.Category))
	}
	var rows []chunkRow
	if err := tx.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("search sections: %w", err)
	}
	return score(rows, qvec, q.K), nil
}

func (s *Store) GetContextWindow(ctx context.Context, docID string, center int64, window int) (string, error) {
	lo, hi := store.WindowBounds(center, window)
	var rows []chunkRow
	err := s.db.WithContext(ctx).
		Where("doc_id = ? AND chunk_index >= ? AND chunk_index <= ?", docID, lo, hi).
		Order("chunk_index asc").
		Find(&rows).Error
	if err != nil {
		return "", fmt.Errorf("context window %s: %w", docID, err)
	}
	chunks := make([]doctree.Chunk, len(rows))
	for i, r := range rows {
		chunks[i] = r.chunk()
	}
	return store.JoinWindow(chunks), nil
}

func (s *Store) CheckChunksExist(ctx context.Context, docID string) (bool, error) {
	var rows []chunkRow
	err := s.db.WithContext(ctx).Select("id").
		Where("doc_id = ? AND chunk_index >= 0", docID).
		Limit(1).Find(&rows).Error
	if err != nil {
		return false, fmt.Errorf("check chunks %s: %w", docID, err)
	}
	return len(rows) > 0, nil
}

func (s *Store) GetDocumentMetadata(ctx context.Context, docID string) (*doctree.DocumentRecord, error) {
	var row chunkRow
	err := s.db.WithContext(ctx).
		Where("doc_id = ? AND chunk_index = ?", docID, doctree.DocumentChunkIndex).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
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
	err := s.db.WithContext(ctx).Where("doc_id = ? AND chunk_index >= 0", docID).Delete(&chunkRow{}).Error
	if err != nil {
		return fmt.Errorf("delete chunks %s: %w", docID, err)
	}
	return nil
}

func (s *Store) ConferenceExists(ctx context.Context, name string, year int, round string) (bool, error) {
	tx := s.db.WithContext(ctx).Model(&chunkRow{}).
		Where("chunk_index = ? AND lower(conference_name) = lower(?) AND conference_year = ?",
			doctree.DocumentChunkIndex, name, year)
	if round != "" {
		tx = tx.Where("lower(conference_round) = lower(?)", round)
	}
	var n int64
	if err := tx.Count(&n).Error; err != nil {
		return false, fmt.Errorf("conference exists: %w", err)
	}
	return n > 0, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func score(rows []chunkRow, qvec []float32, k int) []store.Hit {
	hits := make([]store.Hit, 0, len(rows))
	for _, r := range rows {
		vec := bytesToFloats(r.Embedding)
		if len(vec) != len(qvec) {
			continue
		}
		hits = append(hits, store.Hit{Chunk: r.chunk(), Score: store.Cosine(qvec, vec)})
	}
	return store.TopK(hits, k)
}

func floatsToBytes(v []float32) []byte {
	buf := new(bytes.Buffer)
	_ = binary.Write(buf, binary.LittleEndian, v)
	return buf.Bytes()
}

func bytesToFloats(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	_ = binary.Read(bytes.NewReader(b), binary.LittleEndian, &out)
	return out
}
