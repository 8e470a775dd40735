// Package loader indexes papers on first use: it downloads the source PDF,
// recovers the section structure, chunks it and writes the chunks to the
// store.
package loader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dgallion1/paperidx/internal/chunker"
	"github.com/dgallion1/paperidx/internal/contextual"
	"github.com/dgallion1/paperidx/internal/doctree"
	"github.com/dgallion1/paperidx/internal/outline"
	"github.com/dgallion1/paperidx/internal/parser"
	"github.com/dgallion1/paperidx/internal/slicer"
	"github.com/dgallion1/paperidx/internal/store"
)

// Status is the outcome or current phase of loading one document.
type Status string

const (
	StatusNotFound       Status = "NOT_FOUND"
	StatusNoSourceURL    Status = "NO_SOURCE_URL"
	StatusAlreadyIndexed Status = "ALREADY_INDEXED"
	StatusDownloadFailed Status = "DOWNLOAD_FAILED"
	StatusParseFailed    Status = "PARSE_FAILED"
	StatusSuccess        Status = "SUCCESS"

	// StatusCancelled marks a document never started because its batch was
	// cancelled. Nothing was downloaded; it is safe to load again.
	StatusCancelled Status = "CANCELLED"

	// Intermediate phases, reported to an Observer only.
	StatusDownloading Status = "DOWNLOADING"
	StatusParsing     Status = "PARSING"
	StatusIndexing    Status = "INDEXING"
)

// Terminal reports whether s is a final outcome.
func (s Status) Terminal() bool {
	switch s {
	case StatusDownloading, StatusParsing, StatusIndexing:
		return false
	}
	return true
}

var (
	ErrNoText   = errors.New("no text extracted (scanned or image-only document?)")
	ErrNoChunks = errors.New("no chunks produced")
)

// Result is the outcome of loading one document.
type Result struct {
	DocID   string `json:"doc_id"`
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Chunks  int    `json:"chunks,omitempty"`
	Err     error  `json:"-"`
}

// Observer is told about every phase change of a document.
type Observer func(docID string, status Status)

// Options configures a Loader.
type Options struct {
	Chunker     chunker.Config
	Parser      parser.Options
	Situator    contextual.Situator // nil disables context prefixes
	Concurrency int
	Log         *slog.Logger
}

type Loader struct {
	store       store.Store
	fetcher     Fetcher
	chunkCfg    chunker.Config
	parserOpts  parser.Options
	situator    contextual.Situator
	concurrency int
	log         *slog.Logger
}

func New(s store.Store, f Fetcher, opts Options) *Loader {
	if opts.Log == nil {
		opts.Log = slog.New(slog.DiscardHandler)
	}
	return &Loader{
		store:       s,
		fetcher:     f,
		chunkCfg:    opts.Chunker,
		parserOpts:  opts.Parser,
		situator:    opts.Situator,
		concurrency: clampConcurrency(opts.Concurrency),
		log:         opts.Log,
	}
}

// Load indexes one document.
func (l *Loader) Load(ctx context.Context, docID string) Result {
	return l.load(ctx, docID, nil)
}

func (l *Loader) load(ctx context.Context, docID string, obs Observer) Result {
	log := l.log.With("doc_id", docID)
	notify := func(s Status) {
		if obs != nil {
			obs(docID, s)
		}
	}
	finish := func(r Result) Result {
		r.DocID = docID
		if r.Err != nil && r.Message == "" {
			r.Message = r.Err.Error()
		}
		switch r.Status {
		case StatusSuccess:
			log.Info("document indexed", "chunks", r.Chunks)
		case StatusAlreadyIndexed:
			log.Debug("document already indexed")
		default:
			log.Error("document load failed", "status", string(r.Status), "error", r.Message)
		}
		notify(r.Status)
		return r
	}

	exists, err := l.store.CheckChunksExist(ctx, docID)
	if err != nil {
		return finish(Result{Status: StatusParseFailed, Err: fmt.Errorf("check chunks: %w", err)})
	}
	if exists {
		return finish(Result{Status: StatusAlreadyIndexed})
	}

	rec, err := l.store.GetDocumentMetadata(ctx, docID)
	if err != nil {
		return finish(Result{Status: StatusParseFailed, Err: fmt.Errorf("document metadata: %w", err)})
	}
	if rec == nil {
		return finish(Result{Status: StatusNotFound, Message: "document not registered"})
	}
	src := rec.SourceURL()
	if src == "" {
		return finish(Result{Status: StatusNoSourceURL, Message: "document has no url or pdf_url"})
	}

	notify(StatusDownloading)
	log.Info("downloading", "url", src)
	dl, err := l.fetcher.Fetch(ctx, src)
	if err != nil {
		return finish(Result{Status: StatusDownloadFailed, Err: err})
	}

	notify(StatusParsing)
	title := rec.Title
	chunks, document, err := l.parse(dl, &title, log)
	if err != nil {
		return finish(Result{Status: StatusParseFailed, Err: err})
	}

	if l.situator != nil {
		n := contextual.Apply(ctx, l.situator, title, document, chunks, log)
		log.Debug("context prefixes applied", "applied", n, "chunks", len(chunks))
	}

	notify(StatusIndexing)
	if err := l.store.InsertChunks(ctx, docID, title, chunks); err != nil {
		return finish(Result{Status: StatusParseFailed, Err: fmt.Errorf("insert chunks: %w", err)})
	}
	return finish(Result{Status: StatusSuccess, Chunks: len(chunks), Message: fmt.Sprintf("indexed %d chunks", len(chunks))})
}

// parse runs extraction, outline recovery, slicing and chunking. An empty
// *title is filled from the document. document is the cleaned full text.
func (l *Loader) parse(dl *Download, title *string, log *slog.Logger) (chunks []doctree.Chunk, document string, err error) {
	defer func() {
		if r := recover(); r != nil {
			chunks, document = nil, ""
			err = fmt.Errorf("parser panic: %v", r)
		}
	}()

	doc, err := l.parserOpts.ForContent(dl.Name, dl.ContentType, dl.Data)
	if err != nil {
		return nil, "", fmt.Errorf("parse: %w", err)
	}
	pages, failed := parser.Pages(doc)
	if failed > 0 {
		log.Warn("unreadable pages", "failed", failed, "pages", len(pages))
	}
	if strings.TrimSpace(strings.Join(pages, "")) == "" {
		return nil, "", ErrNoText
	}
	if *title == "" {
		*title = doc.Title()
	}

	raw := Segment(doc, pages, *title, log)
	chunks = chunker.Process(raw, l.chunkCfg)
	if len(chunks) == 0 {
		return nil, "", ErrNoChunks
	}
	return chunks, slicer.Clean(strings.Join(pages, "\n")), nil
}

// Segment splits a document into raw section chunks. The outline drives the
// split when one can be recovered; otherwise pages are used.
func Segment(doc parser.Document, pages []string, title string, log *slog.Logger) []doctree.RawChunk {
	roots, err := outline.Extract(doc, pages)
	if err != nil {
		log.Debug("outline metadata unreadable", "error", err)
	}
	if len(roots) > 0 {
		outline.ClassifyTree(roots, title)
		if raw := slicer.Slice(roots, pages, log); len(raw) > 0 {
			return raw
		}
		log.Debug("outline produced no spans, falling back to pages")
	}
	return slicer.SlicePages(pages)
}
