package parser

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// ErrUnsupported is returned when no source can handle a document.
var ErrUnsupported = errors.New("unsupported document format")

// OutlineEntry is one bookmark of a document's native outline.
type OutlineEntry struct {
	Level int    // 1 for top-level entries
	Title string
	Page  int // 1-based; <= 0 when the entry has no resolvable destination
}

// Document is a paginated source with optional outline metadata.
type Document interface {
	Title() string
	NumPages() int
	// PageText returns the extracted text of page i (0-based).
	PageText(i int) (string, error)
	Outline() ([]OutlineEntry, error)
}

// Parser converts raw document bytes into a Document.
type Parser interface {
	Parse(r io.Reader, filename string) (Document, error)
}

// SupportedExtensions lists file extensions this service can handle.
var SupportedExtensions = map[string]bool{
	".txt":      true,
	".md":       true,
	".markdown": true,
	".html":     true,
	".htm":      true,
	".pdf":      true,
	".docx":     true,
}

// Options tune parser selection.
type Options struct {
	// PdftotextFallback lets PDF extraction shell out to pdftotext when the
	// embedded reader finds no text.
	PdftotextFallback bool
}

// DefaultOptions enables every fallback.
var DefaultOptions = Options{PdftotextFallback: true}

// ForFile returns the appropriate parser for a filename.
func ForFile(filename string) (Parser, error) {
	return DefaultOptions.ForFile(filename)
}

// ForContent selects a parser with DefaultOptions and parses data.
func ForContent(filename, contentType string, data []byte) (Document, error) {
	return DefaultOptions.ForContent(filename, contentType, data)
}

// ForFile returns the appropriate parser for a filename.
func (o Options) ForFile(filename string) (Parser, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".txt":
		return &TextParser{}, nil
	case ".md", ".markdown":
		return &MarkdownParser{}, nil
	case ".html", ".htm":
		return &HTMLParser{}, nil
	case ".pdf":
		return &PDFParser{FallbackPdftotext: o.PdftotextFallback}, nil
	case ".docx":
		return &DOCXParser{}, nil
	default:
		return nil, fmt.Errorf("%w: extension %q", ErrUnsupported, ext)
	}
}

// IsSupportedExtension checks if a file extension is supported.
func IsSupportedExtension(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return SupportedExtensions[ext]
}

// ForContent picks a parser from the payload itself, then the content type,
// then the filename. Downloads often arrive with a generic name or type.
func (o Options) ForContent(filename, contentType string, data []byte) (Document, error) {
	var p Parser
	ct := strings.ToLower(contentType)
	switch {
	case bytes.HasPrefix(bytes.TrimLeft(data, " \t\r\n"), []byte("%PDF")):
		p = &PDFParser{FallbackPdftotext: o.PdftotextFallback}
	case strings.Contains(ct, "application/pdf"):
		p = &PDFParser{FallbackPdftotext: o.PdftotextFallback}
	case strings.Contains(ct, "wordprocessingml"):
		p = &DOCXParser{}
	case strings.Contains(ct, "text/html"):
		p = &HTMLParser{}
	case strings.Contains(ct, "text/markdown"):
		p = &MarkdownParser{}
	default:
		var err error
		p, err = o.ForFile(filename)
		if err != nil {
			if strings.HasPrefix(ct, "text/plain") {
				p = &TextParser{}
			} else {
				return nil, err
			}
		}
	}
	return p.Parse(bytes.NewReader(data), filename)
}

// Pages extracts every page once. Pages that fail to extract are returned
// as empty strings and counted in failed.
func Pages(doc Document) (pages []string, failed int) {
	n := doc.NumPages()
	pages = make([]string, n)
	for i := 0; i < n; i++ {
		text, err := doc.PageText(i)
		if err != nil {
			failed++
			continue
		}
		pages[i] = text
	}
	return pages, failed
}

// pagedDocument is an in-memory Document used by formats without native pages.
type pagedDocument struct {
	title   string
	pages   []string
	outline []OutlineEntry
}

func (d *pagedDocument) Title() string { return d.title }

func (d *pagedDocument) NumPages() int { return len(d.pages) }

func (d *pagedDocument) PageText(i int) (string, error) {
	if i < 0 || i >= len(d.pages) {
		return "", fmt.Errorf("page %d out of range (%d pages)", i, len(d.pages))
	}
	return d.pages[i], nil
}

func (d *pagedDocument) Outline() ([]OutlineEntry, error) { return d.outline, nil }

// pageBuilder lays out heading-structured content as logical pages: every
// heading opens a new page, so each outline entry points at the page that
// begins with its title.
type pageBuilder struct {
	doc *pagedDocument
	cur strings.Builder
}

func newPageBuilder(title string) *pageBuilder {
	return &pageBuilder{doc: &pagedDocument{title: title}}
}

func (b *pageBuilder) heading(level int, title string) {
	title = strings.TrimSpace(title)
	if title == "" {
		return
	}
	b.flush()
	b.doc.outline = append(b.doc.outline, OutlineEntry{
		Level: level,
		Title: title,
		Page:  len(b.doc.pages) + 1,
	})
	b.cur.WriteString(title)
}

func (b *pageBuilder) text(t string) {
	t = strings.TrimSpace(t)
	if t == "" {
		return
	}
	if b.cur.Len() > 0 {
		b.cur.WriteString("\n")
	}
	b.cur.WriteString(t)
}

func (b *pageBuilder) flush() {
	if b.cur.Len() > 0 {
		b.doc.pages = append(b.doc.pages, b.cur.String())
		b.cur.Reset()
	}
}

func (b *pageBuilder) finish() *pagedDocument {
	b.flush()
	return b.doc
}

func trimExt(filename string, exts ...string) string {
	base := filepath.Base(filename)
	for _, ext := range exts {
		if strings.HasSuffix(strings.ToLower(base), ext) {
			return base[:len(base)-len(ext)]
		}
	}
	return base
}
