package parser

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"

	pdflib "github.com/ledongthuc/pdf"
)

// PDFParser handles PDF files. It tries the Go library first,
// then falls back to pdftotext if available.
type PDFParser struct {
	FallbackPdftotext bool
}

func (p *PDFParser) Parse(r io.Reader, filename string) (Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read pdf: %w", err)
	}

	title := trimExt(filename, ".pdf")
	reader, err := openPDF(data)
	if err == nil {
		doc := &pdfDocument{title: title, reader: reader}
		if t := infoTitle(reader); t != "" {
			doc.title = t
		}
		return doc, nil
	}
	if !p.FallbackPdftotext {
		return nil, fmt.Errorf("open pdf: %w", err)
	}

	text, ferr := extractPdftotext(data)
	if ferr != nil {
		return nil, fmt.Errorf("open pdf: %w (fallback: %v)", err, ferr)
	}
	return textPages(title, text), nil
}

func openPDF(data []byte) (reader *pdflib.Reader, err error) {
	defer func() {
		if r := recover(); r != nil {
			reader = nil
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()
	return pdflib.NewReader(bytes.NewReader(data), int64(len(data)))
}

func infoTitle(reader *pdflib.Reader) (title string) {
	defer func() {
		if recover() != nil {
			title = ""
		}
	}()
	return strings.TrimSpace(reader.Trailer().Key("Info").Key("Title").Text())
}

// pdfDocument serves page text and bookmarks from a parsed PDF.
type pdfDocument struct {
	title  string
	reader *pdflib.Reader

	outlineOnce sync.Once
	outline     []OutlineEntry
	outlineErr  error
}

func (d *pdfDocument) Title() string { return d.title }

func (d *pdfDocument) NumPages() int {
	n, err := safeNumPages(d.reader)
	if err != nil {
		return 0
	}
	return n
}

func safeNumPages(reader *pdflib.Reader) (n int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("page count: %v", r)
		}
	}()
	return reader.NumPage(), nil
}

func (d *pdfDocument) PageText(i int) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = fmt.Errorf("page %d: %v", i+1, r)
		}
	}()
	page := d.reader.Page(i + 1)
	if page.V.IsNull() {
		return "", fmt.Errorf("page %d not found", i+1)
	}
	return page.GetPlainText(nil)
}

func (d *pdfDocument) Outline() ([]OutlineEntry, error) {
	d.outlineOnce.Do(func() {
		d.outline, d.outlineErr = readOutline(d.reader)
	})
	return d.outline, d.outlineErr
}

func extractPdftotext(data []byte) (string, error) {
	tmp, err := os.CreateTemp("", "paperidx-pdf-*.pdf")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write temp file: %w", err)
	}
	tmp.Close()

	cmd := exec.Command("pdftotext", "-layout", tmpPath, "-")
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("pdftotext: %w", err)
	}
	return string(out), nil
}
