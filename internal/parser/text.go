package parser

import (
	"bufio"
	"io"
	"strings"
)

// TextParser handles plain text files. Form feeds separate pages, which is
// also what pdftotext emits.
type TextParser struct{}

func (p *TextParser) Parse(r io.Reader, filename string) (Document, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var buf strings.Builder
	for scanner.Scan() {
		buf.WriteString(scanner.Text())
		buf.WriteString("\n")
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return textPages(trimExt(filename, ".txt"), buf.String()), nil
}

// textPages splits text on form feeds. Blank pages are kept so page numbers
// stay aligned with the source.
func textPages(title, text string) *pagedDocument {
	doc := &pagedDocument{title: title}
	if strings.TrimSpace(text) == "" {
		return doc
	}
	for _, page := range strings.Split(text, "\f") {
		doc.pages = append(doc.pages, normalizeLines(page))
	}
	// A trailing form feed produces an empty final page.
	if n := len(doc.pages); n > 1 && doc.pages[n-1] == "" {
		doc.pages = doc.pages[:n-1]
	}
	return doc
}

// normalizeLines trims every line and drops blank ones.
func normalizeLines(text string) string {
	lines := strings.Split(text, "\n")
	out := lines[:0]
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
