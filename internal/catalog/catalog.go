// Package catalog reads paper metadata catalogs (CSV or XLSX) and moves chunk
// sets in and out of the repository as spreadsheets and JSON lines.
package catalog

import (
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/dgallion1/paperidx/internal/doctree"
)

// Columns are the recognized header names, matched case-insensitively.
var Columns = []string{
	"doc_id", "title", "abstract", "url", "pdf_url",
	"conference_name", "conference_year", "conference_round",
}

var ErrNoHeader = errors.New("catalog has no header row")

// Read picks the format from the file extension.
func Read(name string, r io.Reader) ([]doctree.DocumentRecord, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		return ReadCSV(r)
	case ".xlsx":
		return ReadXLSX(r)
	default:
		return nil, fmt.Errorf("unsupported catalog format %q", filepath.Ext(name))
	}
}

func ReadCSV(r io.Reader) ([]doctree.DocumentRecord, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	return fromRows(rows)
}

// ReadXLSX reads the first sheet of a workbook.
func ReadXLSX(r io.Reader) ([]doctree.DocumentRecord, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrNoHeader
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	return fromRows(rows)
}

func fromRows(rows [][]string) ([]doctree.DocumentRecord, error) {
	if len(rows) == 0 {
		return nil, ErrNoHeader
	}
	index := make(map[string]int)
	for i, h := range rows[0] {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if _, dup := index[h]; !dup {
			index[h] = i
		}
	}
	if _, ok := index["title"]; !ok {
		if _, ok := index["doc_id"]; !ok {
			return nil, fmt.Errorf("%w: need a doc_id or title column", ErrNoHeader)
		}
	}

	var out []doctree.DocumentRecord
	for n, row := range rows[1:] {
		line := n + 2
		get := func(col string) string {
			i, ok := index[col]
			if !ok || i >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[i])
		}
		if blank(row) {
			continue
		}

		rec := doctree.DocumentRecord{
			DocID:           get("doc_id"),
			Title:           get("title"),
			Abstract:        get("abstract"),
			URL:             get("url"),
			PDFURL:          get("pdf_url"),
			ConferenceName:  get("conference_name"),
			ConferenceRound: get("conference_round"),
		}
		if y := get("conference_year"); y != "" {
			year, err := strconv.Atoi(y)
			if err != nil {
				return nil, fmt.Errorf("row %d: invalid conference_year %q", line, y)
			}
			rec.ConferenceYear = year
		}
		if rec.DocID == "" {
			src := rec.SourceURL()
			if src == "" {
				return nil, fmt.Errorf("row %d: no doc_id and no url", line)
			}
			rec.DocID = DocIDFor(src)
		}
		out = append(out, rec)
	}
	return out, nil
}

// DocIDFor derives a stable document id from a source URL.
func DocIDFor(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])[:16]
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
