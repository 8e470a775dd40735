package catalog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/dgallion1/paperidx/internal/doctree"
)

const chunkSheet = "chunks"

var chunkHeader = []interface{}{
	"doc_id", "chunk_index", "category", "section_title",
	"parent_section_title", "page_number", "context_prefix", "text",
}

// ExportChunks writes chunks as a single-sheet workbook for annotation.
func ExportChunks(w io.Writer, chunks []doctree.Chunk) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", chunkSheet); err != nil {
		return err
	}
	if err := f.SetSheetRow(chunkSheet, "A1", &chunkHeader); err != nil {
		return err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	if err := f.SetRowStyle(chunkSheet, 1, 1, bold); err != nil {
		return err
	}

	for i, c := range chunks {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []interface{}{
			c.DocID, c.ChunkIndex, c.Category.String(), c.SectionTitle,
			c.ParentSectionTitle, c.PageNumber, c.ContextPrefix, c.Text,
		}
		if err := f.SetSheetRow(chunkSheet, cell, &row); err != nil {
			return fmt.Errorf("row %d: %w", i+2, err)
		}
	}
	if err := f.SetColWidth(chunkSheet, "D", "E", 28); err != nil {
		return err
	}
	if err := f.SetColWidth(chunkSheet, "H", "H", 100); err != nil {
		return err
	}
	return f.Write(w)
}

// WriteJSONL writes one chunk per line.
func WriteJSONL(w io.Writer, chunks []doctree.Chunk) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	for i := range chunks {
		if err := enc.Encode(&chunks[i]); err != nil {
			return fmt.Errorf("encode chunk %d: %w", i, err)
		}
	}
	return bw.Flush()
}

// ReadJSONL reads chunks written by WriteJSONL. Blank lines are skipped.
func ReadJSONL(r io.Reader) ([]doctree.Chunk, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	var out []doctree.Chunk
	line := 0
	for sc.Scan() {
		line++
		b := sc.Bytes()
		if len(b) == 0 {
			continue
		}
		var c doctree.Chunk
		if err := json.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, c)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
