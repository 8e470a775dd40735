package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/dgallion1/paperidx/internal/catalog"
	"github.com/dgallion1/paperidx/internal/chunker"
	"github.com/dgallion1/paperidx/internal/loader"
)

func newChunkCmd(opts *rootOptions) *cobra.Command {
	var (
		jsonlPath string
		xlsxPath  string
		docID     string
		cfg       = chunker.DefaultConfig()
	)
	cmd := &cobra.Command{
		Use:   "chunk <file>",
		Short: "Split a document into section-aware retrieval chunks",
		Long: `Split a document into chunks the way the loader does before indexing.

With --jsonl the chunks are written one JSON object per line ("-" for stdout);
with --xlsx they are exported as a spreadsheet for review.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := opts.logger(cmd)
			doc, pages, err := openDocument(args[0], log)
			if err != nil {
				return err
			}

			title := doc.Title()
			if docID == "" {
				abs, _ := filepath.Abs(args[0])
				docID = catalog.DocIDFor("file://" + abs)
			}
			chunks := chunker.Process(loader.Segment(doc, pages, title, log), cfg)
			for i := range chunks {
				chunks[i].DocID = docID
				chunks[i].Title = title
			}

			if jsonlPath != "" {
				if err := writeTo(cmd, jsonlPath, func(w io.Writer) error { return catalog.WriteJSONL(w, chunks) }); err != nil {
					return err
				}
			}
			if xlsxPath != "" {
				if err := writeTo(cmd, xlsxPath, func(w io.Writer) error { return catalog.ExportChunks(w, chunks) }); err != nil {
					return err
				}
			}
			if jsonlPath == "-" {
				return nil
			}

			w := cmd.OutOrStdout()
			writeHeader(w, title, "Doc", docID, "Pages", strconv.Itoa(len(pages)), "Chunks", strconv.Itoa(len(chunks)))
			writeCategoryCounts(w, chunks)
			return nil
		},
	}
	cmd.Flags().StringVar(&jsonlPath, "jsonl", "", "Write chunks as JSON lines to this path (- for stdout)")
	cmd.Flags().StringVar(&xlsxPath, "xlsx", "", "Export chunks to this spreadsheet")
	cmd.Flags().StringVar(&docID, "doc-id", "", "Document id stamped on the chunks (default: derived from the path)")
	cmd.Flags().IntVar(&cfg.TargetSize, "target", cfg.TargetSize, "Target chunk size in characters")
	cmd.Flags().IntVar(&cfg.Overlap, "overlap", cfg.Overlap, "Sentence overlap between chunks in characters")
	cmd.Flags().IntVar(&cfg.MinSize, "min", cfg.MinSize, "Trailing chunks shorter than this merge into the previous one")
	return cmd
}

func writeTo(cmd *cobra.Command, path string, write func(io.Writer) error) error {
	if path == "-" {
		return write(cmd.OutOrStdout())
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
