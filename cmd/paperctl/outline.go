package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/dgallion1/paperidx/internal/outline"
)

func newOutlineCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "outline <file>",
		Short: "Print the classified section outline of a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := opts.logger(cmd)
			doc, pages, err := openDocument(args[0], log)
			if err != nil {
				return err
			}

			roots, err := outline.Extract(doc, pages)
			if err != nil {
				log.Debug("outline metadata unreadable", "error", err)
			}
			title := doc.Title()
			outline.ClassifyTree(roots, title)

			w := cmd.OutOrStdout()
			writeHeader(w, title, "File", args[0], "Pages", strconv.Itoa(len(pages)))
			if len(roots) == 0 {
				fmt.Fprintln(w, warnStyle.Render("no outline recovered, chunking falls back to pages"))
				return nil
			}
			writeOutline(w, roots)
			return nil
		},
	}
}
