package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dgallion1/paperidx/internal/catalog"
)

func newImportCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <catalog.csv|catalog.xlsx>",
		Short: "Register the papers of a metadata catalog",
		Long: `Register every row of a CSV or XLSX catalog as a document record. Columns are
matched by name: doc_id, title, abstract, url, pdf_url, conference_name,
conference_year, conference_round. Documents already present are skipped.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			var rep catalog.Report
			if opts.remote() {
				c := opts.client()
				defer c.Close()
				rep, err = c.ImportCatalog(cmd.Context(), filepath.Base(args[0]), f)
			} else {
				rep, err = importLocal(cmd, opts, args[0], f)
			}
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%s %d  %s %d  %s %d\n",
				successStyle.Render("inserted"), rep.Inserted,
				dimStyle.Render("skipped"), rep.Skipped,
				errorStyle.Render("failed"), rep.Failed,
			)
			for _, e := range rep.Errors {
				fmt.Fprintln(w, "  "+errorStyle.Render(e))
			}
			return nil
		},
	}
}

func importLocal(cmd *cobra.Command, opts *rootOptions, name string, f *os.File) (catalog.Report, error) {
	recs, err := catalog.Read(name, f)
	if err != nil {
		return catalog.Report{}, err
	}
	comps, err := opts.components(cmd)
	if err != nil {
		return catalog.Report{}, err
	}
	defer comps.Close()
	return catalog.Import(cmd.Context(), comps.Store, recs, opts.logger(cmd))
}
