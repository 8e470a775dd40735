package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/dgallion1/paperidx/internal/doctree"
	"github.com/dgallion1/paperidx/internal/store"
)

func newSearchCmd(opts *rootOptions) *cobra.Command {
	var (
		section  bool
		docIDs   []string
		category string
		k        int
	)
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search paper abstracts, or section chunks with --section",
		Long: `Search the index by cosine similarity. By default the query is matched against
paper titles and abstracts. --section searches indexed chunks instead and may be
narrowed to documents (--doc, repeatable) and a section category (--category:
abstract, introduction, method, evaluation, conclusion, related_work, other).`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			sq := store.SectionQuery{Query: query, DocIDs: docIDs, K: k}
			if category != "" {
				cat, err := doctree.ParseCategory(category)
				if err != nil {
					return err
				}
				sq.Category = &cat
				section = true
			}
			if len(docIDs) > 0 {
				section = true
			}

			var (
				hits []store.Hit
				err  error
			)
			if opts.remote() {
				c := opts.client()
				defer c.Close()
				if section {
					hits, err = c.SearchSections(cmd.Context(), sq)
				} else {
					hits, err = c.SearchAbstracts(cmd.Context(), query, k)
				}
			} else {
				comps, cerr := opts.components(cmd)
				if cerr != nil {
					return cerr
				}
				defer comps.Close()
				if section {
					hits, err = comps.Store.SearchBySection(cmd.Context(), sq)
				} else {
					hits, err = comps.Store.SearchAbstracts(cmd.Context(), query, k)
				}
			}
			if err != nil {
				return err
			}
			writeHits(cmd.OutOrStdout(), hits)
			return nil
		},
	}
	cmd.Flags().BoolVar(&section, "section", false, "Search section chunks instead of abstracts")
	cmd.Flags().StringArrayVar(&docIDs, "doc", nil, "Restrict a section search to this document (repeatable)")
	cmd.Flags().StringVar(&category, "category", "", "Restrict a section search to one category")
	cmd.Flags().IntVar(&k, "k", store.DefaultK, "Number of results")
	return cmd
}
