package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dgallion1/paperidx/internal/api"
	"github.com/dgallion1/paperidx/internal/loader"
)

func newLoadCmd(opts *rootOptions) *cobra.Command {
	var async bool
	cmd := &cobra.Command{
		Use:   "load <docID>...",
		Short: "Download, chunk and index registered documents",
		Long: `Load indexes documents on demand: documents that already have chunks are left
alone, the rest are downloaded, segmented by section and written to the index.

With --server the request goes to a running paperidx. More than five documents,
or --async, submit a background job and wait for it to finish.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				results []loader.Result
				err     error
			)
			if opts.remote() {
				results, err = loadRemote(cmd, opts, args, async)
			} else {
				results, err = loadLocal(cmd, opts, args)
			}
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			failed := 0
			for _, r := range results {
				line := fmt.Sprintf("%-20s %s", r.DocID, statusLabel(r.Status))
				if r.Message != "" {
					line += "  " + dimStyle.Render(r.Message)
				}
				fmt.Fprintln(w, line)
				if r.Status != loader.StatusSuccess && r.Status != loader.StatusAlreadyIndexed {
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d documents failed to load", failed, len(results))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&async, "async", false, "Submit a background job even for a few documents (with --server)")
	return cmd
}

func loadLocal(cmd *cobra.Command, opts *rootOptions, ids []string) ([]loader.Result, error) {
	comps, err := opts.components(cmd)
	if err != nil {
		return nil, err
	}
	defer comps.Close()

	byID := comps.Loader.LoadBatch(cmd.Context(), ids)
	return inOrder(ids, byID), nil
}

func loadRemote(cmd *cobra.Command, opts *rootOptions, ids []string, async bool) ([]loader.Result, error) {
	c := opts.client()
	defer c.Close()

	if !async && len(ids) <= api.MaxSyncLoad {
		return c.Load(cmd.Context(), ids)
	}
	jobID, err := c.SubmitJob(cmd.Context(), ids)
	if err != nil {
		return nil, err
	}
	fmt.Fprintln(cmd.ErrOrStderr(), dimStyle.Render("job "+jobID+" queued"))
	snap, err := c.WaitJob(cmd.Context(), jobID, time.Second)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]loader.Result, len(snap.Results))
	for _, r := range snap.Results {
		byID[r.DocID] = r
	}
	return inOrder(snap.DocIDs, byID), nil
}

// inOrder lists results in the order ids were given, once per id.
func inOrder(ids []string, byID map[string]loader.Result) []loader.Result {
	seen := make(map[string]bool, len(ids))
	out := make([]loader.Result, 0, len(byID))
	for _, id := range ids {
		r, ok := byID[id]
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, r)
	}
	return out
}
