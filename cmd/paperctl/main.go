// Command paperctl inspects documents and drives a paperidx index from the
// terminal, either locally against the configured store or through a
// running server.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dgallion1/paperidx/internal/app"
	"github.com/dgallion1/paperidx/internal/client"
	"github.com/dgallion1/paperidx/internal/config"
	"github.com/dgallion1/paperidx/internal/parser"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("error:"), err)
		os.Exit(1)
	}
}

type rootOptions struct {
	verbose bool
	server  string
	apiKey  string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "paperctl",
		Short: "Structure-aware indexing of research papers",
		Long: `paperctl recovers the section outline of research papers, splits them into
retrieval chunks and manages a paperidx index.

Commands that touch the index run locally against the store configured by the
environment (STORE_BACKEND, SQLITE_PATH, DATABASE_URL, EMBED_*), or against a
running server when --server is given.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log progress to stderr")
	root.PersistentFlags().StringVar(&opts.server, "server", "", "paperidx server URL (default: run locally)")
	root.PersistentFlags().StringVar(&opts.apiKey, "api-key", "", "Server API key (default $PAPERIDX_API_KEY)")

	root.AddCommand(
		newOutlineCmd(opts),
		newChunkCmd(opts),
		newImportCmd(opts),
		newLoadCmd(opts),
		newSearchCmd(opts),
	)
	return root
}

func (o *rootOptions) logger(cmd *cobra.Command) *slog.Logger {
	if !o.verbose {
		return slog.New(slog.DiscardHandler)
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func (o *rootOptions) remote() bool { return o.server != "" }

func (o *rootOptions) client() *client.Client {
	key := o.apiKey
	if key == "" {
		key = os.Getenv("PAPERIDX_API_KEY")
	}
	return client.NewClient(o.server, key)
}

// components builds the local store, embedder and loader from the environment.
func (o *rootOptions) components(cmd *cobra.Command) (*app.Components, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return app.Build(cmd.Context(), cfg, o.logger(cmd))
}

// openDocument parses a local file and extracts its pages.
func openDocument(path string, log *slog.Logger) (parser.Document, []string, error) {
	p, err := parser.ForFile(path)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	doc, err := p.Parse(f, filepath.Base(path))
	if err != nil {
		return nil, nil, fmt.Errorf("parse %s: %w", path, err)
	}
	pages, failed := parser.Pages(doc)
	if failed > 0 {
		log.Warn("unreadable pages", "failed", failed, "pages", len(pages))
	}
	return doc, pages, nil
}
