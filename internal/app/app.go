// Package app assembles the store, embedder and loader from configuration.
// Both the server and the CLI build their components through it.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgallion1/paperidx/internal/chunker"
	"github.com/dgallion1/paperidx/internal/config"
	"github.com/dgallion1/paperidx/internal/contextual"
	"github.com/dgallion1/paperidx/internal/embed"
	"github.com/dgallion1/paperidx/internal/latency"
	"github.com/dgallion1/paperidx/internal/loader"
	"github.com/dgallion1/paperidx/internal/parser"
	"github.com/dgallion1/paperidx/internal/store"
	"github.com/dgallion1/paperidx/internal/store/pgstore"
	"github.com/dgallion1/paperidx/internal/store/sqlitestore"
)

// StatsWindow is how far back latency statistics reach.
const StatsWindow = time.Hour

const (
	situateAttempts   = 3
	situateRetryDelay = 2 * time.Second
)

// Components are the long-lived pieces shared by every entry point.
type Components struct {
	Embedder   embed.Embedder
	EmbedStats *latency.Tracker
	Store      store.Store
	Cache      *loader.Cache // nil when CACHE_DIR is unset
	Claude     *contextual.ClaudeClient
	LLMStats   *latency.Tracker
	Loader     *loader.Loader
}

// Build opens the configured store and wires the loader around it.
func Build(ctx context.Context, cfg config.Config, log *slog.Logger) (*Components, error) {
	c := &Components{EmbedStats: latency.NewTracker(StatsWindow)}

	e, err := embed.New(ctx, cfg, c.EmbedStats)
	if err != nil {
		return nil, fmt.Errorf("embedder: %w", err)
	}
	c.Embedder = e

	c.Store, err = OpenStore(ctx, cfg, e)
	if err != nil {
		return nil, err
	}

	if cfg.CacheDir != "" {
		c.Cache, err = loader.NewCache(cfg.CacheDir)
		if err != nil {
			c.Store.Close()
			return nil, fmt.Errorf("download cache: %w", err)
		}
	}

	fetcher := loader.NewDownloader(loader.DownloaderConfig{
		MaxAttempts: cfg.DownloadMaxAttempts,
		RetryDelay:  cfg.DownloadRetryDelay,
		Timeout:     cfg.DownloadTimeout,
		Cache:       c.Cache,
		Log:         log,
	})

	opts := loader.Options{
		Chunker: chunker.Config{
			TargetSize: cfg.ChunkTargetSize,
			Overlap:    cfg.ChunkOverlap,
			MinSize:    cfg.ChunkMinSize,
		},
		Parser:      parser.Options{PdftotextFallback: cfg.PDFFallbackPdftotext},
		Concurrency: cfg.LoadConcurrency,
		Log:         log,
	}
	if cfg.ContextualEnabled() {
		c.LLMStats = latency.NewTracker(StatsWindow)
		c.Claude = contextual.NewClaudeClient(cfg.AnthropicAPIKey, cfg.AnthropicModel, c.LLMStats)
		opts.Situator = contextual.Retrying(c.Claude, situateAttempts, situateRetryDelay)
		log.Info("contextual prefixes enabled", "model", cfg.AnthropicModel)
	}
	c.Loader = loader.New(c.Store, fetcher, opts)

	log.Info("components ready",
		"store", cfg.StoreBackend,
		"embedder", e.Name(),
		"dim", e.Dimension(),
		"cache_dir", cfg.CacheDir,
	)
	return c, nil
}

// OpenStore opens the backend named by cfg.StoreBackend.
func OpenStore(ctx context.Context, cfg config.Config, e embed.Embedder) (store.Store, error) {
	switch cfg.StoreBackend {
	case "memory":
		return store.NewMemory(e), nil
	case "sqlite", "":
		s, err := sqlitestore.Open(cfg.SQLitePath, e)
		if err != nil {
			return nil, fmt.Errorf("sqlite store: %w", err)
		}
		return s, nil
	case "postgres":
		s, err := pgstore.Open(ctx, cfg.DatabaseURL, e)
		if err != nil {
			return nil, fmt.Errorf("postgres store: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

// Close releases the store and outbound clients.
func (c *Components) Close() error {
	if c.Claude != nil {
		c.Claude.Close()
	}
	return c.Store.Close()
}
