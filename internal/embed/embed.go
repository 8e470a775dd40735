// Package embed turns text into fixed-length vectors for the chunk store.
package embed

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgallion1/paperidx/internal/backoff"
	"github.com/dgallion1/paperidx/internal/config"
	"github.com/dgallion1/paperidx/internal/latency"
)

// Task types understood by providers that embed queries and documents
// differently.
const (
	TaskDocument = "RETRIEVAL_DOCUMENT"
	TaskQuery    = "RETRIEVAL_QUERY"
)

// Embedder produces vectors of a fixed dimension.
type Embedder interface {
	Embed(ctx context.Context, text, taskType string) ([]float32, error)
	Dimension() int
	Name() string
}

const (
	retryAttempts = 3
	retryDelay    = time.Second
)

// RetryableError is a rate-limit or server-side provider failure. Retrying
// wraps an embedder to retry these.
type RetryableError struct {
	StatusCode int
	Message    string
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("retryable error (status %d): %s", e.StatusCode, truncate(e.Message, 200))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// New builds the embedder selected by cfg.EmbedProvider, wrapped with
// latency tracking, retries of transient failures and, when EmbedCacheSize
// is positive, an LRU cache.
func New(ctx context.Context, cfg config.Config, stats *latency.Tracker) (Embedder, error) {
	var e Embedder
	switch strings.ToLower(cfg.EmbedProvider) {
	case "", "hash":
		e = NewHash(cfg.EmbedDim)
	case "openai":
		e = NewOpenAI(cfg.EmbedBaseURL, cfg.EmbedAPIKey, cfg.EmbedModel, cfg.EmbedDim)
	case "gemini":
		g, err := NewGemini(ctx, cfg.EmbedAPIKey, cfg.EmbedModel, cfg.EmbedDim)
		if err != nil {
			return nil, err
		}
		e = g
	default:
		return nil, fmt.Errorf("unknown embed provider %q", cfg.EmbedProvider)
	}

	e = Retrying(Timed(e, stats), retryAttempts, retryDelay)
	return NewCached(e, cfg.EmbedCacheSize, cfg.EmbedCacheTTL), nil
}

type timed struct {
	next  Embedder
	stats *latency.Tracker
}

// Timed records the latency of every call to e in stats. A nil stats returns
// e unchanged.
func Timed(e Embedder, stats *latency.Tracker) Embedder {
	if stats == nil {
		return e
	}
	return &timed{next: e, stats: stats}
}

func (t *timed) Embed(ctx context.Context, text, taskType string) ([]float32, error) {
	start := time.Now()
	vec, err := t.next.Embed(ctx, text, taskType)
	t.stats.Observe(start, err)
	return vec, err
}

func (t *timed) Dimension() int { return t.next.Dimension() }
func (t *timed) Name() string   { return t.next.Name() }

type retrying struct {
	next     Embedder
	attempts int
	delay    time.Duration
}

// Retrying retries calls to e that fail with a *RetryableError, up to
// attempts calls in total, waiting backoff.Linear between them. Other errors
// are returned at once.
func Retrying(e Embedder, attempts int, delay time.Duration) Embedder {
	if attempts <= 1 {
		return e
	}
	return &retrying{next: e, attempts: attempts, delay: delay}
}

func (r *retrying) Embed(ctx context.Context, text, taskType string) ([]float32, error) {
	var lastErr error
	for attempt := 0; attempt < r.attempts; attempt++ {
		if attempt > 0 {
			if err := backoff.Sleep(ctx, backoff.Linear(attempt-1, r.delay)); err != nil {
				return nil, lastErr
			}
		}
		vec, err := r.next.Embed(ctx, text, taskType)
		var re *RetryableError
		if err == nil || !errors.As(err, &re) {
			return vec, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("embed after %d attempts: %w", r.attempts, lastErr)
}

func (r *retrying) Dimension() int { return r.next.Dimension() }
func (r *retrying) Name() string   { return r.next.Name() }
