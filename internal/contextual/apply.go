package contextual

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgallion1/paperidx/internal/backoff"
	"github.com/dgallion1/paperidx/internal/doctree"
)

// Situator writes the context passage for one chunk.
type Situator interface {
	Situate(ctx context.Context, title, document, section, chunk string) (string, error)
}

// Apply sets ContextPrefix on each chunk in place and returns how many were
// set. A failed chunk keeps an empty prefix and processing continues.
func Apply(ctx context.Context, s Situator, title, document string, chunks []doctree.Chunk, log *slog.Logger) int {
	if s == nil {
		return 0
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	applied := 0
	for i := range chunks {
		if ctx.Err() != nil {
			break
		}
		prefix, err := s.Situate(ctx, title, document, chunks[i].SectionTitle, chunks[i].Text)
		if err != nil {
			log.Warn("context prefix failed", "chunk_index", chunks[i].ChunkIndex, "error", err)
			continue
		}
		chunks[i].ContextPrefix = prefix
		applied++
	}
	return applied
}

type retrying struct {
	next     Situator
	attempts int
	delay    time.Duration
}

// Retrying retries Situate calls that fail with a *RetryableError (429 or
// 5xx), up to attempts calls in total, waiting backoff.Linear between them.
func Retrying(s Situator, attempts int, delay time.Duration) Situator {
	if s == nil || attempts <= 1 {
		return s
	}
	return &retrying{next: s, attempts: attempts, delay: delay}
}

func (r *retrying) Situate(ctx context.Context, title, document, section, chunk string) (string, error) {
	var lastErr error
	for attempt := 0; attempt < r.attempts; attempt++ {
		if attempt > 0 {
			if err := backoff.Sleep(ctx, backoff.Linear(attempt-1, r.delay)); err != nil {
				return "", lastErr
			}
		}
		prefix, err := r.next.Situate(ctx, title, document, section, chunk)
		var re *RetryableError
		if err == nil || !errors.As(err, &re) {
			return prefix, err
		}
		lastErr = err
	}
	return "", fmt.Errorf("situate after %d attempts: %w", r.attempts, lastErr)
}
