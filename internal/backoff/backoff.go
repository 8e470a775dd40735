// Package backoff holds the wait policy shared by downloads and calls to
// remote model APIs.
package backoff

import (
	"context"
	"math/rand/v2"
	"time"
)

// MaxWait caps a single wait.
const MaxWait = 30 * time.Second

// Linear returns the wait before retry attempt n (0-indexed): delay grows
// linearly with the attempt, plus up to 10% jitter.
func Linear(attempt int, delay time.Duration) time.Duration {
	if delay <= 0 {
		return 0
	}
	base := delay * time.Duration(attempt+1)
	if base > MaxWait {
		base = MaxWait
	}
	jitter := time.Duration(rand.Int64N(int64(base)/10 + 1))
	return base + jitter
}

// Sleep waits for d, returning ctx.Err() if ctx ends first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
