package loader

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

const (
	DefaultConcurrency = 4
	MaxConcurrency     = 16
)

func clampConcurrency(n int) int {
	if n <= 0 {
		return DefaultConcurrency
	}
	return min(n, MaxConcurrency)
}

// LoadBatch indexes ids through a bounded pool and returns one result per
// distinct id.
func (l *Loader) LoadBatch(ctx context.Context, ids []string) map[string]Result {
	return l.LoadBatchObserved(ctx, ids, nil)
}

// LoadBatchObserved is LoadBatch with phase changes reported to obs.
//
// Once ctx is cancelled no further documents start; they are reported as
// CANCELLED. Documents already running finish
// on a context detached from the cancellation.
func (l *Loader) LoadBatchObserved(ctx context.Context, ids []string, obs Observer) map[string]Result {
	var (
		mu      sync.Mutex
		results = make(map[string]Result, len(ids))
	)
	set := func(r Result) {
		mu.Lock()
		results[r.DocID] = r
		mu.Unlock()
	}
	cancelled := func(id string) {
		set(Result{DocID: id, Status: StatusCancelled, Message: "batch cancelled before start", Err: ctx.Err()})
		if obs != nil {
			obs(id, StatusCancelled)
		}
	}

	detached := context.WithoutCancel(ctx)
	var g errgroup.Group
	g.SetLimit(l.concurrency)

	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		if ctx.Err() != nil {
			cancelled(id)
			continue
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				cancelled(id)
				return nil
			}
			set(l.load(detached, id, obs))
			return nil
		})
	}
	g.Wait()
	return results
}
