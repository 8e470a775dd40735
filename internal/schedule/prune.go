package schedule

import (
	"context"
	"log/slog"
	"time"
)

// Pruner deletes cache entries older than a maximum age.
type Pruner interface {
	Prune(maxAge time.Duration) (int, error)
}

// PruneJob expires old files from the download cache.
type PruneJob struct {
	Cache  Pruner
	MaxAge time.Duration
	Log    *slog.Logger
}

func (j *PruneJob) Name() string { return "cache_prune" }

func (j *PruneJob) Run(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	removed, err := j.Cache.Prune(j.MaxAge)
	if j.Log != nil {
		j.Log.Info("download cache pruned", "removed", removed, "max_age", j.MaxAge)
	}
	return err
}
