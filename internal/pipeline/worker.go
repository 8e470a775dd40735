package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/dgallion1/paperidx/internal/loader"
)

// BatchLoader indexes a list of documents, reporting phase changes.
type BatchLoader interface {
	LoadBatchObserved(ctx context.Context, ids []string, obs loader.Observer) map[string]loader.Result
}

// Worker processes a single load job.
type Worker struct {
	loader BatchLoader
	log    *slog.Logger
}

func NewWorker(l BatchLoader, log *slog.Logger) *Worker {
	return &Worker{loader: l, log: log}
}

// Process loads every document of the job and records the results.
func (w *Worker) Process(ctx context.Context, job *Job) {
	log := w.log.With("job_id", job.ID)
	start := time.Now()

	job.SetStatus(StatusRunning, "loading")
	log.Info("job started", "documents", len(job.DocIDs))

	results := w.loader.LoadBatchObserved(ctx, job.DocIDs, job.Observe)
	job.Finish(results)

	snap := job.Snapshot()
	log.Info("job finished",
		"status", string(snap.Status),
		"succeeded", snap.Progress.Succeeded,
		"failed", snap.Progress.Failed,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
