// Package schedule runs periodic maintenance on cron specs.
package schedule

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
)

type Job interface {
	Name() string
	Run(ctx context.Context) error
}

type CronScheduler struct {
	cron    *cron.Cron
	entries map[string]cron.EntryID
	log     *slog.Logger
	ctx     context.Context
}

// NewCronScheduler accepts five-field specs and descriptors such as
// "@every 6h" or "@daily".
func NewCronScheduler(log *slog.Logger) *CronScheduler {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	return &CronScheduler{
		cron:    cron.New(cron.WithParser(parser)),
		entries: make(map[string]cron.EntryID),
		log:     log,
	}
}

func (c *CronScheduler) AddJob(job Job, spec string) error {
	name := job.Name()
	logger := c.log.With("job", name, "spec", spec)
	entryID, err := c.cron.AddFunc(spec, c.wrap(job, spec))
	if err != nil {
		logger.Error("schedule job failed", "error", err)
		return err
	}
	c.entries[name] = entryID
	logger.Info("job scheduled")
	return nil
}

func (c *CronScheduler) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	c.ctx = ctx
	c.cron.Start()
}

// Stop waits for running jobs to return.
func (c *CronScheduler) Stop() {
	ctx := c.cron.Stop()
	<-ctx.Done()
}

// RunNow runs the named job immediately, subject to the same overlap guard
// as scheduled runs. It reports false for an unknown job.
func (c *CronScheduler) RunNow(name string) bool {
	id, ok := c.entries[name]
	if !ok {
		return false
	}
	c.cron.Entry(id).WrappedJob.Run()
	return true
}

func (c *CronScheduler) wrap(job Job, spec string) func() {
	var running atomic.Bool
	return func() {
		logger := c.log.With("job", job.Name(), "spec", spec)
		if !running.CompareAndSwap(false, true) {
			logger.Info("job skipped: still running")
			return
		}
		defer running.Store(false)

		ctx := c.ctx
		if ctx == nil {
			ctx = context.Background()
		}
		start := time.Now()
		logger.Info("job started")
		err := job.Run(ctx)
		elapsed := time.Since(start)
		if err != nil {
			logger.Error("job finished", "error", err, "duration", elapsed)
			return
		}
		logger.Info("job finished", "duration", elapsed)
	}
}
