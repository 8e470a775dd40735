package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgallion1/paperidx/internal/api"
	"github.com/dgallion1/paperidx/internal/app"
	"github.com/dgallion1/paperidx/internal/config"
	"github.com/dgallion1/paperidx/internal/pipeline"
	"github.com/dgallion1/paperidx/internal/schedule"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize store, embedder and loader.
	comps, err := app.Build(ctx, cfg, log)
	if err != nil {
		log.Error("startup failed", "error", err)
		os.Exit(1)
	}

	// Initialize pipeline.
	orch := pipeline.NewOrchestrator(pipeline.Config{
		WorkerCount:  cfg.WorkerCount,
		MaxQueueSize: cfg.MaxQueueSize,
		JobTTL:       cfg.JobTTL,
	}, comps.Loader, log)
	orch.Start(ctx)

	// Download cache maintenance.
	sched := schedule.NewCronScheduler(log)
	if comps.Cache != nil {
		prune := &schedule.PruneJob{Cache: comps.Cache, MaxAge: cfg.CacheMaxAge, Log: log}
		if err := sched.AddJob(prune, cfg.CachePruneSchedule); err != nil {
			log.Error("invalid cache prune schedule", "schedule", cfg.CachePruneSchedule, "error", err)
			os.Exit(1)
		}
	}
	sched.Start(ctx)

	// Initialize HTTP server.
	deps := api.Deps{
		Store:        comps.Store,
		Loader:       comps.Loader,
		Orchestrator: orch,
		Embedder:     comps.Embedder.Name(),
		EmbedStats:   comps.EmbedStats,
		LLMStats:     comps.LLMStats,
	}
	if comps.Claude != nil {
		deps.LLMModel = cfg.AnthropicModel
	}
	srv := api.NewServer(deps, log, cfg)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	done := make(chan struct{})
	go func() {
		defer close(done)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")

		sched.Stop()
		orch.Stop()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)

		if err := comps.Close(); err != nil {
			log.Error("close store", "error", err)
		}
	}()

	log.Info("starting paperidx", "port", cfg.Port, "store", cfg.StoreBackend)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
	<-done
}
