package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/lysyi3m/feed-sync/app/api"
	"github.com/lysyi3m/feed-sync/app/cfg"
	"github.com/lysyi3m/feed-sync/app/database"
	"github.com/lysyi3m/feed-sync/app/feed"
	"github.com/lysyi3m/feed-sync/app/logger"
	"github.com/lysyi3m/feed-sync/app/metrics"
	"github.com/lysyi3m/feed-sync/app/syncer"
	"github.com/lysyi3m/feed-sync/app/tags"
	"github.com/lysyi3m/feed-sync/app/tasks"
)

func main() {
	appCfg, err := cfg.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if appCfg == nil {
		// help was shown
		return
	}

	if err := run(appCfg); err != nil {
		slog.Error("Fatal error", "error", err)
		os.Exit(1)
	}
}

func run(appCfg *cfg.Cfg) error {
	output, closer := logger.Output(appCfg.LogFile)
	defer closer.Close()
	logger.Setup(output, appCfg.Debug)

	slog.Info("Starting Feed Sync", "version", appCfg.Version, "timezone", time.Local.String())

	db, err := database.NewConnection(appCfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	version, dirty, err := database.RunMigrations(db)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Info("Database ready", "path", appCfg.DBPath, "schema_version", version, "dirty", dirty)

	configCache := feed.NewConfigCache(appCfg.FeedsDir)
	if err := configCache.Run(); err != nil {
		return fmt.Errorf("failed to load feed configurations: %w", err)
	}
	slog.Info("Feed configurations loaded", "dir", appCfg.FeedsDir, "count", configCache.GetConfigCount())

	postStore := database.NewPostStore(db)
	eventStore := database.NewEventStore(db)
	metadataStore := database.NewMetadataStore(db)

	client := feed.NewClient(appCfg.UserAgent, appCfg.RequestsPerSecond)
	parser := feed.NewParser(time.Local)

	tagStore := tags.NewStore(appCfg.DataDir, appCfg.TagListURL, client, metadataStore)
	if err := tagStore.Load(); err != nil {
		return fmt.Errorf("failed to load tag list: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := tagStore.Watch(ctx); err != nil {
			slog.Warn("Tag list watcher stopped", "path", tagStore.Path(), "error", err)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	gate := syncer.NewGate(client, parser)
	orchestrator := syncer.NewOrchestrator(
		configCache,
		syncer.NewPostEngine(gate, client, parser, postStore, metadataStore, tagStore),
		syncer.NewEventEngine(gate, client, parser, eventStore, metadataStore),
		metadataStore,
		collector,
		time.Local,
	)

	slog.Info("Starting background scheduler", "workers", appCfg.WorkerCount, "interval", appCfg.GetSchedulerInterval())
	scheduler := tasks.NewScheduler(configCache, orchestrator, tagStore, metadataStore, collector, tasks.Options{
		WorkerCount:     appCfg.WorkerCount,
		Interval:        appCfg.GetSchedulerInterval(),
		TagListInterval: appCfg.GetTagListInterval(),
	})
	scheduler.Start()
	defer scheduler.Stop()

	handler := api.NewHandler(api.HandlerDeps{
		Configs:   configCache,
		Posts:     postStore,
		Events:    eventStore,
		Metadata:  metadataStore,
		Tags:      tagStore,
		Syncer:    orchestrator,
		Scheduler: scheduler,
		Generator: feed.NewGenerator(appCfg.PublicURL, appCfg.Version),
		Recorder:  collector,
		Location:  time.Local,
	})

	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      api.NewServer(handler, appCfg.APIAccessKey, metrics.Handler(registry)),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // synchronous sync requests
		IdleTimeout:  120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "port", appCfg.Port, "public_url", appCfg.PublicURL)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("Shutdown signal received")
	case err := <-serverErr:
		slog.Error("Server error", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("HTTP server stopped")
	}

	// scheduler.Stop and db.Close run via defer
	slog.Info("Feed Sync shutdown complete")
	return nil
}
