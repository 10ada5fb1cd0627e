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

	"github.com/lysyi3m/rss-radar/app/api"
	"github.com/lysyi3m/rss-radar/app/cfg"
	"github.com/lysyi3m/rss-radar/app/database"
	"github.com/lysyi3m/rss-radar/app/feed"
	"github.com/lysyi3m/rss-radar/app/metrics"
	"github.com/lysyi3m/rss-radar/app/radar"
	"github.com/lysyi3m/rss-radar/app/tasks"
)

func main() {
	config, err := cfg.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if config == nil {
		// Help was shown
		return
	}

	setupLogger(config.Debug)

	if err := run(config); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

func setupLogger(debug bool) {
	var handler slog.Handler
	if debug {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	}
	slog.SetDefault(slog.New(handler))
}

func run(config *cfg.Cfg) error {
	ctx := context.Background()
	slog.Info("Starting RSS Radar", "version", config.Version, "db_path", config.DBPath)

	db, err := database.NewConnection(config.DBPath)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	sourceRepo := database.NewSourceRepository(db)
	settingsRepo := database.NewSettingsRepository(db)
	itemRepo := database.NewItemRepository(db)
	summaryRepo := database.NewSummaryRepository(db)
	runRepo := database.NewRunRepository(db)

	if stale, err := runRepo.FailStaleRuns(ctx, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to close stale runs: %w", err)
	} else if stale > 0 {
		slog.Warn("Marked interrupted runs as failed", "count", stale)
	}

	if _, err := radar.SyncSourcesFile(ctx, sourceRepo, config.SourcesFile); err != nil {
		return fmt.Errorf("failed to load sources file: %w", err)
	}

	m := metrics.New()
	settingsService := radar.NewSettingsService(settingsRepo, sourceRepo)

	settings, err := settingsService.GetActive(ctx)
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	httpClient := &http.Client{Timeout: config.FetchTimeout}
	fetcher := feed.NewFetcher(httpClient, feed.NewParser(), config.UserAgent, config.FetchTimeout, config.FeedURLTemplate)

	scanner := radar.NewScanner(settingsService, sourceRepo, itemRepo, runRepo, fetcher,
		feed.NewFilterer(), feed.NewScorer(), radar.NewLogNotifier(), radar.TimerPauser{}, m)
	enricher := radar.NewEnricher(itemRepo, summaryRepo, settingsService, fetcher,
		feed.NewContentExtractor(), radar.NewHeuristicSummarizer(), m)

	interval := settings.ScanIntervalMinutes
	if config.DisableScheduler {
		interval = 0
	}
	scheduler := tasks.NewScheduler(scanner, interval)
	settingsService.OnUpdate(func(updated database.Settings) {
		if err := scheduler.Reschedule(updated.ScanIntervalMinutes); err != nil {
			slog.Error("Failed to reschedule scans", "interval_minutes", updated.ScanIntervalMinutes, "error", err)
		}
	})
	scheduler.Start()
	defer scheduler.Stop()

	if config.ScanOnStart {
		if err := scheduler.EnqueueScan(radar.TriggerStartup); err != nil {
			slog.Warn("Failed to queue startup scan", "error", err)
		}
	}

	handler := api.NewHandler(db, settingsService, itemRepo, summaryRepo, runRepo, scanner, enricher, scheduler, m)

	// Synchronous scans can take minutes, so there is no write timeout.
	httpServer := &http.Server{
		Addr:              ":" + config.Port,
		Handler:           api.NewServer(handler, m),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "port", config.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	var serveErr error
	select {
	case sig := <-sigChan:
		slog.Info("Received signal", "signal", sig.String())
	case serveErr = <-serverErrChan:
	}

	slog.Info("Shutting down server gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	return serveErr
}
