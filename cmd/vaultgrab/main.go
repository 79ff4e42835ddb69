package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/seliux/vaultgrab/internal/archive"
	"github.com/seliux/vaultgrab/internal/catalog"
	"github.com/seliux/vaultgrab/internal/config"
	"github.com/seliux/vaultgrab/internal/fetch"
	"github.com/seliux/vaultgrab/internal/http/rest"
	"github.com/seliux/vaultgrab/internal/logctx"
	"github.com/seliux/vaultgrab/internal/notifier"
	"github.com/seliux/vaultgrab/internal/queue"
	"github.com/seliux/vaultgrab/internal/scraper"
	"github.com/seliux/vaultgrab/internal/storage"
	"github.com/seliux/vaultgrab/internal/storage/sqlite"
	"github.com/seliux/vaultgrab/internal/telemetry"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}

	logger := slog.New(logctx.NewTraceHandler(
		slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}),
	))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	slog.Info("vaultgrab starting...", "category", cfg.Category, "log_level", cfg.LogLevel)

	if err := run(logctx.WithLogger(ctx, logger), cfg); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("fatal error", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := logctx.LoggerFromContext(ctx)

	// =========================================================================
	// Start Telemetry
	tel, err := telemetry.New(ctx, telemetry.Config{
		Enabled:     cfg.Telemetry.Enabled,
		ServiceName: cfg.Telemetry.ServiceName,
	})
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}

	defer func() {
		if err := tel.Shutdown(context.Background()); err != nil {
			logger.Error("failed to shutdown telemetry", "err", err)
		}
	}()

	// =========================================================================
	// Start Download History
	var history storage.HistoryRepository

	if cfg.DBPath != "" {
		database, err := sqlite.Open(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("failed to open history database: %w", err)
		}
		defer database.Close()

		history = sqlite.NewHistoryRepository(database)

		logger.Info("download history enabled", "db_path", cfg.DBPath)
	}

	// =========================================================================
	// Start Transport and Engines
	client := fetch.NewClient(fetch.Config{
		Timeout:     cfg.RequestTimeout,
		MaxRetries:  uint(cfg.MaxRetries),
		BaseDelay:   cfg.RetryBaseDelay,
		MinInterval: cfg.RequestDelay,
	})

	scr := scraper.New(client, tel, scraper.Config{
		Category:        cfg.Category,
		Letters:         cfg.Letters,
		Concurrency:     cfg.ConcurrentScrapes,
		RequestDelay:    cfg.RequestDelay,
		MinimumScore:    cfg.MinimumScore,
		SiteBaseURL:     cfg.SiteBaseURL,
		DownloadBaseURL: cfg.DownloadBaseURL,
	})

	if m, ok := catalog.SystemFor(cfg.Category); ok {
		logger.Info("category mapped", "system", m.FullName, "folder", m.Folder)
	} else {
		logger.Warn("category has no system mapping, using fallback folder",
			"category", cfg.Category, "folder", catalog.FolderFor(cfg.Category))
	}

	namer := &catalog.Namer{BaseDir: cfg.RomDir, Normalized: cfg.NormalizedNaming}

	engine := queue.NewEngine(client, &archive.Extractor{Namer: namer}, tel, history, queue.Config{
		DownloadDir: cfg.DownloadDir,
		TaskDelay:   cfg.DownloadDelay,
		MaxRetries:  cfg.MaxRetries,
		BaseDelay:   cfg.RetryBaseDelay,
		ChunkSize:   cfg.ChunkSize,
	})

	// =========================================================================
	// Start API Service

	// Make a channel to listen for errors coming from the listener. Use a
	// buffered channel so the goroutine can exit if we don't collect this error.
	serverErrors := make(chan error, 1)

	server := &http.Server{
		Addr:         cfg.Web.BindAddress,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		Handler:      rest.NewStatusHandler(engine, scr, tel).Routes(),
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		logger.Info("initializing status API", "host", cfg.Web.BindAddress)
		serverErrors <- server.ListenAndServe()
	}()

	defer shutdownServer(ctx, server, cfg)

	var notif notifier.Notifier
	if cfg.DiscordWebhookURL != "" {
		notif = &notifier.DiscordNotifier{WebhookURL: cfg.DiscordWebhookURL}
	}

	// =========================================================================
	// Scrape Phase
	logger.Info("scraping catalog",
		"category", cfg.Category,
		"letters", len(cfg.Letters),
		"minimum_score", cfg.MinimumScore,
	)

	var items []catalog.ItemRecord

	for record := range scr.Run(ctx) {
		if len(record.Parts) == 0 {
			continue
		}

		items = append(items, record)
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}

	progress := scr.Progress()
	logger.Info("scrape phase complete",
		"items", len(items),
		"skipped", progress.ItemsSkipped,
		"errors", len(progress.Errors),
	)

	// =========================================================================
	// Download Phase
	tasks := engine.EnqueueBatch(items)
	logger.Info("queue populated", "tasks", len(tasks))

	done := engine.Process(ctx)

	for {
		select {
		case err := <-serverErrors:
			return fmt.Errorf("server error: %w", err)
		case <-ctx.Done():
			logger.Info("start shutdown")
			engine.Cancel()

			return ctx.Err()
		case task, ok := <-done:
			if !ok {
				snap := engine.Snapshot()
				logger.Info("queue drained", "completed", snap.Completed, "failed", snap.Failed)
				notify(ctx, notif, fmt.Sprintf("✅ Queue drained: %d completed, %d failed", snap.Completed, snap.Failed))

				return nil
			}

			if task.Status == queue.StatusFailed {
				logger.Error("task failed permanently", "title", task.Item.Title, "part", task.Part.Label, "err", task.Error)
				notify(ctx, notif, "❌ Download failed: "+task.Item.Title+" ("+task.Part.Label+")")
			}
		}
	}
}

func notify(ctx context.Context, notif notifier.Notifier, content string) {
	if notif == nil {
		return
	}

	if err := notif.Notify(ctx, content); err != nil {
		logctx.LoggerFromContext(ctx).Error("failed to send notification", "err", err)
	}
}

// shutdownServer gives outstanding requests a deadline for completion.
func shutdownServer(ctx context.Context, server *http.Server, cfg *config.Config) {
	logger := logctx.LoggerFromContext(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to gracefully shutdown the server", "err", err)

		if err := server.Close(); err != nil {
			logger.Error("could not stop server", "err", err)
		}
	}
}
