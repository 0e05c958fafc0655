package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"golang.org/x/time/rate"

	"github.com/carwatch/olx-monitor/internal/browser"
	"github.com/carwatch/olx-monitor/internal/config"
	"github.com/carwatch/olx-monitor/internal/notifier"
	"github.com/carwatch/olx-monitor/internal/processor"
	"github.com/carwatch/olx-monitor/internal/scheduler"
	"github.com/carwatch/olx-monitor/internal/scraper"
	"github.com/carwatch/olx-monitor/internal/server"
	"github.com/carwatch/olx-monitor/internal/storage"
)

func main() {
	slog.Info("Starting OLX car monitor...")
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Critical error loading configuration", "error", err)
		os.Exit(1)
	}
	setupLogging(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	store, err := storage.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Critical error initializing storage", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	launcher, err := browser.NewLauncher(cfg)
	if err != nil {
		slog.Error("Critical error selecting renderer", "error", err)
		os.Exit(1)
	}

	n := notifier.New(notifier.Options{
		APIURL:   cfg.ResendAPIURL,
		APIKey:   cfg.ResendAPIKey,
		From:     cfg.EmailFrom,
		To:       cfg.EmailTo,
		Location: cfg.Location,
	})

	crawler := processor.New(launcher, store, store, n, processor.Options{
		Cities:  cfg.Cities,
		Scraper: scraperOptions(cfg),
	})

	schedulerDone := make(chan struct{})
	go func() {
		defer close(schedulerDone)
		scheduler.New(crawler, cfg.CrawlInterval, cfg.RunOnStart).Run(ctx)
	}()

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      server.New(crawler, store, cfg.Location).Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Minute, // POST /trigger runs a whole cycle
		IdleTimeout:  60 * time.Second,
	}

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		slog.Info("Received signal, shutting down gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP server shutdown error", "error", err)
		}
	}()

	slog.Info("Listening on port", "port", cfg.Port, "regions", len(scraper.MapRegions(cfg.Cities)), "renderer", cfg.Renderer)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("Failed to listen and serve", "error", err)
		os.Exit(1)
	}
	// In-flight triggers and scheduled cycles may still be writing; the
	// deferred store.Close runs after both drain.
	<-shutdownDone
	<-schedulerDone
	slog.Info("Server stopped.")
}

func setupLogging(cfg *config.Config) {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	var handler slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func scraperOptions(cfg *config.Config) scraper.Options {
	limit := rate.Inf
	if cfg.NavigationRPS > 0 {
		limit = rate.Limit(cfg.NavigationRPS)
	}
	return scraper.Options{
		ListingWait: scraper.WaitPolicy{Until: scraper.WaitDOMContentLoaded, Timeout: cfg.ListingTimeout, Settle: cfg.ListingSettle},
		DetailWait:  scraper.WaitPolicy{Until: scraper.WaitNetworkIdle, Timeout: cfg.DetailTimeout, Settle: cfg.DetailSettle},
		Strategies:  scraper.DefaultStrategies(cfg.FIPETextFallback),
		Limiter:     rate.NewLimiter(limit, 1),
	}
}
