package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/technosupport/ts-console/internal/alerts"
	"github.com/technosupport/ts-console/internal/api"
	"github.com/technosupport/ts-console/internal/config"
	"github.com/technosupport/ts-console/internal/console"
	"github.com/technosupport/ts-console/internal/events"
	"github.com/technosupport/ts-console/internal/logger"
	"github.com/technosupport/ts-console/internal/middleware"
	"github.com/technosupport/ts-console/internal/platform/paths"
	"github.com/technosupport/ts-console/internal/ratelimit"
	"github.com/technosupport/ts-console/internal/search"
	"github.com/technosupport/ts-console/internal/transport"
	"github.com/technosupport/ts-console/internal/upload"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML config (default config/default.yaml)")
	flag.Parse()

	path := paths.ResolveConfigPath(*configPath)
	cfg, err := config.Load(path, *configPath != "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("console server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := paths.EnsureDirs(cfg.Upload.SpoolDir); err != nil {
		return err
	}

	catalog, err := alerts.NewCatalog(cfg.Alerts.File, log.Named("alerts"))
	if err != nil {
		return err
	}
	catalog.Watch(ctx)

	httpClient := transport.NewHTTPClient(cfg.HTTP.Timeout)

	var sink events.Sink = events.Discard{}
	if cfg.Events.NatsURL != "" {
		nc, err := events.Connect(cfg.Events.NatsURL, log.Named("nats"))
		if err != nil {
			log.Warn("nats connect failed, anomaly events disabled", zap.String("url", cfg.Events.NatsURL), zap.Error(err))
		} else {
			defer nc.Drain()
			sink = events.NewPublisher(nc, events.PublisherOptions{
				Subject:    cfg.Events.Subject,
				MaxRetries: cfg.Events.PublishRetryMax,
				Backoff:    cfg.Events.Backoff,
				Dedup:      events.NewDedup(cfg.Events.DedupMaxKeys, cfg.Events.DedupTTL),
				Logger:     log.Named("events"),
			})
			log.Info("anomaly events enabled", zap.String("subject", cfg.Events.Subject))
		}
	}

	var limits *middleware.RateLimitMiddleware
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()

		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			log.Warn("redis unreachable at startup, rate limits fail open", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		}
		cancel()
		limits = middleware.NewRateLimitMiddleware(ratelimit.NewLimiter(rdb, cfg.Redis.Salt), cfg.RateLimit, log.Named("ratelimit"))
	}

	registry, err := console.NewRegistry(cfg.Console.MaxSessions, console.Deps{
		Analyzer:     upload.NewClient(cfg.Analysis.BaseURL, httpClient),
		Searcher:     search.NewClient(cfg.Search.BaseURL, httpClient),
		MediaBaseURL: cfg.Search.MediaBaseURL,
		Cards:        catalog.Cards,
		Events:       sink,
		Logger:       log.Named("console"),
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr: cfg.Server.Addr,
		Handler: api.NewRouter(api.RouterConfig{
			Registry:       registry,
			RateLimit:      limits,
			CORSOrigins:    cfg.Server.CORSOrigins,
			SpoolDir:       cfg.Upload.SpoolDir,
			MaxUploadBytes: cfg.Upload.MaxBytes,
			Logger:         log.Named("http"),
		}),
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("console server listening",
			zap.String("addr", cfg.Server.Addr),
			zap.String("analysis", cfg.Analysis.BaseURL),
			zap.String("search", cfg.Search.BaseURL))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown incomplete", zap.Error(err))
	}
	registry.Close()
	return nil
}
