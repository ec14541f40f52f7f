// Package main is the entrypoint for the probeline daemon.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/probeline/probeline/internal/auth"
	"github.com/probeline/probeline/internal/cache"
	"github.com/probeline/probeline/internal/config"
	"github.com/probeline/probeline/internal/events"
	"github.com/probeline/probeline/internal/metrics"
	"github.com/probeline/probeline/internal/middleware"
	"github.com/probeline/probeline/internal/plugin"
	"github.com/probeline/probeline/internal/probe"
	"github.com/probeline/probeline/internal/server"
	"github.com/probeline/probeline/internal/storage"
)

func main() {
	if err := run(); err != nil {
		slog.Error("probed exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := initLogger(cfg)

	raw, err := config.LoadPluginConfig(cfg.ProbesConfig)
	if err != nil {
		return err
	}
	secrets := databaseSecrets(raw)

	recorder := metrics.NewInMemory()
	engine, err := plugin.Initialize(ctx, raw, plugin.Options{
		Dummy:        cfg.Dummy,
		Logger:       logger,
		Metrics:      recorder,
		QueueSize:    cfg.WatcherQueueSize,
		FlushTimeout: cfg.FlushTimeout,
	})
	if err != nil {
		return fmt.Errorf("initialize probes: %s", sanitizeError(err, secrets...))
	}
	logger.Info("probes initialized",
		"active", len(engine.Probes()),
		"rejected", len(engine.Rejected()),
		"dummy", engine.Dummy(),
	)

	var cacheClient *cache.Cache
	if cfg.StreamEnabled() {
		cacheClient, err = cache.New(ctx, cfg.RedisURL)
		if err != nil {
			logger.Error("failed to connect to Redis",
				slog.String("error", sanitizeError(err, cfg.RedisURL)),
				slog.String("redis_url", redactURL(cfg.RedisURL)),
			)
			_ = engine.Shutdown(context.Background())
			return fmt.Errorf("connect redis: %s", sanitizeError(err, cfg.RedisURL))
		}
		defer cacheClient.Close()
		logger.Info("connected to Redis")
	}

	var verifier middleware.TokenVerifier
	if cfg.IngestTokenHash != "" {
		v, err := auth.NewVerifier(cfg.IngestTokenHash)
		if err != nil {
			_ = engine.Shutdown(context.Background())
			return fmt.Errorf("INGEST_TOKEN_HASH: %w", err)
		}
		verifier = v
	} else if cfg.IsProduction() {
		logger.Warn("INGEST_TOKEN_HASH not set, event ingestion is unauthenticated")
	}

	router := setupRouter(routerDeps{
		cfg:      cfg,
		logger:   logger,
		engine:   engine,
		cache:    cacheClient,
		verifier: verifier,
		metrics:  recorder,
	})

	srv := server.New(router, cfg.AppPort, cfg.ReadTimeout, cfg.WriteTimeout, cfg.ShutdownTimeout, logger)
	// registered first, stopped last: the final flush sees every event
	srv.OnShutdown("plugin", engine.Shutdown)

	g, gctx := errgroup.WithContext(ctx)
	if cacheClient != nil {
		consumer := events.NewConsumer(cacheClient.Client(), engine, logger, events.NewConsumerID(), recorder)
		consumer.SetBatchSize(cfg.StreamBatchSize)
		consumer.SetBlockTimeout(cfg.StreamBlockTimeout)
		consumer.SetClaimIdle(cfg.StreamClaimIdle)
		srv.OnShutdown("events.consumer", consumer.Shutdown)
		g.Go(func() error {
			return consumer.Run(gctx)
		})
	}

	logger.Info("starting server",
		"port", cfg.AppPort,
		"env", cfg.AppEnv,
		"stream", cfg.StreamEnabled(),
	)
	g.Go(func() error {
		return srv.Run(gctx)
	})

	return g.Wait()
}

// initLogger initializes the slog logger based on configuration.
func initLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.LogLevel)}

	var h slog.Handler
	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(h)
	slog.SetDefault(logger)
	return logger
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// databaseSecrets returns the raw databases entries so they can be scrubbed
// from error messages.
func databaseSecrets(raw map[string]any) []string {
	list, _ := raw[probe.KeyDatabases].([]any)
	out := make([]string, 0, len(list))
	for _, v := range list {
		s, ok := v.(string)
		if !ok {
			continue
		}
		out = append(out, s)
		if target, err := storage.ParseTarget(s); err == nil {
			out = append(out, target.URL)
		}
	}
	return out
}
