package main

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/probeline/probeline/internal/cache"
	"github.com/probeline/probeline/internal/config"
	"github.com/probeline/probeline/internal/handler"
	"github.com/probeline/probeline/internal/metrics"
	"github.com/probeline/probeline/internal/middleware"
	"github.com/probeline/probeline/internal/plugin"
)

type routerDeps struct {
	cfg      *config.Config
	logger   *slog.Logger
	engine   *plugin.Plugin
	cache    *cache.Cache
	verifier middleware.TokenVerifier
	metrics  *metrics.InMemoryRecorder
}

// setupRouter configures the chi router with all routes and middleware.
func setupRouter(d routerDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(d.logger))
	r.Use(middleware.Recoverer(d.logger))
	r.Use(middleware.Security(d.cfg.IsDevelopment()))

	var redisChecker handler.HealthChecker
	var limiter middleware.IngestLimiter
	if d.cache != nil {
		redisChecker = d.cache
		limiter = d.cache
	}

	health := handler.NewHealthHandler(d.engine, redisChecker)
	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)
	r.Get("/metrics", handler.NewMetricsHandler(d.metrics).Metrics)

	if d.cfg.RateLimitEventsEnabled && limiter == nil {
		d.logger.Warn("event rate limiting needs REDIS_URL, limiter disabled")
	}
	rateLimit := middleware.RateLimitConfig{
		Logger:  d.logger,
		Limiter: limiter,
		Enabled: d.cfg.RateLimitEventsEnabled,
		RPS:     d.cfg.RateLimitEventsRPS,
		Burst:   d.cfg.RateLimitEventsBurst,
	}

	eventsHandler := handler.NewEventsHandler(d.engine, d.logger, d.metrics)
	probesHandler := handler.NewProbesHandler(d.engine, d.logger)

	r.Route("/v1", func(r chi.Router) {
		r.Route("/events", func(r chi.Router) {
			r.Use(middleware.IngestAuth(d.logger, d.verifier))
			r.Use(middleware.RateLimitIngest(rateLimit))
			r.Use(middleware.MaxBodySize(d.cfg.MaxRequestBodySize))
			r.Use(middleware.RequireJSON)
			r.Post("/{hook}", eventsHandler.Ingest)
		})

		r.Route("/probes", func(r chi.Router) {
			r.Get("/", probesHandler.List)
			r.Get("/{id}", probesHandler.Get)
			r.With(middleware.IngestAuth(d.logger, d.verifier)).Post("/{id}/flush", probesHandler.Flush)
		})
	})

	r.NotFound(handler.NotFound)
	r.MethodNotAllowed(handler.MethodNotAllowed)

	return r
}
