package middleware

import (
	"context"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"

	"github.com/probeline/probeline/internal/cache"
)

// IngestLimiter consumes rate limit tokens per client.
type IngestLimiter interface {
	CheckIngestRateLimit(ctx context.Context, clientIP string, ratePerSecond, burst int) (*cache.RateLimitResult, error)
}

// RateLimitConfig configures per-client ingestion limiting.
type RateLimitConfig struct {
	Logger  *slog.Logger
	Limiter IngestLimiter
	Enabled bool
	RPS     int
	Burst   int
}

// RateLimitIngest limits event ingestion per client IP.
func RateLimitIngest(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !cfg.Enabled || cfg.Limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			result, err := cfg.Limiter.CheckIngestRateLimit(r.Context(), ip, cfg.RPS, cfg.Burst)
			if err != nil {
				cfg.Logger.Error("rate limit check failed",
					slog.String("error", err.Error()),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.Burst))
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(result.Remaining, 10))

			if !result.Allowed {
				retry := int(math.Ceil(result.RetryAfter.Seconds()))
				if retry < 1 {
					retry = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retry))
				cfg.Logger.Warn("ingest rate limited",
					slog.String("endpoint", r.Method+" "+r.URL.Path),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
