package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// ingestLimitPrefix is the Redis key prefix for per-client ingestion limits.
	ingestLimitPrefix = "ratelimit:ingest:"
	// ingestLimitTTL bounds how long an idle bucket survives.
	ingestLimitTTL = 10 * time.Second
)

// RateLimitResult contains the result of a rate limit check.
type RateLimitResult struct {
	Allowed    bool
	Remaining  int64
	RetryAfter time.Duration
}

// tokenBucketScript refills and consumes a token bucket atomically.
// Time is in milliseconds so high rates refill smoothly.
var tokenBucketScript = redis.NewScript(`
	local key = KEYS[1]
	local rate = tonumber(ARGV[1])      -- tokens per second
	local burst = tonumber(ARGV[2])     -- bucket capacity
	local now = tonumber(ARGV[3])       -- milliseconds
	local ttl = tonumber(ARGV[4])       -- seconds

	local data = redis.call('HMGET', key, 'tokens', 'updated_ms')
	local tokens = tonumber(data[1]) or burst
	local updated = tonumber(data[2]) or now

	tokens = math.min(burst, tokens + ((now - updated) / 1000) * rate)

	local allowed = 0
	local retry_ms = 0
	if tokens >= 1 then
		tokens = tokens - 1
		allowed = 1
	else
		retry_ms = math.ceil(((1 - tokens) / rate) * 1000)
	end

	redis.call('HSET', key, 'tokens', tokens, 'updated_ms', now)
	redis.call('EXPIRE', key, ttl)

	return {allowed, retry_ms, math.floor(tokens)}
`)

// CheckIngestRateLimit consumes one token from the bucket of clientIP.
// The IP is hashed before it is used as a key. Redis errors fail open.
func (c *Cache) CheckIngestRateLimit(ctx context.Context, clientIP string, ratePerSecond, burst int) (*RateLimitResult, error) {
	if ratePerSecond <= 0 {
		return &RateLimitResult{Allowed: true, Remaining: int64(burst)}, nil
	}

	key := ingestLimitPrefix + hashIP(clientIP)
	result, err := tokenBucketScript.Run(ctx, c.client,
		[]string{key},
		ratePerSecond, burst, time.Now().UnixMilli(), int(ingestLimitTTL.Seconds()),
	).Int64Slice()
	if err != nil {
		return &RateLimitResult{Allowed: true, Remaining: int64(burst)}, nil
	}

	return &RateLimitResult{
		Allowed:    result[0] == 1,
		RetryAfter: time.Duration(result[1]) * time.Millisecond,
		Remaining:  result[2],
	}, nil
}

// hashIP returns 16 hex chars of the SHA256 of ip.
func hashIP(ip string) string {
	sum := sha256.Sum256([]byte(ip))
	return hex.EncodeToString(sum[:8])
}
