package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/kumc-bmi/heron-portal/pkg/httputil"
	"github.com/kumc-bmi/heron-portal/pkg/observability"
)

// RateLimitConfig bounds requests per client IP within a window
type RateLimitConfig struct {
	RequestsPerWindow int
	WindowDuration    time.Duration
}

// LoginRateLimitConfig is the default bound on authentication attempts
func LoginRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{RequestsPerWindow: 10, WindowDuration: time.Minute}
}

// RateLimiter is a fixed-window counter shared across portal instances
// through Redis. It fails open: when Redis is unreachable, requests
// pass and the error is logged.
type RateLimiter struct {
	redis  *redis.Client
	cfg    RateLimitConfig
	prefix string
	logger *observability.Logger
}

// NewRateLimiter creates a Redis-backed limiter
func NewRateLimiter(client *redis.Client, cfg RateLimitConfig, prefix string, logger *observability.Logger) *RateLimiter {
	if cfg.RequestsPerWindow <= 0 {
		cfg = LoginRateLimitConfig()
	}
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &RateLimiter{redis: client, cfg: cfg, prefix: prefix, logger: logger}
}

// Allow counts one request for the key and reports whether it is
// within the window's budget.
func (rl *RateLimiter) Allow(r *http.Request, key string) bool {
	ctx := r.Context()
	redisKey := fmt.Sprintf("%s:%s", rl.prefix, key)

	pipe := rl.redis.Pipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, rl.cfg.WindowDuration)
	if _, err := pipe.Exec(ctx); err != nil {
		rl.logger.WithError(err).Warn("rate limiter unavailable; allowing request")
		return true
	}

	return incr.Val() <= int64(rl.cfg.RequestsPerWindow)
}

// Middleware rejects over-limit requests keyed by client IP
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(r, httputil.ClientIP(r)) {
			w.Header().Set("Retry-After", fmt.Sprintf("%d", int(rl.cfg.WindowDuration.Seconds())))
			httputil.WriteErrorMessage(w, http.StatusTooManyRequests, "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}
