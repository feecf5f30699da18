package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// RateLimitConfig holds configuration for a specific rate limit
type RateLimitConfig struct {
	Name   string
	Limit  int
	Window time.Duration
	KeyFn  func(*http.Request) string
}

// RateLimit creates a fixed-window rate limiting middleware backed by the
// window counter. Counter errors let the request through.
func (m *Middleware) RateLimit(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if m.counter == nil || !m.cfg.Security.RateLimiting.Enabled || cfg.Limit <= 0 {
				next.ServeHTTP(w, r)
				return
			}

			key := fmt.Sprintf("ratelimit:%s:%s", cfg.Name, cfg.KeyFn(r))
			count, ttl, err := m.counter.IncrWindow(r.Context(), key, cfg.Window)
			if err != nil {
				m.log.Error().Err(err).Str("key", key).Msg("failed to increment rate limit counter")
				next.ServeHTTP(w, r)
				return
			}
			if ttl <= 0 {
				ttl = cfg.Window
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(max(0, cfg.Limit-int(count))))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(ttl).Unix(), 10))

			if int(count) > cfg.Limit {
				w.Header().Set("Retry-After", strconv.FormatInt(int64(ttl.Seconds()), 10))
				writeJSONError(w, http.StatusTooManyRequests, "rate_limit_exceeded", "Too many requests. Please try again later.")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// IPKey returns the client IP address, without the port, as the rate limit key
func (m *Middleware) IPKey(r *http.Request) string {
	return m.ClientIP(r)
}
