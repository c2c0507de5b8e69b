package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	rateLimiterCleanupInterval = 5 * time.Minute
	rateLimiterStaleThreshold  = 10 * time.Minute
)

// rateLimiter implements per-user rate limiting using golang.org/x/time/rate.
// Keys are authenticated subjects, not IPs: students behind one campus NAT
// must not share a bucket. Cleanup of stale entries happens inline during
// allow() calls.
type rateLimiter struct {
	mu          sync.Mutex
	visitors    map[string]*visitor
	limit       rate.Limit
	burst       int
	lastCleanup time.Time
}

// visitor holds a limiter and last-seen time for a single user.
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// newRateLimiter creates a limiter allowing perMinute requests per user,
// with a full minute's allowance available as burst.
func newRateLimiter(perMinute int) *rateLimiter {
	return &rateLimiter{
		visitors:    make(map[string]*visitor),
		limit:       rate.Limit(float64(perMinute) / 60.0),
		burst:       perMinute,
		lastCleanup: time.Now(),
	}
}

// allow checks whether a request from the given user may proceed.
func (rl *rateLimiter) allow(user string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()

	if now.Sub(rl.lastCleanup) > rateLimiterCleanupInterval {
		for k, v := range rl.visitors {
			if now.Sub(v.lastSeen) > rateLimiterStaleThreshold {
				delete(rl.visitors, k)
			}
		}
		rl.lastCleanup = now
	}

	v, exists := rl.visitors[user]
	if !exists {
		limiter := rate.NewLimiter(rl.limit, rl.burst)
		rl.visitors[user] = &visitor{
			limiter:  limiter,
			lastSeen: now,
		}
		limiter.Allow()
		return true
	}

	v.lastSeen = now
	return v.limiter.Allow()
}

// retryAfterSeconds is how long a throttled client is told to wait: the
// time for one token to refill, rounded up.
func (rl *rateLimiter) retryAfterSeconds() int {
	if rl.limit <= 0 {
		return 60
	}
	secs := int(1.0/float64(rl.limit)) + 1
	return secs
}

// rateLimitMiddleware limits requests per authenticated user with a token
// bucket. Must run inside authMiddleware so the subject is available.
func rateLimitMiddleware(rl *rateLimiter, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sub, ok := subjectFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
				return
			}

			if !rl.allow(sub) {
				logger.Warn("rate limit exceeded",
					"user", sub,
					"path", r.URL.Path,
					"method", r.Method,
				)
				w.Header().Set("Retry-After", strconv.Itoa(rl.retryAfterSeconds()))
				writeError(w, http.StatusTooManyRequests, "rate_limited", "too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
