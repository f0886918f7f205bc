// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements an in-memory token-bucket rate limiter with one
// bucket per caller and opportunistic eviction of idle buckets.
//
//   - Per-key buckets from golang.org/x/time/rate
//   - Pluggable identity (user ID or client IP)
//   - Idempotent replays marked by IdempotencyValidator are never limited
//
// The limiter is process-local and meant for abuse control, not
// authorization.
package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// KeyFunc selects the identity used to key a rate-limit bucket.
type KeyFunc func(*gin.Context) string

// KeyByUserOrIP keys by the identity set by Identity, falling back to the
// client IP. Keys are prefixed so the two namespaces never collide.
func KeyByUserOrIP() KeyFunc {
	return func(c *gin.Context) string {
		if uid := UserID(c); uid != "" {
			return "user:" + uid
		}
		return "ip:" + c.ClientIP()
	}
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is a per-key token-bucket limiter. Safe for concurrent use.
type RateLimiter struct {
	rps      rate.Limit
	burst    int
	keyFn    KeyFunc
	mu       sync.Mutex
	visitors map[string]*visitor

	ttl     time.Duration
	sweepN  uint64
	sweepAt uint64
	nowFn   func() time.Time
}

// NewRateLimiter returns a limiter refilling rps tokens per second with the
// given burst (coerced to at least 1).
func NewRateLimiter(rps float64, burst int, keyFn KeyFunc) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	if keyFn == nil {
		keyFn = KeyByUserOrIP()
	}
	return &RateLimiter{
		rps:      rate.Limit(rps),
		burst:    burst,
		keyFn:    keyFn,
		visitors: make(map[string]*visitor),
		ttl:      10 * time.Minute,
		sweepAt:  5000,
		nowFn:    time.Now,
	}
}

// limiter returns the bucket for key, creating it on first use. Every sweepAt
// lookups, buckets idle for at least ttl are evicted first, so a stale bucket
// is dropped even when it is the one being fetched.
func (rl *RateLimiter) limiter(key string) *rate.Limiter {
	now := rl.nowFn()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.sweepN++
	if rl.sweepN >= rl.sweepAt {
		for k, v := range rl.visitors {
			if now.Sub(v.lastSeen) >= rl.ttl {
				delete(rl.visitors, k)
			}
		}
		rl.sweepN = 0
	}

	if v, ok := rl.visitors[key]; ok {
		v.lastSeen = now
		return v.limiter
	}
	lim := rate.NewLimiter(rl.rps, rl.burst)
	rl.visitors[key] = &visitor{limiter: lim, lastSeen: now}
	return lim
}

// IsRateBypass reports whether IdempotencyValidator marked this request as a
// replay that must not consume tokens.
func IsRateBypass(c *gin.Context) bool {
	return c.GetBool(ctxKeyRateBypass)
}

// retryAfter is the whole number of seconds until lim has a token again.
func retryAfter(lim *rate.Limiter) string {
	if lim.Limit() <= 0 {
		return "60"
	}
	secs := math.Ceil(1 / float64(lim.Limit()))
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(int(secs))
}

// Handler enforces the per-key limits. Over-limit requests get 429 with a
// Retry-After header and the standard error envelope.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsRateBypass(c) {
			c.Next()
			return
		}

		lim := rl.limiter(rl.keyFn(c))
		if lim.Allow() {
			c.Next()
			return
		}

		rid, _ := c.Get(requestIDKey)
		c.Header("Retry-After", retryAfter(lim))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"request_id": asString(rid),
			"code":       "rate_limited",
			"message":    "rate limit exceeded",
		})
	}
}
