package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// keyFunc maps a request to the identity string that keys its token bucket,
// e.g. "profile:<id>" or "ip:<addr>".
type keyFunc func(*gin.Context) string

// KeyByProfileOrIP keys buckets by the authenticated profile when the
// identity middleware stored one under "profileID", falling back to the
// client IP. Keys carry a namespace prefix so a profile named like an IP
// cannot collide with real IP buckets.
func KeyByProfileOrIP() keyFunc {
	return func(c *gin.Context) string {
		if v, ok := c.Get("profileID"); ok {
			if s, ok := v.(string); ok && s != "" {
				return "profile:" + s
			}
		}
		return "ip:" + c.ClientIP()
	}
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is a process-local token-bucket limiter with one bucket per
// caller identity. Buckets are created on demand; idle ones are evicted
// opportunistically so the map stays bounded. This protects a single
// instance from abuse; a horizontally scaled deployment needs a shared
// (Redis-backed) limiter to enforce global limits.
//
// Safe for concurrent use.
type RateLimiter struct {
	rps      rate.Limit
	burst    int
	keyFn    keyFunc
	mu       sync.Mutex
	visitors map[string]*visitor

	ttl      time.Duration
	cleanupN uint64
}

// NewRateLimiter builds a limiter replenishing rps tokens per second with
// the given burst, keyed by keyFn. A burst <= 0 is coerced to 1. Install it
// with Handler().
func NewRateLimiter(rps float64, burst int, keyFn keyFunc) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		rps:      rate.Limit(rps),
		burst:    burst,
		keyFn:    keyFn,
		visitors: make(map[string]*visitor),
		ttl:      10 * time.Minute,
	}
}

// getVisitor returns the bucket for key, creating it if absent. Every ~5000
// lookups it sweeps entries idle for >= ttl. The sweep runs before the
// requested key is touched so a stale bucket is evicted even when it is the
// one being fetched.
func (rl *RateLimiter) getVisitor(key string) *rate.Limiter {
	now := time.Now()

	rl.mu.Lock()
	rl.cleanupN++
	if rl.cleanupN >= 5000 {
		for k, vv := range rl.visitors {
			if now.Sub(vv.lastSeen) >= rl.ttl {
				delete(rl.visitors, k)
			}
		}
		rl.cleanupN = 0
	}

	if v, ok := rl.visitors[key]; ok {
		v.lastSeen = now
		lim := v.limiter
		rl.mu.Unlock()
		return lim
	}

	lim := rate.NewLimiter(rl.rps, rl.burst)
	rl.visitors[key] = &visitor{limiter: lim, lastSeen: now}
	rl.mu.Unlock()
	return lim
}

// IsRateBypass reports whether IdempotencyValidator flagged this request as
// a replay of an already-committed rename, which is served without spending
// tokens.
func IsRateBypass(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyRateBypass)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// Handler enforces the per-key budget. Replays bypass the check; everyone
// else either proceeds or gets a 429 with a minimal Retry-After header and
// the standard JSON error shape.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsRateBypass(c) {
			c.Next()
			return
		}

		if rl.getVisitor(rl.keyFn(c)).Allow() {
			c.Next()
			return
		}

		c.Header("Retry-After", "1")
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"request_id": c.Writer.Header().Get("X-Request-ID"),
			"code":       "rate_limited",
			"message":    "rate limit exceeded",
		})
	}
}
