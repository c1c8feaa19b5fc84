package middleware

import (
	"context"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey carries the client-chosen key that makes rename
// retries safe: a retried PUT with the same key replays the stored outcome
// instead of running (and being rate limited as) a second rename.
const HeaderIdempotencyKey = "Idempotency-Key"

// Context keys for idempotency state, read back via the accessor helpers.
const (
	ctxKeyIdemKey    = "idem.key"
	ctxKeyIdemReplay = "idem.replay" // true when a stored outcome exists
	ctxKeyRateBypass = "rate.bypass" // true to skip rate limiting
)

// GetIdempotencyKey returns the validated key stashed by
// IdempotencyValidator. Handlers should use this rather than re-reading the
// header.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxKeyIdemKey)
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, s != ""
}

// IsReplay reports whether this request repeats a previously completed
// operation for the same profile and key. The handler then serves the stored
// result instead of renaming again.
func IsReplay(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyIdemReplay)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// IdempotencyOptions configures header validation. TTL enforcement belongs
// in the lookup, not here.
type IdempotencyOptions struct {
	// MaxLen caps the accepted key length; <= 0 defaults to 200.
	MaxLen int
	// Pattern restricts allowed characters. Defaults to an RFC 7230-ish
	// token pattern: ^[A-Za-z0-9._~\-:]+$
	Pattern *regexp.Regexp
}

// IdempotencyLookup answers whether a still-valid stored outcome exists for
// (profileID, key) at the given time. Errors mean the lookup failed, not
// that the key is new; the middleware then proceeds as if no record exists.
type IdempotencyLookup func(ctx context.Context, profileID, key string, now time.Time) (exists bool, err error)

// IdempotencyValidator validates the Idempotency-Key header when present,
// stashes the key in the context, and consults the lookup for a prior
// completed request. On a hit it sets the replay and rate-bypass flags;
// serving the stored payload stays the handler's job. Requests without the
// header pass through untouched; a malformed key is rejected with 400.
func IdempotencyValidator(opts IdempotencyOptions, lookup IdempotencyLookup) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = 200
	}
	pat := opts.Pattern
	if pat == nil {
		pat = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)
	}

	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"code":    "bad_idempotency_key",
				"message": "invalid Idempotency-Key",
			})
			return
		}

		c.Set(ctxKeyIdemKey, key)

		if lookup != nil {
			pid := profileIDFromCtx(c)
			if exists, _ := lookup(c.Request.Context(), pid, key, time.Now().UTC()); exists {
				c.Set(ctxKeyIdemReplay, true)
				c.Set(ctxKeyRateBypass, true)
			}
		}

		c.Next()
	}
}

// profileIDFromCtx reads the caller identity set by the identity middleware,
// falling back to the X-Profile-ID header and finally to a development
// placeholder.
func profileIDFromCtx(c *gin.Context) string {
	if v, ok := c.Get("profileID"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	if c != nil && c.Request != nil {
		if h := strings.TrimSpace(c.GetHeader("X-Profile-ID")); h != "" {
			return h
		}
	}
	return "demo-profile"
}
