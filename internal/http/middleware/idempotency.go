package middleware

import (
	"context"
	"net/http"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey carries the client's retry key for ad creation.
const HeaderIdempotencyKey = "Idempotency-Key"

const (
	ctxKeyIdemKey    = "idem.key"
	ctxKeyIdemReplay = "idem.replay"
	ctxKeyRateBypass = "rate.bypass"

	maxIdempotencyKeyLen = 200
)

var idempotencyKeyPattern = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)

// IdempotentRoutes maps "METHOD /full/route" to the scope its keys are
// recorded under. Routes not listed ignore the header entirely.
type IdempotentRoutes map[string]string

// IdempotencyLookup reports whether an unexpired result exists for
// (owner, scope, key) at now.
type IdempotencyLookup func(ctx context.Context, owner, scope, key string, now time.Time) (bool, error)

// GetIdempotencyKey returns the validated key stashed by Idempotency.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	s := c.GetString(ctxKeyIdemKey)
	return s, s != ""
}

// IsReplay reports whether a stored result already exists for this request.
func IsReplay(c *gin.Context) bool {
	return c.GetBool(ctxKeyIdemReplay)
}

// Idempotency validates Idempotency-Key on the listed routes and stashes it
// for the handler. A malformed key is a 400.
//
// When the caller already has a Telegram identity, lookup is consulted and
// a known key marks the request as a replay, which also exempts it from rate
// limiting. Token holders are only known after the body is parsed, so their
// replays are detected by the service instead. Lookup errors count as a miss.
func Idempotency(routes IdempotentRoutes, lookup IdempotencyLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		scope, ok := routes[c.Request.Method+" "+c.FullPath()]
		key := c.GetHeader(HeaderIdempotencyKey)
		if !ok || key == "" {
			c.Next()
			return
		}
		if len(key) > maxIdempotencyKeyLen || !idempotencyKeyPattern.MatchString(key) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"request_id": RequestIDFrom(c),
				"code":       "bad_idempotency_key",
				"message":    "invalid Idempotency-Key",
			})
			return
		}
		c.Set(ctxKeyIdemKey, key)

		owner := c.GetString(ctxKeyUserID)
		if lookup != nil && owner != "" {
			if hit, err := lookup(c.Request.Context(), owner, scope, key, time.Now().UTC()); err == nil && hit {
				c.Set(ctxKeyIdemReplay, true)
				c.Set(ctxKeyRateBypass, true)
			}
		}
		c.Next()
	}
}
