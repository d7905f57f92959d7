package middleware

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// Allower decides whether the caller behind key may proceed now. When it may
// not, retryAfter is the wait before the next request would pass.
//
// This is transport throttling only; the daily ad, pin and nickname quotas
// are enforced by the quota ledger.
type Allower interface {
	Allow(ctx context.Context, key string) (ok bool, retryAfter time.Duration, err error)
}

// KeyFunc maps a request to its throttling bucket.
type KeyFunc func(*gin.Context) string

// KeyByCaller buckets verified Telegram users by identity and everyone else
// (token holders included) by client IP.
func KeyByCaller() KeyFunc {
	return func(c *gin.Context) string {
		if id := c.GetString(ctxKeyUserID); id != "" {
			return id
		}
		return "ip:" + c.ClientIP()
	}
}

// IsRateBypass reports whether Idempotency marked the request as a replay.
func IsRateBypass(c *gin.Context) bool {
	return c.GetBool(ctxKeyRateBypass)
}

// RateLimit throttles requests through a. Replays are not counted. If a
// fails (Redis down) the request is let through and the error logged.
func RateLimit(a Allower, keyFn KeyFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsRateBypass(c) {
			c.Next()
			return
		}
		ok, wait, err := a.Allow(c.Request.Context(), keyFn(c))
		if err != nil {
			LoggerFrom(c).Warn().Err(err).Msg("rate limiter unavailable")
			c.Next()
			return
		}
		if !ok {
			abortRateLimited(c, wait)
			return
		}
		c.Next()
	}
}

func abortRateLimited(c *gin.Context, retryAfter time.Duration) {
	secs := max(int(math.Ceil(retryAfter.Seconds())), 1)
	c.Header("Retry-After", strconv.Itoa(secs))
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
		"request_id": RequestIDFrom(c),
		"code":       "rate_limited",
		"message":    "rate limit exceeded",
	})
}

// LocalBuckets keeps one token bucket per key in process memory. Buckets idle
// for longer than the idle window are dropped on a later call.
type LocalBuckets struct {
	limit rate.Limit
	burst int
	idle  time.Duration
	now   func() time.Time

	mu        sync.Mutex
	buckets   map[string]*localBucket
	lastSweep time.Time
}

type localBucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// NewLocalBuckets allows rps requests per second per key with the given
// burst (at least 1).
func NewLocalBuckets(rps float64, burst int) *LocalBuckets {
	return &LocalBuckets{
		limit:   rate.Limit(rps),
		burst:   max(burst, 1),
		idle:    10 * time.Minute,
		now:     time.Now,
		buckets: make(map[string]*localBucket),
	}
}

// Allow implements Allower. It never fails.
func (b *LocalBuckets) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	now := b.now()
	lim := b.bucket(key, now)

	r := lim.ReserveN(now, 1)
	if !r.OK() {
		return false, time.Second, nil
	}
	if d := r.DelayFrom(now); d > 0 {
		r.CancelAt(now)
		return false, d, nil
	}
	return true, 0, nil
}

func (b *LocalBuckets) bucket(key string, now time.Time) *rate.Limiter {
	b.mu.Lock()
	defer b.mu.Unlock()

	// Sweep before the lookup so a stale bucket for key starts fresh.
	if now.Sub(b.lastSweep) >= b.idle {
		for k, v := range b.buckets {
			if now.Sub(v.seen) >= b.idle {
				delete(b.buckets, k)
			}
		}
		b.lastSweep = now
	}

	v, ok := b.buckets[key]
	if !ok {
		v = &localBucket{lim: rate.NewLimiter(b.limit, b.burst)}
		b.buckets[key] = v
	}
	v.seen = now
	return v.lim
}

// RedisBuckets shares the budget across replicas using redis_rate (GCRA).
// Keys are stored as "rl:<key>".
type RedisBuckets struct {
	limiter *redis_rate.Limiter
	limit   redis_rate.Limit
}

// NewRedisBuckets allows roughly rps requests per second per key, rounded up
// to a per-minute rate, with the given burst (at least 1).
func NewRedisBuckets(rdb redis.UniversalClient, rps float64, burst int) *RedisBuckets {
	lim := redis_rate.PerMinute(max(int(math.Ceil(rps*60)), 1))
	lim.Burst = max(burst, 1)
	return &RedisBuckets{limiter: redis_rate.NewLimiter(rdb), limit: lim}
}

// Allow implements Allower.
func (b *RedisBuckets) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	res, err := b.limiter.Allow(ctx, "rl:"+key, b.limit)
	if err != nil {
		return false, 0, err
	}
	return res.Allowed > 0, res.RetryAfter, nil
}
