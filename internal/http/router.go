// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// Telegram authentication, CORS, security headers, idempotency, and rate
// limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID, access log, recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - Production-ready CORS and security header posture
package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/go-anon-ads-backend/internal/config"
	"github.com/tbourn/go-anon-ads-backend/internal/http/handlers"
	"github.com/tbourn/go-anon-ads-backend/internal/http/middleware"
	"github.com/tbourn/go-anon-ads-backend/internal/observability"
	"github.com/tbourn/go-anon-ads-backend/internal/repo"
	"github.com/tbourn/go-anon-ads-backend/internal/services"
)

var (
	corsMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsHeaders = []string{"Origin", "Content-Type", "Accept", "Accept-Language", "Authorization", middleware.HeaderIdempotencyKey}
)

// NewHandlers builds the service graph on db (and rdb, which may be nil)
// and returns the HTTP handlers bound to it.
func NewHandlers(db *gorm.DB, rdb redis.UniversalClient, cfg config.Config) *handlers.Handlers {
	p := cfg.Premium
	policy := services.LimitPolicy{Quota: cfg.Quota}
	msgs := services.NewLocalizer(cfg.DefaultLocale)

	ids := &services.IdentityResolver{DB: db, Secret: p.UserTokenSecret}
	ledger := &services.QuotaLedger{DB: db, Policy: policy, Offset: p.ReferenceOffset}
	premium := &services.PremiumResolver{
		DB:            db,
		Cache:         services.NewStatusCache(rdb, p.StatusCacheSize, p.StatusCacheTTL),
		TrialDuration: p.TrialDuration,
	}
	bonus := &services.BonusMachine{
		DB:       db,
		Premium:  premium,
		Eligible: p.BonusGender,
		Revoking: p.RevokingGender,
		Duration: p.BonusDuration,
	}
	referrals := &services.ReferralService{DB: db, Premium: premium, RewardDuration: p.ReferralReward}
	ads := &services.AdService{
		DB:             db,
		Ledger:         ledger,
		Premium:        premium,
		Bonus:          bonus,
		Referrals:      referrals,
		PinDuration:    cfg.Quota.PinDuration,
		IdempotencyTTL: cfg.IdempotencyTTL,
	}
	prem := &services.PremiumService{
		DB:             db,
		Ledger:         ledger,
		Premium:        premium,
		Bonus:          bonus,
		Prices:         cfg.Prices,
		Messages:       msgs,
		TrialDuration:  p.TrialDuration,
		ToggleDuration: p.ToggleDuration,
	}

	return handlers.New(handlers.Deps{
		Identities: ids,
		Ads:        ads,
		Premium:    prem,
		Referrals:  referrals,
		Messages:   msgs,
		Limits:     policy,
	})
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. It configures observability (tracing, metrics), Telegram auth,
// idempotency and rate limiting, CORS and security headers, health and
// metrics endpoints, and then mounts the public API under cfg.APIBasePath.
// rdb may be nil; the rate limiter is then per process.
//
// Middleware order matters:
//  1. OpenTelemetry: trace API requests
//  2. RequestID: generate/propagate correlation id
//  3. AccessLog: scrubbed access log and request-scoped logger
//  4. Recovery: capture panics after logger
//  5. TelegramAuth: verified caller before anything keys on it
//  6. Body size limiter
//  7. Metrics
//  8. Idempotency-Key validation on POST /ads (replays bypass the limiter)
//  9. Rate limiter (per Telegram user or IP)
//  10. CORS, gzip and security headers
func RegisterRoutes(r *gin.Engine, db *gorm.DB, rdb redis.UniversalClient, h *handlers.Handlers, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace API traffic; probes and scrapes are filtered out
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName, otelgin.WithFilter(observability.TraceRequest)))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Scrubbed access log; installs the request-scoped logger
	r.Use(middleware.AccessLog(middleware.AccessLogOptions{
		MaskHeaders: []string{"X-User-Token"},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Telegram init data (no-op without a bot token)
	r.Use(middleware.TelegramAuth(middleware.TelegramAuthOptions{
		BotToken: cfg.TelegramBotToken,
		MaxAge:   cfg.InitDataMaxAge,
	}))

	// 6) Global body size limit (1 MiB)
	r.Use(limitBody(1 << 20))

	// 7) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 8) Idempotency-Key validation (before rate limiting so replays are free)
	apiPrefix := strings.TrimSuffix(cfg.APIBasePath, "/")
	r.Use(middleware.Idempotency(
		middleware.IdempotentRoutes{
			http.MethodPost + " " + apiPrefix + "/ads": services.IdempotencyScopeCreateAd,
		},
		idempotencyLookup(db),
	))

	// 9) Rate limiter per caller; shared through Redis when configured
	var limiter middleware.Allower = middleware.NewLocalBuckets(cfg.RateRPS, cfg.RateBurst)
	if rdb != nil {
		limiter = middleware.NewRedisBuckets(rdb, cfg.RateRPS, cfg.RateBurst)
	}
	r.Use(middleware.RateLimit(limiter, middleware.KeyByCaller()))

	// 10) CORS posture (safe defaults: allow all if none configured)
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header (helps tests and simple health checks).
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     corsMethods,
			AllowHeaders:     corsHeaders,
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length", "ETag", "Retry-After"},
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		// Echo ACAO with the request Origin when it is in the allowlist (in addition to gin-contrib/cors).
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     corsMethods,
			AllowHeaders:     corsHeaders,
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length", "ETag", "Retry-After"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		CacheControl: middleware.CachePrivateRevalidate,
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Public API
	api := groupWithPrefix(r, cfg.APIBasePath) // e.g. "/api"
	{
		// Ads
		api.GET("/ads", h.ListMyAds)
		api.POST("/ads", h.CreateAd)
		api.DELETE("/ads", h.DeleteAd)
		api.PATCH("/ads", h.PatchAd)

		// Premium
		api.POST("/premium", h.Premium)
		api.POST("/premium/activate", h.ActivateStars)
		api.GET("/premium/calculate", h.CalculatePrice)

		// Referrals
		api.POST("/referrals", h.RegisterReferral)
		api.PUT("/referrals", h.RewardReferral)
		api.GET("/referrals", h.ReferralStats)
	}
}

// idempotencyLookup reports whether a still-valid record exists. Errors are
// treated as a miss so the handler decides.
func idempotencyLookup(db *gorm.DB) middleware.IdempotencyLookup {
	return func(ctx context.Context, owner, scope, key string, now time.Time) (bool, error) {
		rec, err := repo.GetIdempotency(ctx, db, owner, scope, key, now)
		if err != nil || rec == nil {
			return false, nil
		}
		return true, nil
	}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
