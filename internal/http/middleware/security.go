// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file provides SecurityHeaders, which hardens the JSON responses served
// to the Mini App webview and to browsers. It covers HSTS (only when the
// request really is HTTPS), the caching posture of per-user responses, and
// browser feature policies. No CSP is sent; the API never serves HTML outside
// the optional Swagger UI.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// CachePrivateRevalidate lets clients keep a per-user response but forces
// revalidation (If-None-Match) before reuse. Shared caches must not store it.
const CachePrivateRevalidate = "private, no-cache"

// exposedHeaders are readable by browser scripts on cross-origin responses.
var exposedHeaders = []string{"X-Request-ID", "ETag", "Retry-After"}

// SecurityOptions configures SecurityHeaders.
//
// EnableHSTS emits Strict-Transport-Security for HTTPS requests only; turn it
// on only when traffic is HTTPS end to end. HSTSMaxAge defaults to 180 days.
//
// CacheControl, when set, is the default Cache-Control of every response. A
// handler that sets its own value wins. "no-store" also sends the legacy
// Pragma and Expires headers.
//
// EnablePolicy sends Permissions-Policy and X-Permitted-Cross-Domain-Policies.
type SecurityOptions struct {
	EnableHSTS   bool
	HSTSMaxAge   time.Duration
	CacheControl string
	EnablePolicy bool
}

// SecurityHeaders returns a Gin middleware that adds security headers to
// each response:
//
//	X-Content-Type-Options: nosniff
//	X-Frame-Options: DENY
//	Referrer-Policy: no-referrer
//	Permissions-Policy: geolocation=(), microphone=(), camera=(), payment=()   (EnablePolicy)
//	Strict-Transport-Security: max-age=<s>; includeSubDomains; preload         (EnableHSTS, HTTPS)
//
// X-Request-ID, ETag and Retry-After are appended to
// Access-Control-Expose-Headers so the web client can read them.
func SecurityHeaders(opt SecurityOptions) gin.HandlerFunc {
	maxAge := int(opt.HSTSMaxAge.Seconds())
	if maxAge <= 0 {
		maxAge = int((180 * 24 * time.Hour).Seconds())
	}
	hsts := "max-age=" + strconv.Itoa(maxAge) + "; includeSubDomains; preload"
	noStore := strings.Contains(opt.CacheControl, "no-store")

	return func(c *gin.Context) {
		h := c.Writer.Header()

		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")

		if opt.EnablePolicy {
			// Stars payments go through Telegram, never the Payment Request API.
			h.Set("Permissions-Policy", "geolocation=(), microphone=(), camera=(), payment=()")
			h.Set("X-Permitted-Cross-Domain-Policies", "none")
		}

		if opt.CacheControl != "" {
			h.Set("Cache-Control", opt.CacheControl)
			if noStore {
				h.Set("Pragma", "no-cache")
				h.Set("Expires", "0")
			}
		}

		if opt.EnableHSTS && isHTTPS(c.Request) {
			h.Set("Strict-Transport-Security", hsts)
		}

		appendExposed(h, exposedHeaders...)

		c.Next()
	}
}

// appendExposed adds names to Access-Control-Expose-Headers, skipping any
// already listed (case-insensitively).
func appendExposed(h http.Header, names ...string) {
	const hdr = "Access-Control-Expose-Headers"
	cur := h.Get(hdr)
	have := make(map[string]bool)
	for _, p := range strings.Split(cur, ",") {
		if p = strings.TrimSpace(p); p != "" {
			have[strings.ToLower(p)] = true
		}
	}
	for _, n := range names {
		if have[strings.ToLower(n)] {
			continue
		}
		have[strings.ToLower(n)] = true
		if cur == "" {
			cur = n
		} else {
			cur += ", " + n
		}
	}
	if cur != "" {
		h.Set(hdr, cur)
	}
}

// isHTTPS reports whether the request used HTTPS directly or through a
// proxy that set X-Forwarded-Proto: https.
func isHTTPS(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}
