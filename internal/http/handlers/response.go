// Package handlers provides HTTP handler implementations for the public API.
//
// Three error envelopes are in use, each matching what the Mini App client
// already parses:
//
//   - ErrorResponse ({request_id, code, message}) for routing fallbacks.
//   - ActionError ({success:false, error, code, ...}) for /ads and /referrals.
//   - PremiumEnvelope ({data, error}) for every /premium route.
//
// Every error body carries a stable code. Server errors are logged once, with
// the request-scoped logger, by the writer that emits them.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-anon-ads-backend/internal/http/middleware"
)

// ErrorResponse is the envelope for unmatched routes and methods.
type ErrorResponse struct {
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	Code      string `json:"code" example:"not_found"`
	Message   string `json:"message" example:"route not found"`
}

// Fail aborts with an ErrorResponse.
func Fail(c *gin.Context, status int, code, msg string) {
	logServerError(c, status, code, msg)
	c.AbortWithStatusJSON(status, ErrorResponse{
		RequestID: middleware.RequestIDFrom(c),
		Code:      code,
		Message:   msg,
	})
}

func logServerError(c *gin.Context, status int, code, msg string) {
	if status < http.StatusInternalServerError {
		return
	}
	middleware.LoggerFrom(c).Error().
		Int("status", status).
		Str("code", code).
		Str("message", msg).
		Msg("api error")
}

func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

// ActionError is the error body of the /ads and /referrals endpoints.
// Quota rejections set Limit and IsPremium so the client can offer an
// upgrade instead of a retry.
type ActionError struct {
	Success         bool       `json:"success" example:"false"`
	Error           string     `json:"error" example:"Ad not found"`
	Code            string     `json:"code" example:"not_found"`
	RequestID       string     `json:"request_id,omitempty"`
	Limit           bool       `json:"limit,omitempty"`
	IsPremium       *bool      `json:"isPremium,omitempty"`
	NextAvailableAt *time.Time `json:"nextAvailableAt,omitempty"`
}

// failAction aborts with an ActionError.
func failAction(c *gin.Context, status int, body ActionError) {
	body.Success = false
	body.RequestID = middleware.RequestIDFrom(c)
	logServerError(c, status, body.Code, body.Error)
	c.AbortWithStatusJSON(status, body)
}

// PremiumError is the error member of PremiumEnvelope.
type PremiumError struct {
	Code      string `json:"code" example:"trial_used"`
	Message   string `json:"message" example:"Trial has already been used"`
	Limit     bool   `json:"limit,omitempty"`
	IsPremium *bool  `json:"isPremium,omitempty"`
}

// PremiumEnvelope wraps every /premium response: exactly one of Data and
// Error is set.
type PremiumEnvelope struct {
	Data  any           `json:"data"`
	Error *PremiumError `json:"error"`
}

func premiumOK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, PremiumEnvelope{Data: data})
}

func premiumFail(c *gin.Context, status int, e PremiumError) {
	logServerError(c, status, e.Code, e.Message)
	c.AbortWithStatusJSON(status, PremiumEnvelope{Error: &e})
}
