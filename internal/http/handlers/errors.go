// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// This file centralizes symbolic error code constants and the mapping from
// service errors to HTTP statuses. Codes give clients a stable,
// machine-readable taxonomy next to the (localized) human-readable message.
//
// Conventions:
//   - Codes are lowercase, snake_case, and domain-agnostic unless explicitly noted.
//   - Generic codes (e.g., bad_request, unauthorized, conflict) mirror common HTTP
//     status semantics to aid interoperability.
//   - Domain-specific codes (e.g., quota_exceeded, unknown_action) are reserved
//     for business errors that cannot be conveyed by status alone.
//
// Example response:
//
//	{
//	  "success": false,
//	  "code": "forbidden",
//	  "error": "You can only delete your own ads"
//	}
package handlers

import (
	"errors"
	"net/http"

	"github.com/tbourn/go-anon-ads-backend/internal/domain"
	"github.com/tbourn/go-anon-ads-backend/internal/services"
)

const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeForbidden    = "forbidden"
	ErrCodeNotFound     = "not_found"
	ErrCodeConflict     = "conflict"
	ErrCodeRateLimited  = "too_many_requests"
	ErrCodeInternal     = "internal_error"

	// Domain-specific:
	ErrCodeQuotaExceeded    = "quota_exceeded"
	ErrCodeTrialUsed        = "trial_used"
	ErrCodeUnknownAction    = "unknown_action"
	ErrCodeMethodNotAllowed = "method_not_allowed"
)

// classify maps a service error to an HTTP status and error code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, services.ErrQuotaExceeded):
		return http.StatusTooManyRequests, ErrCodeQuotaExceeded
	case errors.Is(err, services.ErrUnauthenticated):
		return http.StatusUnauthorized, ErrCodeUnauthorized
	case errors.Is(err, services.ErrTrialUsed):
		return http.StatusBadRequest, ErrCodeTrialUsed
	case errors.Is(err, services.ErrUnknownAction):
		return http.StatusBadRequest, ErrCodeUnknownAction
	case errors.Is(err, services.ErrValidation),
		errors.Is(err, services.ErrInvalidIdentity),
		errors.Is(err, domain.ErrInvalidIdentity),
		errors.Is(err, services.ErrSelfReferral),
		errors.Is(err, services.ErrInvalidMonths):
		return http.StatusBadRequest, ErrCodeBadRequest
	case errors.Is(err, services.ErrNotOwner),
		errors.Is(err, services.ErrBonusNotEligible):
		return http.StatusForbidden, ErrCodeForbidden
	case errors.Is(err, services.ErrAdNotFound),
		errors.Is(err, services.ErrReferralNotFound),
		errors.Is(err, services.ErrUserNotFound):
		return http.StatusNotFound, ErrCodeNotFound
	case errors.Is(err, services.ErrDuplicateTransaction),
		errors.Is(err, services.ErrBonusAlreadyUsed):
		return http.StatusConflict, ErrCodeConflict
	default:
		return http.StatusInternalServerError, ErrCodeInternal
	}
}
