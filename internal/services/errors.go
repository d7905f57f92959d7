// Package services defines the business logic of the ads backend: the quota
// ledger, identity and premium resolution, the female-bonus state machine,
// ads, premium actions and referrals. This file centralizes the service-level
// error values so that they can be consistently returned by service methods
// and checked by callers.
//
// Translation into user-facing messages or HTTP status codes is performed at
// the handler layer.
package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/tbourn/go-anon-ads-backend/internal/domain"
)

var (
	// ErrValidation marks malformed or missing input. Wrapped errors carry
	// the detail; callers match with errors.Is.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidIdentity is returned when tgId or the token cannot be parsed.
	ErrInvalidIdentity = errors.New("invalid identity")

	// ErrUnauthenticated is returned when an operation that needs an owner
	// receives no identity at all.
	ErrUnauthenticated = errors.New("authorization required")

	// ErrAdNotFound indicates that the requested ad does not exist.
	ErrAdNotFound = errors.New("ad not found")

	// ErrNotOwner is returned when the caller does not own the ad.
	ErrNotOwner = errors.New("ad belongs to another user")

	// ErrQuotaExceeded is the sentinel behind every *QuotaError.
	ErrQuotaExceeded = errors.New("quota exceeded")

	// ErrTrialUsed is returned when the short trial was already consumed.
	ErrTrialUsed = errors.New("trial already used")

	// ErrUserNotFound is returned when an operation needs a stored user.
	ErrUserNotFound = errors.New("user not found")

	// ErrBonusNotEligible is returned by the explicit bonus claim when the
	// recorded first-ad gender does not earn the bonus.
	ErrBonusNotEligible = errors.New("not eligible for the bonus")

	// ErrBonusAlreadyUsed is returned when the bonus was granted before.
	ErrBonusAlreadyUsed = errors.New("bonus already granted")

	// ErrSelfReferral is returned when a user tries to invite themselves.
	ErrSelfReferral = errors.New("cannot refer yourself")

	// ErrReferralNotFound is returned when no referral matches.
	ErrReferralNotFound = errors.New("referral not found")

	// ErrDuplicateTransaction is returned when a payment id was already
	// recorded. Nothing is granted for it.
	ErrDuplicateTransaction = errors.New("transaction already processed")

	// ErrInvalidMonths is returned for a subscription length outside 1..12.
	ErrInvalidMonths = errors.New("months must be between 1 and 12")

	// ErrUnknownAction is returned for an unsupported premium action.
	ErrUnknownAction = errors.New("unknown action")
)

// validationf wraps ErrValidation with a formatted detail.
func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// QuotaError describes a rejected action. It unwraps to ErrQuotaExceeded.
type QuotaError struct {
	Counter         domain.Counter
	IsPremium       bool
	Limit           int
	Used            int
	NextAvailableAt *time.Time // set for the FREE pin cooldown
}

func (e *QuotaError) Error() string {
	tier := "free"
	if e.IsPremium {
		tier = "pro"
	}
	return fmt.Sprintf("%s quota exceeded on %s tier (%d/%d)", e.Counter, tier, e.Used, e.Limit)
}

// Unwrap lets errors.Is(err, ErrQuotaExceeded) match.
func (e *QuotaError) Unwrap() error { return ErrQuotaExceeded }
