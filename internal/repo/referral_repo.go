// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for referrals and
// the one-shot reward flag.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-anon-ads-backend/internal/domain"
)

// ErrDuplicate indicates that a row with the same unique key already exists.
var ErrDuplicate = errors.New("duplicate")

// isUniqueViolation recognizes unique-constraint failures across drivers.
// glebarez/sqlite often returns plain-text errors for UNIQUE violations.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "constraint failed: unique") ||
		strings.Contains(low, "duplicate key value") ||
		strings.Contains(low, "sqlstate 23505")
}

// CreateReferral stores a referrer -> referred link. A referred token can be
// invited only once; a second registration returns ErrDuplicate.
func CreateReferral(ctx context.Context, db *gorm.DB, r *domain.Referral) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	if err := db.WithContext(ctx).Create(r).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// GetReferralByReferred returns the referral whose referred side is token,
// or ErrNotFound.
func GetReferralByReferred(ctx context.Context, db *gorm.DB, token string) (*domain.Referral, error) {
	var r domain.Referral
	if err := db.WithContext(ctx).Where("referred_token = ?", token).First(&r).Error; err != nil {
		return nil, err
	}
	return &r, nil
}

// MarkRewardGiven flips reward_given on referral id. It returns true only for
// the call that performed the flip; later calls are no-ops.
func MarkRewardGiven(ctx context.Context, db *gorm.DB, id string, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Model(&domain.Referral{}).
		Where("id = ? AND reward_given = ?", id, false).
		Updates(map[string]any{"reward_given": true, "reward_given_at": now.UTC()})
	return res.RowsAffected > 0, res.Error
}

// ListReferralsByReferrer returns the referrals made by token, newest first.
func ListReferralsByReferrer(ctx context.Context, db *gorm.DB, token string) ([]domain.Referral, error) {
	var out []domain.Referral
	err := db.WithContext(ctx).
		Where("referrer_token = ?", token).
		Order("created_at desc").
		Find(&out).Error
	return out, err
}

// HasRewardedReferral reports whether id was ever rewarded as a referrer.
func HasRewardedReferral(ctx context.Context, db *gorm.DB, id domain.Identity) (bool, error) {
	q := db.WithContext(ctx).Model(&domain.Referral{}).Where("reward_given = ?", true)
	switch {
	case id.TgID > 0 && id.Token != "":
		q = q.Where("(referrer_id = ? OR referrer_token = ?)", id.TgID, id.Token)
	case id.TgID > 0:
		q = q.Where("referrer_id = ?", id.TgID)
	case id.Token != "":
		q = q.Where("referrer_token = ?", id.Token)
	default:
		return false, ErrNoIdentity
	}
	var n int64
	err := q.Limit(1).Count(&n).Error
	return n > 0, err
}
