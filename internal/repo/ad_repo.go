// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Ad model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When an ad is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
//
// Ownership is expressed with an Identity: an ad belongs to a caller when its
// tg_id matches the caller's Telegram id or its user_token matches the
// caller's token. Ownership checks on single ads are left to the service
// layer (see domain.Ad.OwnedBy) so that "missing" and "not yours" can be told
// apart.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-anon-ads-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// ownedBy scopes a query to the rows of id.
func ownedBy(q *gorm.DB, id domain.Identity) *gorm.DB {
	switch {
	case id.TgID > 0 && id.Token != "":
		return q.Where("(tg_id = ? OR user_token = ?)", id.TgID, id.Token)
	case id.TgID > 0:
		return q.Where("tg_id = ?", id.TgID)
	default:
		return q.Where("user_token = ?", id.Token)
	}
}

// CreateAd inserts ad. A missing ID is filled with a random UUID and the
// timestamps default to now in UTC.
func CreateAd(ctx context.Context, db *gorm.DB, ad *domain.Ad) error {
	if ad.ID == "" {
		ad.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if ad.CreatedAt.IsZero() {
		ad.CreatedAt = now
	}
	if ad.UpdatedAt.IsZero() {
		ad.UpdatedAt = ad.CreatedAt
	}
	return db.WithContext(ctx).Create(ad).Error
}

// GetAd fetches a single ad by its ID, or ErrNotFound.
func GetAd(ctx context.Context, db *gorm.DB, id string) (*domain.Ad, error) {
	var a domain.Ad
	if err := db.WithContext(ctx).Where("id = ?", id).First(&a).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

// DeleteAd removes the ad with the given ID. It returns ErrNotFound when no
// row was deleted.
func DeleteAd(ctx context.Context, db *gorm.DB, id string) error {
	res := db.WithContext(ctx).Where("id = ?", id).Delete(&domain.Ad{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// SetAdPin updates the pin flag and expiry of an ad.
func SetAdPin(ctx context.Context, db *gorm.DB, id string, pinned bool, until *time.Time, now time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.Ad{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"is_pinned":    pinned,
			"pinned_until": utcPtr(until),
			"updated_at":   now.UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// UpdateNicknames sets nickname on every ad of owner and returns the number
// of ads changed.
func UpdateNicknames(ctx context.Context, db *gorm.DB, owner domain.Identity, nickname string, now time.Time) (int64, error) {
	if owner.IsZero() {
		return 0, ErrNoIdentity
	}
	res := ownedBy(db.WithContext(ctx).Model(&domain.Ad{}), owner).
		Updates(map[string]any{"nickname": nickname, "updated_at": now.UTC()})
	return res.RowsAffected, res.Error
}

// SetUserNickname stores the display nickname on the users row of tgID.
func SetUserNickname(ctx context.Context, db *gorm.DB, tgID int64, nickname string, now time.Time) error {
	if err := ensureUserRow(ctx, db, tgID, now.UTC()); err != nil {
		return err
	}
	return db.WithContext(ctx).Model(&domain.User{}).
		Where("id = ?", tgID).
		Updates(map[string]any{"display_nickname": nickname, "updated_at": now.UTC()}).Error
}

// CountAdsInWindow counts the ads of owner created in [start, end). It is the
// ads-table cross-check of the daily ads counter.
func CountAdsInWindow(ctx context.Context, db *gorm.DB, owner domain.Identity, start, end time.Time) (int64, error) {
	if owner.IsZero() {
		return 0, ErrNoIdentity
	}
	var n int64
	err := ownedBy(db.WithContext(ctx).Model(&domain.Ad{}), owner).
		Where("created_at >= ? AND created_at < ?", start.UTC(), end.UTC()).
		Count(&n).Error
	return n, err
}

// LatestAdCountry returns the country of owner's newest ad, or "".
func LatestAdCountry(ctx context.Context, db *gorm.DB, owner domain.Identity) (string, error) {
	if owner.IsZero() {
		return "", nil
	}
	var ad domain.Ad
	err := ownedBy(db.WithContext(ctx).Select("country"), owner).
		Order("created_at desc").Take(&ad).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	return ad.Country, err
}

// CountAds returns the total number of ads owned by owner.
func CountAds(ctx context.Context, db *gorm.DB, owner domain.Identity) (int64, error) {
	if owner.IsZero() {
		return 0, ErrNoIdentity
	}
	var total int64
	err := ownedBy(db.WithContext(ctx).Model(&domain.Ad{}), owner).Count(&total).Error
	return total, err
}

// ListAdsPage returns a page of owner's ads, pinned ones first, then newest
// first. The caller is responsible for computing offset and limit.
func ListAdsPage(ctx context.Context, db *gorm.DB, owner domain.Identity, offset, limit int) ([]domain.Ad, error) {
	if owner.IsZero() {
		return nil, ErrNoIdentity
	}
	var out []domain.Ad
	err := ownedBy(db.WithContext(ctx), owner).
		Order("is_pinned desc").
		Order("created_at desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}
