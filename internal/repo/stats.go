// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate queries used for
// conditional responses (ETag generation) in the HTTP layer.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-anon-ads-backend/internal/domain"
)

// AdsStats returns the number of ads owned by owner and the greatest
// UpdatedAt among them. When the owner has no ads, the count is 0 and
// maxUpdatedAt is nil.
func AdsStats(ctx context.Context, db *gorm.DB, owner domain.Identity) (count int64, maxUpdatedAt *time.Time, err error) {
	if owner.IsZero() {
		return 0, nil, ErrNoIdentity
	}
	q := ownedBy(db.WithContext(ctx).Model(&domain.Ad{}), owner)

	if err = q.Session(&gorm.Session{}).Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Get latest updated_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		UpdatedAt time.Time
	}
	if err = q.Session(&gorm.Session{}).Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.UpdatedAt, nil
}
