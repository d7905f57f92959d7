// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file stores Telegram Stars payments.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-anon-ads-backend/internal/domain"
)

// CreateTransaction records a completed payment. A transaction id that was
// already recorded returns ErrDuplicate.
func CreateTransaction(ctx context.Context, db *gorm.DB, tx *domain.PremiumTransaction) error {
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	if err := db.WithContext(ctx).Create(tx).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// HasTransaction reports whether id has at least one completed payment.
func HasTransaction(ctx context.Context, db *gorm.DB, id domain.Identity) (bool, error) {
	q := db.WithContext(ctx).Model(&domain.PremiumTransaction{}).Where("status = ?", "completed")
	switch {
	case id.TgID > 0 && id.Token != "":
		q = q.Where("(telegram_id = ? OR user_token = ?)", id.TgID, id.Token)
	case id.TgID > 0:
		q = q.Where("telegram_id = ?", id.TgID)
	case id.Token != "":
		q = q.Where("user_token = ?", id.Token)
	default:
		return false, ErrNoIdentity
	}
	var n int64
	err := q.Count(&n).Error
	return n > 0, err
}
