// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the premium state stores: the
// authoritative users table for platform identities and the token-keyed
// premium_tokens table, which is both the only record of anonymous users and
// a mirror of platform users.
//
// Functions:
//
//   - LoadPremiumState / SavePremiumState read and write the premium slice of
//     whichever store is authoritative for an identity.
//   - EnsureUser creates the users row of a platform identity on first sight
//     and attaches its token. It must run outside transactions.
//   - ClaimFirstAdGender writes first_ad_gender only while it is NULL.
//   - SyncTokenMirror copies a platform user's state into premium_tokens.
//   - FindUserIDByToken maps a token back to a Telegram id.
//   - ClearExpiredPremium is the batch form of the resolver's self-heal.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-anon-ads-backend/internal/domain"
)

// LoadPremiumState returns the authoritative premium state of id. found is
// false when no record exists yet; the zero state is returned in that case.
func LoadPremiumState(ctx context.Context, db *gorm.DB, id domain.Identity) (st domain.PremiumState, found bool, err error) {
	switch {
	case id.TgID > 0:
		var u domain.User
		err = db.WithContext(ctx).Where("id = ?", id.TgID).Take(&u).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.PremiumState{}, false, nil
		}
		if err != nil {
			return domain.PremiumState{}, false, err
		}
		return domain.PremiumState{
			IsPremium:         u.IsPremium,
			PremiumUntil:      utcPtr(u.PremiumUntil),
			AutoPremiumSource: u.AutoPremiumSource,
			FirstAdGender:     u.FirstAdGender,
			BonusFrom:         utcPtr(u.BonusFrom),
			BonusUntil:        utcPtr(u.BonusUntil),
			TrialUsed:         u.Trial7hUsed,
		}, true, nil

	case id.Token != "":
		var p domain.PremiumToken
		err = db.WithContext(ctx).Where("user_token = ?", id.Token).Take(&p).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.PremiumState{}, false, err
		}
		found = err == nil

		var trial struct{ TrialUsed bool }
		if err := db.WithContext(ctx).Model(&domain.WebUserLimits{}).
			Select("trial_used").Where("user_token = ?", id.Token).
			Limit(1).Scan(&trial).Error; err != nil {
			return domain.PremiumState{}, false, err
		}
		return domain.PremiumState{
			IsPremium:         p.IsPremium,
			PremiumUntil:      utcPtr(p.PremiumUntil),
			AutoPremiumSource: p.AutoPremiumSource,
			FirstAdGender:     p.FirstAdGender,
			BonusFrom:         utcPtr(p.BonusFrom),
			BonusUntil:        utcPtr(p.BonusUntil),
			TrialUsed:         trial.TrialUsed,
		}, found, nil

	default:
		return domain.PremiumState{}, false, ErrNoIdentity
	}
}

// SavePremiumState writes the entitlement fields of st (flag, expiry, source
// tag, bonus window) to the authoritative store of id, creating the record
// when needed. first_ad_gender, the trial flag and users.user_token are never
// touched here.
func SavePremiumState(ctx context.Context, db *gorm.DB, id domain.Identity, st domain.PremiumState, now time.Time) error {
	now = now.UTC()
	switch {
	case id.TgID > 0:
		if err := ensureUserRow(ctx, db, id.TgID, now); err != nil {
			return err
		}
		return db.WithContext(ctx).Model(&domain.User{}).Where("id = ?", id.TgID).
			Updates(map[string]any{
				"is_premium":          st.IsPremium,
				"premium_until":       utcPtr(st.PremiumUntil),
				"auto_premium_source": st.AutoPremiumSource,
				"bonus_from":          utcPtr(st.BonusFrom),
				"bonus_until":         utcPtr(st.BonusUntil),
				"updated_at":          now,
			}).Error

	case id.Token != "":
		row := domain.PremiumToken{
			UserToken:         id.Token,
			IsPremium:         st.IsPremium,
			PremiumUntil:      utcPtr(st.PremiumUntil),
			AutoPremiumSource: st.AutoPremiumSource,
			BonusFrom:         utcPtr(st.BonusFrom),
			BonusUntil:        utcPtr(st.BonusUntil),
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		return db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_token"}},
			DoUpdates: clause.AssignmentColumns([]string{"is_premium", "premium_until", "auto_premium_source", "bonus_from", "bonus_until", "updated_at"}),
		}).Create(&row).Error

	default:
		return ErrNoIdentity
	}
}

// EnsureUser inserts the users row of tgID if it is missing and attaches
// token when the row has none yet. A token already attached to another user
// is left where it is. created reports whether the row was new.
func EnsureUser(ctx context.Context, db *gorm.DB, tgID int64, token string, now time.Time) (created bool, err error) {
	u := domain.User{ID: tgID, CreatedAt: now.UTC(), UpdatedAt: now.UTC()}
	if token != "" {
		u.UserToken = &token
	}
	onID := clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}
	res := db.WithContext(ctx).Clauses(onID).Create(&u)
	if res.Error != nil && u.UserToken != nil && isUniqueViolation(res.Error) {
		u.UserToken = nil
		res = db.WithContext(ctx).Clauses(onID).Create(&u)
	}
	if res.Error != nil {
		return false, res.Error
	}
	created = res.RowsAffected > 0
	if token == "" || created {
		return created, nil
	}
	err = db.WithContext(ctx).Model(&domain.User{}).
		Where("id = ? AND user_token IS NULL", tgID).
		Update("user_token", token).Error
	if isUniqueViolation(err) {
		err = nil
	}
	return false, err
}

// ensureUserRow inserts a bare users row for tgID if none exists. Writers
// that run inside a transaction use it instead of EnsureUser: attaching the
// token can hit the user_token unique index, and on Postgres that error
// aborts the whole transaction.
func ensureUserRow(ctx context.Context, db *gorm.DB, tgID int64, now time.Time) error {
	u := domain.User{ID: tgID, CreatedAt: now, UpdatedAt: now}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		Create(&u).Error
}

// ClaimFirstAdGender records g as the first-ad gender of id unless one is
// already recorded. claimed reports whether this call wrote it.
func ClaimFirstAdGender(ctx context.Context, db *gorm.DB, id domain.Identity, g domain.Gender, now time.Time) (claimed bool, err error) {
	now = now.UTC()
	val := string(g)
	switch {
	case id.TgID > 0:
		if err := ensureUserRow(ctx, db, id.TgID, now); err != nil {
			return false, err
		}
		res := db.WithContext(ctx).Model(&domain.User{}).
			Where("id = ? AND first_ad_gender IS NULL", id.TgID).
			Updates(map[string]any{"first_ad_gender": val, "updated_at": now})
		return res.RowsAffected > 0, res.Error

	case id.Token != "":
		res := db.WithContext(ctx).Exec(
			`INSERT INTO premium_tokens (user_token, is_premium, first_ad_gender, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT (user_token) DO UPDATE SET first_ad_gender = excluded.first_ad_gender, updated_at = excluded.updated_at
			 WHERE premium_tokens.first_ad_gender IS NULL`,
			id.Token, false, val, now, now,
		)
		return res.RowsAffected > 0, res.Error

	default:
		return false, ErrNoIdentity
	}
}

// SyncTokenMirror overwrites the premium_tokens row of token with st. The
// first-ad gender is only filled in, never replaced.
func SyncTokenMirror(ctx context.Context, db *gorm.DB, token string, st domain.PremiumState, now time.Time) error {
	if token == "" {
		return ErrNoIdentity
	}
	now = now.UTC()
	row := domain.PremiumToken{
		UserToken:         token,
		IsPremium:         st.IsPremium,
		PremiumUntil:      utcPtr(st.PremiumUntil),
		AutoPremiumSource: st.AutoPremiumSource,
		FirstAdGender:     st.FirstAdGender,
		BonusFrom:         utcPtr(st.BonusFrom),
		BonusUntil:        utcPtr(st.BonusUntil),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_token"}},
		DoUpdates: clause.Assignments(map[string]any{
			"is_premium":          gorm.Expr("excluded.is_premium"),
			"premium_until":       gorm.Expr("excluded.premium_until"),
			"auto_premium_source": gorm.Expr("excluded.auto_premium_source"),
			"bonus_from":          gorm.Expr("excluded.bonus_from"),
			"bonus_until":         gorm.Expr("excluded.bonus_until"),
			"first_ad_gender":     gorm.Expr("COALESCE(premium_tokens.first_ad_gender, excluded.first_ad_gender)"),
			"updated_at":          gorm.Expr("excluded.updated_at"),
		}),
	}).Create(&row).Error
}

// FindUserIDByToken returns the Telegram id a token belongs to: first from
// users.user_token, then from the newest ad that carries both keys.
func FindUserIDByToken(ctx context.Context, db *gorm.DB, token string) (int64, bool, error) {
	if token == "" {
		return 0, false, nil
	}
	var u domain.User
	err := db.WithContext(ctx).Select("id").Where("user_token = ?", token).Take(&u).Error
	if err == nil {
		return u.ID, true, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, err
	}

	var ad domain.Ad
	err = db.WithContext(ctx).Select("tg_id").
		Where("user_token = ? AND tg_id IS NOT NULL", token).
		Order("created_at DESC").Take(&ad).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, nil
	}
	if err != nil || ad.TgID == nil {
		return 0, false, err
	}
	return *ad.TgID, true, nil
}

// MarkUserTrialUsed flips users.trial7h_used for tgID. It returns false when
// the trial had already been used.
func MarkUserTrialUsed(ctx context.Context, db *gorm.DB, tgID int64, now time.Time) (bool, error) {
	if err := ensureUserRow(ctx, db, tgID, now.UTC()); err != nil {
		return false, err
	}
	res := db.WithContext(ctx).Model(&domain.User{}).
		Where("id = ? AND trial7h_used = ?", tgID, false).
		Updates(map[string]any{"trial7h_used": true, "updated_at": now.UTC()})
	return res.RowsAffected > 0, res.Error
}

// ClearExpiredPremium switches off every premium window that ended at or
// before now, in both stores, and drops the source tag with it. It returns
// the number of rows changed.
func ClearExpiredPremium(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	now = now.UTC()
	var total int64
	for _, model := range []any{&domain.User{}, &domain.PremiumToken{}} {
		res := db.WithContext(ctx).Model(model).
			Where("is_premium = ? AND premium_until IS NOT NULL AND premium_until <= ?", true, now).
			Updates(map[string]any{"is_premium": false, "auto_premium_source": nil, "updated_at": now})
		if res.Error != nil {
			return total, res.Error
		}
		total += res.RowsAffected
	}
	return total, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
