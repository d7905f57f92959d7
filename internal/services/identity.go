package services

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/tbourn/go-anon-ads-backend/internal/domain"
	"github.com/tbourn/go-anon-ads-backend/internal/repo"
)

// IdentityResolver turns the keys a request carried into the identity every
// other service works with.
//
//   - A Telegram id gets its deterministic token (unless the client sent one)
//     and a users row.
//   - A token that belongs to a Telegram user is upgraded to that user, so
//     the authoritative users row is consulted before the token store.
//   - A plain anonymous token is returned as is.
type IdentityResolver struct {
	DB     *gorm.DB
	Secret string
	Now    func() time.Time
}

func (r *IdentityResolver) now() time.Time {
	if r.Now != nil {
		return r.Now().UTC()
	}
	return time.Now().UTC()
}

// Resolve normalizes id. A zero identity yields ErrUnauthenticated.
func (r *IdentityResolver) Resolve(ctx context.Context, id domain.Identity) (domain.Identity, error) {
	if id.IsZero() {
		return domain.Identity{}, ErrUnauthenticated
	}

	if id.TgID == 0 {
		tgID, ok, err := repo.FindUserIDByToken(ctx, r.DB, id.Token)
		if err != nil {
			return domain.Identity{}, err
		}
		if ok {
			id.TgID = tgID
		}
		return id, nil
	}

	if id.Token == "" {
		id.Token = domain.DeriveUserToken(r.Secret, id.TgID)
	}
	created, err := repo.EnsureUser(ctx, r.DB, id.TgID, id.Token, r.now())
	if err != nil {
		return domain.Identity{}, err
	}
	if created {
		if err := r.adoptTokenState(ctx, id); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Str("identity", id.LogKey()).Msg("adopt token premium state failed")
		}
	}
	return id, nil
}

// adoptTokenState copies what an anonymous token earned (premium window,
// bonus, first-ad gender) onto a freshly created users row, so logging in
// with Telegram never loses it.
func (r *IdentityResolver) adoptTokenState(ctx context.Context, id domain.Identity) error {
	st, found, err := repo.LoadPremiumState(ctx, r.DB, domain.Identity{Token: id.Token})
	if err != nil || !found {
		return err
	}
	now := r.now()
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if st.IsPremium || st.BonusUntil != nil {
			if err := repo.SavePremiumState(ctx, tx, id, st, now); err != nil {
				return err
			}
		}
		if g, ok := st.FirstGender(); ok {
			if _, err := repo.ClaimFirstAdGender(ctx, tx, domain.Identity{TgID: id.TgID}, g, now); err != nil {
				return err
			}
		}
		return nil
	})
}
