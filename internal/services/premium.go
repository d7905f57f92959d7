// Package services – PremiumResolver
//
// PremiumResolver answers "is this identity premium, until when, and why".
// The users row is authoritative for Telegram identities; premium_tokens is
// authoritative for anonymous tokens and a mirror for everybody else. Every
// write goes through Apply, which saves the authoritative row and then
// mirrors it, so the two stores are never written independently.
//
// Expired windows are switched off on read (self-heal). The heal write is
// idempotent, so two reads in a row return the same status.

package services

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-anon-ads-backend/internal/domain"
	"github.com/tbourn/go-anon-ads-backend/internal/observability"
	"github.com/tbourn/go-anon-ads-backend/internal/repo"
)

// PremiumResolver resolves and writes premium entitlement.
type PremiumResolver struct {
	DB            *gorm.DB
	Cache         *StatusCache
	TrialDuration time.Duration
	Now           func() time.Time
}

func (r *PremiumResolver) now() time.Time {
	if r.Now != nil {
		return r.Now().UTC()
	}
	return time.Now().UTC()
}

// Resolve returns the premium status of id. Unknown identities are free.
func (r *PremiumResolver) Resolve(ctx context.Context, id domain.Identity) (domain.PremiumStatus, error) {
	tr := otel.Tracer("services/PremiumResolver")
	ctx, span := tr.Start(ctx, "Resolve",
		trace.WithAttributes(attribute.String("identity", id.Key())),
	)
	defer span.End()

	if st, ok := r.Cache.Get(ctx, id); ok {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return st, nil
	}

	status, _, err := r.resolve(ctx, r.DB, id)
	if err != nil {
		return domain.PremiumStatus{}, err
	}
	r.Cache.Set(ctx, id, status, r.now())
	return status, nil
}

// ResolveState is Resolve without the cache that also returns the healed
// stored state, for callers that go on to modify it.
func (r *PremiumResolver) ResolveState(ctx context.Context, db *gorm.DB, id domain.Identity) (domain.PremiumStatus, domain.PremiumState, error) {
	return r.resolve(ctx, db, id)
}

func (r *PremiumResolver) resolve(ctx context.Context, db *gorm.DB, id domain.Identity) (domain.PremiumStatus, domain.PremiumState, error) {
	now := r.now()
	st, found, err := repo.LoadPremiumState(ctx, db, id)
	if err != nil {
		return domain.PremiumStatus{}, domain.PremiumState{}, err
	}
	if !found {
		return domain.PremiumStatus{}, st, nil
	}

	active := st.ActiveAt(now)
	switch {
	case !active && st.IsPremium:
		st.IsPremium = false
		st.AutoPremiumSource = nil
		if err := r.Apply(ctx, db, id, st); err != nil {
			return domain.PremiumStatus{}, domain.PremiumState{}, err
		}
		observability.PremiumExpired("self_heal", 1)
	case active && id.TgID > 0 && id.Token != "":
		if err := repo.SyncTokenMirror(ctx, db, id.Token, st, now); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Str("identity", id.LogKey()).Msg("premium mirror sync failed")
		}
	}

	out := domain.PremiumStatus{IsPremium: active}
	if !active {
		return out, st, nil
	}
	out.PremiumUntil = st.PremiumUntil
	src, err := r.source(ctx, db, id, st, now)
	if err != nil {
		return domain.PremiumStatus{}, domain.PremiumState{}, err
	}
	out.PremiumSource = src
	return out, st, nil
}

// source tags an active window. The first match wins: the stored tag, a
// Stars payment, a rewarded referral, then a trial whose remaining window is
// no longer than the trial itself.
func (r *PremiumResolver) source(ctx context.Context, db *gorm.DB, id domain.Identity, st domain.PremiumState, now time.Time) (*domain.PremiumSource, error) {
	tag := func(s domain.PremiumSource) *domain.PremiumSource { return &s }

	if st.AutoPremiumSource != nil && *st.AutoPremiumSource != "" {
		return tag(domain.PremiumSource(*st.AutoPremiumSource)), nil
	}
	paid, err := repo.HasTransaction(ctx, db, id)
	if err != nil {
		return nil, err
	}
	if paid {
		return tag(domain.SourceStars), nil
	}
	referred, err := repo.HasRewardedReferral(ctx, db, id)
	if err != nil {
		return nil, err
	}
	if referred {
		return tag(domain.SourceReferral), nil
	}
	if st.TrialUsed && st.PremiumUntil != nil && st.PremiumUntil.Sub(now) <= r.TrialDuration {
		return tag(domain.SourceTrial), nil
	}
	return nil, nil
}

// Apply makes st the stored state of id: the authoritative row first, then
// the token mirror, then the cached status is dropped.
func (r *PremiumResolver) Apply(ctx context.Context, db *gorm.DB, id domain.Identity, st domain.PremiumState) error {
	now := r.now()
	if err := repo.SavePremiumState(ctx, db, id, st, now); err != nil {
		return err
	}
	if id.TgID > 0 && id.Token != "" {
		if err := repo.SyncTokenMirror(ctx, db, id.Token, st, now); err != nil {
			return err
		}
	}
	r.Cache.Invalidate(ctx, id)
	return nil
}

// Invalidate drops the cached status of id.
func (r *PremiumResolver) Invalidate(ctx context.Context, id domain.Identity) {
	r.Cache.Invalidate(ctx, id)
}

// Grant opens or extends a premium window of d starting at the later of now
// and the end of the current window. An open-ended window stays open-ended.
func (r *PremiumResolver) Grant(ctx context.Context, db *gorm.DB, id domain.Identity, st domain.PremiumState, d time.Duration, source domain.PremiumSource) (domain.PremiumState, error) {
	now := r.now()
	return r.GrantUntil(ctx, db, id, st, func(base time.Time) time.Time { return base.Add(d) }, source, now)
}

// GrantUntil is Grant with a caller-supplied extension, e.g. calendar months.
func (r *PremiumResolver) GrantUntil(ctx context.Context, db *gorm.DB, id domain.Identity, st domain.PremiumState, extend func(base time.Time) time.Time, source domain.PremiumSource, now time.Time) (domain.PremiumState, error) {
	active := st.ActiveAt(now)
	if active && st.PremiumUntil == nil {
		observability.PremiumGranted(string(source))
		return st, nil
	}
	base := now
	if active {
		base = *st.PremiumUntil
	}
	until := extend(base).UTC()
	st.IsPremium = true
	st.PremiumUntil = &until
	if err := r.Apply(ctx, db, id, st); err != nil {
		return st, err
	}
	observability.PremiumGranted(string(source))
	return st, nil
}
