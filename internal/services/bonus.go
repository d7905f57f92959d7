// Package services – BonusMachine
//
// BonusMachine runs the female-bonus state machine on ad creation:
//
//	unset -> first_gender_recorded -> bonus_active -> bonus_revoked
//	                                               -> bonus_retained_paid
//
// The first ad's gender is written once and never replaced. When it is the
// eligible gender the identity receives a long premium window tagged
// female_bonus. A later ad of the revoking gender removes the tag. Premium
// is kept when another grant pushed premium_until beyond bonus_until, and a
// window that was running before the bonus is cut back to its own end.
// Anything else is revoked.
//
// The machine runs after the ad is committed. Its errors are returned to the
// caller for logging and never undo the ad.

package services

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-anon-ads-backend/internal/domain"
	"github.com/tbourn/go-anon-ads-backend/internal/observability"
	"github.com/tbourn/go-anon-ads-backend/internal/repo"
)

// Bonus transitions, also used as metric labels.
const (
	BonusGranted      = "granted"
	BonusRetainedPaid = "retained_paid"
	BonusRevoked      = "revoked"
	BonusFailed       = "failed"
)

// BonusOutcome reports what an ad creation did to the bonus.
type BonusOutcome struct {
	Transition string // empty when nothing changed
	Granted    bool   // the client shows the bonus modal
	Lost       bool   // the bonus tag was removed
}

// BonusMachine evaluates female-bonus transitions.
type BonusMachine struct {
	DB       *gorm.DB
	Premium  *PremiumResolver
	Eligible domain.Gender
	Revoking domain.Gender
	Duration time.Duration
	Now      func() time.Time
}

func (m *BonusMachine) now() time.Time {
	if m.Now != nil {
		return m.Now().UTC()
	}
	return time.Now().UTC()
}

// OnAdCreated applies the transition triggered by an ad of gender g.
func (m *BonusMachine) OnAdCreated(ctx context.Context, id domain.Identity, g domain.Gender) (BonusOutcome, error) {
	tr := otel.Tracer("services/BonusMachine")
	ctx, span := tr.Start(ctx, "OnAdCreated",
		trace.WithAttributes(
			attribute.String("identity", id.Key()),
			attribute.String("gender", string(g)),
		),
	)
	defer span.End()

	var out BonusOutcome
	now := m.now()
	err := m.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		claimed, err := repo.ClaimFirstAdGender(ctx, tx, id, g, now)
		if err != nil {
			return err
		}
		_, st, err := m.Premium.ResolveState(ctx, tx, id)
		if err != nil {
			return err
		}

		if claimed {
			if g != m.Eligible || st.BonusUntil != nil {
				return nil
			}
			if err := m.Premium.Apply(ctx, tx, id, m.grant(st, now)); err != nil {
				return err
			}
			out = BonusOutcome{Transition: BonusGranted, Granted: true}
			return nil
		}

		first, ok := st.FirstGender()
		if !ok || first != m.Eligible || !st.HasBonusSource() || g != m.Revoking {
			return nil
		}
		st.AutoPremiumSource = nil
		held, wasHeld := st.HeldBeforeBonus(now)
		switch {
		case st.ExtendedBeyondBonus():
			out = BonusOutcome{Transition: BonusRetainedPaid, Lost: true}
		case wasHeld:
			st.PremiumUntil = &held
			out = BonusOutcome{Transition: BonusRetainedPaid, Lost: true}
		default:
			st.IsPremium = false
			st.PremiumUntil = nil
			out = BonusOutcome{Transition: BonusRevoked, Lost: true}
		}
		return m.Premium.Apply(ctx, tx, id, st)
	})
	if err != nil {
		observability.BonusTransition(BonusFailed)
		span.RecordError(err)
		return BonusOutcome{}, err
	}
	if out.Transition != "" {
		m.Premium.Invalidate(ctx, id)
		observability.BonusTransition(out.Transition)
		span.SetAttributes(attribute.String("bonus.transition", out.Transition))
	}
	return out, nil
}

// Activate is the explicit claim for an identity whose first ad had the
// eligible gender but which never received the bonus.
func (m *BonusMachine) Activate(ctx context.Context, id domain.Identity) (domain.PremiumState, error) {
	tr := otel.Tracer("services/BonusMachine")
	ctx, span := tr.Start(ctx, "Activate",
		trace.WithAttributes(attribute.String("identity", id.Key())),
	)
	defer span.End()

	var st domain.PremiumState
	now := m.now()
	err := m.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		_, cur, err := m.Premium.ResolveState(ctx, tx, id)
		if err != nil {
			return err
		}
		if first, ok := cur.FirstGender(); !ok || first != m.Eligible {
			return ErrBonusNotEligible
		}
		if cur.BonusUntil != nil {
			return ErrBonusAlreadyUsed
		}
		st = m.grant(cur, now)
		return m.Premium.Apply(ctx, tx, id, st)
	})
	if err != nil {
		return domain.PremiumState{}, err
	}
	m.Premium.Invalidate(ctx, id)
	observability.BonusTransition(BonusGranted)
	return st, nil
}

// grant records the bonus window [bonus_from, bonus_until). A dated window
// already in force is kept whole and the bonus starts where it ends, so a
// revoke can hand it back. An open-ended window stays open-ended.
func (m *BonusMachine) grant(st domain.PremiumState, now time.Time) domain.PremiumState {
	src := string(domain.SourceFemaleBonus)
	st.AutoPremiumSource = &src
	from := now
	if st.ActiveAt(now) {
		if st.PremiumUntil == nil {
			end := now.Add(m.Duration)
			st.BonusFrom, st.BonusUntil = &from, &end
			return st
		}
		from = *st.PremiumUntil
	}
	end := from.Add(m.Duration)
	st.IsPremium = true
	st.PremiumUntil = &end
	st.BonusFrom, st.BonusUntil = &from, &end
	return st
}
