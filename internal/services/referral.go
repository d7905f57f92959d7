package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-anon-ads-backend/internal/domain"
	"github.com/tbourn/go-anon-ads-backend/internal/repo"
)

// ReferralService registers invitations and rewards referrers once.
type ReferralService struct {
	DB             *gorm.DB
	Premium        *PremiumResolver
	RewardDuration time.Duration
	Now            func() time.Time
}

// RegisterResult is the outcome of Register.
type RegisterResult struct {
	Referral          *domain.Referral
	AlreadyRegistered bool
}

// RewardResult is the outcome of Reward.
type RewardResult struct {
	Referral       *domain.Referral
	Rewarded       bool // this call flipped reward_given
	PremiumGranted bool // the referrer received premium days
}

// ReferralStats summarizes the invitations of one referrer.
type ReferralStats struct {
	Total     int               `json:"total"`
	Rewarded  int               `json:"rewarded"`
	Pending   int               `json:"pending"`
	Referrals []domain.Referral `json:"referrals"`
}

func (s *ReferralService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Register links newUserToken to referrerToken. A referred token can only be
// registered once; repeating it reports AlreadyRegistered.
func (s *ReferralService) Register(ctx context.Context, referrerToken, newUserToken string) (RegisterResult, error) {
	tr := otel.Tracer("services/ReferralService")
	ctx, span := tr.Start(ctx, "Register")
	defer span.End()

	referrerToken = strings.TrimSpace(referrerToken)
	newUserToken = strings.TrimSpace(newUserToken)
	if referrerToken == "" || newUserToken == "" {
		return RegisterResult{}, validationf("referrerToken and newUserToken are required")
	}
	if referrerToken == newUserToken {
		return RegisterResult{}, ErrSelfReferral
	}

	referrerID, refOK, err := repo.FindUserIDByToken(ctx, s.DB, referrerToken)
	if err != nil {
		return RegisterResult{}, err
	}
	referredID, newOK, err := repo.FindUserIDByToken(ctx, s.DB, newUserToken)
	if err != nil {
		return RegisterResult{}, err
	}
	if refOK && newOK && referrerID == referredID {
		return RegisterResult{}, ErrSelfReferral
	}

	if existing, err := repo.GetReferralByReferred(ctx, s.DB, newUserToken); err == nil {
		return RegisterResult{Referral: existing, AlreadyRegistered: true}, nil
	} else if !errors.Is(err, repo.ErrNotFound) {
		return RegisterResult{}, err
	}

	ref := &domain.Referral{
		ID:            uuid.NewString(),
		ReferrerToken: referrerToken,
		ReferredToken: newUserToken,
		CreatedAt:     s.now(),
	}
	if refOK {
		ref.ReferrerID = &referrerID
	}
	if newOK {
		ref.ReferredID = &referredID
	}
	span.SetAttributes(attribute.String("referral.id", ref.ID))

	if err := repo.CreateReferral(ctx, s.DB, ref); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			existing, gerr := repo.GetReferralByReferred(ctx, s.DB, newUserToken)
			if gerr != nil {
				return RegisterResult{}, gerr
			}
			return RegisterResult{Referral: existing, AlreadyRegistered: true}, nil
		}
		return RegisterResult{}, err
	}
	return RegisterResult{Referral: ref}, nil
}

// Reward grants the referrer of referredToken its reward. The flip of
// reward_given happens once; the premium days are only given to a referrer
// that never held premium.
func (s *ReferralService) Reward(ctx context.Context, referredToken string) (RewardResult, error) {
	tr := otel.Tracer("services/ReferralService")
	ctx, span := tr.Start(ctx, "Reward")
	defer span.End()

	referredToken = strings.TrimSpace(referredToken)
	if referredToken == "" {
		return RewardResult{}, validationf("userToken is required")
	}
	ref, err := repo.GetReferralByReferred(ctx, s.DB, referredToken)
	if errors.Is(err, repo.ErrNotFound) {
		return RewardResult{}, ErrReferralNotFound
	}
	if err != nil {
		return RewardResult{}, err
	}
	out := RewardResult{Referral: ref}
	if ref.RewardGiven {
		return out, nil
	}

	referrer, err := s.referrerIdentity(ctx, ref)
	if err != nil {
		return RewardResult{}, err
	}
	span.SetAttributes(
		attribute.String("referral.id", ref.ID),
		attribute.String("referrer", referrer.Key()),
	)

	now := s.now()
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		flipped, err := repo.MarkRewardGiven(ctx, tx, ref.ID, now)
		if err != nil || !flipped {
			return err
		}
		out.Rewarded = true

		_, st, err := s.Premium.ResolveState(ctx, tx, referrer)
		if err != nil {
			return err
		}
		if st.IsPremium || st.PremiumUntil != nil || st.BonusUntil != nil {
			return nil
		}
		if _, err := s.Premium.Grant(ctx, tx, referrer, st, s.RewardDuration, domain.SourceReferral); err != nil {
			return err
		}
		out.PremiumGranted = true
		return nil
	})
	if err != nil {
		return RewardResult{}, err
	}
	if out.Rewarded {
		ref.RewardGiven = true
		ref.RewardGivenAt = &now
		s.Premium.Invalidate(ctx, referrer)
	}
	return out, nil
}

// RewardOnAd is the reward path triggered by an ad of the referred identity.
// Identities that were never referred are a no-op.
func (s *ReferralService) RewardOnAd(ctx context.Context, id domain.Identity) (RewardResult, error) {
	if id.Token == "" {
		return RewardResult{}, nil
	}
	res, err := s.Reward(ctx, id.Token)
	if errors.Is(err, ErrReferralNotFound) {
		return RewardResult{}, nil
	}
	return res, err
}

// Stats lists the invitations of referrerToken.
func (s *ReferralService) Stats(ctx context.Context, referrerToken string) (ReferralStats, error) {
	tr := otel.Tracer("services/ReferralService")
	ctx, span := tr.Start(ctx, "Stats",
		trace.WithAttributes(attribute.Bool("has_token", referrerToken != "")),
	)
	defer span.End()

	referrerToken = strings.TrimSpace(referrerToken)
	if referrerToken == "" {
		return ReferralStats{}, validationf("userToken is required")
	}
	refs, err := repo.ListReferralsByReferrer(ctx, s.DB, referrerToken)
	if err != nil {
		return ReferralStats{}, err
	}
	out := ReferralStats{Total: len(refs), Referrals: refs}
	if out.Referrals == nil {
		out.Referrals = []domain.Referral{}
	}
	for _, r := range refs {
		if r.RewardGiven {
			out.Rewarded++
		} else {
			out.Pending++
		}
	}
	return out, nil
}

func (s *ReferralService) referrerIdentity(ctx context.Context, ref *domain.Referral) (domain.Identity, error) {
	id := domain.Identity{Token: ref.ReferrerToken}
	if ref.ReferrerID != nil {
		id.TgID = *ref.ReferrerID
		return id, nil
	}
	tgID, ok, err := repo.FindUserIDByToken(ctx, s.DB, ref.ReferrerToken)
	if err != nil {
		return domain.Identity{}, err
	}
	if ok {
		id.TgID = tgID
	}
	return id, nil
}
