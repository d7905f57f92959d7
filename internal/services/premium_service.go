// Package services – PremiumService
//
// PremiumService implements the premium actions: status with limits, photo
// quota checks, the test toggle, pricing, the explicit female-bonus claim and
// Telegram Stars activation. All premium writes go through PremiumResolver so
// the token mirror and the status cache stay in step.

package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/language"
	"gorm.io/gorm"

	"github.com/tbourn/go-anon-ads-backend/internal/config"
	"github.com/tbourn/go-anon-ads-backend/internal/domain"
	"github.com/tbourn/go-anon-ads-backend/internal/repo"
)

// PremiumService serves the premium actions.
type PremiumService struct {
	DB             *gorm.DB
	Ledger         *QuotaLedger
	Premium        *PremiumResolver
	Bonus          *BonusMachine
	Prices         config.Prices
	Messages       *Localizer
	TrialDuration  time.Duration
	ToggleDuration time.Duration
	Now            func() time.Time
}

func (s *PremiumService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// AdsUsage adds the ads-table cross-check to the counter view.
type AdsUsage struct {
	Usage
	Counted int64 `json:"counted"`
}

// StatusLimits groups the per-counter views of get-user-status.
type StatusLimits struct {
	Photos Usage    `json:"photos"`
	Ads    AdsUsage `json:"ads"`
	Pin    PinUsage `json:"pin"`
}

// UserStatus is the get-user-status payload.
type UserStatus struct {
	IsPremium     bool                  `json:"isPremium"`
	PremiumUntil  *time.Time            `json:"premiumUntil"`
	PremiumSource *domain.PremiumSource `json:"premiumSource"`
	TrialUsed     bool                  `json:"trialUsed"`
	Country       string                `json:"country"`
	Limits        StatusLimits          `json:"limits"`
}

// PhotoLimit is the check-photo-limit and increment-photo-count payload.
type PhotoLimit struct {
	CanSend   bool `json:"canSend"`
	Remaining int  `json:"remaining"`
	IsPremium bool `json:"isPremium"`
}

// ToggleResult is the toggle-premium payload.
type ToggleResult struct {
	IsPremium    bool       `json:"isPremium"`
	PremiumUntil *time.Time `json:"premiumUntil"`
	Trial        bool       `json:"trial"`
	Trial7hUsed  bool       `json:"trial7h_used"`
}

// StarsActivation is a completed Telegram Stars payment.
type StarsActivation struct {
	Identity      domain.Identity
	Months        int
	TransactionID string
	AmountStars   int
}

// StarsResult is the activation payload.
type StarsResult struct {
	Success      bool      `json:"success"`
	PremiumUntil time.Time `json:"premium_until"`
	Months       int       `json:"months"`
	AmountStars  int       `json:"amount_stars"`
	Stacked      bool      `json:"stacked"`
}

// GetUserStatus returns premium status, the trial flag, the last known
// country and the limits of every counter.
func (s *PremiumService) GetUserStatus(ctx context.Context, id domain.Identity) (UserStatus, error) {
	tr := otel.Tracer("services/PremiumService")
	ctx, span := tr.Start(ctx, "GetUserStatus",
		trace.WithAttributes(attribute.String("identity", id.Key())),
	)
	defer span.End()

	status, st, err := s.Premium.ResolveState(ctx, s.DB, id)
	if err != nil {
		return UserStatus{}, err
	}
	row, day, err := s.Ledger.Snapshot(ctx, id)
	if err != nil {
		return UserStatus{}, err
	}
	off := s.Ledger.Offset
	counted, err := repo.CountAdsInWindow(ctx, s.DB, id, day.Start(off), day.Next().Start(off))
	if err != nil {
		return UserStatus{}, err
	}
	country, err := repo.LatestAdCountry(ctx, s.DB, id)
	if err != nil {
		return UserStatus{}, err
	}

	p := s.Ledger.Policy
	return UserStatus{
		IsPremium:     status.IsPremium,
		PremiumUntil:  status.PremiumUntil,
		PremiumSource: status.PremiumSource,
		TrialUsed:     st.TrialUsed || row.TrialUsed,
		Country:       country,
		Limits: StatusLimits{
			Photos: p.UsageOf(row, domain.CounterPhotos, day, status.IsPremium),
			Ads:    AdsUsage{Usage: p.UsageOf(row, domain.CounterAds, day, status.IsPremium), Counted: counted},
			Pin:    p.PinStatus(row, day, off, status.IsPremium, s.now()),
		},
	}, nil
}

// CheckPhotoLimit reports whether id may send another photo today.
func (s *PremiumService) CheckPhotoLimit(ctx context.Context, id domain.Identity) (PhotoLimit, error) {
	status, err := s.Premium.Resolve(ctx, id)
	if err != nil {
		return PhotoLimit{}, err
	}
	row, day, err := s.Ledger.Snapshot(ctx, id)
	if err != nil {
		return PhotoLimit{}, err
	}
	u := s.Ledger.Policy.UsageOf(row, domain.CounterPhotos, day, status.IsPremium)
	return PhotoLimit{CanSend: u.Remaining > 0, Remaining: u.Remaining, IsPremium: status.IsPremium}, nil
}

// IncrementPhotoCount records one sent photo, or returns a *QuotaError.
func (s *PremiumService) IncrementPhotoCount(ctx context.Context, id domain.Identity) (PhotoLimit, error) {
	tr := otel.Tracer("services/PremiumService")
	ctx, span := tr.Start(ctx, "IncrementPhotoCount",
		trace.WithAttributes(attribute.String("identity", id.Key())),
	)
	defer span.End()

	status, err := s.Premium.Resolve(ctx, id)
	if err != nil {
		return PhotoLimit{}, err
	}
	row, err := s.Ledger.Consume(ctx, id, domain.CounterPhotos, status.IsPremium)
	if err != nil {
		return PhotoLimit{}, err
	}
	u := s.Ledger.Policy.UsageOf(row, domain.CounterPhotos, s.Ledger.Today(), status.IsPremium)
	return PhotoLimit{CanSend: u.Remaining > 0, Remaining: u.Remaining, IsPremium: status.IsPremium}, nil
}

// TogglePremium flips premium for testing. Switching on grants
// ToggleDuration, or TrialDuration when trial is set; the trial can be taken
// once per identity. Switching off clears the window and the source tag.
func (s *PremiumService) TogglePremium(ctx context.Context, id domain.Identity, trial bool) (ToggleResult, error) {
	tr := otel.Tracer("services/PremiumService")
	ctx, span := tr.Start(ctx, "TogglePremium",
		trace.WithAttributes(
			attribute.String("identity", id.Key()),
			attribute.Bool("trial", trial),
		),
	)
	defer span.End()

	if id.IsZero() {
		return ToggleResult{}, ErrUnauthenticated
	}
	var out ToggleResult
	now := s.now()
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		_, st, err := s.Premium.ResolveState(ctx, tx, id)
		if err != nil {
			return err
		}
		out.Trial7hUsed = st.TrialUsed

		if st.ActiveAt(now) {
			st.IsPremium = false
			st.PremiumUntil = nil
			st.AutoPremiumSource = nil
			out.IsPremium = false
			return s.Premium.Apply(ctx, tx, id, st)
		}

		d := s.ToggleDuration
		if trial {
			claimed, err := s.claimTrial(ctx, tx, id, now)
			if err != nil {
				return err
			}
			if !claimed {
				return ErrTrialUsed
			}
			d = s.TrialDuration
			out.Trial = true
			out.Trial7hUsed = true
		}
		until := now.Add(d)
		st.IsPremium = true
		st.PremiumUntil = &until
		st.AutoPremiumSource = nil
		out.IsPremium = true
		out.PremiumUntil = &until
		return s.Premium.Apply(ctx, tx, id, st)
	})
	if err != nil {
		return ToggleResult{}, err
	}
	s.Premium.Invalidate(ctx, id)
	return out, nil
}

func (s *PremiumService) claimTrial(ctx context.Context, tx *gorm.DB, id domain.Identity, now time.Time) (bool, error) {
	if id.TgID > 0 {
		return repo.MarkUserTrialUsed(ctx, tx, id.TgID, now)
	}
	return repo.ClaimWebTrial(ctx, tx, id.Token, now)
}

// Pricing returns the monthly price for country and the localized feature
// lists of both tiers. An empty country falls back to the country of id's
// latest ad.
func (s *PremiumService) Pricing(ctx context.Context, id domain.Identity, country string, tag language.Tag) (Pricing, error) {
	country = strings.ToUpper(strings.TrimSpace(country))
	if country == "" && !id.IsZero() {
		c, err := repo.LatestAdCountry(ctx, s.DB, id)
		if err != nil {
			return Pricing{}, err
		}
		country = strings.ToUpper(strings.TrimSpace(c))
	}
	price := s.Prices.For(country)

	q := s.Ledger.Policy.Quota
	pinHours := int(q.PinDuration / time.Hour)
	if pinHours < 1 {
		pinHours = 1
	}
	cooldownDays := int(q.FreePinCooldown / (24 * time.Hour))
	if cooldownDays < 1 {
		cooldownDays = 1
	}
	m := s.Messages

	return Pricing{
		Country:  country,
		Price:    priceLabel(price),
		Amount:   price.Amount.String(),
		Currency: price.Currency,
		Symbol:   price.Symbol,
		Period:   m.Sprintf(tag, MsgPeriodMonth),
		Free: TierInfo{
			Name: "FREE",
			Features: []string{
				m.Sprintf(tag, MsgFeatureAdsPerDay, q.Free.AdsPerDay),
				m.Sprintf(tag, MsgFeaturePhotos, q.Free.PhotosPerDay),
				m.Sprintf(tag, MsgFeaturePinFree, pinHours, cooldownDays),
				m.Sprintf(tag, MsgFeatureBasic),
			},
		},
		Pro: TierInfo{
			Name: "PRO",
			Features: []string{
				m.Sprintf(tag, MsgFeatureAdsPerDay, q.Pro.AdsPerDay),
				m.Sprintf(tag, MsgFeatureUnlimited),
				m.Sprintf(tag, MsgFeaturePinPro, q.Pro.PinsPerDay, pinHours),
				m.Sprintf(tag, MsgFeatureBadge),
				m.Sprintf(tag, MsgFeatureSupport),
			},
		},
	}, nil
}

// ActivateFemaleBonus claims the bonus explicitly and returns the new status.
func (s *PremiumService) ActivateFemaleBonus(ctx context.Context, id domain.Identity) (domain.PremiumStatus, error) {
	if id.IsZero() {
		return domain.PremiumStatus{}, ErrUnauthenticated
	}
	st, err := s.Bonus.Activate(ctx, id)
	if err != nil {
		return domain.PremiumStatus{}, err
	}
	src := domain.SourceFemaleBonus
	return domain.PremiumStatus{IsPremium: st.IsPremium, PremiumUntil: st.PremiumUntil, PremiumSource: &src}, nil
}

// ActivateStars records a Stars payment and stacks its months onto the
// current window. A transaction id seen before grants nothing.
func (s *PremiumService) ActivateStars(ctx context.Context, in StarsActivation) (StarsResult, error) {
	tr := otel.Tracer("services/PremiumService")
	ctx, span := tr.Start(ctx, "ActivateStars",
		trace.WithAttributes(
			attribute.String("identity", in.Identity.Key()),
			attribute.Int("months", in.Months),
		),
	)
	defer span.End()

	id := in.Identity
	if id.IsZero() {
		return StarsResult{}, ErrUnauthenticated
	}
	if in.Months < 1 || in.Months > 12 {
		return StarsResult{}, ErrInvalidMonths
	}
	txID := strings.TrimSpace(in.TransactionID)
	if txID == "" || in.AmountStars <= 0 {
		return StarsResult{}, validationf("transactionId and amount are required")
	}

	now := s.now()
	out := StarsResult{Success: true, Months: in.Months, AmountStars: in.AmountStars}
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec := &domain.PremiumTransaction{
			Months:        in.Months,
			AmountStars:   in.AmountStars,
			TransactionID: txID,
			PaymentMethod: "stars",
			Status:        "completed",
			CreatedAt:     now,
		}
		if id.TgID > 0 {
			tg := id.TgID
			rec.TelegramID = &tg
		}
		if id.Token != "" {
			tok := id.Token
			rec.UserToken = &tok
		}
		if err := repo.CreateTransaction(ctx, tx, rec); err != nil {
			if errors.Is(err, repo.ErrDuplicate) {
				return ErrDuplicateTransaction
			}
			return err
		}

		_, st, err := s.Premium.ResolveState(ctx, tx, id)
		if err != nil {
			return err
		}
		out.Stacked = st.ActiveAt(now) && st.PremiumUntil != nil
		st, err = s.Premium.GrantUntil(ctx, tx, id, st, func(base time.Time) time.Time {
			return base.AddDate(0, in.Months, 0)
		}, domain.SourceStars, now)
		if err != nil {
			return err
		}
		if st.PremiumUntil != nil {
			out.PremiumUntil = *st.PremiumUntil
		}
		return nil
	})
	if err != nil {
		return StarsResult{}, err
	}
	s.Premium.Invalidate(ctx, id)
	return out, nil
}
