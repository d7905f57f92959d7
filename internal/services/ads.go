// Package services – AdService
//
// AdService creates, deletes, pins and renames ads. Creation follows a fixed
// order: resolve premium, consume one ad from the ledger, insert the ad, and
// only then run the secondary effects (female-bonus transition, referral
// reward). Secondary failures are logged and never fail the request; a failed
// insert gives the consumed ad back.
//
// Observability: public methods are OpenTelemetry-instrumented with the
// caller identity and ad id where applicable.

package services

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-anon-ads-backend/internal/domain"
	"github.com/tbourn/go-anon-ads-backend/internal/repo"
)

// IdempotencyScopeCreateAd scopes Idempotency-Key records of ad creation.
const IdempotencyScopeCreateAd = "ads.create"

const maxNicknameRunes = 32

// CreateAdInput is the payload of an ad creation.
type CreateAdInput struct {
	Gender      string
	Target      string
	Goal        string
	AgeFrom     int
	AgeTo       int
	MyAge       int
	Body        string
	Orientation string
	Text        string
	Nickname    string
	Country     string
	Region      string
	City        string

	// IdempotencyKey, when set, makes retries return the first ad.
	IdempotencyKey string
}

// CreateAdResult is the outcome of Create.
type CreateAdResult struct {
	Ad        *domain.Ad
	Replayed  bool
	IsPremium bool
	Bonus     BonusOutcome
}

// AdService owns the ad lifecycle.
type AdService struct {
	DB             *gorm.DB
	Ledger         *QuotaLedger
	Premium        *PremiumResolver
	Bonus          *BonusMachine
	Referrals      *ReferralService
	PinDuration    time.Duration
	IdempotencyTTL time.Duration
	Now            func() time.Time
}

func (s *AdService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (in CreateAdInput) validate() (domain.Gender, error) {
	req := map[string]string{
		"gender": in.Gender,
		"target": in.Target,
		"goal":   in.Goal,
		"text":   in.Text,
		"city":   in.City,
	}
	for _, f := range []string{"gender", "target", "goal", "text", "city"} {
		if strings.TrimSpace(req[f]) == "" {
			return "", validationf("%s is required", f)
		}
	}
	g, ok := domain.ParseGender(in.Gender)
	if !ok {
		return "", validationf("unknown gender %q", in.Gender)
	}
	if in.AgeFrom < 0 || in.AgeTo < 0 || in.MyAge < 0 || (in.AgeTo > 0 && in.AgeFrom > in.AgeTo) {
		return "", validationf("invalid age range")
	}
	return g, nil
}

// Create posts a new ad for id.
func (s *AdService) Create(ctx context.Context, id domain.Identity, in CreateAdInput) (CreateAdResult, error) {
	tr := otel.Tracer("services/AdService")
	ctx, span := tr.Start(ctx, "Create",
		trace.WithAttributes(attribute.String("identity", id.Key())),
	)
	defer span.End()

	if id.IsZero() {
		return CreateAdResult{}, ErrUnauthenticated
	}
	gender, err := in.validate()
	if err != nil {
		return CreateAdResult{}, err
	}
	lg := zerolog.Ctx(ctx).With().Str("identity", id.LogKey()).Logger()

	if in.IdempotencyKey != "" {
		if prev, ok := s.replay(ctx, id, in.IdempotencyKey); ok {
			span.SetAttributes(attribute.Bool("idempotency.replay", true))
			return CreateAdResult{Ad: prev, Replayed: true, IsPremium: prev.IsPremium}, nil
		}
	}

	status, err := s.Premium.Resolve(ctx, id)
	if err != nil {
		return CreateAdResult{}, err
	}
	if _, err := s.Ledger.Consume(ctx, id, domain.CounterAds, status.IsPremium); err != nil {
		return CreateAdResult{}, err
	}

	now := s.now()
	ad := &domain.Ad{
		ID:          uuid.NewString(),
		Gender:      gender,
		Target:      strings.TrimSpace(in.Target),
		Goal:        strings.TrimSpace(in.Goal),
		AgeFrom:     in.AgeFrom,
		AgeTo:       in.AgeTo,
		MyAge:       in.MyAge,
		Body:        strings.TrimSpace(in.Body),
		Orientation: strings.TrimSpace(in.Orientation),
		Text:        strings.TrimSpace(in.Text),
		Nickname:    strings.TrimSpace(in.Nickname),
		Country:     strings.TrimSpace(in.Country),
		Region:      strings.TrimSpace(in.Region),
		City:        strings.TrimSpace(in.City),
		IsPremium:   status.IsPremium,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if id.TgID > 0 {
		tg := id.TgID
		ad.TgID = &tg
	}
	if id.Token != "" {
		tok := id.Token
		ad.UserToken = &tok
	}

	if err := repo.CreateAd(ctx, s.DB, ad); err != nil {
		if _, rerr := s.Ledger.Refund(ctx, id, domain.CounterAds, now); rerr != nil {
			lg.Error().Err(rerr).Msg("refund ads counter after failed insert")
		}
		return CreateAdResult{}, err
	}
	span.SetAttributes(attribute.String("ad.id", ad.ID))

	if in.IdempotencyKey != "" {
		ttl := s.IdempotencyTTL
		if ttl <= 0 {
			ttl = 24 * time.Hour
		}
		if _, err := repo.CreateIdempotency(ctx, s.DB, id.Key(), IdempotencyScopeCreateAd, in.IdempotencyKey, ad.ID, http.StatusCreated, ttl); err != nil && !errors.Is(err, repo.ErrDuplicate) {
			lg.Warn().Err(err).Msg("store idempotency key")
		}
	}

	res := CreateAdResult{Ad: ad, IsPremium: status.IsPremium}
	if s.Bonus != nil {
		out, err := s.Bonus.OnAdCreated(ctx, id, gender)
		if err != nil {
			lg.Error().Err(err).Str("ad_id", ad.ID).Msg("female bonus transition failed")
		} else {
			res.Bonus = out
			if out.Granted {
				res.IsPremium = true
			}
		}
	}
	if s.Referrals != nil {
		if rw, err := s.Referrals.RewardOnAd(ctx, id); err != nil {
			lg.Error().Err(err).Str("ad_id", ad.ID).Msg("referral reward failed")
		} else if rw.Rewarded {
			lg.Info().Str("referral_id", rw.Referral.ID).Bool("premium_granted", rw.PremiumGranted).Msg("referral rewarded")
		}
	}
	return res, nil
}

func (s *AdService) replay(ctx context.Context, id domain.Identity, key string) (*domain.Ad, bool) {
	rec, err := repo.GetIdempotency(ctx, s.DB, id.Key(), IdempotencyScopeCreateAd, key, s.now())
	if err != nil {
		return nil, false
	}
	ad, err := repo.GetAd(ctx, s.DB, rec.ResourceID)
	if err != nil {
		return nil, false
	}
	return ad, true
}

// ownedAd loads adID and checks it belongs to id.
func (s *AdService) ownedAd(ctx context.Context, id domain.Identity, adID string) (*domain.Ad, error) {
	if id.IsZero() {
		return nil, ErrUnauthenticated
	}
	adID = strings.TrimSpace(adID)
	if adID == "" {
		return nil, validationf("id is required")
	}
	ad, err := repo.GetAd(ctx, s.DB, adID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrAdNotFound
	}
	if err != nil {
		return nil, err
	}
	if !ad.OwnedBy(id) {
		return nil, ErrNotOwner
	}
	return ad, nil
}

// Delete removes an ad of id. Deleting an ad created today (reference day)
// gives the ads counter back; older ads leave it alone.
func (s *AdService) Delete(ctx context.Context, id domain.Identity, adID string) error {
	tr := otel.Tracer("services/AdService")
	ctx, span := tr.Start(ctx, "Delete",
		trace.WithAttributes(
			attribute.String("identity", id.Key()),
			attribute.String("ad.id", adID),
		),
	)
	defer span.End()

	ad, err := s.ownedAd(ctx, id, adID)
	if err != nil {
		return err
	}
	if err := repo.DeleteAd(ctx, s.DB, ad.ID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrAdNotFound
		}
		return err
	}
	if _, err := s.Ledger.Refund(ctx, id, domain.CounterAds, ad.CreatedAt); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("ad_id", ad.ID).Msg("refund ads counter on delete")
	}
	return nil
}

// SetPin pins or unpins an ad. Pinning consumes the pin quota and lasts at
// most PinDuration; a shorter requested expiry is honoured. Unpinning is
// always allowed and free.
func (s *AdService) SetPin(ctx context.Context, id domain.Identity, adID string, pinned bool, requestedUntil *time.Time) (*domain.Ad, error) {
	tr := otel.Tracer("services/AdService")
	ctx, span := tr.Start(ctx, "SetPin",
		trace.WithAttributes(
			attribute.String("identity", id.Key()),
			attribute.String("ad.id", adID),
			attribute.Bool("pinned", pinned),
		),
	)
	defer span.End()

	ad, err := s.ownedAd(ctx, id, adID)
	if err != nil {
		return nil, err
	}
	now := s.now()

	if !pinned {
		if err := repo.SetAdPin(ctx, s.DB, ad.ID, false, nil, now); err != nil {
			return nil, err
		}
		ad.IsPinned, ad.PinnedUntil, ad.UpdatedAt = false, nil, now
		return ad, nil
	}

	status, err := s.Premium.Resolve(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.Ledger.Consume(ctx, id, domain.CounterPins, status.IsPremium); err != nil {
		return nil, err
	}

	until := now.Add(s.PinDuration)
	if requestedUntil != nil && requestedUntil.After(now) && requestedUntil.Before(until) {
		until = requestedUntil.UTC()
	}
	if err := repo.SetAdPin(ctx, s.DB, ad.ID, true, &until, now); err != nil {
		if _, rerr := s.Ledger.Refund(ctx, id, domain.CounterPins, now); rerr != nil {
			zerolog.Ctx(ctx).Error().Err(rerr).Msg("refund pins counter after failed pin")
		}
		return nil, err
	}
	ad.IsPinned, ad.PinnedUntil, ad.UpdatedAt = true, &until, now
	return ad, nil
}

// UpdateNicknames sets nickname on every ad of id and on its users row.
func (s *AdService) UpdateNicknames(ctx context.Context, id domain.Identity, nickname string) (int64, error) {
	tr := otel.Tracer("services/AdService")
	ctx, span := tr.Start(ctx, "UpdateNicknames",
		trace.WithAttributes(attribute.String("identity", id.Key())),
	)
	defer span.End()

	if id.IsZero() {
		return 0, ErrUnauthenticated
	}
	nickname = strings.TrimSpace(nickname)
	if n := utf8.RuneCountInString(nickname); n < 1 || n > maxNicknameRunes {
		return 0, validationf("nickname must be 1..%d characters", maxNicknameRunes)
	}

	now := s.now()
	var changed int64
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		n, err := repo.UpdateNicknames(ctx, tx, id, nickname, now)
		if err != nil {
			return err
		}
		changed = n
		if id.TgID > 0 {
			return repo.SetUserNickname(ctx, tx, id.TgID, nickname, now)
		}
		return nil
	})
	return changed, err
}

// ListMine returns a page of id's ads and the total count.
func (s *AdService) ListMine(ctx context.Context, id domain.Identity, page, pageSize int) ([]domain.Ad, int64, error) {
	tr := otel.Tracer("services/AdService")
	ctx, span := tr.Start(ctx, "ListMine",
		trace.WithAttributes(
			attribute.String("identity", id.Key()),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	if id.IsZero() {
		return nil, 0, ErrUnauthenticated
	}
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	total, err := repo.CountAds(ctx, s.DB, id)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Ad{}, 0, nil
	}
	items, err := repo.ListAdsPage(ctx, s.DB, id, (page-1)*pageSize, pageSize)
	return items, total, err
}

// Stats returns the ad count and newest update of id, for ETags.
func (s *AdService) Stats(ctx context.Context, id domain.Identity) (int64, *time.Time, error) {
	if id.IsZero() {
		return 0, nil, ErrUnauthenticated
	}
	return repo.AdsStats(ctx, s.DB, id)
}
