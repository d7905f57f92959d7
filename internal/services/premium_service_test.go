package services

import (
	"errors"
	"testing"
	"time"

	"golang.org/x/text/language"

	"github.com/tbourn/go-anon-ads-backend/internal/domain"
)

func TestPremiumService_GetUserStatus(t *testing.T) {
	e := newEnv(t)
	id := e.platform(t, 700)

	if _, err := e.ads.Create(ctxBG(), id, sampleAdInput("male")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := e.svc.IncrementPhotoCount(ctxBG(), id); err != nil {
		t.Fatalf("photo: %v", err)
	}

	st, err := e.svc.GetUserStatus(ctxBG(), id)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.IsPremium || st.TrialUsed || st.Country != "KZ" {
		t.Fatalf("unexpected header fields: %+v", st)
	}
	if st.Limits.Ads.Used != 1 || st.Limits.Ads.Max != 1 || st.Limits.Ads.Remaining != 0 || st.Limits.Ads.Counted != 1 {
		t.Fatalf("ads limits: %+v", st.Limits.Ads)
	}
	if st.Limits.Photos != (Usage{Used: 1, Max: 5, Remaining: 4}) {
		t.Fatalf("photo limits: %+v", st.Limits.Photos)
	}
	if !st.Limits.Pin.CanUse || st.Limits.Pin.Max != 1 || st.Limits.Pin.NextAvailableAt != nil {
		t.Fatalf("pin limits: %+v", st.Limits.Pin)
	}

	// The next reference day starts at 19:00 UTC.
	e.clk.Advance(9*time.Hour + time.Minute)
	st, err = e.svc.GetUserStatus(ctxBG(), id)
	if err != nil || st.Limits.Ads.Used != 0 || st.Limits.Ads.Counted != 0 || st.Limits.Photos.Used != 0 {
		t.Fatalf("counters must roll over: %+v err=%v", st.Limits, err)
	}
}

func TestPremiumService_PhotoLimit(t *testing.T) {
	e := newEnv(t)
	id := domain.Identity{Token: "anon-photos"}

	chk, err := e.svc.CheckPhotoLimit(ctxBG(), id)
	if err != nil || !chk.CanSend || chk.Remaining != 5 || chk.IsPremium {
		t.Fatalf("fresh check: %+v err=%v", chk, err)
	}
	for i := 0; i < 5; i++ {
		res, err := e.svc.IncrementPhotoCount(ctxBG(), id)
		if err != nil {
			t.Fatalf("photo %d: %v", i+1, err)
		}
		if res.Remaining != 4-i {
			t.Fatalf("photo %d: remaining=%d", i+1, res.Remaining)
		}
	}
	_, err = e.svc.IncrementPhotoCount(ctxBG(), id)
	var qe *QuotaError
	if !errors.As(err, &qe) || qe.Counter != domain.CounterPhotos {
		t.Fatalf("sixth photo: want photos *QuotaError, got %v", err)
	}
	chk, _ = e.svc.CheckPhotoLimit(ctxBG(), id)
	if chk.CanSend || chk.Remaining != 0 {
		t.Fatalf("exhausted check: %+v", chk)
	}
}

func TestPremiumService_TogglePremium(t *testing.T) {
	for _, tc := range []struct {
		name string
		id   func(t *testing.T, e *testEnv) domain.Identity
	}{
		{"platform", func(t *testing.T, e *testEnv) domain.Identity { return e.platform(t, 710) }},
		{"anonymous", func(*testing.T, *testEnv) domain.Identity { return domain.Identity{Token: "anon-toggle"} }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			e := newEnv(t)
			id := tc.id(t, e)
			now := e.clk.Now()

			on, err := e.svc.TogglePremium(ctxBG(), id, false)
			if err != nil || !on.IsPremium || on.Trial || !on.PremiumUntil.Equal(now.Add(testToggle)) {
				t.Fatalf("toggle on: %+v err=%v", on, err)
			}
			off, err := e.svc.TogglePremium(ctxBG(), id, false)
			if err != nil || off.IsPremium || off.PremiumUntil != nil {
				t.Fatalf("toggle off: %+v err=%v", off, err)
			}
			if st, _ := e.premium.Resolve(ctxBG(), id); st.IsPremium {
				t.Fatalf("status after off: %+v", st)
			}

			trial, err := e.svc.TogglePremium(ctxBG(), id, true)
			if err != nil || !trial.Trial || !trial.Trial7hUsed || !trial.PremiumUntil.Equal(now.Add(testTrial)) {
				t.Fatalf("trial: %+v err=%v", trial, err)
			}
			st, err := e.premium.Resolve(ctxBG(), id)
			if err != nil || st.PremiumSource == nil || *st.PremiumSource != domain.SourceTrial {
				t.Fatalf("trial source: %+v err=%v", st, err)
			}

			if _, err := e.svc.TogglePremium(ctxBG(), id, false); err != nil {
				t.Fatalf("toggle off after trial: %v", err)
			}
			if _, err := e.svc.TogglePremium(ctxBG(), id, true); !errors.Is(err, ErrTrialUsed) {
				t.Fatalf("second trial: want ErrTrialUsed, got %v", err)
			}
		})
	}
}

func TestPremiumService_ActivateStars(t *testing.T) {
	e := newEnv(t)
	id := e.platform(t, 720)
	now := e.clk.Now()

	first, err := e.svc.ActivateStars(ctxBG(), StarsActivation{Identity: id, Months: 1, TransactionID: "tx-1", AmountStars: 50})
	if err != nil || first.Stacked || !first.PremiumUntil.Equal(now.AddDate(0, 1, 0)) {
		t.Fatalf("first payment: %+v err=%v", first, err)
	}
	second, err := e.svc.ActivateStars(ctxBG(), StarsActivation{Identity: id, Months: 2, TransactionID: "tx-2", AmountStars: 92})
	if err != nil || !second.Stacked || !second.PremiumUntil.Equal(now.AddDate(0, 3, 0)) {
		t.Fatalf("stacked payment: %+v err=%v", second, err)
	}

	if _, err := e.svc.ActivateStars(ctxBG(), StarsActivation{Identity: id, Months: 1, TransactionID: "tx-1", AmountStars: 50}); !errors.Is(err, ErrDuplicateTransaction) {
		t.Fatalf("replayed payment: want ErrDuplicateTransaction, got %v", err)
	}
	st, err := e.premium.Resolve(ctxBG(), id)
	if err != nil || !st.PremiumUntil.Equal(second.PremiumUntil) {
		t.Fatalf("duplicate must grant nothing: %+v err=%v", st, err)
	}
	if st.PremiumSource == nil || *st.PremiumSource != domain.SourceStars {
		t.Fatalf("source = %v; want stars", st.PremiumSource)
	}

	if _, err := e.svc.ActivateStars(ctxBG(), StarsActivation{Identity: id, Months: 13, TransactionID: "tx-3", AmountStars: 1}); !errors.Is(err, ErrInvalidMonths) {
		t.Fatalf("13 months: want ErrInvalidMonths, got %v", err)
	}
	if _, err := e.svc.ActivateStars(ctxBG(), StarsActivation{Identity: id, Months: 1, AmountStars: 50}); !errors.Is(err, ErrValidation) {
		t.Fatalf("missing tx id: want ErrValidation, got %v", err)
	}
}

func TestPremiumService_Pricing(t *testing.T) {
	e := newEnv(t)

	kz, err := e.svc.Pricing(ctxBG(), domain.Identity{}, "kz", language.Russian)
	if err != nil {
		t.Fatalf("pricing: %v", err)
	}
	if kz.Country != "KZ" || kz.Price != "499 ₸" || kz.Currency != "KZT" || kz.Period != "месяц" {
		t.Fatalf("kz pricing: %+v", kz)
	}
	if got := kz.Free.Features[0]; got != "1 объявл. в день" {
		t.Fatalf("free feature = %q", got)
	}

	other, err := e.svc.Pricing(ctxBG(), domain.Identity{}, "DE", language.English)
	if err != nil {
		t.Fatalf("pricing: %v", err)
	}
	if other.Price != "2 $" || other.Period != "month" {
		t.Fatalf("fallback pricing: %+v", other)
	}
	if got := other.Pro.Features[2]; got != "Pin to TOP: 3 times a day for 1 h" {
		t.Fatalf("pro pin feature = %q", got)
	}

	// Without a country the latest ad decides.
	id := domain.Identity{Token: "anon-price"}
	in := sampleAdInput("male")
	in.Country = "RU"
	if _, err := e.ads.Create(ctxBG(), id, in); err != nil {
		t.Fatalf("create: %v", err)
	}
	ru, err := e.svc.Pricing(ctxBG(), id, "", language.Russian)
	if err != nil || ru.Country != "RU" || ru.Currency != "RUB" {
		t.Fatalf("country from ads: %+v err=%v", ru, err)
	}
}
