package services

import (
	"errors"
	"testing"
	"time"

	"github.com/tbourn/go-anon-ads-backend/internal/domain"
	"github.com/tbourn/go-anon-ads-backend/internal/repo"
)

func TestBonusMachine_FirstFemaleAdGrantsBonus(t *testing.T) {
	e := newEnv(t)
	id := e.platform(t, 500)

	res, err := e.ads.Create(ctxBG(), id, sampleAdInput("female"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !res.Bonus.Granted || res.Bonus.Lost || !res.IsPremium {
		t.Fatalf("expected bonus grant, got %+v", res)
	}

	st, err := e.premium.Resolve(ctxBG(), id)
	if err != nil || !st.IsPremium || st.PremiumSource == nil || *st.PremiumSource != domain.SourceFemaleBonus {
		t.Fatalf("status after bonus: %+v err=%v", st, err)
	}
	if want := e.clk.Now().Add(testBonus); !st.PremiumUntil.Equal(want) {
		t.Fatalf("premium_until = %v; want %v", st.PremiumUntil, want)
	}

	// The mirror carries the bonus for token-only reads.
	mirror, found, err := repo.LoadPremiumState(ctxBG(), e.db, domain.Identity{Token: id.Token})
	if err != nil || !found || !mirror.HasBonusSource() {
		t.Fatalf("mirror: %+v found=%v err=%v", mirror, found, err)
	}
}

func TestBonusMachine_FirstGenderIsImmutable(t *testing.T) {
	e := newEnv(t)
	id := domain.Identity{Token: "anon-immutable"}

	if res, err := e.ads.Create(ctxBG(), id, sampleAdInput("male")); err != nil || res.Bonus.Transition != "" {
		t.Fatalf("male first ad: %+v err=%v", res, err)
	}
	e.clk.Advance(24 * time.Hour)
	res, err := e.ads.Create(ctxBG(), id, sampleAdInput("female"))
	if err != nil {
		t.Fatalf("female second ad: %v", err)
	}
	if res.Bonus.Granted || res.IsPremium {
		t.Fatalf("a later female ad must not grant the bonus: %+v", res)
	}

	st, _, err := repo.LoadPremiumState(ctxBG(), e.db, id)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if g, ok := st.FirstGender(); !ok || g != domain.GenderMale {
		t.Fatalf("first_ad_gender = %v,%v; want male", g, ok)
	}
}

func TestBonusMachine_ContradictingAdRevokes(t *testing.T) {
	e := newEnv(t)
	id := e.platform(t, 510)

	if _, err := e.ads.Create(ctxBG(), id, sampleAdInput("female")); err != nil {
		t.Fatalf("female ad: %v", err)
	}
	res, err := e.ads.Create(ctxBG(), id, sampleAdInput("male"))
	if err != nil {
		t.Fatalf("male ad: %v", err)
	}
	if res.Bonus.Transition != BonusRevoked || !res.Bonus.Lost {
		t.Fatalf("expected revoke, got %+v", res.Bonus)
	}

	st, err := e.premium.Resolve(ctxBG(), id)
	if err != nil || st.IsPremium || st.PremiumSource != nil {
		t.Fatalf("status after revoke: %+v err=%v", st, err)
	}

	// A third ad changes nothing: the tag is gone.
	e.clk.Advance(24 * time.Hour)
	res, err = e.ads.Create(ctxBG(), id, sampleAdInput("male"))
	if err != nil || res.Bonus.Transition != "" {
		t.Fatalf("after revoke: %+v err=%v", res, err)
	}
}

func TestBonusMachine_PaidExtensionSurvivesRevoke(t *testing.T) {
	e := newEnv(t)
	id := e.platform(t, 520)

	if _, err := e.ads.Create(ctxBG(), id, sampleAdInput("female")); err != nil {
		t.Fatalf("female ad: %v", err)
	}
	paid, err := e.svc.ActivateStars(ctxBG(), StarsActivation{Identity: id, Months: 1, TransactionID: "tx-520", AmountStars: 50})
	if err != nil || !paid.Stacked {
		t.Fatalf("stars: %+v err=%v", paid, err)
	}

	res, err := e.ads.Create(ctxBG(), id, sampleAdInput("male"))
	if err != nil {
		t.Fatalf("male ad: %v", err)
	}
	if res.Bonus.Transition != BonusRetainedPaid || !res.Bonus.Lost {
		t.Fatalf("expected retained_paid, got %+v", res.Bonus)
	}

	st, err := e.premium.Resolve(ctxBG(), id)
	if err != nil || !st.IsPremium {
		t.Fatalf("premium must survive: %+v err=%v", st, err)
	}
	if !st.PremiumUntil.Equal(paid.PremiumUntil) {
		t.Fatalf("premium_until = %v; want %v", st.PremiumUntil, paid.PremiumUntil)
	}
	if st.PremiumSource == nil || *st.PremiumSource != domain.SourceStars {
		t.Fatalf("source should fall through to stars, got %v", st.PremiumSource)
	}
}

func TestBonusMachine_PaidBeforeBonusSurvivesRevoke(t *testing.T) {
	e := newEnv(t)
	id := e.platform(t, 521)

	paid, err := e.svc.ActivateStars(ctxBG(), StarsActivation{Identity: id, Months: 1, TransactionID: "tx-521", AmountStars: 50})
	if err != nil {
		t.Fatalf("stars: %v", err)
	}

	res, err := e.ads.Create(ctxBG(), id, sampleAdInput("female"))
	if err != nil || res.Bonus.Transition != BonusGranted {
		t.Fatalf("female ad: %+v err=%v", res.Bonus, err)
	}
	st, err := e.premium.Resolve(ctxBG(), id)
	if want := paid.PremiumUntil.Add(testBonus); err != nil || !st.PremiumUntil.Equal(want) {
		t.Fatalf("bonus must start after the paid month: until=%v want %v err=%v", st.PremiumUntil, want, err)
	}

	e.clk.Advance(24 * time.Hour)
	res, err = e.ads.Create(ctxBG(), id, sampleAdInput("male"))
	if err != nil || res.Bonus.Transition != BonusRetainedPaid || !res.Bonus.Lost {
		t.Fatalf("male ad: %+v err=%v", res.Bonus, err)
	}
	st, err = e.premium.Resolve(ctxBG(), id)
	if err != nil || !st.IsPremium || !st.PremiumUntil.Equal(paid.PremiumUntil) {
		t.Fatalf("paid month lost: %+v err=%v", st, err)
	}
	if st.PremiumSource == nil || *st.PremiumSource != domain.SourceStars {
		t.Fatalf("source = %v; want stars", st.PremiumSource)
	}
}

func TestBonusMachine_ExpiredPaidWindowDoesNotShield(t *testing.T) {
	e := newEnv(t)
	id := e.platform(t, 522)

	if _, err := e.svc.ActivateStars(ctxBG(), StarsActivation{Identity: id, Months: 1, TransactionID: "tx-522", AmountStars: 50}); err != nil {
		t.Fatalf("stars: %v", err)
	}
	if _, err := e.ads.Create(ctxBG(), id, sampleAdInput("female")); err != nil {
		t.Fatalf("female ad: %v", err)
	}

	// The paid month is over; only the bonus keeps premium alive.
	e.clk.Advance(40 * 24 * time.Hour)
	res, err := e.ads.Create(ctxBG(), id, sampleAdInput("male"))
	if err != nil || res.Bonus.Transition != BonusRevoked {
		t.Fatalf("male ad: %+v err=%v", res.Bonus, err)
	}
	st, err := e.premium.Resolve(ctxBG(), id)
	if err != nil || st.IsPremium || st.PremiumUntil != nil {
		t.Fatalf("expected revoke: %+v err=%v", st, err)
	}
}

func TestBonusMachine_Activate(t *testing.T) {
	e := newEnv(t)
	id := e.platform(t, 530)

	if _, err := e.bonus.Activate(ctxBG(), id); !errors.Is(err, ErrBonusNotEligible) {
		t.Fatalf("no first ad: want ErrBonusNotEligible, got %v", err)
	}

	if _, err := repo.ClaimFirstAdGender(ctxBG(), e.db, id, domain.GenderFemale, e.clk.Now()); err != nil {
		t.Fatalf("seed gender: %v", err)
	}
	st, err := e.svc.ActivateFemaleBonus(ctxBG(), id)
	if err != nil || !st.IsPremium || st.PremiumSource == nil || *st.PremiumSource != domain.SourceFemaleBonus {
		t.Fatalf("activate: %+v err=%v", st, err)
	}

	if _, err := e.bonus.Activate(ctxBG(), id); !errors.Is(err, ErrBonusAlreadyUsed) {
		t.Fatalf("second activate: want ErrBonusAlreadyUsed, got %v", err)
	}
}

func TestAdService_BonusFailureDoesNotFailCreate(t *testing.T) {
	e := newEnv(t)

	broken := newServiceDB(t)
	sqlDB, err := broken.DB()
	if err != nil {
		t.Fatalf("db: %v", err)
	}
	_ = sqlDB.Close()
	e.ads.Bonus = &BonusMachine{
		DB:       broken,
		Premium:  &PremiumResolver{DB: broken, Now: e.clk.Now},
		Eligible: domain.GenderFemale, Revoking: domain.GenderMale,
		Duration: testBonus, Now: e.clk.Now,
	}

	id := e.platform(t, 540)
	res, err := e.ads.Create(ctxBG(), id, sampleAdInput("female"))
	if err != nil {
		t.Fatalf("create must succeed when the bonus fails: %v", err)
	}
	if res.Ad == nil || res.Bonus.Granted {
		t.Fatalf("unexpected result: %+v", res)
	}
	if _, err := repo.GetAd(ctxBG(), e.db, res.Ad.ID); err != nil {
		t.Fatalf("ad must be stored: %v", err)
	}
}
