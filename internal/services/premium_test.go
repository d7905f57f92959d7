package services

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tbourn/go-anon-ads-backend/internal/domain"
	"github.com/tbourn/go-anon-ads-backend/internal/repo"
)

func TestPremiumResolver_UnknownIdentityIsFree(t *testing.T) {
	e := newEnv(t)
	st, err := e.premium.Resolve(ctxBG(), domain.Identity{Token: "nobody"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if st.IsPremium || st.PremiumUntil != nil || st.PremiumSource != nil {
		t.Fatalf("unknown identity must be free, got %+v", st)
	}
}

func TestPremiumResolver_SelfHealsExpiredWindow(t *testing.T) {
	e := newEnv(t)
	id := e.platform(t, 100)
	past := e.clk.Now().Add(-time.Hour)

	if err := e.premium.Apply(ctxBG(), e.db, id, domain.PremiumState{IsPremium: true, PremiumUntil: &past}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	first, err := e.premium.Resolve(ctxBG(), id)
	if err != nil || first.IsPremium {
		t.Fatalf("expired window must resolve to free: %+v err=%v", first, err)
	}
	second, err := e.premium.Resolve(ctxBG(), id)
	if err != nil || second.IsPremium != first.IsPremium || second.PremiumSource != nil {
		t.Fatalf("resolve must be idempotent: %+v vs %+v (%v)", first, second, err)
	}

	var u domain.User
	if err := e.db.First(&u, "id = ?", 100).Error; err != nil || u.IsPremium {
		t.Fatalf("users row must be healed: %+v err=%v", u, err)
	}
	var mirror domain.PremiumToken
	if err := e.db.First(&mirror, "user_token = ?", id.Token).Error; err != nil || mirror.IsPremium {
		t.Fatalf("token mirror must be cleared: %+v err=%v", mirror, err)
	}
}

func TestPremiumResolver_WriteThroughMirror(t *testing.T) {
	e := newEnv(t)
	id := e.platform(t, 101)
	until := e.clk.Now().Add(48 * time.Hour)

	// Write the users row behind the resolver's back.
	if err := e.db.Model(&domain.User{}).Where("id = ?", 101).
		Updates(map[string]any{"is_premium": true, "premium_until": until}).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}
	st, err := e.premium.Resolve(ctxBG(), id)
	if err != nil || !st.IsPremium {
		t.Fatalf("expected premium, got %+v err=%v", st, err)
	}

	// A token-only read now sees the same window without a join.
	tokOnly, found, err := repo.LoadPremiumState(ctxBG(), e.db, domain.Identity{Token: id.Token})
	if err != nil || !found || !tokOnly.IsPremium || tokOnly.PremiumUntil == nil || !tokOnly.PremiumUntil.Equal(until) {
		t.Fatalf("mirror not synced: %+v found=%v err=%v", tokOnly, found, err)
	}
}

func TestPremiumResolver_SourceOrder(t *testing.T) {
	e := newEnv(t)
	long := e.clk.Now().Add(60 * 24 * time.Hour)
	short := e.clk.Now().Add(5 * time.Hour)
	bonus := string(domain.SourceFemaleBonus)

	source := func(id domain.Identity) domain.PremiumSource {
		t.Helper()
		st, err := e.premium.Resolve(ctxBG(), id)
		if err != nil || !st.IsPremium {
			t.Fatalf("expected premium for %s: %+v err=%v", id.Key(), st, err)
		}
		if st.PremiumSource == nil {
			return ""
		}
		return *st.PremiumSource
	}
	pay := func(id domain.Identity) {
		t.Helper()
		tg := id.TgID
		if err := repo.CreateTransaction(ctxBG(), e.db, &domain.PremiumTransaction{
			TelegramID: &tg, Months: 1, AmountStars: 50, TransactionID: uuid.NewString(),
			PaymentMethod: "stars", Status: "completed", CreatedAt: e.clk.Now(),
		}); err != nil {
			t.Fatalf("transaction: %v", err)
		}
	}

	// Stored tag beats a payment.
	a := e.platform(t, 200)
	_ = e.premium.Apply(ctxBG(), e.db, a, domain.PremiumState{IsPremium: true, PremiumUntil: &long, AutoPremiumSource: &bonus})
	pay(a)
	if got := source(a); got != domain.SourceFemaleBonus {
		t.Fatalf("tagged window: got %q", got)
	}

	// A payment beats a referral reward.
	b := e.platform(t, 201)
	_ = e.premium.Apply(ctxBG(), e.db, b, domain.PremiumState{IsPremium: true, PremiumUntil: &long})
	pay(b)
	ref := &domain.Referral{ReferrerToken: b.Token, ReferrerID: &b.TgID, ReferredToken: "r-201", RewardGiven: true, CreatedAt: e.clk.Now()}
	if err := repo.CreateReferral(ctxBG(), e.db, ref); err != nil {
		t.Fatalf("referral: %v", err)
	}
	if got := source(b); got != domain.SourceStars {
		t.Fatalf("paid window: got %q", got)
	}

	// Referral only.
	c := e.platform(t, 202)
	_ = e.premium.Apply(ctxBG(), e.db, c, domain.PremiumState{IsPremium: true, PremiumUntil: &long})
	ref2 := &domain.Referral{ReferrerToken: c.Token, ReferrerID: &c.TgID, ReferredToken: "r-202", RewardGiven: true, CreatedAt: e.clk.Now()}
	if err := repo.CreateReferral(ctxBG(), e.db, ref2); err != nil {
		t.Fatalf("referral: %v", err)
	}
	if got := source(c); got != domain.SourceReferral {
		t.Fatalf("referral window: got %q", got)
	}

	// Trial: flag set and the remaining window fits in the trial.
	d := e.platform(t, 203)
	if _, err := repo.MarkUserTrialUsed(ctxBG(), e.db, d.TgID, e.clk.Now()); err != nil {
		t.Fatalf("trial flag: %v", err)
	}
	_ = e.premium.Apply(ctxBG(), e.db, d, domain.PremiumState{IsPremium: true, PremiumUntil: &short})
	if got := source(d); got != domain.SourceTrial {
		t.Fatalf("trial window: got %q", got)
	}

	// Same flag but a long window is not a trial.
	_ = e.premium.Apply(ctxBG(), e.db, d, domain.PremiumState{IsPremium: true, PremiumUntil: &long})
	if got := source(d); got != "" {
		t.Fatalf("long window with trial flag: got %q", got)
	}
}

func TestPremiumResolver_CacheInvalidatedOnWrite(t *testing.T) {
	e := newEnv(t)
	e.premium.Cache = NewStatusCache(nil, 100, time.Minute)
	id := e.platform(t, 300)

	st, err := e.premium.Resolve(ctxBG(), id)
	if err != nil || st.IsPremium {
		t.Fatalf("expected free: %+v err=%v", st, err)
	}
	if _, ok := e.premium.Cache.Get(ctxBG(), id); !ok {
		t.Fatalf("status should be cached after Resolve")
	}

	until := e.clk.Now().Add(30 * 24 * time.Hour)
	if err := e.premium.Apply(ctxBG(), e.db, id, domain.PremiumState{IsPremium: true, PremiumUntil: &until}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	st, err = e.premium.Resolve(ctxBG(), id)
	if err != nil || !st.IsPremium {
		t.Fatalf("write must be visible after invalidation: %+v err=%v", st, err)
	}
}

func TestPremiumResolver_GrantStacksOntoActiveWindow(t *testing.T) {
	e := newEnv(t)
	id := domain.Identity{Token: "stack-tok"}

	st, err := e.premium.Grant(ctxBG(), e.db, id, domain.PremiumState{}, 24*time.Hour, domain.SourceReferral)
	if err != nil {
		t.Fatalf("grant: %v", err)
	}
	st, err = e.premium.Grant(ctxBG(), e.db, id, st, 24*time.Hour, domain.SourceReferral)
	if err != nil {
		t.Fatalf("grant: %v", err)
	}
	want := e.clk.Now().Add(48 * time.Hour)
	if st.PremiumUntil == nil || !st.PremiumUntil.Equal(want) {
		t.Fatalf("premium_until = %v; want %v", st.PremiumUntil, want)
	}
}
