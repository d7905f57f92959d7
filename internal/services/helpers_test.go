package services

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-anon-ads-backend/internal/config"
	"github.com/tbourn/go-anon-ads-backend/internal/domain"
	"github.com/tbourn/go-anon-ads-backend/internal/repo"
)

// ---------- test helpers ----------

func newServiceDB(t *testing.T) *gorm.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), fmt.Sprintf("svc_%d.db", time.Now().UnixNano()))
	db, err := gorm.Open(sqlite.Open(path+"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB(): %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

type testClock struct{ t time.Time }

func (c *testClock) Now() time.Time          { return c.t }
func (c *testClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

var testQuota = config.QuotaConfig{
	Free:            config.TierLimits{AdsPerDay: 1, PhotosPerDay: 5},
	Pro:             config.TierLimits{AdsPerDay: 3, PhotosPerDay: 999999, PinsPerDay: 3},
	FreePinCooldown: 72 * time.Hour,
	PinDuration:     time.Hour,
}

var testPrices = config.Prices{
	"KZ": {Amount: decimal.NewFromInt(499), Currency: "KZT", Symbol: "₸"},
	"RU": {Amount: decimal.NewFromInt(99), Currency: "RUB", Symbol: "₽"},
	"*":  {Amount: decimal.NewFromInt(2), Currency: "USD", Symbol: "$"},
}

const (
	testTrial  = 7 * time.Hour
	testToggle = 30 * 24 * time.Hour
	testBonus  = 365 * 24 * time.Hour
	testReward = 30 * 24 * time.Hour
	testSecret = "test-secret"
)

// testEnv wires every service against one database and one clock.
type testEnv struct {
	db        *gorm.DB
	clk       *testClock
	ids       *IdentityResolver
	ledger    *QuotaLedger
	premium   *PremiumResolver
	bonus     *BonusMachine
	referrals *ReferralService
	ads       *AdService
	svc       *PremiumService
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	db := newServiceDB(t)
	clk := &testClock{t: time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC)}

	e := &testEnv{db: db, clk: clk}
	e.ids = &IdentityResolver{DB: db, Secret: testSecret, Now: clk.Now}
	e.ledger = &QuotaLedger{DB: db, Policy: LimitPolicy{Quota: testQuota}, Offset: domain.DefaultReferenceOffset, Now: clk.Now}
	e.premium = &PremiumResolver{DB: db, TrialDuration: testTrial, Now: clk.Now}
	e.bonus = &BonusMachine{
		DB: db, Premium: e.premium,
		Eligible: domain.GenderFemale, Revoking: domain.GenderMale,
		Duration: testBonus, Now: clk.Now,
	}
	e.referrals = &ReferralService{DB: db, Premium: e.premium, RewardDuration: testReward, Now: clk.Now}
	e.ads = &AdService{
		DB: db, Ledger: e.ledger, Premium: e.premium, Bonus: e.bonus, Referrals: e.referrals,
		PinDuration: testQuota.PinDuration, IdempotencyTTL: time.Hour, Now: clk.Now,
	}
	e.svc = &PremiumService{
		DB: db, Ledger: e.ledger, Premium: e.premium, Bonus: e.bonus,
		Prices: testPrices, Messages: NewLocalizer("ru"),
		TrialDuration: testTrial, ToggleDuration: testToggle, Now: clk.Now,
	}
	return e
}

// platform returns a resolved Telegram identity.
func (e *testEnv) platform(t *testing.T, tgID int64) domain.Identity {
	t.Helper()
	id, err := e.ids.Resolve(ctxBG(), domain.Identity{TgID: tgID})
	if err != nil {
		t.Fatalf("resolve identity: %v", err)
	}
	return id
}

func sampleAdInput(gender string) CreateAdInput {
	return CreateAdInput{
		Gender: gender, Target: "male", Goal: "chat",
		AgeFrom: 20, AgeTo: 30, MyAge: 25,
		Text: "hello there", Country: "KZ", City: "Almaty",
	}
}

func timePtr(t time.Time) *time.Time { return &t }

func ctxBG() context.Context { return context.Background() }
