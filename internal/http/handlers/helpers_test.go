package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-anon-ads-backend/internal/config"
	"github.com/tbourn/go-anon-ads-backend/internal/domain"
	"github.com/tbourn/go-anon-ads-backend/internal/http/middleware"
	"github.com/tbourn/go-anon-ads-backend/internal/repo"
	"github.com/tbourn/go-anon-ads-backend/internal/services"
)

// ---------- test wiring ----------

func newHandlerDB(t *testing.T) *gorm.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), fmt.Sprintf("h_%d.db", time.Now().UnixNano()))
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

var handlerQuota = config.QuotaConfig{
	Free:            config.TierLimits{AdsPerDay: 1, PhotosPerDay: 5},
	Pro:             config.TierLimits{AdsPerDay: 3, PhotosPerDay: 999999, PinsPerDay: 3},
	FreePinCooldown: 72 * time.Hour,
	PinDuration:     time.Hour,
}

var handlerPrices = config.Prices{
	"KZ": {Amount: decimal.NewFromInt(499), Currency: "KZT", Symbol: "₸"},
	"*":  {Amount: decimal.NewFromInt(2), Currency: "USD", Symbol: "$"},
}

// handlerNow is the fixed clock of every handler test.
var handlerNow = time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC)

type apiEnv struct {
	db *gorm.DB
	r  *gin.Engine
}

// newAPI wires real services on a fresh database behind the handlers. A
// request carrying X-Test-Tg-ID is treated as authenticated with that id.
func newAPI(t *testing.T) *apiEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := newHandlerDB(t)
	now := func() time.Time { return handlerNow }

	policy := services.LimitPolicy{Quota: handlerQuota}
	ids := &services.IdentityResolver{DB: db, Secret: "handler-secret", Now: now}
	ledger := &services.QuotaLedger{DB: db, Policy: policy, Offset: domain.DefaultReferenceOffset, Now: now}
	premium := &services.PremiumResolver{DB: db, TrialDuration: 7 * time.Hour, Now: now}
	bonus := &services.BonusMachine{
		DB: db, Premium: premium,
		Eligible: domain.GenderFemale, Revoking: domain.GenderMale,
		Duration: 365 * 24 * time.Hour, Now: now,
	}
	referrals := &services.ReferralService{DB: db, Premium: premium, RewardDuration: 30 * 24 * time.Hour, Now: now}
	ads := &services.AdService{
		DB: db, Ledger: ledger, Premium: premium, Bonus: bonus, Referrals: referrals,
		PinDuration: handlerQuota.PinDuration, IdempotencyTTL: time.Hour, Now: now,
	}
	msgs := services.NewLocalizer("ru")
	prem := &services.PremiumService{
		DB: db, Ledger: ledger, Premium: premium, Bonus: bonus,
		Prices: handlerPrices, Messages: msgs,
		TrialDuration: 7 * time.Hour, ToggleDuration: 30 * 24 * time.Hour, Now: now,
	}

	h := New(Deps{
		Identities: ids,
		Ads:        ads,
		Premium:    prem,
		Referrals:  referrals,
		Messages:   msgs,
		Limits:     policy,
	})

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("X-Request-ID", "rid-test")
		if v := c.GetHeader("X-Test-Tg-ID"); v != "" {
			var tg int64
			_, _ = fmt.Sscan(v, &tg)
			middleware.SetTelegramID(c, tg)
		}
		c.Next()
	})
	r.Use(middleware.Idempotency(middleware.IdempotentRoutes{"POST /ads": services.IdempotencyScopeCreateAd}, nil))

	r.GET("/ads", h.ListMyAds)
	r.POST("/ads", h.CreateAd)
	r.DELETE("/ads", h.DeleteAd)
	r.PATCH("/ads", h.PatchAd)
	r.POST("/premium", h.Premium)
	r.POST("/premium/activate", h.ActivateStars)
	r.GET("/premium/calculate", h.CalculatePrice)
	r.POST("/referrals", h.RegisterReferral)
	r.PUT("/referrals", h.RewardReferral)
	r.GET("/referrals", h.ReferralStats)

	return &apiEnv{db: db, r: r}
}

// do sends body (marshalled unless already a string) and returns the recorder.
func (e *apiEnv) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr *bytes.Reader
	switch b := body.(type) {
	case nil:
		rdr = bytes.NewReader(nil)
	case string:
		rdr = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rdr = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept-Language", "en")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	e.r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return out
}

func adBody(tgID any, gender string) map[string]any {
	return map[string]any{
		"tgId":    tgID,
		"gender":  gender,
		"target":  "male",
		"goal":    "chat",
		"ageFrom": 20,
		"ageTo":   30,
		"myAge":   25,
		"text":    "hello there",
		"country": "KZ",
		"city":    "Almaty",
	}
}

// premiumEnvelope decodes the /premium envelope with its data left raw.
type premiumEnvelope struct {
	Data  json.RawMessage `json:"data"`
	Error *PremiumError   `json:"error"`
}
