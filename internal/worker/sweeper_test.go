package worker

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-anon-ads-backend/internal/domain"
	"github.com/tbourn/go-anon-ads-backend/internal/repo"
)

var sweepNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), fmt.Sprintf("worker_test_%d.db", time.Now().UnixNano()))
	db, err := gorm.Open(sqlite.Open(path+"?_pragma=busy_timeout(5000)"), &gorm.Config{
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

func tp(t time.Time) *time.Time { return &t }

func sp(s string) *string { return &s }

func TestSweeper_RunOnce(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	users := []domain.User{
		{ID: 1, IsPremium: true, PremiumUntil: tp(sweepNow.Add(-time.Minute)), AutoPremiumSource: sp(string(domain.SourceStars))},
		{ID: 2, IsPremium: true, PremiumUntil: tp(sweepNow.Add(time.Hour))},
		{ID: 3, IsPremium: true}, // open-ended
	}
	if err := db.Create(&users).Error; err != nil {
		t.Fatalf("seed users: %v", err)
	}
	tok := domain.PremiumToken{UserToken: "anon", IsPremium: true, PremiumUntil: tp(sweepNow)}
	if err := db.Create(&tok).Error; err != nil {
		t.Fatalf("seed token: %v", err)
	}
	keys := []domain.Idempotency{
		{ID: "i-old", Owner: "tg:1", Scope: "ads.create", Key: "old", ResourceID: "ad-1", Status: 201, ExpiresAt: sweepNow.Add(-time.Hour)},
		{ID: "i-fresh", Owner: "tg:1", Scope: "ads.create", Key: "fresh", ResourceID: "ad-2", Status: 201, ExpiresAt: sweepNow.Add(time.Hour)},
	}
	if err := db.Create(&keys).Error; err != nil {
		t.Fatalf("seed idempotency: %v", err)
	}

	s := &Sweeper{DB: db, Log: zerolog.Nop(), Now: func() time.Time { return sweepNow }}
	res, err := s.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if res.PremiumCleared != 2 || res.IdempotencyPurged != 1 {
		t.Fatalf("result: %+v", res)
	}

	var u1 domain.User
	if err := db.First(&u1, 1).Error; err != nil {
		t.Fatalf("load u1: %v", err)
	}
	if u1.IsPremium || u1.AutoPremiumSource != nil {
		t.Fatalf("u1 should be cleared: %+v", u1)
	}
	var active int64
	db.Model(&domain.User{}).Where("is_premium = ?", true).Count(&active)
	if active != 2 {
		t.Fatalf("active premium users = %d; want 2", active)
	}

	// Nothing left to do.
	if res, err := s.RunOnce(ctx); err != nil || res.PremiumCleared != 0 || res.IdempotencyPurged != 0 {
		t.Fatalf("second sweep: %+v err=%v", res, err)
	}
}

func TestSweeper_RunOnce_ClosedDB(t *testing.T) {
	db := newTestDB(t)
	sqlDB, _ := db.DB()
	_ = sqlDB.Close()

	s := &Sweeper{DB: db, Log: zerolog.Nop()}
	if _, err := s.RunOnce(context.Background()); err == nil {
		t.Fatalf("expected error on closed db")
	}
}

func TestSweeper_Start(t *testing.T) {
	db := newTestDB(t)

	bad := &Sweeper{DB: db, Schedule: "not a schedule", Log: zerolog.Nop()}
	if err := bad.Start(context.Background()); err == nil {
		t.Fatalf("invalid schedule must fail")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	done := make(chan error, 1)
	go func() { done <- (&Sweeper{DB: db, Log: zerolog.Nop()}).Start(ctx) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Start: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Start did not return after cancel")
	}
}
