package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tbourn/go-anon-ads-backend/internal/domain"
)

func sampleAd(id string, tgID *int64, token *string, created time.Time) *domain.Ad {
	return &domain.Ad{
		ID:        id,
		TgID:      tgID,
		UserToken: token,
		Gender:    domain.GenderFemale,
		Target:    "male",
		Goal:      "friendship",
		AgeFrom:   20,
		AgeTo:     30,
		MyAge:     25,
		Text:      "hello",
		Country:   "KZ",
		City:      "Almaty",
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func TestCreateAd_Error_NoTable(t *testing.T) {
	db := newBareDB(t)
	if err := CreateAd(context.Background(), db, sampleAd("", int64Ptr(1), nil, time.Time{})); err == nil {
		t.Fatalf("expected error creating without table")
	}
}

func TestCreateAd_FillsIDAndTimestamps(t *testing.T) {
	db := newTestDB(t)
	start := time.Now().UTC().Add(-time.Minute)

	ad := sampleAd("", int64Ptr(1), nil, time.Time{})
	if err := CreateAd(context.Background(), db, ad); err != nil {
		t.Fatalf("CreateAd: %v", err)
	}
	if ad.ID == "" || ad.CreatedAt.Before(start) || !ad.UpdatedAt.Equal(ad.CreatedAt) {
		t.Fatalf("unexpected ad fields: %+v", ad)
	}
	got, err := GetAd(context.Background(), db, ad.ID)
	if err != nil {
		t.Fatalf("GetAd: %v", err)
	}
	if got.Gender != domain.GenderFemale || got.TgID == nil || *got.TgID != 1 {
		t.Fatalf("round-trip mismatch: %+v", got)
	}
}

func TestGetAd_And_DeleteAd_NotFound(t *testing.T) {
	db := newTestDB(t)
	if _, err := GetAd(context.Background(), db, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := DeleteAd(context.Background(), db, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteAd_RemovesRow(t *testing.T) {
	db := newTestDB(t)
	ad := sampleAd("del-1", nil, strPtr("tok"), time.Now().UTC())
	if err := CreateAd(context.Background(), db, ad); err != nil {
		t.Fatalf("CreateAd: %v", err)
	}
	if err := DeleteAd(context.Background(), db, "del-1"); err != nil {
		t.Fatalf("DeleteAd: %v", err)
	}
	if _, err := GetAd(context.Background(), db, "del-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("ad still present: %v", err)
	}
}

func TestSetAdPin(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC)
	if err := CreateAd(ctx, db, sampleAd("pin-1", int64Ptr(1), nil, now)); err != nil {
		t.Fatalf("CreateAd: %v", err)
	}

	until := now.Add(time.Hour)
	if err := SetAdPin(ctx, db, "pin-1", true, &until, now); err != nil {
		t.Fatalf("SetAdPin: %v", err)
	}
	got, _ := GetAd(ctx, db, "pin-1")
	if !got.IsPinned || got.PinnedUntil == nil || !got.PinnedUntil.Equal(until) {
		t.Fatalf("pin not stored: %+v", got)
	}

	if err := SetAdPin(ctx, db, "pin-1", false, nil, now); err != nil {
		t.Fatalf("unpin: %v", err)
	}
	got, _ = GetAd(ctx, db, "pin-1")
	if got.IsPinned || got.PinnedUntil != nil {
		t.Fatalf("unpin not stored: %+v", got)
	}
	if err := SetAdPin(ctx, db, "missing", true, &until, now); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateNicknames_OnlyOwnersAds(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	_ = CreateAd(ctx, db, sampleAd("n1", int64Ptr(1), nil, now))
	_ = CreateAd(ctx, db, sampleAd("n2", nil, strPtr("tok-1"), now))
	_ = CreateAd(ctx, db, sampleAd("n3", int64Ptr(2), nil, now))

	n, err := UpdateNicknames(ctx, db, domain.Identity{TgID: 1, Token: "tok-1"}, "Luna", now)
	if err != nil || n != 2 {
		t.Fatalf("expected 2 updated, got %d err=%v", n, err)
	}
	other, _ := GetAd(ctx, db, "n3")
	if other.Nickname != "" {
		t.Fatalf("foreign ad renamed: %+v", other)
	}
	if _, err := UpdateNicknames(ctx, db, domain.Identity{}, "x", now); !errors.Is(err, ErrNoIdentity) {
		t.Fatalf("expected ErrNoIdentity, got %v", err)
	}

	if err := SetUserNickname(ctx, db, 1, "Luna", now); err != nil {
		t.Fatalf("SetUserNickname: %v", err)
	}
	var u domain.User
	db.First(&u, "id = ?", 1)
	if u.DisplayNickname != "Luna" {
		t.Fatalf("user nickname not stored: %+v", u)
	}
}

func TestCountAdsInWindow_And_ListAdsPage(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	owner := domain.Identity{Token: "tok-w"}
	day := domain.MustParseDay("2024-01-05")
	start := day.Start(domain.DefaultReferenceOffset)
	end := day.Next().Start(domain.DefaultReferenceOffset)

	_ = CreateAd(ctx, db, sampleAd("w0", nil, strPtr("tok-w"), start.Add(-time.Second)))
	_ = CreateAd(ctx, db, sampleAd("w1", nil, strPtr("tok-w"), start))
	_ = CreateAd(ctx, db, sampleAd("w2", nil, strPtr("tok-w"), end.Add(-time.Second)))
	_ = CreateAd(ctx, db, sampleAd("w3", nil, strPtr("tok-w"), end))

	n, err := CountAdsInWindow(ctx, db, owner, start, end)
	if err != nil || n != 2 {
		t.Fatalf("expected 2 ads in window, got %d err=%v", n, err)
	}

	total, err := CountAds(ctx, db, owner)
	if err != nil || total != 4 {
		t.Fatalf("expected 4 ads, got %d err=%v", total, err)
	}

	page, err := ListAdsPage(ctx, db, owner, 0, 2)
	if err != nil || len(page) != 2 || page[0].ID != "w3" || page[1].ID != "w2" {
		t.Fatalf("unexpected first page: %+v err=%v", page, err)
	}
	if err := SetAdPin(ctx, db, "w0", true, nil, end); err != nil {
		t.Fatalf("pin: %v", err)
	}
	page, _ = ListAdsPage(ctx, db, owner, 0, 1)
	if len(page) != 1 || page[0].ID != "w0" {
		t.Fatalf("pinned ad must come first: %+v", page)
	}
}
