package services

import (
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tbourn/go-anon-ads-backend/internal/domain"
)

func TestStatusCache_DisabledWhenNil(t *testing.T) {
	var c *StatusCache
	if NewStatusCache(nil, 0, time.Minute) != nil || NewStatusCache(nil, 10, 0) != nil {
		t.Fatalf("zero size or ttl must disable the cache")
	}
	id := domain.Identity{TgID: 1}
	c.Set(ctxBG(), id, domain.PremiumStatus{IsPremium: true}, time.Now())
	if _, ok := c.Get(ctxBG(), id); ok {
		t.Fatalf("nil cache must always miss")
	}
	c.Invalidate(ctxBG(), id)
}

func TestStatusCache_SetGetInvalidate(t *testing.T) {
	c := NewStatusCache(nil, 100, time.Minute)
	now := time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC)
	until := now.Add(24 * time.Hour)
	id := domain.Identity{TgID: 9, Token: "tok-9"}

	c.Set(ctxBG(), id, domain.PremiumStatus{IsPremium: true, PremiumUntil: &until}, now)
	got, ok := c.Get(ctxBG(), id)
	if !ok || !got.IsPremium || got.PremiumUntil == nil || !got.PremiumUntil.Equal(until) {
		t.Fatalf("get after set: %+v ok=%v", got, ok)
	}

	// Invalidating by token alone still reaches entries stored under either key.
	tokOnly := domain.Identity{Token: "tok-9"}
	c.Set(ctxBG(), tokOnly, domain.PremiumStatus{}, now)
	c.Invalidate(ctxBG(), id)
	if _, ok := c.Get(ctxBG(), id); ok {
		t.Fatalf("tg entry must be gone")
	}
	if _, ok := c.Get(ctxBG(), tokOnly); ok {
		t.Fatalf("token entry must be gone")
	}
}

func TestStatusCache_SkipsWindowEndingSoon(t *testing.T) {
	c := NewStatusCache(nil, 100, time.Minute)
	now := time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC)
	soon := now.Add(30 * time.Second)
	id := domain.Identity{Token: "ending"}

	c.Set(ctxBG(), id, domain.PremiumStatus{IsPremium: true, PremiumUntil: &soon}, now)
	if _, ok := c.Get(ctxBG(), id); ok {
		t.Fatalf("a window ending inside the ttl must not be cached")
	}
}

func TestStatusCache_RedisHasNoLocalTier(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = rdb.Close() })

	c := NewStatusCache(rdb, 100, time.Minute)
	now := time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC)
	id := domain.Identity{TgID: 12}

	// With Redis down nothing may be served from process memory, or a
	// status invalidated on another replica could still be returned here.
	c.Set(ctxBG(), id, domain.PremiumStatus{IsPremium: true}, now)
	if _, ok := c.Get(ctxBG(), id); ok {
		t.Fatalf("status served from a local tier")
	}
}
