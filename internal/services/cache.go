package services

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/cache/v9"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/tbourn/go-anon-ads-backend/internal/domain"
	"github.com/tbourn/go-anon-ads-backend/internal/observability"
)

const statusKeyPrefix = "premium:status:"

// StatusCache keeps resolved premium statuses for a short time. With a Redis
// client it is Redis only, so an invalidation is seen by every replica.
// Without one it is an in-process TinyLFU. A nil *StatusCache is a valid,
// disabled cache.
type StatusCache struct {
	c   *cache.Cache
	ttl time.Duration
}

// NewStatusCache builds the cache. rdb may be nil. size is the number of
// local entries when rdb is nil; ttl bounds how stale an entry may be.
func NewStatusCache(rdb redis.UniversalClient, size int, ttl time.Duration) *StatusCache {
	if ttl <= 0 || size <= 0 {
		return nil
	}
	opt := &cache.Options{Redis: rdb}
	if rdb == nil {
		opt = &cache.Options{LocalCache: cache.NewTinyLFU(size, ttl)}
	}
	return &StatusCache{c: cache.New(opt), ttl: ttl}
}

func statusKeys(id domain.Identity) []string {
	keys := make([]string, 0, 2)
	if id.TgID > 0 {
		keys = append(keys, statusKeyPrefix+domain.Identity{TgID: id.TgID}.Key())
	}
	if id.Token != "" {
		keys = append(keys, statusKeyPrefix+domain.Identity{Token: id.Token}.Key())
	}
	return keys
}

// Get returns the cached status of id.
func (s *StatusCache) Get(ctx context.Context, id domain.Identity) (domain.PremiumStatus, bool) {
	var st domain.PremiumStatus
	if s == nil || id.IsZero() {
		return st, false
	}
	err := s.c.Get(ctx, statusKeyPrefix+id.Key(), &st)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			zerolog.Ctx(ctx).Warn().Err(err).Msg("premium status cache get")
		}
		observability.StatusCacheLookup(false)
		return domain.PremiumStatus{}, false
	}
	observability.StatusCacheLookup(true)
	return st, true
}

// Set stores st unless its window ends within the cache lifetime; such a
// status would outlive the entitlement it describes.
func (s *StatusCache) Set(ctx context.Context, id domain.Identity, st domain.PremiumStatus, now time.Time) {
	if s == nil || id.IsZero() {
		return
	}
	if st.IsPremium && st.PremiumUntil != nil && st.PremiumUntil.Before(now.Add(s.ttl)) {
		return
	}
	err := s.c.Set(&cache.Item{
		Ctx:   ctx,
		Key:   statusKeyPrefix + id.Key(),
		Value: st,
		TTL:   s.ttl,
	})
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("premium status cache set")
	}
}

// Invalidate drops every entry that may describe id.
func (s *StatusCache) Invalidate(ctx context.Context, id domain.Identity) {
	if s == nil {
		return
	}
	for _, k := range statusKeys(id) {
		if err := s.c.Delete(ctx, k); err != nil && !errors.Is(err, cache.ErrCacheMiss) {
			zerolog.Ctx(ctx).Warn().Err(err).Str("key", k).Msg("premium status cache delete")
		}
	}
}
