package services

import (
	"time"

	"github.com/tbourn/go-anon-ads-backend/internal/config"
	"github.com/tbourn/go-anon-ads-backend/internal/domain"
)

// LimitPolicy turns the configured tier allowances into per-counter ceilings.
type LimitPolicy struct {
	Quota config.QuotaConfig
}

// Tier returns the allowances that apply to a premium or free identity.
func (p LimitPolicy) Tier(isPremium bool) config.TierLimits {
	if isPremium {
		return p.Quota.Pro
	}
	return p.Quota.Free
}

// Max returns the ceiling of c. FREE pins are one per cooldown window.
func (p LimitPolicy) Max(c domain.Counter, isPremium bool) int {
	t := p.Tier(isPremium)
	switch c {
	case domain.CounterAds:
		return t.AdsPerDay
	case domain.CounterPhotos:
		return t.PhotosPerDay
	case domain.CounterPins:
		if !isPremium {
			return 1
		}
		return t.PinsPerDay
	}
	return 0
}

// Usage is the used/max/remaining triple reported to clients.
type Usage struct {
	Used      int `json:"used"`
	Max       int `json:"max"`
	Remaining int `json:"remaining"`
}

// PinUsage describes whether a pin is available right now.
type PinUsage struct {
	Used            int        `json:"used"`
	Max             int        `json:"max"`
	CanUse          bool       `json:"canUse"`
	NextAvailableAt *time.Time `json:"nextAvailableAt"`
}

// UsageOf reports the use of c on day.
func (p LimitPolicy) UsageOf(row domain.QuotaRow, c domain.Counter, day domain.Day, isPremium bool) Usage {
	used := row.UsedOn(c, day)
	limit := p.Max(c, isPremium)
	rem := limit - used
	if rem < 0 {
		rem = 0
	}
	return Usage{Used: used, Max: limit, Remaining: rem}
}

// PinStatus evaluates pin availability at now. FREE identities are limited
// by the cooldown since the last pin; PRO identities by the daily count,
// which frees up at the start of the next reference day.
func (p LimitPolicy) PinStatus(row domain.QuotaRow, day domain.Day, offset time.Duration, isPremium bool, now time.Time) PinUsage {
	if !isPremium {
		st := PinUsage{Max: 1, CanUse: true}
		if row.LastPinTime != nil {
			next := row.LastPinTime.Add(p.Quota.FreePinCooldown)
			if next.After(now) {
				st.Used = 1
				st.CanUse = false
				st.NextAvailableAt = &next
			}
		}
		return st
	}

	used := row.UsedOn(domain.CounterPins, day)
	limit := p.Quota.Pro.PinsPerDay
	st := PinUsage{Used: used, Max: limit, CanUse: used < limit}
	if !st.CanUse {
		next := day.Next().Start(offset)
		st.NextAvailableAt = &next
	}
	return st
}
