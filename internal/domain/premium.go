package domain

import "time"

// PremiumState is the premium-relevant slice of either authoritative store
// (users for platform identities, premium_tokens for token-only ones).
type PremiumState struct {
	IsPremium         bool
	PremiumUntil      *time.Time
	AutoPremiumSource *string
	FirstAdGender     *string
	BonusFrom         *time.Time
	BonusUntil        *time.Time
	TrialUsed         bool
}

// ActiveAt reports whether the state grants premium at now: the flag is set
// and the window is open-ended or not yet over.
func (s PremiumState) ActiveAt(now time.Time) bool {
	return s.IsPremium && (s.PremiumUntil == nil || s.PremiumUntil.After(now))
}

// HasBonusSource reports whether the female bonus currently tags the window.
func (s PremiumState) HasBonusSource() bool {
	return s.AutoPremiumSource != nil && PremiumSource(*s.AutoPremiumSource) == SourceFemaleBonus
}

// FirstGender returns the recorded first-ad gender.
func (s PremiumState) FirstGender() (Gender, bool) {
	if s.FirstAdGender == nil {
		return "", false
	}
	return Gender(*s.FirstAdGender), true
}

// ExtendedBeyondBonus reports whether the window ends after the bonus grant's
// own expiry, i.e. an independent grant (payment) stacked on top of it.
func (s PremiumState) ExtendedBeyondBonus() bool {
	if s.PremiumUntil == nil {
		return s.IsPremium && s.BonusUntil != nil
	}
	return s.BonusUntil != nil && s.PremiumUntil.After(*s.BonusUntil)
}

// HeldBeforeBonus returns the end of the window that was already running when
// the bonus was stacked onto it, while that end is still ahead of now.
func (s PremiumState) HeldBeforeBonus(now time.Time) (time.Time, bool) {
	if s.BonusFrom == nil || !s.BonusFrom.After(now) {
		return time.Time{}, false
	}
	return *s.BonusFrom, true
}

// PremiumStatus is the resolver's answer for one identity.
type PremiumStatus struct {
	IsPremium     bool           `json:"isPremium"`
	PremiumUntil  *time.Time     `json:"premiumUntil"`
	PremiumSource *PremiumSource `json:"premiumSource"`
}
