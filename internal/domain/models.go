// Package domain defines the persistence models and value types of the ads
// backend: platform users, token-keyed premium records, daily quota rows,
// ads, referrals and Stars payment transactions. The types are mapped with
// GORM and shared by the repository and service layers.
package domain

import "time"

// PremiumSource tags where an active premium window came from.
type PremiumSource string

const (
	// SourceFemaleBonus is the only value ever persisted in
	// auto_premium_source. The others are derived at read time.
	SourceFemaleBonus PremiumSource = "female_bonus"
	SourceStars       PremiumSource = "stars"
	SourceReferral    PremiumSource = "referral"
	SourceTrial       PremiumSource = "trial"
)

// User is the authoritative record of a Telegram-backed account.
//
// Fields:
//   - ID: Telegram user id (primary key, never generated).
//   - UserToken: deterministic token derived from ID; lets token-only
//     requests find their platform user.
//   - IsPremium / PremiumUntil: entitlement flag and expiry (nil = no expiry).
//   - AutoPremiumSource: "female_bonus" while the bonus window is in force.
//   - FirstAdGender: gender of the first ad ever posted; written once.
//   - BonusFrom / BonusUntil: the female bonus window; BonusUntil also marks
//     that the bonus was granted at least once. BonusFrom is later than the
//     grant time when the bonus was stacked after a window already in force.
//     A PremiumUntil later than BonusUntil means an independent grant
//     extended the window.
//   - Trial7hUsed: the short trial was consumed.
type User struct {
	ID                int64      `json:"id"                  gorm:"primaryKey;autoIncrement:false"`
	UserToken         *string    `json:"-"                   gorm:"type:varchar(128);uniqueIndex"`
	IsPremium         bool       `json:"is_premium"          gorm:"not null;default:false"`
	PremiumUntil      *time.Time `json:"premium_until"`
	AutoPremiumSource *string    `json:"auto_premium_source" gorm:"type:varchar(32)"`
	FirstAdGender     *string    `json:"first_ad_gender"     gorm:"type:varchar(16)"`
	BonusFrom         *time.Time `json:"-"`
	BonusUntil        *time.Time `json:"-"`
	DisplayNickname   string     `json:"display_nickname"    gorm:"type:varchar(64);not null;default:''"`
	Country           string     `json:"country"             gorm:"type:varchar(8);not null;default:''"`
	Trial7hUsed       bool       `json:"trial7h_used"        gorm:"column:trial7h_used;not null;default:false"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// PremiumToken is the token-keyed premium record. For anonymous web users it
// is the only record; for platform users it mirrors the User row and is kept
// in step by the resolver's sync step.
type PremiumToken struct {
	UserToken         string     `gorm:"type:varchar(128);primaryKey"`
	IsPremium         bool       `gorm:"not null;default:false"`
	PremiumUntil      *time.Time
	AutoPremiumSource *string `gorm:"type:varchar(32)"`
	FirstAdGender     *string `gorm:"type:varchar(16)"`
	BonusFrom         *time.Time
	BonusUntil        *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// TableName returns the database table name for PremiumToken.
func (PremiumToken) TableName() string { return "premium_tokens" }

// UserLimits holds the daily quota counters of a platform user.
// Each counter has its own last-reset date in the reference timezone.
type UserLimits struct {
	UserID          int64 `gorm:"primaryKey;autoIncrement:false"`
	AdsCreatedToday int   `gorm:"not null;default:0"`
	AdsLastReset    Day   `gorm:"type:date;not null;default:'1970-01-01'"`
	PhotosSentToday int   `gorm:"not null;default:0"`
	PhotosLastReset Day   `gorm:"type:date;not null;default:'1970-01-01'"`
	PinUsesToday    int   `gorm:"not null;default:0"`
	PinLastReset    Day   `gorm:"type:date;not null;default:'1970-01-01'"`
	LastPinTime     *time.Time
	UpdatedAt       time.Time
}

// TableName returns the database table name for UserLimits.
func (UserLimits) TableName() string { return "user_limits" }

// WebUserLimits is the token-keyed twin of UserLimits for anonymous users.
// TrialUsed only exists here; platform users track the trial on User.
type WebUserLimits struct {
	UserToken       string `gorm:"type:varchar(128);primaryKey"`
	AdsCreatedToday int    `gorm:"not null;default:0"`
	AdsLastReset    Day    `gorm:"type:date;not null;default:'1970-01-01'"`
	PhotosSentToday int    `gorm:"not null;default:0"`
	PhotosLastReset Day    `gorm:"type:date;not null;default:'1970-01-01'"`
	PinUsesToday    int    `gorm:"not null;default:0"`
	PinLastReset    Day    `gorm:"type:date;not null;default:'1970-01-01'"`
	LastPinTime     *time.Time
	TrialUsed       bool `gorm:"not null;default:false"`
	UpdatedAt       time.Time
}

// TableName returns the database table name for WebUserLimits.
func (WebUserLimits) TableName() string { return "web_user_limits" }

// Ad is a dating profile posting. It belongs to a Telegram id, a token, or
// both, and snapshots the declared gender at creation time.
type Ad struct {
	ID           string     `json:"id"            gorm:"type:char(36);primaryKey"`
	TgID         *int64     `json:"tg_id"         gorm:"index"`
	UserToken    *string    `json:"-"             gorm:"type:varchar(128);index"`
	Gender       Gender     `json:"gender"        gorm:"type:varchar(16);not null"`
	Target       string     `json:"target"        gorm:"type:varchar(16);not null"`
	Goal         string     `json:"goal"          gorm:"type:varchar(255);not null"`
	AgeFrom      int        `json:"age_from"`
	AgeTo        int        `json:"age_to"`
	MyAge        int        `json:"my_age"`
	Body         string     `json:"body"          gorm:"type:varchar(64)"`
	Orientation  string     `json:"orientation"   gorm:"type:varchar(64)"`
	Text         string     `json:"text"          gorm:"type:text;not null"`
	Nickname     string     `json:"nickname"      gorm:"type:varchar(64);not null;default:''"`
	Country      string     `json:"country"       gorm:"type:varchar(64);not null"`
	Region       string     `json:"region"        gorm:"type:varchar(128)"`
	City         string     `json:"city"          gorm:"type:varchar(128);not null"`
	IsPinned     bool       `json:"is_pinned"     gorm:"not null;default:false"`
	PinnedUntil  *time.Time `json:"pinned_until"`
	IsPremium    bool       `json:"is_premium"    gorm:"not null;default:false"`
	CreatedAt    time.Time  `json:"created_at"    gorm:"index"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// TableName returns the database table name for Ad.
func (Ad) TableName() string { return "ads" }

// OwnedBy reports whether the ad belongs to id, by Telegram id or by token.
func (a *Ad) OwnedBy(id Identity) bool {
	if id.TgID > 0 && a.TgID != nil && *a.TgID == id.TgID {
		return true
	}
	return id.Token != "" && a.UserToken != nil && *a.UserToken == id.Token
}

// Referral links a referrer to the user they invited. RewardGiven flips from
// false to true exactly once.
type Referral struct {
	ID            string     `json:"id"              gorm:"type:char(36);primaryKey"`
	ReferrerToken string     `json:"referrer_token"  gorm:"type:varchar(128);not null;index"`
	ReferrerID    *int64     `json:"referrer_id"     gorm:"index"`
	ReferredToken string     `json:"referred_token"  gorm:"type:varchar(128);not null;uniqueIndex"`
	ReferredID    *int64     `json:"referred_id"`
	RewardGiven   bool       `json:"reward_given"    gorm:"not null;default:false"`
	RewardGivenAt *time.Time `json:"reward_given_at"`
	CreatedAt     time.Time  `json:"created_at"`
}

// TableName returns the database table name for Referral.
func (Referral) TableName() string { return "referrals" }

// PremiumTransaction records a completed Telegram Stars purchase.
type PremiumTransaction struct {
	ID            string    `json:"id"             gorm:"type:char(36);primaryKey"`
	TelegramID    *int64    `json:"telegram_id"    gorm:"index"`
	UserToken     *string   `json:"-"              gorm:"type:varchar(128);index"`
	Months        int       `json:"months"         gorm:"not null"`
	AmountStars   int       `json:"amount_stars"   gorm:"not null"`
	TransactionID string    `json:"transaction_id" gorm:"type:varchar(255);not null;uniqueIndex"`
	PaymentMethod string    `json:"payment_method" gorm:"type:varchar(32);not null;default:'stars'"`
	Status        string    `json:"status"         gorm:"type:varchar(32);not null;default:'completed'"`
	CreatedAt     time.Time `json:"created_at"`
}

// TableName returns the database table name for PremiumTransaction.
func (PremiumTransaction) TableName() string { return "premium_transactions" }
