// Package handlers exposes the ads, premium and referral endpoints.
//
// Handlers are transport-thin: they bind input, resolve the caller's
// identity, call application services and translate results (and service
// errors) into HTTP responses.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/text/language"

	"github.com/tbourn/go-anon-ads-backend/internal/domain"
	"github.com/tbourn/go-anon-ads-backend/internal/http/middleware"
	"github.com/tbourn/go-anon-ads-backend/internal/services"
	"github.com/tbourn/go-anon-ads-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// IdentityService normalizes the identity keys a request carried.
type IdentityService interface {
	Resolve(ctx context.Context, id domain.Identity) (domain.Identity, error)
}

// AdService defines the ad lifecycle consumed by the /ads handlers.
type AdService interface {
	Create(ctx context.Context, id domain.Identity, in services.CreateAdInput) (services.CreateAdResult, error)
	Delete(ctx context.Context, id domain.Identity, adID string) error
	SetPin(ctx context.Context, id domain.Identity, adID string, pinned bool, until *time.Time) (*domain.Ad, error)
	UpdateNicknames(ctx context.Context, id domain.Identity, nickname string) (int64, error)
	ListMine(ctx context.Context, id domain.Identity, page, pageSize int) ([]domain.Ad, int64, error)
	// Stats returns the ad count and newest update, used for ETags.
	Stats(ctx context.Context, id domain.Identity) (int64, *time.Time, error)
}

// PremiumService defines the /premium actions.
type PremiumService interface {
	GetUserStatus(ctx context.Context, id domain.Identity) (services.UserStatus, error)
	CheckPhotoLimit(ctx context.Context, id domain.Identity) (services.PhotoLimit, error)
	IncrementPhotoCount(ctx context.Context, id domain.Identity) (services.PhotoLimit, error)
	TogglePremium(ctx context.Context, id domain.Identity, trial bool) (services.ToggleResult, error)
	Pricing(ctx context.Context, id domain.Identity, country string, tag language.Tag) (services.Pricing, error)
	ActivateFemaleBonus(ctx context.Context, id domain.Identity) (domain.PremiumStatus, error)
	ActivateStars(ctx context.Context, in services.StarsActivation) (services.StarsResult, error)
}

// ReferralService defines the /referrals operations.
type ReferralService interface {
	Register(ctx context.Context, referrerToken, newUserToken string) (services.RegisterResult, error)
	Reward(ctx context.Context, referredToken string) (services.RewardResult, error)
	Stats(ctx context.Context, referrerToken string) (services.ReferralStats, error)
}

//
// Handler wiring
//

// Deps lists what New needs.
type Deps struct {
	Identities IdentityService
	Ads        AdService
	Premium    PremiumService
	Referrals  ReferralService
	Messages   *services.Localizer
	Limits     services.LimitPolicy
}

// Handlers groups the HTTP endpoints.
type Handlers struct {
	ids       IdentityService
	ads       AdService
	premium   PremiumService
	referrals ReferralService
	msgs      *services.Localizer
	limits    services.LimitPolicy
}

// New constructs Handlers bound to the given services.
func New(d Deps) *Handlers {
	msgs := d.Messages
	if msgs == nil {
		msgs = services.NewLocalizer("ru")
	}
	return &Handlers{
		ids:       d.Identities,
		ads:       d.Ads,
		premium:   d.Premium,
		referrals: d.Referrals,
		msgs:      msgs,
		limits:    d.Limits,
	}
}

//
// Identity
//

// FlexID is a tgId that clients send either as a JSON number or a string.
type FlexID string

// UnmarshalJSON accepts 123, "123", "<hex token>" and null.
func (f *FlexID) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	switch {
	case s == "null":
		*f = ""
		return nil
	case strings.HasPrefix(s, `"`):
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*f = FlexID(v)
		return nil
	default:
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return err
		}
		*f = FlexID(n.String())
		return nil
	}
}

// IdentityFields are the identity keys accepted in request bodies. Older
// clients spell the token user_token.
type IdentityFields struct {
	TgID           FlexID `json:"tgId" swaggertype:"string" example:"123456789"`
	UserToken      string `json:"userToken,omitempty"`
	UserTokenSnake string `json:"user_token,omitempty"`
}

func (f IdentityFields) token() string {
	if t := strings.TrimSpace(f.UserToken); t != "" {
		return t
	}
	return strings.TrimSpace(f.UserTokenSnake)
}

func (f IdentityFields) empty() bool {
	return strings.TrimSpace(string(f.TgID)) == "" && f.token() == ""
}

func identityFromQuery(c *gin.Context) IdentityFields {
	return IdentityFields{
		TgID:           FlexID(c.Query("tgId")),
		UserToken:      c.Query("userToken"),
		UserTokenSnake: c.Query("user_token"),
	}
}

// identity resolves the caller. A Telegram id verified from init data wins
// over a tgId in the body; the body token is kept alongside it.
func (h *Handlers) identity(c *gin.Context, f IdentityFields) (domain.Identity, error) {
	var id domain.Identity
	if tg, ok := middleware.TelegramID(c); ok {
		id = domain.Identity{TgID: tg, Token: f.token()}
	} else {
		if f.empty() {
			return domain.Identity{}, services.ErrUnauthenticated
		}
		parsed, err := domain.ParseIdentity(string(f.TgID), f.token())
		if err != nil {
			return domain.Identity{}, err
		}
		id = parsed
	}

	resolved, err := h.ids.Resolve(c.Request.Context(), id)
	if err != nil {
		return domain.Identity{}, err
	}
	if resolved.TgID > 0 {
		// Token identities stay out of the access log.
		c.Set("userID", resolved.Key())
	}
	return resolved, nil
}

//
// Helpers
//

func (h *Handlers) locale(c *gin.Context, override string) language.Tag {
	if override = strings.TrimSpace(override); override != "" {
		return h.msgs.Match(override)
	}
	return h.msgs.Match(c.GetHeader("Accept-Language"))
}

// message returns the localized text for err. Validation details and
// unexpected errors are passed through as is.
func (h *Handlers) message(tag language.Tag, err error, notOwnerKey string) string {
	var qe *services.QuotaError
	switch {
	case errors.As(err, &qe):
		return h.msgs.QuotaMessage(tag, qe, h.limits)
	case errors.Is(err, services.ErrUnauthenticated):
		return h.msgs.Sprintf(tag, services.MsgAuthRequired)
	case errors.Is(err, services.ErrAdNotFound):
		return h.msgs.Sprintf(tag, services.MsgAdNotFound)
	case errors.Is(err, services.ErrNotOwner):
		return h.msgs.Sprintf(tag, notOwnerKey)
	case errors.Is(err, services.ErrTrialUsed):
		return h.msgs.Sprintf(tag, services.MsgTrialUsed)
	}
	return err.Error()
}

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const maxPage = 1 << 20
	page = utils.IntParam(c.Query("page"), 1, 1, maxPage)
	pageSize = utils.IntParam(c.Query("page_size"), 20, 1, 100)
	return page, pageSize
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

func newPagination(page, pageSize int, total int64) Pagination {
	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
	}
}

func boolPtr(b bool) *bool { return &b }
