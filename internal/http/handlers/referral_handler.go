// Referral HTTP handlers.
//
// This file exposes the /referrals endpoints:
//   - POST /referrals  (register an invitation)
//   - PUT  /referrals  (reward the referrer of a user, once)
//   - GET  /referrals  (invitation stats of a referrer)
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"golang.org/x/text/language"

	"github.com/tbourn/go-anon-ads-backend/internal/domain"
	"github.com/tbourn/go-anon-ads-backend/internal/http/middleware"
	"github.com/tbourn/go-anon-ads-backend/internal/services"
)

//
// DTOs
//

// RegisterReferralRequest links an invited user to the inviter.
// newUserToken may be omitted by a caller authenticated with init data.
type RegisterReferralRequest struct {
	ReferrerToken string `json:"referrerToken" example:"9f2c..."`
	NewUserToken  string `json:"newUserToken" example:"a41b..."`
}

// RegisterReferralResponse is returned by POST /referrals.
type RegisterReferralResponse struct {
	Success           bool             `json:"success"`
	AlreadyRegistered bool             `json:"alreadyRegistered"`
	Referral          *domain.Referral `json:"referral"`
}

// RewardReferralRequest names the invited user whose referrer is rewarded.
type RewardReferralRequest struct {
	IdentityFields
}

// RewardReferralResponse is returned by PUT /referrals.
type RewardReferralResponse struct {
	Success        bool             `json:"success"`
	Rewarded       bool             `json:"rewarded"`
	PremiumGranted bool             `json:"premiumGranted"`
	Referral       *domain.Referral `json:"referral"`
}

// ReferralStatsResponse is returned by GET /referrals.
type ReferralStatsResponse struct {
	Success bool `json:"success"`
	services.ReferralStats
}

//
// Helpers
//

func (h *Handlers) failReferral(c *gin.Context, tag language.Tag, err error) {
	status, code := classify(err)
	failAction(c, status, ActionError{Code: code, Error: h.message(tag, err, "")})
}

// callerToken returns the token of the authenticated Telegram caller, if any.
func (h *Handlers) callerToken(c *gin.Context) (string, error) {
	if _, ok := middleware.TelegramID(c); !ok {
		return "", nil
	}
	id, err := h.identity(c, IdentityFields{})
	if err != nil {
		return "", err
	}
	return id.Token, nil
}

//
// Handlers
//

// RegisterReferral godoc
// @ID          registerReferral
// @Summary     Register an invitation
// @Description Links newUserToken to referrerToken. Self-invites are rejected; an invited user already registered returns 200 with alreadyRegistered=true.
// @Tags        Referrals
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.RegisterReferralRequest  true  "Referrer and invited tokens"
//
// @Success     201  {object}  handlers.RegisterReferralResponse
// @Success     200  {object}  handlers.RegisterReferralResponse  "Already registered"
// @Failure     400  {object}  handlers.ActionError  "Bad request or self-invite"
// @Failure     500  {object}  handlers.ActionError  "Internal error"
// @Router      /referrals [post]
func (h *Handlers) RegisterReferral(c *gin.Context) {
	tag := h.locale(c, "")
	var req RegisterReferralRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failAction(c, http.StatusBadRequest, ActionError{Code: ErrCodeBadRequest, Error: "invalid JSON body"})
		return
	}
	if strings.TrimSpace(req.NewUserToken) == "" {
		tok, err := h.callerToken(c)
		if err != nil {
			h.failReferral(c, tag, err)
			return
		}
		req.NewUserToken = tok
	}

	res, err := h.referrals.Register(c.Request.Context(), req.ReferrerToken, req.NewUserToken)
	if err != nil {
		h.failReferral(c, tag, err)
		return
	}
	status := http.StatusCreated
	if res.AlreadyRegistered {
		status = http.StatusOK
	}
	ok(c, status, RegisterReferralResponse{
		Success:           true,
		AlreadyRegistered: res.AlreadyRegistered,
		Referral:          res.Referral,
	})
}

// RewardReferral godoc
// @ID          rewardReferral
// @Summary     Reward a referrer
// @Description Marks the invitation of the given user as rewarded, once. The referrer gets PRO days only if it never held premium.
// @Tags        Referrals
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.RewardReferralRequest  true  "Invited user"
//
// @Success     200  {object}  handlers.RewardReferralResponse
// @Failure     400  {object}  handlers.ActionError  "Bad request"
// @Failure     401  {object}  handlers.ActionError  "No identity"
// @Failure     404  {object}  handlers.ActionError  "No invitation for this user"
// @Failure     500  {object}  handlers.ActionError  "Internal error"
// @Router      /referrals [put]
func (h *Handlers) RewardReferral(c *gin.Context) {
	tag := h.locale(c, "")
	var req RewardReferralRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failAction(c, http.StatusBadRequest, ActionError{Code: ErrCodeBadRequest, Error: "invalid JSON body"})
		return
	}
	id, err := h.identity(c, req.IdentityFields)
	if err != nil {
		h.failReferral(c, tag, err)
		return
	}

	res, err := h.referrals.Reward(c.Request.Context(), id.Token)
	if err != nil {
		h.failReferral(c, tag, err)
		return
	}
	ok(c, http.StatusOK, RewardReferralResponse{
		Success:        true,
		Rewarded:       res.Rewarded,
		PremiumGranted: res.PremiumGranted,
		Referral:       res.Referral,
	})
}

// ReferralStats godoc
// @ID          referralStats
// @Summary     Invitation stats
// @Description Returns the total, rewarded and pending invitations of a referrer token with the invitation list.
// @Tags        Referrals
// @Produce     json
//
// @Param       userToken  query  string  false "Referrer token (defaults to the authenticated caller)"
//
// @Success     200  {object}  handlers.ReferralStatsResponse
// @Failure     400  {object}  handlers.ActionError  "Missing token"
// @Failure     500  {object}  handlers.ActionError  "Internal error"
// @Router      /referrals [get]
func (h *Handlers) ReferralStats(c *gin.Context) {
	tag := h.locale(c, "")
	token := identityFromQuery(c).token()
	if token == "" {
		tok, err := h.callerToken(c)
		if err != nil {
			h.failReferral(c, tag, err)
			return
		}
		token = tok
	}

	stats, err := h.referrals.Stats(c.Request.Context(), token)
	if err != nil {
		h.failReferral(c, tag, err)
		return
	}
	ok(c, http.StatusOK, ReferralStatsResponse{Success: true, ReferralStats: stats})
}
