// Premium HTTP handlers.
//
// This file exposes the /premium endpoints:
//   - POST /premium            ({action, params} dispatch)
//   - POST /premium/activate   (Telegram Stars payment)
//   - GET  /premium/calculate  (Stars price of N months)
//
// Every response is a PremiumEnvelope ({data, error}).
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"golang.org/x/text/language"

	"github.com/tbourn/go-anon-ads-backend/internal/domain"
	"github.com/tbourn/go-anon-ads-backend/internal/services"
)

// Premium actions.
const (
	ActionGetUserStatus       = "get-user-status"
	ActionCheckPhotoLimit     = "check-photo-limit"
	ActionIncrementPhotoCount = "increment-photo-count"
	ActionTogglePremium       = "toggle-premium"
	ActionGetPricing          = "get-pricing"
	ActionActivateFemaleBonus = "activate-female-bonus"
)

//
// DTOs
//

// PremiumRequest is the JSON payload of POST /premium. The identity may be
// sent inside params (current clients) or next to action (older ones).
type PremiumRequest struct {
	IdentityFields
	Action string          `json:"action" example:"get-user-status"`
	Params json.RawMessage `json:"params" swaggertype:"object"`
}

// PremiumParams are the action parameters.
type PremiumParams struct {
	IdentityFields
	// Trial7h asks toggle-premium for the one-time short trial.
	Trial7h bool `json:"trial7h"`
	// Country overrides the ad-derived country for get-pricing.
	Country string `json:"country" example:"KZ"`
	// Lang overrides Accept-Language.
	Lang string `json:"lang" example:"ru"`
}

// ActivateStarsRequest is the JSON payload of POST /premium/activate.
type ActivateStarsRequest struct {
	IdentityFields
	Months        int    `json:"months" example:"3"`
	TransactionID string `json:"transactionId" example:"stxAbc123"`
	AmountStars   int    `json:"amountStars" example:"130"`
}

//
// Helpers
//

func (h *Handlers) failPremium(c *gin.Context, tag language.Tag, err error) {
	status, code := classify(err)
	e := PremiumError{Code: code, Message: h.message(tag, err, services.MsgNotOwnerUpdate)}
	var qe *services.QuotaError
	if errors.As(err, &qe) {
		e.Limit = true
		e.IsPremium = boolPtr(qe.IsPremium)
	}
	premiumFail(c, status, e)
}

//
// Handlers
//

// Premium godoc
// @ID          premiumAction
// @Summary     Run a premium action
// @Description Dispatches on action: get-user-status, check-photo-limit, increment-photo-count, toggle-premium (params.trial7h for the one-time 7h trial), get-pricing (params.country optional), activate-female-bonus.
// @Tags        Premium
// @Accept      json
// @Produce     json
//
// @Param       Authorization    header  string  false "tma <initData>"
// @Param       Accept-Language  header  string  false "ru, en or kk"  example(ru)
// @Param       body             body    handlers.PremiumRequest  true  "Action and params"
//
// @Success     200  {object}  handlers.PremiumEnvelope
// @Failure     400  {object}  handlers.PremiumEnvelope  "Bad request, unknown action or trial used"
// @Failure     401  {object}  handlers.PremiumEnvelope  "No identity"
// @Failure     403  {object}  handlers.PremiumEnvelope  "Not eligible for the bonus"
// @Failure     409  {object}  handlers.PremiumEnvelope  "Bonus already granted"
// @Failure     429  {object}  handlers.PremiumEnvelope  "Photo quota exceeded"
// @Failure     500  {object}  handlers.PremiumEnvelope  "Internal error"
// @Router      /premium [post]
func (h *Handlers) Premium(c *gin.Context) {
	var req PremiumRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		premiumFail(c, http.StatusBadRequest, PremiumError{Code: ErrCodeBadRequest, Message: "invalid JSON body"})
		return
	}
	var p PremiumParams
	if len(req.Params) > 0 && string(req.Params) != "null" {
		if err := json.Unmarshal(req.Params, &p); err != nil {
			premiumFail(c, http.StatusBadRequest, PremiumError{Code: ErrCodeBadRequest, Message: "invalid params"})
			return
		}
	}
	if p.IdentityFields.empty() {
		p.IdentityFields = req.IdentityFields
	}
	tag := h.locale(c, p.Lang)
	ctx := c.Request.Context()

	action := strings.TrimSpace(req.Action)
	if action == ActionGetPricing {
		// Pricing works without an identity; one only refines the country.
		var id domain.Identity
		if !p.IdentityFields.empty() {
			if resolved, err := h.identity(c, p.IdentityFields); err == nil {
				id = resolved
			}
		}
		out, err := h.premium.Pricing(ctx, id, p.Country, tag)
		if err != nil {
			h.failPremium(c, tag, err)
			return
		}
		premiumOK(c, out)
		return
	}

	switch action {
	case ActionGetUserStatus, ActionCheckPhotoLimit, ActionIncrementPhotoCount,
		ActionTogglePremium, ActionActivateFemaleBonus:
	default:
		h.failPremium(c, tag, services.ErrUnknownAction)
		return
	}

	id, err := h.identity(c, p.IdentityFields)
	if err != nil {
		h.failPremium(c, tag, err)
		return
	}

	var data any
	switch action {
	case ActionGetUserStatus:
		data, err = h.premium.GetUserStatus(ctx, id)
	case ActionCheckPhotoLimit:
		data, err = h.premium.CheckPhotoLimit(ctx, id)
	case ActionIncrementPhotoCount:
		data, err = h.premium.IncrementPhotoCount(ctx, id)
	case ActionTogglePremium:
		data, err = h.premium.TogglePremium(ctx, id, p.Trial7h)
	case ActionActivateFemaleBonus:
		data, err = h.premium.ActivateFemaleBonus(ctx, id)
	}
	if err != nil {
		h.failPremium(c, tag, err)
		return
	}
	premiumOK(c, data)
}

// ActivateStars godoc
// @ID          activateStars
// @Summary     Activate PRO after a Stars payment
// @Description Records a completed Telegram Stars payment and stacks the paid months onto the current window. A transaction id seen before is rejected with 409 and grants nothing.
// @Tags        Premium
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.ActivateStarsRequest  true  "Payment"
//
// @Success     200  {object}  handlers.PremiumEnvelope
// @Failure     400  {object}  handlers.PremiumEnvelope  "Bad request or months outside 1..12"
// @Failure     401  {object}  handlers.PremiumEnvelope  "No identity"
// @Failure     409  {object}  handlers.PremiumEnvelope  "Duplicate transaction"
// @Failure     500  {object}  handlers.PremiumEnvelope  "Internal error"
// @Router      /premium/activate [post]
func (h *Handlers) ActivateStars(c *gin.Context) {
	tag := h.locale(c, "")
	var req ActivateStarsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		premiumFail(c, http.StatusBadRequest, PremiumError{Code: ErrCodeBadRequest, Message: "invalid JSON body"})
		return
	}
	id, err := h.identity(c, req.IdentityFields)
	if err != nil {
		h.failPremium(c, tag, err)
		return
	}
	out, err := h.premium.ActivateStars(c.Request.Context(), services.StarsActivation{
		Identity:      id,
		Months:        req.Months,
		TransactionID: req.TransactionID,
		AmountStars:   req.AmountStars,
	})
	if err != nil {
		h.failPremium(c, tag, err)
		return
	}
	premiumOK(c, out)
}

// CalculatePrice godoc
// @ID          calculatePrice
// @Summary     Price a PRO subscription in Stars
// @Description Returns the Stars price for 1..12 months with the discount, the RUB and KZT equivalents and the undiscounted price.
// @Tags        Premium
// @Produce     json
//
// @Param       months  query  int  true  "Subscription length"  minimum(1) maximum(12) example(3)
//
// @Success     200  {object}  handlers.PremiumEnvelope
// @Failure     400  {object}  handlers.PremiumEnvelope  "months outside 1..12"
// @Router      /premium/calculate [get]
func (h *Handlers) CalculatePrice(c *gin.Context) {
	months, err := strconv.Atoi(strings.TrimSpace(c.Query("months")))
	if err != nil {
		months = 0
	}
	q, err := services.CalculatePrice(months)
	if err != nil {
		h.failPremium(c, h.locale(c, ""), err)
		return
	}
	premiumOK(c, q)
}
