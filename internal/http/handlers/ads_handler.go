// Ads HTTP handlers.
//
// This file exposes the /ads endpoints:
//   - POST   /ads   (create; quota-checked, Idempotency-Key aware)
//   - DELETE /ads   (delete own ad; same-day deletes refund the quota)
//   - PATCH  /ads   (pin toggle, or action "update-all-nicknames")
//   - GET    /ads   (?mine=1: the caller's ads, paginated, ETag support)
package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/text/language"

	"github.com/tbourn/go-anon-ads-backend/internal/domain"
	"github.com/tbourn/go-anon-ads-backend/internal/http/middleware"
	"github.com/tbourn/go-anon-ads-backend/internal/services"
)

const actionUpdateAllNicknames = "update-all-nicknames"

//
// DTOs
//

// CreateAdRequest is the JSON payload for creating an ad.
type CreateAdRequest struct {
	IdentityFields
	Gender      string `json:"gender" example:"female"`
	Target      string `json:"target" example:"male"`
	Goal        string `json:"goal" example:"chat"`
	AgeFrom     int    `json:"ageFrom" example:"25"`
	AgeTo       int    `json:"ageTo" example:"35"`
	MyAge       int    `json:"myAge" example:"28"`
	Body        string `json:"body" example:"slim"`
	Orientation string `json:"orientation" example:"hetero"`
	Text        string `json:"text" example:"Looking for a walk in the park"`
	Nickname    string `json:"nickname" example:"Anna"`
	Country     string `json:"country" example:"KZ"`
	Region      string `json:"region" example:"Almaty Region"`
	City        string `json:"city" example:"Almaty"`
}

// CreateAdResponse is returned with 201 on creation (and on replay).
type CreateAdResponse struct {
	Success              bool       `json:"success" example:"true"`
	Ad                   *domain.Ad `json:"ad"`
	IsPremium            bool       `json:"isPremium"`
	ShowFemaleBonusModal bool       `json:"showFemaleBonusModal"`
	FemaleBonusLost      bool       `json:"femaleBonusLost"`
	Replayed             bool       `json:"replayed,omitempty"`
}

// DeleteAdRequest is the JSON payload for deleting an ad.
type DeleteAdRequest struct {
	IdentityFields
	ID string `json:"id" example:"141add05-4415-4938-b5a1-17e0d3171aff"`
}

// PatchAdRequest toggles a pin ({id, is_pinned, pinned_until}) or renames
// every ad of the caller ({action:"update-all-nicknames", nickname}).
type PatchAdRequest struct {
	IdentityFields
	ID          string     `json:"id"`
	IsPinned    *bool      `json:"is_pinned"`
	PinnedUntil *time.Time `json:"pinned_until"`
	Action      string     `json:"action" example:"update-all-nicknames"`
	Nickname    string     `json:"nickname" example:"Anna"`
}

// PinAdResponse is returned by a pin toggle.
type PinAdResponse struct {
	Success bool       `json:"success"`
	Ad      *domain.Ad `json:"ad"`
}

// UpdateNicknamesResponse is returned by update-all-nicknames.
type UpdateNicknamesResponse struct {
	Success bool  `json:"success"`
	Updated int64 `json:"updated"`
}

// SuccessResponse is a bare {success:true}.
type SuccessResponse struct {
	Success bool `json:"success" example:"true"`
}

// ListAdsResponse wraps a page of the caller's ads.
type ListAdsResponse struct {
	Success    bool        `json:"success"`
	Ads        []domain.Ad `json:"ads"`
	Pagination Pagination  `json:"pagination"`
}

//
// Helpers
//

// failAds maps a service error onto the /ads error envelope.
func (h *Handlers) failAds(c *gin.Context, tag language.Tag, err error, notOwnerKey string) {
	status, code := classify(err)
	body := ActionError{Code: code, Error: h.message(tag, err, notOwnerKey)}
	var qe *services.QuotaError
	if errors.As(err, &qe) {
		body.Limit = true
		body.IsPremium = boolPtr(qe.IsPremium)
		body.NextAvailableAt = qe.NextAvailableAt
	}
	failAction(c, status, body)
}

//
// Handlers
//

// CreateAd godoc
// @ID          createAd
// @Summary     Create an ad
// @Description Posts an ad for the caller after checking the daily ad quota. The first ad's gender may grant or revoke the female bonus. A repeated Idempotency-Key returns the first ad.
// @Tags        Ads
// @Accept      json
// @Produce     json
//
// @Param       Authorization    header  string  false "tma <initData>"
// @Param       Idempotency-Key  header  string  false "Makes retries safe"  example(5c1f0f3a-9c7e-4f1b-8a43-0c9e7b2f9a11)
// @Param       Accept-Language  header  string  false "ru, en or kk"         example(ru)
// @Param       body             body    handlers.CreateAdRequest  true  "Ad payload"
//
// @Success     201  {object}  handlers.CreateAdResponse
// @Failure     400  {object}  handlers.ActionError  "Validation failed"
// @Failure     401  {object}  handlers.ActionError  "No identity"
// @Failure     429  {object}  handlers.ActionError  "Daily ad quota exceeded"
// @Failure     500  {object}  handlers.ActionError  "Internal error"
// @Router      /ads [post]
func (h *Handlers) CreateAd(c *gin.Context) {
	tag := h.locale(c, "")
	var req CreateAdRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failAction(c, http.StatusBadRequest, ActionError{Code: ErrCodeBadRequest, Error: "invalid JSON body"})
		return
	}
	id, err := h.identity(c, req.IdentityFields)
	if err != nil {
		h.failAds(c, tag, err, "")
		return
	}

	in := services.CreateAdInput{
		Gender:      req.Gender,
		Target:      req.Target,
		Goal:        req.Goal,
		AgeFrom:     req.AgeFrom,
		AgeTo:       req.AgeTo,
		MyAge:       req.MyAge,
		Body:        req.Body,
		Orientation: req.Orientation,
		Text:        req.Text,
		Nickname:    req.Nickname,
		Country:     req.Country,
		Region:      req.Region,
		City:        req.City,
	}
	if key, ok := middleware.GetIdempotencyKey(c); ok {
		in.IdempotencyKey = key
	}

	res, err := h.ads.Create(c.Request.Context(), id, in)
	if err != nil {
		h.failAds(c, tag, err, "")
		return
	}
	ok(c, http.StatusCreated, CreateAdResponse{
		Success:              true,
		Ad:                   res.Ad,
		IsPremium:            res.IsPremium,
		ShowFemaleBonusModal: res.Bonus.Granted,
		FemaleBonusLost:      res.Bonus.Lost,
		Replayed:             res.Replayed,
	})
}

// DeleteAd godoc
// @ID          deleteAd
// @Summary     Delete an ad
// @Description Deletes one of the caller's ads. Deleting an ad created today gives the daily ad back.
// @Tags        Ads
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.DeleteAdRequest  true  "Ad id and identity"
//
// @Success     200  {object}  handlers.SuccessResponse
// @Failure     400  {object}  handlers.ActionError  "Bad request"
// @Failure     401  {object}  handlers.ActionError  "No identity"
// @Failure     403  {object}  handlers.ActionError  "Not the owner"
// @Failure     404  {object}  handlers.ActionError  "Ad not found"
// @Failure     500  {object}  handlers.ActionError  "Internal error"
// @Router      /ads [delete]
func (h *Handlers) DeleteAd(c *gin.Context) {
	tag := h.locale(c, "")
	var req DeleteAdRequest
	// Some clients send the fields as query parameters without a body.
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		failAction(c, http.StatusBadRequest, ActionError{Code: ErrCodeBadRequest, Error: "invalid JSON body"})
		return
	}
	if req.ID == "" {
		req.ID = c.Query("id")
	}
	if req.IdentityFields.empty() {
		req.IdentityFields = identityFromQuery(c)
	}
	id, err := h.identity(c, req.IdentityFields)
	if err != nil {
		h.failAds(c, tag, err, services.MsgNotOwnerDelete)
		return
	}
	if err := h.ads.Delete(c.Request.Context(), id, req.ID); err != nil {
		h.failAds(c, tag, err, services.MsgNotOwnerDelete)
		return
	}
	ok(c, http.StatusOK, SuccessResponse{Success: true})
}

// PatchAd godoc
// @ID          patchAd
// @Summary     Pin an ad or rename all ads
// @Description With {id, is_pinned} pins or unpins an ad (pins use the pin quota and last at most the pin duration). With {action:"update-all-nicknames", nickname} sets the nickname on every ad of the caller.
// @Tags        Ads
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.PatchAdRequest  true  "Pin toggle or nickname update"
//
// @Success     200  {object}  handlers.PinAdResponse
// @Success     200  {object}  handlers.UpdateNicknamesResponse
// @Failure     400  {object}  handlers.ActionError  "Bad request"
// @Failure     401  {object}  handlers.ActionError  "No identity"
// @Failure     403  {object}  handlers.ActionError  "Not the owner"
// @Failure     404  {object}  handlers.ActionError  "Ad not found"
// @Failure     429  {object}  handlers.ActionError  "Pin quota exceeded"
// @Failure     500  {object}  handlers.ActionError  "Internal error"
// @Router      /ads [patch]
func (h *Handlers) PatchAd(c *gin.Context) {
	tag := h.locale(c, "")
	var req PatchAdRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failAction(c, http.StatusBadRequest, ActionError{Code: ErrCodeBadRequest, Error: "invalid JSON body"})
		return
	}
	action := strings.TrimSpace(req.Action)
	if action != "" && action != actionUpdateAllNicknames {
		h.failAds(c, tag, services.ErrUnknownAction, "")
		return
	}
	if action == "" && (strings.TrimSpace(req.ID) == "" || req.IsPinned == nil) {
		failAction(c, http.StatusBadRequest, ActionError{Code: ErrCodeBadRequest, Error: "id and is_pinned are required"})
		return
	}

	id, err := h.identity(c, req.IdentityFields)
	if err != nil {
		h.failAds(c, tag, err, services.MsgNotOwnerUpdate)
		return
	}
	ctx := c.Request.Context()

	if action == actionUpdateAllNicknames {
		n, err := h.ads.UpdateNicknames(ctx, id, req.Nickname)
		if err != nil {
			h.failAds(c, tag, err, services.MsgNotOwnerUpdate)
			return
		}
		ok(c, http.StatusOK, UpdateNicknamesResponse{Success: true, Updated: n})
		return
	}

	ad, err := h.ads.SetPin(ctx, id, req.ID, *req.IsPinned, req.PinnedUntil)
	if err != nil {
		h.failAds(c, tag, err, services.MsgNotOwnerUpdate)
		return
	}
	ok(c, http.StatusOK, PinAdResponse{Success: true, Ad: ad})
}

// ListMyAds godoc
// @ID          listMyAds
// @Summary     List the caller's ads (paginated)
// @Description Returns a page of the caller's ads, pinned first then newest. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Ads
// @Produce     json
//
// @Param       mine           query   bool    true  "Must be set"                   example(true)
// @Param       tgId           query   string  false "Telegram user id"              example(123456789)
// @Param       userToken      query   string  false "Anonymous user token"
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"   example(W/\"ads:3:1712345678:1:20\")
// @Param       page           query   int     false "Page number"                   minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"                minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListAdsResponse
// @Header      200  {string} ETag  "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     400  {object} handlers.ActionError "Bad request"
// @Failure     401  {object} handlers.ActionError "No identity"
// @Failure     500  {object} handlers.ActionError "Internal error"
// @Router      /ads [get]
func (h *Handlers) ListMyAds(c *gin.Context) {
	tag := h.locale(c, "")
	if mine := strings.ToLower(c.Query("mine")); mine == "" || mine == "0" || mine == "false" {
		failAction(c, http.StatusBadRequest, ActionError{Code: ErrCodeBadRequest, Error: "only mine=1 listing is served"})
		return
	}
	id, err := h.identity(c, identityFromQuery(c))
	if err != nil {
		h.failAds(c, tag, err, "")
		return
	}
	ctx := c.Request.Context()
	page, pageSize := clampPagination(c)

	// ETag pre-check (best effort).
	if count, maxTS, err := h.ads.Stats(ctx, id); err == nil {
		var ts int64
		if maxTS != nil {
			ts = maxTS.Unix()
		}
		etag := fmt.Sprintf(`W/"ads:%d:%d:%d:%d"`, count, ts, page, pageSize)
		c.Header("ETag", etag)
		if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
			c.Status(http.StatusNotModified)
			return
		}
	}

	items, total, err := h.ads.ListMine(ctx, id, page, pageSize)
	if err != nil {
		h.failAds(c, tag, err, "")
		return
	}
	ok(c, http.StatusOK, ListAdsResponse{
		Success:    true,
		Ads:        items,
		Pagination: newPagination(page, pageSize, total),
	})
}
