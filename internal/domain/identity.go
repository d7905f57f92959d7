package domain

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
)

// tokenMinLen is the length above which a value in a numeric id field is
// treated as a token. Telegram ids never come close to it.
const tokenMinLen = 20

// maxTokenLen bounds opaque tokens accepted from clients.
const maxTokenLen = 128

// ErrInvalidIdentity is returned when neither a platform id nor a token can
// be derived from the request.
var ErrInvalidIdentity = errors.New("invalid identity")

// Identity addresses a user either by Telegram id, by opaque token, or both.
// TgID is 0 when the caller has no platform account.
type Identity struct {
	TgID  int64  `json:"tgId,omitempty"`
	Token string `json:"userToken,omitempty"`
}

// IsZero reports whether the identity carries no key at all.
func (id Identity) IsZero() bool { return id.TgID == 0 && id.Token == "" }

// HasPlatformID reports whether the identity is backed by a Telegram account.
func (id Identity) HasPlatformID() bool { return id.TgID > 0 }

// Key returns a stable string for logs, caches and rate-limit buckets.
func (id Identity) Key() string {
	if id.TgID > 0 {
		return "tg:" + strconv.FormatInt(id.TgID, 10)
	}
	if id.Token != "" {
		return "tok:" + id.Token
	}
	return ""
}

// LogKey is Key with the token shortened to its first six characters.
func (id Identity) LogKey() string {
	if id.TgID <= 0 && len(id.Token) > 6 {
		return "tok:" + id.Token[:6] + "..."
	}
	return id.Key()
}

// IsLikelyToken reports whether s looks like an opaque token rather than a
// numeric Telegram id: long and made of hex digits (hyphens allowed for
// UUID-shaped tokens).
func IsLikelyToken(s string) bool {
	if len(s) <= tokenMinLen || len(s) > maxTokenLen {
		return false
	}
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f', r >= 'A' && r <= 'F', r == '-':
		default:
			return false
		}
	}
	return true
}

// ParseIdentity builds an Identity from the raw request fields. rawID is the
// value of a tgId-named field (number or string); token is an explicit
// userToken. A long hex string arriving in rawID is treated as a token.
func ParseIdentity(rawID, token string) (Identity, error) {
	rawID = strings.TrimSpace(rawID)
	token = strings.TrimSpace(token)

	var id Identity
	switch {
	case rawID == "" || rawID == "null" || rawID == "0":
	case IsLikelyToken(rawID):
		id.Token = rawID
	default:
		n, err := strconv.ParseInt(rawID, 10, 64)
		if err != nil || n <= 0 {
			return Identity{}, ErrInvalidIdentity
		}
		id.TgID = n
	}

	if token != "" {
		if len(token) > maxTokenLen {
			return Identity{}, ErrInvalidIdentity
		}
		if id.Token != "" && id.Token != token {
			return Identity{}, ErrInvalidIdentity
		}
		id.Token = token
	}

	if id.IsZero() {
		return Identity{}, ErrInvalidIdentity
	}
	return id, nil
}

// DeriveUserToken returns the deterministic token of a Telegram user, so the
// same account maps to the same token on every device.
func DeriveUserToken(secret string, tgID int64) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(tgID, 10) + ":v1"))
	return hex.EncodeToString(mac.Sum(nil))
}
