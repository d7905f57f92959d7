package domain

import (
	"fmt"
	"time"
)

// Counter names one of the daily quota counters.
type Counter string

const (
	CounterAds    Counter = "ads"
	CounterPhotos Counter = "photos"
	CounterPins   Counter = "pins"
)

// Counters lists every counter in a fixed order.
var Counters = []Counter{CounterAds, CounterPhotos, CounterPins}

// Columns returns the value and last-reset column names backing c.
func (c Counter) Columns() (value, lastReset string, err error) {
	switch c {
	case CounterAds:
		return "ads_created_today", "ads_last_reset", nil
	case CounterPhotos:
		return "photos_sent_today", "photos_last_reset", nil
	case CounterPins:
		return "pin_uses_today", "pin_last_reset", nil
	default:
		return "", "", fmt.Errorf("unknown counter %q", string(c))
	}
}

// QuotaRow is the read model of a quota record, shared by the platform and
// web tables. A missing record is represented by ZeroQuota, never by nil.
type QuotaRow struct {
	AdsCreatedToday int        `json:"adsCreatedToday"`
	AdsLastReset    Day        `json:"adsLastReset"`
	PhotosSentToday int        `json:"photosSentToday"`
	PhotosLastReset Day        `json:"photosLastReset"`
	PinUsesToday    int        `json:"pinUsesToday"`
	PinLastReset    Day        `json:"pinLastReset"`
	LastPinTime     *time.Time `json:"lastPinTime,omitempty"`
	TrialUsed       bool       `json:"trialUsed"`
}

// ZeroQuota is the implicit state of an identity with no quota record:
// every counter at zero and reset at the epoch, so it is always stale.
func ZeroQuota() QuotaRow {
	return QuotaRow{
		AdsLastReset:    Epoch,
		PhotosLastReset: Epoch,
		PinLastReset:    Epoch,
	}
}

// Count returns the stored value of c.
func (q QuotaRow) Count(c Counter) int {
	switch c {
	case CounterAds:
		return q.AdsCreatedToday
	case CounterPhotos:
		return q.PhotosSentToday
	case CounterPins:
		return q.PinUsesToday
	}
	return 0
}

// LastReset returns the last-reset date of c.
func (q QuotaRow) LastReset(c Counter) Day {
	switch c {
	case CounterAds:
		return q.AdsLastReset
	case CounterPhotos:
		return q.PhotosLastReset
	case CounterPins:
		return q.PinLastReset
	}
	return Epoch
}

// UsedOn returns the usage of c on day: the stored value when the counter was
// last reset on day, zero when it is stale.
func (q QuotaRow) UsedOn(c Counter, day Day) int {
	if q.LastReset(c).Before(day) {
		return 0
	}
	return q.Count(c)
}
