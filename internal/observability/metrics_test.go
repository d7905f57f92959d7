package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestQuotaCollectors(t *testing.T) {
	before := testutil.ToFloat64(quotaRejections.WithLabelValues("ads", "free"))
	QuotaRejected("ads", false)
	if got := testutil.ToFloat64(quotaRejections.WithLabelValues("ads", "free")); got != before+1 {
		t.Fatalf("quota_rejections_total = %v; want %v", got, before+1)
	}

	before = testutil.ToFloat64(quotaUsage.WithLabelValues("pins", "pro"))
	QuotaIncremented("pins", true)
	if got := testutil.ToFloat64(quotaUsage.WithLabelValues("pins", "pro")); got != before+1 {
		t.Fatalf("quota_increments_total = %v; want %v", got, before+1)
	}
}

func TestPremiumExpired_IgnoresZero(t *testing.T) {
	before := testutil.ToFloat64(premiumExpired.WithLabelValues("sweeper"))
	PremiumExpired("sweeper", 0)
	PremiumExpired("sweeper", 3)
	if got := testutil.ToFloat64(premiumExpired.WithLabelValues("sweeper")); got != before+3 {
		t.Fatalf("premium_expired_total = %v; want %v", got, before+3)
	}
}

func TestStatusCacheLookup(t *testing.T) {
	hits := testutil.ToFloat64(statusCache.WithLabelValues("hit"))
	misses := testutil.ToFloat64(statusCache.WithLabelValues("miss"))
	StatusCacheLookup(true)
	StatusCacheLookup(false)
	StatusCacheLookup(false)
	if testutil.ToFloat64(statusCache.WithLabelValues("hit")) != hits+1 ||
		testutil.ToFloat64(statusCache.WithLabelValues("miss")) != misses+2 {
		t.Fatalf("unexpected cache lookup counts")
	}
}
