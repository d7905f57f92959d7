package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Domain collectors. Label values come from closed sets (counter names,
// transition names, tiers) so cardinality stays fixed.
var (
	quotaUsage = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quota_increments_total",
			Help: "Quota counter increments by counter and tier.",
		},
		[]string{"counter", "tier"},
	)

	quotaRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quota_rejections_total",
			Help: "Actions rejected because a daily quota was exhausted.",
		},
		[]string{"counter", "tier"},
	)

	bonusTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "female_bonus_transitions_total",
			Help: "Female-bonus state transitions (granted, retained_paid, revoked, failed).",
		},
		[]string{"transition"},
	)

	premiumExpired = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "premium_expired_total",
			Help: "Premium windows cleared after expiry, by path (self_heal, sweeper).",
		},
		[]string{"path"},
	)

	premiumGrants = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "premium_grants_total",
			Help: "Premium windows granted by source.",
		},
		[]string{"source"},
	)

	statusCache = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "premium_status_cache_total",
			Help: "Premium status cache lookups by result (hit, miss).",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(quotaUsage, quotaRejections, bonusTransitions, premiumExpired, premiumGrants, statusCache)
}

func tier(isPremium bool) string {
	if isPremium {
		return "pro"
	}
	return "free"
}

// QuotaIncremented counts one recorded use of counter.
func QuotaIncremented(counter string, isPremium bool) {
	quotaUsage.WithLabelValues(counter, tier(isPremium)).Inc()
}

// QuotaRejected counts one action refused by the ledger.
func QuotaRejected(counter string, isPremium bool) {
	quotaRejections.WithLabelValues(counter, tier(isPremium)).Inc()
}

// BonusTransition counts a female-bonus state change.
func BonusTransition(transition string) {
	bonusTransitions.WithLabelValues(transition).Inc()
}

// PremiumExpired adds n cleared windows for path.
func PremiumExpired(path string, n int64) {
	if n > 0 {
		premiumExpired.WithLabelValues(path).Add(float64(n))
	}
}

// PremiumGranted counts a premium grant from source.
func PremiumGranted(source string) {
	premiumGrants.WithLabelValues(source).Inc()
}

// StatusCacheLookup counts a cache hit or miss.
func StatusCacheLookup(hit bool) {
	if hit {
		statusCache.WithLabelValues("hit").Inc()
		return
	}
	statusCache.WithLabelValues("miss").Inc()
}
