package domain

import (
	"math"
	"time"
)

type PolicyTier string

const (
	PolicyFlexible      PolicyTier = "flexible"
	PolicyModerate      PolicyTier = "moderate"
	PolicyStrict        PolicyTier = "strict"
	PolicyNonRefundable PolicyTier = "non-refundable"
)

// CancellationPolicy is embedded in an accommodation and read-only here.
type CancellationPolicy struct {
	Tier        PolicyTier `bson:"tier" json:"tier"`
	Description string     `bson:"description" json:"description"`
}

type refundBucket struct {
	minDays    int
	percentage int
}

// Buckets are evaluated top to bottom, first match wins, default 0.
// The flexible ordering (>=7 days before >=1 day) is kept exactly as the
// production policy tables have it, even though it reads inverted next to
// moderate/strict. Downstream billing reports depend on the literal values.
var policyBuckets = map[PolicyTier][]refundBucket{
	PolicyFlexible: {{7, 50}, {1, 100}},
	PolicyModerate: {{5, 100}, {1, 50}},
	PolicyStrict:   {{14, 100}, {7, 50}},
}

// ComputeRefundPercentage maps a policy tier and the lead time in days to a
// refund percentage. Pure and total: an unknown tier refunds nothing rather
// than failing.
func ComputeRefundPercentage(tier PolicyTier, daysUntilCheckIn int) int {
	buckets, ok := policyBuckets[tier]
	if !ok {
		return 0
	}
	for _, b := range buckets {
		if daysUntilCheckIn >= b.minDays {
			return b.percentage
		}
	}
	return 0
}

// DaysUntilCheckIn rounds the remaining lead time up to whole days, so a
// guest cancelling 30 hours ahead still counts as two days out.
func DaysUntilCheckIn(checkIn, now time.Time) int {
	diff := checkIn.Sub(now)
	if diff <= 0 {
		return 0
	}
	return int(math.Ceil(diff.Hours() / 24))
}
