// Package plans holds the static subscription catalog. Pricing ships with
// releases rather than living in a table, so billing logic and the plans
// endpoint both read from here.
package plans

import "math"

// Plan codes in ascending order of privilege.
const (
	Free    = "free"
	Basic   = "basic"
	Premium = "premium"
	Elite   = "elite"
)

// Billing periods.
const (
	PeriodMonthly   = "monthly"
	PeriodQuarterly = "quarterly"
	PeriodYearly    = "yearly"
)

// Unlimited marks a quota with no cap.
const Unlimited = -1

// Plan describes one subscription tier. Prices are NPR.
type Plan struct {
	Code             string   `json:"code"`
	Name             string   `json:"name"`
	NameNepali       string   `json:"name_nepali"`
	MonthlyPrice     float64  `json:"monthly_price"`
	DailySwipeLimit  int      `json:"daily_swipe_limit"`
	SuperlikesPerDay int      `json:"superlikes_per_day"`
	BoostsPerMonth   int      `json:"boosts_per_month"`
	Features         []string `json:"features"`
}

// Feature flags gated by tier.
const (
	FeatureSeeLikes         = "see_likes"
	FeatureReadReceipts     = "read_receipts"
	FeatureAIAssistant      = "ai_assistant"
	FeatureWhoViewed        = "who_viewed"
	FeatureIncognito        = "incognito"
	FeaturePrioritySupport  = "priority_support"
	FeatureExclusiveMatches = "exclusive_matches"
)

var catalog = []Plan{
	{
		Code:            Free,
		Name:            "Free",
		NameNepali:      "निःशुल्क",
		MonthlyPrice:    0,
		DailySwipeLimit: 50,
	},
	{
		Code:             Basic,
		Name:             "Basic",
		NameNepali:       "आधारभूत",
		MonthlyPrice:     499,
		DailySwipeLimit:  100,
		SuperlikesPerDay: 1,
		Features:         []string{FeatureSeeLikes},
	},
	{
		Code:             Premium,
		Name:             "Premium",
		NameNepali:       "प्रिमियम",
		MonthlyPrice:     999,
		DailySwipeLimit:  Unlimited,
		SuperlikesPerDay: 5,
		BoostsPerMonth:   2,
		Features: []string{
			FeatureSeeLikes, FeatureReadReceipts, FeatureAIAssistant, FeatureWhoViewed,
		},
	},
	{
		Code:             Elite,
		Name:             "Elite",
		NameNepali:       "इलीट",
		MonthlyPrice:     1999,
		DailySwipeLimit:  Unlimited,
		SuperlikesPerDay: 5,
		BoostsPerMonth:   2,
		Features: []string{
			FeatureSeeLikes, FeatureReadReceipts, FeatureAIAssistant, FeatureWhoViewed,
			FeatureIncognito, FeaturePrioritySupport, FeatureExclusiveMatches,
		},
	},
}

// All returns the catalog in display order.
func All() []Plan {
	out := make([]Plan, len(catalog))
	copy(out, catalog)
	return out
}

// ByCode looks up a plan; ok is false for unknown codes.
func ByCode(code string) (Plan, bool) {
	for _, p := range catalog {
		if p.Code == code {
			return p, true
		}
	}
	return Plan{}, false
}

// IsValidPeriod reports whether period is a billing period we sell.
func IsValidPeriod(period string) bool {
	switch period {
	case PeriodMonthly, PeriodQuarterly, PeriodYearly:
		return true
	}
	return false
}

// Price returns the charge for a plan over a period. Quarterly carries a 10%
// discount, yearly 25%.
func (p Plan) Price(period string) float64 {
	switch period {
	case PeriodQuarterly:
		return round2(p.MonthlyPrice * 3 * 0.9)
	case PeriodYearly:
		return round2(p.MonthlyPrice * 12 * 0.75)
	default:
		return p.MonthlyPrice
	}
}

// PeriodMonths returns how many months a billing period covers.
func PeriodMonths(period string) int {
	switch period {
	case PeriodQuarterly:
		return 3
	case PeriodYearly:
		return 12
	default:
		return 1
	}
}

// Has reports whether the plan includes a feature flag.
func (p Plan) Has(feature string) bool {
	for _, f := range p.Features {
		if f == feature {
			return true
		}
	}
	return false
}

// Rank orders tiers so upgrades and downgrades can be compared.
func Rank(code string) int {
	switch code {
	case Basic:
		return 1
	case Premium:
		return 2
	case Elite:
		return 3
	default:
		return 0
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
