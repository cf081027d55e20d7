package model

import "time"

// Severity is the categorical alert priority derived from absolute dollar
// cost impact.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Severity thresholds in USD. All comparisons are strict: a cost increase
// of exactly 100,000 is high, not critical.
const (
	CriticalThresholdUSD = 100_000
	HighThresholdUSD     = 50_000
	MediumThresholdUSD   = 10_000
)

// SeverityFor buckets a cost increase.
func SeverityFor(costIncrease float64) Severity {
	switch {
	case costIncrease > CriticalThresholdUSD:
		return SeverityCritical
	case costIncrease > HighThresholdUSD:
		return SeverityHigh
	case costIncrease > MediumThresholdUSD:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// AlertTTL is how long an alert lives before the sweep removes it.
const AlertTTL = 90 * 24 * time.Hour

// DedupWindow is the span within which a second alert for the same
// (user, policy type) is suppressed.
const DedupWindow = 7 * 24 * time.Hour

// Alert is a persisted policy-impact notification. Created by the alert
// gate; mutated only by toggling IsRead; deleted by the expiry sweep.
type Alert struct {
	ID                    string     `json:"id"`
	UserID                string     `json:"user_id"`
	PolicyType            PolicyType `json:"policy_type"`
	Severity              Severity   `json:"severity"`
	CostImpact            float64    `json:"cost_impact"`
	OldCost               float64    `json:"old_cost"`
	NewCost               float64    `json:"new_cost"`
	HSCodesAffected       []string   `json:"hs_codes_affected"`
	MexicoSourcingSavings float64    `json:"mexico_sourcing_savings"`
	IsRead                bool       `json:"is_read"`
	CreatedAt             time.Time  `json:"created_at"`
	ExpiresAt             time.Time  `json:"expires_at"`
}

// SeverityBreakdown counts created alerts per severity bucket.
type SeverityBreakdown struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
}

// SkippedBreakdown counts users that did not produce an alert.
type SkippedBreakdown struct {
	Free      int `json:"free"`
	Duplicate int `json:"duplicate"`
	Error     int `json:"error"`
}

// PushSummary is the exact fold over per-user outcomes of one alert push:
// TotalCostIncrease sums CostImpact over the alerts actually created,
// never over skipped users.
type PushSummary struct {
	TotalAlertsCreated int               `json:"total_alerts_created"`
	Severity           SeverityBreakdown `json:"severity_breakdown"`
	Skipped            SkippedBreakdown  `json:"skipped"`
	TotalCostIncrease  float64           `json:"total_cost_increase"`
}
