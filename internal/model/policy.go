package model

import "time"

// PolicyType identifies the category of tariff action behind a policy change.
type PolicyType string

const (
	PolicySection301 PolicyType = "section_301"
	PolicySection232 PolicyType = "section_232"
	PolicyMFNRate    PolicyType = "mfn_rate"
	PolicyColumn2    PolicyType = "column_2"
)

// Valid reports whether the policy type is one of the known categories.
func (p PolicyType) Valid() bool {
	switch p {
	case PolicySection301, PolicySection232, PolicyMFNRate, PolicyColumn2:
		return true
	}
	return false
}

// AutoProcessConfidence is the minimum ingestion-pipeline confidence at
// which a policy change may be processed without review.
const AutoProcessConfidence = 0.8

// PolicyChange is a government tariff action produced by the external
// RSS/LLM ingestion pipeline. Rates are percentages as plain floats.
type PolicyChange struct {
	PolicyType         PolicyType `json:"policy_type"`
	HSCodesAffected    []string   `json:"hs_codes_affected"`
	OldRate            float64    `json:"old_rate"`
	NewRate            float64    `json:"new_rate"`
	EffectiveDate      time.Time  `json:"effective_date"`
	Confidence         float64    `json:"confidence"`
	AnnouncementSource string     `json:"announcement_source"`
	AnnouncementURL    string     `json:"announcement_url"`
}

// AutoProcessable reports whether the change is confident enough to be
// processed without human review.
func (pc PolicyChange) AutoProcessable() bool {
	return pc.Confidence >= AutoProcessConfidence
}

// IngestLog records the outcome of one policy-change ingestion run.
type IngestLog struct {
	ID                string     `json:"id"`
	PolicyType        PolicyType `json:"policy_type"`
	Source            string     `json:"source"`
	URL               string     `json:"url"`
	Confidence        float64    `json:"confidence"`
	Quarantined       bool       `json:"quarantined"`
	AlertsCreated     int        `json:"alerts_created"`
	TotalCostIncrease float64    `json:"total_cost_increase"`
	CreatedAt         time.Time  `json:"created_at"`
}
