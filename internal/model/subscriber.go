package model

// Tier is a subscription tier.
type Tier string

const (
	TierFree         Tier = "free"
	TierTrial        Tier = "trial"
	TierStarter      Tier = "starter"
	TierProfessional Tier = "professional"
	TierEnterprise   Tier = "enterprise"
)

// Paid reports whether the tier may receive detailed financial alerts.
// Free-tier users must never receive one; this is a product/compliance
// requirement, not an incidental default.
func (t Tier) Paid() bool {
	switch t {
	case TierTrial, TierStarter, TierProfessional, TierEnterprise:
		return true
	}
	return false
}

// Subscriber is an entry in the tier registry.
type Subscriber struct {
	UserID             string `json:"user_id"`
	SubscriptionTier   Tier   `json:"subscription_tier"`
	EmailAlertsEnabled bool   `json:"email_alerts_enabled"`
}

// Component is one line of a trade profile: a product classification and
// its share of the subscriber's trade volume. Value is the component's raw
// annual value in USD, used to default the trade volume when none is set.
type Component struct {
	HSCode          string  `json:"hs_code"`
	ValuePercentage float64 `json:"value_percentage"`
	Description     string  `json:"description,omitempty"`
	Value           float64 `json:"value,omitempty"`
}

// TradeProfile describes what a subscriber imports and at what volume.
type TradeProfile struct {
	ID          string      `json:"id"`
	UserID      string      `json:"user_id"`
	WorkflowID  string      `json:"workflow_id"`
	Components  []Component `json:"components"`
	TradeVolume float64     `json:"trade_volume"`
}

// AffectedUser is the per-(policy change, user) impact projection. It is
// computed, never persisted on its own. Monetary fields are rounded to
// whole USD at the point of output.
type AffectedUser struct {
	UserID             string      `json:"user_id"`
	WorkflowID         string      `json:"workflow_id"`
	SubscriptionTier   Tier        `json:"subscription_tier"`
	AffectedComponents []Component `json:"affected_components"`
	OldCost            float64     `json:"old_cost"`
	NewCost            float64     `json:"new_cost"`
	CostIncrease       float64     `json:"cost_increase"`
	TradeVolume        float64     `json:"trade_volume"`
}
