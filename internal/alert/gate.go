// Package alert turns per-user impact projections into persisted alerts,
// enforcing the free-tier gate and the dedup window.
package alert

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/tariffwatch/internal/model"
)

// AlertStore is the persistence surface the gate needs. InsertAlert must
// report created=false for a dedup-window duplicate without treating it as
// an error.
type AlertStore interface {
	InsertAlert(ctx context.Context, a model.Alert) (created bool, err error)
}

// Gate pushes alerts for a batch of affected users. Every user passes
// through exactly one of four outcomes: created, skipped free-tier,
// skipped duplicate, or skipped on persistence error.
type Gate struct {
	store AlertStore
	now   func() time.Time
}

// NewGate creates a Gate.
func NewGate(store AlertStore) *Gate {
	return &Gate{store: store, now: time.Now}
}

// WithNow overrides the clock. Test hook.
func (g *Gate) WithNow(now func() time.Time) *Gate {
	g.now = now
	return g
}

// Push persists one alert per eligible affected user and returns the exact
// fold over the outcomes. TotalCostIncrease counts only alerts actually
// created: a duplicate's impact was already reported in an earlier push,
// and a free-tier user's impact is never reported at all.
func (g *Gate) Push(ctx context.Context, pc model.PolicyChange, users []model.AffectedUser) (model.PushSummary, error) {
	var summary model.PushSummary

	for _, user := range users {
		if !user.SubscriptionTier.Paid() {
			summary.Skipped.Free++
			continue
		}

		a := g.build(pc, user)
		created, err := g.store.InsertAlert(ctx, a)
		if err != nil {
			zap.L().Warn("alert: insert failed",
				zap.String("user_id", user.UserID),
				zap.String("policy_type", string(pc.PolicyType)),
				zap.Error(err),
			)
			summary.Skipped.Error++
			continue
		}
		if !created {
			summary.Skipped.Duplicate++
			continue
		}

		summary.TotalAlertsCreated++
		summary.TotalCostIncrease += a.CostImpact
		switch a.Severity {
		case model.SeverityCritical:
			summary.Severity.Critical++
		case model.SeverityHigh:
			summary.Severity.High++
		case model.SeverityMedium:
			summary.Severity.Medium++
		case model.SeverityLow:
			summary.Severity.Low++
		}
	}

	return summary, nil
}

// build assembles the alert row for one user. Section 301 actions carry a
// Mexico-sourcing estimate: USMCA-qualifying relocation avoids the entire
// new duty, so the savings equal the full new cost.
func (g *Gate) build(pc model.PolicyChange, user model.AffectedUser) model.Alert {
	now := g.now().UTC()

	var mexicoSavings float64
	if pc.PolicyType == model.PolicySection301 {
		mexicoSavings = user.NewCost
	}

	return model.Alert{
		ID:                    uuid.NewString(),
		UserID:                user.UserID,
		PolicyType:            pc.PolicyType,
		Severity:              model.SeverityFor(user.CostIncrease),
		CostImpact:            user.CostIncrease,
		OldCost:               user.OldCost,
		NewCost:               user.NewCost,
		HSCodesAffected:       pc.HSCodesAffected,
		MexicoSourcingSavings: mexicoSavings,
		CreatedAt:             now,
		ExpiresAt:             now.Add(model.AlertTTL),
	}
}
