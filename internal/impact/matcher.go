package impact

import (
	"context"
	"sort"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/tariffwatch/internal/hscode"
	"github.com/sells-group/tariffwatch/internal/model"
)

// ProfileSource is the subscriber data the matcher reads. It never writes.
type ProfileSource interface {
	ListTradeProfiles(ctx context.Context) ([]model.TradeProfile, error)
	GetSubscriber(ctx context.Context, userID string) (*model.Subscriber, error)
}

// Matcher scans subscriber trade profiles for components affected by a
// policy change and computes the financial impact for each. It is a pure
// projection over subscriber data.
type Matcher struct {
	source  ProfileSource
	calc    *Calculator
	workers int
}

// NewMatcher creates a matcher. workers bounds concurrent per-profile
// processing; values below 2 keep the historical sequential behavior.
func NewMatcher(source ProfileSource, workers int) *Matcher {
	if workers < 1 {
		workers = 1
	}
	return &Matcher{source: source, calc: NewCalculator(), workers: workers}
}

// FindAffectedUsers returns one AffectedUser per profile that shares a
// 6-digit subheading with any affected code. A data-access error for one
// profile is logged and that profile skipped; one bad record must not
// abort the batch. Output is ordered by user id for stable downstream
// processing.
func (m *Matcher) FindAffectedUsers(ctx context.Context, pc model.PolicyChange) ([]model.AffectedUser, error) {
	affectedCodes := make([]string, 0, len(pc.HSCodesAffected))
	for _, code := range pc.HSCodesAffected {
		if hscode.IsValid(code) {
			affectedCodes = append(affectedCodes, code)
		}
	}
	if len(affectedCodes) == 0 {
		return nil, nil
	}

	profiles, err := m.source.ListTradeProfiles(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "impact: list trade profiles")
	}

	var (
		mu    sync.Mutex
		users []model.AffectedUser
	)

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(m.workers)
	for _, profile := range profiles {
		profile := profile
		g.Go(func() error {
			user, err := m.evaluate(gCtx, profile, pc, affectedCodes)
			if err != nil {
				zap.L().Warn("impact: skipping profile",
					zap.String("profile_id", profile.ID),
					zap.String("user_id", profile.UserID),
					zap.Error(err),
				)
				return nil
			}
			if user != nil {
				mu.Lock()
				users = append(users, *user)
				mu.Unlock()
			}
			return nil
		})
	}
	// Per-profile errors are absorbed above, so Wait only reports
	// context cancellation.
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "impact: match profiles")
	}

	sort.Slice(users, func(i, j int) bool { return users[i].UserID < users[j].UserID })
	return users, nil
}

// evaluate returns nil when the profile has no affected components.
// Partial relevance is still relevance: a single matching component makes
// the whole profile affected.
func (m *Matcher) evaluate(ctx context.Context, profile model.TradeProfile, pc model.PolicyChange, affectedCodes []string) (*model.AffectedUser, error) {
	var matched []model.Component
	for _, comp := range profile.Components {
		for _, code := range affectedCodes {
			if hscode.SameSubheading(comp.HSCode, code) {
				matched = append(matched, comp)
				break
			}
		}
	}
	if len(matched) == 0 {
		return nil, nil
	}

	sub, err := m.source.GetSubscriber(ctx, profile.UserID)
	if err != nil {
		return nil, eris.Wrap(err, "impact: get subscriber")
	}
	tier := model.TierFree
	if sub != nil {
		tier = sub.SubscriptionTier
	}

	volume := profile.TradeVolume
	if volume == 0 {
		volume = m.calc.DefaultVolume(matched)
	}

	oldCost, newCost := m.calc.Costs(matched, volume, pc.OldRate, pc.NewRate)

	return &model.AffectedUser{
		UserID:             profile.UserID,
		WorkflowID:         profile.WorkflowID,
		SubscriptionTier:   tier,
		AffectedComponents: matched,
		OldCost:            oldCost,
		NewCost:            newCost,
		CostIncrease:       newCost - oldCost,
		TradeVolume:        volume,
	}, nil
}
