package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/tariffwatch/internal/db/schema"
	"github.com/sells-group/tariffwatch/internal/model"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(":memory:", schema.MustLoad())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func TestSQLiteStore_SubscriberRoundTrip(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO subscribers (user_id, subscription_tier, email_alerts_enabled) VALUES (?, ?, ?)`,
		"u1", "starter", true)
	require.NoError(t, err)

	sub, err := s.GetSubscriber(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, sub)
	assert.Equal(t, model.TierStarter, sub.SubscriptionTier)
	assert.True(t, sub.EmailAlertsEnabled)

	missing, err := s.GetSubscriber(ctx, "nobody")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSQLiteStore_TradeProfiles(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO trade_profiles (id, user_id, workflow_id, components, trade_volume) VALUES (?, ?, ?, ?, ?)`,
		"p1", "u1", "w1",
		`[{"hs_code":"8542.31.00","value_percentage":60,"description":"MCUs"},{"hs_code":"85423200","value_percentage":40}]`,
		2_000_000.0)
	require.NoError(t, err)

	profiles, err := s.ListTradeProfiles(ctx)
	require.NoError(t, err)
	require.Len(t, profiles, 1)
	require.Len(t, profiles[0].Components, 2)
	assert.Equal(t, 60.0, profiles[0].Components[0].ValuePercentage)
	assert.Equal(t, 2_000_000.0, profiles[0].TradeVolume)
}

func TestSQLiteStore_AlertDedupAndSweep(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	now := time.Now().UTC()

	alert := model.Alert{
		UserID:          "u1",
		PolicyType:      model.PolicySection301,
		Severity:        model.SeverityHigh,
		CostImpact:      100_000,
		OldCost:         600_000,
		NewCost:         700_000,
		HSCodesAffected: []string{"85423100"},
		CreatedAt:       now,
		ExpiresAt:       now.Add(model.AlertTTL),
	}

	created, err := s.InsertAlert(ctx, alert)
	require.NoError(t, err)
	assert.True(t, created)

	// Second insert inside the dedup window is suppressed.
	dup := alert
	dup.ID = ""
	dup.CreatedAt = now.Add(24 * time.Hour)
	created, err = s.InsertAlert(ctx, dup)
	require.NoError(t, err)
	assert.False(t, created)

	// A different policy type for the same user is a fresh alert.
	other := alert
	other.ID = ""
	other.PolicyType = model.PolicyMFNRate
	created, err = s.InsertAlert(ctx, other)
	require.NoError(t, err)
	assert.True(t, created)

	// Outside the window the same (user, policy type) alerts again.
	late := alert
	late.ID = ""
	late.CreatedAt = now.Add(8 * 24 * time.Hour)
	late.ExpiresAt = late.CreatedAt.Add(model.AlertTTL)
	created, err = s.InsertAlert(ctx, late)
	require.NoError(t, err)
	assert.True(t, created)

	alerts, err := s.ListAlerts(ctx, "u1", false)
	require.NoError(t, err)
	assert.Len(t, alerts, 3)

	// Expire everything and sweep.
	_, err = s.db.ExecContext(ctx, `UPDATE alerts SET expires_at = ?`, now.Add(-time.Hour))
	require.NoError(t, err)
	n, err := s.SweepExpiredAlerts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestSQLiteStore_MarkAlertRead(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	now := time.Now().UTC()

	a := model.Alert{
		ID:         "a1",
		UserID:     "u1",
		PolicyType: model.PolicySection232,
		Severity:   model.SeverityLow,
		CreatedAt:  now,
		ExpiresAt:  now.Add(model.AlertTTL),
	}
	created, err := s.InsertAlert(ctx, a)
	require.NoError(t, err)
	require.True(t, created)

	require.NoError(t, s.MarkAlertRead(ctx, "a1", true))

	unread, err := s.ListAlerts(ctx, "u1", true)
	require.NoError(t, err)
	assert.Empty(t, unread)

	all, err := s.ListAlerts(ctx, "u1", false)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.True(t, all[0].IsRead)

	err = s.MarkAlertRead(ctx, "missing", true)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_RecordIngest(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	err := s.RecordIngest(ctx, model.IngestLog{
		PolicyType:        model.PolicySection301,
		Source:            "USTR",
		Confidence:        0.92,
		AlertsCreated:     4,
		TotalCostIncrease: 250_000,
	})
	require.NoError(t, err)

	var count int
	require.NoError(t, s.db.QueryRowContext(ctx, `SELECT count(*) FROM ingest_log`).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestSQLiteStore_TreatyRatesKeyedByCodeAndCountry(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	const upsert = `INSERT INTO treaty_rates (hs_code, mfn_rate, usmca_rate, savings_percentage, country)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (hs_code, country) DO UPDATE SET
			mfn_rate = excluded.mfn_rate,
			usmca_rate = excluded.usmca_rate,
			savings_percentage = excluded.savings_percentage`

	_, err := s.db.ExecContext(ctx, upsert, "8542.31.00", 25.0, 0.0, 25.0, "MX")
	require.NoError(t, err)
	_, err = s.db.ExecContext(ctx, upsert, "8542.31.00", 18.0, 0.0, 18.0, "CA")
	require.NoError(t, err)

	// Reloading the same schedule replaces the row instead of erroring.
	_, err = s.db.ExecContext(ctx, upsert, "8542.31.00", 30.0, 5.0, 25.0, "MX")
	require.NoError(t, err)

	var count int
	require.NoError(t, s.db.QueryRowContext(ctx, `SELECT count(*) FROM treaty_rates`).Scan(&count))
	assert.Equal(t, 2, count)

	var mfn float64
	require.NoError(t, s.db.QueryRowContext(ctx,
		`SELECT mfn_rate FROM treaty_rates WHERE hs_code = ? AND country = ?`,
		"8542.31.00", "MX").Scan(&mfn))
	assert.Equal(t, 30.0, mfn)
}
