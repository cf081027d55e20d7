package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/sells-group/tariffwatch/internal/db/schema"
	"github.com/sells-group/tariffwatch/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite, for single-node
// deployments and local development.
type SQLiteStore struct {
	db    *sql.DB
	guard *schema.Registry
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string, guard *schema.Registry) (*SQLiteStore, error) {
	sdb, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := sdb.Exec(pragma); err != nil {
			sdb.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: sdb, guard: guard}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS hts_classifications (
	hs_code     TEXT PRIMARY KEY,
	description TEXT NOT NULL DEFAULT '',
	chapter     TEXT NOT NULL DEFAULT '',
	mfn_rate    REAL NOT NULL DEFAULT 0,
	usmca_rate  REAL NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS treaty_rates (
	hs_code            TEXT NOT NULL,
	mfn_rate           REAL NOT NULL DEFAULT 0,
	usmca_rate         REAL NOT NULL DEFAULT 0,
	savings_percentage REAL NOT NULL DEFAULT 0,
	country            TEXT NOT NULL DEFAULT 'US',
	PRIMARY KEY (hs_code, country)
);

CREATE TABLE IF NOT EXISTS dataset_state (
	name        TEXT PRIMARY KEY,
	etag        TEXT NOT NULL DEFAULT '',
	last_synced TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS trade_profiles (
	id           TEXT PRIMARY KEY,
	user_id      TEXT NOT NULL,
	workflow_id  TEXT NOT NULL DEFAULT '',
	components   TEXT NOT NULL DEFAULT '[]',
	trade_volume REAL NOT NULL DEFAULT 0,
	updated_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS subscribers (
	user_id              TEXT PRIMARY KEY,
	subscription_tier    TEXT NOT NULL DEFAULT 'free',
	email_alerts_enabled INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS alerts (
	id                      TEXT PRIMARY KEY,
	user_id                 TEXT NOT NULL,
	policy_type             TEXT NOT NULL,
	severity                TEXT NOT NULL,
	cost_impact             REAL NOT NULL,
	old_cost                REAL NOT NULL,
	new_cost                REAL NOT NULL,
	hs_codes_affected       TEXT NOT NULL DEFAULT '[]',
	mexico_sourcing_savings REAL NOT NULL DEFAULT 0,
	is_read                 INTEGER NOT NULL DEFAULT 0,
	created_at              DATETIME NOT NULL,
	expires_at              DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS ingest_log (
	id                  TEXT PRIMARY KEY,
	policy_type         TEXT NOT NULL,
	source              TEXT NOT NULL DEFAULT '',
	url                 TEXT NOT NULL DEFAULT '',
	confidence          REAL NOT NULL,
	quarantined         INTEGER NOT NULL DEFAULT 0,
	alerts_created      INTEGER NOT NULL DEFAULT 0,
	total_cost_increase REAL NOT NULL DEFAULT 0,
	created_at          DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trade_profiles_user_id ON trade_profiles(user_id);
CREATE INDEX IF NOT EXISTS idx_alerts_user_policy_created ON alerts(user_id, policy_type, created_at);
CREATE INDEX IF NOT EXISTS idx_alerts_expires_at ON alerts(expires_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// DB exposes the raw handle for the dataset loader and tests.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

func (s *SQLiteStore) ListTradeProfiles(ctx context.Context) ([]model.TradeProfile, error) {
	if err := s.guard.CheckQuery("select", "trade_profiles", "id", "user_id", "workflow_id", "components", "trade_volume"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, workflow_id, components, trade_volume FROM trade_profiles`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list trade profiles")
	}
	defer rows.Close()

	var profiles []model.TradeProfile
	for rows.Next() {
		var p model.TradeProfile
		var componentsJSON string
		if err := rows.Scan(&p.ID, &p.UserID, &p.WorkflowID, &componentsJSON, &p.TradeVolume); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan trade profile")
		}
		components, err := decodeComponents(s.guard, []byte(componentsJSON))
		if err != nil {
			zap.L().Warn("sqlite: skipping profile with malformed components",
				zap.String("profile_id", p.ID),
				zap.Error(err),
			)
			continue
		}
		p.Components = components
		profiles = append(profiles, p)
	}
	return profiles, eris.Wrap(rows.Err(), "sqlite: iterate trade profiles")
}

func decodeComponents(guard *schema.Registry, raw []byte) ([]model.Component, error) {
	docs, err := guard.WrapJSONArray("trade_profiles", "components", raw)
	if err != nil {
		return nil, err
	}
	components := make([]model.Component, 0, len(docs))
	for _, doc := range docs {
		var c model.Component
		if c.HSCode, err = doc.String("hs_code"); err != nil {
			return nil, err
		}
		if c.ValuePercentage, err = doc.Float("value_percentage"); err != nil {
			return nil, err
		}
		if c.Description, err = doc.String("description"); err != nil {
			return nil, err
		}
		if c.Value, err = doc.Float("value"); err != nil {
			return nil, err
		}
		components = append(components, c)
	}
	return components, nil
}

func (s *SQLiteStore) GetSubscriber(ctx context.Context, userID string) (*model.Subscriber, error) {
	if err := s.guard.CheckQuery("select", "subscribers", "user_id", "subscription_tier", "email_alerts_enabled"); err != nil {
		return nil, err
	}

	var sub model.Subscriber
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, subscription_tier, email_alerts_enabled FROM subscribers WHERE user_id = ?`,
		userID,
	).Scan(&sub.UserID, &sub.SubscriptionTier, &sub.EmailAlertsEnabled)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get subscriber")
	}
	return &sub, nil
}

func (s *SQLiteStore) InsertAlert(ctx context.Context, a model.Alert) (bool, error) {
	if err := s.guard.CheckQuery("insert", "alerts",
		"id", "user_id", "policy_type", "severity", "cost_impact", "old_cost", "new_cost",
		"hs_codes_affected", "mexico_sourcing_savings", "is_read", "created_at", "expires_at"); err != nil {
		return false, err
	}

	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	codesJSON, err := json.Marshal(a.HSCodesAffected)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: marshal hs codes")
	}

	dedupCutoff := a.CreatedAt.Add(-model.DedupWindow)
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO alerts (id, user_id, policy_type, severity, cost_impact, old_cost, new_cost, hs_codes_affected, mexico_sourcing_savings, is_read, created_at, expires_at)
		SELECT ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?
		WHERE NOT EXISTS (
			SELECT 1 FROM alerts WHERE user_id = ? AND policy_type = ? AND created_at > ?
		)`,
		a.ID, a.UserID, string(a.PolicyType), string(a.Severity),
		a.CostImpact, a.OldCost, a.NewCost, string(codesJSON),
		a.MexicoSourcingSavings, a.CreatedAt, a.ExpiresAt,
		a.UserID, string(a.PolicyType), dedupCutoff,
	)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: insert alert")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: insert alert rows affected")
	}
	return n == 1, nil
}

func (s *SQLiteStore) ListAlerts(ctx context.Context, userID string, unreadOnly bool) ([]model.Alert, error) {
	if err := s.guard.CheckQuery("select", "alerts",
		"id", "user_id", "policy_type", "severity", "cost_impact", "old_cost", "new_cost",
		"hs_codes_affected", "mexico_sourcing_savings", "is_read", "created_at", "expires_at"); err != nil {
		return nil, err
	}

	q := `SELECT id, user_id, policy_type, severity, cost_impact, old_cost, new_cost, hs_codes_affected, mexico_sourcing_savings, is_read, created_at, expires_at
		FROM alerts WHERE user_id = ?`
	if unreadOnly {
		q += ` AND is_read = 0`
	}
	q += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list alerts")
	}
	defer rows.Close()

	var alerts []model.Alert
	for rows.Next() {
		var a model.Alert
		var codesJSON string
		if err := rows.Scan(&a.ID, &a.UserID, &a.PolicyType, &a.Severity,
			&a.CostImpact, &a.OldCost, &a.NewCost, &codesJSON,
			&a.MexicoSourcingSavings, &a.IsRead, &a.CreatedAt, &a.ExpiresAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan alert")
		}
		if err := json.Unmarshal([]byte(codesJSON), &a.HSCodesAffected); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal hs codes")
		}
		alerts = append(alerts, a)
	}
	return alerts, eris.Wrap(rows.Err(), "sqlite: iterate alerts")
}

func (s *SQLiteStore) MarkAlertRead(ctx context.Context, alertID string, read bool) error {
	if err := s.guard.CheckQuery("update", "alerts", "is_read", "id"); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `UPDATE alerts SET is_read = ? WHERE id = ?`, read, alertID)
	if err != nil {
		return eris.Wrap(err, "sqlite: mark alert read")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: mark alert read rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "sqlite: alert %s", alertID)
	}
	return nil
}

func (s *SQLiteStore) SweepExpiredAlerts(ctx context.Context) (int64, error) {
	if err := s.guard.CheckQuery("delete", "alerts", "expires_at"); err != nil {
		return 0, err
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM alerts WHERE expires_at <= ?`, time.Now().UTC())
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: sweep expired alerts")
	}
	n, err := res.RowsAffected()
	return n, eris.Wrap(err, "sqlite: sweep rows affected")
}

func (s *SQLiteStore) RecordIngest(ctx context.Context, entry model.IngestLog) error {
	if err := s.guard.CheckQuery("insert", "ingest_log",
		"id", "policy_type", "source", "url", "confidence", "quarantined",
		"alerts_created", "total_cost_increase", "created_at"); err != nil {
		return err
	}

	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ingest_log (id, policy_type, source, url, confidence, quarantined, alerts_created, total_cost_increase, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, string(entry.PolicyType), entry.Source, entry.URL,
		entry.Confidence, entry.Quarantined, entry.AlertsCreated,
		entry.TotalCostIncrease, entry.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: record ingest")
}
