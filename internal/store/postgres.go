package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/tariffwatch/internal/db"
	"github.com/sells-group/tariffwatch/internal/db/schema"
	"github.com/sells-group/tariffwatch/internal/model"
)

// PostgresStore implements Store using pgxpool. All queries route their
// table/column references through the schema guard before execution.
type PostgresStore struct {
	pool    db.Pool
	guard   *schema.Registry
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hot paths.
var preparedStatements = map[string]string{
	"list_profiles":  `SELECT id, user_id, workflow_id, components, trade_volume FROM trade_profiles`,
	"get_subscriber": `SELECT user_id, subscription_tier, email_alerts_enabled FROM subscribers WHERE user_id = $1`,
	"insert_alert": `INSERT INTO alerts (id, user_id, policy_type, severity, cost_impact, old_cost, new_cost, hs_codes_affected, mexico_sourcing_savings, is_read, created_at, expires_at)
		SELECT $1, $2, $3, $4, $5, $6, $7, $8, $9, false, $10, $11
		WHERE NOT EXISTS (
			SELECT 1 FROM alerts WHERE user_id = $2 AND policy_type = $3 AND created_at > $12
		)`,
	"mark_alert_read": `UPDATE alerts SET is_read = $1 WHERE id = $2`,
	"sweep_alerts":    `DELETE FROM alerts WHERE expires_at <= $1`,
	"record_ingest":   `INSERT INTO ingest_log (id, policy_type, source, url, confidence, quarantined, alerts_created, total_cost_increase, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig, guard *schema.Registry) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, guard: guard, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool for subsystems that need
// direct query access (the resolution engine's source, the dataset loader).
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS hts_classifications (
	hs_code     TEXT PRIMARY KEY,
	description TEXT NOT NULL DEFAULT '',
	chapter     TEXT NOT NULL DEFAULT '',
	mfn_rate    DOUBLE PRECISION NOT NULL DEFAULT 0,
	usmca_rate  DOUBLE PRECISION NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS treaty_rates (
	hs_code            TEXT NOT NULL,
	mfn_rate           DOUBLE PRECISION NOT NULL DEFAULT 0,
	usmca_rate         DOUBLE PRECISION NOT NULL DEFAULT 0,
	savings_percentage DOUBLE PRECISION NOT NULL DEFAULT 0,
	country            TEXT NOT NULL DEFAULT 'US',
	PRIMARY KEY (hs_code, country)
);

CREATE TABLE IF NOT EXISTS dataset_state (
	name        TEXT PRIMARY KEY,
	etag        TEXT NOT NULL DEFAULT '',
	last_synced TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS trade_profiles (
	id           TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	user_id      TEXT NOT NULL,
	workflow_id  TEXT NOT NULL DEFAULT '',
	components   JSONB NOT NULL DEFAULT '[]',
	trade_volume DOUBLE PRECISION NOT NULL DEFAULT 0,
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS subscribers (
	user_id              TEXT PRIMARY KEY,
	subscription_tier    TEXT NOT NULL DEFAULT 'free',
	email_alerts_enabled BOOLEAN NOT NULL DEFAULT true
);

CREATE TABLE IF NOT EXISTS alerts (
	id                      TEXT PRIMARY KEY,
	user_id                 TEXT NOT NULL,
	policy_type             TEXT NOT NULL,
	severity                TEXT NOT NULL,
	cost_impact             DOUBLE PRECISION NOT NULL,
	old_cost                DOUBLE PRECISION NOT NULL,
	new_cost                DOUBLE PRECISION NOT NULL,
	hs_codes_affected       JSONB NOT NULL DEFAULT '[]',
	mexico_sourcing_savings DOUBLE PRECISION NOT NULL DEFAULT 0,
	is_read                 BOOLEAN NOT NULL DEFAULT false,
	created_at              TIMESTAMPTZ NOT NULL,
	expires_at              TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS ingest_log (
	id                  TEXT PRIMARY KEY,
	policy_type         TEXT NOT NULL,
	source              TEXT NOT NULL DEFAULT '',
	url                 TEXT NOT NULL DEFAULT '',
	confidence          DOUBLE PRECISION NOT NULL,
	quarantined         BOOLEAN NOT NULL DEFAULT false,
	alerts_created      INTEGER NOT NULL DEFAULT 0,
	total_cost_increase DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at          TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trade_profiles_user_id ON trade_profiles(user_id);
CREATE INDEX IF NOT EXISTS idx_alerts_user_policy_created ON alerts(user_id, policy_type, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_alerts_expires_at ON alerts(expires_at);
CREATE INDEX IF NOT EXISTS idx_hts_mfn ON hts_classifications(mfn_rate DESC, hs_code ASC);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresMigration); err != nil {
		return eris.Wrap(err, "postgres: migrate")
	}
	return nil
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) ListTradeProfiles(ctx context.Context) ([]model.TradeProfile, error) {
	if err := s.guard.CheckQuery("select", "trade_profiles", "id", "user_id", "workflow_id", "components", "trade_volume"); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, preparedStatements["list_profiles"])
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list trade profiles")
	}
	defer rows.Close()

	var profiles []model.TradeProfile
	for rows.Next() {
		var p model.TradeProfile
		var componentsJSON []byte
		if err := rows.Scan(&p.ID, &p.UserID, &p.WorkflowID, &componentsJSON, &p.TradeVolume); err != nil {
			return nil, eris.Wrap(err, "postgres: scan trade profile")
		}
		components, err := s.decodeComponents(componentsJSON)
		if err != nil {
			// A malformed profile is skipped, not fatal to the listing.
			zap.L().Warn("postgres: skipping profile with malformed components",
				zap.String("profile_id", p.ID),
				zap.Error(err),
			)
			continue
		}
		p.Components = components
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate trade profiles")
	}
	return profiles, nil
}

// decodeComponents reads the JSONB payload through the field-validating
// accessor so schema drift inside the JSON is caught here, loudly.
func (s *PostgresStore) decodeComponents(raw []byte) ([]model.Component, error) {
	docs, err := s.guard.WrapJSONArray("trade_profiles", "components", raw)
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

func (s *PostgresStore) GetSubscriber(ctx context.Context, userID string) (*model.Subscriber, error) {
	if err := s.guard.CheckQuery("select", "subscribers", "user_id", "subscription_tier", "email_alerts_enabled"); err != nil {
		return nil, err
	}

	var sub model.Subscriber
	err := s.pool.QueryRow(ctx, preparedStatements["get_subscriber"], userID).
		Scan(&sub.UserID, &sub.SubscriptionTier, &sub.EmailAlertsEnabled)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get subscriber")
	}
	return &sub, nil
}

func (s *PostgresStore) InsertAlert(ctx context.Context, a model.Alert) (bool, error) {
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
		return false, eris.Wrap(err, "postgres: marshal hs codes")
	}

	dedupCutoff := a.CreatedAt.Add(-model.DedupWindow)
	tag, err := s.pool.Exec(ctx, preparedStatements["insert_alert"],
		a.ID, a.UserID, string(a.PolicyType), string(a.Severity),
		a.CostImpact, a.OldCost, a.NewCost, codesJSON,
		a.MexicoSourcingSavings, a.CreatedAt, a.ExpiresAt, dedupCutoff,
	)
	if err != nil {
		return false, eris.Wrap(err, "postgres: insert alert")
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) ListAlerts(ctx context.Context, userID string, unreadOnly bool) ([]model.Alert, error) {
	if err := s.guard.CheckQuery("select", "alerts",
		"id", "user_id", "policy_type", "severity", "cost_impact", "old_cost", "new_cost",
		"hs_codes_affected", "mexico_sourcing_savings", "is_read", "created_at", "expires_at"); err != nil {
		return nil, err
	}

	sql := `SELECT id, user_id, policy_type, severity, cost_impact, old_cost, new_cost, hs_codes_affected, mexico_sourcing_savings, is_read, created_at, expires_at
		FROM alerts WHERE user_id = $1`
	if unreadOnly {
		sql += ` AND is_read = false`
	}
	sql += ` ORDER BY created_at DESC`

	rows, err := s.pool.Query(ctx, sql, userID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list alerts")
	}
	defer rows.Close()

	var alerts []model.Alert
	for rows.Next() {
		var a model.Alert
		var codesJSON []byte
		if err := rows.Scan(&a.ID, &a.UserID, &a.PolicyType, &a.Severity,
			&a.CostImpact, &a.OldCost, &a.NewCost, &codesJSON,
			&a.MexicoSourcingSavings, &a.IsRead, &a.CreatedAt, &a.ExpiresAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan alert")
		}
		if err := json.Unmarshal(codesJSON, &a.HSCodesAffected); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal hs codes")
		}
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate alerts")
	}
	return alerts, nil
}

func (s *PostgresStore) MarkAlertRead(ctx context.Context, alertID string, read bool) error {
	if err := s.guard.CheckQuery("update", "alerts", "is_read", "id"); err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx, preparedStatements["mark_alert_read"], read, alertID)
	if err != nil {
		return eris.Wrap(err, "postgres: mark alert read")
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: alert %s", alertID)
	}
	return nil
}

func (s *PostgresStore) SweepExpiredAlerts(ctx context.Context) (int64, error) {
	if err := s.guard.CheckQuery("delete", "alerts", "expires_at"); err != nil {
		return 0, err
	}

	tag, err := s.pool.Exec(ctx, preparedStatements["sweep_alerts"], time.Now().UTC())
	if err != nil {
		return 0, eris.Wrap(err, "postgres: sweep expired alerts")
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) RecordIngest(ctx context.Context, entry model.IngestLog) error {
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

	_, err := s.pool.Exec(ctx, preparedStatements["record_ingest"],
		entry.ID, string(entry.PolicyType), entry.Source, entry.URL,
		entry.Confidence, entry.Quarantined, entry.AlertsCreated,
		entry.TotalCostIncrease, entry.CreatedAt,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: record ingest")
	}
	return nil
}
