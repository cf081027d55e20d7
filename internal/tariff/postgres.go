package tariff

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/tariffwatch/internal/db"
	"github.com/sells-group/tariffwatch/internal/db/schema"
)

// PostgresSource reads the primary classification table and the treaty
// rate table. Every query's table and column references pass through the
// schema guard first, so drift fails loudly instead of returning empty
// rows. ORDER BY mfn_rate DESC, hs_code ASC makes row selection
// deterministic regardless of physical row order on replicas.
type PostgresSource struct {
	pool  db.Pool
	guard *schema.Registry
}

// NewPostgresSource creates a source over a pgx pool.
func NewPostgresSource(pool db.Pool, guard *schema.Registry) *PostgresSource {
	return &PostgresSource{pool: pool, guard: guard}
}

const (
	directSQL = `SELECT hs_code, mfn_rate, usmca_rate FROM hts_classifications WHERE hs_code = $1`

	treatySQL = `SELECT hs_code, mfn_rate, usmca_rate, country FROM treaty_rates
		WHERE (hs_code = $1 OR hs_code = $2) AND mfn_rate > 0
		ORDER BY mfn_rate DESC, hs_code ASC LIMIT 1`

	primaryPrefixSQL = `SELECT hs_code, mfn_rate, usmca_rate FROM hts_classifications
		WHERE hs_code LIKE $1 || '%' AND mfn_rate > 0
		ORDER BY mfn_rate DESC, hs_code ASC LIMIT 1`

	// Treaty rows are keyed in assorted dot conventions; comparisons and
	// ordering run over the digits-only form.
	treatyPrefixSQL = `SELECT hs_code, mfn_rate, usmca_rate, country FROM treaty_rates
		WHERE replace(hs_code, '.', '') LIKE $1 || '%' AND mfn_rate > $2
		ORDER BY mfn_rate DESC, replace(hs_code, '.', '') ASC LIMIT 1`
)

func (s *PostgresSource) Direct(ctx context.Context, code string) (*Row, error) {
	if err := s.guard.CheckQuery("select", "hts_classifications", "hs_code", "mfn_rate", "usmca_rate"); err != nil {
		return nil, err
	}

	var row Row
	err := s.pool.QueryRow(ctx, directSQL, code).Scan(&row.HSCode, &row.MFNRate, &row.USMCARate)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "tariff: direct lookup")
	}
	return &row, nil
}

func (s *PostgresSource) Treaty(ctx context.Context, dotted, subheading string) (*Row, error) {
	if err := s.guard.CheckQuery("select", "treaty_rates", "hs_code", "mfn_rate", "usmca_rate", "country"); err != nil {
		return nil, err
	}

	var row Row
	err := s.pool.QueryRow(ctx, treatySQL, dotted, subheading).
		Scan(&row.HSCode, &row.MFNRate, &row.USMCARate, &row.Country)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "tariff: treaty lookup")
	}
	return &row, nil
}

// BestByPrefix queries both tables for the prefix and combines the two
// per-table winners with the same tie-break the SQL uses. A failure in one
// table degrades to the other's answer rather than failing the strategy.
func (s *PostgresSource) BestByPrefix(ctx context.Context, prefix string) (*Row, error) {
	primary, primaryErr := s.primaryPrefix(ctx, prefix)
	secondary, secondaryErr := s.treatyPrefix(ctx, prefix, 0)

	if primaryErr != nil && secondaryErr != nil {
		return nil, eris.Wrap(errors.Join(primaryErr, secondaryErr), "tariff: prefix lookup")
	}
	if primaryErr != nil {
		zap.L().Warn("tariff: primary prefix lookup failed", zap.String("prefix", prefix), zap.Error(primaryErr))
	}
	if secondaryErr != nil {
		zap.L().Warn("tariff: treaty prefix lookup failed", zap.String("prefix", prefix), zap.Error(secondaryErr))
	}

	return betterRow(primary, secondary), nil
}

func (s *PostgresSource) BestByChapter(ctx context.Context, chapter string, minRate float64) (*Row, error) {
	return s.treatyPrefix(ctx, chapter, minRate)
}

func (s *PostgresSource) primaryPrefix(ctx context.Context, prefix string) (*Row, error) {
	if err := s.guard.CheckQuery("select", "hts_classifications", "hs_code", "mfn_rate", "usmca_rate"); err != nil {
		return nil, err
	}

	var row Row
	err := s.pool.QueryRow(ctx, primaryPrefixSQL, prefix).Scan(&row.HSCode, &row.MFNRate, &row.USMCARate)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "tariff: primary prefix")
	}
	return &row, nil
}

func (s *PostgresSource) treatyPrefix(ctx context.Context, prefix string, minRate float64) (*Row, error) {
	if err := s.guard.CheckQuery("select", "treaty_rates", "hs_code", "mfn_rate", "usmca_rate", "country"); err != nil {
		return nil, err
	}

	var row Row
	err := s.pool.QueryRow(ctx, treatyPrefixSQL, prefix, minRate).
		Scan(&row.HSCode, &row.MFNRate, &row.USMCARate, &row.Country)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "tariff: treaty prefix")
	}
	return &row, nil
}
