package dataset

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/tariffwatch/internal/db"
)

// loadETag returns the ETag recorded on the last successful sync of the
// named dataset, or empty when the dataset has never synced.
func loadETag(ctx context.Context, pool db.Pool, name string) (string, error) {
	var etag string
	err := pool.QueryRow(ctx, `SELECT etag FROM dataset_state WHERE name = $1`, name).Scan(&etag)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", eris.Wrapf(err, "dataset: load etag for %s", name)
	}
	return etag, nil
}

// saveETag records the ETag of a completed sync. Called only after the
// load commits, so a failed load is retried in full on the next run.
func saveETag(ctx context.Context, pool db.Pool, name, etag string) error {
	_, err := pool.Exec(ctx, `
		INSERT INTO dataset_state (name, etag, last_synced) VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE SET etag = EXCLUDED.etag, last_synced = now()`,
		name, etag)
	if err != nil {
		return eris.Wrapf(err, "dataset: save etag for %s", name)
	}
	return nil
}
