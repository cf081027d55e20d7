package dataset

import (
	"context"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/tariffwatch/internal/db"
	"github.com/sells-group/tariffwatch/internal/fetcher"
	"github.com/sells-group/tariffwatch/internal/hscode"
)

const (
	usmcaScheduleURL = "https://www.usitc.gov/sites/default/files/tata/hts/usmca_tariff_schedule.xlsx"
	usmcaCountry     = "MX"
)

// USMCATreaty loads the USMCA preferential rate workbook into
// treaty_rates. The workbook keys rows on dotted 8-digit codes; they are
// stored as published since the resolver queries both encodings.
type USMCATreaty struct {
	URL string
}

func (d *USMCATreaty) Name() string  { return "usmca" }
func (d *USMCATreaty) Table() string { return "treaty_rates" }

func (d *USMCATreaty) sourceURL() string {
	if d.URL != "" {
		return d.URL
	}
	return usmcaScheduleURL
}

func (d *USMCATreaty) Sync(ctx context.Context, pool db.Pool, f fetcher.Fetcher, tempDir string) (*SyncResult, error) {
	log := zap.L().With(zap.String("dataset", d.Name()))

	sourceURL := d.sourceURL()
	path := filepath.Join(tempDir, "usmca_tariff_schedule.xlsx")
	if _, err := f.DownloadToFile(ctx, sourceURL, path); err != nil {
		return nil, eris.Wrap(err, "dataset: download usmca schedule")
	}

	rows, err := fetcher.ReadXLSX(path, fetcher.XLSXOptions{SkipRows: 1})
	if err != nil {
		return nil, eris.Wrap(err, "dataset: read usmca workbook")
	}

	var batch [][]any
	var skipped int64
	for _, row := range rows {
		parsed, ok := d.parseRow(row)
		if !ok {
			skipped++
			continue
		}
		batch = append(batch, parsed)
	}

	n, err := db.BulkUpsert(ctx, pool, db.UpsertConfig{
		Table:        d.Table(),
		Columns:      []string{"hs_code", "mfn_rate", "usmca_rate", "savings_percentage", "country"},
		ConflictKeys: []string{"hs_code", "country"},
	}, batch)
	if err != nil {
		return nil, eris.Wrap(err, "dataset: upsert treaty rates")
	}

	log.Info("usmca schedule loaded", zap.Int64("rows", n), zap.Int64("skipped", skipped))
	return &SyncResult{
		RowsSynced: n,
		Metadata:   map[string]any{"skipped": skipped, "source": sourceURL},
	}, nil
}

// parseRow expects columns: code, mfn rate, usmca rate. Rows without a
// full 8-digit code or with non-ad-valorem rates are skipped.
func (d *USMCATreaty) parseRow(row []string) ([]any, bool) {
	if len(row) < 3 {
		return nil, false
	}

	digits := hscode.Normalize(row[0])
	if len(digits) < 8 {
		return nil, false
	}

	mfn, err := ParseRate(row[1])
	if err != nil {
		return nil, false
	}
	usmca, err := ParseOptionalRate(row[2])
	if err != nil {
		return nil, false
	}

	savings := mfn - usmca
	if savings < 0 {
		savings = 0
	}

	return []any{hscode.Dotted(digits), mfn, usmca, savings, usmcaCountry}, true
}
