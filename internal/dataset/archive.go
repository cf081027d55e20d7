package dataset

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/tariffwatch/internal/db"
	"github.com/sells-group/tariffwatch/internal/fetcher"
)

const htsArchiveURL = "https://hts.usitc.gov/sites/default/files/export/hts_current_csv.zip"

// HTSArchive loads a full-schedule revision archive (zipped CSV) into
// hts_classifications as a replace-load: the table is truncated and the
// snapshot copied in whole. Unlike the incremental "hts" dataset this
// drops codes retired in the new revision, so it is not part of the
// default run and is selected explicitly. Revision archives are also the
// format CBP's FTP mirrors publish, so URL may be an ftp:// address.
type HTSArchive struct {
	URL string

	hts HTS
}

func (d *HTSArchive) Name() string  { return "hts-archive" }
func (d *HTSArchive) Table() string { return "hts_classifications" }

func (d *HTSArchive) sourceURL() string {
	if d.URL != "" {
		return d.URL
	}
	return htsArchiveURL
}

func (d *HTSArchive) Sync(ctx context.Context, pool db.Pool, f fetcher.Fetcher, tempDir string) (*SyncResult, error) {
	log := zap.L().With(zap.String("dataset", d.Name()))
	sourceURL := d.sourceURL()

	zipPath := filepath.Join(tempDir, "hts_archive.zip")
	if _, err := f.DownloadToFile(ctx, sourceURL, zipPath); err != nil {
		return nil, eris.Wrap(err, "dataset: download hts archive")
	}

	extracted, err := fetcher.ExtractZIP(zipPath, tempDir)
	if err != nil {
		return nil, eris.Wrap(err, "dataset: extract hts archive")
	}
	csvPath := ""
	for _, path := range extracted {
		if strings.EqualFold(filepath.Ext(path), ".csv") {
			csvPath = path
			break
		}
	}
	if csvPath == "" {
		return nil, eris.Errorf("dataset: no csv file in archive from %s", sourceURL)
	}

	rows, skipped, err := d.parseCSV(ctx, csvPath)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, eris.Errorf("dataset: archive from %s parsed to zero rows, refusing to truncate", sourceURL)
	}

	n, err := d.replaceLoad(ctx, pool, rows)
	if err != nil {
		return nil, err
	}

	log.Info("hts archive loaded", zap.Int64("rows", n), zap.Int64("skipped", skipped))
	return &SyncResult{
		RowsSynced: n,
		Metadata:   map[string]any{"skipped": skipped, "source": sourceURL},
	}, nil
}

func (d *HTSArchive) parseCSV(ctx context.Context, csvPath string) (rows [][]any, skipped int64, err error) {
	file, err := os.Open(csvPath)
	if err != nil {
		return nil, 0, eris.Wrap(err, "dataset: open archive csv")
	}
	defer file.Close() //nolint:errcheck

	headerCh := make(chan []string, 1)
	rowCh, errCh := fetcher.StreamCSV(ctx, file, fetcher.CSVOptions{
		HasHeader: true,
		HeaderCh:  headerCh,
		TrimSpace: true,
	})

	var idx map[string]int
	select {
	case header := <-headerCh:
		idx, err = htsColumnIndex(header)
		if err != nil {
			return nil, 0, err
		}
	case streamErr := <-errCh:
		return nil, 0, eris.Wrap(streamErr, "dataset: hts archive header")
	}

	for record := range rowCh {
		row, ok := d.hts.parseRow(record, idx)
		if !ok {
			skipped++
			continue
		}
		rows = append(rows, row)
	}
	if streamErr := <-errCh; streamErr != nil {
		return nil, skipped, eris.Wrap(streamErr, "dataset: hts archive stream")
	}
	return rows, skipped, nil
}

// replaceLoad swaps the table contents in one transaction, so readers see
// either the old revision or the new one, never an empty table.
func (d *HTSArchive) replaceLoad(ctx context.Context, pool db.Pool, rows [][]any) (int64, error) {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "dataset: archive: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `TRUNCATE hts_classifications`); err != nil {
		return 0, eris.Wrap(err, "dataset: archive: truncate")
	}

	n, err := db.CopyFrom(ctx, tx, d.Table(),
		[]string{"hs_code", "description", "chapter", "mfn_rate", "usmca_rate"}, rows)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "dataset: archive: commit tx")
	}
	return n, nil
}
