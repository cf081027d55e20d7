package dataset

import (
	"context"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/tariffwatch/internal/db"
	"github.com/sells-group/tariffwatch/internal/fetcher"
	"github.com/sells-group/tariffwatch/internal/hscode"
)

const (
	htsExportURL = "https://hts.usitc.gov/api/export?format=csv&styles=false"
	htsBatchSize = 5000
)

// HTS loads the current Harmonized Tariff Schedule export into
// hts_classifications. Codes are stored in compact digit form. URL
// overrides the default export endpoint, for operators loading from a
// mirror.
type HTS struct {
	URL string
}

func (d *HTS) Name() string  { return "hts" }
func (d *HTS) Table() string { return "hts_classifications" }

func (d *HTS) sourceURL() string {
	if d.URL != "" {
		return d.URL
	}
	return htsExportURL
}

// htsColumnIndex maps the export's header names to positions. The export
// has renamed columns across revisions, so both spellings are accepted.
func htsColumnIndex(header []string) (map[string]int, error) {
	aliases := map[string]string{
		"htsno":        "hts_number",
		"hts_number":   "hts_number",
		"description":  "description",
		"general":      "mfn_rate",
		"general_rate": "mfn_rate",
		"special":      "special_rate",
		"special_rate": "special_rate",
	}
	idx := map[string]int{}
	for i, name := range header {
		if canonical, ok := aliases[normalizeHeader(name)]; ok {
			idx[canonical] = i
		}
	}
	for _, required := range []string{"hts_number", "mfn_rate"} {
		if _, ok := idx[required]; !ok {
			return nil, eris.Errorf("dataset: hts export missing %s column", required)
		}
	}
	return idx, nil
}

func (d *HTS) Sync(ctx context.Context, pool db.Pool, f fetcher.Fetcher, _ string) (*SyncResult, error) {
	log := zap.L().With(zap.String("dataset", d.Name()))
	sourceURL := d.sourceURL()

	body, newETag, err := d.download(ctx, pool, f, sourceURL)
	if err != nil {
		return nil, err
	}
	if body == nil {
		log.Info("hts export unchanged since last sync, skipping")
		return &SyncResult{RowsSynced: 0, Metadata: map[string]any{"changed": false}}, nil
	}
	defer body.Close() //nolint:errcheck

	total, skipped, err := d.load(ctx, pool, body)
	if err != nil {
		return nil, err
	}

	if newETag != "" {
		if err := saveETag(ctx, pool, d.Name(), newETag); err != nil {
			// The rows are committed; a stale etag only costs one
			// redundant download on the next run.
			log.Warn("hts etag not recorded", zap.Error(err))
		}
	}

	log.Info("hts schedule loaded", zap.Int64("rows", total), zap.Int64("skipped", skipped))
	return &SyncResult{
		RowsSynced: total,
		Metadata:   map[string]any{"skipped": skipped, "source": sourceURL},
	}, nil
}

// download uses an ETag-conditional request when the fetcher supports it,
// so an unchanged export is not re-parsed. Returns a nil body when the
// content has not changed.
func (d *HTS) download(ctx context.Context, pool db.Pool, f fetcher.Fetcher, sourceURL string) (io.ReadCloser, string, error) {
	cf, ok := f.(fetcher.ConditionalFetcher)
	if !ok {
		body, err := f.Download(ctx, sourceURL)
		if err != nil {
			return nil, "", eris.Wrap(err, "dataset: download hts export")
		}
		return body, "", nil
	}

	etag, err := loadETag(ctx, pool, d.Name())
	if err != nil {
		zap.L().Warn("dataset state unreadable, downloading unconditionally", zap.Error(err))
		etag = ""
	}
	body, newETag, changed, err := cf.DownloadIfChanged(ctx, sourceURL, etag)
	if err != nil {
		return nil, "", eris.Wrap(err, "dataset: download hts export")
	}
	if !changed {
		return nil, "", nil
	}
	return body, newETag, nil
}

func (d *HTS) load(ctx context.Context, pool db.Pool, r io.Reader) (total, skipped int64, err error) {
	headerCh := make(chan []string, 1)
	rowCh, errCh := fetcher.StreamCSV(ctx, r, fetcher.CSVOptions{
		HasHeader: true,
		HeaderCh:  headerCh,
		TrimSpace: true,
	})

	var idx map[string]int
	select {
	case header := <-headerCh:
		idx, err = htsColumnIndex(header)
		if err != nil {
			return 0, 0, err
		}
	case streamErr := <-errCh:
		return 0, 0, eris.Wrap(streamErr, "dataset: hts export header")
	}

	cfg := db.UpsertConfig{
		Table:        d.Table(),
		Columns:      []string{"hs_code", "description", "chapter", "mfn_rate", "usmca_rate"},
		ConflictKeys: []string{"hs_code"},
	}

	var batch [][]any
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := db.BulkUpsert(ctx, pool, cfg, batch)
		if err != nil {
			return eris.Wrap(err, "dataset: upsert hts batch")
		}
		total += n
		batch = batch[:0]
		return nil
	}

	for record := range rowCh {
		row, ok := d.parseRow(record, idx)
		if !ok {
			skipped++
			continue
		}
		batch = append(batch, row)
		if len(batch) >= htsBatchSize {
			if err := flush(); err != nil {
				return total, skipped, err
			}
		}
	}
	if streamErr := <-errCh; streamErr != nil {
		return total, skipped, eris.Wrap(streamErr, "dataset: hts export stream")
	}
	return total, skipped, flush()
}

// parseRow converts one export record. Heading and chapter rollup lines
// carry no rate and are skipped, as are compound-rate lines.
func (d *HTS) parseRow(record []string, idx map[string]int) ([]any, bool) {
	code := hscode.Normalize(cell(record, idx, "hts_number"))
	if len(code) < 8 {
		return nil, false
	}

	mfn, err := ParseRate(cell(record, idx, "mfn_rate"))
	if err != nil {
		return nil, false
	}
	usmca, err := ParseOptionalRate(cell(record, idx, "special_rate"))
	if err != nil {
		usmca = 0 // unusable special rate, treat as no preference
	}

	return []any{
		code,
		cell(record, idx, "description"),
		hscode.Chapter(code),
		mfn,
		usmca,
	}, true
}

func normalizeHeader(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "_")
}

func cell(record []string, idx map[string]int, name string) string {
	i, ok := idx[name]
	if !ok || i >= len(record) {
		return ""
	}
	return record[i]
}
