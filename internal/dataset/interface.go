// Package dataset downloads government tariff schedules and loads them
// into the classification tables via bulk upsert.
package dataset

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/tariffwatch/internal/db"
	"github.com/sells-group/tariffwatch/internal/fetcher"
)

// SyncResult holds the outcome of one dataset load.
type SyncResult struct {
	RowsSynced int64          `json:"rows_synced"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Dataset is one loadable tariff source.
type Dataset interface {
	// Name is the unique identifier used on the command line (e.g. "hts").
	Name() string

	// Table is the primary target table.
	Table() string

	// Sync downloads, parses, and upserts the dataset. tempDir is a
	// working directory for downloaded archives.
	Sync(ctx context.Context, pool db.Pool, f fetcher.Fetcher, tempDir string) (*SyncResult, error)
}

// Registry holds the known datasets in registration order.
type Registry struct {
	datasets []Dataset
	byName   map[string]Dataset
	optional map[string]bool
}

// NewRegistry creates a registry with the standard datasets. sources maps
// dataset names to override URLs (mirrors, FTP endpoints); nil uses the
// published defaults.
func NewRegistry(sources map[string]string) *Registry {
	r := &Registry{byName: map[string]Dataset{}, optional: map[string]bool{}}
	r.Register(&HTS{URL: sources["hts"]})
	r.Register(&USMCATreaty{URL: sources["usmca"]})
	// The archive replace-load drops retired codes, so it only runs when
	// asked for by name.
	r.RegisterOptional(&HTSArchive{URL: sources["hts-archive"]})
	return r
}

// Register adds a dataset to the default run.
func (r *Registry) Register(d Dataset) {
	r.datasets = append(r.datasets, d)
	r.byName[d.Name()] = d
}

// RegisterOptional adds a dataset that is loaded only when selected
// explicitly.
func (r *Registry) RegisterOptional(d Dataset) {
	r.Register(d)
	r.optional[d.Name()] = true
}

// Select returns the named datasets, or the default set when names is
// empty.
func (r *Registry) Select(names []string) ([]Dataset, error) {
	if len(names) == 0 {
		var out []Dataset
		for _, d := range r.datasets {
			if !r.optional[d.Name()] {
				out = append(out, d)
			}
		}
		return out, nil
	}
	var out []Dataset
	for _, name := range names {
		d, ok := r.byName[name]
		if !ok {
			return nil, eris.Errorf("dataset: unknown dataset %q", name)
		}
		out = append(out, d)
	}
	return out, nil
}

// Names lists the registered dataset names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.datasets))
	for _, d := range r.datasets {
		names = append(names, d.Name())
	}
	return names
}
