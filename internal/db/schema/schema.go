// Package schema validates table and column references before they reach
// the database. A misspelled column in a hand-written query would otherwise
// surface as an empty result set; the registry turns it into a descriptive
// error naming the offending reference and, where known, the correct name.
package schema

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

//go:embed registry.yaml
var registryYAML []byte

// TableSchema describes one table: its allowed columns, which columns hold
// JSON payloads (and the allowed fields inside them), and corrective hints
// for historically common wrong names.
type TableSchema struct {
	Columns     []string            `yaml:"columns"`
	JSONColumns map[string][]string `yaml:"json_columns"`
	Hints       map[string]string   `yaml:"hints"`

	columnSet map[string]bool
}

// Registry is the static schema registry for the tariff data store.
type Registry struct {
	Tables map[string]*TableSchema `yaml:"tables"`
}

// Load parses the embedded registry. It is cheap enough to call once at
// startup and share.
func Load() (*Registry, error) {
	var r Registry
	if err := yaml.Unmarshal(registryYAML, &r); err != nil {
		return nil, eris.Wrap(err, "schema: parse registry")
	}
	for name, ts := range r.Tables {
		if ts == nil || len(ts.Columns) == 0 {
			return nil, eris.Errorf("schema: table %s has no columns", name)
		}
		ts.columnSet = make(map[string]bool, len(ts.Columns))
		for _, c := range ts.Columns {
			ts.columnSet[c] = true
		}
	}
	return &r, nil
}

// MustLoad is Load for package-level initialization of a registry that is
// known to be well-formed (it is embedded and covered by tests).
func MustLoad() *Registry {
	r, err := Load()
	if err != nil {
		panic(err)
	}
	return r
}

// Table returns the schema for a table, or a descriptive error listing the
// known tables when it does not exist.
func (r *Registry) Table(name string) (*TableSchema, error) {
	ts, ok := r.Tables[name]
	if ok {
		return ts, nil
	}
	known := make([]string, 0, len(r.Tables))
	for t := range r.Tables {
		known = append(known, t)
	}
	sort.Strings(known)
	return nil, eris.Errorf("schema: unknown table %q (known tables: %s)", name, strings.Join(known, ", "))
}

// CheckColumns validates every referenced column against the table's
// allow-list. Violations are configuration errors and are never masked as
// empty data.
func (r *Registry) CheckColumns(table string, cols ...string) error {
	ts, err := r.Table(table)
	if err != nil {
		return err
	}
	for _, col := range cols {
		if ts.columnSet[col] {
			continue
		}
		if hint, ok := ts.Hints[col]; ok {
			return eris.Errorf("schema: table %s has no column %q: %s", table, col, hint)
		}
		return eris.Errorf("schema: table %s has no column %q (allowed: %s)",
			table, col, strings.Join(ts.Columns, ", "))
	}
	return nil
}

// CheckQuery validates a table reference plus the columns used by one
// select/insert/update/filter operation. op is only used in the error text.
func (r *Registry) CheckQuery(op, table string, cols ...string) error {
	if err := r.CheckColumns(table, cols...); err != nil {
		return eris.Wrap(err, fmt.Sprintf("schema: %s %s", op, table))
	}
	return nil
}
