package schema

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
)

// JSONDoc is a field-validating accessor over a JSON object read from a
// JSON-structured column. Access to a key outside the column's allowed
// field set returns an error instead of a silent zero value.
type JSONDoc struct {
	table  string
	column string
	fields map[string]bool
	data   map[string]any
}

// WrapJSON parses raw JSON from table.column and wraps it in a validating
// accessor. The column must be declared as a JSON column in the registry.
func (r *Registry) WrapJSON(table, column string, raw []byte) (*JSONDoc, error) {
	ts, err := r.Table(table)
	if err != nil {
		return nil, err
	}
	allowed, ok := ts.JSONColumns[column]
	if !ok {
		return nil, eris.Errorf("schema: column %s.%s is not a JSON column", table, column)
	}

	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, eris.Wrapf(err, "schema: parse %s.%s", table, column)
	}

	fields := make(map[string]bool, len(allowed))
	for _, f := range allowed {
		fields[f] = true
	}
	return &JSONDoc{table: table, column: column, fields: fields, data: data}, nil
}

// WrapJSONArray parses a JSON array of objects from table.column and wraps
// each element.
func (r *Registry) WrapJSONArray(table, column string, raw []byte) ([]*JSONDoc, error) {
	ts, err := r.Table(table)
	if err != nil {
		return nil, err
	}
	allowed, ok := ts.JSONColumns[column]
	if !ok {
		return nil, eris.Errorf("schema: column %s.%s is not a JSON column", table, column)
	}

	var items []map[string]any
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, eris.Wrapf(err, "schema: parse %s.%s array", table, column)
	}

	fields := make(map[string]bool, len(allowed))
	for _, f := range allowed {
		fields[f] = true
	}

	docs := make([]*JSONDoc, len(items))
	for i, item := range items {
		docs[i] = &JSONDoc{table: table, column: column, fields: fields, data: item}
	}
	return docs, nil
}

// Field returns the raw value for an allowed key. A key outside the allowed
// set is a schema-drift error; a missing-but-allowed key returns nil.
func (d *JSONDoc) Field(name string) (any, error) {
	if !d.fields[name] {
		allowed := make([]string, 0, len(d.fields))
		for f := range d.fields {
			allowed = append(allowed, f)
		}
		return nil, eris.Errorf("schema: %s.%s has no field %q (allowed: %s)",
			d.table, d.column, name, strings.Join(allowed, ", "))
	}
	return d.data[name], nil
}

// String returns a string field, tolerating absence as "".
func (d *JSONDoc) String(name string) (string, error) {
	v, err := d.Field(name)
	if err != nil || v == nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", eris.Errorf("schema: %s.%s field %q is not a string", d.table, d.column, name)
	}
	return s, nil
}

// Float returns a numeric field, tolerating absence as 0.
func (d *JSONDoc) Float(name string) (float64, error) {
	v, err := d.Field(name)
	if err != nil || v == nil {
		return 0, err
	}
	f, ok := v.(float64)
	if !ok {
		return 0, eris.Errorf("schema: %s.%s field %q is not a number", d.table, d.column, name)
	}
	return f, nil
}
