// Package table holds CSV data as an indexed, column-oriented table.
//
// A Table is keyed by one column of the source file (the index). Cells are
// typed: inferred columns hold int64, float64, bool or string values, missing
// values are nil, and converter columns hold whatever their converter
// returned. Tables are built by [ReadCSV] and may gain columns through
// [Table.SetColumn]; nothing else mutates them.
package table

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingColumn is returned when a named column is absent.
	ErrMissingColumn = errors.New("column not found")

	// ErrMissingIndex is returned when an index value has no row.
	ErrMissingIndex = errors.New("index value not found")

	// ErrDuplicateIndex is returned by ReadCSV when Options.UniqueIndex is
	// set and an index value repeats.
	ErrDuplicateIndex = errors.New("duplicate index value")
)

// Table is an indexed, column-oriented table.
type Table struct {
	indexName string
	index     []string
	rowOf     map[string]int // first row for each index value

	columns []string
	colOf   map[string]int
	data    [][]any // data[column][row]
}

// New returns an empty table with the given index name and columns.
func New(indexName string, columns []string) *Table {
	t := &Table{
		indexName: indexName,
		rowOf:     make(map[string]int),
		colOf:     make(map[string]int, len(columns)),
	}
	for _, c := range columns {
		t.colOf[c] = len(t.columns)
		t.columns = append(t.columns, c)
		t.data = append(t.data, nil)
	}
	return t
}

// Append adds a row. values must align with Columns().
func (t *Table) Append(id string, values []any) error {
	if len(values) != len(t.columns) {
		return fmt.Errorf("row %q has %d values, expected %d", id, len(values), len(t.columns))
	}
	if _, seen := t.rowOf[id]; !seen {
		t.rowOf[id] = len(t.index)
	}
	t.index = append(t.index, id)
	for i, v := range values {
		t.data[i] = append(t.data[i], v)
	}
	return nil
}

// IndexName returns the name of the index column.
func (t *Table) IndexName() string { return t.indexName }

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.index) }

// Index returns a copy of the index values in row order.
func (t *Table) Index() []string {
	return append([]string(nil), t.index...)
}

// Columns returns a copy of the column names, excluding the index.
func (t *Table) Columns() []string {
	return append([]string(nil), t.columns...)
}

// HasColumn reports whether col exists.
func (t *Table) HasColumn(col string) bool {
	_, ok := t.colOf[col]
	return ok
}

// Has reports whether id is an index value.
func (t *Table) Has(id string) bool {
	_, ok := t.rowOf[id]
	return ok
}

// Column returns a copy of one column's values in row order.
func (t *Table) Column(col string) ([]any, error) {
	c, ok := t.colOf[col]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrMissingColumn, col)
	}
	return append([]any(nil), t.data[c]...), nil
}

// Get returns the value at (id, col). When id repeats, the first row wins.
func (t *Table) Get(id, col string) (any, error) {
	c, ok := t.colOf[col]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrMissingColumn, col)
	}
	r, ok := t.rowOf[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrMissingIndex, id)
	}
	return t.data[c][r], nil
}

// Row returns the values of the first row with the given id, keyed by
// column name.
func (t *Table) Row(id string) (map[string]any, error) {
	r, ok := t.rowOf[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrMissingIndex, id)
	}
	return t.rowAt(r), nil
}

func (t *Table) rowAt(r int) map[string]any {
	row := make(map[string]any, len(t.columns))
	for c, name := range t.columns {
		row[name] = t.data[c][r]
	}
	return row
}

// Each calls fn for every row in order and stops at the first error.
func (t *Table) Each(fn func(id string, row map[string]any) error) error {
	for r, id := range t.index {
		if err := fn(id, t.rowAt(r)); err != nil {
			return err
		}
	}
	return nil
}

// SetColumn computes a column from each row's index value, replacing an
// existing column of the same name. If fn fails for any row the table is
// left unchanged.
func (t *Table) SetColumn(name string, fn func(id string) (any, error)) error {
	values := make([]any, len(t.index))
	for r, id := range t.index {
		v, err := fn(id)
		if err != nil {
			return fmt.Errorf("column %q, row %q: %w", name, id, err)
		}
		values[r] = v
	}

	if c, ok := t.colOf[name]; ok {
		t.data[c] = values
		return nil
	}
	t.colOf[name] = len(t.columns)
	t.columns = append(t.columns, name)
	t.data = append(t.data, values)
	return nil
}

// Record is one row in a form suitable for JSON encoding.
type Record struct {
	ID     string         `json:"id"`
	Values map[string]any `json:"values"`
}

// Records returns every row in order.
func (t *Table) Records() []Record {
	out := make([]Record, len(t.index))
	for r, id := range t.index {
		out[r] = Record{ID: id, Values: t.rowAt(r)}
	}
	return out
}
