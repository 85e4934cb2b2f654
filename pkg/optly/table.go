package optly

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// nullMarkers are the cell values treated as missing, matching the NA tokens
// common CSV exporters emit.
var nullMarkers = map[string]struct{}{
	"":          {},
	"#N/A":      {},
	"#N/A N/A":  {},
	"#NA":       {},
	"-1.#IND":   {},
	"-1.#QNAN":  {},
	"-NaN":      {},
	"-nan":      {},
	"1.#IND":    {},
	"1.#QNAN":   {},
	"<NA>":      {},
	"N/A":       {},
	"NA":        {},
	"NULL":      {},
	"NaN":       {},
	"None":      {},
	"n/a":       {},
	"nan":       {},
	"null":      {},
}

// IsNull reports whether a cell value counts as missing.
func IsNull(value string) bool {
	_, ok := nullMarkers[value]

	return ok
}

// Table is an ordered set of named columns over string cells.
type Table struct {
	columns []string
	index   map[string]int
	rows    [][]string
}

// NewTable builds a table. Every row must have one cell per column.
func NewTable(columns []string, rows [][]string) (*Table, error) {
	index, err := buildIndex(columns)
	if err != nil {
		return nil, err
	}

	copied := make([][]string, 0, len(rows))

	for i, row := range rows {
		if len(row) != len(columns) {
			return nil, fmt.Errorf("%w: row %d has %d cells, header has %d", ErrRaggedRow, i+1, len(row), len(columns))
		}

		copied = append(copied, append([]string(nil), row...))
	}

	return &Table{
		columns: append([]string(nil), columns...),
		index:   index,
		rows:    copied,
	}, nil
}

// ReadTable parses delimited text whose first record is the header.
func ReadTable(r io.Reader, delimiter rune) (*Table, error) {
	reader := csv.NewReader(r)
	reader.Comma = delimiter

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrEmptyInput
	}

	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}

	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading rows: %w", err)
	}

	return NewTable(header, records)
}

func buildIndex(columns []string) (map[string]int, error) {
	index := make(map[string]int, len(columns))

	for i, column := range columns {
		if _, exists := index[column]; exists {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateColumn, column)
		}

		index[column] = i
	}

	return index, nil
}

// Columns returns the column names in order.
func (t *Table) Columns() []string {
	return append([]string(nil), t.columns...)
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.rows)
}

// Has reports whether the column exists.
func (t *Table) Has(column string) bool {
	_, ok := t.index[column]

	return ok
}

// Cell returns the raw cell and whether it is non-null. Unknown columns read
// as null.
func (t *Table) Cell(row int, column string) (string, bool) {
	i, ok := t.index[column]
	if !ok {
		return "", false
	}

	value := t.rows[row][i]

	return value, !IsNull(value)
}

// Column returns a copy of one column's cells.
func (t *Table) Column(column string) []string {
	i, ok := t.index[column]
	if !ok {
		return nil
	}

	values := make([]string, len(t.rows))
	for r, row := range t.rows {
		values[r] = row[i]
	}

	return values
}

// AllNull reports whether a column is absent or holds only null cells.
func (t *Table) AllNull(column string) bool {
	i, ok := t.index[column]
	if !ok {
		return true
	}

	for _, row := range t.rows {
		if !IsNull(row[i]) {
			return false
		}
	}

	return true
}

// Set overwrites a cell of an existing column.
func (t *Table) Set(row int, column, value string) {
	if i, ok := t.index[column]; ok {
		t.rows[row][i] = value
	}
}

// Rename renames columns using an old→new mapping. Unmapped columns keep
// their names; collisions are rejected and leave the table unchanged.
func (t *Table) Rename(mapping map[string]string) error {
	renamed := make([]string, len(t.columns))

	for i, column := range t.columns {
		if target, ok := mapping[column]; ok {
			renamed[i] = target
		} else {
			renamed[i] = column
		}
	}

	index, err := buildIndex(renamed)
	if err != nil {
		return fmt.Errorf("renaming columns: %w", err)
	}

	t.columns = renamed
	t.index = index

	return nil
}

// Retain keeps only rows for which keep returns true.
func (t *Table) Retain(keep func(row int) bool) {
	kept := make([][]string, 0, len(t.rows))

	for i, row := range t.rows {
		if keep(i) {
			kept = append(kept, row)
		}
	}

	t.rows = kept
}

// Clone returns a deep copy.
func (t *Table) Clone() *Table {
	rows := make([][]string, len(t.rows))
	for i, row := range t.rows {
		rows[i] = append([]string(nil), row...)
	}

	index := make(map[string]int, len(t.index))
	for k, v := range t.index {
		index[k] = v
	}

	return &Table{
		columns: append([]string(nil), t.columns...),
		index:   index,
		rows:    rows,
	}
}
