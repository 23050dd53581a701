package doctable

import (
	"reflect"
	"slices"
)

// IDField is the store-assigned identifier of a document. It is store
// metadata and never becomes a table column.
const IDField = "_id"

// Document is a schema-less record: nil, string, bool, int64, float64,
// time.Time, []any or a nested map[string]any per field.
type Document map[string]any

// Row maps column names to values. A missing key and a nil value both mean
// null.
type Row map[string]any

// Table is a rectangular view over documents. Column order and row order only
// matter for display.
//
// Tables are treated as values: operations return a new *Table and leave the
// receiver alone. Row maps may be shared between tables, so callers must not
// modify rows of a table they did not build.
type Table struct {
	Columns []string
	Rows    []Row
}

func NewTable(columns []string, rows ...Row) *Table {
	return &Table{Columns: columns, Rows: rows}
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

func (t *Table) ColumnIndex(name string) int {
	if t == nil {
		return -1
	}
	return slices.Index(t.Columns, name)
}

func (t *Table) HasColumn(name string) bool {
	return t.ColumnIndex(name) >= 0
}

// Cell returns the value of column col in row i, nil when null.
func (t *Table) Cell(i int, col string) any {
	return t.Rows[i][col]
}

// Clone copies the column list and every row map. Values are shared.
func (t *Table) Clone() *Table {
	if t == nil {
		return &Table{}
	}
	r := &Table{
		Columns: slices.Clone(t.Columns),
		Rows:    make([]Row, len(t.Rows)),
	}
	for i, row := range t.Rows {
		r.Rows[i] = cloneRow(row, len(row))
	}
	return r
}

// Equal reports whether both tables have the same columns in the same order
// and the same rows, treating a missing key like nil.
func (t *Table) Equal(u *Table) bool {
	if !slices.Equal(t.Columns, u.Columns) || t.Len() != u.Len() {
		return false
	}
	for i := range t.Rows {
		for _, col := range t.Columns {
			if !reflect.DeepEqual(t.Rows[i][col], u.Rows[i][col]) {
				return false
			}
		}
	}
	return true
}

func cloneRow(row Row, extra int) Row {
	r := make(Row, len(row)+extra)
	for k, v := range row {
		r[k] = v
	}
	return r
}
