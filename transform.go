package doctable

import (
	"fmt"
	"slices"
	"strings"
)

// Transform is a column edit that can be applied to a table. Apply returns a
// new table or an *OpError, leaving t untouched either way.
type Transform interface {
	Apply(t *Table) (*Table, error)
	String() string
}

var (
	_ Transform = AddColumn{}
	_ Transform = MergeColumns{}
	_ Transform = RemoveColumns{}
	_ Transform = RenameColumn{}
	_ Transform = ConditionalUpdate{}
	_ Transform = SetCell{}
)

type AddColumn struct {
	Name  string
	Value any
}

func (op AddColumn) Apply(t *Table) (*Table, error) {
	return t.AddColumn(op.Name, op.Value)
}

func (op AddColumn) String() string {
	return fmt.Sprintf("add %q = %s", op.Name, describeValue(op.Value))
}

type MergeColumns struct {
	A, B string
	Name string
	Drop bool
}

func (op MergeColumns) Apply(t *Table) (*Table, error) {
	return t.MergeColumns(op.A, op.B, op.Name, op.Drop)
}

func (op MergeColumns) String() string {
	s := fmt.Sprintf("merge %q + %q into %q", op.A, op.B, op.Name)
	if op.Drop {
		s += " dropping originals"
	}
	return s
}

type RemoveColumns struct {
	Names []string
}

func (op RemoveColumns) Apply(t *Table) (*Table, error) {
	return t.RemoveColumns(op.Names...)
}

func (op RemoveColumns) String() string {
	quoted := make([]string, len(op.Names))
	for i, name := range op.Names {
		quoted[i] = quoteName(name)
	}
	return "remove " + strings.Join(quoted, ", ")
}

type RenameColumn struct {
	Old, New string
}

func (op RenameColumn) Apply(t *Table) (*Table, error) {
	return t.RenameColumn(op.Old, op.New)
}

func (op RenameColumn) String() string {
	return fmt.Sprintf("rename %q to %q", op.Old, op.New)
}

type ConditionalUpdate struct {
	Column string
	Match  string
	Value  any
}

func (op ConditionalUpdate) Apply(t *Table) (*Table, error) {
	return t.ConditionalUpdate(op.Column, op.Match, op.Value)
}

func (op ConditionalUpdate) String() string {
	return fmt.Sprintf("update %q where %q to %s", op.Column, op.Match, describeValue(op.Value))
}

type SetCell struct {
	Row    int
	Column string
	Value  any
}

func (op SetCell) Apply(t *Table) (*Table, error) {
	return t.SetCell(op.Row, op.Column, op.Value)
}

func (op SetCell) String() string {
	return fmt.Sprintf("set row %d %q to %s", op.Row, op.Column, describeValue(op.Value))
}

func describeValue(v any) string {
	if s, ok := v.(string); ok {
		return fmt.Sprintf("%q", s)
	}
	if v == nil {
		return "null"
	}
	return FormatValue(v)
}

// AddColumn sets column name to value in every row. An existing column of
// that name is overwritten in place; otherwise the column is appended.
func (t *Table) AddColumn(name string, value any) (*Table, error) {
	const op = "add_column"
	if err := checkNewName(op, name); err != nil {
		return nil, err
	}
	r := &Table{
		Columns: appendColumn(t.Columns, name),
		Rows:    make([]Row, len(t.Rows)),
	}
	for i, row := range t.Rows {
		row = cloneRow(row, 1)
		row[name] = value
		r.Rows[i] = row
	}
	return r, nil
}

// MergeColumns stores the text concatenation of columns a and b, without a
// separator, into column name. Null cells contribute nothing. With drop, a and
// b are removed unless equal to name.
func (t *Table) MergeColumns(a, b, name string, drop bool) (*Table, error) {
	const op = "merge_columns"
	if err := t.checkColumn(op, a); err != nil {
		return nil, err
	}
	if err := t.checkColumn(op, b); err != nil {
		return nil, err
	}
	if err := checkNewName(op, name); err != nil {
		return nil, err
	}

	var dropped []string
	if drop {
		for _, col := range []string{a, b} {
			if col != name && !slices.Contains(dropped, col) {
				dropped = append(dropped, col)
			}
		}
	}

	r := &Table{
		Columns: appendColumn(t.Columns, name),
		Rows:    make([]Row, len(t.Rows)),
	}
	r.Columns = slices.DeleteFunc(r.Columns, func(col string) bool {
		return slices.Contains(dropped, col)
	})
	for i, row := range t.Rows {
		merged := FormatValue(row[a]) + FormatValue(row[b])
		row = cloneRow(row, 1)
		row[name] = merged
		for _, col := range dropped {
			delete(row, col)
		}
		r.Rows[i] = row
	}
	return r, nil
}

// RemoveColumns drops the named columns. Names that are not columns are
// ignored.
func (t *Table) RemoveColumns(names ...string) (*Table, error) {
	r := &Table{
		Columns: slices.DeleteFunc(slices.Clone(t.Columns), func(col string) bool {
			return slices.Contains(names, col)
		}),
		Rows: make([]Row, len(t.Rows)),
	}
	for i, row := range t.Rows {
		row = cloneRow(row, 0)
		for _, name := range names {
			delete(row, name)
		}
		r.Rows[i] = row
	}
	return r, nil
}

// RenameColumn renames a column keeping its position and values. A different
// column already named newName is dropped. Renaming a column to its own name
// changes nothing.
func (t *Table) RenameColumn(oldName, newName string) (*Table, error) {
	const op = "rename_column"
	if err := t.checkColumn(op, oldName); err != nil {
		return nil, err
	}
	if err := checkNewName(op, newName); err != nil {
		return nil, err
	}
	if oldName == newName {
		return t.Clone(), nil
	}

	r := &Table{
		Columns: make([]string, 0, len(t.Columns)),
		Rows:    make([]Row, len(t.Rows)),
	}
	for _, col := range t.Columns {
		switch col {
		case oldName:
			r.Columns = append(r.Columns, newName)
		case newName:
			// overwritten
		default:
			r.Columns = append(r.Columns, col)
		}
	}
	for i, row := range t.Rows {
		v, found := row[oldName]
		row = cloneRow(row, 0)
		delete(row, oldName)
		delete(row, newName)
		if found {
			row[newName] = v
		}
		r.Rows[i] = row
	}
	return r, nil
}

// ConditionalUpdate sets column col to value in every row whose cell text
// equals match exactly. Null cells never match. No matching rows is not an
// error.
func (t *Table) ConditionalUpdate(col, match string, value any) (*Table, error) {
	const op = "conditional_update"
	if err := t.checkColumn(op, col); err != nil {
		return nil, err
	}
	r := &Table{
		Columns: slices.Clone(t.Columns),
		Rows:    make([]Row, len(t.Rows)),
	}
	for i, row := range t.Rows {
		if v := row[col]; v != nil && FormatValue(v) == match {
			row = cloneRow(row, 0)
			row[col] = value
		}
		r.Rows[i] = row
	}
	return r, nil
}

// SetCell sets a single cell.
func (t *Table) SetCell(i int, col string, value any) (*Table, error) {
	const op = "set_cell"
	if err := t.checkColumn(op, col); err != nil {
		return nil, err
	}
	if i < 0 || i >= len(t.Rows) {
		return nil, opErrf(op, col, nil, "row %d out of range [0, %d)", i, len(t.Rows))
	}
	r := &Table{
		Columns: slices.Clone(t.Columns),
		Rows:    slices.Clone(t.Rows),
	}
	row := cloneRow(t.Rows[i], 1)
	row[col] = value
	r.Rows[i] = row
	return r, nil
}

func (t *Table) checkColumn(op, name string) error {
	if name == "" {
		return opErrf(op, "", nil, "column name is empty")
	}
	if !t.HasColumn(name) {
		return opErrf(op, name, nil, "no such column")
	}
	return nil
}

func checkNewName(op, name string) error {
	if name == "" {
		return opErrf(op, "", nil, "new column name is empty")
	}
	if name == IDField {
		return opErrf(op, name, nil, "column name is reserved for document identifiers")
	}
	return nil
}

// appendColumn returns a copy of columns with name appended unless present.
func appendColumn(columns []string, name string) []string {
	if slices.Contains(columns, name) {
		return slices.Clone(columns)
	}
	r := make([]string, len(columns), len(columns)+1)
	copy(r, columns)
	return append(r, name)
}
