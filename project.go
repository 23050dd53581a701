package doctable

import (
	"slices"
)

// Project builds a table out of docs. Columns are the union of all fields in
// first-seen order, minus IDField. Fields a document introduces together are
// appended in sorted order, since a document has no field order of its own.
func Project(docs []Document) *Table {
	t := &Table{
		Rows: make([]Row, 0, len(docs)),
	}
	seen := make(map[string]struct{})
	var fresh []string
	for _, doc := range docs {
		fresh = fresh[:0]
		row := make(Row, len(doc))
		for k, v := range doc {
			if k == IDField {
				continue
			}
			row[k] = v
			if _, found := seen[k]; !found {
				seen[k] = struct{}{}
				fresh = append(fresh, k)
			}
		}
		slices.Sort(fresh)
		t.Columns = append(t.Columns, fresh...)
		t.Rows = append(t.Rows, row)
	}
	return t
}

// Documents maps every row back to a document. Null cells are omitted and
// IDField is never produced; assigning identifiers is the store's job.
func (t *Table) Documents() []Document {
	if t == nil {
		return nil
	}
	docs := make([]Document, 0, len(t.Rows))
	for _, row := range t.Rows {
		doc := make(Document, len(t.Columns))
		for _, col := range t.Columns {
			if col == IDField {
				continue
			}
			if v := row[col]; v != nil {
				doc[col] = v
			}
		}
		docs = append(docs, doc)
	}
	return docs
}
