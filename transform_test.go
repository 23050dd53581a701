package doctable

import (
	"testing"
)

func people() *Table {
	return tbl(cols("name", "age"),
		Row{"name": "Ann", "age": int64(30)},
		Row{"name": "Bo", "age": nil},
	)
}

func TestAddColumn(t *testing.T) {
	orig := people()
	tb := must(orig.AddColumn("active", "true"))
	sameTable(t, tb, tbl(cols("name", "age", "active"),
		Row{"name": "Ann", "age": int64(30), "active": "true"},
		Row{"name": "Bo", "active": "true"},
	))
	sameTable(t, orig, people())

	tb = must(orig.AddColumn("name", int64(0)))
	sameTable(t, tb, tbl(cols("name", "age"),
		Row{"name": int64(0), "age": int64(30)},
		Row{"name": int64(0)},
	))

	_, err := orig.AddColumn("", "x")
	isErr(t, err, ErrInvalidOperation)
	_, err = orig.AddColumn(IDField, "x")
	isErr(t, err, ErrInvalidOperation)
}

func TestMergeColumns(t *testing.T) {
	orig := tbl(cols("first", "last", "n"),
		Row{"first": "Ann", "last": "Lee", "n": int64(1)},
		Row{"first": "Bo", "n": 2.5},
	)

	t.Run("keep originals", func(t *testing.T) {
		tb := must(orig.MergeColumns("first", "last", "full", false))
		deepEqual(t, tb.Columns, cols("first", "last", "n", "full"))
		deepEqual(t, tb.Cell(0, "full"), any("AnnLee"))
		deepEqual(t, tb.Cell(1, "full"), any("Bo"))
	})

	t.Run("drop originals", func(t *testing.T) {
		tb := must(orig.MergeColumns("first", "n", "label", true))
		deepEqual(t, tb.Columns, cols("last", "label"))
		for i, row := range tb.Rows {
			if _, found := row["first"]; found {
				t.Errorf("row %d still has first", i)
			}
			if _, found := row["n"]; found {
				t.Errorf("row %d still has n", i)
			}
			exp := FormatValue(orig.Rows[i]["first"]) + FormatValue(orig.Rows[i]["n"])
			deepEqual(t, row["label"], any(exp))
		}
		deepEqual(t, tb.Cell(0, "label"), any("Ann1"))
		deepEqual(t, tb.Cell(1, "label"), any("Bo2.5"))
	})

	t.Run("drop retains the column named like the result", func(t *testing.T) {
		tb := must(orig.MergeColumns("first", "last", "first", true))
		deepEqual(t, tb.Columns, cols("first", "n"))
		deepEqual(t, tb.Cell(0, "first"), any("AnnLee"))
		deepEqual(t, tb.Cell(1, "first"), any("Bo"))
	})

	t.Run("same column twice", func(t *testing.T) {
		tb := must(orig.MergeColumns("first", "first", "twice", true))
		deepEqual(t, tb.Columns, cols("last", "n", "twice"))
		deepEqual(t, tb.Cell(0, "twice"), any("AnnAnn"))
	})

	t.Run("errors", func(t *testing.T) {
		_, err := orig.MergeColumns("first", "missing", "x", false)
		isErr(t, err, ErrInvalidOperation)
		_, err = orig.MergeColumns("missing", "last", "x", false)
		isErr(t, err, ErrInvalidOperation)
		_, err = orig.MergeColumns("first", "last", "", false)
		isErr(t, err, ErrInvalidOperation)
	})

	deepEqual(t, orig.Columns, cols("first", "last", "n"))
}

func TestRemoveColumns(t *testing.T) {
	orig := people()
	tb := must(orig.RemoveColumns("age", "nope"))
	deepEqual(t, tb.Columns, cols("name"))
	for i, row := range tb.Rows {
		if _, found := row["age"]; found {
			t.Errorf("row %d still has age", i)
		}
	}

	again := must(tb.RemoveColumns("age", "nope"))
	sameTable(t, again, tb)
	sameTable(t, orig, people())

	empty := must(orig.RemoveColumns())
	sameTable(t, empty, orig)
}

func TestRenameColumn(t *testing.T) {
	orig := people()

	tb := must(orig.RenameColumn("name", "who"))
	deepEqual(t, tb.Columns, cols("who", "age"))
	deepEqual(t, tb.Cell(0, "who"), any("Ann"))

	back := must(tb.RenameColumn("who", "name"))
	sameTable(t, back, orig)

	same := must(orig.RenameColumn("age", "age"))
	sameTable(t, same, orig)

	over := must(orig.RenameColumn("age", "name"))
	deepEqual(t, over.Columns, cols("name"))
	sameTable(t, over, tbl(cols("name"), Row{"name": int64(30)}, Row{}))

	_, err := orig.RenameColumn("missing", "x")
	isErr(t, err, ErrInvalidOperation)
	_, err = orig.RenameColumn("name", "")
	isErr(t, err, ErrInvalidOperation)

	sameTable(t, orig, people())
}

func TestConditionalUpdate(t *testing.T) {
	orig := tbl(cols("status", "n"),
		Row{"status": "new", "n": int64(1)},
		Row{"status": "old", "n": int64(2)},
		Row{"status": nil, "n": int64(1)},
		Row{"n": 1.0},
	)

	tb := must(orig.ConditionalUpdate("status", "new", "fresh"))
	deepEqual(t, tb.Cell(0, "status"), any("fresh"))
	deepEqual(t, tb.Cell(1, "status"), any("old"))
	deepEqual(t, tb.Cell(2, "status"), nil)

	tb = must(orig.ConditionalUpdate("n", "1", int64(100)))
	deepEqual(t, tb.Cell(0, "n"), any(int64(100)))
	deepEqual(t, tb.Cell(1, "n"), any(int64(2)))
	deepEqual(t, tb.Cell(2, "n"), any(int64(100)))
	deepEqual(t, tb.Cell(3, "n"), any(int64(100)))

	none := must(orig.ConditionalUpdate("status", "absent", "x"))
	sameTable(t, none, orig)

	nullMatch := must(orig.ConditionalUpdate("status", "", "x"))
	sameTable(t, nullMatch, orig)

	_, err := orig.ConditionalUpdate("missing", "x", "y")
	isErr(t, err, ErrInvalidOperation)

	deepEqual(t, orig.Cell(0, "status"), any("new"))
}

func TestSetCell(t *testing.T) {
	orig := people()
	tb := must(orig.SetCell(1, "age", int64(25)))
	deepEqual(t, tb.Cell(1, "age"), any(int64(25)))
	deepEqual(t, orig.Cell(1, "age"), nil)

	_, err := orig.SetCell(2, "age", int64(1))
	isErr(t, err, ErrInvalidOperation)
	_, err = orig.SetCell(-1, "age", int64(1))
	isErr(t, err, ErrInvalidOperation)
	_, err = orig.SetCell(0, "missing", int64(1))
	isErr(t, err, ErrInvalidOperation)
}

func TestTransformValues(t *testing.T) {
	var tb = people()
	for _, tr := range []Transform{
		AddColumn{Name: "active", Value: "true"},
		MergeColumns{A: "name", B: "active", Name: "label"},
		RenameColumn{Old: "label", New: "tag"},
		ConditionalUpdate{Column: "tag", Match: "Anntrue", Value: "ann"},
		RemoveColumns{Names: []string{"active"}},
		SetCell{Row: 1, Column: "age", Value: int64(9)},
	} {
		var err error
		tb, err = tr.Apply(tb)
		if err != nil {
			t.Fatalf("%s: %v", tr, err)
		}
		if tr.String() == "" {
			t.Errorf("%T has an empty description", tr)
		}
	}
	sameTable(t, tb, tbl(cols("name", "age", "tag"),
		Row{"name": "Ann", "age": int64(30), "tag": "ann"},
		Row{"name": "Bo", "age": int64(9), "tag": "Botrue"},
	))

	deepEqual(t, MergeColumns{A: "a", B: "b", Name: "c", Drop: true}.String(), `merge "a" + "b" into "c" dropping originals`)
	deepEqual(t, AddColumn{Name: "x", Value: nil}.String(), `add "x" = null`)
	deepEqual(t, RemoveColumns{Names: []string{"a", "b"}}.String(), `remove "a", "b"`)
}
