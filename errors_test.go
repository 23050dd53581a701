package doctable

import (
	"errors"
	"strings"
	"testing"
)

func TestErrors_matchSentinels(t *testing.T) {
	inner := errors.New("inner")
	o := func(err, sentinel error) {
		t.Helper()
		if !errors.Is(err, sentinel) {
			t.Errorf("errors.Is(%v, %v) = false, wanted true", err, sentinel)
		}
		for _, other := range []error{ErrInvalidOperation, ErrQuery, ErrUnsupportedFormat, ErrParse, ErrStore} {
			if other != sentinel && errors.Is(err, other) {
				t.Errorf("errors.Is(%v, %v) = true, wanted false", err, other)
			}
		}
	}
	o(opErrf("add_column", "x", nil, "bad"), ErrInvalidOperation)
	o(queryErrf("SELECT", inner, ""), ErrQuery)
	o(&UnsupportedFormatError{Name: "a.doc", Ext: ".doc"}, ErrUnsupportedFormat)
	o(parseErrf("a.csv", 3, inner, ""), ErrParse)
	o(&StoreError{Op: "load_all", Collection: CollectionID{"db", "c"}, Err: inner}, ErrStore)

	if !errors.Is(queryErrf("SELECT", inner, ""), inner) {
		t.Errorf("QueryError does not unwrap to its cause")
	}
	if !errors.Is(&StoreError{Op: "x", Err: inner}, inner) {
		t.Errorf("StoreError does not unwrap to its cause")
	}
}

func TestErrors_messages(t *testing.T) {
	o := func(err error, exp string) {
		t.Helper()
		if s := err.Error(); s != exp {
			t.Errorf("Error() = %q, wanted %q", s, exp)
		}
	}
	inner := errors.New("boom")
	o(opErrf("rename_column", "a", nil, "no such column"), `rename_column "a": no such column`)
	o(opErrf("add_column", "", nil, "new column name is empty"), `add_column: new column name is empty`)
	o(queryErrf("SELECT", inner, ""), "query: boom")
	o(queryErrf("DROP", nil, "only read-only queries are supported, got DROP"), "query: only read-only queries are supported, got DROP")
	o(&UnsupportedFormatError{Name: "a.doc", Ext: ".doc"}, `a.doc: unsupported format ".doc"`)
	o(parseErrf("a.csv", 3, inner, ""), "a.csv:3: boom")
	o(&StoreError{Op: "replace_all", Collection: CollectionID{"db", "c"}, Err: inner}, "store: replace_all db.c: boom")
	o(&StoreError{Op: "collections", Collection: CollectionID{Database: "db"}, Err: inner}, "store: collections db: boom")

	if s := (&UnsupportedFormatError{Name: "README"}).Error(); !strings.Contains(s, "no file extension") {
		t.Errorf("Error() = %q, wanted a mention of the missing extension", s)
	}
}
