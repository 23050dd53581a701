package doctable

import (
	"errors"
	"reflect"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func deepEqual[T any](t testing.TB, a, e T) {
	if !reflect.DeepEqual(a, e) {
		t.Helper()
		t.Errorf("** got %v, wanted %v", a, e)
	}
}

func isnil[T any, P ~*T](t testing.TB, a P) {
	if a != nil {
		t.Helper()
		t.Errorf("** got &%v, wanted nil", *a)
	}
}

func isErr(t testing.TB, err, target error) {
	if !errors.Is(err, target) {
		t.Helper()
		t.Errorf("** got error %v, wanted %v", err, target)
	}
}

func sameTable(t testing.TB, a, e *Table) {
	if !a.Equal(e) {
		t.Helper()
		t.Errorf("** table mismatch (-got +wanted):\n%s", cmp.Diff(a, e))
	}
}

func tbl(columns []string, rows ...Row) *Table {
	return NewTable(columns, rows...)
}

func cols(names ...string) []string {
	return names
}
