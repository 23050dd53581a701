package docstore

import (
	"errors"
	"testing"

	"github.com/andreyvit/doctable"
)

func TestEncodeDocument_roundTrip(t *testing.T) {
	doc := doctable.Document{"b": int64(2), "a": "x", "nested": map[string]any{"z": []any{nil, 1.5}}}
	value := must(encodeDocument(doc))
	deepEqual(t, value[0], byte(vfDefault))

	back := must(decodeDocument(value))
	deepEqual(t, back, doctable.Document{"b": int64(2), "a": "x", "nested": map[string]any{"z": []any{nil, 1.5}}})
}

func TestEncodeDocument_deterministic(t *testing.T) {
	doc := doctable.Document{}
	for _, k := range []string{"k1", "k2", "k3", "k4", "k5", "k6", "k7", "k8"} {
		doc[k] = k
	}
	first := must(encodeDocument(doc))
	for range 10 {
		deepEqual(t, must(encodeDocument(doc)), first)
	}
}

func TestDecodeDocument_errors(t *testing.T) {
	good := must(encodeDocument(doctable.Document{"a": "b"}))

	o := func(name string, value []byte) {
		t.Helper()
		_, err := decodeDocument(value)
		var de *DataError
		if !errors.As(err, &de) {
			t.Errorf("%s: err = %v, wanted *DataError", name, err)
		}
	}
	o("nil", nil)
	o("short", []byte{1, 1})
	o("unknown flags", append([]byte{0x20}, good[1:]...))
	o("unsupported version", append([]byte{0x02}, good[1:]...))
	o("truncated", good[:len(good)-1])
	o("trailing", append(append([]byte(nil), good...), 0))
	o("not a map", []byte{1, 1, 0x01})
}

func TestDataError_message(t *testing.T) {
	inner := errors.New("inner")
	err := dataErrf([]byte{0xAA, 0xBB}, 1, inner, "oops")
	deepEqual(t, err.Error(), "oops at 1: inner: (2) aabb")
	if !errors.Is(err, inner) {
		t.Errorf("errors.Is(err, inner) = false, wanted true")
	}

	long := make([]byte, 200)
	s := dataErrf(long, 0, nil, "oops").Error()
	deepEqual(t, len(s) < 400, true)
}
