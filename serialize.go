package doctable

import (
	"bytes"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"time"

	"github.com/goccy/go-json"
)

// TimeFormat is the text form of timestamps, both in serialized cells and in
// FormatValue.
const TimeFormat = time.RFC3339Nano

// Serialize converts a cell into something a relational engine can hold.
// Lists and nested documents become JSON text with sorted keys, timestamps
// become TimeFormat text, and everything else is returned unchanged.
func Serialize(v any) any {
	switch v := v.(type) {
	case nil, string, bool, int64, float64, []byte:
		return v
	case time.Time:
		return v.Format(TimeFormat)
	case []any, map[string]any, Document:
		return jsonText(v)
	}
	switch reflect.TypeOf(v).Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return jsonText(v)
	default:
		return v
	}
}

// Serialized returns a copy of t with every cell passed through Serialize.
func (t *Table) Serialized() *Table {
	r := &Table{
		Columns: t.Columns,
		Rows:    make([]Row, len(t.Rows)),
	}
	for i, row := range t.Rows {
		out := make(Row, len(t.Columns))
		for _, col := range t.Columns {
			if v, ok := row[col]; ok && v != nil {
				out[col] = Serialize(v)
			}
		}
		r.Rows[i] = out
	}
	return r
}

func jsonText(v any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(jsonSafe(v)); err != nil {
		return fmt.Sprint(v)
	}
	return string(bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}))
}

// jsonSafe copies composite values replacing what JSON cannot carry:
// timestamps become TimeFormat strings, non-finite floats become their
// strconv text.
func jsonSafe(v any) any {
	switch v := v.(type) {
	case time.Time:
		return v.Format(TimeFormat)
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return strconv.FormatFloat(v, 'g', -1, 64)
		}
		return v
	case []any:
		r := make([]any, len(v))
		for i, e := range v {
			r[i] = jsonSafe(e)
		}
		return r
	case Document:
		return jsonSafe(map[string]any(v))
	case map[string]any:
		r := make(map[string]any, len(v))
		for k, e := range v {
			r[k] = jsonSafe(e)
		}
		return r
	default:
		return v
	}
}

// FormatValue returns the text form of a cell used by MergeColumns and
// ConditionalUpdate.
func FormatValue(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case bool:
		return strconv.FormatBool(v)
	case int:
		return strconv.Itoa(v)
	case int8:
		return strconv.FormatInt(int64(v), 10)
	case int16:
		return strconv.FormatInt(int64(v), 10)
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case int64:
		return strconv.FormatInt(v, 10)
	case uint:
		return strconv.FormatUint(uint64(v), 10)
	case uint8:
		return strconv.FormatUint(uint64(v), 10)
	case uint16:
		return strconv.FormatUint(uint64(v), 10)
	case uint32:
		return strconv.FormatUint(uint64(v), 10)
	case uint64:
		return strconv.FormatUint(v, 10)
	case float32:
		return formatFloat(float64(v), 32)
	case float64:
		return formatFloat(v, 64)
	case time.Time:
		return v.Format(TimeFormat)
	case fmt.Stringer:
		return v.String()
	}
	if s, ok := Serialize(v).(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func formatFloat(f float64, bitSize int) string {
	if math.Abs(f) >= 1e21 {
		return strconv.FormatFloat(f, 'g', -1, bitSize)
	}
	return strconv.FormatFloat(f, 'f', -1, bitSize)
}
