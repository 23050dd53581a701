package doctable

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/tealeg/xlsx"
)

var uploadDelimiters = map[string]rune{
	".csv": ',',
	".tsv": '\t',
	".psv": '|',
}

// UploadFormats lists the file extensions ReadUpload accepts.
var UploadFormats = []string{".csv", ".tsv", ".psv", ".xlsx"}

// ReadUpload parses a delimited text file or a spreadsheet into a table,
// choosing the format by the extension of name. The first row is the header.
// Only the first sheet of a spreadsheet is read.
//
// Cells are typed per column: a column whose non-empty cells all parse as
// integers holds int64, then float64, then true/false as bool, otherwise
// string. Empty cells are null.
func ReadUpload(name string, r io.Reader) (*Table, error) {
	ext := strings.ToLower(filepath.Ext(name))
	var records [][]string
	var err error
	if delim, ok := uploadDelimiters[ext]; ok {
		records, err = readDelimited(name, r, delim)
	} else if ext == ".xlsx" {
		records, err = readSpreadsheet(name, r)
	} else {
		return nil, &UnsupportedFormatError{Name: name, Ext: ext}
	}
	if err != nil {
		return nil, err
	}
	return tableFromRecords(name, records)
}

func readDelimited(name string, r io.Reader, delim rune) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.Comma = delim
	cr.FieldsPerRecord = -1
	records, err := cr.ReadAll()
	if err != nil {
		var perr *csv.ParseError
		if errors.As(err, &perr) {
			return nil, parseErrf(name, perr.StartLine, perr.Err, "")
		}
		return nil, parseErrf(name, 0, err, "")
	}
	return records, nil
}

func readSpreadsheet(name string, r io.Reader) ([][]string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, parseErrf(name, 0, err, "reading")
	}
	f, err := xlsx.OpenBinary(data)
	if err != nil {
		return nil, parseErrf(name, 0, err, "")
	}
	sheets, err := f.ToSlice()
	if err != nil {
		return nil, parseErrf(name, 0, err, "")
	}
	if len(sheets) == 0 {
		return nil, parseErrf(name, 0, nil, "spreadsheet has no sheets")
	}
	records := sheets[0]
	// trailing rows of a sheet are often blank
	for len(records) > 0 && isBlankRecord(records[len(records)-1]) {
		records = records[:len(records)-1]
	}
	return records, nil
}

func tableFromRecords(name string, records [][]string) (*Table, error) {
	if len(records) == 0 {
		return nil, parseErrf(name, 0, nil, "no header row")
	}
	header := slices.Clone(records[0])
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	for i, h := range header {
		h = strings.TrimSpace(h)
		if h == "" {
			h = fmt.Sprintf("Unnamed: %d", i)
		}
		header[i] = h
	}
	header = UniqueNames(header)

	body := records[1:]
	for i, rec := range body {
		for j := len(header); j < len(rec); j++ {
			if strings.TrimSpace(rec[j]) != "" {
				return nil, parseErrf(name, i+2, nil, "%d fields in a row, header has %d", len(rec), len(header))
			}
		}
	}

	t := &Table{
		Columns: header,
		Rows:    make([]Row, len(body)),
	}
	for i := range body {
		t.Rows[i] = make(Row, len(header))
	}
	for j, col := range header {
		parse := inferColumnParser(body, j)
		for i, rec := range body {
			if j < len(rec) && rec[j] != "" {
				t.Rows[i][col] = parse(rec[j])
			}
		}
	}
	return t, nil
}

// inferColumnParser picks the narrowest cell type that every non-empty cell
// of column j parses as.
func inferColumnParser(body [][]string, j int) func(string) any {
	ints, floats, bools := true, true, true
	for _, rec := range body {
		if j >= len(rec) || rec[j] == "" {
			continue
		}
		s := rec[j]
		if ints {
			if _, err := strconv.ParseInt(s, 10, 64); err != nil {
				ints = false
			}
		}
		if floats {
			if _, err := strconv.ParseFloat(s, 64); err != nil || !isDecimal(s) {
				floats = false
			}
		}
		if bools {
			if !strings.EqualFold(s, "true") && !strings.EqualFold(s, "false") {
				bools = false
			}
		}
	}
	switch {
	case ints:
		return func(s string) any { return must(strconv.ParseInt(s, 10, 64)) }
	case floats:
		return func(s string) any { return must(strconv.ParseFloat(s, 64)) }
	case bools:
		return func(s string) any { return strings.EqualFold(s, "true") }
	default:
		return func(s string) any { return s }
	}
}

// isDecimal rejects the Inf, NaN and hex forms strconv.ParseFloat accepts.
func isDecimal(s string) bool {
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c >= '0' && c <= '9', c == '.', c == '-', c == '+', c == 'e', c == 'E':
		default:
			return false
		}
	}
	return true
}

func isBlankRecord(rec []string) bool {
	for _, s := range rec {
		if strings.TrimSpace(s) != "" {
			return false
		}
	}
	return true
}

// UniqueNames returns names with duplicates renamed by appending _2, _3 and so
// on, skipping suffixes that are already taken.
func UniqueNames(names []string) []string {
	taken := make(map[string]bool, len(names))
	for _, name := range names {
		taken[name] = false
	}
	r := make([]string, len(names))
	for i, name := range names {
		if !taken[name] {
			taken[name] = true
			r[i] = name
			continue
		}
		for n := 2; ; n++ {
			cand := name + "_" + strconv.Itoa(n)
			if _, found := taken[cand]; !found {
				taken[cand] = true
				r[i] = cand
				break
			}
		}
	}
	return r
}

// WriteCSV writes the header and rows as comma-separated text, cells in their
// FormatValue form.
func (t *Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns); err != nil {
		return err
	}
	rec := make([]string, len(t.Columns))
	for _, row := range t.Rows {
		for j, col := range t.Columns {
			rec[j] = FormatValue(row[col])
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// CSV returns the table as comma-separated text.
func (t *Table) CSV() []byte {
	var buf bytes.Buffer
	ensure(t.WriteCSV(&buf))
	return buf.Bytes()
}
