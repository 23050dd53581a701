package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/andreyvit/doctable"
)

const maxCellWidth = 40

var cellReplacer = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ", "\t", " ")

// printTable writes the first limit rows of t as an aligned grid, preceded by
// a row number column. A zero limit prints every row.
func printTable(w io.Writer, t *doctable.Table, limit int) {
	if len(t.Columns) == 0 {
		fmt.Fprintf(w, "(no columns, %s)\n", plural(t.Len(), "row"))
		return
	}
	n := t.Len()
	if limit > 0 && limit < n {
		n = limit
	}

	grid := make([][]string, 0, n+1)
	grid = append(grid, append([]string{"#"}, t.Columns...))
	for i := range n {
		line := make([]string, 0, len(t.Columns)+1)
		line = append(line, strconv.Itoa(i))
		for _, col := range t.Columns {
			line = append(line, cellText(t.Rows[i][col]))
		}
		grid = append(grid, line)
	}

	widths := make([]int, len(grid[0]))
	for _, line := range grid {
		for j, s := range line {
			widths[j] = max(widths[j], runewidth.StringWidth(s))
		}
	}

	for i, line := range grid {
		writeLine(w, line, widths)
		if i == 0 {
			sep := make([]string, len(widths))
			for j, wd := range widths {
				sep[j] = strings.Repeat("-", wd)
			}
			fmt.Fprintln(w, strings.Join(sep, "-+-"))
		}
	}

	if n < t.Len() {
		fmt.Fprintf(w, "(%d of %s)\n", n, plural(t.Len(), "row"))
	} else {
		fmt.Fprintf(w, "(%s)\n", plural(t.Len(), "row"))
	}
}

func writeLine(w io.Writer, line []string, widths []int) {
	var sb strings.Builder
	for j, s := range line {
		if j > 0 {
			sb.WriteString(" | ")
		}
		if j == len(line)-1 {
			sb.WriteString(s)
		} else {
			sb.WriteString(runewidth.FillRight(s, widths[j]))
		}
	}
	fmt.Fprintln(w, strings.TrimRight(sb.String(), " "))
}

// cellText is the single-line display form of a cell. Missing values show
// as NULL so that they stand apart from empty strings.
func cellText(v any) string {
	if v == nil {
		return "NULL"
	}
	s := cellReplacer.Replace(doctable.FormatValue(v))
	return runewidth.Truncate(s, maxCellWidth, "…")
}

func printList(w io.Writer, items []string, empty string) {
	if len(items) == 0 {
		fmt.Fprintln(w, empty)
		return
	}
	for _, s := range items {
		fmt.Fprintln(w, s)
	}
}
