package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/mattn/go-runewidth"
)

// Table outputs tabular data in text format. Column widths track the
// rendered cell width, so wide runes in pane titles line up.
type Table struct {
	writer  io.Writer
	headers []string
	rows    [][]string
	widths  []int
}

// NewTable creates a new table with headers.
func NewTable(w io.Writer, headers ...string) *Table {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = runewidth.StringWidth(h)
	}
	return &Table{
		writer:  w,
		headers: headers,
		widths:  widths,
	}
}

// AddRow adds a row to the table.
func (t *Table) AddRow(cols ...string) {
	for i, c := range cols {
		if w := runewidth.StringWidth(c); i < len(t.widths) && w > t.widths[i] {
			t.widths[i] = w
		}
	}
	t.rows = append(t.rows, cols)
}

// Render outputs the table.
func (t *Table) Render() {
	t.printRow(t.headers)

	seps := make([]string, len(t.widths))
	for i, w := range t.widths {
		seps[i] = strings.Repeat("-", w)
	}
	t.printRow(seps)

	for _, row := range t.rows {
		t.printRow(row)
	}
}

func (t *Table) printRow(cols []string) {
	cells := make([]string, len(t.headers))
	for i := range t.headers {
		cell := ""
		if i < len(cols) {
			cell = cols[i]
		}
		cells[i] = runewidth.FillRight(cell, t.widths[i])
	}
	fmt.Fprintf(t.writer, "  %s\n", strings.TrimRight(strings.Join(cells, "  "), " "))
}

// Truncate shortens s to maxWidth rendered columns, appending an
// ellipsis when it had to cut.
func Truncate(s string, maxWidth int) string {
	if maxWidth <= 0 {
		return ""
	}
	if runewidth.StringWidth(s) <= maxWidth {
		return s
	}
	if maxWidth <= 3 {
		return runewidth.Truncate(s, maxWidth, "")
	}
	return runewidth.Truncate(s, maxWidth, "...")
}

// Pluralize returns singular or plural form based on count.
func Pluralize(count int, singular, plural string) string {
	if count == 1 {
		return singular
	}
	return plural
}
