// Package tabular holds the neutral in-memory form of uploaded spreadsheets.
package tabular

import (
	"errors"
	"strings"
	"unicode/utf8"

	"PowerDesk/pkg/util"
)

var (
	ErrEmptyFile         = errors.New("tabular: file is empty")
	ErrMissingHeader     = errors.New("tabular: header row is missing")
	ErrUnsupportedFormat = errors.New("tabular: unsupported format")
)

// Table is an ordered header row plus string cells. Every row has exactly
// len(Headers) cells.
type Table struct {
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`
}

// New builds a table, padding or truncating rows to the header width.
func New(headers []string, rows [][]string) *Table {
	t := &Table{Headers: headers, Rows: make([][]string, 0, len(rows))}
	for _, r := range rows {
		t.Rows = append(t.Rows, fit(r, len(headers)))
	}
	return t
}

func fit(row []string, width int) []string {
	out := make([]string, width)
	copy(out, row)
	for i := range out {
		out[i] = strings.TrimSpace(out[i])
	}
	return out
}

func (t *Table) Len() int { return len(t.Rows) }

// Head returns a table with at most n rows sharing the same header.
func (t *Table) Head(n int) *Table {
	if n < 0 || n >= len(t.Rows) {
		n = len(t.Rows)
	}
	return &Table{Headers: t.Headers, Rows: t.Rows[:n]}
}

// ColumnIndex finds a header ignoring case, spacing and separators. It
// returns -1 when absent.
func (t *Table) ColumnIndex(name string) int {
	want := util.Normalize(name)
	for i, h := range t.Headers {
		if util.Normalize(h) == want {
			return i
		}
	}
	return -1
}

// FindColumn returns the first header matching any of the candidates.
func (t *Table) FindColumn(candidates ...string) int {
	for _, c := range candidates {
		if i := t.ColumnIndex(c); i >= 0 {
			return i
		}
	}
	return -1
}

func (t *Table) HasColumns(names ...string) bool {
	for _, n := range names {
		if t.ColumnIndex(n) < 0 {
			return false
		}
	}
	return true
}

// Column returns the cells of the named column, or nil.
func (t *Table) Column(name string) []string {
	idx := t.ColumnIndex(name)
	if idx < 0 {
		return nil
	}
	out := make([]string, len(t.Rows))
	for i, r := range t.Rows {
		out[i] = r[idx]
	}
	return out
}

// Markdown renders a pipe table.
func (t *Table) Markdown() string {
	var sb strings.Builder
	writeRow := func(cells []string) {
		sb.WriteString("|")
		for _, c := range cells {
			sb.WriteString(" ")
			sb.WriteString(strings.ReplaceAll(c, "|", `\|`))
			sb.WriteString(" |")
		}
		sb.WriteString("\n")
	}
	writeRow(t.Headers)
	sb.WriteString("|")
	for range t.Headers {
		sb.WriteString("---|")
	}
	sb.WriteString("\n")
	for _, r := range t.Rows {
		writeRow(r)
	}
	return sb.String()
}

// Text renders columns left-aligned and padded to the widest cell.
func (t *Table) Text() string {
	widths := make([]int, len(t.Headers))
	measure := func(cells []string) {
		for i, c := range cells {
			if w := utf8.RuneCountInString(c); w > widths[i] {
				widths[i] = w
			}
		}
	}
	measure(t.Headers)
	for _, r := range t.Rows {
		measure(r)
	}

	var sb strings.Builder
	writeRow := func(cells []string) {
		for i, c := range cells {
			if i > 0 {
				sb.WriteString("  ")
			}
			sb.WriteString(c)
			if i < len(cells)-1 {
				sb.WriteString(strings.Repeat(" ", widths[i]-utf8.RuneCountInString(c)))
			}
		}
		sb.WriteString("\n")
	}
	writeRow(t.Headers)
	for _, r := range t.Rows {
		writeRow(r)
	}
	return sb.String()
}
