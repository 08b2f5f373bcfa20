// Package format renders report tables as terminal ASCII or Markdown from
// one builder.
package format

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Mode controls the output format.
type Mode int

const (
	ASCII    Mode = iota // Fixed-width terminal tables
	Markdown             // GitHub-flavoured Markdown tables
)

func (m Mode) String() string {
	if m == Markdown {
		return "markdown"
	}
	return "ascii"
}

// ParseMode maps a --format flag value to a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "ascii", "text", "":
		return ASCII, nil
	case "markdown", "md":
		return Markdown, nil
	}
	return ASCII, fmt.Errorf("unknown format %q (want ascii or markdown)", s)
}

// asciiStyle is StyleLight with headers and footers left in their
// original case.
var asciiStyle = func() table.Style {
	s := table.StyleLight
	s.Format.Header = text.FormatDefault
	s.Format.Footer = text.FormatDefault
	return s
}()

// Table is built once and rendered in the Mode set at creation.
type Table struct {
	w       table.Writer
	mode    Mode
	columns map[int]table.ColumnConfig
}

// NewTable returns an empty table for mode m.
func NewTable(m Mode) *Table {
	w := table.NewWriter()
	if m == ASCII {
		w.SetStyle(asciiStyle)
	}
	return &Table{w: w, mode: m, columns: map[int]table.ColumnConfig{}}
}

// Title sets a caption rendered above the table. Markdown output has no
// caption; the surrounding document supplies a heading instead.
func (t *Table) Title(s string) {
	if t.mode == ASCII && s != "" {
		t.w.SetTitle("%s", s)
	}
}

func (t *Table) Header(cols ...string) {
	row := make(table.Row, len(cols))
	for i, c := range cols {
		row[i] = c
	}
	t.w.AppendHeader(row)
}

// Row appends a data row. Values are converted with fmt.Sprint.
func (t *Table) Row(vals ...any) {
	t.w.AppendRow(table.Row(vals))
}

func (t *Table) Footer(vals ...any) {
	t.w.AppendFooter(table.Row(vals))
}

// RightAlignFrom right-aligns column n (1-based) through column total, the
// usual layout for label columns followed by numbers.
func (t *Table) RightAlignFrom(n, total int) {
	for i := n; i <= total; i++ {
		c := t.columns[i]
		c.Number = i
		c.Align = text.AlignRight
		c.AlignFooter = text.AlignRight
		t.columns[i] = c
	}
}

// Wrap limits column n (1-based) to width runes, wrapping longer cells.
func (t *Table) Wrap(n, width int) {
	c := t.columns[n]
	c.Number = n
	c.WidthMax = width
	t.columns[n] = c
}

func (t *Table) String() string {
	cfgs := make([]table.ColumnConfig, 0, len(t.columns))
	for _, n := range slices.Sorted(maps.Keys(t.columns)) {
		cfgs = append(cfgs, t.columns[n])
	}
	t.w.SetColumnConfigs(cfgs)
	if t.mode == Markdown {
		return t.w.RenderMarkdown()
	}
	return t.w.Render()
}
