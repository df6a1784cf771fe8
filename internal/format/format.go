// Package format renders report tables for the CLI.
package format

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Mode controls the output format.
type Mode int

const (
	ASCII    Mode = iota // box-drawn terminal tables
	Markdown             // GitHub-flavoured Markdown
	CSV                  // comma-separated, for spreadsheets
)

// ParseMode maps "text", "markdown"/"md" and "csv" to a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text", "ascii", "table":
		return ASCII, nil
	case "markdown", "md":
		return Markdown, nil
	case "csv":
		return CSV, nil
	}
	return ASCII, fmt.Errorf("unknown output mode %q (want text, markdown or csv)", s)
}

type ColumnAlign int

const (
	AlignDefault ColumnAlign = iota
	AlignLeft
	AlignCenter
	AlignRight
)

// ColumnConfig controls per-column formatting.
type ColumnConfig struct {
	Number   int         // 1-based
	Align    ColumnAlign // horizontal alignment
	MaxWidth int         // 0 = unlimited
}

// TableBuilder accumulates one table and renders it in the Mode chosen at
// creation.
type TableBuilder interface {
	Title(s string)
	Header(cols ...string)
	Row(vals ...any)
	Footer(vals ...any)
	Columns(cfgs ...ColumnConfig)
	// Len is the number of data rows appended so far.
	Len() int
	String() string
}

// NewTable returns a TableBuilder that renders in the given Mode.
func NewTable(m Mode) TableBuilder {
	w := table.NewWriter()
	if m == ASCII {
		w.SetStyle(table.StyleLight)
	}
	return &prettyTable{w: w, mode: m}
}

type prettyTable struct {
	w    table.Writer
	mode Mode
	rows int
}

func (p *prettyTable) Title(s string) { p.w.SetTitle(s) }

func (p *prettyTable) Header(cols ...string) {
	row := make(table.Row, len(cols))
	for i, c := range cols {
		row[i] = c
	}
	p.w.AppendHeader(row)
}

func (p *prettyTable) Row(vals ...any) {
	p.w.AppendRow(table.Row(append([]any(nil), vals...)))
	p.rows++
}

func (p *prettyTable) Footer(vals ...any) {
	p.w.AppendFooter(table.Row(append([]any(nil), vals...)))
}

func (p *prettyTable) Columns(cfgs ...ColumnConfig) {
	out := make([]table.ColumnConfig, len(cfgs))
	for i, c := range cfgs {
		out[i] = table.ColumnConfig{Number: c.Number, Align: textAlign(c.Align), WidthMax: c.MaxWidth}
	}
	p.w.SetColumnConfigs(out)
}

func (p *prettyTable) Len() int { return p.rows }

func (p *prettyTable) String() string {
	switch p.mode {
	case Markdown:
		return p.w.RenderMarkdown()
	case CSV:
		return p.w.RenderCSV()
	default:
		return p.w.Render()
	}
}

func textAlign(a ColumnAlign) text.Align {
	switch a {
	case AlignLeft:
		return text.AlignLeft
	case AlignRight:
		return text.AlignRight
	case AlignCenter:
		return text.AlignCenter
	}
	return text.AlignDefault
}
