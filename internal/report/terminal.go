package report

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/fatih/color"
)

// Highlight reports whether body cell (row, col) should stand out.
type Highlight func(row, col int) bool

// Printer writes tables as aligned text. Colour follows color.NoColor, which
// is set when stdout is not a terminal or NO_COLOR is present.
type Printer struct {
	w      io.Writer
	title  func(a ...any) string
	header func(a ...any) string
	name   func(a ...any) string
	best   func(a ...any) string
}

func NewPrinter(w io.Writer) *Printer {
	return &Printer{
		w:      w,
		title:  color.New(color.Bold).SprintFunc(),
		header: color.New(color.FgCyan, color.Bold).SprintFunc(),
		name:   color.New(color.FgYellow).SprintFunc(),
		best:   color.New(color.FgGreen, color.Bold).SprintFunc(),
	}
}

func (p *Printer) Print(t Table, hl Highlight) error {
	if err := t.Validate(); err != nil {
		return err
	}
	widths := make([]int, len(t.Header))
	for j := range t.Header {
		for _, cell := range t.Column(j) {
			widths[j] = max(widths[j], utf8.RuneCountInString(cell))
		}
	}

	var b strings.Builder
	if t.Title != "" {
		b.WriteString(p.title(t.Title))
		b.WriteByte('\n')
	}
	for j, cell := range t.Header {
		b.WriteString(p.header(pad(cell, widths[j], j > 0)))
		b.WriteString(sep(j, len(t.Header)))
	}
	for i, row := range t.Rows {
		for j, cell := range row {
			s := pad(cell, widths[j], j > 0)
			switch {
			case j == 0:
				s = p.name(s)
			case hl != nil && hl(i, j):
				s = p.best(s)
			}
			b.WriteString(s)
			b.WriteString(sep(j, len(row)))
		}
	}
	_, err := fmt.Fprint(p.w, b.String())
	return err
}

func sep(j, n int) string {
	if j == n-1 {
		return "\n"
	}
	return "  "
}

func pad(s string, width int, right bool) string {
	n := width - utf8.RuneCountInString(s)
	if n <= 0 {
		return s
	}
	if right {
		return strings.Repeat(" ", n) + s
	}
	return s + strings.Repeat(" ", n)
}
