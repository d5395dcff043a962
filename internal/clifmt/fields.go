// Package clifmt prints aligned name/value tables for CLI subcommands.
package clifmt

import (
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/term"
)

const (
	defaultTableWidth    = 100
	defaultMinValueWidth = 36
)

type Field struct {
	Name  string
	Value string
}

type FieldTableOptions struct {
	Title         string
	Fields        []Field
	EmptyValue    string
	DefaultWidth  int
	MinValueWidth int
}

// PrintFieldTable writes one row per field with values wrapped to the
// terminal width when out is a terminal.
func PrintFieldTable(out io.Writer, opts FieldTableOptions) {
	if out == nil {
		out = os.Stdout
	}
	if title := strings.TrimSpace(opts.Title); title != "" {
		_, _ = fmt.Fprintln(out, title)
	}
	emptyValue := strings.TrimSpace(opts.EmptyValue)
	if emptyValue == "" {
		emptyValue = "-"
	}

	nameWidth := 0
	for _, f := range opts.Fields {
		if w := utf8.RuneCountInString(f.Name) + 1; w > nameWidth {
			nameWidth = w
		}
	}
	valueWidth := tableValueWidth(out, nameWidth, opts.DefaultWidth, opts.MinValueWidth)

	for _, f := range opts.Fields {
		value := strings.TrimSpace(f.Value)
		if value == "" {
			value = emptyValue
		}
		lines := wrapTextRunes(value, valueWidth)
		_, _ = fmt.Fprintf(out, "%s  %s\n", padRightRunes(f.Name+":", nameWidth), lines[0])
		for _, line := range lines[1:] {
			_, _ = fmt.Fprintf(out, "%s  %s\n", strings.Repeat(" ", nameWidth), line)
		}
	}
}

func tableValueWidth(out io.Writer, nameWidth, defaultWidth, minValueWidth int) int {
	if defaultWidth <= 0 {
		defaultWidth = defaultTableWidth
	}
	if minValueWidth <= 0 {
		minValueWidth = defaultMinValueWidth
	}
	width := defaultWidth
	if file, ok := out.(*os.File); ok && term.IsTerminal(int(file.Fd())) {
		if w, _, err := term.GetSize(int(file.Fd())); err == nil && w > 0 {
			width = w
		}
	}
	if vw := width - nameWidth - 2; vw > minValueWidth {
		return vw
	}
	return minValueWidth
}

func padRightRunes(s string, width int) string {
	missing := width - utf8.RuneCountInString(s)
	if missing <= 0 {
		return s
	}
	return s + strings.Repeat(" ", missing)
}

func wrapTextRunes(text string, width int) []string {
	words := strings.Fields(text)
	if len(words) == 0 || width <= 0 {
		return []string{strings.TrimSpace(text)}
	}
	var lines []string
	current := ""
	flush := func() {
		if current != "" {
			lines = append(lines, current)
			current = ""
		}
	}
	for _, word := range words {
		for utf8.RuneCountInString(word) > width {
			flush()
			runes := []rune(word)
			lines = append(lines, string(runes[:width]))
			word = string(runes[width:])
		}
		switch {
		case current == "":
			current = word
		case utf8.RuneCountInString(current)+1+utf8.RuneCountInString(word) <= width:
			current += " " + word
		default:
			flush()
			current = word
		}
	}
	flush()
	if len(lines) == 0 {
		return []string{""}
	}
	return lines
}
