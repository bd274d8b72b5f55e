package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"
)

// Out and Err are where everything in this package writes.
var (
	Out io.Writer = os.Stdout
	Err io.Writer = os.Stderr
)

var (
	successColor = color.New(color.FgGreen, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	infoColor    = color.New(color.FgCyan)
	warnColor    = color.New(color.FgYellow)
	headerColor  = color.New(color.FgWhite, color.Bold)
	threatColor  = color.New(color.FgRed)
)

func Success(format string, a ...interface{}) {
	successColor.Fprintf(Out, "✓ "+format+"\n", a...)
}

func Error(format string, a ...interface{}) {
	errorColor.Fprintf(Err, "✗ "+format+"\n", a...)
}

func Info(format string, a ...interface{}) {
	infoColor.Fprintf(Out, format+"\n", a...)
}

func Warn(format string, a ...interface{}) {
	warnColor.Fprintf(Err, "⚠ "+format+"\n", a...)
}

// Heading prints a bold section title.
func Heading(format string, a ...interface{}) {
	headerColor.Fprintf(Out, format+"\n", a...)
}

// Threat highlights s when color is enabled.
func Threat(s string) string {
	return threatColor.Sprint(s)
}

func JSON(v interface{}) error {
	enc := json.NewEncoder(Out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func YAML(v interface{}) error {
	enc := yaml.NewEncoder(Out)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

type Table struct {
	headers []string
	rows    [][]string
}

func NewTable(headers []string) *Table {
	return &Table{
		headers: headers,
		rows:    [][]string{},
	}
}

func (t *Table) AddRow(row []string) {
	t.rows = append(t.rows, row)
}

func (t *Table) Len() int {
	return len(t.rows)
}

func (t *Table) Render() {
	widths := make([]int, len(t.headers))
	for i, header := range t.headers {
		widths[i] = utf8.RuneCountInString(header)
	}

	for _, row := range t.rows {
		for i, cell := range row {
			if i < len(widths) && utf8.RuneCountInString(cell) > widths[i] {
				widths[i] = utf8.RuneCountInString(cell)
			}
		}
	}

	for i, header := range t.headers {
		headerColor.Fprint(Out, pad(header, widths[i])+"  ")
	}
	fmt.Fprintln(Out)

	for i := range t.headers {
		fmt.Fprint(Out, strings.Repeat("-", widths[i])+"  ")
	}
	fmt.Fprintln(Out)

	for _, row := range t.rows {
		for i, cell := range row {
			if i >= len(widths) {
				break
			}
			fmt.Fprint(Out, pad(cell, widths[i])+"  ")
		}
		fmt.Fprintln(Out)
	}
}

func pad(s string, width int) string {
	if n := utf8.RuneCountInString(s); n < width {
		return s + strings.Repeat(" ", width-n)
	}
	return s
}
