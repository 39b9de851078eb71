package diag

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
)

// Reporter renders diagnostics with source context, one file per reporter.
type Reporter struct {
	filename string
	lines    []string
}

// NewReporter creates a reporter over the given source text.
func NewReporter(filename, source string) *Reporter {
	return &Reporter{
		filename: filename,
		lines:    strings.Split(source, "\n"),
	}
}

// Format renders one diagnostic with its source excerpt and caret marker.
func (r *Reporter) Format(d Diagnostic) string {
	var out strings.Builder

	levelColor := severityColor(d.Severity)
	bold := color.New(color.Bold).SprintFunc()
	dim := color.New(color.Faint).SprintFunc()

	// Header: error[D0001]: message
	out.WriteString(fmt.Sprintf("%s[%s]: %s\n",
		levelColor(d.Severity.String()), d.Code, d.Message))

	line := d.Span.Start.Line
	col := d.Span.Start.Column
	width := lineNumberWidth(line)
	indent := strings.Repeat(" ", width)

	out.WriteString(fmt.Sprintf("%s %s %s:%d:%d\n",
		indent, dim("-->"), r.filename, line, col))
	out.WriteString(fmt.Sprintf("%s %s\n", indent, dim("│")))

	if line > 0 && line <= len(r.lines) {
		content := r.lines[line-1]
		out.WriteString(fmt.Sprintf("%s %s %s\n",
			bold(fmt.Sprintf("%*d", width, line)), dim("│"), content))

		out.WriteString(fmt.Sprintf("%s %s %s\n",
			indent, dim("│"), r.marker(d, content)))
	}

	for _, note := range d.Notes {
		noteColor := color.New(color.FgBlue).SprintFunc()
		out.WriteString(fmt.Sprintf("%s %s %s %s\n",
			indent, dim("│"), noteColor("note:"), note))
	}

	if d.Help != "" {
		helpColor := color.New(color.FgGreen).SprintFunc()
		out.WriteString(fmt.Sprintf("%s %s %s %s\n",
			indent, dim("│"), helpColor("help:"), d.Help))
	}

	out.WriteString("\n")
	return out.String()
}

// marker draws the caret underline for the diagnostic span.
func (r *Reporter) marker(d Diagnostic, lineContent string) string {
	col := d.Span.Start.Column
	length := 1
	if d.Span.End.Line == d.Span.Start.Line && d.Span.End.Column > col {
		length = d.Span.End.Column - col
	}
	if col-1+length > len(lineContent) {
		length = max(1, len(lineContent)-col+1)
	}

	spaces := strings.Repeat(" ", max(0, col-1))
	markerColor := severityColor(d.Severity)
	return spaces + markerColor(strings.Repeat("^", length))
}

func severityColor(s Severity) func(...interface{}) string {
	switch s {
	case Warning:
		return color.New(color.FgYellow, color.Bold).SprintFunc()
	default:
		return color.New(color.FgRed, color.Bold).SprintFunc()
	}
}

func lineNumberWidth(line int) int {
	width := len(fmt.Sprintf("%d", line))
	if width < 3 {
		width = 3
	}
	return width
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
