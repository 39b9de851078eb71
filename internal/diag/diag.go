package diag

import (
	"fmt"
	"sort"
	"sync"

	"oath/internal/ast"
)

// Severity of a diagnostic.
type Severity int

const (
	Warning Severity = iota
	Error
)

func (s Severity) String() string {
	switch s {
	case Error:
		return "error"
	case Warning:
		return "warning"
	}
	return "unknown"
}

// Category is the closed set of diagnostic categories. The analyzer that
// raises a diagnostic fixes the category at creation; consumers only ever
// read it back, never re-derive it from the code.
type Category int

const (
	Other Category = iota
	Dataflow
	BugPattern
	Security
)

func (c Category) String() string {
	switch c {
	case Dataflow:
		return "dataflow"
	case BugPattern:
		return "bugpattern"
	case Security:
		return "security"
	case Other:
		return "other"
	}
	return "unknown"
}

// Diagnostic is one reported finding.
type Diagnostic struct {
	Code     string
	Message  string
	Severity Severity
	Category Category
	Span     ast.Span
	Function string // owning function, when known
	Notes    []string
	Help     string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s[%s]: %s (%s:%d:%d)",
		d.Severity, d.Code, d.Message,
		d.Span.Start.Filename, d.Span.Start.Line, d.Span.Start.Column)
}

// Builder assembles a diagnostic fluently. Severity and category come from
// the code table; the zero span is permitted for file-level findings.
type Builder struct {
	d Diagnostic
}

// New starts a diagnostic for the given code.
func New(code string, message string, span ast.Span) *Builder {
	info := infoFor(code)
	return &Builder{d: Diagnostic{
		Code:     code,
		Message:  message,
		Severity: info.Severity,
		Category: info.Category,
		Span:     span,
	}}
}

// WithFunction records the function the diagnostic belongs to.
func (b *Builder) WithFunction(name string) *Builder {
	b.d.Function = name
	return b
}

// WithNote appends a context note.
func (b *Builder) WithNote(note string) *Builder {
	b.d.Notes = append(b.d.Notes, note)
	return b
}

// WithHelp sets the help text.
func (b *Builder) WithHelp(help string) *Builder {
	b.d.Help = help
	return b
}

// Build returns the completed diagnostic.
func (b *Builder) Build() Diagnostic {
	return b.d
}

// Collector is the shared, append-only diagnostic collection for one
// analysis run. Appends are safe from concurrent workers.
type Collector struct {
	mu    sync.Mutex
	diags []Diagnostic
}

func NewCollector() *Collector {
	return &Collector{}
}

// Add appends one diagnostic.
func (c *Collector) Add(d Diagnostic) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.diags = append(c.diags, d)
}

// AddAll appends a batch of diagnostics in order.
func (c *Collector) AddAll(ds ...Diagnostic) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.diags = append(c.diags, ds...)
}

// Sorted returns a copy of the diagnostics stable-sorted by source span,
// the order the external reporting layer expects.
func (c *Collector) Sorted() []Diagnostic {
	c.mu.Lock()
	out := make([]Diagnostic, len(c.diags))
	copy(out, c.diags)
	c.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Span.Before(out[j].Span) {
			return true
		}
		if out[j].Span.Before(out[i].Span) {
			return false
		}
		return out[i].Code < out[j].Code
	})
	return out
}
