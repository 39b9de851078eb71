package contract

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"oath/internal/ast"
)

// Kind says which clause an obligation came from.
type Kind int

const (
	KindRequires Kind = iota
	KindEnsures
)

func (k Kind) String() string {
	if k == KindRequires {
		return "requires"
	}
	return "ensures"
}

// Status is the verdict on one contract.
type Status int

const (
	// Proven: the negation is unsatisfiable, the contract always holds.
	Proven Status = iota
	// Disproven: a concrete input falsifies the contract.
	Disproven
	// Unproven: the solver timed out, gave unknown, or the body had to
	// be widened past what a proof can see through.
	Unproven
	// Unsupported: the contract uses a construct the encoding cannot
	// express; no claim is made either way.
	Unsupported
	// Skipped: verification was never attempted for this contract,
	// e.g. no solver is installed or the run deadline was already
	// spent. Cached replays keep their original status instead and
	// set CacheHit.
	Skipped
)

func (s Status) String() string {
	switch s {
	case Proven:
		return "proven"
	case Disproven:
		return "disproven"
	case Unproven:
		return "unproven"
	case Unsupported:
		return "unsupported"
	case Skipped:
		return "skipped"
	}
	return "?"
}

// Counterexample is a falsifying assignment for a disproven contract,
// one value per function parameter the solver mentioned.
type Counterexample struct {
	Inputs map[string]string
}

func (c *Counterexample) String() string {
	if c == nil || len(c.Inputs) == 0 {
		return "(none)"
	}
	names := make([]string, 0, len(c.Inputs))
	for name := range c.Inputs {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = fmt.Sprintf("%s = %s", name, c.Inputs[name])
	}
	return strings.Join(parts, ", ")
}

// Outcome is the verdict on one contract of one function.
type Outcome struct {
	Kind           Kind
	Expr           string // canonical text of the contract expression
	Span           ast.Span
	Status         Status
	Reason         string // set for Unproven and Unsupported
	Counterexample *Counterexample
	CacheHit       bool
	Duration       time.Duration
}

func (o Outcome) String() string {
	s := fmt.Sprintf("%s(%s): %s", o.Kind, o.Expr, o.Status)
	switch {
	case o.Status == Disproven && o.Counterexample != nil:
		s += " [" + o.Counterexample.String() + "]"
	case o.Reason != "":
		s += " (" + o.Reason + ")"
	}
	return s
}
