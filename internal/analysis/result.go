package analysis

import (
	"time"

	"oath/internal/contract"
	"oath/internal/diag"
)

// FunctionVerificationResult carries the contract verdicts for one
// function, requires clauses first, in declaration order.
type FunctionVerificationResult struct {
	Function string
	Outcomes []contract.Outcome
}

// VerificationSummary totals outcome statuses across a run.
type VerificationSummary struct {
	Proven      int
	Disproven   int
	Unproven    int
	Unsupported int
	Skipped     int
	CacheHits   int
}

func (s *VerificationSummary) add(outcomes []contract.Outcome) {
	for _, out := range outcomes {
		switch out.Status {
		case contract.Proven:
			s.Proven++
		case contract.Disproven:
			s.Disproven++
		case contract.Unproven:
			s.Unproven++
		case contract.Unsupported:
			s.Unsupported++
		case contract.Skipped:
			s.Skipped++
		}
		if out.CacheHit {
			s.CacheHits++
		}
	}
}

// Total is the number of contracts the summary covers.
func (s VerificationSummary) Total() int {
	return s.Proven + s.Disproven + s.Unproven + s.Unsupported + s.Skipped
}

// AnalysisResult is everything one run over a module produced.
type AnalysisResult struct {
	// Functions is how many functions the run actually analyzed; it
	// falls short of the module's count only when the run was cancelled.
	Functions int

	// Diagnostics from every enabled pass, stable-sorted by source span.
	Diagnostics []diag.Diagnostic

	// Verification holds one entry per analyzed function, in module
	// order. Empty when SMT verification is disabled.
	Verification []FunctionVerificationResult

	Summary  VerificationSummary
	Duration time.Duration
}

// ErrorCount returns how many diagnostics are errors.
func (r *AnalysisResult) ErrorCount() int {
	n := 0
	for _, d := range r.Diagnostics {
		if d.Severity == diag.Error {
			n++
		}
	}
	return n
}

// Failed reports whether the run found anything that should fail a
// build: an error diagnostic or a disproven contract.
func (r *AnalysisResult) Failed() bool {
	return r.ErrorCount() > 0 || r.Summary.Disproven > 0
}
