package solver

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync/atomic"
	"time"

	"github.com/tliron/commonlog"

	"oath/internal/contract"
)

var log = commonlog.GetLogger("oath.solver")

// Result is the solver's answer to one satisfiability check.
type Result int

const (
	Unsat Result = iota
	Sat
	Unknown
)

func (r Result) String() string {
	switch r {
	case Unsat:
		return "unsat"
	case Sat:
		return "sat"
	}
	return "unknown"
}

// Verdict is a parsed solver answer, with the model on Sat.
type Verdict struct {
	Result Result
	Model  contract.Model
	Reason string // set for Unknown
}

// Session is one conversation with a solver about one function: the
// declarations and axioms accumulate, each CheckNegated runs under all
// of them. Sessions are not safe for concurrent use and must be closed
// by the worker that created them.
type Session interface {
	Assert(t contract.Term)
	CheckNegated(ctx context.Context, goal contract.Term) (*Verdict, error)
	Close() error
}

// Backend creates sessions. One session serves exactly one function;
// sharing a session across functions is not supported.
type Backend interface {
	Available() bool
	NewSession(timeoutMs uint) (Session, error)
}

// Z3Backend drives the z3 binary over stdin. Every check runs a fresh
// process, so a crashed or hung solver never poisons later queries;
// the session holds only the accumulated script.
type Z3Backend struct {
	path    string
	queries atomic.Uint64
}

// NewZ3Backend locates z3 on PATH. A missing binary is not an error:
// Available reports false and verification degrades to Skipped.
func NewZ3Backend() *Z3Backend {
	path, err := exec.LookPath("z3")
	if err != nil {
		log.Info("z3 not found in PATH, SMT verification unavailable")
		return &Z3Backend{}
	}
	log.Debugf("using solver at %s", path)
	return &Z3Backend{path: path}
}

// NewZ3BackendAt uses an explicit solver binary instead of consulting
// PATH. An unusable path leaves the backend unavailable, same as a
// missing binary.
func NewZ3BackendAt(path string) *Z3Backend {
	if path == "" {
		return NewZ3Backend()
	}
	resolved, err := exec.LookPath(path)
	if err != nil {
		log.Warningf("solver at %s unusable: %v", path, err)
		return &Z3Backend{}
	}
	log.Debugf("using solver at %s", resolved)
	return &Z3Backend{path: resolved}
}

func (b *Z3Backend) Available() bool { return b.path != "" }

// Queries reports how many solver processes this backend has run.
func (b *Z3Backend) Queries() uint64 { return b.queries.Load() }

func (b *Z3Backend) NewSession(timeoutMs uint) (Session, error) {
	if b.path == "" {
		return nil, fmt.Errorf("no SMT solver available")
	}
	return &z3Session{backend: b, script: newScript(timeoutMs), timeoutMs: timeoutMs}, nil
}

type z3Session struct {
	backend   *Z3Backend
	script    *script
	timeoutMs uint
	closed    bool
}

func (s *z3Session) Assert(t contract.Term) {
	s.script.assert(t)
}

func (s *z3Session) CheckNegated(ctx context.Context, goal contract.Term) (*Verdict, error) {
	if s.closed {
		return nil, fmt.Errorf("session is closed")
	}
	// The in-script timeout is authoritative; the context deadline is
	// a backstop in case the solver ignores it.
	deadline := time.Duration(s.timeoutMs)*time.Millisecond + time.Second
	runCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	input := s.script.render(goal)
	s.backend.queries.Add(1)

	cmd := exec.CommandContext(runCtx, s.backend.path, "-in", "-smt2")
	cmd.Stdin = strings.NewReader(input)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	if runCtx.Err() == context.DeadlineExceeded {
		return &Verdict{Result: Unknown, Reason: fmt.Sprintf("solver timeout after %dms", s.timeoutMs)}, nil
	}
	text := out.String()
	if err != nil && !hasAnswer(text) {
		return nil, fmt.Errorf("solver failed: %w: %s", err, firstLine(text))
	}
	log.Debugf("solver answered in %s", elapsed)
	return parseVerdict(text, s.timeoutMs)
}

func (s *z3Session) Close() error {
	s.closed = true
	s.script = nil
	return nil
}

// hasAnswer reports whether the output begins with a sat/unsat/unknown
// answer. z3 exits nonzero for some benign inputs, so the answer, not
// the exit code, decides.
func hasAnswer(text string) bool {
	switch firstLine(text) {
	case "sat", "unsat", "unknown":
		return true
	}
	return false
}

func firstLine(text string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(text), "\n")
	return strings.TrimSpace(line)
}

// parseVerdict maps solver output to a Verdict, parsing the model on sat.
func parseVerdict(text string, timeoutMs uint) (*Verdict, error) {
	answer, rest, _ := strings.Cut(strings.TrimSpace(text), "\n")
	switch strings.TrimSpace(answer) {
	case "unsat":
		return &Verdict{Result: Unsat}, nil
	case "unknown":
		return &Verdict{Result: Unknown, Reason: fmt.Sprintf("solver gave up within %dms", timeoutMs)}, nil
	case "sat":
		model, err := parseModel(rest)
		if err != nil {
			// A model we cannot read still leaves the sat answer valid.
			log.Debugf("unparseable model: %s", err)
			model = contract.Model{}
		}
		return &Verdict{Result: Sat, Model: model}, nil
	}
	return nil, fmt.Errorf("unexpected solver output: %s", firstLine(text))
}
