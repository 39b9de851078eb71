package analysis

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oath/internal/ast"
	"oath/internal/contract"
	"oath/internal/diag"
	"oath/internal/effects"
	"oath/internal/parser"
	"oath/internal/semantic"
	"oath/internal/solver"
)

// unsatBackend answers unsat to every check and counts the queries, so
// tests can tell replayed verdicts from fresh ones.
type unsatBackend struct {
	mu      sync.Mutex
	queries int
}

func (b *unsatBackend) Available() bool { return true }

func (b *unsatBackend) NewSession(timeoutMs uint) (solver.Session, error) {
	return &unsatSession{backend: b}, nil
}

func (b *unsatBackend) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.queries
}

type unsatSession struct{ backend *unsatBackend }

func (s *unsatSession) Assert(contract.Term) {}

func (s *unsatSession) CheckNegated(ctx context.Context, goal contract.Term) (*solver.Verdict, error) {
	s.backend.mu.Lock()
	s.backend.queries++
	s.backend.mu.Unlock()
	return &solver.Verdict{Result: solver.Unsat}, nil
}

func (s *unsatSession) Close() error { return nil }

// absentBackend stands in for a machine with no solver installed.
type absentBackend struct{}

func (absentBackend) Available() bool { return false }

func (absentBackend) NewSession(uint) (solver.Session, error) {
	return nil, errors.New("no solver installed")
}

func loadTyped(t *testing.T, src string) (*ast.Module, *effects.Registry) {
	t.Helper()
	module, parseDiags := parser.ParseModule("test.oath", src)
	require.NotNil(t, module, "source must parse")
	require.Empty(t, parseDiags)
	reg := effects.NewRegistry()
	require.Empty(t, semantic.NewAnalyzer(reg).Analyze(module), "source must typecheck")
	return module, reg
}

func runModule(t *testing.T, cfg Config, src string, backend solver.Backend) *AnalysisResult {
	t.Helper()
	module, reg := loadTyped(t, src)
	return NewCoordinator(cfg, reg, backend, nil).Analyze(context.Background(), module)
}

func TestVerifiedPreconditionSilencesBugPattern(t *testing.T) {
	backend := &unsatBackend{}
	res := runModule(t, DefaultConfig(), `module m {
    fn safe_divide(a: I64, b: I64) -> I64
        requires(b != 0)
        ensures(result == a / b)
    {
        return a / b;
    }
}`, backend)

	assert.Empty(t, res.Diagnostics, "the precondition excludes the zero divisor")
	require.Len(t, res.Verification, 1)
	assert.Equal(t, "safe_divide", res.Verification[0].Function)
	require.Len(t, res.Verification[0].Outcomes, 2)
	assert.Equal(t, 2, res.Summary.Proven)
	assert.Positive(t, backend.count())
}

func TestMissingPreconditionFlagsDivisionSite(t *testing.T) {
	cfg := DefaultConfig()
	cfg.UseSmtVerification = false
	cfg.EnableDataflow = false
	cfg.EnableTaintAnalysis = false

	res := runModule(t, cfg, `module m {
    fn unsafe_divide(a: I64, b: I64) -> I64 {
        return a / b;
    }
}`, nil)

	require.Len(t, res.Diagnostics, 1)
	d := res.Diagnostics[0]
	assert.Equal(t, diag.CodePossibleDivisionByZero, d.Code)
	assert.Equal(t, "unsafe_divide", d.Function)
	assert.Equal(t, 3, d.Span.Start.Line, "reported at the division site")
	assert.Empty(t, res.Verification, "verification was not requested")
}

func TestCacheReplaySkipsSolver(t *testing.T) {
	module, reg := loadTyped(t, `module m {
    fn clamp_low(v: I64, lo: I64) -> I64
        requires(lo <= 100)
        ensures(result >= lo)
    {
        if v < lo {
            return lo;
        }
        return v;
    }
}`)
	backend := &unsatBackend{}
	coord := NewCoordinator(DefaultConfig(), reg, backend, nil)

	first := coord.Analyze(context.Background(), module)
	firstQueries := backend.count()
	require.Positive(t, firstQueries)
	assert.Equal(t, 0, first.Summary.CacheHits)

	second := coord.Analyze(context.Background(), module)
	assert.Equal(t, firstQueries, backend.count(), "replay must not query the solver")
	require.Len(t, second.Verification, 1)
	for _, out := range second.Verification[0].Outcomes {
		assert.True(t, out.CacheHit)
		assert.Equal(t, contract.Proven, out.Status)
	}
	assert.Equal(t, first.Summary.Proven, second.Summary.Proven)
	assert.Equal(t, 2, second.Summary.CacheHits)
}

func TestZeroContractsMeansZeroOutcomes(t *testing.T) {
	backend := &unsatBackend{}
	res := runModule(t, DefaultConfig(), `module m {
    fn id(x: I64) -> I64 {
        return x;
    }
}`, backend)

	require.Len(t, res.Verification, 1)
	assert.Empty(t, res.Verification[0].Outcomes)
	assert.Equal(t, 0, res.Summary.Total())
	assert.Equal(t, 0, backend.count())
}

func TestMissingSolverSkipsEveryContract(t *testing.T) {
	res := runModule(t, DefaultConfig(), `module m {
    fn abs(n: I64) -> I64
        requires(n > 0 - 1000000)
        ensures(result >= 0)
    {
        if n < 0 {
            return 0 - n;
        }
        return n;
    }
}`, absentBackend{})

	require.Len(t, res.Verification, 1)
	assert.Equal(t, 2, res.Summary.Skipped)
	for _, out := range res.Verification[0].Outcomes {
		assert.Equal(t, contract.Skipped, out.Status)
		assert.Contains(t, out.Reason, "solver")
	}
}

func TestUnknownCallPolicies(t *testing.T) {
	src := `module m {
    fn caller() {
        metrics::bump("runs");
    }
}`
	base := DefaultConfig()
	base.UseSmtVerification = false

	strict := base
	strict.UnknownCallPolicy = PolicyStrict
	res := runModule(t, strict, src, nil)
	require.Len(t, res.Diagnostics, 1)
	assert.Equal(t, diag.CodeUnknownCallStrict, res.Diagnostics[0].Code)
	assert.Equal(t, diag.Error, res.Diagnostics[0].Severity)
	assert.Contains(t, res.Diagnostics[0].Message, "metrics::bump")

	fallback := base
	fallback.UnknownCallPolicy = PolicyDefault
	res = runModule(t, fallback, src, nil)
	require.Len(t, res.Diagnostics, 1)
	assert.Equal(t, diag.CodeUnknownCallAssumed, res.Diagnostics[0].Code)
	assert.Equal(t, diag.Warning, res.Diagnostics[0].Severity)
	assert.Contains(t, res.Diagnostics[0].Message, "assumed")

	permissive := base
	permissive.UnknownCallPolicy = PolicyPermissive
	res = runModule(t, permissive, src, nil)
	assert.Empty(t, res.Diagnostics)
}

func TestBuiltinCallsPassEveryPolicy(t *testing.T) {
	cfg := DefaultConfig()
	cfg.UseSmtVerification = false
	cfg.UnknownCallPolicy = PolicyStrict

	res := runModule(t, cfg, `module m {
    fn greet() writes(Console) {
        io::print("hello");
    }
}`, nil)
	assert.Empty(t, res.Diagnostics)
}

func TestFaultIsConfinedToOneFunction(t *testing.T) {
	module, reg := loadTyped(t, `module m {
    fn ok() -> I64 {
        return 1;
    }
}`)
	// A nil parameter entry crashes the flow passes; the coordinator
	// must turn that into a diagnostic instead of dying.
	module.Functions = append(module.Functions, &ast.Function{
		Name:   ast.Ident{Value: "broken"},
		Params: []*ast.FunctionParam{nil},
		Body:   &ast.FunctionBlock{},
	})

	cfg := DefaultConfig()
	cfg.UseSmtVerification = false
	res := NewCoordinator(cfg, reg, nil, nil).Analyze(context.Background(), module)

	assert.Equal(t, 2, res.Functions)
	require.Len(t, res.Diagnostics, 1)
	d := res.Diagnostics[0]
	assert.Equal(t, diag.CodeAnalyzerFault, d.Code)
	assert.Equal(t, "broken", d.Function)
	assert.Equal(t, diag.Other, d.Category)
	assert.Equal(t, diag.Warning, d.Severity)
}

func TestDiagnosticsAreSortedBySpan(t *testing.T) {
	cfg := DefaultConfig()
	cfg.UseSmtVerification = false
	cfg.EnableBugPatterns = false
	cfg.EnableTaintAnalysis = false

	res := runModule(t, cfg, `module m {
    fn first() -> I64 {
        let x: I64;
        return x;
    }
    fn second() -> I64 {
        let y: I64;
        return y;
    }
}`, nil)

	require.Len(t, res.Diagnostics, 2)
	assert.Equal(t, "first", res.Diagnostics[0].Function)
	assert.Equal(t, "second", res.Diagnostics[1].Function)
	assert.Less(t, res.Diagnostics[0].Span.Start.Line, res.Diagnostics[1].Span.Start.Line)
}

func TestCancelledRunSchedulesNothing(t *testing.T) {
	module, reg := loadTyped(t, `module m {
    fn id(x: I64) -> I64 {
        return x;
    }
}`)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := NewCoordinator(DefaultConfig(), reg, &unsatBackend{}, nil).Analyze(ctx, module)
	assert.Zero(t, res.Functions)
	assert.Empty(t, res.Diagnostics)
	assert.Empty(t, res.Verification)
}

func TestDisabledPassesStayQuiet(t *testing.T) {
	cfg := DefaultConfig()
	cfg.UseSmtVerification = false
	cfg.EnableDataflow = false
	cfg.EnableBugPatterns = false
	cfg.EnableTaintAnalysis = false

	res := runModule(t, cfg, `module m {
    #[external]
    fn handle(req: String) writes(Database) {
        let x: I64;
        db::exec(req);
    }
}`, nil)
	assert.Empty(t, res.Diagnostics)
	assert.Empty(t, res.Verification)
}
