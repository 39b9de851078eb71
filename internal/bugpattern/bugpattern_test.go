package bugpattern

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oath/internal/ast"
	"oath/internal/cfg"
	"oath/internal/diag"
	"oath/internal/effects"
	"oath/internal/parser"
	"oath/internal/semantic"
	"oath/internal/types"
)

func detectFunc(t *testing.T, source string) []diag.Diagnostic {
	t.Helper()
	module, parseDiags := parser.ParseModule("test.oath", source)
	require.NotNil(t, module, "source must parse")
	require.Empty(t, parseDiags)
	semaDiags := semantic.NewAnalyzer(effects.NewRegistry()).Analyze(module)
	require.Empty(t, semaDiags, "source must typecheck")
	return NewDetector().Analyze(cfg.Build(module.Functions[0]))
}

func TestPreconditionExcludesZeroDivisor(t *testing.T) {
	// The division in the ensures clause must not be scanned either:
	// contracts are the verifier's input, not runtime code.
	diags := detectFunc(t, `module m {
    fn safe_divide(a: I64, b: I64) -> I64
        requires(b != 0)
        ensures(result == a / b)
    {
        return a / b;
    }
}`)
	assert.Empty(t, diags)
}

func TestUnguardedDivisorMayBeZero(t *testing.T) {
	diags := detectFunc(t, `module m {
    fn unsafe_divide(a: I64, b: I64) -> I64 {
        return a / b;
    }
}`)
	require.Len(t, diags, 1)
	assert.Equal(t, diag.CodePossibleDivisionByZero, diags[0].Code)
	assert.Equal(t, diag.Warning, diags[0].Severity)
	assert.Contains(t, diags[0].Message, "'b'")
	assert.Equal(t, "unsafe_divide", diags[0].Function)
}

func TestGuardExcludesZeroDivisor(t *testing.T) {
	diags := detectFunc(t, `module m {
    fn f(a: I64, b: I64) -> I64 {
        if b != 0 {
            return a / b;
        }
        return 0;
    }
}`)
	assert.Empty(t, diags)
}

func TestZeroGuardTrueBranchIsDefinite(t *testing.T) {
	// Inside the b == 0 branch the divisor is pinned to zero; outside it
	// the same division is fine.
	diags := detectFunc(t, `module m {
    fn f(a: I64, b: I64) -> I64 {
        if b == 0 {
            return a / b;
        }
        return a / b;
    }
}`)
	require.Len(t, diags, 1)
	assert.Equal(t, diag.CodeDivisionByZero, diags[0].Code)
	assert.Equal(t, diag.Error, diags[0].Severity)
	assert.Contains(t, diags[0].Message, "always zero")
}

func TestLiteralZeroDivisor(t *testing.T) {
	diags := detectFunc(t, `module m {
    fn f(a: I64) -> I64 {
        return a / 0;
    }
}`)
	require.Len(t, diags, 1)
	assert.Equal(t, diag.CodeDivisionByZero, diags[0].Code)
}

func TestModuloDivisorChecked(t *testing.T) {
	diags := detectFunc(t, `module m {
    fn f(a: U64, b: U64) -> U64 {
        return a % b;
    }
}`)
	require.Len(t, diags, 1)
	assert.Equal(t, diag.CodePossibleDivisionByZero, diags[0].Code)
}

func TestConstantOverflowReported(t *testing.T) {
	diags := detectFunc(t, `module m {
    fn f() -> I64 {
        let x: I64 = 9223372036854775807 + 1;
        return x;
    }
}`)
	require.Len(t, diags, 1)
	assert.Equal(t, diag.CodeIntegerOverflow, diags[0].Code)
	assert.Contains(t, diags[0].Message, "9223372036854775808")
	assert.Contains(t, diags[0].Message, "I64")
}

func TestOverflowReportedAtInnerProvableNode(t *testing.T) {
	// The outer product folds to 0 and fits; the trapping inner sum is
	// still reported, once.
	diags := detectFunc(t, `module m {
    fn f() -> I64 {
        let x: I64 = (9223372036854775807 + 1) * 0;
        return x;
    }
}`)
	require.Len(t, diags, 1)
	assert.Equal(t, diag.CodeIntegerOverflow, diags[0].Code)
}

func TestConstantPropagationFeedsOverflowCheck(t *testing.T) {
	diags := detectFunc(t, `module m {
    fn f() -> I64 {
        let a: I64 = 9223372036854775807;
        let b: I64 = a + 1;
        return b;
    }
}`)
	require.Len(t, diags, 1)
	assert.Equal(t, diag.CodeIntegerOverflow, diags[0].Code)
}

func TestInRangeConstantsAreClean(t *testing.T) {
	diags := detectFunc(t, `module m {
    fn f() -> I64 {
        let x: I64 = 100 + 100;
        return x * 2;
    }
}`)
	assert.Empty(t, diags)
}

func TestMaybeNullIndexTarget(t *testing.T) {
	diags := detectFunc(t, `module m {
    fn first(items: Array<I64>?) -> I64 {
        return items[0];
    }
}`)
	require.Len(t, diags, 1)
	assert.Equal(t, diag.CodeNullDereference, diags[0].Code)
	assert.Equal(t, diag.Warning, diags[0].Severity)
	assert.Contains(t, diags[0].Message, "'items'")
}

func TestNullCheckGuardsDereference(t *testing.T) {
	diags := detectFunc(t, `module m {
    fn first(items: Array<I64>?) -> I64 {
        if items != null {
            return items[0];
        }
        return 0;
    }
}`)
	assert.Empty(t, diags)
}

func TestPreconditionNotNullSilences(t *testing.T) {
	diags := detectFunc(t, `module m {
    fn first(items: Array<I64>?) -> I64
        requires(items != null)
    {
        return items[0];
    }
}`)
	assert.Empty(t, diags)
}

func TestNullArithmeticOperand(t *testing.T) {
	diags := detectFunc(t, `module m {
    fn f(x: I64?) -> I64 {
        return x + 1;
    }
}`)
	require.Len(t, diags, 1)
	assert.Equal(t, diag.CodeNullDereference, diags[0].Code)
	assert.Contains(t, diags[0].Message, "'x'")
}

func TestAssignClearsNullability(t *testing.T) {
	diags := detectFunc(t, `module m {
    fn f(x: I64?) -> I64 {
        x = 5;
        return x + 1;
    }
}`)
	assert.Empty(t, diags)
}

func TestNullAssignmentTracked(t *testing.T) {
	diags := detectFunc(t, `module m {
    fn f() -> U64 {
        let name: String? = null;
        return len(name);
    }
}`)
	require.Len(t, diags, 1)
	assert.Equal(t, diag.CodeNullDereference, diags[0].Code)
	assert.Contains(t, diags[0].Message, "'name'")
}

func TestIndexInFailedBoundsCheckBranch(t *testing.T) {
	diags := detectFunc(t, `module m {
    fn get(items: Array<I64>, i: U64) -> I64 {
        if i >= len(items) {
            return items[i];
        }
        return items[i];
    }
}`)
	require.Len(t, diags, 1)
	assert.Equal(t, diag.CodeIndexOutOfBounds, diags[0].Code)
	assert.Contains(t, diags[0].Message, "past the end")
	assert.Equal(t, 4, diags[0].Span.Start.Line)
}

func TestAlwaysNegativeIndex(t *testing.T) {
	diags := detectFunc(t, `module m {
    fn f(items: Array<I64>) -> I64 {
        let i: I64 = 0 - 1;
        return items[i];
    }
}`)
	require.Len(t, diags, 1)
	assert.Equal(t, diag.CodeIndexOutOfBounds, diags[0].Code)
	assert.Contains(t, diags[0].Message, "negative")
}

func TestLoopGuardRefinesWidenedCounter(t *testing.T) {
	// The counter's interval is widened after a few worklist rounds; the
	// i > 0 guard must still keep the divisor nonzero inside the body.
	diags := detectFunc(t, `module m {
    fn f(a: I64, n: I64) -> I64 {
        let total: I64 = 0;
        let i: I64 = n;
        while i > 0 {
            total = total + a / i;
            i = i - 1;
        }
        return total;
    }
}`)
	assert.Empty(t, diags)
}

func TestOpaqueBlockIsNotInspected(t *testing.T) {
	div := &ast.BinaryExpr{
		Op:    "/",
		Left:  &ast.IdentExpr{Name: "a", Ty: types.I64},
		Right: &ast.LiteralExpr{Kind: ast.IntLit, Value: "0", Ty: types.I64},
		Ty:    types.I64,
	}
	fn := &ast.Function{
		Name: ast.Ident{Value: "broken"},
		Body: &ast.FunctionBlock{Stmts: []ast.Stmt{
			&ast.UnknownStmt{Reason: "unparsed region"},
			&ast.ReturnStmt{Value: div},
		}},
	}
	g := cfg.Build(fn)
	require.True(t, g.HasOpaque())
	assert.Empty(t, NewDetector().Analyze(g))
}
