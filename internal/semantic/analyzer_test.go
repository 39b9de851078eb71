package semantic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oath/internal/diag"
	"oath/internal/effects"
	"oath/internal/parser"
)

func analyzeSource(t *testing.T, source string) []diag.Diagnostic {
	t.Helper()
	module, parseDiags := parser.ParseModule("test.oath", source)
	require.Empty(t, parseDiags, "Source should parse cleanly")
	require.NotNil(t, module)

	analyzer := NewAnalyzer(effects.NewRegistry())
	return analyzer.Analyze(module)
}

func hasCode(diags []diag.Diagnostic, code string) bool {
	for _, d := range diags {
		if d.Code == code {
			return true
		}
	}
	return false
}

func TestAnalyzeValidFunction(t *testing.T) {
	diags := analyzeSource(t, `module Math {
    fn safe_divide(a: I64, b: I64) -> I64
    requires(b != 0)
    ensures(result == a / b)
    {
        return a / b;
    }
}`)
	assert.Empty(t, diags, "Valid function should produce no diagnostics")
}

func TestAnalyzeUndefinedVariable(t *testing.T) {
	diags := analyzeSource(t, `module Test {
    fn f() -> I64 {
        return missing + 1;
    }
}`)
	assert.True(t, hasCode(diags, diag.CodeUndefinedVariable))
}

func TestAnalyzeUndefinedFunction(t *testing.T) {
	diags := analyzeSource(t, `module Test {
    fn f() {
        helper();
    }
}`)
	assert.True(t, hasCode(diags, diag.CodeUndefinedFunction))
}

func TestAnalyzeCallBeforeDeclaration(t *testing.T) {
	diags := analyzeSource(t, `module Test {
    fn f() -> I64 {
        return helper(1);
    }

    fn helper(x: I64) -> I64 {
        return x;
    }
}`)
	assert.Empty(t, diags, "Forward references should resolve via the declaration pass")
}

func TestAnalyzeTypeMismatch(t *testing.T) {
	diags := analyzeSource(t, `module Test {
    fn f() {
        let flag: Bool = 42;
    }
}`)
	assert.True(t, hasCode(diags, diag.CodeTypeMismatch))
}

func TestAnalyzeDuplicateDeclarations(t *testing.T) {
	diags := analyzeSource(t, `module Test {
    fn twice() {
    }

    fn twice() {
    }
}`)
	assert.True(t, hasCode(diags, diag.CodeDuplicateDeclaration))

	diags = analyzeSource(t, `module Test {
    fn f(x: I64, x: I64) {
    }
}`)
	assert.True(t, hasCode(diags, diag.CodeDuplicateDeclaration))

	diags = analyzeSource(t, `module Test {
    fn f() {
        let x = 1;
        let x = 2;
    }
}`)
	assert.True(t, hasCode(diags, diag.CodeDuplicateDeclaration))
}

func TestAnalyzeShadowingInNestedScope(t *testing.T) {
	diags := analyzeSource(t, `module Test {
    fn f(x: I64) -> I64 {
        if x > 0 {
            let x = 1;
            return x;
        }
        return x;
    }
}`)
	assert.Empty(t, diags, "Inner scopes may shadow outer names")
}

func TestAnalyzeLiteralOverflow(t *testing.T) {
	diags := analyzeSource(t, `module Test {
    fn f() {
        let small: U8 = 300;
    }
}`)
	assert.True(t, hasCode(diags, diag.CodeNumericOverflow))
}

func TestAnalyzeLiteralAdoption(t *testing.T) {
	diags := analyzeSource(t, `module Test {
    fn f() -> Bool {
        let counter: U8 = 250;
        return counter + 1 > 200;
    }
}`)
	assert.Empty(t, diags, "Literals should adopt the other operand's type when they fit")
}

func TestAnalyzeNegativeLiteralBounds(t *testing.T) {
	diags := analyzeSource(t, `module Test {
    fn f() {
        let lo: I8 = -128;
    }
}`)
	assert.Empty(t, diags, "-128 fits I8")

	diags = analyzeSource(t, `module Test {
    fn f() {
        let lo: I8 = -129;
    }
}`)
	assert.True(t, hasCode(diags, diag.CodeNumericOverflow))
}

func TestAnalyzeIntegerWidening(t *testing.T) {
	diags := analyzeSource(t, `module Test {
    fn f(narrow: I32) -> I64 {
        let wide: I64 = narrow;
        return wide;
    }
}`)
	assert.Empty(t, diags, "Widening within one signedness is implicit")

	diags = analyzeSource(t, `module Test {
    fn f(wide: I64) -> I32 {
        let narrow: I32 = wide;
        return narrow;
    }
}`)
	assert.True(t, hasCode(diags, diag.CodeTypeMismatch), "Narrowing needs a cast")
}

func TestAnalyzeMixedSignedness(t *testing.T) {
	diags := analyzeSource(t, `module Test {
    fn f(a: U32, b: I32) -> I64 {
        return a + b;
    }
}`)
	assert.True(t, hasCode(diags, diag.CodeTypeMismatch))
}

func TestAnalyzeContractNotBoolean(t *testing.T) {
	diags := analyzeSource(t, `module Test {
    fn f(a: I64) -> I64
    requires(a + 1)
    {
        return a;
    }
}`)
	assert.True(t, hasCode(diags, diag.CodeContractNotBoolean))
}

func TestAnalyzeResultPlacement(t *testing.T) {
	diags := analyzeSource(t, `module Test {
    fn f(a: I64) -> I64
    requires(result > 0)
    {
        return a;
    }
}`)
	assert.True(t, hasCode(diags, diag.CodeResultOutsidePost), "result is not visible in requires")

	diags = analyzeSource(t, `module Test {
    fn f(a: I64) -> I64 {
        let result = a;
        return result;
    }
}`)
	assert.True(t, hasCode(diags, diag.CodeResultOutsidePost), "result cannot be declared")

	diags = analyzeSource(t, `module Test {
    fn f(a: I64)
    ensures(result > 0)
    {
    }
}`)
	assert.True(t, hasCode(diags, diag.CodeResultOutsidePost), "void functions have no result")
}

func TestAnalyzeInvalidEffect(t *testing.T) {
	diags := analyzeSource(t, `module Test {
    fn f()
    writes(Filesystem)
    {
    }
}`)
	assert.True(t, hasCode(diags, diag.CodeInvalidEffect))
}

func TestAnalyzeKnownResources(t *testing.T) {
	diags := analyzeSource(t, `module Test {
    fn f(sql: String)
    reads(Input)
    writes(Database, Process, Markup, Console)
    {
        db::exec(sql);
    }
}`)
	assert.Empty(t, diags, "All five resources should be accepted")
}

func TestAnalyzeBuiltinArgMismatch(t *testing.T) {
	diags := analyzeSource(t, `module Test {
    fn f(sql: String) {
        db::exec(sql, sql);
    }
}`)
	assert.True(t, hasCode(diags, diag.CodeInvalidArguments))
}

func TestAnalyzeBuiltinArgType(t *testing.T) {
	diags := analyzeSource(t, `module Test {
    fn f() {
        db::exec(42);
    }
}`)
	assert.True(t, hasCode(diags, diag.CodeTypeMismatch))
}

func TestAnalyzeUnknownModuleCallTolerated(t *testing.T) {
	diags := analyzeSource(t, `module Test {
    fn f(x: I64) -> I64 {
        return legacy::compute(x);
    }
}`)
	assert.Empty(t, diags, "Calls into unknown modules are left to the unknown-call policy")
}

func TestAnalyzeBuiltinModuleTypo(t *testing.T) {
	diags := analyzeSource(t, `module Test {
    fn f(sql: String) {
        db::execute(sql);
    }
}`)
	assert.True(t, hasCode(diags, diag.CodeUndefinedFunction),
		"A miss inside a known module is a plain undefined function")
}

func TestAnalyzeConditionNotBoolean(t *testing.T) {
	diags := analyzeSource(t, `module Test {
    fn f(x: I64) {
        if x {
        }
    }
}`)
	assert.True(t, hasCode(diags, diag.CodeInvalidCondition))
}

func TestAnalyzeReturnMismatches(t *testing.T) {
	diags := analyzeSource(t, `module Test {
    fn f() -> I64 {
        return;
    }
}`)
	assert.True(t, hasCode(diags, diag.CodeInvalidReturn), "Missing return value")

	diags = analyzeSource(t, `module Test {
    fn f() {
        return 1;
    }
}`)
	assert.True(t, hasCode(diags, diag.CodeInvalidReturn), "Void function returning a value")

	diags = analyzeSource(t, `module Test {
    fn f() -> Bool {
        return 1;
    }
}`)
	assert.True(t, hasCode(diags, diag.CodeInvalidReturn), "Wrong return type")
}

func TestAnalyzeNullability(t *testing.T) {
	diags := analyzeSource(t, `module Test {
    fn f() {
        let name: String? = null;
        if name == null {
        }
    }
}`)
	assert.Empty(t, diags, "Nullable declaration and null comparison are fine")

	diags = analyzeSource(t, `module Test {
    fn f() {
        let name: String = null;
    }
}`)
	assert.True(t, hasCode(diags, diag.CodeTypeMismatch), "null needs a nullable slot")

	diags = analyzeSource(t, `module Test {
    fn f(x: I64) -> Bool {
        return x == null;
    }
}`)
	assert.True(t, hasCode(diags, diag.CodeTypeMismatch), "Non-nullable cannot be compared to null")
}

func TestAnalyzeIndexing(t *testing.T) {
	diags := analyzeSource(t, `module Test {
    fn f(values: Array<I64>, i: U64) -> I64 {
        return values[i];
    }
}`)
	assert.Empty(t, diags)

	diags = analyzeSource(t, `module Test {
    fn f(x: I64) -> I64 {
        return x[0];
    }
}`)
	assert.True(t, hasCode(diags, diag.CodeTypeMismatch), "Integers do not support indexing")
}

func TestAnalyzeLen(t *testing.T) {
	diags := analyzeSource(t, `module Test {
    fn f(values: Array<I64>, s: String) -> U64 {
        return len(values) + len(s);
    }
}`)
	assert.Empty(t, diags)

	diags = analyzeSource(t, `module Test {
    fn f(x: Bool) -> U64 {
        return len(x);
    }
}`)
	assert.True(t, hasCode(diags, diag.CodeTypeMismatch))
}

func TestAnalyzeForLoop(t *testing.T) {
	diags := analyzeSource(t, `module Test {
    fn sum(n: U64) -> U64 {
        let total: U64 = 0;
        for i in 0..n {
            total = total + i;
        }
        return total;
    }
}`)
	assert.Empty(t, diags, "Loop variable should adopt the bound type")
}

func TestAnalyzeUnknownType(t *testing.T) {
	diags := analyzeSource(t, `module Test {
    fn f(x: Widget) {
    }
}`)
	assert.True(t, hasCode(diags, diag.CodeTypeMismatch))
}

func TestAnalyzeEnsuresSeesResultType(t *testing.T) {
	diags := analyzeSource(t, `module Test {
    fn abs(x: I64) -> I64
    ensures(result >= 0)
    {
        if x < 0 {
            return -x;
        }
        return x;
    }
}`)
	assert.Empty(t, diags)
}

func TestAnalyzeDiagnosticCarriesFunction(t *testing.T) {
	diags := analyzeSource(t, `module Test {
    fn offender() {
        let flag: Bool = 42;
    }
}`)
	require.NotEmpty(t, diags)
	assert.Equal(t, "offender", diags[0].Function)
}
