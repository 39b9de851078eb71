package solver

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oath/internal/contract"
	"oath/internal/types"
)

// bodyOf builds the symbolic model for the first function of source.
func bodyOf(t *testing.T, source string) *bodyModel {
	t.Helper()
	module := checkedModule(t, source)
	fn := module.Functions[0]
	sc := contract.NewScope()
	for _, p := range fn.Params {
		var ty types.Type = types.Unknown
		if p.Type != nil && p.Type.Resolved != nil {
			ty = p.Type.Resolved
		}
		sc.BindVar(p.Name.Value, ty)
	}
	return modelBody(fn, contract.NewEncoder(contract.ModeTrap), sc, DefaultMaxUnroll)
}

func countAssumes(body *bodyModel, fragment string) int {
	n := 0
	for _, a := range body.Assumes {
		if strings.Contains(a.String(), fragment) {
			n++
		}
	}
	return n
}

func TestBodyBindsResultToReturnValue(t *testing.T) {
	body := bodyOf(t, safeDivideSource)

	require.NotNil(t, body.Result)
	assert.False(t, body.Widened)
	assert.Positive(t, countAssumes(body, "(b != 0)"),
		"the division trap rides into the path condition")
	assert.Positive(t, countAssumes(body, "result"))
}

func TestBranchReturnsAreGuarded(t *testing.T) {
	body := bodyOf(t, `module m {
		fn abs_like(x: I64) -> I64
			ensures(result >= 0)
		{
			if x < 0 {
				return 0 - x;
			}
			return x;
		}
	}`)

	require.NotNil(t, body.Result)
	assert.False(t, body.Widened)
	assert.Equal(t, 2, countAssumes(body, "result"),
		"each return contributes its own guarded equation")

	fallthroughGuarded := false
	for _, a := range body.Assumes {
		imp, ok := a.(*contract.Implies)
		if !ok {
			continue
		}
		if _, neg := imp.Ante.(*contract.Not); neg && strings.Contains(imp.Cons.String(), "result") {
			fallthroughGuarded = true
		}
	}
	assert.True(t, fallthroughGuarded,
		"the fallthrough return only holds when the branch was not taken")
}

func TestThrowingBranchIsExcluded(t *testing.T) {
	body := bodyOf(t, `module m {
		fn checked(a: I64) -> I64
			ensures(result == a)
		{
			if a < 0 {
				throw;
			}
			return a;
		}
	}`)

	assert.False(t, body.Widened)
	excluded := false
	for _, a := range body.Assumes {
		imp, ok := a.(*contract.Implies)
		if !ok {
			continue
		}
		if bc, isBool := imp.Cons.(*contract.BoolConst); isBool && !bc.Val {
			excluded = true
		}
	}
	assert.True(t, excluded, "a throwing path contributes a false consequent under its guard")
}

func TestWhileLoopWidensAndHavocs(t *testing.T) {
	body := bodyOf(t, `module m {
		fn drain(n: U64) -> U64
			ensures(result == n)
		{
			let x: U64 = n;
			while x > 0 {
				x = x - 1;
			}
			return x;
		}
	}`)

	assert.True(t, body.Widened)
	assert.Contains(t, body.Reason, "not statically known")
	assert.Positive(t, countAssumes(body, "x.1"),
		"the loop havocs x to a fresh variable constrained by its type domain")
}

func TestBoundedForLoopUnrolls(t *testing.T) {
	body := bodyOf(t, `module m {
		fn small_sum() -> I64
			ensures(result == 3)
		{
			let total: I64 = 0;
			for i in 0..3 {
				total = total + i;
			}
			return total;
		}
	}`)

	require.NotNil(t, body.Result)
	assert.False(t, body.Widened, "a three-trip loop unrolls instead of widening")

	var resultEq contract.Term
	for _, a := range body.Assumes {
		if cmp, ok := a.(*contract.Compare); ok && cmp.Op == contract.OpEq && cmp.Left.String() == "result" {
			resultEq = a
		}
	}
	require.NotNil(t, resultEq, "the returned sum is equated with result")

	ok, err := contract.EvalBool(resultEq, contract.Model{"result": contract.IntValue(3)})
	require.NoError(t, err)
	assert.True(t, ok, "0 + 1 + 2 evaluates to 3")
}

func TestOversizedForLoopWidens(t *testing.T) {
	body := bodyOf(t, `module m {
		fn big_sum() -> I64 {
			let total: I64 = 0;
			for i in 0..1000 {
				total = total + i;
			}
			return total;
		}
	}`)

	assert.True(t, body.Widened)
	assert.Contains(t, body.Reason, "unroll budget")
}

func TestUnknownBoundForLoopWidens(t *testing.T) {
	body := bodyOf(t, `module m {
		fn count_to(n: I64) -> I64 {
			let total: I64 = 0;
			for i in 0..n {
				total = total + 1;
			}
			return total;
		}
	}`)

	assert.True(t, body.Widened)
	assert.Contains(t, body.Reason, "not statically known")
}
