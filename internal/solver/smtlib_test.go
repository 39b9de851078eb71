package solver

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"oath/internal/contract"
)

func TestRenderBasicTerms(t *testing.T) {
	x := contract.NewVar("x", contract.SortInt)

	cases := []struct {
		term contract.Term
		want string
	}{
		{contract.Int(42), "42"},
		{contract.Int(-5), "(- 5)"},
		{contract.True, "true"},
		{x, "x"},
		{&contract.Arith{Op: contract.OpAdd, Left: x, Right: contract.Int(1)}, "(+ x 1)"},
		{&contract.Arith{Op: contract.OpDiv, Left: x, Right: contract.Int(2)}, "(div x 2)"},
		{&contract.Arith{Op: contract.OpMod, Left: x, Right: contract.Int(2)}, "(mod x 2)"},
		{&contract.Compare{Op: contract.OpNe, Left: x, Right: contract.Int(0)}, "(distinct x 0)"},
		{&contract.Compare{Op: contract.OpLe, Left: x, Right: contract.Int(9)}, "(<= x 9)"},
		{&contract.Not{X: contract.True}, "(not true)"},
		{&contract.Implies{Ante: contract.True, Cons: contract.False}, "(=> true false)"},
		{&contract.Neg{X: x}, "(- x)"},
		{&contract.Select{Array: contract.NewVar("a", contract.SortIntArray), Index: x}, "(select a x)"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, renderTerm(tc.term))
	}
}

func TestRenderNestedConnectives(t *testing.T) {
	x := contract.NewVar("x", contract.SortInt)
	term := contract.NewAnd(
		&contract.Compare{Op: contract.OpGt, Left: x, Right: contract.Int(0)},
		contract.NewOr(contract.True, contract.False),
	)
	assert.Equal(t, "(and (> x 0) (or true false))", renderTerm(term))
}

func TestScriptRendersDeterministically(t *testing.T) {
	s := newScript(1200)
	s.assert(&contract.Compare{
		Op:    contract.OpGt,
		Left:  contract.NewVar("b", contract.SortInt),
		Right: contract.Int(0),
	})
	goal := &contract.Compare{
		Op:    contract.OpEq,
		Left:  contract.NewVar("a", contract.SortInt),
		Right: contract.NewVar("b", contract.SortInt),
	}

	text := s.render(goal)
	assert.Contains(t, text, "(set-option :timeout 1200)")
	assert.Contains(t, text, "(assert (not (= a b)))")
	assert.Contains(t, text, "(check-sat)")

	// Declarations come out sorted so cache keys and logs are stable.
	aID := strings.Index(text, "(declare-const a Int)")
	bID := strings.Index(text, "(declare-const b Int)")
	assert.True(t, aID >= 0 && bID > aID)

	assert.Equal(t, text, s.render(goal))
}

func TestScriptDeclaresArraySort(t *testing.T) {
	s := newScript(100)
	goal := &contract.Compare{
		Op:    contract.OpGt,
		Left:  &contract.Select{Array: contract.NewVar("items", contract.SortIntArray), Index: contract.Int(0)},
		Right: contract.Int(0),
	}
	assert.Contains(t, s.render(goal), "(declare-const items (Array Int Int))")
}
