package contract

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvalEuclideanDivMod(t *testing.T) {
	div := &Arith{Op: OpDiv, Left: Int(-7), Right: Int(2)}
	v, err := Eval(div, Model{})
	require.NoError(t, err)
	assert.Equal(t, "-4", v.String(), "Euclidean quotient rounds so the remainder is non-negative")

	mod := &Arith{Op: OpMod, Left: Int(-7), Right: Int(2)}
	v, err = Eval(mod, Model{})
	require.NoError(t, err)
	assert.Equal(t, "1", v.String())
}

func TestEvalDivisionByZeroErrors(t *testing.T) {
	div := &Arith{Op: OpDiv, Left: Int(1), Right: Int(0)}
	_, err := Eval(div, Model{})
	assert.Error(t, err)
}

func TestEvalImplication(t *testing.T) {
	imp := &Implies{Ante: False, Cons: False}
	ok, err := EvalBool(imp, Model{})
	require.NoError(t, err)
	assert.True(t, ok, "a false antecedent makes the implication hold")
}

func TestEvalMissingVariableDefaultsToZero(t *testing.T) {
	cmp := &Compare{Op: OpEq, Left: NewVar("ghost", SortInt), Right: Int(0)}
	ok, err := EvalBool(cmp, Model{})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEvalStoreThenSelect(t *testing.T) {
	arr := NewVar("items", SortIntArray)
	stored := &Store{Array: arr, Index: Int(2), Value: Int(99)}

	hit := &Select{Array: stored, Index: Int(2)}
	v, err := Eval(hit, Model{"items": &ArrayVal{Default: big.NewInt(7), Elems: map[int64]*big.Int{}}})
	require.NoError(t, err)
	assert.Equal(t, "99", v.String())

	miss := &Select{Array: stored, Index: Int(0)}
	v, err = Eval(miss, Model{"items": &ArrayVal{Default: big.NewInt(7), Elems: map[int64]*big.Int{}}})
	require.NoError(t, err)
	assert.Equal(t, "7", v.String(), "unstored indices fall back to the array default")
}

func TestEvalIteBranches(t *testing.T) {
	ite := &Ite{
		Cond: &Compare{Op: OpLt, Left: NewVar("x", SortInt), Right: Int(0)},
		Then: &Neg{X: NewVar("x", SortInt)},
		Else: NewVar("x", SortInt),
	}
	v, err := Eval(ite, Model{"x": IntValue(-3)})
	require.NoError(t, err)
	assert.Equal(t, "3", v.String())
}

func TestModelStringIsSorted(t *testing.T) {
	m := Model{"b": IntValue(2), "a": IntValue(1)}
	assert.Equal(t, "a = 1, b = 2", m.String())
}

func TestCounterexampleString(t *testing.T) {
	c := &Counterexample{Inputs: map[string]string{"n": "-1", "cap": "0"}}
	assert.Equal(t, "cap = 0, n = -1", c.String())

	var empty *Counterexample
	assert.Equal(t, "(none)", empty.String())
}

func TestOutcomeString(t *testing.T) {
	o := Outcome{
		Kind:           KindEnsures,
		Expr:           "result <= max",
		Status:         Disproven,
		Counterexample: &Counterexample{Inputs: map[string]string{"value": "11"}},
	}
	assert.Equal(t, "ensures(result <= max): disproven [value = 11]", o.String())
}
