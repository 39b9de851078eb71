package contract

import (
	"fmt"
	"math/big"
)

// Eval evaluates a closed-under-model term. It backs the orchestrator's
// counterexample check: a model that does not actually falsify the
// contract is reported as Unproven rather than Disproven.
func Eval(t Term, m Model) (Value, error) {
	switch n := t.(type) {
	case *IntConst:
		return &IntVal{Val: n.Val}, nil
	case *BoolConst:
		return &BoolVal{Val: n.Val}, nil
	case *Var:
		if v, ok := m[n.Name]; ok {
			return v, nil
		}
		return zeroValue(n.VarSort), nil
	case *Arith:
		return evalArith(n, m)
	case *Neg:
		x, err := evalInt(n.X, m)
		if err != nil {
			return nil, err
		}
		return &IntVal{Val: new(big.Int).Neg(x)}, nil
	case *Compare:
		return evalCompare(n, m)
	case *Not:
		x, err := EvalBool(n.X, m)
		if err != nil {
			return nil, err
		}
		return &BoolVal{Val: !x}, nil
	case *And:
		for _, c := range n.Conj {
			v, err := EvalBool(c, m)
			if err != nil {
				return nil, err
			}
			if !v {
				return &BoolVal{Val: false}, nil
			}
		}
		return &BoolVal{Val: true}, nil
	case *Or:
		for _, d := range n.Disj {
			v, err := EvalBool(d, m)
			if err != nil {
				return nil, err
			}
			if v {
				return &BoolVal{Val: true}, nil
			}
		}
		return &BoolVal{Val: false}, nil
	case *Implies:
		a, err := EvalBool(n.Ante, m)
		if err != nil {
			return nil, err
		}
		if !a {
			return &BoolVal{Val: true}, nil
		}
		c, err := EvalBool(n.Cons, m)
		if err != nil {
			return nil, err
		}
		return &BoolVal{Val: c}, nil
	case *Ite:
		c, err := EvalBool(n.Cond, m)
		if err != nil {
			return nil, err
		}
		if c {
			return Eval(n.Then, m)
		}
		return Eval(n.Else, m)
	case *Select:
		return evalSelect(n, m)
	case *Store:
		return evalStore(n, m)
	}
	return nil, fmt.Errorf("cannot evaluate term %s", t)
}

// EvalBool evaluates a boolean term.
func EvalBool(t Term, m Model) (bool, error) {
	v, err := Eval(t, m)
	if err != nil {
		return false, err
	}
	b, ok := v.(*BoolVal)
	if !ok {
		return false, fmt.Errorf("term %s is not boolean", t)
	}
	return b.Val, nil
}

func evalInt(t Term, m Model) (*big.Int, error) {
	v, err := Eval(t, m)
	if err != nil {
		return nil, err
	}
	iv, ok := v.(*IntVal)
	if !ok {
		return nil, fmt.Errorf("term %s is not an integer", t)
	}
	return iv.Val, nil
}

// evalArith applies an integer operation. Div and Mod are Euclidean,
// which big.Int.DivMod implements directly.
func evalArith(n *Arith, m Model) (Value, error) {
	l, err := evalInt(n.Left, m)
	if err != nil {
		return nil, err
	}
	r, err := evalInt(n.Right, m)
	if err != nil {
		return nil, err
	}
	out := new(big.Int)
	switch n.Op {
	case OpAdd:
		out.Add(l, r)
	case OpSub:
		out.Sub(l, r)
	case OpMul:
		out.Mul(l, r)
	case OpDiv, OpMod:
		if r.Sign() == 0 {
			return nil, fmt.Errorf("division by zero while evaluating %s", n)
		}
		q, rem := new(big.Int), new(big.Int)
		q.DivMod(l, r, rem)
		if n.Op == OpDiv {
			out = q
		} else {
			out = rem
		}
	default:
		return nil, fmt.Errorf("unknown operation %s", n.Op)
	}
	return &IntVal{Val: out}, nil
}

func evalCompare(n *Compare, m Model) (Value, error) {
	lv, err := Eval(n.Left, m)
	if err != nil {
		return nil, err
	}
	rv, err := Eval(n.Right, m)
	if err != nil {
		return nil, err
	}
	if lb, ok := lv.(*BoolVal); ok {
		rb, ok := rv.(*BoolVal)
		if !ok {
			return nil, fmt.Errorf("mixed sorts in %s", n)
		}
		switch n.Op {
		case OpEq:
			return &BoolVal{Val: lb.Val == rb.Val}, nil
		case OpNe:
			return &BoolVal{Val: lb.Val != rb.Val}, nil
		}
		return nil, fmt.Errorf("cannot order booleans in %s", n)
	}
	li, ok := lv.(*IntVal)
	if !ok {
		return nil, fmt.Errorf("term %s is not an integer", n.Left)
	}
	ri, ok := rv.(*IntVal)
	if !ok {
		return nil, fmt.Errorf("term %s is not an integer", n.Right)
	}
	cmp := li.Val.Cmp(ri.Val)
	var res bool
	switch n.Op {
	case OpEq:
		res = cmp == 0
	case OpNe:
		res = cmp != 0
	case OpLt:
		res = cmp < 0
	case OpLe:
		res = cmp <= 0
	case OpGt:
		res = cmp > 0
	case OpGe:
		res = cmp >= 0
	}
	return &BoolVal{Val: res}, nil
}

func evalArray(t Term, m Model) (*ArrayVal, error) {
	v, err := Eval(t, m)
	if err != nil {
		return nil, err
	}
	av, ok := v.(*ArrayVal)
	if !ok {
		return nil, fmt.Errorf("term %s is not an array", t)
	}
	return av, nil
}

func evalSelect(n *Select, m Model) (Value, error) {
	arr, err := evalArray(n.Array, m)
	if err != nil {
		return nil, err
	}
	idx, err := evalInt(n.Index, m)
	if err != nil {
		return nil, err
	}
	if !idx.IsInt64() {
		return nil, fmt.Errorf("index %s out of evaluable range", idx)
	}
	if e, ok := arr.Elems[idx.Int64()]; ok {
		return &IntVal{Val: e}, nil
	}
	def := arr.Default
	if def == nil {
		def = big.NewInt(0)
	}
	return &IntVal{Val: def}, nil
}

func evalStore(n *Store, m Model) (Value, error) {
	arr, err := evalArray(n.Array, m)
	if err != nil {
		return nil, err
	}
	idx, err := evalInt(n.Index, m)
	if err != nil {
		return nil, err
	}
	val, err := evalInt(n.Value, m)
	if err != nil {
		return nil, err
	}
	if !idx.IsInt64() {
		return nil, fmt.Errorf("index %s out of evaluable range", idx)
	}
	elems := make(map[int64]*big.Int, len(arr.Elems)+1)
	for k, v := range arr.Elems {
		elems[k] = v
	}
	elems[idx.Int64()] = val
	return &ArrayVal{Default: arr.Default, Elems: elems}, nil
}

func zeroValue(s Sort) Value {
	switch s {
	case SortBool:
		return &BoolVal{}
	case SortIntArray:
		return &ArrayVal{Default: big.NewInt(0), Elems: map[int64]*big.Int{}}
	}
	return &IntVal{Val: big.NewInt(0)}
}
