package contract

import (
	"math/big"
	"strings"
)

// Sort is the logical sort of a term. Integers are unbounded here;
// machine width enters through the encoder's wrap and trap handling.
type Sort int

const (
	SortInt Sort = iota
	SortBool
	SortIntArray
)

func (s Sort) String() string {
	switch s {
	case SortInt:
		return "Int"
	case SortBool:
		return "Bool"
	case SortIntArray:
		return "(Array Int Int)"
	}
	return "?"
}

// Term is one node of an encoded formula.
type Term interface {
	isTerm()
	Sort() Sort
	String() string
}

// IntConst is an integer constant.
type IntConst struct {
	Val *big.Int
}

// Int builds an IntConst from an int64.
func Int(v int64) *IntConst {
	return &IntConst{Val: big.NewInt(v)}
}

func (*IntConst) isTerm()          {}
func (t *IntConst) Sort() Sort     { return SortInt }
func (t *IntConst) String() string { return t.Val.String() }

// BoolConst is a boolean constant.
type BoolConst struct {
	Val bool
}

var (
	True  = &BoolConst{Val: true}
	False = &BoolConst{Val: false}
)

func (*BoolConst) isTerm()      {}
func (t *BoolConst) Sort() Sort { return SortBool }
func (t *BoolConst) String() string {
	if t.Val {
		return "true"
	}
	return "false"
}

// Var is a free variable.
type Var struct {
	Name    string
	VarSort Sort
}

func NewVar(name string, sort Sort) *Var {
	return &Var{Name: name, VarSort: sort}
}

func (*Var) isTerm()          {}
func (t *Var) Sort() Sort     { return t.VarSort }
func (t *Var) String() string { return t.Name }

// ArithOp is an integer operation.
type ArithOp int

const (
	OpAdd ArithOp = iota
	OpSub
	OpMul
	OpDiv
	OpMod
)

func (op ArithOp) String() string {
	switch op {
	case OpAdd:
		return "+"
	case OpSub:
		return "-"
	case OpMul:
		return "*"
	case OpDiv:
		return "/"
	case OpMod:
		return "%"
	}
	return "?"
}

// Arith is a binary integer operation. Div and Mod are Euclidean,
// mapping one-to-one onto SMT-LIB div and mod; the encoder builds the
// truncating adjustment for source division on top of these.
type Arith struct {
	Op    ArithOp
	Left  Term
	Right Term
}

func (*Arith) isTerm()      {}
func (t *Arith) Sort() Sort { return SortInt }
func (t *Arith) String() string {
	return "(" + t.Left.String() + " " + t.Op.String() + " " + t.Right.String() + ")"
}

// Neg is integer negation.
type Neg struct {
	X Term
}

func (*Neg) isTerm()          {}
func (t *Neg) Sort() Sort     { return SortInt }
func (t *Neg) String() string { return "(-" + t.X.String() + ")" }

// CompareOp is a comparison.
type CompareOp int

const (
	OpEq CompareOp = iota
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
)

func (op CompareOp) String() string {
	switch op {
	case OpEq:
		return "=="
	case OpNe:
		return "!="
	case OpLt:
		return "<"
	case OpLe:
		return "<="
	case OpGt:
		return ">"
	case OpGe:
		return ">="
	}
	return "?"
}

// Compare relates two terms of one sort. Eq and Ne also apply to Bool.
type Compare struct {
	Op    CompareOp
	Left  Term
	Right Term
}

func (*Compare) isTerm()      {}
func (t *Compare) Sort() Sort { return SortBool }
func (t *Compare) String() string {
	return "(" + t.Left.String() + " " + t.Op.String() + " " + t.Right.String() + ")"
}

// Not is boolean negation.
type Not struct {
	X Term
}

func (*Not) isTerm()          {}
func (t *Not) Sort() Sort     { return SortBool }
func (t *Not) String() string { return "!" + t.X.String() }

// And is n-ary conjunction.
type And struct {
	Conj []Term
}

func NewAnd(ts ...Term) Term {
	switch len(ts) {
	case 0:
		return True
	case 1:
		return ts[0]
	}
	return &And{Conj: ts}
}

func (*And) isTerm()      {}
func (t *And) Sort() Sort { return SortBool }
func (t *And) String() string {
	parts := make([]string, len(t.Conj))
	for i, c := range t.Conj {
		parts[i] = c.String()
	}
	return "(" + strings.Join(parts, " && ") + ")"
}

// Or is n-ary disjunction.
type Or struct {
	Disj []Term
}

func NewOr(ts ...Term) Term {
	switch len(ts) {
	case 0:
		return False
	case 1:
		return ts[0]
	}
	return &Or{Disj: ts}
}

func (*Or) isTerm()      {}
func (t *Or) Sort() Sort { return SortBool }
func (t *Or) String() string {
	parts := make([]string, len(t.Disj))
	for i, d := range t.Disj {
		parts[i] = d.String()
	}
	return "(" + strings.Join(parts, " || ") + ")"
}

// Implies is logical implication.
type Implies struct {
	Ante Term
	Cons Term
}

func (*Implies) isTerm()      {}
func (t *Implies) Sort() Sort { return SortBool }
func (t *Implies) String() string {
	return "(" + t.Ante.String() + " => " + t.Cons.String() + ")"
}

// Ite selects between two terms of one sort.
type Ite struct {
	Cond Term
	Then Term
	Else Term
}

func (*Ite) isTerm()      {}
func (t *Ite) Sort() Sort { return t.Then.Sort() }
func (t *Ite) String() string {
	return "ite(" + t.Cond.String() + ", " + t.Then.String() + ", " + t.Else.String() + ")"
}

// Select reads one element of an array term.
type Select struct {
	Array Term
	Index Term
}

func (*Select) isTerm()      {}
func (t *Select) Sort() Sort { return SortInt }
func (t *Select) String() string {
	return t.Array.String() + "[" + t.Index.String() + "]"
}

// Store is an array with one element replaced.
type Store struct {
	Array Term
	Index Term
	Value Term
}

func (*Store) isTerm()      {}
func (t *Store) Sort() Sort { return SortIntArray }
func (t *Store) String() string {
	return t.Array.String() + "[" + t.Index.String() + " := " + t.Value.String() + "]"
}

// FreeVars collects the names of the free variables of a term.
func FreeVars(t Term) map[string]Sort {
	out := make(map[string]Sort)
	collectVars(t, out)
	return out
}

func collectVars(t Term, out map[string]Sort) {
	switch n := t.(type) {
	case *Var:
		out[n.Name] = n.VarSort
	case *Arith:
		collectVars(n.Left, out)
		collectVars(n.Right, out)
	case *Neg:
		collectVars(n.X, out)
	case *Compare:
		collectVars(n.Left, out)
		collectVars(n.Right, out)
	case *Not:
		collectVars(n.X, out)
	case *And:
		for _, c := range n.Conj {
			collectVars(c, out)
		}
	case *Or:
		for _, d := range n.Disj {
			collectVars(d, out)
		}
	case *Implies:
		collectVars(n.Ante, out)
		collectVars(n.Cons, out)
	case *Ite:
		collectVars(n.Cond, out)
		collectVars(n.Then, out)
		collectVars(n.Else, out)
	case *Select:
		collectVars(n.Array, out)
		collectVars(n.Index, out)
	case *Store:
		collectVars(n.Array, out)
		collectVars(n.Index, out)
		collectVars(n.Value, out)
	}
}
