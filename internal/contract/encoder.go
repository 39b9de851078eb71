package contract

import (
	"fmt"
	"math/big"

	"oath/internal/ast"
	"oath/internal/types"
)

// ArithMode selects the overflow semantics for encoded arithmetic.
type ArithMode int

const (
	// ModeTrap treats an out-of-range intermediate result as a runtime
	// trap: every arithmetic node gets a side condition keeping it in
	// the declared range.
	ModeTrap ArithMode = iota
	// ModeWrap reduces every intermediate result into the declared
	// range with two's-complement wraparound.
	ModeWrap
)

func (m ArithMode) String() string {
	if m == ModeWrap {
		return "wrap"
	}
	return "trap"
}

// UnsupportedError marks a construct the encoder cannot express. The
// owning contract is reported Unsupported; sibling contracts on the
// same function are unaffected.
type UnsupportedError struct {
	Reason string
	Span   ast.Span
}

func (e *UnsupportedError) Error() string { return e.Reason }

func unsupported(node ast.Node, format string, args ...any) error {
	return &UnsupportedError{
		Reason: fmt.Sprintf(format, args...),
		Span:   ast.SpanOf(node),
	}
}

// Formula is an encoded contract: the proposition plus the side
// conditions under which the proposition is well defined (nonzero
// divisors, indices in range, non-null dereferences, and in trap mode
// every intermediate arithmetic result within its type). Sides carry
// the short-circuit guards of the expression they arose in.
type Formula struct {
	Prop  Term
	Sides []Term
}

// Obligation is the single term a prover must establish: every side
// condition and the proposition itself.
func (f *Formula) Obligation() Term {
	if len(f.Sides) == 0 {
		return f.Prop
	}
	all := make([]Term, 0, len(f.Sides)+1)
	all = append(all, f.Sides...)
	all = append(all, f.Prop)
	return NewAnd(all...)
}

// Encoder lowers checked Oath expressions into solver terms. One
// encoder serves one function; side conditions accumulate per call
// and are returned alongside the encoded term.
type Encoder struct {
	Mode ArithMode

	sides  []Term
	guards []Term
}

func NewEncoder(mode ArithMode) *Encoder {
	return &Encoder{Mode: mode}
}

// EncodeContract encodes a requires or ensures expression against sc.
func (enc *Encoder) EncodeContract(e ast.Expr, sc *Scope) (*Formula, error) {
	enc.sides, enc.guards = nil, nil
	t, err := enc.encodeBool(e, sc)
	if err != nil {
		return nil, err
	}
	return &Formula{Prop: t, Sides: enc.sides}, nil
}

// EncodeValue encodes an arbitrary expression, returning its term and
// the side conditions generated along the way. The symbolic body walk
// assumes those sides: a trapping path never reaches a postcondition.
func (enc *Encoder) EncodeValue(e ast.Expr, sc *Scope) (Term, []Term, error) {
	enc.sides, enc.guards = nil, nil
	t, err := enc.encode(e, sc)
	if err != nil {
		return nil, nil, err
	}
	return t, enc.sides, nil
}

// emitSide records a side condition under the current short-circuit
// guards. The right operand of && only evaluates when the left held,
// so its sides hold under that antecedent; || guards with the
// negation.
func (enc *Encoder) emitSide(side Term) {
	for i := len(enc.guards) - 1; i >= 0; i-- {
		side = &Implies{Ante: enc.guards[i], Cons: side}
	}
	enc.sides = append(enc.sides, side)
}

func (enc *Encoder) pushGuard(g Term) { enc.guards = append(enc.guards, g) }
func (enc *Encoder) popGuard()        { enc.guards = enc.guards[:len(enc.guards)-1] }

func (enc *Encoder) encode(e ast.Expr, sc *Scope) (Term, error) {
	switch node := ast.Unparen(e).(type) {
	case *ast.LiteralExpr:
		return enc.encodeLiteral(node)
	case *ast.IdentExpr:
		return enc.encodeIdent(node, sc)
	case *ast.UnaryExpr:
		return enc.encodeUnary(node, sc)
	case *ast.BinaryExpr:
		return enc.encodeBinary(node, sc)
	case *ast.IndexExpr:
		return enc.encodeIndex(node, sc)
	case *ast.LenExpr:
		return enc.encodeLen(node, sc)
	case *ast.CallExpr:
		return enc.encodeCall(node, sc)
	}
	return nil, unsupported(e, "expression has no logical model")
}

func (enc *Encoder) encodeBool(e ast.Expr, sc *Scope) (Term, error) {
	t, err := enc.encode(e, sc)
	if err != nil {
		return nil, err
	}
	if t.Sort() != SortBool {
		return nil, unsupported(e, "expected a boolean expression")
	}
	return t, nil
}

func (enc *Encoder) encodeInt(e ast.Expr, sc *Scope) (Term, error) {
	t, err := enc.encode(e, sc)
	if err != nil {
		return nil, err
	}
	if t.Sort() != SortInt {
		return nil, unsupported(e, "expected an integer expression")
	}
	return t, nil
}

func (enc *Encoder) encodeLiteral(node *ast.LiteralExpr) (Term, error) {
	switch node.Kind {
	case ast.IntLit:
		v, ok := new(big.Int).SetString(node.Value, 0)
		if !ok {
			return nil, unsupported(node, "malformed integer literal %q", node.Value)
		}
		return &IntConst{Val: v}, nil
	case ast.BoolLit:
		if node.Value == "true" {
			return True, nil
		}
		return False, nil
	case ast.NullLit:
		// null only occurs under == and !=, which encodeBinary
		// rewrites to the null flag before descending here.
		return nil, unsupported(node, "null outside a comparison")
	case ast.StringLit:
		return nil, unsupported(node, "string contents are not modeled")
	}
	return nil, unsupported(node, "unknown literal")
}

func (enc *Encoder) encodeIdent(node *ast.IdentExpr, sc *Scope) (Term, error) {
	b, ok := sc.Lookup(node.Name)
	if !ok {
		return nil, unsupported(node, "'%s' is not in scope here", node.Name)
	}
	if b.Val == nil {
		return nil, unsupported(node, "'%s' has no value model", node.Name)
	}
	if b.Null != nil {
		// Using a nullable value as a plain value is only defined when
		// it is non-null on this path.
		enc.emitSide(&Not{X: b.Null})
	}
	return b.Val, nil
}

func (enc *Encoder) encodeUnary(node *ast.UnaryExpr, sc *Scope) (Term, error) {
	switch node.Op {
	case "!":
		t, err := enc.encodeBool(node.Value, sc)
		if err != nil {
			return nil, err
		}
		return &Not{X: t}, nil
	case "-":
		t, err := enc.encodeInt(node.Value, sc)
		if err != nil {
			return nil, err
		}
		it := intTypeOf(node.Type())
		if c, ok := t.(*IntConst); ok {
			v := new(big.Int).Neg(c.Val)
			if it == nil || it.Fits(v) {
				return &IntConst{Val: v}, nil
			}
		}
		return enc.finishArith(&Neg{X: t}, it), nil
	}
	return nil, unsupported(node, "operator '%s' has no logical model", node.Op)
}

var compareOps = map[string]CompareOp{
	"==": OpEq, "!=": OpNe,
	"<": OpLt, "<=": OpLe, ">": OpGt, ">=": OpGe,
}

var arithOps = map[string]ArithOp{
	"+": OpAdd, "-": OpSub, "*": OpMul, "/": OpDiv, "%": OpMod,
}

func (enc *Encoder) encodeBinary(node *ast.BinaryExpr, sc *Scope) (Term, error) {
	switch node.Op {
	case "&&":
		l, err := enc.encodeBool(node.Left, sc)
		if err != nil {
			return nil, err
		}
		enc.pushGuard(l)
		r, err := enc.encodeBool(node.Right, sc)
		enc.popGuard()
		if err != nil {
			return nil, err
		}
		return NewAnd(l, r), nil
	case "||":
		l, err := enc.encodeBool(node.Left, sc)
		if err != nil {
			return nil, err
		}
		enc.pushGuard(&Not{X: l})
		r, err := enc.encodeBool(node.Right, sc)
		enc.popGuard()
		if err != nil {
			return nil, err
		}
		return NewOr(l, r), nil
	case "==", "!=":
		return enc.encodeEquality(node, sc)
	case "<", "<=", ">", ">=":
		l, err := enc.encodeInt(node.Left, sc)
		if err != nil {
			return nil, err
		}
		r, err := enc.encodeInt(node.Right, sc)
		if err != nil {
			return nil, err
		}
		return &Compare{Op: compareOps[node.Op], Left: l, Right: r}, nil
	case "+", "-", "*", "/", "%":
		return enc.encodeArith(node, sc)
	}
	return nil, unsupported(node, "operator '%s' has no logical model", node.Op)
}

// encodeEquality handles == and !=, including comparisons against the
// null literal, which test the null flag rather than the value.
func (enc *Encoder) encodeEquality(node *ast.BinaryExpr, sc *Scope) (Term, error) {
	lNull := isNullLiteral(node.Left)
	rNull := isNullLiteral(node.Right)
	if lNull && rNull {
		if node.Op == "==" {
			return True, nil
		}
		return False, nil
	}
	if lNull || rNull {
		other := node.Left
		if lNull {
			other = node.Right
		}
		return enc.encodeNullTest(node, other, sc)
	}

	l, err := enc.encode(node.Left, sc)
	if err != nil {
		return nil, err
	}
	r, err := enc.encode(node.Right, sc)
	if err != nil {
		return nil, err
	}
	if l.Sort() != r.Sort() || l.Sort() == SortIntArray {
		return nil, unsupported(node, "cannot compare these operands")
	}
	op := OpEq
	if node.Op == "!=" {
		op = OpNe
	}
	return &Compare{Op: op, Left: l, Right: r}, nil
}

func (enc *Encoder) encodeNullTest(node *ast.BinaryExpr, other ast.Expr, sc *Scope) (Term, error) {
	var flag Term
	if id, ok := ast.Unparen(other).(*ast.IdentExpr); ok {
		if b, found := sc.Lookup(id.Name); found && b.Null != nil {
			flag = b.Null
		}
	}
	if flag == nil {
		// A value without a null flag is never null.
		flag = False
	}
	if node.Op == "==" {
		return flag, nil
	}
	return &Not{X: flag}, nil
}

func (enc *Encoder) encodeArith(node *ast.BinaryExpr, sc *Scope) (Term, error) {
	l, err := enc.encodeInt(node.Left, sc)
	if err != nil {
		return nil, err
	}
	r, err := enc.encodeInt(node.Right, sc)
	if err != nil {
		return nil, err
	}
	it := arithType(node)
	op := arithOps[node.Op]

	if op == OpDiv || op == OpMod {
		enc.emitSide(&Compare{Op: OpNe, Left: r, Right: Int(0)})
		if it != nil && !it.Signed {
			// Euclidean and truncating division agree on non-negative
			// operands, and an unsigned quotient or remainder cannot
			// leave the type's range, so no mode handling applies.
			return &Arith{Op: op, Left: l, Right: r}, nil
		}
		// Signed division still overflows on MIN / -1; finishArith
		// covers that one case.
		if op == OpDiv {
			return enc.finishArith(truncDiv(l, r), it), nil
		}
		return enc.finishArith(truncRem(l, r), it), nil
	}
	return enc.finishArith(&Arith{Op: op, Left: l, Right: r}, it), nil
}

// finishArith applies the overflow mode to a raw arithmetic result.
func (enc *Encoder) finishArith(t Term, it *types.IntType) Term {
	if it == nil {
		return t
	}
	switch enc.Mode {
	case ModeWrap:
		return wrapTerm(t, it)
	default:
		enc.emitSide(inRange(t, it))
		return t
	}
}

// truncDiv builds truncating division from the Euclidean primitives:
// the quotient moves one toward zero when the division is inexact and
// the dividend is negative.
func truncDiv(l, r Term) Term {
	ediv := &Arith{Op: OpDiv, Left: l, Right: r}
	emod := &Arith{Op: OpMod, Left: l, Right: r}
	inexactNeg := NewAnd(
		&Compare{Op: OpNe, Left: emod, Right: Int(0)},
		&Compare{Op: OpLt, Left: l, Right: Int(0)},
	)
	adjust := &Ite{
		Cond: inexactNeg,
		Then: &Ite{
			Cond: &Compare{Op: OpGt, Left: r, Right: Int(0)},
			Then: Int(1),
			Else: Int(-1),
		},
		Else: Int(0),
	}
	return &Arith{Op: OpAdd, Left: ediv, Right: adjust}
}

// truncRem builds the truncating remainder l - r*truncDiv(l, r),
// which keeps the sign of the dividend.
func truncRem(l, r Term) Term {
	return &Arith{
		Op:    OpSub,
		Left:  l,
		Right: &Arith{Op: OpMul, Left: r, Right: truncDiv(l, r)},
	}
}

// wrapTerm reduces t into the range of it with wraparound. Euclidean
// mod of a positive modulus lands in [0, 2^bits) for any argument, so
// unsigned wrap is a single mod and signed wrap shifts by MIN.
func wrapTerm(t Term, it *types.IntType) Term {
	modulus := &IntConst{Val: new(big.Int).Lsh(big.NewInt(1), uint(it.Bits))}
	if !it.Signed {
		return &Arith{Op: OpMod, Left: t, Right: modulus}
	}
	min := &IntConst{Val: it.MinValue()}
	shifted := &Arith{Op: OpSub, Left: t, Right: min}
	wrapped := &Arith{Op: OpMod, Left: shifted, Right: modulus}
	return &Arith{Op: OpAdd, Left: wrapped, Right: min}
}

// inRange is MIN <= t <= MAX for the given type.
func inRange(t Term, it *types.IntType) Term {
	return NewAnd(
		&Compare{Op: OpGe, Left: t, Right: &IntConst{Val: it.MinValue()}},
		&Compare{Op: OpLe, Left: t, Right: &IntConst{Val: it.MaxValue()}},
	)
}

func (enc *Encoder) encodeIndex(node *ast.IndexExpr, sc *Scope) (Term, error) {
	id, ok := ast.Unparen(node.Target).(*ast.IdentExpr)
	if !ok {
		return nil, unsupported(node, "only named arrays can be indexed in a formula")
	}
	b, found := sc.Lookup(id.Name)
	if !found || b.Len == nil || b.Val == nil || b.Val.Sort() != SortIntArray {
		return nil, unsupported(node, "'%s' has no array model", id.Name)
	}
	if elem, isArr := types.Underlying(b.Type).(*types.ArrayType); isArr {
		if !types.IsInteger(elem.Elem) {
			return nil, unsupported(node, "only integer element arrays are modeled")
		}
	}
	if b.Null != nil {
		enc.emitSide(&Not{X: b.Null})
	}
	idx, err := enc.encodeInt(node.Index, sc)
	if err != nil {
		return nil, err
	}
	enc.emitSide(&Compare{Op: OpGe, Left: idx, Right: Int(0)})
	enc.emitSide(&Compare{Op: OpLt, Left: idx, Right: b.Len})
	return &Select{Array: b.Val, Index: idx}, nil
}

func (enc *Encoder) encodeLen(node *ast.LenExpr, sc *Scope) (Term, error) {
	id, ok := ast.Unparen(node.Target).(*ast.IdentExpr)
	if !ok {
		return nil, unsupported(node, "len applies to named arrays and strings in a formula")
	}
	b, found := sc.Lookup(id.Name)
	if !found || b.Len == nil {
		return nil, unsupported(node, "'%s' has no length model", id.Name)
	}
	if b.Null != nil {
		enc.emitSide(&Not{X: b.Null})
	}
	return b.Len, nil
}

// encodeCall models the handful of pure math builtins as terms. Any
// other call has an unknown body and makes the contract Unsupported.
func (enc *Encoder) encodeCall(node *ast.CallExpr, sc *Scope) (Term, error) {
	name := node.Callee.Name()
	switch name {
	case "math::abs":
		if len(node.Args) != 1 {
			return nil, unsupported(node, "math::abs takes one argument")
		}
		x, err := enc.encodeInt(node.Args[0], sc)
		if err != nil {
			return nil, err
		}
		it := intTypeOf(node.Type())
		if it == nil {
			it = intTypeOf(node.Args[0].Type())
		}
		abs := &Ite{
			Cond: &Compare{Op: OpLt, Left: x, Right: Int(0)},
			Then: &Neg{X: x},
			Else: x,
		}
		// abs(MIN) overflows a signed type, so the result still goes
		// through the overflow mode.
		return enc.finishArith(abs, it), nil
	case "math::min", "math::max":
		if len(node.Args) != 2 {
			return nil, unsupported(node, "%s takes two arguments", name)
		}
		a, err := enc.encodeInt(node.Args[0], sc)
		if err != nil {
			return nil, err
		}
		b, err := enc.encodeInt(node.Args[1], sc)
		if err != nil {
			return nil, err
		}
		op := OpLe
		if name == "math::max" {
			op = OpGe
		}
		return &Ite{Cond: &Compare{Op: op, Left: a, Right: b}, Then: a, Else: b}, nil
	}
	return nil, unsupported(node, "call to '%s' has no logical model", name)
}

// arithType resolves the integer type of a binary arithmetic node,
// falling back through operand promotion to I64 when the checker left
// no annotation.
func arithType(node *ast.BinaryExpr) *types.IntType {
	if it := intTypeOf(node.Type()); it != nil {
		return it
	}
	if it := types.Promote(node.Left.Type(), node.Right.Type()); it != nil {
		return it
	}
	if it := intTypeOf(node.Left.Type()); it != nil {
		return it
	}
	if it := intTypeOf(node.Right.Type()); it != nil {
		return it
	}
	return types.I64
}

func intTypeOf(t types.Type) *types.IntType {
	it, _ := types.Underlying(t).(*types.IntType)
	return it
}

func isNullLiteral(e ast.Expr) bool {
	lit, ok := ast.Unparen(e).(*ast.LiteralExpr)
	return ok && lit.Kind == ast.NullLit
}
