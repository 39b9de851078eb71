package bugpattern

import (
	"math/big"

	"oath/internal/ast"
	"oath/internal/cfg"
	"oath/internal/types"
)

// interval is an inclusive integer range plus the one non-convex fact
// preconditions commonly supply: zero is excluded. The type is kept so
// widening knows where the representable bounds are.
type interval struct {
	ty      *types.IntType
	lo, hi  *big.Int
	nonzero bool
}

func fullInterval(t types.Type) (interval, bool) {
	it, ok := types.Underlying(t).(*types.IntType)
	if !ok {
		return interval{}, false
	}
	return interval{ty: it, lo: it.MinValue(), hi: it.MaxValue()}, true
}

func pointInterval(ty *types.IntType, v *big.Int) interval {
	return interval{ty: ty, lo: v, hi: v, nonzero: v.Sign() != 0}
}

func (iv interval) isPoint() bool    { return iv.lo.Cmp(iv.hi) == 0 }
func (iv interval) isEmpty() bool    { return iv.lo.Cmp(iv.hi) > 0 }
func (iv interval) alwaysZero() bool { return iv.isPoint() && iv.lo.Sign() == 0 }

func (iv interval) containsZero() bool {
	return !iv.nonzero && iv.lo.Sign() <= 0 && iv.hi.Sign() >= 0
}

func (iv interval) alwaysNegative() bool { return iv.hi.Sign() < 0 }

func (iv interval) equal(o interval) bool {
	return iv.lo.Cmp(o.lo) == 0 && iv.hi.Cmp(o.hi) == 0 && iv.nonzero == o.nonzero
}

func joinIntervals(a, b interval) interval {
	lo := a.lo
	if b.lo.Cmp(lo) < 0 {
		lo = b.lo
	}
	hi := a.hi
	if b.hi.Cmp(hi) > 0 {
		hi = b.hi
	}
	return interval{ty: a.ty, lo: lo, hi: hi, nonzero: a.nonzero && b.nonzero}
}

// rangeEnv is the fact set at one program point: an interval per known
// integer variable, plus index variables proven to sit at or past the
// length of a specific array. An infeasible env belongs to a path whose
// guards contradict each other; nothing on it is reported.
type rangeEnv struct {
	ints       map[string]interval
	pastEnd    map[string]string
	infeasible bool
}

func newRangeEnv() rangeEnv {
	return rangeEnv{ints: make(map[string]interval), pastEnd: make(map[string]string)}
}

func (e rangeEnv) clone() rangeEnv {
	out := rangeEnv{
		ints:       make(map[string]interval, len(e.ints)),
		pastEnd:    make(map[string]string, len(e.pastEnd)),
		infeasible: e.infeasible,
	}
	for k, v := range e.ints {
		out.ints[k] = v
	}
	for k, v := range e.pastEnd {
		out.pastEnd[k] = v
	}
	return out
}

func (e rangeEnv) equal(o rangeEnv) bool {
	if e.infeasible != o.infeasible || len(e.ints) != len(o.ints) || len(e.pastEnd) != len(o.pastEnd) {
		return false
	}
	for k, v := range e.ints {
		ov, ok := o.ints[k]
		if !ok || !v.equal(ov) {
			return false
		}
	}
	for k, v := range e.pastEnd {
		if o.pastEnd[k] != v {
			return false
		}
	}
	return true
}

// joinEnvs unions the value sets: a variable keeps a fact only when both
// sides know one. An infeasible side contributes nothing.
func joinEnvs(a, b rangeEnv) rangeEnv {
	if a.infeasible {
		return b.clone()
	}
	if b.infeasible {
		return a.clone()
	}
	out := newRangeEnv()
	for name, av := range a.ints {
		if bv, ok := b.ints[name]; ok {
			out.ints[name] = joinIntervals(av, bv)
		}
	}
	for name, arr := range a.pastEnd {
		if b.pastEnd[name] == arr {
			out.pastEnd[name] = arr
		}
	}
	return out
}

// maxRangeVisits caps worklist revisits per block before widening kicks
// in. Loop-carried counters otherwise crawl toward their type bound one
// step per iteration.
const maxRangeVisits = 4

type rangeAnalysis struct {
	g      *cfg.Graph
	in     map[int]rangeEnv
	visits map[int]int
}

func newRangeAnalysis(g *cfg.Graph) *rangeAnalysis {
	return &rangeAnalysis{g: g, in: make(map[int]rangeEnv), visits: make(map[int]int)}
}

// seedEnv gives every integer parameter its full type range, then
// narrows by the declared preconditions. This is what lets a
// requires(b != 0) silence the divide-by-zero pattern.
func (ra *rangeAnalysis) seedEnv() rangeEnv {
	env := newRangeEnv()
	for _, param := range ra.g.Function.Params {
		if param.Type == nil {
			continue
		}
		if iv, ok := fullInterval(param.Type.Resolved); ok {
			env.ints[param.Name.Value] = iv
		}
	}
	for _, req := range ra.g.Function.Requires {
		refineByCond(&env, req, true)
	}
	return env
}

func (ra *rangeAnalysis) solve() {
	ra.in[ra.g.Entry.ID] = ra.seedEnv()
	work := []*cfg.BasicBlock{ra.g.Entry}
	for len(work) > 0 {
		blk := work[0]
		work = work[1:]
		out := ra.transferBlock(blk, ra.in[blk.ID].clone())
		for _, e := range blk.Succs {
			arriving := refineByEdge(out, blk.Cond, e.Kind)
			prev, seen := ra.in[e.To.ID]
			var merged rangeEnv
			if !seen {
				merged = arriving
			} else {
				merged = joinEnvs(prev, arriving)
			}
			if seen && merged.equal(prev) {
				continue
			}
			ra.visits[e.To.ID]++
			if ra.visits[e.To.ID] > maxRangeVisits {
				merged = widenEnv(prev, merged)
			}
			ra.in[e.To.ID] = merged
			work = append(work, e.To)
		}
	}
}

// widenEnv drops any interval still in motion to its full type range so
// the iteration terminates.
func widenEnv(prev, next rangeEnv) rangeEnv {
	for name, iv := range next.ints {
		pv, ok := prev.ints[name]
		if ok && iv.equal(pv) {
			continue
		}
		next.ints[name] = interval{ty: iv.ty, lo: iv.ty.MinValue(), hi: iv.ty.MaxValue()}
	}
	return next
}

func (ra *rangeAnalysis) transferBlock(blk *cfg.BasicBlock, env rangeEnv) rangeEnv {
	if blk.Opaque {
		// Anything may have been assigned inside the malformed region.
		return newRangeEnv()
	}
	for _, stmt := range blk.Stmts {
		env = transferRangeStmt(env, stmt)
	}
	return env
}

func transferRangeStmt(env rangeEnv, stmt ast.Stmt) rangeEnv {
	switch n := stmt.(type) {
	case *ast.LetStmt:
		declared := types.Type(types.Unknown)
		if n.Type != nil {
			declared = n.Type.Resolved
		} else if n.Value != nil {
			declared = exprType(n.Value)
		}
		assignRange(env, n.Name.Value, n.Value, declared)
	case *ast.AssignStmt:
		if id, ok := ast.Unparen(n.Target).(*ast.IdentExpr); ok {
			assignRange(env, id.Name, n.Value, id.Type())
		}
	}
	return env
}

func assignRange(env rangeEnv, name string, value ast.Expr, declared types.Type) {
	killPastEnd(env, name)
	if value == nil {
		delete(env.ints, name)
		return
	}
	iv, ok := evalRange(value, env)
	if !ok {
		delete(env.ints, name)
		return
	}
	if bound, bok := fullInterval(declared); bok {
		iv = clampInterval(iv, bound)
	}
	if iv.isEmpty() {
		// No representable value survives the clamp; keep no fact.
		delete(env.ints, name)
		return
	}
	env.ints[name] = iv
}

// killPastEnd forgets index facts touching the assigned name, whether it
// was the index or the array.
func killPastEnd(env rangeEnv, name string) {
	delete(env.pastEnd, name)
	for idx, arr := range env.pastEnd {
		if arr == name {
			delete(env.pastEnd, idx)
		}
	}
}

func clampInterval(iv, bound interval) interval {
	out := interval{ty: bound.ty, lo: iv.lo, hi: iv.hi, nonzero: iv.nonzero}
	if out.lo.Cmp(bound.lo) < 0 {
		out.lo = bound.lo
	}
	if out.hi.Cmp(bound.hi) > 0 {
		out.hi = bound.hi
	}
	return out
}

func exprType(e ast.Expr) types.Type {
	type typed interface{ Type() types.Type }
	if t, ok := e.(typed); ok {
		return t.Type()
	}
	return types.Unknown
}

// evalRange computes the mathematical range of an expression under the
// current facts. The result is not clamped to the expression's type;
// the overflow check needs the raw value.
func evalRange(e ast.Expr, env rangeEnv) (interval, bool) {
	switch n := ast.Unparen(e).(type) {
	case *ast.LiteralExpr:
		if n.Kind != ast.IntLit {
			return interval{}, false
		}
		v, ok := new(big.Int).SetString(n.Value, 10)
		if !ok {
			return interval{}, false
		}
		it, tok := types.Underlying(n.Type()).(*types.IntType)
		if !tok {
			it = types.I64
		}
		return pointInterval(it, v), true
	case *ast.IdentExpr:
		if iv, ok := env.ints[n.Name]; ok {
			return iv, true
		}
		return fullInterval(n.Type())
	case *ast.UnaryExpr:
		if n.Op != "-" {
			return interval{}, false
		}
		iv, ok := evalRange(n.Value, env)
		if !ok {
			return interval{}, false
		}
		return interval{
			ty:      iv.ty,
			lo:      new(big.Int).Neg(iv.hi),
			hi:      new(big.Int).Neg(iv.lo),
			nonzero: iv.nonzero,
		}, true
	case *ast.BinaryExpr:
		return evalBinaryRange(n, env)
	case *ast.LenExpr:
		return interval{ty: types.U64, lo: big.NewInt(0), hi: types.U64.MaxValue()}, true
	case *ast.IndexExpr:
		return fullInterval(n.Type())
	case *ast.CallExpr:
		return fullInterval(n.Type())
	}
	return interval{}, false
}

func evalBinaryRange(n *ast.BinaryExpr, env rangeEnv) (interval, bool) {
	switch n.Op {
	case "+", "-", "*", "/", "%":
	default:
		return interval{}, false
	}
	l, lok := evalRange(n.Left, env)
	r, rok := evalRange(n.Right, env)
	if !lok || !rok {
		return fullInterval(n.Type())
	}
	ty, tok := types.Underlying(n.Type()).(*types.IntType)
	if !tok {
		return interval{}, false
	}
	switch n.Op {
	case "+":
		return interval{
			ty: ty,
			lo: new(big.Int).Add(l.lo, r.lo),
			hi: new(big.Int).Add(l.hi, r.hi),
		}, true
	case "-":
		return interval{
			ty: ty,
			lo: new(big.Int).Sub(l.lo, r.hi),
			hi: new(big.Int).Sub(l.hi, r.lo),
		}, true
	case "*":
		products := []*big.Int{
			new(big.Int).Mul(l.lo, r.lo),
			new(big.Int).Mul(l.lo, r.hi),
			new(big.Int).Mul(l.hi, r.lo),
			new(big.Int).Mul(l.hi, r.hi),
		}
		lo, hi := products[0], products[0]
		for _, p := range products[1:] {
			if p.Cmp(lo) < 0 {
				lo = p
			}
			if p.Cmp(hi) > 0 {
				hi = p
			}
		}
		return interval{ty: ty, lo: lo, hi: hi}, true
	case "/", "%":
		// Division is folded only when both sides are single points;
		// interval division buys little here and is easy to get wrong.
		if l.isPoint() && r.isPoint() && r.lo.Sign() != 0 {
			if n.Op == "/" {
				return pointInterval(ty, new(big.Int).Quo(l.lo, r.lo)), true
			}
			return pointInterval(ty, new(big.Int).Rem(l.lo, r.lo)), true
		}
		return interval{ty: ty, lo: ty.MinValue(), hi: ty.MaxValue()}, true
	}
	return interval{}, false
}

// refineByEdge narrows the exit facts along a branch edge using the
// block's condition. A loop back edge out of a do-while latch is its
// true branch.
func refineByEdge(env rangeEnv, cond ast.Expr, kind cfg.EdgeKind) rangeEnv {
	out := env.clone()
	if cond == nil {
		return out
	}
	switch kind {
	case cfg.TrueBranch, cfg.LoopBack:
		refineByCond(&out, cond, true)
	case cfg.FalseBranch:
		refineByCond(&out, cond, false)
	}
	return out
}

func refineByCond(env *rangeEnv, cond ast.Expr, assume bool) {
	switch n := ast.Unparen(cond).(type) {
	case *ast.UnaryExpr:
		if n.Op == "!" {
			refineByCond(env, n.Value, !assume)
		}
	case *ast.BinaryExpr:
		switch n.Op {
		case "&&":
			if assume {
				refineByCond(env, n.Left, true)
				refineByCond(env, n.Right, true)
			}
		case "||":
			if !assume {
				refineByCond(env, n.Left, false)
				refineByCond(env, n.Right, false)
			}
		case "==", "!=", "<", "<=", ">", ">=":
			op := n.Op
			if !assume {
				op = negateCompareOp(op)
			}
			refineCompare(env, op, n.Left, n.Right)
		}
	}
}

func negateCompareOp(op string) string {
	switch op {
	case "==":
		return "!="
	case "!=":
		return "=="
	case "<":
		return ">="
	case "<=":
		return ">"
	case ">":
		return "<="
	case ">=":
		return "<"
	}
	return op
}

func swapCompareOp(op string) string {
	switch op {
	case "<":
		return ">"
	case "<=":
		return ">="
	case ">":
		return "<"
	case ">=":
		return "<="
	}
	return op
}

// refineCompare narrows facts from a comparison known to hold. Handled
// shapes: identifier against a constant point, and identifier against
// len of an identifier.
func refineCompare(env *rangeEnv, op string, left, right ast.Expr) {
	l := ast.Unparen(left)
	r := ast.Unparen(right)

	if id, ok := l.(*ast.IdentExpr); ok {
		if ln, lok := r.(*ast.LenExpr); lok {
			refineAgainstLen(env, op, id, ln)
			return
		}
		if c, cok := constPoint(r, *env); cok {
			narrowIdent(env, id.Name, op, c)
			return
		}
	}
	if id, ok := r.(*ast.IdentExpr); ok {
		if ln, lok := l.(*ast.LenExpr); lok {
			refineAgainstLen(env, swapCompareOp(op), id, ln)
			return
		}
		if c, cok := constPoint(l, *env); cok {
			narrowIdent(env, id.Name, swapCompareOp(op), c)
		}
	}
}

func constPoint(e ast.Expr, env rangeEnv) (*big.Int, bool) {
	iv, ok := evalRange(e, env)
	if !ok || !iv.isPoint() {
		return nil, false
	}
	return iv.lo, true
}

// refineAgainstLen records or retires the "index sits at or past the
// array's end" fact for conditions of the shape i OP len(a).
func refineAgainstLen(env *rangeEnv, op string, id *ast.IdentExpr, ln *ast.LenExpr) {
	arr, ok := ast.Unparen(ln.Target).(*ast.IdentExpr)
	if !ok {
		return
	}
	switch op {
	case ">=", ">", "==":
		env.pastEnd[id.Name] = arr.Name
	case "<":
		if env.pastEnd[id.Name] == arr.Name {
			delete(env.pastEnd, id.Name)
		}
	}
}

var bigOne = big.NewInt(1)

func narrowIdent(env *rangeEnv, name, op string, c *big.Int) {
	iv, ok := env.ints[name]
	if !ok {
		return
	}
	switch op {
	case "==":
		if c.Cmp(iv.lo) > 0 {
			iv.lo = c
		}
		if c.Cmp(iv.hi) < 0 {
			iv.hi = c
		}
		iv.nonzero = iv.nonzero || c.Sign() != 0
	case "!=":
		if c.Sign() == 0 {
			iv.nonzero = true
		}
		if c.Cmp(iv.lo) == 0 {
			iv.lo = new(big.Int).Add(iv.lo, bigOne)
		}
		if c.Cmp(iv.hi) == 0 {
			iv.hi = new(big.Int).Sub(iv.hi, bigOne)
		}
	case "<":
		bound := new(big.Int).Sub(c, bigOne)
		if bound.Cmp(iv.hi) < 0 {
			iv.hi = bound
		}
	case "<=":
		if c.Cmp(iv.hi) < 0 {
			iv.hi = c
		}
	case ">":
		bound := new(big.Int).Add(c, bigOne)
		if bound.Cmp(iv.lo) > 0 {
			iv.lo = bound
		}
	case ">=":
		if c.Cmp(iv.lo) > 0 {
			iv.lo = c
		}
	}
	if iv.isEmpty() {
		env.infeasible = true
		return
	}
	env.ints[name] = iv
}
