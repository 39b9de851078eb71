package solver

import (
	"fmt"
	"math/big"

	"oath/internal/ast"
	"oath/internal/contract"
	"oath/internal/types"
)

// bodyModel is the symbolic summary of one function body: facts that
// hold on every path reaching a normal return, the binding for the
// result value, and whether any part of the body had to be widened.
type bodyModel struct {
	Assumes []contract.Term
	Result  *contract.Binding
	Widened bool
	Reason  string
}

// walker encodes a body by structured symbolic execution. Branches
// clone the scope and merge assigned names back with ite terms; path
// facts are guarded by the conditions that lead to them; loops beyond
// the unroll budget havoc whatever they assign.
type walker struct {
	enc       *contract.Encoder
	sc        *contract.Scope
	result    *contract.Binding
	guards    []contract.Term
	assumes   []contract.Term
	done      bool
	widened   bool
	reason    string
	fresh     int
	maxUnroll int
}

// modelBody walks fn's body against a scope holding the parameter
// bindings. The scope is mutated freely; pass a clone if the caller
// needs the entry state afterwards.
func modelBody(fn *ast.Function, enc *contract.Encoder, sc *contract.Scope, maxUnroll int) *bodyModel {
	w := &walker{enc: enc, sc: sc, maxUnroll: maxUnroll}
	if fn.Return != nil {
		b := contract.NewBinding("result", fn.Return.Resolved)
		w.result = &b
	}
	if fn.Body != nil {
		w.walkBlock(fn.Body.Stmts)
	}
	return &bodyModel{
		Assumes: w.assumes,
		Result:  w.result,
		Widened: w.widened,
		Reason:  w.reason,
	}
}

// assume records a fact holding on the current path.
func (w *walker) assume(t contract.Term) {
	for i := len(w.guards) - 1; i >= 0; i-- {
		t = &contract.Implies{Ante: w.guards[i], Cons: t}
	}
	w.assumes = append(w.assumes, t)
}

// eval encodes an expression, assuming its side conditions: execution
// only continues past a trap or bounds check when it did not fire.
func (w *walker) eval(e ast.Expr) (contract.Term, error) {
	t, sides, err := w.enc.EncodeValue(e, w.sc)
	if err != nil {
		return nil, err
	}
	for _, s := range sides {
		w.assume(s)
	}
	return t, nil
}

func (w *walker) widen(reason string) {
	w.widened = true
	if w.reason == "" {
		w.reason = reason
	}
}

func (w *walker) freshName(base string) string {
	w.fresh++
	return fmt.Sprintf("%s.%d", base, w.fresh)
}

// freshBinding builds havoc variables for a name, constrained only by
// the type's value domain: whatever a loop or unknown call did, the
// runtime value still inhabits its type.
func (w *walker) freshBinding(name string, ty types.Type) contract.Binding {
	b := contract.NewBinding(w.freshName(name), ty)
	for _, t := range domainTerms(b) {
		w.assumes = append(w.assumes, t)
	}
	return b
}

// havoc rebinds name to fresh unconstrained variables of its type.
func (w *walker) havoc(name string) {
	b, ok := w.sc.Lookup(name)
	if !ok {
		return
	}
	w.sc.Bind(name, w.freshBinding(name, b.Type))
}

func (w *walker) walkBlock(stmts []ast.Stmt) {
	type shadowed struct {
		name string
		prev contract.Binding
		had  bool
	}
	var locals []shadowed
	for _, stmt := range stmts {
		if w.done {
			// Unreachable tail; the dataflow pass reports it.
			break
		}
		if let, ok := stmt.(*ast.LetStmt); ok {
			prev, had := w.sc.Lookup(let.Name.Value)
			locals = append(locals, shadowed{let.Name.Value, prev, had})
		}
		w.walkStmt(stmt)
	}
	for i := len(locals) - 1; i >= 0; i-- {
		if locals[i].had {
			w.sc.Bind(locals[i].name, locals[i].prev)
		} else {
			w.sc.Unbind(locals[i].name)
		}
	}
}

func (w *walker) walkStmt(stmt ast.Stmt) {
	switch n := stmt.(type) {
	case *ast.LetStmt:
		w.walkLet(n)
	case *ast.AssignStmt:
		w.walkAssign(n)
	case *ast.IfStmt:
		w.walkIf(n)
	case *ast.WhileStmt:
		w.havocLoop(n.Body.Stmts, n.Cond, "loop bound not statically known")
	case *ast.DoWhileStmt:
		// The body runs at least once before anything repeats.
		w.walkBlock(n.Body.Stmts)
		if !w.done {
			w.havocLoop(n.Body.Stmts, n.Cond, "loop bound not statically known")
		}
	case *ast.ForStmt:
		w.walkFor(n)
	case *ast.ReturnStmt:
		w.walkReturn(n)
	case *ast.ThrowStmt:
		// A throwing path never reaches the postcondition.
		w.assume(contract.False)
		w.done = true
	case *ast.ExprStmt:
		// Callees cannot reach our locals, so a call for effect
		// leaves the symbolic state alone.
		if _, err := w.eval(n.X); err != nil {
			return
		}
	case *ast.UnknownStmt:
		for _, name := range w.sc.Names() {
			w.havoc(name)
		}
		w.widen("a statement could not be modeled")
	}
}

func (w *walker) walkLet(n *ast.LetStmt) {
	if n.Value == nil {
		// Uninitialized: an unconstrained variable models any value
		// the dataflow pass will flag reads of.
		w.sc.Bind(n.Name.Value, w.freshBinding(n.Name.Value, typeOfLet(n)))
		return
	}
	w.bindValue(n.Name.Value, typeOfLet(n), n.Value)
}

// typeOfLet prefers the declared type, falling back to the inferred
// value type.
func typeOfLet(n *ast.LetStmt) types.Type {
	if n.Type != nil && n.Type.Resolved != nil {
		return n.Type.Resolved
	}
	if n.Value != nil {
		return n.Value.Type()
	}
	return types.Unknown
}

func (w *walker) walkAssign(n *ast.AssignStmt) {
	switch target := ast.Unparen(n.Target).(type) {
	case *ast.IdentExpr:
		prev, ok := w.sc.Lookup(target.Name)
		if !ok {
			return
		}
		w.bindValue(target.Name, prev.Type, n.Value)
	case *ast.IndexExpr:
		w.assignElement(target, n.Value)
	}
}

// assignElement models items[i] = v as a store. The array's length is
// untouched even when the stored value cannot be encoded.
func (w *walker) assignElement(target *ast.IndexExpr, value ast.Expr) {
	id, ok := ast.Unparen(target.Target).(*ast.IdentExpr)
	if !ok {
		return
	}
	b, found := w.sc.Lookup(id.Name)
	if !found || b.Val == nil || b.Val.Sort() != contract.SortIntArray {
		return
	}
	idx, errI := w.eval(target.Index)
	val, errV := w.eval(value)
	if errI != nil || errV != nil || val.Sort() != contract.SortInt {
		nb := b
		nb.Val = contract.NewVar(w.freshName(id.Name), contract.SortIntArray)
		w.sc.Bind(id.Name, nb)
		return
	}
	w.assume(&contract.Compare{Op: contract.OpGe, Left: idx, Right: contract.Int(0)})
	w.assume(&contract.Compare{Op: contract.OpLt, Left: idx, Right: b.Len})
	nb := b
	nb.Val = &contract.Store{Array: b.Val, Index: idx, Value: val}
	w.sc.Bind(id.Name, nb)
}

// bindValue binds name to the encoding of value, or to fresh havoc
// variables when the value has no model (an unknown call, say).
func (w *walker) bindValue(name string, ty types.Type, value ast.Expr) {
	if lit, ok := ast.Unparen(value).(*ast.LiteralExpr); ok && lit.Kind == ast.NullLit {
		b := w.freshBinding(name, ty)
		if b.Null != nil {
			b.Null = contract.True
		}
		w.sc.Bind(name, b)
		return
	}

	// An identifier source carries its whole binding across, keeping
	// length and null state attached.
	if id, ok := ast.Unparen(value).(*ast.IdentExpr); ok {
		if src, found := w.sc.Lookup(id.Name); found {
			src.Type = ty
			if types.IsNullable(ty) && src.Null == nil {
				src.Null = contract.False
			}
			w.sc.Bind(name, src)
			return
		}
	}

	t, err := w.eval(value)
	if err != nil {
		w.sc.Bind(name, w.freshBinding(name, ty))
		return
	}
	b := contract.Binding{Val: t, Type: ty}
	if types.IsNullable(ty) {
		b.Null = contract.False
	}
	w.sc.Bind(name, b)
}

// walkBranch runs stmts on a cloned scope under guard and hands back
// the branch's exit scope and whether every path through it returned.
func (w *walker) walkBranch(stmts []ast.Stmt, guard contract.Term) (*contract.Scope, bool) {
	savedScope, savedDone := w.sc, w.done
	mark := len(w.guards)
	w.sc = savedScope.Clone()
	w.done = false
	w.guards = append(w.guards, guard)

	w.walkBlock(stmts)

	branchScope, branchDone := w.sc, w.done
	w.sc, w.done = savedScope, savedDone
	w.guards = w.guards[:mark]
	return branchScope, branchDone
}

func (w *walker) walkIf(n *ast.IfStmt) {
	cond, err := w.eval(n.Cond)
	if err != nil || cond.Sort() != contract.SortBool {
		// Unmodelable condition: a free boolean keeps both branches
		// possible without deciding between them.
		cond = contract.NewVar(w.freshName("cond"), contract.SortBool)
	}

	thenScope, thenDone := w.walkBranch(n.Then.Stmts, cond)

	elseScope := w.sc.Clone()
	elseDone := false
	switch e := n.Else.(type) {
	case *ast.FunctionBlock:
		elseScope, elseDone = w.walkBranch(e.Stmts, &contract.Not{X: cond})
	case *ast.IfStmt:
		elseScope, elseDone = w.walkBranch([]ast.Stmt{e}, &contract.Not{X: cond})
	}

	switch {
	case thenDone && elseDone:
		w.done = true
	case thenDone:
		// Only the else path continues past this statement.
		w.sc = elseScope
		w.guards = append(w.guards, &contract.Not{X: cond})
	case elseDone:
		w.sc = thenScope
		w.guards = append(w.guards, cond)
	default:
		w.sc = mergeScopes(cond, thenScope, elseScope)
	}
}

// mergeScopes joins two branch exits: names changed on either side
// become ite terms over the branch condition. Branch-local names have
// already been unbound by walkBlock.
func mergeScopes(cond contract.Term, then, els *contract.Scope) *contract.Scope {
	merged := contract.NewScope()
	for _, name := range then.Names() {
		tb, _ := then.Lookup(name)
		eb, ok := els.Lookup(name)
		if !ok {
			continue
		}
		merged.Bind(name, contract.Binding{
			Type: tb.Type,
			Val:  mergeTerm(cond, tb.Val, eb.Val),
			Len:  mergeTerm(cond, tb.Len, eb.Len),
			Null: mergeTerm(cond, tb.Null, eb.Null),
		})
	}
	return merged
}

func mergeTerm(cond, a, b contract.Term) contract.Term {
	if a == b || b == nil {
		return a
	}
	if a == nil {
		return b
	}
	return &contract.Ite{Cond: cond, Then: a, Else: b}
}

// havocLoop widens a loop whose trip count is unknown: everything the
// body assigns becomes unconstrained, related to the entry state only
// by the exit condition.
func (w *walker) havocLoop(body []ast.Stmt, cond ast.Expr, reason string) {
	for name := range assignedNames(body) {
		w.havoc(name)
	}
	w.widen(reason)
	if cond == nil {
		return
	}
	if t, err := w.eval(cond); err == nil && t.Sort() == contract.SortBool {
		w.assume(&contract.Not{X: t})
	}
}

func (w *walker) walkFor(n *ast.ForStmt) {
	from, errF := w.eval(n.From)
	to, errT := w.eval(n.To)
	fc, fromConst := from.(*contract.IntConst)
	tc, toConst := to.(*contract.IntConst)

	if errF == nil && errT == nil && fromConst && toConst && !assignedNames(n.Body.Stmts)[n.Var.Value] {
		trips := new(big.Int).Sub(tc.Val, fc.Val)
		if trips.Sign() <= 0 {
			return
		}
		if trips.Cmp(big.NewInt(int64(w.maxUnroll))) <= 0 {
			w.unrollFor(n, fc.Val, tc.Val)
			return
		}
		for name := range assignedNames(n.Body.Stmts) {
			w.havoc(name)
		}
		w.widen(fmt.Sprintf("loop runs %s times, beyond the unroll budget", trips))
		return
	}

	for name := range assignedNames(n.Body.Stmts) {
		w.havoc(name)
	}
	w.widen("loop bound not statically known")
}

func (w *walker) unrollFor(n *ast.ForStmt, from, to *big.Int) {
	prev, had := w.sc.Lookup(n.Var.Value)
	varType := n.From.Type()

	for v := new(big.Int).Set(from); v.Cmp(to) < 0 && !w.done; v.Add(v, big.NewInt(1)) {
		w.sc.Bind(n.Var.Value, contract.Binding{
			Val:  &contract.IntConst{Val: new(big.Int).Set(v)},
			Type: varType,
		})
		w.walkBlock(n.Body.Stmts)
	}

	if had {
		w.sc.Bind(n.Var.Value, prev)
	} else {
		w.sc.Unbind(n.Var.Value)
	}
}

func (w *walker) walkReturn(n *ast.ReturnStmt) {
	w.done = true
	if w.result == nil || n.Value == nil {
		return
	}

	if lit, ok := ast.Unparen(n.Value).(*ast.LiteralExpr); ok && lit.Kind == ast.NullLit {
		if w.result.Null != nil {
			w.assume(w.result.Null)
		}
		return
	}

	if id, ok := ast.Unparen(n.Value).(*ast.IdentExpr); ok {
		if src, found := w.sc.Lookup(id.Name); found && src.Val != nil {
			w.assume(&contract.Compare{Op: contract.OpEq, Left: w.result.Val, Right: src.Val})
			if w.result.Len != nil && src.Len != nil {
				w.assume(&contract.Compare{Op: contract.OpEq, Left: w.result.Len, Right: src.Len})
			}
			if w.result.Null != nil {
				null := src.Null
				if null == nil {
					null = contract.False
				}
				w.assume(&contract.Compare{Op: contract.OpEq, Left: w.result.Null, Right: null})
			}
			return
		}
	}

	t, err := w.eval(n.Value)
	if err != nil {
		// The returned value has no model; result stays unconstrained.
		return
	}
	w.assume(&contract.Compare{Op: contract.OpEq, Left: w.result.Val, Right: t})
	if w.result.Null != nil {
		w.assume(&contract.Not{X: w.result.Null})
	}
}

// assignedNames collects every name assigned anywhere under stmts,
// including inside nested branches and loops. Index assignments count
// against the array's name.
func assignedNames(stmts []ast.Stmt) map[string]bool {
	out := make(map[string]bool)
	collectAssigned(stmts, out)
	return out
}

func collectAssigned(stmts []ast.Stmt, out map[string]bool) {
	for _, stmt := range stmts {
		switch n := stmt.(type) {
		case *ast.AssignStmt:
			switch target := ast.Unparen(n.Target).(type) {
			case *ast.IdentExpr:
				out[target.Name] = true
			case *ast.IndexExpr:
				if id, ok := ast.Unparen(target.Target).(*ast.IdentExpr); ok {
					out[id.Name] = true
				}
			}
		case *ast.IfStmt:
			collectAssigned(n.Then.Stmts, out)
			if n.Else != nil {
				collectAssigned([]ast.Stmt{n.Else}, out)
			}
		case *ast.FunctionBlock:
			collectAssigned(n.Stmts, out)
		case *ast.WhileStmt:
			collectAssigned(n.Body.Stmts, out)
		case *ast.DoWhileStmt:
			collectAssigned(n.Body.Stmts, out)
		case *ast.ForStmt:
			collectAssigned(n.Body.Stmts, out)
		}
	}
}
