package bugpattern

import (
	"oath/internal/ast"
	"oath/internal/cfg"
	"oath/internal/types"
)

// nullness tracks which nullable variables may currently hold null.
// Only variables of nullable type appear in the map; true means a null
// value can reach this point. The lattice has two points, so the
// iteration needs no widening.
type nullness struct {
	g  *cfg.Graph
	in map[int]map[string]bool
}

func newNullness(g *cfg.Graph) *nullness {
	return &nullness{g: g, in: make(map[int]map[string]bool)}
}

// seedEnv marks nullable parameters as possibly null, then lets the
// preconditions retract that: requires(x != null) promises the caller
// passes a value.
func (nl *nullness) seedEnv() map[string]bool {
	env := make(map[string]bool)
	for _, param := range nl.g.Function.Params {
		if param.Type != nil && types.IsNullable(param.Type.Resolved) {
			env[param.Name.Value] = true
		}
	}
	for _, req := range nl.g.Function.Requires {
		refineNullCond(env, req, true)
	}
	return env
}

func (nl *nullness) solve() {
	nl.in[nl.g.Entry.ID] = nl.seedEnv()
	work := []*cfg.BasicBlock{nl.g.Entry}
	for len(work) > 0 {
		blk := work[0]
		work = work[1:]
		out := nl.transferBlock(blk, cloneNullEnv(nl.in[blk.ID]))
		for _, e := range blk.Succs {
			arriving := refineNullEdge(out, blk.Cond, e.Kind)
			prev, seen := nl.in[e.To.ID]
			merged := joinNullEnvs(prev, arriving)
			if seen && nullEnvsEqual(prev, merged) {
				continue
			}
			nl.in[e.To.ID] = merged
			work = append(work, e.To)
		}
	}
}

func (nl *nullness) transferBlock(blk *cfg.BasicBlock, env map[string]bool) map[string]bool {
	if blk.Opaque {
		// The malformed region may have assigned anything, null included.
		for name := range env {
			env[name] = true
		}
		return env
	}
	for _, stmt := range blk.Stmts {
		transferNullStmt(env, stmt)
	}
	return env
}

func transferNullStmt(env map[string]bool, stmt ast.Stmt) {
	switch n := stmt.(type) {
	case *ast.LetStmt:
		if n.Value == nil {
			// Unassigned; reads are the dataflow analyzer's finding.
			delete(env, n.Name.Value)
			return
		}
		declared := exprType(n.Value)
		if n.Type != nil {
			declared = n.Type.Resolved
		}
		setNullFact(env, n.Name.Value, declared, n.Value)
	case *ast.AssignStmt:
		if id, ok := ast.Unparen(n.Target).(*ast.IdentExpr); ok {
			setNullFact(env, id.Name, id.Type(), n.Value)
		}
	}
}

func setNullFact(env map[string]bool, name string, declared types.Type, value ast.Expr) {
	if !types.IsNullable(declared) {
		delete(env, name)
		return
	}
	env[name] = exprMayBeNull(env, value)
}

func exprMayBeNull(env map[string]bool, e ast.Expr) bool {
	switch n := ast.Unparen(e).(type) {
	case *ast.LiteralExpr:
		return n.Kind == ast.NullLit
	case *ast.IdentExpr:
		if fact, ok := env[n.Name]; ok {
			return fact
		}
		return types.IsNullable(n.Type())
	default:
		return types.IsNullable(exprType(e))
	}
}

func refineNullEdge(env map[string]bool, cond ast.Expr, kind cfg.EdgeKind) map[string]bool {
	out := cloneNullEnv(env)
	if cond == nil {
		return out
	}
	switch kind {
	case cfg.TrueBranch, cfg.LoopBack:
		refineNullCond(out, cond, true)
	case cfg.FalseBranch:
		refineNullCond(out, cond, false)
	}
	return out
}

func refineNullCond(env map[string]bool, cond ast.Expr, assume bool) {
	switch n := ast.Unparen(cond).(type) {
	case *ast.UnaryExpr:
		if n.Op == "!" {
			refineNullCond(env, n.Value, !assume)
		}
	case *ast.BinaryExpr:
		switch n.Op {
		case "&&":
			if assume {
				refineNullCond(env, n.Left, true)
				refineNullCond(env, n.Right, true)
			}
		case "||":
			if !assume {
				refineNullCond(env, n.Left, false)
				refineNullCond(env, n.Right, false)
			}
		case "==", "!=":
			id, ok := nullTestOperand(n)
			if !ok {
				return
			}
			if _, tracked := env[id.Name]; !tracked {
				return
			}
			notNull := (n.Op == "!=") == assume
			env[id.Name] = !notNull
		}
	}
}

// nullTestOperand matches comparisons of an identifier against the null
// literal, on either side.
func nullTestOperand(n *ast.BinaryExpr) (*ast.IdentExpr, bool) {
	l := ast.Unparen(n.Left)
	r := ast.Unparen(n.Right)
	if id, ok := l.(*ast.IdentExpr); ok && isNullLit(r) {
		return id, true
	}
	if id, ok := r.(*ast.IdentExpr); ok && isNullLit(l) {
		return id, true
	}
	return nil, false
}

func isNullLit(e ast.Expr) bool {
	lit, ok := e.(*ast.LiteralExpr)
	return ok && lit.Kind == ast.NullLit
}

func cloneNullEnv(env map[string]bool) map[string]bool {
	out := make(map[string]bool, len(env))
	for k, v := range env {
		out[k] = v
	}
	return out
}

func joinNullEnvs(a, b map[string]bool) map[string]bool {
	out := make(map[string]bool, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		if prev, ok := out[k]; ok {
			out[k] = prev || v
		} else {
			out[k] = v
		}
	}
	return out
}

func nullEnvsEqual(a, b map[string]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if ov, ok := b[k]; !ok || ov != v {
			return false
		}
	}
	return true
}
