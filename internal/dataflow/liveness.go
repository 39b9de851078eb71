package dataflow

import (
	"fmt"

	"oath/internal/ast"
	"oath/internal/cfg"
	"oath/internal/diag"
)

// liveness runs a backward may-analysis: a variable is live at a point
// when some path from that point reads it before writing it. A store to
// a dead variable is wasted work and usually a logic slip.
type liveness struct {
	g   *cfg.Graph
	out map[int]map[string]bool
}

func checkDeadStores(g *cfg.Graph) []diag.Diagnostic {
	l := &liveness{g: g, out: make(map[int]map[string]bool)}
	l.solve()
	return l.report()
}

func (l *liveness) solve() {
	work := make([]*cfg.BasicBlock, len(l.g.Blocks))
	copy(work, l.g.Blocks)
	for len(work) > 0 {
		blk := work[len(work)-1]
		work = work[:len(work)-1]
		liveIn := l.transfer(blk, nil)
		for _, e := range blk.Preds {
			if l.addOut(e.From, liveIn) {
				work = append(work, e.From)
			}
		}
	}
}

// addOut folds a successor's live-in set into pred's live-out set and
// reports whether anything new arrived.
func (l *liveness) addOut(pred *cfg.BasicBlock, liveIn map[string]bool) bool {
	set := l.out[pred.ID]
	if set == nil {
		set = make(map[string]bool)
		l.out[pred.ID] = set
	}
	changed := false
	for name := range liveIn {
		if !set[name] {
			set[name] = true
			changed = true
		}
	}
	return changed
}

func (l *liveness) report() []diag.Diagnostic {
	var diags []diag.Diagnostic
	for _, blk := range l.g.Blocks {
		if blk.Unreachable {
			continue
		}
		l.transfer(blk, func(d diag.Diagnostic) { diags = append(diags, d) })
	}
	return diags
}

// transfer walks the block backward from its live-out set and returns
// its live-in set. The condition is evaluated last at runtime, so it is
// the first thing processed here. When report is set, stores to dead
// variables are flagged as they are found.
func (l *liveness) transfer(blk *cfg.BasicBlock, report func(diag.Diagnostic)) map[string]bool {
	live := make(map[string]bool, len(l.out[blk.ID]))
	for name := range l.out[blk.ID] {
		live[name] = true
	}
	gen := func(e ast.Expr) {
		walkReads(e, func(id *ast.IdentExpr) { live[id.Name] = true })
	}

	if blk.Cond != nil {
		gen(blk.Cond)
	}
	for i := len(blk.Stmts) - 1; i >= 0; i-- {
		switch n := blk.Stmts[i].(type) {
		case *ast.LetStmt:
			if n.Value == nil {
				delete(live, n.Name.Value)
				continue
			}
			if !live[n.Name.Value] && report != nil {
				report(l.deadStore(n, fmt.Sprintf("initial value of '%s' is never used", n.Name.Value)))
			}
			delete(live, n.Name.Value)
			gen(n.Value)
		case *ast.AssignStmt:
			switch target := ast.Unparen(n.Target).(type) {
			case *ast.IdentExpr:
				if !live[target.Name] && report != nil {
					report(l.deadStore(n, fmt.Sprintf("value assigned to '%s' is never used", target.Name)))
				}
				delete(live, target.Name)
			case *ast.IndexExpr:
				// An element write keeps the whole array live. Whether
				// some later read hits this element is not tracked.
				gen(target.Target)
				gen(target.Index)
			}
			gen(n.Value)
		case *ast.ExprStmt:
			gen(n.X)
		case *ast.ReturnStmt:
			if n.Value != nil {
				gen(n.Value)
			}
		case *ast.ThrowStmt:
			if n.Value != nil {
				gen(n.Value)
			}
		}
	}
	return live
}

func (l *liveness) deadStore(stmt ast.Stmt, msg string) diag.Diagnostic {
	return diag.New(diag.CodeDeadStore, msg, ast.SpanOf(stmt)).
		WithFunction(l.g.Function.Name.Value).
		WithHelp("the stored value is overwritten or dropped before any read").
		Build()
}
