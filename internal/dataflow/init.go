package dataflow

import (
	"fmt"

	"oath/internal/ast"
	"oath/internal/cfg"
	"oath/internal/diag"
)

// InitState is the definite-assignment lattice for one variable. The
// merge of two different states is always MaybeInitialized: certainty
// only survives a join when both sides agree.
type InitState int

const (
	Uninitialized InitState = iota
	MaybeInitialized
	Initialized
)

func (s InitState) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case MaybeInitialized:
		return "maybe-initialized"
	case Initialized:
		return "initialized"
	}
	return "?"
}

func mergeState(a, b InitState) InitState {
	if a == b {
		return a
	}
	return MaybeInitialized
}

// initPass computes, per block, the assignment state of every variable
// on entry, then sweeps the blocks once more to report reads that can
// see an unassigned value. Each variable is reported at most once per
// function, at its first bad read.
type initPass struct {
	g        *cfg.Graph
	in       map[int]map[string]InitState
	reported map[string]bool
	diags    []diag.Diagnostic
}

func checkInitialization(g *cfg.Graph) []diag.Diagnostic {
	p := &initPass{
		g:        g,
		in:       make(map[int]map[string]InitState),
		reported: make(map[string]bool),
	}
	p.solve()
	p.report()
	return p.diags
}

func (p *initPass) entryState() map[string]InitState {
	state := make(map[string]InitState)
	for _, param := range p.g.Function.Params {
		state[param.Name.Value] = Initialized
	}
	return state
}

// solve runs the forward worklist to a fixed point. States only move
// toward MaybeInitialized under merging, so the iteration terminates.
func (p *initPass) solve() {
	p.in[p.g.Entry.ID] = p.entryState()
	work := []*cfg.BasicBlock{p.g.Entry}
	for len(work) > 0 {
		blk := work[0]
		work = work[1:]
		out := p.transferBlock(blk, cloneState(p.in[blk.ID]), nil)
		for _, e := range blk.Succs {
			prev, seen := p.in[e.To.ID]
			merged := mergeInto(prev, out)
			if !seen || !statesEqual(prev, merged) {
				p.in[e.To.ID] = merged
				work = append(work, e.To)
			}
		}
	}
}

func (p *initPass) report() {
	for _, blk := range p.g.Blocks {
		state, visited := p.in[blk.ID]
		if blk.Unreachable || !visited {
			continue
		}
		p.transferBlock(blk, cloneState(state), p.reportRead)
	}
}

// transferBlock walks one block in execution order: reads are checked
// against the state as it stood when they happen, then writes update it.
// The branch condition evaluates after the statements.
func (p *initPass) transferBlock(blk *cfg.BasicBlock, state map[string]InitState, report func(*ast.IdentExpr, InitState)) map[string]InitState {
	check := func(e ast.Expr) { p.checkReads(e, state, report) }
	for _, stmt := range blk.Stmts {
		switch n := stmt.(type) {
		case *ast.LetStmt:
			if n.Value != nil {
				check(n.Value)
				state[n.Name.Value] = Initialized
			} else {
				state[n.Name.Value] = Uninitialized
			}
		case *ast.AssignStmt:
			check(n.Value)
			switch target := ast.Unparen(n.Target).(type) {
			case *ast.IdentExpr:
				state[target.Name] = Initialized
			case *ast.IndexExpr:
				// An element write reads the array and the index.
				check(target.Target)
				check(target.Index)
			}
		case *ast.ExprStmt:
			check(n.X)
		case *ast.ReturnStmt:
			if n.Value != nil {
				check(n.Value)
			}
		case *ast.ThrowStmt:
			if n.Value != nil {
				check(n.Value)
			}
		}
	}
	if blk.Cond != nil {
		check(blk.Cond)
	}
	return state
}

func (p *initPass) checkReads(e ast.Expr, state map[string]InitState, report func(*ast.IdentExpr, InitState)) {
	walkReads(e, func(id *ast.IdentExpr) {
		st, ok := state[id.Name]
		if !ok {
			st = Uninitialized
		}
		if st != Initialized && report != nil {
			report(id, st)
		}
	})
}

func (p *initPass) reportRead(id *ast.IdentExpr, st InitState) {
	if p.reported[id.Name] {
		return
	}
	p.reported[id.Name] = true

	code := diag.CodeMaybeUninitializedRead
	msg := fmt.Sprintf("'%s' may be uninitialized here", id.Name)
	if st == Uninitialized {
		code = diag.CodeUninitializedRead
		msg = fmt.Sprintf("'%s' is read before it is assigned", id.Name)
	}
	p.diags = append(p.diags, diag.New(code, msg, ast.SpanOf(id)).
		WithFunction(p.g.Function.Name.Value).
		WithHelp(fmt.Sprintf("assign '%s' on every path before this use", id.Name)).
		Build())
}

func cloneState(state map[string]InitState) map[string]InitState {
	out := make(map[string]InitState, len(state))
	for name, st := range state {
		out[name] = st
	}
	return out
}

// mergeInto folds an incoming edge state into a block's entry state.
// A name missing on one side counts as Uninitialized there: that path
// never declared it.
func mergeInto(existing, incoming map[string]InitState) map[string]InitState {
	if existing == nil {
		return cloneState(incoming)
	}
	out := make(map[string]InitState, len(existing))
	for name, st := range existing {
		out[name] = st
	}
	for name, st := range incoming {
		if prev, ok := out[name]; ok {
			out[name] = mergeState(prev, st)
		} else {
			out[name] = mergeState(Uninitialized, st)
		}
	}
	for name := range existing {
		if _, ok := incoming[name]; !ok {
			out[name] = mergeState(existing[name], Uninitialized)
		}
	}
	return out
}

func statesEqual(a, b map[string]InitState) bool {
	if len(a) != len(b) {
		return false
	}
	for name, st := range a {
		if other, ok := b[name]; !ok || other != st {
			return false
		}
	}
	return true
}
