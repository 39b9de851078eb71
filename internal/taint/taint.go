// Package taint tracks externally supplied values through a function and
// reports flows that reach a declared sink without passing a sanitizer.
//
// The domain is two-point per variable, untainted or tainted, with the
// tainted point carrying every source that can reach the variable. Joins
// union the sources, so one sweep over the fixed point reports each
// (sink site, source) pair exactly once no matter how many paths connect
// them.
package taint

import (
	"fmt"
	"sort"

	"oath/internal/ast"
	"oath/internal/cfg"
	"oath/internal/diag"
	"oath/internal/effects"
)

// source identifies where external data entered the function: an
// #[external] parameter or a call whose effects read external input.
type source struct {
	desc string
	span ast.Span
}

// taintSet is the set of sources that can reach a value. A nil or empty
// set means the value is untainted.
type taintSet map[source]bool

// Analyzer runs the taint pass over one function at a time. The registry
// supplies sink classes, source calls, and the sanitizer table.
type Analyzer struct {
	reg *effects.Registry
}

func NewAnalyzer(reg *effects.Registry) *Analyzer {
	return &Analyzer{reg: reg}
}

// Analyze reports every flow from a taint source into a sink call that no
// sanitizer interrupts.
func (a *Analyzer) Analyze(g *cfg.Graph) []diag.Diagnostic {
	p := &taintPass{
		g:        g,
		reg:      a.reg,
		fn:       g.Function.Name.Value,
		in:       make(map[int]taintEnv),
		reported: make(map[sinkHit]bool),
	}
	p.solve()
	p.report()
	return p.diags
}

type taintEnv map[string]taintSet

// sinkHit keys the dedup: one diagnostic per sink site and source pair.
type sinkHit struct {
	span ast.Span
	src  source
}

type taintPass struct {
	g        *cfg.Graph
	reg      *effects.Registry
	fn       string
	in       map[int]taintEnv
	reported map[sinkHit]bool
	diags    []diag.Diagnostic
}

// seedEnv taints the parameters of an #[external] function. Everything
// else starts clean; sources inside the body are introduced at their
// call sites.
func (p *taintPass) seedEnv() taintEnv {
	env := make(taintEnv)
	if !p.g.Function.External {
		return env
	}
	for _, param := range p.g.Function.Params {
		src := source{
			desc: fmt.Sprintf("parameter '%s'", param.Name.Value),
			span: param.Name.Span(),
		}
		env[param.Name.Value] = taintSet{src: true}
	}
	return env
}

func (p *taintPass) solve() {
	p.in[p.g.Entry.ID] = p.seedEnv()
	work := []*cfg.BasicBlock{p.g.Entry}
	for len(work) > 0 {
		blk := work[0]
		work = work[1:]

		out := p.transferBlock(blk, cloneTaintEnv(p.in[blk.ID]), false)
		for _, e := range blk.Succs {
			prev, seen := p.in[e.To.ID]
			merged := joinTaintEnvs(prev, out)
			if seen && taintEnvsEqual(prev, merged) {
				continue
			}
			p.in[e.To.ID] = merged
			work = append(work, e.To)
		}
	}
}

// report replays the transfer over the solved states, this time checking
// every expression for sink calls. Each block is visited once with the
// join over all paths, so the dedup over (site, source) holds globally.
func (p *taintPass) report() {
	for _, blk := range p.g.Blocks {
		if blk.Unreachable {
			continue
		}
		env, visited := p.in[blk.ID]
		if !visited {
			continue
		}
		p.transferBlock(blk, cloneTaintEnv(env), true)
	}
}

func (p *taintPass) transferBlock(blk *cfg.BasicBlock, env taintEnv, check bool) taintEnv {
	if blk.Opaque {
		// Unparsed code may launder or introduce anything; drop all facts.
		return make(taintEnv)
	}
	for _, stmt := range blk.Stmts {
		p.transferStmt(stmt, env, check)
	}
	if check && blk.Cond != nil {
		p.checkExpr(blk.Cond, env)
	}
	return env
}

func (p *taintPass) transferStmt(stmt ast.Stmt, env taintEnv, check bool) {
	switch n := stmt.(type) {
	case *ast.LetStmt:
		if n.Value == nil {
			delete(env, n.Name.Value)
			return
		}
		if check {
			p.checkExpr(n.Value, env)
		}
		setTaint(env, n.Name.Value, p.taintOf(n.Value, env))
	case *ast.AssignStmt:
		if check {
			p.checkExpr(n.Value, env)
		}
		switch target := ast.Unparen(n.Target).(type) {
		case *ast.IdentExpr:
			setTaint(env, target.Name, p.taintOf(n.Value, env))
		case *ast.IndexExpr:
			if check {
				p.checkExpr(n.Target, env)
			}
			// A tainted element taints the whole array.
			if root, ok := ast.Unparen(target.Target).(*ast.IdentExpr); ok {
				setTaint(env, root.Name, unionTaint(env[root.Name], p.taintOf(n.Value, env)))
			}
		}
	case *ast.ExprStmt:
		if check {
			p.checkExpr(n.X, env)
		}
	case *ast.ReturnStmt:
		if check && n.Value != nil {
			p.checkExpr(n.Value, env)
		}
	case *ast.ThrowStmt:
		if check && n.Value != nil {
			p.checkExpr(n.Value, env)
		}
	}
}

// taintOf computes the sources that can reach the value of e under env.
func (p *taintPass) taintOf(e ast.Expr, env taintEnv) taintSet {
	switch n := ast.Unparen(e).(type) {
	case *ast.IdentExpr:
		return env[n.Name]
	case *ast.UnaryExpr:
		return p.taintOf(n.Value, env)
	case *ast.BinaryExpr:
		return unionTaint(p.taintOf(n.Left, env), p.taintOf(n.Right, env))
	case *ast.IndexExpr:
		// Elements of a tainted array are tainted.
		return p.taintOf(n.Target, env)
	case *ast.LenExpr:
		// A length is a count, not the content.
		return nil
	case *ast.CallExpr:
		return p.taintOfCall(n, env)
	}
	return nil
}

func (p *taintPass) taintOfCall(n *ast.CallExpr, env taintEnv) taintSet {
	path := n.Callee.Name()
	if p.reg.IsSanitizer(path) {
		return nil
	}
	if p.reg.IsSourceCall(path) {
		src := source{
			desc: fmt.Sprintf("the call to '%s'", path),
			span: ast.SpanOf(n),
		}
		return taintSet{src: true}
	}
	// Any other callee may pass its inputs through to its result.
	var out taintSet
	for _, arg := range n.Args {
		out = unionTaint(out, p.taintOf(arg, env))
	}
	return out
}

// checkExpr walks e for sink calls, arguments before the calls that
// receive them.
func (p *taintPass) checkExpr(e ast.Expr, env taintEnv) {
	switch n := ast.Unparen(e).(type) {
	case *ast.UnaryExpr:
		p.checkExpr(n.Value, env)
	case *ast.BinaryExpr:
		p.checkExpr(n.Left, env)
		p.checkExpr(n.Right, env)
	case *ast.IndexExpr:
		p.checkExpr(n.Target, env)
		p.checkExpr(n.Index, env)
	case *ast.LenExpr:
		p.checkExpr(n.Target, env)
	case *ast.CallExpr:
		for _, arg := range n.Args {
			p.checkExpr(arg, env)
		}
		p.checkSink(n, env)
	}
}

// checkSink reports each tainted argument of a sink call, once per sink
// site and source.
func (p *taintPass) checkSink(call *ast.CallExpr, env taintEnv) {
	classes := p.reg.SinkClasses(call.Callee.Name())
	if len(classes) == 0 {
		return
	}
	span := ast.SpanOf(call)
	for _, arg := range call.Args {
		for _, src := range sortedSources(p.taintOf(arg, env)) {
			hit := sinkHit{span: span, src: src}
			if p.reported[hit] {
				continue
			}
			p.reported[hit] = true
			p.diags = append(p.diags, diag.New(diag.CodeTaintedSink,
				fmt.Sprintf("tainted value reaches this %s", classes[0]),
				span).
				WithFunction(p.fn).
				WithNote(fmt.Sprintf("the value originates from %s", src.desc)).
				WithHelp(sinkHelp(classes[0])).
				Build())
		}
	}
}

func sinkHelp(c effects.Class) string {
	switch c {
	case effects.DatabaseWrite:
		return "route the value through 'db::escape' before it reaches the database"
	case effects.MarkupEmit:
		return "route the value through 'html::escape' before it reaches the output"
	case effects.ProcessExec:
		return "check the value against a fixed set of allowed commands"
	}
	return "sanitize the value before this call"
}

func sortedSources(set taintSet) []source {
	out := make([]source, 0, len(set))
	for src := range set {
		out = append(out, src)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].span.Before(out[j].span) {
			return true
		}
		if out[j].span.Before(out[i].span) {
			return false
		}
		return out[i].desc < out[j].desc
	})
	return out
}

func setTaint(env taintEnv, name string, set taintSet) {
	if len(set) == 0 {
		delete(env, name)
		return
	}
	env[name] = set
}

// unionTaint returns a fresh set holding both inputs' sources, or nil
// when both are empty.
func unionTaint(a, b taintSet) taintSet {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	out := make(taintSet, len(a)+len(b))
	for src := range a {
		out[src] = true
	}
	for src := range b {
		out[src] = true
	}
	return out
}

// Sets are never mutated in place, so envs share them and clones copy
// only the outer map.
func cloneTaintEnv(env taintEnv) taintEnv {
	out := make(taintEnv, len(env))
	for name, set := range env {
		out[name] = set
	}
	return out
}

// joinTaintEnvs unions two predecessor states. Taint is a may-property,
// so a source reaching a variable on any path reaches the join.
func joinTaintEnvs(a, b taintEnv) taintEnv {
	out := make(taintEnv, len(a)+len(b))
	for name, set := range a {
		out[name] = set
	}
	for name, set := range b {
		out[name] = unionTaint(out[name], set)
	}
	return out
}

func taintEnvsEqual(a, b taintEnv) bool {
	if len(a) != len(b) {
		return false
	}
	for name, as := range a {
		bs, ok := b[name]
		if !ok || len(as) != len(bs) {
			return false
		}
		for src := range as {
			if !bs[src] {
				return false
			}
		}
	}
	return true
}
