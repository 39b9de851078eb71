// Package dataflow runs the flow-sensitive hygiene passes over a
// function's control-flow graph: definite-assignment tracking,
// unreachable code, and dead stores.
package dataflow

import (
	"oath/internal/ast"
	"oath/internal/cfg"
	"oath/internal/diag"
)

type Analyzer struct{}

func NewAnalyzer() *Analyzer { return &Analyzer{} }

// Analyze reports the dataflow findings for one function's graph.
func (a *Analyzer) Analyze(g *cfg.Graph) []diag.Diagnostic {
	var out []diag.Diagnostic
	out = append(out, checkUnreachable(g)...)
	if g.HasOpaque() {
		// Part of the body never parsed, so flow facts past that region
		// would be guesses. The parse error already covers the function.
		return out
	}
	out = append(out, checkInitialization(g)...)
	out = append(out, checkDeadStores(g)...)
	return out
}

// walkReads visits every identifier read in e, left to right.
// Assignment targets are not reads and never pass through here.
func walkReads(e ast.Expr, visit func(*ast.IdentExpr)) {
	switch n := e.(type) {
	case *ast.IdentExpr:
		visit(n)
	case *ast.UnaryExpr:
		walkReads(n.Value, visit)
	case *ast.BinaryExpr:
		walkReads(n.Left, visit)
		walkReads(n.Right, visit)
	case *ast.CallExpr:
		for _, a := range n.Args {
			walkReads(a, visit)
		}
	case *ast.IndexExpr:
		walkReads(n.Target, visit)
		walkReads(n.Index, visit)
	case *ast.LenExpr:
		walkReads(n.Target, visit)
	case *ast.ParenExpr:
		walkReads(n.Value, visit)
	}
}
