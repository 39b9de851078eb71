// Package bugpattern detects likely runtime faults on the control-flow
// graph: division by a possibly zero divisor, use of a maybe-null value,
// constant arithmetic outside the declared type's range, and indexing
// provably outside an array's bounds. Every check fires only on facts
// the range and nullability passes actually establish; where evidence is
// missing the detector stays silent rather than guess.
package bugpattern

import (
	"fmt"
	"math/big"

	"oath/internal/ast"
	"oath/internal/cfg"
	"oath/internal/diag"
	"oath/internal/types"
)

type Detector struct{}

func NewDetector() *Detector { return &Detector{} }

// Analyze runs the fact passes to a fixed point, then sweeps the
// reachable blocks checking each pattern at the program point where it
// would fault. Opaque blocks are skipped: their contents never parsed.
func (d *Detector) Analyze(g *cfg.Graph) []diag.Diagnostic {
	ra := newRangeAnalysis(g)
	ra.solve()
	nl := newNullness(g)
	nl.solve()

	c := &checker{fn: g.Function.Name.Value, nullSeen: make(map[string]bool)}
	for _, blk := range g.Blocks {
		if blk.Unreachable || blk.Opaque {
			continue
		}
		renv, ok := ra.in[blk.ID]
		if !ok || renv.infeasible {
			continue
		}
		renv = renv.clone()
		nenv := cloneNullEnv(nl.in[blk.ID])
		for _, stmt := range blk.Stmts {
			c.checkStmt(stmt, renv, nenv)
			renv = transferRangeStmt(renv, stmt)
			transferNullStmt(nenv, stmt)
		}
		if blk.Cond != nil {
			c.checkRoot(blk.Cond, renv, nenv)
		}
	}
	return c.diags
}

type checker struct {
	fn       string
	nullSeen map[string]bool
	diags    []diag.Diagnostic
}

func (c *checker) checkStmt(stmt ast.Stmt, renv rangeEnv, nenv map[string]bool) {
	switch n := stmt.(type) {
	case *ast.LetStmt:
		if n.Value != nil {
			c.checkRoot(n.Value, renv, nenv)
		}
	case *ast.AssignStmt:
		if _, ok := ast.Unparen(n.Target).(*ast.IndexExpr); ok {
			// Element writes fault on a bad index or null array too.
			c.checkRoot(n.Target, renv, nenv)
		}
		c.checkRoot(n.Value, renv, nenv)
	case *ast.ExprStmt:
		c.checkRoot(n.X, renv, nenv)
	case *ast.ReturnStmt:
		if n.Value != nil {
			c.checkRoot(n.Value, renv, nenv)
		}
	case *ast.ThrowStmt:
		if n.Value != nil {
			c.checkRoot(n.Value, renv, nenv)
		}
	}
}

func (c *checker) checkRoot(e ast.Expr, renv rangeEnv, nenv map[string]bool) {
	c.checkExpr(e, renv, nenv)
	c.checkOverflowTree(e, renv)
}

func (c *checker) checkExpr(e ast.Expr, renv rangeEnv, nenv map[string]bool) {
	switch n := e.(type) {
	case *ast.ParenExpr:
		c.checkExpr(n.Value, renv, nenv)
	case *ast.UnaryExpr:
		c.checkExpr(n.Value, renv, nenv)
	case *ast.BinaryExpr:
		c.checkExpr(n.Left, renv, nenv)
		c.checkExpr(n.Right, renv, nenv)
		if n.Op == "/" || n.Op == "%" {
			c.checkDivisor(n, renv)
		}
		c.checkNullOperands(n, nenv)
	case *ast.CallExpr:
		for _, arg := range n.Args {
			c.checkExpr(arg, renv, nenv)
		}
	case *ast.IndexExpr:
		c.checkExpr(n.Target, renv, nenv)
		c.checkExpr(n.Index, renv, nenv)
		c.checkIndexSite(n, renv)
		c.checkNullUse(n.Target, nenv)
	case *ast.LenExpr:
		c.checkExpr(n.Target, renv, nenv)
		c.checkNullUse(n.Target, nenv)
	}
}

func (c *checker) checkDivisor(n *ast.BinaryExpr, renv rangeEnv) {
	iv, ok := evalRange(n.Right, renv)
	if !ok {
		return
	}
	what := "divisor"
	if id, isIdent := ast.Unparen(n.Right).(*ast.IdentExpr); isIdent {
		what = fmt.Sprintf("divisor '%s'", id.Name)
	}
	switch {
	case iv.alwaysZero():
		c.emit(diag.CodeDivisionByZero,
			fmt.Sprintf("%s is always zero", what), ast.SpanOf(n),
			"this division can never succeed")
	case iv.containsZero():
		c.emit(diag.CodePossibleDivisionByZero,
			fmt.Sprintf("%s may be zero", what), ast.SpanOf(n),
			"exclude zero with a requires clause or a guard")
	}
}

func (c *checker) checkIndexSite(n *ast.IndexExpr, renv rangeEnv) {
	if iv, ok := evalRange(n.Index, renv); ok && iv.alwaysNegative() {
		c.emit(diag.CodeIndexOutOfBounds,
			"index is always negative", ast.SpanOf(n),
			"array indices start at 0")
		return
	}
	idx, iok := ast.Unparen(n.Index).(*ast.IdentExpr)
	arr, aok := ast.Unparen(n.Target).(*ast.IdentExpr)
	if iok && aok && renv.pastEnd[idx.Name] == arr.Name {
		c.emit(diag.CodeIndexOutOfBounds,
			fmt.Sprintf("index '%s' is at or past the end of '%s'", idx.Name, arr.Name),
			ast.SpanOf(n),
			"this access is only reached when the bounds check has already failed")
	}
}

// checkNullOperands flags maybe-null values fed into arithmetic or
// ordering operators. Equality is exempt: comparing against null is the
// test itself, and identity comparison of two nullables is well defined.
func (c *checker) checkNullOperands(n *ast.BinaryExpr, nenv map[string]bool) {
	switch n.Op {
	case "+", "-", "*", "/", "%", "<", "<=", ">", ">=":
		c.checkNullUse(n.Left, nenv)
		c.checkNullUse(n.Right, nenv)
	}
}

func (c *checker) checkNullUse(e ast.Expr, nenv map[string]bool) {
	id, ok := ast.Unparen(e).(*ast.IdentExpr)
	if !ok || !nenv[id.Name] || c.nullSeen[id.Name] {
		return
	}
	c.nullSeen[id.Name] = true
	c.emit(diag.CodeNullDereference,
		fmt.Sprintf("'%s' may be null here", id.Name), ast.SpanOf(id),
		fmt.Sprintf("test '%s' against null before using it", id.Name))
}

// checkOverflowTree reports constant subexpressions whose exact value
// escapes their type. Outermost first: once a node is reported its
// operands are summarized by it.
func (c *checker) checkOverflowTree(e ast.Expr, renv rangeEnv) {
	switch n := ast.Unparen(e).(type) {
	case *ast.UnaryExpr:
		c.checkOverflowTree(n.Value, renv)
	case *ast.BinaryExpr:
		switch n.Op {
		case "+", "-", "*":
			if c.reportConstOverflow(n, renv) {
				return
			}
		}
		c.checkOverflowTree(n.Left, renv)
		c.checkOverflowTree(n.Right, renv)
	case *ast.CallExpr:
		for _, arg := range n.Args {
			c.checkOverflowTree(arg, renv)
		}
	case *ast.IndexExpr:
		c.checkOverflowTree(n.Target, renv)
		c.checkOverflowTree(n.Index, renv)
	case *ast.LenExpr:
		c.checkOverflowTree(n.Target, renv)
	}
}

func (c *checker) reportConstOverflow(n *ast.BinaryExpr, renv rangeEnv) bool {
	l, lok := evalRange(n.Left, renv)
	r, rok := evalRange(n.Right, renv)
	if !lok || !rok || !l.isPoint() || !r.isPoint() {
		return false
	}
	ty, ok := types.Underlying(n.Type()).(*types.IntType)
	if !ok {
		return false
	}
	v := new(big.Int)
	switch n.Op {
	case "+":
		v.Add(l.lo, r.lo)
	case "-":
		v.Sub(l.lo, r.lo)
	case "*":
		v.Mul(l.lo, r.lo)
	}
	if ty.Fits(v) {
		return false
	}
	c.emit(diag.CodeIntegerOverflow,
		fmt.Sprintf("this expression always evaluates to %s, outside the range of %s", v, ty),
		ast.SpanOf(n),
		fmt.Sprintf("%s holds %s to %s", ty, ty.MinValue(), ty.MaxValue()))
	return true
}

func (c *checker) emit(code, msg string, span ast.Span, help string) {
	c.diags = append(c.diags, diag.New(code, msg, span).
		WithFunction(c.fn).
		WithHelp(help).
		Build())
}
