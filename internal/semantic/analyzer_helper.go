package semantic

import (
	"math/big"

	"oath/internal/ast"
	"oath/internal/diag"
	"oath/internal/types"
)

// parseIntLiteral handles decimal and 0x forms.
func parseIntLiteral(text string) (*big.Int, bool) {
	v := new(big.Int)
	_, ok := v.SetString(text, 0)
	return v, ok
}

// literalValue extracts the constant value of an integer literal,
// looking through parentheses and a leading unary minus.
func literalValue(expr ast.Expr) (*big.Int, bool) {
	switch node := ast.Unparen(expr).(type) {
	case *ast.LiteralExpr:
		if node.Kind != ast.IntLit {
			return nil, false
		}
		return parseIntLiteral(node.Value)
	case *ast.UnaryExpr:
		if node.Op != "-" {
			return nil, false
		}
		inner, ok := ast.Unparen(node.Value).(*ast.LiteralExpr)
		if !ok || inner.Kind != ast.IntLit {
			return nil, false
		}
		v, ok := parseIntLiteral(inner.Value)
		if !ok {
			return nil, false
		}
		return v.Neg(v), true
	}
	return nil, false
}

// adoptLiteralType re-annotates a literal (possibly negated or
// parenthesized) with the integer type its context supplies.
func adoptLiteralType(expr ast.Expr, ty *types.IntType) {
	switch node := ast.Unparen(expr).(type) {
	case *ast.LiteralExpr:
		node.Ty = ty
	case *ast.UnaryExpr:
		node.Ty = ty
		if inner, ok := ast.Unparen(node.Value).(*ast.LiteralExpr); ok {
			inner.Ty = ty
		}
	}
	if p, ok := expr.(*ast.ParenExpr); ok {
		p.Ty = ty
	}
}

func isNullLiteral(expr ast.Expr) bool {
	lit, ok := ast.Unparen(expr).(*ast.LiteralExpr)
	return ok && lit.Kind == ast.NullLit
}

// checkAssignable verifies that value can flow into a slot of the target
// type, reporting with the given code on mismatch. Integer widening
// within one signedness is implicit; literals adopt the target type when
// they fit and overflow it otherwise.
func (a *Analyzer) checkAssignable(target types.Type, value ast.Expr, valTy types.Type, code string) {
	if target == nil || types.IsUnknown(target) {
		return
	}

	if isNullLiteral(value) {
		if !types.IsNullable(target) {
			a.addDiagf(code, ast.SpanOf(value),
				"cannot assign null to non-nullable %s", target)
		}
		return
	}

	if nt, ok := target.(*types.NullableType); ok {
		if valTy != nil && valTy.Equal(target) {
			return
		}
		a.checkAssignable(nt.Inner, value, valTy, code)
		return
	}

	if it, ok := target.(*types.IntType); ok {
		if v, ok := literalValue(value); ok {
			if it.Fits(v) {
				adoptLiteralType(value, it)
			} else {
				a.addDiagf(diag.CodeNumericOverflow, ast.SpanOf(value),
					"value %s is out of range for %s", v.String(), it)
			}
			return
		}
		if types.IsUnknown(valTy) {
			return
		}
		vi, ok := types.Underlying(valTy).(*types.IntType)
		if !ok {
			a.addDiagf(code, ast.SpanOf(value),
				"expected %s, found %s", target, valTy)
			return
		}
		if types.IsNullable(valTy) {
			a.addDiagf(code, ast.SpanOf(value),
				"expected %s, found %s", target, valTy)
			return
		}
		if vi.Signed != it.Signed || vi.Bits > it.Bits {
			a.addDiagf(code, ast.SpanOf(value),
				"expected %s, found %s", target, valTy)
		}
		return
	}

	if types.IsUnknown(valTy) {
		return
	}
	if !valTy.Equal(target) {
		a.addDiagf(code, ast.SpanOf(value),
			"expected %s, found %s", target, valTy)
	}
}
