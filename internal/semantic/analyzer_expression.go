package semantic

import (
	"oath/internal/ast"
	"oath/internal/diag"
	"oath/internal/effects"
	"oath/internal/types"
)

// inferExpr types an expression bottom-up, emitting diagnostics as it
// goes. It always returns a non-nil type; Unknown stops error cascades
// from a single bad subexpression.
func (a *Analyzer) inferExpr(expr ast.Expr) types.Type {
	if expr == nil {
		return types.Unknown
	}

	switch node := expr.(type) {
	case *ast.LiteralExpr:
		return a.inferLiteral(node)
	case *ast.IdentExpr:
		return a.inferIdent(node)
	case *ast.UnaryExpr:
		return a.inferUnary(node)
	case *ast.BinaryExpr:
		return a.inferBinary(node)
	case *ast.ParenExpr:
		node.Ty = a.inferExpr(node.Value)
		return node.Ty
	case *ast.IndexExpr:
		return a.inferIndex(node)
	case *ast.LenExpr:
		return a.inferLen(node)
	case *ast.CallExpr:
		return a.inferCall(node)
	}
	return types.Unknown
}

func (a *Analyzer) inferLiteral(node *ast.LiteralExpr) types.Type {
	switch node.Kind {
	case ast.IntLit:
		v, ok := parseIntLiteral(node.Value)
		if !ok {
			a.addDiagf(diag.CodeNumericOverflow, ast.SpanOf(node),
				"invalid integer literal '%s'", node.Value)
			node.Ty = types.Unknown
			return node.Ty
		}
		// Literals default to I64 and may later adopt a narrower type
		// from their context when the value fits.
		switch {
		case types.I64.Fits(v):
			node.Ty = types.I64
		case types.U64.Fits(v):
			node.Ty = types.U64
		default:
			a.addDiagf(diag.CodeNumericOverflow, ast.SpanOf(node),
				"integer literal '%s' does not fit any supported type", node.Value)
			node.Ty = types.Unknown
		}
	case ast.BoolLit:
		node.Ty = types.Bool
	case ast.StringLit:
		node.Ty = types.String
	case ast.NullLit:
		// null carries no type of its own; assignability decides
		node.Ty = types.Unknown
	}
	return node.Ty
}

func (a *Analyzer) inferIdent(node *ast.IdentExpr) types.Type {
	if node.Name == "result" {
		sym := a.symbols.Lookup("result")
		switch {
		case !a.inEnsures:
			a.addDiagf(diag.CodeResultOutsidePost, ast.SpanOf(node),
				"'result' is only available in ensures clauses")
			node.Ty = types.Unknown
		case sym == nil:
			a.addDiagf(diag.CodeResultOutsidePost, ast.SpanOf(node),
				"'result' is unavailable because the function returns no value")
			node.Ty = types.Unknown
		default:
			node.Ty = sym.Type
		}
		return node.Ty
	}

	sym := a.symbols.Lookup(node.Name)
	if sym == nil {
		a.addDiagf(diag.CodeUndefinedVariable, ast.SpanOf(node),
			"undefined variable '%s'", node.Name)
		node.Ty = types.Unknown
		return node.Ty
	}
	if sym.Kind == SymbolFunction {
		a.addDiagf(diag.CodeUndefinedVariable, ast.SpanOf(node),
			"'%s' is a function, not a variable", node.Name)
		node.Ty = types.Unknown
		return node.Ty
	}
	node.Ty = sym.Type
	return node.Ty
}

func (a *Analyzer) inferUnary(node *ast.UnaryExpr) types.Type {
	innerTy := a.inferExpr(node.Value)

	switch node.Op {
	case "-":
		if types.IsUnknown(innerTy) {
			node.Ty = types.Unknown
		} else if !types.IsInteger(innerTy) {
			a.addDiagf(diag.CodeTypeMismatch, ast.SpanOf(node),
				"cannot negate %s", innerTy)
			node.Ty = types.Unknown
		} else {
			node.Ty = types.Underlying(innerTy)
		}
	case "!":
		if !types.IsBoolean(innerTy) && !types.IsUnknown(innerTy) {
			a.addDiagf(diag.CodeTypeMismatch, ast.SpanOf(node),
				"'!' needs a Bool operand, found %s", innerTy)
		}
		node.Ty = types.Bool
	}
	return node.Ty
}

func (a *Analyzer) inferBinary(node *ast.BinaryExpr) types.Type {
	lt := a.inferExpr(node.Left)
	rt := a.inferExpr(node.Right)

	switch node.Op {
	case "+", "-", "*", "/", "%":
		node.Ty = a.numericOperands(node, lt, rt)
	case "<", "<=", ">", ">=":
		a.numericOperands(node, lt, rt)
		node.Ty = types.Bool
	case "==", "!=":
		a.checkComparable(node, lt, rt)
		node.Ty = types.Bool
	case "&&", "||":
		for _, side := range []struct {
			ty types.Type
			ex ast.Expr
		}{{lt, node.Left}, {rt, node.Right}} {
			if !types.IsBoolean(side.ty) && !types.IsUnknown(side.ty) {
				a.addDiagf(diag.CodeTypeMismatch, ast.SpanOf(side.ex),
					"'%s' needs Bool operands, found %s", node.Op, side.ty)
			}
		}
		node.Ty = types.Bool
	default:
		node.Ty = types.Unknown
	}
	return node.Ty
}

// numericOperands types an arithmetic or ordering operation. Literal
// operands adopt the other side's integer type when the value fits, so
// U8 counters can be compared against plain constants.
func (a *Analyzer) numericOperands(node *ast.BinaryExpr, lt, rt types.Type) types.Type {
	if types.IsUnknown(lt) || types.IsUnknown(rt) {
		return types.Unknown
	}

	li, lok := types.Underlying(lt).(*types.IntType)
	ri, rok := types.Underlying(rt).(*types.IntType)
	if !lok || !rok {
		a.addDiagf(diag.CodeTypeMismatch, ast.SpanOf(node),
			"'%s' needs integer operands, found %s and %s", node.Op, lt, rt)
		return types.Unknown
	}

	if v, ok := literalValue(node.Right); ok && li.Fits(v) {
		adoptLiteralType(node.Right, li)
		ri = li
	} else if v, ok := literalValue(node.Left); ok && ri.Fits(v) {
		adoptLiteralType(node.Left, ri)
		li = ri
	}

	p := types.Promote(li, ri)
	if p == nil {
		a.addDiagf(diag.CodeTypeMismatch, ast.SpanOf(node),
			"cannot mix %s and %s without a cast", lt, rt)
		return types.Unknown
	}
	return p
}

// checkComparable validates the operands of == and !=.
func (a *Analyzer) checkComparable(node *ast.BinaryExpr, lt, rt types.Type) {
	lNull := isNullLiteral(node.Left)
	rNull := isNullLiteral(node.Right)

	switch {
	case lNull && rNull:
		// null == null is degenerate but well typed
	case rNull:
		if !types.IsNullable(lt) && !types.IsUnknown(lt) {
			a.addDiagf(diag.CodeTypeMismatch, ast.SpanOf(node),
				"cannot compare %s to null", lt)
		}
	case lNull:
		if !types.IsNullable(rt) && !types.IsUnknown(rt) {
			a.addDiagf(diag.CodeTypeMismatch, ast.SpanOf(node),
				"cannot compare null to %s", rt)
		}
	case types.IsUnknown(lt) || types.IsUnknown(rt):
		// one side already failed; stay quiet
	case types.IsInteger(lt) && types.IsInteger(rt):
		a.numericOperands(node, lt, rt)
	default:
		lu, ru := types.Underlying(lt), types.Underlying(rt)
		if !lu.Equal(ru) {
			a.addDiagf(diag.CodeTypeMismatch, ast.SpanOf(node),
				"cannot compare %s to %s", lt, rt)
		}
	}
}

func (a *Analyzer) inferIndex(node *ast.IndexExpr) types.Type {
	targetTy := a.inferExpr(node.Target)
	indexTy := a.inferExpr(node.Index)

	if !types.IsInteger(indexTy) && !types.IsUnknown(indexTy) {
		a.addDiagf(diag.CodeTypeMismatch, ast.SpanOf(node.Index),
			"index must be an integer, found %s", indexTy)
	}

	if arr, ok := types.Underlying(targetTy).(*types.ArrayType); ok {
		node.Ty = arr.Elem
	} else if types.IsUnknown(targetTy) {
		node.Ty = types.Unknown
	} else {
		a.addDiagf(diag.CodeTypeMismatch, ast.SpanOf(node),
			"type %s does not support indexing", targetTy)
		node.Ty = types.Unknown
	}
	return node.Ty
}

func (a *Analyzer) inferLen(node *ast.LenExpr) types.Type {
	targetTy := a.inferExpr(node.Target)
	under := types.Underlying(targetTy)

	if !types.IsArray(under) && !under.Equal(types.String) && !types.IsUnknown(targetTy) {
		a.addDiagf(diag.CodeTypeMismatch, ast.SpanOf(node),
			"len needs an array or string, found %s", targetTy)
	}
	node.Ty = types.U64
	return node.Ty
}

func (a *Analyzer) inferCall(node *ast.CallExpr) types.Type {
	path := node.Callee.Name()

	if sig, ok := a.registry.Builtin(path); ok {
		a.checkBuiltinArgs(sig, node)
		if sig.Return != nil {
			node.Ty = sig.Return
		} else {
			node.Ty = types.Unknown
		}
		return node.Ty
	}

	if len(node.Callee.Parts) == 1 {
		name := node.Callee.Parts[0].Value
		fn, ok := a.registry.Local(name)
		if !ok {
			a.addDiagf(diag.CodeUndefinedFunction, ast.SpanOf(node),
				"undefined function '%s'", name)
			node.Ty = types.Unknown
			return node.Ty
		}
		a.checkLocalArgs(fn, node)
		if fn.Return != nil {
			node.Ty = fn.Return.Resolved
		} else {
			node.Ty = types.Unknown
		}
		return node.Ty
	}

	// A miss inside a built-in module is a typo. A call into any other
	// module is an unknown callee, which the analysis policy handles.
	if a.registry.HasBuiltinModule(node.Callee.Parts[0].Value) {
		a.addDiagf(diag.CodeUndefinedFunction, ast.SpanOf(node),
			"undefined function '%s'", path)
	} else {
		for _, arg := range node.Args {
			a.inferExpr(arg)
		}
	}
	node.Ty = types.Unknown
	return node.Ty
}

func (a *Analyzer) checkBuiltinArgs(sig *effects.FuncSig, node *ast.CallExpr) {
	if len(node.Args) != len(sig.Params) {
		a.addDiagf(diag.CodeInvalidArguments, ast.SpanOf(node),
			"'%s' expects %d argument(s), found %d", sig.Path, len(sig.Params), len(node.Args))
	}
	for i, arg := range node.Args {
		argTy := a.inferExpr(arg)
		if i < len(sig.Params) {
			a.checkAssignable(sig.Params[i].Type, arg, argTy, diag.CodeTypeMismatch)
		}
	}
}

func (a *Analyzer) checkLocalArgs(fn *ast.Function, node *ast.CallExpr) {
	if len(node.Args) != len(fn.Params) {
		a.addDiagf(diag.CodeInvalidArguments, ast.SpanOf(node),
			"'%s' expects %d argument(s), found %d", fn.Name.Value, len(fn.Params), len(node.Args))
	}
	for i, arg := range node.Args {
		argTy := a.inferExpr(arg)
		if i < len(fn.Params) {
			a.checkAssignable(fn.Params[i].Type.Resolved, arg, argTy, diag.CodeTypeMismatch)
		}
	}
}
