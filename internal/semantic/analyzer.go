package semantic

import (
	"fmt"

	"oath/internal/ast"
	"oath/internal/diag"
	"oath/internal/effects"
	"oath/internal/types"
)

// Analyzer checks one module in two passes: declarations first, so
// functions can call each other regardless of order, then contracts and
// bodies. It annotates expressions and type nodes in place so later
// passes read resolved types straight off the AST.
type Analyzer struct {
	module   *ast.Module
	registry *effects.Registry
	diags    []diag.Diagnostic
	symbols  *SymbolTable

	current   *ast.Function
	inEnsures bool
}

func NewAnalyzer(registry *effects.Registry) *Analyzer {
	return &Analyzer{registry: registry}
}

func (a *Analyzer) Analyze(module *ast.Module) []diag.Diagnostic {
	a.module = module
	a.diags = nil
	a.symbols = NewSymbolTable(nil) // root scope holds function names

	// Pass 1: declare signatures before any body is checked
	for _, fn := range module.Functions {
		a.declareFunction(fn)
	}
	a.registry.AddModule(module)

	// Pass 2: contracts and bodies
	for _, fn := range module.Functions {
		a.checkFunction(fn)
	}
	return a.diags
}

func (a *Analyzer) declareFunction(fn *ast.Function) {
	if prev := a.symbols.LookupLocal(fn.Name.Value); prev != nil {
		a.addDiagf(diag.CodeDuplicateDeclaration, fn.Name.Span(),
			"function '%s' is already declared", fn.Name.Value)
	}

	seen := make(map[string]bool)
	for _, p := range fn.Params {
		if p.Name.Value == "result" {
			a.addDiagf(diag.CodeResultOutsidePost, p.Name.Span(),
				"'result' is reserved for ensures clauses")
		}
		if seen[p.Name.Value] {
			a.addDiagf(diag.CodeDuplicateDeclaration, p.Name.Span(),
				"duplicate parameter '%s'", p.Name.Value)
		}
		seen[p.Name.Value] = true
		a.resolveType(p.Type)
	}
	a.resolveType(fn.Return)

	a.checkEffectClause(fn.Reads, "reads")
	a.checkEffectClause(fn.Writes, "writes")

	var retTy types.Type
	if fn.Return != nil {
		retTy = fn.Return.Resolved
	}
	a.symbols.Define(fn.Name.Value, SymbolFunction, retTy, fn, fn.Pos)
}

func (a *Analyzer) checkEffectClause(resources []ast.Ident, clause string) {
	for _, r := range resources {
		if !effects.KnownResources[r.Value] {
			a.addDiagf(diag.CodeInvalidEffect, r.Span(),
				"unknown resource '%s' in %s clause", r.Value, clause)
		}
	}
}

func (a *Analyzer) checkFunction(fn *ast.Function) {
	a.current = fn
	saved := a.symbols

	// Parameters scope: contracts and the body both see it
	paramScope := NewSymbolTable(a.symbols)
	for _, p := range fn.Params {
		paramScope.Define(p.Name.Value, SymbolParameter, p.Type.Resolved, p, p.Name.Pos)
	}

	a.symbols = paramScope
	for _, req := range fn.Requires {
		a.checkContractExpr(req, "requires")
	}

	// ensures additionally binds 'result' to the return value
	ensScope := NewSymbolTable(paramScope)
	if fn.Return != nil {
		ensScope.Define("result", SymbolResult, fn.Return.Resolved, fn, fn.Pos)
	}
	a.symbols = ensScope
	a.inEnsures = true
	for _, ens := range fn.Ensures {
		a.checkContractExpr(ens, "ensures")
	}
	a.inEnsures = false

	a.symbols = paramScope
	if fn.Body != nil {
		a.checkBlock(fn.Body)
	}

	a.symbols = saved
	a.current = nil
}

func (a *Analyzer) checkContractExpr(expr ast.Expr, clause string) {
	ty := a.inferExpr(expr)
	if !types.IsBoolean(ty) && !types.IsUnknown(ty) {
		a.addDiagf(diag.CodeContractNotBoolean, ast.SpanOf(expr),
			"%s clause must be Bool, found %s", clause, ty)
	}
}

func (a *Analyzer) checkBlock(block *ast.FunctionBlock) {
	outer := a.symbols
	a.symbols = NewSymbolTable(outer)
	for _, stmt := range block.Stmts {
		a.checkStmt(stmt)
	}
	a.symbols = outer
}

func (a *Analyzer) checkStmt(stmt ast.Stmt) {
	switch node := stmt.(type) {
	case *ast.LetStmt:
		a.checkLet(node)
	case *ast.AssignStmt:
		a.checkAssign(node)
	case *ast.IfStmt:
		a.checkIf(node)
	case *ast.WhileStmt:
		a.checkCondition(node.Cond)
		a.checkBlock(node.Body)
	case *ast.DoWhileStmt:
		a.checkBlock(node.Body)
		a.checkCondition(node.Cond)
	case *ast.ForStmt:
		a.checkFor(node)
	case *ast.ReturnStmt:
		a.checkReturn(node)
	case *ast.ThrowStmt:
		if node.Value != nil {
			a.inferExpr(node.Value)
		}
	case *ast.ExprStmt:
		a.inferExpr(node.X)
	case *ast.UnknownStmt:
		// malformed region, nothing left to check
	}
}

func (a *Analyzer) checkLet(node *ast.LetStmt) {
	if node.Name.Value == "result" {
		a.addDiagf(diag.CodeResultOutsidePost, node.Name.Span(),
			"'result' is reserved for ensures clauses")
	}
	if prev := a.symbols.LookupLocal(node.Name.Value); prev != nil {
		a.addDiagf(diag.CodeDuplicateDeclaration, node.Name.Span(),
			"'%s' is already declared in this scope", node.Name.Value)
	}

	declared := a.resolveType(node.Type)
	varTy := declared
	if node.Value != nil {
		valTy := a.inferExpr(node.Value)
		if declared != nil {
			a.checkAssignable(declared, node.Value, valTy, diag.CodeTypeMismatch)
		} else {
			varTy = valTy
		}
	}
	if varTy == nil {
		varTy = types.Unknown
	}
	a.symbols.Define(node.Name.Value, SymbolVariable, varTy, node, node.Name.Pos)
}

func (a *Analyzer) checkAssign(node *ast.AssignStmt) {
	var targetTy types.Type = types.Unknown

	switch target := ast.Unparen(node.Target).(type) {
	case *ast.IdentExpr:
		sym := a.symbols.Lookup(target.Name)
		if sym == nil {
			a.addDiagf(diag.CodeUndefinedVariable, ast.SpanOf(target),
				"undefined variable '%s'", target.Name)
		} else if sym.Kind == SymbolFunction {
			a.addDiagf(diag.CodeInvalidAssignTarget, ast.SpanOf(target),
				"cannot assign to function '%s'", target.Name)
		} else {
			target.Ty = sym.Type
			targetTy = sym.Type
		}
	case *ast.IndexExpr:
		targetTy = a.inferExpr(target)
	default:
		// the parser already rejected other shapes; keep annotations flowing
		a.inferExpr(node.Target)
	}

	valTy := a.inferExpr(node.Value)
	a.checkAssignable(targetTy, node.Value, valTy, diag.CodeTypeMismatch)
}

func (a *Analyzer) checkIf(node *ast.IfStmt) {
	a.checkCondition(node.Cond)
	a.checkBlock(node.Then)
	switch els := node.Else.(type) {
	case *ast.IfStmt:
		a.checkIf(els)
	case *ast.FunctionBlock:
		a.checkBlock(els)
	}
}

func (a *Analyzer) checkCondition(cond ast.Expr) {
	ty := a.inferExpr(cond)
	if !types.IsBoolean(ty) && !types.IsUnknown(ty) {
		a.addDiagf(diag.CodeInvalidCondition, ast.SpanOf(cond),
			"condition must be Bool, found %s", ty)
	}
}

func (a *Analyzer) checkFor(node *ast.ForStmt) {
	fromTy := a.inferExpr(node.From)
	toTy := a.inferExpr(node.To)

	varTy := a.rangeVarType(node, fromTy, toTy)
	if varTy == nil {
		a.addDiagf(diag.CodeTypeMismatch, ast.SpanOf(node.From),
			"range bounds must be integers of the same signedness")
		varTy = types.Unknown
	}

	outer := a.symbols
	a.symbols = NewSymbolTable(outer)
	a.symbols.Define(node.Var.Value, SymbolVariable, varTy, node, node.Var.Pos)
	a.checkBlock(node.Body)
	a.symbols = outer
}

// rangeVarType picks the loop variable type from the bound types, letting
// a literal bound adopt the other bound's type the way binary operands do.
func (a *Analyzer) rangeVarType(node *ast.ForStmt, fromTy, toTy types.Type) types.Type {
	if types.IsUnknown(fromTy) || types.IsUnknown(toTy) {
		return types.Unknown
	}
	fi, fok := types.Underlying(fromTy).(*types.IntType)
	ti, tok := types.Underlying(toTy).(*types.IntType)
	if !fok || !tok {
		return nil
	}
	if v, ok := literalValue(node.From); ok && ti.Fits(v) {
		adoptLiteralType(node.From, ti)
		fi = ti
	} else if v, ok := literalValue(node.To); ok && fi.Fits(v) {
		adoptLiteralType(node.To, fi)
		ti = fi
	}
	return types.Promote(fi, ti)
}

func (a *Analyzer) checkReturn(node *ast.ReturnStmt) {
	fn := a.current
	switch {
	case fn.Return == nil && node.Value != nil:
		a.addDiagf(diag.CodeInvalidReturn, ast.SpanOf(node.Value),
			"function '%s' does not return a value", fn.Name.Value)
		a.inferExpr(node.Value)
	case fn.Return != nil && node.Value == nil:
		a.addDiagf(diag.CodeInvalidReturn, ast.SpanOf(node),
			"function '%s' must return %s", fn.Name.Value, fn.Return.Resolved)
	case fn.Return != nil && node.Value != nil:
		valTy := a.inferExpr(node.Value)
		a.checkAssignable(fn.Return.Resolved, node.Value, valTy, diag.CodeInvalidReturn)
	}
}

// resolveType turns a syntactic type reference into a types.Type and
// caches it on the node. Unresolvable names come back as Unknown so one
// bad annotation does not cascade.
func (a *Analyzer) resolveType(vt *ast.VariableType) types.Type {
	if vt == nil {
		return nil
	}
	var t types.Type

	switch vt.Name.Value {
	case "Array":
		if len(vt.Generics) != 1 {
			a.addDiagf(diag.CodeTypeMismatch, vt.Name.Span(),
				"Array takes exactly one type parameter")
			t = types.Unknown
		} else {
			t = &types.ArrayType{Elem: a.resolveType(vt.Generics[0])}
		}
	default:
		bt, ok := types.Lookup(vt.Name.Value)
		if !ok {
			a.addDiagf(diag.CodeTypeMismatch, vt.Name.Span(),
				"unknown type '%s'", vt.Name.Value)
			t = types.Unknown
		} else {
			if len(vt.Generics) > 0 {
				a.addDiagf(diag.CodeTypeMismatch, vt.Name.Span(),
					"type '%s' is not generic", vt.Name.Value)
			}
			t = bt
		}
	}

	if vt.Nullable {
		t = &types.NullableType{Inner: t}
	}
	vt.Resolved = t
	return t
}

func (a *Analyzer) addDiag(code string, span ast.Span, message string) {
	d := diag.New(code, message, span)
	if a.current != nil {
		d = d.WithFunction(a.current.Name.Value)
	}
	a.diags = append(a.diags, d.Build())
}

func (a *Analyzer) addDiagf(code string, span ast.Span, format string, args ...any) {
	a.addDiag(code, span, fmt.Sprintf(format, args...))
}
