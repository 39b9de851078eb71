package parser

import (
	"strconv"

	"github.com/alecthomas/participle/v2/lexer"

	"oath/internal/ast"
	"oath/internal/diag"
)

// converter lowers the grammar tree into the engine's AST, collecting
// diagnostics for the few shapes the grammar accepts but the AST rejects.
type converter struct {
	diags []diag.Diagnostic
}

func position(p lexer.Position) ast.Position {
	return ast.Position{
		Filename: p.Filename,
		Offset:   p.Offset,
		Line:     p.Line,
		Column:   p.Column,
	}
}

func identOf(p posIdent) ast.Ident {
	return ast.Ident{
		Pos:    position(p.Pos),
		EndPos: position(p.EndPos),
		Value:  p.Value,
	}
}

func (c *converter) errorAt(pos, end lexer.Position, msg string) {
	span := ast.Span{Start: position(pos), End: position(end)}
	c.diags = append(c.diags, diag.New(diag.CodeParseError, msg, span).Build())
}

func (c *converter) module(n *moduleNode) *ast.Module {
	m := &ast.Module{
		Pos:    position(n.Pos),
		EndPos: position(n.EndPos),
		Name:   identOf(n.Name),
	}
	for _, fn := range n.Functions {
		m.Functions = append(m.Functions, c.function(fn))
	}
	return m
}

func (c *converter) function(n *functionNode) *ast.Function {
	f := &ast.Function{
		Pos:    position(n.Pos),
		EndPos: position(n.EndPos),
		Name:   identOf(n.Name),
	}
	if n.Attribute != nil {
		if n.Attribute.Name == "external" {
			f.External = true
		} else {
			c.errorAt(n.Attribute.Pos, n.Attribute.EndPos,
				"unknown attribute '"+n.Attribute.Name+"'")
		}
	}
	for _, p := range n.Params {
		f.Params = append(f.Params, &ast.FunctionParam{
			Pos:    position(p.Pos),
			EndPos: position(p.EndPos),
			Name:   identOf(p.Name),
			Type:   c.typeRef(p.Type),
		})
	}
	if n.Return != nil {
		f.Return = c.typeRef(n.Return)
	}
	for _, cl := range n.Clauses {
		switch {
		case cl.Requires != nil:
			f.Requires = append(f.Requires, c.expr(cl.Requires))
		case cl.Ensures != nil:
			f.Ensures = append(f.Ensures, c.expr(cl.Ensures))
		case cl.Reads != nil:
			for _, r := range cl.Reads {
				f.Reads = append(f.Reads, identOf(*r))
			}
		case cl.Writes != nil:
			for _, w := range cl.Writes {
				f.Writes = append(f.Writes, identOf(*w))
			}
		}
	}
	f.Body = c.block(n.Body)
	return f
}

func (c *converter) typeRef(n *typeRefNode) *ast.VariableType {
	if n == nil {
		return nil
	}
	t := &ast.VariableType{
		Pos:      position(n.Pos),
		EndPos:   position(n.EndPos),
		Name:     identOf(n.Name),
		Nullable: n.Nullable,
	}
	for _, g := range n.Generics {
		t.Generics = append(t.Generics, c.typeRef(g))
	}
	return t
}

func (c *converter) block(n *blockNode) *ast.FunctionBlock {
	if n == nil {
		return nil
	}
	b := &ast.FunctionBlock{
		Pos:    position(n.Pos),
		EndPos: position(n.EndPos),
	}
	for _, s := range n.Stmts {
		if stmt := c.stmt(s); stmt != nil {
			b.Stmts = append(b.Stmts, stmt)
		}
	}
	return b
}

func (c *converter) stmt(n *stmtNode) ast.Stmt {
	switch {
	case n.Let != nil:
		return c.letStmt(n.Let)
	case n.If != nil:
		return c.ifStmt(n.If)
	case n.While != nil:
		w := n.While
		return &ast.WhileStmt{
			Pos:    position(w.Pos),
			EndPos: position(w.EndPos),
			Cond:   c.expr(w.Cond),
			Body:   c.block(w.Body),
		}
	case n.DoWhile != nil:
		d := n.DoWhile
		return &ast.DoWhileStmt{
			Pos:    position(d.Pos),
			EndPos: position(d.EndPos),
			Body:   c.block(d.Body),
			Cond:   c.expr(d.Cond),
		}
	case n.For != nil:
		f := n.For
		return &ast.ForStmt{
			Pos:    position(f.Pos),
			EndPos: position(f.EndPos),
			Var:    identOf(f.Var),
			From:   c.expr(f.From),
			To:     c.expr(f.To),
			Body:   c.block(f.Body),
		}
	case n.Return != nil:
		r := n.Return
		s := &ast.ReturnStmt{Pos: position(r.Pos), EndPos: position(r.EndPos)}
		if r.Value != nil {
			s.Value = c.expr(r.Value)
		}
		return s
	case n.Throw != nil:
		t := n.Throw
		s := &ast.ThrowStmt{Pos: position(t.Pos), EndPos: position(t.EndPos)}
		if t.Value != nil {
			s.Value = c.expr(t.Value)
		}
		return s
	case n.Simple != nil:
		return c.simpleStmt(n.Simple)
	}
	return nil
}

func (c *converter) letStmt(n *letNode) ast.Stmt {
	s := &ast.LetStmt{
		Pos:    position(n.Pos),
		EndPos: position(n.EndPos),
		Name:   identOf(n.Name),
	}
	if n.Type != nil {
		s.Type = c.typeRef(n.Type)
	}
	if n.Value != nil {
		s.Value = c.expr(n.Value)
	}
	if n.Type == nil && n.Value == nil {
		c.errorAt(n.Pos, n.EndPos, "let needs a type annotation or an initial value")
	}
	return s
}

func (c *converter) ifStmt(n *ifNode) ast.Stmt {
	s := &ast.IfStmt{
		Pos:    position(n.Pos),
		EndPos: position(n.EndPos),
		Cond:   c.expr(n.Cond),
		Then:   c.block(n.Then),
	}
	if n.Else != nil {
		if n.Else.If != nil {
			s.Else = c.ifStmt(n.Else.If)
		} else {
			s.Else = c.block(n.Else.Block)
		}
	}
	return s
}

func (c *converter) simpleStmt(n *simpleNode) ast.Stmt {
	target := c.expr(n.Target)
	if n.Value == nil {
		return &ast.ExprStmt{
			Pos:    position(n.Pos),
			EndPos: position(n.EndPos),
			X:      target,
		}
	}
	switch ast.Unparen(target).(type) {
	case *ast.IdentExpr, *ast.IndexExpr:
	default:
		c.errorAt(n.Pos, n.EndPos, "cannot assign to this expression")
	}
	return &ast.AssignStmt{
		Pos:    position(n.Pos),
		EndPos: position(n.EndPos),
		Target: target,
		Value:  c.expr(n.Value),
	}
}

// expr folds the precedence cascade into left-associative binary nodes.
func (c *converter) expr(n *exprNode) ast.Expr {
	if n == nil {
		return nil
	}
	left := c.andExpr(n.Left)
	for _, r := range n.Rest {
		left = c.binary(left, r.Op, c.andExpr(r.Right))
	}
	return left
}

func (c *converter) andExpr(n *andNode) ast.Expr {
	left := c.cmpExpr(n.Left)
	for _, r := range n.Rest {
		left = c.binary(left, r.Op, c.cmpExpr(r.Right))
	}
	return left
}

func (c *converter) cmpExpr(n *cmpNode) ast.Expr {
	left := c.addExpr(n.Left)
	for _, r := range n.Rest {
		left = c.binary(left, r.Op, c.addExpr(r.Right))
	}
	return left
}

func (c *converter) addExpr(n *addNode) ast.Expr {
	left := c.mulExpr(n.Left)
	for _, r := range n.Rest {
		left = c.binary(left, r.Op, c.mulExpr(r.Right))
	}
	return left
}

func (c *converter) mulExpr(n *mulNode) ast.Expr {
	left := c.unaryExpr(n.Left)
	for _, r := range n.Rest {
		left = c.binary(left, r.Op, c.unaryExpr(r.Right))
	}
	return left
}

func (c *converter) binary(left ast.Expr, op string, right ast.Expr) ast.Expr {
	return &ast.BinaryExpr{
		Pos:    left.NodePos(),
		EndPos: right.NodeEndPos(),
		Op:     op,
		Left:   left,
		Right:  right,
	}
}

func (c *converter) unaryExpr(n *unaryNode) ast.Expr {
	inner := c.postfixExpr(n.Postfix)
	if n.Op == "" {
		return inner
	}
	return &ast.UnaryExpr{
		Pos:    position(n.Pos),
		EndPos: inner.NodeEndPos(),
		Op:     n.Op,
		Value:  inner,
	}
}

func (c *converter) postfixExpr(n *postfixNode) ast.Expr {
	e := c.primaryExpr(n.Primary)
	for _, idx := range n.Indexes {
		e = &ast.IndexExpr{
			Pos:    e.NodePos(),
			EndPos: position(n.EndPos),
			Target: e,
			Index:  c.expr(idx.Index),
		}
	}
	return e
}

func (c *converter) primaryExpr(n *primaryNode) ast.Expr {
	pos := position(n.Pos)
	end := position(n.EndPos)
	switch {
	case n.Int != nil:
		return &ast.LiteralExpr{Pos: pos, EndPos: end, Kind: ast.IntLit, Value: *n.Int}
	case n.Str != nil:
		value := *n.Str
		if unquoted, err := strconv.Unquote(value); err == nil {
			value = unquoted
		}
		return &ast.LiteralExpr{Pos: pos, EndPos: end, Kind: ast.StringLit, Value: value}
	case n.True:
		return &ast.LiteralExpr{Pos: pos, EndPos: end, Kind: ast.BoolLit, Value: "true"}
	case n.False:
		return &ast.LiteralExpr{Pos: pos, EndPos: end, Kind: ast.BoolLit, Value: "false"}
	case n.Null:
		return &ast.LiteralExpr{Pos: pos, EndPos: end, Kind: ast.NullLit, Value: "null"}
	case n.Path != nil:
		return c.pathExpr(n.Path)
	case n.Paren != nil:
		return &ast.ParenExpr{Pos: pos, EndPos: end, Value: c.expr(n.Paren)}
	}
	c.errorAt(n.Pos, n.EndPos, "malformed expression")
	return &ast.LiteralExpr{Pos: pos, EndPos: end, Kind: ast.IntLit, Value: "0"}
}

func (c *converter) pathExpr(n *pathNode) ast.Expr {
	pos := position(n.Pos)
	end := position(n.EndPos)

	parts := []ast.Ident{identOf(n.Head)}
	for _, t := range n.Tail {
		parts = append(parts, identOf(*t))
	}

	if n.Call == nil {
		if len(parts) > 1 {
			c.errorAt(n.Pos, n.EndPos, "qualified name must be called")
		}
		return &ast.IdentExpr{Pos: pos, EndPos: end, Name: n.Head.Value}
	}

	var args []ast.Expr
	for _, a := range n.Call.Args {
		args = append(args, c.expr(a))
	}

	// len(x) is an expression form, not a call.
	if len(parts) == 1 && parts[0].Value == "len" {
		if len(args) != 1 {
			c.errorAt(n.Pos, n.EndPos, "len takes exactly one argument")
			return &ast.LiteralExpr{Pos: pos, EndPos: end, Kind: ast.IntLit, Value: "0"}
		}
		return &ast.LenExpr{Pos: pos, EndPos: end, Target: args[0]}
	}

	return &ast.CallExpr{
		Pos:    pos,
		EndPos: end,
		Callee: &ast.CalleePath{
			Pos:    position(n.Head.Pos),
			EndPos: position(n.EndPos),
			Parts:  parts,
		},
		Args: args,
	}
}
