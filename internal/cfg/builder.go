package cfg

import (
	"fmt"

	"oath/internal/ast"
)

// Builder lowers one function body into basic blocks. current is nil
// while control cannot continue (after return or throw); statements
// found in that state open a fresh block that ends up unreachable.
type Builder struct {
	graph        *Graph
	blockCounter int
	current      *BasicBlock
}

// Build constructs the control-flow graph for a function.
func Build(fn *ast.Function) *Graph {
	b := &Builder{graph: &Graph{Function: fn}}

	entry := b.createBlock("entry")
	exit := b.createBlock("exit")
	b.graph.Entry = entry
	b.graph.Exit = exit

	b.current = entry
	if fn.Body != nil {
		b.buildStmts(fn.Body.Stmts)
	}
	if b.current != nil {
		// fell off the end: implicit void return
		b.connect(b.current, exit, Fallthrough)
	}

	b.markUnreachable()
	return b.graph
}

func (b *Builder) createBlock(label string) *BasicBlock {
	block := &BasicBlock{
		ID:    b.blockCounter,
		Label: fmt.Sprintf("%s_%d", label, b.blockCounter),
	}
	b.blockCounter++
	b.graph.Blocks = append(b.graph.Blocks, block)
	return block
}

func (b *Builder) connect(from, to *BasicBlock, kind EdgeKind) {
	e := &Edge{From: from, To: to, Kind: kind}
	from.Succs = append(from.Succs, e)
	to.Preds = append(to.Preds, e)
}

// ensureCurrent opens a detached block for statements that follow a
// return or throw, so they survive for dead-code reporting.
func (b *Builder) ensureCurrent() {
	if b.current == nil {
		b.current = b.createBlock("dead")
	}
}

func (b *Builder) buildStmts(stmts []ast.Stmt) {
	for _, stmt := range stmts {
		b.buildStmt(stmt)
	}
}

func (b *Builder) buildStmt(stmt ast.Stmt) {
	switch node := stmt.(type) {
	case *ast.LetStmt, *ast.AssignStmt, *ast.ExprStmt:
		b.ensureCurrent()
		b.current.Stmts = append(b.current.Stmts, stmt)
	case *ast.UnknownStmt:
		b.ensureCurrent()
		b.current.Stmts = append(b.current.Stmts, stmt)
		b.current.Opaque = true
	case *ast.IfStmt:
		b.buildIf(node)
	case *ast.WhileStmt:
		b.buildWhile(node)
	case *ast.DoWhileStmt:
		b.buildDoWhile(node)
	case *ast.ForStmt:
		b.buildFor(node)
	case *ast.ReturnStmt:
		b.ensureCurrent()
		b.current.Stmts = append(b.current.Stmts, stmt)
		b.connect(b.current, b.graph.Exit, Return)
		b.current = nil
	case *ast.ThrowStmt:
		b.ensureCurrent()
		b.current.Stmts = append(b.current.Stmts, stmt)
		b.connect(b.current, b.graph.Exit, Throw)
		b.current = nil
	}
}

func (b *Builder) buildIf(node *ast.IfStmt) {
	b.ensureCurrent()
	cond := b.current
	cond.Cond = node.Cond

	join := b.createBlock("if_end")

	then := b.createBlock("if_then")
	b.connect(cond, then, TrueBranch)
	b.current = then
	b.buildStmts(node.Then.Stmts)
	if b.current != nil {
		b.connect(b.current, join, Fallthrough)
	}

	switch els := node.Else.(type) {
	case *ast.IfStmt:
		elseBlock := b.createBlock("if_else")
		b.connect(cond, elseBlock, FalseBranch)
		b.current = elseBlock
		b.buildStmt(els)
		if b.current != nil {
			b.connect(b.current, join, Fallthrough)
		}
	case *ast.FunctionBlock:
		elseBlock := b.createBlock("if_else")
		b.connect(cond, elseBlock, FalseBranch)
		b.current = elseBlock
		b.buildStmts(els.Stmts)
		if b.current != nil {
			b.connect(b.current, join, Fallthrough)
		}
	default:
		b.connect(cond, join, FalseBranch)
	}

	b.current = join
}

func (b *Builder) buildWhile(node *ast.WhileStmt) {
	b.ensureCurrent()

	head := b.createBlock("while_head")
	head.Cond = node.Cond
	head.LoopHead = true
	b.connect(b.current, head, Fallthrough)

	body := b.createBlock("while_body")
	after := b.createBlock("while_end")
	b.connect(head, body, TrueBranch)
	b.connect(head, after, FalseBranch)

	b.current = body
	b.buildStmts(node.Body.Stmts)
	if b.current != nil {
		b.connect(b.current, head, LoopBack)
	}

	b.current = after
}

func (b *Builder) buildDoWhile(node *ast.DoWhileStmt) {
	b.ensureCurrent()

	body := b.createBlock("do_body")
	b.connect(b.current, body, Fallthrough)

	b.current = body
	b.buildStmts(node.Body.Stmts)

	after := b.createBlock("do_end")
	if b.current != nil {
		// The latch branches: back into the body while the condition
		// holds, out when it fails.
		latch := b.current
		latch.Cond = node.Cond
		latch.LoopHead = true
		b.connect(latch, body, LoopBack)
		b.connect(latch, after, FalseBranch)
	}

	b.current = after
}

// buildFor desugars `for i in lo..hi` into an initialized counter, a
// bounds check, and an increment, so every later pass sees plain
// assignments instead of a special loop form.
func (b *Builder) buildFor(node *ast.ForStmt) {
	b.ensureCurrent()

	loopVar := func() *ast.IdentExpr {
		return &ast.IdentExpr{
			Pos:    node.Var.Pos,
			EndPos: node.Var.EndPos,
			Name:   node.Var.Value,
		}
	}

	init := &ast.LetStmt{
		Pos:    node.Var.Pos,
		EndPos: node.Var.EndPos,
		Name:   node.Var,
		Value:  node.From,
	}
	b.current.Stmts = append(b.current.Stmts, init)

	head := b.createBlock("for_head")
	head.Cond = &ast.BinaryExpr{
		Pos:    node.Var.Pos,
		EndPos: node.To.NodeEndPos(),
		Op:     "<",
		Left:   loopVar(),
		Right:  node.To,
	}
	head.LoopHead = true
	head.ForRange = node
	b.connect(b.current, head, Fallthrough)

	body := b.createBlock("for_body")
	after := b.createBlock("for_end")
	b.connect(head, body, TrueBranch)
	b.connect(head, after, FalseBranch)

	b.current = body
	b.buildStmts(node.Body.Stmts)
	if b.current != nil {
		increment := &ast.AssignStmt{
			Pos:    node.Var.Pos,
			EndPos: node.Var.EndPos,
			Target: loopVar(),
			Value: &ast.BinaryExpr{
				Pos:    node.Var.Pos,
				EndPos: node.Var.EndPos,
				Op:     "+",
				Left:   loopVar(),
				Right: &ast.LiteralExpr{
					Pos:    node.Var.Pos,
					EndPos: node.Var.EndPos,
					Kind:   ast.IntLit,
					Value:  "1",
				},
			},
		}
		b.current.Stmts = append(b.current.Stmts, increment)
		b.connect(b.current, head, LoopBack)
	}

	b.current = after
}

// markUnreachable flags every block no path from the entry visits.
func (b *Builder) markUnreachable() {
	reached := make(map[*BasicBlock]bool)
	worklist := []*BasicBlock{b.graph.Entry}
	for len(worklist) > 0 {
		blk := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]
		if reached[blk] {
			continue
		}
		reached[blk] = true
		for _, e := range blk.Succs {
			if !reached[e.To] {
				worklist = append(worklist, e.To)
			}
		}
	}
	for _, blk := range b.graph.Blocks {
		blk.Unreachable = !reached[blk]
	}
}
