package cfg

import (
	"oath/internal/ast"
)

// EdgeKind labels how control moves between two blocks.
type EdgeKind int

const (
	Fallthrough EdgeKind = iota
	TrueBranch
	FalseBranch
	LoopBack
	Return
	Throw
)

func (k EdgeKind) String() string {
	switch k {
	case Fallthrough:
		return "fallthrough"
	case TrueBranch:
		return "true"
	case FalseBranch:
		return "false"
	case LoopBack:
		return "loopback"
	case Return:
		return "return"
	case Throw:
		return "throw"
	}
	return "?"
}

type Edge struct {
	From *BasicBlock
	To   *BasicBlock
	Kind EdgeKind
}

// BasicBlock is a straight-line run of statements. A block that ends in
// a conditional branch carries the condition; its successors are then
// exactly one true edge and one false edge (or a loop back edge).
type BasicBlock struct {
	ID    int
	Label string
	Stmts []ast.Stmt

	// Cond is set when the block ends by branching on a condition.
	Cond ast.Expr

	Succs []*Edge
	Preds []*Edge

	// LoopHead marks the condition block of a while/do-while/for loop.
	LoopHead bool

	// ForRange points at the source loop when this head came from a
	// for-in-range statement, whose trip count is often knowable.
	ForRange *ast.ForStmt

	// Opaque marks a block holding a malformed source region. Analyses
	// must treat its effects as unknown rather than reason through it.
	Opaque bool

	// Unreachable is set after construction for blocks no path from the
	// entry reaches.
	Unreachable bool
}

// Span covers the block's statements, or its condition for blocks that
// only branch.
func (b *BasicBlock) Span() ast.Span {
	if len(b.Stmts) > 0 {
		first := ast.SpanOf(b.Stmts[0])
		last := ast.SpanOf(b.Stmts[len(b.Stmts)-1])
		return ast.Span{Start: first.Start, End: last.End}
	}
	if b.Cond != nil {
		return ast.SpanOf(b.Cond)
	}
	return ast.Span{}
}

// Empty reports whether the block holds no statements and no condition.
func (b *BasicBlock) Empty() bool {
	return len(b.Stmts) == 0 && b.Cond == nil
}

func (b *BasicBlock) succOfKind(kind EdgeKind) *BasicBlock {
	for _, e := range b.Succs {
		if e.Kind == kind {
			return e.To
		}
	}
	return nil
}

// TrueSucc returns the target of the block's true edge, if any. The back
// edge of a conditional latch counts: control re-enters the loop exactly
// when the condition held.
func (b *BasicBlock) TrueSucc() *BasicBlock {
	if t := b.succOfKind(TrueBranch); t != nil {
		return t
	}
	if b.Cond != nil {
		return b.succOfKind(LoopBack)
	}
	return nil
}

// FalseSucc returns the target of the block's false edge, if any.
func (b *BasicBlock) FalseSucc() *BasicBlock {
	return b.succOfKind(FalseBranch)
}

// Graph is the control-flow graph of one function. Entry holds the
// parameter frame; all return and throw edges lead to Exit.
type Graph struct {
	Function *ast.Function
	Entry    *BasicBlock
	Exit     *BasicBlock
	Blocks   []*BasicBlock
}

// HasOpaque reports whether any block widened over malformed source.
func (g *Graph) HasOpaque() bool {
	for _, b := range g.Blocks {
		if b.Opaque {
			return true
		}
	}
	return false
}

// UnreachableBlocks returns the blocks no path from entry reaches, in
// construction order.
func (g *Graph) UnreachableBlocks() []*BasicBlock {
	var out []*BasicBlock
	for _, b := range g.Blocks {
		if b.Unreachable {
			out = append(out, b)
		}
	}
	return out
}

// LoopHeads returns the loop condition blocks in construction order.
func (g *Graph) LoopHeads() []*BasicBlock {
	var out []*BasicBlock
	for _, b := range g.Blocks {
		if b.LoopHead {
			out = append(out, b)
		}
	}
	return out
}
