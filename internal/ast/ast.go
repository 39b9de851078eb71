package ast

import (
	"oath/internal/types"
)

// Position describes a location in an Oath source file.
type Position struct {
	Filename string
	Offset   int
	Line     int
	Column   int
}

// Span is a contiguous source region, used by diagnostics and
// for ordering reported issues.
type Span struct {
	Start Position
	End   Position
}

// SpanOf returns the source span covered by a node.
func SpanOf(n Node) Span {
	return Span{Start: n.NodePos(), End: n.NodeEndPos()}
}

// Before reports whether s starts before o in source order.
// Files compare by name so a multi-file sort stays deterministic.
func (s Span) Before(o Span) bool {
	if s.Start.Filename != o.Start.Filename {
		return s.Start.Filename < o.Start.Filename
	}
	if s.Start.Line != o.Start.Line {
		return s.Start.Line < o.Start.Line
	}
	if s.Start.Column != o.Start.Column {
		return s.Start.Column < o.Start.Column
	}
	return s.End.Offset < o.End.Offset
}

// Node is implemented by every AST node.
type Node interface {
	NodePos() Position
	NodeEndPos() Position
	String() string
}

// Expr is an expression node. Every expression carries the static type
// assigned by the checker; Type returns types.Unknown until then.
type Expr interface {
	Node
	isExpr()
	Type() types.Type
}

// Stmt is a statement node.
type Stmt interface {
	Node
	isStmt()
}

// Ident is a bare identifier with its source location.
type Ident struct {
	Pos    Position
	EndPos Position
	Value  string
}

func (i *Ident) NodePos() Position    { return i.Pos }
func (i *Ident) NodeEndPos() Position { return i.EndPos }
func (i *Ident) String() string       { return i.Value }
func (i *Ident) Span() Span           { return Span{Start: i.Pos, End: i.EndPos} }
