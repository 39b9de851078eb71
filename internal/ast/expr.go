package ast

import (
	"oath/internal/types"
)

// LiteralKind distinguishes literal expressions.
type LiteralKind int

const (
	IntLit LiteralKind = iota
	BoolLit
	StringLit
	NullLit
)

// LiteralExpr is a literal constant.
// Example: "42", "true", "\"hello\"", "null"
type LiteralExpr struct {
	Pos    Position
	EndPos Position
	Kind   LiteralKind
	Value  string
	Ty     types.Type
}

// IdentExpr is a reference to a parameter or local variable. In a
// postcondition the reserved name "result" refers to the return value.
type IdentExpr struct {
	Pos    Position
	EndPos Position
	Name   string
	Ty     types.Type
}

// UnaryExpr is a prefix operation.
// Example: "-amount", "!done"
type UnaryExpr struct {
	Pos    Position
	EndPos Position
	Op     string
	Value  Expr
	Ty     types.Type
}

// BinaryExpr is an infix operation.
// Example: "a + b", "index < len(items)", "ok && ready"
type BinaryExpr struct {
	Pos    Position
	EndPos Position
	Op     string
	Left   Expr
	Right  Expr
	Ty     types.Type
}

// CalleePath is a possibly qualified callee name.
// Example: "helper", "db::exec"
type CalleePath struct {
	Pos    Position
	EndPos Position
	Parts  []Ident
}

// CallExpr is a function call.
// Example: "db::exec(query)", "clamp(v, lo, hi)"
type CallExpr struct {
	Pos    Position
	EndPos Position
	Callee *CalleePath
	Args   []Expr
	Ty     types.Type
}

// IndexExpr is an array element access.
// Example: "items[i]"
type IndexExpr struct {
	Pos    Position
	EndPos Position
	Target Expr
	Index  Expr
	Ty     types.Type
}

// LenExpr is the length of an array or string.
// Example: "len(items)"
type LenExpr struct {
	Pos    Position
	EndPos Position
	Target Expr
	Ty     types.Type
}

// ParenExpr preserves explicit grouping for spans and printing.
type ParenExpr struct {
	Pos    Position
	EndPos Position
	Value  Expr
	Ty     types.Type
}

func (*LiteralExpr) isExpr() {}
func (*IdentExpr) isExpr()   {}
func (*UnaryExpr) isExpr()   {}
func (*BinaryExpr) isExpr()  {}
func (*CallExpr) isExpr()    {}
func (*IndexExpr) isExpr()   {}
func (*LenExpr) isExpr()     {}
func (*ParenExpr) isExpr()   {}

func (e *LiteralExpr) NodePos() Position    { return e.Pos }
func (e *LiteralExpr) NodeEndPos() Position { return e.EndPos }

func (e *IdentExpr) NodePos() Position    { return e.Pos }
func (e *IdentExpr) NodeEndPos() Position { return e.EndPos }

func (e *UnaryExpr) NodePos() Position    { return e.Pos }
func (e *UnaryExpr) NodeEndPos() Position { return e.EndPos }

func (e *BinaryExpr) NodePos() Position    { return e.Pos }
func (e *BinaryExpr) NodeEndPos() Position { return e.EndPos }

func (c *CalleePath) NodePos() Position    { return c.Pos }
func (c *CalleePath) NodeEndPos() Position { return c.EndPos }

func (e *CallExpr) NodePos() Position    { return e.Pos }
func (e *CallExpr) NodeEndPos() Position { return e.EndPos }

func (e *IndexExpr) NodePos() Position    { return e.Pos }
func (e *IndexExpr) NodeEndPos() Position { return e.EndPos }

func (e *LenExpr) NodePos() Position    { return e.Pos }
func (e *LenExpr) NodeEndPos() Position { return e.EndPos }

func (e *ParenExpr) NodePos() Position    { return e.Pos }
func (e *ParenExpr) NodeEndPos() Position { return e.EndPos }

func typeOrUnknown(t types.Type) types.Type {
	if t == nil {
		return types.Unknown
	}
	return t
}

func (e *LiteralExpr) Type() types.Type { return typeOrUnknown(e.Ty) }
func (e *IdentExpr) Type() types.Type   { return typeOrUnknown(e.Ty) }
func (e *UnaryExpr) Type() types.Type   { return typeOrUnknown(e.Ty) }
func (e *BinaryExpr) Type() types.Type  { return typeOrUnknown(e.Ty) }
func (e *CallExpr) Type() types.Type    { return typeOrUnknown(e.Ty) }
func (e *IndexExpr) Type() types.Type   { return typeOrUnknown(e.Ty) }
func (e *LenExpr) Type() types.Type     { return typeOrUnknown(e.Ty) }
func (e *ParenExpr) Type() types.Type   { return typeOrUnknown(e.Ty) }

// Name returns the qualified callee path as written, e.g. "db::exec".
func (c *CalleePath) Name() string {
	out := ""
	for i, p := range c.Parts {
		if i > 0 {
			out += "::"
		}
		out += p.Value
	}
	return out
}

// Unparen strips grouping parentheses.
func Unparen(e Expr) Expr {
	for {
		p, ok := e.(*ParenExpr)
		if !ok {
			return e
		}
		e = p.Value
	}
}
