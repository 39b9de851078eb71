package ast

import (
	"oath/internal/types"
)

// Module is a parsed Oath module: a named collection of functions.
// Modules are immutable once the checker has run.
type Module struct {
	Pos       Position
	EndPos    Position
	Name      Ident
	Functions []*Function
}

// Function is a single function with its contracts and declared effects.
// Example:
//
//	#[external]
//	fn transfer(to: String, amount: U64) -> Bool
//	    requires(amount > 0)
//	    ensures(result == true)
//	    writes(Database)
//	{ ... }
type Function struct {
	Pos      Position
	EndPos   Position
	External bool
	Name     Ident
	Params   []*FunctionParam
	Return   *VariableType
	Requires []Expr
	Ensures  []Expr
	Reads    []Ident
	Writes   []Ident
	Body     *FunctionBlock
}

// FunctionParam is a named, typed parameter.
type FunctionParam struct {
	Pos    Position
	EndPos Position
	Name   Ident
	Type   *VariableType
}

// VariableType is a syntactic type reference.
// Example: "U64", "Array<I32>", "String?"
type VariableType struct {
	Pos      Position
	EndPos   Position
	Name     Ident
	Generics []*VariableType
	Nullable bool

	// Resolved is filled by the checker.
	Resolved types.Type
}

// FunctionBlock is a braced statement list.
type FunctionBlock struct {
	Pos    Position
	EndPos Position
	Stmts  []Stmt
}

func (m *Module) NodePos() Position    { return m.Pos }
func (m *Module) NodeEndPos() Position { return m.EndPos }

func (f *Function) NodePos() Position    { return f.Pos }
func (f *Function) NodeEndPos() Position { return f.EndPos }

func (fp *FunctionParam) NodePos() Position    { return fp.Pos }
func (fp *FunctionParam) NodeEndPos() Position { return fp.EndPos }

func (t *VariableType) NodePos() Position    { return t.Pos }
func (t *VariableType) NodeEndPos() Position { return t.EndPos }

func (b *FunctionBlock) NodePos() Position    { return b.Pos }
func (b *FunctionBlock) NodeEndPos() Position { return b.EndPos }

// ContractCount returns the number of declared contracts on the function,
// preconditions first.
func (f *Function) ContractCount() int {
	return len(f.Requires) + len(f.Ensures)
}

// ParamType returns the resolved type of the named parameter, or nil.
func (f *Function) ParamType(name string) types.Type {
	for _, p := range f.Params {
		if p.Name.Value == name && p.Type != nil {
			return p.Type.Resolved
		}
	}
	return nil
}

// ReturnType returns the resolved return type, or nil for a void function.
func (f *Function) ReturnType() types.Type {
	if f.Return == nil {
		return nil
	}
	return f.Return.Resolved
}

// ReadsEffect reports whether the function declares reads(name).
func (f *Function) ReadsEffect(name string) bool {
	for _, r := range f.Reads {
		if r.Value == name {
			return true
		}
	}
	return false
}

// WritesEffect reports whether the function declares writes(name).
func (f *Function) WritesEffect(name string) bool {
	for _, w := range f.Writes {
		if w.Value == name {
			return true
		}
	}
	return false
}
