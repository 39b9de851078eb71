package ast

// LetStmt declares a local variable, optionally initialized.
// Example: "let total: U64 = 0;", "let found: Bool;"
type LetStmt struct {
	Pos    Position
	EndPos Position
	Name   Ident
	Type   *VariableType
	Value  Expr
}

// AssignStmt writes to a variable or array element.
// Example: "total = total + amount;", "items[i] = 0;"
type AssignStmt struct {
	Pos    Position
	EndPos Position
	Target Expr
	Value  Expr
}

// IfStmt branches on a boolean condition. Else is nil, a *FunctionBlock,
// or a chained *IfStmt.
type IfStmt struct {
	Pos    Position
	EndPos Position
	Cond   Expr
	Then   *FunctionBlock
	Else   Stmt
}

// WhileStmt is a pre-tested loop.
type WhileStmt struct {
	Pos    Position
	EndPos Position
	Cond   Expr
	Body   *FunctionBlock
}

// DoWhileStmt is a post-tested loop; the body runs at least once.
type DoWhileStmt struct {
	Pos    Position
	EndPos Position
	Body   *FunctionBlock
	Cond   Expr
}

// ForStmt iterates a counter over the half-open range [From, To).
// Example: "for i in 0..len(items) { ... }"
type ForStmt struct {
	Pos    Position
	EndPos Position
	Var    Ident
	From   Expr
	To     Expr
	Body   *FunctionBlock
}

// ReturnStmt exits the function, with a value when the function returns one.
type ReturnStmt struct {
	Pos    Position
	EndPos Position
	Value  Expr
}

// ThrowStmt aborts the function with an exceptional exit.
// Example: "throw;", "throw err_code;"
type ThrowStmt struct {
	Pos    Position
	EndPos Position
	Value  Expr
}

// ExprStmt evaluates an expression for its effects.
// Example: "db::exec(query);"
type ExprStmt struct {
	Pos    Position
	EndPos Position
	X      Expr
}

// UnknownStmt stands in for a statement form the engine does not model.
// Analyses widen it to "may read or write anything" and do not look inside.
type UnknownStmt struct {
	Pos    Position
	EndPos Position
	Reason string
}

func (*LetStmt) isStmt()       {}
func (*AssignStmt) isStmt()    {}
func (*IfStmt) isStmt()        {}
func (*WhileStmt) isStmt()     {}
func (*DoWhileStmt) isStmt()   {}
func (*ForStmt) isStmt()       {}
func (*ReturnStmt) isStmt()    {}
func (*ThrowStmt) isStmt()     {}
func (*ExprStmt) isStmt()      {}
func (*UnknownStmt) isStmt()   {}
func (*FunctionBlock) isStmt() {}

func (s *LetStmt) NodePos() Position    { return s.Pos }
func (s *LetStmt) NodeEndPos() Position { return s.EndPos }

func (s *AssignStmt) NodePos() Position    { return s.Pos }
func (s *AssignStmt) NodeEndPos() Position { return s.EndPos }

func (s *IfStmt) NodePos() Position    { return s.Pos }
func (s *IfStmt) NodeEndPos() Position { return s.EndPos }

func (s *WhileStmt) NodePos() Position    { return s.Pos }
func (s *WhileStmt) NodeEndPos() Position { return s.EndPos }

func (s *DoWhileStmt) NodePos() Position    { return s.Pos }
func (s *DoWhileStmt) NodeEndPos() Position { return s.EndPos }

func (s *ForStmt) NodePos() Position    { return s.Pos }
func (s *ForStmt) NodeEndPos() Position { return s.EndPos }

func (s *ReturnStmt) NodePos() Position    { return s.Pos }
func (s *ReturnStmt) NodeEndPos() Position { return s.EndPos }

func (s *ThrowStmt) NodePos() Position    { return s.Pos }
func (s *ThrowStmt) NodeEndPos() Position { return s.EndPos }

func (s *ExprStmt) NodePos() Position    { return s.Pos }
func (s *ExprStmt) NodeEndPos() Position { return s.EndPos }

func (s *UnknownStmt) NodePos() Position    { return s.Pos }
func (s *UnknownStmt) NodeEndPos() Position { return s.EndPos }
