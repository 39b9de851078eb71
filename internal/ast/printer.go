package ast

import (
	"fmt"
	"strings"
)

// String renderings are canonical: the same tree always prints the same
// text, which the verification cache relies on when fingerprinting.

func (m *Module) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "module %s {\n", m.Name.Value)
	for _, f := range m.Functions {
		b.WriteString(f.String())
		b.WriteString("\n")
	}
	b.WriteString("}\n")
	return b.String()
}

func (f *Function) String() string {
	var b strings.Builder
	if f.External {
		b.WriteString("#[external]\n")
	}
	b.WriteString(f.Signature())
	for _, r := range f.Requires {
		fmt.Fprintf(&b, "\n    requires(%s)", r)
	}
	for _, e := range f.Ensures {
		fmt.Fprintf(&b, "\n    ensures(%s)", e)
	}
	if len(f.Reads) > 0 {
		fmt.Fprintf(&b, "\n    reads(%s)", identList(f.Reads))
	}
	if len(f.Writes) > 0 {
		fmt.Fprintf(&b, "\n    writes(%s)", identList(f.Writes))
	}
	if f.Body != nil {
		b.WriteString(" ")
		b.WriteString(f.Body.String())
	}
	return b.String()
}

// Signature renders the declaration head without contracts or body.
func (f *Function) Signature() string {
	var b strings.Builder
	fmt.Fprintf(&b, "fn %s(", f.Name.Value)
	for i, p := range f.Params {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s: %s", p.Name.Value, p.Type)
	}
	b.WriteString(")")
	if f.Return != nil {
		fmt.Fprintf(&b, " -> %s", f.Return)
	}
	return b.String()
}

func identList(ids []Ident) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = id.Value
	}
	return strings.Join(parts, ", ")
}

func (fp *FunctionParam) String() string {
	return fmt.Sprintf("%s: %s", fp.Name.Value, fp.Type)
}

func (t *VariableType) String() string {
	var b strings.Builder
	b.WriteString(t.Name.Value)
	if len(t.Generics) > 0 {
		b.WriteString("<")
		for i, g := range t.Generics {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(g.String())
		}
		b.WriteString(">")
	}
	if t.Nullable {
		b.WriteString("?")
	}
	return b.String()
}

func (b *FunctionBlock) String() string {
	var out strings.Builder
	out.WriteString("{\n")
	for _, s := range b.Stmts {
		out.WriteString("    ")
		out.WriteString(s.String())
		out.WriteString("\n")
	}
	out.WriteString("}")
	return out.String()
}

func (s *LetStmt) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "let %s", s.Name.Value)
	if s.Type != nil {
		fmt.Fprintf(&b, ": %s", s.Type)
	}
	if s.Value != nil {
		fmt.Fprintf(&b, " = %s", s.Value)
	}
	b.WriteString(";")
	return b.String()
}

func (s *AssignStmt) String() string {
	return fmt.Sprintf("%s = %s;", s.Target, s.Value)
}

func (s *IfStmt) String() string {
	out := fmt.Sprintf("if %s %s", s.Cond, s.Then)
	if s.Else != nil {
		out += fmt.Sprintf(" else %s", s.Else)
	}
	return out
}

func (s *WhileStmt) String() string {
	return fmt.Sprintf("while %s %s", s.Cond, s.Body)
}

func (s *DoWhileStmt) String() string {
	return fmt.Sprintf("do %s while %s;", s.Body, s.Cond)
}

func (s *ForStmt) String() string {
	return fmt.Sprintf("for %s in %s..%s %s", s.Var.Value, s.From, s.To, s.Body)
}

func (s *ReturnStmt) String() string {
	if s.Value == nil {
		return "return;"
	}
	return fmt.Sprintf("return %s;", s.Value)
}

func (s *ThrowStmt) String() string {
	if s.Value == nil {
		return "throw;"
	}
	return fmt.Sprintf("throw %s;", s.Value)
}

func (s *ExprStmt) String() string {
	return s.X.String() + ";"
}

func (s *UnknownStmt) String() string {
	return fmt.Sprintf("/* unknown: %s */;", s.Reason)
}

func (e *LiteralExpr) String() string {
	if e.Kind == StringLit {
		return fmt.Sprintf("%q", e.Value)
	}
	return e.Value
}

func (e *IdentExpr) String() string { return e.Name }

func (e *UnaryExpr) String() string {
	return fmt.Sprintf("%s%s", e.Op, e.Value)
}

func (e *BinaryExpr) String() string {
	return fmt.Sprintf("(%s %s %s)", e.Left, e.Op, e.Right)
}

func (c *CalleePath) String() string { return c.Name() }

func (e *CallExpr) String() string {
	args := make([]string, len(e.Args))
	for i, a := range e.Args {
		args[i] = a.String()
	}
	return fmt.Sprintf("%s(%s)", e.Callee.Name(), strings.Join(args, ", "))
}

func (e *IndexExpr) String() string {
	return fmt.Sprintf("%s[%s]", e.Target, e.Index)
}

func (e *LenExpr) String() string {
	return fmt.Sprintf("len(%s)", e.Target)
}

func (e *ParenExpr) String() string {
	return fmt.Sprintf("(%s)", e.Value)
}
