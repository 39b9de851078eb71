package solver

import (
	"fmt"
	"sort"
	"strings"

	"oath/internal/contract"
)

// renderTerm prints a term as an SMT-LIB 2 s-expression. Term Div and
// Mod match SMT div and mod exactly, so no adjustment happens here.
func renderTerm(t contract.Term) string {
	var sb strings.Builder
	writeTerm(&sb, t)
	return sb.String()
}

func writeTerm(sb *strings.Builder, t contract.Term) {
	switch n := t.(type) {
	case *contract.IntConst:
		if n.Val.Sign() < 0 {
			sb.WriteString("(- ")
			sb.WriteString(strings.TrimPrefix(n.Val.String(), "-"))
			sb.WriteString(")")
			return
		}
		sb.WriteString(n.Val.String())
	case *contract.BoolConst:
		if n.Val {
			sb.WriteString("true")
		} else {
			sb.WriteString("false")
		}
	case *contract.Var:
		sb.WriteString(n.Name)
	case *contract.Arith:
		writeApp(sb, arithSymbol(n.Op), n.Left, n.Right)
	case *contract.Neg:
		writeApp(sb, "-", n.X)
	case *contract.Compare:
		if n.Op == contract.OpNe {
			writeApp(sb, "distinct", n.Left, n.Right)
			return
		}
		writeApp(sb, compareSymbol(n.Op), n.Left, n.Right)
	case *contract.Not:
		writeApp(sb, "not", n.X)
	case *contract.And:
		writeApp(sb, "and", n.Conj...)
	case *contract.Or:
		writeApp(sb, "or", n.Disj...)
	case *contract.Implies:
		writeApp(sb, "=>", n.Ante, n.Cons)
	case *contract.Ite:
		writeApp(sb, "ite", n.Cond, n.Then, n.Else)
	case *contract.Select:
		writeApp(sb, "select", n.Array, n.Index)
	case *contract.Store:
		writeApp(sb, "store", n.Array, n.Index, n.Value)
	default:
		// Unreached for terms built by the encoder.
		sb.WriteString("unknown")
	}
}

func writeApp(sb *strings.Builder, sym string, args ...contract.Term) {
	sb.WriteString("(")
	sb.WriteString(sym)
	for _, a := range args {
		sb.WriteString(" ")
		writeTerm(sb, a)
	}
	sb.WriteString(")")
}

func arithSymbol(op contract.ArithOp) string {
	switch op {
	case contract.OpAdd:
		return "+"
	case contract.OpSub:
		return "-"
	case contract.OpMul:
		return "*"
	case contract.OpDiv:
		return "div"
	}
	return "mod"
}

func compareSymbol(op contract.CompareOp) string {
	switch op {
	case contract.OpEq:
		return "="
	case contract.OpLt:
		return "<"
	case contract.OpLe:
		return "<="
	case contract.OpGt:
		return ">"
	}
	return ">="
}

// script assembles one complete solver input: options, declarations,
// axioms, the negated goal, and the final commands.
type script struct {
	timeoutMs uint
	decls     map[string]contract.Sort
	asserts   []contract.Term
}

func newScript(timeoutMs uint) *script {
	return &script{
		timeoutMs: timeoutMs,
		decls:     make(map[string]contract.Sort),
	}
}

func (s *script) declare(vars map[string]contract.Sort) {
	for name, sort := range vars {
		s.decls[name] = sort
	}
}

func (s *script) assert(t contract.Term) {
	s.declare(contract.FreeVars(t))
	s.asserts = append(s.asserts, t)
}

// render produces the SMT-LIB text checking whether the negation of
// goal is satisfiable under the asserted axioms.
func (s *script) render(goal contract.Term) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "(set-option :timeout %d)\n", s.timeoutMs)
	sb.WriteString("(set-option :produce-models true)\n")

	decls := make(map[string]contract.Sort, len(s.decls))
	for name, sort := range s.decls {
		decls[name] = sort
	}
	for name, sort := range contract.FreeVars(goal) {
		decls[name] = sort
	}
	names := make([]string, 0, len(decls))
	for name := range decls {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(&sb, "(declare-const %s %s)\n", name, decls[name].String())
	}

	for _, a := range s.asserts {
		fmt.Fprintf(&sb, "(assert %s)\n", renderTerm(a))
	}
	fmt.Fprintf(&sb, "(assert (not %s))\n", renderTerm(goal))
	sb.WriteString("(check-sat)\n(get-model)\n")
	return sb.String()
}
