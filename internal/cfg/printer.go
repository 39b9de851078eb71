package cfg

import (
	"fmt"
	"strings"
)

// Printer renders a graph as readable text, mainly for debugging and
// the CLI's --dump-cfg flag.
type Printer struct {
	sb     strings.Builder
	indent int
}

func NewPrinter() *Printer {
	return &Printer{}
}

// Print renders the whole graph in block order.
func Print(g *Graph) string {
	p := NewPrinter()
	p.printGraph(g)
	return p.sb.String()
}

func (p *Printer) writeIndent() {
	for i := 0; i < p.indent; i++ {
		p.sb.WriteString("  ")
	}
}

func (p *Printer) writeLine(format string, args ...interface{}) {
	p.writeIndent()
	p.sb.WriteString(fmt.Sprintf(format, args...))
	p.sb.WriteString("\n")
}

func (p *Printer) printGraph(g *Graph) {
	p.writeLine("fn %s:", g.Function.Name.Value)
	p.indent++
	for _, block := range g.Blocks {
		p.printBlock(block)
	}
	p.indent--
}

func (p *Printer) printBlock(block *BasicBlock) {
	marks := ""
	if block.LoopHead {
		marks += " [loop]"
	}
	if block.Opaque {
		marks += " [opaque]"
	}
	if block.Unreachable {
		marks += " [unreachable]"
	}
	p.writeLine("%s:%s", block.Label, marks)

	p.indent++
	for _, stmt := range block.Stmts {
		p.writeLine("%s", stmt.String())
	}
	if block.Cond != nil {
		p.writeLine("branch %s", block.Cond.String())
	}
	for _, e := range block.Succs {
		p.writeLine("-> %s (%s)", e.To.Label, e.Kind)
	}
	p.indent--
}

// DOT renders the graph in Graphviz syntax. Unreachable blocks are drawn
// dashed, loop heads with a doubled border.
func DOT(g *Graph) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "digraph %q {\n", g.Function.Name.Value)
	sb.WriteString("  node [shape=box fontname=\"monospace\"];\n")

	for _, block := range g.Blocks {
		var label strings.Builder
		label.WriteString(block.Label)
		for _, stmt := range block.Stmts {
			label.WriteString("\\n")
			label.WriteString(escapeDOT(stmt.String()))
		}
		if block.Cond != nil {
			label.WriteString("\\nbranch ")
			label.WriteString(escapeDOT(block.Cond.String()))
		}

		attrs := fmt.Sprintf("label=\"%s\"", label.String())
		if block.Unreachable {
			attrs += " style=dashed"
		}
		if block.LoopHead {
			attrs += " peripheries=2"
		}
		fmt.Fprintf(&sb, "  b%d [%s];\n", block.ID, attrs)
	}

	for _, block := range g.Blocks {
		for _, e := range block.Succs {
			fmt.Fprintf(&sb, "  b%d -> b%d [label=\"%s\"];\n", e.From.ID, e.To.ID, e.Kind)
		}
	}

	sb.WriteString("}\n")
	return sb.String()
}

func escapeDOT(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "\"", "\\\"")
	return s
}
