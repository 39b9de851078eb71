package dataflow

import (
	"oath/internal/ast"
	"oath/internal/cfg"
	"oath/internal/diag"
)

// checkUnreachable reports each unreachable block that carries
// statements. Condition-only blocks (a dead loop head, say) are folded
// into the report for their body: one finding per stretch of dead
// statements, placed on the first statement.
func checkUnreachable(g *cfg.Graph) []diag.Diagnostic {
	var diags []diag.Diagnostic
	for _, blk := range g.UnreachableBlocks() {
		if len(blk.Stmts) == 0 {
			continue
		}
		diags = append(diags, diag.New(
			diag.CodeUnreachableCode,
			"this code can never execute",
			ast.SpanOf(blk.Stmts[0]),
		).
			WithFunction(g.Function.Name.Value).
			WithHelp("remove it or restructure the control flow above").
			Build())
	}
	return diags
}
