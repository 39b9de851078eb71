package vcache

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"sort"

	"oath/internal/ast"
)

// formatVersion salts every fingerprint; bump it when the encoding or
// the record layout changes so stale entries can never match again.
const formatVersion = "oath-vc1"

// Fingerprinter computes content-addressed fingerprints for the
// functions of one module. A fingerprint covers the function's own
// canonical text, a configuration salt, and the canonical text of every
// local function reachable through calls, so editing a callee
// re-verifies its callers.
type Fingerprinter struct {
	salt string
	fns  map[string]*ast.Function
	memo map[string]string
}

func NewFingerprinter(module *ast.Module, salt string) *Fingerprinter {
	f := &Fingerprinter{
		salt: salt,
		fns:  make(map[string]*ast.Function),
		memo: make(map[string]string),
	}
	if module != nil {
		for _, fn := range module.Functions {
			f.fns[fn.Name.Value] = fn
		}
	}
	return f
}

// Fingerprint returns the hex digest addressing fn's verification run.
func (f *Fingerprinter) Fingerprint(fn *ast.Function) string {
	if fp, ok := f.memo[fn.Name.Value]; ok {
		return fp
	}

	h := sha256.New()
	io.WriteString(h, formatVersion)
	io.WriteString(h, "\x00")
	io.WriteString(h, f.salt)
	io.WriteString(h, "\x00")
	io.WriteString(h, fn.String())
	for _, callee := range f.reachable(fn) {
		io.WriteString(h, "\x00")
		io.WriteString(h, callee.String())
	}

	fp := hex.EncodeToString(h.Sum(nil))
	f.memo[fn.Name.Value] = fp
	return fp
}

// reachable returns every distinct local function transitively called
// from fn, sorted by name. fn itself is excluded, which keeps mutual
// recursion from looping.
func (f *Fingerprinter) reachable(fn *ast.Function) []*ast.Function {
	seen := map[string]bool{fn.Name.Value: true}
	queue := callees(fn)
	var out []*ast.Function
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		if seen[name] {
			continue
		}
		seen[name] = true
		callee, ok := f.fns[name]
		if !ok {
			continue
		}
		out = append(out, callee)
		queue = append(queue, callees(callee)...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name.Value < out[j].Name.Value })
	return out
}

// callees lists the unqualified call targets appearing anywhere in fn,
// contracts included. Qualified paths like db::exec are builtins; their
// behavior is part of the tool, not the source, so they never
// contribute to a fingerprint.
func callees(fn *ast.Function) []string {
	set := make(map[string]bool)
	for _, r := range fn.Requires {
		collectCallees(r, set)
	}
	for _, e := range fn.Ensures {
		collectCallees(e, set)
	}
	if fn.Body != nil {
		collectCalleeStmts(fn.Body.Stmts, set)
	}
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func collectCallees(e ast.Expr, out map[string]bool) {
	switch n := e.(type) {
	case *ast.UnaryExpr:
		collectCallees(n.Value, out)
	case *ast.BinaryExpr:
		collectCallees(n.Left, out)
		collectCallees(n.Right, out)
	case *ast.CallExpr:
		if len(n.Callee.Parts) == 1 {
			out[n.Callee.Parts[0].Value] = true
		}
		for _, a := range n.Args {
			collectCallees(a, out)
		}
	case *ast.IndexExpr:
		collectCallees(n.Target, out)
		collectCallees(n.Index, out)
	case *ast.LenExpr:
		collectCallees(n.Target, out)
	case *ast.ParenExpr:
		collectCallees(n.Value, out)
	}
}

func collectCalleeStmts(stmts []ast.Stmt, out map[string]bool) {
	for _, stmt := range stmts {
		switch n := stmt.(type) {
		case *ast.LetStmt:
			if n.Value != nil {
				collectCallees(n.Value, out)
			}
		case *ast.AssignStmt:
			collectCallees(n.Target, out)
			collectCallees(n.Value, out)
		case *ast.IfStmt:
			collectCallees(n.Cond, out)
			collectCalleeStmts(n.Then.Stmts, out)
			if n.Else != nil {
				collectCalleeStmts([]ast.Stmt{n.Else}, out)
			}
		case *ast.FunctionBlock:
			collectCalleeStmts(n.Stmts, out)
		case *ast.WhileStmt:
			collectCallees(n.Cond, out)
			collectCalleeStmts(n.Body.Stmts, out)
		case *ast.DoWhileStmt:
			collectCallees(n.Cond, out)
			collectCalleeStmts(n.Body.Stmts, out)
		case *ast.ForStmt:
			collectCallees(n.From, out)
			collectCallees(n.To, out)
			collectCalleeStmts(n.Body.Stmts, out)
		case *ast.ReturnStmt:
			if n.Value != nil {
				collectCallees(n.Value, out)
			}
		case *ast.ThrowStmt:
			if n.Value != nil {
				collectCallees(n.Value, out)
			}
		case *ast.ExprStmt:
			collectCallees(n.X, out)
		}
	}
}
