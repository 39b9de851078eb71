package cfg

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oath/internal/ast"
	"oath/internal/parser"
)

func buildFunc(t *testing.T, source string) *Graph {
	t.Helper()
	module, diags := parser.ParseModule("test.oath", source)
	require.Empty(t, diags, "Source should parse cleanly")
	require.NotEmpty(t, module.Functions)
	return Build(module.Functions[0])
}

func findEdges(g *Graph, kind EdgeKind) []*Edge {
	var out []*Edge
	for _, b := range g.Blocks {
		for _, e := range b.Succs {
			if e.Kind == kind {
				out = append(out, e)
			}
		}
	}
	return out
}

func TestBuildStraightLine(t *testing.T) {
	g := buildFunc(t, `module Test {
    fn f(a: I64) -> I64 {
        let b = a + 1;
        return b;
    }
}`)

	assert.Len(t, g.Entry.Stmts, 2, "Entry should hold both statements")
	returns := findEdges(g, Return)
	require.Len(t, returns, 1)
	assert.Equal(t, g.Entry, returns[0].From)
	assert.Equal(t, g.Exit, returns[0].To)
	assert.Empty(t, g.UnreachableBlocks())
}

func TestBuildImplicitReturn(t *testing.T) {
	g := buildFunc(t, `module Test {
    fn f() {
        let x = 1;
    }
}`)

	falls := findEdges(g, Fallthrough)
	require.Len(t, falls, 1, "Falling off the end should reach exit")
	assert.Equal(t, g.Exit, falls[0].To)
}

func TestBuildIfElse(t *testing.T) {
	g := buildFunc(t, `module Test {
    fn f(x: I64) -> I64 {
        let r = 0;
        if x > 0 {
            r = 1;
        } else {
            r = 2;
        }
        return r;
    }
}`)

	cond := g.Entry
	require.NotNil(t, cond.Cond, "Entry should end in the branch")

	thenBlock := cond.TrueSucc()
	elseBlock := cond.FalseSucc()
	require.NotNil(t, thenBlock)
	require.NotNil(t, elseBlock)
	assert.Len(t, thenBlock.Stmts, 1)
	assert.Len(t, elseBlock.Stmts, 1)

	// both arms fall into the join
	require.Len(t, thenBlock.Succs, 1)
	require.Len(t, elseBlock.Succs, 1)
	assert.Equal(t, thenBlock.Succs[0].To, elseBlock.Succs[0].To, "Arms should meet at one join")
	assert.Empty(t, g.UnreachableBlocks())
}

func TestBuildIfWithoutElse(t *testing.T) {
	g := buildFunc(t, `module Test {
    fn f(x: I64) -> I64 {
        if x > 0 {
            return 1;
        }
        return 0;
    }
}`)

	cond := g.Entry
	require.NotNil(t, cond.Cond)
	join := cond.FalseSucc()
	require.NotNil(t, join, "Missing else should branch straight to the join")
	assert.Len(t, join.Stmts, 1, "Join holds the trailing return")
}

func TestBuildBothArmsReturn(t *testing.T) {
	g := buildFunc(t, `module Test {
    fn f(x: I64) -> I64 {
        if x > 0 {
            return 1;
        } else {
            return 2;
        }
    }
}`)

	dead := g.UnreachableBlocks()
	require.Len(t, dead, 1, "The join after two returning arms is unreachable")
	assert.True(t, dead[0].Empty(), "Nothing was ever placed in the join")
}

func TestBuildDeadCodeAfterReturn(t *testing.T) {
	g := buildFunc(t, `module Test {
    fn f() -> I64 {
        return 1;
        let unreached = 2;
    }
}`)

	dead := g.UnreachableBlocks()
	require.Len(t, dead, 1)
	assert.Len(t, dead[0].Stmts, 1, "The statement after return lands in a dead block")
	assert.False(t, dead[0].Empty())
}

func TestBuildWhile(t *testing.T) {
	g := buildFunc(t, `module Test {
    fn f(n: I64) -> I64 {
        let i = 0;
        while i < n {
            i = i + 1;
        }
        return i;
    }
}`)

	heads := g.LoopHeads()
	require.Len(t, heads, 1)
	head := heads[0]
	assert.NotNil(t, head.Cond)

	backs := findEdges(g, LoopBack)
	require.Len(t, backs, 1)
	assert.Equal(t, head, backs[0].To, "Back edge should return to the loop head")

	body := head.TrueSucc()
	require.NotNil(t, body)
	assert.Len(t, body.Stmts, 1)

	after := head.FalseSucc()
	require.NotNil(t, after)
	assert.Empty(t, g.UnreachableBlocks())
}

func TestBuildDoWhile(t *testing.T) {
	g := buildFunc(t, `module Test {
    fn f(n: I64) -> I64 {
        let i = 0;
        do {
            i = i + 1;
        } while i < n;
        return i;
    }
}`)

	heads := g.LoopHeads()
	require.Len(t, heads, 1)
	latch := heads[0]

	backs := findEdges(g, LoopBack)
	require.Len(t, backs, 1)
	assert.Equal(t, latch, backs[0].From, "do-while loops back from the latch")
	assert.Equal(t, backs[0].To, latch.TrueSucc(), "Re-entry is the latch's true successor")
	require.NotNil(t, latch.FalseSucc())
}

func TestBuildForDesugaring(t *testing.T) {
	g := buildFunc(t, `module Test {
    fn f(n: U64) -> U64 {
        let total: U64 = 0;
        for i in 0..n {
            total = total + i;
        }
        return total;
    }
}`)

	heads := g.LoopHeads()
	require.Len(t, heads, 1)
	head := heads[0]
	require.NotNil(t, head.ForRange, "Range loops keep a handle to their source form")

	// the counter is initialized before the head
	require.Len(t, g.Entry.Stmts, 2)
	init, ok := g.Entry.Stmts[1].(*ast.LetStmt)
	require.True(t, ok, "Loop counter should be initialized by a synthesized let")
	assert.Equal(t, "i", init.Name.Value)

	cond, ok := head.Cond.(*ast.BinaryExpr)
	require.True(t, ok)
	assert.Equal(t, "<", cond.Op)

	body := head.TrueSucc()
	require.NotNil(t, body)
	last, ok := body.Stmts[len(body.Stmts)-1].(*ast.AssignStmt)
	require.True(t, ok, "Body should end with the synthesized increment")
	assert.Equal(t, "(i + 1)", last.Value.String())
}

func TestBuildThrow(t *testing.T) {
	g := buildFunc(t, `module Test {
    fn f(x: I64) -> I64 {
        if x < 0 {
            throw "negative";
        }
        return x;
    }
}`)

	throws := findEdges(g, Throw)
	require.Len(t, throws, 1)
	assert.Equal(t, g.Exit, throws[0].To)
}

func TestBuildOpaqueBlock(t *testing.T) {
	fn := &ast.Function{
		Name: ast.Ident{Value: "broken"},
		Body: &ast.FunctionBlock{
			Stmts: []ast.Stmt{
				&ast.UnknownStmt{Reason: "unparsed region"},
				&ast.ReturnStmt{},
			},
		},
	}
	g := Build(fn)

	assert.True(t, g.HasOpaque())
	assert.True(t, g.Entry.Opaque)
}

func TestBuildNestedLoops(t *testing.T) {
	g := buildFunc(t, `module Test {
    fn f(n: U64) -> U64 {
        let total: U64 = 0;
        for i in 0..n {
            for j in 0..n {
                total = total + 1;
            }
        }
        return total;
    }
}`)

	assert.Len(t, g.LoopHeads(), 2)
	assert.Len(t, findEdges(g, LoopBack), 2)
	assert.Empty(t, g.UnreachableBlocks())
}

func TestPrinterOutput(t *testing.T) {
	g := buildFunc(t, `module Test {
    fn f(x: I64) -> I64 {
        if x > 0 {
            return 1;
        }
        return 0;
    }
}`)

	text := Print(g)
	assert.Contains(t, text, "fn f:")
	assert.Contains(t, text, "entry_0:")
	assert.Contains(t, text, "branch (x > 0)")
	assert.Contains(t, text, "(return)")

	dot := DOT(g)
	assert.True(t, strings.HasPrefix(dot, "digraph \"f\""))
	assert.Contains(t, dot, "->")
}
