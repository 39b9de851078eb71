package taint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oath/internal/ast"
	"oath/internal/cfg"
	"oath/internal/diag"
	"oath/internal/effects"
	"oath/internal/parser"
	"oath/internal/semantic"
)

func loadModule(t *testing.T, src string) (*ast.Module, *effects.Registry) {
	t.Helper()
	module, parseDiags := parser.ParseModule("test.oath", src)
	require.NotNil(t, module, "source must parse")
	require.Empty(t, parseDiags)
	reg := effects.NewRegistry()
	require.Empty(t, semantic.NewAnalyzer(reg).Analyze(module), "source must typecheck")
	return module, reg
}

func flowsOf(t *testing.T, src string) []diag.Diagnostic {
	t.Helper()
	module, reg := loadModule(t, src)
	return NewAnalyzer(reg).Analyze(cfg.Build(module.Functions[0]))
}

func TestExternalParamReachesDatabaseSink(t *testing.T) {
	diags := flowsOf(t, `module m {
    #[external]
    fn handle(req: String) writes(Database) {
        db::exec(req);
    }
}`)
	require.Len(t, diags, 1)
	assert.Equal(t, diag.CodeTaintedSink, diags[0].Code)
	assert.Equal(t, diag.Error, diags[0].Severity)
	assert.Equal(t, diag.Security, diags[0].Category)
	assert.Equal(t, "handle", diags[0].Function)
	assert.Contains(t, diags[0].Message, "database write")
	require.Len(t, diags[0].Notes, 1)
	assert.Contains(t, diags[0].Notes[0], "parameter 'req'")
}

func TestPlainParameterIsNotTainted(t *testing.T) {
	diags := flowsOf(t, `module m {
    fn handle(req: String) writes(Database) {
        db::exec(req);
    }
}`)
	assert.Empty(t, diags)
}

func TestSanitizerCallClearsTaint(t *testing.T) {
	diags := flowsOf(t, `module m {
    #[external]
    fn handle(req: String) writes(Database) {
        db::exec(db::escape(req));
    }
}`)
	assert.Empty(t, diags)
}

func TestSanitizedVariableIsClean(t *testing.T) {
	diags := flowsOf(t, `module m {
    #[external]
    fn handle(req: String) writes(Database) {
        let safe: String = db::escape(req);
        db::exec(safe);
    }
}`)
	assert.Empty(t, diags)
}

func TestReassignmentSanitizesInPlace(t *testing.T) {
	diags := flowsOf(t, `module m {
    #[external]
    fn handle(req: String) writes(Database) {
        req = db::escape(req);
        db::exec(req);
    }
}`)
	assert.Empty(t, diags)
}

func TestTaintFlowsThroughStringOps(t *testing.T) {
	diags := flowsOf(t, `module m {
    #[external]
    fn handle(id: String) writes(Database) {
        db::exec(str::concat("delete where id = ", id));
    }
}`)
	require.Len(t, diags, 1)
	assert.Contains(t, diags[0].Message, "database write")
	assert.Contains(t, diags[0].Notes[0], "parameter 'id'")
}

func TestReadLineFeedsProcessSink(t *testing.T) {
	diags := flowsOf(t, `module m {
    fn run_user_command() reads(Input) writes(Process) {
        let cmd: String = io::read_line();
        proc::run(cmd);
    }
}`)
	require.Len(t, diags, 1)
	assert.Contains(t, diags[0].Message, "process execution")
	assert.Contains(t, diags[0].Notes[0], "io::read_line")
	assert.Contains(t, diags[0].Help, "allowed commands")
}

func TestConsolePrintIsNotASink(t *testing.T) {
	diags := flowsOf(t, `module m {
    fn echo() reads(Input) writes(Console) {
        io::print(io::read_line());
    }
}`)
	assert.Empty(t, diags)
}

func TestEachSourceGetsItsOwnReport(t *testing.T) {
	diags := flowsOf(t, `module m {
    #[external]
    fn handle(a: String, b: String) writes(Database) {
        db::exec(str::concat(a, b));
    }
}`)
	require.Len(t, diags, 2)
	assert.Contains(t, diags[0].Notes[0], "parameter 'a'")
	assert.Contains(t, diags[1].Notes[0], "parameter 'b'")
}

func TestConvergingPathsReportOnce(t *testing.T) {
	diags := flowsOf(t, `module m {
    #[external]
    fn handle(p: String, flag: Bool) writes(Database) {
        let s: String = "none";
        if flag {
            s = p;
        } else {
            s = p;
        }
        db::exec(s);
    }
}`)
	require.Len(t, diags, 1)
	assert.Contains(t, diags[0].Notes[0], "parameter 'p'")
}

func TestLoopCarriedTaintReachesSinkAfterLoop(t *testing.T) {
	diags := flowsOf(t, `module m {
    fn gather(n: I64) reads(Input) writes(Process) {
        let cmd: String = "ls";
        let i: I64 = 0;
        while i < n {
            cmd = io::read_line();
            i = i + 1;
        }
        proc::run(cmd);
    }
}`)
	require.Len(t, diags, 1)
	assert.Contains(t, diags[0].Notes[0], "io::read_line")
}

func TestSinkInsideLoopReportsOnce(t *testing.T) {
	diags := flowsOf(t, `module m {
    #[external]
    fn spam(p: String, n: I64) writes(Database) {
        let i: I64 = 0;
        while i < n {
            db::exec(p);
            i = i + 1;
        }
    }
}`)
	require.Len(t, diags, 1)
}

func TestRegisteredSanitizerClears(t *testing.T) {
	module, reg := loadModule(t, `module m {
    #[external]
    fn handle(p: String) writes(Database) {
        db::exec(clean(p));
    }
    fn clean(s: String) -> String {
        return s;
    }
}`)
	g := cfg.Build(module.Functions[0])

	// An unregistered helper passes taint through.
	require.Len(t, NewAnalyzer(reg).Analyze(g), 1)

	reg.RegisterSanitizer("clean")
	assert.Empty(t, NewAnalyzer(reg).Analyze(g))
}

func TestLocalFunctionWithSinkEffectIsASink(t *testing.T) {
	diags := flowsOf(t, `module m {
    #[external]
    fn handle(p: String) writes(Database) {
        save(p);
    }
    fn save(s: String) writes(Database) {
    }
}`)
	require.Len(t, diags, 1)
	assert.Contains(t, diags[0].Message, "database write")
}

func TestReturningTaintIsNotASink(t *testing.T) {
	diags := flowsOf(t, `module m {
    #[external]
    fn handle(p: String) -> String {
        return p;
    }
}`)
	assert.Empty(t, diags)
}

func TestMarkupEmitIsASink(t *testing.T) {
	diags := flowsOf(t, `module m {
    #[external]
    fn render(name: String) writes(Markup) {
        html::emit(name);
    }
}`)
	require.Len(t, diags, 1)
	assert.Contains(t, diags[0].Message, "markup emission")
	assert.Contains(t, diags[0].Help, "html::escape")
}

func TestHtmlEscapeClears(t *testing.T) {
	diags := flowsOf(t, `module m {
    #[external]
    fn render(name: String) writes(Markup) {
        html::emit(html::escape(name));
    }
}`)
	assert.Empty(t, diags)
}

func TestOpaqueRegionDropsTaintFacts(t *testing.T) {
	fn := &ast.Function{
		Name:     ast.Ident{Value: "broken"},
		External: true,
		Params: []*ast.FunctionParam{
			{Name: ast.Ident{Value: "p"}},
		},
		Body: &ast.FunctionBlock{Stmts: []ast.Stmt{
			&ast.UnknownStmt{Reason: "unparsed region"},
			&ast.ExprStmt{X: &ast.CallExpr{
				Callee: &ast.CalleePath{Parts: []ast.Ident{{Value: "db"}, {Value: "exec"}}},
				Args:   []ast.Expr{&ast.IdentExpr{Name: "p"}},
			}},
		}},
	}
	g := cfg.Build(fn)
	require.True(t, g.HasOpaque())
	assert.Empty(t, NewAnalyzer(effects.NewRegistry()).Analyze(g))
}
