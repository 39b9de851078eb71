// Package analysis runs the verification and static-analysis engine over
// a typed module: it fans functions out to a bounded worker pool, shares
// one control-flow graph per function across the enabled passes, applies
// the unknown-call policy, and merges diagnostics and contract verdicts
// into one result.
package analysis

import (
	"context"
	"fmt"
	"time"

	"github.com/tliron/commonlog"
	"golang.org/x/sync/errgroup"

	"oath/internal/ast"
	"oath/internal/bugpattern"
	"oath/internal/cfg"
	"oath/internal/dataflow"
	"oath/internal/diag"
	"oath/internal/effects"
	"oath/internal/solver"
	"oath/internal/taint"
	"oath/internal/vcache"
)

var log = commonlog.GetLogger("oath.analysis")

// Coordinator runs the configured passes over every function of a
// module. It may be reused across modules; per-run state lives in
// Analyze.
type Coordinator struct {
	cfg     Config
	reg     *effects.Registry
	backend solver.Backend
	cache   *vcache.Cache
}

// NewCoordinator wires a run. A nil backend gets z3 discovery honoring
// the configured solver path. A nil cache follows CacheEnabled with an
// in-process cache; the CLI passes the persistent one instead.
func NewCoordinator(cfg Config, reg *effects.Registry, backend solver.Backend, cache *vcache.Cache) *Coordinator {
	cfg = cfg.normalized()
	if backend == nil {
		backend = solver.NewZ3BackendAt(cfg.SolverPath)
	}
	if cache == nil {
		if cfg.CacheEnabled {
			cache = vcache.NewMemory()
		} else {
			cache = vcache.Disabled()
		}
	}
	return &Coordinator{cfg: cfg, reg: reg, backend: backend, cache: cache}
}

// Analyze runs every enabled pass over the module and returns the
// merged result. Cancelling ctx stops scheduling further functions;
// in-flight solver calls still finish within their own timeout.
func (c *Coordinator) Analyze(ctx context.Context, module *ast.Module) *AnalysisResult {
	start := time.Now()
	collector := diag.NewCollector()
	res := &AnalysisResult{}
	if module == nil || len(module.Functions) == 0 {
		res.Duration = time.Since(start)
		return res
	}
	c.reg.AddModule(module)
	fns := module.Functions

	// Fingerprints are computed up front: the fingerprinter memoizes
	// callee closures and is not safe for concurrent use, so the workers
	// receive finished strings.
	var fps []string
	if c.cfg.UseSmtVerification {
		fpr := vcache.NewFingerprinter(module, c.cfg.Salt())
		fps = make([]string, len(fns))
		for i, fn := range fns {
			fps[i] = fpr.Fingerprint(fn)
		}
	}

	results := make([]*FunctionVerificationResult, len(fns))
	pool, poolCtx := errgroup.WithContext(ctx)
	pool.SetLimit(c.cfg.Workers)
	scheduled := 0
	for i, fn := range fns {
		if ctx.Err() != nil {
			log.Noticef("run cancelled with %d of %d functions scheduled", scheduled, len(fns))
			break
		}
		scheduled++
		i, fn := i, fn
		pool.Go(func() error {
			fp := ""
			if fps != nil {
				fp = fps[i]
			}
			results[i] = c.analyzeFunction(poolCtx, fn, fp, collector)
			return nil
		})
	}
	// Workers never return errors; faults become diagnostics.
	_ = pool.Wait()

	for _, r := range results {
		if r == nil {
			continue
		}
		res.Verification = append(res.Verification, *r)
		res.Summary.add(r.Outcomes)
	}
	res.Functions = scheduled
	res.Diagnostics = collector.Sorted()
	res.Duration = time.Since(start)
	log.Infof("analyzed %d function(s) in %s: %d diagnostic(s), %d contract(s)",
		res.Functions, res.Duration, len(res.Diagnostics), res.Summary.Total())
	return res
}

// analyzeFunction runs the per-function passes over one shared graph. A
// panic in any pass is confined here: it becomes one diagnostic and the
// remaining functions continue unharmed.
func (c *Coordinator) analyzeFunction(ctx context.Context, fn *ast.Function, fp string, collector *diag.Collector) (result *FunctionVerificationResult) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("analyzer fault in %s: %v", fn.Name.Value, r)
			collector.Add(diag.New(diag.CodeAnalyzerFault,
				fmt.Sprintf("internal fault while analyzing '%s'", fn.Name.Value),
				fn.Name.Span()).
				WithFunction(fn.Name.Value).
				WithNote(fmt.Sprint(r)).
				WithHelp("findings for this function are incomplete; other functions are unaffected").
				Build())
			result = nil
		}
	}()

	graph := cfg.Build(fn)

	if c.cfg.EnableDataflow {
		collector.AddAll(dataflow.NewAnalyzer().Analyze(graph)...)
	}
	if c.cfg.EnableBugPatterns {
		collector.AddAll(bugpattern.NewDetector().Analyze(graph)...)
	}
	if c.cfg.EnableTaintAnalysis {
		collector.AddAll(taint.NewAnalyzer(c.reg).Analyze(graph)...)
	}
	c.checkUnknownCalls(fn, collector)

	if !c.cfg.UseSmtVerification {
		return nil
	}
	outcomes, hit := c.cache.Lookup(fp, fn)
	if !hit {
		orch := solver.New(c.backend, c.cfg.IntegerMode.Arith(), c.cfg.VerificationTimeoutMs)
		outcomes = orch.VerifyFunction(ctx, fn)
		if err := c.cache.Record(fp, fn, outcomes); err != nil {
			log.Warningf("cache write for %s failed: %v", fn.Name.Value, err)
		}
	}
	return &FunctionVerificationResult{Function: fn.Name.Value, Outcomes: outcomes}
}

// checkUnknownCalls applies the unknown-call policy. Unqualified names
// the registry cannot resolve are the semantic pass's undefined-function
// errors, and so is a miss inside a built-in module; only qualified
// calls into foreign modules land here.
func (c *Coordinator) checkUnknownCalls(fn *ast.Function, collector *diag.Collector) {
	if c.cfg.UnknownCallPolicy == PolicyPermissive {
		return
	}
	walkFunctionCalls(fn, func(call *ast.CallExpr) {
		if len(call.Callee.Parts) < 2 {
			return
		}
		if c.reg.HasBuiltinModule(call.Callee.Parts[0].Value) {
			return
		}
		path := call.Callee.Name()
		if c.reg.Classify(path) != effects.Unknown {
			return
		}
		if c.cfg.UnknownCallPolicy == PolicyStrict {
			collector.Add(diag.New(diag.CodeUnknownCallStrict,
				fmt.Sprintf("call to unknown function '%s'", path),
				ast.SpanOf(call)).
				WithFunction(fn.Name.Value).
				WithHelp("the strict policy rejects callees with undeclared effects").
				Build())
			return
		}
		collector.Add(diag.New(diag.CodeUnknownCallAssumed,
			fmt.Sprintf("unknown function '%s' is assumed to read and write anything", path),
			ast.SpanOf(call)).
			WithFunction(fn.Name.Value).
			WithHelp("declare the callee's effects, or set the permissive policy to accept it quietly").
			Build())
	})
}

// walkFunctionCalls visits every call expression in fn, contract
// clauses included, in source order.
func walkFunctionCalls(fn *ast.Function, visit func(*ast.CallExpr)) {
	for _, r := range fn.Requires {
		walkExprCalls(r, visit)
	}
	for _, e := range fn.Ensures {
		walkExprCalls(e, visit)
	}
	if fn.Body != nil {
		walkStmtCalls(fn.Body.Stmts, visit)
	}
}

func walkStmtCalls(stmts []ast.Stmt, visit func(*ast.CallExpr)) {
	for _, stmt := range stmts {
		switch n := stmt.(type) {
		case *ast.LetStmt:
			if n.Value != nil {
				walkExprCalls(n.Value, visit)
			}
		case *ast.AssignStmt:
			walkExprCalls(n.Target, visit)
			walkExprCalls(n.Value, visit)
		case *ast.IfStmt:
			walkExprCalls(n.Cond, visit)
			walkStmtCalls(n.Then.Stmts, visit)
			if n.Else != nil {
				walkStmtCalls([]ast.Stmt{n.Else}, visit)
			}
		case *ast.FunctionBlock:
			walkStmtCalls(n.Stmts, visit)
		case *ast.WhileStmt:
			walkExprCalls(n.Cond, visit)
			walkStmtCalls(n.Body.Stmts, visit)
		case *ast.DoWhileStmt:
			walkExprCalls(n.Cond, visit)
			walkStmtCalls(n.Body.Stmts, visit)
		case *ast.ForStmt:
			walkExprCalls(n.From, visit)
			walkExprCalls(n.To, visit)
			walkStmtCalls(n.Body.Stmts, visit)
		case *ast.ReturnStmt:
			if n.Value != nil {
				walkExprCalls(n.Value, visit)
			}
		case *ast.ThrowStmt:
			if n.Value != nil {
				walkExprCalls(n.Value, visit)
			}
		case *ast.ExprStmt:
			walkExprCalls(n.X, visit)
		}
	}
}

func walkExprCalls(e ast.Expr, visit func(*ast.CallExpr)) {
	switch n := e.(type) {
	case *ast.UnaryExpr:
		walkExprCalls(n.Value, visit)
	case *ast.BinaryExpr:
		walkExprCalls(n.Left, visit)
		walkExprCalls(n.Right, visit)
	case *ast.CallExpr:
		for _, a := range n.Args {
			walkExprCalls(a, visit)
		}
		visit(n)
	case *ast.IndexExpr:
		walkExprCalls(n.Target, visit)
		walkExprCalls(n.Index, visit)
	case *ast.LenExpr:
		walkExprCalls(n.Target, visit)
	case *ast.ParenExpr:
		walkExprCalls(n.Value, visit)
	}
}
