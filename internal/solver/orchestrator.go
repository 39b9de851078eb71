package solver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"oath/internal/ast"
	"oath/internal/contract"
	"oath/internal/types"
)

const (
	// DefaultTimeoutMs bounds each per-contract solver call.
	DefaultTimeoutMs = 5000
	// DefaultMaxUnroll is the trip-count budget below which counted
	// loops are unrolled instead of widened.
	DefaultMaxUnroll = 64
)

// Orchestrator turns a function's contracts into solver verdicts. One
// solver session serves one function and is disposed when the function
// is done, however it went; sessions are never shared across functions.
type Orchestrator struct {
	backend   Backend
	mode      contract.ArithMode
	timeoutMs uint
	maxUnroll int
}

func New(backend Backend, mode contract.ArithMode, timeoutMs uint) *Orchestrator {
	if timeoutMs == 0 {
		timeoutMs = DefaultTimeoutMs
	}
	return &Orchestrator{
		backend:   backend,
		mode:      mode,
		timeoutMs: timeoutMs,
		maxUnroll: DefaultMaxUnroll,
	}
}

// VerifyFunction checks every contract on fn via negation-and-check:
// all preconditions hold as axioms for every query, including the
// queries on the preconditions themselves, so the outcome list always
// matches the declared contract count in order (requires first).
func (o *Orchestrator) VerifyFunction(ctx context.Context, fn *ast.Function) []contract.Outcome {
	outcomes := make([]contract.Outcome, 0, fn.ContractCount())
	if fn.ContractCount() == 0 {
		return outcomes
	}
	if !o.backend.Available() {
		return o.skipAll(fn, "no SMT solver available")
	}
	session, err := o.backend.NewSession(o.timeoutMs)
	if err != nil {
		return o.skipAll(fn, fmt.Sprintf("solver session failed: %v", err))
	}
	defer session.Close()

	enc := contract.NewEncoder(o.mode)
	params := contract.NewScope()
	for _, p := range fn.Params {
		var ty types.Type = types.Unknown
		if p.Type != nil && p.Type.Resolved != nil {
			ty = p.Type.Resolved
		}
		params.BindVar(p.Name.Value, ty)
	}
	o.assertDomains(session, params)

	// Preconditions are axioms for every check. A contract that fails
	// to encode contributes nothing here; its own outcome says so.
	reqFormulas := make([]*contract.Formula, len(fn.Requires))
	reqErrs := make([]error, len(fn.Requires))
	for i, r := range fn.Requires {
		f, err := enc.EncodeContract(r, params)
		reqFormulas[i], reqErrs[i] = f, err
		if err != nil {
			continue
		}
		session.Assert(f.Prop)
		for _, s := range f.Sides {
			session.Assert(s)
		}
	}

	body := modelBody(fn, enc, params.Clone(), o.maxUnroll)
	for _, a := range body.Assumes {
		session.Assert(a)
	}
	ensScope := params.Clone()
	if body.Result != nil {
		ensScope.Bind("result", *body.Result)
		o.assertBindingDomain(session, *body.Result)
	}

	for i, r := range fn.Requires {
		out := o.checkContract(ctx, session, contract.KindRequires, r, reqFormulas[i], reqErrs[i], body, fn)
		outcomes = append(outcomes, out)
	}
	for _, e := range fn.Ensures {
		f, err := enc.EncodeContract(e, ensScope)
		out := o.checkContract(ctx, session, contract.KindEnsures, e, f, err, body, fn)
		outcomes = append(outcomes, out)
	}
	return outcomes
}

func (o *Orchestrator) skipAll(fn *ast.Function, reason string) []contract.Outcome {
	outcomes := make([]contract.Outcome, 0, fn.ContractCount())
	add := func(kind contract.Kind, exprs []ast.Expr) {
		for _, e := range exprs {
			outcomes = append(outcomes, contract.Outcome{
				Kind:   kind,
				Expr:   e.String(),
				Span:   ast.SpanOf(e),
				Status: contract.Skipped,
				Reason: reason,
			})
		}
	}
	add(contract.KindRequires, fn.Requires)
	add(contract.KindEnsures, fn.Ensures)
	return outcomes
}

// assertDomains pins every parameter to its type's value range: ints
// within their bounds, lengths non-negative. String identities also
// get pairwise length congruence so equal strings share a length.
func (o *Orchestrator) assertDomains(session Session, sc *contract.Scope) {
	var stringBindings []contract.Binding
	for _, name := range sc.Names() {
		b, _ := sc.Lookup(name)
		o.assertBindingDomain(session, b)
		if _, isStr := types.Underlying(b.Type).(*types.StringType); isStr {
			stringBindings = append(stringBindings, b)
		}
	}
	for i := 0; i < len(stringBindings); i++ {
		for j := i + 1; j < len(stringBindings); j++ {
			a, b := stringBindings[i], stringBindings[j]
			session.Assert(&contract.Implies{
				Ante: &contract.Compare{Op: contract.OpEq, Left: a.Val, Right: b.Val},
				Cons: &contract.Compare{Op: contract.OpEq, Left: a.Len, Right: b.Len},
			})
		}
	}
}

func (o *Orchestrator) assertBindingDomain(session Session, b contract.Binding) {
	for _, t := range domainTerms(b) {
		session.Assert(t)
	}
}

// domainTerms pins a binding's variables to its type: integer values
// within their declared range, lengths non-negative. Values runtime
// execution produces always satisfy these, so they are sound for
// havoced variables too.
func domainTerms(b contract.Binding) []contract.Term {
	var out []contract.Term
	if b.Val != nil {
		if it, ok := types.Underlying(b.Type).(*types.IntType); ok {
			out = append(out, &contract.And{Conj: []contract.Term{
				&contract.Compare{Op: contract.OpGe, Left: b.Val, Right: &contract.IntConst{Val: it.MinValue()}},
				&contract.Compare{Op: contract.OpLe, Left: b.Val, Right: &contract.IntConst{Val: it.MaxValue()}},
			}})
		}
	}
	if b.Len != nil {
		out = append(out, &contract.Compare{Op: contract.OpGe, Left: b.Len, Right: contract.Int(0)})
	}
	return out
}

func (o *Orchestrator) checkContract(ctx context.Context, session Session, kind contract.Kind,
	expr ast.Expr, f *contract.Formula, encErr error, body *bodyModel, fn *ast.Function) contract.Outcome {

	out := contract.Outcome{
		Kind: kind,
		Expr: expr.String(),
		Span: ast.SpanOf(expr),
	}
	start := time.Now()
	defer func() { out.Duration = time.Since(start) }()

	if encErr != nil {
		out.Status = contract.Unsupported
		var unsup *contract.UnsupportedError
		if errors.As(encErr, &unsup) {
			out.Reason = unsup.Reason
		} else {
			out.Reason = encErr.Error()
		}
		return out
	}

	verdict, err := session.CheckNegated(ctx, f.Obligation())
	if err != nil {
		out.Status = contract.Unproven
		out.Reason = fmt.Sprintf("solver error: %v", err)
		return out
	}

	switch verdict.Result {
	case Unsat:
		out.Status = contract.Proven
	case Unknown:
		out.Status = contract.Unproven
		out.Reason = verdict.Reason
	case Sat:
		if body.Widened {
			// The model may only exist because widening forgot the
			// loop's real behavior; it proves nothing about inputs.
			out.Status = contract.Unproven
			out.Reason = fmt.Sprintf("body widened (%s); a falsifying model may be spurious", body.Reason)
			return out
		}
		if falsified := modelFalsifies(f, verdict.Model); !falsified {
			out.Status = contract.Unproven
			out.Reason = "solver model failed validation"
			return out
		}
		out.Status = contract.Disproven
		out.Counterexample = buildCounterexample(fn, verdict.Model)
	}
	return out
}

// modelFalsifies re-evaluates the obligation under the model. A model
// that does not actually falsify it is spurious; trust the solver only
// when evaluation cannot decide.
func modelFalsifies(f *contract.Formula, m contract.Model) bool {
	holds, err := contract.EvalBool(f.Obligation(), m)
	if err != nil {
		return true
	}
	return !holds
}

// buildCounterexample renders the model's values for the function's
// parameters in source terms: null flags become "null", array and
// string lengths read as "len(name)".
func buildCounterexample(fn *ast.Function, m contract.Model) *contract.Counterexample {
	inputs := make(map[string]string)
	for _, p := range fn.Params {
		name := p.Name.Value
		if nv, ok := m[name+".null"]; ok {
			if b, isBool := nv.(*contract.BoolVal); isBool && b.Val {
				inputs[name] = "null"
				continue
			}
		}
		var ty types.Type
		if p.Type != nil {
			ty = p.Type.Resolved
		}
		switch types.Underlying(ty).(type) {
		case *types.StringType:
			if lv, ok := m[name+".len"]; ok {
				inputs["len("+name+")"] = lv.String()
			}
		case *types.ArrayType:
			if v, ok := m[name]; ok {
				inputs[name] = v.String()
			}
			if lv, ok := m[name+".len"]; ok {
				inputs["len("+name+")"] = lv.String()
			}
		default:
			if v, ok := m[name]; ok {
				inputs[name] = v.String()
			}
		}
	}
	if rv, ok := m["result"]; ok {
		inputs["result"] = rv.String()
	}
	return &contract.Counterexample{Inputs: inputs}
}
