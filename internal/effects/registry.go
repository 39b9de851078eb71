package effects

import (
	"strings"

	"oath/internal/ast"
	"oath/internal/types"
)

// Param is one parameter of a built-in function signature.
type Param struct {
	Name string
	Type types.Type
}

// FuncSig describes a built-in function the engine knows about: its
// signature, declared effects, and taint behavior.
type FuncSig struct {
	Path      string
	Params    []Param
	Return    types.Type // nil for void
	Reads     []string
	Writes    []string
	Sanitizes bool // result is safe for sinks regardless of inputs
}

// Classes returns the effect classes implied by the declared resources.
func (s *FuncSig) Classes() []Class {
	var out []Class
	for _, r := range s.Reads {
		if c := ClassOfRead(r); c != None {
			out = append(out, c)
		}
	}
	for _, w := range s.Writes {
		if c := ClassOfWrite(w); c != None {
			out = append(out, c)
		}
	}
	return out
}

// IsPure reports whether the function declares no effects at all.
func (s *FuncSig) IsPure() bool {
	return len(s.Reads) == 0 && len(s.Writes) == 0
}

// SinkClasses returns the sink classes among the function's effects.
func (s *FuncSig) SinkClasses() []Class {
	var out []Class
	for _, c := range s.Classes() {
		if c.IsSink() {
			out = append(out, c)
		}
	}
	return out
}

// IsSource reports whether the function's result carries external input.
func (s *FuncSig) IsSource() bool {
	for _, c := range s.Classes() {
		if c.IsSource() {
			return true
		}
	}
	return false
}

// CallKind classifies a callee for the unknown-call policy.
type CallKind int

const (
	Pure CallKind = iota
	Effectful
	Unknown
)

func (k CallKind) String() string {
	switch k {
	case Pure:
		return "pure"
	case Effectful:
		return "effectful"
	}
	return "unknown"
}

// Registry is the engine's view of resolvable callees: the fixed built-in
// table plus the functions of the module under analysis, plus any
// explicitly registered sanitizers. Built once per run and passed by
// reference; it has no lazy global state.
type Registry struct {
	builtins   map[string]*FuncSig
	local      map[string]*ast.Function
	sanitizers map[string]bool
}

// NewRegistry returns a registry preloaded with the built-in modules.
func NewRegistry() *Registry {
	r := &Registry{
		builtins:   make(map[string]*FuncSig),
		local:      make(map[string]*ast.Function),
		sanitizers: make(map[string]bool),
	}
	for _, sig := range builtinSignatures() {
		r.builtins[sig.Path] = sig
		if sig.Sanitizes {
			r.sanitizers[sig.Path] = true
		}
	}
	return r
}

// AddModule makes the module's own functions resolvable by bare name.
func (r *Registry) AddModule(m *ast.Module) {
	for _, f := range m.Functions {
		r.local[f.Name.Value] = f
	}
}

// RegisterSanitizer marks an additional callee path as taint-clearing.
func (r *Registry) RegisterSanitizer(path string) {
	r.sanitizers[path] = true
}

// Builtin resolves a qualified path like "db::exec".
func (r *Registry) Builtin(path string) (*FuncSig, bool) {
	sig, ok := r.builtins[path]
	return sig, ok
}

// HasBuiltinModule reports whether the prefix names a built-in module.
// Calls into unknown modules are left to the unknown-call policy, but a
// miss inside a known module is a plain undefined function.
func (r *Registry) HasBuiltinModule(name string) bool {
	prefix := name + "::"
	for path := range r.builtins {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// Local resolves a module-local function by name.
func (r *Registry) Local(name string) (*ast.Function, bool) {
	f, ok := r.local[name]
	return f, ok
}

// IsSanitizer reports whether calls to the path clear taint.
func (r *Registry) IsSanitizer(path string) bool {
	return r.sanitizers[path]
}

// SinkClasses returns the sink classes of the callee, from the builtin
// table or from a local function's declared writes.
func (r *Registry) SinkClasses(path string) []Class {
	if sig, ok := r.builtins[path]; ok {
		return sig.SinkClasses()
	}
	if f, ok := r.local[path]; ok {
		var out []Class
		for _, w := range f.Writes {
			if c := ClassOfWrite(w.Value); c.IsSink() {
				out = append(out, c)
			}
		}
		return out
	}
	return nil
}

// IsSourceCall reports whether the callee's result carries external input.
func (r *Registry) IsSourceCall(path string) bool {
	if sig, ok := r.builtins[path]; ok {
		return sig.IsSource()
	}
	if f, ok := r.local[path]; ok {
		for _, rd := range f.Reads {
			if ClassOfRead(rd.Value).IsSource() {
				return true
			}
		}
	}
	return false
}

// Classify determines the callee's kind for the unknown-call policy:
// resolvable callees are Pure or Effectful from their declarations,
// anything else is Unknown.
func (r *Registry) Classify(path string) CallKind {
	if sig, ok := r.builtins[path]; ok {
		if sig.IsPure() {
			return Pure
		}
		return Effectful
	}
	if f, ok := r.local[path]; ok {
		if len(f.Reads) == 0 && len(f.Writes) == 0 {
			return Pure
		}
		return Effectful
	}
	return Unknown
}

// builtinSignatures is the fixed built-in module table.
func builtinSignatures() []*FuncSig {
	str := types.String
	i64 := types.I64
	u64 := types.U64

	return []*FuncSig{
		// db: persistence
		{
			Path:   "db::query",
			Params: []Param{{Name: "sql", Type: str}},
			Return: str,
			Reads:  []string{"Database"},
		},
		{
			Path:   "db::exec",
			Params: []Param{{Name: "sql", Type: str}},
			Writes: []string{"Database"},
		},
		{
			Path:      "db::escape",
			Params:    []Param{{Name: "s", Type: str}},
			Return:    str,
			Sanitizes: true,
		},

		// proc: external commands
		{
			Path:   "proc::run",
			Params: []Param{{Name: "cmd", Type: str}},
			Return: i64,
			Writes: []string{"Process"},
		},

		// html: markup output
		{
			Path:   "html::emit",
			Params: []Param{{Name: "markup", Type: str}},
			Writes: []string{"Markup"},
		},
		{
			Path:      "html::escape",
			Params:    []Param{{Name: "s", Type: str}},
			Return:    str,
			Sanitizes: true,
		},

		// io: console and external input
		{
			Path:   "io::read_line",
			Return: str,
			Reads:  []string{"Input"},
		},
		{
			Path:   "io::print",
			Params: []Param{{Name: "s", Type: str}},
			Writes: []string{"Console"},
		},

		// math: pure helpers the formula encoder also understands
		{
			Path:   "math::abs",
			Params: []Param{{Name: "x", Type: i64}},
			Return: i64,
		},
		{
			Path:   "math::min",
			Params: []Param{{Name: "a", Type: i64}, {Name: "b", Type: i64}},
			Return: i64,
		},
		{
			Path:   "math::max",
			Params: []Param{{Name: "a", Type: i64}, {Name: "b", Type: i64}},
			Return: i64,
		},

		// str: pure string helpers
		{
			Path:   "str::concat",
			Params: []Param{{Name: "a", Type: str}, {Name: "b", Type: str}},
			Return: str,
		},
		{
			Path:   "str::repeat",
			Params: []Param{{Name: "s", Type: str}, {Name: "n", Type: u64}},
			Return: str,
		},

		// array: construction
		{
			Path:   "array::fill",
			Params: []Param{{Name: "n", Type: u64}, {Name: "value", Type: i64}},
			Return: &types.ArrayType{Elem: i64},
		},
	}
}
