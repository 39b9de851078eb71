package contract

import (
	"oath/internal/types"
)

// Binding is one scope entry: the term standing for a name's value,
// plus companion terms for array length and null state where the type
// calls for them. String values are modeled as an opaque integer
// identity, so equality and length are expressible while contents
// stay out of scope.
type Binding struct {
	Val  Term
	Len  Term
	Null Term
	Type types.Type
}

// Scope maps source names to bindings during encoding. The symbolic
// body walk rebinds names as assignments are processed; a contract is
// encoded against the scope at the program point it speaks about.
type Scope struct {
	bindings map[string]Binding
}

func NewScope() *Scope {
	return &Scope{bindings: make(map[string]Binding)}
}

// NewBinding builds the solver variables standing for a name of the
// given type, with ".len" and ".null" companions as the type requires.
// The dot keeps companions out of the source namespace: Oath
// identifiers cannot contain one, SMT-LIB symbols can.
func NewBinding(name string, ty types.Type) Binding {
	b := Binding{Type: ty}
	if types.IsNullable(ty) {
		b.Null = NewVar(name+".null", SortBool)
	}
	switch types.Underlying(ty).(type) {
	case *types.ArrayType:
		b.Val = NewVar(name, SortIntArray)
		b.Len = NewVar(name+".len", SortInt)
	case *types.StringType:
		b.Val = NewVar(name, SortInt)
		b.Len = NewVar(name+".len", SortInt)
	case *types.BoolType:
		b.Val = NewVar(name, SortBool)
	default:
		b.Val = NewVar(name, SortInt)
	}
	return b
}

// BindVar introduces name as a fresh solver variable of the given type.
func (s *Scope) BindVar(name string, ty types.Type) Binding {
	b := NewBinding(name, ty)
	s.bindings[name] = b
	return b
}

// Bind installs an explicit binding, replacing any previous one.
func (s *Scope) Bind(name string, b Binding) {
	s.bindings[name] = b
}

// Lookup returns the binding for name.
func (s *Scope) Lookup(name string) (Binding, bool) {
	b, ok := s.bindings[name]
	return b, ok
}

// Unbind removes name. Callers save and restore shadowed bindings
// themselves when a block scope ends.
func (s *Scope) Unbind(name string) {
	delete(s.bindings, name)
}

// Names returns the bound names in no particular order.
func (s *Scope) Names() []string {
	out := make([]string, 0, len(s.bindings))
	for name := range s.bindings {
		out = append(out, name)
	}
	return out
}

// Clone returns an independent copy for a diverging control-flow path.
func (s *Scope) Clone() *Scope {
	c := NewScope()
	for name, b := range s.bindings {
		c.bindings[name] = b
	}
	return c
}
