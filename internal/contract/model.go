package contract

import (
	"fmt"
	"math/big"
	"sort"
	"strings"
)

// Value is one solver-assigned model value.
type Value interface {
	isValue()
	String() string
}

// IntVal is an integer model value.
type IntVal struct {
	Val *big.Int
}

func IntValue(v int64) *IntVal { return &IntVal{Val: big.NewInt(v)} }

func (*IntVal) isValue()         {}
func (v *IntVal) String() string { return v.Val.String() }

// BoolVal is a boolean model value.
type BoolVal struct {
	Val bool
}

func (*BoolVal) isValue() {}
func (v *BoolVal) String() string {
	if v.Val {
		return "true"
	}
	return "false"
}

// ArrayVal is an integer array model value: a default element plus
// point overrides, matching how solvers report array models.
type ArrayVal struct {
	Default *big.Int
	Elems   map[int64]*big.Int
}

func (*ArrayVal) isValue() {}
func (v *ArrayVal) String() string {
	keys := make([]int64, 0, len(v.Elems))
	for k := range v.Elems {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	var sb strings.Builder
	sb.WriteString("[")
	for i, k := range keys {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%d: %s", k, v.Elems[k])
	}
	if v.Default != nil && v.Default.Sign() != 0 {
		if len(keys) > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "else: %s", v.Default)
	}
	sb.WriteString("]")
	return sb.String()
}

// Model maps variable names to solver-assigned values. Variables the
// solver left out are unconstrained and default to zero values during
// evaluation.
type Model map[string]Value

func (m Model) String() string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = name + " = " + m[name].String()
	}
	return strings.Join(parts, ", ")
}
