package types

import (
	"fmt"
	"math/big"
)

// Type is the static type of an Oath expression or declaration.
// Types are immutable; the shared singletons below should be used
// for the primitive types so pointer comparison works in the common case,
// but Equal is the authoritative comparison.
type Type interface {
	String() string
	Equal(other Type) bool
}

// IntType is a bounded integer type such as U32 or I64.
type IntType struct {
	Bits   int
	Signed bool
}

// BoolType is the boolean type.
type BoolType struct{}

// StringType is the immutable string type.
type StringType struct{}

// ArrayType is a dynamically sized array with a typed element.
type ArrayType struct {
	Elem Type
}

// NullableType wraps a type that may also hold null.
type NullableType struct {
	Inner Type
}

// UnknownType stands in for a type the checker could not determine.
// Analyses treat it conservatively and never report against it.
type UnknownType struct{}

// Shared singletons for the primitive types.
var (
	U8  = &IntType{Bits: 8}
	U16 = &IntType{Bits: 16}
	U32 = &IntType{Bits: 32}
	U64 = &IntType{Bits: 64}
	I8  = &IntType{Bits: 8, Signed: true}
	I16 = &IntType{Bits: 16, Signed: true}
	I32 = &IntType{Bits: 32, Signed: true}
	I64 = &IntType{Bits: 64, Signed: true}

	Bool    = &BoolType{}
	String  = &StringType{}
	Unknown = &UnknownType{}
)

// builtinsByName maps surface type names to their singleton.
var builtinsByName = map[string]Type{
	"U8": U8, "U16": U16, "U32": U32, "U64": U64,
	"I8": I8, "I16": I16, "I32": I32, "I64": I64,
	"Bool":   Bool,
	"String": String,
}

// Lookup resolves a builtin type name. Array and nullable types are
// constructed by the caller from their components.
func Lookup(name string) (Type, bool) {
	t, ok := builtinsByName[name]
	return t, ok
}

// IsBuiltinName reports whether name is a primitive type name.
func IsBuiltinName(name string) bool {
	_, ok := builtinsByName[name]
	return ok
}

func (t *IntType) String() string {
	if t.Signed {
		return fmt.Sprintf("I%d", t.Bits)
	}
	return fmt.Sprintf("U%d", t.Bits)
}

func (t *BoolType) String() string     { return "Bool" }
func (t *StringType) String() string   { return "String" }
func (t *ArrayType) String() string    { return fmt.Sprintf("Array<%s>", t.Elem) }
func (t *NullableType) String() string { return t.Inner.String() + "?" }
func (t *UnknownType) String() string  { return "<unknown>" }

func (t *IntType) Equal(other Type) bool {
	o, ok := other.(*IntType)
	return ok && o.Bits == t.Bits && o.Signed == t.Signed
}

func (t *BoolType) Equal(other Type) bool {
	_, ok := other.(*BoolType)
	return ok
}

func (t *StringType) Equal(other Type) bool {
	_, ok := other.(*StringType)
	return ok
}

func (t *ArrayType) Equal(other Type) bool {
	o, ok := other.(*ArrayType)
	return ok && t.Elem.Equal(o.Elem)
}

func (t *NullableType) Equal(other Type) bool {
	o, ok := other.(*NullableType)
	return ok && t.Inner.Equal(o.Inner)
}

func (t *UnknownType) Equal(other Type) bool {
	_, ok := other.(*UnknownType)
	return ok
}

// MinValue returns the smallest representable value of the type.
func (t *IntType) MinValue() *big.Int {
	if !t.Signed {
		return big.NewInt(0)
	}
	// -2^(bits-1)
	min := new(big.Int).Lsh(big.NewInt(1), uint(t.Bits-1))
	return min.Neg(min)
}

// MaxValue returns the largest representable value of the type.
func (t *IntType) MaxValue() *big.Int {
	shift := uint(t.Bits)
	if t.Signed {
		shift = uint(t.Bits - 1)
	}
	max := new(big.Int).Lsh(big.NewInt(1), shift)
	return max.Sub(max, big.NewInt(1))
}

// Fits reports whether v is representable in the type's range.
func (t *IntType) Fits(v *big.Int) bool {
	return v.Cmp(t.MinValue()) >= 0 && v.Cmp(t.MaxValue()) <= 0
}

// IsInteger reports whether t is a bounded integer type, unwrapping nullability.
func IsInteger(t Type) bool {
	_, ok := Underlying(t).(*IntType)
	return ok
}

// IsBoolean reports whether t is Bool, unwrapping nullability.
func IsBoolean(t Type) bool {
	_, ok := Underlying(t).(*BoolType)
	return ok
}

// IsArray reports whether t is an array type, unwrapping nullability.
func IsArray(t Type) bool {
	_, ok := Underlying(t).(*ArrayType)
	return ok
}

// IsNullable reports whether values of t may be null.
func IsNullable(t Type) bool {
	_, ok := t.(*NullableType)
	return ok
}

// IsUnknown reports whether t is the error-recovery type.
func IsUnknown(t Type) bool {
	if t == nil {
		return true
	}
	_, ok := t.(*UnknownType)
	return ok
}

// Underlying strips a nullable wrapper, if any.
func Underlying(t Type) Type {
	if t == nil {
		return Unknown
	}
	if n, ok := t.(*NullableType); ok {
		return n.Inner
	}
	return t
}

// Promote returns the common integer type of two operands, or nil when the
// operands cannot appear in the same arithmetic expression. Mixed signedness
// never promotes; the checker reports it instead.
func Promote(a, b Type) *IntType {
	ai, ok := Underlying(a).(*IntType)
	if !ok {
		return nil
	}
	bi, ok := Underlying(b).(*IntType)
	if !ok {
		return nil
	}
	if ai.Signed != bi.Signed {
		return nil
	}
	if ai.Bits >= bi.Bits {
		return ai
	}
	return bi
}
