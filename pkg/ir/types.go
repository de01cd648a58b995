// Package ir defines the architecture-neutral tree IR consumed by
// instruction selection.
package ir

import (
	"fmt"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// PrimType is the primitive type of an IR value.
type PrimType int

const (
	Void PrimType = iota
	U1
	I8
	I16
	I32
	I64
	U8
	U16
	U32
	U64
	F32
	F64
	Ptr // pointer, lowered to A32 or A64
	Ref // managed reference, lowered to A32 or A64
	A32
	A64
	Agg // aggregate passed by value
)

var primNames = [...]string{
	Void: "void", U1: "u1",
	I8: "i8", I16: "i16", I32: "i32", I64: "i64",
	U8: "u8", U16: "u16", U32: "u32", U64: "u64",
	F32: "f32", F64: "f64",
	Ptr: "ptr", Ref: "ref", A32: "a32", A64: "a64",
	Agg: "agg",
}

func (t PrimType) String() string {
	if int(t) < len(primNames) {
		return primNames[t]
	}
	return fmt.Sprintf("prim(%d)", int(t))
}

// ParsePrimType parses a type name as printed by String.
func ParsePrimType(s string) (PrimType, error) {
	for i, n := range primNames {
		if n == s {
			return PrimType(i), nil
		}
	}
	return Void, errors.Errorf("unknown primitive type %q", s)
}

// UnmarshalYAML decodes a type name.
func (t *PrimType) UnmarshalYAML(n *yaml.Node) error {
	p, err := ParsePrimType(n.Value)
	if err != nil {
		return errors.Wrapf(err, "line %d", n.Line)
	}
	*t = p
	return nil
}

// Bits returns the width of the type in bits. Ptr and Ref report 0 until
// lowered; aggregates and void report 0.
func (t PrimType) Bits() int {
	switch t {
	case U1, I8, U8:
		return 8
	case I16, U16:
		return 16
	case I32, U32, F32, A32:
		return 32
	case I64, U64, F64, A64:
		return 64
	}
	return 0
}

// IsInteger reports whether t is held in a general-purpose register.
func (t PrimType) IsInteger() bool {
	switch t {
	case U1, I8, I16, I32, I64, U8, U16, U32, U64, Ptr, Ref, A32, A64:
		return true
	}
	return false
}

// IsFloat reports whether t is a floating-point type.
func (t PrimType) IsFloat() bool { return t == F32 || t == F64 }

// IsSigned reports whether t is a signed integer type.
func (t PrimType) IsSigned() bool {
	switch t {
	case I8, I16, I32, I64:
		return true
	}
	return false
}

// IsUnsigned reports whether t is an unsigned integer or address type.
func (t PrimType) IsUnsigned() bool { return t.IsInteger() && !t.IsSigned() }

// IsAddress reports whether t is a pointer-like type.
func (t PrimType) IsAddress() bool {
	switch t {
	case Ptr, Ref, A32, A64:
		return true
	}
	return false
}

// Lower rewrites Ptr and Ref to the address type of the given pointer width.
func (t PrimType) Lower(pointerBits int) PrimType {
	if t == Ptr || t == Ref {
		if pointerBits == 32 {
			return A32
		}
		return A64
	}
	return t
}

// Promoted returns the register type used to compute values of type t:
// sub-word integers widen to 32 bits keeping signedness.
func (t PrimType) Promoted() PrimType {
	switch t {
	case U1, U8, U16:
		return U32
	case I8, I16:
		return I32
	}
	return t
}

// Signed returns the signed integer type of the same width.
func (t PrimType) Signed() PrimType {
	switch t.Bits() {
	case 8:
		return I8
	case 16:
		return I16
	case 32:
		return I32
	}
	return I64
}

// Unsigned returns the unsigned integer type of the same width.
func (t PrimType) Unsigned() PrimType {
	switch t.Bits() {
	case 8:
		return U8
	case 16:
		return U16
	case 32:
		return U32
	}
	return U64
}
