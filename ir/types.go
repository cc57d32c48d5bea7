package ir

import (
	"golang.org/x/exp/constraints"
)

// Type is the machine type of an operand.
type Type uint8

// Machine types.
const (
	Void Type = iota
	I8
	I16
	I32
	I64
	Vec128
)

// Bits returns the width of the type in bits.
func (t Type) Bits() int {
	switch t {
	case I8:
		return 8
	case I16:
		return 16
	case I32:
		return 32
	case I64:
		return 64
	case Vec128:
		return 128
	}
	return 0
}

// Bytes returns the width of the type in bytes.
func (t Type) Bytes() int {
	return t.Bits() / 8
}

// IsInteger reports whether t is one of the scalar integer types.
func (t Type) IsInteger() bool {
	return t >= I8 && t <= I64
}

// Mask returns the all-ones value for an integer type. Vector and void
// types return zero.
func (t Type) Mask() uint64 {
	switch t {
	case I8:
		return 0xFF
	case I16:
		return 0xFFFF
	case I32:
		return 0xFFFF_FFFF
	case I64:
		return ^uint64(0)
	}
	return 0
}

// SignBit returns the most significant bit of an integer type.
func (t Type) SignBit() uint64 {
	if !t.IsInteger() {
		return 0
	}
	return 1 << (t.Bits() - 1)
}

func (t Type) String() string {
	switch t {
	case Void:
		return "void"
	case I8:
		return "i8"
	case I16:
		return "i16"
	case I32:
		return "i32"
	case I64:
		return "i64"
	case Vec128:
		return "v128"
	}
	return "type?"
}

// IntType returns the integer type with the given bit width.
func IntType(bits int) Type {
	switch bits {
	case 8:
		return I8
	case 16:
		return I16
	case 32:
		return I32
	case 64:
		return I64
	}
	return Void
}

// Fit truncates v to the width of t.
func Fit[T constraints.Integer](t Type, v T) uint64 {
	return uint64(v) & t.Mask()
}

// SignExtend interprets the low bits of v as a signed value of type t.
func SignExtend[T constraints.Integer](t Type, v T) int64 {
	shift := 64 - t.Bits()
	if shift <= 0 || shift >= 64 {
		return int64(v)
	}
	return int64(uint64(v)<<shift) >> shift
}

// IsNegative reports whether v has the sign bit of t set.
func IsNegative[T constraints.Integer](t Type, v T) bool {
	return uint64(v)&t.SignBit() != 0
}
