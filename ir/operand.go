package ir

import (
	"fmt"

	"golang.org/x/exp/constraints"
)

// Kind says where an operand's value lives.
type Kind uint8

// Operand kinds.
const (
	KindNone Kind = iota
	KindVirtual
	KindRegister
	KindConstant
	KindMemory
)

func (k Kind) String() string {
	switch k {
	case KindVirtual:
		return "virtual"
	case KindRegister:
		return "register"
	case KindConstant:
		return "constant"
	case KindMemory:
		return "memory"
	}
	return "none"
}

// RegisterType is the host register file a physical register belongs to.
type RegisterType uint8

// Register files.
const (
	Integer RegisterType = iota
	Vector
)

// Operand is one typed value flowing through the IR. Its type is fixed
// at creation.
type Operand struct {
	kind  Kind
	typ   Type
	rtype RegisterType

	// value holds the constant (low lane for vectors), the virtual id or
	// the physical register index.
	value uint64
	hi    uint64

	base *Operand
	disp int32
}

// Const returns an integer constant of type t, truncated to its width.
func Const[T constraints.Integer](t Type, v T) Operand {
	return Operand{kind: KindConstant, typ: t, value: Fit(t, v)}
}

// Const32 returns a 32-bit constant.
func Const32(v uint32) Operand { return Const(I32, v) }

// Const64 returns a 64-bit constant.
func Const64(v uint64) Operand { return Const(I64, v) }

// ConstV128 returns a vector constant.
func ConstV128(v V128) Operand {
	return Operand{kind: KindConstant, typ: Vec128, value: v.lo, hi: v.hi}
}

// Virtual returns a virtual register operand.
func Virtual(id int, t Type) Operand {
	return Operand{kind: KindVirtual, typ: t, value: uint64(id), rtype: registerTypeOf(t)}
}

// Register returns a physical register operand. Only the register
// allocator creates these.
func Register(index int, rt RegisterType, t Type) Operand {
	return Operand{kind: KindRegister, typ: t, value: uint64(index), rtype: rt}
}

// Memory returns a reference to t-typed memory at base+disp. The base
// must be a 64-bit virtual or physical register.
func Memory(t Type, base Operand, disp int32) Operand {
	b := base
	return Operand{kind: KindMemory, typ: t, base: &b, disp: disp}
}

func registerTypeOf(t Type) RegisterType {
	if t == Vec128 {
		return Vector
	}
	return Integer
}

// Kind returns the operand kind.
func (o Operand) Kind() Kind { return o.kind }

// Type returns the machine type of the value.
func (o Operand) Type() Type { return o.typ }

// Value returns the constant value. For vector constants it is lane 0.
func (o Operand) Value() uint64 { return o.value }

// V128 returns a vector constant.
func (o Operand) V128() V128 { return V128{lo: o.value, hi: o.hi} }

// Number returns the virtual id or physical register index.
func (o Operand) Number() int { return int(o.value) }

// RegisterType returns the register file the operand lives in.
func (o Operand) RegisterType() RegisterType { return o.rtype }

// Base returns the base register of a memory operand.
func (o Operand) Base() Operand {
	if o.base == nil {
		return Operand{}
	}
	return *o.base
}

// Displacement returns the byte offset of a memory operand.
func (o Operand) Displacement() int32 { return o.disp }

// IsZero reports whether o is a constant with every bit clear.
func (o Operand) IsZero() bool {
	return o.kind == KindConstant && o.value == 0 && o.hi == 0
}

// IsVirtual reports whether o is a virtual register.
func (o Operand) IsVirtual() bool { return o.kind == KindVirtual }

// IsRegister reports whether o is a physical register.
func (o Operand) IsRegister() bool { return o.kind == KindRegister }

// IsConstant reports whether o is a constant.
func (o Operand) IsConstant() bool { return o.kind == KindConstant }

// IsMemory reports whether o is a memory operand.
func (o Operand) IsMemory() bool { return o.kind == KindMemory }

// SameLocation reports whether o and p name the same virtual or physical
// register.
func (o Operand) SameLocation(p Operand) bool {
	if o.kind != p.kind || o.value != p.value {
		return false
	}
	switch o.kind {
	case KindVirtual:
		return true
	case KindRegister:
		return o.rtype == p.rtype
	}
	return false
}

func (o Operand) String() string {
	switch o.kind {
	case KindVirtual:
		return fmt.Sprintf("v%d:%v", o.value, o.typ)
	case KindRegister:
		switch {
		case o.rtype == Vector:
			return fmt.Sprintf("q%d", o.value)
		case o.typ == I64:
			return fmt.Sprintf("x%d", o.value)
		default:
			return fmt.Sprintf("w%d:%v", o.value, o.typ)
		}
	case KindConstant:
		if o.typ == Vec128 {
			return o.V128().String()
		}
		return fmt.Sprintf("#%#x:%v", o.value, o.typ)
	case KindMemory:
		return fmt.Sprintf("[%v%+d]:%v", o.Base(), o.disp, o.typ)
	}
	return "_"
}
