package ir

import "fmt"

// Intrinsic identifies a vector operation that maps onto one host
// instruction. The low 12 bits select the base operation; the element
// size and vector width are packed above it.
type Intrinsic uint16

// Variant field layout.
const (
	SizeShift  = 12
	WidthShift = 14

	baseMask  = 1<<SizeShift - 1
	sizeMask  = 0b11 << SizeShift
	widthMask = 0b1 << WidthShift
)

// Size is the element size class of an intrinsic. Floating point bases
// use Size32 for single and Size64 for double precision.
type Size uint8

// Element sizes.
const (
	Size8 Size = iota
	Size16
	Size32
	Size64
)

// Bits returns the element width in bits.
func (s Size) Bits() int { return 8 << s }

// SizeFromBits maps an element width to its size class.
func SizeFromBits(bits int) (Size, bool) {
	switch bits {
	case 8:
		return Size8, true
	case 16:
		return Size16, true
	case 32:
		return Size32, true
	case 64:
		return Size64, true
	}
	return 0, false
}

// Width is the vector width class of an intrinsic.
type Width uint8

// Vector widths.
const (
	Width64 Width = iota
	Width128
)

// Bits returns the vector width in bits.
func (w Width) Bits() int { return 64 << w }

// Intrinsic base operations.
const (
	IntrinsicNone Intrinsic = iota
	VAdd
	VSub
	VMul
	VAnd
	VBic
	VOrr
	VEor
	VNeg
	VAbs
	VNot
	VCnt
	VFAdd
	VFSub
	VFMul
	VFDiv
	VFMax
	VFMin
	VFNeg
	VFAbs
	VFSqrt

	intrinsicCount
)

var intrinsicNames = [intrinsicCount]string{
	IntrinsicNone: "none",
	VAdd:          "vadd",
	VSub:          "vsub",
	VMul:          "vmul",
	VAnd:          "vand",
	VBic:          "vbic",
	VOrr:          "vorr",
	VEor:          "veor",
	VNeg:          "vneg",
	VAbs:          "vabs",
	VNot:          "vnot",
	VCnt:          "vcnt",
	VFAdd:         "vfadd",
	VFSub:         "vfsub",
	VFMul:         "vfmul",
	VFDiv:         "vfdiv",
	VFMax:         "vfmax",
	VFMin:         "vfmin",
	VFNeg:         "vfneg",
	VFAbs:         "vfabs",
	VFSqrt:        "vfsqrt",
}

// Base returns the base operation without variant bits.
func (i Intrinsic) Base() Intrinsic { return i & baseMask }

// Size returns the element size class.
func (i Intrinsic) Size() Size { return Size(i & sizeMask >> SizeShift) }

// Width returns the vector width class.
func (i Intrinsic) Width() Width { return Width(i & widthMask >> WidthShift) }

// With returns the base operation of i with the given variant.
func (i Intrinsic) With(s Size, w Width) Intrinsic {
	return i.Base() | Intrinsic(s)<<SizeShift&sizeMask | Intrinsic(w)<<WidthShift&widthMask
}

// IsFloat reports whether the base operation works on floating point
// elements.
func (i Intrinsic) IsFloat() bool {
	b := i.Base()
	return b >= VFAdd && b <= VFSqrt
}

// IsLogical reports whether the base operation is a bitwise operation
// that ignores element boundaries.
func (i Intrinsic) IsLogical() bool {
	switch i.Base() {
	case VAnd, VBic, VOrr, VEor, VNot:
		return true
	}
	return false
}

// Operands returns the number of vector sources the base operation reads.
func (i Intrinsic) Operands() int {
	switch i.Base() {
	case VNeg, VAbs, VNot, VCnt, VFNeg, VFAbs, VFSqrt:
		return 1
	}
	return 2
}

// Valid reports whether the base operation exists for the packed element
// size and width.
func (i Intrinsic) Valid() bool {
	b := i.Base()
	if b == IntrinsicNone || b >= intrinsicCount {
		return false
	}

	size, width := i.Size(), i.Width()

	switch {
	case i.IsFloat():
		if size != Size32 && size != Size64 {
			return false
		}
		return size != Size64 || width == Width128
	case i.IsLogical(), b == VCnt:
		return size == Size8
	case b == VMul:
		return size != Size64
	default:
		return size != Size64 || width == Width128
	}
}

// Lanes returns the number of elements the operation covers.
func (i Intrinsic) Lanes() int {
	return i.Width().Bits() / i.Size().Bits()
}

func (i Intrinsic) String() string {
	b := i.Base()
	name := fmt.Sprintf("intrinsic(%d)", uint16(b))
	if b < intrinsicCount {
		name = intrinsicNames[b]
	}
	return fmt.Sprintf("%s.%dx%d", name, i.Size().Bits(), i.Width().Bits())
}
