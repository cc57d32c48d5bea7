// Package state defines the guest CPU state block and its fixed layout.
//
// Compiled host code addresses the block directly through displacements
// from its base address, so every offset here is part of the ABI between
// the code generator and already-emitted code and must never change.
package state

import (
	"fmt"

	"tlog.app/go/errors"
)

// Errors.
var (
	ErrOutOfRange = errors.New("index out of range")
	ErrMisaligned = errors.New("misaligned access")
	ErrDisposed   = errors.New("state block disposed")
)

// Architectural slot counts.
const (
	NumIntRegs = 32
	NumVecRegs = 32
	NumFlags   = 32
	NumFPFlags = 32
)

// SP is the integer register index that holds the stack pointer.
const SP = 31

// Flag indexes the integer condition flags. The index matches the bit
// position in NZCV.
type Flag uint8

// Integer condition flags.
const (
	FlagV Flag = 28
	FlagC Flag = 29
	FlagZ Flag = 30
	FlagN Flag = 31
)

func (f Flag) String() string {
	switch f {
	case FlagN:
		return "N"
	case FlagZ:
		return "Z"
	case FlagC:
		return "C"
	case FlagV:
		return "V"
	}
	return fmt.Sprintf("flag%d", uint8(f))
}

// FPFlag indexes floating-point status and control bits, numbered by
// their FPSR bit position.
type FPFlag uint8

// Floating-point flags.
const (
	FPFlagIOC FPFlag = 0  // Invalid operation
	FPFlagDZC FPFlag = 1  // Divide by zero
	FPFlagOFC FPFlag = 2  // Overflow
	FPFlagUFC FPFlag = 3  // Underflow
	FPFlagIXC FPFlag = 4  // Inexact
	FPFlagIDC FPFlag = 7  // Input denormal
	FPFlagQC  FPFlag = 27 // Saturation
	FPFlagV   FPFlag = 28
	FPFlagC   FPFlag = 29
	FPFlagZ   FPFlag = 30
	FPFlagN   FPFlag = 31
)

// LocationKind names a field of the state block.
type LocationKind uint8

// Fields in layout order.
const (
	IntReg LocationKind = iota
	VecReg
	IntFlag
	FPFlagSlot
	Counter
	CallAddress

	numKinds
)

func (k LocationKind) String() string {
	return layout[k].name
}

// Location names one slot of the state block.
type Location struct {
	Kind  LocationKind
	Index int
}

// Size returns the slot width in bytes.
func (l Location) Size() int {
	if l.Kind >= numKinds {
		return 0
	}
	return layout[l.Kind].slot
}

func (l Location) String() string {
	if l.Kind >= numKinds {
		return fmt.Sprintf("location(%d)", l.Kind)
	}
	if layout[l.Kind].count == 1 {
		return l.Kind.String()
	}
	return fmt.Sprintf("%v[%d]", l.Kind, l.Index)
}

type field struct {
	name   string
	count  int
	slot   int
	align  int
	offset int
}

// Size is the total size of the block in bytes.
const Size = 1040

// layout is the static description of the block. Offsets are filled in
// by computeLayout.
var layout, layoutSize = computeLayout([numKinds]field{
	IntReg:      {name: "int_regs", count: NumIntRegs, slot: 8, align: 8},
	VecReg:      {name: "vec_regs", count: NumVecRegs, slot: 16, align: 16},
	IntFlag:     {name: "flags", count: NumFlags, slot: 4, align: 4},
	FPFlagSlot:  {name: "fp_flags", count: NumFPFlags, slot: 4, align: 4},
	Counter:     {name: "counter", count: 1, slot: 4, align: 4},
	CallAddress: {name: "call_address", count: 1, slot: 8, align: 8},
})

func init() {
	if layoutSize != Size {
		panic(fmt.Sprintf("state layout is %d bytes, want %d", layoutSize, Size))
	}
}

func computeLayout(fields [numKinds]field) ([numKinds]field, int) {
	off := 0
	for i := range fields {
		f := &fields[i]
		off = alignUp(off, f.align)
		f.offset = off
		off += f.count * f.slot
	}
	return fields, alignUp(off, 16)
}

func alignUp(x, a int) int {
	return (x + a - 1) / a * a
}

// OffsetOf returns the byte offset of a slot from the block base.
func OffsetOf(l Location) (int, error) {
	if l.Kind >= numKinds {
		return 0, errors.Wrap(ErrOutOfRange, "location kind %d", l.Kind)
	}

	f := layout[l.Kind]
	if l.Index < 0 || l.Index >= f.count {
		return 0, errors.Wrap(ErrOutOfRange, "%s index %d", f.name, l.Index)
	}

	return f.offset + l.Index*f.slot, nil
}

func mustOffset(l Location) int {
	off, err := OffsetOf(l)
	if err != nil {
		panic(err)
	}
	return off
}

// IntRegOffset returns the offset of integer register i (31 = SP).
func IntRegOffset(i int) (int, error) {
	return OffsetOf(Location{IntReg, i})
}

// VecRegOffset returns the offset of vector register i. The register
// occupies two consecutive 64-bit slots, low lane first.
func VecRegOffset(i int) (int, error) {
	return OffsetOf(Location{VecReg, i})
}

// FlagOffset returns the offset of an integer condition flag.
func FlagOffset(f Flag) (int, error) {
	return OffsetOf(Location{IntFlag, int(f)})
}

// FPFlagOffset returns the offset of a floating-point flag.
func FPFlagOffset(f FPFlag) (int, error) {
	return OffsetOf(Location{FPFlagSlot, int(f)})
}

// CounterOffset returns the offset of the 32-bit step counter.
func CounterOffset() int {
	return mustOffset(Location{Kind: Counter})
}

// CallAddressOffset returns the offset of the pending-call address.
func CallAddressOffset() int {
	return mustOffset(Location{Kind: CallAddress})
}

// Locations enumerates every slot of the block in layout order.
func Locations() []Location {
	var locs []Location
	for k := LocationKind(0); k < numKinds; k++ {
		for i := 0; i < layout[k].count; i++ {
			locs = append(locs, Location{Kind: k, Index: i})
		}
	}
	return locs
}
