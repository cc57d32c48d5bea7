// Package insts provides ARM64 instruction definitions.
package insts

import (
	"fmt"
	"strings"

	"tlog.app/go/errors"
)

// Op represents an ARM64 opcode.
type Op uint16

// ARM64 opcodes.
const (
	OpUnknown Op = iota

	// Data processing.
	OpADD
	OpADC
	OpSUB
	OpSBC
	OpAND
	OpBIC
	OpORR
	OpORN
	OpEOR
	OpEON
	OpMOVZ
	OpMOVN
	OpMOVK
	OpMUL
	OpMADD
	OpMSUB
	OpSDIV
	OpUDIV
	OpLSLV
	OpLSRV
	OpASRV
	OpRORV
	OpCLZ
	OpCLS
	OpRBIT
	OpREV16
	OpREV32
	OpREV
	OpEXTR
	OpCSEL
	OpCSINC
	OpNOP

	// Branches.
	OpB
	OpBL
	OpBCond
	OpBR
	OpBLR
	OpRET
	OpCBZ
	OpCBNZ

	// AdvSIMD integer.
	OpVADD
	OpVSUB
	OpVMUL
	OpVAND
	OpVBIC
	OpVORR
	OpVEOR
	OpVNEG
	OpVABS
	OpVNOT
	OpVCNT

	// AdvSIMD floating point.
	OpFADD
	OpFSUB
	OpFMUL
	OpFDIV
	OpFMAX
	OpFMIN
	OpFNEG
	OpFABS
	OpFSQRT

	opCount
)

var opNames = [opCount]string{
	OpUnknown: "UNKNOWN",
	OpADD:     "ADD",
	OpADC:     "ADC",
	OpSUB:     "SUB",
	OpSBC:     "SBC",
	OpAND:     "AND",
	OpBIC:     "BIC",
	OpORR:     "ORR",
	OpORN:     "ORN",
	OpEOR:     "EOR",
	OpEON:     "EON",
	OpMOVZ:    "MOVZ",
	OpMOVN:    "MOVN",
	OpMOVK:    "MOVK",
	OpMUL:     "MUL",
	OpMADD:    "MADD",
	OpMSUB:    "MSUB",
	OpSDIV:    "SDIV",
	OpUDIV:    "UDIV",
	OpLSLV:    "LSLV",
	OpLSRV:    "LSRV",
	OpASRV:    "ASRV",
	OpRORV:    "RORV",
	OpCLZ:     "CLZ",
	OpCLS:     "CLS",
	OpRBIT:    "RBIT",
	OpREV16:   "REV16",
	OpREV32:   "REV32",
	OpREV:     "REV",
	OpEXTR:    "EXTR",
	OpCSEL:    "CSEL",
	OpCSINC:   "CSINC",
	OpNOP:     "NOP",
	OpB:       "B",
	OpBL:      "BL",
	OpBCond:   "B.cond",
	OpBR:      "BR",
	OpBLR:     "BLR",
	OpRET:     "RET",
	OpCBZ:     "CBZ",
	OpCBNZ:    "CBNZ",
	OpVADD:    "VADD",
	OpVSUB:    "VSUB",
	OpVMUL:    "VMUL",
	OpVAND:    "VAND",
	OpVBIC:    "VBIC",
	OpVORR:    "VORR",
	OpVEOR:    "VEOR",
	OpVNEG:    "VNEG",
	OpVABS:    "VABS",
	OpVNOT:    "VNOT",
	OpVCNT:    "VCNT",
	OpFADD:    "FADD",
	OpFSUB:    "FSUB",
	OpFMUL:    "FMUL",
	OpFDIV:    "FDIV",
	OpFMAX:    "FMAX",
	OpFMIN:    "FMIN",
	OpFNEG:    "FNEG",
	OpFABS:    "FABS",
	OpFSQRT:   "FSQRT",
}

// String returns the mnemonic of the opcode.
func (op Op) String() string {
	if op < opCount && opNames[op] != "" {
		return opNames[op]
	}
	return fmt.Sprintf("Op(%d)", uint16(op))
}

// MarshalText implements encoding.TextMarshaler.
func (op Op) MarshalText() ([]byte, error) {
	return []byte(op.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Mnemonics are
// matched case-insensitively.
func (op *Op) UnmarshalText(text []byte) error {
	name := strings.ToUpper(string(text))
	for i, n := range opNames {
		if strings.ToUpper(n) == name {
			*op = Op(i)
			return nil
		}
	}
	return errors.New("unknown opcode %q", text)
}

// Format represents an instruction encoding format.
type Format uint8

// Instruction formats.
const (
	FormatUnknown Format = iota
	FormatImm            // Second operand is an immediate
	FormatReg            // Second operand is a (shifted) register
	FormatBranch         // PC-relative or register branch
)

// Cond represents an ARM64 condition code.
type Cond uint8

// ARM64 condition codes.
const (
	CondEQ Cond = 0b0000 // Equal (Z == 1)
	CondNE Cond = 0b0001 // Not Equal (Z == 0)
	CondCS Cond = 0b0010 // Carry Set / Unsigned higher or same (C == 1)
	CondCC Cond = 0b0011 // Carry Clear / Unsigned lower (C == 0)
	CondMI Cond = 0b0100 // Minus / Negative (N == 1)
	CondPL Cond = 0b0101 // Plus / Positive or zero (N == 0)
	CondVS Cond = 0b0110 // Overflow (V == 1)
	CondVC Cond = 0b0111 // No overflow (V == 0)
	CondHI Cond = 0b1000 // Unsigned higher (C == 1 && Z == 0)
	CondLS Cond = 0b1001 // Unsigned lower or same (C == 0 || Z == 1)
	CondGE Cond = 0b1010 // Signed greater than or equal (N == V)
	CondLT Cond = 0b1011 // Signed less than (N != V)
	CondGT Cond = 0b1100 // Signed greater than (Z == 0 && N == V)
	CondLE Cond = 0b1101 // Signed less than or equal (Z == 1 || N != V)
	CondAL Cond = 0b1110 // Always (unconditional)
	CondNV Cond = 0b1111 // Always (unconditional, reserved)
)

var condNames = [16]string{
	"EQ", "NE", "CS", "CC", "MI", "PL", "VS", "VC",
	"HI", "LS", "GE", "LT", "GT", "LE", "AL", "NV",
}

func (c Cond) String() string {
	return condNames[c&0xF]
}

// Invert returns the opposite condition. AL and NV have no inverse and
// are returned unchanged.
func (c Cond) Invert() Cond {
	if c >= CondAL {
		return c
	}
	return c ^ 1
}

// MarshalText implements encoding.TextMarshaler.
func (c Cond) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Cond) UnmarshalText(text []byte) error {
	name := strings.ToUpper(string(text))
	for i, n := range condNames {
		if n == name {
			*c = Cond(i)
			return nil
		}
	}
	return errors.New("unknown condition %q", text)
}

// ShiftType represents a shift type for register operands.
type ShiftType uint8

// Shift types.
const (
	ShiftLSL ShiftType = 0b00 // Logical shift left
	ShiftLSR ShiftType = 0b01 // Logical shift right
	ShiftASR ShiftType = 0b10 // Arithmetic shift right
	ShiftROR ShiftType = 0b11 // Rotate right
)

// Arrangement is the SIMD vector arrangement specifier.
type Arrangement uint8

// SIMD arrangement specifiers.
const (
	Arr8B  Arrangement = iota // 8 bytes (64-bit, D register)
	Arr16B                    // 16 bytes (128-bit, Q register)
	Arr4H                     // 4 halfwords (64-bit)
	Arr8H                     // 8 halfwords (128-bit)
	Arr2S                     // 2 words or singles (64-bit)
	Arr4S                     // 4 words or singles (128-bit)
	Arr1D                     // 1 doubleword (64-bit)
	Arr2D                     // 2 doublewords or doubles (128-bit)
)

var arrangementNames = [...]string{"8B", "16B", "4H", "8H", "2S", "4S", "1D", "2D"}

func (a Arrangement) String() string {
	if int(a) < len(arrangementNames) {
		return arrangementNames[a]
	}
	return fmt.Sprintf("Arrangement(%d)", uint8(a))
}

// ElementSize returns the lane width in bits.
func (a Arrangement) ElementSize() int {
	return 8 << (a >> 1)
}

// Is128 reports whether the arrangement covers a full Q register.
func (a Arrangement) Is128() bool {
	return a&1 == 1
}

// MarshalText implements encoding.TextMarshaler.
func (a Arrangement) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Arrangement) UnmarshalText(text []byte) error {
	name := strings.ToUpper(string(text))
	for i, n := range arrangementNames {
		if n == name {
			*a = Arrangement(i)
			return nil
		}
	}
	return errors.New("unknown arrangement %q", text)
}

// ZeroReg is the register index that denotes XZR/WZR, or SP for the
// forms that accept the stack pointer.
const ZeroReg = 31

// LinkReg is the register BL and BLR write the return address to.
const LinkReg = 30

// Instruction represents a decoded ARM64 instruction.
type Instruction struct {
	Address uint64 `json:"address"` // Guest address of the instruction
	Op      Op     `json:"op"`      // Operation code
	Format  Format `json:"format"`  // Encoding format

	// Common fields
	Is64Bit  bool  `json:"is64,omitempty"`     // true for X registers, false for W registers
	SetFlags bool  `json:"setFlags,omitempty"` // true if instruction sets condition flags (S suffix)
	Rd       uint8 `json:"rd"`                 // Destination register
	Rn       uint8 `json:"rn"`                 // First source register
	Rm       uint8 `json:"rm"`                 // Second source register (for register format)
	Ra       uint8 `json:"ra,omitempty"`       // Addend register (MADD/MSUB)

	// Immediate operand
	Imm   uint64 `json:"imm,omitempty"`   // Immediate value
	Shift uint8  `json:"shift,omitempty"` // Left shift applied to the immediate

	// Branch fields
	BranchOffset int64 `json:"branchOffset,omitempty"` // Signed branch offset in bytes
	Cond         Cond  `json:"cond,omitempty"`         // Condition code for B.cond, CSEL, CSINC

	// Shift for register operand
	ShiftType   ShiftType `json:"shiftType,omitempty"`   // Type of shift applied to Rm
	ShiftAmount uint8     `json:"shiftAmount,omitempty"` // Shift amount for Rm

	// SIMD
	Arrangement Arrangement `json:"arrangement,omitempty"`
}

// Target returns the destination of a PC-relative branch.
func (i *Instruction) Target() uint64 {
	return uint64(int64(i.Address) + i.BranchOffset)
}

// IsBranch reports whether the instruction ends a basic block.
func (i *Instruction) IsBranch() bool {
	switch i.Op {
	case OpB, OpBL, OpBCond, OpBR, OpBLR, OpRET, OpCBZ, OpCBNZ:
		return true
	}
	return false
}

// HasDirectTarget reports whether the branch target is known statically.
func (i *Instruction) HasDirectTarget() bool {
	switch i.Op {
	case OpB, OpBL, OpBCond, OpCBZ, OpCBNZ:
		return true
	}
	return false
}

// String renders the instruction in a compact assembly-like form.
func (i *Instruction) String() string {
	prefix := "W"
	if i.Is64Bit {
		prefix = "X"
	}
	name := i.Op.String()
	if i.SetFlags {
		name += "S"
	}

	switch {
	case i.Op == OpBCond:
		return fmt.Sprintf("B.%s %#x", i.Cond, i.Target())
	case i.Op == OpB || i.Op == OpBL:
		return fmt.Sprintf("%s %#x", name, i.Target())
	case i.Op == OpCBZ || i.Op == OpCBNZ:
		return fmt.Sprintf("%s %s%d, %#x", name, prefix, i.Rn, i.Target())
	case i.Format == FormatBranch:
		return fmt.Sprintf("%s X%d", name, i.Rn)
	case i.Op >= OpVADD:
		return fmt.Sprintf("%s V%d.%s, V%d.%s, V%d.%s", name,
			i.Rd, i.Arrangement, i.Rn, i.Arrangement, i.Rm, i.Arrangement)
	case i.Format == FormatImm:
		return fmt.Sprintf("%s %s%d, %s%d, #%d", name, prefix, i.Rd, prefix, i.Rn, i.Imm<<i.Shift)
	default:
		return fmt.Sprintf("%s %s%d, %s%d, %s%d", name, prefix, i.Rd, prefix, i.Rn, prefix, i.Rm)
	}
}
