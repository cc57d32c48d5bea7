package ir

import (
	"fmt"
	"strings"
)

// Opcode identifies an IR operation.
type Opcode uint8

// IR opcodes.
const (
	OpInvalid Opcode = iota

	OpCopy
	OpAdd
	OpSubtract
	OpMultiply
	OpDivide
	OpDivideUI
	OpBitwiseAnd
	OpBitwiseOr
	OpBitwiseExclusiveOr
	OpBitwiseNot
	OpNegate
	OpShiftLeft
	OpShiftRightUI
	OpShiftRightSI
	OpRotateRight
	OpCountLeadingZeros
	OpByteSwap

	OpCompareEqual
	OpCompareNotEqual
	OpCompareLess
	OpCompareLessOrEqual
	OpCompareGreater
	OpCompareGreaterOrEqual
	OpCompareLessUI
	OpCompareLessOrEqualUI
	OpCompareGreaterUI
	OpCompareGreaterOrEqualUI
	OpConditionalSelect

	OpZeroExtend8
	OpZeroExtend16
	OpZeroExtend32
	OpSignExtend8
	OpSignExtend16
	OpSignExtend32
	OpTruncate

	OpLoad
	OpLoad8
	OpLoad16
	OpStore
	OpStore8
	OpStore16
	OpLoadArgument

	OpCall
	OpBranch
	OpBranchIf
	OpReturn
	OpCheckCounter
	OpIntrinsic

	opcodeCount
)

var opcodeNames = [opcodeCount]string{
	OpInvalid:                 "invalid",
	OpCopy:                    "copy",
	OpAdd:                     "add",
	OpSubtract:                "sub",
	OpMultiply:                "mul",
	OpDivide:                  "div",
	OpDivideUI:                "div.ui",
	OpBitwiseAnd:              "and",
	OpBitwiseOr:               "or",
	OpBitwiseExclusiveOr:      "xor",
	OpBitwiseNot:              "not",
	OpNegate:                  "neg",
	OpShiftLeft:               "shl",
	OpShiftRightUI:            "shr.ui",
	OpShiftRightSI:            "shr.si",
	OpRotateRight:             "ror",
	OpCountLeadingZeros:       "clz",
	OpByteSwap:                "bswap",
	OpCompareEqual:            "cmp.eq",
	OpCompareNotEqual:         "cmp.ne",
	OpCompareLess:             "cmp.lt",
	OpCompareLessOrEqual:      "cmp.le",
	OpCompareGreater:          "cmp.gt",
	OpCompareGreaterOrEqual:   "cmp.ge",
	OpCompareLessUI:           "cmp.lt.ui",
	OpCompareLessOrEqualUI:    "cmp.le.ui",
	OpCompareGreaterUI:        "cmp.gt.ui",
	OpCompareGreaterOrEqualUI: "cmp.ge.ui",
	OpConditionalSelect:       "select",
	OpZeroExtend8:             "zext8",
	OpZeroExtend16:            "zext16",
	OpZeroExtend32:            "zext32",
	OpSignExtend8:             "sext8",
	OpSignExtend16:            "sext16",
	OpSignExtend32:            "sext32",
	OpTruncate:                "trunc",
	OpLoad:                    "load",
	OpLoad8:                   "load8",
	OpLoad16:                  "load16",
	OpStore:                   "store",
	OpStore8:                  "store8",
	OpStore16:                 "store16",
	OpLoadArgument:            "arg",
	OpCall:                    "call",
	OpBranch:                  "br",
	OpBranchIf:                "br.if",
	OpReturn:                  "ret",
	OpCheckCounter:            "check.counter",
	OpIntrinsic:               "intrinsic",
}

func (op Opcode) String() string {
	if op < opcodeCount {
		return opcodeNames[op]
	}
	return fmt.Sprintf("opcode(%d)", uint8(op))
}

// IsTerminator reports whether op transfers control out of its block.
func (op Opcode) IsTerminator() bool {
	return op == OpBranch || op == OpBranchIf || op == OpReturn
}

// IsCompare reports whether op is one of the Compare* opcodes.
func (op Opcode) IsCompare() bool {
	return op >= OpCompareEqual && op <= OpCompareGreaterOrEqualUI
}

// Operation is one IR instruction.
//
// Conventions:
//   - Compare* produce an I32 0/1 result.
//   - ConditionalSelect takes (condition, ifTrue, ifFalse).
//   - Load* take a memory source; Store* take (memory, value).
//   - BranchIf takes a condition and jumps to the block's Branch target
//     when it is non-zero.
//   - Return optionally takes a 64-bit value.
//   - CheckCounter takes the counter memory slot and the value returned
//     when the counter is exhausted.
type Operation struct {
	Opcode    Opcode
	Intrinsic Intrinsic
	Dest      *Operand
	Sources   []Operand
}

// NewOperation builds an operation. dest may be nil.
func NewOperation(op Opcode, dest *Operand, sources ...Operand) *Operation {
	o := &Operation{Opcode: op, Sources: sources}
	if dest != nil {
		d := *dest
		o.Dest = &d
	}
	return o
}

// NewIntrinsic builds an intrinsic operation.
func NewIntrinsic(id Intrinsic, dest Operand, sources ...Operand) *Operation {
	o := NewOperation(OpIntrinsic, &dest, sources...)
	o.Intrinsic = id
	return o
}

// HasDest reports whether the operation produces a value.
func (o *Operation) HasDest() bool {
	return o.Dest != nil
}

// SetDest replaces the destination operand.
func (o *Operation) SetDest(d Operand) {
	o.Dest = &d
}

// SetSource replaces source i.
func (o *Operation) SetSource(i int, s Operand) {
	o.Sources[i] = s
}

func (o *Operation) String() string {
	var sb strings.Builder

	if o.Dest != nil {
		fmt.Fprintf(&sb, "%v = ", *o.Dest)
	}

	sb.WriteString(o.Opcode.String())
	if o.Opcode == OpIntrinsic {
		fmt.Fprintf(&sb, " %v", o.Intrinsic)
	}

	for i, s := range o.Sources {
		if i == 0 {
			sb.WriteString(" ")
		} else {
			sb.WriteString(", ")
		}
		sb.WriteString(s.String())
	}

	return sb.String()
}
