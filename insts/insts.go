// Package insts defines the decoded ARM64 operations handed to the
// translator.
//
// Turning raw instruction words into Instruction values is the job of an
// external decoder. This package only fixes the shape of its output:
//   - Data processing: ADD, ADC, SUB, SBC and the logical family, with
//     immediate or shifted-register second operands
//   - Bit manipulation: CLZ, CLS, RBIT, REV16, REV32, REV and variable shifts
//   - Branches: B, BL, B.cond, CBZ, CBNZ, BR, BLR, RET
//   - AdvSIMD: integer and floating-point three-same and two-register ops
//
// Usage:
//
//	inst := &insts.Instruction{
//		Op: insts.OpADD, Format: insts.FormatImm, Is64Bit: true,
//		Rd: 0, Rn: 1, Imm: 42,
//	}
//	fmt.Println(inst) // ADD X0, X1, #42
package insts
