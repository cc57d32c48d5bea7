package translate

import "github.com/sarchlab/m2dbt/insts"

// emitter lowers one instruction into the current block.
type emitter func(c *Context, inst *insts.Instruction)

var emitters = map[insts.Op]emitter{
	insts.OpADD: emitADD,
	insts.OpADC: emitADC,
	insts.OpSUB: emitSUB,
	insts.OpSBC: emitSBC,

	insts.OpAND: logical((*Context).And, false),
	insts.OpBIC: logical((*Context).And, true),
	insts.OpORR: logical((*Context).Or, false),
	insts.OpORN: logical((*Context).Or, true),
	insts.OpEOR: logical((*Context).Xor, false),
	insts.OpEON: logical((*Context).Xor, true),

	insts.OpMOVZ: emitMOVZ,
	insts.OpMOVN: emitMOVN,
	insts.OpMOVK: emitMOVK,

	insts.OpMUL:  emitMUL,
	insts.OpMADD: emitMADD,
	insts.OpMSUB: emitMSUB,
	insts.OpSDIV: emitSDIV,
	insts.OpUDIV: emitUDIV,

	insts.OpLSLV: variableShift((*Context).ShiftLeft),
	insts.OpLSRV: variableShift((*Context).ShiftRightUI),
	insts.OpASRV: variableShift((*Context).ShiftRightSI),
	insts.OpRORV: variableShift((*Context).RotateRight),

	insts.OpCLZ:   emitBitOp,
	insts.OpCLS:   emitBitOp,
	insts.OpRBIT:  emitBitOp,
	insts.OpREV16: emitBitOp,
	insts.OpREV32: emitBitOp,
	insts.OpREV:   emitBitOp,
	insts.OpEXTR:  emitEXTR,

	insts.OpCSEL:  emitCSEL,
	insts.OpCSINC: emitCSINC,
	insts.OpNOP:   emitNOP,

	insts.OpB:     emitB,
	insts.OpBL:    emitBL,
	insts.OpBCond: emitBCond,
	insts.OpBR:    indirect(false),
	insts.OpBLR:   indirect(true),
	insts.OpRET:   indirect(false),
	insts.OpCBZ:   compareBranch((*Context).CompareEqual),
	insts.OpCBNZ:  compareBranch((*Context).CompareNotEqual),

	insts.OpVADD:  emitVector,
	insts.OpVSUB:  emitVector,
	insts.OpVMUL:  emitVector,
	insts.OpVAND:  emitVector,
	insts.OpVBIC:  emitVector,
	insts.OpVORR:  emitVector,
	insts.OpVEOR:  emitVector,
	insts.OpVNEG:  emitVector,
	insts.OpVABS:  emitVector,
	insts.OpVNOT:  emitVector,
	insts.OpVCNT:  emitVector,
	insts.OpFADD:  emitVector,
	insts.OpFSUB:  emitVector,
	insts.OpFMUL:  emitVector,
	insts.OpFDIV:  emitVector,
	insts.OpFMAX:  emitVector,
	insts.OpFMIN:  emitVector,
	insts.OpFNEG:  emitVector,
	insts.OpFABS:  emitVector,
	insts.OpFSQRT: emitVector,
}

// Supported reports whether op has a lowering.
func Supported(op insts.Op) bool {
	_, ok := emitters[op]
	return ok
}
