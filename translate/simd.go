package translate

import (
	"tlog.app/go/errors"

	"github.com/sarchlab/m2dbt/insts"
	"github.com/sarchlab/m2dbt/ir"
)

var vectorIntrinsics = map[insts.Op]ir.Intrinsic{
	insts.OpVADD:  ir.VAdd,
	insts.OpVSUB:  ir.VSub,
	insts.OpVMUL:  ir.VMul,
	insts.OpVAND:  ir.VAnd,
	insts.OpVBIC:  ir.VBic,
	insts.OpVORR:  ir.VOrr,
	insts.OpVEOR:  ir.VEor,
	insts.OpVNEG:  ir.VNeg,
	insts.OpVABS:  ir.VAbs,
	insts.OpVNOT:  ir.VNot,
	insts.OpVCNT:  ir.VCnt,
	insts.OpFADD:  ir.VFAdd,
	insts.OpFSUB:  ir.VFSub,
	insts.OpFMUL:  ir.VFMul,
	insts.OpFDIV:  ir.VFDiv,
	insts.OpFMAX:  ir.VFMax,
	insts.OpFMIN:  ir.VFMin,
	insts.OpFNEG:  ir.VFNeg,
	insts.OpFABS:  ir.VFAbs,
	insts.OpFSQRT: ir.VFSqrt,
}

// vectorVariant selects the intrinsic variant for an arrangement.
// Bitwise operations act on bytes whatever the arrangement says.
func vectorVariant(base ir.Intrinsic, arr insts.Arrangement) (ir.Intrinsic, error) {
	width := ir.Width64
	if arr.Is128() {
		width = ir.Width128
	}

	size, ok := ir.SizeFromBits(arr.ElementSize())
	if !ok {
		return 0, errors.Wrap(ErrUnimplemented, "arrangement %v", arr)
	}
	if base.IsLogical() {
		size = ir.Size8
	}

	id := base.With(size, width)
	if !id.Valid() {
		return 0, errors.Wrap(ErrUnimplemented, "%v with arrangement %v", base, arr)
	}
	return id, nil
}

// emitVector lowers AdvSIMD instructions to a single intrinsic. The 64-bit
// arrangements clear the upper half of the destination.
func emitVector(c *Context, inst *insts.Instruction) {
	base, ok := vectorIntrinsics[inst.Op]
	if !ok {
		c.Fail(ErrUnimplemented)
		return
	}

	id, err := vectorVariant(base, inst.Arrangement)
	if err != nil {
		c.Fail(err)
		return
	}

	srcs := []ir.Operand{c.GetVec(inst.Rn)}
	if id.Operands() == 2 {
		srcs = append(srcs, c.GetVec(inst.Rm))
	}

	c.SetVec(inst.Rd, c.Intrinsic(id, srcs...))
}
