package translate

import (
	"github.com/sarchlab/m2dbt/insts"
	"github.com/sarchlab/m2dbt/ir"
)

// bitOp implements a bit-manipulation instruction for one operand width.
type bitOp func(c *Context, x ir.Operand) ir.Operand

// bitOps holds the width-specific lowering of each bit-manipulation
// instruction. Index 0 is the 32-bit form, index 1 the 64-bit form.
// Operations without a direct IR primitive are built from shifts and
// masks.
var bitOps = map[insts.Op][2]bitOp{
	insts.OpCLZ:   {clz, clz},
	insts.OpCLS:   {cls, cls},
	insts.OpRBIT:  {rbit32, rbit64},
	insts.OpREV16: {rev16(0x00FF00FF), rev16(0x00FF00FF00FF00FF)},
	insts.OpREV32: {byteSwap, rev32x2},
	insts.OpREV:   {byteSwap, byteSwap},
}

func emitBitOp(c *Context, inst *insts.Instruction) {
	impl, ok := bitOps[inst.Op]
	if !ok {
		c.Fail(ErrUnimplemented)
		return
	}

	idx := 0
	if inst.Is64Bit {
		idx = 1
	}

	n := c.GetIntOrZR(inst.Rn, inst.Is64Bit)
	c.SetIntOrZR(inst.Rd, impl[idx](c, n))
}

func clz(c *Context, x ir.Operand) ir.Operand { return c.Clz(x) }

func byteSwap(c *Context, x ir.Operand) ir.Operand { return c.ByteSwap(x) }

// cls counts the bits below the sign bit that match it.
func cls(c *Context, x ir.Operand) ir.Operand {
	t := x.Type()
	y := c.Xor(x, c.ShiftRightSI(x, ir.Const(t, 1)))
	return c.Sub(c.Clz(y), ir.Const(t, 1))
}

// swapBits exchanges adjacent groups of shift bits selected by mask.
func swapBits(c *Context, x ir.Operand, mask uint64, shift int) ir.Operand {
	t := x.Type()
	m := ir.Const(t, mask)
	s := ir.Const(t, shift)
	hi := c.And(c.ShiftRightUI(x, s), m)
	lo := c.ShiftLeft(c.And(x, m), s)
	return c.Or(hi, lo)
}

func rbit32(c *Context, x ir.Operand) ir.Operand {
	x = swapBits(c, x, 0x55555555, 1)
	x = swapBits(c, x, 0x33333333, 2)
	x = swapBits(c, x, 0x0F0F0F0F, 4)
	return c.ByteSwap(x)
}

func rbit64(c *Context, x ir.Operand) ir.Operand {
	x = swapBits(c, x, 0x5555555555555555, 1)
	x = swapBits(c, x, 0x3333333333333333, 2)
	x = swapBits(c, x, 0x0F0F0F0F0F0F0F0F, 4)
	return c.ByteSwap(x)
}

func rev16(mask uint64) bitOp {
	return func(c *Context, x ir.Operand) ir.Operand {
		return swapBits(c, x, mask, 8)
	}
}

// rev32x2 reverses the bytes of each 32-bit half of a 64-bit value.
func rev32x2(c *Context, x ir.Operand) ir.Operand {
	return c.RotateRight(c.ByteSwap(x), ir.Const64(32))
}

// EXTR extracts a register from the Rn:Rm pair starting at bit Imm.
func emitEXTR(c *Context, inst *insts.Instruction) {
	t := regType(inst.Is64Bit)
	n := c.GetIntOrZR(inst.Rn, inst.Is64Bit)
	m := c.GetIntOrZR(inst.Rm, inst.Is64Bit)

	lsb := int(inst.Imm) & (t.Bits() - 1)
	if lsb == 0 {
		c.SetIntOrZR(inst.Rd, c.Copy(m))
		return
	}

	lo := c.ShiftRightUI(m, ir.Const(t, lsb))
	hi := c.ShiftLeft(n, ir.Const(t, t.Bits()-lsb))
	c.SetIntOrZR(inst.Rd, c.Or(hi, lo))
}
