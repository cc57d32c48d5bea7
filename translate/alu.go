package translate

import (
	"tlog.app/go/errors"

	"github.com/sarchlab/m2dbt/insts"
	"github.com/sarchlab/m2dbt/ir"
	"github.com/sarchlab/m2dbt/state"
)

// operand2 returns the second source of a data-processing instruction:
// the shifted immediate or the shifted register.
func (c *Context) operand2(inst *insts.Instruction) ir.Operand {
	t := regType(inst.Is64Bit)

	if inst.Format == insts.FormatImm {
		return ir.Const(t, inst.Imm<<inst.Shift)
	}

	m := c.GetIntOrZR(inst.Rm, inst.Is64Bit)
	amount := uint64(inst.ShiftAmount) & uint64(t.Bits()-1)
	if amount == 0 {
		return m
	}

	sh := ir.Const(t, amount)
	switch inst.ShiftType {
	case insts.ShiftLSR:
		return c.ShiftRightUI(m, sh)
	case insts.ShiftASR:
		return c.ShiftRightSI(m, sh)
	case insts.ShiftROR:
		return c.RotateRight(m, sh)
	default:
		return c.ShiftLeft(m, sh)
	}
}

// carryIn reads the C flag widened to the instruction width.
func (c *Context) carryIn(is64 bool) (wide, flag ir.Operand) {
	flag = c.GetFlag(state.FlagC)
	if !is64 {
		return flag, flag
	}
	return c.ZeroExtend32(flag), flag
}

// The immediate forms of ADD and SUB address SP through register 31
// unless they set flags.
func (c *Context) arithSource(inst *insts.Instruction) ir.Operand {
	if inst.Format == insts.FormatImm {
		return c.GetIntOrSP(inst.Rn, inst.Is64Bit)
	}
	return c.GetIntOrZR(inst.Rn, inst.Is64Bit)
}

func (c *Context) arithDest(inst *insts.Instruction, r ir.Operand) {
	if inst.Format == insts.FormatImm && !inst.SetFlags {
		c.SetIntOrSP(inst.Rd, r)
		return
	}
	c.SetIntOrZR(inst.Rd, r)
}

func emitADD(c *Context, inst *insts.Instruction) {
	n := c.arithSource(inst)
	m := c.operand2(inst)
	r := c.Add(n, m)
	if inst.SetFlags {
		c.setArithFlags(carryAdd, r, n, m, ir.Operand{})
	}
	c.arithDest(inst, r)
}

func emitSUB(c *Context, inst *insts.Instruction) {
	n := c.arithSource(inst)
	m := c.operand2(inst)
	r := c.Sub(n, m)
	if inst.SetFlags {
		c.setArithFlags(carrySub, r, n, m, ir.Operand{})
	}
	c.arithDest(inst, r)
}

func emitADC(c *Context, inst *insts.Instruction) {
	if !carryForm(c, inst) {
		return
	}
	n := c.GetIntOrZR(inst.Rn, inst.Is64Bit)
	m := c.GetIntOrZR(inst.Rm, inst.Is64Bit)
	carry, flag := c.carryIn(inst.Is64Bit)
	r := c.Add(c.Add(n, m), carry)
	if inst.SetFlags {
		c.setArithFlags(carryAddWithCarry, r, n, m, flag)
	}
	c.SetIntOrZR(inst.Rd, r)
}

// carryForm rejects the immediate form, which ADC and SBC do not have.
func carryForm(c *Context, inst *insts.Instruction) bool {
	if inst.Format == insts.FormatImm {
		c.Fail(errors.Wrap(ErrUnimplemented, "%v with an immediate", inst.Op))
		return false
	}
	return true
}

// SBC computes n + ~m + C.
func emitSBC(c *Context, inst *insts.Instruction) {
	if !carryForm(c, inst) {
		return
	}
	n := c.GetIntOrZR(inst.Rn, inst.Is64Bit)
	m := c.GetIntOrZR(inst.Rm, inst.Is64Bit)
	carry, flag := c.carryIn(inst.Is64Bit)
	r := c.Add(c.Add(n, c.Not(m)), carry)
	if inst.SetFlags {
		c.setArithFlags(carrySubWithCarry, r, n, m, flag)
	}
	c.SetIntOrZR(inst.Rd, r)
}

// logical lowers the bitwise family. invert complements the second
// operand (BIC, ORN, EON).
func logical(op func(c *Context, a, b ir.Operand) ir.Operand, invert bool) emitter {
	return func(c *Context, inst *insts.Instruction) {
		n := c.GetIntOrZR(inst.Rn, inst.Is64Bit)
		m := c.operand2(inst)
		if invert {
			m = c.Not(m)
		}

		r := op(c, n, m)
		if inst.SetFlags {
			c.setLogicFlags(r)
		}

		if inst.Format == insts.FormatImm && !inst.SetFlags {
			c.SetIntOrSP(inst.Rd, r)
			return
		}
		c.SetIntOrZR(inst.Rd, r)
	}
}

func (c *Context) imm16(inst *insts.Instruction) ir.Operand {
	t := regType(inst.Is64Bit)
	return ir.Const(t, (inst.Imm&0xFFFF)<<inst.Shift)
}

func emitMOVZ(c *Context, inst *insts.Instruction) {
	c.SetIntOrZR(inst.Rd, c.imm16(inst))
}

func emitMOVN(c *Context, inst *insts.Instruction) {
	t := regType(inst.Is64Bit)
	c.SetIntOrZR(inst.Rd, ir.Const(t, ^((inst.Imm&0xFFFF)<<inst.Shift)))
}

func emitMOVK(c *Context, inst *insts.Instruction) {
	t := regType(inst.Is64Bit)
	old := c.GetIntOrZR(inst.Rd, inst.Is64Bit)
	keep := ir.Const(t, ^(uint64(0xFFFF) << inst.Shift))
	c.SetIntOrZR(inst.Rd, c.Or(c.And(old, keep), c.imm16(inst)))
}

func emitMUL(c *Context, inst *insts.Instruction) {
	n := c.GetIntOrZR(inst.Rn, inst.Is64Bit)
	m := c.GetIntOrZR(inst.Rm, inst.Is64Bit)
	c.SetIntOrZR(inst.Rd, c.Mul(n, m))
}

func emitMADD(c *Context, inst *insts.Instruction) {
	n := c.GetIntOrZR(inst.Rn, inst.Is64Bit)
	m := c.GetIntOrZR(inst.Rm, inst.Is64Bit)
	a := c.GetIntOrZR(inst.Ra, inst.Is64Bit)
	c.SetIntOrZR(inst.Rd, c.Add(a, c.Mul(n, m)))
}

func emitMSUB(c *Context, inst *insts.Instruction) {
	n := c.GetIntOrZR(inst.Rn, inst.Is64Bit)
	m := c.GetIntOrZR(inst.Rm, inst.Is64Bit)
	a := c.GetIntOrZR(inst.Ra, inst.Is64Bit)
	c.SetIntOrZR(inst.Rd, c.Sub(a, c.Mul(n, m)))
}

func emitSDIV(c *Context, inst *insts.Instruction) {
	n := c.GetIntOrZR(inst.Rn, inst.Is64Bit)
	m := c.GetIntOrZR(inst.Rm, inst.Is64Bit)
	c.SetIntOrZR(inst.Rd, c.Div(n, m))
}

func emitUDIV(c *Context, inst *insts.Instruction) {
	n := c.GetIntOrZR(inst.Rn, inst.Is64Bit)
	m := c.GetIntOrZR(inst.Rm, inst.Is64Bit)
	c.SetIntOrZR(inst.Rd, c.DivUI(n, m))
}

// variableShift lowers LSLV, LSRV, ASRV and RORV. The amount is taken
// modulo the register width.
func variableShift(op func(c *Context, a, b ir.Operand) ir.Operand) emitter {
	return func(c *Context, inst *insts.Instruction) {
		t := regType(inst.Is64Bit)
		n := c.GetIntOrZR(inst.Rn, inst.Is64Bit)
		m := c.GetIntOrZR(inst.Rm, inst.Is64Bit)
		amount := c.And(m, ir.Const(t, t.Bits()-1))
		c.SetIntOrZR(inst.Rd, op(c, n, amount))
	}
}

func emitCSEL(c *Context, inst *insts.Instruction) {
	n := c.GetIntOrZR(inst.Rn, inst.Is64Bit)
	m := c.GetIntOrZR(inst.Rm, inst.Is64Bit)
	c.SetIntOrZR(inst.Rd, c.Select(c.Condition(inst.Cond), n, m))
}

func emitCSINC(c *Context, inst *insts.Instruction) {
	t := regType(inst.Is64Bit)
	n := c.GetIntOrZR(inst.Rn, inst.Is64Bit)
	m := c.GetIntOrZR(inst.Rm, inst.Is64Bit)
	inc := c.Add(m, ir.Const(t, 1))
	c.SetIntOrZR(inst.Rd, c.Select(c.Condition(inst.Cond), n, inc))
}

func emitNOP(*Context, *insts.Instruction) {}
