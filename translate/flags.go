package translate

import (
	"github.com/sarchlab/m2dbt/insts"
	"github.com/sarchlab/m2dbt/ir"
	"github.com/sarchlab/m2dbt/state"
)

// carryKind selects the carry-out formula of an add or subtract.
type carryKind uint8

const (
	carryAdd carryKind = iota
	carryAddWithCarry
	carrySub
	carrySubWithCarry
)

// setNZ stores N and Z for result r.
func (c *Context) setNZ(r ir.Operand) {
	zero := ir.Const(r.Type(), 0)
	c.SetFlag(state.FlagN, c.CompareLess(r, zero))
	c.SetFlag(state.FlagZ, c.CompareEqual(r, zero))
}

// setLogicFlags stores the NZCV of a flag-setting logical operation.
func (c *Context) setLogicFlags(r ir.Operand) {
	c.setNZ(r)
	c.SetFlag(state.FlagC, ir.Const32(0))
	c.SetFlag(state.FlagV, ir.Const32(0))
}

// setArithFlags stores the NZCV of r = n op m. carry is the I32 carry
// flag read before the operation and is only consulted by the
// with-carry forms.
func (c *Context) setArithFlags(kind carryKind, r, n, m, carry ir.Operand) {
	c.setNZ(r)

	var cf ir.Operand
	switch kind {
	case carryAdd:
		cf = c.CompareLessUI(r, n)
	case carryAddWithCarry:
		cf = c.Or(c.CompareLessUI(r, n), c.And(carry, c.CompareEqual(r, n)))
	case carrySub:
		cf = c.CompareGreaterOrEqualUI(n, m)
	case carrySubWithCarry:
		cf = c.Or(c.CompareGreaterUI(n, m), c.And(carry, c.CompareEqual(n, m)))
	}
	c.SetFlag(state.FlagC, cf)

	var v ir.Operand
	if kind == carryAdd || kind == carryAddWithCarry {
		v = c.And(c.Xor(n, r), c.Not(c.Xor(n, m)))
	} else {
		v = c.And(c.Xor(n, r), c.Xor(n, m))
	}
	c.SetFlag(state.FlagV, c.CompareLess(v, ir.Const(v.Type(), 0)))
}

// Condition evaluates cond against the stored flags, yielding an I32 0
// or 1.
func (c *Context) Condition(cond insts.Cond) ir.Operand {
	if cond >= insts.CondAL {
		return ir.Const32(1)
	}

	var v ir.Operand
	switch cond &^ 1 {
	case insts.CondEQ:
		v = c.GetFlag(state.FlagZ)
	case insts.CondCS:
		v = c.GetFlag(state.FlagC)
	case insts.CondMI:
		v = c.GetFlag(state.FlagN)
	case insts.CondVS:
		v = c.GetFlag(state.FlagV)
	case insts.CondHI:
		v = c.And(c.GetFlag(state.FlagC), c.Xor(c.GetFlag(state.FlagZ), ir.Const32(1)))
	case insts.CondGE:
		v = c.CompareEqual(c.GetFlag(state.FlagN), c.GetFlag(state.FlagV))
	case insts.CondGT:
		ge := c.CompareEqual(c.GetFlag(state.FlagN), c.GetFlag(state.FlagV))
		v = c.And(ge, c.Xor(c.GetFlag(state.FlagZ), ir.Const32(1)))
	}

	if cond&1 == 1 {
		v = c.Xor(v, ir.Const32(1))
	}
	return v
}
