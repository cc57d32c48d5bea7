package translate

import (
	"github.com/sarchlab/m2dbt/insts"
	"github.com/sarchlab/m2dbt/ir"
)

func fallThrough(c *Context, inst *insts.Instruction) *ir.Block {
	return c.Resolve(inst.Address + 4)
}

func emitB(c *Context, inst *insts.Instruction) {
	c.Branch(c.Resolve(inst.Target()))
}

func emitBL(c *Context, inst *insts.Instruction) {
	c.SetIntOrZR(insts.LinkReg, ir.Const64(inst.Address+4))
	c.Branch(c.Resolve(inst.Target()))
}

func emitBCond(c *Context, inst *insts.Instruction) {
	cond := c.Condition(inst.Cond)
	c.BranchIf(cond, c.Resolve(inst.Target()), fallThrough(c, inst))
}

func compareBranch(op func(c *Context, a, b ir.Operand) ir.Operand) emitter {
	return func(c *Context, inst *insts.Instruction) {
		t := regType(inst.Is64Bit)
		v := c.GetIntOrZR(inst.Rn, inst.Is64Bit)
		c.BranchIf(op(c, v, ir.Const(t, 0)), c.Resolve(inst.Target()), fallThrough(c, inst))
	}
}

// indirect lowers BR, BLR and RET. The target leaves the unit: it is
// recorded in the call address slot and returned to the dispatcher.
func indirect(link bool) emitter {
	return func(c *Context, inst *insts.Instruction) {
		target := c.GetIntOrZR(inst.Rn, true)
		if link {
			c.SetIntOrZR(insts.LinkReg, ir.Const64(inst.Address+4))
		}
		c.SetCallAddress(target)
		c.Return(target)
	}
}
