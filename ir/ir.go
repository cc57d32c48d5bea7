// Package ir defines the intermediate representation guest instructions
// are lowered into before host code generation.
//
// A Function is a list of basic blocks. Each Block holds Operations over
// typed Operands. Operands start out as virtual registers, constants or
// memory references off a virtual base; the register allocator replaces
// virtual operands with physical registers before code generation.
//
//	fn := ir.NewFunction("unit", 0x1000)
//	b := fn.NewBlock(0x1000)
//	x := fn.NewVirtual(ir.I64)
//	b.Append(ir.NewOperation(ir.OpAdd, &x, ir.Const64(1), ir.Const64(2)))
//	b.Append(ir.NewOperation(ir.OpReturn, nil, x))
package ir
