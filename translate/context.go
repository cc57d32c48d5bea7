// Package translate lowers decoded ARM64 instructions into IR.
//
// Each instruction kind has one emitter in the dispatch table. Emitters
// build IR through Context, which tracks the function under construction,
// the current block and the first error raised while lowering.
package translate

import (
	"tlog.app/go/errors"

	"github.com/sarchlab/m2dbt/insts"
	"github.com/sarchlab/m2dbt/ir"
	"github.com/sarchlab/m2dbt/state"
)

// Errors.
var (
	ErrUnimplemented = errors.New("unimplemented")
	ErrTypeMismatch  = errors.New("operand type mismatch")
)

// Context is the emitter context for one compiled unit.
type Context struct {
	fn    *ir.Function
	block *ir.Block
	base  ir.Operand
	inst  *insts.Instruction

	// resolve maps a guest address to the block that executes it, or to
	// an exit block leaving the unit.
	resolve func(addr uint64) *ir.Block

	err error
}

func newContext(fn *ir.Function, resolve func(uint64) *ir.Block) *Context {
	return &Context{
		fn:      fn,
		base:    fn.NewVirtual(ir.I64),
		resolve: resolve,
	}
}

// Err returns the first error raised while lowering.
func (c *Context) Err() error {
	return c.err
}

// Fail records err unless an earlier error is already pending.
func (c *Context) Fail(err error) {
	if c.err == nil {
		c.err = err
	}
}

// Instruction returns the instruction being lowered.
func (c *Context) Instruction() *insts.Instruction {
	return c.inst
}

// Block returns the block operations are appended to.
func (c *Context) Block() *ir.Block {
	return c.block
}

// MarkLabel makes b the current block.
func (c *Context) MarkLabel(b *ir.Block) {
	c.block = b
}

// Base returns the virtual register holding the state block address.
func (c *Context) Base() ir.Operand {
	return c.base
}

func (c *Context) emit(opc ir.Opcode, t ir.Type, sources ...ir.Operand) ir.Operand {
	if c.err != nil {
		return ir.Const(t, 0)
	}

	d := c.fn.NewVirtual(t)
	c.block.Append(ir.NewOperation(opc, &d, sources...))
	return d
}

func (c *Context) emitVoid(opc ir.Opcode, sources ...ir.Operand) {
	if c.err != nil {
		return
	}
	c.block.Append(ir.NewOperation(opc, nil, sources...))
}

func (c *Context) sameType(opc ir.Opcode, a, b ir.Operand) bool {
	if a.Type() != b.Type() {
		c.Fail(errors.Wrap(ErrTypeMismatch, "%v %v, %v", opc, a.Type(), b.Type()))
		return false
	}
	return true
}

func (c *Context) binary(opc ir.Opcode, a, b ir.Operand) ir.Operand {
	if !c.sameType(opc, a, b) {
		return ir.Const(a.Type(), 0)
	}
	return c.emit(opc, a.Type(), a, b)
}

func (c *Context) compare(opc ir.Opcode, a, b ir.Operand) ir.Operand {
	if !c.sameType(opc, a, b) {
		return ir.Const32(0)
	}
	return c.emit(opc, ir.I32, a, b)
}

// Add returns a + b.
func (c *Context) Add(a, b ir.Operand) ir.Operand { return c.binary(ir.OpAdd, a, b) }

// Sub returns a - b.
func (c *Context) Sub(a, b ir.Operand) ir.Operand { return c.binary(ir.OpSubtract, a, b) }

// Mul returns the low half of a * b.
func (c *Context) Mul(a, b ir.Operand) ir.Operand { return c.binary(ir.OpMultiply, a, b) }

// Div returns the signed quotient a / b.
func (c *Context) Div(a, b ir.Operand) ir.Operand { return c.binary(ir.OpDivide, a, b) }

// DivUI returns the unsigned quotient a / b.
func (c *Context) DivUI(a, b ir.Operand) ir.Operand { return c.binary(ir.OpDivideUI, a, b) }

// And returns a & b.
func (c *Context) And(a, b ir.Operand) ir.Operand { return c.binary(ir.OpBitwiseAnd, a, b) }

// Or returns a | b.
func (c *Context) Or(a, b ir.Operand) ir.Operand { return c.binary(ir.OpBitwiseOr, a, b) }

// Xor returns a ^ b.
func (c *Context) Xor(a, b ir.Operand) ir.Operand { return c.binary(ir.OpBitwiseExclusiveOr, a, b) }

// Not returns ^a.
func (c *Context) Not(a ir.Operand) ir.Operand { return c.emit(ir.OpBitwiseNot, a.Type(), a) }

// Neg returns -a.
func (c *Context) Neg(a ir.Operand) ir.Operand { return c.emit(ir.OpNegate, a.Type(), a) }

// ShiftLeft shifts a by b modulo the width of a.
func (c *Context) ShiftLeft(a, b ir.Operand) ir.Operand { return c.binary(ir.OpShiftLeft, a, b) }

// ShiftRightUI shifts a right by b, filling with zeros.
func (c *Context) ShiftRightUI(a, b ir.Operand) ir.Operand {
	return c.binary(ir.OpShiftRightUI, a, b)
}

// ShiftRightSI shifts a right by b, filling with the sign bit.
func (c *Context) ShiftRightSI(a, b ir.Operand) ir.Operand {
	return c.binary(ir.OpShiftRightSI, a, b)
}

// RotateRight rotates a right by b modulo its width.
func (c *Context) RotateRight(a, b ir.Operand) ir.Operand {
	return c.binary(ir.OpRotateRight, a, b)
}

// Clz counts the leading zero bits of a.
func (c *Context) Clz(a ir.Operand) ir.Operand { return c.emit(ir.OpCountLeadingZeros, a.Type(), a) }

// ByteSwap reverses the bytes of a.
func (c *Context) ByteSwap(a ir.Operand) ir.Operand { return c.emit(ir.OpByteSwap, a.Type(), a) }

// CompareEqual returns 1 when a == b, else 0.
func (c *Context) CompareEqual(a, b ir.Operand) ir.Operand {
	return c.compare(ir.OpCompareEqual, a, b)
}

// CompareNotEqual returns 1 when a != b, else 0.
func (c *Context) CompareNotEqual(a, b ir.Operand) ir.Operand {
	return c.compare(ir.OpCompareNotEqual, a, b)
}

// CompareLess is the signed a < b.
func (c *Context) CompareLess(a, b ir.Operand) ir.Operand {
	return c.compare(ir.OpCompareLess, a, b)
}

// CompareLessUI is the unsigned a < b.
func (c *Context) CompareLessUI(a, b ir.Operand) ir.Operand {
	return c.compare(ir.OpCompareLessUI, a, b)
}

// CompareGreaterUI is the unsigned a > b.
func (c *Context) CompareGreaterUI(a, b ir.Operand) ir.Operand {
	return c.compare(ir.OpCompareGreaterUI, a, b)
}

// CompareGreaterOrEqualUI is the unsigned a >= b.
func (c *Context) CompareGreaterOrEqualUI(a, b ir.Operand) ir.Operand {
	return c.compare(ir.OpCompareGreaterOrEqualUI, a, b)
}

// Select returns ifTrue when cond is non-zero.
func (c *Context) Select(cond, ifTrue, ifFalse ir.Operand) ir.Operand {
	if !c.sameType(ir.OpConditionalSelect, ifTrue, ifFalse) {
		return ifTrue
	}
	return c.emit(ir.OpConditionalSelect, ifTrue.Type(), cond, ifTrue, ifFalse)
}

// ZeroExtend32 widens a 32-bit value to 64 bits.
func (c *Context) ZeroExtend32(a ir.Operand) ir.Operand {
	if a.Type() != ir.I32 {
		c.Fail(errors.Wrap(ErrTypeMismatch, "zero extend %v", a.Type()))
	}
	return c.emit(ir.OpZeroExtend32, ir.I64, a)
}

// SignExtend32 widens a 32-bit value to 64 bits.
func (c *Context) SignExtend32(a ir.Operand) ir.Operand {
	if a.Type() != ir.I32 {
		c.Fail(errors.Wrap(ErrTypeMismatch, "sign extend %v", a.Type()))
	}
	return c.emit(ir.OpSignExtend32, ir.I64, a)
}

// Truncate narrows a to t.
func (c *Context) Truncate(a ir.Operand, t ir.Type) ir.Operand {
	if a.Type().Bits() < t.Bits() {
		c.Fail(errors.Wrap(ErrTypeMismatch, "truncate %v to %v", a.Type(), t))
	}
	return c.emit(ir.OpTruncate, t, a)
}

// Copy materializes a into a fresh virtual register.
func (c *Context) Copy(a ir.Operand) ir.Operand { return c.emit(ir.OpCopy, a.Type(), a) }

// Intrinsic emits a vector intrinsic.
func (c *Context) Intrinsic(id ir.Intrinsic, sources ...ir.Operand) ir.Operand {
	if c.err != nil {
		return ir.ConstV128(ir.V128{})
	}
	if !id.Valid() {
		c.Fail(errors.Wrap(ErrUnimplemented, "intrinsic %v", id))
		return ir.ConstV128(ir.V128{})
	}

	d := c.fn.NewVirtual(ir.Vec128)
	c.block.Append(ir.NewIntrinsic(id, d, sources...))
	return d
}

func (c *Context) load(t ir.Type, off int) ir.Operand {
	return c.emit(ir.OpLoad, t, ir.Memory(t, c.base, int32(off)))
}

func (c *Context) store(off int, v ir.Operand) {
	c.emitVoid(ir.OpStore, ir.Memory(v.Type(), c.base, int32(off)), v)
}

func (c *Context) offset(off int, err error) int {
	if err != nil {
		c.Fail(err)
	}
	return off
}

func regType(is64 bool) ir.Type {
	if is64 {
		return ir.I64
	}
	return ir.I32
}

// GetIntOrZR reads a general register, with index 31 reading as zero.
func (c *Context) GetIntOrZR(r uint8, is64 bool) ir.Operand {
	t := regType(is64)
	if r == insts.ZeroReg {
		return ir.Const(t, 0)
	}
	return c.GetIntOrSP(r, is64)
}

// GetIntOrSP reads a general register, with index 31 reading SP. A
// 32-bit read takes the low half of the slot.
func (c *Context) GetIntOrSP(r uint8, is64 bool) ir.Operand {
	return c.load(regType(is64), c.offset(state.IntRegOffset(int(r))))
}

// SetIntOrZR writes a general register. Writes to index 31 are
// discarded; the value is still computed.
func (c *Context) SetIntOrZR(r uint8, v ir.Operand) {
	if r == insts.ZeroReg {
		return
	}
	c.SetIntOrSP(r, v)
}

// SetIntOrSP writes a general register, with index 31 writing SP. 32-bit
// values are zero-extended into the full slot.
func (c *Context) SetIntOrSP(r uint8, v ir.Operand) {
	if v.Type() == ir.I32 {
		v = c.ZeroExtend32(v)
	}
	if v.Type() != ir.I64 {
		c.Fail(errors.Wrap(ErrTypeMismatch, "register write of %v", v.Type()))
		return
	}
	c.store(c.offset(state.IntRegOffset(int(r))), v)
}

// GetVec reads a vector register.
func (c *Context) GetVec(r uint8) ir.Operand {
	return c.load(ir.Vec128, c.offset(state.VecRegOffset(int(r))))
}

// SetVec writes a vector register.
func (c *Context) SetVec(r uint8, v ir.Operand) {
	if v.Type() != ir.Vec128 {
		c.Fail(errors.Wrap(ErrTypeMismatch, "vector write of %v", v.Type()))
		return
	}
	c.store(c.offset(state.VecRegOffset(int(r))), v)
}

// GetFlag reads a condition flag as an I32 0 or 1.
func (c *Context) GetFlag(f state.Flag) ir.Operand {
	return c.load(ir.I32, c.offset(state.FlagOffset(f)))
}

// SetFlag writes a condition flag from an I32 0 or 1.
func (c *Context) SetFlag(f state.Flag, v ir.Operand) {
	if v.Type() != ir.I32 {
		c.Fail(errors.Wrap(ErrTypeMismatch, "flag write of %v", v.Type()))
		return
	}
	c.store(c.offset(state.FlagOffset(f)), v)
}

// SetCallAddress records the target of an indirect control transfer.
func (c *Context) SetCallAddress(v ir.Operand) {
	c.store(state.CallAddressOffset(), v)
}

// Branch ends the current block with a jump to target.
func (c *Context) Branch(target *ir.Block) {
	if c.err != nil {
		return
	}
	c.emitVoid(ir.OpBranch)
	c.block.Branch = target
}

// BranchIf ends the current block with a jump to target when cond is
// non-zero, falling through to next otherwise.
func (c *Context) BranchIf(cond ir.Operand, target, next *ir.Block) {
	if c.err != nil {
		return
	}
	c.emitVoid(ir.OpBranchIf, cond)
	c.block.Branch = target
	c.block.Next = next
}

// Return ends the current block, leaving the unit with v.
func (c *Context) Return(v ir.Operand) {
	c.emitVoid(ir.OpReturn, v)
}

// Resolve returns the block that executes addr.
func (c *Context) Resolve(addr uint64) *ir.Block {
	return c.resolve(addr)
}
