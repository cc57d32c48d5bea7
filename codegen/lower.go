package codegen

import (
	"tlog.app/go/errors"

	"github.com/sarchlab/m2dbt/insts"
	"github.com/sarchlab/m2dbt/ir"
)

const condAlways = insts.CondAL

// lowering emits host code for one IR operation.
type lowering func(g *generator, op *ir.Operation) error

var lowerings = map[ir.Opcode]lowering{
	ir.OpCopy: lowerCopy,

	ir.OpAdd:                addSub(opADDReg, opADDImm),
	ir.OpSubtract:           addSub(opSUBReg, opSUBImm),
	ir.OpMultiply:           binaryOp(opMUL),
	ir.OpDivide:             binaryOp(opSDIV),
	ir.OpDivideUI:           binaryOp(opUDIV),
	ir.OpBitwiseAnd:         binaryOp(opANDReg),
	ir.OpBitwiseOr:          binaryOp(opORRReg),
	ir.OpBitwiseExclusiveOr: binaryOp(opEORReg),
	ir.OpBitwiseNot:         unaryZR(opORNReg),
	ir.OpNegate:             unaryZR(opSUBReg),
	ir.OpShiftLeft:          shift(opLSLV, encLSLImm),
	ir.OpShiftRightUI:       shift(opLSRV, encLSRImm),
	ir.OpShiftRightSI:       shift(opASRV, encASRImm),
	ir.OpRotateRight:        shift(opRORV, encRORImm),
	ir.OpCountLeadingZeros:  unary(func(w bool, d, n Reg) uint32 { return encRR(opCLZ, w, d, n) }),
	ir.OpByteSwap:           unary(encREV),

	ir.OpCompareEqual:            compare(insts.CondEQ),
	ir.OpCompareNotEqual:         compare(insts.CondNE),
	ir.OpCompareLess:             compare(insts.CondLT),
	ir.OpCompareLessOrEqual:      compare(insts.CondLE),
	ir.OpCompareGreater:          compare(insts.CondGT),
	ir.OpCompareGreaterOrEqual:   compare(insts.CondGE),
	ir.OpCompareLessUI:           compare(insts.CondCC),
	ir.OpCompareLessOrEqualUI:    compare(insts.CondLS),
	ir.OpCompareGreaterUI:        compare(insts.CondHI),
	ir.OpCompareGreaterOrEqualUI: compare(insts.CondCS),
	ir.OpConditionalSelect:       lowerSelect,

	ir.OpZeroExtend8:  extend(opUXTB),
	ir.OpZeroExtend16: extend(opUXTH),
	ir.OpZeroExtend32: lowerTruncate,
	ir.OpSignExtend8:  extend(opSXTB),
	ir.OpSignExtend16: extend(opSXTH),
	ir.OpSignExtend32: extend(opSXTW),
	ir.OpTruncate:     lowerTruncate,

	ir.OpLoad:         load(0),
	ir.OpLoad8:        load(1),
	ir.OpLoad16:       load(2),
	ir.OpStore:        store(0),
	ir.OpStore8:       store(1),
	ir.OpStore16:      store(2),
	ir.OpLoadArgument: lowerLoadArgument,

	ir.OpCall:         lowerCall,
	ir.OpBranch:       lowerBranch,
	ir.OpBranchIf:     lowerBranchIf,
	ir.OpReturn:       lowerReturn,
	ir.OpCheckCounter: lowerCheckCounter,
	ir.OpIntrinsic:    lowerIntrinsic,
}

// opMUL is MADD with XZR as the addend.
const opMUL = opMADD | uint32(XZR)<<10

func binaryOp(opc uint32) lowering {
	return func(g *generator, op *ir.Operation) error {
		w, err := is64(op.Dest.Type())
		if err != nil {
			return err
		}

		a := g.intSource(op.Sources[0], X16)
		b := g.intSource(op.Sources[1], X17)
		d := destReg(*op.Dest, X16)
		g.Emit(encRRR(opc, w, d, a, b))
		g.commit(*op.Dest, d)
		return nil
	}
}

// addSub uses the immediate form when the second source is a small
// constant.
func addSub(reg, imm uint32) lowering {
	viaReg := binaryOp(reg)
	return func(g *generator, op *ir.Operation) error {
		src := op.Sources[1]
		if !src.IsConstant() || src.Value() > 0xFFF {
			return viaReg(g, op)
		}

		w, err := is64(op.Dest.Type())
		if err != nil {
			return err
		}

		a := g.intSource(op.Sources[0], X16)
		d := destReg(*op.Dest, X16)
		g.Emit(encAddSubImm(imm, w, d, a, uint32(src.Value()), false))
		g.commit(*op.Dest, d)
		return nil
	}
}

// unaryZR lowers NOT and NEG as ORN/SUB with the zero register.
func unaryZR(opc uint32) lowering {
	return func(g *generator, op *ir.Operation) error {
		w, err := is64(op.Dest.Type())
		if err != nil {
			return err
		}

		a := g.intSource(op.Sources[0], X16)
		d := destReg(*op.Dest, X16)
		g.Emit(encRRR(opc, w, d, XZR, a))
		g.commit(*op.Dest, d)
		return nil
	}
}

func unary(enc func(is64 bool, d, n Reg) uint32) lowering {
	return func(g *generator, op *ir.Operation) error {
		w, err := is64(op.Dest.Type())
		if err != nil {
			return err
		}

		a := g.intSource(op.Sources[0], X16)
		d := destReg(*op.Dest, X16)
		g.Emit(enc(w, d, a))
		g.commit(*op.Dest, d)
		return nil
	}
}

// shift takes the amount modulo the width. Constant amounts use the
// immediate form.
func shift(opc uint32, imm func(is64 bool, d, n Reg, s uint32) uint32) lowering {
	viaReg := binaryOp(opc)
	return func(g *generator, op *ir.Operation) error {
		amount := op.Sources[1]
		if !amount.IsConstant() {
			return viaReg(g, op)
		}

		w, err := is64(op.Dest.Type())
		if err != nil {
			return err
		}

		s := uint32(amount.Value()) & uint32(op.Dest.Type().Bits()-1)
		a := g.intSource(op.Sources[0], X16)
		d := destReg(*op.Dest, X16)
		g.Emit(imm(w, d, a, s))
		g.commit(*op.Dest, d)
		return nil
	}
}

func compare(cond insts.Cond) lowering {
	return func(g *generator, op *ir.Operation) error {
		w, err := is64(op.Sources[0].Type())
		if err != nil {
			return err
		}

		a := g.intSource(op.Sources[0], X16)
		b := g.intSource(op.Sources[1], X17)
		g.Emit(encRRR(opSUBSReg, w, XZR, a, b))

		d := destReg(*op.Dest, X16)
		g.Emit(encCSET(false, d, cond))
		g.commit(*op.Dest, d)
		return nil
	}
}

func lowerSelect(g *generator, op *ir.Operation) error {
	w, err := is64(op.Dest.Type())
	if err != nil {
		return err
	}

	c := g.intSource(op.Sources[0], X16)
	g.Emit(encCMPImm(false, c, 0))

	t := g.intSource(op.Sources[1], X16)
	f := g.intSource(op.Sources[2], X17)
	d := destReg(*op.Dest, X16)
	g.Emit(encCSEL(w, d, t, f, insts.CondNE))
	g.commit(*op.Dest, d)
	return nil
}

func extend(opc uint32) lowering {
	return func(g *generator, op *ir.Operation) error {
		a := g.intSource(op.Sources[0], X16)
		d := destReg(*op.Dest, X16)
		g.Emit(encExtend(opc, d, a))
		g.commit(*op.Dest, d)
		return nil
	}
}

// lowerTruncate handles narrowing and 32-bit zero extension. A 32-bit
// register write clears the upper half.
func lowerTruncate(g *generator, op *ir.Operation) error {
	a := g.intSource(op.Sources[0], X16)
	d := destReg(*op.Dest, X16)

	switch {
	case op.Opcode == ir.OpZeroExtend32, op.Dest.Type() == ir.I32:
		g.Emit(encMOV(false, d, a))
	case op.Dest.Type() == ir.I16:
		g.Emit(encExtend(opUXTH, d, a))
	case op.Dest.Type() == ir.I8:
		g.Emit(encExtend(opUXTB, d, a))
	default:
		return errors.Wrap(ErrUnimplemented, "truncate to %v", op.Dest.Type())
	}

	g.commit(*op.Dest, d)
	return nil
}

// load with size 0 moves the full width of the destination type.
func load(size int) lowering {
	return func(g *generator, op *ir.Operation) error {
		mem, dest := op.Sources[0], *op.Dest

		if dest.Type() == ir.Vec128 {
			d := destReg(dest, V31)
			g.memAccess(true, 16, d, mem, X17)
			g.commitVec(dest, d)
			return nil
		}

		if size == 0 {
			size = accessSize(mem.Type())
		}
		d := destReg(dest, X16)
		g.memAccess(true, size, d, mem, X17)
		g.commit(dest, d)
		return nil
	}
}

func store(size int) lowering {
	return func(g *generator, op *ir.Operation) error {
		mem, val := op.Sources[0], op.Sources[1]

		if val.Type() == ir.Vec128 {
			v := g.vecSource(val, V31)
			g.memAccess(false, 16, v, mem, X17)
			return nil
		}

		if size == 0 {
			size = accessSize(mem.Type())
		}
		v := g.intSource(val, X16)
		g.memAccess(false, size, v, mem, X17)
		return nil
	}
}

func lowerLoadArgument(g *generator, op *ir.Operation) error {
	idx := op.Sources[0].Value()
	if idx > 7 {
		return errors.Wrap(ErrUnimplemented, "argument %d", idx)
	}

	d := destReg(*op.Dest, X16)
	g.Emit(encMOV(true, d, Reg(idx)))
	g.commit(*op.Dest, d)
	return nil
}

// lowerCall calls the target in source 0 with the remaining sources as
// arguments in X0-X7.
func lowerCall(g *generator, op *ir.Operation) error {
	if !g.alloc.HasCall {
		return errors.Wrap(ErrInvalidOperand, "call in a unit allocated without calls")
	}

	args := op.Sources[1:]
	if len(args) > 8 {
		return errors.Wrap(ErrUnimplemented, "%d call arguments", len(args))
	}
	for i, a := range args {
		if a.IsRegister() && a.Number() < 8 && a.Number() != i {
			return errors.Wrap(ErrInvalidOperand, "argument %d in %v", i, a)
		}
	}

	target := g.intSource(op.Sources[0], X16)
	if target != X16 {
		g.Emit(encMOV(true, X16, target))
	}

	for i, a := range args {
		r := g.intSource(a, X17)
		if r != Reg(i) {
			g.Emit(encMOV(true, Reg(i), r))
		}
	}

	g.Emit(encBLR(X16))

	if op.Dest != nil {
		d := destReg(*op.Dest, X16)
		g.Emit(encMOV(true, d, X0))
		g.commit(*op.Dest, d)
	}
	return nil
}

func lowerBranch(g *generator, op *ir.Operation) error {
	return g.JumpTo(condAlways, g.cur.Branch)
}

func lowerBranchIf(g *generator, op *ir.Operation) error {
	w, err := is64(op.Sources[0].Type())
	if err != nil {
		return err
	}

	c := g.intSource(op.Sources[0], X16)
	g.Emit(encCMPImm(w, c, 0))
	return g.JumpTo(insts.CondNE, g.cur.Branch)
}

func (g *generator) returnValue(v ir.Operand) error {
	r := g.intSource(v, X0)
	if r != X0 {
		g.Emit(encMOV(true, X0, r))
	}
	return g.epilogue()
}

func lowerReturn(g *generator, op *ir.Operation) error {
	if len(op.Sources) == 0 {
		return g.epilogue()
	}
	return g.returnValue(op.Sources[0])
}

// lowerCheckCounter decrements the counter and leaves with the exit value
// unless the old counter was at least 1.
func lowerCheckCounter(g *generator, op *ir.Operation) error {
	slot, exit := op.Sources[0], op.Sources[1]

	g.memAccess(true, 4, X16, slot, X17)
	g.Emit(encAddSubImm(opSUBSImm, false, X16, X16, 1, false))
	g.memAccess(false, 4, X16, slot, X17)

	if err := g.JumpToNear(insts.CondGE); err != nil {
		return err
	}
	if err := g.returnValue(exit); err != nil {
		return err
	}
	return g.JumpHere()
}

func lowerCopy(g *generator, op *ir.Operation) error {
	src, dest := op.Sources[0], *op.Dest

	if dest.Type() == ir.Vec128 {
		d := destReg(dest, V31)
		s := g.vecSource(src, d)
		if s != d {
			g.Emit(encVMOV(d, s))
		}
		g.commitVec(dest, d)
		return nil
	}

	d := destReg(dest, X16)
	if src.IsConstant() {
		g.movImm(dest.Type() == ir.I64, d, src.Value())
	} else {
		s := g.intSource(src, d)
		if s != d {
			g.Emit(encMOV(dest.Type() == ir.I64, d, s))
		}
	}
	g.commit(dest, d)
	return nil
}

func lowerIntrinsic(g *generator, op *ir.Operation) error {
	id := op.Intrinsic
	if len(op.Sources) < id.Operands() {
		return errors.Wrap(ErrInvalidOperand, "%v needs %d sources", id, id.Operands())
	}

	a := g.vecSource(op.Sources[0], V30)
	b := a
	if id.Operands() == 2 {
		b = g.vecSource(op.Sources[1], V31)
	}

	d := destReg(*op.Dest, V31)
	word, err := EncodeIntrinsic(id, d, a, b)
	if err != nil {
		return err
	}
	g.Emit(word)
	g.commitVec(*op.Dest, d)
	return nil
}
