package emu_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/m2dbt/emu"
	"github.com/sarchlab/m2dbt/ir"
	"github.com/sarchlab/m2dbt/state"
)

var _ = Describe("Machine", func() {
	var (
		b    *state.Block
		fn   *ir.Function
		base ir.Operand
	)

	BeforeEach(func() {
		b = state.NewHeap()
		fn = ir.NewFunction("unit", 0x1000)
		base = fn.NewVirtual(ir.I64)
	})

	reg := func(i int) ir.Operand {
		off, err := state.IntRegOffset(i)
		Expect(err).NotTo(HaveOccurred())
		return ir.Memory(ir.I64, base, int32(off))
	}

	run := func(opts ...emu.MachineOption) (uint64, error) {
		m, err := emu.NewMachine(fn, b, opts...)
		Expect(err).NotTo(HaveOccurred())
		return m.Run()
	}

	It("should load, compute and store through the state base", func() {
		entry := fn.NewBlock(0x1000)
		x := fn.NewVirtual(ir.I64)
		y := fn.NewVirtual(ir.I64)

		entry.Append(ir.NewOperation(ir.OpLoadArgument, &base, ir.Const64(0)))
		entry.Append(ir.NewOperation(ir.OpLoad, &x, reg(1)))
		entry.Append(ir.NewOperation(ir.OpAdd, &y, x, ir.Const64(5)))
		entry.Append(ir.NewOperation(ir.OpStore, nil, reg(2), y))
		entry.Append(ir.NewOperation(ir.OpReturn, nil, y))

		Expect(b.SetIntReg(1, 37)).To(Succeed())

		Expect(run()).To(Equal(uint64(42)))
		Expect(b.IntReg(2)).To(Equal(uint64(42)))
	})

	It("should follow conditional branches", func() {
		entry := fn.NewBlock(0x1000)
		taken := fn.NewBlock(0x1010)
		fall := fn.NewBlock(0x1020)

		c := fn.NewVirtual(ir.I32)
		entry.Append(ir.NewOperation(ir.OpLoadArgument, &base, ir.Const64(0)))
		entry.Append(ir.NewOperation(ir.OpCompareLess, &c, ir.Const32(0xFFFF_FFFF), ir.Const32(0)))
		entry.Append(ir.NewOperation(ir.OpBranchIf, nil, c))
		entry.Branch = taken
		entry.Next = fall

		taken.Append(ir.NewOperation(ir.OpReturn, nil, ir.Const64(1)))
		fall.Append(ir.NewOperation(ir.OpReturn, nil, ir.Const64(2)))

		Expect(run()).To(Equal(uint64(1)))
	})

	DescribeTable("scalar opcodes",
		func(opc ir.Opcode, t ir.Type, a, c uint64, want uint64) {
			entry := fn.NewBlock(0x1000)
			d := fn.NewVirtual(t)
			entry.Append(ir.NewOperation(opc, &d, ir.Const(t, a), ir.Const(t, c)))
			entry.Append(ir.NewOperation(ir.OpReturn, nil, d))

			Expect(run()).To(Equal(want))
		},
		Entry("signed divide by zero", ir.OpDivide, ir.I32, uint64(7), uint64(0), uint64(0)),
		Entry("signed INT_MIN / -1", ir.OpDivide, ir.I32, uint64(0x8000_0000), uint64(0xFFFF_FFFF), uint64(0x8000_0000)),
		Entry("signed rounding toward zero", ir.OpDivide, ir.I64, uint64(0xFFFF_FFFF_FFFF_FFF9), uint64(2), uint64(0xFFFF_FFFF_FFFF_FFFD)),
		Entry("unsigned divide", ir.OpDivideUI, ir.I32, uint64(0xFFFF_FFFF), uint64(2), uint64(0x7FFF_FFFF)),
		Entry("shift amount masked", ir.OpShiftLeft, ir.I32, uint64(1), uint64(33), uint64(2)),
		Entry("arithmetic shift", ir.OpShiftRightSI, ir.I32, uint64(0x8000_0000), uint64(4), uint64(0xF800_0000)),
		Entry("logical shift", ir.OpShiftRightUI, ir.I64, uint64(1<<63), uint64(63), uint64(1)),
		Entry("rotate", ir.OpRotateRight, ir.I32, uint64(1), uint64(1), uint64(0x8000_0000)),
		Entry("rotate by zero", ir.OpRotateRight, ir.I64, uint64(0x1234), uint64(64), uint64(0x1234)),
		Entry("leading zeros", ir.OpCountLeadingZeros, ir.I32, uint64(1), uint64(0), uint64(31)),
		Entry("leading zeros of zero", ir.OpCountLeadingZeros, ir.I64, uint64(0), uint64(0), uint64(64)),
		Entry("byte swap", ir.OpByteSwap, ir.I32, uint64(0x1122_3344), uint64(0), uint64(0x4433_2211)),
		Entry("unsigned compare", ir.OpCompareLessUI, ir.I32, uint64(1), uint64(0xFFFF_FFFF), uint64(1)),
		Entry("signed compare", ir.OpCompareLess, ir.I32, uint64(1), uint64(0xFFFF_FFFF), uint64(0)),
		Entry("32-bit add wraps", ir.OpAdd, ir.I32, uint64(0xFFFF_FFFF), uint64(2), uint64(1)),
	)

	It("should extend and truncate explicitly", func() {
		entry := fn.NewBlock(0x1000)
		s := fn.NewVirtual(ir.I64)
		t := fn.NewVirtual(ir.I32)
		z := fn.NewVirtual(ir.I64)

		entry.Append(ir.NewOperation(ir.OpSignExtend8, &s, ir.Const64(0x80)))
		entry.Append(ir.NewOperation(ir.OpTruncate, &t, s))
		entry.Append(ir.NewOperation(ir.OpZeroExtend32, &z, t))
		entry.Append(ir.NewOperation(ir.OpReturn, nil, z))

		Expect(run()).To(Equal(uint64(0xFFFF_FF80)))
	})

	It("should run intrinsics on vector registers", func() {
		entry := fn.NewBlock(0x1000)
		a := fn.NewVirtual(ir.Vec128)
		r := fn.NewVirtual(ir.Vec128)

		off, _ := state.VecRegOffset(2)
		v2 := ir.Memory(ir.Vec128, base, int32(off))

		entry.Append(ir.NewOperation(ir.OpLoadArgument, &base, ir.Const64(0)))
		entry.Append(ir.NewOperation(ir.OpLoad, &a, v2))
		entry.Append(ir.NewIntrinsic(ir.VAdd.With(ir.Size32, ir.Width128), r, a, a))
		entry.Append(ir.NewOperation(ir.OpStore, nil, v2, r))
		entry.Append(ir.NewOperation(ir.OpReturn, nil))

		Expect(b.SetVecReg(2, ir.V128FromUint32s(1, 2, 3, 4))).To(Succeed())
		_, err := run()
		Expect(err).NotTo(HaveOccurred())

		v, _ := b.VecReg(2)
		Expect(v.Equal(ir.V128FromUint32s(2, 4, 6, 8))).To(BeTrue())
	})

	It("should leave through the counter check when exhausted", func() {
		entry := fn.NewBlock(0x1000)
		counter := ir.Memory(ir.I32, base, int32(state.CounterOffset()))

		entry.Append(ir.NewOperation(ir.OpLoadArgument, &base, ir.Const64(0)))
		entry.Append(ir.NewOperation(ir.OpCheckCounter, nil, counter, ir.Const64(0x1000)))
		entry.Append(ir.NewOperation(ir.OpReturn, nil, ir.Const64(0x2000)))

		Expect(b.SetCounter(2)).To(Succeed())

		Expect(run()).To(Equal(uint64(0x2000)))
		Expect(run()).To(Equal(uint64(0x2000)))
		Expect(run()).To(Equal(uint64(0x1000)))
		Expect(b.Counter()).To(Equal(uint32(0xFFFF_FFFF)))
	})

	It("should stop at the step limit", func() {
		loop := fn.NewBlock(0x1000)
		loop.Append(ir.NewOperation(ir.OpBranch, nil))
		loop.Branch = loop

		_, err := run(emu.WithMaxSteps(100))
		Expect(err).To(MatchError(emu.ErrStepLimit))
	})

	It("should reject accesses outside the state block", func() {
		entry := fn.NewBlock(0x1000)
		x := fn.NewVirtual(ir.I64)
		entry.Append(ir.NewOperation(ir.OpLoadArgument, &base, ir.Const64(0)))
		entry.Append(ir.NewOperation(ir.OpLoad, &x, ir.Memory(ir.I64, base, state.Size)))
		entry.Append(ir.NewOperation(ir.OpReturn, nil, x))

		_, err := run()
		Expect(err).To(MatchError(state.ErrOutOfRange))
	})

	It("should hand calls to the call handler", func() {
		entry := fn.NewBlock(0x1000)
		r := fn.NewVirtual(ir.I64)
		entry.Append(ir.NewOperation(ir.OpCall, &r, ir.Const64(0xABC), ir.Const64(4), ir.Const64(5)))
		entry.Append(ir.NewOperation(ir.OpReturn, nil, r))

		var target uint64
		handler := func(t uint64, args []uint64) uint64 {
			target = t
			return args[0] * args[1]
		}

		Expect(run(emu.WithCallHandler(handler))).To(Equal(uint64(20)))
		Expect(target).To(Equal(uint64(0xABC)))
	})
})
