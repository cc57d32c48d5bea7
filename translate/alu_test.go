package translate_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/m2dbt/emu"
	"github.com/sarchlab/m2dbt/insts"
	"github.com/sarchlab/m2dbt/state"
	"github.com/sarchlab/m2dbt/translate"
)

var boundary = []uint64{
	0, 1, 2, 0x7F, 0x80,
	0x7FFFFFFF, 0x80000000, 0x80000001, 0xFFFFFFFE, 0xFFFFFFFF,
	0x100000000, 0x7FFFFFFFFFFFFFFF, 0x8000000000000000,
	0xFFFFFFFFFFFFFFFE, 0xFFFFFFFFFFFFFFFF,
}

var _ = Describe("ALU lowering", func() {
	var b *state.Block

	BeforeEach(func() {
		b = state.NewHeap()
	})

	Context("flag-setting arithmetic", func() {
		type oracle func(a *emu.ALU, is64 bool) error

		DescribeTable("should match the reference ALU",
			func(op insts.Op, ref oracle) {
				for _, is64 := range []bool{false, true} {
					for _, carry := range []bool{false, true} {
						for _, n := range boundary {
							for _, m := range boundary {
								got := state.NewHeap()
								want := state.NewHeap()
								for _, s := range []*state.Block{got, want} {
									Expect(s.SetIntReg(0, 0xDEAD)).To(Succeed())
									Expect(s.SetIntReg(1, n)).To(Succeed())
									Expect(s.SetIntReg(2, m)).To(Succeed())
									Expect(s.SetFlag(state.FlagC, carry)).To(Succeed())
								}

								execute(got, place(&insts.Instruction{
									Op: op, Format: insts.FormatReg,
									Is64Bit: is64, SetFlags: true,
									Rd: 0, Rn: 1, Rm: 2,
								}))
								Expect(ref(emu.NewALU(want), is64)).To(Succeed())

								Expect(reg(got, 0)).To(Equal(reg(want, 0)),
									"%v n=%#x m=%#x c=%v is64=%v", op, n, m, carry, is64)
								Expect(flags(got)).To(Equal(flags(want)),
									"%v n=%#x m=%#x c=%v is64=%v", op, n, m, carry, is64)
							}
						}
					}
				}
			},
			Entry("ADDS", insts.OpADD, oracle(func(a *emu.ALU, is64 bool) error {
				m, _ := a.ReadReg(2, is64)
				return a.ADD(0, 1, m, is64, true)
			})),
			Entry("SUBS", insts.OpSUB, oracle(func(a *emu.ALU, is64 bool) error {
				m, _ := a.ReadReg(2, is64)
				return a.SUB(0, 1, m, is64, true)
			})),
			Entry("ADCS", insts.OpADC, oracle(func(a *emu.ALU, is64 bool) error {
				m, _ := a.ReadReg(2, is64)
				return a.ADC(0, 1, m, is64, true)
			})),
			Entry("SBCS", insts.OpSBC, oracle(func(a *emu.ALU, is64 bool) error {
				m, _ := a.ReadReg(2, is64)
				return a.SBC(0, 1, m, is64, true)
			})),
			Entry("ANDS", insts.OpAND, oracle(func(a *emu.ALU, is64 bool) error {
				m, _ := a.ReadReg(2, is64)
				return a.AND(0, 1, m, is64, true)
			})),
			Entry("BICS", insts.OpBIC, oracle(func(a *emu.ALU, is64 bool) error {
				m, _ := a.ReadReg(2, is64)
				return a.BIC(0, 1, m, is64, true)
			})),
		)
	})

	DescribeTable("should reject carry arithmetic with an immediate",
		func(op insts.Op) {
			_, err := translate.New().Translate(0x1000, place(&insts.Instruction{
				Op: op, Format: insts.FormatImm, Is64Bit: true, Rd: 0, Rn: 1, Imm: 1,
			}))
			Expect(err).To(MatchError(translate.ErrUnimplemented))
		},
		Entry("ADC", insts.OpADC),
		Entry("SBC", insts.OpSBC),
	)

	It("should set N and V for ADDS W0, W1, #1 on 0x7FFFFFFF", func() {
		Expect(b.SetIntReg(1, 0x7FFFFFFF)).To(Succeed())

		execute(b, place(&insts.Instruction{
			Op: insts.OpADD, Format: insts.FormatImm, SetFlags: true,
			Rd: 0, Rn: 1, Imm: 1,
		}))

		Expect(reg(b, 0)).To(Equal(uint64(0x80000000)))
		Expect(flags(b)).To(Equal(emu.Flags{N: true, V: true}))
	})

	It("should discard the value but keep the flags for a ZR destination", func() {
		Expect(b.SetIntReg(1, 0x7FFFFFFF)).To(Succeed())
		Expect(b.SetIntReg(state.SP, 0x8000)).To(Succeed())

		execute(b, place(&insts.Instruction{
			Op: insts.OpADD, Format: insts.FormatImm, SetFlags: true,
			Rd: insts.ZeroReg, Rn: 1, Imm: 1,
		}))

		Expect(reg(b, state.SP)).To(Equal(uint64(0x8000)))
		for i := 0; i < state.SP; i++ {
			if i != 1 {
				Expect(reg(b, i)).To(BeZero())
			}
		}
		Expect(flags(b)).To(Equal(emu.Flags{N: true, V: true}))
	})

	It("should address SP with the immediate forms of ADD and SUB", func() {
		Expect(b.SetIntReg(state.SP, 0x8000)).To(Succeed())

		execute(b, place(
			&insts.Instruction{
				Op: insts.OpSUB, Format: insts.FormatImm, Is64Bit: true,
				Rd: insts.ZeroReg, Rn: insts.ZeroReg, Imm: 0x20,
			},
			&insts.Instruction{
				Op: insts.OpADD, Format: insts.FormatImm, Is64Bit: true,
				Rd: 0, Rn: insts.ZeroReg, Imm: 1, Shift: 12,
			},
		))

		Expect(reg(b, state.SP)).To(Equal(uint64(0x7FE0)))
		Expect(reg(b, 0)).To(Equal(uint64(0x8FE0)))
	})

	It("should read the zero register in the shifted register forms", func() {
		Expect(b.SetIntReg(state.SP, 0x8000)).To(Succeed())
		Expect(b.SetIntReg(2, 7)).To(Succeed())

		execute(b, place(&insts.Instruction{
			Op: insts.OpADD, Format: insts.FormatReg, Is64Bit: true,
			Rd: 0, Rn: insts.ZeroReg, Rm: 2,
		}))

		Expect(reg(b, 0)).To(Equal(uint64(7)))
	})

	It("should zero-extend 32-bit results", func() {
		Expect(b.SetIntReg(0, 0xFFFFFFFF_FFFFFFFF)).To(Succeed())
		Expect(b.SetIntReg(1, 0xFFFFFFFF_00000005)).To(Succeed())

		execute(b, place(&insts.Instruction{
			Op: insts.OpSUB, Format: insts.FormatImm, Rd: 0, Rn: 1, Imm: 6,
		}))

		Expect(reg(b, 0)).To(Equal(uint64(0xFFFFFFFF)))
	})

	DescribeTable("shifted register operands",
		func(st insts.ShiftType, amount uint8, is64 bool, m, expected uint64) {
			Expect(b.SetIntReg(2, m)).To(Succeed())

			execute(b, place(&insts.Instruction{
				Op: insts.OpORR, Format: insts.FormatReg, Is64Bit: is64,
				Rd: 0, Rn: insts.ZeroReg, Rm: 2,
				ShiftType: st, ShiftAmount: amount,
			}))

			Expect(reg(b, 0)).To(Equal(expected))
		},
		Entry("LSL", insts.ShiftLSL, uint8(4), true, uint64(0xF000000000000001), uint64(0x10)),
		Entry("LSR", insts.ShiftLSR, uint8(4), true, uint64(0x8000000000000000), uint64(0x0800000000000000)),
		Entry("ASR", insts.ShiftASR, uint8(4), true, uint64(0x8000000000000000), uint64(0xF800000000000000)),
		Entry("ROR", insts.ShiftROR, uint8(4), true, uint64(0x1), uint64(0x1000000000000000)),
		Entry("ASR 32", insts.ShiftASR, uint8(8), false, uint64(0x80000000), uint64(0xFF800000)),
		Entry("ROR 32", insts.ShiftROR, uint8(8), false, uint64(0x12345678), uint64(0x78123456)),
	)

	DescribeTable("logical operations",
		func(op insts.Op, n, m, expected uint64) {
			Expect(b.SetIntReg(1, n)).To(Succeed())
			Expect(b.SetIntReg(2, m)).To(Succeed())

			execute(b, place(&insts.Instruction{
				Op: op, Format: insts.FormatReg, Is64Bit: true, Rd: 0, Rn: 1, Rm: 2,
			}))

			Expect(reg(b, 0)).To(Equal(expected))
		},
		Entry("AND", insts.OpAND, uint64(0xFF00), uint64(0x0FF0), uint64(0x0F00)),
		Entry("BIC", insts.OpBIC, uint64(0xFF00), uint64(0x0FF0), uint64(0xF000)),
		Entry("ORR", insts.OpORR, uint64(0xFF00), uint64(0x0FF0), uint64(0xFFF0)),
		Entry("ORN", insts.OpORN, uint64(0), uint64(0xFFFFFFFFFFFFFFF0), uint64(0xF)),
		Entry("EOR", insts.OpEOR, uint64(0xFF00), uint64(0x0FF0), uint64(0xF0F0)),
		Entry("EON", insts.OpEON, uint64(0xFF00), uint64(0xFFFFFFFFFFFF0FF0), uint64(0x0F0F)),
	)

	It("should leave C and V untouched by non-flag-setting logical ops", func() {
		Expect(emu.StoreFlags(b, emu.Flags{C: true, V: true})).To(Succeed())

		execute(b, place(&insts.Instruction{
			Op: insts.OpAND, Format: insts.FormatReg, Is64Bit: true, Rd: 0, Rn: 1, Rm: 2,
		}))

		Expect(flags(b)).To(Equal(emu.Flags{C: true, V: true}))
	})

	It("should clear C and V for ANDS", func() {
		Expect(emu.StoreFlags(b, emu.Flags{C: true, V: true})).To(Succeed())

		execute(b, place(&insts.Instruction{
			Op: insts.OpAND, Format: insts.FormatReg, Is64Bit: true, SetFlags: true,
			Rd: 0, Rn: 1, Rm: 2,
		}))

		Expect(flags(b)).To(Equal(emu.Flags{Z: true}))
	})

	It("should build a constant with MOVZ and MOVK", func() {
		execute(b, place(
			&insts.Instruction{Op: insts.OpMOVZ, Format: insts.FormatImm, Is64Bit: true, Rd: 3, Imm: 0x1234, Shift: 48},
			&insts.Instruction{Op: insts.OpMOVK, Format: insts.FormatImm, Is64Bit: true, Rd: 3, Imm: 0x5678, Shift: 16},
			&insts.Instruction{Op: insts.OpMOVK, Format: insts.FormatImm, Is64Bit: true, Rd: 3, Imm: 0x9ABC},
		))

		Expect(reg(b, 3)).To(Equal(uint64(0x1234_0000_5678_9ABC)))
	})

	It("should invert the shifted immediate for MOVN", func() {
		execute(b, place(
			&insts.Instruction{Op: insts.OpMOVN, Format: insts.FormatImm, Is64Bit: true, Rd: 0, Imm: 0xF},
			&insts.Instruction{Op: insts.OpMOVN, Format: insts.FormatImm, Rd: 1, Imm: 0x1, Shift: 16},
		))

		Expect(reg(b, 0)).To(Equal(uint64(0xFFFFFFFFFFFFFFF0)))
		Expect(reg(b, 1)).To(Equal(uint64(0xFFFEFFFF)))
	})

	DescribeTable("multiply and divide",
		func(op insts.Op, is64 bool, n, m, a, expected uint64) {
			Expect(b.SetIntReg(1, n)).To(Succeed())
			Expect(b.SetIntReg(2, m)).To(Succeed())
			Expect(b.SetIntReg(3, a)).To(Succeed())

			execute(b, place(&insts.Instruction{
				Op: op, Format: insts.FormatReg, Is64Bit: is64, Rd: 0, Rn: 1, Rm: 2, Ra: 3,
			}))

			Expect(reg(b, 0)).To(Equal(expected))
		},
		Entry("MUL", insts.OpMUL, true, uint64(6), uint64(7), uint64(0), uint64(42)),
		Entry("MUL 32 wraps", insts.OpMUL, false, uint64(0x10000), uint64(0x10000), uint64(0), uint64(0)),
		Entry("MADD", insts.OpMADD, true, uint64(6), uint64(7), uint64(100), uint64(142)),
		Entry("MSUB", insts.OpMSUB, true, uint64(6), uint64(7), uint64(100), uint64(58)),
		Entry("SDIV", insts.OpSDIV, true, uint64(0xFFFFFFFFFFFFFFF9), uint64(2), uint64(0), uint64(0xFFFFFFFFFFFFFFFD)),
		Entry("SDIV by zero", insts.OpSDIV, true, uint64(5), uint64(0), uint64(0), uint64(0)),
		Entry("SDIV overflow", insts.OpSDIV, false, uint64(0x80000000), uint64(0xFFFFFFFF), uint64(0), uint64(0x80000000)),
		Entry("UDIV", insts.OpUDIV, true, uint64(0xFFFFFFFFFFFFFFF9), uint64(2), uint64(0), uint64(0x7FFFFFFFFFFFFFFC)),
		Entry("UDIV by zero", insts.OpUDIV, false, uint64(5), uint64(0), uint64(0), uint64(0)),
	)

	DescribeTable("variable shifts",
		func(op insts.Op, is64 bool, n, amount, expected uint64) {
			Expect(b.SetIntReg(1, n)).To(Succeed())
			Expect(b.SetIntReg(2, amount)).To(Succeed())

			execute(b, place(&insts.Instruction{
				Op: op, Format: insts.FormatReg, Is64Bit: is64, Rd: 0, Rn: 1, Rm: 2,
			}))

			Expect(reg(b, 0)).To(Equal(expected))
		},
		Entry("LSLV", insts.OpLSLV, true, uint64(1), uint64(63), uint64(0x8000000000000000)),
		Entry("LSLV masks the amount", insts.OpLSLV, true, uint64(1), uint64(65), uint64(2)),
		Entry("LSLV 32 masks the amount", insts.OpLSLV, false, uint64(1), uint64(33), uint64(2)),
		Entry("LSRV", insts.OpLSRV, true, uint64(0x8000000000000000), uint64(63), uint64(1)),
		Entry("ASRV", insts.OpASRV, false, uint64(0x80000000), uint64(31), uint64(0xFFFFFFFF)),
		Entry("RORV", insts.OpRORV, false, uint64(1), uint64(1), uint64(0x80000000)),
	)

	It("should select with CSEL and increment with CSINC", func() {
		Expect(b.SetIntReg(1, 10)).To(Succeed())
		Expect(b.SetIntReg(2, 20)).To(Succeed())
		Expect(emu.StoreFlags(b, emu.Flags{Z: true})).To(Succeed())

		execute(b, place(
			&insts.Instruction{Op: insts.OpCSEL, Format: insts.FormatReg, Is64Bit: true, Rd: 3, Rn: 1, Rm: 2, Cond: insts.CondEQ},
			&insts.Instruction{Op: insts.OpCSEL, Format: insts.FormatReg, Is64Bit: true, Rd: 4, Rn: 1, Rm: 2, Cond: insts.CondNE},
			&insts.Instruction{Op: insts.OpCSINC, Format: insts.FormatReg, Is64Bit: true, Rd: 5, Rn: 1, Rm: 2, Cond: insts.CondNE},
			&insts.Instruction{Op: insts.OpCSINC, Format: insts.FormatReg, Rd: 6, Rn: insts.ZeroReg, Rm: insts.ZeroReg, Cond: insts.CondNE},
		))

		Expect(reg(b, 3)).To(Equal(uint64(10)))
		Expect(reg(b, 4)).To(Equal(uint64(20)))
		Expect(reg(b, 5)).To(Equal(uint64(21)))
		Expect(reg(b, 6)).To(Equal(uint64(1)))
	})

	It("should evaluate every condition code like the reference model", func() {
		for nzcv := uint32(0); nzcv < 16; nzcv++ {
			f := emu.FlagsFromNZCV(nzcv << 28)
			for cond := insts.CondEQ; cond <= insts.CondNV; cond++ {
				s := state.NewHeap()
				Expect(s.SetIntReg(1, 1)).To(Succeed())
				Expect(s.SetIntReg(2, 2)).To(Succeed())
				Expect(emu.StoreFlags(s, f)).To(Succeed())

				execute(s, place(&insts.Instruction{
					Op: insts.OpCSEL, Format: insts.FormatReg, Is64Bit: true,
					Rd: 0, Rn: 1, Rm: 2, Cond: cond,
				}))

				expected := uint64(2)
				if emu.ConditionHolds(cond, f) {
					expected = 1
				}
				Expect(reg(s, 0)).To(Equal(expected), "%v with %v", cond, f)
			}
		}
	})
})
