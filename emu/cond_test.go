package emu_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/m2dbt/emu"
	"github.com/sarchlab/m2dbt/insts"
)

var _ = Describe("ConditionHolds", func() {
	DescribeTable("condition codes",
		func(cond insts.Cond, f emu.Flags, want bool) {
			Expect(emu.ConditionHolds(cond, f)).To(Equal(want))
		},
		Entry("EQ with Z", insts.CondEQ, emu.Flags{Z: true}, true),
		Entry("NE with Z", insts.CondNE, emu.Flags{Z: true}, false),
		Entry("CS with C", insts.CondCS, emu.Flags{C: true}, true),
		Entry("CC with C", insts.CondCC, emu.Flags{C: true}, false),
		Entry("MI with N", insts.CondMI, emu.Flags{N: true}, true),
		Entry("PL without N", insts.CondPL, emu.Flags{}, true),
		Entry("VS with V", insts.CondVS, emu.Flags{V: true}, true),
		Entry("VC with V", insts.CondVC, emu.Flags{V: true}, false),
		Entry("HI with C and not Z", insts.CondHI, emu.Flags{C: true}, true),
		Entry("HI with C and Z", insts.CondHI, emu.Flags{C: true, Z: true}, false),
		Entry("LS with Z", insts.CondLS, emu.Flags{C: true, Z: true}, true),
		Entry("GE with N and V", insts.CondGE, emu.Flags{N: true, V: true}, true),
		Entry("LT with N only", insts.CondLT, emu.Flags{N: true}, true),
		Entry("GT with Z", insts.CondGT, emu.Flags{Z: true}, false),
		Entry("LE with N only", insts.CondLE, emu.Flags{N: true}, true),
		Entry("AL", insts.CondAL, emu.Flags{}, true),
		Entry("NV", insts.CondNV, emu.Flags{}, true),
	)

	It("should be the negation of the inverted condition", func() {
		for c := insts.CondEQ; c < insts.CondAL; c++ {
			for nzcv := uint32(0); nzcv < 16; nzcv++ {
				f := emu.FlagsFromNZCV(nzcv << 28)
				Expect(emu.ConditionHolds(c.Invert(), f)).To(Equal(!emu.ConditionHolds(c, f)), "%v %v", c, f)
			}
		}
	})

	It("should pack flags into NZCV", func() {
		f := emu.Flags{N: true, C: true}
		Expect(f.NZCV()).To(Equal(uint32(0xA000_0000)))
		Expect(emu.FlagsFromNZCV(f.NZCV())).To(Equal(f))
	})
})
