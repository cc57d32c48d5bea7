package emu_test

import (
	"fmt"
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/m2dbt/emu"
	"github.com/sarchlab/m2dbt/state"
)

// closedFormAdd computes n + m + carry with the comparison-based flag
// formulas used by the translator.
func closedFormAdd(n, m uint64, carry bool, is64 bool) (uint64, emu.Flags) {
	mask, sign := widthMask(is64)
	n, m = n&mask, m&mask

	r := n + m
	if carry {
		r++
	}
	r &= mask

	return r, emu.Flags{
		N: r&sign != 0,
		Z: r == 0,
		C: r < n || (carry && r == n),
		V: (n^r)&^(n^m)&sign != 0,
	}
}

// closedFormSub computes n - m - (1 - carry).
func closedFormSub(n, m uint64, carry bool, is64 bool) (uint64, emu.Flags) {
	mask, sign := widthMask(is64)
	n, m = n&mask, m&mask

	r := n - m
	if !carry {
		r--
	}
	r &= mask

	return r, emu.Flags{
		N: r&sign != 0,
		Z: r == 0,
		C: n > m || (carry && n == m),
		V: (n^r)&(n^m)&sign != 0,
	}
}

func widthMask(is64 bool) (mask, sign uint64) {
	if is64 {
		return math.MaxUint64, 1 << 63
	}
	return math.MaxUint32, 1 << 31
}

var boundary32 = []uint64{0, 1, math.MaxUint32, 0x8000_0000, 0x7FFF_FFFF, 0x8000_0001, 2}
var boundary64 = []uint64{0, 1, math.MaxUint64, 1 << 63, math.MaxInt64, 1<<63 + 1, 2, math.MaxUint32}

var _ = Describe("AddWithCarry", func() {
	for _, is64 := range []bool{false, true} {
		values := boundary32
		if is64 {
			values = boundary64
		}

		for _, carry := range []bool{false, true} {
			is64, carry, values := is64, carry, values
			name := fmt.Sprintf("64-bit=%v carry=%v", is64, carry)

			It("should match the closed-form add flags "+name, func() {
				for _, a := range values {
					for _, b := range values {
						r, f := emu.AddWithCarry(a, b, carry, is64)
						wr, wf := closedFormAdd(a, b, carry, is64)
						Expect(r).To(Equal(wr), "%#x + %#x", a, b)
						Expect(f).To(Equal(wf), "%#x + %#x", a, b)
					}
				}
			})

			It("should match the closed-form subtract flags "+name, func() {
				for _, a := range values {
					for _, b := range values {
						r, f := emu.AddWithCarry(a, ^b, carry, is64)
						wr, wf := closedFormSub(a, b, carry, is64)
						Expect(r).To(Equal(wr), "%#x - %#x", a, b)
						Expect(f).To(Equal(wf), "%#x - %#x", a, b)
					}
				}
			})
		}
	}

	DescribeTable("known results",
		func(a, b uint64, carry, is64 bool, want uint64, nzcv string) {
			r, f := emu.AddWithCarry(a, b, carry, is64)
			Expect(r).To(Equal(want))
			Expect(f.String()).To(Equal(nzcv))
		},
		Entry("32-bit signed overflow", uint64(0x7FFF_FFFF), uint64(1), false, false, uint64(0x8000_0000), "NzcV"),
		Entry("32-bit carry out to zero", uint64(0xFFFF_FFFF), uint64(1), false, false, uint64(0), "nZCv"),
		Entry("carry-in wraps", uint64(0xFFFF_FFFF), uint64(0), true, false, uint64(0), "nZCv"),
		Entry("64-bit min plus min", uint64(1<<63), uint64(1<<63), false, true, uint64(0), "nZCV"),
		Entry("64-bit max plus carry", uint64(math.MaxInt64), uint64(0), true, true, uint64(1<<63), "NzcV"),
	)
})

var _ = Describe("ALU", func() {
	var (
		b   *state.Block
		alu *emu.ALU
	)

	BeforeEach(func() {
		b = state.NewHeap()
		alu = emu.NewALU(b)
	})

	flags := func() emu.Flags {
		f, err := emu.LoadFlags(b)
		Expect(err).NotTo(HaveOccurred())
		return f
	}

	It("should compute ADDS 0x7FFFFFFF + 1 at 32 bits", func() {
		Expect(b.SetIntReg(1, 0x7FFF_FFFF)).To(Succeed())
		Expect(alu.ADD(0, 1, 1, false, true)).To(Succeed())

		Expect(b.IntReg(0)).To(Equal(uint64(0x8000_0000)))
		Expect(flags()).To(Equal(emu.Flags{N: true, V: true}))
	})

	Describe("subtraction carry is NOT borrow", func() {
		It("should set C and Z when a == b", func() {
			Expect(b.SetIntReg(1, 5)).To(Succeed())
			Expect(alu.SUB(0, 1, 5, true, true)).To(Succeed())
			Expect(flags()).To(Equal(emu.Flags{Z: true, C: true}))
		})

		It("should overflow for MIN - 1", func() {
			Expect(b.SetIntReg(1, 1<<63)).To(Succeed())
			Expect(alu.SUB(0, 1, 1, true, true)).To(Succeed())
			Expect(b.IntReg(0)).To(Equal(uint64(math.MaxInt64)))
			Expect(flags()).To(Equal(emu.Flags{C: true, V: true}))
		})

		It("should borrow for 0 - 1", func() {
			Expect(alu.SUB(0, 1, 1, false, true)).To(Succeed())
			Expect(b.IntReg(0)).To(Equal(uint64(0xFFFF_FFFF)))
			Expect(flags()).To(Equal(emu.Flags{N: true}))
		})

		It("should subtract the inverted carry in SBC", func() {
			Expect(b.SetIntReg(1, 10)).To(Succeed())
			Expect(alu.SBC(0, 1, 3, true, true)).To(Succeed())
			Expect(b.IntReg(0)).To(Equal(uint64(6)))
			Expect(flags().C).To(BeTrue())

			Expect(alu.SBC(0, 1, 3, true, true)).To(Succeed())
			Expect(b.IntReg(0)).To(Equal(uint64(7)))
		})

		It("should treat SBC of equal values with carry clear as a borrow", func() {
			Expect(b.SetIntReg(1, 3)).To(Succeed())
			Expect(alu.SBC(0, 1, 3, true, true)).To(Succeed())
			Expect(b.IntReg(0)).To(Equal(uint64(math.MaxUint64)))
			Expect(flags()).To(Equal(emu.Flags{N: true}))
		})
	})

	It("should add the carry in ADC", func() {
		Expect(b.SetFlag(state.FlagC, true)).To(Succeed())
		Expect(b.SetIntReg(1, math.MaxUint64)).To(Succeed())
		Expect(alu.ADC(0, 1, 0, true, true)).To(Succeed())
		Expect(b.IntReg(0)).To(BeZero())
		Expect(flags()).To(Equal(emu.Flags{Z: true, C: true}))
	})

	It("should leave the zero register untouched but update flags", func() {
		Expect(b.SetIntReg(31, 0x1234)).To(Succeed())
		Expect(b.SetIntReg(1, 0)).To(Succeed())
		Expect(alu.SUB(31, 1, 1, true, true)).To(Succeed())

		Expect(b.IntReg(31)).To(Equal(uint64(0x1234)))
		Expect(flags()).To(Equal(emu.Flags{N: true}))
	})

	It("should clear C and V in logical flag-setting ops", func() {
		Expect(emu.StoreFlags(b, emu.Flags{C: true, V: true})).To(Succeed())
		Expect(b.SetIntReg(1, 0xF0)).To(Succeed())
		Expect(alu.AND(0, 1, 0x0F, true, true)).To(Succeed())
		Expect(flags()).To(Equal(emu.Flags{Z: true}))

		Expect(alu.BIC(0, 1, 0x0F, false, true)).To(Succeed())
		Expect(b.IntReg(0)).To(Equal(uint64(0xF0)))
		Expect(flags()).To(Equal(emu.Flags{}))
	})

	It("should zero-extend 32-bit results", func() {
		Expect(b.SetIntReg(1, 0xFFFF_FFFF_0000_0001)).To(Succeed())
		Expect(alu.ORR(0, 1, 0x10, false)).To(Succeed())
		Expect(b.IntReg(0)).To(Equal(uint64(0x11)))

		Expect(alu.EOR(0, 1, 1, true)).To(Succeed())
		Expect(b.IntReg(0)).To(Equal(uint64(0xFFFF_FFFF_0000_0000)))
	})
})
