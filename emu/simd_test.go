package emu_test

import (
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/m2dbt/emu"
	"github.com/sarchlab/m2dbt/ir"
)

var _ = Describe("EvalIntrinsic", func() {
	Context("integer lanes", func() {
		It("should add 16 byte elements with wraparound", func() {
			a := ir.V128FromUint64s(0x0807060504030201, 0xFF0F0E0D0C0B0A09)
			b := ir.V128FromUint64s(0x0A0A0A0A0A0A0A0A, 0x010A0A0A0A0A0A0A)

			r, err := emu.EvalIntrinsic(ir.VAdd.With(ir.Size8, ir.Width128), a, b)
			Expect(err).NotTo(HaveOccurred())
			Expect(r.Uint8(0)).To(Equal(uint8(0x0B)))
			Expect(r.Uint8(15)).To(Equal(uint8(0x00)))
		})

		It("should clear the upper half for 64-bit variants", func() {
			a := ir.V128FromUint32s(1, 2, 3, 4)
			b := ir.V128FromUint32s(10, 20, 30, 40)

			r, err := emu.EvalIntrinsic(ir.VMul.With(ir.Size32, ir.Width64), a, b)
			Expect(err).NotTo(HaveOccurred())
			Expect(r.Uint32(0)).To(Equal(uint32(10)))
			Expect(r.Uint32(1)).To(Equal(uint32(40)))
			Expect(r.Hi()).To(BeZero())
		})

		It("should subtract 64-bit lanes", func() {
			r, err := emu.EvalIntrinsic(ir.VSub.With(ir.Size64, ir.Width128),
				ir.V128FromUint64s(5, 0), ir.V128FromUint64s(6, 1))
			Expect(err).NotTo(HaveOccurred())
			Expect(r.Uint64(0)).To(Equal(uint64(math.MaxUint64)))
			Expect(r.Uint64(1)).To(Equal(uint64(math.MaxUint64)))
		})

		It("should negate and take absolute values per lane", func() {
			a := ir.V128FromInt32s(-5, 7, math.MinInt32, 0)

			r, err := emu.EvalIntrinsic(ir.VAbs.With(ir.Size32, ir.Width128), a, ir.V128{})
			Expect(err).NotTo(HaveOccurred())
			Expect(r.Int32(0)).To(Equal(int32(5)))
			Expect(r.Int32(1)).To(Equal(int32(7)))
			Expect(r.Int32(2)).To(Equal(int32(math.MinInt32)))

			r, err = emu.EvalIntrinsic(ir.VNeg.With(ir.Size16, ir.Width64), ir.V128FromUint64s(1, 0), ir.V128{})
			Expect(err).NotTo(HaveOccurred())
			Expect(r.Uint16(0)).To(Equal(uint16(0xFFFF)))
			Expect(r.Uint16(1)).To(BeZero())
		})

		It("should count bits per byte", func() {
			r, err := emu.EvalIntrinsic(ir.VCnt.With(ir.Size8, ir.Width64), ir.V128FromUint64s(0xFF07_0100, 0xFF), ir.V128{})
			Expect(err).NotTo(HaveOccurred())
			Expect(r.Lo()).To(Equal(uint64(0x0803_0100)))
			Expect(r.Hi()).To(BeZero())
		})

		It("should apply bitwise operations to the full register", func() {
			a := ir.V128FromUint64s(0xF0F0, 0xFF00)
			b := ir.V128FromUint64s(0xFF00, 0x0FF0)

			r, err := emu.EvalIntrinsic(ir.VBic.With(ir.Size8, ir.Width128), a, b)
			Expect(err).NotTo(HaveOccurred())
			Expect(r.Equal(a.AndNot(b))).To(BeTrue())

			r, err = emu.EvalIntrinsic(ir.VNot.With(ir.Size8, ir.Width128), a, ir.V128{})
			Expect(err).NotTo(HaveOccurred())
			Expect(r.Equal(a.Not())).To(BeTrue())
		})
	})

	Context("floating point lanes", func() {
		It("should add singles", func() {
			a := ir.V128FromFloat32s(1.5, 2.5, 3.5, 4.5)
			b := ir.V128FromFloat32s(0.5, 0.5, 0.5, 0.5)

			r, err := emu.EvalIntrinsic(ir.VFAdd.With(ir.Size32, ir.Width128), a, b)
			Expect(err).NotTo(HaveOccurred())
			Expect(r.Float32(0)).To(Equal(float32(2.0)))
			Expect(r.Float32(3)).To(Equal(float32(5.0)))
		})

		It("should round single products to single precision", func() {
			x := float32(1.0000001)
			r, err := emu.EvalIntrinsic(ir.VFMul.With(ir.Size32, ir.Width64),
				ir.V128FromFloat32s(x, 0, 0, 0), ir.V128FromFloat32s(x, 0, 0, 0))
			Expect(err).NotTo(HaveOccurred())
			Expect(r.Float32(0)).To(Equal(x * x))
		})

		It("should divide doubles", func() {
			r, err := emu.EvalIntrinsic(ir.VFDiv.With(ir.Size64, ir.Width128),
				ir.V128FromFloat64s(1, -9), ir.V128FromFloat64s(4, 3))
			Expect(err).NotTo(HaveOccurred())
			Expect(r.Float64(0)).To(Equal(0.25))
			Expect(r.Float64(1)).To(Equal(-3.0))
		})

		It("should flip and clear sign bits without touching NaNs", func() {
			nan := math.Float32frombits(0x7FC0_0001)
			a := ir.V128FromFloat32s(-1, 2, nan, 0)

			r, err := emu.EvalIntrinsic(ir.VFNeg.With(ir.Size32, ir.Width128), a, ir.V128{})
			Expect(err).NotTo(HaveOccurred())
			Expect(r.Float32(0)).To(Equal(float32(1)))
			Expect(r.Uint32(2)).To(Equal(uint32(0xFFC0_0001)))

			r, err = emu.EvalIntrinsic(ir.VFAbs.With(ir.Size32, ir.Width128), a, ir.V128{})
			Expect(err).NotTo(HaveOccurred())
			Expect(r.Float32(0)).To(Equal(float32(1)))
		})

		It("should take square roots, maxima and minima", func() {
			a := ir.V128FromFloat64s(16, -2)
			b := ir.V128FromFloat64s(3, 5)

			r, err := emu.EvalIntrinsic(ir.VFSqrt.With(ir.Size64, ir.Width128), a, ir.V128{})
			Expect(err).NotTo(HaveOccurred())
			Expect(r.Float64(0)).To(Equal(4.0))
			Expect(math.IsNaN(r.Float64(1))).To(BeTrue())

			r, err = emu.EvalIntrinsic(ir.VFMax.With(ir.Size64, ir.Width128), a, b)
			Expect(err).NotTo(HaveOccurred())
			Expect(r.Float64(0)).To(Equal(16.0))
			Expect(r.Float64(1)).To(Equal(5.0))

			r, err = emu.EvalIntrinsic(ir.VFMin.With(ir.Size64, ir.Width128), a, b)
			Expect(err).NotTo(HaveOccurred())
			Expect(r.Float64(1)).To(Equal(-2.0))
		})
	})

	It("should reject unsupported variants", func() {
		_, err := emu.EvalIntrinsic(ir.VMul.With(ir.Size64, ir.Width128), ir.V128{}, ir.V128{})
		Expect(err).To(MatchError(emu.ErrUnsupported))

		_, err = emu.EvalIntrinsic(ir.VFAdd.With(ir.Size16, ir.Width128), ir.V128{}, ir.V128{})
		Expect(err).To(MatchError(emu.ErrUnsupported))
	})
})
