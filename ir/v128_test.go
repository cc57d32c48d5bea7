package ir_test

import (
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/m2dbt/ir"
)

var _ = Describe("V128", func() {
	Describe("constructors", func() {
		It("should round-trip four float32 lanes bit-exactly", func() {
			lanes := []float32{1.5, float32(math.Inf(-1)), -0.0, math.MaxFloat32}
			v := ir.V128FromFloat32s(lanes[0], lanes[1], lanes[2], lanes[3])

			for i, f := range lanes {
				Expect(math.Float32bits(v.Float32(i))).To(Equal(math.Float32bits(f)))
			}
		})

		It("should keep NaN payloads", func() {
			nan := math.Float32frombits(0x7FC0_1234)
			v := ir.V128FromFloat32s(0, 0, nan, 0)
			Expect(v.Uint32(2)).To(Equal(uint32(0x7FC0_1234)))
		})

		It("should pack 32-bit elements least significant first", func() {
			v := ir.V128FromUint32s(1, 2, 3, 4)
			Expect(v.Lo()).To(Equal(uint64(0x0000_0002_0000_0001)))
			Expect(v.Hi()).To(Equal(uint64(0x0000_0004_0000_0003)))
		})

		It("should zero the rest for single element forms", func() {
			Expect(ir.V128FromFloat32(2).Hi()).To(BeZero())
			Expect(ir.V128FromFloat32(2).Uint32(1)).To(BeZero())
			Expect(ir.V128FromFloat64(2).Hi()).To(BeZero())
		})

		It("should read signed views", func() {
			v := ir.V128FromInt32s(-1, 2, math.MinInt32, 4)
			Expect(v.Int32(0)).To(Equal(int32(-1)))
			Expect(v.Int32(2)).To(Equal(int32(math.MinInt32)))

			w := ir.V128FromInt64s(-5, 7)
			Expect(w.Int64(0)).To(Equal(int64(-5)))
			Expect(w.Int64(1)).To(Equal(int64(7)))
		})

		It("should convert bytes little-endian", func() {
			var b [16]byte
			for i := range b {
				b[i] = byte(i)
			}
			v := ir.V128FromBytes(b)
			Expect(v.Uint8(0)).To(Equal(uint8(0)))
			Expect(v.Uint8(15)).To(Equal(uint8(15)))
			Expect(v.Lo()).To(Equal(uint64(0x0706050403020100)))
			Expect(v.Bytes()).To(Equal(b))
		})

		It("should read doubles", func() {
			v := ir.V128FromFloat64s(1.25, -3)
			Expect(v.Float64(0)).To(Equal(1.25))
			Expect(v.Float64(1)).To(Equal(-3.0))
		})
	})

	Describe("lane views", func() {
		v := ir.V128FromUint64s(1, 2)

		DescribeTable("out-of-range indices panic",
			func(f func()) {
				Expect(f).To(PanicWith(MatchError(ir.ErrLaneIndex)))
			},
			Entry("uint64 2", func() { v.Uint64(2) }),
			Entry("float64 -1", func() { v.Float64(-1) }),
			Entry("float32 4", func() { v.Float32(4) }),
			Entry("int32 4", func() { v.Int32(4) }),
			Entry("uint16 8", func() { v.Uint16(8) }),
			Entry("uint8 16", func() { v.Uint8(16) }),
			Entry("with uint32 4", func() { v.WithUint32(4, 0) }),
		)

		It("should replace single elements", func() {
			w := ir.V128FromUint64s(0, 0).
				WithUint8(9, 0xAB).
				WithUint16(0, 0x1234).
				WithUint32(3, 0xDEADBEEF)

			Expect(w.Uint8(9)).To(Equal(uint8(0xAB)))
			Expect(w.Uint16(0)).To(Equal(uint16(0x1234)))
			Expect(w.Uint32(3)).To(Equal(uint32(0xDEADBEEF)))
			Expect(w.Uint8(8)).To(BeZero())
		})

		It("should not modify the receiver", func() {
			w := v.WithUint64(0, 99)
			Expect(v.Uint64(0)).To(Equal(uint64(1)))
			Expect(w.Uint64(0)).To(Equal(uint64(99)))
		})

		It("should access elements by width", func() {
			w := v.WithElement(16, 5, 0xBEEF)
			Expect(w.Element(16, 5)).To(Equal(uint64(0xBEEF)))
			Expect(w.Element(64, 0)).To(Equal(uint64(1)))
		})
	})

	Describe("boolean algebra", func() {
		a := ir.V128FromUint64s(0xF0F0_F0F0_0000_FFFF, 0x1234_5678_9ABC_DEF0)
		b := ir.V128FromUint64s(0xFF00_FF00_FF00_FF00, 0x0FED_CBA9_8765_4321)
		c := ir.V128FromUint64s(0x0123_4567_89AB_CDEF, 0xFFFF_0000_FFFF_0000)

		It("should satisfy double negation", func() {
			Expect(a.Not().Not().Equal(a)).To(BeTrue())
		})

		It("should satisfy De Morgan", func() {
			Expect(a.And(b).Not().Equal(a.Not().Or(b.Not()))).To(BeTrue())
			Expect(a.Or(b).Not().Equal(a.Not().And(b.Not()))).To(BeTrue())
		})

		It("should distribute", func() {
			Expect(a.And(b.Or(c)).Equal(a.And(b).Or(a.And(c)))).To(BeTrue())
		})

		It("should cancel with xor", func() {
			Expect(a.Xor(a).IsZero()).To(BeTrue())
			Expect(a.Xor(b).Xor(b).Equal(a)).To(BeTrue())
		})

		It("should define and-not", func() {
			Expect(a.AndNot(b).Equal(a.And(b.Not()))).To(BeTrue())
		})
	})

	Describe("equality and hashing", func() {
		It("should compare every bit", func() {
			a := ir.V128FromUint64s(1, 2)
			Expect(a.Equal(ir.V128FromUint64s(1, 2))).To(BeTrue())
			Expect(a.Equal(ir.V128FromUint64s(1, 3))).To(BeFalse())
			Expect(a.Equal(ir.V128FromUint64s(2, 1))).To(BeFalse())
		})

		It("should hash equal values equally", func() {
			a := ir.V128FromUint32s(1, 2, 3, 4)
			Expect(a.Hash()).To(Equal(ir.V128FromUint32s(1, 2, 3, 4).Hash()))
			Expect(a.Hash()).NotTo(Equal(ir.V128FromUint64s(a.Hi(), a.Lo()).Hash()))
		})
	})
})
