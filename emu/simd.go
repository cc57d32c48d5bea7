package emu

import (
	"math"
	"math/bits"

	"tlog.app/go/errors"

	"github.com/sarchlab/m2dbt/ir"
)

type (
	intLaneOp   func(a, b uint64, width int) uint64
	floatLaneOp func(a, b float64) float64
)

var intLaneOps = map[ir.Intrinsic]intLaneOp{
	ir.VAdd: func(a, b uint64, _ int) uint64 { return a + b },
	ir.VSub: func(a, b uint64, _ int) uint64 { return a - b },
	ir.VMul: func(a, b uint64, _ int) uint64 { return a * b },
	ir.VAnd: func(a, b uint64, _ int) uint64 { return a & b },
	ir.VBic: func(a, b uint64, _ int) uint64 { return a &^ b },
	ir.VOrr: func(a, b uint64, _ int) uint64 { return a | b },
	ir.VEor: func(a, b uint64, _ int) uint64 { return a ^ b },
	ir.VNeg: func(a, _ uint64, _ int) uint64 { return -a },
	ir.VNot: func(a, _ uint64, _ int) uint64 { return ^a },
	ir.VCnt: func(a, _ uint64, _ int) uint64 { return uint64(bits.OnesCount64(a)) },
	ir.VAbs: func(a, _ uint64, width int) uint64 {
		if a>>(width-1)&1 == 1 {
			return -a
		}
		return a
	},
}

var floatLaneOps = map[ir.Intrinsic]floatLaneOp{
	ir.VFAdd:  func(a, b float64) float64 { return a + b },
	ir.VFSub:  func(a, b float64) float64 { return a - b },
	ir.VFMul:  func(a, b float64) float64 { return a * b },
	ir.VFDiv:  func(a, b float64) float64 { return a / b },
	ir.VFMax:  math.Max,
	ir.VFMin:  math.Min,
	ir.VFSqrt: func(a, _ float64) float64 { return math.Sqrt(a) },
}

// EvalIntrinsic applies a vector intrinsic lane by lane. Results of
// 64-bit wide variants have the upper half cleared.
func EvalIntrinsic(id ir.Intrinsic, a, b ir.V128) (ir.V128, error) {
	if !id.Valid() {
		return ir.V128{}, errors.Wrap(ErrUnsupported, "intrinsic %v", id)
	}

	width := id.Size().Bits()
	lanes := id.Lanes()
	mask := ^uint64(0) >> (64 - width)

	var out ir.V128

	switch base := id.Base(); {
	case base == ir.VFNeg || base == ir.VFAbs:
		sign := uint64(1) << (width - 1)
		for i := 0; i < lanes; i++ {
			x := a.Element(width, i)
			if base == ir.VFNeg {
				x ^= sign
			} else {
				x &^= sign
			}
			out = out.WithElement(width, i, x)
		}
	case id.IsFloat():
		op := floatLaneOps[base]
		for i := 0; i < lanes; i++ {
			x, y := a.Element(width, i), b.Element(width, i)
			out = out.WithElement(width, i, floatLane(op, x, y, width))
		}
	default:
		op := intLaneOps[base]
		for i := 0; i < lanes; i++ {
			x, y := a.Element(width, i), b.Element(width, i)
			out = out.WithElement(width, i, op(x, y, width)&mask)
		}
	}

	if id.Width() == ir.Width64 {
		out = out.Low64()
	}

	return out, nil
}

func floatLane(op floatLaneOp, x, y uint64, width int) uint64 {
	if width == 32 {
		r := float32(op(float64(math.Float32frombits(uint32(x))), float64(math.Float32frombits(uint32(y)))))
		return uint64(math.Float32bits(r))
	}
	return math.Float64bits(op(math.Float64frombits(x), math.Float64frombits(y)))
}
