package codegen

import (
	"tlog.app/go/errors"

	"github.com/sarchlab/m2dbt/ir"
)

// variantFold says how an intrinsic variant is folded into its template.
type variantFold uint8

const (
	foldNone      variantFold = iota // byte-wise, size bits stay zero
	foldSize                         // integer element size in bits 23:22
	foldPrecision                    // double precision in bit 22
)

type intrinsicInfo struct {
	template uint32
	unary    bool
	fold     variantFold
}

// AdvSIMD templates with Q=0 and the smallest element size.
var intrinsicTable = map[ir.Intrinsic]intrinsicInfo{
	ir.VAdd: {template: 0x0E208400, fold: foldSize},
	ir.VSub: {template: 0x2E208400, fold: foldSize},
	ir.VMul: {template: 0x0E209C00, fold: foldSize},
	ir.VAnd: {template: 0x0E201C00},
	ir.VBic: {template: 0x0E601C00},
	ir.VOrr: {template: 0x0EA01C00},
	ir.VEor: {template: 0x2E201C00},
	ir.VNeg: {template: 0x2E20B800, unary: true, fold: foldSize},
	ir.VAbs: {template: 0x0E20B800, unary: true, fold: foldSize},
	ir.VNot: {template: 0x2E205800, unary: true},
	ir.VCnt: {template: 0x0E205800, unary: true},

	ir.VFAdd:  {template: 0x0E20D400, fold: foldPrecision},
	ir.VFSub:  {template: 0x0EA0D400, fold: foldPrecision},
	ir.VFMul:  {template: 0x2E20DC00, fold: foldPrecision},
	ir.VFDiv:  {template: 0x2E20FC00, fold: foldPrecision},
	ir.VFMax:  {template: 0x0E20F400, fold: foldPrecision},
	ir.VFMin:  {template: 0x0EA0F400, fold: foldPrecision},
	ir.VFNeg:  {template: 0x2EA0F800, unary: true, fold: foldPrecision},
	ir.VFAbs:  {template: 0x0EA0F800, unary: true, fold: foldPrecision},
	ir.VFSqrt: {template: 0x2EA1F800, unary: true, fold: foldPrecision},
}

// EncodeIntrinsic returns the host instruction for id operating on
// vector registers d, n and m. m is ignored by unary operations.
func EncodeIntrinsic(id ir.Intrinsic, d, n, m Reg) (uint32, error) {
	info, ok := intrinsicTable[id.Base()]
	if !ok || !id.Valid() {
		return 0, errors.Wrap(ErrUnimplemented, "intrinsic %v", id)
	}

	inst := info.template
	switch info.fold {
	case foldSize:
		inst |= uint32(id.Size()) << 22
	case foldPrecision:
		if id.Size() == ir.Size64 {
			inst |= 1 << 22
		}
	}
	if id.Width() == ir.Width128 {
		inst |= 1 << 30 // Q
	}

	inst |= rn(n) | rd(d)
	if !info.unary {
		inst |= rm(m)
	}
	return inst, nil
}
