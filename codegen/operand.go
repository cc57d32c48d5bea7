package codegen

import (
	"tlog.app/go/errors"

	"github.com/sarchlab/m2dbt/ir"
)

// is64 returns the register width used for integer type t.
func is64(t ir.Type) (bool, error) {
	switch t {
	case ir.I64:
		return true, nil
	case ir.I32:
		return false, nil
	}
	return false, errors.Wrap(ErrUnimplemented, "integer arithmetic on %v", t)
}

// movImm loads v into r with MOVZ or MOVN followed by MOVK for the
// remaining halfwords.
func (g *generator) movImm(wide bool, r Reg, v uint64) {
	halves := 2
	if wide {
		halves = 4
	} else {
		v &= 0xFFFFFFFF
	}

	mask := uint64(1)<<(16*halves) - 1
	if halves == 4 {
		mask = ^uint64(0)
	}

	count := func(x uint64) int {
		n := 0
		for i := 0; i < halves; i++ {
			if uint16(x>>(16*i)) != 0 {
				n++
			}
		}
		return n
	}

	inverted := count(^v&mask) < count(v)
	fill := uint16(0)
	if inverted {
		fill = 0xFFFF
	}

	first := true
	for i := 0; i < halves; i++ {
		h := uint16(v >> (16 * i))
		if h == fill {
			continue
		}
		switch {
		case first && inverted:
			g.Emit(encMoveWide(opMOVN, wide, r, ^h, uint8(i)))
		case first:
			g.Emit(encMoveWide(opMOVZ, wide, r, h, uint8(i)))
		default:
			g.Emit(encMoveWide(opMOVK, wide, r, h, uint8(i)))
		}
		first = false
	}

	// all zeros or all ones
	if first {
		op := opMOVZ
		if inverted {
			op = opMOVN
		}
		g.Emit(encMoveWide(op, wide, r, 0, 0))
	}
}

// accessSize returns the bytes moved by a load or store of t.
func accessSize(t ir.Type) int {
	return t.Bytes()
}

// memAccess emits a load (ld) or store of size bytes between register t
// and mem. scratch may be clobbered to form the address.
func (g *generator) memAccess(ld bool, size int, t Reg, mem ir.Operand, scratch Reg) {
	base := Reg(mem.Base().Number())
	disp := int64(mem.Displacement())

	scaled, unscaled := strUImm[size], stur[size]
	if ld {
		scaled, unscaled = ldrUImm[size], ldur[size]
	}

	switch {
	case disp >= 0 && disp%int64(size) == 0 && disp/int64(size) < 4096:
		g.Emit(encLdStUImm(scaled, t, base, uint32(disp/int64(size))))
	case disp >= -256 && disp < 256:
		g.Emit(encLdStUnscaled(unscaled, t, base, int32(disp)))
	default:
		g.movImm(true, scratch, uint64(disp))
		g.Emit(encADDExt(scratch, base, scratch))
		g.Emit(encLdStUImm(scaled, t, scratch, 0))
	}
}

// intSource returns a register holding the integer operand o, using
// scratch for constants and memory.
func (g *generator) intSource(o ir.Operand, scratch Reg) Reg {
	switch o.Kind() {
	case ir.KindRegister:
		return Reg(o.Number())
	case ir.KindMemory:
		g.memAccess(true, accessSize(o.Type()), scratch, o, scratch)
		return scratch
	default:
		g.movImm(o.Type() == ir.I64, scratch, o.Value())
		return scratch
	}
}

// destReg returns the register a result for d is computed into.
func destReg(d ir.Operand, scratch Reg) Reg {
	if d.IsRegister() {
		return Reg(d.Number())
	}
	return scratch
}

// commit stores a result computed in r when d lives in memory.
func (g *generator) commit(d ir.Operand, r Reg) {
	if !d.IsMemory() {
		return
	}
	addr := X17
	if r == X17 {
		addr = X16
	}
	g.memAccess(false, accessSize(d.Type()), r, d, addr)
}

// vecSource returns a vector register holding o, using scratch for
// constants and memory.
func (g *generator) vecSource(o ir.Operand, scratch Reg) Reg {
	switch o.Kind() {
	case ir.KindRegister:
		return Reg(o.Number())
	case ir.KindMemory:
		g.memAccess(true, 16, scratch, o, X17)
		return scratch
	default:
		v := o.V128()
		g.movImm(true, X16, v.Lo())
		g.Emit(encINSD(scratch, 0, X16))
		g.movImm(true, X16, v.Hi())
		g.Emit(encINSD(scratch, 1, X16))
		return scratch
	}
}

// commitVec stores a vector result computed in r when d lives in memory.
func (g *generator) commitVec(d ir.Operand, r Reg) {
	if d.IsMemory() {
		g.memAccess(false, 16, r, d, X17)
	}
}
