package codegen

import "github.com/sarchlab/m2dbt/insts"

// Reg is a host register number.
type Reg uint8

// Host registers with a fixed role.
const (
	X0  Reg = 0
	X16 Reg = 16 // scratch
	X17 Reg = 17 // scratch
	X18 Reg = 18 // platform register
	X19 Reg = 19
	X28 Reg = 28
	X29 Reg = 29 // frame pointer
	X30 Reg = 30 // link register
	XZR Reg = 31
	SP  Reg = 31

	V8  Reg = 8
	V15 Reg = 15
	V30 Reg = 30 // vector scratch
	V31 Reg = 31 // vector scratch
)

// Allocatable reports whether the register allocator may hand out r.
func Allocatable(r Reg, vector bool) bool {
	if vector {
		return r < V30
	}
	switch r {
	case X16, X17, X18, X29, X30, XZR:
		return false
	}
	return r < XZR
}

func sf(is64 bool) uint32 {
	if is64 {
		return 1 << 31
	}
	return 0
}

func rd(r Reg) uint32 { return uint32(r & 0x1F) }
func rn(r Reg) uint32 { return uint32(r&0x1F) << 5 }
func rm(r Reg) uint32 { return uint32(r&0x1F) << 16 }

// Data processing, shifted register (shift amount 0).
const (
	opADDReg  uint32 = 0x0B000000
	opADDSReg uint32 = 0x2B000000
	opSUBReg  uint32 = 0x4B000000
	opSUBSReg uint32 = 0x6B000000
	opANDReg  uint32 = 0x0A000000
	opBICReg  uint32 = 0x0A200000
	opORRReg  uint32 = 0x2A000000
	opORNReg  uint32 = 0x2A200000
	opEORReg  uint32 = 0x4A000000
	opANDSReg uint32 = 0x6A000000
)

func encRRR(op uint32, is64 bool, d, n, m Reg) uint32 {
	return op | sf(is64) | rm(m) | rn(n) | rd(d)
}

// Data processing, immediate.
const (
	opADDImm  uint32 = 0x11000000
	opADDSImm uint32 = 0x31000000
	opSUBImm  uint32 = 0x51000000
	opSUBSImm uint32 = 0x71000000
)

// encAddSubImm encodes ADD/SUB (immediate). imm must fit 12 bits; shift12
// selects LSL #12.
func encAddSubImm(op uint32, is64 bool, d, n Reg, imm uint32, shift12 bool) uint32 {
	inst := op | sf(is64)
	if shift12 {
		inst |= 1 << 22 // sh
	}
	inst |= (imm & 0xFFF) << 10
	return inst | rn(n) | rd(d)
}

// encADDExt encodes ADD Xd|SP, Xn|SP, Xm, UXTX.
func encADDExt(d, n, m Reg) uint32 {
	return 0x8B206000 | rm(m) | rn(n) | rd(d)
}

// encMOV encodes MOV Rd, Rm (ORR Rd, ZR, Rm).
func encMOV(is64 bool, d, m Reg) uint32 {
	return encRRR(opORRReg, is64, d, XZR, m)
}

// encMOVSP encodes MOV Xd|SP, Xn|SP (ADD #0).
func encMOVSP(d, n Reg) uint32 {
	return encAddSubImm(opADDImm, true, d, n, 0, false)
}

// encCMPImm encodes CMP Rn, #imm.
func encCMPImm(is64 bool, n Reg, imm uint32) uint32 {
	return encAddSubImm(opSUBSImm, is64, XZR, n, imm, false)
}

// Data processing, two and three source.
const (
	opMADD uint32 = 0x1B000000
	opMSUB uint32 = 0x1B008000
	opSDIV uint32 = 0x1AC00C00
	opUDIV uint32 = 0x1AC00800
	opLSLV uint32 = 0x1AC02000
	opLSRV uint32 = 0x1AC02400
	opASRV uint32 = 0x1AC02800
	opRORV uint32 = 0x1AC02C00
)

// Data processing, one source.
const opCLZ uint32 = 0x5AC01000

func encRR(op uint32, is64 bool, d, n Reg) uint32 {
	return op | sf(is64) | rn(n) | rd(d)
}

// encREV encodes REV, reversing all bytes of the register.
func encREV(is64 bool, d, n Reg) uint32 {
	if is64 {
		return 0xDAC00C00 | rn(n) | rd(d)
	}
	return 0x5AC00800 | rn(n) | rd(d)
}

// encCSET encodes CSET Rd, cond (CSINC Rd, ZR, ZR, invert(cond)).
func encCSET(is64 bool, d Reg, cond insts.Cond) uint32 {
	return 0x1A9F07E0 | sf(is64) | uint32(cond.Invert())<<12 | rd(d)
}

// encCSEL encodes CSEL Rd, Rn, Rm, cond.
func encCSEL(is64 bool, d, n, m Reg, cond insts.Cond) uint32 {
	return 0x1A800000 | sf(is64) | rm(m) | uint32(cond)<<12 | rn(n) | rd(d)
}

// Move wide.
const (
	opMOVN uint32 = 0x12800000
	opMOVZ uint32 = 0x52800000
	opMOVK uint32 = 0x72800000
)

func encMoveWide(op uint32, is64 bool, d Reg, imm16 uint16, hw uint8) uint32 {
	return op | sf(is64) | uint32(hw&3)<<21 | uint32(imm16)<<5 | rd(d)
}

// Bitfield moves used for extension.
const (
	opSXTB uint32 = 0x93401C00 // SBFM Xd, Xn, #0, #7
	opSXTH uint32 = 0x93403C00 // SBFM Xd, Xn, #0, #15
	opSXTW uint32 = 0x93407C00 // SBFM Xd, Xn, #0, #31
	opUXTB uint32 = 0x53001C00 // UBFM Wd, Wn, #0, #7
	opUXTH uint32 = 0x53003C00 // UBFM Wd, Wn, #0, #15
)

func encExtend(op uint32, d, n Reg) uint32 {
	return op | rn(n) | rd(d)
}

// Immediate shifts. s must be below the register width.
func encLSLImm(is64 bool, d, n Reg, s uint32) uint32 {
	if is64 {
		return 0xD3400000 | ((64-s)&63)<<16 | (63-s)<<10 | rn(n) | rd(d)
	}
	return 0x53000000 | ((32-s)&31)<<16 | (31-s)<<10 | rn(n) | rd(d)
}

func encLSRImm(is64 bool, d, n Reg, s uint32) uint32 {
	if is64 {
		return 0xD340FC00 | s<<16 | rn(n) | rd(d)
	}
	return 0x53007C00 | s<<16 | rn(n) | rd(d)
}

func encASRImm(is64 bool, d, n Reg, s uint32) uint32 {
	if is64 {
		return 0x9340FC00 | s<<16 | rn(n) | rd(d)
	}
	return 0x13007C00 | s<<16 | rn(n) | rd(d)
}

// encRORImm encodes ROR Rd, Rn, #s (EXTR Rd, Rn, Rn, #s).
func encRORImm(is64 bool, d, n Reg, s uint32) uint32 {
	if is64 {
		return 0x93C00000 | rm(n) | s<<10 | rn(n) | rd(d)
	}
	return 0x13800000 | rm(n) | s<<10 | rn(n) | rd(d)
}

// Loads and stores, indexed by access size in bytes.
var (
	ldrUImm = map[int]uint32{1: 0x39400000, 2: 0x79400000, 4: 0xB9400000, 8: 0xF9400000, 16: 0x3DC00000}
	strUImm = map[int]uint32{1: 0x39000000, 2: 0x79000000, 4: 0xB9000000, 8: 0xF9000000, 16: 0x3D800000}
	ldur    = map[int]uint32{1: 0x38400000, 2: 0x78400000, 4: 0xB8400000, 8: 0xF8400000, 16: 0x3CC00000}
	stur    = map[int]uint32{1: 0x38000000, 2: 0x78000000, 4: 0xB8000000, 8: 0xF8000000, 16: 0x3C800000}
)

// encLdStUImm encodes the scaled unsigned offset form. imm12 is already
// divided by the access size.
func encLdStUImm(op uint32, t, n Reg, imm12 uint32) uint32 {
	return op | (imm12&0xFFF)<<10 | rn(n) | rd(t)
}

// encLdStUnscaled encodes the unscaled signed 9-bit offset form.
func encLdStUnscaled(op uint32, t, n Reg, simm9 int32) uint32 {
	return op | (uint32(simm9)&0x1FF)<<12 | rn(n) | rd(t)
}

// encSTPPre encodes STP Xt1, Xt2, [Xn, #off]!.
func encSTPPre(t1, t2, n Reg, off int32) uint32 {
	return 0xA9800000 | (uint32(off/8)&0x7F)<<15 | uint32(t2&0x1F)<<10 | rn(n) | rd(t1)
}

// encLDPPost encodes LDP Xt1, Xt2, [Xn], #off.
func encLDPPost(t1, t2, n Reg, off int32) uint32 {
	return 0xA8C00000 | (uint32(off/8)&0x7F)<<15 | uint32(t2&0x1F)<<10 | rn(n) | rd(t1)
}

// Branches. Displacements are in bytes relative to the branch itself.
func encB(disp int64) uint32 {
	return 0x14000000 | uint32(disp/4)&0x3FFFFFF
}

func encBCond(cond insts.Cond, disp int64) uint32 {
	return 0x54000000 | (uint32(disp/4)&0x7FFFF)<<5 | uint32(cond&0xF)
}

func encBLR(n Reg) uint32 { return 0xD63F0000 | rn(n) }
func encRET(n Reg) uint32 { return 0xD65F0000 | rn(n) }

const opBRK uint32 = 0xD4200000

func encBRK(imm uint16) uint32 {
	return opBRK | uint32(imm)<<5
}

// encVMOV encodes MOV Vd.16B, Vn.16B (ORR Vd.16B, Vn.16B, Vn.16B).
func encVMOV(d, n Reg) uint32 {
	return 0x4EA01C00 | rm(n) | rn(n) | rd(d)
}

// encINSD encodes INS Vd.D[lane], Xn.
func encINSD(d Reg, lane int, n Reg) uint32 {
	if lane == 0 {
		return 0x4E081C00 | rn(n) | rd(d)
	}
	return 0x4E181C00 | rn(n) | rd(d)
}
