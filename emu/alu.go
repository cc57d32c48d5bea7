package emu

import (
	"github.com/holiman/uint256"

	"github.com/sarchlab/m2dbt/state"
)

// AddWithCarry computes x + y + carry at 32 or 64 bits following the
// architectural definition: the sum is formed both unsigned and signed
// at full precision, C is set when the unsigned sum does not fit the
// result and V when the signed sum does not.
func AddWithCarry(x, y uint64, carry bool, is64 bool) (uint64, Flags) {
	width := uint(32)
	if is64 {
		width = 64
	}
	mask := ^uint64(0) >> (64 - width)
	x &= mask
	y &= mask

	var cin uint64
	if carry {
		cin = 1
	}

	unsignedSum := new(uint256.Int).Add(uint256.NewInt(x), uint256.NewInt(y))
	unsignedSum.AddUint64(unsignedSum, cin)

	signedSum := new(uint256.Int).Add(signedWide(x, width), signedWide(y, width))
	signedSum.AddUint64(signedSum, cin)

	result := unsignedSum.Uint64() & mask

	return result, Flags{
		N: result>>(width-1) == 1,
		Z: result == 0,
		C: !uint256.NewInt(result).Eq(unsignedSum),
		V: !signedWide(result, width).Eq(signedSum),
	}
}

// signedWide sign-extends a width-bit value to 256-bit two's complement.
func signedWide(v uint64, width uint) *uint256.Int {
	w := uint256.NewInt(v)
	if v>>(width-1)&1 == 1 {
		span := new(uint256.Int).Lsh(uint256.NewInt(1), width)
		w.Sub(w, span)
	}
	return w
}

// LogicFlags returns the flags of a flag-setting logical operation.
func LogicFlags(result uint64, is64 bool) Flags {
	if !is64 {
		result = uint64(uint32(result))
		return Flags{N: result>>31 == 1, Z: result == 0}
	}
	return Flags{N: result>>63 == 1, Z: result == 0}
}

// ALU applies the data-processing reference operations to a state block.
// It is the oracle translated code is checked against.
type ALU struct {
	state *state.Block
}

// NewALU creates an ALU connected to the given state block.
func NewALU(b *state.Block) *ALU {
	return &ALU{state: b}
}

// ReadReg reads a register value. Register 31 returns 0 (XZR).
func (a *ALU) ReadReg(reg uint8, is64 bool) (uint64, error) {
	if reg == 31 {
		return 0, nil
	}
	v, err := a.state.IntReg(int(reg))
	if !is64 {
		v = uint64(uint32(v))
	}
	return v, err
}

// WriteReg writes a value to a register, zero-extending 32-bit results.
// Writes to register 31 are discarded.
func (a *ALU) WriteReg(reg uint8, value uint64, is64 bool) error {
	if reg == 31 {
		return nil
	}
	if !is64 {
		value = uint64(uint32(value))
	}
	return a.state.SetIntReg(int(reg), value)
}

func (a *ALU) arith(rd, rn uint8, op2 uint64, carry, invert, is64, setFlags bool) error {
	op1, err := a.ReadReg(rn, is64)
	if err != nil {
		return err
	}

	if invert {
		op2 = ^op2
	}

	result, flags := AddWithCarry(op1, op2, carry, is64)

	if err := a.WriteReg(rd, result, is64); err != nil {
		return err
	}

	if setFlags {
		return StoreFlags(a.state, flags)
	}

	return nil
}

func (a *ALU) carry() (bool, error) {
	return a.state.Flag(state.FlagC)
}

// ADD performs Rd = Rn + op2.
func (a *ALU) ADD(rd, rn uint8, op2 uint64, is64, setFlags bool) error {
	return a.arith(rd, rn, op2, false, false, is64, setFlags)
}

// ADC performs Rd = Rn + op2 + C.
func (a *ALU) ADC(rd, rn uint8, op2 uint64, is64, setFlags bool) error {
	c, err := a.carry()
	if err != nil {
		return err
	}
	return a.arith(rd, rn, op2, c, false, is64, setFlags)
}

// SUB performs Rd = Rn - op2 as Rn + ^op2 + 1.
func (a *ALU) SUB(rd, rn uint8, op2 uint64, is64, setFlags bool) error {
	return a.arith(rd, rn, op2, true, true, is64, setFlags)
}

// SBC performs Rd = Rn - op2 - (1 - C) as Rn + ^op2 + C.
func (a *ALU) SBC(rd, rn uint8, op2 uint64, is64, setFlags bool) error {
	c, err := a.carry()
	if err != nil {
		return err
	}
	return a.arith(rd, rn, op2, c, true, is64, setFlags)
}

func (a *ALU) logic(rd, rn uint8, op2 uint64, is64, setFlags bool, f func(x, y uint64) uint64) error {
	op1, err := a.ReadReg(rn, is64)
	if err != nil {
		return err
	}

	result := f(op1, op2)

	if err := a.WriteReg(rd, result, is64); err != nil {
		return err
	}

	if setFlags {
		return StoreFlags(a.state, LogicFlags(result, is64))
	}

	return nil
}

// AND performs Rd = Rn & op2.
func (a *ALU) AND(rd, rn uint8, op2 uint64, is64, setFlags bool) error {
	return a.logic(rd, rn, op2, is64, setFlags, func(x, y uint64) uint64 { return x & y })
}

// BIC performs Rd = Rn &^ op2.
func (a *ALU) BIC(rd, rn uint8, op2 uint64, is64, setFlags bool) error {
	return a.logic(rd, rn, op2, is64, setFlags, func(x, y uint64) uint64 { return x &^ y })
}

// ORR performs Rd = Rn | op2.
func (a *ALU) ORR(rd, rn uint8, op2 uint64, is64 bool) error {
	return a.logic(rd, rn, op2, is64, false, func(x, y uint64) uint64 { return x | y })
}

// EOR performs Rd = Rn ^ op2.
func (a *ALU) EOR(rd, rn uint8, op2 uint64, is64 bool) error {
	return a.logic(rd, rn, op2, is64, false, func(x, y uint64) uint64 { return x ^ y })
}
