// Package emu provides the architectural reference model of the
// translator: an exact ALU, condition evaluation and an evaluator that
// runs IR functions directly against a guest state block.
package emu

import (
	"tlog.app/go/errors"

	"github.com/sarchlab/m2dbt/state"
)

// Flags holds the integer condition flags.
type Flags struct {
	// N is the negative flag.
	N bool
	// Z is the zero flag.
	Z bool
	// C is the carry flag.
	C bool
	// V is the overflow flag.
	V bool
}

// FlagsFromNZCV unpacks flags from the PSTATE bit layout.
func FlagsFromNZCV(nzcv uint32) Flags {
	return Flags{
		N: nzcv&(1<<31) != 0,
		Z: nzcv&(1<<30) != 0,
		C: nzcv&(1<<29) != 0,
		V: nzcv&(1<<28) != 0,
	}
}

// NZCV packs the flags into the PSTATE bit layout.
func (f Flags) NZCV() uint32 {
	var v uint32
	if f.N {
		v |= 1 << 31
	}
	if f.Z {
		v |= 1 << 30
	}
	if f.C {
		v |= 1 << 29
	}
	if f.V {
		v |= 1 << 28
	}
	return v
}

func (f Flags) String() string {
	b := []byte("nzcv")
	if f.N {
		b[0] = 'N'
	}
	if f.Z {
		b[1] = 'Z'
	}
	if f.C {
		b[2] = 'C'
	}
	if f.V {
		b[3] = 'V'
	}
	return string(b)
}

// LoadFlags reads the flags from a state block.
func LoadFlags(b *state.Block) (Flags, error) {
	nzcv, err := b.NZCV()
	if err != nil {
		return Flags{}, err
	}
	return FlagsFromNZCV(nzcv), nil
}

// StoreFlags writes the flags to a state block.
func StoreFlags(b *state.Block, f Flags) error {
	for _, x := range []struct {
		flag state.Flag
		set  bool
	}{
		{state.FlagN, f.N},
		{state.FlagZ, f.Z},
		{state.FlagC, f.C},
		{state.FlagV, f.V},
	} {
		if err := b.SetFlag(x.flag, x.set); err != nil {
			return errors.Wrap(err, "store %v", x.flag)
		}
	}
	return nil
}
