package codegen

import (
	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/sarchlab/m2dbt/ir"
)

// Func is a generated host function. It takes the state block address
// in X0 and returns the next guest address in X0.
type Func struct {
	Address      uint64
	Code         []byte
	Size         int
	BlockOffsets map[int]int
}

// Option configures Generate.
type Option func(*generator)

// WithBreakpoint places a BRK at the function entry.
func WithBreakpoint() Option {
	return func(g *generator) {
		g.breakpoint = true
	}
}

type generator struct {
	*Context

	fn         *ir.Function
	cur        *ir.Block
	alloc      AllocationResult
	breakpoint bool
}

// Generate emits host code for fn. Every operand must already be a
// physical register, a constant or a memory operand over a physical
// base.
func Generate(fn *ir.Function, alloc AllocationResult, opts ...Option) (*Func, error) {
	if err := fn.Validate(); err != nil {
		return nil, err
	}
	if err := checkOperands(fn); err != nil {
		return nil, err
	}
	if alloc.SpillSize%16 != 0 || alloc.SpillSize < 0 {
		return nil, errors.Wrap(ErrInvalidOperand, "spill size %d", alloc.SpillSize)
	}

	g := &generator{
		Context: NewContext(),
		fn:      fn,
		alloc:   alloc,
	}
	for _, opt := range opts {
		opt(g)
	}

	if g.breakpoint {
		g.Emit(encBRK(0))
	}
	if err := g.prologue(); err != nil {
		return nil, err
	}

	for i, b := range fn.Blocks {
		if err := g.block(i, b); err != nil {
			return nil, errors.Wrap(err, "%v", b)
		}
	}

	code, err := g.Finish()
	if err != nil {
		return nil, err
	}

	offsets := make(map[int]int, len(fn.Blocks))
	for _, b := range fn.Blocks {
		off, _ := g.BlockOffset(b)
		offsets[b.Index] = off
	}

	tlog.V("codegen").Printw("unit generated",
		"name", fn.Name,
		"size", len(code),
		"blocks", len(fn.Blocks),
		"spill", alloc.SpillSize)

	return &Func{
		Address:      fn.Address,
		Code:         code,
		Size:         len(code),
		BlockOffsets: offsets,
	}, nil
}

func (g *generator) block(i int, b *ir.Block) error {
	if err := g.EnterBlock(b); err != nil {
		return err
	}
	g.cur = b

	for _, op := range b.Operations {
		lower, ok := lowerings[op.Opcode]
		if !ok {
			return errors.Wrap(ErrUnimplemented, "opcode %v", op.Opcode)
		}
		if err := lower(g, op); err != nil {
			return errors.Wrap(err, "%v", op)
		}
	}

	term := b.Terminator()
	if b.Next == nil || (term != nil && term.Opcode != ir.OpBranchIf) {
		return nil
	}
	if i+1 < len(g.fn.Blocks) && g.fn.Blocks[i+1] == b.Next {
		return nil
	}
	return g.JumpTo(condAlways, b.Next)
}

func (g *generator) prologue() error {
	if g.alloc.HasCall {
		g.Emit(encSTPPre(X29, X30, SP, -16))
		g.Emit(encMOVSP(X29, SP))
	}

	for _, p := range pairs(g.alloc.SavedRegisters) {
		g.Emit(encSTPPre(p[0], p[1], SP, -16))
	}

	if n := len(g.alloc.SavedVectors); n > 0 {
		if err := g.adjustSP(true, n*16); err != nil {
			return err
		}
		for i, v := range g.alloc.SavedVectors {
			g.Emit(encLdStUImm(strUImm[16], v, SP, uint32(i)))
		}
	}

	return g.adjustSP(true, g.alloc.SpillSize)
}

// epilogue undoes the prologue and returns.
func (g *generator) epilogue() error {
	if err := g.adjustSP(false, g.alloc.SpillSize); err != nil {
		return err
	}

	if n := len(g.alloc.SavedVectors); n > 0 {
		for i, v := range g.alloc.SavedVectors {
			g.Emit(encLdStUImm(ldrUImm[16], v, SP, uint32(i)))
		}
		if err := g.adjustSP(false, n*16); err != nil {
			return err
		}
	}

	ps := pairs(g.alloc.SavedRegisters)
	for i := len(ps) - 1; i >= 0; i-- {
		g.Emit(encLDPPost(ps[i][0], ps[i][1], SP, 16))
	}

	if g.alloc.HasCall {
		g.Emit(encLDPPost(X29, X30, SP, 16))
	}

	g.Emit(encRET(X30))
	return nil
}

// pairs groups registers for STP/LDP, padding an odd count with XZR.
func pairs(regs []Reg) [][2]Reg {
	var out [][2]Reg
	for i := 0; i < len(regs); i += 2 {
		p := [2]Reg{regs[i], XZR}
		if i+1 < len(regs) {
			p[1] = regs[i+1]
		}
		out = append(out, p)
	}
	return out
}

// adjustSP moves SP down (sub) or up by n bytes.
func (g *generator) adjustSP(sub bool, n int) error {
	if n == 0 {
		return nil
	}
	if n%16 != 0 || n>>24 != 0 {
		return errors.Wrap(ErrInvalidOperand, "stack adjustment %d", n)
	}

	op := opADDImm
	if sub {
		op = opSUBImm
	}
	if hi := uint32(n >> 12); hi != 0 {
		g.Emit(encAddSubImm(op, true, SP, SP, hi, true))
	}
	if lo := uint32(n & 0xFFF); lo != 0 {
		g.Emit(encAddSubImm(op, true, SP, SP, lo, false))
	}
	return nil
}

// checkOperands rejects operands the register allocator should have
// replaced.
func checkOperands(fn *ir.Function) error {
	for _, b := range fn.Blocks {
		for _, op := range b.Operations {
			if op.Dest != nil {
				if op.Dest.IsConstant() {
					return errors.Wrap(ErrInvalidOperand, "constant destination in %v", op)
				}
				if err := checkOperand(*op.Dest); err != nil {
					return errors.Wrap(err, "%v", op)
				}
			}
			for _, s := range op.Sources {
				if err := checkOperand(s); err != nil {
					return errors.Wrap(err, "%v", op)
				}
			}
		}
	}
	return nil
}

func checkOperand(o ir.Operand) error {
	switch o.Kind() {
	case ir.KindConstant:
		return nil
	case ir.KindRegister:
		if !Allocatable(Reg(o.Number()), o.RegisterType() == ir.Vector) || o.Number() > 31 {
			return errors.Wrap(ErrInvalidOperand, "reserved register %v", o)
		}
		return nil
	case ir.KindMemory:
		base := o.Base()
		if !base.IsRegister() || base.RegisterType() != ir.Integer {
			return errors.Wrap(ErrInvalidOperand, "memory base %v", base)
		}
		if Reg(base.Number()) != SP && !Allocatable(Reg(base.Number()), false) {
			return errors.Wrap(ErrInvalidOperand, "reserved base register %v", base)
		}
		return nil
	}
	return errors.Wrap(ErrInvalidOperand, "unallocated operand %v", o)
}
