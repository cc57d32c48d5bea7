package codegen

import (
	"tlog.app/go/errors"

	"github.com/sarchlab/m2dbt/ir"
)

// SpillSlotSize is the stack space one spilled value occupies.
const SpillSlotSize = 16

// AllocationResult is what the generator needs to know about a register
// allocation besides the rewritten operands.
type AllocationResult struct {
	// SpillSize is the size of the SP-relative spill area in bytes.
	SpillSize int
	// HasCall is set when the unit contains a call.
	HasCall bool
	// SavedRegisters lists the callee-saved integer registers (X19-X28)
	// the unit writes.
	SavedRegisters []Reg
	// SavedVectors lists the callee-saved vector registers (V8-V15) the
	// unit writes.
	SavedVectors []Reg
}

// LinearAllocator gives every virtual register its own location: a
// callee-saved register while they last, then a spill slot. Virtual
// registers used as memory bases are placed first so they always get a
// register.
type LinearAllocator struct{}

type linearState struct {
	fn     *ir.Function
	loc    map[int]ir.Operand
	ints   []Reg
	vecs   []Reg
	result AllocationResult
	slots  int
}

// Allocate rewrites every virtual operand of fn in place.
func (LinearAllocator) Allocate(fn *ir.Function) (AllocationResult, error) {
	s := &linearState{
		fn:  fn,
		loc: make(map[int]ir.Operand),
	}
	for r := X19; r <= X28; r++ {
		s.ints = append(s.ints, r)
	}
	for r := V8; r <= V15; r++ {
		s.vecs = append(s.vecs, r)
	}

	for _, b := range fn.Blocks {
		for _, op := range b.Operations {
			if op.Opcode == ir.OpCall {
				s.result.HasCall = true
			}
			for _, src := range op.Sources {
				if src.IsMemory() && src.Base().IsVirtual() {
					if err := s.place(src.Base(), true); err != nil {
						return AllocationResult{}, err
					}
				}
			}
		}
	}

	for _, b := range fn.Blocks {
		for _, op := range b.Operations {
			if op.Dest != nil {
				d, err := s.rewrite(*op.Dest)
				if err != nil {
					return AllocationResult{}, err
				}
				op.SetDest(d)
			}
			for i, src := range op.Sources {
				r, err := s.rewrite(src)
				if err != nil {
					return AllocationResult{}, err
				}
				op.SetSource(i, r)
			}
		}
	}

	s.result.SpillSize = s.slots * SpillSlotSize
	return s.result, nil
}

func (s *linearState) place(v ir.Operand, needRegister bool) error {
	id := v.Number()
	if _, ok := s.loc[id]; ok {
		return nil
	}

	if v.Type() == ir.Vec128 {
		if len(s.vecs) > 0 {
			r := s.vecs[0]
			s.vecs = s.vecs[1:]
			s.result.SavedVectors = append(s.result.SavedVectors, r)
			s.loc[id] = ir.Register(int(r), ir.Vector, v.Type())
			return nil
		}
	} else if len(s.ints) > 0 {
		r := s.ints[0]
		s.ints = s.ints[1:]
		s.result.SavedRegisters = append(s.result.SavedRegisters, r)
		s.loc[id] = ir.Register(int(r), ir.Integer, v.Type())
		return nil
	}

	if needRegister {
		return errors.Wrap(ErrInvalidOperand, "no register left for memory base %v", v)
	}

	sp := ir.Register(int(SP), ir.Integer, ir.I64)
	s.loc[id] = ir.Memory(v.Type(), sp, int32(s.slots*SpillSlotSize))
	s.slots++
	return nil
}

func (s *linearState) rewrite(o ir.Operand) (ir.Operand, error) {
	switch o.Kind() {
	case ir.KindVirtual:
		if err := s.place(o, false); err != nil {
			return o, err
		}
		return s.loc[o.Number()], nil

	case ir.KindMemory:
		base, err := s.rewrite(o.Base())
		if err != nil {
			return o, err
		}
		if !base.IsRegister() {
			return o, errors.Wrap(ErrInvalidOperand, "memory base %v spilled", o.Base())
		}
		return ir.Memory(o.Type(), base, o.Displacement()), nil
	}
	return o, nil
}
