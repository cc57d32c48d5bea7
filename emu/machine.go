package emu

import (
	"math/bits"

	"tlog.app/go/errors"

	"github.com/sarchlab/m2dbt/ir"
	"github.com/sarchlab/m2dbt/state"
)

// Errors.
var (
	ErrUnsupported = errors.New("unsupported operation")
	ErrStepLimit   = errors.New("step limit reached")
)

// CallHandler services IR Call operations.
type CallHandler func(target uint64, args []uint64) uint64

// Machine evaluates an IR function directly against a guest state block.
// Memory operands are resolved relative to argument 0, which defaults to
// the block's base address.
type Machine struct {
	fn    *ir.Function
	state *state.Block
	base  uint64

	args        []uint64
	callHandler CallHandler

	values   map[valueKey]ir.V128
	steps    uint64
	maxSteps uint64 // 0 means no limit
}

type valueKey struct {
	kind   ir.Kind
	rtype  ir.RegisterType
	number int
}

// MachineOption is a functional option for configuring the Machine.
type MachineOption func(*Machine)

// WithMaxSteps sets the maximum number of operations to execute.
// A value of 0 means no limit.
func WithMaxSteps(max uint64) MachineOption {
	return func(m *Machine) {
		m.maxSteps = max
	}
}

// WithArguments sets the values returned by LoadArgument 1, 2, ...
func WithArguments(args ...uint64) MachineOption {
	return func(m *Machine) {
		m.args = append(m.args[:1], args...)
	}
}

// WithCallHandler sets the handler for Call operations.
func WithCallHandler(h CallHandler) MachineOption {
	return func(m *Machine) {
		m.callHandler = h
	}
}

// NewMachine creates an evaluator for fn over the state block b.
func NewMachine(fn *ir.Function, b *state.Block, opts ...MachineOption) (*Machine, error) {
	base, err := b.BaseAddress()
	if err != nil {
		return nil, err
	}

	m := &Machine{
		fn:     fn,
		state:  b,
		base:   uint64(base),
		args:   []uint64{uint64(base)},
		values: make(map[valueKey]ir.V128),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m, nil
}

// Steps returns the number of operations executed.
func (m *Machine) Steps() uint64 {
	return m.steps
}

// Run executes the function from its entry block and returns the value
// of the Return operation that ends it.
func (m *Machine) Run() (uint64, error) {
	if err := m.fn.Validate(); err != nil {
		return 0, err
	}

	clear(m.values)

	b := m.fn.Entry()
	for {
		next, ret, done, err := m.runBlock(b)
		if err != nil {
			return 0, errors.Wrap(err, "%v", b)
		}
		if done {
			return ret, nil
		}
		b = next
	}
}

func (m *Machine) runBlock(b *ir.Block) (next *ir.Block, ret uint64, done bool, err error) {
	for _, op := range b.Operations {
		if m.maxSteps > 0 && m.steps >= m.maxSteps {
			return nil, 0, false, ErrStepLimit
		}
		m.steps++

		switch op.Opcode {
		case ir.OpBranch:
			return b.Branch, 0, false, nil

		case ir.OpBranchIf:
			c, err := m.read(op.Sources[0])
			if err != nil {
				return nil, 0, false, err
			}
			if c.Lo() != 0 {
				return b.Branch, 0, false, nil
			}
			return b.Next, 0, false, nil

		case ir.OpReturn:
			if len(op.Sources) == 0 {
				return nil, 0, true, nil
			}
			v, err := m.read(op.Sources[0])
			return nil, v.Lo(), true, err

		case ir.OpCheckCounter:
			exit, taken, err := m.checkCounter(op)
			if err != nil || taken {
				return nil, exit, taken, err
			}

		default:
			if err := m.exec(op); err != nil {
				return nil, 0, false, errors.Wrap(err, "%v", op)
			}
		}
	}

	return b.Next, 0, false, nil
}

// checkCounter decrements the step counter and leaves with the exit
// value when the counter was already exhausted.
func (m *Machine) checkCounter(op *ir.Operation) (uint64, bool, error) {
	slot := op.Sources[0]

	old, err := m.read(slot)
	if err != nil {
		return 0, false, err
	}

	if err := m.write(slot, ir.V128FromUint64s(ir.Fit(ir.I32, old.Lo()-1), 0)); err != nil {
		return 0, false, err
	}

	if int32(old.Lo()) >= 1 {
		return 0, false, nil
	}

	exit, err := m.read(op.Sources[1])
	return exit.Lo(), true, err
}

func key(o ir.Operand) valueKey {
	return valueKey{kind: o.Kind(), rtype: o.RegisterType(), number: o.Number()}
}

func (m *Machine) offset(mem ir.Operand) (int, error) {
	base, err := m.read(mem.Base())
	if err != nil {
		return 0, err
	}

	addr := base.Lo() + uint64(int64(mem.Displacement()))
	if addr < m.base || addr-m.base >= state.Size {
		return 0, errors.Wrap(state.ErrOutOfRange, "address %#x outside state block", addr)
	}

	return int(addr - m.base), nil
}

func (m *Machine) read(o ir.Operand) (ir.V128, error) {
	switch o.Kind() {
	case ir.KindConstant:
		return o.V128(), nil
	case ir.KindVirtual, ir.KindRegister:
		return m.values[key(o)], nil
	case ir.KindMemory:
		off, err := m.offset(o)
		if err != nil {
			return ir.V128{}, err
		}
		if o.Type() == ir.Vec128 {
			return m.state.LoadV128(off)
		}
		v, err := m.state.Load(off, o.Type().Bytes())
		return ir.V128FromUint64s(v, 0), err
	}
	return ir.V128{}, errors.Wrap(ErrUnsupported, "operand %v", o)
}

func (m *Machine) write(o ir.Operand, v ir.V128) error {
	switch o.Kind() {
	case ir.KindVirtual, ir.KindRegister:
		if o.Type() != ir.Vec128 {
			v = ir.V128FromUint64s(ir.Fit(o.Type(), v.Lo()), 0)
		}
		m.values[key(o)] = v
		return nil
	case ir.KindMemory:
		off, err := m.offset(o)
		if err != nil {
			return err
		}
		if o.Type() == ir.Vec128 {
			return m.state.StoreV128(off, v)
		}
		return m.state.Store(off, o.Type().Bytes(), v.Lo())
	}
	return errors.Wrap(ErrUnsupported, "destination %v", o)
}

func (m *Machine) sources(op *ir.Operation) ([]uint64, error) {
	vals := make([]uint64, len(op.Sources))
	for i, s := range op.Sources {
		v, err := m.read(s)
		if err != nil {
			return nil, err
		}
		vals[i] = v.Lo()
	}
	return vals, nil
}

func (m *Machine) exec(op *ir.Operation) error {
	switch op.Opcode {
	case ir.OpStore, ir.OpStore8, ir.OpStore16:
		v, err := m.read(op.Sources[1])
		if err != nil {
			return err
		}
		return m.write(op.Sources[0], v)

	case ir.OpIntrinsic:
		return m.intrinsic(op)

	case ir.OpCall:
		return m.call(op)
	}

	if op.Dest == nil {
		return errors.Wrap(ErrUnsupported, "%v without destination", op.Opcode)
	}

	if op.Opcode == ir.OpCopy || op.Opcode == ir.OpLoad {
		v, err := m.read(op.Sources[0])
		if err != nil {
			return err
		}
		return m.write(*op.Dest, v)
	}

	src, err := m.sources(op)
	if err != nil {
		return err
	}

	v, err := m.scalar(op, src)
	if err != nil {
		return err
	}

	return m.write(*op.Dest, ir.V128FromUint64s(v, 0))
}

func (m *Machine) scalar(op *ir.Operation, src []uint64) (uint64, error) {
	if len(src) == 0 && op.Opcode != ir.OpLoadArgument {
		return 0, errors.Wrap(ErrUnsupported, "%v without sources", op.Opcode)
	}

	t := op.Dest.Type()
	if len(op.Sources) > 0 && op.Sources[0].Type().IsInteger() {
		t = op.Sources[0].Type()
	}
	width := t.Bits()

	switch op.Opcode {
	case ir.OpAdd:
		return src[0] + src[1], nil
	case ir.OpSubtract:
		return src[0] - src[1], nil
	case ir.OpMultiply:
		return src[0] * src[1], nil
	case ir.OpDivide:
		if ir.Fit(t, src[1]) == 0 {
			return 0, nil
		}
		return uint64(ir.SignExtend(t, src[0]) / ir.SignExtend(t, src[1])), nil
	case ir.OpDivideUI:
		if ir.Fit(t, src[1]) == 0 {
			return 0, nil
		}
		return ir.Fit(t, src[0]) / ir.Fit(t, src[1]), nil
	case ir.OpBitwiseAnd:
		return src[0] & src[1], nil
	case ir.OpBitwiseOr:
		return src[0] | src[1], nil
	case ir.OpBitwiseExclusiveOr:
		return src[0] ^ src[1], nil
	case ir.OpBitwiseNot:
		return ^src[0], nil
	case ir.OpNegate:
		return -src[0], nil
	case ir.OpShiftLeft:
		return src[0] << (src[1] & uint64(width-1)), nil
	case ir.OpShiftRightUI:
		return ir.Fit(t, src[0]) >> (src[1] & uint64(width-1)), nil
	case ir.OpShiftRightSI:
		return uint64(ir.SignExtend(t, src[0]) >> (src[1] & uint64(width-1))), nil
	case ir.OpRotateRight:
		x := ir.Fit(t, src[0])
		n := src[1] & uint64(width-1)
		return x>>n | x<<(uint64(width)-n), nil
	case ir.OpCountLeadingZeros:
		return uint64(bits.LeadingZeros64(ir.Fit(t, src[0])) - (64 - width)), nil
	case ir.OpByteSwap:
		return bits.ReverseBytes64(ir.Fit(t, src[0])) >> (64 - width), nil
	case ir.OpConditionalSelect:
		if src[0] != 0 {
			return src[1], nil
		}
		return src[2], nil
	case ir.OpZeroExtend8:
		return src[0] & 0xFF, nil
	case ir.OpZeroExtend16:
		return src[0] & 0xFFFF, nil
	case ir.OpZeroExtend32:
		return src[0] & 0xFFFF_FFFF, nil
	case ir.OpSignExtend8:
		return uint64(ir.SignExtend(ir.I8, src[0])), nil
	case ir.OpSignExtend16:
		return uint64(ir.SignExtend(ir.I16, src[0])), nil
	case ir.OpSignExtend32:
		return uint64(ir.SignExtend(ir.I32, src[0])), nil
	case ir.OpTruncate, ir.OpLoad8, ir.OpLoad16:
		return src[0], nil
	case ir.OpLoadArgument:
		idx := int(op.Sources[0].Value())
		if idx >= len(m.args) {
			return 0, errors.Wrap(ErrUnsupported, "argument %d", idx)
		}
		return m.args[idx], nil
	}

	if op.Opcode.IsCompare() {
		return compare(op.Opcode, t, src[0], src[1]), nil
	}

	return 0, errors.Wrap(ErrUnsupported, "opcode %v", op.Opcode)
}

func compare(opc ir.Opcode, t ir.Type, a, b uint64) uint64 {
	ua, ub := ir.Fit(t, a), ir.Fit(t, b)
	sa, sb := ir.SignExtend(t, a), ir.SignExtend(t, b)

	var r bool
	switch opc {
	case ir.OpCompareEqual:
		r = ua == ub
	case ir.OpCompareNotEqual:
		r = ua != ub
	case ir.OpCompareLess:
		r = sa < sb
	case ir.OpCompareLessOrEqual:
		r = sa <= sb
	case ir.OpCompareGreater:
		r = sa > sb
	case ir.OpCompareGreaterOrEqual:
		r = sa >= sb
	case ir.OpCompareLessUI:
		r = ua < ub
	case ir.OpCompareLessOrEqualUI:
		r = ua <= ub
	case ir.OpCompareGreaterUI:
		r = ua > ub
	case ir.OpCompareGreaterOrEqualUI:
		r = ua >= ub
	}

	if r {
		return 1
	}
	return 0
}

func (m *Machine) intrinsic(op *ir.Operation) error {
	var a, b ir.V128
	var err error

	if len(op.Sources) > 0 {
		if a, err = m.read(op.Sources[0]); err != nil {
			return err
		}
	}
	if len(op.Sources) > 1 {
		if b, err = m.read(op.Sources[1]); err != nil {
			return err
		}
	}

	v, err := EvalIntrinsic(op.Intrinsic, a, b)
	if err != nil {
		return err
	}

	return m.write(*op.Dest, v)
}

func (m *Machine) call(op *ir.Operation) error {
	if m.callHandler == nil {
		return errors.Wrap(ErrUnsupported, "call without handler")
	}

	src, err := m.sources(op)
	if err != nil {
		return err
	}

	r := m.callHandler(src[0], src[1:])
	if op.Dest != nil {
		return m.write(*op.Dest, ir.V128FromUint64s(r, 0))
	}

	return nil
}
