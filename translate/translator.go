package translate

import (
	"fmt"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/sarchlab/m2dbt/insts"
	"github.com/sarchlab/m2dbt/ir"
	"github.com/sarchlab/m2dbt/state"
)

// Translator builds IR functions from runs of decoded instructions.
type Translator struct {
	stepCounting    bool
	maxInstructions int
}

// Option configures a Translator.
type Option func(*Translator)

// WithStepCounting makes every unit decrement the step counter on entry
// and leave with its own address once the counter is exhausted.
func WithStepCounting(enabled bool) Option {
	return func(t *Translator) {
		t.stepCounting = enabled
	}
}

// WithMaxInstructions limits the number of instructions in one unit. Zero
// means no limit.
func WithMaxInstructions(n int) Option {
	return func(t *Translator) {
		t.maxInstructions = n
	}
}

// New creates a Translator.
func New(opts ...Option) *Translator {
	t := &Translator{}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// unit is the block structure of one translation.
type unit struct {
	fn      *ir.Function
	blocks  map[uint64]*ir.Block
	exits   map[uint64]*ir.Block
	pending []uint64
}

func (u *unit) resolve(addr uint64) *ir.Block {
	if b, ok := u.blocks[addr]; ok {
		return b
	}
	if b, ok := u.exits[addr]; ok {
		return b
	}

	b := u.fn.NewBlock(addr)
	u.exits[addr] = b
	u.pending = append(u.pending, addr)
	return b
}

// Translate lowers list, which starts at addr, into one IR function. The
// function takes the state block address as argument 0 and returns the
// guest address execution continues at.
func (t *Translator) Translate(addr uint64, list []*insts.Instruction) (*ir.Function, error) {
	if len(list) == 0 {
		return nil, errors.New("empty unit at %#x", addr)
	}
	if t.maxInstructions > 0 && len(list) > t.maxInstructions {
		return nil, errors.New("unit at %#x has %d instructions, limit %d",
			addr, len(list), t.maxInstructions)
	}

	fn := ir.NewFunction(fmt.Sprintf("unit_%x", addr), addr)
	u := &unit{
		fn:     fn,
		blocks: make(map[uint64]*ir.Block),
		exits:  make(map[uint64]*ir.Block),
	}

	entry := fn.NewBlock(addr)
	leaders, headers := findLeaders(list)
	for i, inst := range list {
		if leaders[i] {
			u.blocks[inst.Address] = fn.NewBlock(inst.Address)
		}
	}

	c := newContext(fn, u.resolve)
	c.MarkLabel(entry)
	entry.Append(ir.NewOperation(ir.OpLoadArgument, &c.base, ir.Const32(0)))
	if t.stepCounting && !headers[0] {
		checkCounter(c, addr)
	}
	entry.Next = u.blocks[list[0].Address]

	for i, inst := range list {
		if leaders[i] {
			prev := c.Block()
			c.MarkLabel(u.blocks[inst.Address])
			if prev != entry && prev.Terminator() == nil && prev.Next == nil {
				prev.Next = c.Block()
			}
			if t.stepCounting && headers[i] {
				checkCounter(c, inst.Address)
			}
		}

		if err := t.lower(c, inst); err != nil {
			return nil, err
		}
	}

	last := list[len(list)-1]
	if b := c.Block(); b.Terminator() == nil && b.Next == nil {
		b.Next = u.resolve(last.Address + 4)
	}

	for i := 0; i < len(u.pending); i++ {
		exit := u.pending[i]
		c.MarkLabel(u.exits[exit])
		c.Return(ir.Const64(exit))
	}

	if err := fn.Validate(); err != nil {
		return nil, err
	}

	tlog.V("translate").Printw("unit translated",
		"addr", addr,
		"insts", len(list),
		"blocks", len(fn.Blocks),
		"exits", len(u.exits))

	return fn, nil
}

func (t *Translator) lower(c *Context, inst *insts.Instruction) error {
	c.inst = inst

	emit, ok := emitters[inst.Op]
	if !ok {
		return errors.Wrap(ErrUnimplemented, "inst %#x %v", inst.Address, inst.Op)
	}

	emit(c, inst)
	if err := c.Err(); err != nil {
		return errors.Wrap(err, "inst %#x %v", inst.Address, inst)
	}
	return nil
}

// checkCounter charges one step and leaves with resume once the counter
// is exhausted.
func checkCounter(c *Context, resume uint64) {
	counter := ir.Memory(ir.I32, c.base, int32(state.CounterOffset()))
	c.emitVoid(ir.OpCheckCounter, counter, ir.Const64(resume))
}

// findLeaders marks the instructions that start a block: the first one,
// every direct branch target inside the list and every instruction that
// follows a branch. Targets of backward branches are also reported as
// loop headers.
func findLeaders(list []*insts.Instruction) (leaders, headers []bool) {
	index := make(map[uint64]int, len(list))
	for i, inst := range list {
		index[inst.Address] = i
	}

	leaders = make([]bool, len(list))
	headers = make([]bool, len(list))
	leaders[0] = true
	for i, inst := range list {
		if !inst.IsBranch() {
			continue
		}
		if i+1 < len(list) {
			leaders[i+1] = true
		}
		if inst.HasDirectTarget() {
			if j, ok := index[inst.Target()]; ok {
				leaders[j] = true
				if j <= i {
					headers[j] = true
				}
			}
		}
	}
	return leaders, headers
}
