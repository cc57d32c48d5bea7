package codegen

import (
	"tlog.app/go/errors"

	"github.com/sarchlab/m2dbt/insts"
	"github.com/sarchlab/m2dbt/ir"
)

// Branch displacement limits in bytes.
const (
	maxBranchDisp     = 1 << 27 // B, BL: imm26
	maxCondBranchDisp = 1 << 20 // B.cond: imm19
)

// pendingBranch is a reserved slot waiting for its target block.
type pendingBranch struct {
	cond   insts.Cond
	offset int
}

// nearBranch is the single outstanding local branch.
type nearBranch struct {
	cond   insts.Cond
	offset int
}

// Context linearizes the blocks of one unit into a single code buffer.
// It is not safe for concurrent use; every unit gets its own Context.
type Context struct {
	w       *CodeWriter
	visited map[*ir.Block]int
	pending map[*ir.Block][]pendingBranch
	near    *nearBranch
}

// NewContext creates an empty code generation context.
func NewContext() *Context {
	return &Context{
		w:       NewCodeWriter(),
		visited: make(map[*ir.Block]int),
		pending: make(map[*ir.Block][]pendingBranch),
	}
}

// Writer returns the underlying code writer.
func (c *Context) Writer() *CodeWriter {
	return c.w
}

// Emit appends one instruction word.
func (c *Context) Emit(word uint32) {
	c.w.Emit(word)
}

// Offset returns the current write offset.
func (c *Context) Offset() int {
	return c.w.Offset()
}

// BlockOffset returns where b starts, if it has been entered.
func (c *Context) BlockOffset(b *ir.Block) (int, bool) {
	off, ok := c.visited[b]
	return off, ok
}

// Pending returns the number of branches still waiting for a target.
func (c *Context) Pending() int {
	n := 0
	for _, list := range c.pending {
		n += len(list)
	}
	return n
}

// EnterBlock marks the current offset as the start of b and patches
// every branch that was waiting for it.
func (c *Context) EnterBlock(b *ir.Block) error {
	if _, ok := c.visited[b]; ok {
		return errors.Wrap(ErrBlockRevisited, "%v", b)
	}

	here := c.w.Offset()
	c.visited[b] = here

	list := c.pending[b]
	delete(c.pending, b)

	for _, p := range list {
		word, err := encodeBranch(p.cond, int64(here-p.offset))
		if err != nil {
			return errors.Wrap(err, "patch at %#x for %v", p.offset, b)
		}
		if err := c.w.Seek(p.offset); err != nil {
			return err
		}
		c.w.Emit(word)
	}
	c.w.SeekEnd()

	return nil
}

// JumpTo branches to b when cond holds. CondAL emits an unconditional
// branch.
func (c *Context) JumpTo(cond insts.Cond, b *ir.Block) error {
	here := c.w.Offset()

	if target, ok := c.visited[b]; ok {
		word, err := encodeBranch(cond, int64(target-here))
		if err != nil {
			return errors.Wrap(err, "jump to %v", b)
		}
		c.w.Emit(word)
		return nil
	}

	c.pending[b] = append(c.pending[b], pendingBranch{cond: cond, offset: c.w.Reserve()})
	return nil
}

// JumpToNear opens a local forward branch that JumpHere resolves. Only
// one may be outstanding.
func (c *Context) JumpToNear(cond insts.Cond) error {
	if c.near != nil {
		return errors.Wrap(ErrNearBranchPending, "opened at %#x", c.near.offset)
	}
	c.near = &nearBranch{cond: cond, offset: c.w.Reserve()}
	return nil
}

// JumpHere resolves the outstanding near branch to the current offset.
func (c *Context) JumpHere() error {
	if c.near == nil {
		return ErrNoNearBranch
	}

	nb := c.near
	c.near = nil

	word, err := encodeBranch(nb.cond, int64(c.w.Offset()-nb.offset))
	if err != nil {
		return errors.Wrap(err, "near branch at %#x", nb.offset)
	}
	if err := c.w.Seek(nb.offset); err != nil {
		return err
	}
	c.w.Emit(word)
	c.w.SeekEnd()

	return nil
}

// Finish returns the code once every branch has been resolved.
func (c *Context) Finish() ([]byte, error) {
	if c.near != nil {
		return nil, errors.Wrap(ErrUnresolvedBranches, "near branch at %#x", c.near.offset)
	}
	if n := c.Pending(); n > 0 {
		return nil, errors.Wrap(ErrUnresolvedBranches, "%d branches to blocks never entered", n)
	}
	return c.w.Bytes(), nil
}

// encodeBranch encodes B (CondAL) or B.cond with a displacement relative
// to the branch instruction.
func encodeBranch(cond insts.Cond, disp int64) (uint32, error) {
	if disp%InstructionSize != 0 {
		return 0, errors.Wrap(ErrDisplacementRange, "unaligned displacement %d", disp)
	}

	if cond == insts.CondAL {
		if disp < -maxBranchDisp || disp >= maxBranchDisp {
			return 0, errors.Wrap(ErrDisplacementRange, "B %d", disp)
		}
		return encB(disp), nil
	}

	if disp < -maxCondBranchDisp || disp >= maxCondBranchDisp {
		return 0, errors.Wrap(ErrDisplacementRange, "B.%v %d", cond, disp)
	}
	return encBCond(cond, disp), nil
}
