package ir

import (
	"fmt"
	"strings"

	"tlog.app/go/errors"
)

// ErrMalformed is returned by Validate for control flow that cannot be
// compiled.
var ErrMalformed = errors.New("malformed function")

// Block is a basic block: straight-line operations ending in at most one
// control transfer. Next is the fall-through successor; Branch is the
// target of a Branch or BranchIf terminator.
type Block struct {
	Index      int
	Address    uint64
	Operations []*Operation
	Next       *Block
	Branch     *Block
}

// Append adds an operation to the end of the block.
func (b *Block) Append(op *Operation) {
	b.Operations = append(b.Operations, op)
}

// Terminator returns the final control transfer, or nil.
func (b *Block) Terminator() *Operation {
	if len(b.Operations) == 0 {
		return nil
	}

	last := b.Operations[len(b.Operations)-1]
	if !last.Opcode.IsTerminator() {
		return nil
	}

	return last
}

// Successors returns the blocks control may reach from b.
func (b *Block) Successors() []*Block {
	var s []*Block
	if b.Branch != nil {
		s = append(s, b.Branch)
	}
	if b.Next != nil && b.Next != b.Branch {
		s = append(s, b.Next)
	}
	return s
}

func (b *Block) String() string {
	return fmt.Sprintf("b%d", b.Index)
}

// Function is one compiled unit.
type Function struct {
	Name    string
	Address uint64
	Blocks  []*Block

	nextVirtual int
}

// NewFunction creates an empty function.
func NewFunction(name string, addr uint64) *Function {
	return &Function{Name: name, Address: addr}
}

// NewBlock appends a new block.
func (f *Function) NewBlock(addr uint64) *Block {
	b := &Block{Index: len(f.Blocks), Address: addr}
	f.Blocks = append(f.Blocks, b)
	return b
}

// Entry returns the first block, or nil for an empty function.
func (f *Function) Entry() *Block {
	if len(f.Blocks) == 0 {
		return nil
	}
	return f.Blocks[0]
}

// NewVirtual allocates a fresh virtual register.
func (f *Function) NewVirtual(t Type) Operand {
	v := Virtual(f.nextVirtual, t)
	f.nextVirtual++
	return v
}

// VirtualCount returns the number of virtual registers allocated.
func (f *Function) VirtualCount() int {
	return f.nextVirtual
}

// Validate checks the block graph: every successor belongs to f,
// terminators appear only last, branch terminators have a target, and no
// block falls off the end of the function.
func (f *Function) Validate() error {
	if len(f.Blocks) == 0 {
		return errors.Wrap(ErrMalformed, "no blocks")
	}

	owned := make(map[*Block]bool, len(f.Blocks))
	for i, b := range f.Blocks {
		if b.Index != i {
			return errors.Wrap(ErrMalformed, "block %d has index %d", i, b.Index)
		}
		owned[b] = true
	}

	for _, b := range f.Blocks {
		for i, op := range b.Operations {
			if op.Opcode.IsTerminator() && i != len(b.Operations)-1 {
				return errors.Wrap(ErrMalformed, "%v: %v before end of block", b, op.Opcode)
			}
		}

		for _, s := range b.Successors() {
			if !owned[s] {
				return errors.Wrap(ErrMalformed, "%v: successor %v outside function", b, s)
			}
		}

		term := b.Terminator()
		switch {
		case term == nil:
			if b.Next == nil {
				return errors.Wrap(ErrMalformed, "%v: falls off the end", b)
			}
		case term.Opcode == OpBranch:
			if b.Branch == nil {
				return errors.Wrap(ErrMalformed, "%v: branch without target", b)
			}
		case term.Opcode == OpBranchIf:
			if b.Branch == nil || b.Next == nil {
				return errors.Wrap(ErrMalformed, "%v: conditional branch needs target and fall-through", b)
			}
		case term.Opcode == OpReturn:
			if b.Next != nil || b.Branch != nil {
				return errors.Wrap(ErrMalformed, "%v: successors after return", b)
			}
		}
	}

	return nil
}

func (f *Function) String() string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "func %s @%#x\n", f.Name, f.Address)
	for _, b := range f.Blocks {
		fmt.Fprintf(&sb, "%v @%#x:", b, b.Address)
		if b.Branch != nil {
			fmt.Fprintf(&sb, " branch=%v", b.Branch)
		}
		if b.Next != nil {
			fmt.Fprintf(&sb, " next=%v", b.Next)
		}
		sb.WriteString("\n")

		for _, op := range b.Operations {
			fmt.Fprintf(&sb, "\t%v\n", op)
		}
	}

	return sb.String()
}
