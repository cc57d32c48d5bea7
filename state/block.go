package state

import (
	"encoding/binary"
	"unsafe"

	"tlog.app/go/errors"

	"github.com/sarchlab/m2dbt/ir"
)

// Block is the guest state of one execution context. The memory is only
// reached through the bounds-checked accessors below; compiled code gets
// the base address and uses the offsets from this package.
type Block struct {
	mem   []byte
	alloc Allocator
}

// New allocates a zeroed block from a.
func New(a Allocator) (*Block, error) {
	mem, err := a.Allocate(Size)
	if err != nil {
		return nil, errors.Wrap(err, "allocate state block")
	}

	clear(mem)

	return &Block{mem: mem, alloc: a}, nil
}

// NewHeap allocates a zeroed block on the Go heap. Unlike New it cannot
// fail.
func NewHeap() *Block {
	return &Block{mem: make([]byte, Size), alloc: HeapAllocator{}}
}

// Dispose releases the backing memory. Further use fails with
// ErrDisposed.
func (b *Block) Dispose() error {
	if b.mem == nil {
		return ErrDisposed
	}

	mem := b.mem
	b.mem = nil

	return b.alloc.Free(mem)
}

// BaseAddress returns the address compiled code receives as its state
// argument. It is valid until Dispose.
func (b *Block) BaseAddress() (uintptr, error) {
	if b.mem == nil {
		return 0, ErrDisposed
	}
	return uintptr(unsafe.Pointer(&b.mem[0])), nil
}

// Reset zeroes every slot.
func (b *Block) Reset() error {
	if b.mem == nil {
		return ErrDisposed
	}
	clear(b.mem)
	return nil
}

func (b *Block) slice(off, size int) ([]byte, error) {
	if b.mem == nil {
		return nil, ErrDisposed
	}
	if off < 0 || off+size > len(b.mem) {
		return nil, errors.Wrap(ErrOutOfRange, "offset %d size %d", off, size)
	}
	if off%size != 0 {
		return nil, errors.Wrap(ErrMisaligned, "offset %d size %d", off, size)
	}
	return b.mem[off : off+size], nil
}

// Load reads a little-endian integer of size 1, 2, 4 or 8 bytes.
func (b *Block) Load(off, size int) (uint64, error) {
	if size != 1 && size != 2 && size != 4 && size != 8 {
		return 0, errors.Wrap(ErrOutOfRange, "load size %d", size)
	}

	p, err := b.slice(off, size)
	if err != nil {
		return 0, err
	}

	switch size {
	case 1:
		return uint64(p[0]), nil
	case 2:
		return uint64(binary.LittleEndian.Uint16(p)), nil
	case 4:
		return uint64(binary.LittleEndian.Uint32(p)), nil
	default:
		return binary.LittleEndian.Uint64(p), nil
	}
}

// Store writes the low size bytes of v.
func (b *Block) Store(off, size int, v uint64) error {
	if size != 1 && size != 2 && size != 4 && size != 8 {
		return errors.Wrap(ErrOutOfRange, "store size %d", size)
	}

	p, err := b.slice(off, size)
	if err != nil {
		return err
	}

	switch size {
	case 1:
		p[0] = byte(v)
	case 2:
		binary.LittleEndian.PutUint16(p, uint16(v))
	case 4:
		binary.LittleEndian.PutUint32(p, uint32(v))
	default:
		binary.LittleEndian.PutUint64(p, v)
	}

	return nil
}

// LoadV128 reads a 16-byte vector.
func (b *Block) LoadV128(off int) (ir.V128, error) {
	p, err := b.slice(off, 16)
	if err != nil {
		return ir.V128{}, err
	}

	return ir.V128FromBytes([16]byte(p)), nil
}

// StoreV128 writes a 16-byte vector.
func (b *Block) StoreV128(off int, v ir.V128) error {
	p, err := b.slice(off, 16)
	if err != nil {
		return err
	}

	data := v.Bytes()
	copy(p, data[:])

	return nil
}

// IntReg reads integer register i. Index 31 is SP.
func (b *Block) IntReg(i int) (uint64, error) {
	off, err := IntRegOffset(i)
	if err != nil {
		return 0, err
	}
	return b.Load(off, 8)
}

// SetIntReg writes integer register i. Index 31 is SP.
func (b *Block) SetIntReg(i int, v uint64) error {
	off, err := IntRegOffset(i)
	if err != nil {
		return err
	}
	return b.Store(off, 8, v)
}

// VecReg reads vector register i.
func (b *Block) VecReg(i int) (ir.V128, error) {
	off, err := VecRegOffset(i)
	if err != nil {
		return ir.V128{}, err
	}
	return b.LoadV128(off)
}

// SetVecReg writes vector register i.
func (b *Block) SetVecReg(i int, v ir.V128) error {
	off, err := VecRegOffset(i)
	if err != nil {
		return err
	}
	return b.StoreV128(off, v)
}

// Flag reads an integer condition flag.
func (b *Block) Flag(f Flag) (bool, error) {
	off, err := FlagOffset(f)
	if err != nil {
		return false, err
	}
	v, err := b.Load(off, 4)
	return v != 0, err
}

// SetFlag writes an integer condition flag as 0 or 1.
func (b *Block) SetFlag(f Flag, set bool) error {
	off, err := FlagOffset(f)
	if err != nil {
		return err
	}
	return b.Store(off, 4, boolWord(set))
}

// FPFlag reads a floating-point flag.
func (b *Block) FPFlag(f FPFlag) (bool, error) {
	off, err := FPFlagOffset(f)
	if err != nil {
		return false, err
	}
	v, err := b.Load(off, 4)
	return v != 0, err
}

// SetFPFlag writes a floating-point flag as 0 or 1.
func (b *Block) SetFPFlag(f FPFlag, set bool) error {
	off, err := FPFlagOffset(f)
	if err != nil {
		return err
	}
	return b.Store(off, 4, boolWord(set))
}

// NZCV packs the integer condition flags into the PSTATE bit layout.
func (b *Block) NZCV() (uint32, error) {
	var nzcv uint32
	for _, f := range []Flag{FlagN, FlagZ, FlagC, FlagV} {
		set, err := b.Flag(f)
		if err != nil {
			return 0, err
		}
		if set {
			nzcv |= 1 << f
		}
	}
	return nzcv, nil
}

// Counter reads the step counter.
func (b *Block) Counter() (uint32, error) {
	v, err := b.Load(CounterOffset(), 4)
	return uint32(v), err
}

// SetCounter writes the step counter.
func (b *Block) SetCounter(v uint32) error {
	return b.Store(CounterOffset(), 4, uint64(v))
}

// CallAddress reads the pending-call address.
func (b *Block) CallAddress() (uint64, error) {
	return b.Load(CallAddressOffset(), 8)
}

// SetCallAddress writes the pending-call address.
func (b *Block) SetCallAddress(v uint64) error {
	return b.Store(CallAddressOffset(), 8, v)
}

func boolWord(set bool) uint64 {
	if set {
		return 1
	}
	return 0
}
