package ir

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/bits"

	"tlog.app/go/errors"
)

// ErrLaneIndex is the panic value for an out-of-range lane view.
var ErrLaneIndex = errors.New("lane index out of range")

// V128 is an immutable 128-bit vector value made of two 64-bit lanes.
// Lane 0 holds the low 64 bits. Narrower elements are packed least
// significant first within each lane.
type V128 struct {
	lo, hi uint64
}

// V128FromUint64s packs two 64-bit lanes.
func V128FromUint64s(lo, hi uint64) V128 {
	return V128{lo: lo, hi: hi}
}

// V128FromInt64s packs two signed 64-bit lanes.
func V128FromInt64s(lo, hi int64) V128 {
	return V128{lo: uint64(lo), hi: uint64(hi)}
}

// V128FromUint32s packs four 32-bit elements, a in element 0.
func V128FromUint32s(a, b, c, d uint32) V128 {
	return V128{
		lo: uint64(a) | uint64(b)<<32,
		hi: uint64(c) | uint64(d)<<32,
	}
}

// V128FromInt32s packs four signed 32-bit elements.
func V128FromInt32s(a, b, c, d int32) V128 {
	return V128FromUint32s(uint32(a), uint32(b), uint32(c), uint32(d))
}

// V128FromFloat32 places f in element 0 and zeroes the rest.
func V128FromFloat32(f float32) V128 {
	return V128{lo: uint64(math.Float32bits(f))}
}

// V128FromFloat32s packs four single-precision elements.
func V128FromFloat32s(a, b, c, d float32) V128 {
	return V128FromUint32s(math.Float32bits(a), math.Float32bits(b),
		math.Float32bits(c), math.Float32bits(d))
}

// V128FromFloat64 places d in lane 0 and zeroes lane 1.
func V128FromFloat64(d float64) V128 {
	return V128{lo: math.Float64bits(d)}
}

// V128FromFloat64s packs two double-precision lanes.
func V128FromFloat64s(a, b float64) V128 {
	return V128{lo: math.Float64bits(a), hi: math.Float64bits(b)}
}

// V128FromBytes builds a value from little-endian bytes.
func V128FromBytes(b [16]byte) V128 {
	return V128{
		lo: binary.LittleEndian.Uint64(b[:8]),
		hi: binary.LittleEndian.Uint64(b[8:]),
	}
}

func checkLane(index, count int, view string) {
	if index < 0 || index >= count {
		panic(errors.Wrap(ErrLaneIndex, "%s view index %d", view, index))
	}
}

func (v V128) lane(i int) uint64 {
	if i == 0 {
		return v.lo
	}
	return v.hi
}

// Lo returns lane 0.
func (v V128) Lo() uint64 { return v.lo }

// Hi returns lane 1.
func (v V128) Hi() uint64 { return v.hi }

// Uint64 returns 64-bit lane i.
func (v V128) Uint64(i int) uint64 {
	checkLane(i, 2, "uint64")
	return v.lane(i)
}

// Int64 returns 64-bit lane i as a signed value.
func (v V128) Int64(i int) int64 {
	checkLane(i, 2, "int64")
	return int64(v.lane(i))
}

// Float64 reinterprets 64-bit lane i as a double.
func (v V128) Float64(i int) float64 {
	checkLane(i, 2, "float64")
	return math.Float64frombits(v.lane(i))
}

// Uint32 returns 32-bit element i.
func (v V128) Uint32(i int) uint32 {
	checkLane(i, 4, "uint32")
	return uint32(v.lane(i/2) >> (32 * (i % 2)))
}

// Int32 returns 32-bit element i as a signed value.
func (v V128) Int32(i int) int32 {
	checkLane(i, 4, "int32")
	return int32(v.lane(i/2) >> (32 * (i % 2)))
}

// Float32 reinterprets 32-bit element i as a single.
func (v V128) Float32(i int) float32 {
	checkLane(i, 4, "float32")
	return math.Float32frombits(uint32(v.lane(i/2) >> (32 * (i % 2))))
}

// Uint16 returns 16-bit element i.
func (v V128) Uint16(i int) uint16 {
	checkLane(i, 8, "uint16")
	return uint16(v.lane(i/4) >> (16 * (i % 4)))
}

// Uint8 returns byte i.
func (v V128) Uint8(i int) uint8 {
	checkLane(i, 16, "uint8")
	return uint8(v.lane(i/8) >> (8 * (i % 8)))
}

// Element returns element i of the given width in bits, zero-extended.
func (v V128) Element(width, i int) uint64 {
	switch width {
	case 8:
		return uint64(v.Uint8(i))
	case 16:
		return uint64(v.Uint16(i))
	case 32:
		return uint64(v.Uint32(i))
	case 64:
		return v.Uint64(i)
	}
	panic(errors.Wrap(ErrLaneIndex, "element width %d", width))
}

// WithElement returns a copy with element i of the given width replaced.
func (v V128) WithElement(width, i int, x uint64) V128 {
	switch width {
	case 8:
		return v.WithUint8(i, uint8(x))
	case 16:
		return v.WithUint16(i, uint16(x))
	case 32:
		return v.WithUint32(i, uint32(x))
	case 64:
		return v.WithUint64(i, x)
	}
	panic(errors.Wrap(ErrLaneIndex, "element width %d", width))
}

func (v V128) withBits(width, i int, x uint64) V128 {
	per := 64 / width
	shift := uint(width * (i % per))
	mask := (uint64(1)<<width - 1) << shift
	if i/per == 0 {
		v.lo = v.lo&^mask | x<<shift&mask
	} else {
		v.hi = v.hi&^mask | x<<shift&mask
	}
	return v
}

// WithUint64 returns a copy with lane i replaced.
func (v V128) WithUint64(i int, x uint64) V128 {
	checkLane(i, 2, "uint64")
	if i == 0 {
		v.lo = x
	} else {
		v.hi = x
	}
	return v
}

// WithUint32 returns a copy with 32-bit element i replaced.
func (v V128) WithUint32(i int, x uint32) V128 {
	checkLane(i, 4, "uint32")
	return v.withBits(32, i, uint64(x))
}

// WithUint16 returns a copy with 16-bit element i replaced.
func (v V128) WithUint16(i int, x uint16) V128 {
	checkLane(i, 8, "uint16")
	return v.withBits(16, i, uint64(x))
}

// WithUint8 returns a copy with byte i replaced.
func (v V128) WithUint8(i int, x uint8) V128 {
	checkLane(i, 16, "uint8")
	return v.withBits(8, i, uint64(x))
}

// Bytes returns the little-endian byte form.
func (v V128) Bytes() (b [16]byte) {
	binary.LittleEndian.PutUint64(b[:8], v.lo)
	binary.LittleEndian.PutUint64(b[8:], v.hi)
	return b
}

// Equal reports exact bitwise equality.
func (v V128) Equal(w V128) bool {
	return v.lo == w.lo && v.hi == w.hi
}

// IsZero reports whether every bit is clear.
func (v V128) IsZero() bool {
	return v.lo|v.hi == 0
}

// Hash mixes both lanes into a 64-bit hash.
func (v V128) Hash() uint64 {
	h := v.lo * 0x9E3779B97F4A7C15
	h ^= bits.RotateLeft64(v.hi*0xC2B2AE3D27D4EB4F, 31)
	return h ^ h>>29
}

// Not returns the bitwise complement of v.
func (v V128) Not() V128 { return V128{lo: ^v.lo, hi: ^v.hi} }

// And returns v & w.
func (v V128) And(w V128) V128 { return V128{lo: v.lo & w.lo, hi: v.hi & w.hi} }

// Or returns v | w.
func (v V128) Or(w V128) V128 { return V128{lo: v.lo | w.lo, hi: v.hi | w.hi} }

// Xor returns v ^ w.
func (v V128) Xor(w V128) V128 { return V128{lo: v.lo ^ w.lo, hi: v.hi ^ w.hi} }

// AndNot returns v & ^w.
func (v V128) AndNot(w V128) V128 { return V128{lo: v.lo &^ w.lo, hi: v.hi &^ w.hi} }

// Low64 returns the value with lane 1 cleared.
func (v V128) Low64() V128 { return V128{lo: v.lo} }

func (v V128) String() string {
	return fmt.Sprintf("0x%016x_%016x", v.hi, v.lo)
}
