package codegen

import (
	"encoding/binary"

	"tlog.app/go/errors"
)

// InstructionSize is the size of every AArch64 instruction in bytes.
const InstructionSize = 4

// CodeWriter is an append-only instruction buffer with a movable write
// cursor. Writing at the end grows the buffer; writing before the end
// overwrites in place.
type CodeWriter struct {
	buf []byte
	pos int
}

// NewCodeWriter creates an empty writer.
func NewCodeWriter() *CodeWriter {
	return &CodeWriter{buf: make([]byte, 0, 256)}
}

// Offset returns the write cursor.
func (w *CodeWriter) Offset() int {
	return w.pos
}

// Len returns the buffer length.
func (w *CodeWriter) Len() int {
	return len(w.buf)
}

// Emit writes one instruction word at the cursor and advances it.
func (w *CodeWriter) Emit(word uint32) {
	if w.pos == len(w.buf) {
		w.buf = binary.LittleEndian.AppendUint32(w.buf, word)
	} else {
		binary.LittleEndian.PutUint32(w.buf[w.pos:], word)
	}
	w.pos += InstructionSize
}

// Reserve appends one zeroed instruction slot and returns its offset.
func (w *CodeWriter) Reserve() int {
	off := w.pos
	w.Emit(0)
	return off
}

// Seek moves the cursor to an instruction boundary inside the buffer.
func (w *CodeWriter) Seek(off int) error {
	if off < 0 || off > len(w.buf) || off%InstructionSize != 0 {
		return errors.Wrap(ErrWriterOutOfRange, "seek to %d of %d", off, len(w.buf))
	}
	w.pos = off
	return nil
}

// SeekEnd moves the cursor to the end of the buffer.
func (w *CodeWriter) SeekEnd() {
	w.pos = len(w.buf)
}

// Word returns the instruction at off.
func (w *CodeWriter) Word(off int) uint32 {
	return binary.LittleEndian.Uint32(w.buf[off:])
}

// Bytes returns the buffer.
func (w *CodeWriter) Bytes() []byte {
	return w.buf
}
