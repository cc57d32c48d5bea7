package codegen

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/arch/arm64/arm64asm"
)

// Disassemble renders code one instruction per line in GNU syntax,
// prefixed with the byte offset. Words that do not decode are shown as
// .word directives.
func Disassemble(code []byte) []string {
	return DisassembleAt(code, 0)
}

// DisassembleAt is Disassemble with offsets relative to base.
func DisassembleAt(code []byte, base uint64) []string {
	lines := make([]string, 0, len(code)/InstructionSize)

	for off := 0; off+InstructionSize <= len(code); off += InstructionSize {
		addr := base + uint64(off)
		inst, err := arm64asm.Decode(code[off : off+InstructionSize])
		if err != nil {
			word := binary.LittleEndian.Uint32(code[off:])
			lines = append(lines, fmt.Sprintf("%#06x: .word %#08x", addr, word))
			continue
		}
		lines = append(lines, fmt.Sprintf("%#06x: %s", addr, arm64asm.GNUSyntax(inst)))
	}

	return lines
}
