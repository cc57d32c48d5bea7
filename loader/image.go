// Package loader reads AArch64 code images for inspection: ELF
// executables or raw dumps of instruction words.
package loader

import (
	"bytes"
	"debug/elf"
	"io"
	"os"

	"tlog.app/go/errors"
)

var (
	// ErrEmpty is returned for a zero-length image.
	ErrEmpty = errors.New("empty image")

	// ErrNotAArch64 is returned for ELF files of another class or
	// machine.
	ErrNotAArch64 = errors.New("not a 64-bit AArch64 ELF file")
)

// Perm is a segment protection mask.
type Perm uint8

// Segment permissions.
const (
	PermExec Perm = 1 << iota
	PermWrite
	PermRead
)

// Format is the container an image was read from.
type Format uint8

// Image formats.
const (
	FormatRaw Format = iota
	FormatELF
)

func (f Format) String() string {
	if f == FormatELF {
		return "elf"
	}
	return "raw"
}

// Segment is one loadable range of an image.
type Segment struct {
	// Addr is the address the segment is mapped at.
	Addr uint64
	// Data holds the file contents. MemSize may be larger (BSS).
	Data    []byte
	MemSize uint64
	Perm    Perm
}

// Executable reports whether the segment holds code.
func (s Segment) Executable() bool {
	return s.Perm&PermExec != 0
}

// Contains reports whether addr falls inside the file-backed part of s.
func (s Segment) Contains(addr uint64) bool {
	return addr >= s.Addr && addr-s.Addr < uint64(len(s.Data))
}

// Image is a loaded code image.
type Image struct {
	Format   Format
	Entry    uint64
	Segments []Segment
}

// Code returns the executable segments.
func (img *Image) Code() []Segment {
	var out []Segment
	for _, s := range img.Segments {
		if s.Executable() {
			out = append(out, s)
		}
	}
	return out
}

// Read returns up to n bytes of file-backed data starting at addr.
func (img *Image) Read(addr uint64, n int) ([]byte, bool) {
	for _, s := range img.Segments {
		if !s.Contains(addr) {
			continue
		}
		off := addr - s.Addr
		end := off + uint64(n)
		if end > uint64(len(s.Data)) {
			end = uint64(len(s.Data))
		}
		return s.Data[off:end], true
	}
	return nil, false
}

// Load reads the image at path. ELF files are recognized by their
// magic; anything else is taken as raw code mapped at base.
func Load(path string, base uint64) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read image")
	}

	return Parse(data, base)
}

// Parse is Load on an in-memory image.
func Parse(data []byte, base uint64) (*Image, error) {
	if len(data) == 0 {
		return nil, ErrEmpty
	}

	if bytes.HasPrefix(data, []byte(elf.ELFMAG)) {
		return parseELF(data)
	}

	return &Image{
		Format: FormatRaw,
		Entry:  base,
		Segments: []Segment{{
			Addr:    base,
			Data:    data,
			MemSize: uint64(len(data)),
			Perm:    PermRead | PermExec,
		}},
	}, nil
}

func parseELF(data []byte) (*Image, error) {
	f, err := elf.NewFile(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, "parse ELF")
	}
	defer func() { _ = f.Close() }()

	if f.Class != elf.ELFCLASS64 || f.Machine != elf.EM_AARCH64 {
		return nil, errors.Wrap(ErrNotAArch64, "class %v, machine %v", f.Class, f.Machine)
	}

	img := &Image{
		Format: FormatELF,
		Entry:  f.Entry,
	}

	for _, p := range f.Progs {
		if p.Type != elf.PT_LOAD {
			continue
		}

		seg := Segment{
			Addr:    p.Vaddr,
			Data:    make([]byte, p.Filesz),
			MemSize: p.Memsz,
		}
		if p.Filesz > 0 {
			n, err := p.ReadAt(seg.Data, 0)
			if err != nil && err != io.EOF {
				return nil, errors.Wrap(err, "segment at %#x", p.Vaddr)
			}
			if uint64(n) != p.Filesz {
				return nil, errors.New("short segment at %#x: %d of %d bytes", p.Vaddr, n, p.Filesz)
			}
		}

		if p.Flags&elf.PF_X != 0 {
			seg.Perm |= PermExec
		}
		if p.Flags&elf.PF_W != 0 {
			seg.Perm |= PermWrite
		}
		if p.Flags&elf.PF_R != 0 {
			seg.Perm |= PermRead
		}

		img.Segments = append(img.Segments, seg)
	}

	return img, nil
}
