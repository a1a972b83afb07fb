// Package elfload hand-parses a statically linked RISC-V64 System-V ELF
// executable and materialises its PROGBITS sections into a guest memory
// map, resolving the _start symbol as the initial program counter.
//
// Parsing is done by hand against the raw byte buffer rather than via
// debug/elf: the loader's validation rules (magic, class, OS ABI, machine,
// endianness) and its section-driven copy are part of the emulator's own
// contract, not a generic ELF reader's.
package elfload

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/amyip/riscvum/internal/memory"
)

// Format errors. All are fatal to the host per the emulator's error
// taxonomy; none are recoverable.
var (
	ErrBadMagic      = errors.New("elfload: not an ELF file")
	ErrWrongClass    = errors.New("elfload: not a 64-bit ELF")
	ErrWrongData     = errors.New("elfload: not little-endian")
	ErrWrongOSABI    = errors.New("elfload: not a System-V ABI binary")
	ErrWrongMachine  = errors.New("elfload: not a RISC-V binary")
	ErrCompressed    = errors.New("elfload: compressed sections are not supported")
	ErrTruncated     = errors.New("elfload: truncated ELF file")
	ErrNoEntrySymbol = errors.New("elfload: missing _start symbol")
)

const (
	elfMagic0 = 0x7F
	elfMagic1 = 'E'
	elfMagic2 = 'L'
	elfMagic3 = 'F'

	elfClass64    = 2
	elfData2LSB   = 1
	elfOSABISysV  = 0
	elfMachineRSV = 0xF3 // EM_RISCV

	shTypeProgbits = 0x1
	shTypeSymtab   = 0x2
	shTypeNobits   = 0x8

	// shFlagsCompressed marks a section whose contents are compressed
	// (SHF_COMPRESSED); this loader refuses to load such sections.
	shFlagsCompressed = 0x800

	ehsizeMin = 64 // size of the ELF64 file header
	shentsize = 64 // size of one ELF64 section header
	symentsize = 24 // size of one ELF64 symbol table entry
)

// Image is the result of a successful load: the initial program counter
// and the set of resolved symbol addresses. The populated memory lives in
// the *memory.Map passed to Load; Image itself holds no bytes.
type Image struct {
	EntryPC uint64
	Symbols map[string]uint64
}

// Load reads the whole ELF file from r, validates it, copies its PROGBITS
// sections into mem, backs and zero-initialises the stack region, and
// resolves the _start symbol.
func Load(r io.Reader, mem *memory.Map) (*Image, error) {
	buf, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return LoadBytes(buf, mem)
}

type rawSection struct {
	typ, flags       uint64
	addr, offset, sz uint64
	link             uint32
}

// LoadBytes is like Load but takes an already-materialised byte buffer.
func LoadBytes(buf []byte, mem *memory.Map) (*Image, error) {
	if err := validateHeader(buf); err != nil {
		return nil, err
	}

	shoff := binary.LittleEndian.Uint64(buf[0x28:0x30])
	shentsizeFile := binary.LittleEndian.Uint16(buf[0x3A:0x3C])
	shnum := binary.LittleEndian.Uint16(buf[0x3C:0x3E])

	if int(shentsizeFile) != shentsize {
		return nil, fmt.Errorf("%w: unexpected section header size %d", ErrTruncated, shentsizeFile)
	}
	if uint64(len(buf)) < shoff+uint64(shnum)*uint64(shentsize) {
		return nil, ErrTruncated
	}

	sections := make([]rawSection, shnum)
	for i := 0; i < int(shnum); i++ {
		s := buf[shoff+uint64(i)*shentsize:]
		sections[i] = rawSection{
			typ:    uint64(binary.LittleEndian.Uint32(s[4:8])),
			flags:  binary.LittleEndian.Uint64(s[8:16]),
			addr:   binary.LittleEndian.Uint64(s[16:24]),
			offset: binary.LittleEndian.Uint64(s[24:32]),
			sz:     binary.LittleEndian.Uint64(s[32:40]),
			link:   binary.LittleEndian.Uint32(s[40:44]),
		}
	}

	for _, s := range sections {
		if s.typ != shTypeProgbits || s.sz == 0 {
			continue
		}
		if s.flags&shFlagsCompressed != 0 {
			return nil, ErrCompressed
		}
		if uint64(len(buf)) < s.offset+s.sz {
			return nil, ErrTruncated
		}
		if !mem.AllocateRange(s.addr, s.sz) {
			return nil, fmt.Errorf("%w: overlapping PROGBITS sections at 0x%x", ErrTruncated, s.addr)
		}
		if err := mem.WriteBytes(s.addr, buf[s.offset:s.offset+s.sz]); err != nil {
			return nil, err
		}
	}
	// SHT_NOBITS (.bss) regions need no byte copy: AllocateRange above
	// already zero-initialised any page it backs, and .bss sections are
	// skipped in the loop above since their typ is shTypeNobits, not
	// shTypeProgbits. Back them anyway so reads don't fault.
	for _, s := range sections {
		if s.typ != shTypeNobits || s.sz == 0 {
			continue
		}
		mem.AllocateRange(s.addr, s.sz)
	}

	symbols, err := resolveSymbols(buf, sections)
	if err != nil {
		return nil, err
	}

	if !mem.AllocateRange(memory.StackBase, memory.StackSize) {
		return nil, fmt.Errorf("%w: stack region overlaps loaded sections", ErrTruncated)
	}

	entryPC, ok := symbols["_start"]
	if !ok {
		return nil, ErrNoEntrySymbol
	}

	return &Image{EntryPC: entryPC, Symbols: symbols}, nil
}

func validateHeader(buf []byte) error {
	if len(buf) < ehsizeMin {
		return ErrTruncated
	}
	if buf[0] != elfMagic0 || buf[1] != elfMagic1 || buf[2] != elfMagic2 || buf[3] != elfMagic3 {
		return ErrBadMagic
	}
	if buf[4] != elfClass64 {
		return ErrWrongClass
	}
	if buf[7] != elfOSABISysV {
		return ErrWrongOSABI
	}
	machine := binary.LittleEndian.Uint16(buf[18:20])
	if machine != elfMachineRSV {
		return ErrWrongMachine
	}
	if buf[5] != elfData2LSB {
		return ErrWrongData
	}
	return nil
}

// resolveSymbols walks every SHT_SYMTAB section and returns a map from
// symbol name to value, using the symtab's sh_link to find its string
// table.
func resolveSymbols(buf []byte, sections []rawSection) (map[string]uint64, error) {
	out := make(map[string]uint64)
	for _, s := range sections {
		if s.typ != shTypeSymtab || s.sz == 0 {
			continue
		}
		if int(s.link) >= len(sections) {
			return nil, fmt.Errorf("%w: symtab sh_link out of range", ErrTruncated)
		}
		strtab := sections[s.link]
		if uint64(len(buf)) < strtab.offset+strtab.sz {
			return nil, ErrTruncated
		}
		strs := buf[strtab.offset : strtab.offset+strtab.sz]

		if uint64(len(buf)) < s.offset+s.sz {
			return nil, ErrTruncated
		}
		n := int(s.sz / symentsize)
		for i := 0; i < n; i++ {
			ent := buf[s.offset+uint64(i)*symentsize:]
			nameOff := binary.LittleEndian.Uint32(ent[0:4])
			value := binary.LittleEndian.Uint64(ent[8:16])
			name := cString(strs, int(nameOff))
			if name == "" {
				continue
			}
			out[name] = value
		}
	}
	return out, nil
}

func cString(buf []byte, off int) string {
	if off < 0 || off >= len(buf) {
		return ""
	}
	end := off
	for end < len(buf) && buf[end] != 0 {
		end++
	}
	return string(buf[off:end])
}
