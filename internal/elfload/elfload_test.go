package elfload_test

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/amyip/riscvum/internal/elfload"
	"github.com/amyip/riscvum/internal/memory"
	"github.com/stretchr/testify/require"
)

// buildELF assembles a minimal RISC-V64 System-V ELF64 executable with a
// NULL section, one PROGBITS section (at progAddr, containing progData), a
// symtab with one entry named "_start" pointing at entryAddr, and a
// strtab backing the symtab. No section-name string table is emitted.
func buildELF(t *testing.T, progAddr uint64, progData []byte, entryAddr uint64) []byte {
	t.Helper()

	const ehsize = 64
	const shentsize = 64
	const symentsize = 24

	// Section layout, in file order after the header:
	//   [0] NULL section (required placeholder, index 0)
	//   [1] .text   (PROGBITS)  -> progData
	//   [2] .strtab (STRTAB)    -> symbol names
	//   [3] .symtab (SYMTAB)    -> one entry: _start
	var body bytes.Buffer

	textOff := uint64(ehsize)
	textSize := uint64(len(progData))
	body.Write(progData)

	strtabOff := uint64(body.Len()) + textOff
	strtab := []byte{0x00} // index 0 is always the empty string
	nameOff := uint32(len(strtab))
	strtab = append(strtab, []byte("_start\x00")...)
	body.Write(strtab)
	strtabSize := uint64(len(strtab))

	symtabOff := uint64(body.Len()) + textOff
	sym := make([]byte, symentsize)
	binary.LittleEndian.PutUint32(sym[0:4], nameOff)
	binary.LittleEndian.PutUint64(sym[8:16], entryAddr)
	body.Write(sym)
	symtabSize := uint64(symentsize)

	shoff := textOff + uint64(body.Len())
	shnum := uint16(4)

	hdr := make([]byte, ehsize)
	hdr[0], hdr[1], hdr[2], hdr[3] = 0x7F, 'E', 'L', 'F'
	hdr[4] = 2 // ELFCLASS64
	hdr[5] = 1 // ELFDATA2LSB
	hdr[7] = 0 // ELFOSABI_SYSV
	binary.LittleEndian.PutUint16(hdr[18:20], 0xF3) // EM_RISCV
	binary.LittleEndian.PutUint64(hdr[0x28:0x30], shoff)
	binary.LittleEndian.PutUint16(hdr[0x3A:0x3C], shentsize)
	binary.LittleEndian.PutUint16(hdr[0x3C:0x3E], shnum)

	writeSH := func(buf *bytes.Buffer, typ uint32, flags uint64, addr, off, sz uint64, link uint32) {
		sh := make([]byte, shentsize)
		binary.LittleEndian.PutUint32(sh[4:8], typ)
		binary.LittleEndian.PutUint64(sh[8:16], flags)
		binary.LittleEndian.PutUint64(sh[16:24], addr)
		binary.LittleEndian.PutUint64(sh[24:32], off)
		binary.LittleEndian.PutUint64(sh[32:40], sz)
		binary.LittleEndian.PutUint32(sh[40:44], link)
		buf.Write(sh)
	}

	var out bytes.Buffer
	out.Write(hdr)
	out.Write(body.Bytes())
	writeSH(&out, 0, 0, 0, 0, 0, 0)                         // NULL
	writeSH(&out, 0x1, 0, progAddr, textOff, textSize, 0)   // .text PROGBITS
	writeSH(&out, 0x3, 0, 0, strtabOff, strtabSize, 0)      // .strtab STRTAB
	writeSH(&out, 0x2, 0, 0, symtabOff, symtabSize, 2)      // .symtab SYMTAB, sh_link -> strtab

	return out.Bytes()
}

func TestLoadValidELF(t *testing.T) {
	progData := []byte{0x13, 0x00, 0x00, 0x00} // addi x0, x0, 0 (nop-ish)
	buf := buildELF(t, 0x1000, progData, 0x1000)

	mem := memory.NewMap()
	img, err := elfload.LoadBytes(buf, mem)
	require.NoError(t, err)
	require.Equal(t, uint64(0x1000), img.EntryPC)
	require.Equal(t, uint64(0x1000), img.Symbols["_start"])

	word, err := mem.ReadU32(0x1000)
	require.NoError(t, err)
	require.Equal(t, uint32(0x00000013), word)

	// stack region must be backed too
	require.NoError(t, mem.WriteU64(memory.TopOfStack-8, 1))
}

func TestLoadRejectsBadMagic(t *testing.T) {
	buf := buildELF(t, 0x1000, []byte{0, 0, 0, 0}, 0x1000)
	buf[0] = 0x00
	mem := memory.NewMap()
	_, err := elfload.LoadBytes(buf, mem)
	require.ErrorIs(t, err, elfload.ErrBadMagic)
}

func TestLoadRejectsWrongMachine(t *testing.T) {
	buf := buildELF(t, 0x1000, []byte{0, 0, 0, 0}, 0x1000)
	binary.LittleEndian.PutUint16(buf[18:20], 0x3E) // EM_X86_64
	mem := memory.NewMap()
	_, err := elfload.LoadBytes(buf, mem)
	require.ErrorIs(t, err, elfload.ErrWrongMachine)
}

func TestLoadRejectsCompressedSection(t *testing.T) {
	progData := []byte{0x13, 0x00, 0x00, 0x00}
	buf := buildELF(t, 0x1000, progData, 0x1000)

	// flip .text's sh_flags to SHF_COMPRESSED after the fact; buildELF
	// always writes flags=0 for every section.
	const shentsize = 64
	shoff := binary.LittleEndian.Uint64(buf[0x28:0x30])
	textSH := buf[shoff+1*shentsize:]
	binary.LittleEndian.PutUint64(textSH[8:16], 0x800) // SHF_COMPRESSED

	mem := memory.NewMap()
	_, err := elfload.LoadBytes(buf, mem)
	require.ErrorIs(t, err, elfload.ErrCompressed)
}

func TestLoadRejectsMissingEntrySymbol(t *testing.T) {
	buf := buildELF(t, 0x1000, []byte{0, 0, 0, 0}, 0x1000)
	// corrupt the symbol name offset so it no longer resolves to "_start"
	// by truncating the strtab section's declared size to 1 (just the
	// leading NUL), hiding the name.
	const shentsize = 64
	shoff := binary.LittleEndian.Uint64(buf[0x28:0x30])
	strtabSH := buf[shoff+2*shentsize:]
	binary.LittleEndian.PutUint64(strtabSH[32:40], 1)

	mem := memory.NewMap()
	_, err := elfload.LoadBytes(buf, mem)
	require.ErrorIs(t, err, elfload.ErrNoEntrySymbol)
}
