// Package memory implements the guest's sparse 39-bit address space: a
// two-level page table modelled directly on the original emulator's
// MemoryMap, split into a low region for loaded ELF sections and a high
// region anchored at the top of the address space for the stack.
package memory

import (
	"errors"
	"fmt"

	"github.com/amyip/riscvum/internal/bits"
)

const (
	// PageSize is the size in bytes of a single backing page.
	PageSize = 1 << 12

	// pageShift is log2(PageSize).
	pageShift = 12

	// l1Bits is the number of address bits the level-1 table indexes
	// (bits 24..38 of the logical address).
	l1Bits = 15

	// l2Bits is the number of address bits the level-2 table indexes
	// (bits 12..23 of the logical address).
	l2Bits = 12

	// l1Size is the number of slots in the level-1 table.
	l1Size = 1 << l1Bits

	// l2Size is the number of slots in a level-2 table.
	l2Size = 1 << l2Bits

	// AddressBits is the width of the logical guest address space.
	AddressBits = 39

	// StackSize is the size in bytes of the high (stack) region.
	StackSize = 1 << 20

	// TopOfStack is the one-past-the-end address of the guest address
	// space; sp is initialised here.
	TopOfStack = uint64(1) << 39

	// StackBase is the first address of the stack region.
	StackBase = TopOfStack - StackSize
)

// ErrAccessFault indicates an access to an address outside any backed
// region, or with a page missing at either table level.
var ErrAccessFault = errors.New("memory: access fault")

// l2table is the second level of the sparse page table: up to l2Size
// lazily-allocated 4 KiB pages.
type l2table struct {
	pages [l2Size]*[PageSize]byte
}

// Map is the guest's sparse 39-bit address space. The zero value is a
// fully unbacked map; pages are allocated lazily via AllocatePage or
// AllocateRange.
//
// Map is the sole owner of the backing store. A future multi-hart
// extension would need to guard the l1 table with a mutex the way the
// original Rust implementation wraps its MemoryMap in an Arc<Mutex<..>>;
// the single-hart model this package implements deliberately carries no
// such lock.
type Map struct {
	l1         [l1Size]*l2table
	pagesAlloc int
}

// NewMap returns an empty guest address space.
func NewMap() *Map {
	return &Map{}
}

// PageCount returns the number of pages currently backed.
func (m *Map) PageCount() int { return m.pagesAlloc }

// split decomposes a 39-bit logical address directly into its level-1
// index (bits 24..38), level-2 index (bits 12..23), and in-page offset
// (bits 0..11). Unlike the flat-buffer representation, the paged table
// needs no low/high translation: it is sparse, so indexing the raw
// address across its full 2^39 range costs nothing extra, exactly as
// original_source/mm.rs's allocate_known_page does (no offset
// subtraction for the stack region).
func split(addr uint64) (l1i, l2i, pageoff int) {
	page := addr >> pageShift
	l1i = int((page >> l2Bits) & (l1Size - 1))
	l2i = int(page & (l2Size - 1))
	pageoff = int(addr & (PageSize - 1))
	return
}

// AllocatePage ensures the page containing addr is backed and
// zero-initialised. It returns false if the page was already backed.
func (m *Map) AllocatePage(addr uint64) bool {
	l1i, l2i, _ := split(addr)
	l2 := m.l1[l1i]
	if l2 == nil {
		l2 = &l2table{}
		m.l1[l1i] = l2
	}
	if l2.pages[l2i] != nil {
		return false
	}
	l2.pages[l2i] = &[PageSize]byte{}
	m.pagesAlloc++
	return true
}

// AllocateRange backs every page touched by [addr, addr+length). It
// returns false if any of those pages was already backed; pages that
// were allocated before the failure remain backed.
func (m *Map) AllocateRange(addr, length uint64) bool {
	if length == 0 {
		return true
	}
	base := addr &^ (PageSize - 1)
	top := (addr + length - 1) &^ (PageSize - 1)
	ok := true
	for p := base; p <= top; p += PageSize {
		if !m.AllocatePage(p) {
			ok = false
		}
		if p+PageSize < p {
			break // overflow guard, unreachable within a 39-bit space
		}
	}
	return ok
}

func (m *Map) page(addr uint64) (*[PageSize]byte, int, error) {
	l1i, l2i, pageoff := split(addr)
	l2 := m.l1[l1i]
	if l2 == nil {
		return nil, 0, fmt.Errorf("%w: address 0x%x", ErrAccessFault, addr)
	}
	page := l2.pages[l2i]
	if page == nil {
		return nil, 0, fmt.Errorf("%w: address 0x%x", ErrAccessFault, addr)
	}
	return page, pageoff, nil
}

// ReadU8 reads one byte at addr.
func (m *Map) ReadU8(addr uint64) (uint8, error) {
	page, off, err := m.page(addr)
	if err != nil {
		return 0, err
	}
	return page[off], nil
}

// WriteU8 writes one byte at addr.
func (m *Map) WriteU8(addr uint64, v uint8) error {
	page, off, err := m.page(addr)
	if err != nil {
		return err
	}
	page[off] = v
	return nil
}

// ReadU16 reads a little-endian 16-bit value at addr, straddling a page
// boundary if necessary.
func (m *Map) ReadU16(addr uint64) (uint16, error) {
	if addr&1 == 0 {
		if page, off, err := m.page(addr); err == nil && off+2 <= PageSize {
			return bits.ReadU16(page[:], off), nil
		}
	}
	lo, err := m.ReadU8(addr)
	if err != nil {
		return 0, err
	}
	hi, err := m.ReadU8(addr + 1)
	if err != nil {
		return 0, err
	}
	return uint16(lo) | uint16(hi)<<8, nil
}

// WriteU16 writes a little-endian 16-bit value at addr, straddling a page
// boundary if necessary.
func (m *Map) WriteU16(addr uint64, v uint16) error {
	if addr&1 == 0 {
		if page, off, err := m.page(addr); err == nil && off+2 <= PageSize {
			bits.WriteU16(page[:], off, v)
			return nil
		}
	}
	if err := m.WriteU8(addr, uint8(v)); err != nil {
		return err
	}
	return m.WriteU8(addr+1, uint8(v>>8))
}

// ReadU32 reads a little-endian 32-bit value at addr, straddling a page
// boundary if necessary.
func (m *Map) ReadU32(addr uint64) (uint32, error) {
	if addr&3 == 0 {
		if page, off, err := m.page(addr); err == nil && off+4 <= PageSize {
			return bits.ReadU32(page[:], off), nil
		}
	}
	lo, err := m.ReadU16(addr)
	if err != nil {
		return 0, err
	}
	hi, err := m.ReadU16(addr + 2)
	if err != nil {
		return 0, err
	}
	return uint32(lo) | uint32(hi)<<16, nil
}

// WriteU32 writes a little-endian 32-bit value at addr, straddling a page
// boundary if necessary.
func (m *Map) WriteU32(addr uint64, v uint32) error {
	if addr&3 == 0 {
		if page, off, err := m.page(addr); err == nil && off+4 <= PageSize {
			bits.WriteU32(page[:], off, v)
			return nil
		}
	}
	if err := m.WriteU16(addr, uint16(v)); err != nil {
		return err
	}
	return m.WriteU16(addr+2, uint16(v>>16))
}

// ReadU64 reads a little-endian 64-bit value at addr, straddling a page
// boundary if necessary.
func (m *Map) ReadU64(addr uint64) (uint64, error) {
	if addr&7 == 0 {
		if page, off, err := m.page(addr); err == nil && off+8 <= PageSize {
			return bits.ReadU64(page[:], off), nil
		}
	}
	lo, err := m.ReadU32(addr)
	if err != nil {
		return 0, err
	}
	hi, err := m.ReadU32(addr + 4)
	if err != nil {
		return 0, err
	}
	return uint64(lo) | uint64(hi)<<32, nil
}

// WriteU64 writes a little-endian 64-bit value at addr, straddling a page
// boundary if necessary.
func (m *Map) WriteU64(addr uint64, v uint64) error {
	if addr&7 == 0 {
		if page, off, err := m.page(addr); err == nil && off+8 <= PageSize {
			bits.WriteU64(page[:], off, v)
			return nil
		}
	}
	if err := m.WriteU32(addr, uint32(v)); err != nil {
		return err
	}
	return m.WriteU32(addr+4, uint32(v>>32))
}

// ReadBytes copies n bytes starting at addr into a freshly allocated
// slice, staging guest memory into host-owned storage. This is required
// before handing guest data to a host syscall, since a page straddling
// read cannot be returned as a contiguous slice into the backing store.
func (m *Map) ReadBytes(addr uint64, n int) ([]byte, error) {
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		b, err := m.ReadU8(addr + uint64(i))
		if err != nil {
			return nil, err
		}
		out[i] = b
	}
	return out, nil
}

// WriteBytes copies data into the guest address space starting at addr.
func (m *Map) WriteBytes(addr uint64, data []byte) error {
	for i, b := range data {
		if err := m.WriteU8(addr+uint64(i), b); err != nil {
			return err
		}
	}
	return nil
}
