package cpu

import "github.com/amyip/riscvum/internal/bits"

// fields holds every bitfield a RISC-V64I instruction word can carry. Not
// every handler uses every field; decoding them all up front keeps each
// opcode handler a straight-line function of fields, matching the
// teacher's one-case-per-opcode dispatch style.
type fields struct {
	rd, rs1, rs2   uint32
	funct3, funct7 uint32
	funct6         uint32 // bits 31:26, the SLLI/SRLI/SRAI discriminator on OP-IMM
	iImm           uint64
	sImm           uint64
	bImm           uint64
	uImm           uint64
	jImm           uint64
	shamt6         uint32 // 6-bit shift amount (OP-IMM)
	shamt5         uint32 // 5-bit shift amount (OP-IMM-32)
}

func decode(isn uint32) fields {
	var f fields
	f.rd = (isn >> 7) & 0x1F
	f.rs1 = (isn >> 15) & 0x1F
	f.rs2 = (isn >> 20) & 0x1F
	f.funct3 = (isn >> 12) & 0x7
	f.funct7 = (isn >> 25) & 0x7F
	f.funct6 = (isn >> 26) & 0x3F

	f.iImm = bits.SignExtend12(uint64(isn) >> 20)

	sImm := ((uint64(isn) >> 25) << 5) | ((uint64(isn) >> 7) & 0x1F)
	f.sImm = bits.SignExtend12(sImm)

	bImm := (bit(isn, 31) << 12) | (bit(isn, 7) << 11) |
		(bits30to25(isn) << 5) | (bits11to8(isn) << 1)
	f.bImm = bits.SignExtend13(bImm)

	f.uImm = bits.SignExtend32(uint64(isn) & 0xFFFFF000)

	jImm := (bit(isn, 31) << 20) | (bits19to12(isn) << 12) |
		(bit(isn, 20) << 11) | (bits30to21(isn) << 1)
	f.jImm = bits.SignExtend21(jImm)

	f.shamt6 = (isn >> 20) & 0x3F
	f.shamt5 = (isn >> 20) & 0x1F

	return f
}

func bit(isn uint32, n uint) uint64 {
	return uint64((isn >> n) & 1)
}

func bits30to25(isn uint32) uint64 {
	return uint64((isn >> 25) & 0x3F)
}

func bits11to8(isn uint32) uint64 {
	return uint64((isn >> 8) & 0xF)
}

func bits19to12(isn uint32) uint64 {
	return uint64((isn >> 12) & 0xFF)
}

func bits30to21(isn uint32) uint64 {
	return uint64((isn >> 21) & 0x3FF)
}
