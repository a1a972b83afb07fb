package cpu

import "fmt"

const (
	funct3LB  = 0
	funct3LH  = 1
	funct3LW  = 2
	funct3LD  = 3
	funct3LBU = 4
	funct3LHU = 5
	funct3LWU = 6
)

// execLoad implements LOAD: ea = rs1 + I-imm; funct3 selects width and
// sign extension.
func execLoad(c *CPU, isn uint32, f fields) error {
	ea := c.Regs[f.rs1] + f.iImm
	var result uint64
	switch f.funct3 {
	case funct3LB:
		v, err := c.Mem.ReadU8(ea)
		if err != nil {
			return err
		}
		result = signExtendByte(v)
	case funct3LH:
		v, err := c.Mem.ReadU16(ea)
		if err != nil {
			return err
		}
		result = signExtendHalf(v)
	case funct3LW:
		v, err := c.Mem.ReadU32(ea)
		if err != nil {
			return err
		}
		result = signExtendWord(v)
	case funct3LD:
		v, err := c.Mem.ReadU64(ea)
		if err != nil {
			return err
		}
		result = v
	case funct3LBU:
		v, err := c.Mem.ReadU8(ea)
		if err != nil {
			return err
		}
		result = uint64(v)
	case funct3LHU:
		v, err := c.Mem.ReadU16(ea)
		if err != nil {
			return err
		}
		result = uint64(v)
	case funct3LWU:
		v, err := c.Mem.ReadU32(ea)
		if err != nil {
			return err
		}
		result = uint64(v)
	default:
		return fmt.Errorf("%w: load funct3=%d", ErrUnimplementedFunct, f.funct3)
	}
	writeReg(c, f.rd, result)
	c.PC += 4
	return nil
}

const (
	funct3SB = 0
	funct3SH = 1
	funct3SW = 2
	funct3SD = 3
)

// execStore implements STORE: ea = rs1 + S-imm; writes rs2 truncated to
// the access width.
func execStore(c *CPU, isn uint32, f fields) error {
	ea := c.Regs[f.rs1] + f.sImm
	v := c.Regs[f.rs2]
	var err error
	switch f.funct3 {
	case funct3SB:
		err = c.Mem.WriteU8(ea, uint8(v))
	case funct3SH:
		err = c.Mem.WriteU16(ea, uint16(v))
	case funct3SW:
		err = c.Mem.WriteU32(ea, uint32(v))
	case funct3SD:
		err = c.Mem.WriteU64(ea, v)
	default:
		return fmt.Errorf("%w: store funct3=%d", ErrUnimplementedFunct, f.funct3)
	}
	if err != nil {
		return err
	}
	c.PC += 4
	return nil
}

func signExtendByte(v uint8) uint64 {
	if v&0x80 != 0 {
		return uint64(v) | ^uint64(0xFF)
	}
	return uint64(v)
}

func signExtendHalf(v uint16) uint64 {
	if v&0x8000 != 0 {
		return uint64(v) | ^uint64(0xFFFF)
	}
	return uint64(v)
}

func signExtendWord(v uint32) uint64 {
	if v&0x80000000 != 0 {
		return uint64(v) | ^uint64(0xFFFFFFFF)
	}
	return uint64(v)
}
