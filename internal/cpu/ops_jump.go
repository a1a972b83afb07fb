package cpu

import "fmt"

// execJAL implements JAL: rd <- PC + 4; PC <- PC + J-imm.
func execJAL(c *CPU, isn uint32, f fields) error {
	link := c.PC + 4
	target := c.PC + f.jImm
	if target&0x3 != 0 {
		return fmt.Errorf("%w: jal target 0x%x", ErrMisalignedTarget, target)
	}
	writeReg(c, f.rd, link)
	c.PC = target
	return nil
}

// execJALR implements JALR (funct3 must be 0): target = (rs1 + I-imm) &
// ~1; rd <- PC + 4; PC <- target. A target that is not 4-byte aligned
// after masking the low bit is a fatal host error.
func execJALR(c *CPU, isn uint32, f fields) error {
	if f.funct3 != 0 {
		return fmt.Errorf("%w: jalr funct3=%d", ErrUnimplementedFunct, f.funct3)
	}
	target := (c.Regs[f.rs1] + f.iImm) &^ 1
	if target&0x3 != 0 {
		return fmt.Errorf("%w: jalr target 0x%x", ErrMisalignedTarget, target)
	}
	link := c.PC + 4
	writeReg(c, f.rd, link)
	c.PC = target
	return nil
}
