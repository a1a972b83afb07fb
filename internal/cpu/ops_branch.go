package cpu

import "fmt"

const (
	funct3BEQ  = 0
	funct3BNE  = 1
	funct3BLT  = 4
	funct3BGE  = 5
	funct3BLTU = 6
	funct3BGEU = 7
)

// execBranch implements BRANCH: compares rs1/rs2 per funct3 and either
// advances PC by B-imm (taken) or by 4 (fall-through).
func execBranch(c *CPU, isn uint32, f fields) error {
	a, b := c.Regs[f.rs1], c.Regs[f.rs2]
	var taken bool
	switch f.funct3 {
	case funct3BEQ:
		taken = a == b
	case funct3BNE:
		taken = a != b
	case funct3BLT:
		taken = signed(a) < signed(b)
	case funct3BGE:
		taken = signed(a) >= signed(b)
	case funct3BLTU:
		taken = a < b
	case funct3BGEU:
		taken = a >= b
	default:
		return fmt.Errorf("%w: branch funct3=%d", ErrUnimplementedFunct, f.funct3)
	}
	if taken {
		target := c.PC + f.bImm
		if target&0x3 != 0 {
			return fmt.Errorf("%w: branch target 0x%x", ErrMisalignedTarget, target)
		}
		c.PC = target
		return nil
	}
	c.PC += 4
	return nil
}
