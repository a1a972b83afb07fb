package cpu

// execLUI implements LUI: rd <- sign_extend_32(U-imm); PC += 4.
func execLUI(c *CPU, isn uint32, f fields) error {
	writeReg(c, f.rd, f.uImm)
	c.PC += 4
	return nil
}

// execAUIPC implements AUIPC: rd <- PC + sign_extend_32(U-imm); PC += 4.
func execAUIPC(c *CPU, isn uint32, f fields) error {
	writeReg(c, f.rd, c.PC+f.uImm)
	c.PC += 4
	return nil
}
