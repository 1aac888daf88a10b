// Package emu provides functional RV64IM emulation.
package emu

// ABI register numbers used by the syscall convention.
const (
	RegRA uint8 = 1  // Return address
	RegSP uint8 = 2  // Stack pointer
	RegA0 uint8 = 10 // First argument / return value
	RegA1 uint8 = 11
	RegA2 uint8 = 12
	RegA7 uint8 = 17 // Syscall number
)

// Registers is the register view a syscall handler works on.
type Registers interface {
	ReadReg(reg uint8) uint64
	WriteReg(reg uint8, value uint64)
}

// RegFile represents the RV64 integer register file and the program
// counter.
type RegFile struct {
	// X holds the integer registers. X[0] is hardwired to zero.
	X [32]uint64

	// PC is the program counter.
	PC uint64
}

// ReadReg reads a register value. Register 0 always reads as zero.
func (r *RegFile) ReadReg(reg uint8) uint64 {
	if reg == 0 || reg >= 32 {
		return 0
	}
	return r.X[reg]
}

// WriteReg writes a value to a register. Writes to register 0 are ignored.
func (r *RegFile) WriteReg(reg uint8, value uint64) {
	if reg == 0 || reg >= 32 {
		return
	}
	r.X[reg] = value
}
