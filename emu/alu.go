package emu

import (
	"math"
	"math/bits"

	"github.com/sarchlab/rvooo/insts"
)

// Outcome is the result of executing one instruction on its operands.
type Outcome struct {
	// Value is the destination result, or the store data for stores.
	Value uint64

	// Addr is the effective address of a load or store.
	Addr uint64

	// Taken is set when a branch or jump redirects to Target.
	Taken  bool
	Target uint64
}

// ALU implements RV64IM arithmetic, address generation and control-flow
// evaluation. It holds no state and is shared by the functional emulator
// and the timing core's execution units.
type ALU struct{}

// NewALU creates a new ALU.
func NewALU() *ALU {
	return &ALU{}
}

// Execute computes the outcome of inst at pc with source operand values rs1
// and rs2. Loads only produce their address; the caller performs the
// access.
func (a *ALU) Execute(inst *insts.Instruction, pc, rs1, rs2 uint64) Outcome {
	imm := uint64(inst.Imm)

	switch inst.Class {
	case insts.ClassLoad:
		return Outcome{Addr: rs1 + imm}
	case insts.ClassStore:
		return Outcome{Addr: rs1 + imm, Value: rs2}
	case insts.ClassBranch:
		return Outcome{Taken: BranchTaken(inst.Op, rs1, rs2), Target: pc + imm}
	case insts.ClassJump:
		target := pc + imm
		if inst.Op == insts.OpJALR {
			target = (rs1 + imm) &^ 1
		}
		return Outcome{Value: pc + 4, Taken: true, Target: target}
	case insts.ClassMulDiv:
		return Outcome{Value: mulDiv(inst.Op, rs1, rs2)}
	case insts.ClassALU:
		return Outcome{Value: a.alu(inst, pc, rs1, rs2, imm)}
	default:
		// CSRs read as zero; FENCE, ECALL and EBREAK produce nothing.
		return Outcome{}
	}
}

func sext32(v uint64) uint64 {
	return uint64(int64(int32(v)))
}

func boolValue(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

func (a *ALU) alu(inst *insts.Instruction, pc, rs1, rs2, imm uint64) uint64 {
	switch inst.Op {
	case insts.OpLUI:
		return imm
	case insts.OpAUIPC:
		return pc + imm

	case insts.OpADDI:
		return rs1 + imm
	case insts.OpSLTI:
		return boolValue(int64(rs1) < int64(imm))
	case insts.OpSLTIU:
		return boolValue(rs1 < imm)
	case insts.OpXORI:
		return rs1 ^ imm
	case insts.OpORI:
		return rs1 | imm
	case insts.OpANDI:
		return rs1 & imm
	case insts.OpSLLI:
		return rs1 << (imm & 63)
	case insts.OpSRLI:
		return rs1 >> (imm & 63)
	case insts.OpSRAI:
		return uint64(int64(rs1) >> (imm & 63))

	case insts.OpADD:
		return rs1 + rs2
	case insts.OpSUB:
		return rs1 - rs2
	case insts.OpSLL:
		return rs1 << (rs2 & 63)
	case insts.OpSLT:
		return boolValue(int64(rs1) < int64(rs2))
	case insts.OpSLTU:
		return boolValue(rs1 < rs2)
	case insts.OpXOR:
		return rs1 ^ rs2
	case insts.OpSRL:
		return rs1 >> (rs2 & 63)
	case insts.OpSRA:
		return uint64(int64(rs1) >> (rs2 & 63))
	case insts.OpOR:
		return rs1 | rs2
	case insts.OpAND:
		return rs1 & rs2

	case insts.OpADDIW:
		return sext32(rs1 + imm)
	case insts.OpSLLIW:
		return sext32(uint64(uint32(rs1) << (imm & 31)))
	case insts.OpSRLIW:
		return sext32(uint64(uint32(rs1) >> (imm & 31)))
	case insts.OpSRAIW:
		return uint64(int64(int32(rs1) >> (imm & 31)))
	case insts.OpADDW:
		return sext32(rs1 + rs2)
	case insts.OpSUBW:
		return sext32(rs1 - rs2)
	case insts.OpSLLW:
		return sext32(uint64(uint32(rs1) << (rs2 & 31)))
	case insts.OpSRLW:
		return sext32(uint64(uint32(rs1) >> (rs2 & 31)))
	case insts.OpSRAW:
		return uint64(int64(int32(rs1) >> (rs2 & 31)))
	}

	return 0
}

// mulDiv follows the M extension, including its division-by-zero and
// overflow results.
func mulDiv(op insts.Op, rs1, rs2 uint64) uint64 {
	switch op {
	case insts.OpMUL:
		return rs1 * rs2
	case insts.OpMULH:
		hi, _ := bits.Mul64(rs1, rs2)
		if int64(rs1) < 0 {
			hi -= rs2
		}
		if int64(rs2) < 0 {
			hi -= rs1
		}
		return hi
	case insts.OpMULHSU:
		hi, _ := bits.Mul64(rs1, rs2)
		if int64(rs1) < 0 {
			hi -= rs2
		}
		return hi
	case insts.OpMULHU:
		hi, _ := bits.Mul64(rs1, rs2)
		return hi
	case insts.OpDIV:
		return uint64(div64(int64(rs1), int64(rs2)))
	case insts.OpDIVU:
		if rs2 == 0 {
			return math.MaxUint64
		}
		return rs1 / rs2
	case insts.OpREM:
		return uint64(rem64(int64(rs1), int64(rs2)))
	case insts.OpREMU:
		if rs2 == 0 {
			return rs1
		}
		return rs1 % rs2

	case insts.OpMULW:
		return sext32(uint64(uint32(rs1) * uint32(rs2)))
	case insts.OpDIVW:
		return uint64(int64(div32(int32(rs1), int32(rs2))))
	case insts.OpDIVUW:
		a, b := uint32(rs1), uint32(rs2)
		if b == 0 {
			return math.MaxUint64
		}
		return sext32(uint64(a / b))
	case insts.OpREMW:
		return uint64(int64(rem32(int32(rs1), int32(rs2))))
	case insts.OpREMUW:
		a, b := uint32(rs1), uint32(rs2)
		if b == 0 {
			return sext32(uint64(a))
		}
		return sext32(uint64(a % b))
	}

	return 0
}

func div64(a, b int64) int64 {
	switch {
	case b == 0:
		return -1
	case a == math.MinInt64 && b == -1:
		return a
	default:
		return a / b
	}
}

func rem64(a, b int64) int64 {
	switch {
	case b == 0:
		return a
	case a == math.MinInt64 && b == -1:
		return 0
	default:
		return a % b
	}
}

func div32(a, b int32) int32 {
	switch {
	case b == 0:
		return -1
	case a == math.MinInt32 && b == -1:
		return a
	default:
		return a / b
	}
}

func rem32(a, b int32) int32 {
	switch {
	case b == 0:
		return a
	case a == math.MinInt32 && b == -1:
		return 0
	default:
		return a % b
	}
}
