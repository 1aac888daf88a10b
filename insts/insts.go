// Package insts provides RV64IM instruction definitions and decoding.
//
// This package decodes RISC-V machine code into structured instruction
// records. It supports:
//   - RV64I base integer instructions, including the 32-bit W forms
//   - the M extension: multiply, divide and remainder
//   - Zicsr: CSRRW, CSRRS, CSRRC and their immediate forms
//   - FENCE, FENCE.I, ECALL and EBREAK
//
// Usage:
//
//	decoder := insts.NewDecoder()
//	inst, err := decoder.Decode(0x02a00513) // addi a0, zero, 42
//	if err != nil {
//		// err is an *insts.DecodeError
//	}
//	fmt.Printf("%v rd=%d imm=%d\n", inst.Op, inst.Rd, inst.Imm)
package insts

import "fmt"

// Op represents an RV64IM operation.
type Op uint8

// RV64IM operations.
const (
	OpUnknown Op = iota

	OpLUI
	OpAUIPC
	OpJAL
	OpJALR

	OpBEQ
	OpBNE
	OpBLT
	OpBGE
	OpBLTU
	OpBGEU

	OpLB
	OpLH
	OpLW
	OpLD
	OpLBU
	OpLHU
	OpLWU

	OpSB
	OpSH
	OpSW
	OpSD

	OpADDI
	OpSLTI
	OpSLTIU
	OpXORI
	OpORI
	OpANDI
	OpSLLI
	OpSRLI
	OpSRAI

	OpADD
	OpSUB
	OpSLL
	OpSLT
	OpSLTU
	OpXOR
	OpSRL
	OpSRA
	OpOR
	OpAND

	OpADDIW
	OpSLLIW
	OpSRLIW
	OpSRAIW
	OpADDW
	OpSUBW
	OpSLLW
	OpSRLW
	OpSRAW

	OpMUL
	OpMULH
	OpMULHSU
	OpMULHU
	OpDIV
	OpDIVU
	OpREM
	OpREMU
	OpMULW
	OpDIVW
	OpDIVUW
	OpREMW
	OpREMUW

	OpFENCE
	OpFENCEI
	OpECALL
	OpEBREAK

	OpCSRRW
	OpCSRRS
	OpCSRRC
	OpCSRRWI
	OpCSRRSI
	OpCSRRCI

	numOps
)

var opNames = [numOps]string{
	OpUnknown: "unknown", OpLUI: "lui", OpAUIPC: "auipc", OpJAL: "jal", OpJALR: "jalr",
	OpBEQ: "beq", OpBNE: "bne", OpBLT: "blt", OpBGE: "bge",
	OpBLTU: "bltu", OpBGEU: "bgeu",
	OpLB: "lb", OpLH: "lh", OpLW: "lw", OpLD: "ld",
	OpLBU: "lbu", OpLHU: "lhu", OpLWU: "lwu",
	OpSB: "sb", OpSH: "sh", OpSW: "sw", OpSD: "sd",
	OpADDI: "addi", OpSLTI: "slti", OpSLTIU: "sltiu", OpXORI: "xori",
	OpORI: "ori", OpANDI: "andi", OpSLLI: "slli", OpSRLI: "srli", OpSRAI: "srai",
	OpADD: "add", OpSUB: "sub", OpSLL: "sll", OpSLT: "slt", OpSLTU: "sltu",
	OpXOR: "xor", OpSRL: "srl", OpSRA: "sra", OpOR: "or", OpAND: "and",
	OpADDIW: "addiw", OpSLLIW: "slliw", OpSRLIW: "srliw", OpSRAIW: "sraiw",
	OpADDW: "addw", OpSUBW: "subw", OpSLLW: "sllw", OpSRLW: "srlw", OpSRAW: "sraw",
	OpMUL: "mul", OpMULH: "mulh", OpMULHSU: "mulhsu", OpMULHU: "mulhu",
	OpDIV: "div", OpDIVU: "divu", OpREM: "rem", OpREMU: "remu",
	OpMULW: "mulw", OpDIVW: "divw", OpDIVUW: "divuw", OpREMW: "remw", OpREMUW: "remuw",
	OpFENCE: "fence", OpFENCEI: "fence.i", OpECALL: "ecall", OpEBREAK: "ebreak",
	OpCSRRW: "csrrw", OpCSRRS: "csrrs", OpCSRRC: "csrrc",
	OpCSRRWI: "csrrwi", OpCSRRSI: "csrrsi", OpCSRRCI: "csrrci",
}

func (o Op) String() string {
	if o >= numOps {
		return fmt.Sprintf("Op(%d)", uint8(o))
	}
	return opNames[o]
}

// OpClass groups operations by the functional unit that executes them.
type OpClass uint8

// Operation classes.
const (
	ClassUnknown OpClass = iota
	ClassALU
	ClassMulDiv
	ClassBranch
	ClassJump
	ClassLoad
	ClassStore
	ClassSystem
	ClassFence
)

func (c OpClass) String() string {
	switch c {
	case ClassALU:
		return "alu"
	case ClassMulDiv:
		return "muldiv"
	case ClassBranch:
		return "branch"
	case ClassJump:
		return "jump"
	case ClassLoad:
		return "load"
	case ClassStore:
		return "store"
	case ClassSystem:
		return "system"
	case ClassFence:
		return "fence"
	default:
		return "unknown"
	}
}

// Instruction represents a decoded RV64IM instruction.
type Instruction struct {
	Op    Op      // Operation
	Class OpClass // Functional unit class

	Rd  uint8 // Destination register
	Rs1 uint8 // First source register
	Rs2 uint8 // Second source register

	RdValid  bool // Instruction writes Rd
	Rs1Valid bool // Instruction reads Rs1
	Rs2Valid bool // Instruction reads Rs2

	Imm    int64  // Sign-extended immediate (zero-extended uimm for CSR*I)
	Funct3 uint8  // Width/sign selector for loads and stores
	CSR    uint16 // CSR number for Zicsr instructions

	Word uint32 // Raw encoding
}

// ControlFlow reports whether the instruction may redirect the PC.
func (i *Instruction) ControlFlow() bool {
	return i.Class == ClassBranch || i.Class == ClassJump
}

// Ordered reports whether the instruction must issue in program order with
// respect to every other instruction.
func (i *Instruction) Ordered() bool {
	switch i.Class {
	case ClassLoad, ClassStore, ClassSystem, ClassFence:
		return true
	default:
		return false
	}
}

// MemSize returns the access size in bytes of a load or store, or 0.
func (i *Instruction) MemSize() int {
	if i.Class != ClassLoad && i.Class != ClassStore {
		return 0
	}
	return 1 << (i.Funct3 & 0b11)
}

func (i *Instruction) String() string {
	return fmt.Sprintf("%v rd=x%d rs1=x%d rs2=x%d imm=%d", i.Op, i.Rd, i.Rs1, i.Rs2, i.Imm)
}

// ExceptionCode is a RISC-V synchronous exception cause.
type ExceptionCode uint8

// Exception causes raised by decode and execution.
const (
	ExceptionIllegalInstruction ExceptionCode = 2
	ExceptionBreakpoint         ExceptionCode = 3
	ExceptionEnvironmentCall    ExceptionCode = 11
)

func (c ExceptionCode) String() string {
	switch c {
	case ExceptionIllegalInstruction:
		return "illegal instruction"
	case ExceptionBreakpoint:
		return "breakpoint"
	case ExceptionEnvironmentCall:
		return "environment call"
	default:
		return fmt.Sprintf("exception %d", uint8(c))
	}
}

// DecodeError reports a word that does not encode a supported instruction.
type DecodeError struct {
	Code ExceptionCode
	Word uint32
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%v: 0x%08x", e.Code, e.Word)
}
