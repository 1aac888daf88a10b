package insts

import "fmt"

type encoding struct {
	opcode uint32
	funct3 uint32
	funct7 uint32
}

var encodings = map[Op]encoding{
	OpLUI: {opcodeLUI, 0, 0}, OpAUIPC: {opcodeAUIPC, 0, 0},
	OpJAL: {opcodeJAL, 0, 0}, OpJALR: {opcodeJALR, 0, 0},

	OpBEQ: {opcodeBranch, 0b000, 0}, OpBNE: {opcodeBranch, 0b001, 0},
	OpBLT: {opcodeBranch, 0b100, 0}, OpBGE: {opcodeBranch, 0b101, 0},
	OpBLTU: {opcodeBranch, 0b110, 0}, OpBGEU: {opcodeBranch, 0b111, 0},

	OpLB: {opcodeLoad, 0b000, 0}, OpLH: {opcodeLoad, 0b001, 0},
	OpLW: {opcodeLoad, 0b010, 0}, OpLD: {opcodeLoad, 0b011, 0},
	OpLBU: {opcodeLoad, 0b100, 0}, OpLHU: {opcodeLoad, 0b101, 0},
	OpLWU: {opcodeLoad, 0b110, 0},

	OpSB: {opcodeStore, 0b000, 0}, OpSH: {opcodeStore, 0b001, 0},
	OpSW: {opcodeStore, 0b010, 0}, OpSD: {opcodeStore, 0b011, 0},

	OpADDI: {opcodeOpImm, 0b000, 0}, OpSLTI: {opcodeOpImm, 0b010, 0},
	OpSLTIU: {opcodeOpImm, 0b011, 0}, OpXORI: {opcodeOpImm, 0b100, 0},
	OpORI: {opcodeOpImm, 0b110, 0}, OpANDI: {opcodeOpImm, 0b111, 0},
	OpSLLI: {opcodeOpImm, 0b001, funct7Base}, OpSRLI: {opcodeOpImm, 0b101, funct7Base},
	OpSRAI: {opcodeOpImm, 0b101, funct7Alt},

	OpADD: {opcodeOp, 0b000, funct7Base}, OpSUB: {opcodeOp, 0b000, funct7Alt},
	OpSLL: {opcodeOp, 0b001, funct7Base}, OpSLT: {opcodeOp, 0b010, funct7Base},
	OpSLTU: {opcodeOp, 0b011, funct7Base}, OpXOR: {opcodeOp, 0b100, funct7Base},
	OpSRL: {opcodeOp, 0b101, funct7Base}, OpSRA: {opcodeOp, 0b101, funct7Alt},
	OpOR: {opcodeOp, 0b110, funct7Base}, OpAND: {opcodeOp, 0b111, funct7Base},

	OpADDIW: {opcodeOpImm32, 0b000, 0}, OpSLLIW: {opcodeOpImm32, 0b001, funct7Base},
	OpSRLIW: {opcodeOpImm32, 0b101, funct7Base}, OpSRAIW: {opcodeOpImm32, 0b101, funct7Alt},
	OpADDW: {opcodeOp32, 0b000, funct7Base}, OpSUBW: {opcodeOp32, 0b000, funct7Alt},
	OpSLLW: {opcodeOp32, 0b001, funct7Base}, OpSRLW: {opcodeOp32, 0b101, funct7Base},
	OpSRAW: {opcodeOp32, 0b101, funct7Alt},

	OpMUL: {opcodeOp, 0b000, funct7M}, OpMULH: {opcodeOp, 0b001, funct7M},
	OpMULHSU: {opcodeOp, 0b010, funct7M}, OpMULHU: {opcodeOp, 0b011, funct7M},
	OpDIV: {opcodeOp, 0b100, funct7M}, OpDIVU: {opcodeOp, 0b101, funct7M},
	OpREM: {opcodeOp, 0b110, funct7M}, OpREMU: {opcodeOp, 0b111, funct7M},
	OpMULW: {opcodeOp32, 0b000, funct7M}, OpDIVW: {opcodeOp32, 0b100, funct7M},
	OpDIVUW: {opcodeOp32, 0b101, funct7M}, OpREMW: {opcodeOp32, 0b110, funct7M},
	OpREMUW: {opcodeOp32, 0b111, funct7M},

	OpCSRRW: {opcodeSystem, 0b001, 0}, OpCSRRS: {opcodeSystem, 0b010, 0},
	OpCSRRC: {opcodeSystem, 0b011, 0}, OpCSRRWI: {opcodeSystem, 0b101, 0},
	OpCSRRSI: {opcodeSystem, 0b110, 0}, OpCSRRCI: {opcodeSystem, 0b111, 0},
}

func lookup(op Op, opcodes ...uint32) encoding {
	e, ok := encodings[op]
	if ok {
		for _, want := range opcodes {
			if e.opcode == want {
				return e
			}
		}
	}
	panic(fmt.Sprintf("insts: %v cannot be encoded in this format", op))
}

func reg(r uint8) uint32 {
	return uint32(r & 0x1F)
}

// EncodeR encodes a register-register operation.
func EncodeR(op Op, rd, rs1, rs2 uint8) uint32 {
	e := lookup(op, opcodeOp, opcodeOp32)
	return e.funct7<<25 | reg(rs2)<<20 | reg(rs1)<<15 | e.funct3<<12 | reg(rd)<<7 | e.opcode
}

// EncodeI encodes a register-immediate operation, a load or JALR. For
// shifts imm is the shift amount.
func EncodeI(op Op, rd, rs1 uint8, imm int64) uint32 {
	e := lookup(op, opcodeOpImm, opcodeOpImm32, opcodeLoad, opcodeJALR)

	upper := uint32(imm) & 0xFFF
	switch op {
	case OpSLLI, OpSRLI, OpSRAI:
		upper = e.funct7<<5 | uint32(imm)&0x3F
	case OpSLLIW, OpSRLIW, OpSRAIW:
		upper = e.funct7<<5 | uint32(imm)&0x1F
	}

	return upper<<20 | reg(rs1)<<15 | e.funct3<<12 | reg(rd)<<7 | e.opcode
}

// EncodeS encodes a store of rs2 to imm(rs1).
func EncodeS(op Op, rs1, rs2 uint8, imm int64) uint32 {
	e := lookup(op, opcodeStore)
	v := uint32(imm) & 0xFFF
	return (v>>5)<<25 | reg(rs2)<<20 | reg(rs1)<<15 | e.funct3<<12 | (v&0x1F)<<7 | e.opcode
}

// EncodeB encodes a conditional branch with a byte offset.
func EncodeB(op Op, rs1, rs2 uint8, offset int64) uint32 {
	e := lookup(op, opcodeBranch)
	v := uint32(offset) & 0x1FFE
	return (v>>12)<<31 | ((v>>5)&0x3F)<<25 | reg(rs2)<<20 | reg(rs1)<<15 |
		e.funct3<<12 | ((v>>1)&0xF)<<8 | ((v>>11)&0x1)<<7 | e.opcode
}

// EncodeU encodes LUI or AUIPC. Only bits [31:12] of imm are kept.
func EncodeU(op Op, rd uint8, imm int64) uint32 {
	e := lookup(op, opcodeLUI, opcodeAUIPC)
	return uint32(imm)&0xFFFFF000 | reg(rd)<<7 | e.opcode
}

// EncodeJ encodes JAL with a byte offset.
func EncodeJ(rd uint8, offset int64) uint32 {
	v := uint32(offset) & 0x1FFFFE
	return (v>>20)<<31 | ((v>>1)&0x3FF)<<21 | ((v>>11)&0x1)<<20 |
		((v>>12)&0xFF)<<12 | reg(rd)<<7 | opcodeJAL
}

// EncodeCSR encodes a Zicsr instruction. For the immediate forms src is the
// 5-bit uimm, otherwise it is rs1.
func EncodeCSR(op Op, rd, src uint8, csr uint16) uint32 {
	e := lookup(op, opcodeSystem)
	return uint32(csr&0xFFF)<<20 | reg(src)<<15 | e.funct3<<12 | reg(rd)<<7 | e.opcode
}

// EncodeECALL returns the ECALL encoding.
func EncodeECALL() uint32 {
	return 0x00000073
}

// EncodeEBREAK returns the EBREAK encoding.
func EncodeEBREAK() uint32 {
	return 0x00100073
}

// EncodeFENCE returns a full FENCE (iorw, iorw).
func EncodeFENCE() uint32 {
	return 0x0FF0000F
}
