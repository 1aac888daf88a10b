package insts

// Major opcodes, bits [6:0].
const (
	opcodeLoad    = 0b0000011
	opcodeMiscMem = 0b0001111
	opcodeOpImm   = 0b0010011
	opcodeAUIPC   = 0b0010111
	opcodeOpImm32 = 0b0011011
	opcodeStore   = 0b0100011
	opcodeOp      = 0b0110011
	opcodeLUI     = 0b0110111
	opcodeOp32    = 0b0111011
	opcodeBranch  = 0b1100011
	opcodeJALR    = 0b1100111
	opcodeJAL     = 0b1101111
	opcodeSystem  = 0b1110011
)

const (
	funct7Base = 0b0000000
	funct7Alt  = 0b0100000
	funct7M    = 0b0000001
)

// Decoder decodes RV64IM machine code into instructions.
type Decoder struct{}

// NewDecoder creates a new RV64IM instruction decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Decode decodes a 32-bit instruction word. Words that do not encode a
// supported instruction yield a *DecodeError with
// ExceptionIllegalInstruction.
func (d *Decoder) Decode(word uint32) (*Instruction, error) {
	inst := &Instruction{
		Word: word,
		Rd:   uint8((word >> 7) & 0x1F),  // bits [11:7]
		Rs1:  uint8((word >> 15) & 0x1F), // bits [19:15]
		Rs2:  uint8((word >> 20) & 0x1F), // bits [24:20]
	}
	funct3 := (word >> 12) & 0x7 // bits [14:12]
	funct7 := word >> 25         // bits [31:25]

	var ok bool
	switch word & 0x7F {
	case opcodeLUI:
		ok = d.decodeUpper(OpLUI, word, inst)
	case opcodeAUIPC:
		ok = d.decodeUpper(OpAUIPC, word, inst)
	case opcodeJAL:
		ok = d.decodeJAL(word, inst)
	case opcodeJALR:
		ok = d.decodeJALR(word, funct3, inst)
	case opcodeBranch:
		ok = d.decodeBranch(word, funct3, inst)
	case opcodeLoad:
		ok = d.decodeLoad(word, funct3, inst)
	case opcodeStore:
		ok = d.decodeStore(word, funct3, inst)
	case opcodeOpImm:
		ok = d.decodeOpImm(word, funct3, inst)
	case opcodeOp:
		ok = d.decodeOp(funct3, funct7, inst)
	case opcodeOpImm32:
		ok = d.decodeOpImm32(word, funct3, funct7, inst)
	case opcodeOp32:
		ok = d.decodeOp32(funct3, funct7, inst)
	case opcodeMiscMem:
		ok = d.decodeMiscMem(funct3, inst)
	case opcodeSystem:
		ok = d.decodeSystem(word, funct3, inst)
	}

	if !ok {
		return nil, &DecodeError{Code: ExceptionIllegalInstruction, Word: word}
	}

	return inst, nil
}

// signExtend treats the low bits of v as a two's complement number.
func signExtend(v uint32, bits uint) int64 {
	shift := 64 - bits
	return int64(uint64(v)<<shift) >> shift
}

// immI extracts the I-type immediate, bits [31:20].
func immI(word uint32) int64 {
	return signExtend(word>>20, 12)
}

// immS extracts the S-type immediate: imm[11:5] = bits [31:25],
// imm[4:0] = bits [11:7].
func immS(word uint32) int64 {
	v := (word>>25)<<5 | (word>>7)&0x1F
	return signExtend(v, 12)
}

// immB extracts the B-type immediate: imm[12] = bit 31, imm[10:5] = bits
// [30:25], imm[4:1] = bits [11:8], imm[11] = bit 7.
func immB(word uint32) int64 {
	v := (word>>31)<<12 |
		((word>>7)&0x1)<<11 |
		((word>>25)&0x3F)<<5 |
		((word>>8)&0xF)<<1
	return signExtend(v, 13)
}

// immU extracts the U-type immediate, bits [31:12] shifted into place.
func immU(word uint32) int64 {
	return int64(int32(word & 0xFFFFF000))
}

// immJ extracts the J-type immediate: imm[20] = bit 31, imm[10:1] = bits
// [30:21], imm[11] = bit 20, imm[19:12] = bits [19:12].
func immJ(word uint32) int64 {
	v := (word>>31)<<20 |
		((word>>12)&0xFF)<<12 |
		((word>>20)&0x1)<<11 |
		((word>>21)&0x3FF)<<1
	return signExtend(v, 21)
}

func (d *Decoder) decodeUpper(op Op, word uint32, inst *Instruction) bool {
	inst.Op = op
	inst.Class = ClassALU
	inst.RdValid = true
	inst.Imm = immU(word)
	return true
}

func (d *Decoder) decodeJAL(word uint32, inst *Instruction) bool {
	inst.Op = OpJAL
	inst.Class = ClassJump
	inst.RdValid = true
	inst.Imm = immJ(word)
	return true
}

func (d *Decoder) decodeJALR(word, funct3 uint32, inst *Instruction) bool {
	if funct3 != 0 {
		return false
	}
	inst.Op = OpJALR
	inst.Class = ClassJump
	inst.RdValid = true
	inst.Rs1Valid = true
	inst.Imm = immI(word)
	return true
}

func (d *Decoder) decodeBranch(word, funct3 uint32, inst *Instruction) bool {
	switch funct3 {
	case 0b000:
		inst.Op = OpBEQ
	case 0b001:
		inst.Op = OpBNE
	case 0b100:
		inst.Op = OpBLT
	case 0b101:
		inst.Op = OpBGE
	case 0b110:
		inst.Op = OpBLTU
	case 0b111:
		inst.Op = OpBGEU
	default:
		return false
	}

	inst.Class = ClassBranch
	inst.Rs1Valid = true
	inst.Rs2Valid = true
	inst.Imm = immB(word)
	return true
}

func (d *Decoder) decodeLoad(word, funct3 uint32, inst *Instruction) bool {
	switch funct3 {
	case 0b000:
		inst.Op = OpLB
	case 0b001:
		inst.Op = OpLH
	case 0b010:
		inst.Op = OpLW
	case 0b011:
		inst.Op = OpLD
	case 0b100:
		inst.Op = OpLBU
	case 0b101:
		inst.Op = OpLHU
	case 0b110:
		inst.Op = OpLWU
	default:
		return false
	}

	inst.Class = ClassLoad
	inst.Funct3 = uint8(funct3)
	inst.RdValid = true
	inst.Rs1Valid = true
	inst.Imm = immI(word)
	return true
}

func (d *Decoder) decodeStore(word, funct3 uint32, inst *Instruction) bool {
	switch funct3 {
	case 0b000:
		inst.Op = OpSB
	case 0b001:
		inst.Op = OpSH
	case 0b010:
		inst.Op = OpSW
	case 0b011:
		inst.Op = OpSD
	default:
		return false
	}

	inst.Class = ClassStore
	inst.Funct3 = uint8(funct3)
	inst.Rs1Valid = true
	inst.Rs2Valid = true
	inst.Imm = immS(word)
	return true
}

// decodeOpImm decodes register-immediate ALU operations. RV64 shifts take a
// 6-bit shamt in bits [25:20] and a 6-bit funct in bits [31:26].
func (d *Decoder) decodeOpImm(word, funct3 uint32, inst *Instruction) bool {
	funct6 := word >> 26

	switch funct3 {
	case 0b000:
		inst.Op = OpADDI
	case 0b010:
		inst.Op = OpSLTI
	case 0b011:
		inst.Op = OpSLTIU
	case 0b100:
		inst.Op = OpXORI
	case 0b110:
		inst.Op = OpORI
	case 0b111:
		inst.Op = OpANDI
	case 0b001:
		if funct6 != 0b000000 {
			return false
		}
		inst.Op = OpSLLI
	case 0b101:
		switch funct6 {
		case 0b000000:
			inst.Op = OpSRLI
		case 0b010000:
			inst.Op = OpSRAI
		default:
			return false
		}
	}

	inst.Class = ClassALU
	inst.RdValid = true
	inst.Rs1Valid = true
	if funct3 == 0b001 || funct3 == 0b101 {
		inst.Imm = int64((word >> 20) & 0x3F)
	} else {
		inst.Imm = immI(word)
	}
	return true
}

func (d *Decoder) decodeOp(funct3, funct7 uint32, inst *Instruction) bool {
	switch funct7 {
	case funct7Base:
		inst.Op = [8]Op{OpADD, OpSLL, OpSLT, OpSLTU, OpXOR, OpSRL, OpOR, OpAND}[funct3]
		inst.Class = ClassALU
	case funct7Alt:
		switch funct3 {
		case 0b000:
			inst.Op = OpSUB
		case 0b101:
			inst.Op = OpSRA
		default:
			return false
		}
		inst.Class = ClassALU
	case funct7M:
		inst.Op = [8]Op{OpMUL, OpMULH, OpMULHSU, OpMULHU, OpDIV, OpDIVU, OpREM, OpREMU}[funct3]
		inst.Class = ClassMulDiv
	default:
		return false
	}

	inst.RdValid = true
	inst.Rs1Valid = true
	inst.Rs2Valid = true
	return true
}

func (d *Decoder) decodeOpImm32(word, funct3, funct7 uint32, inst *Instruction) bool {
	switch {
	case funct3 == 0b000:
		inst.Op = OpADDIW
		inst.Imm = immI(word)
	case funct3 == 0b001 && funct7 == funct7Base:
		inst.Op = OpSLLIW
	case funct3 == 0b101 && funct7 == funct7Base:
		inst.Op = OpSRLIW
	case funct3 == 0b101 && funct7 == funct7Alt:
		inst.Op = OpSRAIW
	default:
		return false
	}

	if inst.Op != OpADDIW {
		inst.Imm = int64((word >> 20) & 0x1F)
	}
	inst.Class = ClassALU
	inst.RdValid = true
	inst.Rs1Valid = true
	return true
}

func (d *Decoder) decodeOp32(funct3, funct7 uint32, inst *Instruction) bool {
	inst.Class = ClassALU

	switch {
	case funct7 == funct7Base && funct3 == 0b000:
		inst.Op = OpADDW
	case funct7 == funct7Alt && funct3 == 0b000:
		inst.Op = OpSUBW
	case funct7 == funct7Base && funct3 == 0b001:
		inst.Op = OpSLLW
	case funct7 == funct7Base && funct3 == 0b101:
		inst.Op = OpSRLW
	case funct7 == funct7Alt && funct3 == 0b101:
		inst.Op = OpSRAW
	case funct7 == funct7M:
		op := [8]Op{OpMULW, OpUnknown, OpUnknown, OpUnknown, OpDIVW, OpDIVUW, OpREMW, OpREMUW}[funct3]
		if op == OpUnknown {
			return false
		}
		inst.Op = op
		inst.Class = ClassMulDiv
	default:
		return false
	}

	inst.RdValid = true
	inst.Rs1Valid = true
	inst.Rs2Valid = true
	return true
}

func (d *Decoder) decodeMiscMem(funct3 uint32, inst *Instruction) bool {
	switch funct3 {
	case 0b000:
		inst.Op = OpFENCE
	case 0b001:
		inst.Op = OpFENCEI
	default:
		return false
	}
	inst.Class = ClassFence
	return true
}

// decodeSystem decodes ECALL, EBREAK and the Zicsr instructions. The CSR
// number sits in bits [31:20]; the immediate forms carry a 5-bit uimm in
// the rs1 field.
func (d *Decoder) decodeSystem(word, funct3 uint32, inst *Instruction) bool {
	inst.Class = ClassSystem

	switch funct3 {
	case 0b000:
		switch word {
		case 0x00000073:
			inst.Op = OpECALL
		case 0x00100073:
			inst.Op = OpEBREAK
		default:
			return false
		}
		return true
	case 0b001:
		inst.Op = OpCSRRW
	case 0b010:
		inst.Op = OpCSRRS
	case 0b011:
		inst.Op = OpCSRRC
	case 0b101:
		inst.Op = OpCSRRWI
	case 0b110:
		inst.Op = OpCSRRSI
	case 0b111:
		inst.Op = OpCSRRCI
	default:
		return false
	}

	inst.CSR = uint16(word >> 20)
	inst.RdValid = true
	if funct3&0b100 == 0 {
		inst.Rs1Valid = true
	} else {
		inst.Imm = int64(inst.Rs1)
	}
	return true
}
