package benchmarks

import (
	"fmt"

	"golang.org/x/crypto/blake2b"

	"github.com/sarchlab/rvooo/emu"
	"github.com/sarchlab/rvooo/insts"
)

// GeneratedDataSize is the size of the data region random programs load
// from and store to.
const GeneratedDataSize = 256

// Registers a random program may write. s0 holds DataBase, a0 and a7 are
// set up for the final syscalls and t6 is reserved for loop counters.
var genRegs = []uint8{5, 6, 7, 9, 11, 12, 13, 14, 15, 16,
	18, 19, 20, 21, 22, 23, 24, 25, 26, 27, 28, 29, 30}

const loopReg = regT6

var (
	genALUReg = []insts.Op{
		insts.OpADD, insts.OpSUB, insts.OpSLL, insts.OpSLT, insts.OpSLTU,
		insts.OpXOR, insts.OpSRL, insts.OpSRA, insts.OpOR, insts.OpAND,
		insts.OpADDW, insts.OpSUBW, insts.OpSLLW, insts.OpSRLW, insts.OpSRAW,
	}
	genALUImm = []insts.Op{
		insts.OpADDI, insts.OpSLTI, insts.OpSLTIU, insts.OpXORI, insts.OpORI,
		insts.OpANDI, insts.OpADDIW,
	}
	genShiftImm = []insts.Op{
		insts.OpSLLI, insts.OpSRLI, insts.OpSRAI,
		insts.OpSLLIW, insts.OpSRLIW, insts.OpSRAIW,
	}
	genMulDiv = []insts.Op{
		insts.OpMUL, insts.OpMULH, insts.OpMULHSU, insts.OpMULHU,
		insts.OpDIV, insts.OpDIVU, insts.OpREM, insts.OpREMU,
		insts.OpMULW, insts.OpDIVW, insts.OpDIVUW, insts.OpREMW, insts.OpREMUW,
	}
	genLoads = []insts.Op{
		insts.OpLB, insts.OpLH, insts.OpLW, insts.OpLD,
		insts.OpLBU, insts.OpLHU, insts.OpLWU,
	}
	genStores = []insts.Op{insts.OpSB, insts.OpSH, insts.OpSW, insts.OpSD}
	genBranch = []insts.Op{
		insts.OpBEQ, insts.OpBNE, insts.OpBLT, insts.OpBGE, insts.OpBLTU, insts.OpBGEU,
	}
)

// Generator is a deterministic pseudo-random program generator. It keeps a
// 64-byte Blake2b-512 state that is rehashed whenever it runs out of bytes,
// so the same seed always yields the same programs.
type Generator struct {
	data [blake2b.Size]byte
	pos  int
}

// NewGenerator creates a generator whose state is the Blake2b-512 hash of
// seed.
func NewGenerator(seed []byte) *Generator {
	return &Generator{
		data: blake2b.Sum512(seed),
		pos:  blake2b.Size,
	}
}

func (g *Generator) generate() {
	g.data = blake2b.Sum512(g.data[:])
	g.pos = 0
}

// Byte returns the next pseudo-random byte.
func (g *Generator) Byte() byte {
	if g.pos >= len(g.data) {
		g.generate()
	}
	b := g.data[g.pos]
	g.pos++
	return b
}

// Uint32 returns the next pseudo-random uint32 in little-endian order.
func (g *Generator) Uint32() uint32 {
	b0 := uint32(g.Byte())
	b1 := uint32(g.Byte())
	b2 := uint32(g.Byte())
	b3 := uint32(g.Byte())

	return b0 | (b1 << 8) | (b2 << 16) | (b3 << 24)
}

// Intn returns a pseudo-random int in [0, n).
func (g *Generator) Intn(n int) int {
	return int(g.Uint32() % uint32(n))
}

func (g *Generator) op(ops []insts.Op) insts.Op {
	return ops[g.Intn(len(ops))]
}

func (g *Generator) dst() uint8 {
	return genRegs[g.Intn(len(genRegs))]
}

// src is mostly a written register, sometimes x0 or the data pointer.
func (g *Generator) src() uint8 {
	switch g.Intn(16) {
	case 0:
		return 0
	case 1:
		return regS0
	}
	return g.dst()
}

func (g *Generator) imm12() int64 {
	return int64(g.Intn(1<<12)) - 1<<11
}

// memOffset returns an offset into the data region aligned to size.
func (g *Generator) memOffset(size int) int64 {
	return int64(g.Intn(GeneratedDataSize/size) * size)
}

// straight returns one instruction that never changes control flow.
func (g *Generator) straight() uint32 {
	switch r := g.Intn(100); {
	case r < 30:
		return insts.EncodeR(g.op(genALUReg), g.dst(), g.src(), g.src())
	case r < 45:
		return insts.EncodeI(g.op(genALUImm), g.dst(), g.src(), g.imm12())
	case r < 52:
		return insts.EncodeI(g.op(genShiftImm), g.dst(), g.src(), int64(g.Intn(64)))
	case r < 56:
		op := insts.OpLUI
		if g.Intn(2) == 0 {
			op = insts.OpAUIPC
		}
		return insts.EncodeU(op, g.dst(), int64(g.Uint32()))
	case r < 70:
		return insts.EncodeR(g.op(genMulDiv), g.dst(), g.src(), g.src())
	case r < 83:
		i := g.Intn(len(genLoads))
		size := []int{1, 2, 4, 8, 1, 2, 4}[i]
		return insts.EncodeI(genLoads[i], g.dst(), regS0, g.memOffset(size))
	case r < 97:
		i := g.Intn(len(genStores))
		return insts.EncodeS(genStores[i], regS0, g.src(), g.memOffset(1<<i))
	case r < 99:
		return insts.EncodeCSR(insts.OpCSRRS, g.dst(), 0, 0xC00)
	default:
		return insts.EncodeFENCE()
	}
}

func (g *Generator) skipped(words []uint32, n int) []uint32 {
	for i := 0; i < n; i++ {
		words = append(words, g.straight())
	}
	return words
}

// block appends one randomly chosen code block and returns the new words.
func (g *Generator) block(words []uint32) []uint32 {
	switch r := g.Intn(100); {
	case r < 80:
		return append(words, g.straight())
	case r < 88:
		// Forward conditional branch over 1 to 3 instructions.
		n := 1 + g.Intn(3)
		words = append(words, insts.EncodeB(g.op(genBranch), g.src(), g.src(), int64(4*(n+1))))
		return g.skipped(words, n)
	case r < 91:
		n := 1 + g.Intn(3)
		rd := uint8(0)
		if g.Intn(2) == 0 {
			rd = g.dst()
		}
		words = append(words, insts.EncodeJ(rd, int64(4*(n+1))))
		return g.skipped(words, n)
	case r < 94:
		// Indirect jump over one instruction.
		base := g.dst()
		rd := uint8(0)
		if g.Intn(2) == 0 {
			rd = g.dst()
		}
		words = append(words,
			insts.EncodeU(insts.OpAUIPC, base, 0),
			insts.EncodeI(insts.OpJALR, rd, base, 12),
		)
		return g.skipped(words, 1)
	default:
		// Counted loop of 2 to 5 straight-line instructions.
		iters := 2 + g.Intn(4)
		n := 2 + g.Intn(4)
		words = append(words, addi(loopReg, 0, int64(iters)))
		words = g.skipped(words, n)
		return append(words,
			addi(loopReg, loopReg, -1),
			insts.EncodeB(insts.OpBNE, loopReg, 0, -int64(4*(n+1))),
		)
	}
}

// Generate returns a random program with about length body instructions.
// It seeds the registers, runs the body, writes the first 32 data bytes to
// stdout and exits with a checksum of the registers.
func (g *Generator) Generate(name string, length int) Benchmark {
	words := []uint32{dataBase()}
	for _, r := range genRegs {
		words = append(words, addi(r, 0, g.imm12()))
	}

	body := 0
	for body < length {
		n := len(words)
		words = g.block(words)
		body += len(words) - n
	}

	words = append(words,
		addi(emu.RegA0, 0, 1),
		addi(emu.RegA1, regS0, 0),
		addi(emu.RegA2, 0, 32),
		addi(emu.RegA7, 0, int64(emu.SyscallWrite)),
		insts.EncodeECALL(),
		addi(emu.RegA0, 0, 0),
	)
	for _, r := range genRegs {
		words = append(words, rtype(insts.OpXOR, emu.RegA0, emu.RegA0, r))
	}
	words = append(words, insts.EncodeI(insts.OpANDI, emu.RegA0, emu.RegA0, 0xFF))
	words = append(words,
		addi(emu.RegA7, 0, int64(emu.SyscallExit)),
		insts.EncodeECALL(),
	)

	data := make([]byte, GeneratedDataSize)
	for i := range data {
		data[i] = g.Byte()
	}

	return Benchmark{
		Name:        name,
		Description: fmt.Sprintf("random RV64IM program with %d body instructions", body),
		Setup: func(regFile *emu.RegFile, memory *emu.Memory) {
			memory.LoadProgram(DataBase, data)
		},
		Program:  BuildProgram(words...),
		DataSize: GeneratedDataSize,
	}
}

// GetRandomBenchmarks returns count random programs generated from seed.
func GetRandomBenchmarks(seed string, count, length int) []Benchmark {
	g := NewGenerator([]byte(seed))
	benchmarks := make([]Benchmark, 0, count)
	for i := 0; i < count; i++ {
		benchmarks = append(benchmarks, g.Generate(fmt.Sprintf("random_%s_%d", seed, i), length))
	}
	return benchmarks
}
