package benchmarks

import (
	"github.com/sarchlab/rvooo/emu"
	"github.com/sarchlab/rvooo/insts"
)

// Registers used by the hand-written programs.
const (
	regT0 uint8 = 5
	regT1 uint8 = 6
	regT2 uint8 = 7
	regS0 uint8 = 8
	regS1 uint8 = 9
	regT3 uint8 = 28
	regT4 uint8 = 29
	regT5 uint8 = 30
	regT6 uint8 = 31
)

// GetMicrobenchmarks returns the standard set of microbenchmarks. Each one
// targets a specific core characteristic.
func GetMicrobenchmarks() []Benchmark {
	return []Benchmark{
		arithmeticSequential(),
		dependencyChain(),
		memorySequential(),
		functionCalls(),
		branchTaken(),
		mixedOperations(),
		matrixMultiply2x2(),
		loopSimulation(),
		mulDivChain(),
		storeForwarding(),
		indirectJumps(),
	}
}

// GetCoreBenchmarks returns a minimal set of benchmarks for quick
// validation: a loop, a matrix multiply and branch-heavy code.
func GetCoreBenchmarks() []Benchmark {
	return []Benchmark{
		loopSimulation(),
		matrixMultiply2x2(),
		branchTaken(),
	}
}

func addi(rd, rs1 uint8, imm int64) uint32 {
	return insts.EncodeI(insts.OpADDI, rd, rs1, imm)
}

func rtype(op insts.Op, rd, rs1, rs2 uint8) uint32 {
	return insts.EncodeR(op, rd, rs1, rs2)
}

func load(op insts.Op, rd, base uint8, off int64) uint32 {
	return insts.EncodeI(op, rd, base, off)
}

func store(op insts.Op, base, src uint8, off int64) uint32 {
	return insts.EncodeS(op, base, src, off)
}

// dataBase points s0 at DataBase.
func dataBase() uint32 {
	return insts.EncodeU(insts.OpLUI, regS0, int64(DataBase))
}

// exitWith moves rs into a0 and exits.
func exitWith(rs uint8) []uint32 {
	return []uint32{
		addi(emu.RegA0, rs, 0),
		addi(emu.RegA7, 0, int64(emu.SyscallExit)),
		insts.EncodeECALL(),
	}
}

func program(body []uint32, result uint8) []byte {
	return BuildProgram(append(body, exitWith(result)...)...)
}

// 1. Arithmetic Sequential - ALU throughput with independent operations
func arithmeticSequential() Benchmark {
	regs := []uint8{regT0, regT1, regT2, regT3, regT4}
	body := make([]uint32, 0, 20)
	for i := 0; i < 20; i++ {
		r := regs[i%len(regs)]
		body = append(body, addi(r, r, 1))
	}

	return Benchmark{
		Name:         "arithmetic_sequential",
		Description:  "20 independent ADDIs over 5 registers - measures ALU throughput",
		Program:      program(body, regT0),
		ExpectedExit: exitCode(4),
	}
}

// 2. Dependency Chain - RAW hazards through the rename map
func dependencyChain() Benchmark {
	body := make([]uint32, 0, 20)
	for i := 0; i < 20; i++ {
		body = append(body, addi(regT0, regT0, 1))
	}

	return Benchmark{
		Name:         "dependency_chain",
		Description:  "20 dependent ADDIs (t0 = t0 + 1) - measures wakeup latency",
		Program:      program(body, regT0),
		ExpectedExit: exitCode(20),
	}
}

// 3. Memory Sequential - store and load round trips
func memorySequential() Benchmark {
	body := []uint32{dataBase()}
	for i := int64(0); i < 8; i++ {
		body = append(body,
			addi(regT0, regT0, 5),
			store(insts.OpSD, regS0, regT0, 8*i),
		)
	}
	for i := int64(0); i < 8; i++ {
		body = append(body,
			load(insts.OpLD, regT1, regS0, 8*i),
			rtype(insts.OpADD, regT2, regT2, regT1),
		)
	}

	return Benchmark{
		Name:         "memory_sequential",
		Description:  "8 stores then 8 loads of consecutive doublewords - measures store-to-load forwarding",
		Program:      program(body, regT2),
		ExpectedExit: exitCode(180),
		DataSize:     64,
	}
}

// 4. Function Calls - JAL/JALR pairs
func functionCalls() Benchmark {
	words := []uint32{
		insts.EncodeJ(emu.RegRA, 20), // call f
		insts.EncodeJ(emu.RegRA, 16), // call f
		insts.EncodeJ(emu.RegRA, 12), // call f
		addi(emu.RegA7, 0, int64(emu.SyscallExit)),
		insts.EncodeECALL(),
		addi(emu.RegA0, emu.RegA0, 1), // f
		insts.EncodeI(insts.OpJALR, 0, emu.RegRA, 0),
	}

	return Benchmark{
		Name:         "function_calls",
		Description:  "3 calls to a leaf function - measures return address prediction",
		Program:      BuildProgram(words...),
		ExpectedExit: exitCode(3),
	}
}

// 5. Branch Taken - always-taken forward branches
func branchTaken() Benchmark {
	body := make([]uint32, 0, 15)
	for i := 0; i < 5; i++ {
		body = append(body,
			insts.EncodeB(insts.OpBEQ, 0, 0, 8),
			addi(regT0, regT0, 100), // skipped
			addi(regT0, regT0, 1),
		)
	}

	return Benchmark{
		Name:         "branch_taken",
		Description:  "5 taken forward branches - measures branch resolution and recovery",
		Program:      program(body, regT0),
		ExpectedExit: exitCode(5),
	}
}

// 6. Mixed Operations - ALU, multiply, divide and memory together
func mixedOperations() Benchmark {
	body := []uint32{
		dataBase(),
		addi(regT0, 0, 6),
		addi(regT1, 0, 7),
		rtype(insts.OpMUL, regT2, regT0, regT1),
		store(insts.OpSD, regS0, regT2, 0),
		load(insts.OpLD, regT3, regS0, 0),
		rtype(insts.OpDIV, regT4, regT3, regT1),
		rtype(insts.OpADD, regT5, regT4, regT2),
		rtype(insts.OpSUB, regT5, regT5, regT0),
		insts.EncodeI(insts.OpSLLI, regT5, regT5, 1),
		store(insts.OpSW, regS0, regT5, 8),
		load(insts.OpLW, regT6, regS0, 8),
	}

	return Benchmark{
		Name:         "mixed_operations",
		Description:  "MUL, DIV, loads, stores and shifts - measures functional unit overlap",
		Program:      program(body, regT6),
		ExpectedExit: exitCode(84),
		DataSize:     16,
	}
}

// 7. Matrix Multiply 2x2 - loads, multiplies and stores
func matrixMultiply2x2() Benchmark {
	const (
		offA = 0
		offB = 32
		offC = 64
	)
	a := [4]uint64{1, 2, 3, 4}
	b := [4]uint64{5, 6, 7, 8}

	aRegs := []uint8{regT0, regT1, regT2, regT3}
	bRegs := []uint8{regT4, regT5, regT6, regS1}

	body := []uint32{dataBase()}
	for i := range aRegs {
		body = append(body, load(insts.OpLD, aRegs[i], regS0, offA+8*int64(i)))
	}
	for i := range bRegs {
		body = append(body, load(insts.OpLD, bRegs[i], regS0, offB+8*int64(i)))
	}

	// C[i][j] = A[i][0]*B[0][j] + A[i][1]*B[1][j]
	const p0, p1, sum = uint8(18), uint8(19), uint8(20)
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			body = append(body,
				rtype(insts.OpMUL, p0, aRegs[2*i], bRegs[j]),
				rtype(insts.OpMUL, p1, aRegs[2*i+1], bRegs[2+j]),
				rtype(insts.OpADD, p0, p0, p1),
				store(insts.OpSD, regS0, p0, offC+8*int64(2*i+j)),
				rtype(insts.OpADD, sum, sum, p0),
			)
		}
	}

	return Benchmark{
		Name:        "matrix_multiply_2x2",
		Description: "2x2 integer matrix multiply from memory - measures MUL throughput",
		Setup: func(regFile *emu.RegFile, memory *emu.Memory) {
			for i := range a {
				memory.Write64(DataBase+offA+8*uint64(i), a[i])
				memory.Write64(DataBase+offB+8*uint64(i), b[i])
			}
		},
		Program:      program(body, sum),
		ExpectedExit: exitCode(19 + 22 + 43 + 50),
		DataSize:     96,
	}
}

// 8. Loop Simulation - a counted loop with a backward branch
func loopSimulation() Benchmark {
	body := []uint32{
		addi(regT0, 0, 10),
		rtype(insts.OpADD, regT1, regT1, regT0),
		addi(regT0, regT0, -1),
		insts.EncodeB(insts.OpBNE, regT0, 0, -8),
	}

	return Benchmark{
		Name:         "loop_simulation",
		Description:  "10-iteration counted loop - measures loop-closing branch prediction",
		Program:      program(body, regT1),
		ExpectedExit: exitCode(55),
	}
}

// 9. MulDiv Chain - dependent multiply and divide latency
func mulDivChain() Benchmark {
	body := []uint32{
		addi(regT0, 0, 1),
		addi(regT1, 0, 3),
	}
	for i := 0; i < 5; i++ {
		body = append(body, rtype(insts.OpMUL, regT0, regT0, regT1))
	}
	body = append(body,
		addi(regT2, 0, 100),
		rtype(insts.OpREMU, regT0, regT0, regT2),
		rtype(insts.OpDIVW, regT3, regT0, regT1),
		rtype(insts.OpADD, regT0, regT0, regT3),
	)

	return Benchmark{
		Name:         "muldiv_chain",
		Description:  "5 dependent MULs then REMU and DIVW - measures long-latency wakeup",
		Program:      program(body, regT0),
		ExpectedExit: exitCode(43 + 14),
	}
}

// 10. Store Forwarding - byte stores merged into a wider load
func storeForwarding() Benchmark {
	body := []uint32{
		dataBase(),
		addi(regT0, 0, 0x11),
		store(insts.OpSB, regS0, regT0, 0),
		addi(regT0, 0, 0x22),
		store(insts.OpSB, regS0, regT0, 1),
		load(insts.OpLHU, regT1, regS0, 0),
	}

	return Benchmark{
		Name:         "store_forwarding",
		Description:  "two byte stores read back by one halfword load - measures partial forwarding",
		Program:      program(body, regT1),
		ExpectedExit: exitCode(0x2211),
		DataSize:     8,
	}
}

// 11. Indirect Jumps - JALR to a PC-relative target in a loop
func indirectJumps() Benchmark {
	body := []uint32{
		addi(regT1, 0, 4),
		insts.EncodeU(insts.OpAUIPC, regT0, 0), // loop
		insts.EncodeI(insts.OpJALR, 0, regT0, 12),
		addi(regT2, regT2, 100), // skipped
		addi(regT2, regT2, 1),
		addi(regT1, regT1, -1),
		insts.EncodeB(insts.OpBNE, regT1, 0, -20),
	}

	return Benchmark{
		Name:         "indirect_jumps",
		Description:  "4 JALRs over one instruction - measures BTB training",
		Program:      program(body, regT2),
		ExpectedExit: exitCode(4),
	}
}
