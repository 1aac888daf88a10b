package emu_test

import (
	"bytes"
	"errors"
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rvooo/emu"
	"github.com/sarchlab/rvooo/insts"
)

var _ = Describe("Emulator", func() {
	var (
		e         *emu.Emulator
		stdoutBuf *bytes.Buffer
	)

	exit := []uint32{
		insts.EncodeI(insts.OpADDI, 17, 0, 93),
		insts.EncodeECALL(),
	}

	run := func(words ...uint32) int64 {
		e.LoadProgram(0x1000, program(append(words, exit...)...))
		return e.Run()
	}

	BeforeEach(func() {
		stdoutBuf = &bytes.Buffer{}
		e = emu.NewEmulator(
			emu.WithStdout(stdoutBuf),
			emu.WithStderr(stdoutBuf),
		)
	})

	Describe("LoadProgram", func() {
		It("should set the PC to the entry point", func() {
			e.LoadProgram(0x1000, []byte{0x13, 0, 0, 0})
			Expect(e.RegFile().PC).To(Equal(uint64(0x1000)))
			Expect(e.Memory().Read8(0x1000)).To(Equal(byte(0x13)))
		})
	})

	Describe("ALU instructions", func() {
		It("should add immediates and exit with a0", func() {
			code := run(
				insts.EncodeI(insts.OpADDI, 10, 0, 40),
				insts.EncodeI(insts.OpADDI, 10, 10, 2),
			)
			Expect(code).To(Equal(int64(42)))
			Expect(e.InstructionCount()).To(Equal(uint64(4)))
		})

		It("should never write x0", func() {
			run(insts.EncodeI(insts.OpADDI, 0, 0, 5))
			Expect(e.RegFile().ReadReg(0)).To(BeZero())
		})

		It("should sign-extend word operations", func() {
			run(
				insts.EncodeU(insts.OpLUI, 5, 0x7FFFF000),
				insts.EncodeI(insts.OpADDIW, 6, 5, 0x7FF),
				insts.EncodeI(insts.OpADDIW, 6, 6, 0x7FF),
				insts.EncodeI(insts.OpADDIW, 6, 6, 2),
			)
			Expect(e.RegFile().ReadReg(6)).To(Equal(uint64(0xFFFFFFFF80000000)))
		})

		It("should build addresses with auipc", func() {
			run(insts.EncodeU(insts.OpAUIPC, 5, 0x2000))
			Expect(e.RegFile().ReadReg(5)).To(Equal(uint64(0x3000)))
		})
	})

	Describe("M extension", func() {
		BeforeEach(func() {
			e.RegFile().WriteReg(1, uint64(math.MaxUint64)) // -1
			e.RegFile().WriteReg(2, 7)
			e.RegFile().WriteReg(3, 1<<63)
		})

		DescribeTable("should follow the RISC-V corner cases",
			func(op insts.Op, rs1, rs2 uint8, want uint64) {
				run(insts.EncodeR(op, 4, rs1, rs2))
				Expect(e.RegFile().ReadReg(4)).To(Equal(want))
			},
			Entry("mul", insts.OpMUL, uint8(1), uint8(2), uint64(math.MaxUint64-6)),
			Entry("mulh of -1 and 7", insts.OpMULH, uint8(1), uint8(2), uint64(math.MaxUint64)),
			Entry("mulhu of -1 and 7", insts.OpMULHU, uint8(1), uint8(2), uint64(6)),
			Entry("mulhsu of -1 and 7", insts.OpMULHSU, uint8(1), uint8(2), uint64(math.MaxUint64)),
			Entry("div by zero", insts.OpDIV, uint8(2), uint8(0), uint64(math.MaxUint64)),
			Entry("divu by zero", insts.OpDIVU, uint8(2), uint8(0), uint64(math.MaxUint64)),
			Entry("rem by zero", insts.OpREM, uint8(2), uint8(0), uint64(7)),
			Entry("div overflow", insts.OpDIV, uint8(3), uint8(1), uint64(1<<63)),
			Entry("rem overflow", insts.OpREM, uint8(3), uint8(1), uint64(0)),
			Entry("divw by zero", insts.OpDIVW, uint8(2), uint8(0), uint64(math.MaxUint64)),
			Entry("remuw by zero", insts.OpREMUW, uint8(2), uint8(0), uint64(7)),
			Entry("signed division", insts.OpDIV, uint8(1), uint8(2), uint64(0)),
		)
	})

	Describe("Memory instructions", func() {
		It("should store and load with the right extension", func() {
			e.RegFile().WriteReg(1, 0x8000)
			e.RegFile().WriteReg(2, 0xFFFFFFFFFFFFFF80)
			run(
				insts.EncodeS(insts.OpSD, 1, 2, 8),
				insts.EncodeI(insts.OpLB, 3, 1, 8),
				insts.EncodeI(insts.OpLBU, 4, 1, 8),
				insts.EncodeI(insts.OpLW, 5, 1, 8),
				insts.EncodeI(insts.OpLWU, 6, 1, 8),
			)

			Expect(e.Memory().Read64(0x8008)).To(Equal(uint64(0xFFFFFFFFFFFFFF80)))
			Expect(e.RegFile().ReadReg(3)).To(Equal(uint64(0xFFFFFFFFFFFFFF80)))
			Expect(e.RegFile().ReadReg(4)).To(Equal(uint64(0x80)))
			Expect(e.RegFile().ReadReg(5)).To(Equal(uint64(0xFFFFFFFFFFFFFF80)))
			Expect(e.RegFile().ReadReg(6)).To(Equal(uint64(0xFFFFFF80)))
		})

		It("should only write the store width", func() {
			e.RegFile().WriteReg(1, 0x8000)
			e.RegFile().WriteReg(2, 0x1122334455667788)
			run(insts.EncodeS(insts.OpSH, 1, 2, 0))

			Expect(e.Memory().Read64(0x8000)).To(Equal(uint64(0x7788)))
		})
	})

	Describe("Control flow", func() {
		It("should loop until the counter reaches zero", func() {
			code := run(
				insts.EncodeI(insts.OpADDI, 5, 0, 10),  // t0 = 10
				insts.EncodeI(insts.OpADDI, 10, 10, 3), // a0 += 3
				insts.EncodeI(insts.OpADDI, 5, 5, -1),  // t0--
				insts.EncodeB(insts.OpBNE, 5, 0, -8),   // loop
			)
			Expect(code).To(Equal(int64(30)))
		})

		It("should link and return", func() {
			code := run(
				insts.EncodeJ(1, 12),                   // call f
				insts.EncodeI(insts.OpADDI, 10, 10, 1), // a0++
				insts.EncodeJ(0, 12),                   // skip f
				insts.EncodeI(insts.OpADDI, 10, 0, 41), // f: a0 = 41
				insts.EncodeI(insts.OpJALR, 0, 1, 0),   // ret
			)
			Expect(code).To(Equal(int64(42)))
		})
	})

	Describe("System instructions", func() {
		It("should read CSRs as zero", func() {
			e.RegFile().WriteReg(5, 9)
			run(insts.EncodeCSR(insts.OpCSRRS, 5, 0, 0xB00))
			Expect(e.RegFile().ReadReg(5)).To(BeZero())
		})

		It("should report a breakpoint", func() {
			e.LoadProgram(0x1000, program(insts.EncodeEBREAK()))
			result := e.Step()

			var ex *emu.Exception
			Expect(errors.As(result.Err, &ex)).To(BeTrue())
			Expect(ex.Code).To(Equal(insts.ExceptionBreakpoint))
		})

		It("should report an illegal instruction", func() {
			e.LoadProgram(0x1000, program(0xFFFFFFFF))
			result := e.Step()

			var ex *emu.Exception
			Expect(errors.As(result.Err, &ex)).To(BeTrue())
			Expect(ex.Code).To(Equal(insts.ExceptionIllegalInstruction))
			Expect(ex.PC).To(Equal(uint64(0x1000)))
			Expect(e.InstructionCount()).To(BeZero())
			Expect(e.Run()).To(Equal(int64(-1)))
		})
	})

	Describe("Instruction limit", func() {
		It("should stop at the limit", func() {
			e = emu.NewEmulator(emu.WithMaxInstructions(3))
			e.LoadProgram(0x1000, program(insts.EncodeJ(0, 0)))

			for i := 0; i < 3; i++ {
				Expect(e.Step().Err).NotTo(HaveOccurred())
			}
			Expect(e.Step().Err).To(MatchError(emu.ErrMaxInstructions))
		})
	})
})
