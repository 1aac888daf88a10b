package core_test

import (
	"bytes"
	"errors"
	"io"

	"github.com/google/go-cmp/cmp"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/rvooo/emu"
	"github.com/sarchlab/rvooo/insts"
	"github.com/sarchlab/rvooo/timing/core"
)

type hookRecorder struct {
	counts map[*sim.HookPos]int
}

func (r *hookRecorder) Func(ctx sim.HookCtx) {
	r.counts[ctx.Pos]++
}

var (
	addi = func(rd, rs1 uint8, imm int64) uint32 { return insts.EncodeI(insts.OpADDI, rd, rs1, imm) }
	exit = []uint32{
		addi(emu.RegA7, 0, int64(emu.SyscallExit)),
		insts.EncodeECALL(),
	}
)

func withExit(words ...uint32) []uint32 {
	return append(words, exit...)
}

var _ = Describe("Core", func() {
	var (
		cfg    core.Config
		memory *emu.Memory
		stdout *bytes.Buffer
	)

	BeforeEach(func() {
		cfg = core.DefaultConfig()
		memory = emu.NewMemory()
		stdout = &bytes.Buffer{}
	})

	newCore := func(words []uint32, opts ...core.Option) *core.Core {
		memory.LoadProgram(base, program(words...))
		opts = append([]core.Option{
			core.WithStdout(stdout),
			core.WithMaxCycles(100000),
		}, opts...)
		c := core.NewCore(cfg, memory, opts...)
		c.SetPC(base)
		return c
	}

	// runBoth runs words on the core and on the functional emulator and
	// checks that they retire the same architectural state.
	runBoth := func(words []uint32) *core.Core {
		e := emu.NewEmulator(emu.WithStdout(io.Discard), emu.WithMaxInstructions(100000))
		e.LoadProgram(base, program(words...))
		emuExit := e.Run()

		c := newCore(words)
		coreExit, err := c.Run()
		Expect(err).NotTo(HaveOccurred())

		Expect(coreExit).To(Equal(emuExit))
		Expect(cmp.Diff(*e.RegFile(), c.RegFile())).To(BeEmpty())
		Expect(c.Stats().Instructions).To(Equal(e.InstructionCount()))

		return c
	}

	It("should run straight-line code to exit", func() {
		c := runBoth(withExit(
			addi(5, 0, 40),
			addi(6, 5, 2),
			insts.EncodeR(insts.OpADD, emu.RegA0, 6, 0),
		))

		Expect(c.ExitCode()).To(Equal(int64(42)))
		Expect(c.Halted()).To(BeTrue())
		Expect(c.ROBLen()).To(BeZero())
	})

	It("should run a counted loop with mispredictions", func() {
		c := runBoth(withExit(
			addi(5, 0, 10),
			addi(6, 0, 0),
			insts.EncodeR(insts.OpADD, 6, 6, 5),
			addi(5, 5, -1),
			insts.EncodeB(insts.OpBNE, 5, 0, -8),
			addi(emu.RegA0, 6, 0),
		))

		Expect(c.ExitCode()).To(Equal(int64(55)))
		stats := c.Stats()
		Expect(stats.BranchesResolved).To(Equal(uint64(10)))
		Expect(stats.Mispredictions).To(BeNumerically(">=", 1))
		Expect(stats.CPI()).To(BeNumerically(">", 0))
	})

	It("should kill wrong-path work dispatched with a reused checkpoint", func() {
		cfg.Dataflow.MaxSpecDepth = 1

		c := runBoth(withExit(
			addi(5, 0, 1),
			insts.EncodeU(insts.OpLUI, 6, 0x2000),
			insts.EncodeB(insts.OpBEQ, 0, 0, 4),  // always to the next instruction
			insts.EncodeB(insts.OpBEQ, 5, 0, 12), // predicted taken, falls through
			addi(emu.RegA0, emu.RegA0, 1),
			insts.EncodeJ(0, 8),
			insts.EncodeS(insts.OpSD, 6, 5, 0), // wrong path only
			insts.EncodeI(insts.OpLD, emu.RegA1, 6, 0),
			insts.EncodeR(insts.OpADD, emu.RegA0, emu.RegA0, emu.RegA1),
		))

		Expect(c.ExitCode()).To(Equal(int64(1)))
		Expect(memory.Read64(0x2000)).To(BeZero())
		Expect(c.Stats().Mispredictions).To(BeNumerically(">=", 1))
		dcfg := c.Config().Dataflow
		Expect(c.Dataflow().FreeRegCount()).To(Equal(dcfg.NumPregs - 1 - (dcfg.NumAregs - 1)))
	})

	It("should count a second insert into one queue as a port stall", func() {
		c := runBoth(withExit(
			addi(5, 0, 1),
			addi(6, 0, 2),
			addi(7, 0, 3),
			addi(28, 0, 4),
			insts.EncodeR(insts.OpADD, emu.RegA0, 5, 28),
		))

		Expect(c.ExitCode()).To(Equal(int64(5)))
		Expect(c.Stats().StallIssuePort).To(BeNumerically(">", 0))
		Expect(c.Stats().StallIssueQueueFull).To(BeZero())
	})

	It("should count a queue with no free slot as full", func() {
		cfg.IssueQueue.NumSlots = 1
		cfg.Latency.DivideLatency = 20

		c := runBoth(withExit(
			addi(5, 0, 100),
			addi(6, 0, 7),
			insts.EncodeR(insts.OpDIV, 7, 5, 6),
			insts.EncodeR(insts.OpDIV, 28, 7, 6),
			insts.EncodeR(insts.OpDIV, emu.RegA0, 7, 28),
		))

		Expect(c.ExitCode()).To(Equal(int64(7)))
		Expect(c.Stats().StallIssueQueueFull).To(BeNumerically(">", 0))
	})

	It("should compute multiply and divide results", func() {
		c := runBoth(withExit(
			addi(5, 0, 7),
			addi(6, 0, -3),
			insts.EncodeR(insts.OpMUL, 7, 5, 6),
			insts.EncodeR(insts.OpDIV, 8, 7, 6),
			insts.EncodeR(insts.OpREM, 9, 5, 6),
			insts.EncodeR(insts.OpDIVU, 28, 5, 0),
			insts.EncodeR(insts.OpADD, emu.RegA0, 8, 9),
		))

		Expect(c.ExitCode()).To(Equal(int64(8)))
		Expect(c.RegFile().X[28]).To(Equal(^uint64(0)))
	})

	It("should forward buffered stores to younger loads byte by byte", func() {
		c := runBoth(withExit(
			insts.EncodeU(insts.OpLUI, 5, 0x10000000),
			addi(6, 0, -1),
			insts.EncodeS(insts.OpSD, 5, 6, 0),
			insts.EncodeI(insts.OpLB, 7, 5, 3),
			addi(8, 0, 0x12),
			insts.EncodeS(insts.OpSB, 5, 8, 2),
			insts.EncodeI(insts.OpLD, 9, 5, 0),
			insts.EncodeI(insts.OpLHU, emu.RegA0, 5, 2),
		))

		Expect(c.ExitCode()).To(Equal(int64(0xFF12)))
		Expect(c.RegFile().X[7]).To(Equal(^uint64(0)))
		Expect(c.RegFile().X[9]).To(Equal(uint64(0xFFFFFFFFFF12FFFF)))
		Expect(memory.Read64(0x10000000)).To(Equal(uint64(0xFFFFFFFFFF12FFFF)))
	})

	It("should call and return through JAL and JALR", func() {
		c := runBoth([]uint32{
			addi(emu.RegA0, 0, 5),
			insts.EncodeJ(emu.RegRA, 16),
			addi(emu.RegA7, 0, int64(emu.SyscallExit)),
			insts.EncodeECALL(),
			addi(0, 0, 0),
			insts.EncodeR(insts.OpADD, emu.RegA0, emu.RegA0, emu.RegA0),
			insts.EncodeI(insts.OpJALR, 0, emu.RegRA, 0),
		})

		Expect(c.ExitCode()).To(Equal(int64(10)))
		Expect(c.RegFile().X[emu.RegRA]).To(Equal(base + 8))
	})

	It("should write through the syscall handler and see the result in a0", func() {
		memory.LoadProgram(0x2000, []byte("hello"))

		c := newCore(withExit(
			addi(emu.RegA0, 0, 1),
			insts.EncodeU(insts.OpLUI, emu.RegA1, 0x2000),
			addi(emu.RegA2, 0, 5),
			addi(emu.RegA7, 0, int64(emu.SyscallWrite)),
			insts.EncodeECALL(),
		))

		code, err := c.Run()
		Expect(err).NotTo(HaveOccurred())
		Expect(code).To(Equal(int64(5)))
		Expect(stdout.String()).To(Equal("hello"))
		Expect(c.Stats().StallSerialize).To(BeNumerically(">", 0))
	})

	It("should discard a wrong-path illegal instruction", func() {
		c := runBoth(withExit(
			insts.EncodeB(insts.OpBNE, 1, 1, 8),
			insts.EncodeJ(0, 8),
			0xFFFFFFFF,
			addi(emu.RegA0, 0, 7),
		))

		Expect(c.ExitCode()).To(Equal(int64(7)))
		Expect(c.Stats().Mispredictions).To(Equal(uint64(1)))
	})

	It("should raise an illegal instruction exception at commit", func() {
		c := newCore([]uint32{
			addi(emu.RegA0, 0, 1),
			0xFFFFFFFF,
		})

		code, err := c.Run()
		Expect(code).To(Equal(int64(-1)))

		var exc *emu.Exception
		Expect(errors.As(err, &exc)).To(BeTrue())
		Expect(exc.Code).To(Equal(insts.ExceptionIllegalInstruction))
		Expect(exc.PC).To(Equal(base + 4))
		Expect(exc.Word).To(Equal(uint32(0xFFFFFFFF)))

		Expect(c.RegFile().X[emu.RegA0]).To(Equal(uint64(1)))
		Expect(c.RegFile().PC).To(Equal(base + 4))
		Expect(c.Stats().Flushes).To(Equal(uint64(1)))
	})

	It("should stop at EBREAK with a breakpoint exception", func() {
		c := newCore([]uint32{insts.EncodeEBREAK(), addi(5, 0, 1)})

		_, err := c.Run()
		var exc *emu.Exception
		Expect(errors.As(err, &exc)).To(BeTrue())
		Expect(exc.Code).To(Equal(insts.ExceptionBreakpoint))
		Expect(c.RegFile().X[5]).To(BeZero())
	})

	It("should stop at the cycle limit", func() {
		c := newCore([]uint32{insts.EncodeJ(0, 0)}, core.WithMaxCycles(50))

		_, err := c.Run()
		Expect(err).To(MatchError(core.ErrMaxCycles))
		Expect(c.Cycle()).To(Equal(uint64(50)))
		Expect(c.Halted()).To(BeFalse())
	})

	It("should start from preset registers", func() {
		c := newCore(withExit(
			insts.EncodeR(insts.OpSUB, emu.RegA0, emu.RegSP, 5),
		))
		c.SetReg(emu.RegSP, 100)
		c.SetReg(5, 58)

		code, err := c.Run()
		Expect(err).NotTo(HaveOccurred())
		Expect(code).To(Equal(int64(42)))
	})

	It("should read CSRs as zero and treat FENCE as a no-op", func() {
		c := runBoth(withExit(
			addi(5, 0, 9),
			insts.EncodeCSR(insts.OpCSRRS, 5, 0, 0xC00),
			insts.EncodeFENCE(),
			addi(emu.RegA0, 5, 3),
		))

		Expect(c.ExitCode()).To(Equal(int64(3)))
	})

	It("should keep physical registers conserved after the run", func() {
		c := runBoth(withExit(
			addi(5, 0, 20),
			addi(5, 5, -1),
			insts.EncodeB(insts.OpBNE, 5, 0, -4),
		))

		df := c.Dataflow()
		dcfg := c.Config().Dataflow
		Expect(df.FreeRegCount()).To(Equal(dcfg.NumPregs - 1 - (dcfg.NumAregs - 1)))
	})

	It("should invoke hooks on the core, the dataflow manager and the queues", func() {
		rec := &hookRecorder{counts: make(map[*sim.HookPos]int)}
		c := newCore(withExit(
			addi(5, 0, 3),
			addi(5, 5, -1),
			insts.EncodeB(insts.OpBNE, 5, 0, -4),
			addi(emu.RegA0, 0, 0),
		), core.WithHook(rec))

		_, err := c.Run()
		Expect(err).NotTo(HaveOccurred())

		Expect(rec.counts[core.HookPosRetire]).To(Equal(int(c.Stats().Instructions)))
		Expect(rec.counts[core.HookPosDispatch]).To(BeNumerically(">=", int(c.Stats().Instructions)-1))
		Expect(rec.counts[core.HookPosMispredict]).To(Equal(int(c.Stats().Mispredictions)))
		Expect(rec.counts[core.HookPosMispredict]).To(BeNumerically(">", 0))
	})

	It("should run without a data cache", func() {
		cfg.DCache.Size = 0
		c := runBoth(withExit(
			insts.EncodeU(insts.OpLUI, 5, 0x3000),
			insts.EncodeS(insts.OpSW, 5, 0, 0),
			insts.EncodeI(insts.OpLW, emu.RegA0, 5, 0),
		))
		Expect(c.DCache()).To(BeNil())
	})

	It("should panic on an invalid configuration", func() {
		cfg.CommitWidth = cfg.Dataflow.NumDstPorts + 1
		Expect(func() { core.NewCore(cfg, memory) }).To(Panic())
	})
})

var _ = Describe("Component", func() {
	It("should run the core on an akita engine", func() {
		memory := emu.NewMemory()
		memory.LoadProgram(base, program(withExit(addi(emu.RegA0, 0, 9))...))

		c := core.NewCore(core.DefaultConfig(), memory, core.WithStdout(io.Discard))
		c.SetPC(base)

		t, err := core.RunWithEngine(c)
		Expect(err).NotTo(HaveOccurred())
		Expect(c.Halted()).To(BeTrue())
		Expect(c.ExitCode()).To(Equal(int64(9)))
		Expect(float64(t)).To(BeNumerically(">", 0))
	})

	It("should stop at the cycle limit", func() {
		memory := emu.NewMemory()
		memory.LoadProgram(base, program(insts.EncodeJ(0, 0)))

		c := core.NewCore(core.DefaultConfig(), memory, core.WithMaxCycles(20))
		c.SetPC(base)

		_, err := core.RunWithEngine(c)
		Expect(err).To(MatchError(core.ErrMaxCycles))
		Expect(c.Cycle()).To(Equal(uint64(20)))
	})
})
