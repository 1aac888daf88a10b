package trace_test

import (
	"bytes"
	"encoding/binary"
	"io"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rvooo/emu"
	"github.com/sarchlab/rvooo/insts"
	"github.com/sarchlab/rvooo/timing/core"
	"github.com/sarchlab/rvooo/timing/trace"
)

var _ = Describe("LogHook", func() {
	const base = uint64(0x1000)

	run := func(verbosity int) (string, *trace.LogHook) {
		words := []uint32{
			insts.EncodeI(insts.OpADDI, 5, 0, 2),
			insts.EncodeI(insts.OpADDI, 5, 5, -1),
			insts.EncodeB(insts.OpBNE, 5, 0, -4),
			insts.EncodeI(insts.OpADDI, emu.RegA7, 0, int64(emu.SyscallExit)),
			insts.EncodeECALL(),
		}
		buf := make([]byte, 4*len(words))
		for i, w := range words {
			binary.LittleEndian.PutUint32(buf[4*i:], w)
		}
		memory := emu.NewMemory()
		memory.LoadProgram(base, buf)

		out := &bytes.Buffer{}
		hook := trace.NewLogHook(trace.NewLogger(out, verbosity))
		c := core.NewCore(core.DefaultConfig(), memory,
			core.WithHook(hook), core.WithStdout(io.Discard))
		hook.SetClock(c.Cycle)
		c.SetPC(base)

		_, err := c.Run()
		Expect(err).NotTo(HaveOccurred())

		return out.String(), hook
	}

	It("should log only events at the lowest level", func() {
		out, hook := run(trace.LevelEvent)

		Expect(out).To(ContainSubstring(`"mispredict"`))
		Expect(out).To(ContainSubstring(`"restore"`))
		Expect(out).NotTo(ContainSubstring(`"retire"`))
		Expect(out).To(ContainSubstring(hook.RunID().String()))
	})

	It("should log retirements with the cycle", func() {
		out, _ := run(trace.LevelRetire)

		Expect(strings.Count(out, `"retire"`)).To(Equal(7))
		Expect(out).To(ContainSubstring(`"cycle"=`))
		Expect(out).NotTo(ContainSubstring(`"dispatch"`))
	})

	It("should log the whole pipeline at the highest level", func() {
		out, _ := run(trace.LevelPipeline)

		Expect(out).To(ContainSubstring(`"dispatch"`))
		Expect(out).To(ContainSubstring(`"issue"`))
		Expect(out).To(ContainSubstring(`"commit"`))
		Expect(out).To(ContainSubstring(`"op"="bne"`))
	})

	It("should give each hook its own run id", func() {
		a := trace.NewLogHook(trace.NewLogger(io.Discard, 0))
		b := trace.NewLogHook(trace.NewLogger(io.Discard, 0))
		Expect(a.RunID()).NotTo(Equal(b.RunID()))
	})
})
