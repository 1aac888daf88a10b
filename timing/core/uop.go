package core

import (
	"github.com/sarchlab/rvooo/emu"
	"github.com/sarchlab/rvooo/insts"
	"github.com/sarchlab/rvooo/timing/issue"
)

// Uop is one instruction in flight, from dispatch to retirement.
type Uop struct {
	// Seq orders instructions in program order.
	Seq  uint64
	PC   uint64
	Word uint32

	// Inst is nil for a word that failed to decode.
	Inst *insts.Instruction

	predictedNext uint64

	src0, src1 issue.Source

	hasDst bool
	dst    int
	areg   int

	isStore bool
	storeID int

	hasCheckpoint bool
	checkpoint    int

	outcome emu.Outcome

	done     bool
	squashed bool

	faulted   bool
	exception insts.ExceptionCode
}

// Dst returns the destination tag and whether the instruction has one.
func (u *Uop) Dst() (int, bool) {
	return u.dst, u.hasDst
}

// nextPC is the architectural successor of an executed instruction.
func (u *Uop) nextPC() uint64 {
	if u.outcome.Taken {
		return u.outcome.Target
	}
	return u.PC + 4
}

// Result is a completed value travelling to writeback.
type Result struct {
	Tag   int
	Value uint64
	Valid bool
}

type completion struct {
	uop     *Uop
	readyAt uint64
	result  Result
}

// bufferedStore holds a store between issue and commit.
type bufferedStore struct {
	seq      uint64
	executed bool
	addr     uint64
	size     int
	data     uint64
}

func (s *bufferedStore) covers(addr uint64) bool {
	return s.executed && addr >= s.addr && addr < s.addr+uint64(s.size)
}

func (s *bufferedStore) byteAt(addr uint64) byte {
	return byte(s.data >> (8 * (addr - s.addr)))
}
