package emu

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sarchlab/rvooo/insts"
)

// ErrMaxInstructions is returned once the instruction limit is reached.
var ErrMaxInstructions = errors.New("max instructions reached")

// Exception is a synchronous exception raised while executing.
type Exception struct {
	Code insts.ExceptionCode
	PC   uint64
	Word uint32
}

func (e *Exception) Error() string {
	return fmt.Sprintf("%v at PC=0x%X (word 0x%08x)", e.Code, e.PC, e.Word)
}

// StepResult represents the result of executing a single instruction.
type StepResult struct {
	// Exited is true if the program terminated (via exit syscall).
	Exited bool

	// ExitCode is the exit status if Exited is true.
	ExitCode int64

	// Err is set if an error occurred during execution. Exceptions are
	// reported as *Exception.
	Err error
}

// Emulator executes RV64IM instructions functionally.
type Emulator struct {
	regFile        *RegFile
	memory         *Memory
	decoder        *insts.Decoder
	syscallHandler SyscallHandler

	alu *ALU
	lsu *LoadStoreUnit

	stdout io.Writer
	stderr io.Writer

	instructionCount uint64
	maxInstructions  uint64 // 0 means no limit
}

// EmulatorOption is a functional option for configuring the Emulator.
type EmulatorOption func(*Emulator)

// WithStdout sets a custom stdout writer.
func WithStdout(w io.Writer) EmulatorOption {
	return func(e *Emulator) {
		e.stdout = w
	}
}

// WithStderr sets a custom stderr writer.
func WithStderr(w io.Writer) EmulatorOption {
	return func(e *Emulator) {
		e.stderr = w
	}
}

// WithSyscallHandler sets a custom syscall handler.
func WithSyscallHandler(handler SyscallHandler) EmulatorOption {
	return func(e *Emulator) {
		e.syscallHandler = handler
	}
}

// WithMemory runs the emulator on an existing memory image.
func WithMemory(memory *Memory) EmulatorOption {
	return func(e *Emulator) {
		e.memory = memory
	}
}

// WithStackPointer sets the initial stack pointer value.
func WithStackPointer(sp uint64) EmulatorOption {
	return func(e *Emulator) {
		e.regFile.WriteReg(RegSP, sp)
	}
}

// WithMaxInstructions sets the maximum number of instructions to execute.
// A value of 0 means no limit.
func WithMaxInstructions(max uint64) EmulatorOption {
	return func(e *Emulator) {
		e.maxInstructions = max
	}
}

// NewEmulator creates a new RV64IM emulator.
func NewEmulator(opts ...EmulatorOption) *Emulator {
	e := &Emulator{
		regFile: &RegFile{},
		memory:  NewMemory(),
		decoder: insts.NewDecoder(),
		alu:     NewALU(),
		stdout:  os.Stdout,
		stderr:  os.Stderr,
	}

	for _, opt := range opts {
		opt(e)
	}

	e.lsu = NewLoadStoreUnit(e.memory)
	if e.syscallHandler == nil {
		e.syscallHandler = NewDefaultSyscallHandler(e.memory, e.stdout, e.stderr)
	}

	return e
}

// RegFile returns the emulator's register file.
func (e *Emulator) RegFile() *RegFile {
	return e.regFile
}

// Memory returns the emulator's memory.
func (e *Emulator) Memory() *Memory {
	return e.memory
}

// InstructionCount returns the number of instructions retired.
func (e *Emulator) InstructionCount() uint64 {
	return e.instructionCount
}

// LoadProgram copies program into memory at entry and points the PC at it.
func (e *Emulator) LoadProgram(entry uint64, program []byte) {
	e.memory.LoadProgram(entry, program)
	e.regFile.PC = entry
}

// Step executes a single instruction.
func (e *Emulator) Step() StepResult {
	if e.maxInstructions > 0 && e.instructionCount >= e.maxInstructions {
		return StepResult{Err: ErrMaxInstructions}
	}

	pc := e.regFile.PC
	word := e.memory.Read32(pc)

	inst, err := e.decoder.Decode(word)
	if err != nil {
		var de *insts.DecodeError
		if errors.As(err, &de) {
			return StepResult{Err: &Exception{Code: de.Code, PC: pc, Word: word}}
		}
		return StepResult{Err: err}
	}

	result := e.execute(inst, pc)
	if result.Err == nil {
		e.instructionCount++
	}

	return result
}

// Run executes instructions until the program exits or an error occurs.
// Returns the exit code (-1 if error).
func (e *Emulator) Run() int64 {
	for {
		result := e.Step()
		if result.Exited {
			return result.ExitCode
		}
		if result.Err != nil {
			_, _ = fmt.Fprintf(e.stderr, "Emulation error: %v\n", result.Err)
			return -1
		}
	}
}

func (e *Emulator) execute(inst *insts.Instruction, pc uint64) StepResult {
	switch inst.Op {
	case insts.OpECALL:
		e.regFile.PC = pc + 4
		r := e.syscallHandler.Handle(e.regFile)
		return StepResult{Exited: r.Exited, ExitCode: r.ExitCode}
	case insts.OpEBREAK:
		return StepResult{
			Err: &Exception{Code: insts.ExceptionBreakpoint, PC: pc, Word: inst.Word},
		}
	}

	rs1 := e.regFile.ReadReg(inst.Rs1)
	rs2 := e.regFile.ReadReg(inst.Rs2)
	out := e.alu.Execute(inst, pc, rs1, rs2)

	switch inst.Class {
	case insts.ClassLoad:
		out.Value = e.lsu.Load(inst, out.Addr)
	case insts.ClassStore:
		e.lsu.Store(inst, out.Addr, out.Value)
	}

	if inst.RdValid {
		e.regFile.WriteReg(inst.Rd, out.Value)
	}

	if out.Taken {
		e.regFile.PC = out.Target
	} else {
		e.regFile.PC = pc + 4
	}

	return StepResult{}
}
