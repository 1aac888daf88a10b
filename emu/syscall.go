package emu

import "io"

// RISC-V Linux syscall numbers.
const (
	SyscallRead  uint64 = 63 // read(fd, buf, count)
	SyscallWrite uint64 = 64 // write(fd, buf, count)
	SyscallExit  uint64 = 93 // exit(status)
)

// Linux error codes.
const (
	EBADF  = 9  // Bad file descriptor
	ENOSYS = 38 // Function not implemented
	EIO    = 5  // I/O error
)

// SyscallResult represents the result of a syscall execution.
type SyscallResult struct {
	// Exited is true if the syscall caused program termination.
	Exited bool

	// ExitCode is the exit status if Exited is true.
	ExitCode int64
}

// SyscallHandler is the interface for handling RISC-V syscalls.
type SyscallHandler interface {
	// Handle executes the syscall indicated by the register state.
	// RISC-V Linux syscall convention:
	//   - Syscall number in a7
	//   - Arguments in a0-a5
	//   - Return value in a0
	Handle(regs Registers) SyscallResult
}

// DefaultSyscallHandler provides a basic syscall handler implementation.
type DefaultSyscallHandler struct {
	memory *Memory
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

// NewDefaultSyscallHandler creates a default syscall handler.
func NewDefaultSyscallHandler(memory *Memory, stdout, stderr io.Writer) *DefaultSyscallHandler {
	return &DefaultSyscallHandler{
		memory: memory,
		stdout: stdout,
		stderr: stderr,
	}
}

// SetStdin sets the stdin reader for the syscall handler.
func (h *DefaultSyscallHandler) SetStdin(stdin io.Reader) {
	h.stdin = stdin
}

// Handle executes the syscall indicated by the register state.
func (h *DefaultSyscallHandler) Handle(regs Registers) SyscallResult {
	switch regs.ReadReg(RegA7) {
	case SyscallRead:
		return h.handleRead(regs)
	case SyscallWrite:
		return h.handleWrite(regs)
	case SyscallExit:
		return SyscallResult{
			Exited:   true,
			ExitCode: int64(regs.ReadReg(RegA0)),
		}
	default:
		setError(regs, ENOSYS)
		return SyscallResult{}
	}
}

// handleRead handles the read syscall (63). Only stdin is supported.
func (h *DefaultSyscallHandler) handleRead(regs Registers) SyscallResult {
	fd := regs.ReadReg(RegA0)
	bufPtr := regs.ReadReg(RegA1)
	count := regs.ReadReg(RegA2)

	if fd != 0 {
		setError(regs, EBADF)
		return SyscallResult{}
	}

	if h.stdin == nil {
		regs.WriteReg(RegA0, 0)
		return SyscallResult{}
	}

	buf := make([]byte, count)
	n, err := h.stdin.Read(buf)
	if err != nil && n == 0 {
		regs.WriteReg(RegA0, 0)
		return SyscallResult{}
	}

	for i := 0; i < n; i++ {
		h.memory.Write8(bufPtr+uint64(i), buf[i])
	}

	regs.WriteReg(RegA0, uint64(n))
	return SyscallResult{}
}

// handleWrite handles the write syscall (64).
func (h *DefaultSyscallHandler) handleWrite(regs Registers) SyscallResult {
	fd := regs.ReadReg(RegA0)
	bufPtr := regs.ReadReg(RegA1)
	count := regs.ReadReg(RegA2)

	var writer io.Writer
	switch fd {
	case 1:
		writer = h.stdout
	case 2:
		writer = h.stderr
	default:
		setError(regs, EBADF)
		return SyscallResult{}
	}

	n, err := writer.Write(h.memory.ReadBytes(bufPtr, count))
	if err != nil {
		setError(regs, EIO)
		return SyscallResult{}
	}

	regs.WriteReg(RegA0, uint64(n))
	return SyscallResult{}
}

// setError sets a0 to -errno (as two's complement).
func setError(regs Registers, errno int) {
	regs.WriteReg(RegA0, uint64(-int64(errno)))
}
