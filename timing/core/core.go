// Package core provides the cycle-accurate out-of-order RV64IM core model.
//
// Each cycle runs commit, writeback with branch resolution, issue, dispatch
// and fetch, in that order, and then ticks every stateful component. Results
// are computed by the same emu.ALU the functional emulator uses, so a run
// retires the same architectural state as emu.Emulator.
package core

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/rvooo/emu"
	"github.com/sarchlab/rvooo/insts"
	"github.com/sarchlab/rvooo/timing/cache"
	"github.com/sarchlab/rvooo/timing/dataflow"
	"github.com/sarchlab/rvooo/timing/frontend"
	"github.com/sarchlab/rvooo/timing/issue"
	"github.com/sarchlab/rvooo/timing/latency"
)

// ErrMaxCycles is returned by Run once the cycle limit is reached.
var ErrMaxCycles = errors.New("max cycles reached")

// Hook positions invoked by the Core.
var (
	HookPosDispatch   = &sim.HookPos{Name: "Core Dispatch"}
	HookPosRetire     = &sim.HookPos{Name: "Core Retire"}
	HookPosMispredict = &sim.HookPos{Name: "Core Mispredict"}
)

// MispredictDetail is the hook detail attached to HookPosMispredict.
type MispredictDetail struct {
	PC        uint64
	Predicted uint64
	Actual    uint64
}

// QueueKind names one of the issue queues.
type QueueKind int

// Issue queues. Memory, CSR and FENCE instructions share the ordered
// memory queue.
const (
	QueueInt QueueKind = iota
	QueueMulDiv
	QueueMem
	numQueues
)

func (k QueueKind) String() string {
	switch k {
	case QueueInt:
		return "int"
	case QueueMulDiv:
		return "muldiv"
	case QueueMem:
		return "mem"
	default:
		return fmt.Sprintf("QueueKind(%d)", int(k))
	}
}

// Core is the out-of-order core.
type Core struct {
	*sim.HookableBase

	cfg Config

	memory         *emu.Memory
	alu            *emu.ALU
	syscallHandler emu.SyscallHandler
	stdout         io.Writer
	stderr         io.Writer

	df        *dataflow.Manager
	queues    [numQueues]*issue.Queue[*Uop]
	fetcher   *frontend.Fetcher
	predictor *frontend.BranchPredictor
	latency   *latency.Table
	dcache    *cache.Cache

	rob         []*Uop
	inflight    []*completion
	storeBuffer map[int]*bufferedStore
	branchMask  uint64

	// broadcastMask holds the checkpoint bits killed or cleared this cycle.
	// Queue inserts see the cycle's kill notices, so no entry may carry one
	// of these bits until the next cycle.
	broadcastMask uint64

	nextSeq            uint64
	cycle              uint64
	maxCycles          uint64
	committedThisCycle bool

	archPC   uint64
	halted   bool
	exitCode int64
	err      error

	hooks []sim.Hook
	stats Stats
}

// Option is a functional option for configuring the Core.
type Option func(*Core)

// WithLatencyTable replaces the latency table built from the config.
func WithLatencyTable(table *latency.Table) Option {
	return func(c *Core) {
		c.latency = table
	}
}

// WithHook attaches a hook to the core, its dataflow manager and its issue
// queues.
func WithHook(hook sim.Hook) Option {
	return func(c *Core) {
		c.hooks = append(c.hooks, hook)
	}
}

// WithMaxCycles bounds Run. A value of 0 means no limit.
func WithMaxCycles(max uint64) Option {
	return func(c *Core) {
		c.maxCycles = max
	}
}

// WithBranchPredictor replaces the predictor built from the config.
func WithBranchPredictor(bp *frontend.BranchPredictor) Option {
	return func(c *Core) {
		c.predictor = bp
	}
}

// WithSyscallHandler sets a custom syscall handler.
func WithSyscallHandler(handler emu.SyscallHandler) Option {
	return func(c *Core) {
		c.syscallHandler = handler
	}
}

// WithStdout sets the writer the default syscall handler uses for fd 1.
func WithStdout(w io.Writer) Option {
	return func(c *Core) {
		c.stdout = w
	}
}

// WithStderr sets the writer the default syscall handler uses for fd 2.
func WithStderr(w io.Writer) Option {
	return func(c *Core) {
		c.stderr = w
	}
}

// NewCore creates a core executing out of memory. It panics on an invalid
// configuration.
func NewCore(cfg Config, memory *emu.Memory, opts ...Option) *Core {
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("core: invalid config: %v", err))
	}

	c := &Core{
		HookableBase: sim.NewHookableBase(),
		cfg:          cfg,
		memory:       memory,
		alu:          emu.NewALU(),
		stdout:       os.Stdout,
		stderr:       os.Stderr,
		storeBuffer:  make(map[int]*bufferedStore),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.latency == nil {
		c.latency = latency.NewTableWithConfig(cfg.Latency.Clone())
	}
	if c.predictor == nil {
		c.predictor = frontend.NewBranchPredictor(cfg.Predictor)
	}
	if c.syscallHandler == nil {
		c.syscallHandler = emu.NewDefaultSyscallHandler(memory, c.stdout, c.stderr)
	}
	if cfg.DCache.Enabled() {
		c.dcache = cache.New(cfg.DCache)
	}

	c.df = dataflow.NewManager(cfg.Dataflow)
	c.fetcher = frontend.NewFetcher(cfg.Fetch, memory, c.predictor)
	for k := range c.queues {
		c.queues[k] = issue.NewQueue[*Uop](cfg.IssueQueue)
	}

	for _, h := range c.hooks {
		c.AcceptHook(h)
		c.df.AcceptHook(h)
		for _, q := range c.queues {
			q.AcceptHook(h)
		}
	}

	return c
}

// Config returns the configuration the core was built with.
func (c *Core) Config() Config {
	return c.cfg
}

// Dataflow returns the rename and register state.
func (c *Core) Dataflow() *dataflow.Manager {
	return c.df
}

// Fetcher returns the front end.
func (c *Core) Fetcher() *frontend.Fetcher {
	return c.fetcher
}

// DCache returns the data cache, or nil when disabled.
func (c *Core) DCache() *cache.Cache {
	return c.dcache
}

// Queue returns one of the issue queues.
func (c *Core) Queue(k QueueKind) *issue.Queue[*Uop] {
	return c.queues[k]
}

// ROBLen returns the number of instructions in the reorder buffer.
func (c *Core) ROBLen() int {
	return len(c.rob)
}

// SetPC sets the architectural PC and restarts fetch there.
func (c *Core) SetPC(pc uint64) {
	c.archPC = pc
	c.fetcher.SetPC(pc)
}

// SetReg sets the committed value of an architectural register. It is meant
// for initial state, before the first Tick.
func (c *Core) SetReg(reg uint8, value uint64) {
	(&archRegs{df: c.df}).WriteReg(reg, value)
}

// RegFile returns the committed architectural state.
func (c *Core) RegFile() emu.RegFile {
	var rf emu.RegFile
	for i := 1; i < len(rf.X); i++ {
		rf.X[i] = c.df.ArchValue(i)
	}
	rf.PC = c.archPC
	return rf
}

// Cycle returns the number of cycles simulated.
func (c *Core) Cycle() uint64 {
	return c.cycle
}

// Halted returns true once the program exited or raised an exception.
func (c *Core) Halted() bool {
	return c.halted
}

// ExitCode returns the exit code if the core has halted.
func (c *Core) ExitCode() int64 {
	return c.exitCode
}

// Err returns the exception that halted the core, if any.
func (c *Core) Err() error {
	return c.err
}

// Stats returns performance statistics for the core.
func (c *Core) Stats() Stats {
	return c.stats
}

// Run ticks the core until it halts. It returns the exit code, or -1 with
// the exception or ErrMaxCycles.
func (c *Core) Run() (int64, error) {
	for !c.halted {
		if c.cycleLimitReached() {
			return -1, ErrMaxCycles
		}
		c.Tick()
	}
	return c.exitCode, c.err
}

func (c *Core) cycleLimitReached() bool {
	return c.maxCycles > 0 && c.cycle >= c.maxCycles
}

// Tick simulates one cycle.
func (c *Core) Tick() {
	if c.halted {
		return
	}

	c.commit()
	if !c.halted {
		c.writeback()
		c.issue()
		c.dispatch()
		c.fetcher.Tick()
	}

	c.df.Tick()
	for _, q := range c.queues {
		q.Tick()
	}

	c.cycle++
	c.stats.Cycles++
}

func (c *Core) halt(code int64, err error) {
	c.halted = true
	c.exitCode = code
	c.err = err
}

func (c *Core) invokeHook(pos *sim.HookPos, detail interface{}) {
	if c.NumHooks() == 0 {
		return
	}
	c.InvokeHook(sim.HookCtx{
		Domain: c,
		Pos:    pos,
		Detail: detail,
	})
}

func (c *Core) commit() {
	c.committedThisCycle = false

	for n := 0; n < c.cfg.CommitWidth && len(c.rob) > 0; n++ {
		u := c.rob[0]
		if !u.done {
			return
		}

		if u.faulted {
			c.df.Rollback()
			c.stats.Flushes++
			c.archPC = u.PC
			c.halt(-1, &emu.Exception{Code: u.exception, PC: u.PC, Word: u.Word})
			return
		}

		if u.hasDst {
			c.df.Commit(u.dst, u.areg)
		}
		if u.isStore {
			c.drainStore(u)
		}

		c.rob = c.rob[1:]
		c.archPC = u.nextPC()
		c.committedThisCycle = true
		c.stats.Instructions++
		c.invokeHook(HookPosRetire, u)
	}
}

func (c *Core) drainStore(u *Uop) {
	s := c.storeBuffer[u.storeID]
	c.memory.Write(s.addr, s.size, s.data)
	if c.dcache != nil {
		c.dcache.Write(s.addr)
	}
	delete(c.storeBuffer, u.storeID)
	c.df.FreeStoreID(u.storeID)
}

func (c *Core) writeback() {
	c.broadcastMask = 0

	var due, waiting []*completion
	for _, p := range c.inflight {
		if p.readyAt <= c.cycle {
			due = append(due, p)
		} else {
			waiting = append(waiting, p)
		}
	}

	sort.Slice(due, func(i, j int) bool { return due[i].uop.Seq < due[j].uop.Seq })
	if len(due) > c.cfg.WritebackWidth {
		waiting = append(waiting, due[c.cfg.WritebackWidth:]...)
		due = due[:c.cfg.WritebackWidth]
	}
	c.inflight = waiting

	for _, p := range due {
		u := p.uop
		if u.squashed {
			continue
		}

		if p.result.Valid {
			c.df.Write(p.result.Tag, p.result.Value)
			c.df.Forward(p.result.Tag, p.result.Value)
		}
		u.done = true

		if u.hasCheckpoint {
			c.resolve(u)
		}
	}

	for _, tag := range c.df.GetUpdated() {
		for _, q := range c.queues {
			q.Notify(tag)
		}
	}
}

// resolve checks a branch or indirect jump against its prediction.
func (c *Core) resolve(u *Uop) {
	actual := u.nextPC()
	c.predictor.Update(u.PC, u.outcome.Taken, u.outcome.Target)
	c.stats.BranchesResolved++

	bit := uint64(1) << uint(u.checkpoint)
	u.hasCheckpoint = false
	c.broadcastMask |= bit

	if actual == u.predictedNext {
		c.df.FreeSnapshot(u.checkpoint)
		c.broadcastKill(issue.KillNotice{ClearMask: bit})
		c.branchMask &^= bit
		return
	}

	c.df.Restore(u.checkpoint)
	c.df.FreeSnapshot(u.checkpoint)
	c.broadcastKill(issue.KillNotice{KillMask: bit})
	c.squashAfter(u)
	c.fetcher.Redirect(actual, c.latency.MispredictPenalty())

	c.stats.Mispredictions++
	c.stats.Flushes++
	c.invokeHook(HookPosMispredict, MispredictDetail{
		PC:        u.PC,
		Predicted: u.predictedNext,
		Actual:    actual,
	})
}

func (c *Core) broadcastKill(k issue.KillNotice) {
	for _, q := range c.queues {
		q.Kill(k)
	}
}

// squashAfter drops every instruction younger than u.
func (c *Core) squashAfter(u *Uop) {
	idx := len(c.rob)
	for i, r := range c.rob {
		if r == u {
			idx = i
			break
		}
	}
	if idx == len(c.rob) {
		panic("core: resolving branch not in reorder buffer")
	}

	for _, y := range c.rob[idx+1:] {
		y.squashed = true
		if y.isStore {
			delete(c.storeBuffer, y.storeID)
		}
	}
	for i := idx + 1; i < len(c.rob); i++ {
		c.rob[i] = nil
	}
	c.rob = c.rob[:idx+1]

	kept := c.inflight[:0]
	for _, p := range c.inflight {
		if !p.uop.squashed {
			kept = append(kept, p)
		}
	}
	c.inflight = kept

	c.branchMask = 0
	for _, r := range c.rob {
		if r.hasCheckpoint {
			c.branchMask |= uint64(1) << uint(r.checkpoint)
		}
	}
}

func (c *Core) issue() {
	for _, q := range c.queues {
		if _, ok := q.Peek(); !ok {
			continue
		}
		c.execute(q.Remove())
	}
}

func (c *Core) operand(src issue.Source) uint64 {
	if !src.Valid {
		return 0
	}
	return c.df.Read(src.Tag)
}

func (c *Core) execute(u *Uop) {
	inst := u.Inst
	out := c.alu.Execute(inst, u.PC, c.operand(u.src0), c.operand(u.src1))
	lat := c.latency.GetLatency(inst)

	switch inst.Class {
	case insts.ClassLoad:
		out.Value = emu.ExtendLoad(inst.Op, c.loadBytes(u, out.Addr, inst.MemSize()))
		if c.dcache != nil {
			lat += c.dcache.Read(out.Addr).Penalty
		}
	case insts.ClassStore:
		s := c.storeBuffer[u.storeID]
		s.executed = true
		s.addr = out.Addr
		s.size = inst.MemSize()
		s.data = out.Value
	}

	u.outcome = out
	c.inflight = append(c.inflight, &completion{
		uop:     u,
		readyAt: c.cycle + lat,
		result:  Result{Tag: u.dst, Value: out.Value, Valid: u.hasDst},
	})
	c.stats.Issued++
}

// loadBytes reads size bytes at addr as seen by the load u: memory
// overlaid with every older buffered store, youngest last.
func (c *Core) loadBytes(u *Uop, addr uint64, size int) uint64 {
	var older []*bufferedStore
	for _, s := range c.storeBuffer {
		if s.executed && s.seq < u.Seq {
			older = append(older, s)
		}
	}
	sort.Slice(older, func(i, j int) bool { return older[i].seq < older[j].seq })

	var raw uint64
	for i := 0; i < size; i++ {
		a := addr + uint64(i)
		b := c.memory.Read8(a)
		for _, s := range older {
			if s.covers(a) {
				b = s.byteAt(a)
			}
		}
		raw |= uint64(b) << (8 * i)
	}
	return raw
}

func (c *Core) queueFor(inst *insts.Instruction) *issue.Queue[*Uop] {
	switch inst.Class {
	case insts.ClassMulDiv:
		return c.queues[QueueMulDiv]
	case insts.ClassLoad, insts.ClassStore, insts.ClassSystem, insts.ClassFence:
		return c.queues[QueueMem]
	default:
		return c.queues[QueueInt]
	}
}

func (c *Core) dispatch() {
	for n := 0; n < c.cfg.DispatchWidth; n++ {
		f, ok := c.fetcher.Peek()
		if !ok {
			return
		}

		if f.Inst != nil && f.Inst.Op == insts.OpECALL {
			if n > 0 || len(c.rob) > 0 || c.committedThisCycle {
				c.stats.StallSerialize++
				return
			}
			c.fetcher.Pop()
			c.syscall(f)
			return
		}

		if len(c.rob) >= c.cfg.ROBSize {
			c.stats.StallROBFull++
			return
		}

		if f.Inst == nil || f.Inst.Op == insts.OpEBREAK {
			c.fetcher.Pop()
			c.dispatchFault(f)
			continue
		}

		if !c.dispatchInst(f) {
			return
		}
		c.fetcher.Pop()
	}
}

func (c *Core) newUop(f frontend.Fetched) *Uop {
	u := &Uop{
		Seq:           c.nextSeq,
		PC:            f.PC,
		Word:          f.Word,
		Inst:          f.Inst,
		predictedNext: f.PredictedNext,
	}
	c.nextSeq++
	return u
}

// dispatchFault places an instruction that raises an exception at commit.
func (c *Core) dispatchFault(f frontend.Fetched) {
	u := c.newUop(f)
	u.done = true
	u.faulted = true
	u.exception = insts.ExceptionBreakpoint

	var de *insts.DecodeError
	if errors.As(f.Err, &de) {
		u.exception = de.Code
	} else if f.Err != nil {
		u.exception = insts.ExceptionIllegalInstruction
	}

	c.rob = append(c.rob, u)
	c.stats.Dispatched++
	c.invokeHook(HookPosDispatch, u)
}

// dispatchInst renames f and inserts it into its issue queue. It returns
// false when a resource is not available this cycle.
func (c *Core) dispatchInst(f frontend.Fetched) bool {
	inst := f.Inst
	q := c.queueFor(inst)

	needDst := inst.RdValid && inst.Rd != 0
	isStore := inst.Class == insts.ClassStore
	needCheckpoint := inst.Class == insts.ClassBranch || inst.Op == insts.OpJALR

	switch {
	case q.Inserted():
		c.stats.StallIssuePort++
		return false
	case !q.CanAdd():
		c.stats.StallIssueQueueFull++
		return false
	case needDst && !c.df.CanGetDst():
		c.stats.StallNoRegister++
		return false
	case isStore && !c.df.CanGetStoreID():
		c.stats.StallNoStoreID++
		return false
	case needCheckpoint && !c.df.CanSnapshot(),
		c.branchMask&c.broadcastMask != 0:
		c.stats.StallNoCheckpoint++
		return false
	}

	u := c.newUop(f)
	entry := issue.Entry[*Uop]{
		Payload:    u,
		Ordered:    inst.Ordered(),
		BranchMask: c.branchMask,
	}

	if inst.Rs1Valid {
		entry.Src0 = c.source(inst.Rs1)
	}
	if inst.Rs2Valid {
		entry.Src1 = c.source(inst.Rs2)
	}
	u.src0, u.src1 = entry.Src0, entry.Src1

	if needDst {
		tag, _ := c.df.GetDst(int(inst.Rd))
		u.hasDst = true
		u.dst = tag
		u.areg = int(inst.Rd)
	}

	if isStore {
		id, _ := c.df.GetStoreID()
		u.isStore = true
		u.storeID = id
		c.storeBuffer[id] = &bufferedStore{seq: u.Seq}
	}

	if needCheckpoint {
		id, _ := c.df.Snapshot()
		u.hasCheckpoint = true
		u.checkpoint = id
		c.branchMask |= uint64(1) << uint(id)
	}

	q.Add(entry)
	c.rob = append(c.rob, u)
	c.stats.Dispatched++
	c.invokeHook(HookPosDispatch, u)

	return true
}

func (c *Core) source(reg uint8) issue.Source {
	tag := c.df.GetSrc(int(reg))
	return issue.Source{Tag: tag, Valid: true, Ready: c.df.IsReady(tag)}
}

// syscall runs an ECALL against committed state. It only runs with an empty
// reorder buffer, so the handler sees every older store and register write.
func (c *Core) syscall(f frontend.Fetched) {
	u := c.newUop(f)

	r := c.syscallHandler.Handle(&archRegs{df: c.df})

	c.archPC = f.PC + 4
	c.stats.Instructions++
	c.invokeHook(HookPosRetire, u)

	if r.Exited {
		c.halt(r.ExitCode, nil)
	}
}

// archRegs exposes committed register state to a syscall handler. Writes go
// straight to the committed register.
type archRegs struct {
	df *dataflow.Manager
}

func (r *archRegs) ReadReg(reg uint8) uint64 {
	if reg == 0 || reg >= 32 {
		return 0
	}
	return r.df.ArchValue(int(reg))
}

func (r *archRegs) WriteReg(reg uint8, value uint64) {
	if reg == 0 || reg >= 32 {
		return
	}

	r.df.SetArchValue(int(reg), value)
}
