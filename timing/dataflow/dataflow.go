// Package dataflow composes the free lists, rename table and physical
// register file into the renaming, commit and rollback interface used by
// dispatch, writeback, commit and branch resolution.
package dataflow

import (
	"fmt"

	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/rvooo/timing/freelist"
	"github.com/sarchlab/rvooo/timing/regfile"
	"github.com/sarchlab/rvooo/timing/rename"
)

// Hook positions invoked by the Manager.
var (
	HookPosSnapshot = &sim.HookPos{Name: "Dataflow Snapshot"}
	HookPosRestore  = &sim.HookPos{Name: "Dataflow Restore"}
	HookPosRollback = &sim.HookPos{Name: "Dataflow Rollback"}
	HookPosCommit   = &sim.HookPos{Name: "Dataflow Commit"}
)

// CommitDetail is the hook detail attached to HookPosCommit.
type CommitDetail struct {
	Areg  int
	Tag   int
	Freed int
}

// Manager owns physical register allocation. Every effect of a cycle is
// committed by Tick.
type Manager struct {
	*sim.HookableBase

	cfg     Config
	zeroTag int

	checkpoints *freelist.FreeList
	freeRegs    *freelist.FreeList
	storeIDs    *freelist.FreeList

	renameTable *rename.Table
	regs        *regfile.File

	// archFile holds the last committed tag of each areg; archUsed marks
	// the tags it references.
	archFile []int
	archUsed freelist.Bitmask

	updated   []int
	forwarded []int
}

// NewManager builds a Manager in its reset state. It panics on an invalid
// configuration.
func NewManager(cfg Config) *Manager {
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("dataflow: invalid config: %v", err))
	}

	zeroTag := cfg.ZeroTag()
	numAllocatable := cfg.NumPregs - 1

	initial := make([]int, cfg.NumAregs)
	initial[0] = zeroTag
	for areg := 1; areg < cfg.NumAregs; areg++ {
		initial[areg] = areg - 1
	}

	m := &Manager{
		HookableBase: sim.NewHookableBase(),
		cfg:          cfg,
		zeroTag:      zeroTag,
		checkpoints: freelist.New(freelist.Config{
			Size:        cfg.MaxSpecDepth,
			AllocPorts:  1,
			FreePorts:   cfg.MaxSpecDepth,
			NumTrackers: cfg.MaxSpecDepth,
		}),
		freeRegs: freelist.New(freelist.Config{
			Size:        numAllocatable,
			AllocPorts:  cfg.NumDstPorts,
			FreePorts:   cfg.NumDstPorts,
			NumTrackers: cfg.MaxSpecDepth,
			UsedInitial: cfg.NumAregs - 1,
		}),
		storeIDs: freelist.New(freelist.Config{
			Size:        cfg.NumStoreIDs,
			AllocPorts:  cfg.NumDstPorts,
			FreePorts:   cfg.NumDstPorts,
			NumTrackers: cfg.MaxSpecDepth,
		}),
		renameTable: rename.NewTable(cfg.NumAregs, cfg.MaxSpecDepth, zeroTag, initial),
		regs:        regfile.New(cfg.NumPregs, zeroTag, cfg.NumForwardPorts),
	}
	m.resetArch()

	return m
}

func (m *Manager) resetArch() {
	m.archFile = make([]int, m.cfg.NumAregs)
	m.archFile[0] = m.zeroTag
	m.archUsed = freelist.NewBitmask(m.cfg.NumPregs - 1)
	for areg := 1; areg < m.cfg.NumAregs; areg++ {
		m.archFile[areg] = areg - 1
		m.archUsed.Set(areg - 1)
	}
}

// Reset returns every structure to its construction state.
func (m *Manager) Reset() {
	m.checkpoints.Reset()
	m.freeRegs.Reset()
	m.storeIDs.Reset()
	m.renameTable.Reset()
	m.regs.Reset()
	m.resetArch()
	m.updated = m.updated[:0]
	m.forwarded = m.forwarded[:0]
}

// Config returns the configuration the Manager was built with.
func (m *Manager) Config() Config {
	return m.cfg
}

// ZeroTag returns the reserved tag that always reads as zero.
func (m *Manager) ZeroTag() int {
	return m.zeroTag
}

// CanGetDst reports whether GetDst for a non-zero areg would succeed.
func (m *Manager) CanGetDst() bool {
	return m.freeRegs.CanAlloc()
}

// GetDst allocates a fresh tag for areg and points the rename table at it.
// Register 0 gets the zero tag without allocating. It returns false when no
// tag can be handed out this cycle.
func (m *Manager) GetDst(areg int) (int, bool) {
	if areg == 0 {
		return m.zeroTag, true
	}

	tag, ok := m.freeRegs.Alloc()
	if !ok {
		return 0, false
	}

	m.renameTable.Update(areg, tag)
	m.regs.MarkNotReady(tag)
	m.updated = without(m.updated, tag)
	m.forwarded = without(m.forwarded, tag)

	return tag, true
}

func without(tags []int, tag int) []int {
	kept := tags[:0]
	for _, t := range tags {
		if t != tag {
			kept = append(kept, t)
		}
	}
	return kept
}

// GetSrc returns the tag currently holding areg.
func (m *Manager) GetSrc(areg int) int {
	return m.renameTable.Lookup(areg)
}

// IsReady reports whether tag has been produced.
func (m *Manager) IsReady(tag int) bool {
	return m.regs.IsReady(tag)
}

// Read returns the value held by tag.
func (m *Manager) Read(tag int) uint64 {
	return m.regs.Read(tag)
}

// Write stores a produced value. It becomes visible next cycle and is
// reported by GetUpdated.
func (m *Manager) Write(tag int, value uint64) {
	if tag == m.zeroTag {
		return
	}
	m.regs.Write(tag, value)
	m.updated = append(m.updated, tag)
}

// Forward exposes a produced value to readers of the current cycle.
func (m *Manager) Forward(tag int, value uint64) {
	if tag == m.zeroTag {
		return
	}
	m.regs.Forward(tag, value)
	m.forwarded = append(m.forwarded, tag)
}

// GetUpdated drains the tags written or forwarded this cycle, each reported
// once, writes first. Tags not drained by the end of the cycle are dropped
// at Tick.
func (m *Manager) GetUpdated() []int {
	out := make([]int, 0, len(m.updated)+len(m.forwarded))
	seen := make(map[int]bool, cap(out))

	for _, list := range [][]int{m.updated, m.forwarded} {
		for _, tag := range list {
			if !seen[tag] {
				seen[tag] = true
				out = append(out, tag)
			}
		}
	}

	m.updated = m.updated[:0]
	m.forwarded = m.forwarded[:0]

	return out
}

// Commit retires the producer of tag for areg. The tag previously committed
// for areg is freed.
func (m *Manager) Commit(tag, areg int) {
	if tag == m.zeroTag {
		return
	}
	if areg <= 0 || areg >= m.cfg.NumAregs {
		panic(fmt.Sprintf("dataflow: commit of tag %d to invalid areg %d", tag, areg))
	}

	old := m.archFile[areg]
	if old != m.zeroTag {
		m.freeRegs.Free(old)
		m.archUsed.Clear(old)
	}
	m.archFile[areg] = tag
	m.archUsed.Set(tag)

	if m.NumHooks() > 0 {
		m.InvokeHook(sim.HookCtx{
			Domain: m,
			Pos:    HookPosCommit,
			Detail: CommitDetail{Areg: areg, Tag: tag, Freed: old},
		})
	}
}

// SetArchValue overwrites the committed value of areg in place, without
// renaming. It is only valid while no instruction is in flight, so the
// rename table and the committed state agree.
func (m *Manager) SetArchValue(areg int, value uint64) {
	if areg == 0 {
		return
	}
	if areg < 0 || areg >= m.cfg.NumAregs {
		panic(fmt.Sprintf("dataflow: write to invalid areg %d", areg))
	}
	m.regs.Set(m.archFile[areg], value)
}

// CommittedTag returns the tag last committed for areg.
func (m *Manager) CommittedTag(areg int) int {
	if areg == 0 {
		return m.zeroTag
	}
	return m.archFile[areg]
}

// ArchValue returns the committed value of areg.
func (m *Manager) ArchValue(areg int) uint64 {
	return m.regs.Read(m.CommittedTag(areg))
}

// FreeRegCount returns the number of unallocated tags.
func (m *Manager) FreeRegCount() int {
	return m.freeRegs.FreeCount()
}

// FreeRegState returns the register free set (bit set = free).
func (m *Manager) FreeRegState() freelist.Bitmask {
	return m.freeRegs.State()
}

// RenameMapping returns a copy of the live rename table.
func (m *Manager) RenameMapping() []int {
	return m.renameTable.Mapping()
}

// CanGetStoreID reports whether GetStoreID would succeed.
func (m *Manager) CanGetStoreID() bool {
	return m.storeIDs.CanAlloc()
}

// GetStoreID allocates a store-buffer id.
func (m *Manager) GetStoreID() (int, bool) {
	return m.storeIDs.Alloc()
}

// FreeStoreID releases a store-buffer id.
func (m *Manager) FreeStoreID(id int) {
	m.storeIDs.Free(id)
}

// ValidStoreMask returns the set of allocated store-buffer ids.
func (m *Manager) ValidStoreMask() freelist.Bitmask {
	return m.storeIDs.State().Not()
}

// CanSnapshot reports whether a checkpoint can be taken this cycle.
func (m *Manager) CanSnapshot() bool {
	return m.checkpoints.CanAlloc()
}

// Snapshot opens a checkpoint over the current allocation state and rename
// table. It returns false when the speculation depth is exhausted.
func (m *Manager) Snapshot() (int, bool) {
	id, ok := m.checkpoints.Alloc()
	if !ok {
		return 0, false
	}

	m.checkpoints.ResetAllocTracking(id)
	m.freeRegs.ResetAllocTracking(id)
	m.storeIDs.ResetAllocTracking(id)
	m.renameTable.Snapshot(id)

	m.invokeCheckpointHook(HookPosSnapshot, id)

	return id, true
}

// IsValidSnapshot reports whether id can still be restored.
func (m *Manager) IsValidSnapshot(id int) bool {
	return m.checkpoints.IsAllocated(id)
}

// Restore discards every allocation made after checkpoint id was taken,
// including the ones made under later checkpoints, which become invalid.
// The checkpoint itself stays valid until FreeSnapshot.
func (m *Manager) Restore(id int) {
	if !m.IsValidSnapshot(id) {
		panic(fmt.Sprintf("dataflow: restore of unknown checkpoint %d", id))
	}

	m.checkpoints.RevertAllocs(id)
	m.freeRegs.RevertAllocs(id)
	m.storeIDs.RevertAllocs(id)
	m.renameTable.Restore(id)

	m.invokeCheckpointHook(HookPosRestore, id)
}

// FreeSnapshot releases checkpoint id.
func (m *Manager) FreeSnapshot(id int) {
	if !m.IsValidSnapshot(id) {
		panic(fmt.Sprintf("dataflow: free of unknown checkpoint %d", id))
	}
	m.checkpoints.Free(id)
}

// Rollback returns the rename state to the last committed state. Every
// tag not architecturally live is freed and all checkpoints are dropped.
func (m *Manager) Rollback() {
	m.checkpoints.Set(freelist.FullBitmask(m.cfg.MaxSpecDepth))
	m.freeRegs.Set(m.archUsed.Not())
	m.storeIDs.Set(freelist.FullBitmask(m.cfg.NumStoreIDs))
	m.renameTable.Set(m.archFile)
	m.updated = m.updated[:0]
	m.forwarded = m.forwarded[:0]

	m.invokeCheckpointHook(HookPosRollback, -1)
}

func (m *Manager) invokeCheckpointHook(pos *sim.HookPos, id int) {
	if m.NumHooks() == 0 {
		return
	}
	m.InvokeHook(sim.HookCtx{
		Domain: m,
		Pos:    pos,
		Detail: id,
	})
}

// Tick commits the cycle: writes become visible, forwards expire, undrained
// updates are dropped and every port reopens.
func (m *Manager) Tick() {
	m.checkpoints.Tick()
	m.freeRegs.Tick()
	m.storeIDs.Tick()
	m.regs.Tick()
	m.updated = m.updated[:0]
	m.forwarded = m.forwarded[:0]
}
