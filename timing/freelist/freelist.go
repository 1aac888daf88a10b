// Package freelist provides an indexed free list with bounded per-cycle
// ports and speculative allocation tracking.
//
// Allocations are tracked by epoch. Opening tracking under an id starts a new
// epoch; every allocation records the epoch active when it was made.
// Reverting an id frees every index whose allocation epoch is not older than
// the epoch in which that id was opened, which also undoes allocations made
// under ids opened later.
package freelist

import "fmt"

// Config describes the shape of a FreeList.
type Config struct {
	// Size is the number of indices managed, [0, Size).
	Size int
	// AllocPorts is the maximum number of allocations per cycle.
	AllocPorts int
	// FreePorts is the maximum number of frees per cycle.
	FreePorts int
	// NumTrackers is the number of tracking ids, [0, NumTrackers).
	NumTrackers int
	// UsedInitial marks indices [0, UsedInitial) as allocated at reset.
	UsedInitial int
}

// FreeList hands out indices lowest-first from a fixed pool.
//
// Within a cycle every release (Free, RevertAllocs, Set) comes before the
// first CanAlloc or Alloc, so released indices are visible to that cycle's
// allocations. Releasing after an allocation request in the same cycle
// panics.
type FreeList struct {
	cfg Config

	free       Bitmask
	allocEpoch []uint64

	epoch    uint64
	openedAt []uint64
	tracking []bool

	allocsThisCycle int
	freesThisCycle  int

	// allocating is set by the first CanAlloc or Alloc of the cycle.
	allocating bool
}

func (f *FreeList) checkRelease(op string) {
	if f.allocating {
		panic(fmt.Sprintf("freelist: %s after alloc in the same cycle", op))
	}
}

// New creates a FreeList in its reset state.
func New(cfg Config) *FreeList {
	if cfg.Size <= 0 {
		panic("freelist: size must be > 0")
	}
	if cfg.UsedInitial < 0 || cfg.UsedInitial > cfg.Size {
		panic("freelist: initial used count out of range")
	}
	if cfg.AllocPorts <= 0 || cfg.FreePorts <= 0 {
		panic("freelist: port counts must be > 0")
	}

	f := &FreeList{
		cfg:        cfg,
		allocEpoch: make([]uint64, cfg.Size),
		openedAt:   make([]uint64, cfg.NumTrackers),
		tracking:   make([]bool, cfg.NumTrackers),
	}
	f.Reset()

	return f
}

// Reset returns the list to its construction state.
func (f *FreeList) Reset() {
	f.free = FullBitmask(f.cfg.Size)
	for i := 0; i < f.cfg.UsedInitial; i++ {
		f.free.Clear(i)
	}
	for i := range f.allocEpoch {
		f.allocEpoch[i] = 0
	}
	for i := range f.tracking {
		f.tracking[i] = false
		f.openedAt[i] = 0
	}
	f.epoch = 0
	f.allocsThisCycle = 0
	f.freesThisCycle = 0
	f.allocating = false
}

// Size returns the number of managed indices.
func (f *FreeList) Size() int {
	return f.cfg.Size
}

// CanAlloc reports whether Alloc would succeed this cycle.
func (f *FreeList) CanAlloc() bool {
	f.allocating = true
	if f.allocsThisCycle >= f.cfg.AllocPorts {
		return false
	}
	_, ok := f.free.Lowest()
	return ok
}

// Alloc takes the lowest free index. It returns false when the pool is
// empty or every alloc port has been used this cycle.
func (f *FreeList) Alloc() (int, bool) {
	f.allocating = true
	if f.allocsThisCycle >= f.cfg.AllocPorts {
		return 0, false
	}

	idx, ok := f.free.Lowest()
	if !ok {
		return 0, false
	}

	f.free.Clear(idx)
	f.allocEpoch[idx] = f.epoch
	f.allocsThisCycle++

	return idx, true
}

// Free returns idx to the pool. The index is available to allocations made
// later in the same cycle. Freeing an index that is not allocated, exceeding
// the free ports or freeing after an allocation request of the same cycle panics.
func (f *FreeList) Free(idx int) {
	if idx < 0 || idx >= f.cfg.Size {
		panic(fmt.Sprintf("freelist: free of out-of-range index %d", idx))
	}
	if f.free.Test(idx) {
		panic(fmt.Sprintf("freelist: free of unallocated index %d", idx))
	}
	if f.freesThisCycle >= f.cfg.FreePorts {
		panic(fmt.Sprintf("freelist: more than %d frees in one cycle", f.cfg.FreePorts))
	}
	f.checkRelease("free")

	f.free.Set(idx)
	f.freesThisCycle++
}

// IsAllocated reports whether idx is currently handed out.
func (f *FreeList) IsAllocated(idx int) bool {
	if idx < 0 || idx >= f.cfg.Size {
		return false
	}
	return !f.free.Test(idx)
}

// ResetAllocTracking starts recording allocations under id.
func (f *FreeList) ResetAllocTracking(id int) {
	f.checkTracker(id)

	f.epoch++
	f.openedAt[id] = f.epoch
	f.tracking[id] = true
}

// IsTracking reports whether id has open tracking.
func (f *FreeList) IsTracking(id int) bool {
	if id < 0 || id >= len(f.tracking) {
		return false
	}
	return f.tracking[id]
}

// RevertAllocs frees every index allocated since id was opened, including
// allocations made under ids opened after it. Those later ids are closed.
func (f *FreeList) RevertAllocs(id int) {
	f.checkTracker(id)
	if !f.tracking[id] {
		panic(fmt.Sprintf("freelist: revert of unopened tracker %d", id))
	}
	f.checkRelease("revert")

	since := f.openedAt[id]
	for idx := 0; idx < f.cfg.Size; idx++ {
		if !f.free.Test(idx) && f.allocEpoch[idx] >= since {
			f.free.Set(idx)
		}
	}

	for other := range f.tracking {
		if other != id && f.tracking[other] && f.openedAt[other] > since {
			f.tracking[other] = false
		}
	}
}

func (f *FreeList) checkTracker(id int) {
	if id < 0 || id >= len(f.tracking) {
		panic(fmt.Sprintf("freelist: tracker id %d out of range", id))
	}
}

// Set overwrites the free set with mask (bit set = free) and drops all
// allocation tracking.
func (f *FreeList) Set(mask Bitmask) {
	if mask.Len() != f.cfg.Size {
		panic(fmt.Sprintf("freelist: set with mask of width %d, want %d",
			mask.Len(), f.cfg.Size))
	}
	f.checkRelease("set")

	f.free = mask.Clone()
	for i := range f.tracking {
		f.tracking[i] = false
	}
}

// State returns a copy of the free set (bit set = free).
func (f *FreeList) State() Bitmask {
	return f.free.Clone()
}

// FreeCount returns the number of free indices.
func (f *FreeList) FreeCount() int {
	return f.free.Count()
}

// Tick ends the current cycle and reopens every port.
func (f *FreeList) Tick() {
	f.allocsThisCycle = 0
	f.freesThisCycle = 0
	f.allocating = false
}
