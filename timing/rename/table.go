// Package rename provides the register rename table that maps architectural
// register names to physical register tags.
package rename

import "fmt"

// Table maps each architectural register to the physical tag holding its
// live value. Architectural register 0 always maps to the zero tag.
type Table struct {
	zeroTag int

	initial   []int
	mapping   []int
	snapshots [][]int
	recorded  []bool
}

// NewTable creates a table with numAregs entries and numSnapshots snapshot
// slots. initial gives the reset mapping; its entry for register 0 is ignored.
func NewTable(numAregs, numSnapshots, zeroTag int, initial []int) *Table {
	if len(initial) != numAregs {
		panic(fmt.Sprintf("rename: initial mapping has %d entries, want %d",
			len(initial), numAregs))
	}

	t := &Table{
		zeroTag:   zeroTag,
		initial:   append([]int(nil), initial...),
		mapping:   make([]int, numAregs),
		snapshots: make([][]int, numSnapshots),
		recorded:  make([]bool, numSnapshots),
	}
	for i := range t.snapshots {
		t.snapshots[i] = make([]int, numAregs)
	}
	t.Reset()

	return t
}

// Reset restores the construction-time mapping and forgets all snapshots.
func (t *Table) Reset() {
	copy(t.mapping, t.initial)
	t.mapping[0] = t.zeroTag
	for i := range t.recorded {
		t.recorded[i] = false
	}
}

// ZeroTag returns the tag that always reads as zero.
func (t *Table) ZeroTag() int {
	return t.zeroTag
}

// NumAregs returns the number of architectural registers.
func (t *Table) NumAregs() int {
	return len(t.mapping)
}

// Lookup returns the physical tag currently mapped to areg.
func (t *Table) Lookup(areg int) int {
	t.checkAreg(areg)
	if areg == 0 {
		return t.zeroTag
	}
	return t.mapping[areg]
}

// Update points areg at preg. Updates to register 0 are ignored.
func (t *Table) Update(areg, preg int) {
	t.checkAreg(areg)
	if areg == 0 {
		return
	}
	t.mapping[areg] = preg
}

// Snapshot records the full mapping under id.
func (t *Table) Snapshot(id int) {
	t.checkSnapshot(id)
	copy(t.snapshots[id], t.mapping)
	t.recorded[id] = true
}

// Restore replaces the live mapping with the one recorded under id.
func (t *Table) Restore(id int) {
	t.checkSnapshot(id)
	if !t.recorded[id] {
		panic(fmt.Sprintf("rename: restore of unrecorded snapshot %d", id))
	}
	copy(t.mapping, t.snapshots[id])
}

// Set overwrites the whole mapping. Register 0 stays on the zero tag.
func (t *Table) Set(mapping []int) {
	if len(mapping) != len(t.mapping) {
		panic(fmt.Sprintf("rename: set with %d entries, want %d",
			len(mapping), len(t.mapping)))
	}
	copy(t.mapping, mapping)
	t.mapping[0] = t.zeroTag
}

// Mapping returns a copy of the live mapping.
func (t *Table) Mapping() []int {
	return append([]int(nil), t.mapping...)
}

func (t *Table) checkAreg(areg int) {
	if areg < 0 || areg >= len(t.mapping) {
		panic(fmt.Sprintf("rename: areg %d out of range", areg))
	}
}

func (t *Table) checkSnapshot(id int) {
	if id < 0 || id >= len(t.snapshots) {
		panic(fmt.Sprintf("rename: snapshot id %d out of range", id))
	}
}
