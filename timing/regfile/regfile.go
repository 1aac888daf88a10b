// Package regfile provides the physical register file with same-cycle
// forwarding.
package regfile

import "fmt"

type pendingWrite struct {
	tag   int
	value uint64
}

// File holds a value and a ready bit per physical tag.
//
// Write is committed at the cycle boundary. Forward makes a value visible to
// readers of the same cycle without touching persistent storage; the
// forwarded overlay is dropped at the next Tick.
type File struct {
	zeroTag int

	values []uint64
	ready  []bool

	pending   []pendingWrite
	forwarded map[int]uint64

	forwardPorts      int
	forwardsThisCycle int
}

// New creates a file with numTags entries, all zero and ready. forwardPorts
// bounds the number of Forward calls per cycle.
func New(numTags, zeroTag, forwardPorts int) *File {
	if zeroTag < 0 || zeroTag >= numTags {
		panic("regfile: zero tag out of range")
	}

	f := &File{
		zeroTag:      zeroTag,
		values:       make([]uint64, numTags),
		ready:        make([]bool, numTags),
		forwarded:    make(map[int]uint64),
		forwardPorts: forwardPorts,
	}
	f.Reset()

	return f
}

// Reset zeroes every entry and marks it ready.
func (f *File) Reset() {
	for i := range f.values {
		f.values[i] = 0
		f.ready[i] = true
	}
	f.pending = f.pending[:0]
	f.forwarded = make(map[int]uint64)
	f.forwardsThisCycle = 0
}

// Write stores value into tag at the end of the cycle and marks it ready.
func (f *File) Write(tag int, value uint64) {
	f.checkTag(tag)
	if tag == f.zeroTag {
		return
	}
	f.pending = append(f.pending, pendingWrite{tag: tag, value: value})
}

// Forward exposes value for tag to readers in the current cycle.
func (f *File) Forward(tag int, value uint64) {
	f.checkTag(tag)
	if tag == f.zeroTag {
		return
	}
	if f.forwardsThisCycle >= f.forwardPorts {
		panic(fmt.Sprintf("regfile: more than %d forwards in one cycle", f.forwardPorts))
	}
	f.forwarded[tag] = value
	f.forwardsThisCycle++
}

// Read returns the value of tag, preferring a same-cycle forward.
func (f *File) Read(tag int) uint64 {
	f.checkTag(tag)
	if tag == f.zeroTag {
		return 0
	}
	if v, ok := f.forwarded[tag]; ok {
		return v
	}
	return f.values[tag]
}

// IsReady reports whether tag holds a produced value.
func (f *File) IsReady(tag int) bool {
	f.checkTag(tag)
	if tag == f.zeroTag {
		return true
	}
	if _, ok := f.forwarded[tag]; ok {
		return true
	}
	return f.ready[tag]
}

// MarkNotReady clears the ready bit of a freshly allocated tag. Writes and
// forwards of the tag's previous owner made earlier in the cycle are
// dropped.
func (f *File) MarkNotReady(tag int) {
	f.checkTag(tag)
	if tag == f.zeroTag {
		return
	}
	f.ready[tag] = false
	f.dropPending(tag)
	delete(f.forwarded, tag)
}

// Set stores value into tag immediately and marks it ready. It bypasses the
// cycle discipline and is meant for architectural state edits made while
// nothing is in flight.
func (f *File) Set(tag int, value uint64) {
	f.checkTag(tag)
	if tag == f.zeroTag {
		return
	}
	f.dropPending(tag)
	delete(f.forwarded, tag)
	f.values[tag] = value
	f.ready[tag] = true
}

func (f *File) dropPending(tag int) {
	kept := f.pending[:0]
	for _, w := range f.pending {
		if w.tag != tag {
			kept = append(kept, w)
		}
	}
	f.pending = kept
}

// Tick commits the cycle's writes and drops the forwarding overlay.
func (f *File) Tick() {
	for _, w := range f.pending {
		f.values[w.tag] = w.value
		f.ready[w.tag] = true
	}
	f.pending = f.pending[:0]

	if len(f.forwarded) > 0 {
		f.forwarded = make(map[int]uint64)
	}
	f.forwardsThisCycle = 0
}

func (f *File) checkTag(tag int) {
	if tag < 0 || tag >= len(f.values) {
		panic(fmt.Sprintf("regfile: tag %d out of range", tag))
	}
}
