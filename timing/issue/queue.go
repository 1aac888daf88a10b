// Package issue implements a compacting, oldest-first issue queue.
package issue

import (
	"fmt"

	"github.com/sarchlab/akita/v4/sim"
)

// Hook positions invoked by the Queue.
var (
	// HookPosIssue carries the issued payload as the hook detail.
	HookPosIssue = &sim.HookPos{Name: "Issue Queue Issue"}
	// HookPosKill carries the KillNotice and the number of slots it killed.
	HookPosKill = &sim.HookPos{Name: "Issue Queue Kill"}
)

// KillDetail is the hook detail attached to HookPosKill.
type KillDetail struct {
	Notice KillNotice
	Killed int
}

type phase int

const (
	phaseBroadcast phase = iota
	phaseSelect
	phaseInsert
)

func (p phase) String() string {
	switch p {
	case phaseBroadcast:
		return "broadcast"
	case phaseSelect:
		return "select"
	default:
		return "insert"
	}
}

// Queue holds waiting instructions in program order, oldest at index 0.
//
// A cycle runs in phases: Notify and Kill, then Peek and Remove, then
// CanAdd and Add, then Tick. Calling into an earlier phase after a later one
// panics. Tick drops issued and killed slots, compacts the survivors toward
// the head and appends the entry added this cycle.
type Queue[P any] struct {
	*sim.HookableBase

	cfg   Config
	slots []*slot[P]

	phase    phase
	notified []int
	kills    []KillNotice
	issued   bool
	incoming *slot[P]
}

// NewQueue creates an empty queue. It panics on an invalid configuration.
func NewQueue[P any](cfg Config) *Queue[P] {
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("issue: invalid config: %v", err))
	}

	return &Queue[P]{
		HookableBase: sim.NewHookableBase(),
		cfg:          cfg,
		slots:        make([]*slot[P], 0, cfg.NumSlots),
	}
}

// Config returns the configuration the queue was built with.
func (q *Queue[P]) Config() Config {
	return q.cfg
}

// Reset empties the queue and starts a new cycle.
func (q *Queue[P]) Reset() {
	q.slots = q.slots[:0]
	q.beginCycle()
}

func (q *Queue[P]) beginCycle() {
	q.phase = phaseBroadcast
	q.notified = q.notified[:0]
	q.kills = q.kills[:0]
	q.issued = false
	q.incoming = nil
}

func (q *Queue[P]) enter(p phase) {
	if p < q.phase {
		panic(fmt.Sprintf("issue: %s after %s in the same cycle", p, q.phase))
	}
	q.phase = p
}

// Len returns the number of occupied slots at the start of the cycle.
func (q *Queue[P]) Len() int {
	return len(q.slots)
}

// At returns the entry in slot i as of the start of the cycle.
func (q *Queue[P]) At(i int) Entry[P] {
	return q.slots[i].entry
}

// Notify broadcasts that tag has been produced.
func (q *Queue[P]) Notify(tag int) {
	q.enter(phaseBroadcast)
	if len(q.notified) >= q.cfg.NumNotify {
		panic(fmt.Sprintf("issue: more than %d notifies in one cycle", q.cfg.NumNotify))
	}
	q.notified = append(q.notified, tag)
}

// Kill broadcasts a kill notice. Matching slots cannot issue this cycle and
// are dropped at Tick.
func (q *Queue[P]) Kill(k KillNotice) {
	q.enter(phaseBroadcast)
	q.kills = append(q.kills, k)

	killed := 0
	for _, s := range q.slots {
		if s.killed {
			continue
		}
		s.applyKill(k)
		if s.killed {
			killed++
		}
	}

	if q.NumHooks() > 0 {
		q.InvokeHook(sim.HookCtx{
			Domain: q,
			Pos:    HookPosKill,
			Detail: KillDetail{Notice: k, Killed: killed},
		})
	}
}

func (q *Queue[P]) selectable() int {
	if q.issued {
		return -1
	}

	var wakeups []int
	if q.cfg.BypassReady {
		wakeups = q.notified
	}

	olderAlive := false
	olderOrdered := false
	for i, s := range q.slots {
		if !s.alive() {
			continue
		}

		blocked := olderOrdered || (s.entry.Ordered && olderAlive)
		if !blocked && s.ready(wakeups) {
			return i
		}

		olderAlive = true
		if s.entry.Ordered {
			olderOrdered = true
		}
	}

	return -1
}

// Peek returns the payload of the oldest entry that can issue this cycle.
func (q *Queue[P]) Peek() (P, bool) {
	q.enter(phaseSelect)

	i := q.selectable()
	if i < 0 {
		var zero P
		return zero, false
	}

	return q.slots[i].entry.Payload, true
}

// Remove issues the entry Peek returns. At most one entry issues per cycle.
func (q *Queue[P]) Remove() P {
	q.enter(phaseSelect)

	i := q.selectable()
	if i < 0 {
		panic("issue: remove without an issuable entry")
	}

	s := q.slots[i]
	s.issued = true
	q.issued = true

	if q.NumHooks() > 0 {
		q.InvokeHook(sim.HookCtx{
			Domain: q,
			Pos:    HookPosIssue,
			Detail: s.entry.Payload,
		})
	}

	return s.entry.Payload
}

func (q *Queue[P]) survivors() int {
	n := 0
	for _, s := range q.slots {
		if s.alive() {
			n++
		}
	}
	return n
}

// Inserted reports whether an entry has been added this cycle. The queue
// takes one insert per cycle.
func (q *Queue[P]) Inserted() bool {
	return q.incoming != nil
}

// CanAdd reports whether Add would succeed this cycle.
func (q *Queue[P]) CanAdd() bool {
	q.enter(phaseInsert)
	return q.incoming == nil && q.survivors() < q.cfg.NumSlots
}

// Add inserts e behind every surviving entry. Notifies and kills of the
// current cycle apply to it as well. It panics when CanAdd is false.
func (q *Queue[P]) Add(e Entry[P]) {
	if !q.CanAdd() {
		panic("issue: add to a full queue")
	}

	s := &slot[P]{entry: e}
	s.wakeup(q.notified)
	for _, k := range q.kills {
		s.applyKill(k)
	}

	q.incoming = s
}

// Tick applies the cycle's wakeups, drops issued and killed entries and
// compacts the queue.
func (q *Queue[P]) Tick() {
	kept := q.slots[:0]
	for _, s := range q.slots {
		if !s.alive() {
			continue
		}
		s.wakeup(q.notified)
		kept = append(kept, s)
	}

	for i := len(kept); i < len(q.slots); i++ {
		q.slots[i] = nil
	}
	q.slots = kept

	if q.incoming != nil && q.incoming.alive() {
		q.slots = append(q.slots, q.incoming)
	}

	q.beginCycle()
}
