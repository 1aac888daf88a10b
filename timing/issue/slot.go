package issue

// Source describes one operand of a waiting instruction. A source that is
// not Valid is always satisfied.
type Source struct {
	Tag   int
	Valid bool
	Ready bool
}

func (s Source) satisfied() bool {
	return !s.Valid || s.Ready
}

func (s *Source) wakeup(tag int) {
	if s.Valid && s.Tag == tag {
		s.Ready = true
	}
}

// Entry is what dispatch hands to the queue.
type Entry[P any] struct {
	Src0    Source
	Src1    Source
	Payload P

	// Ordered entries never overtake an older entry and are never
	// overtaken.
	Ordered bool

	// BranchMask has one bit per unresolved checkpoint the entry depends on.
	BranchMask uint64
}

// KillNotice is the kill broadcast. A slot is killed when Force is set or
// its branch mask intersects KillMask; otherwise ClearMask bits are removed
// from its branch mask.
type KillNotice struct {
	Force     bool
	KillMask  uint64
	ClearMask uint64
}

func (k KillNotice) matches(branchMask uint64) bool {
	return k.Force || branchMask&k.KillMask != 0
}

// slot is one occupied position of the queue.
type slot[P any] struct {
	entry  Entry[P]
	issued bool
	killed bool
}

func (s *slot[P]) alive() bool {
	return !s.issued && !s.killed
}

func (s *slot[P]) applyKill(k KillNotice) {
	if k.matches(s.entry.BranchMask) {
		s.killed = true
		return
	}
	s.entry.BranchMask &^= k.ClearMask
}

func (s *slot[P]) wakeup(tags []int) {
	for _, tag := range tags {
		s.entry.Src0.wakeup(tag)
		s.entry.Src1.wakeup(tag)
	}
}

// ready reports whether both sources are available, counting the given
// same-cycle notifies.
func (s *slot[P]) ready(notified []int) bool {
	src0, src1 := s.entry.Src0, s.entry.Src1
	for _, tag := range notified {
		src0.wakeup(tag)
		src1.wakeup(tag)
	}
	return src0.satisfied() && src1.satisfied()
}
