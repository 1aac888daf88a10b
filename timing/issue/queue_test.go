package issue_test

import (
	"strconv"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/rvooo/timing/issue"
)

type recordingHook struct {
	details []interface{}
}

func (h *recordingHook) Func(ctx sim.HookCtx) {
	h.details = append(h.details, ctx.Detail)
}

func ready(name string) issue.Entry[string] {
	return issue.Entry[string]{Payload: name}
}

func waiting(name string, tag int) issue.Entry[string] {
	return issue.Entry[string]{
		Payload: name,
		Src0:    issue.Source{Tag: tag, Valid: true},
	}
}

func payloads(q *issue.Queue[string]) []string {
	out := make([]string, 0, q.Len())
	for i := 0; i < q.Len(); i++ {
		out = append(out, q.At(i).Payload)
	}
	return out
}

var _ = Describe("Queue", func() {
	var q *issue.Queue[string]

	fill := func(entries ...issue.Entry[string]) {
		for _, e := range entries {
			Expect(q.CanAdd()).To(BeTrue())
			q.Add(e)
			q.Tick()
		}
	}

	BeforeEach(func() {
		q = issue.NewQueue[string](issue.Config{NumSlots: 4, NumNotify: 2})
	})

	It("should reject an invalid configuration", func() {
		Expect(func() { issue.NewQueue[int](issue.Config{}) }).To(Panic())
	})

	It("should issue the oldest ready entry", func() {
		fill(waiting("a", 1), ready("b"), ready("c"))

		p, ok := q.Peek()
		Expect(ok).To(BeTrue())
		Expect(p).To(Equal("b"))
		Expect(q.Remove()).To(Equal("b"))

		_, ok = q.Peek()
		Expect(ok).To(BeFalse())

		q.Tick()
		Expect(payloads(q)).To(Equal([]string{"a", "c"}))
	})

	It("should wake a waiting entry on the cycle after the notify", func() {
		fill(waiting("a", 7))

		q.Notify(7)
		_, ok := q.Peek()
		Expect(ok).To(BeFalse())
		q.Tick()

		p, ok := q.Peek()
		Expect(ok).To(BeTrue())
		Expect(p).To(Equal("a"))
	})

	It("should wake on the same cycle when bypass is enabled", func() {
		q = issue.NewQueue[string](issue.Config{NumSlots: 4, NumNotify: 1, BypassReady: true})
		fill(waiting("a", 7))

		q.Notify(7)
		p, ok := q.Peek()
		Expect(ok).To(BeTrue())
		Expect(p).To(Equal("a"))
	})

	It("should wake an entry inserted in the cycle its producer notifies", func() {
		q.Notify(3)
		Expect(q.CanAdd()).To(BeTrue())
		q.Add(waiting("a", 3))
		q.Tick()

		Expect(q.At(0).Src0.Ready).To(BeTrue())
		p, ok := q.Peek()
		Expect(ok).To(BeTrue())
		Expect(p).To(Equal("a"))
	})

	It("should treat unused sources as ready", func() {
		e := issue.Entry[string]{
			Payload: "a",
			Src1:    issue.Source{Tag: 5},
		}
		fill(e)

		_, ok := q.Peek()
		Expect(ok).To(BeTrue())
	})

	It("should reject inserts when every slot survives", func() {
		fill(waiting("a", 1), waiting("b", 1), waiting("c", 1), waiting("d", 1))

		Expect(q.CanAdd()).To(BeFalse())
		Expect(func() { q.Add(ready("e")) }).To(Panic())
	})

	It("should accept an insert into a slot vacated this cycle", func() {
		fill(ready("a"), waiting("b", 1), waiting("c", 1), waiting("d", 1))

		Expect(q.Remove()).To(Equal("a"))
		Expect(q.CanAdd()).To(BeTrue())
		q.Add(ready("e"))
		q.Tick()

		Expect(payloads(q)).To(Equal([]string{"b", "c", "d", "e"}))
	})

	It("should accept a single insert per cycle", func() {
		Expect(q.Inserted()).To(BeFalse())
		Expect(q.CanAdd()).To(BeTrue())
		q.Add(ready("a"))
		Expect(q.Inserted()).To(BeTrue())
		Expect(q.CanAdd()).To(BeFalse())

		q.Tick()
		Expect(q.Inserted()).To(BeFalse())
		Expect(q.CanAdd()).To(BeTrue())
	})

	It("should tell a full queue from a used insert port", func() {
		fill(waiting("a", 1), waiting("b", 1), waiting("c", 1), waiting("d", 1))

		Expect(q.Inserted()).To(BeFalse())
		Expect(q.CanAdd()).To(BeFalse())
	})

	Describe("Kill", func() {
		It("should compact a ready survivor to the head", func() {
			e0 := waiting("first", 1)
			e0.BranchMask = 0b01
			e1 := waiting("second", 2)
			e1.BranchMask = 0b10
			e2 := waiting("third", 3)
			e3 := waiting("fourth", 4)
			fill(e0, e1, e2, e3)

			q.Notify(3)
			q.Kill(issue.KillNotice{KillMask: 0b11})
			q.Tick()

			Expect(q.Len()).To(Equal(2))
			Expect(q.At(0).Payload).To(Equal("third"))

			p, ok := q.Peek()
			Expect(ok).To(BeTrue())
			Expect(p).To(Equal("third"))
		})

		It("should not issue a killed entry in the cycle of the kill", func() {
			e := ready("a")
			e.BranchMask = 0b100
			fill(e)

			q.Kill(issue.KillNotice{KillMask: 0b100})
			_, ok := q.Peek()
			Expect(ok).To(BeFalse())
		})

		It("should clear resolved branch bits from survivors", func() {
			e := waiting("a", 1)
			e.BranchMask = 0b110
			fill(e)

			q.Kill(issue.KillNotice{ClearMask: 0b010})
			q.Tick()
			Expect(q.At(0).BranchMask).To(Equal(uint64(0b100)))
		})

		It("should kill everything on a forced kill", func() {
			fill(ready("a"), ready("b"))

			q.Kill(issue.KillNotice{Force: true})
			Expect(q.CanAdd()).To(BeTrue())
			q.Add(ready("c"))
			q.Tick()

			Expect(q.Len()).To(Equal(0))
		})

		It("should apply the kill to an entry inserted the same cycle", func() {
			e := ready("a")
			e.BranchMask = 0b1
			q.Kill(issue.KillNotice{KillMask: 0b1})
			q.Add(e)
			q.Tick()

			Expect(q.Len()).To(Equal(0))
		})
	})

	Describe("Ordered entries", func() {
		It("should not issue an ordered entry behind an older one", func() {
			o := ready("ordered")
			o.Ordered = true
			fill(waiting("older", 9), o)

			_, ok := q.Peek()
			Expect(ok).To(BeFalse())
		})

		It("should not let a younger entry overtake an ordered one", func() {
			o := waiting("ordered", 9)
			o.Ordered = true
			fill(o, ready("younger"))

			_, ok := q.Peek()
			Expect(ok).To(BeFalse())
		})

		It("should issue an ordered entry at the head", func() {
			o := ready("ordered")
			o.Ordered = true
			fill(o, ready("younger"))

			Expect(q.Remove()).To(Equal("ordered"))
			q.Tick()
			Expect(q.Remove()).To(Equal("younger"))
		})

		It("should never issue an ordered entry while an older one is present", func() {
			seed := uint32(11)
			next := func(n int) int {
				seed = seed*1664525 + 1013904223
				return int(seed>>8) % n
			}

			q = issue.NewQueue[string](issue.Config{NumSlots: 6, NumNotify: 2})
			id := 0
			var order []int
			issuedIDs := map[int]bool{}
			ordered := map[int]bool{}

			for cycle := 0; cycle < 300; cycle++ {
				q.Notify(next(4))

				if p, ok := q.Peek(); ok {
					q.Remove()
					n, _ := strconv.Atoi(p)
					if ordered[n] {
						for _, older := range order {
							if older >= n {
								break
							}
							Expect(issuedIDs[older]).To(BeTrue())
						}
					}
					issuedIDs[n] = true
				}

				if q.CanAdd() {
					e := issue.Entry[string]{
						Payload: strconv.Itoa(id),
						Src0:    issue.Source{Tag: next(4), Valid: next(2) == 0},
						Ordered: next(4) == 0,
					}
					ordered[id] = e.Ordered
					order = append(order, id)
					q.Add(e)
					id++
				}

				q.Tick()
			}

			Expect(len(issuedIDs)).To(BeNumerically(">", 20))
		})
	})

	Describe("Compaction", func() {
		It("should keep occupied slots contiguous in program order", func() {
			q = issue.NewQueue[string](issue.Config{NumSlots: 8, NumNotify: 2})

			seed := uint32(5)
			next := func(n int) int {
				seed = seed*1664525 + 1013904223
				return int(seed>>8) % n
			}

			id := 0
			for cycle := 0; cycle < 200; cycle++ {
				q.Notify(next(6))
				if next(5) == 0 {
					q.Kill(issue.KillNotice{KillMask: uint64(1) << uint(next(3))})
				}
				if _, ok := q.Peek(); ok {
					q.Remove()
				}
				if q.CanAdd() {
					q.Add(issue.Entry[string]{
						Payload:    strconv.Itoa(id),
						Src0:       issue.Source{Tag: next(6), Valid: true},
						BranchMask: uint64(next(8)),
					})
					id++
				}
				q.Tick()

				last := -1
				for i := 0; i < q.Len(); i++ {
					n, _ := strconv.Atoi(q.At(i).Payload)
					Expect(n).To(BeNumerically(">", last))
					last = n
				}
				Expect(q.Len()).To(BeNumerically("<=", 8))
			}
		})
	})

	Describe("Phases", func() {
		It("should panic on a notify after selection", func() {
			q.Peek()
			Expect(func() { q.Notify(1) }).To(Panic())
		})

		It("should panic on a remove after insertion", func() {
			fill(ready("a"))
			q.CanAdd()
			Expect(func() { q.Remove() }).To(Panic())
		})

		It("should panic on too many notifies", func() {
			q.Notify(1)
			q.Notify(2)
			Expect(func() { q.Notify(3) }).To(Panic())
		})

		It("should panic on a remove without a ready entry", func() {
			fill(waiting("a", 1))
			Expect(func() { q.Remove() }).To(Panic())
		})
	})

	Describe("Hooks", func() {
		It("should report issues and kills", func() {
			hook := &recordingHook{}
			q.AcceptHook(hook)

			e := ready("b")
			e.BranchMask = 1
			fill(ready("a"), e)

			q.Kill(issue.KillNotice{KillMask: 1})
			q.Remove()

			Expect(hook.details).To(Equal([]interface{}{
				issue.KillDetail{Notice: issue.KillNotice{KillMask: 1}, Killed: 1},
				"a",
			}))
		})
	})
})
