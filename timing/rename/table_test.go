package rename_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rvooo/timing/rename"
)

var _ = Describe("Table", func() {
	const zeroTag = 15

	var table *rename.Table

	BeforeEach(func() {
		table = rename.NewTable(4, 2, zeroTag, []int{0, 0, 1, 2})
	})

	It("should always map register 0 to the zero tag", func() {
		Expect(table.Lookup(0)).To(Equal(zeroTag))

		table.Update(0, 7)
		Expect(table.Lookup(0)).To(Equal(zeroTag))

		table.Set([]int{3, 3, 3, 3})
		Expect(table.Lookup(0)).To(Equal(zeroTag))
	})

	It("should return the reset mapping", func() {
		Expect(table.Lookup(1)).To(Equal(0))
		Expect(table.Lookup(3)).To(Equal(2))
	})

	It("should overwrite a mapping on update", func() {
		table.Update(2, 9)
		Expect(table.Lookup(2)).To(Equal(9))
	})

	It("should restore a recorded snapshot", func() {
		table.Snapshot(1)
		before := table.Mapping()

		table.Update(1, 4)
		table.Update(3, 5)
		table.Restore(1)

		Expect(table.Mapping()).To(Equal(before))
	})

	It("should keep snapshots independent of later updates", func() {
		table.Snapshot(0)
		table.Update(1, 4)
		table.Snapshot(1)
		table.Update(1, 5)

		table.Restore(1)
		Expect(table.Lookup(1)).To(Equal(4))
		table.Restore(0)
		Expect(table.Lookup(1)).To(Equal(0))
	})

	It("should panic when restoring a snapshot that was never taken", func() {
		Expect(func() { table.Restore(0) }).To(Panic())
	})

	It("should panic on out-of-range registers", func() {
		Expect(func() { table.Lookup(4) }).To(Panic())
	})
})
