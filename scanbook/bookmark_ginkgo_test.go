package scanbook_test

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/ginkgo/extensions/table"
	. "github.com/onsi/gomega"

	. "github.com/coldtrove/poolscan/scanbook"
)

type fakeDnode struct {
	indBlkShift  int
	dataBlkSzSec uint64
}

func (d fakeDnode) IndBlkShift() int     { return d.indBlkShift }
func (d fakeDnode) DataBlkSzSec() uint64 { return d.dataBlkSzSec }

var _ = Describe("Bookmark", func() {
	Describe("IsZero", func() {
		It("reports true for the start-of-traversal bookmark", func() {
			Expect(IsZero(Bookmark{})).To(BeTrue())
		})

		It("reports false once any field is non-zero", func() {
			Expect(IsZero(Bookmark{Object: 1})).To(BeFalse())
		})
	})

	Describe("Equal", func() {
		It("compares every field", func() {
			a := Bookmark{ObjSet: 1, Object: 2, Level: 3, BlkID: 4}
			b := a
			Expect(Equal(a, b)).To(BeTrue())
			b.BlkID++
			Expect(Equal(a, b)).To(BeFalse())
		})
	})

	Describe("IsBefore", func() {
		dn := fakeDnode{indBlkShift: 17, dataBlkSzSec: 2} // 128 block pointers/indirect

		It("always reports deadlist object bookmarks as before", func() {
			zb1 := Bookmark{Object: 5, Level: 0, BlkID: 0}
			zb2 := Bookmark{Object: DeadlistObject, Level: 0, BlkID: 0}
			Expect(IsBefore(dn, zb1, zb2)).To(BeTrue())
		})

		It("orders by object when objects differ", func() {
			zb1 := Bookmark{Object: 3, Level: 0, BlkID: 0}
			zb2 := Bookmark{Object: 5, Level: 0, BlkID: 0}
			Expect(IsBefore(dn, zb1, zb2)).To(BeTrue())
			Expect(IsBefore(dn, zb2, zb1)).To(BeFalse())
		})

		DescribeTable("orders by next-L0 block id within the same object",
			func(zb1BlkID, zb2BlkID uint64, level int, want bool) {
				zb1 := Bookmark{Object: 5, Level: level, BlkID: zb1BlkID}
				zb2 := Bookmark{Object: 5, Level: 0, BlkID: zb2BlkID}
				Expect(IsBefore(dn, zb1, zb2)).To(Equal(want))
			},
			Entry("L0 strictly before", uint64(2), uint64(3), 0, true),
			Entry("L0 at the same block is not strictly before", uint64(3), uint64(3), 0, false),
			Entry("L0 strictly after", uint64(4), uint64(3), 0, false),
		)

		It("treats the meta-dnode object specially, deriving the next dnode's object id", func() {
			dn := fakeDnode{indBlkShift: 17, dataBlkSzSec: 2}
			zb1 := Bookmark{Object: MetaDnodeObject, Level: 0, BlkID: 0}
			zb2 := Bookmark{Object: 10, Level: 0, BlkID: 0}
			// next_l0 = 1, nextObj = 1 * (2<<9) / (1<<9) = 2, which is <= 10.
			Expect(IsBefore(dn, zb1, zb2)).To(BeTrue())
		})
	})

	Describe("Compare", func() {
		It("orders objset, then object, then level, then blkid", func() {
			a := Bookmark{ObjSet: 1, Object: 1, Level: 1, BlkID: 1}
			b := Bookmark{ObjSet: 1, Object: 1, Level: 1, BlkID: 2}
			Expect(Compare(a, b)).To(Equal(-1))
			Expect(Compare(b, a)).To(Equal(1))
			Expect(Compare(a, a)).To(Equal(0))
		})
	})

	Describe("IsAccountingObject", func() {
		It("recognizes the reserved user/group-used object ids", func() {
			Expect(IsAccountingObject(UserUsedObject)).To(BeTrue())
			Expect(IsAccountingObject(GroupUsedObject)).To(BeTrue())
			Expect(IsAccountingObject(42)).To(BeFalse())
		})
	})
})
