// Package scanbook implements the scan engine's resume bookmark and the
// ordering predicates that decide whether one bookmark is strictly before
// another in the canonical traversal order the recursor walks in. These
// predicates are pure functions of the bookmark values and a little dnode
// shape information, which is what makes this package the corpus's closest
// analogue to the teacher's fuse/fs cache_test.go Ginkgo style: small,
// stateless, entirely describable in terms of input/output examples.
package scanbook

// Special object ids a bookmark's Object field can hold, matching the
// original's DMU_META_DNODE_OBJECT / DMU_DEADLIST_OBJECT reserved values.
const (
	MetaDnodeObject uint64 = 0
	DeadlistObject  uint64 = 1<<64 - 1
	UserUsedObject  uint64 = 1<<63 + 1
	GroupUsedObject uint64 = 1<<63 + 2
)

// MetaObjset and DestroyedObjset are reserved ObjSet values a bookmark's
// ObjSet field can hold outside of naming a real dataset: MetaObjset
// marks "nothing visited yet, start from the pool's meta-object-set
// root"; DestroyedObjset marks "the dataset we were visiting is gone and
// has no successor, skip it on resume".
const (
	MetaObjset      uint64 = 0
	DestroyedObjset uint64 = 1<<64 - 2
)

// Sentinel Level values. Ordinary indirection levels are always >= 0;
// these negative values flag bookmarks the pause predicate and scan
// callback treat specially without needing an extra field.
const (
	RootLevel = -1 // <dsobj, ROOT, ROOT, ROOT> — visit_rootbp's entry bookmark
	ZilLevel  = -2 // a block pointer reached via intent-log traversal (visit_zil)
)

// RootObject/RootBlkID stand in for the ROOT sentinel a dataset's root
// block pointer is bookmarked with before any recursion has happened.
const (
	RootObject uint64 = ^uint64(0) - 10
	RootBlkID  uint64 = ^uint64(0) - 10
)

// IsAccountingObject reports whether obj is one of the reserved
// user/group-accounting object ids, which the pause predicate must never
// pause on (they are visited outside the normal L0-boundary protocol).
func IsAccountingObject(obj uint64) bool {
	return obj == UserUsedObject || obj == GroupUsedObject
}

// Shape constants controlling how a level/blkid pair translates to an
// absolute L0 block id, mirroring SPA_BLKPTRSHIFT / DNODE_BLOCK_SHIFT /
// DNODE_SHIFT / SPA_MINBLOCKSHIFT in the original.
const (
	BlkPtrShift     = 7  // log2(size of one block pointer), 128 bytes
	DNodeBlockShift = 14 // log2(size of one dnode block), 16KiB
	DNodeShift      = 9  // log2(size of one dnode), 512 bytes
	MinBlockShift   = 9  // log2(smallest allocatable block), 512 bytes
)

// DnodeShape supplies the one piece of per-object information the ordering
// predicate needs beyond the bookmarks themselves: how many block pointers
// fit in one indirect block of the object owning zb1, and (for the
// meta-dnode special case) how many sectors each dnode block occupies.
type DnodeShape interface {
	IndBlkShift() int   // log2(indirect block size)
	DataBlkSzSec() uint64 // data block size in sectors (meta-dnode object only)
}

// Bookmark identifies a position in the traversal: an object set, an
// object within it, an indirection level, and a block id at that level.
// The zero bookmark denotes "start of the objset" (IsZero below).
type Bookmark struct {
	ObjSet uint64
	Object uint64
	Level  int
	BlkID  uint64
}

// IsZero reports whether b is the canonical start-of-traversal bookmark.
func IsZero(b Bookmark) bool {
	return b.ObjSet == 0 && b.Object == 0 && b.Level == 0 && b.BlkID == 0
}

// thisObj returns the absolute object id a bookmark with Object==0 (the
// objset's own root, addressed by block id within the meta-dnode block)
// actually refers to, the zb2thisobj computation in the original.
func thisObj(b Bookmark) uint64 {
	if b.Object > 0 {
		return b.Object
	}
	return b.BlkID << (DNodeBlockShift - DNodeShift)
}

// IsBefore reports whether zb1 is strictly before zb2 in traversal order,
// given the dnode shape of the object zb1 belongs to. Both bookmarks must
// share the same ObjSet and zb2 must be an L0 bookmark (the predicate only
// ever compares a candidate resume point against an L0 leaf being visited,
// matching the original's ASSERTs in bookmark_is_before).
func IsBefore(dnp DnodeShape, zb1, zb2 Bookmark) bool {
	if zb2.Object == DeadlistObject {
		return true
	}
	if dnp == nil {
		return false
	}

	shift := zb1.Level * (dnp.IndBlkShift() - BlkPtrShift)
	zb1NextL0 := (zb1.BlkID + 1) << uint(shift)

	zb2ThisObj := thisObj(zb2)

	if zb1.Object == MetaDnodeObject {
		nextObj := zb1NextL0 * (dnp.DataBlkSzSec() << MinBlockShift) / (1 << DNodeShift)
		return nextObj <= zb2ThisObj
	}

	if zb1.Object < zb2ThisObj {
		return true
	}
	if zb1.Object > zb2ThisObj {
		return false
	}
	if zb2.Object == MetaDnodeObject {
		return false
	}
	return zb1NextL0 <= zb2.BlkID
}

// Equal reports bookmark equality.
func Equal(a, b Bookmark) bool {
	return a.ObjSet == b.ObjSet && a.Object == b.Object && a.Level == b.Level && a.BlkID == b.BlkID
}

// Compare orders two bookmarks within the same objset for queue/cursor
// iteration: objset, then object, then level (deeper first matches the
// original's preference for resuming at the most specific saved position),
// then blkid.
func Compare(a, b Bookmark) int {
	switch {
	case a.ObjSet != b.ObjSet:
		return cmpUint64(a.ObjSet, b.ObjSet)
	case a.Object != b.Object:
		return cmpUint64(a.Object, b.Object)
	case a.Level != b.Level:
		return cmpInt(a.Level, b.Level)
	default:
		return cmpUint64(a.BlkID, b.BlkID)
	}
}

func cmpUint64(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
