package recursor

import "github.com/coldtrove/poolscan/blkptr"

// Dnode is the parsed shape of one dnode: enough block pointers to
// recurse into its data, plus the indirect-block geometry the bookmark
// ordering predicate (scanbook.IsBefore) needs.
type Dnode struct {
	IndBlkShiftVal  int
	DataBlkSzSecVal uint64
	ObjectType      blkptr.Type

	BlkPtrs     []blkptr.BlockPointer
	SpillBlkPtr *blkptr.BlockPointer // non-nil only when SPILL_BLKPTR is set
}

func (d *Dnode) IndBlkShift() int     { return d.IndBlkShiftVal }
func (d *Dnode) DataBlkSzSec() uint64 { return d.DataBlkSzSecVal }

// Objset is the parsed shape of one object set block: its meta-dnode (the
// root of every object in the set, including the ones that describe
// further objects), the embedded intent log, and the optional user/group
// accounting block pointers.
type Objset struct {
	Type         blkptr.Type
	MetaDnode    *Dnode
	MetaDnodeBP  blkptr.BlockPointer
	ZIL          ZilHeader
	UserUsedBP   *blkptr.BlockPointer
	GroupUsedBP  *blkptr.BlockPointer
}

// ZilHeader is the parsed shape of an object set's intent log: every
// still-claimed block and the write records within it that have not yet
// been synced to their final resting place.
type ZilHeader struct {
	ClaimTxg uint64
	Blocks   []ZilBlock
}

type ZilBlock struct {
	BP      blkptr.BlockPointer
	Records []ZilRecord
}

// ZilRecord is one TX_WRITE log record's referenced block pointer, plus
// the bookkeeping visit_zil needs to decide whether it is still in scope.
type ZilRecord struct {
	BP       blkptr.BlockPointer
	Synced   bool
	ClaimTxg uint64
}
