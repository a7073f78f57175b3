// Package blkptr defines the block pointer: the fundamental unit the scan
// engine's recursor walks. A block pointer addresses up to three physical
// copies (DVAs) of one logical block, carries its birth transaction group
// and checksum, and says what kind of block it addresses (object set,
// dnode block, plain data, ...).
package blkptr

import "github.com/coldtrove/poolscan/checksum"

// Type identifies what a block pointer's target block holds, driving the
// recursor's dispatch (dsl_scan_recurse's switch on BP_GET_TYPE).
type Type uint8

const (
	TypeObjset Type = iota
	TypeDNode
	TypeUserGroupUsed
	TypePlainData
	TypeIntentLog
	TypeDeadList
	TypeBPObj
	TypeSpillBlock
)

func (t Type) IsMetadata() bool {
	switch t {
	case TypeObjset, TypeDNode, TypeUserGroupUsed, TypeDeadList, TypeBPObj:
		return true
	default:
		return false
	}
}

// DVA (data virtual address) locates one physical copy of a block on a
// vdev.
type DVA struct {
	VDev   uint32
	Offset uint64
	ASize  uint64 // allocated size, rounded up to the device's sector size
	Gang   bool   // this copy is itself a gang block (indirection for fragmented allocations)
}

// MaxCopies is the maximum number of DVAs a block pointer can carry
// (SPA_DVAS_PER_BP in the original).
const MaxCopies = 3

// BlockPointer is the address plus metadata of one logical block.
type BlockPointer struct {
	DVAs     [MaxCopies]DVA
	NumCopies int // how many of DVAs are populated; 0 means a hole
	LSize    uint64 // logical size
	PSize    uint64 // physical (compressed) size
	Level    int    // indirection level; 0 is a leaf (L0)
	Type     Type
	Birth    uint64 // txg this block was written
	FillCount uint64 // number of non-hole children below this block
	ChecksumAlgo checksum.Algorithm
	Checksum     checksum.Digest
	Dedup    bool // this block's checksum is authoritative for DDT lookups
	Encrypted bool
}

// IsHole reports whether bp addresses no physical block (a sparse region).
func (bp BlockPointer) IsHole() bool {
	return bp.NumCopies == 0 && bp.Birth == 0
}

// IsEmbedded reports a block small enough to be stored directly in the
// pointer rather than allocated; the recursor treats it as a leaf with no
// I/O to issue.
func (bp BlockPointer) IsEmbedded() bool {
	return bp.NumCopies == 0 && bp.Birth != 0
}
