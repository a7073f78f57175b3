package recursor

import (
	"context"

	"github.com/coldtrove/poolscan/blkptr"
)

// Source is the read-path collaborator the recursor depends on: parsed
// reads of the three structural block kinds it must look inside (objset,
// dnode block, indirect block), and a raw prefetch hook. Production code
// backs this with the ARC-equivalent read cache (iopipe.ReadCache) plus
// block-format parsing; tests back it with fixtures held in memory.
type Source interface {
	ReadObjset(ctx context.Context, bp blkptr.BlockPointer) (*Objset, error)
	ReadDnodeBlock(ctx context.Context, bp blkptr.BlockPointer) ([]*Dnode, error)
	// ReadIndirect returns the epb (entries-per-block) children of an
	// indirect block, in blkid order.
	ReadIndirect(ctx context.Context, bp blkptr.BlockPointer) ([]blkptr.BlockPointer, error)
	Prefetch(ctx context.Context, bp blkptr.BlockPointer)
}
