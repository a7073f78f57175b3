package scancore

import (
	"context"

	"github.com/coldtrove/poolscan/blkptr"
	"github.com/coldtrove/poolscan/scanbook"
)

// ScanCallback is invoked by both the recursor (§4.3) and the DDT pre-pass
// (§4.6) for every block pointer actually in scope for the scan window.
// It is the seam where scrub/resilver-specific I/O issuance (iopipe) hangs
// off the otherwise domain-agnostic traversal.
type ScanCallback func(ctx context.Context, sc *Context, bp blkptr.BlockPointer, zb scanbook.Bookmark) error

// DDTClassContains reports whether a block pointer's checksum is covered
// by the DDT at or above maxClass — the recursor consults this after
// recursing into a block to decide whether the DDT pre-pass already
// scrubbed it (§4.3: "if the block is covered by the DDT... do not invoke
// the scan callback"). Defined here (not in package ddt) so the recursor
// can depend on it without importing ddt's concrete walk implementation.
type DDTClassContains func(bp blkptr.BlockPointer) (covered bool)
