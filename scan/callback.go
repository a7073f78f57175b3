package scan

import (
	"context"
	"time"

	"github.com/coldtrove/poolscan/blkptr"
	"github.com/coldtrove/poolscan/internal/cos"
	"github.com/coldtrove/poolscan/internal/metrics"
	"github.com/coldtrove/poolscan/internal/mono"
	"github.com/coldtrove/poolscan/iopipe"
	"github.com/coldtrove/poolscan/scanbook"
	"github.com/coldtrove/poolscan/scancore"
)

// scanCallback is the default scan engine's scrub/resilver scan callback
// (spec.md §4.5): for scrub, every in-window block is read back and its
// checksum re-verified; for resilver, only copies on a device whose DTL
// covers the block's birth txg are read and rewritten. ZIL-reached blocks
// are issued SPECULATIVE: a checksum failure there is not counted, since
// the ZIL record may already be stale by the time it is checked.
//
// ScanCallback exports it for embedding programs that build their own
// recursor.Visitor and need to wire it in directly (package scan's own
// visit path uses the unexported scanCallback the same way).
func (c *Coordinator) ScanCallback(ctx context.Context, sc *scancore.Context, bp blkptr.BlockPointer, zb scanbook.Bookmark) error {
	return c.scanCallback(ctx, sc, bp, zb)
}

// scanCallback is the implementation ScanCallback exports.
func (c *Coordinator) scanCallback(ctx context.Context, sc *scancore.Context, bp blkptr.BlockPointer, zb scanbook.Bookmark) error {
	totalASize := uint64(0)
	for i := 0; i < bp.NumCopies; i++ {
		totalASize += bp.DVAs[i].ASize
	}
	sc.Phys.Examined += totalASize
	metrics.BlocksExamined.Inc()

	if c.cfg().NoScrubIO || c.ScrubIssuer == nil || c.rootIO == nil {
		return nil
	}

	needsIO := false
	switch sc.Phys.Func {
	case scancore.FuncScrub:
		needsIO = true
	case scancore.FuncResilver:
		for i := 0; i < bp.NumCopies; i++ {
			dva := bp.DVAs[i]
			if dva.Gang {
				needsIO = true
				continue
			}
			if vd, ok := c.Devices.Lookup(dva.VDev); ok && vd.DTLContains(bp.Birth) {
				needsIO = true
			}
		}
	}
	if !needsIO {
		return nil
	}

	speculative := zb.Level == scanbook.ZilLevel

	metrics.BlocksIssued.Inc()
	metrics.ScrubInflight.Inc()
	return c.ScrubIssuer.Issue(ctx, c.rootIO, bp, speculative, func(buf *iopipe.Buffer, err error, speculative bool) {
		defer metrics.ScrubInflight.Dec()
		if buf != nil {
			buf.Release()
		}
		sc.Phys.Processed += totalASize
		if err != nil && !speculative {
			sc.Phys.Errors++
			metrics.ScanErrors.Inc()
		}
	})
}

// freeCB is the deferred-free drain's per-entry callback (spec.md §4.7's
// free_cb): actually freeing the block is a device-layer concern out of
// scope for this module (spec.md §1); this only tracks the per-txg free
// budget and signals cos.ErrRestart once it is exhausted, so the caller
// stops draining for this txg without treating it as a failure.
func (c *Coordinator) freeCB(ctx context.Context, bp blkptr.BlockPointer) error {
	budget := time.Duration(c.cfg().FreeMinTimeMs) * time.Millisecond
	if mono.Elapsed(c.sc.SyncStartTime, budget) {
		return cos.ErrRestart
	}
	c.sc.FreeVisitedThisTxg++
	return nil
}
