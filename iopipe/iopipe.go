// Package iopipe models the read cache and I/O pipeline collaborators
// spec.md §6 assumes exist (arc_read, zio_root/zio_read/zio_free_sync/
// zio_nowait/zio_wait), plus the scrub fan-out admission control spec.md
// §5 describes as a counter+condvar pair. We replace the mutex+condvar
// with golang.org/x/sync/semaphore (cleaner under Go's goroutine model)
// and use golang.org/x/sync/errgroup to aggregate one txg's fanned-out
// I/O, matching the root I/O handle's "wait for completion" contract.
package iopipe

import (
	"context"
	"sync/atomic"

	"github.com/valyala/bytebufferpool"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/coldtrove/poolscan/blkptr"
	"github.com/coldtrove/poolscan/internal/cos"
)

// Buffer is a pooled read buffer, released back to bytebufferpool when
// the recursor is done with the block it backs (bp.IsHole/visit_bp's
// "release the returned buffer" step).
type Buffer struct {
	bb *bytebufferpool.ByteBuffer
}

func (b *Buffer) Bytes() []byte { return b.bb.B }

func (b *Buffer) Release() {
	if b.bb != nil {
		bytebufferpool.Put(b.bb)
		b.bb = nil
	}
}

var pool bytebufferpool.Pool

// NewBuffer allocates (or reuses from the pool) a buffer of size bytes,
// for ReadCache implementations to fill in and return from Read.
func NewBuffer(size int) *Buffer {
	bb := pool.Get()
	if cap(bb.B) < size {
		bb.B = make([]byte, size)
	} else {
		bb.B = bb.B[:size]
	}
	return &Buffer{bb: bb}
}

// ReadFunc fetches the block bp addresses, the arc_read stand-in. Errors
// here are the "I/O failure on traversal" error kind (spec.md §7): the
// caller counts it and skips the subtree, it never aborts the scan.
type ReadFunc func(ctx context.Context, bp blkptr.BlockPointer) (*Buffer, error)

// PrefetchFunc issues a fire-and-forget speculative read (NOWAIT+PREFETCH).
type PrefetchFunc func(ctx context.Context, bp blkptr.BlockPointer)

// ReadCache is the read-path collaborator the recursor depends on.
type ReadCache struct {
	Read     ReadFunc
	Prefetch PrefetchFunc
}

// RootIO aggregates one txg's fanned-out asynchronous I/O (zio_root +
// zio_nowait + zio_wait collapsed into an errgroup), with CanFail
// distinguishing the deferred-free drain's MUST_SUCCEED root from the
// traversal's CAN_FAIL root (spec.md §4.1 steps 4 and 6).
type RootIO struct {
	g       *errgroup.Group
	ctx     context.Context
	CanFail bool
}

// NewRootIO opens a root I/O handle bound to ctx.
func NewRootIO(ctx context.Context, canFail bool) *RootIO {
	g, gctx := errgroup.WithContext(ctx)
	return &RootIO{g: g, ctx: gctx, CanFail: canFail}
}

// Context returns the handle's derived context, canceled if any
// non-CanFail operation fails.
func (r *RootIO) Context() context.Context { return r.ctx }

// Go issues fn asynchronously under this root handle (zio_nowait).
func (r *RootIO) Go(fn func() error) {
	r.g.Go(fn)
}

// Wait blocks until every issued operation completes (zio_wait). When
// CanFail is false, the first error is must-succeed and is returned;
// when true, callers are expected to have already funneled per-block
// errors into the scan's error counter instead of returning them here.
func (r *RootIO) Wait() error {
	if err := r.g.Wait(); err != nil {
		if !r.CanFail {
			return cos.IOErrorf("iopipe: must-succeed root io: %v", err)
		}
	}
	return nil
}

// ScrubIssuer bounds concurrent scrub reads to ScrubMaxInflight, the
// semaphore.Weighted replacement for scrub_maxinflight's mutex+condvar.
type ScrubIssuer struct {
	sem      *semaphore.Weighted
	inflight int64
	read     ReadFunc
}

func NewScrubIssuer(maxInflight int, read ReadFunc) *ScrubIssuer {
	return &ScrubIssuer{sem: semaphore.NewWeighted(int64(maxInflight)), read: read}
}

func (s *ScrubIssuer) Inflight() int64 { return atomic.LoadInt64(&s.inflight) }

// Issue admits one scrub read under the semaphore, blocking (scrub_io_cv's
// role) until a slot is free or ctx is done, then reads bp and hands the
// buffer plus any error to done. done runs after the read completes,
// mirroring scrub_done's responsibilities (decrement inflight, count
// non-speculative errors, release the buffer).
func (s *ScrubIssuer) Issue(ctx context.Context, root *RootIO, bp blkptr.BlockPointer, speculative bool, done func(buf *Buffer, err error, speculative bool)) error {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return cos.IOErrorf("iopipe: scrub admission: %v", err)
	}
	atomic.AddInt64(&s.inflight, 1)
	root.Go(func() error {
		defer s.sem.Release(1)
		defer atomic.AddInt64(&s.inflight, -1)

		buf, err := s.read(ctx, bp)
		done(buf, err, speculative)
		return nil // scrub read failures never abort the root handle
	})
	return nil
}
