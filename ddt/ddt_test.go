package ddt

import (
	"context"
	"testing"
	"time"

	"github.com/coldtrove/poolscan/blkptr"
	"github.com/coldtrove/poolscan/checksum"
	"github.com/coldtrove/poolscan/scanbook"
	"github.com/coldtrove/poolscan/scancore"
)

func neverPauseEnv() scancore.PauseEnv {
	return scancore.PauseEnv{
		TxgTimeout: time.Hour,
		MinTime:    time.Hour,
	}
}

func digest(b byte) checksum.Digest {
	var d checksum.Digest
	d[0] = b
	return d
}

func TestVisitScrubsEachEntryOnce(t *testing.T) {
	idx := NewMemIndex()
	idx.Put(Entry{
		Checksum:     digest(1),
		ChecksumType: checksum.XXHash,
		RefCount:     2,
		NumCopies:    1,
		Copies:       [blkptr.MaxCopies]PhysCopy{{Birth: 5}},
	})
	idx.Put(Entry{
		Checksum:     digest(2),
		ChecksumType: checksum.XXHash,
		RefCount:     1,
		NumCopies:    1,
		Copies:       [blkptr.MaxCopies]PhysCopy{{Birth: 6}},
	})

	fast := NewFastIndex(idx, ClassUnique)

	sc := &scancore.Context{Phys: &scancore.Phys{CurMinTxg: 0, CurMaxTxg: 100}}
	var visited []checksum.Digest
	cb := func(_ context.Context, _ *scancore.Context, bp blkptr.BlockPointer, _ scanbook.Bookmark) error {
		visited = append(visited, bp.Checksum)
		return nil
	}

	env := neverPauseEnv()
	paused, err := Visit(context.Background(), sc, fast, int(ClassUnique), cb, env)
	if err != nil {
		t.Fatalf("Visit: %v", err)
	}
	if paused {
		t.Fatalf("expected Visit to complete without pausing")
	}
	if len(visited) != 2 {
		t.Fatalf("expected 2 scan callback invocations, got %d", len(visited))
	}
	if sc.Phys.DDTBookmark.Class <= int(ClassUnique) {
		t.Fatalf("expected DDT bookmark class past ddtClassMax on completion, got %d", sc.Phys.DDTBookmark.Class)
	}
}

func TestFastIndexContainsAfterVisit(t *testing.T) {
	idx := NewMemIndex()
	d := digest(7)
	idx.Put(Entry{
		Checksum:     d,
		ChecksumType: checksum.XXHash,
		RefCount:     3,
		NumCopies:    1,
		Copies:       [blkptr.MaxCopies]PhysCopy{{Birth: 1}},
	})
	fast := NewFastIndex(idx, ClassUnique)

	bp := blkptr.BlockPointer{ChecksumAlgo: checksum.XXHash, Checksum: d, Dedup: true}
	if fast.Contains(bp) {
		t.Fatalf("expected entry not yet covered before Visit runs")
	}

	sc := &scancore.Context{Phys: &scancore.Phys{CurMinTxg: 0, CurMaxTxg: 10}}
	cb := func(context.Context, *scancore.Context, blkptr.BlockPointer, scanbook.Bookmark) error { return nil }
	if _, err := Visit(context.Background(), sc, fast, int(ClassUnique), cb, neverPauseEnv()); err != nil {
		t.Fatalf("Visit: %v", err)
	}

	if !fast.Contains(bp) {
		t.Fatalf("expected entry covered after Visit marks it")
	}
}

// TestDDTEntryScrubsRefclassRiseMidScan covers the "dedup refclass rise
// mid-scan" scenario: a block that was unique when the pre-pass visited
// it (and so was left for the ordinary tree walk) gains a second live
// reference after the pre-pass has already moved past its class bucket.
// DDTEntry must scrub it immediately rather than leave it stranded.
func TestDDTEntryScrubsRefclassRiseMidScan(t *testing.T) {
	idx := NewMemIndex()
	d := digest(9)
	idx.Put(Entry{
		Checksum:     d,
		ChecksumType: checksum.XXHash,
		RefCount:     1, // unique: outside ClassDuplicate's scope until bumped
		NumCopies:    1,
		Copies:       [blkptr.MaxCopies]PhysCopy{{Birth: 5, DVA: blkptr.DVA{VDev: 0, ASize: 4096}}},
	})
	fast := NewFastIndex(idx, ClassDuplicate)

	sc := &scancore.Context{Phys: &scancore.Phys{CurMinTxg: 0, CurMaxTxg: 100}}
	var visited []checksum.Digest
	cb := func(_ context.Context, _ *scancore.Context, bp blkptr.BlockPointer, _ scanbook.Bookmark) error {
		visited = append(visited, bp.Checksum)
		return nil
	}

	if err := fast.DDTEntry(context.Background(), sc, d, cb); err != nil {
		t.Fatalf("DDTEntry: %v", err)
	}
	if len(visited) != 1 || visited[0] != d {
		t.Fatalf("expected the risen entry's copy to be scrubbed, got %v", visited)
	}
	if !fast.Contains(blkptr.BlockPointer{ChecksumAlgo: checksum.XXHash, Checksum: d, Dedup: true}) {
		t.Fatalf("expected entry marked covered after DDTEntry")
	}
}

// TestDDTEntryIgnoresEntriesStillOutOfScope covers a refcount bump that
// does not cross into this scan's class bound: DDTEntry still updates
// the refcount via the underlying index, but must not invoke the scan
// callback.
func TestDDTEntryIgnoresEntriesStillOutOfScope(t *testing.T) {
	idx := NewMemIndex()
	d := digest(11)
	idx.Put(Entry{
		Checksum:     d,
		ChecksumType: checksum.XXHash,
		RefCount:     1,
		NumCopies:    1,
		Copies:       [blkptr.MaxCopies]PhysCopy{{Birth: 5}},
	})
	// ClassDitto only: a duplicate-class rise stays out of scope.
	fast := NewFastIndex(idx, ClassDitto)

	sc := &scancore.Context{Phys: &scancore.Phys{CurMinTxg: 0, CurMaxTxg: 100}}
	called := false
	cb := func(context.Context, *scancore.Context, blkptr.BlockPointer, scanbook.Bookmark) error {
		called = true
		return nil
	}

	if err := fast.DDTEntry(context.Background(), sc, d, cb); err != nil {
		t.Fatalf("DDTEntry: %v", err)
	}
	if called {
		t.Fatalf("expected scan callback not invoked for an out-of-scope class")
	}
	if e, ok := idx.entries[d]; !ok || e.RefCount != 2 {
		t.Fatalf("expected refcount still bumped to 2, got %+v", e)
	}
}

func TestClassOrdering(t *testing.T) {
	if !(ClassDitto < ClassDuplicate && ClassDuplicate < ClassUnique) {
		t.Fatalf("expected ditto < duplicate < unique ordering")
	}
}
