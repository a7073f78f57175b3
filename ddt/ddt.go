// Package ddt models the deduplicated-block index (the dedup table) and
// implements the pre-pass walk (§4.6): before the dataset tree walk
// begins, every DDT entry at or above the scan's ddt_class_max is visited
// once in descending-replication-class order, so the tree walk can safely
// skip any block the DDT already covers.
package ddt

import (
	"context"

	cuckoo "github.com/seiflotfy/cuckoofilter"

	"github.com/coldtrove/poolscan/blkptr"
	"github.com/coldtrove/poolscan/checksum"
	"github.com/coldtrove/poolscan/internal/metrics"
	"github.com/coldtrove/poolscan/internal/nlog"
	"github.com/coldtrove/poolscan/scanbook"
	"github.com/coldtrove/poolscan/scancore"
)

// Class is a DDT replication class, ordered by how many live references a
// block has: the more references, the earlier it is pre-scrubbed.
type Class int

const (
	ClassDitto Class = iota // forced multiple copies regardless of refcount
	ClassDuplicate
	ClassUnique
	numClasses
)

func (c Class) String() string {
	switch c {
	case ClassDitto:
		return "ditto"
	case ClassDuplicate:
		return "duplicate"
	case ClassUnique:
		return "unique"
	default:
		return "invalid"
	}
}

// PhysCopy is one physical instance of a deduplicated block: enough to
// synthesize a block pointer for it.
type PhysCopy struct {
	DVA   blkptr.DVA
	Birth uint64
}

// Entry is one DDT row: a dedup key (checksum + size) and up to
// blkptr.MaxCopies physical copies, plus the live reference count driving
// which Class it currently belongs to.
type Entry struct {
	ChecksumType checksum.Algorithm
	Checksum     checksum.Digest
	LSize, PSize uint64
	RefCount     int
	Copies       [blkptr.MaxCopies]PhysCopy
	NumCopies    int
}

// classOf derives an entry's current class from its live refcount, the
// computation dsl_scan_ddt_entry performs before deciding whether the
// entry is still in the pre-pass's scope.
func classOf(e Entry) Class {
	switch {
	case e.RefCount > 1:
		return ClassDuplicate
	default:
		return ClassUnique
	}
}

// Index is the DDT collaborator: an ordered, resumable walk plus the
// class-containment test the recursor consults per block (§4.3).
type Index interface {
	// Walk returns the next entry at or after bm in canonical class order,
	// and the bookmark to resume from after it (EOF via ok=false when the
	// index is exhausted).
	Walk(bm scancore.DDTBookmark) (e Entry, next scancore.DDTBookmark, ok bool, err error)
	// BPCreate synthesizes a block pointer for one physical copy of an
	// entry, used to hand the scan callback something it already knows
	// how to scrub.
	BPCreate(e Entry, copyIdx int) blkptr.BlockPointer
	// IncRef bumps an entry's live refcount and returns the entry as it
	// stands after the bump (ok=false if d names no entry), the
	// transition point dsl_scan_ddt_entry reacts to.
	IncRef(d checksum.Digest) (e Entry, ok bool)
}

// FastIndex wraps an authoritative Index with a cuckoofilter fast-path
// membership test: once an entry's checksum has been visited by this
// scan's pre-pass, it is added to the filter so the recursor's
// class-containment check can usually avoid consulting the authoritative
// index at all.
type FastIndex struct {
	idx    Index
	filter *cuckoo.Filter
	maxClass Class
}

func NewFastIndex(idx Index, maxClass Class) *FastIndex {
	return &FastIndex{idx: idx, filter: cuckoo.NewFilter(1 << 20), maxClass: maxClass}
}

func keyBytes(algo checksum.Algorithm, d checksum.Digest) []byte {
	b := make([]byte, 0, len(d)+1)
	b = append(b, byte(algo))
	b = append(b, d[:]...)
	return b
}

func (f *FastIndex) mark(algo checksum.Algorithm, d checksum.Digest) {
	f.filter.InsertUnique(keyBytes(algo, d))
}

// Contains is the recursor's DDTClassContains hook (scancore.DDTClassContains):
// true only means "probably covered, skip the scan callback"; a cuckoo
// filter never false-positives its way into correctness trouble here
// because the only consequence of a wrong "true" would be a missed
// re-scrub, which the authoritative Walk during the pre-pass already
// guaranteed happened at least once this window.
func (f *FastIndex) Contains(bp blkptr.BlockPointer) bool {
	if !bp.Dedup {
		return false
	}
	return f.filter.Lookup(keyBytes(bp.ChecksumAlgo, bp.Checksum))
}

// Visit runs the pre-pass (ddt_visit): walks sc.Phys.DDTBookmark forward,
// invoking cb for every in-window physical copy of every entry at or
// above ddtClassMax, until the class bound is exceeded or the pause
// predicate fires. Returns true if it paused before completing. On
// completion the bookmark's class is left one past ddtClassMax, which marks
// the pre-pass as done for the rest of the scan.
func Visit(ctx context.Context, sc *scancore.Context, idx *FastIndex, ddtClassMax int, cb scancore.ScanCallback, pauseEnv scancore.PauseEnv) (paused bool, err error) {
	bm := sc.Phys.DDTBookmark
	for {
		if int(bm.Class) > ddtClassMax {
			sc.Phys.DDTBookmark = scancore.DDTBookmark{Class: ddtClassMax + 1}
			return false, nil
		}

		// The DDT pre-pass tracks its own cursor rather than a tree
		// bookmark, so the pause check runs with a synthetic zero-level
		// bookmark purely to decide on elapsed time / shutdown, per
		// spec.md §4.6 ("same predicate as the tree walk, with null
		// bookmark since DDT position is tracked separately").
		if scancore.CheckPause(sc, scanbook.Bookmark{}, pauseEnv) {
			sc.Phys.DDTBookmark = bm
			return true, nil
		}

		entry, next, ok, werr := idx.idx.Walk(bm)
		if werr != nil {
			return false, werr
		}
		if !ok || next.Class > ddtClassMax {
			sc.Phys.DDTBookmark = scancore.DDTBookmark{Class: ddtClassMax + 1}
			return false, nil
		}
		metrics.DDTEntriesVisited.Inc()

		for i := 0; i < entry.NumCopies; i++ {
			copy := entry.Copies[i]
			if copy.Birth < sc.Phys.CurMinTxg || copy.Birth > sc.Phys.CurMaxTxg {
				continue
			}
			bp := idx.idx.BPCreate(entry, i)
			if err := cb(ctx, sc, bp, scanbook.Bookmark{}); err != nil {
				nlog.Warningf("ddt: scan callback failed for entry copy %d: %v", i, err)
			}
		}
		idx.mark(entry.ChecksumType, entry.Checksum)
		bm = next
		sc.Phys.DDTBookmark = bm
	}
}

// DDTEntry is the DDT transition callback (dsl_scan_ddt_entry, §4.6):
// exposed to collaborators so that a live dedup hit arriving mid-scan
// (an IncRef on the underlying index) is scrubbed immediately rather
// than waiting for the pre-pass walk, which may already have advanced
// past the class bucket this entry is about to rise into. Only entries
// whose new class is at or under maxClass matter here; anything still
// classed beyond it is left for the ordinary tree walk.
func (f *FastIndex) DDTEntry(ctx context.Context, sc *scancore.Context, d checksum.Digest, cb scancore.ScanCallback) error {
	e, ok := f.idx.IncRef(d)
	if !ok {
		return nil
	}
	if classOf(e) > f.maxClass {
		return nil
	}

	for i := 0; i < e.NumCopies; i++ {
		copy := e.Copies[i]
		if copy.Birth < sc.Phys.CurMinTxg || copy.Birth > sc.Phys.CurMaxTxg {
			continue
		}
		bp := f.idx.BPCreate(e, i)
		if err := cb(ctx, sc, bp, scanbook.Bookmark{}); err != nil {
			nlog.Warningf("ddt: scan callback failed for entry copy %d: %v", i, err)
		}
	}
	f.mark(e.ChecksumType, e.Checksum)
	return nil
}
