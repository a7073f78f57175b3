package ddt

import (
	"sort"
	"sync"

	"github.com/coldtrove/poolscan/blkptr"
	"github.com/coldtrove/poolscan/checksum"
	"github.com/coldtrove/poolscan/scancore"
)

// MemIndex is a simple in-memory Index, used by the benchmarking harness
// and tests in place of the real on-disk DDT (out of scope per spec.md
// §1, "the DDT container... assumed to exist with the interfaces
// enumerated in §6").
type MemIndex struct {
	mu      sync.RWMutex
	entries map[checksum.Digest]*Entry
	order   []checksum.Digest // stable walk order, grouped by class below
}

func NewMemIndex() *MemIndex {
	return &MemIndex{entries: make(map[checksum.Digest]*Entry)}
}

// Put inserts or replaces an entry, keyed by its checksum.
func (m *MemIndex) Put(e Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.entries[e.Checksum]; !exists {
		m.order = append(m.order, e.Checksum)
	}
	ec := e
	m.entries[e.Checksum] = &ec
}

// IncRef bumps an entry's live refcount and returns it as it stands
// after the bump, simulating a dedup hit arriving mid-scan (the
// scenario behind the "refclass rise" test in spec.md §8). FastIndex's
// DDTEntry callback uses the returned entry to decide whether the
// transition now falls within this scan's class bound.
func (m *MemIndex) IncRef(d checksum.Digest) (Entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[d]
	if !ok {
		return Entry{}, false
	}
	e.RefCount++
	return *e, true
}

func (m *MemIndex) sortedByClass() []checksum.Digest {
	keys := append([]checksum.Digest(nil), m.order...)
	sort.SliceStable(keys, func(i, j int) bool {
		ci := classOf(*m.entries[keys[i]])
		cj := classOf(*m.entries[keys[j]])
		return ci < cj
	})
	return keys
}

// Walk implements Index.Walk over an ascending-class ordering of the
// entries inserted via Put. The cursor is simply the position in that
// ordering, re-derived on every call since MemIndex is test-scale; a real
// persisted index would instead seek by the stored <class,type,checksum>
// tuple.
func (m *MemIndex) Walk(bm scancore.DDTBookmark) (Entry, scancore.DDTBookmark, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := m.sortedByClass()
	idx := int(bm.Cursor)
	for idx < len(keys) {
		e := *m.entries[keys[idx]]
		cls := classOf(e)
		if int(cls) < bm.Class {
			idx++
			continue
		}
		next := scancore.DDTBookmark{Class: int(cls), ChecksumType: e.ChecksumType, Checksum: e.Checksum, Cursor: uint64(idx + 1)}
		return e, next, true, nil
	}
	return Entry{}, scancore.DDTBookmark{}, false, nil
}

func (m *MemIndex) BPCreate(e Entry, copyIdx int) blkptr.BlockPointer {
	c := e.Copies[copyIdx]
	bp := blkptr.BlockPointer{
		LSize:        e.LSize,
		PSize:        e.PSize,
		Level:        0,
		Type:         blkptr.TypePlainData,
		Birth:        c.Birth,
		ChecksumAlgo: e.ChecksumType,
		Checksum:     e.Checksum,
		Dedup:        true,
		NumCopies:    1,
	}
	bp.DVAs[0] = c.DVA
	return bp
}
