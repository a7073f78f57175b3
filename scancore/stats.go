package scancore

import (
	"sync"

	"github.com/coldtrove/poolscan/blkptr"
)

// statKey identifies one cell of the block-statistics table. levelTotal
// and typeTotal are sentinel values selecting the "total" row/column,
// mirroring the original's 2x2 loop over {specific, TOTAL} for both axes
// (count_block in dsl_scan.c).
type statKey struct {
	level int
	typ   blkptr.Type
}

const (
	levelTotal = -1
	typeTotal  = blkptr.Type(255)
)

// BlockStat is one cell's accumulated counters.
type BlockStat struct {
	Count         uint64
	LSize         uint64
	PSize         uint64
	ASize         uint64
	GangCount     uint64
	DittoSameVdev uint64 // 2-of-2 / 2-of-3 / 3-of-3 same-vdev coincidences
}

// BlockStats is the supplemented per-(level,type) statistics table,
// described in SPEC_FULL.md's SUPPLEMENTED FEATURES section.
type BlockStats struct {
	mu    sync.Mutex
	cells map[statKey]*BlockStat
}

func NewBlockStats() *BlockStats {
	return &BlockStats{cells: make(map[statKey]*BlockStat)}
}

func (s *BlockStats) cell(level int, typ blkptr.Type) *BlockStat {
	k := statKey{level, typ}
	c, ok := s.cells[k]
	if !ok {
		c = &BlockStat{}
		s.cells[k] = c
	}
	return c
}

// Add records one visited block into all four relevant cells: its exact
// (level, type), the type's total-over-levels row, the level's
// total-over-types column, and the grand total.
func (s *BlockStats) Add(level int, typ blkptr.Type, asize, lsize, psize uint64, gang bool, dittoSameVdev bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, lv := range []int{level, levelTotal} {
		for _, ty := range []blkptr.Type{typ, typeTotal} {
			c := s.cell(lv, ty)
			c.Count++
			c.ASize += asize
			c.LSize += lsize
			c.PSize += psize
			if gang {
				c.GangCount++
			}
			if dittoSameVdev {
				c.DittoSameVdev++
			}
		}
	}
}

// Total returns the grand-total cell.
func (s *BlockStats) Total() BlockStat {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.cells[statKey{levelTotal, typeTotal}]; ok {
		return *c
	}
	return BlockStat{}
}

// ByType returns the total-over-levels row for one block type.
func (s *BlockStats) ByType(typ blkptr.Type) BlockStat {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.cells[statKey{levelTotal, typ}]; ok {
		return *c
	}
	return BlockStat{}
}
