package main

import (
	"context"
	"fmt"

	"github.com/coldtrove/poolscan/blkptr"
	"github.com/coldtrove/poolscan/checksum"
	"github.com/coldtrove/poolscan/dsvisit"
	"github.com/coldtrove/poolscan/recursor"
)

// synthSource is a recursor.Source backed entirely by in-memory dnode
// blocks, one per synthesized dataset, keyed by the root block pointer's
// Birth field (the same keying convention recursor's own fixtures use).
type synthSource struct {
	dnodeBlocks map[uint64][]*recursor.Dnode
	objsets     map[uint64]*recursor.Objset
}

func newSynthSource() *synthSource {
	return &synthSource{
		dnodeBlocks: make(map[uint64][]*recursor.Dnode),
		objsets:     make(map[uint64]*recursor.Objset),
	}
}

// addMOS synthesizes the pool's meta-object-set: a bare Objset whose
// meta-dnode holds n leaf block pointers standing in for pool-wide
// metadata objects (the free-block-pointer object, the history log
// object, and so on), and returns the root block pointer a
// scan.Coordinator's MOSRootBP should point at.
func (s *synthSource) addMOS(n int) blkptr.BlockPointer {
	const birth = 1000
	bps := make([]blkptr.BlockPointer, n)
	for i := 0; i < n; i++ {
		d, _ := checksum.Compute(checksum.XXHash, []byte(fmt.Sprintf("mos-leaf%d", i)))
		bps[i] = blkptr.BlockPointer{
			Level: 0, Type: blkptr.TypePlainData, Birth: birth,
			LSize: 4096, PSize: 4096, NumCopies: 1,
			DVAs:         [blkptr.MaxCopies]blkptr.DVA{{VDev: 0, ASize: 4096}},
			ChecksumAlgo: checksum.XXHash, Checksum: d,
		}
	}
	s.objsets[birth] = &recursor.Objset{
		Type:        blkptr.TypeObjset,
		MetaDnode:   &recursor.Dnode{IndBlkShiftVal: 17, DataBlkSzSecVal: 2, BlkPtrs: bps},
		MetaDnodeBP: blkptr.BlockPointer{Level: 0, Type: blkptr.TypeDNode, Birth: birth},
	}
	return blkptr.BlockPointer{Level: 0, Type: blkptr.TypeObjset, Birth: birth, NumCopies: 1, LSize: 4096, PSize: 4096}
}

// addDataset synthesizes a dnode block of n leaf dnodes for dataset index
// i and returns the root block pointer a Dataset should point at. Every
// fourth leaf is marked Dedup, so in a --ddt run the tree walk consults the
// DDT filter for it; the seeded DDT entries do not share these checksums.
func (s *synthSource) addDataset(i uint64, n int) blkptr.BlockPointer {
	birth := i + 1
	dnodes := make([]*recursor.Dnode, n)
	for j := 0; j < n; j++ {
		d, _ := checksum.Compute(checksum.XXHash, []byte(fmt.Sprintf("ds%d-leaf%d", i, j)))
		dnodes[j] = &recursor.Dnode{
			IndBlkShiftVal:  17,
			DataBlkSzSecVal: 2,
			ObjectType:      blkptr.TypePlainData,
			BlkPtrs: []blkptr.BlockPointer{
				{
					Level: 0, Type: blkptr.TypePlainData, Birth: birth,
					LSize: 4096, PSize: 4096, NumCopies: 1,
					DVAs:         [blkptr.MaxCopies]blkptr.DVA{{VDev: 0, ASize: 4096}},
					ChecksumAlgo: checksum.XXHash, Checksum: d,
					Dedup: j%4 == 0,
				},
			},
		}
	}
	s.dnodeBlocks[birth] = dnodes
	return blkptr.BlockPointer{Level: 0, Type: blkptr.TypeDNode, Birth: birth, NumCopies: 1, LSize: 4096, PSize: 4096}
}

func (s *synthSource) ReadObjset(ctx context.Context, bp blkptr.BlockPointer) (*recursor.Objset, error) {
	return s.objsets[bp.Birth], nil
}

func (s *synthSource) ReadDnodeBlock(ctx context.Context, bp blkptr.BlockPointer) ([]*recursor.Dnode, error) {
	return s.dnodeBlocks[bp.Birth], nil
}

func (s *synthSource) ReadIndirect(ctx context.Context, bp blkptr.BlockPointer) ([]blkptr.BlockPointer, error) {
	return nil, nil
}

func (s *synthSource) Prefetch(ctx context.Context, bp blkptr.BlockPointer) {}

// synthDatasets implements dsvisit.DatasetSource over a small fixed map of
// datasets wired up as a linear snapshot chain by the caller.
type synthDatasets struct {
	byObj map[uint64]*dsvisit.Dataset
}

func (d *synthDatasets) Hold(ctx context.Context, obj uint64) (*dsvisit.Dataset, error) {
	ds, ok := d.byObj[obj]
	if !ok {
		return nil, fmt.Errorf("poolscanbench: no such dataset %d", obj)
	}
	return ds, nil
}

func (d *synthDatasets) Rele(ds *dsvisit.Dataset) {}

func (d *synthDatasets) Each(ctx context.Context, fn func(*dsvisit.Dataset) bool) error {
	for _, ds := range d.byObj {
		if !fn(ds) {
			break
		}
	}
	return nil
}

func (d *synthDatasets) NextClonesEntries(ctx context.Context, ds *dsvisit.Dataset) (map[uint64]uint64, error) {
	return nil, nil
}
