package recursor

import (
	"context"
	"testing"
	"time"

	"github.com/coldtrove/poolscan/blkptr"
	"github.com/coldtrove/poolscan/internal/cos"
	"github.com/coldtrove/poolscan/scanbook"
	"github.com/coldtrove/poolscan/scancore"
)

// fakeSource is a tiny fixture: one dnode block holding 3 dnodes, each
// with 1 leaf data block pointer.
type fakeSource struct {
	dnodeBlocks map[uint64][]*Dnode
	objsets     map[uint64]*Objset
}

func (f *fakeSource) ReadObjset(ctx context.Context, bp blkptr.BlockPointer) (*Objset, error) {
	return f.objsets[bp.Birth], nil
}

func (f *fakeSource) ReadDnodeBlock(ctx context.Context, bp blkptr.BlockPointer) ([]*Dnode, error) {
	return f.dnodeBlocks[bp.Birth], nil
}

func (f *fakeSource) ReadIndirect(ctx context.Context, bp blkptr.BlockPointer) ([]blkptr.BlockPointer, error) {
	return nil, nil
}

func (f *fakeSource) Prefetch(ctx context.Context, bp blkptr.BlockPointer) {}

func neverPauseEnv() scancore.PauseEnv {
	return scancore.PauseEnv{TxgTimeout: time.Hour, MinTime: time.Hour}
}

func newFixtureSource() *fakeSource {
	mkDnode := func(birth uint64) *Dnode {
		return &Dnode{
			IndBlkShiftVal:  17,
			DataBlkSzSecVal: 2,
			BlkPtrs: []blkptr.BlockPointer{
				{Level: 0, Type: blkptr.TypePlainData, Birth: birth, LSize: 4096, PSize: 4096, NumCopies: 1},
			},
		}
	}
	return &fakeSource{
		dnodeBlocks: map[uint64][]*Dnode{
			10: {mkDnode(5), mkDnode(6), mkDnode(7)},
		},
	}
}

func TestVisitDnodeBlockVisitsAllLeaves(t *testing.T) {
	src := newFixtureSource()
	var visited int
	v := &Visitor{
		Source: src,
		Callback: func(ctx context.Context, sc *scancore.Context, bp blkptr.BlockPointer, zb scanbook.Bookmark) error {
			visited++
			return nil
		},
		PauseEnv: neverPauseEnv(),
	}

	sc := &scancore.Context{Phys: &scancore.Phys{CurMinTxg: 0, CurMaxTxg: 100}}
	dnodeBlockBP := blkptr.BlockPointer{Level: 0, Type: blkptr.TypeDNode, Birth: 10, NumCopies: 1}
	zb := scanbook.Bookmark{ObjSet: 1, Object: scanbook.MetaDnodeObject, Level: 0, BlkID: 0}

	if err := v.VisitBP(context.Background(), sc, dnodeBlockBP, zb, nil, 1); err != nil {
		t.Fatalf("VisitBP: %v", err)
	}
	if visited != 4 { // 3 leaves + the dnode block itself, both get scan-callback invocations
		t.Fatalf("expected 4 scan callback invocations, got %d", visited)
	}
	if sc.VisitedThisTxg != 4 {
		t.Fatalf("expected VisitedThisTxg=4, got %d", sc.VisitedThisTxg)
	}
}

func TestVisitBPSkipsBelowCurMinTxg(t *testing.T) {
	src := newFixtureSource()
	var visited int
	v := &Visitor{
		Source: src,
		Callback: func(ctx context.Context, sc *scancore.Context, bp blkptr.BlockPointer, zb scanbook.Bookmark) error {
			visited++
			return nil
		},
		PauseEnv: neverPauseEnv(),
	}

	sc := &scancore.Context{Phys: &scancore.Phys{CurMinTxg: 20, CurMaxTxg: 100}}
	dnodeBlockBP := blkptr.BlockPointer{Level: 0, Type: blkptr.TypeDNode, Birth: 10, NumCopies: 1}
	zb := scanbook.Bookmark{ObjSet: 1, Object: scanbook.MetaDnodeObject, Level: 0, BlkID: 0}

	if err := v.VisitBP(context.Background(), sc, dnodeBlockBP, zb, nil, 1); err != nil {
		t.Fatalf("VisitBP: %v", err)
	}
	if visited != 0 {
		t.Fatalf("expected dnode block itself to be skipped (birth 10 <= cur_min_txg 20), got %d visits", visited)
	}
}

// TestVisitRootBPWalksMetaDnode exercises the TypeObjset dispatch: the
// root block pointer addresses an object set whose meta-dnode is walked
// via VisitDnode, not a single synthesized block pointer, so every entry
// in os.MetaDnode.BlkPtrs must be visited.
func TestVisitRootBPWalksMetaDnode(t *testing.T) {
	objset := &Objset{
		MetaDnode: &Dnode{
			BlkPtrs: []blkptr.BlockPointer{
				{Level: 0, Type: blkptr.TypePlainData, Birth: 5, LSize: 4096, PSize: 4096, NumCopies: 1},
				{Level: 0, Type: blkptr.TypePlainData, Birth: 6, LSize: 4096, PSize: 4096, NumCopies: 1},
				{Level: 0, Type: blkptr.TypePlainData, Birth: 7, LSize: 4096, PSize: 4096, NumCopies: 1},
			},
		},
		MetaDnodeBP: blkptr.BlockPointer{Level: 0, Type: blkptr.TypeDNode, Birth: 10},
	}
	src := &fakeSource{objsets: map[uint64]*Objset{20: objset}}

	var visited int
	v := &Visitor{
		Source: src,
		Callback: func(ctx context.Context, sc *scancore.Context, bp blkptr.BlockPointer, zb scanbook.Bookmark) error {
			visited++
			return nil
		},
		PauseEnv: neverPauseEnv(),
	}

	sc := &scancore.Context{Phys: &scancore.Phys{CurMinTxg: 0, CurMaxTxg: 100}}
	rootBP := blkptr.BlockPointer{Level: 0, Type: blkptr.TypeObjset, Birth: 20, NumCopies: 1}

	if err := v.VisitRootBP(context.Background(), sc, rootBP, 1); err != nil {
		t.Fatalf("VisitRootBP: %v", err)
	}
	if visited != 4 {
		t.Fatalf("expected the 3 meta-dnode block pointers plus the objset block itself to be visited, got %d", visited)
	}
}

func TestVisitBPPausesAtL0(t *testing.T) {
	src := newFixtureSource()
	v := &Visitor{
		Source:   src,
		Callback: func(ctx context.Context, sc *scancore.Context, bp blkptr.BlockPointer, zb scanbook.Bookmark) error { return nil },
		PauseEnv: scancore.PauseEnv{}, // zero budgets: pause immediately
	}

	sc := &scancore.Context{Phys: &scancore.Phys{CurMinTxg: 0, CurMaxTxg: 100}}
	leafBP := blkptr.BlockPointer{Level: 0, Type: blkptr.TypePlainData, Birth: 5, NumCopies: 1}
	zb := scanbook.Bookmark{ObjSet: 1, Object: 2, Level: 0, BlkID: 0}

	err := v.VisitBP(context.Background(), sc, leafBP, zb, nil, 1)
	if !cos.IsPaused(err) {
		t.Fatalf("expected a paused error, got %v", err)
	}
	if sc.Phys.Bookmark != zb {
		t.Fatalf("expected bookmark to be persisted at pause, got %+v", sc.Phys.Bookmark)
	}
}
