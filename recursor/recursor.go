// Package recursor implements the block-pointer tree traversal (spec.md
// §4.3): given a block pointer it fetches the block through a read
// source and recursively visits children, dispatching on block type, and
// evaluating the pause/resume predicates (scancore) at every visit.
package recursor

import (
	"context"

	"github.com/coldtrove/poolscan/blkptr"
	"github.com/coldtrove/poolscan/internal/cfg"
	"github.com/coldtrove/poolscan/internal/cos"
	"github.com/coldtrove/poolscan/internal/nlog"
	"github.com/coldtrove/poolscan/scanbook"
	"github.com/coldtrove/poolscan/scancore"
)

// Visitor ties a read Source, the DDT's class-containment test, and a
// scan callback into the recursive walk described in spec.md §4.3/§4.4.
type Visitor struct {
	Source      Source
	DDTContains scancore.DDTClassContains
	Callback    scancore.ScanCallback
	PauseEnv    scancore.PauseEnv
	NoPrefetch  bool
	Stats       *scancore.BlockStats
}

// VisitRootBP begins a dataset's traversal at its root block pointer,
// bookmarked <dsobj, ROOT, ROOT, ROOT> per spec.md §4.2 step 2.
func (v *Visitor) VisitRootBP(ctx context.Context, sc *scancore.Context, rootBP blkptr.BlockPointer, dsObj uint64) error {
	zb := scanbook.Bookmark{ObjSet: dsObj, Object: scanbook.RootObject, Level: scanbook.RootLevel, BlkID: scanbook.RootBlkID}
	return v.VisitBP(ctx, sc, rootBP, zb, nil, dsObj)
}

// VisitBP is the per-block-pointer contract of spec.md §4.3: pause check,
// resume-skip check, hole/already-covered short circuits, recurse, DDT
// skip, scan callback. Returns cos.ErrPaused (via errors.Is) when the
// pause predicate fires so callers can stop issuing sibling visits
// without treating the pause as a traversal error.
func (v *Visitor) VisitBP(ctx context.Context, sc *scancore.Context, bp blkptr.BlockPointer, zb scanbook.Bookmark, dnp scanbook.DnodeShape, dsObj uint64) error {
	if scancore.CheckPause(sc, zb, v.PauseEnv) {
		return cos.ErrPaused
	}

	skip, clear := scancore.CheckResume(dnp, sc.Phys.Bookmark, zb)
	if clear {
		sc.Phys.Bookmark = scanbook.Bookmark{}
	}
	if skip {
		return nil
	}

	if bp.Birth == 0 {
		return nil // hole or never-allocated
	}
	if bp.Birth <= sc.Phys.CurMinTxg {
		return nil // already covered by a prior scan window
	}

	if err := v.recurse(ctx, sc, bp, zb, dnp, dsObj); err != nil {
		if cos.IsPaused(err) {
			return err
		}
		sc.Phys.Errors++
		nlog.Warningf("recursor: recurse failed at %+v: %v", zb, err)
		return nil
	}

	if v.DDTContains != nil && v.DDTContains(bp) {
		return nil // already scrubbed by the DDT pre-pass this window
	}

	if bp.Birth > sc.Phys.CurMaxTxg {
		return nil // belongs to a snapshot newer than this dataset pass's ceiling
	}

	sc.VisitedThisTxg++
	sc.PassExamined += bp.LSize
	if v.Stats != nil {
		v.addStats(bp)
	}
	if err := v.Callback(ctx, sc, bp, zb); err != nil {
		nlog.Warningf("recursor: scan callback failed at %+v: %v", zb, err)
	}
	return nil
}

func (v *Visitor) addStats(bp blkptr.BlockPointer) {
	var asize uint64
	sameVdev := bp.NumCopies > 1
	vdev := bp.DVAs[0].VDev
	for i := 0; i < bp.NumCopies; i++ {
		asize += bp.DVAs[i].ASize
		if bp.DVAs[i].VDev != vdev {
			sameVdev = false
		}
	}
	gang := false
	for i := 0; i < bp.NumCopies; i++ {
		if bp.DVAs[i].Gang {
			gang = true
		}
	}
	v.Stats.Add(bp.Level, bp.Type, asize, bp.LSize, bp.PSize, gang, sameVdev && bp.NumCopies > 1)
}

func (v *Visitor) shouldPrefetch(sc *scancore.Context, bp blkptr.BlockPointer, isDnodeChild bool) bool {
	if v.NoPrefetch || cfg.Get().NoScrubPrefetch {
		return false
	}
	if bp.IsHole() || bp.Birth == 0 {
		return false
	}
	if bp.Birth <= sc.Phys.MinTxg {
		return false
	}
	if bp.Level == 0 && !isDnodeChild {
		return false
	}
	return true
}

func (v *Visitor) recurse(ctx context.Context, sc *scancore.Context, bp blkptr.BlockPointer, zb scanbook.Bookmark, dnp scanbook.DnodeShape, dsObj uint64) error {
	if bp.IsHole() || bp.IsEmbedded() {
		return nil
	}

	if zb.Level > 0 {
		children, err := v.Source.ReadIndirect(ctx, bp)
		if err != nil {
			return err
		}
		epb := uint64(len(children))
		for _, child := range children {
			if v.shouldPrefetch(sc, child, false) {
				v.Source.Prefetch(ctx, child)
			}
		}
		for i, child := range children {
			childZB := scanbook.Bookmark{
				ObjSet: zb.ObjSet,
				Object: zb.Object,
				Level:  zb.Level - 1,
				BlkID:  zb.BlkID*epb + uint64(i),
			}
			if err := v.VisitBP(ctx, sc, child, childZB, dnp, dsObj); err != nil {
				if cos.IsPaused(err) {
					return err
				}
			}
		}
		return nil
	}

	switch bp.Type {
	case blkptr.TypeObjset:
		return v.recurseObjset(ctx, sc, bp, zb, dsObj)
	case blkptr.TypeDNode:
		return v.recurseDnodeBlock(ctx, sc, bp, zb, dsObj)
	case blkptr.TypeUserGroupUsed:
		return nil // leaf, no recursion
	default:
		return nil // plain data leaf; the scan callback handles its I/O
	}
}

func (v *Visitor) recurseObjset(ctx context.Context, sc *scancore.Context, bp blkptr.BlockPointer, zb scanbook.Bookmark, dsObj uint64) error {
	os, err := v.Source.ReadObjset(ctx, bp)
	if err != nil {
		return err
	}

	if err := v.visitZil(ctx, sc, os.ZIL, dsObj); err != nil {
		if cos.IsPaused(err) {
			return err
		}
	}

	if err := v.VisitDnode(ctx, sc, os.MetaDnode, zb.ObjSet, scanbook.MetaDnodeObject, dsObj); err != nil && cos.IsPaused(err) {
		return err
	}

	if os.UserUsedBP != nil {
		uZB := scanbook.Bookmark{ObjSet: zb.ObjSet, Object: scanbook.UserUsedObject, Level: os.UserUsedBP.Level, BlkID: 0}
		if err := v.VisitBP(ctx, sc, *os.UserUsedBP, uZB, nil, dsObj); err != nil && cos.IsPaused(err) {
			return err
		}
	}
	if os.GroupUsedBP != nil {
		gZB := scanbook.Bookmark{ObjSet: zb.ObjSet, Object: scanbook.GroupUsedObject, Level: os.GroupUsedBP.Level, BlkID: 0}
		if err := v.VisitBP(ctx, sc, *os.GroupUsedBP, gZB, nil, dsObj); err != nil && cos.IsPaused(err) {
			return err
		}
	}
	return nil
}

func (v *Visitor) recurseDnodeBlock(ctx context.Context, sc *scancore.Context, bp blkptr.BlockPointer, zb scanbook.Bookmark, dsObj uint64) error {
	dnodes, err := v.Source.ReadDnodeBlock(ctx, bp)
	if err != nil {
		return err
	}
	dnodesPerBlock := uint64(len(dnodes))
	for i, dn := range dnodes {
		// Per spec.md §9's explicit open question: the object id used here
		// is *derived* (zb.blkid*epb + i), not dereferenced from the
		// dnode itself — intentional for meta-dnode traversal.
		object := zb.BlkID*dnodesPerBlock + uint64(i)
		if err := v.VisitDnode(ctx, sc, dn, zb.ObjSet, object, dsObj); err != nil {
			if cos.IsPaused(err) {
				return err
			}
		}
	}
	return nil
}

// VisitDnode visits every block pointer of one dnode, plus its spill
// pointer if set (spec.md §4.3, visit_dnode).
func (v *Visitor) VisitDnode(ctx context.Context, sc *scancore.Context, dn *Dnode, objset, object uint64, dsObj uint64) error {
	for i, bp := range dn.BlkPtrs {
		zb := scanbook.Bookmark{ObjSet: objset, Object: object, Level: bp.Level, BlkID: uint64(i)}
		if v.shouldPrefetch(sc, bp, true) {
			v.Source.Prefetch(ctx, bp)
		}
		if err := v.VisitBP(ctx, sc, bp, zb, dn, dsObj); err != nil {
			if cos.IsPaused(err) {
				return err
			}
		}
	}
	if dn.SpillBlkPtr != nil {
		zb := scanbook.Bookmark{ObjSet: objset, Object: object, Level: dn.SpillBlkPtr.Level, BlkID: uint64(len(dn.BlkPtrs))}
		if err := v.VisitBP(ctx, sc, *dn.SpillBlkPtr, zb, dn, dsObj); err != nil && cos.IsPaused(err) {
			return err
		}
	}
	return nil
}

func (v *Visitor) visitZil(ctx context.Context, sc *scancore.Context, zh ZilHeader, dsObj uint64) error {
	for _, zb := range zh.Blocks {
		if zb.BP.Birth == 0 || zb.BP.Birth <= sc.Phys.CurMinTxg {
			continue
		}
		zbk := scanbook.Bookmark{ObjSet: dsObj, Object: scanbook.RootObject, Level: scanbook.ZilLevel, BlkID: zb.BP.Birth}
		if err := v.Callback(ctx, sc, zb.BP, zbk); err != nil {
			nlog.Warningf("recursor: zil block callback failed: %v", err)
		}
		for _, rec := range zb.Records {
			if rec.Synced || rec.ClaimTxg > zh.ClaimTxg {
				continue
			}
			if err := v.Callback(ctx, sc, rec.BP, zbk); err != nil {
				nlog.Warningf("recursor: zil record callback failed: %v", err)
			}
		}
	}
	return nil
}
