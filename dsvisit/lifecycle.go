package dsvisit

import (
	"context"

	"github.com/coldtrove/poolscan/internal/zapkv"
	"github.com/coldtrove/poolscan/scanbook"
	"github.com/coldtrove/poolscan/scancore"
)

// DSDestroyed reacts to a dataset being destroyed, spec.md §4.2's
// ds_destroyed: if it is the dataset currently under the bookmark,
// advance the bookmark onto its successor snapshot (or, if ds had none,
// mark the bookmark objset DESTROYED so the coordinator's visit loop
// skips it); if it is only sitting in the queue, remove it there and
// (if it was a snapshot) re-insert its successor at the same mintxg.
func (v *Visitor) DSDestroyed(ctx context.Context, sc *scancore.Context, ds *Dataset, tx *zapkv.Txn) error {
	if sc.Phys.Bookmark.ObjSet == ds.Obj {
		if ds.IsSnapshot && ds.NextSnapObj != 0 {
			sc.Phys.Bookmark.ObjSet = ds.NextSnapObj
			sc.Phys.SetFlag(scancore.FlagVisitDSAgain)
		} else {
			sc.Phys.Bookmark.ObjSet = scanbook.DestroyedObjset
		}
	}

	mintxg, found, err := v.Store.LookupIntKey(sc.Phys.QueueObj, ds.Obj)
	if err != nil {
		return err
	}
	if found {
		if err := tx.RemoveIntKey(sc.Phys.QueueObj, ds.Obj); err != nil {
			return err
		}
		if ds.IsSnapshot && ds.NextSnapObj != 0 {
			if err := tx.AddIntKey(sc.Phys.QueueObj, ds.NextSnapObj, mintxg); err != nil {
				return err
			}
		}
	}
	return nil
}

// DSSnapshotted reacts to a dataset being snapshotted: any reference to
// ds in the bookmark or queue must be renamed to point at the new
// previous-snapshot object the snapshot operation created, since ds's
// own object id no longer names the right position in the chain.
func (v *Visitor) DSSnapshotted(ctx context.Context, sc *scancore.Context, ds *Dataset, newPrevSnapObj uint64, tx *zapkv.Txn) error {
	if sc.Phys.Bookmark.ObjSet == ds.Obj {
		sc.Phys.Bookmark.ObjSet = newPrevSnapObj
	}
	mintxg, found, err := v.Store.LookupIntKey(sc.Phys.QueueObj, ds.Obj)
	if err != nil {
		return err
	}
	if found {
		if err := tx.RemoveIntKey(sc.Phys.QueueObj, ds.Obj); err != nil {
			return err
		}
		if err := tx.AddIntKey(sc.Phys.QueueObj, newPrevSnapObj, mintxg); err != nil {
			return err
		}
	}
	return nil
}

// DSCloneSwapped reacts to two datasets exchanging their dsl_dir
// (promote/clone-swap): references to ds1 and ds2 in the bookmark and
// queue are atomically exchanged; if both were present, both remain
// present (just swapped).
func (v *Visitor) DSCloneSwapped(ctx context.Context, sc *scancore.Context, ds1, ds2 *Dataset, tx *zapkv.Txn) error {
	switch sc.Phys.Bookmark.ObjSet {
	case ds1.Obj:
		sc.Phys.Bookmark.ObjSet = ds2.Obj
	case ds2.Obj:
		sc.Phys.Bookmark.ObjSet = ds1.Obj
	}

	mt1, f1, err := v.Store.LookupIntKey(sc.Phys.QueueObj, ds1.Obj)
	if err != nil {
		return err
	}
	mt2, f2, err := v.Store.LookupIntKey(sc.Phys.QueueObj, ds2.Obj)
	if err != nil {
		return err
	}
	if f1 {
		if err := tx.RemoveIntKey(sc.Phys.QueueObj, ds1.Obj); err != nil {
			return err
		}
	}
	if f2 {
		if err := tx.RemoveIntKey(sc.Phys.QueueObj, ds2.Obj); err != nil {
			return err
		}
	}
	if f1 {
		if err := tx.AddIntKey(sc.Phys.QueueObj, ds2.Obj, mt1); err != nil {
			return err
		}
	}
	if f2 {
		if err := tx.AddIntKey(sc.Phys.QueueObj, ds1.Obj, mt2); err != nil {
			return err
		}
	}
	return nil
}
