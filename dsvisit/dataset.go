// Package dsvisit implements the dataset visitor and its on-disk work
// queue (spec.md §4.2): walking one dataset from its root block pointer,
// persisting a bookmark on pause, and on completion enqueuing descendent
// snapshots and clones for later visits. It also implements the three
// dataset-lifecycle reactions (destroy, snapshot, clone-swap) the
// dataset layer raises synchronously.
package dsvisit

import (
	"context"

	"github.com/coldtrove/poolscan/blkptr"
	"github.com/coldtrove/poolscan/internal/cos"
	"github.com/coldtrove/poolscan/internal/nlog"
	"github.com/coldtrove/poolscan/internal/zapkv"
	"github.com/coldtrove/poolscan/recursor"
	"github.com/coldtrove/poolscan/scancore"
)

// Dataset is the minimal shape of a dataset the visitor needs: enough to
// locate its root block pointer and its place in the snapshot/clone
// forest, mirroring the hold/rele acquire-and-release idiom spec.md §9
// calls for (implementors "hold datasets transiently via the dataset
// layer's hold/rele idiom").
type Dataset struct {
	Obj           uint64
	RootBP        blkptr.BlockPointer
	CreationTxg   uint64
	IsSnapshot    bool
	PrevSnapObj   uint64 // 0 if none
	PrevSnapTxg   uint64
	NextSnapObj   uint64 // 0 if none
	NumChildren   int    // live clones of this dataset
	NextClonesObj uint64 // 0 if no next_clones map exists
}

// DatasetSource is the dataset-layer collaborator: hold/rele by object id,
// and an enumeration used by the enqueue_clones_cb fallback.
type DatasetSource interface {
	Hold(ctx context.Context, obj uint64) (*Dataset, error)
	Rele(ds *Dataset)
	// Each calls fn for every dataset in the pool, the fallback scan
	// enqueue_clones_cb uses when a dataset's next_clones map can't be
	// trusted (count mismatch).
	Each(ctx context.Context, fn func(*Dataset) bool) error
	// NextClonesEntries returns the dataset-object-id -> mintxg pairs
	// recorded in ds's next_clones map, when ds.NextClonesObj != 0.
	NextClonesEntries(ctx context.Context, ds *Dataset) (map[uint64]uint64, error)
}

// Visitor drives one dataset's traversal and the lifecycle reactions,
// bridging the recursor onto the persisted work queue.
type Visitor struct {
	Datasets DatasetSource
	Store    *zapkv.Store
	Recursor *recursor.Visitor
}

// SeedQueue implements the legacy bootstrap step of spec.md §4.4's
// meta-object-set visit: "iterate all datasets invoking enqueue_cb",
// populating the work queue from scratch the first time a pool is
// scanned (there is no persisted bookmark yet to resume dataset-by-
// dataset traversal from).
func (v *Visitor) SeedQueue(ctx context.Context, sc *scancore.Context, tx *zapkv.Txn) error {
	return v.Datasets.Each(ctx, func(ds *Dataset) bool {
		if err := v.enqueueCb(ctx, ds, sc.Phys.QueueObj, tx); err != nil {
			nlog.Warningf("dsvisit: enqueue_cb failed for dataset %d: %v", ds.Obj, err)
		}
		return true
	})
}

// VisitDS implements spec.md §4.2's visit_ds: visit the dataset's root
// block pointer, and on completion enqueue its snapshot/clone successors.
func (v *Visitor) VisitDS(ctx context.Context, sc *scancore.Context, dsObj uint64, tx *zapkv.Txn) error {
	ds, err := v.Datasets.Hold(ctx, dsObj)
	if err != nil {
		return cos.NotFoundf("dsvisit: hold %d: %v", dsObj, err)
	}
	defer v.Datasets.Rele(ds)

	err = v.Recursor.VisitRootBP(ctx, sc, ds.RootBP, dsObj)
	if cos.IsPaused(err) {
		// Bookmark already persisted inside the recursor; nothing more
		// to do this txg.
		return nil
	}

	if sc.Phys.HasFlag(scancore.FlagVisitDSAgain) {
		sc.Phys.ClearFlag(scancore.FlagVisitDSAgain)
		if err := tx.AddIntKey(sc.Phys.QueueObj, dsObj, sc.Phys.CurMaxTxg); err != nil {
			return err
		}
		return nil
	}

	if ds.NextSnapObj != 0 {
		if err := tx.AddIntKey(sc.Phys.QueueObj, ds.NextSnapObj, ds.CreationTxg); err != nil {
			return err
		}
	}

	if ds.NumChildren > 1 {
		if err := v.enqueueClones(ctx, ds, sc.Phys.QueueObj, tx); err != nil {
			return err
		}
	}
	return nil
}

// enqueueClones implements the next_clones-join-or-fallback-scan step of
// visit_ds: prefer joining the dataset's own next_clones map directly
// into the work queue when its recorded count matches, else fall back to
// enqueue_clones_cb, retaining the historical-bug guard spec.md §9 calls
// out explicitly.
func (v *Visitor) enqueueClones(ctx context.Context, ds *Dataset, queueObj uint64, tx *zapkv.Txn) error {
	if ds.NextClonesObj != 0 {
		entries, err := v.Datasets.NextClonesEntries(ctx, ds)
		if err == nil && len(entries) == ds.NumChildren {
			for clone, mintxg := range entries {
				if err := tx.AddIntKey(queueObj, clone, mintxg); err != nil {
					return err
				}
			}
			return nil
		}
		nlog.Warningf("dsvisit: next_clones count mismatch for dataset %d (want %d, got %d); falling back to full scan", ds.Obj, ds.NumChildren, len(entries))
	}
	return v.enqueueClonesCb(ctx, ds, queueObj, tx)
}

// enqueueClonesCb is the fallback: scan every dataset, and for any whose
// origin ancestry (walked via enqueueCb's linear predecessor chain)
// reaches ds, enqueue it.
func (v *Visitor) enqueueClonesCb(ctx context.Context, origin *Dataset, queueObj uint64, tx *zapkv.Txn) error {
	return v.Datasets.Each(ctx, func(candidate *Dataset) bool {
		if candidate.Obj == origin.Obj {
			return true
		}
		if v.reachesOrigin(ctx, candidate, origin.Obj) {
			_ = v.enqueueCb(ctx, candidate, queueObj, tx)
		}
		return true
	})
}

func (v *Visitor) reachesOrigin(ctx context.Context, ds *Dataset, originObj uint64) bool {
	cur := ds
	for cur.PrevSnapObj != 0 {
		if cur.PrevSnapObj == originObj {
			return true
		}
		prev, err := v.Datasets.Hold(ctx, cur.PrevSnapObj)
		if err != nil {
			return false
		}
		isLinear := prev.NextSnapObj == cur.Obj
		v.Datasets.Rele(prev)
		if !isLinear {
			// chain diverges (clone point); stop here per enqueue_cb.
			return false
		}
		cur = prev
	}
	return false
}

// enqueueCb walks backward through a linear snapshot chain (stopping at
// clone divergence) and enqueues the oldest reachable snapshot at its
// previous-snap txg, per spec.md §4.2's enqueue_cb.
func (v *Visitor) enqueueCb(ctx context.Context, ds *Dataset, queueObj uint64, tx *zapkv.Txn) error {
	cur := ds
	for {
		if cur.PrevSnapObj == 0 {
			return tx.AddIntKey(queueObj, cur.Obj, cur.PrevSnapTxg)
		}
		prev, err := v.Datasets.Hold(ctx, cur.PrevSnapObj)
		if err != nil {
			return err
		}
		isLinear := prev.NextSnapObj == cur.Obj
		v.Datasets.Rele(prev)
		if !isLinear {
			return tx.AddIntKey(queueObj, cur.Obj, prev.CreationTxg)
		}
		cur = prev
	}
}
