// Package scan implements the scan coordinator (spec.md §4.1): the state
// machine driving scrub and resilver from sync context, tying together
// the DDT pre-pass (ddt), the block-pointer recursor (recursor), the
// dataset work queue (dsvisit), the device tree (device), the scrub I/O
// admission pipeline (iopipe), and the history log (eventlog) into the
// public Init/Start/Cancel/Sync/Active/Resilvering/RestartResilver
// operations.
package scan

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/coldtrove/poolscan/blkptr"
	"github.com/coldtrove/poolscan/ddt"
	"github.com/coldtrove/poolscan/device"
	"github.com/coldtrove/poolscan/dsvisit"
	"github.com/coldtrove/poolscan/eventlog"
	"github.com/coldtrove/poolscan/internal/cfg"
	"github.com/coldtrove/poolscan/internal/cos"
	"github.com/coldtrove/poolscan/internal/metrics"
	"github.com/coldtrove/poolscan/internal/mono"
	"github.com/coldtrove/poolscan/internal/nlog"
	"github.com/coldtrove/poolscan/internal/zapkv"
	"github.com/coldtrove/poolscan/iopipe"
	"github.com/coldtrove/poolscan/scanbook"
	"github.com/coldtrove/poolscan/scancore"
)

const scanRecordDir = "pool"
const scanRecordName = "scan"

// legacyMarkerNames are named entries an older build of this software
// would have written instead of the single scanRecordName record; their
// presence at import (with or without a modern record alongside them)
// drives the stale-software handling in Init.
var legacyMarkerNames = []string{
	"scrub_func", "scrub_queue", "scrub_bookmark", "scrub_min_txg", "scrub_errors",
}

// Coordinator is the scan engine's sync-context entry point. One instance
// owns one pool's scan state; every method except the read-only
// predicates (Active, Resilvering) must be called from sync context or
// under whatever serialization the embedding program already uses to
// keep sync single-threaded, matching dsl_scan's own invariant.
type Coordinator struct {
	Store    *zapkv.Store
	Devices  device.Tree
	DSVisit  *dsvisit.Visitor
	DDTIndex *ddt.FastIndex
	Free     FreeQueue
	History  *eventlog.HistoryLog
	Notifier eventlog.Notifier

	// MOSRootBP is the pool's meta-object-set root block pointer (spec.md
	// §6's "pool-wide object set"), supplied by the embedding program the
	// same way a Dataset's RootBP is: it names data outside this
	// package's scope (the pool/device layer), not an algorithm.
	MOSRootBP blkptr.BlockPointer

	// DatasetMaxTxg returns the snapshot-ceiling txg a queued dataset's
	// pass should stop at (dsl_dataset_get_max_txg); defaults to the
	// scan's overall MaxTxg when nil.
	DatasetMaxTxg func(ctx context.Context, dsObj uint64) uint64

	// TxgSyncWaiting/ShuttingDown feed the pause predicate; AllocTxg backs
	// RestartResilver(0). All three are out-of-scope collaborators this
	// package only calls through, per spec.md §6.
	TxgSyncWaiting func() bool
	ShuttingDown   func() bool
	AllocTxg       func() uint64

	// OnResilverDone fires once a resilver finishes successfully, the
	// spa_async_request(SPA_ASYNC_RESILVER_DONE) equivalent a caller might
	// use to kick off a scrub of newly-resilvered data.
	OnResilverDone func()

	sc             *scancore.Context
	legacyQueueObj uint64
	runID          uuid.UUID
	rootIO         *iopipe.RootIO

	// ScrubIssuer is wired in by the embedding program once a read
	// collaborator exists; left nil it degrades to examine-only (no I/O
	// issued, matching cfg.Config.NoScrubIO).
	ScrubIssuer *iopipe.ScrubIssuer
}

func (c *Coordinator) cfg() *cfg.Config { return cfg.Get() }

// Init loads the persisted scan record (if any) at pool import, detecting
// a stale-software record or a bare legacy marker and scheduling a
// restart in either case rather than trusting a format this build did not
// write.
func (c *Coordinator) Init(ctx context.Context, txg uint64) error {
	c.sc = &scancore.Context{Phys: &scancore.Phys{}}

	raw, found, err := c.Store.LookupNamed(scanRecordDir, scanRecordName)
	if err != nil {
		return err
	}
	if !found {
		if _, legacyFound, _ := c.Store.LookupNamed(scanRecordDir, "scrub_func"); legacyFound {
			if legacyQueue, queueFound, _ := c.Store.LookupNamed(scanRecordDir, "scrub_queue"); queueFound {
				if n, perr := strconv.ParseUint(legacyQueue, 10, 64); perr == nil {
					c.legacyQueueObj = n
				}
			}
			nlog.Warningf("scan: legacy scrub marker present with no modern record; restarting at txg %d", txg)
			c.sc.RestartTxg.Store(txg)
		}
		return nil
	}

	phys, err := decodePhys(raw)
	if err != nil {
		return err
	}
	c.sc.Phys = phys

	if legacyQueue, legacyFound, _ := c.Store.LookupNamed(scanRecordDir, "scrub_queue"); legacyFound {
		if n, perr := strconv.ParseUint(legacyQueue, 10, 64); perr == nil {
			c.legacyQueueObj = n
		}
		nlog.Warningf("scan: stale-software scan record found alongside legacy markers; restarting at txg %d", txg)
		c.sc.RestartTxg.Store(txg)
	}
	return nil
}

// Start begins a new scan. Requesting FuncScrub is upgraded to
// FuncResilver automatically when the device tree reports an outstanding
// resilver is needed, matching dsl_scan_setup_sync's own override.
func (c *Coordinator) Start(ctx context.Context, fn scancore.Func, txg uint64) error {
	if c.sc != nil && c.sc.Phys.State == scancore.StateScanning {
		return cos.Busyf("scan: a scan is already in progress")
	}
	if err := c.Devices.Reopen(ctx); err != nil {
		return err
	}

	needed, minTxg, maxTxg := c.Devices.ResilverNeeded()
	actualFn := fn
	if fn == scancore.FuncScrub && needed {
		actualFn = scancore.FuncResilver
	}

	return c.Store.WithTxn(func(tx *zapkv.Txn) error {
		queueObj, err := tx.AllocObject()
		if err != nil {
			return err
		}

		phys := &scancore.Phys{
			Func:        actualFn,
			State:       scancore.StateScanning,
			MaxTxg:      txg,
			QueueObj:    queueObj,
			StartTime:   time.Now().Unix(),
			DDTClassMax: int(ddt.ClassDuplicate),
		}
		if actualFn == scancore.FuncResilver && needed {
			phys.MinTxg, phys.MaxTxg = minTxg, maxTxg
		}

		c.sc = &scancore.Context{Phys: phys}
		c.runID = newRunID()

		if err := c.persist(tx); err != nil {
			return err
		}

		ev := eventlog.EventScrubStart
		if actualFn == scancore.FuncResilver {
			ev = eventlog.EventResilverStart
		}
		c.Notifier.Notify(ev, c.runID)
		return c.History.AppendScanStart(eventlog.ScanStartPayload{
			Func: actualFn.String(), MinTxg: phys.MinTxg, MaxTxg: phys.MaxTxg,
		})
	})
}

// Cancel stops a scan in progress without considering it complete,
// leaving its resume bookmark untouched for a future Start to discard.
func (c *Coordinator) Cancel(ctx context.Context) error {
	if c.sc == nil || c.sc.Phys.State != scancore.StateScanning {
		return cos.NotFoundf("scan: no scan in progress")
	}
	return c.Store.WithTxn(func(tx *zapkv.Txn) error {
		return c.done(ctx, tx, false)
	})
}

// RestartResilver schedules a scan restart at txg (or at a freshly
// allocated txg if txg is 0), the dsl_resilver_restart entry point fired
// whenever the device tree's dirty-txg-lists change underneath an
// in-progress or finished scan (a new device attach, a DTL extension).
func (c *Coordinator) RestartResilver(txg uint64) {
	if txg == 0 && c.AllocTxg != nil {
		txg = c.AllocTxg()
	}
	if txg == 0 {
		return
	}
	c.sc.RestartTxg.Store(txg)
}

// Active reports whether a scan is in progress or deferred frees remain
// to drain; the public predicate spec.md §4.1 describes as gating whether
// a new Start is even attempted.
func (c *Coordinator) Active() bool {
	if c.sc != nil && c.sc.Phys.Active() {
		return true
	}
	if c.Free != nil {
		if empty, err := c.Free.Empty(context.Background()); err == nil && !empty {
			return true
		}
	}
	return false
}

// Resilvering reports whether the current scan is actively resilvering.
func (c *Coordinator) Resilvering() bool {
	return c.sc != nil && c.sc.Phys.Resilvering()
}

// Phys returns the current scan record for read-only reporting (progress
// counters, state, function). Callers must not mutate it.
func (c *Coordinator) Phys() *scancore.Phys {
	if c.sc == nil {
		return &scancore.Phys{}
	}
	return c.sc.Phys
}

// Sync is the per-txg driver (spec.md §4.1's sync algorithm): check for a
// pending restart, bail out unless this is the pass that actually runs
// traversal, reset the per-txg counters, drain deferred frees first, then
// either resume the DDT pre-pass / dataset walk or finish up.
func (c *Coordinator) Sync(ctx context.Context, txg uint64, isFirstPass bool) error {
	if restart := c.sc.RestartTxg.Load(); restart != 0 && restart <= txg {
		if c.sc.Phys.State == scancore.StateScanning {
			if err := c.Store.WithTxn(func(tx *zapkv.Txn) error { return c.done(ctx, tx, false) }); err != nil {
				return err
			}
		}
		c.sc.RestartTxg.Store(0)
		needed, _, _ := c.Devices.ResilverNeeded()
		fn := scancore.FuncScrub
		if needed {
			fn = scancore.FuncResilver
		}
		if err := c.Start(ctx, fn, txg); err != nil {
			return err
		}
	}

	if !isFirstPass || c.sc.Phys.State != scancore.StateScanning {
		return nil
	}

	c.sc.ResetForSync(mono.NanoTime())
	metrics.ScanState.Reset()
	metrics.ScanState.WithLabelValues(c.sc.Phys.State.String()).Set(1)

	if err := c.drainFree(ctx); err != nil {
		return err
	}
	if c.sc.FreeVisitedThisTxg > 0 && c.cfg().FreeMinTimeMs > 0 {
		if mono.Elapsed(c.sc.SyncStartTime, time.Duration(c.cfg().FreeMinTimeMs)*time.Millisecond) {
			// Free drain alone consumed the whole budget; traversal waits
			// for the next txg, matching dsl_scan_sync's early return.
			return c.Store.WithTxn(func(tx *zapkv.Txn) error { return c.persist(tx) })
		}
	}

	c.rootIO = iopipe.NewRootIO(ctx, true)

	err := c.Store.WithTxn(func(tx *zapkv.Txn) error { return c.visit(ctx, tx) })
	if rootErr := c.rootIO.Wait(); err == nil {
		err = rootErr
	}
	if err != nil {
		return err
	}

	if !c.sc.Pausing {
		if err := c.Store.WithTxn(func(tx *zapkv.Txn) error { return c.done(ctx, tx, true) }); err != nil {
			return err
		}
		return nil
	}
	return c.Store.WithTxn(func(tx *zapkv.Txn) error { return c.persist(tx) })
}

func (c *Coordinator) drainFree(ctx context.Context) error {
	if c.Free == nil {
		return nil
	}
	err := c.Free.Drain(ctx, c.freeCB)
	if cos.IsRestart(err) {
		return nil
	}
	return err
}

// visit runs the DDT pre-pass (if still in scope), then the MOS/dataset
// traversal resumed from the persisted bookmark, then drains the work
// queue — spec.md §4.1's visit algorithm.
func (c *Coordinator) visit(ctx context.Context, tx *zapkv.Txn) error {
	if c.DDTIndex != nil && int(c.sc.Phys.DDTBookmark.Class) <= c.sc.Phys.DDTClassMax {
		paused, err := ddt.Visit(ctx, c.sc, c.DDTIndex, c.sc.Phys.DDTClassMax, c.scanCallback, c.pauseEnv())
		if err != nil {
			return err
		}
		if paused {
			return nil
		}
	}

	switch c.sc.Phys.Bookmark.ObjSet {
	case scanbook.MetaObjset:
		// First visit (or resuming one paused mid-MOS-walk): traverse the
		// pool's root block pointer, then bootstrap the work queue from
		// every dataset in the pool, per spec.md §4.4's legacy path.
		if err := c.DSVisit.Recursor.VisitRootBP(ctx, c.sc, c.MOSRootBP, scanbook.MetaObjset); err != nil {
			if cos.IsPaused(err) {
				return nil
			}
			return err
		}
		if err := c.DSVisit.SeedQueue(ctx, c.sc, tx); err != nil {
			return err
		}
		c.sc.Phys.Bookmark = scanbook.Bookmark{}
	case scanbook.DestroyedObjset:
		// The dataset we were visiting was destroyed with no successor;
		// fall straight through to the queue drain.
	default:
		// Resuming mid-dataset: scn_cur_min_txg/scn_cur_max_txg were
		// already set (and persisted) when this dataset was first
		// dequeued, before the pause that left this bookmark behind.
		dsObj := c.sc.Phys.Bookmark.ObjSet
		if err := c.DSVisit.VisitDS(ctx, c.sc, dsObj, tx); err != nil {
			return err
		}
		if c.sc.Pausing {
			return nil
		}
		c.sc.Phys.Bookmark = scanbook.Bookmark{}
	}

	return c.drainQueue(ctx, tx)
}

func (c *Coordinator) drainQueue(ctx context.Context, tx *zapkv.Txn) error {
	var entries []zapkv.Entry
	if err := c.Store.EachEntry(c.sc.Phys.QueueObj, func(e zapkv.Entry) bool {
		entries = append(entries, e)
		return true
	}); err != nil {
		return err
	}

	for _, e := range entries {
		if err := tx.RemoveIntKey(c.sc.Phys.QueueObj, e.Key); err != nil {
			return err
		}

		c.sc.Phys.CurMinTxg = maxU64(c.sc.Phys.MinTxg, e.Val)
		c.sc.Phys.CurMaxTxg = c.datasetMaxTxg(ctx, e.Key)

		if err := c.DSVisit.VisitDS(ctx, c.sc, e.Key, tx); err != nil {
			return err
		}
		if c.sc.Pausing {
			c.sc.Phys.Bookmark.ObjSet = e.Key
			return nil
		}
	}
	return nil
}

func (c *Coordinator) datasetMaxTxg(ctx context.Context, dsObj uint64) uint64 {
	if c.DatasetMaxTxg != nil {
		return c.DatasetMaxTxg(ctx, dsObj)
	}
	return c.sc.Phys.MaxTxg
}

// done transitions out of SCANNING: marks the record finished or
// canceled, frees the work-queue object (and any legacy queue object
// carried over from Init), reassesses every device's DTL, persists, and
// fires the notifier plus history-log entry.
func (c *Coordinator) done(ctx context.Context, tx *zapkv.Txn, complete bool) error {
	phys := c.sc.Phys
	if complete {
		phys.State = scancore.StateFinished
	} else {
		phys.State = scancore.StateCanceled
	}
	phys.EndTime = time.Now().Unix()

	if phys.QueueObj != 0 {
		if err := tx.FreeObject(phys.QueueObj); err != nil {
			return err
		}
	}
	if c.legacyQueueObj != 0 {
		if err := tx.FreeObject(c.legacyQueueObj); err != nil {
			return err
		}
		c.legacyQueueObj = 0
	}
	for _, name := range legacyMarkerNames {
		if err := tx.DeleteNamed(scanRecordDir, name); err != nil {
			return err
		}
	}

	if err := c.Devices.DTLReassess(ctx, phys.MaxTxg, complete); err != nil {
		return err
	}
	if err := c.persist(tx); err != nil {
		return err
	}

	ev := eventlog.EventScrubFinish
	if phys.Func == scancore.FuncResilver {
		ev = eventlog.EventResilverFinish
	}
	c.Notifier.Notify(ev, c.runID)
	if err := c.History.AppendScanDone(eventlog.ScanDonePayload{Complete: complete}); err != nil {
		return err
	}

	metrics.ScanState.Reset()
	metrics.ScanState.WithLabelValues(phys.State.String()).Set(1)

	if complete && phys.Func == scancore.FuncResilver && c.OnResilverDone != nil {
		c.OnResilverDone()
	}
	return nil
}

func (c *Coordinator) persist(tx *zapkv.Txn) error {
	return tx.SetNamed(scanRecordDir, scanRecordName, encodePhys(c.sc.Phys))
}

func (c *Coordinator) pauseEnv() scancore.PauseEnv {
	minMs := c.cfg().ScanMinTimeMs
	if c.sc.Phys.Func == scancore.FuncResilver {
		minMs = c.cfg().ResilverMinTimeMs
	}
	return scancore.PauseEnv{
		TxgTimeout:     time.Duration(c.cfg().TxgTimeoutSec) * time.Second,
		MinTime:        time.Duration(minMs) * time.Millisecond,
		TxgSyncWaiting: c.TxgSyncWaiting,
		ShuttingDown:   c.ShuttingDown,
	}
}

func maxU64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}

func newRunID() uuid.UUID {
	id, err := uuid.NewRandom()
	if err != nil {
		return uuid.UUID{}
	}
	return id
}
