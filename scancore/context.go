package scancore

import "github.com/coldtrove/poolscan/internal/ratomic"

// Context is the in-memory scan state that never gets persisted directly;
// it is rebuilt fresh from Phys (and pool-wide ambient state) on every
// pool import.
type Context struct {
	Phys *Phys

	// RestartTxg, when non-zero and <= the current txg, tells sync to
	// tear down and restart the scan (dsl_resilver_restart's mechanism).
	RestartTxg ratomic.Uint64

	// Pausing is set the first time the pause predicate fires during this
	// txg's sync call; once set it stays set for the remainder of the
	// call so every subsequent visit_bp short-circuits immediately.
	Pausing bool

	// SyncStartTime is a mono.NanoTime reading taken at the top of sync,
	// used by the pause predicate instead of wall-clock time.
	SyncStartTime int64

	// VisitedThisTxg counts scan-callback invocations (traversal and free
	// drain combined is wrong per spec.md §8 — tracked separately below)
	// during the current sync call, reset to 0 at its start.
	VisitedThisTxg uint64

	// FreeVisitedThisTxg is the free-drain's own per-txg counter, kept
	// apart from VisitedThisTxg per the testable property in spec.md §8
	// ("separately for free drain and traversal").
	FreeVisitedThisTxg uint64

	// PassExamined is the supplemented per-sync-pass examined counter
	// (spa_scan_pass_exam in the original), reset every sync, used only
	// for progress-rate reporting — never for correctness decisions.
	PassExamined uint64
}

// ResetForSync is called at the top of every sync pass that actually
// drives the traversal (step 3 of the coordinator's sync algorithm).
func (c *Context) ResetForSync(now int64) {
	c.VisitedThisTxg = 0
	c.FreeVisitedThisTxg = 0
	c.PassExamined = 0
	c.Pausing = false
	c.SyncStartTime = now
}
