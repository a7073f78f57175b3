package scancore

import (
	"time"

	"github.com/coldtrove/poolscan/internal/mono"
	"github.com/coldtrove/poolscan/scanbook"
)

// PauseEnv supplies the ambient facts the pause predicate needs beyond the
// scan context itself, so scancore never depends on a txg scheduler or
// device-shutdown package directly.
type PauseEnv struct {
	TxgTimeout     time.Duration
	MinTime        time.Duration // caller picks Resilver or Scrub variant
	TxgSyncWaiting func() bool
	ShuttingDown   func() bool
}

// CheckPause implements the pause predicate evaluated at the top of every
// visit_bp call: never on user/group accounting objects, only at L0,
// never while a resume bookmark is still guiding the walk, and only past
// one of the three time/shutdown conditions. On firing it persists zb as
// the resume bookmark into sc.Phys and latches sc.Pausing.
func CheckPause(sc *Context, zb scanbook.Bookmark, env PauseEnv) bool {
	if scanbook.IsAccountingObject(zb.Object) {
		return false
	}
	if sc.Pausing {
		return true
	}
	if !scanbook.IsZero(sc.Phys.Bookmark) {
		// Still resuming toward a previously persisted bookmark; per
		// spec.md §9 this predicate is not evaluated again until resume
		// clears, even though that can defer pausing arbitrarily long.
		return false
	}
	if zb.Level != 0 {
		return false
	}

	elapsed := mono.Since(sc.SyncStartTime)
	shouldPause := elapsed >= env.TxgTimeout ||
		(elapsed >= env.MinTime && env.TxgSyncWaiting != nil && env.TxgSyncWaiting()) ||
		(env.ShuttingDown != nil && env.ShuttingDown())
	if !shouldPause {
		return false
	}

	sc.Phys.Bookmark = zb
	sc.Pausing = true
	return true
}

// CheckResume implements the resume-skip check: skip reports whether the
// subtree rooted at zb lies wholly before the persisted resume bookmark
// and should be pruned; clearResume reports the resume bookmark has been
// satisfied (equaled or passed) and should be zeroed so CheckPause starts
// firing again.
func CheckResume(dnp scanbook.DnodeShape, resume, zb scanbook.Bookmark) (skip, clearResume bool) {
	if scanbook.IsZero(resume) {
		return false, false
	}
	if scanbook.IsBefore(dnp, zb, resume) {
		return true, false
	}
	if scanbook.Equal(zb, resume) || scanbook.IsBefore(dnp, resume, zb) {
		return false, true
	}
	return false, false
}
