// Package scancore holds the scan state shared by every other domain
// package (ddt, recursor, dsvisit, scan) without creating import cycles:
// the persisted state record, the in-memory scan context, block-visit
// statistics, and the pause/resume predicates that both the recursor and
// the DDT pre-pass evaluate identically.
package scancore

import (
	"github.com/coldtrove/poolscan/checksum"
	"github.com/coldtrove/poolscan/scanbook"
)

// Func identifies which operation a scan performs.
type Func uint8

const (
	FuncNone Func = iota
	FuncScrub
	FuncResilver
)

func (f Func) String() string {
	switch f {
	case FuncScrub:
		return "scrub"
	case FuncResilver:
		return "resilver"
	default:
		return "none"
	}
}

// State is the scan state machine's value.
type State uint8

const (
	StateNone State = iota
	StateScanning
	StateFinished
	StateCanceled
)

func (s State) String() string {
	switch s {
	case StateScanning:
		return "scanning"
	case StateFinished:
		return "finished"
	case StateCanceled:
		return "canceled"
	default:
		return "none"
	}
}

// Flag bits recorded alongside the persisted state.
type Flag uint32

const (
	// FlagVisitDSAgain marks that the dataset currently at the head of the
	// bookmark/queue needs a further pass once the current one completes,
	// e.g. because it was destroyed mid-traversal and its successor
	// inherited the min/max window.
	FlagVisitDSAgain Flag = 1 << iota
)

// DDTBookmark is the DDT pre-pass cursor: <class, checksum-type, checksum,
// cursor-within-that-checksum's-chain>.
type DDTBookmark struct {
	Class        int
	ChecksumType checksum.Algorithm
	Checksum     checksum.Digest
	Cursor       uint64
}

// IsZero reports the DDT pre-pass has not started (or has been reset).
func (b DDTBookmark) IsZero() bool {
	return b.Class == 0 && b.ChecksumType == 0 && b.Checksum == (checksum.Digest{}) && b.Cursor == 0
}

// Phys is the persisted scan record: one instance per pool, read by Init
// and rewritten atomically at the end of every sync that touches it.
type Phys struct {
	Func Func
	State State

	MinTxg, MaxTxg       uint64
	CurMinTxg, CurMaxTxg uint64

	StartTime, EndTime int64 // wall-clock unix seconds

	ToExamine, Examined, Processed, Errors uint64

	DDTClassMax int

	QueueObj uint64 // 0 means "no queue object allocated"

	Bookmark    scanbook.Bookmark
	DDTBookmark DDTBookmark

	Flags Flag
}

func (p *Phys) HasFlag(f Flag) bool  { return p.Flags&f != 0 }
func (p *Phys) SetFlag(f Flag)       { p.Flags |= f }
func (p *Phys) ClearFlag(f Flag)     { p.Flags &^= f }

// Active reports whether a scan is in progress, ignoring the free-queue
// half of the public Active() predicate (scan.Coordinator.Active also
// checks the free queue; that requires a collaborator this package must
// not depend on).
func (p *Phys) Active() bool { return p.State == StateScanning }

// Resilvering reports the scan is actively resilvering.
func (p *Phys) Resilvering() bool { return p.State == StateScanning && p.Func == FuncResilver }
