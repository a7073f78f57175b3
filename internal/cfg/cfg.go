// Package cfg mirrors the teacher's cmn.GCO ("Global Config Owner")
// pattern: a process-wide configuration snapshot, swapped atomically,
// read via Get() from any goroutine without locking.
package cfg

import "sync/atomic"

// Config holds the tunables spec.md §6 names explicitly.
type Config struct {
	// ScanMinTimeMs is how long a scrub pass runs in one sync before the
	// pause predicate may pause it for a waiting txg sync.
	ScanMinTimeMs int64
	// ResilverMinTimeMs is the resilver-specific variant (higher priority,
	// longer default budget per txg: 3000ms vs 1000ms).
	ResilverMinTimeMs int64
	// FreeMinTimeMs bounds the deferred-free drain budget per txg.
	FreeMinTimeMs int64
	// TxgTimeoutSec is the nominal wall-clock budget of one txg: once it has
	// elapsed the pause predicate pauses whether or not a sync is waiting.
	TxgTimeoutSec int64
	// ScrubMaxInflight bounds concurrent scrub reads admitted to iopipe.
	ScrubMaxInflight int
	// NoScrubIO disables issuing scrub reads entirely (examine-only, for
	// testing the traversal without touching devices).
	NoScrubIO bool
	// NoScrubPrefetch disables the recursor's speculative prefetch.
	NoScrubPrefetch bool
	// ScrubDDTClassMax is carried in the snapshot but read by no package:
	// Start always sets the scan's DDT class bound to ddt.ClassDuplicate.
	ScrubDDTClassMax int
	// DelayCompletion is carried in the snapshot but read by no package: a
	// scan is never held back from completing.
	DelayCompletion bool
}

// Default mirrors the original's compiled-in defaults
// (zfs_scan_min_time_ms=1000, zfs_resilver_min_time_ms=3000,
// zfs_free_min_time_ms=1000, zfs_scrub_max_inflight).
func Default() *Config {
	return &Config{
		ScanMinTimeMs:     1000,
		ResilverMinTimeMs: 3000,
		FreeMinTimeMs:     1000,
		TxgTimeoutSec:     5,
		ScrubMaxInflight:  32,
	}
}

type gco struct {
	v atomic.Pointer[Config]
}

var globalGCO gco

func init() {
	globalGCO.v.Store(Default())
}

// Get returns the current config snapshot. Cheap, lock-free, safe from any
// goroutine; matches cmn.GCO.Get() call sites throughout the teacher repo.
func Get() *Config {
	return globalGCO.v.Load()
}

// Put installs a new config snapshot, used by tests and by whatever process
// owns live tunable updates.
func Put(c *Config) {
	globalGCO.v.Store(c)
}
