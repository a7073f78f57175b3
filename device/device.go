// Package device models the vdev tree and dirty-txg-list (DTL) interfaces
// the scan engine consumes from the device layer (spec.md §6), plus a
// local-file test device used by the in-repo benchmarking harness and
// tests. Production device trees are out of scope (spec.md §1): this
// package only needs to satisfy the Tree/Vdev contracts.
package device

import "context"

// Vdev is one device (leaf or mirror/raidz top-level) in the pool's device
// tree.
type Vdev interface {
	ID() uint32
	// DTLContains reports whether this device's PARTIAL dirty-txg-list
	// covers txg — the resilver scan callback's needs_io test (§4.5).
	DTLContains(txg uint64) bool
}

// Tree is the pool-wide device tree collaborator.
type Tree interface {
	// ResilverNeeded reports whether any device has an outstanding dirty
	// range, and if so the txg window it spans (vdev_resilver_needed).
	ResilverNeeded() (needed bool, minTxg, maxTxg uint64)
	// DTLReassess recomputes every device's DTL after a scan completes or
	// is canceled.
	DTLReassess(ctx context.Context, maxTxg uint64, complete bool) error
	// Reopen reprobes every device; must be called outside sync context
	// under the device-config writer lock before a scan starts (§4.1).
	Reopen(ctx context.Context) error
	Lookup(id uint32) (Vdev, bool)
}
