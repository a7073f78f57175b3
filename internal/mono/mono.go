// Package mono provides monotonic-clock helpers used anywhere elapsed time
// must not be perturbed by wall-clock adjustments: the scan pause predicate,
// the per-sync start time and the deferred-free drain budget all read from
// it instead of time.Now().
package mono

import "time"

var start = time.Now()

// NanoTime returns nanoseconds elapsed since the package was loaded. Only
// deltas between two NanoTime values are meaningful.
func NanoTime() int64 {
	return int64(time.Since(start))
}

// Since returns the duration elapsed since a NanoTime reading.
func Since(t int64) time.Duration {
	return time.Duration(NanoTime() - t)
}

// Elapsed reports whether d has passed since t.
func Elapsed(t int64, d time.Duration) bool {
	return Since(t) >= d
}
