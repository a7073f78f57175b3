package device

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/karrick/godirwalk"
	"github.com/lufia/iostat"

	"github.com/coldtrove/poolscan/internal/cos"
	"github.com/coldtrove/poolscan/internal/nlog"
)

// LocalFileTree is a test-only device tree backed by a directory of flat
// files, one per vdev, used by cmd/poolscanbench in place of a real block
// device stack. Reopen walks the directory with
// godirwalk to discover vdev files; I/O-rate sampling for diagnostics
// uses lufia/iostat against the underlying filesystem's device.
type LocalFileTree struct {
	root string

	mu     sync.RWMutex
	vdevs  map[uint32]*LocalFileVdev
	nextID uint32
}

// NewLocalFileTree creates a tree rooted at dir, which must already exist.
func NewLocalFileTree(dir string) *LocalFileTree {
	return &LocalFileTree{root: dir, vdevs: make(map[uint32]*LocalFileVdev)}
}

func (t *LocalFileTree) Reopen(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	discovered := make(map[uint32]*LocalFileVdev)
	err := godirwalk.Walk(t.root, &godirwalk.Options{
		Callback: func(path string, de *godirwalk.Dirent) error {
			if de.IsDir() || filepath.Ext(path) != ".vdev" {
				return nil
			}
			id := t.idFor(path)
			if existing, ok := t.vdevs[id]; ok {
				discovered[id] = existing
			} else {
				discovered[id] = &LocalFileVdev{id: id, path: path}
			}
			return nil
		},
		Unsorted: true,
	})
	if err != nil {
		return cos.IOErrorf("device: reopen %s: %v", t.root, err)
	}
	t.vdevs = discovered
	nlog.Infof("device: reopened %d vdev(s) under %s", len(discovered), t.root)
	return nil
}

func (t *LocalFileTree) idFor(path string) uint32 {
	h := uint32(2166136261)
	for i := 0; i < len(path); i++ {
		h ^= uint32(path[i])
		h *= 16777619
	}
	return h
}

func (t *LocalFileTree) Lookup(id uint32) (Vdev, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.vdevs[id]
	return v, ok
}

func (t *LocalFileTree) ResilverNeeded() (bool, uint64, uint64) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var needed bool
	var min, max uint64
	for _, v := range t.vdevs {
		if lo, hi, ok := v.dtlRange(); ok {
			needed = true
			if min == 0 || lo < min {
				min = lo
			}
			if hi > max {
				max = hi
			}
		}
	}
	return needed, min, max
}

func (t *LocalFileTree) DTLReassess(ctx context.Context, maxTxg uint64, complete bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, v := range t.vdevs {
		if complete {
			v.clearDTLUpTo(maxTxg)
		} else {
			v.clearTemporaryDTL()
		}
	}
	return nil
}

// SampleIORates reports a best-effort per-device transfer rate using
// lufia/iostat, purely diagnostic (never consulted for correctness).
func (t *LocalFileTree) SampleIORates() (map[string]float64, error) {
	stats, err := iostat.ReadDriveStats()
	if err != nil {
		return nil, cos.IOErrorf("device: iostat: %v", err)
	}
	rates := make(map[string]float64, len(stats))
	for _, s := range stats {
		rates[s.Name] = s.BytesReadPerSecond + s.BytesWrittenPerSecond
	}
	return rates, nil
}

// LocalFileVdev is one vdev file plus an in-memory PARTIAL DTL range, set
// through SetDTL to simulate device staleness.
type LocalFileVdev struct {
	id   uint32
	path string

	mu        sync.Mutex
	dtlLo     uint64
	dtlHi     uint64
	dtlActive bool
}

func (v *LocalFileVdev) ID() uint32 { return v.id }

// SetDTL marks this device's PARTIAL dirty range as [lo, hi], simulating
// having missed writes across that txg window.
func (v *LocalFileVdev) SetDTL(lo, hi uint64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.dtlLo, v.dtlHi, v.dtlActive = lo, hi, true
}

func (v *LocalFileVdev) DTLContains(txg uint64) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.dtlActive && txg >= v.dtlLo && txg <= v.dtlHi
}

func (v *LocalFileVdev) dtlRange() (lo, hi uint64, ok bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.dtlLo, v.dtlHi, v.dtlActive
}

func (v *LocalFileVdev) clearDTLUpTo(maxTxg uint64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.dtlActive && v.dtlHi <= maxTxg {
		v.dtlActive = false
	}
}

func (v *LocalFileVdev) clearTemporaryDTL() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.dtlActive = false
}

// EnsureFile creates an empty vdev file at dir/name if absent, used by
// tests and the benchmarking harness to materialize a device tree.
func EnsureFile(dir, name string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, name+".vdev")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return path, nil
}
