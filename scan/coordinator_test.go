package scan

import (
	"context"
	"testing"
	"time"

	"github.com/coldtrove/poolscan/blkptr"
	"github.com/coldtrove/poolscan/device"
	"github.com/coldtrove/poolscan/dsvisit"
	"github.com/coldtrove/poolscan/eventlog"
	"github.com/coldtrove/poolscan/internal/cfg"
	"github.com/coldtrove/poolscan/internal/zapkv"
	"github.com/coldtrove/poolscan/recursor"
	"github.com/coldtrove/poolscan/scanbook"
	"github.com/coldtrove/poolscan/scancore"
)

// fakeDevices is the minimal device.Tree fixture: never needs a resilver,
// reopen/reassess are no-ops.
type fakeDevices struct{}

func (fakeDevices) ResilverNeeded() (bool, uint64, uint64)          { return false, 0, 0 }
func (fakeDevices) DTLReassess(ctx context.Context, maxTxg uint64, complete bool) error { return nil }
func (fakeDevices) Reopen(ctx context.Context) error                { return nil }
func (fakeDevices) Lookup(id uint32) (device.Vdev, bool) { return nil, false }

// fakeSource is a recursor.Source fixture with one leaf-only dataset root.
type fakeSource struct{}

func (fakeSource) ReadObjset(ctx context.Context, bp blkptr.BlockPointer) (*recursor.Objset, error) {
	return nil, nil
}
func (fakeSource) ReadDnodeBlock(ctx context.Context, bp blkptr.BlockPointer) ([]*recursor.Dnode, error) {
	return nil, nil
}
func (fakeSource) ReadIndirect(ctx context.Context, bp blkptr.BlockPointer) ([]blkptr.BlockPointer, error) {
	return nil, nil
}
func (fakeSource) Prefetch(ctx context.Context, bp blkptr.BlockPointer) {}

// fakeDatasets holds a single leaf-rooted, childless dataset.
type fakeDatasets struct {
	ds *dsvisit.Dataset
}

func (f *fakeDatasets) Hold(ctx context.Context, obj uint64) (*dsvisit.Dataset, error) {
	return f.ds, nil
}
func (f *fakeDatasets) Rele(ds *dsvisit.Dataset) {}
func (f *fakeDatasets) Each(ctx context.Context, fn func(*dsvisit.Dataset) bool) error {
	fn(f.ds)
	return nil
}
func (f *fakeDatasets) NextClonesEntries(ctx context.Context, ds *dsvisit.Dataset) (map[uint64]uint64, error) {
	return nil, nil
}

func neverPauseCfg() {
	cfg.Put(&cfg.Config{
		ScanMinTimeMs:     int64(time.Hour / time.Millisecond),
		ResilverMinTimeMs: int64(time.Hour / time.Millisecond),
		FreeMinTimeMs:     int64(time.Hour / time.Millisecond),
		TxgTimeoutSec:     int64(time.Hour / time.Second),
		ScrubMaxInflight:  8,
		NoScrubIO:         true,
	})
}

func newTestCoordinator(t *testing.T) (*Coordinator, *fakeDatasets) {
	t.Helper()
	neverPauseCfg()

	store, err := zapkv.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	ds := &dsvisit.Dataset{
		Obj: 100,
		RootBP: blkptr.BlockPointer{
			Level: 0, Type: blkptr.TypePlainData, Birth: 5, LSize: 4096, PSize: 4096, NumCopies: 1,
		},
	}
	datasets := &fakeDatasets{ds: ds}

	rv := &recursor.Visitor{
		Source:   fakeSource{},
		Callback: func(ctx context.Context, sc *scancore.Context, bp blkptr.BlockPointer, zb scanbook.Bookmark) error { return nil },
		PauseEnv: scancore.PauseEnv{TxgTimeout: time.Hour, MinTime: time.Hour},
	}
	dv := &dsvisit.Visitor{Datasets: datasets, Store: store, Recursor: rv}

	coord := &Coordinator{
		Store:    store,
		Devices:  fakeDevices{},
		DSVisit:  dv,
		History:  &eventlog.HistoryLog{},
		Notifier: eventlog.NopNotifier{},
	}
	return coord, datasets
}

func TestStartThenSyncFinishesCleanScan(t *testing.T) {
	coord, _ := newTestCoordinator(t)
	ctx := context.Background()

	if err := coord.Init(ctx, 1); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := coord.Start(ctx, scancore.FuncScrub, 10); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !coord.Active() {
		t.Fatalf("expected Active() after Start")
	}

	// MOSRootBP is left zero-valued (no pool metadata to traverse in this
	// fixture); the first Sync's MOS bootstrap still runs SeedQueue over
	// fakeDatasets, enqueuing dataset 100 the same way a real pool's
	// meta-object-set visit would.
	if err := coord.Sync(ctx, 10, true); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	if coord.sc.Phys.State != scancore.StateFinished {
		t.Fatalf("expected scan to finish, got state %v", coord.sc.Phys.State)
	}
	if coord.Active() {
		t.Fatalf("expected Active()==false once finished")
	}
}

func TestCancelStopsInProgressScan(t *testing.T) {
	coord, _ := newTestCoordinator(t)
	ctx := context.Background()

	if err := coord.Init(ctx, 1); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := coord.Start(ctx, scancore.FuncScrub, 10); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := coord.Cancel(ctx); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if coord.sc.Phys.State != scancore.StateCanceled {
		t.Fatalf("expected canceled state, got %v", coord.sc.Phys.State)
	}
	if err := coord.Cancel(ctx); err == nil {
		t.Fatalf("expected second Cancel to fail, scan already stopped")
	}
}

func TestRestartResilverSchedulesRestartOnNextSync(t *testing.T) {
	coord, _ := newTestCoordinator(t)
	ctx := context.Background()

	if err := coord.Init(ctx, 1); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := coord.Start(ctx, scancore.FuncScrub, 10); err != nil {
		t.Fatalf("Start: %v", err)
	}

	coord.RestartResilver(11)
	if coord.sc.RestartTxg.Load() != 11 {
		t.Fatalf("expected restart txg 11 scheduled, got %d", coord.sc.RestartTxg.Load())
	}

	if err := coord.Sync(ctx, 11, false); err != nil {
		t.Fatalf("Sync at restart txg: %v", err)
	}
	if coord.sc.RestartTxg.Load() != 0 {
		t.Fatalf("expected restart txg cleared after firing")
	}
	if coord.sc.Phys.State != scancore.StateScanning {
		t.Fatalf("expected a fresh scan started after restart, got state %v", coord.sc.Phys.State)
	}
}
