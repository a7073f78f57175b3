// poolscanbench drives the scan coordinator against a small synthetic
// in-memory pool: a chain of datasets, each a dnode block of leaf data
// blocks, scanned one simulated txg at a time. It exists to exercise the
// coordinator end to end outside of package tests — no real pool, no
// persistence beyond an in-memory zapkv store.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	kingpin "github.com/alecthomas/kingpin/v2"

	"github.com/coldtrove/poolscan/blkptr"
	"github.com/coldtrove/poolscan/checksum"
	"github.com/coldtrove/poolscan/ddt"
	"github.com/coldtrove/poolscan/device"
	"github.com/coldtrove/poolscan/dsvisit"
	"github.com/coldtrove/poolscan/eventlog"
	"github.com/coldtrove/poolscan/internal/cfg"
	"github.com/coldtrove/poolscan/internal/nlog"
	"github.com/coldtrove/poolscan/internal/zapkv"
	"github.com/coldtrove/poolscan/iopipe"
	"github.com/coldtrove/poolscan/recursor"
	"github.com/coldtrove/poolscan/scan"
	"github.com/coldtrove/poolscan/scancore"
)

var (
	app = kingpin.New("poolscanbench", "Drives the pool scan coordinator against a synthetic in-memory pool.")

	funcName    = app.Flag("func", "scan function to run").Default("scrub").Enum("scrub", "resilver")
	datasets    = app.Flag("datasets", "number of chained datasets to synthesize").Default("4").Int()
	leaves      = app.Flag("leaves", "leaf data blocks per dataset").Default("16").Int()
	maxTxgs     = app.Flag("max-txgs", "stop after this many simulated txgs if the scan hasn't finished").Default("1000").Int()
	scrubIO     = app.Flag("scrub-io", "issue simulated scrub reads instead of running examine-only").Default("true").Bool()
	maxInflight = app.Flag("max-inflight", "scrub read admission limit").Default("8").Int()
	vdevDir     = app.Flag("vdev-dir", "directory to materialize synthetic vdev files under").Default(filepath.Join(os.TempDir(), "poolscanbench-vdevs")).String()
	withDDT     = app.Flag("ddt", "run a DDT pre-pass seeded with a handful of duplicate entries").Default("false").Bool()
	verbose     = app.Flag("verbose", "enable verbose logging").Default("false").Bool()
)

func main() {
	kingpin.MustParse(app.Parse(os.Args[1:]))

	if *verbose {
		nlog.SetLevel(nlog.LevelVerbose)
	}

	cfg.Put(&cfg.Config{
		ScanMinTimeMs:     1000,
		ResilverMinTimeMs: 3000,
		FreeMinTimeMs:     1000,
		TxgTimeoutSec:     5,
		ScrubMaxInflight:  *maxInflight,
		NoScrubIO:         !*scrubIO,
	})

	if err := run(context.Background()); err != nil {
		nlog.Errorf("poolscanbench: %v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	store, err := zapkv.Open(":memory:")
	if err != nil {
		return err
	}
	defer store.Close()

	devs := device.NewLocalFileTree(*vdevDir)
	for i := 0; i < 3; i++ {
		if _, err := device.EnsureFile(*vdevDir, fmt.Sprintf("vdev%d", i)); err != nil {
			return err
		}
	}
	if err := devs.Reopen(ctx); err != nil {
		return err
	}

	src := newSynthSource()
	dsByObj := make(map[uint64]*dsvisit.Dataset, *datasets)
	var prevObj uint64
	for i := 0; i < *datasets; i++ {
		obj := uint64(100 + i)
		ds := &dsvisit.Dataset{
			Obj:         obj,
			RootBP:      src.addDataset(uint64(i), *leaves),
			CreationTxg: uint64(i + 1),
			IsSnapshot:  i > 0,
			PrevSnapObj: prevObj,
		}
		if prevObj != 0 {
			dsByObj[prevObj].NextSnapObj = obj
		}
		dsByObj[obj] = ds
		prevObj = obj
	}

	datasetSrc := &synthDatasets{byObj: dsByObj}
	mosRootBP := src.addMOS(3)

	minTimeMs := cfg.Get().ScanMinTimeMs
	if *funcName == "resilver" {
		minTimeMs = cfg.Get().ResilverMinTimeMs
	}
	rv := &recursor.Visitor{
		Source:     src,
		Stats:      scancore.NewBlockStats(),
		NoPrefetch: false,
		PauseEnv: scancore.PauseEnv{
			TxgTimeout: time.Duration(cfg.Get().TxgTimeoutSec) * time.Second,
			MinTime:    time.Duration(minTimeMs) * time.Millisecond,
		},
	}
	dv := &dsvisit.Visitor{Datasets: datasetSrc, Store: store, Recursor: rv}

	coord := &scan.Coordinator{
		Store:     store,
		Devices:   devs,
		DSVisit:   dv,
		Free:      &scan.MemFreeQueue{},
		History:   &eventlog.HistoryLog{},
		Notifier:  eventlog.NopNotifier{},
		MOSRootBP: mosRootBP,
		DatasetMaxTxg: func(ctx context.Context, dsObj uint64) uint64 {
			return uint64(*datasets + 1)
		},
		TxgSyncWaiting: func() bool { return false },
		ShuttingDown:   func() bool { return false },
	}
	rv.Callback = coord.ScanCallback

	if *withDDT {
		idx := ddt.NewMemIndex()
		seedDDT(idx)
		coord.DDTIndex = ddt.NewFastIndex(idx, ddt.ClassDuplicate)
	}

	if *scrubIO {
		coord.ScrubIssuer = iopipe.NewScrubIssuer(*maxInflight, func(ctx context.Context, bp blkptr.BlockPointer) (*iopipe.Buffer, error) {
			buf := iopipe.NewBuffer(int(bp.PSize))
			return buf, nil
		})
	}

	fn := scancore.FuncScrub
	if *funcName == "resilver" {
		fn = scancore.FuncResilver
	}

	if err := coord.Init(ctx, 1); err != nil {
		return err
	}
	if err := coord.Start(ctx, fn, 1); err != nil {
		return err
	}

	for txg := uint64(1); coord.Active() && int(txg) <= *maxTxgs; txg++ {
		if err := coord.Sync(ctx, txg, true); err != nil {
			return err
		}
		nlog.Infof("poolscanbench: txg %d: examined=%d processed=%d errors=%d",
			txg, coord.Phys().Examined, coord.Phys().Processed, coord.Phys().Errors)
	}

	if coord.Active() {
		return fmt.Errorf("poolscanbench: scan did not finish within %d txgs", *maxTxgs)
	}

	phys := coord.Phys()
	fmt.Printf("scan finished: state=%s func=%s examined=%d processed=%d errors=%d\n",
		phys.State, phys.Func, phys.Examined, phys.Processed, phys.Errors)
	return nil
}

func seedDDT(idx *ddt.MemIndex) {
	for i := 0; i < 4; i++ {
		d, _ := checksum.Compute(checksum.XXHash, []byte(fmt.Sprintf("dup-block-%d", i)))
		idx.Put(ddt.Entry{
			ChecksumType: checksum.XXHash,
			Checksum:     d,
			LSize:        4096,
			PSize:        4096,
			RefCount:     2,
			NumCopies:    1,
			Copies:       [blkptr.MaxCopies]ddt.PhysCopy{{DVA: blkptr.DVA{VDev: 0, ASize: 4096}, Birth: uint64(i + 1)}},
		})
	}
}
