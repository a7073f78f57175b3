package main

import (
	"context"
	"testing"

	"github.com/coldtrove/poolscan/blkptr"
	"github.com/coldtrove/poolscan/dsvisit"
)

func TestAddDatasetProducesOneLeafPerDnode(t *testing.T) {
	src := newSynthSource()
	rootBP := src.addDataset(0, 5)

	if rootBP.Type != blkptr.TypeDNode {
		t.Fatalf("expected root block pointer to address a dnode block, got %v", rootBP.Type)
	}

	dnodes, err := src.ReadDnodeBlock(context.Background(), rootBP)
	if err != nil {
		t.Fatalf("ReadDnodeBlock: %v", err)
	}
	if len(dnodes) != 5 {
		t.Fatalf("expected 5 dnodes, got %d", len(dnodes))
	}
	for i, dn := range dnodes {
		if len(dn.BlkPtrs) != 1 {
			t.Fatalf("dnode %d: expected 1 block pointer, got %d", i, len(dn.BlkPtrs))
		}
		if dn.BlkPtrs[0].Birth == 0 {
			t.Fatalf("dnode %d: leaf block pointer has zero birth", i)
		}
	}
	// every fourth leaf is marked dedup
	if !dnodes[0].BlkPtrs[0].Dedup {
		t.Fatalf("expected leaf 0 to be marked dedup")
	}
	if dnodes[1].BlkPtrs[0].Dedup {
		t.Fatalf("expected leaf 1 to not be marked dedup")
	}
}

func TestAddMOSProducesReadableObjset(t *testing.T) {
	src := newSynthSource()
	rootBP := src.addMOS(3)

	if rootBP.Type != blkptr.TypeObjset {
		t.Fatalf("expected MOS root block pointer to address an objset, got %v", rootBP.Type)
	}

	os, err := src.ReadObjset(context.Background(), rootBP)
	if err != nil {
		t.Fatalf("ReadObjset: %v", err)
	}
	if os == nil {
		t.Fatalf("expected a non-nil objset for the MOS root block pointer")
	}
	if len(os.MetaDnode.BlkPtrs) != 3 {
		t.Fatalf("expected 3 meta-dnode block pointers, got %d", len(os.MetaDnode.BlkPtrs))
	}
}

func TestSynthDatasetsHoldAndEach(t *testing.T) {
	ds1 := &dsvisit.Dataset{Obj: 1}
	ds2 := &dsvisit.Dataset{Obj: 2}
	datasets := &synthDatasets{byObj: map[uint64]*dsvisit.Dataset{1: ds1, 2: ds2}}

	got, err := datasets.Hold(context.Background(), 1)
	if err != nil || got != ds1 {
		t.Fatalf("Hold(1): got %+v, err %v", got, err)
	}
	if _, err := datasets.Hold(context.Background(), 99); err == nil {
		t.Fatalf("expected Hold of unknown object to fail")
	}

	var seen int
	if err := datasets.Each(context.Background(), func(*dsvisit.Dataset) bool { seen++; return true }); err != nil {
		t.Fatalf("Each: %v", err)
	}
	if seen != 2 {
		t.Fatalf("expected Each to visit 2 datasets, visited %d", seen)
	}
}
