package dsvisit

import (
	"context"
	"testing"

	"github.com/coldtrove/poolscan/internal/zapkv"
	"github.com/coldtrove/poolscan/scancore"
)

func TestDSDestroyedAdvancesBookmarkToSuccessor(t *testing.T) {
	store, err := zapkv.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	v := &Visitor{Store: store}
	sc := &scancore.Context{Phys: &scancore.Phys{QueueObj: 1}}
	sc.Phys.Bookmark.ObjSet = 42

	ds := &Dataset{Obj: 42, IsSnapshot: true, NextSnapObj: 43}

	err = store.WithTxn(func(tx *zapkv.Txn) error {
		return v.DSDestroyed(context.Background(), sc, ds, tx)
	})
	if err != nil {
		t.Fatalf("DSDestroyed: %v", err)
	}

	if sc.Phys.Bookmark.ObjSet != 43 {
		t.Fatalf("expected bookmark objset to advance to successor 43, got %d", sc.Phys.Bookmark.ObjSet)
	}
	if !sc.Phys.HasFlag(scancore.FlagVisitDSAgain) {
		t.Fatalf("expected VISIT_DS_AGAIN to be set")
	}
}

func TestDSCloneSwappedExchangesQueueEntries(t *testing.T) {
	store, err := zapkv.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	v := &Visitor{Store: store}
	sc := &scancore.Context{Phys: &scancore.Phys{QueueObj: 7}}

	if err := store.WithTxn(func(tx *zapkv.Txn) error {
		return tx.AddIntKey(7, 100, 5)
	}); err != nil {
		t.Fatalf("seed queue: %v", err)
	}

	ds1 := &Dataset{Obj: 100}
	ds2 := &Dataset{Obj: 200}

	if err := store.WithTxn(func(tx *zapkv.Txn) error {
		return v.DSCloneSwapped(context.Background(), sc, ds1, ds2, tx)
	}); err != nil {
		t.Fatalf("DSCloneSwapped: %v", err)
	}

	if _, found, _ := store.LookupIntKey(7, 100); found {
		t.Fatalf("expected entry for ds1 to have moved off its old key")
	}
	val, found, err := store.LookupIntKey(7, 200)
	if err != nil || !found {
		t.Fatalf("expected entry under ds2's key after swap, found=%v err=%v", found, err)
	}
	if val != 5 {
		t.Fatalf("expected mintxg 5 to carry over, got %d", val)
	}
}
