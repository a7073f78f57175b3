// Package zapkv stands in for ZFS's on-disk ZAP (ZFS Attribute Processor)
// directories: a persisted key/value namespace supporting named scalar
// entries (the DMU_POOL_SCAN record, legacy marker names) and per-object
// integer-keyed maps (the dataset work queue, keyed dsobj -> mintxg).
// It is backed by github.com/tidwall/buntdb, whose ordered key iteration
// and Update-transaction model map directly onto zap_cursor_init/
// _retrieve/_fini and zap_add_int_key/zap_remove_int/zap_join_key.
package zapkv

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/buntdb"

	"github.com/coldtrove/poolscan/internal/cos"
)

// Store wraps a buntdb database as the pool-wide ZAP stand-in.
type Store struct {
	db *buntdb.DB
}

// Open opens (creating if absent) the persisted KV at path. Pass ":memory:"
// for an in-memory store, useful for tests and the benchmarking harness.
func Open(path string) (*Store, error) {
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, cos.IOErrorf("zapkv: open %s: %v", path, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Txn is a single atomic batch of mutations, matching the invariant that
// the scan record and work-queue mutations for one txg are persisted
// together or not at all.
type Txn struct {
	tx *buntdb.Tx
}

// WithTxn runs fn inside one buntdb.Update transaction. Any error returned
// by fn aborts the whole transaction.
func (s *Store) WithTxn(fn func(tx *Txn) error) error {
	err := s.db.Update(func(btx *buntdb.Tx) error {
		return fn(&Txn{tx: btx})
	})
	if err != nil {
		return cos.IOErrorf("zapkv: txn: %v", err)
	}
	return nil
}

func namedKey(dir, name string) string {
	return "named/" + dir + "/" + name
}

// SetNamed writes a named scalar entry (e.g. the persisted scan-state
// record, or a legacy marker name) within directory dir.
func (t *Txn) SetNamed(dir, name, value string) error {
	_, _, err := t.tx.Set(namedKey(dir, name), value, nil)
	return err
}

func (t *Txn) DeleteNamed(dir, name string) error {
	_, err := t.tx.Delete(namedKey(dir, name))
	if err != nil && err != buntdb.ErrNotFound {
		return err
	}
	return nil
}

// LookupNamed reads a named scalar entry outside of a transaction.
func (s *Store) LookupNamed(dir, name string) (string, bool, error) {
	var val string
	err := s.db.View(func(tx *buntdb.Tx) error {
		v, err := tx.Get(namedKey(dir, name))
		if err != nil {
			if err == buntdb.ErrNotFound {
				return nil
			}
			return err
		}
		val = v
		return nil
	})
	if err != nil {
		return "", false, cos.IOErrorf("zapkv: lookup %s/%s: %v", dir, name, err)
	}
	return val, val != "", nil
}

func objKey(objID, key uint64) string {
	return fmt.Sprintf("obj/%020d/%020d", objID, key)
}

func objPrefix(objID uint64) string {
	return fmt.Sprintf("obj/%020d/", objID)
}

// AddIntKey sets queue-object objID's entry for key to val, the generic
// form of zap_add_int_key / zap_update used for the work queue (dsobj ->
// mintxg).
func (t *Txn) AddIntKey(objID, key, val uint64) error {
	_, _, err := t.tx.Set(objKey(objID, key), strconv.FormatUint(val, 10), nil)
	return err
}

// RemoveIntKey deletes queue-object objID's entry for key, the zap_remove_int
// equivalent. Removing an absent key is not an error (matches callers that
// remove defensively).
func (t *Txn) RemoveIntKey(objID, key uint64) error {
	_, err := t.tx.Delete(objKey(objID, key))
	if err != nil && err != buntdb.ErrNotFound {
		return err
	}
	return nil
}

// LookupIntKey reads queue-object objID's entry for key.
func (s *Store) LookupIntKey(objID, key uint64) (uint64, bool, error) {
	var val uint64
	found := false
	err := s.db.View(func(tx *buntdb.Tx) error {
		v, err := tx.Get(objKey(objID, key))
		if err != nil {
			if err == buntdb.ErrNotFound {
				return nil
			}
			return err
		}
		n, perr := strconv.ParseUint(v, 10, 64)
		if perr != nil {
			return perr
		}
		val, found = n, true
		return nil
	})
	if err != nil {
		return 0, false, cos.IOErrorf("zapkv: lookup int key: %v", err)
	}
	return val, found, nil
}

// Count returns the number of entries in queue-object objID, the
// zap_count equivalent used to detect an empty work queue.
func (s *Store) Count(objID uint64) (int, error) {
	n := 0
	err := s.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys(objPrefix(objID)+"*", func(k, v string) bool {
			n++
			return true
		})
	})
	if err != nil {
		return 0, cos.IOErrorf("zapkv: count: %v", err)
	}
	return n, nil
}

// Entry is one (key, val) pair yielded by a cursor walk.
type Entry struct {
	Key uint64
	Val uint64
}

// EachEntry walks every entry of queue-object objID in ascending key order,
// the zap_cursor_init/_retrieve/_advance/_fini loop collapsed into an
// iterator callback. Returning false from fn stops the walk early.
func (s *Store) EachEntry(objID uint64, fn func(Entry) bool) error {
	prefix := objPrefix(objID)
	err := s.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys(prefix+"*", func(k, v string) bool {
			keyPart := strings.TrimPrefix(k, prefix)
			key, err := strconv.ParseUint(keyPart, 10, 64)
			if err != nil {
				return true
			}
			val, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return true
			}
			return fn(Entry{Key: key, Val: val})
		})
	})
	if err != nil {
		return cos.IOErrorf("zapkv: each entry: %v", err)
	}
	return nil
}

// FreeObject removes every entry belonging to queue-object objID, the
// zap-object-free equivalent invoked when a work queue is fully drained or
// a scan record is discarded.
func (t *Txn) FreeObject(objID uint64) error {
	var keys []string
	t.tx.AscendKeys(objPrefix(objID)+"*", func(k, v string) bool {
		keys = append(keys, k)
		return true
	})
	for _, k := range keys {
		if _, err := t.tx.Delete(k); err != nil && err != buntdb.ErrNotFound {
			return err
		}
	}
	return nil
}

const nextObjKey = "meta/next_obj_id"

// AllocObject hands out a fresh queue-object id, the dmu_object_alloc
// stand-in. Starts at 1 so 0 can mean "no queue object allocated yet" the
// way the original treats scn_queue_obj == 0.
func (t *Txn) AllocObject() (uint64, error) {
	v, err := t.tx.Get(nextObjKey)
	var next uint64 = 1
	if err == nil {
		n, perr := strconv.ParseUint(v, 10, 64)
		if perr == nil {
			next = n
		}
	} else if err != buntdb.ErrNotFound {
		return 0, err
	}
	if _, _, err := t.tx.Set(nextObjKey, strconv.FormatUint(next+1, 10), nil); err != nil {
		return 0, err
	}
	return next, nil
}
