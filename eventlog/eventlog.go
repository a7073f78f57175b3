// Package eventlog encodes the scan engine's history-log lines and
// notified events (spec.md §6 names the line/event names; this package
// supplies their payload shape, taken from the format strings in the
// original's dsl_scan_setup_sync/dsl_scan_done per SPEC_FULL.md's
// supplemented features). Formatting and delivery to an external notifier
// are out of scope (spec.md §1); this only produces the structured,
// compressed record an out-of-scope notifier would consume.
package eventlog

import (
	"bytes"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"github.com/pierrec/lz4/v3"

	"github.com/coldtrove/poolscan/internal/cos"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Event names a notified event (spec.md §6).
type Event string

const (
	EventResilverStart  Event = "RESILVER_START"
	EventScrubStart     Event = "SCRUB_START"
	EventResilverFinish Event = "RESILVER_FINISH"
	EventScrubFinish    Event = "SCRUB_FINISH"
)

// Notifier is the out-of-scope external event sink; the coordinator holds
// one and calls it at state transitions.
type Notifier interface {
	Notify(ev Event, payload interface{})
}

// NopNotifier discards every event; the default when no collaborator is
// wired in (tests, the benchmarking harness).
type NopNotifier struct{}

func (NopNotifier) Notify(Event, interface{}) {}

// ScanStartPayload is LOG_POOL_SCAN's line: which function started, over
// what txg window.
type ScanStartPayload struct {
	Func   string `json:"func"`
	MinTxg uint64 `json:"mintxg"`
	MaxTxg uint64 `json:"maxtxg"`
}

// ScanDonePayload is LOG_POOL_SCAN_DONE's line.
type ScanDonePayload struct {
	Complete bool `json:"complete"`
}

// entry is one append-only history-log line.
type entry struct {
	Name    string      `json:"name"`
	Payload interface{} `json:"payload"`
}

// HistoryLog is the append-only scan history segment, held in memory. Each
// pool scan owns one; nothing in this module writes it into the persisted
// KV, and CompressedSegment is the only way to take its contents out.
type HistoryLog struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

// AppendScanStart writes a LOG_POOL_SCAN line.
func (h *HistoryLog) AppendScanStart(p ScanStartPayload) error {
	return h.append("LOG_POOL_SCAN", p)
}

// AppendScanDone writes a LOG_POOL_SCAN_DONE line.
func (h *HistoryLog) AppendScanDone(p ScanDonePayload) error {
	return h.append("LOG_POOL_SCAN_DONE", p)
}

func (h *HistoryLog) append(name string, payload interface{}) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	b, err := json.Marshal(entry{Name: name, Payload: payload})
	if err != nil {
		return cos.IOErrorf("eventlog: marshal %s: %v", name, err)
	}
	h.buf.Write(b)
	h.buf.WriteByte('\n')
	return nil
}

// CompressedSegment returns the log accumulated so far, lz4-compressed,
// ready to be persisted as one opaque value in the pool's KV directory.
func (h *HistoryLog) CompressedSegment() ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var out bytes.Buffer
	w := lz4.NewWriter(&out)
	if _, err := w.Write(h.buf.Bytes()); err != nil {
		return nil, cos.IOErrorf("eventlog: lz4 compress: %v", err)
	}
	if err := w.Close(); err != nil {
		return nil, cos.IOErrorf("eventlog: lz4 close: %v", err)
	}
	return out.Bytes(), nil
}

// DecompressSegment reverses CompressedSegment. Nothing in this module
// calls it; pool import does not reload a history segment.
func DecompressSegment(compressed []byte) ([]byte, error) {
	r := lz4.NewReader(bytes.NewReader(compressed))
	var out bytes.Buffer
	if _, err := out.ReadFrom(r); err != nil {
		return nil, cos.IOErrorf("eventlog: lz4 decompress: %v", err)
	}
	return out.Bytes(), nil
}
